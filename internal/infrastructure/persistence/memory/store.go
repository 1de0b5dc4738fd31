// Package memory implements person.Repository in process memory.
//
// Transactions are serialized by one store-wide lock, which is a superset of
// the row locks a SQL backend takes, and undone on error. Used by tests and
// by local runs without a database.
package memory

import (
	"context"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

type row struct {
	lastName, firstName, middleName string

	enrichment person.Enrichment
	createdAt  time.Time
	updatedAt  time.Time
}

// Store is an in-memory person repository.
type Store struct {
	txMu sync.Mutex

	mu      sync.RWMutex
	nextID  person.ID
	people  map[person.ID]*row
	emails  map[person.ID][]string
	owners  map[string]person.ID
	friends map[person.ID]map[person.ID]struct{}
	faults  map[string]error

	now func() time.Time
}

// NewStore creates an empty store.
func NewStore() *Store {
	return &Store{
		people:  make(map[person.ID]*row),
		emails:  make(map[person.ID][]string),
		owners:  make(map[string]person.ID),
		friends: make(map[person.ID]map[person.ID]struct{}),
		faults:  make(map[string]error),
		now:     time.Now,
	}
}

// InjectFault makes the named Tx operation fail with err until cleared with nil.
func (s *Store) InjectFault(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if err == nil {
		delete(s.faults, op)
		return
	}
	s.faults[op] = err
}

func (s *Store) fault(op string) error {
	return s.faults[op]
}

// Ping always succeeds.
func (s *Store) Ping(context.Context) error {
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// QUERIES
// ══════════════════════════════════════════════════════════════════════════════

// GetByID returns a copy of the person.
func (s *Store) GetByID(_ context.Context, id person.ID) (*person.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.load(id)
}

// List returns a page ordered by ID.
func (s *Store) List(_ context.Context, opts person.ListOptions) ([]*person.Person, error) {
	opts = opts.Normalize()

	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs(func(*row) bool { return true })
	if opts.Offset >= len(ids) {
		return []*person.Person{}, nil
	}
	ids = ids[opts.Offset:min(len(ids), opts.Offset+opts.Limit)]
	return s.loadAll(ids), nil
}

// SearchByLastName matches the last name case-insensitively.
func (s *Store) SearchByLastName(_ context.Context, lastName string) ([]*person.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ids := s.sortedIDs(func(r *row) bool { return strings.EqualFold(r.lastName, lastName) })
	return s.loadAll(ids), nil
}

// Friends returns the person's friends ordered by ID.
func (s *Store) Friends(_ context.Context, id person.ID) ([]*person.Person, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if _, ok := s.people[id]; !ok {
		return nil, person.ErrNotFound("Friends", id)
	}
	return s.loadAll(s.friendIDs(id)), nil
}

// WithinTx runs fn with exclusive access and rolls back its writes on error.
func (s *Store) WithinTx(ctx context.Context, fn func(ctx context.Context, tx person.Tx) error) error {
	s.txMu.Lock()
	defer s.txMu.Unlock()

	tx := &memTx{s: s}
	defer func() {
		if p := recover(); p != nil {
			tx.rollback()
			panic(p)
		}
	}()

	if err := fn(ctx, tx); err != nil {
		tx.rollback()
		return err
	}
	return nil
}

// ══════════════════════════════════════════════════════════════════════════════
// READ HELPERS (callers hold mu)
// ══════════════════════════════════════════════════════════════════════════════

func (s *Store) load(id person.ID) (*person.Person, error) {
	r, ok := s.people[id]
	if !ok {
		return nil, person.ErrNotFound("GetByID", id)
	}

	e := r.enrichment
	p := &person.Person{
		ID:          id,
		LastName:    r.lastName,
		FirstName:   r.firstName,
		MiddleName:  r.middleName,
		Gender:      e.Gender,
		Nationality: e.Nationality,
		Emails:      slices.Clone(s.emails[id]),
		Friends:     s.friendIDs(id),
		CreatedAt:   r.createdAt,
		UpdatedAt:   r.updatedAt,
	}
	if e.Age != nil {
		p.Age = person.AgeOf(*e.Age)
	}
	if p.Emails == nil {
		p.Emails = []string{}
	}
	return p, nil
}

func (s *Store) loadAll(ids []person.ID) []*person.Person {
	out := make([]*person.Person, 0, len(ids))
	for _, id := range ids {
		if p, err := s.load(id); err == nil {
			out = append(out, p)
		}
	}
	return out
}

func (s *Store) sortedIDs(match func(*row) bool) []person.ID {
	ids := make([]person.ID, 0, len(s.people))
	for id, r := range s.people {
		if match(r) {
			ids = append(ids, id)
		}
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) friendIDs(id person.ID) []person.ID {
	ids := make([]person.ID, 0, len(s.friends[id]))
	for f := range s.friends[id] {
		ids = append(ids, f)
	}
	slices.Sort(ids)
	return ids
}

func (s *Store) nameTaken(r *row, exclude person.ID) bool {
	for id, other := range s.people {
		if id != exclude && other.lastName == r.lastName && other.firstName == r.firstName && other.middleName == r.middleName {
			return true
		}
	}
	return false
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type memTx struct {
	s    *Store
	undo []func()
}

func (tx *memTx) rollback() {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// write runs fn under the data lock after checking injected faults.
func (tx *memTx) write(op string, fn func() error) error {
	tx.s.mu.Lock()
	defer tx.s.mu.Unlock()
	if err := tx.s.fault(op); err != nil {
		return err
	}
	return fn()
}

func (tx *memTx) read(op string, fn func() error) error {
	tx.s.mu.RLock()
	defer tx.s.mu.RUnlock()
	if err := tx.s.fault(op); err != nil {
		return err
	}
	return fn()
}

func (tx *memTx) Create(_ context.Context, p *person.Person) error {
	return tx.write("Create", func() error {
		s := tx.s
		now := s.now().UTC()
		r := &row{
			lastName:   p.LastName,
			firstName:  p.FirstName,
			middleName: p.MiddleName,
			createdAt:  now,
			updatedAt:  now,
		}
		if s.nameTaken(r, 0) {
			return person.ErrDuplicateName("Create")
		}
		if taken := s.taken(p.Emails, 0); len(taken) > 0 {
			return &shared.EmailConflictError{Addresses: taken}
		}

		s.nextID++
		id := s.nextID
		s.people[id] = r
		tx.undo = append(tx.undo, func() { delete(s.people, id) })
		tx.setEmails(id, p.Emails)

		p.ID = id
		p.CreatedAt, p.UpdatedAt = now, now
		p.Gender, p.Age, p.Nationality = person.GenderUnknown, nil, ""
		return nil
	})
}

func (tx *memTx) UpdateNames(_ context.Context, p *person.Person) error {
	return tx.write("UpdateNames", func() error {
		s := tx.s
		r, ok := s.people[p.ID]
		if !ok {
			return person.ErrNotFound("UpdateNames", p.ID)
		}
		next := *r
		next.lastName, next.firstName, next.middleName = p.LastName, p.FirstName, p.MiddleName
		if s.nameTaken(&next, p.ID) {
			return person.ErrDuplicateName("UpdateNames")
		}
		next.updatedAt = s.now().UTC()

		prev := *r
		*r = next
		tx.undo = append(tx.undo, func() { *r = prev })
		p.UpdatedAt = next.updatedAt
		return nil
	})
}

func (tx *memTx) GetByID(_ context.Context, id person.ID) (*person.Person, error) {
	var p *person.Person
	err := tx.read("GetByID", func() (err error) {
		p, err = tx.s.load(id)
		return err
	})
	return p, err
}

// Lock returns the existing IDs in ascending order. The transaction already
// holds the store exclusively.
func (tx *memTx) Lock(_ context.Context, ids ...person.ID) ([]person.ID, error) {
	var found []person.ID
	err := tx.read("Lock", func() error {
		for _, id := range ids {
			if _, ok := tx.s.people[id]; ok && !slices.Contains(found, id) {
				found = append(found, id)
			}
		}
		slices.Sort(found)
		return nil
	})
	return found, err
}

func (tx *memTx) GetForUpdate(ctx context.Context, id person.ID) (*person.Person, error) {
	if err := tx.read("GetForUpdate", func() error { return nil }); err != nil {
		return nil, err
	}
	return tx.GetByID(ctx, id)
}

func (tx *memTx) SaveEnrichment(_ context.Context, id person.ID, e person.Enrichment) error {
	return tx.write("SaveEnrichment", func() error {
		s := tx.s
		r, ok := s.people[id]
		if !ok {
			return person.ErrNotFound("SaveEnrichment", id)
		}
		prev := *r
		r.enrichment = person.Enrichment{Gender: e.Gender, Nationality: e.Nationality}
		if e.Age != nil {
			r.enrichment.Age = person.AgeOf(*e.Age)
		}
		r.updatedAt = s.now().UTC()
		tx.undo = append(tx.undo, func() { *r = prev })
		return nil
	})
}

func (tx *memTx) EmailsTaken(_ context.Context, emails []string, exclude person.ID) ([]string, error) {
	var taken []string
	err := tx.read("EmailsTaken", func() error {
		taken = tx.s.taken(emails, exclude)
		return nil
	})
	return taken, err
}

func (s *Store) taken(emails []string, exclude person.ID) []string {
	var taken []string
	for _, e := range emails {
		if owner, ok := s.owners[e]; ok && owner != exclude {
			taken = append(taken, e)
		}
	}
	return taken
}

func (tx *memTx) ReplaceEmails(_ context.Context, id person.ID, emails []string) error {
	return tx.write("ReplaceEmails", func() error {
		s := tx.s
		if _, ok := s.people[id]; !ok {
			return person.ErrNotFound("ReplaceEmails", id)
		}
		if taken := s.taken(emails, id); len(taken) > 0 {
			return &shared.EmailConflictError{Addresses: taken}
		}
		tx.setEmails(id, emails)
		return nil
	})
}

// setEmails must be called with mu held.
func (tx *memTx) setEmails(id person.ID, emails []string) {
	s := tx.s
	prev, hadPrev := s.emails[id]

	for _, e := range prev {
		delete(s.owners, e)
	}
	next := slices.Clone(emails)
	for _, e := range next {
		s.owners[e] = id
	}
	s.emails[id] = next

	tx.undo = append(tx.undo, func() {
		for _, e := range next {
			delete(s.owners, e)
		}
		for _, e := range prev {
			s.owners[e] = id
		}
		if hadPrev {
			s.emails[id] = prev
		} else {
			delete(s.emails, id)
		}
	})
}

func (tx *memTx) HasFriend(_ context.Context, id, friendID person.ID) (bool, error) {
	var ok bool
	err := tx.read("HasFriend", func() error {
		_, ok = tx.s.friends[id][friendID]
		return nil
	})
	return ok, err
}

func (tx *memTx) AddFriendship(_ context.Context, a, b person.ID) error {
	return tx.write("AddFriendship", func() error {
		s := tx.s
		for _, id := range []person.ID{a, b} {
			if _, ok := s.people[id]; !ok {
				return person.ErrNotFound("AddFriendship", id)
			}
		}
		tx.link(a, b)
		tx.link(b, a)
		return nil
	})
}

func (tx *memTx) RemoveFriendship(_ context.Context, a, b person.ID) error {
	return tx.write("RemoveFriendship", func() error {
		tx.unlink(a, b)
		tx.unlink(b, a)
		return nil
	})
}

func (tx *memTx) link(from, to person.ID) {
	s := tx.s
	if _, ok := s.friends[from][to]; ok {
		return
	}
	if s.friends[from] == nil {
		s.friends[from] = make(map[person.ID]struct{})
	}
	s.friends[from][to] = struct{}{}
	tx.undo = append(tx.undo, func() { delete(s.friends[from], to) })
}

func (tx *memTx) unlink(from, to person.ID) {
	s := tx.s
	if _, ok := s.friends[from][to]; !ok {
		return
	}
	delete(s.friends[from], to)
	tx.undo = append(tx.undo, func() { s.friends[from][to] = struct{}{} })
}

var (
	_ person.Repository = (*Store)(nil)
	_ person.Tx         = (*memTx)(nil)
)
