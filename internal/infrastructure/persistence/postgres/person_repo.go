package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// PERSON REPOSITORY IMPLEMENTATION
// ══════════════════════════════════════════════════════════════════════════════

// selectPerson loads a person with emails and friend IDs in one round trip.
const selectPerson = `
	SELECT p.id, p.last_name, p.first_name, p.middle_name,
	       p.gender, p.age, p.nationality, p.created_at, p.updated_at,
	       COALESCE((SELECT array_agg(e.email ORDER BY e.position)
	                 FROM emails e WHERE e.person_id = p.id), '{}') AS emails,
	       COALESCE((SELECT array_agg(f.to_person_id ORDER BY f.to_person_id)
	                 FROM person_friends f WHERE f.from_person_id = p.id), '{}') AS friends
	FROM people p
`

// PersonRepository implements person.Repository for PostgreSQL.
type PersonRepository struct {
	conn *Connection
}

// NewPersonRepository creates a new PersonRepository.
func NewPersonRepository(conn *Connection) *PersonRepository {
	return &PersonRepository{conn: conn}
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

// GetByID returns a person by ID.
func (r *PersonRepository) GetByID(ctx context.Context, id person.ID) (*person.Person, error) {
	return getByID(ctx, r.conn.Pool(), id)
}

// List returns a page of people ordered by ID.
func (r *PersonRepository) List(ctx context.Context, opts person.ListOptions) ([]*person.Person, error) {
	opts = opts.Normalize()
	query := selectPerson + ` ORDER BY p.id LIMIT $1 OFFSET $2`

	rows, err := r.conn.Pool().Query(ctx, query, opts.Limit, opts.Offset)
	if err != nil {
		return nil, fmt.Errorf("failed to list people: %w", err)
	}
	return collectPeople(rows)
}

// SearchByLastName matches last_name case-insensitively.
func (r *PersonRepository) SearchByLastName(ctx context.Context, lastName string) ([]*person.Person, error) {
	query := selectPerson + ` WHERE lower(p.last_name) = lower($1) ORDER BY p.id`

	rows, err := r.conn.Pool().Query(ctx, query, lastName)
	if err != nil {
		return nil, fmt.Errorf("failed to search people: %w", err)
	}
	return collectPeople(rows)
}

// Friends returns the person's friends ordered by ID.
func (r *PersonRepository) Friends(ctx context.Context, id person.ID) ([]*person.Person, error) {
	pool := r.conn.Pool()

	var exists bool
	if err := pool.QueryRow(ctx, `SELECT EXISTS(SELECT 1 FROM people WHERE id = $1)`, int64(id)).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check person: %w", err)
	}
	if !exists {
		return nil, person.ErrNotFound("Friends", id)
	}

	query := selectPerson + `
		WHERE p.id IN (SELECT to_person_id FROM person_friends WHERE from_person_id = $1)
		ORDER BY p.id`

	rows, err := pool.Query(ctx, query, int64(id))
	if err != nil {
		return nil, fmt.Errorf("failed to list friends: %w", err)
	}
	return collectPeople(rows)
}

// WithinTx runs fn in one read-committed transaction.
func (r *PersonRepository) WithinTx(ctx context.Context, fn func(ctx context.Context, tx person.Tx) error) error {
	return r.conn.WithTx(ctx, DefaultTxOptions(), func(tx pgx.Tx) error {
		return fn(ctx, &personTx{tx: tx})
	})
}

// ─────────────────────────────────────────────────────────────────────────────
// Scanning
// ─────────────────────────────────────────────────────────────────────────────

func getByID(ctx context.Context, q Querier, id person.ID) (*person.Person, error) {
	p, err := scanPerson(q.QueryRow(ctx, selectPerson+` WHERE p.id = $1`, int64(id)))
	if IsNoRows(err) {
		return nil, person.ErrNotFound("GetByID", id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get person %d: %w", id, err)
	}
	return p, nil
}

func scanPerson(row pgx.Row) (*person.Person, error) {
	var (
		p           person.Person
		id          int64
		gender      *string
		age         *int
		nationality *string
		friends     []int64
	)

	err := row.Scan(
		&id,
		&p.LastName,
		&p.FirstName,
		&p.MiddleName,
		&gender,
		&age,
		&nationality,
		&p.CreatedAt,
		&p.UpdatedAt,
		&p.Emails,
		&friends,
	)
	if err != nil {
		return nil, err
	}

	p.ID = person.ID(id)
	if gender != nil {
		p.Gender = person.Gender(*gender)
	}
	p.Age = age
	if nationality != nil {
		p.Nationality = person.CountryCode(*nationality)
	}
	p.Friends = make([]person.ID, len(friends))
	for i, f := range friends {
		p.Friends[i] = person.ID(f)
	}
	if p.Emails == nil {
		p.Emails = []string{}
	}

	return &p, nil
}

func collectPeople(rows pgx.Rows) ([]*person.Person, error) {
	defer rows.Close()

	people := make([]*person.Person, 0)
	for rows.Next() {
		p, err := scanPerson(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan person: %w", err)
		}
		people = append(people, p)
	}
	return people, rows.Err()
}

// ══════════════════════════════════════════════════════════════════════════════
// TRANSACTION
// ══════════════════════════════════════════════════════════════════════════════

type personTx struct {
	tx pgx.Tx
}

// Create inserts the person and its emails.
func (t *personTx) Create(ctx context.Context, p *person.Person) error {
	query := `
		INSERT INTO people (last_name, first_name, middle_name)
		VALUES ($1, $2, $3)
		RETURNING id, created_at, updated_at
	`

	var id int64
	err := t.tx.QueryRow(ctx, query, p.LastName, p.FirstName, p.MiddleName).
		Scan(&id, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if IsUniqueViolation(err, constraintPeopleName) {
			return person.ErrDuplicateName("Create")
		}
		return fmt.Errorf("failed to create person: %w", err)
	}

	p.ID = person.ID(id)
	p.Gender, p.Age, p.Nationality = person.GenderUnknown, nil, ""
	return t.insertEmails(ctx, p.ID, p.Emails)
}

// UpdateNames saves the three name parts.
func (t *personTx) UpdateNames(ctx context.Context, p *person.Person) error {
	query := `
		UPDATE people SET last_name = $2, first_name = $3, middle_name = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at
	`

	err := t.tx.QueryRow(ctx, query, int64(p.ID), p.LastName, p.FirstName, p.MiddleName).Scan(&p.UpdatedAt)
	if err != nil {
		if IsNoRows(err) {
			return person.ErrNotFound("UpdateNames", p.ID)
		}
		if IsUniqueViolation(err, constraintPeopleName) {
			return person.ErrDuplicateName("UpdateNames")
		}
		return fmt.Errorf("failed to update person %d: %w", p.ID, err)
	}
	return nil
}

func (t *personTx) GetByID(ctx context.Context, id person.ID) (*person.Person, error) {
	return getByID(ctx, t.tx, id)
}

// Lock takes FOR UPDATE row locks in ascending ID order.
func (t *personTx) Lock(ctx context.Context, ids ...person.ID) ([]person.ID, error) {
	raw := make([]int64, len(ids))
	for i, id := range ids {
		raw[i] = int64(id)
	}

	rows, err := t.tx.Query(ctx, `SELECT id FROM people WHERE id = ANY($1) ORDER BY id FOR UPDATE`, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to lock people: %w", err)
	}

	locked, err := pgx.CollectRows(rows, func(row pgx.CollectableRow) (person.ID, error) {
		var id int64
		err := row.Scan(&id)
		return person.ID(id), err
	})
	if err != nil {
		return nil, fmt.Errorf("failed to lock people: %w", err)
	}
	return locked, nil
}

// GetForUpdate blocks until the row lock is granted, then re-reads the person.
func (t *personTx) GetForUpdate(ctx context.Context, id person.ID) (*person.Person, error) {
	locked, err := t.Lock(ctx, id)
	if err != nil {
		return nil, err
	}
	if len(locked) == 0 {
		return nil, person.ErrNotFound("GetForUpdate", id)
	}
	return getByID(ctx, t.tx, id)
}

// SaveEnrichment overwrites exactly the three enrichment columns.
func (t *personTx) SaveEnrichment(ctx context.Context, id person.ID, e person.Enrichment) error {
	query := `
		UPDATE people SET gender = $2, age = $3, nationality = $4, updated_at = NOW()
		WHERE id = $1
	`

	tag, err := t.tx.Exec(ctx, query, int64(id), nullString(string(e.Gender)), e.Age, nullString(string(e.Nationality)))
	if err != nil {
		return fmt.Errorf("failed to save enrichment for person %d: %w", id, err)
	}
	if tag.RowsAffected() == 0 {
		return person.ErrNotFound("SaveEnrichment", id)
	}
	return nil
}

// EmailsTaken keeps the order of the requested list.
func (t *personTx) EmailsTaken(ctx context.Context, emails []string, exclude person.ID) ([]string, error) {
	if len(emails) == 0 {
		return nil, nil
	}

	query := `
		SELECT email FROM emails
		WHERE email = ANY($1) AND person_id <> $2
		ORDER BY array_position($1, email)
	`

	rows, err := t.tx.Query(ctx, query, emails, int64(exclude))
	if err != nil {
		return nil, fmt.Errorf("failed to check emails: %w", err)
	}

	taken, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, fmt.Errorf("failed to check emails: %w", err)
	}
	return taken, nil
}

// ReplaceEmails deletes every address of the person, then inserts the new set.
func (t *personTx) ReplaceEmails(ctx context.Context, id person.ID, emails []string) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM emails WHERE person_id = $1`, int64(id)); err != nil {
		return fmt.Errorf("failed to delete emails of person %d: %w", id, err)
	}
	return t.insertEmails(ctx, id, emails)
}

func (t *personTx) insertEmails(ctx context.Context, id person.ID, emails []string) error {
	if len(emails) == 0 {
		return nil
	}

	rows := make([][]any, len(emails))
	for i, e := range emails {
		rows[i] = []any{int64(id), e, i}
	}

	_, err := t.tx.CopyFrom(ctx,
		pgx.Identifier{"emails"},
		[]string{"person_id", "email", "position"},
		pgx.CopyFromRows(rows),
	)
	if err != nil {
		if IsUniqueViolation(err, constraintEmailsEmail) {
			return emailConflict(err, emails)
		}
		if IsForeignKeyViolation(err) {
			return person.ErrNotFound("insertEmails", id)
		}
		return fmt.Errorf("failed to insert emails of person %d: %w", id, err)
	}
	return nil
}

// emailConflict turns a unique violation on emails.email into an
// EmailConflictError. A concurrent transaction can claim an address between
// EmailsTaken and the insert; the address comes from the error detail
// "Key (email)=(x) already exists." and falls back to the requested set.
func emailConflict(err error, requested []string) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		detail := pgErr.Detail
		if start := strings.Index(detail, ")=("); start >= 0 {
			rest := detail[start+3:]
			if end := strings.LastIndex(rest, ")"); end > 0 {
				return &shared.EmailConflictError{Addresses: []string{rest[:end]}}
			}
		}
	}
	return &shared.EmailConflictError{Addresses: append([]string(nil), requested...)}
}

func (t *personTx) HasFriend(ctx context.Context, id, friendID person.ID) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM person_friends WHERE from_person_id = $1 AND to_person_id = $2)`,
		int64(id), int64(friendID),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check friendship: %w", err)
	}
	return exists, nil
}

// AddFriendship inserts both directed edges. A self edge is stored once.
func (t *personTx) AddFriendship(ctx context.Context, a, b person.ID) error {
	query := `
		INSERT INTO person_friends (from_person_id, to_person_id)
		VALUES ($1, $2), ($2, $1)
		ON CONFLICT DO NOTHING
	`

	if _, err := t.tx.Exec(ctx, query, int64(a), int64(b)); err != nil {
		if IsForeignKeyViolation(err) {
			return shared.NotFound("person", "AddFriendship", "person %d or %d not found", a, b)
		}
		return fmt.Errorf("failed to add friendship %d-%d: %w", a, b, err)
	}
	return nil
}

// RemoveFriendship deletes both directed edges.
func (t *personTx) RemoveFriendship(ctx context.Context, a, b person.ID) error {
	query := `
		DELETE FROM person_friends
		WHERE (from_person_id = $1 AND to_person_id = $2)
		   OR (from_person_id = $2 AND to_person_id = $1)
	`

	if _, err := t.tx.Exec(ctx, query, int64(a), int64(b)); err != nil {
		return fmt.Errorf("failed to remove friendship %d-%d: %w", a, b, err)
	}
	return nil
}

func nullString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

var (
	_ person.Repository = (*PersonRepository)(nil)
	_ person.Tx         = (*personTx)(nil)
)
