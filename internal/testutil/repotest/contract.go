// Package repotest holds the behavioral contract every person.Repository
// implementation must satisfy. Backends run it from their own tests.
package repotest

import (
	"context"
	"sync"
	"time"

	"github.com/stretchr/testify/suite"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// RepositorySuite exercises a person.Repository. NewRepo must return an empty repository.
type RepositorySuite struct {
	suite.Suite

	NewRepo func() person.Repository
	repo    person.Repository
}

func (s *RepositorySuite) SetupTest() {
	s.repo = s.NewRepo()
}

func (s *RepositorySuite) create(last, first, middle string, emails ...string) *person.Person {
	p, err := person.New(last, first, middle, emails)
	s.Require().NoError(err)
	s.Require().NoError(s.repo.WithinTx(context.Background(), func(ctx context.Context, tx person.Tx) error {
		return tx.Create(ctx, p)
	}))
	return p
}

func (s *RepositorySuite) TestCreateAndGet() {
	p := s.create("Ivanov", "Ivan", "Ivanovich", "ivan@example.com", "ivan@work.example")
	s.True(p.ID.IsValid())
	s.False(p.CreatedAt.IsZero())

	got, err := s.repo.GetByID(context.Background(), p.ID)
	s.Require().NoError(err)
	s.Equal("Ivanov Ivan Ivanovich", got.DisplayName())
	s.Equal([]string{"ivan@example.com", "ivan@work.example"}, got.Emails)
	s.Empty(got.Friends)
	s.Equal(person.Enrichment{}, got.Enrichment())

	_, err = s.repo.GetByID(context.Background(), p.ID+1000)
	s.True(shared.IsNotFound(err))
}

func (s *RepositorySuite) TestDuplicateNameTriple() {
	s.create("Smith", "John", "")

	dup, _ := person.New("Smith", "John", "", nil)
	err := s.repo.WithinTx(context.Background(), func(ctx context.Context, tx person.Tx) error {
		return tx.Create(ctx, dup)
	})
	s.True(shared.IsConflict(err))

	s.create("Smith", "John", "Paul")
}

func (s *RepositorySuite) TestEmailsTakenAndReplace() {
	a := s.create("A", "A", "", "a@example.com", "shared@example.com")
	b := s.create("B", "B", "", "b@example.com")
	ctx := context.Background()

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		taken, err := tx.EmailsTaken(ctx, []string{"new@example.com", "shared@example.com", "b@example.com"}, 0)
		s.Equal([]string{"shared@example.com", "b@example.com"}, taken)
		s.Require().NoError(err)

		taken, err = tx.EmailsTaken(ctx, []string{"a@example.com", "b@example.com"}, a.ID)
		s.Equal([]string{"b@example.com"}, taken)
		return err
	}))

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		return tx.ReplaceEmails(ctx, a.ID, []string{"shared@example.com", "z@example.com"})
	}))

	got, err := s.repo.GetByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]string{"shared@example.com", "z@example.com"}, got.Emails)

	got, err = s.repo.GetByID(ctx, b.ID)
	s.Require().NoError(err)
	s.Equal([]string{"b@example.com"}, got.Emails)
}

func (s *RepositorySuite) TestRollbackLeavesNoPartialInsert() {
	ctx := context.Background()
	p, _ := person.New("Ghost", "Casper", "", []string{"ghost@example.com"})

	err := s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		if err := tx.Create(ctx, p); err != nil {
			return err
		}
		return shared.Validation("test", "rollback", "abort")
	})
	s.True(shared.IsValidation(err))

	found, err := s.repo.SearchByLastName(ctx, "ghost")
	s.Require().NoError(err)
	s.Empty(found)

	s.create("Other", "Person", "", "ghost@example.com")
}

func (s *RepositorySuite) TestFriendshipSymmetry() {
	a := s.create("A", "A", "")
	b := s.create("B", "B", "")
	ctx := context.Background()

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		return tx.AddFriendship(ctx, a.ID, b.ID)
	}))

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		ab, err := tx.HasFriend(ctx, a.ID, b.ID)
		s.Require().NoError(err)
		ba, err := tx.HasFriend(ctx, b.ID, a.ID)
		s.True(ab)
		s.True(ba)
		return err
	}))

	friends, err := s.repo.Friends(ctx, a.ID)
	s.Require().NoError(err)
	s.Require().Len(friends, 1)
	s.Equal(b.ID, friends[0].ID)

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		return tx.RemoveFriendship(ctx, a.ID, b.ID)
	}))

	for _, id := range []person.ID{a.ID, b.ID} {
		got, err := s.repo.GetByID(ctx, id)
		s.Require().NoError(err)
		s.Empty(got.Friends)
	}

	_, err = s.repo.Friends(ctx, 9999)
	s.True(shared.IsNotFound(err))
}

func (s *RepositorySuite) TestSelfFriendshipStoredOnce() {
	a := s.create("Self", "Ish", "")
	ctx := context.Background()

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		return tx.AddFriendship(ctx, a.ID, a.ID)
	}))

	got, err := s.repo.GetByID(ctx, a.ID)
	s.Require().NoError(err)
	s.Equal([]person.ID{a.ID}, got.Friends)
}

func (s *RepositorySuite) TestSaveEnrichmentTouchesOnlyEnrichment() {
	p := s.create("Smith", "John", "", "john@example.com")
	ctx := context.Background()

	s.Require().NoError(s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		current, err := tx.GetForUpdate(ctx, p.ID)
		s.Require().NoError(err)
		current.ApplyEnrichment(person.Enrichment{Gender: person.GenderMale, Age: person.AgeOf(44), Nationality: "GB"})
		return tx.SaveEnrichment(ctx, p.ID, current.Enrichment())
	}))

	got, err := s.repo.GetByID(ctx, p.ID)
	s.Require().NoError(err)
	s.Equal(person.GenderMale, got.Gender)
	s.Require().NotNil(got.Age)
	s.Equal(44, *got.Age)
	s.Equal(person.CountryCode("GB"), got.Nationality)
	s.Equal("Smith", got.LastName)
	s.Equal([]string{"john@example.com"}, got.Emails)

	err = s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		_, err := tx.GetForUpdate(ctx, p.ID+1000)
		return err
	})
	s.True(shared.IsNotFound(err))
}

func (s *RepositorySuite) TestListAndSearch() {
	s.create("Smith", "John", "")
	s.create("SMITH", "Jane", "")
	s.create("Doe", "Jane", "")
	ctx := context.Background()

	found, err := s.repo.SearchByLastName(ctx, "smith")
	s.Require().NoError(err)
	s.Len(found, 2)

	page, err := s.repo.List(ctx, person.ListOptions{Limit: 2})
	s.Require().NoError(err)
	s.Require().Len(page, 2)
	s.Less(page[0].ID, page[1].ID)

	page, err = s.repo.List(ctx, person.ListOptions{Limit: 2, Offset: 2})
	s.Require().NoError(err)
	s.Len(page, 1)
}

// TestLockSerializesWriters holds a row lock in one transaction and checks a
// second GetForUpdate only returns after the first commits.
func (s *RepositorySuite) TestLockSerializesWriters() {
	p := s.create("Lock", "Holder", "")
	ctx := context.Background()

	locked := make(chan struct{})
	release := make(chan struct{})
	var firstCommitted time.Time
	var wg sync.WaitGroup

	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
			if _, err := tx.GetForUpdate(ctx, p.ID); err != nil {
				return err
			}
			close(locked)
			<-release
			err := tx.SaveEnrichment(ctx, p.ID, person.Enrichment{Gender: person.GenderFemale})
			firstCommitted = time.Now()
			return err
		})
	}()

	<-locked
	var secondAcquired time.Time
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = s.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
			got, err := tx.GetForUpdate(ctx, p.ID)
			if err != nil {
				return err
			}
			secondAcquired = time.Now()
			s.Equal(person.GenderFemale, got.Gender)
			return nil
		})
	}()

	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()

	s.False(secondAcquired.IsZero())
	s.True(secondAcquired.After(firstCommitted))
}
