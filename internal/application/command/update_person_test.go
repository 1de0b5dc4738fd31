package command

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/memory"
)

func ptr(s string) *string { return &s }

func seedPerson(t *testing.T, store *memory.Store, last, first, middle string, emails ...string) *person.Person {
	t.Helper()
	p, err := person.New(last, first, middle, emails)
	require.NoError(t, err)
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx person.Tx) error {
		return tx.Create(ctx, p)
	}))
	return p
}

func TestUpdatePerson_FullReplace(t *testing.T) {
	store := memory.NewStore()
	p := seedPerson(t, store, "Old", "Name", "Middle", "old@example.com")
	h := NewUpdatePersonHandler(store)

	got, err := h.Handle(context.Background(), UpdatePersonCommand{
		ID:        p.ID,
		LastName:  ptr("New"),
		FirstName: ptr("Name"),
		Emails:    []string{"new@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, "New Name", got.DisplayName(), "full update clears an omitted middle name")
	assert.Equal(t, []string{"new@example.com"}, got.Emails)

	stored, err := store.GetByID(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Equal(t, []string{"new@example.com"}, stored.Emails)
}

func TestUpdatePerson_PartialKeepsOmittedFields(t *testing.T) {
	store := memory.NewStore()
	p := seedPerson(t, store, "Keep", "Me", "Please", "keep@example.com")
	h := NewUpdatePersonHandler(store)

	got, err := h.Handle(context.Background(), UpdatePersonCommand{
		ID:        p.ID,
		Partial:   true,
		FirstName: ptr("You"),
	})
	require.NoError(t, err)
	assert.Equal(t, "Keep You Please", got.DisplayName())
	assert.Equal(t, []string{"keep@example.com"}, got.Emails, "omitted emails are unchanged")
}

func TestUpdatePerson_EmptyEmailListClearsAddresses(t *testing.T) {
	store := memory.NewStore()
	p := seedPerson(t, store, "Has", "Mail", "", "a@example.com", "b@example.com")
	h := NewUpdatePersonHandler(store)

	got, err := h.Handle(context.Background(), UpdatePersonCommand{ID: p.ID, Partial: true, Emails: []string{}})
	require.NoError(t, err)
	assert.Empty(t, got.Emails)

	other := seedPerson(t, store, "Reuse", "Freed", "", "a@example.com")
	assert.Equal(t, []string{"a@example.com"}, other.Emails)
}

func TestUpdatePerson_EmailGuardExcludesOwnAddresses(t *testing.T) {
	store := memory.NewStore()
	a := seedPerson(t, store, "A", "A", "", "a@example.com", "shared@example.com")
	seedPerson(t, store, "B", "B", "", "b@example.com")
	h := NewUpdatePersonHandler(store)

	got, err := h.Handle(context.Background(), UpdatePersonCommand{
		ID: a.ID, Partial: true, Emails: []string{"shared@example.com", "a2@example.com"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"shared@example.com", "a2@example.com"}, got.Emails)

	_, err = h.Handle(context.Background(), UpdatePersonCommand{
		ID: a.ID, Partial: true, LastName: ptr("Renamed"), Emails: []string{"b@example.com", "x@example.com"},
	})
	var ec *shared.EmailConflictError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, []string{"b@example.com"}, ec.Addresses)

	stored, _ := store.GetByID(context.Background(), a.ID)
	assert.Equal(t, "A", stored.LastName, "rename rolled back with the email conflict")
	assert.Equal(t, []string{"shared@example.com", "a2@example.com"}, stored.Emails)
}

func TestUpdatePerson_NeverTouchesEnrichment(t *testing.T) {
	store := memory.NewStore()
	p := seedPerson(t, store, "Enriched", "Already", "")
	require.NoError(t, store.WithinTx(context.Background(), func(ctx context.Context, tx person.Tx) error {
		return tx.SaveEnrichment(ctx, p.ID, person.Enrichment{Gender: person.GenderFemale, Age: person.AgeOf(33), Nationality: "NO"})
	}))

	got, err := NewUpdatePersonHandler(store).Handle(context.Background(), UpdatePersonCommand{
		ID: p.ID, LastName: ptr("Renamed"), FirstName: ptr("Already"),
	})
	require.NoError(t, err)
	assert.Equal(t, person.GenderFemale, got.Gender)
	require.NotNil(t, got.Age)
	assert.Equal(t, 33, *got.Age)
	assert.Equal(t, person.CountryCode("NO"), got.Nationality)
}

func TestUpdatePerson_Errors(t *testing.T) {
	store := memory.NewStore()
	seedPerson(t, store, "Taken", "Name", "")
	p := seedPerson(t, store, "Other", "Name", "")
	h := NewUpdatePersonHandler(store)
	ctx := context.Background()

	_, err := h.Handle(ctx, UpdatePersonCommand{ID: 99, Partial: true, FirstName: ptr("X")})
	assert.True(t, shared.IsNotFound(err))

	_, err = h.Handle(ctx, UpdatePersonCommand{ID: p.ID, FirstName: ptr("Only")})
	assert.True(t, shared.IsValidation(err))
	assert.Equal(t, "last_name is required", shared.PublicMessage(err))

	_, err = h.Handle(ctx, UpdatePersonCommand{ID: p.ID, Partial: true, LastName: ptr("")})
	assert.True(t, shared.IsValidation(err))

	_, err = h.Handle(ctx, UpdatePersonCommand{ID: p.ID, LastName: ptr("Taken"), FirstName: ptr("Name")})
	assert.True(t, shared.IsConflict(err))
}
