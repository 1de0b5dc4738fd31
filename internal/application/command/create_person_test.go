package command

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/person/mocks"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/internal/infrastructure/persistence/memory"
)

func TestCreatePerson_SchedulesEnrichmentOnceAfterCommit(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)

	scheduler.EXPECT().
		ScheduleEnrichment(gomock.Any(), person.ID(1)).
		DoAndReturn(func(ctx context.Context, id person.ID) error {
			got, err := store.GetByID(ctx, id)
			require.NoError(t, err, "person must be committed before scheduling")
			assert.Equal(t, "Smith", got.LastName)
			return nil
		}).
		Times(1)

	h := NewCreatePersonHandler(store, scheduler, nil)
	p, err := h.Handle(context.Background(), CreatePersonCommand{
		LastName:  "Smith",
		FirstName: "John",
		Emails:    []string{"john@example.com", "john@example.com", "j@Example.COM"},
	})
	require.NoError(t, err)
	assert.Equal(t, person.ID(1), p.ID)
	assert.Equal(t, []string{"john@example.com", "j@example.com"}, p.Emails)
	assert.Nil(t, p.Age)
}

func TestCreatePerson_EmailConflictListsAllTakenAddresses(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)
	scheduler.EXPECT().ScheduleEnrichment(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	h := NewCreatePersonHandler(store, scheduler, nil)
	_, err := h.Handle(context.Background(), CreatePersonCommand{
		LastName: "A", FirstName: "A", Emails: []string{"a@example.com", "b@example.com"},
	})
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), CreatePersonCommand{
		LastName: "B", FirstName: "B", Emails: []string{"b@example.com", "new@example.com", "a@example.com"},
	})
	var ec *shared.EmailConflictError
	require.ErrorAs(t, err, &ec)
	assert.Equal(t, []string{"b@example.com", "a@example.com"}, ec.Addresses)
	assert.True(t, shared.IsConflict(err))

	found, err := store.SearchByLastName(context.Background(), "B")
	require.NoError(t, err)
	assert.Empty(t, found, "nothing persisted on conflict")
}

func TestCreatePerson_DuplicateNameIsConflict(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)
	scheduler.EXPECT().ScheduleEnrichment(gomock.Any(), gomock.Any()).Return(nil).Times(1)

	h := NewCreatePersonHandler(store, scheduler, nil)
	cmd := CreatePersonCommand{LastName: "Doe", FirstName: "Jane", MiddleName: "Q"}
	_, err := h.Handle(context.Background(), cmd)
	require.NoError(t, err)

	_, err = h.Handle(context.Background(), cmd)
	assert.True(t, shared.IsConflict(err))
}

func TestCreatePerson_Validation(t *testing.T) {
	tests := []struct {
		name    string
		cmd     CreatePersonCommand
		message string
	}{
		{"missing last name", CreatePersonCommand{FirstName: "John"}, "last_name is required"},
		{"missing first name", CreatePersonCommand{LastName: "Smith"}, "first_name is required"},
		{"blank last name", CreatePersonCommand{LastName: "   ", FirstName: "John"}, "last_name is required"},
		{"long middle name", CreatePersonCommand{LastName: "S", FirstName: "J", MiddleName: strings.Repeat("x", 101)}, "middle_name must be at most 100 characters"},
		{"bad email", CreatePersonCommand{LastName: "S", FirstName: "J", Emails: []string{"ok@example.com", "nope"}}, "person_emails[1] must be a valid email address"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ctrl := gomock.NewController(t)
			scheduler := mocks.NewMockEnrichmentScheduler(ctrl)

			h := NewCreatePersonHandler(memory.NewStore(), scheduler, nil)
			_, err := h.Handle(context.Background(), tt.cmd)
			require.Error(t, err)
			assert.True(t, shared.IsValidation(err))
			assert.Equal(t, tt.message, shared.PublicMessage(err))
		})
	}
}

func TestCreatePerson_SchedulerFailureDoesNotFailCreate(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)
	scheduler.EXPECT().ScheduleEnrichment(gomock.Any(), gomock.Any()).Return(errors.New("redis down"))

	h := NewCreatePersonHandler(store, scheduler, nil)
	p, err := h.Handle(context.Background(), CreatePersonCommand{LastName: "Kept", FirstName: "Anyway"})
	require.NoError(t, err)

	_, err = store.GetByID(context.Background(), p.ID)
	assert.NoError(t, err)
}

func TestCreatePerson_RolledBackCreateIsNotScheduled(t *testing.T) {
	ctrl := gomock.NewController(t)
	store := memory.NewStore()
	store.InjectFault("Create", errors.New("insert failed"))
	scheduler := mocks.NewMockEnrichmentScheduler(ctrl)
	scheduler.EXPECT().ScheduleEnrichment(gomock.Any(), gomock.Any()).Times(0)

	h := NewCreatePersonHandler(store, scheduler, nil)
	_, err := h.Handle(context.Background(), CreatePersonCommand{LastName: "Never", FirstName: "Stored"})
	assert.Error(t, err)
}
