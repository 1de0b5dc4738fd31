package command

import (
	"context"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
)

// ══════════════════════════════════════════════════════════════════════════════
// UPDATE PERSON COMMAND
// Changes the name and optionally replaces the email set. Enrichment fields
// are not writable here and an update never schedules enrichment.
// ══════════════════════════════════════════════════════════════════════════════

// UpdatePersonCommand contains the data to update a person.
//
// Nil name fields keep their current value when Partial is set. A full
// update requires last and first name and clears an omitted middle name.
// Nil Emails leaves the addresses unchanged; an empty non-nil slice removes
// them all.
type UpdatePersonCommand struct {
	ID      person.ID `json:"-" validate:"gt=0"`
	Partial bool      `json:"-"`

	LastName   *string  `json:"last_name" validate:"omitempty,max=100"`
	FirstName  *string  `json:"first_name" validate:"omitempty,max=100"`
	MiddleName *string  `json:"middle_name" validate:"omitempty,max=100"`
	Emails     []string `json:"person_emails" validate:"omitempty,dive,required,email,max=254"`
}

// Validate checks the rules struct tags cannot express.
func (c UpdatePersonCommand) Validate() error {
	if err := validateCommand("person", "Update", c); err != nil {
		return err
	}
	if !c.Partial {
		if c.LastName == nil {
			return shared.Validation("person", "Update", "last_name is required")
		}
		if c.FirstName == nil {
			return shared.Validation("person", "Update", "first_name is required")
		}
	}
	return nil
}

// UpdatePersonHandler handles the UpdatePersonCommand.
type UpdatePersonHandler struct {
	repo person.Repository
}

// NewUpdatePersonHandler creates a new UpdatePersonHandler.
func NewUpdatePersonHandler(repo person.Repository) *UpdatePersonHandler {
	return &UpdatePersonHandler{repo: repo}
}

// Handle executes the update person command under the person's row lock.
func (h *UpdatePersonHandler) Handle(ctx context.Context, cmd UpdatePersonCommand) (*person.Person, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	var updated *person.Person
	err := h.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		current, err := tx.GetForUpdate(ctx, cmd.ID)
		if err != nil {
			return err
		}

		last, first, middle := current.LastName, current.FirstName, current.MiddleName
		if !cmd.Partial {
			middle = ""
		}
		if cmd.LastName != nil {
			last = *cmd.LastName
		}
		if cmd.FirstName != nil {
			first = *cmd.FirstName
		}
		if cmd.MiddleName != nil {
			middle = *cmd.MiddleName
		}
		if err := current.Rename(last, first, middle); err != nil {
			return err
		}

		var emails []string
		if cmd.Emails != nil {
			emails = person.NormalizeEmails(cmd.Emails)
			if err := guardEmails(ctx, tx, emails, cmd.ID); err != nil {
				return err
			}
		}

		if err := tx.UpdateNames(ctx, current); err != nil {
			return err
		}
		if cmd.Emails != nil {
			if err := tx.ReplaceEmails(ctx, cmd.ID, emails); err != nil {
				return err
			}
			current.Emails = emails
		}

		updated = current
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}
