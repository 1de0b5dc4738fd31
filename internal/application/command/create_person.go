package command

import (
	"context"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// CREATE PERSON COMMAND
// Registers a person with their email addresses. Enrichment is scheduled
// only after the insert has committed, so the pipeline never sees a row
// that could still roll back.
// ══════════════════════════════════════════════════════════════════════════════

// CreatePersonCommand contains the data to register a person.
type CreatePersonCommand struct {
	LastName   string `json:"last_name" validate:"required,max=100"`
	FirstName  string `json:"first_name" validate:"required,max=100"`
	MiddleName string `json:"middle_name" validate:"max=100"`

	// Emails are deduplicated in order of first appearance.
	Emails []string `json:"person_emails" validate:"omitempty,dive,required,email,max=254"`
}

// CreatePersonHandler handles the CreatePersonCommand.
type CreatePersonHandler struct {
	repo      person.Repository
	scheduler person.EnrichmentScheduler
	logger    *logger.Logger
}

// NewCreatePersonHandler creates a new CreatePersonHandler. log may be nil.
func NewCreatePersonHandler(repo person.Repository, scheduler person.EnrichmentScheduler, log *logger.Logger) *CreatePersonHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &CreatePersonHandler{
		repo:      repo,
		scheduler: scheduler,
		logger:    log.With(logger.Component("create_person")),
	}
}

// Handle executes the create person command.
//
// The email guard and both inserts run in one transaction. A failure to
// schedule enrichment is logged and does not fail the request: the person
// exists and can be enriched again later.
func (h *CreatePersonHandler) Handle(ctx context.Context, cmd CreatePersonCommand) (*person.Person, error) {
	if err := validateCommand("person", "Create", cmd); err != nil {
		return nil, err
	}

	p, err := person.New(cmd.LastName, cmd.FirstName, cmd.MiddleName, cmd.Emails)
	if err != nil {
		return nil, err
	}

	err = h.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		if err := guardEmails(ctx, tx, p.Emails, 0); err != nil {
			return err
		}
		return tx.Create(ctx, p)
	})
	if err != nil {
		return nil, err
	}

	log := logger.FromContextOr(ctx, h.logger).With(logger.PersonID(p.ID.Int64()))
	log.Info("person created")

	if err := h.scheduler.ScheduleEnrichment(ctx, p.ID); err != nil {
		log.Error("enrichment not scheduled", logger.Err(err))
	}

	return p, nil
}

// guardEmails fails with EmailConflictError listing every requested address
// that someone other than exclude already owns.
func guardEmails(ctx context.Context, tx person.Tx, emails []string, exclude person.ID) error {
	if len(emails) == 0 {
		return nil
	}
	taken, err := tx.EmailsTaken(ctx, emails, exclude)
	if err != nil {
		return err
	}
	if len(taken) > 0 {
		return &shared.EmailConflictError{Addresses: taken}
	}
	return nil
}
