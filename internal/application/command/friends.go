package command

import (
	"context"
	"slices"

	"github.com/people-hub/peoplehub/internal/domain/person"
	"github.com/people-hub/peoplehub/internal/domain/shared"
	"github.com/people-hub/peoplehub/pkg/logger"
)

// ══════════════════════════════════════════════════════════════════════════════
// FRIEND GRAPH COMMANDS
// Friendship is symmetric: both directed edges are written or removed in the
// same transaction. Both rows are locked in ascending ID order before the
// duplicate check.
// ══════════════════════════════════════════════════════════════════════════════

// FriendCommand identifies the pair for AddFriend and RemoveFriend.
type FriendCommand struct {
	PersonID person.ID `json:"-" validate:"gt=0"`
	FriendID person.ID `json:"friend_id" validate:"required,gt=0"`
}

// FriendGraphHandler handles AddFriend and RemoveFriend.
type FriendGraphHandler struct {
	repo   person.Repository
	logger *logger.Logger
}

// NewFriendGraphHandler creates a new FriendGraphHandler. log may be nil.
func NewFriendGraphHandler(repo person.Repository, log *logger.Logger) *FriendGraphHandler {
	if log == nil {
		log = logger.Nop()
	}
	return &FriendGraphHandler{repo: repo, logger: log.With(logger.Component("friends"))}
}

// AddFriend links the pair. An existing friendship is a conflict.
// It returns the person with the updated friend list.
func (h *FriendGraphHandler) AddFriend(ctx context.Context, cmd FriendCommand) (*person.Person, error) {
	return h.mutate(ctx, "AddFriend", cmd, func(ctx context.Context, tx person.Tx, linked bool) error {
		if linked {
			return shared.Conflict("friends", "AddFriend", "person %d is already a friend of person %d", cmd.FriendID, cmd.PersonID)
		}
		return tx.AddFriendship(ctx, cmd.PersonID, cmd.FriendID)
	})
}

// RemoveFriend unlinks the pair. Removing a non-friend is a validation error.
// It returns the person with the updated friend list.
func (h *FriendGraphHandler) RemoveFriend(ctx context.Context, cmd FriendCommand) (*person.Person, error) {
	return h.mutate(ctx, "RemoveFriend", cmd, func(ctx context.Context, tx person.Tx, linked bool) error {
		if !linked {
			return shared.Validation("friends", "RemoveFriend", "person %d is not a friend of person %d", cmd.FriendID, cmd.PersonID)
		}
		return tx.RemoveFriendship(ctx, cmd.PersonID, cmd.FriendID)
	})
}

func (h *FriendGraphHandler) mutate(
	ctx context.Context,
	op string,
	cmd FriendCommand,
	apply func(ctx context.Context, tx person.Tx, linked bool) error,
) (*person.Person, error) {
	if err := validateCommand("friends", op, cmd); err != nil {
		return nil, err
	}

	var result *person.Person
	err := h.repo.WithinTx(ctx, func(ctx context.Context, tx person.Tx) error {
		found, err := tx.Lock(ctx, cmd.PersonID, cmd.FriendID)
		if err != nil {
			return err
		}
		if !slices.Contains(found, cmd.PersonID) {
			return person.ErrNotFound(op, cmd.PersonID)
		}
		if !slices.Contains(found, cmd.FriendID) {
			return shared.NotFound("friends", op, "friend %d not found", cmd.FriendID)
		}

		linked, err := tx.HasFriend(ctx, cmd.PersonID, cmd.FriendID)
		if err != nil {
			return err
		}
		if err := apply(ctx, tx, linked); err != nil {
			return err
		}

		result, err = tx.GetByID(ctx, cmd.PersonID)
		return err
	})
	if err != nil {
		return nil, err
	}

	logger.FromContextOr(ctx, h.logger).Info("friend graph updated",
		logger.Operation(op),
		logger.PersonID(cmd.PersonID.Int64()),
		logger.FriendID(cmd.FriendID.Int64()),
	)
	return result, nil
}
