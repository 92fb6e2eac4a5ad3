package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/resolver"
	"github.com/anonlounge/anonlounge/internal/roles"
	"github.com/anonlounge/anonlounge/internal/security"
	"github.com/anonlounge/anonlounge/internal/users"
)

// Notifier delivers private service messages.
type Notifier interface {
	Notify(ctx context.Context, userID int64, text string) error
}

// Executor resolves an admitted command against the registry and runs it,
// translating handler failures into user notices.
type Executor struct {
	registry *Registry
	notifier Notifier
	logger   *slog.Logger
}

// NewExecutor constructs an Executor.
func NewExecutor(registry *Registry, notifier Notifier, logger *slog.Logger) *Executor {
	return &Executor{registry: registry, notifier: notifier, logger: logger}
}

// Execute runs the command carried by msg on behalf of actor. The admission
// chain has already verified the actor holds the required permission.
func (e *Executor) Execute(ctx context.Context, actor users.User, msg *telegram.Message) error {
	name := msg.CommandName()
	cmd, ok := e.registry.Lookup(name)
	if !ok {
		return e.notifier.Notify(ctx, actor.ID, "Unknown command.")
	}

	args := msg.CommandArgs()
	effective := len(args)
	if msg.ReplyTo != nil {
		// A reply stands in for the target argument.
		effective++
	}
	if effective < cmd.MinArgs || (cmd.MaxArgs >= 0 && effective > cmd.MaxArgs) {
		return e.notifier.Notify(ctx, actor.ID, "Usage: "+cmd.Usage)
	}

	err := cmd.Handler(ctx, &Request{Msg: msg, Actor: actor, Args: args})
	if err == nil {
		return nil
	}

	switch {
	case errors.Is(err, security.ErrHierarchyViolation):
		return e.notifier.Notify(ctx, actor.ID, "You cannot act on a user or role at or above your own power.")
	case errors.Is(err, resolver.ErrUnresolvedTarget):
		return e.notifier.Notify(ctx, actor.ID, "Could not work out who you mean. Reply to a message or pass an id or @username.")
	case errors.Is(err, users.ErrNotFound):
		return e.notifier.Notify(ctx, actor.ID, "No such user.")
	case errors.Is(err, users.ErrInvalidInterval), errors.Is(err, users.ErrInvalidDuration):
		return e.notifier.Notify(ctx, actor.ID, "Invalid duration.")
	case errors.Is(err, roles.ErrNotFound):
		return e.notifier.Notify(ctx, actor.ID, "No such role.")
	case errors.Is(err, roles.ErrRoleExists):
		return e.notifier.Notify(ctx, actor.ID, "A role with that name already exists.")
	case errors.Is(err, roles.ErrCannotDeleteDefault):
		return e.notifier.Notify(ctx, actor.ID, "The default role cannot be deleted.")
	case errors.Is(err, errUsage):
		return e.notifier.Notify(ctx, actor.ID, fmt.Sprintf("%v. Usage: %s", err, cmd.Usage))
	default:
		e.logger.Error("command failed",
			slog.String("command", name),
			slog.Int64("actor", actor.ID),
			slog.Any("error", err))
		return e.notifier.Notify(ctx, actor.ID, "Something went wrong. Try again later.")
	}
}
