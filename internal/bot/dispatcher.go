// Package bot runs the update loop: it pulls events off the platform,
// pushes messages through the admission chain and hands admitted traffic to
// the command executor or the broadcast relay.
package bot

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/anonlounge/anonlounge/internal/adminpoll"
	"github.com/anonlounge/anonlounge/internal/admission"
	"github.com/anonlounge/anonlounge/internal/broadcast"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

// UserSource loads or creates the sender record of an update.
type UserSource interface {
	GetOrCreate(ctx context.Context, id int64) (users.User, error)
}

// Admitter runs the admission chain on one message.
type Admitter interface {
	Admit(ctx context.Context, req *admission.Request) (admission.Outcome, error)
}

// CommandRunner executes an admitted command.
type CommandRunner interface {
	Execute(ctx context.Context, actor users.User, msg *telegram.Message) error
}

// MessageRelay fans admitted messages out and carries service traffic.
type MessageRelay interface {
	Broadcast(ctx context.Context, sender users.User, msg *telegram.Message) (uuid.UUID, error)
	Notify(ctx context.Context, userID int64, text string) error
	Announce(ctx context.Context, text string) error
}

// UpdateSource is the inbound event stream.
type UpdateSource interface {
	GetUpdates(ctx context.Context, offset int64) ([]telegram.Update, error)
}

// PollLookup correlates vote events with circulating member polls.
type PollLookup interface {
	Lookup(pollID string) (broadcast.PollMeta, bool)
}

// AdminPollLookup correlates vote events with persisted admin polls.
type AdminPollLookup interface {
	Lookup(ctx context.Context, pollID string) (adminpoll.Poll, error)
}

// Config tunes the dispatcher.
type Config struct {
	// Workers bounds concurrently handled updates.
	Workers int
	// StartupBanner and ShutdownBanner are announced to the lounge when the
	// loop starts and stops. Empty banners are skipped.
	StartupBanner  string
	ShutdownBanner string
}

// Dispatcher is the top of the engine: one instance owns the update loop.
type Dispatcher struct {
	cfg        Config
	updates    UpdateSource
	users      UserSource
	chain      Admitter
	executor   CommandRunner
	relay      MessageRelay
	polls      PollLookup
	adminPolls AdminPollLookup
	logger     *slog.Logger
}

// NewDispatcher constructs a Dispatcher.
func NewDispatcher(cfg Config, updates UpdateSource, userSource UserSource, chain Admitter,
	executor CommandRunner, relay MessageRelay, polls PollLookup, adminPolls AdminPollLookup,
	logger *slog.Logger) *Dispatcher {
	if cfg.Workers <= 0 {
		cfg.Workers = 8
	}
	return &Dispatcher{
		cfg:        cfg,
		updates:    updates,
		users:      userSource,
		chain:      chain,
		executor:   executor,
		relay:      relay,
		polls:      polls,
		adminPolls: adminPolls,
		logger:     logger,
	}
}

// Run long-polls the platform until ctx is cancelled. Updates are handled on
// a bounded worker group; a failed update is logged and dropped, never
// retried, so the loop cannot wedge on one poison message.
func (d *Dispatcher) Run(ctx context.Context) error {
	if d.cfg.StartupBanner != "" {
		if err := d.relay.Announce(ctx, d.cfg.StartupBanner); err != nil {
			d.logger.Warn("startup announcement failed", slog.Any("error", err))
		}
	}
	defer func() {
		if d.cfg.ShutdownBanner == "" {
			return
		}
		// The loop context is already cancelled at this point.
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := d.relay.Announce(shutdownCtx, d.cfg.ShutdownBanner); err != nil {
			d.logger.Warn("shutdown announcement failed", slog.Any("error", err))
		}
	}()

	group, groupCtx := errgroup.WithContext(ctx)
	group.SetLimit(d.cfg.Workers)

	var offset int64
	for {
		select {
		case <-ctx.Done():
			_ = group.Wait()
			return ctx.Err()
		default:
		}

		updates, err := d.updates.GetUpdates(ctx, offset)
		if err != nil {
			if ctx.Err() != nil {
				_ = group.Wait()
				return ctx.Err()
			}
			d.logger.Error("fetching updates", slog.Any("error", err))
			time.Sleep(time.Second)
			continue
		}
		for _, u := range updates {
			if u.ID >= offset {
				offset = u.ID + 1
			}
			update := u
			group.Go(func() error {
				if err := d.HandleUpdate(groupCtx, &update); err != nil {
					d.logger.Error("handling update",
						slog.Int64("update_id", update.ID),
						slog.Any("error", err))
				}
				return nil
			})
		}
	}
}

// HandleUpdate processes one inbound event end to end.
func (d *Dispatcher) HandleUpdate(ctx context.Context, u *telegram.Update) error {
	if u.PollAnswer != nil {
		return d.handlePollAnswer(ctx, u.PollAnswer)
	}
	if u.Message == nil || u.FromID() == 0 {
		return nil
	}

	sender, err := d.users.GetOrCreate(ctx, u.FromID())
	if err != nil {
		return fmt.Errorf("loading sender %d: %w", u.FromID(), err)
	}

	out, err := d.chain.Admit(ctx, &admission.Request{Msg: u.Message, User: sender})
	if err != nil {
		return fmt.Errorf("admission for %d: %w", sender.ID, err)
	}
	if out.Notice != "" {
		if err := d.relay.Notify(ctx, sender.ID, out.Notice); err != nil {
			d.logger.Warn("notice delivery failed",
				slog.Int64("user_id", sender.ID),
				slog.Any("error", err))
		}
	}
	if !out.Admit {
		return nil
	}

	if u.Message.IsCommand() {
		return d.executor.Execute(ctx, sender, u.Message)
	}

	_, err = d.relay.Broadcast(ctx, sender, u.Message)
	if errors.Is(err, broadcast.ErrUnsupportedContent) {
		return d.relay.Notify(ctx, sender.ID, "This message type is not supported.")
	}
	return err
}

// handlePollAnswer reports a vote to the poll's creator without revealing
// the voter. Member polls are matched in memory, admin polls from storage.
func (d *Dispatcher) handlePollAnswer(ctx context.Context, answer *telegram.PollAnswer) error {
	creatorID := int64(0)
	label := "your poll"
	if meta, ok := d.polls.Lookup(answer.PollID); ok {
		creatorID = meta.CreatorID
	} else {
		p, err := d.adminPolls.Lookup(ctx, answer.PollID)
		if errors.Is(err, adminpoll.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		creatorID = p.CreatorID
		label = fmt.Sprintf("your poll %q", p.Payload)
	}
	if answer.From.ID == creatorID {
		// Creators see their own votes already.
		return nil
	}
	return d.relay.Notify(ctx, creatorID,
		fmt.Sprintf("A vote was cast on %s: option %v.", label, answer.OptionIDs))
}
