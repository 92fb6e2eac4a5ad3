package resolver

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

// ErrUnresolvedTarget indicates the command referenced a user the resolver
// could not map to a platform id.
var ErrUnresolvedTarget = errors.New("resolver: target could not be resolved")

// UsernameLookup is the platform call that maps a handle to a user id.
type UsernameLookup interface {
	ResolveUsername(ctx context.Context, username string) (int64, error)
}

// Resolver maps command targets (reply-to, numeric id, @username) to user
// ids. Username lookups hit the platform and are cached in redis since
// handles change rarely and lookups are rate limited upstream.
type Resolver struct {
	lookup UsernameLookup
	rdb    *redis.Client
	ttl    time.Duration
	logger *slog.Logger
}

// NewResolver constructs a Resolver.
func NewResolver(lookup UsernameLookup, rdb *redis.Client, ttl time.Duration, logger *slog.Logger) *Resolver {
	return &Resolver{lookup: lookup, rdb: rdb, ttl: ttl, logger: logger}
}

func cacheKey(username string) string {
	return "resolver:username:" + strings.ToLower(username)
}

// Resolve maps a raw token to a user id. Numeric tokens are taken as ids;
// anything else is treated as a handle, with or without a leading @.
func (r *Resolver) Resolve(ctx context.Context, raw string) (int64, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, ErrUnresolvedTarget
	}
	if id, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return id, nil
	}

	username := strings.TrimPrefix(raw, "@")
	key := cacheKey(username)
	if cached, err := r.rdb.Get(ctx, key).Result(); err == nil {
		if id, err := strconv.ParseInt(cached, 10, 64); err == nil {
			return id, nil
		}
	} else if !errors.Is(err, redis.Nil) {
		r.logger.Warn("resolver cache read", slog.Any("error", err))
	}

	id, err := r.lookup.ResolveUsername(ctx, username)
	if err != nil {
		return 0, fmt.Errorf("%w: %s", ErrUnresolvedTarget, raw)
	}
	if err := r.rdb.Set(ctx, key, strconv.FormatInt(id, 10), r.ttl).Err(); err != nil {
		r.logger.Warn("resolver cache write", slog.Any("error", err))
	}
	return id, nil
}

// TargetFromMessage extracts the moderation target of a command: the sender
// of the replied-to message wins, otherwise the argument at position is
// resolved.
func (r *Resolver) TargetFromMessage(ctx context.Context, msg *telegram.Message, position int) (int64, error) {
	if msg.ReplyTo != nil && msg.ReplyTo.From.ID != 0 {
		return msg.ReplyTo.From.ID, nil
	}
	args := msg.CommandArgs()
	if position >= len(args) {
		return 0, ErrUnresolvedTarget
	}
	return r.Resolve(ctx, args[position])
}
