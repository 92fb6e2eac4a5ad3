// Package admission decides whether an inbound message enters the lounge.
// A fixed chain of filters runs in order; the first refusal wins and later
// stages never observe the message.
package admission

import (
	"context"
	"log/slog"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

// Request carries one inbound message together with the already loaded
// sender record. Filters read it and never mutate it.
type Request struct {
	Msg  *telegram.Message
	User users.User
}

// Outcome is a filter verdict. Notice, when set, is delivered privately to
// the sender regardless of admission.
type Outcome struct {
	Admit  bool
	Notice string
}

// Admitted passes the message on to the next stage.
func Admitted() Outcome { return Outcome{Admit: true} }

// Refused stops the chain. An empty notice refuses silently.
func Refused(notice string) Outcome { return Outcome{Notice: notice} }

// Filter is one admission stage.
type Filter interface {
	Name() string
	Check(ctx context.Context, req *Request) (Outcome, error)
}

// Chain runs filters in registration order with short-circuit semantics.
type Chain struct {
	filters []Filter
	logger  *slog.Logger
}

// NewChain constructs a Chain. Order of filters is the order of evaluation.
func NewChain(logger *slog.Logger, filters ...Filter) *Chain {
	return &Chain{filters: filters, logger: logger}
}

// Admit runs the chain. The returned outcome is the first refusal, or an
// admission when every stage passed. A filter error aborts the chain.
func (c *Chain) Admit(ctx context.Context, req *Request) (Outcome, error) {
	for _, f := range c.filters {
		out, err := f.Check(ctx, req)
		if err != nil {
			return Outcome{}, err
		}
		if !out.Admit {
			c.logger.Debug("message refused",
				slog.String("filter", f.Name()),
				slog.Int64("user_id", req.User.ID))
			return out, nil
		}
	}
	return Admitted(), nil
}
