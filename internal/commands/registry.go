// Package commands implements the slash command surface of the lounge:
// membership, moderation, role management and introspection.
package commands

import (
	"context"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

// Request is one admitted command invocation.
type Request struct {
	Msg   *telegram.Message
	Actor users.User
	Args  []string
}

// Handler executes one command. User-facing failures surface as sentinel
// errors which the executor translates to notices.
type Handler func(ctx context.Context, req *Request) error

// Command describes one registered slash command.
type Command struct {
	Name        string
	Description string
	Usage       string
	MinArgs     int
	// MaxArgs below zero means unlimited.
	MaxArgs int
	// Required is the permission mask an actor needs to invoke the command.
	Required permission.Permission
	// Public commands appear in the platform command menu.
	Public  bool
	Handler Handler
}

// Registry holds the command table in registration order.
type Registry struct {
	byName map[string]*Command
	order  []string
}

// NewRegistry constructs an empty registry.
func NewRegistry() *Registry {
	return &Registry{byName: make(map[string]*Command)}
}

// Register adds a command. Re-registering a name replaces it.
func (r *Registry) Register(cmd Command) {
	if _, exists := r.byName[cmd.Name]; !exists {
		r.order = append(r.order, cmd.Name)
	}
	c := cmd
	r.byName[cmd.Name] = &c
}

// Lookup returns the command registered under name.
func (r *Registry) Lookup(name string) (*Command, bool) {
	cmd, ok := r.byName[name]
	return cmd, ok
}

// RequiredFor returns the permission mask a command demands. Satisfies the
// admission chain's catalog port.
func (r *Registry) RequiredFor(name string) (permission.Permission, bool) {
	cmd, ok := r.byName[name]
	if !ok {
		return permission.None, false
	}
	return cmd.Required, true
}

// All returns every command in registration order.
func (r *Registry) All() []*Command {
	out := make([]*Command, 0, len(r.order))
	for _, name := range r.order {
		out = append(out, r.byName[name])
	}
	return out
}

// BotCommands returns the public subset in the platform menu shape.
func (r *Registry) BotCommands() []telegram.BotCommand {
	var out []telegram.BotCommand
	for _, name := range r.order {
		cmd := r.byName[name]
		if cmd.Public {
			out = append(out, telegram.BotCommand{Command: cmd.Name, Description: cmd.Description})
		}
	}
	return out
}
