package commands

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/anonlounge/anonlounge/internal/adminpoll"
	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/roles"
	"github.com/anonlounge/anonlounge/internal/security"
	"github.com/anonlounge/anonlounge/internal/users"
)

// errUsage marks argument errors the executor reports with the usage line.
var errUsage = errors.New("bad arguments")

// UserDirectory is the user operations surface the commands drive.
type UserDirectory interface {
	Get(ctx context.Context, id int64) (users.User, error)
	IsActive(ctx context.Context, id int64) (bool, error)
	Join(ctx context.Context, id int64) error
	Kick(ctx context.Context, id int64) error
	Ban(ctx context.Context, id int64, reason string, end time.Time) error
	Unban(ctx context.Context, id int64, reason string) error
	SetPermissions(ctx context.Context, id int64, perms permission.Permission) error
	SetRole(ctx context.Context, id int64, roleName string) error
	SetChatDelay(ctx context.Context, id int64, delay time.Duration) error
	ResetChatDelay(ctx context.Context, id int64) error
	BanLog(ctx context.Context, id int64) ([]users.BanRecord, error)
	JoinQuitLog(ctx context.Context, id int64) ([]users.MembershipEvent, error)
	WaiveCaptcha(ctx context.Context, id int64) error
	ResetCaptcha(ctx context.Context, id int64) error
}

// RoleDirectory is the role operations surface the commands drive.
type RoleDirectory interface {
	Create(ctx context.Context, name string, power int, perms permission.Permission) (roles.Role, error)
	Get(ctx context.Context, name string) (roles.Role, error)
	SetPower(ctx context.Context, name string, power int) error
	SetPermissions(ctx context.Context, name string, perms permission.Permission) error
	Delete(ctx context.Context, name string) error
	ListAll(ctx context.Context) ([]roles.Role, error)
}

// TargetResolver maps a command's target reference to a user id.
type TargetResolver interface {
	TargetFromMessage(ctx context.Context, msg *telegram.Message, position int) (int64, error)
}

// HierarchyGuard vetoes moderation across or up the power ladder.
type HierarchyGuard interface {
	CheckUserAction(action string, agent, target users.User) error
	CheckRoleAction(action string, agent users.User, roleName string, rolePower int, rolePerms permission.Permission) error
}

// Unsender removes every relayed copy of a message.
type Unsender interface {
	Unsend(ctx context.Context, senderID, senderMsgID int64) (int, error)
}

// PollPublisher relays an engine-built poll to the lounge.
type PollPublisher interface {
	PublishPoll(ctx context.Context, sender users.User, question string, options []string) (string, error)
}

// PollRegistry persists admin polls for vote correlation.
type PollRegistry interface {
	Register(ctx context.Context, p adminpoll.Poll) error
	Close(ctx context.Context, pollID string) error
}

// MemberPolls drops in-memory vote correlation for member polls.
type MemberPolls interface {
	Remove(pollID string)
}

// Deps bundles the collaborators of the command handlers.
type Deps struct {
	Users       UserDirectory
	Roles       RoleDirectory
	Resolver    TargetResolver
	Guard       HierarchyGuard
	Notifier    Notifier
	Unsender    Unsender
	Polls       PollPublisher
	AdminPolls  PollRegistry
	MemberPolls MemberPolls
	Logger      *slog.Logger
	Now         func() time.Time
}

type handlers struct {
	Deps
	registry *Registry
}

// NewLoungeRegistry builds the full command table wired to deps.
func NewLoungeRegistry(deps Deps) *Registry {
	if deps.Now == nil {
		deps.Now = time.Now
	}
	h := &handlers{Deps: deps, registry: NewRegistry()}

	for _, cmd := range []Command{
		{Name: "join", Description: "Enter the lounge", Usage: "/join",
			MaxArgs: 0, Public: true, Handler: h.join},
		// Telegram clients send /start on first contact with a bot.
		{Name: "start", Description: "Enter the lounge", Usage: "/start",
			MaxArgs: 0, Public: true, Handler: h.join},
		{Name: "quit", Description: "Leave the lounge", Usage: "/quit",
			MaxArgs: 0, Public: true, Handler: h.quit},
		{Name: "help", Description: "List the commands you can use", Usage: "/help",
			MaxArgs: 0, Public: true, Handler: h.help},
		{Name: "ping", Description: "Check the bot is alive", Usage: "/ping",
			MaxArgs: 0, Public: true, Handler: h.ping},

		{Name: "ban", Description: "Ban a member", Usage: "/ban <user> [duration] [reason]",
			MinArgs: 1, MaxArgs: -1, Required: permission.Ban, Handler: h.ban},
		{Name: "kick", Description: "Remove a member", Usage: "/kick <user>",
			MinArgs: 1, MaxArgs: 1, Required: permission.Kick, Handler: h.kick},
		{Name: "unban", Description: "Lift a member's bans", Usage: "/unban <user> [reason]",
			MinArgs: 1, MaxArgs: -1, Required: permission.Unban, Handler: h.unban},
		{Name: "setrole", Description: "Assign a role to a member", Usage: "/setrole <user> <role>",
			MinArgs: 2, MaxArgs: 2, Required: permission.SetUserRole, Handler: h.setRole},
		{Name: "setperms", Description: "Overwrite a member's permissions", Usage: "/setperms <user> <perm,perm,...>",
			MinArgs: 2, MaxArgs: -1, Required: permission.SetUserPermissions, Handler: h.setPerms},
		{Name: "setdelay", Description: "Set a member's personal message delay", Usage: "/setdelay <user> <duration>",
			MinArgs: 2, MaxArgs: 2, Required: permission.SetChatDelay, Handler: h.setDelay},
		{Name: "resetdelay", Description: "Restore the chat-wide delay for a member", Usage: "/resetdelay <user>",
			MinArgs: 1, MaxArgs: 1, Required: permission.SetChatDelay, Handler: h.resetDelay},
		{Name: "resetcaptcha", Description: "Force a member through the captcha again", Usage: "/resetcaptcha <user>",
			MinArgs: 1, MaxArgs: 1, Required: permission.ResetCaptcha, Handler: h.resetCaptcha},
		{Name: "waivecaptcha", Description: "Mark a member's captcha as passed", Usage: "/waivecaptcha <user>",
			MinArgs: 1, MaxArgs: 1, Required: permission.WaiveCaptcha, Handler: h.waiveCaptcha},
		{Name: "delete", Description: "Delete every copy of one of your messages", Usage: "/delete <message id> (or reply)",
			MinArgs: 1, MaxArgs: 1, Required: permission.DeleteMessages, Handler: h.deleteMessage},

		{Name: "banlog", Description: "Show a member's ban history", Usage: "/banlog [user]",
			MaxArgs: 1, Required: permission.ViewBanLog, Handler: h.banLog},
		{Name: "joinlog", Description: "Show a member's join and leave history", Usage: "/joinlog [user]",
			MaxArgs: 1, Required: permission.ViewJoinLog, Handler: h.joinLog},

		{Name: "roles", Description: "List the configured roles", Usage: "/roles",
			MaxArgs: 0, Public: true, Handler: h.listRoles},
		{Name: "newrole", Description: "Create a role", Usage: "/newrole <name> <power> [perm,perm,...]",
			MinArgs: 2, MaxArgs: -1, Required: permission.CreateRole, Handler: h.newRole},
		{Name: "delrole", Description: "Delete a role", Usage: "/delrole <name>",
			MinArgs: 1, MaxArgs: 1, Required: permission.DeleteRole, Handler: h.delRole},
		{Name: "editrole", Description: "Change a role's power or permissions", Usage: "/editrole <name> power <n> | perms <perm,...>",
			MinArgs: 3, MaxArgs: -1, Required: permission.EditRole, Handler: h.editRole},

		{Name: "poll", Description: "Open an admin poll", Usage: "/poll <question> | <option> | <option> ...",
			MinArgs: 1, MaxArgs: -1, Required: permission.CreateAdminPoll, Handler: h.openPoll},
		{Name: "closepoll", Description: "Stop vote notifications for a poll", Usage: "/closepoll <poll_id>",
			MinArgs: 1, MaxArgs: 1, Required: permission.CreateAdminPoll, Handler: h.closePoll},
	} {
		h.registry.Register(cmd)
	}
	return h.registry
}

// moderationTarget resolves, loads and hierarchy-checks the target of a
// moderation command.
func (h *handlers) moderationTarget(ctx context.Context, req *Request, action string) (users.User, error) {
	id, err := h.Resolver.TargetFromMessage(ctx, req.Msg, 0)
	if err != nil {
		return users.User{}, err
	}
	target, err := h.Users.Get(ctx, id)
	if err != nil {
		return users.User{}, err
	}
	if err := h.Guard.CheckUserAction(action, req.Actor, target); err != nil {
		return users.User{}, err
	}
	return target, nil
}

// argsAfterTarget returns the arguments following the target reference. A
// reply carries the target, so every argument follows it.
func argsAfterTarget(req *Request) []string {
	if req.Msg.ReplyTo != nil {
		return req.Args
	}
	if len(req.Args) == 0 {
		return nil
	}
	return req.Args[1:]
}

// parseDuration accepts Go durations plus a day suffix ("3d").
func parseDuration(s string) (time.Duration, error) {
	if n, ok := strings.CutSuffix(s, "d"); ok {
		if days, err := strconv.Atoi(n); err == nil {
			return time.Duration(days) * 24 * time.Hour, nil
		}
	}
	return time.ParseDuration(s)
}

func (h *handlers) join(ctx context.Context, req *Request) error {
	active, err := h.Users.IsActive(ctx, req.Actor.ID)
	if err != nil {
		return err
	}
	if active {
		return h.Notifier.Notify(ctx, req.Actor.ID, "You are already in the lounge.")
	}
	if err := h.Users.Join(ctx, req.Actor.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, "You joined the lounge. Everything you send is relayed anonymously.")
}

func (h *handlers) quit(ctx context.Context, req *Request) error {
	if err := h.Users.Kick(ctx, req.Actor.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, "You left the lounge. Send /join to come back.")
}

func (h *handlers) help(ctx context.Context, req *Request) error {
	var b strings.Builder
	b.WriteString("Available commands:\n")
	for _, cmd := range h.registry.All() {
		if !req.Actor.Permissions.Has(cmd.Required) {
			continue
		}
		fmt.Fprintf(&b, "%s - %s\n", cmd.Usage, cmd.Description)
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, b.String())
}

func (h *handlers) ping(ctx context.Context, req *Request) error {
	return h.Notifier.Notify(ctx, req.Actor.ID, "pong")
}

func (h *handlers) ban(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "ban")
	if err != nil {
		return err
	}

	rest := argsAfterTarget(req)
	end := users.Forever
	if len(rest) > 0 {
		if d, err := parseDuration(rest[0]); err == nil {
			end = h.Now().Add(d)
			rest = rest[1:]
		}
	}
	reason := strings.Join(rest, " ")
	if reason == "" {
		reason = "banned by moderator"
	}

	if err := h.Users.Ban(ctx, target.ID, reason, end); err != nil {
		return err
	}
	h.Logger.Info("user banned",
		slog.Int64("actor", req.Actor.ID),
		slog.Int64("target", target.ID),
		slog.Time("until", end))
	return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("User %d banned.", target.ID))
}

func (h *handlers) kick(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "kick")
	if err != nil {
		return err
	}
	if err := h.Users.Kick(ctx, target.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("User %d removed.", target.ID))
}

func (h *handlers) unban(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "unban")
	if err != nil {
		return err
	}
	reason := strings.Join(argsAfterTarget(req), " ")
	if reason == "" {
		reason = "unbanned by moderator"
	}
	if err := h.Users.Unban(ctx, target.ID, reason); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("Bans lifted for user %d.", target.ID))
}

func (h *handlers) setRole(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "setrole")
	if err != nil {
		return err
	}
	rest := argsAfterTarget(req)
	if len(rest) != 1 {
		return fmt.Errorf("%w: expected a role name", errUsage)
	}
	role, err := h.Roles.Get(ctx, rest[0])
	if err != nil {
		return err
	}
	if err := h.Guard.CheckRoleAction("setrole", req.Actor, role.Name, role.Power, role.Permissions); err != nil {
		return err
	}
	if err := h.Users.SetRole(ctx, target.ID, role.Name); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("User %d now has role %q.", target.ID, role.Name))
}

func (h *handlers) setPerms(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "setperms")
	if err != nil {
		return err
	}
	rest := argsAfterTarget(req)
	if len(rest) == 0 {
		return fmt.Errorf("%w: expected a permission list", errUsage)
	}
	mask, err := permission.ParseList(strings.Join(rest, ","))
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	// Nobody hands out bits they do not hold themselves.
	if !req.Actor.Permissions.Has(mask) {
		return security.ErrHierarchyViolation
	}
	if err := h.Users.SetPermissions(ctx, target.ID, mask); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("Permissions of user %d replaced.", target.ID))
}

func (h *handlers) setDelay(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "setdelay")
	if err != nil {
		return err
	}
	rest := argsAfterTarget(req)
	if len(rest) != 1 {
		return fmt.Errorf("%w: expected a duration", errUsage)
	}
	delay, err := parseDuration(rest[0])
	if err != nil {
		return users.ErrInvalidDuration
	}
	if err := h.Users.SetChatDelay(ctx, target.ID, delay); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("User %d now waits %s between messages.", target.ID, delay))
}

func (h *handlers) resetDelay(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "resetdelay")
	if err != nil {
		return err
	}
	if err := h.Users.ResetChatDelay(ctx, target.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("User %d uses the chat-wide delay again.", target.ID))
}

func (h *handlers) resetCaptcha(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "resetcaptcha")
	if err != nil {
		return err
	}
	if err := h.Users.ResetCaptcha(ctx, target.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("User %d must solve a captcha again.", target.ID))
}

func (h *handlers) waiveCaptcha(ctx context.Context, req *Request) error {
	target, err := h.moderationTarget(ctx, req, "waivecaptcha")
	if err != nil {
		return err
	}
	if err := h.Users.WaiveCaptcha(ctx, target.ID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("Captcha waived for user %d.", target.ID))
}

func (h *handlers) deleteMessage(ctx context.Context, req *Request) error {
	var msgID int64
	switch {
	case req.Msg.ReplyTo != nil:
		msgID = req.Msg.ReplyTo.ID
	case len(req.Args) == 1:
		id, err := strconv.ParseInt(req.Args[0], 10, 64)
		if err != nil {
			return fmt.Errorf("%w: expected a message id", errUsage)
		}
		msgID = id
	default:
		return fmt.Errorf("%w: reply to the message or pass its id", errUsage)
	}

	removed, err := h.Unsender.Unsend(ctx, req.Actor.ID, msgID)
	if err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("Removed %d copies.", removed))
}

// logTarget resolves the optional target of a log command, defaulting to
// the actor themselves.
func (h *handlers) logTarget(ctx context.Context, req *Request) (int64, error) {
	if req.Msg.ReplyTo == nil && len(req.Args) == 0 {
		return req.Actor.ID, nil
	}
	return h.Resolver.TargetFromMessage(ctx, req.Msg, 0)
}

func (h *handlers) banLog(ctx context.Context, req *Request) error {
	id, err := h.logTarget(ctx, req)
	if err != nil {
		return err
	}
	records, err := h.Users.BanLog(ctx, id)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("No bans on record for user %d.", id))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Ban history of user %d:\n", id)
	for _, rec := range records {
		fmt.Fprintf(&b, "%s until %s: %s", rec.StartDate.Format(time.DateOnly), rec.EndDate.Format(time.DateOnly), rec.Reason)
		if rec.RevokedAt != nil {
			fmt.Fprintf(&b, " (revoked: %s)", rec.RevokeReason)
		}
		b.WriteByte('\n')
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, b.String())
}

func (h *handlers) joinLog(ctx context.Context, req *Request) error {
	id, err := h.logTarget(ctx, req)
	if err != nil {
		return err
	}
	events, err := h.Users.JoinQuitLog(ctx, id)
	if err != nil {
		return err
	}
	if len(events) == 0 {
		return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("No membership events for user %d.", id))
	}
	var b strings.Builder
	fmt.Fprintf(&b, "Membership history of user %d:\n", id)
	for _, ev := range events {
		fmt.Fprintf(&b, "%s %s\n", ev.At.Format(time.RFC3339), ev.Kind)
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, b.String())
}

func (h *handlers) listRoles(ctx context.Context, req *Request) error {
	all, err := h.Roles.ListAll(ctx)
	if err != nil {
		return err
	}
	var b strings.Builder
	b.WriteString("Roles:\n")
	for _, role := range all {
		fmt.Fprintf(&b, "%s (power %d): %s\n", role.Name, role.Power, role.Permissions)
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, b.String())
}

func (h *handlers) newRole(ctx context.Context, req *Request) error {
	name := req.Args[0]
	power, err := strconv.Atoi(req.Args[1])
	if err != nil {
		return fmt.Errorf("%w: power must be a number", errUsage)
	}
	mask := permission.None
	if len(req.Args) > 2 {
		mask, err = permission.ParseList(strings.Join(req.Args[2:], ","))
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
	}
	if err := h.Guard.CheckRoleAction("newrole", req.Actor, name, power, mask); err != nil {
		return err
	}
	role, err := h.Roles.Create(ctx, name, power, mask)
	if err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("Role %q created with power %d.", role.Name, role.Power))
}

func (h *handlers) delRole(ctx context.Context, req *Request) error {
	role, err := h.Roles.Get(ctx, req.Args[0])
	if err != nil {
		return err
	}
	if err := h.Guard.CheckRoleAction("delrole", req.Actor, role.Name, role.Power, role.Permissions); err != nil {
		return err
	}
	if err := h.Roles.Delete(ctx, role.Name); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID,
		fmt.Sprintf("Role %q deleted. Members fell back to the default role.", role.Name))
}

func (h *handlers) editRole(ctx context.Context, req *Request) error {
	role, err := h.Roles.Get(ctx, req.Args[0])
	if err != nil {
		return err
	}
	if err := h.Guard.CheckRoleAction("editrole", req.Actor, role.Name, role.Power, role.Permissions); err != nil {
		return err
	}

	switch req.Args[1] {
	case "power":
		power, err := strconv.Atoi(req.Args[2])
		if err != nil {
			return fmt.Errorf("%w: power must be a number", errUsage)
		}
		if err := h.Guard.CheckRoleAction("editrole", req.Actor, role.Name, power, role.Permissions); err != nil {
			return err
		}
		if err := h.Roles.SetPower(ctx, role.Name, power); err != nil {
			return err
		}
	case "perms":
		mask, err := permission.ParseList(strings.Join(req.Args[2:], ","))
		if err != nil {
			return fmt.Errorf("%w: %v", errUsage, err)
		}
		if err := h.Guard.CheckRoleAction("editrole", req.Actor, role.Name, role.Power, mask); err != nil {
			return err
		}
		if err := h.Roles.SetPermissions(ctx, role.Name, mask); err != nil {
			return err
		}
	default:
		return fmt.Errorf("%w: expected power or perms", errUsage)
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, fmt.Sprintf("Role %q updated.", role.Name))
}

func (h *handlers) openPoll(ctx context.Context, req *Request) error {
	_, rest, _ := strings.Cut(req.Msg.Text, " ")
	parts := strings.Split(rest, "|")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	if len(parts) < 3 || parts[0] == "" {
		return fmt.Errorf("%w: a poll needs a question and at least two options", errUsage)
	}

	pollID, err := h.Polls.PublishPoll(ctx, req.Actor, parts[0], parts[1:])
	if err != nil {
		return err
	}
	if pollID != "" {
		if err := h.AdminPolls.Register(ctx, adminpoll.Poll{
			PollID:    pollID,
			Kind:      "admin",
			CreatorID: req.Actor.ID,
			Payload:   parts[0],
			CreatedAt: h.Now(),
		}); err != nil {
			return err
		}
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, "Poll published to the lounge.")
}

// closePoll retires vote correlation for a poll id, both the in-memory
// member pool entry and the persisted admin poll row. Idempotent.
func (h *handlers) closePoll(ctx context.Context, req *Request) error {
	pollID := req.Args[0]
	h.MemberPolls.Remove(pollID)
	if err := h.AdminPolls.Close(ctx, pollID); err != nil {
		return err
	}
	return h.Notifier.Notify(ctx, req.Actor.ID, "Poll closed. Votes will no longer be relayed.")
}
