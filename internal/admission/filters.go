package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/anonlounge/anonlounge/internal/antiflood"
	"github.com/anonlounge/anonlounge/internal/captcha"
	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

// MembershipSource answers the ban and activity questions for a user.
type MembershipSource interface {
	IsBanned(ctx context.Context, id int64) (bool, error)
	IsActive(ctx context.Context, id int64) (bool, error)
	Join(ctx context.Context, id int64) error
	CaptchaStatus(ctx context.Context, id int64) (users.CaptchaStatus, error)
}

// CaptchaGate is the challenge lifecycle the captcha stage drives.
type CaptchaGate interface {
	StartSession(ctx context.Context, userID int64) (*captcha.Challenge, error)
	Submit(ctx context.Context, userID int64, answer string) (captcha.Result, error)
}

// ChallengePresenter delivers a challenge image to the user.
type ChallengePresenter interface {
	PresentChallenge(ctx context.Context, userID int64, image []byte) error
}

// NotBannedFilter refuses senders with an in-force ban.
type NotBannedFilter struct {
	members MembershipSource
}

func NewNotBannedFilter(members MembershipSource) *NotBannedFilter {
	return &NotBannedFilter{members: members}
}

func (f *NotBannedFilter) Name() string { return "not_banned" }

func (f *NotBannedFilter) Check(ctx context.Context, req *Request) (Outcome, error) {
	banned, err := f.members.IsBanned(ctx, req.User.ID)
	if err != nil {
		return Outcome{}, err
	}
	if banned {
		return Refused("You are banned from the lounge."), nil
	}
	return Admitted(), nil
}

// ActiveFilter refuses senders who are not currently joined. Commands in the
// exempt set pass through so that a left user can still come back.
type ActiveFilter struct {
	members MembershipSource
	exempt  map[string]struct{}
}

func NewActiveFilter(members MembershipSource, exemptCommands ...string) *ActiveFilter {
	exempt := make(map[string]struct{}, len(exemptCommands))
	for _, name := range exemptCommands {
		exempt[name] = struct{}{}
	}
	return &ActiveFilter{members: members, exempt: exempt}
}

func (f *ActiveFilter) Name() string { return "active" }

func (f *ActiveFilter) Check(ctx context.Context, req *Request) (Outcome, error) {
	if req.Msg.IsCommand() {
		if _, ok := f.exempt[req.Msg.CommandName()]; ok {
			return Admitted(), nil
		}
	}
	active, err := f.members.IsActive(ctx, req.User.ID)
	if err != nil {
		return Outcome{}, err
	}
	if !active {
		return Refused("You are not in the lounge. Send /join to enter."), nil
	}
	return Admitted(), nil
}

// FloodFilter throttles message frequency per sender. The first over-rate
// message earns a warning, further ones are dropped silently.
type FloodFilter struct {
	limiter *antiflood.Limiter
}

func NewFloodFilter(limiter *antiflood.Limiter) *FloodFilter {
	return &FloodFilter{limiter: limiter}
}

func (f *FloodFilter) Name() string { return "antiflood" }

func (f *FloodFilter) Check(_ context.Context, req *Request) (Outcome, error) {
	bypass := req.User.Permissions.Has(permission.BypassAntiflood)
	v := f.limiter.Check(req.User.ID, req.User.ChatDelay, bypass)
	if v.Admit {
		return Admitted(), nil
	}
	if v.Warn {
		return Refused("You are sending messages too quickly. Slow down."), nil
	}
	return Refused(""), nil
}

// CaptchaFilter gates unverified senders. While the challenge is open every
// message is consumed by the captcha flow: text is graded as an answer,
// anything else re-prompts. Passing the challenge joins the user.
type CaptchaFilter struct {
	members   MembershipSource
	gate      CaptchaGate
	presenter ChallengePresenter
}

func NewCaptchaFilter(members MembershipSource, gate CaptchaGate, presenter ChallengePresenter) *CaptchaFilter {
	return &CaptchaFilter{members: members, gate: gate, presenter: presenter}
}

func (f *CaptchaFilter) Name() string { return "captcha" }

func (f *CaptchaFilter) Check(ctx context.Context, req *Request) (Outcome, error) {
	if req.User.Permissions.Has(permission.BypassCaptcha) {
		return Admitted(), nil
	}
	st, err := f.members.CaptchaStatus(ctx, req.User.ID)
	if err != nil {
		return Outcome{}, err
	}
	if st.Passed {
		return Admitted(), nil
	}

	if req.Msg.Kind() == telegram.KindText && !req.Msg.IsCommand() {
		return f.grade(ctx, req)
	}
	if err := f.prompt(ctx, req.User.ID); err != nil {
		return Outcome{}, err
	}
	return Refused("Solve the captcha before participating."), nil
}

func (f *CaptchaFilter) grade(ctx context.Context, req *Request) (Outcome, error) {
	res, err := f.gate.Submit(ctx, req.User.ID, req.Msg.Text)
	if errors.Is(err, captcha.ErrCaptchaFlood) {
		return Refused(""), nil
	}
	if err != nil {
		return Outcome{}, err
	}

	switch {
	case res.Passed:
		if err := f.members.Join(ctx, req.User.ID); err != nil {
			return Outcome{}, err
		}
		return Refused("Correct. Welcome to the lounge."), nil
	case res.Lockout != nil && res.Lockout.IsBan:
		return Refused(fmt.Sprintf("Too many wrong answers. You are banned until %s.",
			res.Lockout.EndDate.UTC().Format(time.RFC3339))), nil
	case res.Lockout != nil && res.Lockout.IsKick:
		return Refused("Too many wrong answers. You have been removed."), nil
	case res.Lockout != nil:
		return Refused("Too many wrong answers. A new captcha will be issued."), nil
	default:
		if err := f.prompt(ctx, req.User.ID); err != nil {
			return Outcome{}, err
		}
		return Refused(fmt.Sprintf("Wrong answer (%d/%d). Try again.",
			res.FailedAttempts, res.MaxTries)), nil
	}
}

// prompt regenerates the challenge when due and shows the image.
func (f *CaptchaFilter) prompt(ctx context.Context, userID int64) error {
	ch, err := f.gate.StartSession(ctx, userID)
	if err != nil {
		return err
	}
	if ch == nil {
		return nil
	}
	return f.presenter.PresentChallenge(ctx, userID, ch.Image)
}

// entityPermissions maps platform entity types to the bit each requires.
var entityPermissions = map[string]permission.Permission{
	"bold":          permission.SendBold,
	"italic":        permission.SendItalic,
	"underline":     permission.SendUnderline,
	"strikethrough": permission.SendStrikethrough,
	"spoiler":       permission.SendSpoiler,
	"code":          permission.SendCode,
	"pre":           permission.SendPre,
	"mention":       permission.SendMention,
	"text_mention":  permission.SendTextMention,
	"hashtag":       permission.SendHashtag,
	"cashtag":       permission.SendCashtag,
	"bot_command":   permission.SendBotCommand,
	"url":           permission.SendURL,
	"text_link":     permission.SendTextLink,
	"email":         permission.SendEmail,
	"phone_number":  permission.SendPhoneNumber,
}

// kindPermissions maps non-text payloads to the bit each requires.
var kindPermissions = map[telegram.ContentKind]permission.Permission{
	telegram.KindPhoto:     permission.SendPhoto,
	telegram.KindVideo:     permission.SendVideo,
	telegram.KindVideoNote: permission.SendVideoNote,
	telegram.KindAudio:     permission.SendAudio,
	telegram.KindVoice:     permission.SendVoice,
	telegram.KindDocument:  permission.SendDocument,
	telegram.KindSticker:   permission.SendStickersGifs,
	telegram.KindAnimation: permission.SendStickersGifs,
	telegram.KindContact:   permission.SendContact,
	telegram.KindLocation:  permission.SendLocation,
	telegram.KindPoll:      permission.SendPoll,
}

// RequiredPermissions computes the mask a sender needs to relay msg: the
// payload bit plus one bit per formatting entity in the text.
func RequiredPermissions(msg *telegram.Message) (permission.Permission, bool) {
	kind := msg.Kind()
	if kind == telegram.KindUnknown {
		return permission.None, false
	}

	required := permission.None
	if kind == telegram.KindText {
		required = permission.SendPlain
	} else {
		required = kindPermissions[kind]
	}
	for _, e := range msg.Entities {
		if bit, ok := entityPermissions[e.Type]; ok {
			required |= bit
		}
	}
	return required, true
}

// ContentFilter refuses payloads the sender lacks the bits for. Commands
// pass through untouched; the command stage owns them.
type ContentFilter struct{}

func NewContentFilter() *ContentFilter { return &ContentFilter{} }

func (f *ContentFilter) Name() string { return "content_type" }

func (f *ContentFilter) Check(_ context.Context, req *Request) (Outcome, error) {
	if req.Msg.IsCommand() {
		return Admitted(), nil
	}
	required, ok := RequiredPermissions(req.Msg)
	if !ok {
		return Refused("This message type is not supported."), nil
	}
	if !req.User.Permissions.Has(required) {
		return Refused("You lack permission to send this kind of message."), nil
	}
	return Admitted(), nil
}

// CommandCatalog exposes the permission each registered command requires.
type CommandCatalog interface {
	RequiredFor(name string) (permission.Permission, bool)
}

// CommandFilter refuses unknown commands and commands the sender lacks the
// bits for. Plain messages pass through untouched.
type CommandFilter struct {
	catalog CommandCatalog
}

func NewCommandFilter(catalog CommandCatalog) *CommandFilter {
	return &CommandFilter{catalog: catalog}
}

func (f *CommandFilter) Name() string { return "command" }

func (f *CommandFilter) Check(_ context.Context, req *Request) (Outcome, error) {
	if !req.Msg.IsCommand() {
		return Admitted(), nil
	}
	required, ok := f.catalog.RequiredFor(req.Msg.CommandName())
	if !ok {
		return Refused("Unknown command."), nil
	}
	if !req.User.Permissions.Has(required) {
		return Refused("You may not use this command."), nil
	}
	return Admitted(), nil
}
