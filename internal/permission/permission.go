package permission

import (
	"errors"
	"strings"
	"unicode"
)

// ErrInvalidPermission indicates an unrecognized permission name.
var ErrInvalidPermission = errors.New("permission: invalid permission name")

// Permission is a bitmask of named capabilities. Masks are persisted as-is,
// so bit positions are frozen: new capabilities append at the end, existing
// entries must never be reordered or removed.
type Permission uint64

const (
	// Receive allows receiving relayed messages.
	Receive Permission = 1 << iota

	// Text shape bits. SendText is the union of these.
	SendPlain
	SendBold
	SendItalic
	SendUnderline
	SendStrikethrough
	SendSpoiler
	SendCode
	SendPre

	// Entity bits checked per message entity.
	SendMention
	SendTextMention
	SendHashtag
	SendCashtag
	SendBotCommand
	SendURL
	SendTextLink
	SendEmail
	SendPhoneNumber

	// Media bits. SendMedia is the union of the first six.
	SendPhoto
	SendVideo
	SendVideoNote
	SendAudio
	SendVoice
	SendDocument
	SendStickersGifs
	SendContact
	SendLocation
	SendPoll

	// Admission bypasses.
	BypassCaptcha
	BypassAntiflood

	// Chat management.
	PinMessages
	ViewLogs
	ViewClearMsgs
	DeleteMessages

	// Moderation.
	Kick
	Ban
	Unban
	SetUserRole
	SetUserPermissions
	SetChatDelay
	WaiveCaptcha
	ResetCaptcha

	// Role administration.
	CreateRole
	DeleteRole
	EditRole
	SetDefaultRole

	// Log access.
	ViewBanLog
	ViewJoinLog

	// Broadcast administration.
	CreateAdminPoll

	maxBit
)

const (
	// None is the empty mask.
	None Permission = 0
	// All is the union of every defined capability.
	All Permission = maxBit - 1

	// SendText is the union of the text shape bits.
	SendText = SendPlain | SendBold | SendItalic | SendUnderline |
		SendStrikethrough | SendSpoiler | SendCode | SendPre

	// SendMedia is the union of the common media bits.
	SendMedia = SendPhoto | SendVideo | SendVideoNote | SendAudio |
		SendVoice | SendDocument
)

// names lists capabilities in bit order. Composite and pseudo members are
// resolvable by Parse but never appear in List output.
var names = []struct {
	bit  Permission
	name string
}{
	{Receive, "RECEIVE"},
	{SendPlain, "SEND_PLAIN"},
	{SendBold, "SEND_BOLD"},
	{SendItalic, "SEND_ITALIC"},
	{SendUnderline, "SEND_UNDERLINE"},
	{SendStrikethrough, "SEND_STRIKETHROUGH"},
	{SendSpoiler, "SEND_SPOILER"},
	{SendCode, "SEND_CODE"},
	{SendPre, "SEND_PRE"},
	{SendMention, "SEND_MENTION"},
	{SendTextMention, "SEND_TEXT_MENTION"},
	{SendHashtag, "SEND_HASHTAG"},
	{SendCashtag, "SEND_CASHTAG"},
	{SendBotCommand, "SEND_BOT_COMMAND"},
	{SendURL, "SEND_URL"},
	{SendTextLink, "SEND_TEXT_LINK"},
	{SendEmail, "SEND_EMAIL"},
	{SendPhoneNumber, "SEND_PHONE_NUMBER"},
	{SendPhoto, "SEND_PHOTO"},
	{SendVideo, "SEND_VIDEO"},
	{SendVideoNote, "SEND_VIDEO_NOTE"},
	{SendAudio, "SEND_AUDIO"},
	{SendVoice, "SEND_VOICE"},
	{SendDocument, "SEND_DOCUMENT"},
	{SendStickersGifs, "SEND_STICKERS_GIFS"},
	{SendContact, "SEND_CONTACT"},
	{SendLocation, "SEND_LOCATION"},
	{SendPoll, "SEND_POLL"},
	{BypassCaptcha, "BYPASS_CAPTCHA"},
	{BypassAntiflood, "BYPASS_ANTIFLOOD"},
	{PinMessages, "PIN_MESSAGES"},
	{ViewLogs, "VIEW_LOGS"},
	{ViewClearMsgs, "VIEW_CLEAR_MSGS"},
	{DeleteMessages, "DELETE_MESSAGES"},
	{Kick, "KICK"},
	{Ban, "BAN"},
	{Unban, "UNBAN"},
	{SetUserRole, "SET_USER_ROLE"},
	{SetUserPermissions, "SET_USER_PERMISSIONS"},
	{SetChatDelay, "SET_CHAT_DELAY"},
	{WaiveCaptcha, "WAIVE_CAPTCHA"},
	{ResetCaptcha, "RESET_CAPTCHA"},
	{CreateRole, "CREATE_ROLE"},
	{DeleteRole, "DELETE_ROLE"},
	{EditRole, "EDIT_ROLE"},
	{SetDefaultRole, "SET_DEFAULT_ROLE"},
	{ViewBanLog, "VIEW_BAN_LOG"},
	{ViewJoinLog, "VIEW_JOIN_LOG"},
	{CreateAdminPoll, "CREATE_ADMIN_POLL"},
}

var byName = func() map[string]Permission {
	m := make(map[string]Permission, len(names)+4)
	for _, entry := range names {
		m[entry.name] = entry.bit
	}
	m["NONE"] = None
	m["ALL"] = All
	m["SEND_TEXT"] = SendText
	m["SEND_MEDIA"] = SendMedia
	return m
}()

// Union returns the combined mask.
func Union(masks ...Permission) Permission {
	var out Permission
	for _, m := range masks {
		out |= m
	}
	return out
}

// Has reports whether every bit of sub is present in p.
func (p Permission) Has(sub Permission) bool {
	return p&sub == sub
}

// Union returns p combined with other.
func (p Permission) Union(other Permission) Permission {
	return p | other
}

// Parse resolves a capability name, case-insensitively. Composite names
// (SEND_TEXT, SEND_MEDIA) and the NONE/ALL pseudo members are accepted.
func Parse(name string) (Permission, error) {
	p, ok := byName[strings.ToUpper(strings.TrimSpace(name))]
	if !ok {
		return None, ErrInvalidPermission
	}
	return p, nil
}

// ParseList resolves a list of names, separated by commas or whitespace,
// into one mask.
func ParseList(raw string) (Permission, error) {
	var mask Permission
	fields := strings.FieldsFunc(raw, func(r rune) bool {
		return r == ',' || unicode.IsSpace(r)
	})
	for _, field := range fields {
		p, err := Parse(field)
		if err != nil {
			return None, err
		}
		mask |= p
	}
	return mask, nil
}

// List returns the names of the set bits in declaration order.
func (p Permission) List() []string {
	var out []string
	for _, entry := range names {
		if p&entry.bit != 0 {
			out = append(out, entry.name)
		}
	}
	return out
}

// String renders the mask as a pipe separated capability list.
func (p Permission) String() string {
	if p == None {
		return "NONE"
	}
	if p == All {
		return "ALL"
	}
	return strings.Join(p.List(), "|")
}
