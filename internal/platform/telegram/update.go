package telegram

import "strings"

// ContentKind classifies the payload of a message for permission checks and
// broadcast dispatch.
type ContentKind string

const (
	KindText      ContentKind = "text"
	KindPhoto     ContentKind = "photo"
	KindVideo     ContentKind = "video"
	KindVideoNote ContentKind = "video_note"
	KindAudio     ContentKind = "audio"
	KindVoice     ContentKind = "voice"
	KindDocument  ContentKind = "document"
	KindSticker   ContentKind = "sticker"
	KindAnimation ContentKind = "animation"
	KindContact   ContentKind = "contact"
	KindLocation  ContentKind = "location"
	KindPoll      ContentKind = "poll"
	KindUnknown   ContentKind = "unknown"
)

// UserRef identifies the platform user a message came from. Only ID is
// durable; names are enrichment.
type UserRef struct {
	ID        int64  `json:"id"`
	Username  string `json:"username"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
}

// Entity marks a span of message text (mention, url, hashtag, ...).
type Entity struct {
	Type   string `json:"type"`
	Offset int    `json:"offset"`
	Length int    `json:"length"`
}

// Contact is a shared phone contact.
type Contact struct {
	PhoneNumber string `json:"phone_number"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
}

// Location is a shared geographic point.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

// Poll is a native platform poll.
type Poll struct {
	ID          string   `json:"id"`
	Question    string   `json:"question"`
	Options     []string `json:"options"`
	IsAnonymous bool     `json:"is_anonymous"`
}

// PollAnswer is a vote event on a previously sent poll. The platform sends
// the voter under the "user" key, not "from".
type PollAnswer struct {
	PollID    string  `json:"poll_id"`
	From      UserRef `json:"user"`
	OptionIDs []int   `json:"option_ids"`
}

// Message is the inbound or outbound message shape the engine cares about.
// Media fields carry platform file ids usable for re-sending.
type Message struct {
	ID        int64     `json:"message_id"`
	ChatID    int64     `json:"chat_id"`
	From      UserRef   `json:"from"`
	Text      string    `json:"text"`
	Caption   string    `json:"caption"`
	Entities  []Entity  `json:"entities"`
	ReplyTo   *Message  `json:"reply_to_message"`
	PhotoID   string    `json:"photo_id"`
	VideoID   string    `json:"video_id"`
	VideoNote string    `json:"video_note_id"`
	AudioID   string    `json:"audio_id"`
	VoiceID   string    `json:"voice_id"`
	DocID     string    `json:"document_id"`
	StickerID string    `json:"sticker_id"`
	AnimID    string    `json:"animation_id"`
	Contact   *Contact  `json:"contact"`
	Location  *Location `json:"location"`
	Poll      *Poll     `json:"poll"`
}

// Kind classifies the message payload. A message carrying no recognized
// payload classifies as KindUnknown and is rejected downstream.
func (m *Message) Kind() ContentKind {
	switch {
	case m == nil:
		return KindUnknown
	case m.PhotoID != "":
		return KindPhoto
	case m.VideoID != "":
		return KindVideo
	case m.VideoNote != "":
		return KindVideoNote
	case m.AudioID != "":
		return KindAudio
	case m.VoiceID != "":
		return KindVoice
	case m.DocID != "":
		return KindDocument
	case m.StickerID != "":
		return KindSticker
	case m.AnimID != "":
		return KindAnimation
	case m.Contact != nil:
		return KindContact
	case m.Location != nil:
		return KindLocation
	case m.Poll != nil:
		return KindPoll
	case m.Text != "":
		return KindText
	default:
		return KindUnknown
	}
}

// IsCommand reports whether the message text is a slash command.
func (m *Message) IsCommand() bool {
	return m != nil && strings.HasPrefix(m.Text, "/")
}

// CommandName extracts the command word without the slash or bot suffix.
func (m *Message) CommandName() string {
	if !m.IsCommand() {
		return ""
	}
	name := strings.Fields(m.Text)[0][1:]
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}
	return strings.ToLower(name)
}

// CommandArgs returns the whitespace separated arguments after the command.
func (m *Message) CommandArgs() []string {
	if !m.IsCommand() {
		return nil
	}
	fields := strings.Fields(m.Text)
	return fields[1:]
}

// Update is one inbound event from the platform stream.
type Update struct {
	ID         int64       `json:"update_id"`
	Message    *Message    `json:"message"`
	PollAnswer *PollAnswer `json:"poll_answer"`
}

// FromID returns the id of the user the update originated from, or zero.
func (u *Update) FromID() int64 {
	switch {
	case u == nil:
		return 0
	case u.Message != nil:
		return u.Message.From.ID
	case u.PollAnswer != nil:
		return u.PollAnswer.From.ID
	default:
		return 0
	}
}
