package telegram

import "encoding/json"

// fileRef is the platform shape carrying a re-sendable file id.
type fileRef struct {
	FileID string `json:"file_id"`
}

// UnmarshalJSON decodes the platform wire shape into the flat engine shape:
// chat objects collapse to the chat id, media objects to their file ids, and
// caption entities merge into the entity list. The largest photo size wins.
func (m *Message) UnmarshalJSON(data []byte) error {
	var w struct {
		ID   int64 `json:"message_id"`
		Chat struct {
			ID int64 `json:"id"`
		} `json:"chat"`
		ChatID          int64     `json:"chat_id"`
		From            UserRef   `json:"from"`
		Text            string    `json:"text"`
		Caption         string    `json:"caption"`
		Entities        []Entity  `json:"entities"`
		CaptionEntities []Entity  `json:"caption_entities"`
		ReplyTo         *Message  `json:"reply_to_message"`
		Photo           []fileRef `json:"photo"`
		Video           *fileRef  `json:"video"`
		VideoNote       *fileRef  `json:"video_note"`
		Audio           *fileRef  `json:"audio"`
		Voice           *fileRef  `json:"voice"`
		Document        *fileRef  `json:"document"`
		Sticker         *fileRef  `json:"sticker"`
		Animation       *fileRef  `json:"animation"`
		Contact         *Contact  `json:"contact"`
		Location        *Location `json:"location"`
		Poll            *Poll     `json:"poll"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}

	*m = Message{
		ID:       w.ID,
		ChatID:   w.Chat.ID,
		From:     w.From,
		Text:     w.Text,
		Caption:  w.Caption,
		Entities: append(w.Entities, w.CaptionEntities...),
		ReplyTo:  w.ReplyTo,
		Contact:  w.Contact,
		Location: w.Location,
		Poll:     w.Poll,
	}
	if m.ChatID == 0 {
		m.ChatID = w.ChatID
	}
	if len(w.Photo) > 0 {
		m.PhotoID = w.Photo[len(w.Photo)-1].FileID
	}
	if w.Video != nil {
		m.VideoID = w.Video.FileID
	}
	if w.VideoNote != nil {
		m.VideoNote = w.VideoNote.FileID
	}
	if w.Audio != nil {
		m.AudioID = w.Audio.FileID
	}
	if w.Voice != nil {
		m.VoiceID = w.Voice.FileID
	}
	if w.Sticker != nil {
		m.StickerID = w.Sticker.FileID
	}
	// A GIF arrives as animation plus a backing document; the animation wins.
	if w.Animation != nil {
		m.AnimID = w.Animation.FileID
	} else if w.Document != nil {
		m.DocID = w.Document.FileID
	}
	return nil
}

// UnmarshalJSON accepts poll options both as plain strings and as the
// platform's option objects.
func (p *Poll) UnmarshalJSON(data []byte) error {
	var w struct {
		ID          string            `json:"id"`
		Question    string            `json:"question"`
		Options     []json.RawMessage `json:"options"`
		IsAnonymous bool              `json:"is_anonymous"`
	}
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*p = Poll{ID: w.ID, Question: w.Question, IsAnonymous: w.IsAnonymous}
	for _, raw := range w.Options {
		var text string
		if err := json.Unmarshal(raw, &text); err == nil {
			p.Options = append(p.Options, text)
			continue
		}
		var opt struct {
			Text string `json:"text"`
		}
		if err := json.Unmarshal(raw, &opt); err != nil {
			return err
		}
		p.Options = append(p.Options, opt.Text)
	}
	return nil
}
