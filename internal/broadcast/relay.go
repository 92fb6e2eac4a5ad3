package broadcast

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

// ErrUnsupportedContent indicates a payload no sender is mapped for. The
// check runs before the first delivery so a broadcast never half-sends.
var ErrUnsupportedContent = errors.New("broadcast: unsupported content type")

// RecipientSource enumerates the users eligible to receive a broadcast.
type RecipientSource interface {
	ActiveRecipients(ctx context.Context, required permission.Permission) ([]users.Recipient, error)
}

// DeliveryLog records where each broadcast copy landed.
type DeliveryLog interface {
	Insert(ctx context.Context, deliveries []Delivery) error
	DeliveriesForSenderMessage(ctx context.Context, senderID, senderMsgID int64) ([]Delivery, error)
}

// Relay fans an admitted message out to every eligible lounge member.
// Recipients holding the clear-message bit get a forward that shows the
// origin; everyone else gets an anonymized re-send.
type Relay struct {
	api        telegram.API
	queue      *Queue
	recipients RecipientSource
	log        DeliveryLog
	polls      *PollPool
	logger     *slog.Logger
	newID      func() uuid.UUID
	now        func() time.Time
}

// NewRelay constructs a Relay.
func NewRelay(api telegram.API, queue *Queue, recipients RecipientSource, log DeliveryLog, polls *PollPool, logger *slog.Logger) *Relay {
	return &Relay{
		api:        api,
		queue:      queue,
		recipients: recipients,
		log:        log,
		polls:      polls,
		logger:     logger,
		newID:      uuid.New,
		now:        time.Now,
	}
}

// WithClock overrides the time source. Test hook.
func (r *Relay) WithClock(now func() time.Time) *Relay {
	r.now = now
	return r
}

// WithIDSource overrides broadcast id generation. Test hook.
func (r *Relay) WithIDSource(newID func() uuid.UUID) *Relay {
	r.newID = newID
	return r
}

// Broadcast relays msg to every active member other than the sender and
// returns the broadcast id. Individual delivery failures are logged and
// skipped; an unmapped payload fails the whole broadcast up front.
func (r *Relay) Broadcast(ctx context.Context, sender users.User, msg *telegram.Message) (uuid.UUID, error) {
	kind := msg.Kind()
	if kind == telegram.KindPoll {
		id, _, err := r.broadcastPoll(ctx, sender, msg)
		return id, err
	}
	if !r.canSend(kind) {
		return uuid.Nil, ErrUnsupportedContent
	}

	recipients, err := r.recipients.ActiveRecipients(ctx, permission.Receive)
	if err != nil {
		return uuid.Nil, err
	}

	broadcastID := r.newID()
	var deliveries []Delivery
	for _, rcpt := range recipients {
		if rcpt.ID == sender.ID {
			continue
		}
		var sent telegram.Message
		sendErr := r.queue.Do(ctx, func() error {
			var err error
			if rcpt.Permissions.Has(permission.ViewClearMsgs) {
				sent, err = r.api.ForwardMessage(ctx, rcpt.ID, msg.ChatID, msg.ID)
			} else {
				sent, err = r.anonymizedSend(ctx, rcpt.ID, kind, msg)
			}
			return err
		})
		if sendErr != nil {
			r.logger.Warn("broadcast delivery failed",
				slog.Int64("recipient", rcpt.ID),
				slog.Any("error", sendErr))
			continue
		}
		deliveries = append(deliveries, Delivery{
			BroadcastID: broadcastID,
			SenderID:    sender.ID,
			RecipientID: rcpt.ID,
			SenderMsgID: msg.ID,
			SentMsgID:   sent.ID,
			Kind:        kind,
			SentAt:      r.now(),
		})
	}
	if err := r.log.Insert(ctx, deliveries); err != nil {
		return broadcastID, err
	}
	r.logger.Info("broadcast relayed",
		slog.String("broadcast_id", broadcastID.String()),
		slog.Int64("sender", sender.ID),
		slog.String("kind", string(kind)),
		slog.Int("deliveries", len(deliveries)))
	return broadcastID, nil
}

// PublishPoll relays a poll built by the engine itself and returns the poll
// id of the canonical copy, so callers can correlate later vote events.
func (r *Relay) PublishPoll(ctx context.Context, sender users.User, question string, options []string) (string, error) {
	msg := &telegram.Message{Poll: &telegram.Poll{Question: question, Options: options}}
	_, pollID, err := r.broadcastPoll(ctx, sender, msg)
	return pollID, err
}

// broadcastPoll relays a native poll. Copies of a poll must share one poll
// id for votes to aggregate, so the first anonymized recipient receives a
// fresh anonymous copy and everyone else gets a forward of it. Returns the
// broadcast id and the poll id of the canonical copy.
func (r *Relay) broadcastPoll(ctx context.Context, sender users.User, msg *telegram.Message) (uuid.UUID, string, error) {
	recipients, err := r.recipients.ActiveRecipients(ctx, permission.Receive)
	if err != nil {
		return uuid.Nil, "", err
	}

	broadcastID := r.newID()
	var deliveries []Delivery
	var canonical *telegram.Message
	for _, rcpt := range recipients {
		if rcpt.ID == sender.ID {
			continue
		}
		var sent telegram.Message
		sendErr := r.queue.Do(ctx, func() error {
			var err error
			if canonical == nil {
				sent, err = r.api.SendPoll(ctx, rcpt.ID, msg.Poll.Question, msg.Poll.Options)
			} else {
				sent, err = r.api.ForwardMessage(ctx, rcpt.ID, canonical.ChatID, canonical.ID)
			}
			return err
		})
		if sendErr == nil && canonical == nil {
			c := sent
			canonical = &c
			if c.Poll != nil {
				r.polls.Register(c.Poll.ID, PollMeta{CreatorID: sender.ID})
			}
		}
		if sendErr != nil {
			r.logger.Warn("poll delivery failed",
				slog.Int64("recipient", rcpt.ID),
				slog.Any("error", sendErr))
			continue
		}
		deliveries = append(deliveries, Delivery{
			BroadcastID: broadcastID,
			SenderID:    sender.ID,
			RecipientID: rcpt.ID,
			SenderMsgID: msg.ID,
			SentMsgID:   sent.ID,
			Kind:        telegram.KindPoll,
			SentAt:      r.now(),
		})
	}
	if msg.Poll.ID != "" {
		r.polls.Register(msg.Poll.ID, PollMeta{CreatorID: sender.ID})
	}
	canonicalPollID := ""
	if canonical != nil && canonical.Poll != nil {
		canonicalPollID = canonical.Poll.ID
	}
	if err := r.log.Insert(ctx, deliveries); err != nil {
		return broadcastID, canonicalPollID, err
	}
	return broadcastID, canonicalPollID, nil
}

// Unsend deletes every relayed copy of the given sender message and reports
// how many copies were removed.
func (r *Relay) Unsend(ctx context.Context, senderID, senderMsgID int64) (int, error) {
	deliveries, err := r.log.DeliveriesForSenderMessage(ctx, senderID, senderMsgID)
	if err != nil {
		return 0, err
	}
	removed := 0
	for _, d := range deliveries {
		err := r.queue.Do(ctx, func() error {
			return r.api.DeleteMessage(ctx, d.RecipientID, d.SentMsgID)
		})
		if err != nil {
			r.logger.Warn("unsend failed",
				slog.Int64("recipient", d.RecipientID),
				slog.Any("error", err))
			continue
		}
		removed++
	}
	return removed, nil
}

// Notify delivers a private service message to one user.
func (r *Relay) Notify(ctx context.Context, userID int64, text string) error {
	return r.queue.Do(ctx, func() error {
		_, err := r.api.SendMessage(ctx, userID, text)
		return err
	})
}

// PresentChallenge delivers a captcha image to one user.
func (r *Relay) PresentChallenge(ctx context.Context, userID int64, image []byte) error {
	return r.queue.Do(ctx, func() error {
		_, err := r.api.SendPhotoBytes(ctx, userID, image, "Type the characters you see to enter the lounge.")
		return err
	})
}

// Announce sends a service banner to every active member.
func (r *Relay) Announce(ctx context.Context, text string) error {
	recipients, err := r.recipients.ActiveRecipients(ctx, permission.Receive)
	if err != nil {
		return err
	}
	for _, rcpt := range recipients {
		if err := r.Notify(ctx, rcpt.ID, text); err != nil {
			r.logger.Warn("announcement delivery failed",
				slog.Int64("recipient", rcpt.ID),
				slog.Any("error", err))
		}
	}
	return nil
}

func (r *Relay) canSend(kind telegram.ContentKind) bool {
	switch kind {
	case telegram.KindText, telegram.KindPhoto, telegram.KindVideo,
		telegram.KindVideoNote, telegram.KindAudio, telegram.KindVoice,
		telegram.KindDocument, telegram.KindSticker, telegram.KindAnimation,
		telegram.KindContact, telegram.KindLocation:
		return true
	default:
		return false
	}
}

func (r *Relay) anonymizedSend(ctx context.Context, chatID int64, kind telegram.ContentKind, msg *telegram.Message) (telegram.Message, error) {
	switch kind {
	case telegram.KindText:
		return r.api.SendMessage(ctx, chatID, msg.Text)
	case telegram.KindPhoto:
		return r.api.SendPhoto(ctx, chatID, msg.PhotoID, msg.Caption)
	case telegram.KindVideo:
		return r.api.SendVideo(ctx, chatID, msg.VideoID, msg.Caption)
	case telegram.KindVideoNote:
		return r.api.SendVideoNote(ctx, chatID, msg.VideoNote)
	case telegram.KindAudio:
		return r.api.SendAudio(ctx, chatID, msg.AudioID, msg.Caption)
	case telegram.KindVoice:
		return r.api.SendVoice(ctx, chatID, msg.VoiceID, msg.Caption)
	case telegram.KindDocument:
		return r.api.SendDocument(ctx, chatID, msg.DocID, msg.Caption)
	case telegram.KindSticker:
		return r.api.SendSticker(ctx, chatID, msg.StickerID)
	case telegram.KindAnimation:
		return r.api.SendAnimation(ctx, chatID, msg.AnimID, msg.Caption)
	case telegram.KindContact:
		return r.api.SendContact(ctx, chatID, *msg.Contact)
	case telegram.KindLocation:
		return r.api.SendLocation(ctx, chatID, *msg.Location)
	default:
		return telegram.Message{}, ErrUnsupportedContent
	}
}
