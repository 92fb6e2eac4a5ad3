package broadcast

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/permission"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
	"github.com/anonlounge/anonlounge/internal/users"
)

type call struct {
	method string
	chatID int64
}

// fakeAPI records outbound calls and fabricates message ids.
type fakeAPI struct {
	telegram.API

	calls   []call
	nextID  int64
	failFor map[int64]bool
	deleted []call
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{nextID: 100, failFor: make(map[int64]bool)}
}

func (f *fakeAPI) record(method string, chatID int64) (telegram.Message, error) {
	if f.failFor[chatID] {
		return telegram.Message{}, errors.New("blocked by recipient")
	}
	f.calls = append(f.calls, call{method, chatID})
	f.nextID++
	return telegram.Message{ID: f.nextID, ChatID: chatID}, nil
}

func (f *fakeAPI) SendMessage(_ context.Context, chatID int64, _ string) (telegram.Message, error) {
	return f.record("sendMessage", chatID)
}

func (f *fakeAPI) SendPhoto(_ context.Context, chatID int64, _, _ string) (telegram.Message, error) {
	return f.record("sendPhoto", chatID)
}

func (f *fakeAPI) ForwardMessage(_ context.Context, toChatID, _, _ int64) (telegram.Message, error) {
	return f.record("forwardMessage", toChatID)
}

func (f *fakeAPI) SendPoll(_ context.Context, chatID int64, question string, options []string) (telegram.Message, error) {
	msg, err := f.record("sendPoll", chatID)
	if err != nil {
		return msg, err
	}
	msg.Poll = &telegram.Poll{ID: "poll-copy", Question: question, Options: options}
	return msg, nil
}

func (f *fakeAPI) DeleteMessage(_ context.Context, chatID, messageID int64) error {
	if f.failFor[chatID] {
		return errors.New("message gone")
	}
	f.deleted = append(f.deleted, call{fmt.Sprint(messageID), chatID})
	return nil
}

type stubRecipients []users.Recipient

func (s stubRecipients) ActiveRecipients(context.Context, permission.Permission) ([]users.Recipient, error) {
	return s, nil
}

type memLog struct {
	rows []Delivery
}

func (l *memLog) Insert(_ context.Context, deliveries []Delivery) error {
	l.rows = append(l.rows, deliveries...)
	return nil
}

func (l *memLog) DeliveriesForSenderMessage(_ context.Context, senderID, senderMsgID int64) ([]Delivery, error) {
	var out []Delivery
	for _, d := range l.rows {
		if d.SenderID == senderID && d.SenderMsgID == senderMsgID {
			out = append(out, d)
		}
	}
	return out, nil
}

func newRelayFixture(api *fakeAPI, recipients stubRecipients) (*Relay, *memLog, *PollPool) {
	log := &memLog{}
	polls := NewPollPool()
	relay := NewRelay(api, NewQueue(1000), recipients, log, polls, slog.New(slog.DiscardHandler)).
		WithClock(func() time.Time { return time.Unix(5000, 0) })
	return relay, log, polls
}

func TestBroadcastForwardsOrAnonymizes(t *testing.T) {
	api := newFakeAPI()
	relay, log, _ := newRelayFixture(api, stubRecipients{
		{ID: 1, Permissions: permission.Receive},
		{ID: 2, Permissions: permission.Receive | permission.ViewClearMsgs},
		{ID: 9, Permissions: permission.Receive},
	})

	sender := users.User{ID: 9}
	msg := &telegram.Message{ID: 42, ChatID: 9, Text: "hello"}
	id, err := relay.Broadcast(context.Background(), sender, msg)
	require.NoError(t, err)
	require.NotEqual(t, uuid.Nil, id)

	require.Equal(t, []call{
		{"sendMessage", 1},
		{"forwardMessage", 2},
	}, api.calls, "sender must be excluded, clear viewers get forwards")

	require.Len(t, log.rows, 2)
	for _, d := range log.rows {
		require.Equal(t, id, d.BroadcastID)
		require.EqualValues(t, 9, d.SenderID)
		require.EqualValues(t, 42, d.SenderMsgID)
		require.Equal(t, telegram.KindText, d.Kind)
	}
}

func TestBroadcastUnsupportedKindFailsBeforeSending(t *testing.T) {
	api := newFakeAPI()
	relay, log, _ := newRelayFixture(api, stubRecipients{{ID: 1, Permissions: permission.Receive}})

	_, err := relay.Broadcast(context.Background(), users.User{ID: 9}, &telegram.Message{ID: 1})
	require.ErrorIs(t, err, ErrUnsupportedContent)
	require.Empty(t, api.calls)
	require.Empty(t, log.rows)
}

func TestBroadcastSkipsFailedDeliveries(t *testing.T) {
	api := newFakeAPI()
	api.failFor[2] = true
	relay, log, _ := newRelayFixture(api, stubRecipients{
		{ID: 1, Permissions: permission.Receive},
		{ID: 2, Permissions: permission.Receive},
		{ID: 3, Permissions: permission.Receive},
	})

	_, err := relay.Broadcast(context.Background(), users.User{ID: 9},
		&telegram.Message{ID: 42, ChatID: 9, Text: "hello"})
	require.NoError(t, err)
	require.Len(t, log.rows, 2)
	for _, d := range log.rows {
		require.NotEqualValues(t, 2, d.RecipientID)
	}
}

func TestBroadcastPollSendsOneCanonicalCopy(t *testing.T) {
	api := newFakeAPI()
	relay, log, polls := newRelayFixture(api, stubRecipients{
		{ID: 1, Permissions: permission.Receive},
		{ID: 2, Permissions: permission.Receive},
		{ID: 3, Permissions: permission.Receive},
	})

	msg := &telegram.Message{
		ID:     42,
		ChatID: 9,
		Poll:   &telegram.Poll{ID: "poll-orig", Question: "q", Options: []string{"a", "b"}},
	}
	_, err := relay.Broadcast(context.Background(), users.User{ID: 9}, msg)
	require.NoError(t, err)

	require.Equal(t, []call{
		{"sendPoll", 1},
		{"forwardMessage", 2},
		{"forwardMessage", 3},
	}, api.calls, "votes only aggregate when all copies share one poll")
	require.Len(t, log.rows, 3)

	meta, ok := polls.Lookup("poll-copy")
	require.True(t, ok)
	require.EqualValues(t, 9, meta.CreatorID)
	meta, ok = polls.Lookup("poll-orig")
	require.True(t, ok)
	require.EqualValues(t, 9, meta.CreatorID)
}

func TestUnsendDeletesEveryCopy(t *testing.T) {
	api := newFakeAPI()
	relay, _, _ := newRelayFixture(api, stubRecipients{
		{ID: 1, Permissions: permission.Receive},
		{ID: 2, Permissions: permission.Receive},
	})

	_, err := relay.Broadcast(context.Background(), users.User{ID: 9},
		&telegram.Message{ID: 42, ChatID: 9, Text: "oops"})
	require.NoError(t, err)

	removed, err := relay.Unsend(context.Background(), 9, 42)
	require.NoError(t, err)
	require.Equal(t, 2, removed)
	require.Len(t, api.deleted, 2)
}

func TestAnnounceReachesEveryActiveMember(t *testing.T) {
	api := newFakeAPI()
	relay, _, _ := newRelayFixture(api, stubRecipients{
		{ID: 1, Permissions: permission.Receive},
		{ID: 2, Permissions: permission.Receive},
	})

	require.NoError(t, relay.Announce(context.Background(), "going down for maintenance"))
	require.Equal(t, []call{
		{"sendMessage", 1},
		{"sendMessage", 2},
	}, api.calls)
}
