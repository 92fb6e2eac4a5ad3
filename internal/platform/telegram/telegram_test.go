package telegram_test

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

func TestMessageKind(t *testing.T) {
	cases := []struct {
		name string
		msg  telegram.Message
		want telegram.ContentKind
	}{
		{"text", telegram.Message{Text: "hello"}, telegram.KindText},
		{"photo", telegram.Message{PhotoID: "f1", Caption: "c"}, telegram.KindPhoto},
		{"video", telegram.Message{VideoID: "f2"}, telegram.KindVideo},
		{"sticker", telegram.Message{StickerID: "s"}, telegram.KindSticker},
		{"contact", telegram.Message{Contact: &telegram.Contact{PhoneNumber: "1"}}, telegram.KindContact},
		{"location", telegram.Message{Location: &telegram.Location{Latitude: 1}}, telegram.KindLocation},
		{"poll", telegram.Message{Poll: &telegram.Poll{ID: "p"}}, telegram.KindPoll},
		{"empty", telegram.Message{}, telegram.KindUnknown},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, tc.msg.Kind())
		})
	}
}

func TestPollAnswerWireDecode(t *testing.T) {
	raw := `{
		"update_id": 12,
		"poll_answer": {
			"poll_id": "p1",
			"user": {"id": 555, "username": "voter"},
			"option_ids": [1]
		}
	}`
	var u telegram.Update
	require.NoError(t, json.Unmarshal([]byte(raw), &u))
	require.NotNil(t, u.PollAnswer)
	assert.Equal(t, "p1", u.PollAnswer.PollID)
	assert.EqualValues(t, 555, u.PollAnswer.From.ID, "voter arrives under the user key")
	assert.Equal(t, []int{1}, u.PollAnswer.OptionIDs)
	assert.EqualValues(t, 555, u.FromID())
}

func TestCommandParsing(t *testing.T) {
	msg := telegram.Message{Text: "/Ban@lounge_bot 99 some reason"}
	assert.True(t, msg.IsCommand())
	assert.Equal(t, "ban", msg.CommandName())
	assert.Equal(t, []string{"99", "some", "reason"}, msg.CommandArgs())

	plain := telegram.Message{Text: "hello"}
	assert.False(t, plain.IsCommand())
	assert.Empty(t, plain.CommandName())
}

func TestClientSendMessage(t *testing.T) {
	var gotPath string
	var gotBody map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":     true,
			"result": map[string]any{"message_id": 7, "chat_id": 42},
		})
	}))
	defer srv.Close()

	client := telegram.NewClient("token", srv.URL, slog.Default())
	msg, err := client.SendMessage(context.Background(), 42, "hi")
	require.NoError(t, err)
	assert.Equal(t, "/bottoken/sendMessage", gotPath)
	assert.Equal(t, "hi", gotBody["text"])
	assert.Equal(t, int64(7), msg.ID)
}

func TestClientErrorEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"ok":          false,
			"description": "chat not found",
			"error_code":  400,
		})
	}))
	defer srv.Close()

	client := telegram.NewClient("token", srv.URL, slog.Default())
	err := client.DeleteMessage(context.Background(), 1, 2)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "chat not found")
}
