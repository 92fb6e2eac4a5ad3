package app

import (
	"context"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

type recordingHandler struct {
	updates []int64
}

func (h *recordingHandler) HandleUpdate(_ context.Context, u *telegram.Update) error {
	h.updates = append(h.updates, u.ID)
	return nil
}

func newTestRouter(handler UpdateHandler) http.Handler {
	return NewRouter(RouterParams{
		Logger: slog.New(slog.DiscardHandler),
		Config: &Config{
			UpdateMode:        "webhook",
			WebhookSecret:     "s3cret",
			AppRequestTimeout: 0,
		},
		Handler: handler,
	})
}

func TestHealthz(t *testing.T) {
	router := newTestRouter(&recordingHandler{})

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	require.JSONEq(t, `{"status":"ok"}`, rec.Body.String())
}

func TestWebhookDispatchesUpdate(t *testing.T) {
	handler := &recordingHandler{}
	router := newTestRouter(handler)

	body := `{"update_id":7,"message":{"message_id":1,"chat":{"id":42},"from":{"id":42},"text":"hi"}}`
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader(body)))
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, []int64{7}, handler.updates)
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	handler := &recordingHandler{}
	router := newTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/s3cret", strings.NewReader("{")))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	require.Empty(t, handler.updates)
}

func TestWebhookWrongSecretIsNotFound(t *testing.T) {
	handler := &recordingHandler{}
	router := newTestRouter(handler)

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/webhook/wrong", strings.NewReader("{}")))
	require.Equal(t, http.StatusNotFound, rec.Code)
	require.Empty(t, handler.updates)
}
