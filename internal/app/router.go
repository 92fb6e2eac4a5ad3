package app

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/anonlounge/anonlounge/internal/platform/httpx"
	"github.com/anonlounge/anonlounge/internal/platform/telegram"
)

// UpdateHandler processes one inbound platform update.
type UpdateHandler interface {
	HandleUpdate(ctx context.Context, u *telegram.Update) error
}

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger  *slog.Logger
	Config  *Config
	Handler UpdateHandler
}

// NewRouter constructs the chi.Router serving health checks and, in webhook
// mode, the update endpoint.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger: params.Logger,
		Config: params.Config,
	}) {
		r.Use(mw)
	}

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Config.UpdateMode == "webhook" && params.Handler != nil {
		// The secret in the path is the only authentication the platform
		// offers for webhooks.
		r.Post("/webhook/"+params.Config.WebhookSecret, func(w http.ResponseWriter, r *http.Request) {
			var update telegram.Update
			if err := httpx.DecodeJSON(r, &update); err != nil {
				params.Logger.Warn("malformed webhook payload", slog.Any("error", err))
				httpx.Problem(w, http.StatusBadRequest, "Bad Request", "malformed update payload")
				return
			}
			if err := params.Handler.HandleUpdate(r.Context(), &update); err != nil {
				params.Logger.Error("webhook update failed",
					slog.Int64("update_id", update.ID),
					slog.Any("error", err))
			}
			// Always 200: the platform retries non-2xx responses and a
			// poison update would otherwise loop forever.
			w.WriteHeader(http.StatusOK)
		})
	}

	return r
}
