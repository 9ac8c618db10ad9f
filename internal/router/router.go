package router

import (
	"net/http"

	"github.com/rs/zerolog"

	"github.com/sonroyaalmerol/gcal-mirror/internal/api"
	"github.com/sonroyaalmerol/gcal-mirror/internal/auth"
)

// New assembles the HTTP surface. The provider webhook stays outside
// bearer auth because push notifications carry no credentials; all
// control and task endpoints go through the verifier.
func New(h *api.Handlers, verifier *auth.Verifier, logger zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/healthz", func(w http.ResponseWriter, req *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	mux.Handle("/webhook", method(http.MethodPost, h.HandleWebhook))

	protected := http.NewServeMux()
	protected.Handle("/tasks/sync", method(http.MethodPost, h.HandleTask))
	protected.Handle("/sync/setup", method(http.MethodPost, h.HandleSetup))
	protected.Handle("/sync/pause", method(http.MethodPost, h.HandlePause))
	protected.Handle("/sync/resume", method(http.MethodPost, h.HandleResume))
	protected.Handle("/sync/stop", method(http.MethodPost, h.HandleStop))
	protected.Handle("/sync/restart", method(http.MethodPost, h.HandleRestart))
	protected.Handle("/sync/status", method(http.MethodGet, h.HandleStatus))
	protected.Handle("/user/clear", method(http.MethodDelete, h.HandleClear))
	mux.Handle("/", verifier.Middleware(protected))

	return accessLog(logger, mux)
}

func method(m string, h http.HandlerFunc) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != m {
			w.WriteHeader(http.StatusMethodNotAllowed)
			return
		}
		h(w, req)
	})
}
