package server

import (
	"encoding/json"
	"net/http"
	"path"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"ftops/internal/engine"
)

// registerWebhooks mounts the provider delivery endpoint. Deliveries are always
// recorded; the response reports whether the signature verified.
func registerWebhooks(r chi.Router, basePath string, e engine.Engine, logger *zap.Logger) {
	r.Post(path.Join("/", basePath, "ingest", "{provider}", "webhook"), func(w http.ResponseWriter, req *http.Request) {
		hook := engine.Webhook{
			Provider:    chi.URLParam(req, "provider"),
			Environment: req.URL.Query().Get("env"),
			Header:      req.Header.Clone(),
			Body:        bodyBytes(req.Context()),
		}
		// session cookies are not part of the delivery
		hook.Header.Del("Cookie")
		stored, err := e.ReceiveWebhook(req.Context(), hook)
		if err != nil {
			logger.Warn("webhook rejected", zap.String("provider", hook.Provider), zap.Error(err))
			respondStatusError(w, handleError(err))
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(webhookResponse{
			OK:          true,
			ID:          stored.ID,
			Verified:    bool(stored.SignatureVerified),
			VerifyError: stored.VerifyError,
		})
	})
}
