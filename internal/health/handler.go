package health

import (
	"context"
	"net/http"
	"time"

	httputil "bookswap/pkg/http"
	"bookswap/pkg/logger"

	"github.com/julienschmidt/httprouter"
)

const readyTimeout = 2 * time.Second

// Pinger is satisfied by *client.Client, which has nothing to ping for the
// memory store. A nil Pinger is always ready.
type Pinger interface {
	Ping(ctx context.Context) error
}

type Response struct {
	Status  string `json:"status"`
	Store   string `json:"store,omitempty"`
	Storage string `json:"storage,omitempty"`
}

type Handler struct {
	store  string
	pinger Pinger
	log    *logger.Logger
}

func NewHandler(store string, pinger Pinger, log *logger.Logger) *Handler {
	return &Handler{store: store, pinger: pinger, log: log}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if err := httputil.WriteJSON(w, http.StatusOK, Response{Status: "ok"}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Health", "operation", "WriteJSON", "error", err)
	}
}

func (h *Handler) Ready(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
	if h.pinger != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readyTimeout)
		defer cancel()

		if err := h.pinger.Ping(ctx); err != nil {
			h.log.Error("Store health check failed", "store", h.store, "error", err)
			if writeErr := httputil.WriteJSON(w, http.StatusServiceUnavailable, Response{
				Status:  "unavailable",
				Store:   h.store,
				Storage: "error",
			}); writeErr != nil {
				h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", writeErr)
			}
			return
		}
	}

	if err := httputil.WriteJSON(w, http.StatusOK, Response{
		Status:  "ready",
		Store:   h.store,
		Storage: "ok",
	}); err != nil {
		h.log.Error("failed to write JSON response", "handler", "Ready", "operation", "WriteJSON", "error", err)
	}
}

func (h *Handler) RegisterRoutes(router *httprouter.Router) {
	router.GET("/health", h.Health)
	router.GET("/ready", h.Ready)
}
