package api

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/gorilla/websocket"
	"github.com/tendant/simple-posts/pkg/simpleposts"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// SubscriptionHandler streams post change events over WebSocket
type SubscriptionHandler struct {
	service  simpleposts.Service
	logger   *slog.Logger
	upgrader websocket.Upgrader
}

// SubscriptionOption configures a SubscriptionHandler
type SubscriptionOption func(*SubscriptionHandler)

// WithAnyOrigin accepts upgrades from every origin. Without it only
// same-origin browser clients may connect. Meant for development only.
func WithAnyOrigin() SubscriptionOption {
	return func(h *SubscriptionHandler) {
		h.upgrader.CheckOrigin = func(r *http.Request) bool { return true }
	}
}

// NewSubscriptionHandler creates a new subscription handler. A nil logger
// falls back to slog.Default().
func NewSubscriptionHandler(service simpleposts.Service, logger *slog.Logger, opts ...SubscriptionOption) *SubscriptionHandler {
	if logger == nil {
		logger = slog.Default()
	}
	h := &SubscriptionHandler{service: service, logger: logger}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Routes returns one stream per topic
func (h *SubscriptionHandler) Routes() chi.Router {
	r := chi.NewRouter()

	r.Get("/post-added", h.Stream(simpleposts.TopicPostAdded))
	r.Get("/post-updated", h.Stream(simpleposts.TopicPostUpdated))
	r.Get("/post-deleted", h.Stream(simpleposts.TopicPostDeleted))

	return r
}

// Stream upgrades the request and writes every event published on topic
// after the upgrade until the client goes away.
func (h *SubscriptionHandler) Stream(topic simpleposts.Topic) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		sub, err := h.service.Subscribe(topic)
		if err != nil {
			writeServiceError(w, r, err)
			return
		}
		defer h.service.Unsubscribe(sub)

		conn, err := h.upgrader.Upgrade(w, r, nil)
		if err != nil {
			h.logger.Warn("websocket upgrade failed", "topic", string(topic), "error", err)
			return
		}
		defer conn.Close()

		ctx, cancel := context.WithCancel(r.Context())
		defer cancel()

		go h.readPump(conn, cancel)
		go h.pingLoop(ctx, conn)

		h.logger.Debug("subscriber connected", "topic", string(topic), "remote", r.RemoteAddr)
		for {
			post, err := sub.Next(ctx)
			if err != nil {
				break
			}
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteJSON(EventMessage{Topic: string(topic), Post: toPostResponse(post)}); err != nil {
				h.logger.Debug("subscriber write failed", "topic", string(topic), "error", err)
				break
			}
		}

		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(writeWait))
		h.logger.Debug("subscriber disconnected", "topic", string(topic), "remote", r.RemoteAddr)
	}
}

// readPump discards client frames and cancels the stream once the peer
// closes or stops answering pings.
func (h *SubscriptionHandler) readPump(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	conn.SetReadLimit(512)
	conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *SubscriptionHandler) pingLoop(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
