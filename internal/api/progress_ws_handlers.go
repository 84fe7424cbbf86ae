package api

import (
	"log/slog"
	"net/http"
	"net/url"
	"slices"
	"strings"

	"github.com/gorilla/websocket"
	"github.com/studyplus/tracker/internal/middleware"
)

// ProgressSubscriber registers websocket connections for a user's progress events.
type ProgressSubscriber interface {
	Subscribe(userID string, conn *websocket.Conn)
	Unsubscribe(userID string, conn *websocket.Conn)
}

// ProgressHandlers streams watch progress over a websocket.
type ProgressHandlers struct {
	subscriber ProgressSubscriber
	upgrader   websocket.Upgrader
}

// NewProgressHandlers creates a new ProgressHandlers instance. Upgrades are
// accepted from allowedOrigins, or from any origin when it contains "*".
// Requests without an Origin header (non-browser clients) are always accepted.
func NewProgressHandlers(subscriber ProgressSubscriber, allowedOrigins []string) *ProgressHandlers {
	return &ProgressHandlers{
		subscriber: subscriber,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     originChecker(allowedOrigins),
		},
	}
}

func originChecker(allowed []string) func(r *http.Request) bool {
	return func(r *http.Request) bool {
		origin := r.Header.Get("Origin")
		if origin == "" || slices.Contains(allowed, "*") {
			return true
		}
		if slices.ContainsFunc(allowed, func(o string) bool { return strings.EqualFold(o, origin) }) {
			return true
		}
		// Same-origin pages are fine even when not listed.
		u, err := url.Parse(origin)
		return err == nil && strings.EqualFold(u.Host, r.Host)
	}
}

// Subscribe handles GET /progress/ws.
func (h *ProgressHandlers) Subscribe(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.WarnContext(ctx, "failed to upgrade websocket connection", "error", err)
		return
	}

	h.subscriber.Subscribe(userID, conn)
	slog.InfoContext(ctx, "websocket client subscribed to progress events", "user_id", userID)

	defer func() {
		h.subscriber.Unsubscribe(userID, conn)
		conn.Close()
		slog.InfoContext(ctx, "websocket client unsubscribed", "user_id", userID)
	}()

	// Clients don't send anything; reading detects the disconnect.
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.WarnContext(ctx, "websocket connection closed unexpectedly", "error", err, "user_id", userID)
			}
			return
		}
	}
}
