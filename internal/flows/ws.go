package flows

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"fridgechef/internal/shared/server/middleware"
	"fridgechef/internal/shared/server/respond"
	"fridgechef/internal/shared/telemetry"
)

const (
	wsWriteWait  = 10 * time.Second
	wsPongWait   = 60 * time.Second
	wsPingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	// Origin checks are left to the CORS allow-list on the HTTP routes.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// events streams the flow's view over a websocket: the current view first,
// then one message per change until the flow ends or the client leaves.
// The subscription opens before the first read so no change is missed.
func (h *Handler) events(c *gin.Context) {
	id := c.Param("id")
	if h.Svc.Hub == nil {
		respond.Error(c, http.StatusNotImplemented, "not_implemented", "live updates are disabled", nil)
		return
	}
	updates, unsubscribe := h.Svc.Hub.Subscribe(id)
	defer unsubscribe()

	view, err := h.Svc.View(c.Request.Context(), id)
	if err != nil {
		h.writeError(c, err)
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		telemetry.Warn("ws.upgrade_failed", map[string]any{
			"request_id": middleware.RequestIDFromContext(c),
			"flow_id":    id,
			"error":      err.Error(),
		})
		return
	}

	done := make(chan struct{})
	go readPump(conn, done)
	writePump(conn, view, updates, done)
}

// readPump discards client messages and notices disconnects.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	conn.SetReadLimit(4096)
	_ = conn.SetReadDeadline(time.Now().Add(wsPongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(wsPongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				telemetry.Warn("ws.read_failed", map[string]any{"error": err.Error()})
			}
			return
		}
	}
}

func writePump(conn *websocket.Conn, first View, updates <-chan View, done <-chan struct{}) {
	ticker := time.NewTicker(wsPingPeriod)
	defer func() {
		ticker.Stop()
		conn.Close()
	}()

	_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
	if err := conn.WriteJSON(first); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case view, ok := <-updates:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if !ok {
				_ = conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "flow closed"))
				return
			}
			// Queued before the first read.
			if view.Version <= first.Version {
				continue
			}
			if err := conn.WriteJSON(view); err != nil {
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(wsWriteWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
