// README: Websocket stream of the caller's session view.
package handlers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"gogo/internal/modules/ride"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = pongWait * 9 / 10
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// Browsers on other origins authenticate with a bearer token, not cookies.
	CheckOrigin: func(*http.Request) bool { return true },
}

type StreamHandler struct {
	sessions SessionSource
	log      *slog.Logger
}

func NewStreamHandler(sessions SessionSource, log *slog.Logger) *StreamHandler {
	if log == nil {
		log = slog.Default()
	}
	return &StreamHandler{sessions: sessions, log: log}
}

// Stream sends the current view, then one view per change. Only the latest
// pending view is kept, so a slow client skips intermediate versions.
func (h *StreamHandler) Stream(c *gin.Context) {
	s := session(c, h.sessions)
	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		h.log.Warn("websocket upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	latest := make(chan ride.Session, 1)
	stop := s.Watch(func(v ride.Session) {
		for {
			select {
			case latest <- v:
				return
			default:
			}
			select {
			case old := <-latest:
				if old.Version > v.Version {
					v = old
				}
			default:
			}
		}
	})
	defer stop()

	done := make(chan struct{})
	go readPump(conn, done)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	view := s.View()
	sent := view.Version
	if err := writeView(conn, view); err != nil {
		return
	}
	for {
		select {
		case <-done:
			return
		case <-c.Request.Context().Done():
			return
		case v := <-latest:
			if v.Version <= sent {
				continue
			}
			sent = v.Version
			if err := writeView(conn, v); err != nil {
				h.log.Debug("websocket write failed", "err", err)
				return
			}
		case <-ticker.C:
			_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func writeView(conn *websocket.Conn, v ride.Session) error {
	_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
	return conn.WriteJSON(v)
}

// readPump discards client frames and closes done when the peer goes away.
func readPump(conn *websocket.Conn, done chan<- struct{}) {
	defer close(done)
	_ = conn.SetReadDeadline(time.Now().Add(pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := conn.ReadMessage(); err != nil {
			return
		}
	}
}
