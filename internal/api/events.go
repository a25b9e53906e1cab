package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"

	"github.com/phenodx-server/internal/session"
)

const (
	writeWait      = 10 * time.Second
	pongWait       = 60 * time.Second
	pingPeriod     = (pongWait * 9) / 10
	maxMessageSize = 512
)

// eventClient pumps one session's events to a WebSocket connection.
// Clients only listen; inbound frames are read to process control
// messages and detect disconnects.
type eventClient struct {
	conn        *websocket.Conn
	events      <-chan session.Event
	unsubscribe func()
	done        chan struct{}
	log         *logrus.Entry
}

func (s *Server) upgrader() *websocket.Upgrader {
	allowed := s.config.Server.AllowedOrigins
	return &websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			if origin == "" {
				return true
			}
			for _, o := range allowed {
				if o == "*" || o == origin {
					return true
				}
			}
			return false
		},
	}
}

// handleEvents streams session events over a WebSocket. The current
// ranking state is sent first so a client that connects late starts from
// a consistent view.
func (s *Server) handleEvents(c *gin.Context) {
	sess := currentSession(c)

	conn, err := s.upgrader().Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		s.log.WithError(err).Warn("WebSocket upgrade failed")
		return
	}

	events, unsubscribe := sess.Events().Subscribe()
	client := &eventClient{
		conn:        conn,
		events:      events,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
		log:         s.log.WithField("session_id", sess.ID),
	}
	client.log.Debug("Event subscriber connected")

	state := sess.Ranking()
	snapshot := session.Event{
		Type:      session.EventRankingStatus,
		SessionID: sess.ID,
		Data: map[string]interface{}{
			"status": state.Status,
			"token":  state.Token,
			"source": state.Source,
			"error":  state.Error,
		},
		Timestamp: time.Now().UTC(),
	}

	go client.readPump()
	client.writePump(snapshot)
}

func (cl *eventClient) readPump() {
	defer close(cl.done)

	cl.conn.SetReadLimit(maxMessageSize)
	_ = cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	cl.conn.SetPongHandler(func(string) error {
		return cl.conn.SetReadDeadline(time.Now().Add(pongWait))
	})

	for {
		if _, _, err := cl.conn.ReadMessage(); err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				cl.log.WithError(err).Debug("WebSocket read error")
			}
			return
		}
	}
}

func (cl *eventClient) writePump(first session.Event) {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		cl.unsubscribe()
		cl.conn.Close()
		cl.log.Debug("Event subscriber disconnected")
	}()

	_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := cl.conn.WriteJSON(first); err != nil {
		return
	}

	for {
		select {
		case ev, ok := <-cl.events:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				_ = cl.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closed"))
				return
			}
			if err := cl.conn.WriteJSON(ev); err != nil {
				return
			}
		case <-ticker.C:
			_ = cl.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := cl.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-cl.done:
			return
		}
	}
}
