package realtime

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	log "github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
	maxMessage = 1024
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// clientMessage is what sessions send to manage their rooms
type clientMessage struct {
	Type    string `json:"type"`
	WheelID int64  `json:"wheel_id"`
}

type ack struct {
	Type    string `json:"type"`
	WheelID int64  `json:"wheel_id,omitempty"`
	Error   string `json:"error,omitempty"`
}

// ServeWS upgrades the request and runs the session until the client disconnects.
// Query lobby=false opts out of the global feed; rooms are joined with
// {"type":"subscribe","wheel_id":N} and left with {"type":"unsubscribe","wheel_id":N}.
func ServeWS(hub *Hub) gin.HandlerFunc {
	return func(c *gin.Context) {
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			log.WithError(err).Debug("WebSocket upgrade failed")
			return
		}
		defer conn.Close()

		session := hub.Register(c.DefaultQuery("lobby", "true") != "false")
		defer session.Close()

		logger := log.WithField("sessionID", session.ID)
		logger.Info("WebSocket session opened")

		conn.SetReadLimit(maxMessage)
		conn.SetReadDeadline(time.Now().Add(pongWait))
		conn.SetPongHandler(func(string) error {
			return conn.SetReadDeadline(time.Now().Add(pongWait))
		})

		go writePump(conn, session)

		for {
			_, raw, err := conn.ReadMessage()
			if err != nil {
				break
			}

			var msg clientMessage
			if json.Unmarshal(raw, &msg) != nil {
				reply(session, ack{Type: "error", Error: "invalid message"})
				continue
			}

			switch msg.Type {
			case "subscribe":
				if msg.WheelID <= 0 {
					reply(session, ack{Type: "error", Error: "wheel_id required"})
					continue
				}
				hub.Join(session, msg.WheelID)
				reply(session, ack{Type: "subscribed", WheelID: msg.WheelID})
			case "unsubscribe":
				hub.Leave(session, msg.WheelID)
				reply(session, ack{Type: "unsubscribed", WheelID: msg.WheelID})
			default:
				reply(session, ack{Type: "error", Error: "unknown message type"})
			}
		}

		logger.Info("WebSocket session closed")
	}
}

func reply(s *Session, a ack) {
	data, err := json.Marshal(a)
	if err != nil {
		return
	}
	s.deliver(data)
}

func writePump(conn *websocket.Conn, s *Session) {
	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case msg, ok := <-s.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-ticker.C:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}
