package hub

import (
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

const (
	writeWait = 10 * time.Second
	// Clients ping every 30s; allow two missed heartbeats.
	readWait = 75 * time.Second
)

var pong = []byte("pong")

// NewUpgrader accepts any origin when origins contains "*", otherwise
// only the listed ones (and requests without an Origin header).
func NewUpgrader(origins []string) websocket.Upgrader {
	allowed := make(map[string]bool, len(origins))
	for _, o := range origins {
		allowed[o] = true
	}
	return websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin: func(r *http.Request) bool {
			origin := r.Header.Get("Origin")
			return origin == "" || allowed["*"] || allowed[origin]
		},
	}
}

// WebSocketHandler serves /api/ws/slots. The socket is unauthenticated:
// frames only say which slot changed, never who may see what.
func WebSocketHandler(hub *Hub, upgrader websocket.Upgrader) httprouter.Handle {
	return func(w http.ResponseWriter, r *http.Request, _ httprouter.Params) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			log.Println("[hub] upgrade:", err)
			return
		}
		client := NewClient(64)
		if !hub.Register(client) {
			conn.Close()
			return
		}
		go writePump(conn, client)
		readPump(conn, client, hub)
	}
}

func writePump(conn *websocket.Conn, c *Client) {
	defer conn.Close()
	for {
		select {
		case msg := <-c.Send:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := conn.WriteMessage(websocket.TextMessage, msg); err != nil {
				return
			}
		case <-c.done:
			conn.SetWriteDeadline(time.Now().Add(writeWait))
			conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseGoingAway, ""))
			return
		}
	}
}

func readPump(conn *websocket.Conn, c *Client, hub *Hub) {
	defer func() {
		hub.Unregister(c)
		conn.Close()
	}()

	conn.SetReadLimit(4096)
	conn.SetReadDeadline(time.Now().Add(readWait))
	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			return
		}
		conn.SetReadDeadline(time.Now().Add(readWait))
		if string(raw) != "ping" {
			continue
		}
		select {
		case c.Send <- pong:
		case <-c.done:
			return
		default:
		}
	}
}
