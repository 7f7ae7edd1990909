package realtime

import (
	"sync"

	"github.com/gofiber/contrib/websocket"
	"github.com/gofiber/fiber/v2"
	"go.uber.org/zap"
)

// wsSink adapts one websocket connection to the Sink contract. Writes are
// serialized because the hub and the read loop may touch the conn concurrently.
type wsSink struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (s *wsSink) Send(payload []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn.WriteMessage(websocket.TextMessage, payload)
}

// Upgrade gates the route so only websocket upgrade requests reach the handler.
func Upgrade(c *fiber.Ctx) error {
	if websocket.IsWebSocketUpgrade(c) {
		return c.Next()
	}
	return fiber.ErrUpgradeRequired
}

// Handler serves one realtime connection. The client's first text frame is
// the channel it subscribes to: its own encrypted subject identifier. The
// subscription lasts until the connection closes.
func Handler(hub *Hub, logger *zap.Logger) fiber.Handler {
	return websocket.New(func(conn *websocket.Conn) {
		defer conn.Close()

		_, first, err := conn.ReadMessage()
		if err != nil {
			return
		}
		channel := string(first)
		if channel == "" {
			return
		}

		sink := &wsSink{conn: conn}
		hub.Subscribe(channel, sink)
		defer hub.Unsubscribe(channel, sink)

		logger.Debug("realtime subscription opened")

		// drain until the peer disconnects; inbound frames carry nothing
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	})
}
