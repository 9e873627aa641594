package broadcast

import (
	"context"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sirupsen/logrus"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10
)

// WebSocketClient relays a subscription to a websocket connection.
type WebSocketClient struct {
	conn *websocket.Conn
	sub  *Subscription
	log  *logrus.Entry
}

// NewWebSocketClient constructs a client wrapper.
func NewWebSocketClient(conn *websocket.Conn, sub *Subscription, log *logrus.Entry) *WebSocketClient {
	return &WebSocketClient{conn: conn, sub: sub, log: log.WithField("subscriber", sub.ID)}
}

// Run pumps events until the final status event is sent, ctx ends, the peer
// goes away or the subscription closes.
func (c *WebSocketClient) Run(ctx context.Context) {
	defer c.conn.Close()
	defer c.sub.Close()

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	go c.readLoop(cancel)

	ticker := time.NewTicker(pingPeriod)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			_ = c.conn.WriteControl(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), time.Now().Add(writeWait))
			return
		case evt, ok := <-c.sub.Events():
			if !ok {
				return
			}
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteJSON(evt); err != nil {
				c.log.WithError(err).Warn("websocket send failed")
				return
			}
			if evt.Final() {
				_ = c.conn.WriteControl(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseNormalClosure, "deployment finished"), time.Now().Add(writeWait))
				return
			}
		case <-ticker.C:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// readLoop discards inbound frames; its only job is noticing the peer leaving.
func (c *WebSocketClient) readLoop(cancel context.CancelFunc) {
	defer cancel()
	c.conn.SetReadLimit(4096)
	_ = c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(pongWait))
	})
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}
