package gateway

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/gorilla/websocket"

	"stockstream/internal/model"
	"stockstream/internal/session"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = 30 * time.Second
	sendBuffer = 64
)

func deadline() time.Time { return time.Now().Add(writeWait) }

var errSubscriberGone = errors.New("gateway: subscriber send buffer full")

// subscriber is one WebSocket peer. It satisfies session.Publisher: the
// session hands it live quotes and it owns all writes on the connection.
type subscriber struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
	log  *slog.Logger
}

func newSubscriber(conn *websocket.Conn, log *slog.Logger) *subscriber {
	return &subscriber{
		conn: conn,
		send: make(chan []byte, sendBuffer),
		done: make(chan struct{}),
		log:  log,
	}
}

// Send queues a live quote for delivery. A subscriber that cannot drain
// its buffer is considered gone; the session logs and moves on.
func (c *subscriber) Send(q model.LiveQuote) error {
	select {
	case <-c.done:
		return errSubscriberGone
	default:
	}
	select {
	case c.send <- q.JSON():
		return nil
	default:
		return errSubscriberGone
	}
}

func (c *subscriber) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case msg := <-c.send:
			c.conn.SetWriteDeadline(deadline())
			w, err := c.conn.NextWriter(websocket.TextMessage)
			if err != nil {
				return
			}
			w.Write(msg)

			// Drain queued quotes into the same frame.
			n := len(c.send)
			for i := 0; i < n; i++ {
				w.Write([]byte{'\n'})
				w.Write(<-c.send)
			}
			if err := w.Close(); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(deadline())
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		case <-c.done:
			c.conn.SetWriteDeadline(deadline())
			c.conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			return
		}
	}
}

// clientAction is the inbound message shape. Only get_price is defined;
// anything else is ignored.
type clientAction struct {
	Action string `json:"action"`
}

// readPump consumes subscriber messages until the connection drops, then
// signals the write pump to shut down. It blocks the caller for the life
// of the connection.
func (c *subscriber) readPump(ctx context.Context, sess *session.Session) {
	defer close(c.done)

	c.conn.SetReadLimit(512)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, msg, err := c.conn.ReadMessage()
		if err != nil {
			return
		}

		var act clientAction
		if json.Unmarshal(msg, &act) != nil {
			continue
		}
		switch act.Action {
		case "get_price":
			sess.HandleGetPrice(ctx)
		default:
			c.log.Debug("ignoring unknown action", "action", act.Action)
		}
	}
}
