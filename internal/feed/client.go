// Package feed maintains the persistent connection to the external trade
// feed for one instrument: subscribe/unsubscribe handshakes, trade-batch
// decoding, and reconnection with exponential backoff.
package feed

import (
	"context"
	"errors"
	"log"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"stockstream/internal/model"
)

// ErrNoCredential is returned when the feed API key is missing. Sessions
// must be refused at open in that case (the only fatal misconfiguration).
var ErrNoCredential = errors.New("feed: missing API key")

// Config holds configuration for the feed client.
type Config struct {
	// URL of the trade WebSocket endpoint, e.g. "wss://ws.finnhub.io".
	URL string

	// APIKey is appended as the "token" query parameter.
	APIKey string

	// Symbol is the single instrument this client subscribes to. Ticks for
	// other symbols arriving on the shared feed are discarded.
	Symbol string
}

// Client streams trade ticks for one instrument, surviving transient
// network failure. One Client belongs to one session.
type Client struct {
	cfg     Config
	wsURL   string
	dialer  *websocket.Dialer
	backoff *backoff

	// Optional hook — called each time a reconnection attempt is made.
	OnReconnect func()
}

// New creates a feed client. Returns ErrNoCredential when the API key is
// empty and an error when the URL is unparseable.
func New(cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, ErrNoCredential
	}
	u, err := url.Parse(cfg.URL)
	if err != nil {
		return nil, err
	}
	q := u.Query()
	q.Set("token", cfg.APIKey)
	u.RawQuery = q.Encode()

	return &Client{
		cfg:     cfg,
		wsURL:   u.String(),
		dialer:  websocket.DefaultDialer,
		backoff: newBackoff(),
	}, nil
}

// Run connects, subscribes, and streams ticks into tickCh until ctx is
// cancelled. Connection loss and read errors trigger backoff-retry; only
// cancellation ends the loop. Returns nil on cancellation.
func (c *Client) Run(ctx context.Context, tickCh chan<- model.Tick) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		default:
		}

		err := c.runOnce(ctx, tickCh)
		if err == nil {
			// Cancelled cleanly mid-read.
			return nil
		}

		delay := c.backoff.Next()
		log.Printf("[feed] %s disconnected (%v), reconnecting in %s", c.cfg.Symbol, err, delay)
		if c.OnReconnect != nil {
			c.OnReconnect()
		}

		select {
		case <-ctx.Done():
			return nil
		case <-time.After(delay):
		}
	}
}

// runOnce performs one connect → subscribe → read-forever cycle.
// Returns nil only when ctx was cancelled.
func (c *Client) runOnce(ctx context.Context, tickCh chan<- model.Tick) error {
	conn, _, err := c.dialer.DialContext(ctx, c.wsURL, nil)
	if err != nil {
		return err
	}
	defer conn.Close()

	if err := conn.WriteJSON(subscribeMsg{Type: "subscribe", Symbol: c.cfg.Symbol}); err != nil {
		return err
	}
	log.Printf("[feed] subscribed to %s", c.cfg.Symbol)

	// Subscription succeeded — the next failure starts the sequence over.
	c.backoff.Reset()

	// Context watcher: a best-effort unsubscribe, then close to unblock the
	// read below. Failures here are irrelevant — the socket is going away.
	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			conn.SetWriteDeadline(time.Now().Add(2 * time.Second))
			conn.WriteJSON(subscribeMsg{Type: "unsubscribe", Symbol: c.cfg.Symbol})
			conn.WriteMessage(websocket.CloseMessage,
				websocket.FormatCloseMessage(websocket.CloseNormalClosure, "session closing"))
			conn.Close()
		case <-done:
		}
	}()

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			select {
			case <-ctx.Done():
				return nil
			default:
			}
			return err
		}

		msg := decode(raw)
		switch msg.Kind {
		case KindTrade:
			for _, tick := range msg.Trades {
				if tick.Symbol != c.cfg.Symbol {
					continue
				}
				select {
				case tickCh <- tick:
				case <-ctx.Done():
					return nil
				}
			}
		case KindPing:
			// Heartbeat — the feed is alive, nothing to deliver.
		case KindUnknown:
			// Unrecognized or malformed frame, skip.
		}
	}
}
