package gateway

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"stockstream/internal/feed"
	"stockstream/internal/model"
	"stockstream/internal/session"
	"stockstream/internal/store/memory"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, &slog.HandlerOptions{Level: slog.LevelError}))
}

type fixedQuotes struct{ price float64 }

func (f fixedQuotes) OpeningPrice(ctx context.Context, symbol string) float64 { return f.price }

// fakeUpstream acts as the vendor tick endpoint: accept the subscribe
// message, emit the scripted trade frames, then hold the connection open.
func fakeUpstream(t *testing.T, frames []string) *httptest.Server {
	t.Helper()
	up := websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}
	return httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := up.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		defer conn.Close()
		if _, _, err := conn.ReadMessage(); err != nil { // subscribe
			return
		}
		for _, f := range frames {
			if err := conn.WriteMessage(websocket.TextMessage, []byte(f)); err != nil {
				return
			}
		}
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}))
}

func newGatewayServer(t *testing.T, cache model.SessionCache, feedCfg feed.Config) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	srv := NewServer(cache, fixedQuotes{price: 100}, feedCfg,
		session.Config{BucketWidth: 300, SMAWindow: 3, EMAPeriod: 9}, nil, testLogger())
	srv.Register(mux)
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func wsURL(ts *httptest.Server, path string) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http") + path
}

func TestGateway_RefusesWithoutCredential(t *testing.T) {
	ts := newGatewayServer(t, memory.New(0), feed.Config{URL: "ws://127.0.0.1:1/ws"})

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/stock/AAPL"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err = conn.ReadMessage()
	ce, ok := err.(*websocket.CloseError)
	if !ok {
		t.Fatalf("expected a close error, got %v", err)
	}
	if ce.Code != websocket.ClosePolicyViolation {
		t.Errorf("expected close code %d, got %d", websocket.ClosePolicyViolation, ce.Code)
	}
}

func TestGateway_RejectsMissingSymbol(t *testing.T) {
	ts := newGatewayServer(t, memory.New(0), feed.Config{APIKey: "k", URL: "ws://127.0.0.1:1/ws"})

	resp, err := http.Get(ts.URL + "/ws/stock/")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404 for missing symbol, got %d", resp.StatusCode)
	}
}

func TestGateway_StreamsLiveQuotes(t *testing.T) {
	upstream := fakeUpstream(t, []string{
		`{"type":"ping"}`,
		`{"type":"trade","data":[{"s":"AAPL","p":101,"t":0}]}`,
	})
	defer upstream.Close()

	cache := memory.New(0)
	day := session.DayKey(time.Now())
	cache.SetOpeningPrice(context.Background(), "AAPL", day, 100.0)

	feedCfg := feed.Config{URL: wsURL(upstream, ""), APIKey: "test-key"}
	ts := newGatewayServer(t, cache, feedCfg)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/stock/aapl"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}

	// A frame may carry several newline-separated quotes; the first is
	// enough here.
	first := strings.SplitN(string(raw), "\n", 2)[0]
	var q model.LiveQuote
	if err := json.Unmarshal([]byte(first), &q); err != nil {
		t.Fatalf("unmarshal %q: %v", first, err)
	}
	if q.Symbol != "AAPL" || q.Price != 101 {
		t.Errorf("unexpected quote: %+v", q)
	}
	if q.PChange != 1.0 || q.Sign != "+" {
		t.Errorf("expected pchange=1.0 sign=+, got %+v", q)
	}
}

func TestGateway_GetPriceAction(t *testing.T) {
	upstream := fakeUpstream(t, nil)
	defer upstream.Close()

	cache := memory.New(0)
	cache.SetLiveQuote(context.Background(),
		model.LiveQuote{Symbol: "TSLA", Price: 240.5, Sign: "+"})

	feedCfg := feed.Config{URL: wsURL(upstream, ""), APIKey: "test-key"}
	ts := newGatewayServer(t, cache, feedCfg)

	conn, _, err := websocket.DefaultDialer.Dial(wsURL(ts, "/ws/stock/TSLA"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteMessage(websocket.TextMessage, []byte(`{"action":"get_price"}`)); err != nil {
		t.Fatalf("write: %v", err)
	}

	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	_, raw, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	var q model.LiveQuote
	if err := json.Unmarshal(raw, &q); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if q.Price != 240.5 {
		t.Errorf("expected cached price 240.5, got %v", q.Price)
	}
}
