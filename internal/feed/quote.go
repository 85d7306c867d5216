package feed

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"net/url"
	"time"
)

// QuoteClient fetches the opening (reference) price over the vendor's REST
// quote endpoint. It is the fallback when the cache has no opening price
// for the day. Implements model.QuoteFetcher.
type QuoteClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
}

// quoteResponse mirrors the vendor quote payload. pc = previous close,
// o = current session open, c = current price.
type quoteResponse struct {
	PrevClose float64 `json:"pc"`
	Open      float64 `json:"o"`
	Current   float64 `json:"c"`
}

// NewQuoteClient creates a quote client against the given REST base URL,
// e.g. "https://finnhub.io/api/v1".
func NewQuoteClient(baseURL, apiKey string) *QuoteClient {
	return &QuoteClient{
		baseURL: baseURL,
		apiKey:  apiKey,
		http:    &http.Client{Timeout: 5 * time.Second},
	}
}

// OpeningPrice returns the reference price for percent-change computation:
// previous close when available, else the session open. Any failure —
// network, non-2xx, malformed body — yields 0, which disables
// percent-change downstream rather than failing the session.
func (q *QuoteClient) OpeningPrice(ctx context.Context, symbol string) float64 {
	u := q.baseURL + "/quote?symbol=" + url.QueryEscape(symbol) + "&token=" + url.QueryEscape(q.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return 0
	}
	resp, err := q.http.Do(req)
	if err != nil {
		log.Printf("[feed] quote fetch for %s failed: %v", symbol, err)
		return 0
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		log.Printf("[feed] quote fetch for %s: status %d", symbol, resp.StatusCode)
		return 0
	}

	var body quoteResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		log.Printf("[feed] quote decode for %s failed: %v", symbol, err)
		return 0
	}

	if body.PrevClose > 0 {
		return body.PrevClose
	}
	if body.Open > 0 {
		return body.Open
	}
	return 0
}
