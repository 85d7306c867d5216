package model

import (
	"encoding/json"
	"strconv"
)

// Bar represents one completed fixed-duration bucket: the bucket start
// (epoch seconds, bucket-aligned) and the last price seen inside it.
type Bar struct {
	TS    int64   `json:"ts"`
	Close float64 `json:"close"`
}

// JSON returns the JSON-encoded bar (ignoring errors for hot-path usage).
func (b *Bar) JSON() []byte {
	data, _ := json.Marshal(b)
	return data
}

// LiveQuote is the per-tick snapshot published to the cache and to the
// subscriber. Sign is "+" when PChange >= 0, else "-".
type LiveQuote struct {
	Symbol  string  `json:"symbol"`
	Price   float64 `json:"price"`
	PChange float64 `json:"pchange"`
	Sign    string  `json:"sign"`
	Delta   float64 `json:"delta"`
}

// JSON returns the JSON-encoded quote.
func (q *LiveQuote) JSON() []byte {
	data, _ := json.Marshal(q)
	return data
}

// IndicatorSnapshot holds the indicator values at one bucket close.
// Only the latest snapshot is retained per instrument and width.
type IndicatorSnapshot struct {
	TS  int64   `json:"ts"`
	SMA float64 `json:"sma"`
	EMA float64 `json:"ema"`
}

// JSON returns the JSON-encoded snapshot.
func (s *IndicatorSnapshot) JSON() []byte {
	data, _ := json.Marshal(s)
	return data
}

// WidthLabel formats a bucket width in seconds as a compact token for cache
// keys: 300 -> "5m", 60 -> "1m", 45 -> "45s".
func WidthLabel(seconds int) string {
	if seconds >= 60 && seconds%60 == 0 {
		return strconv.Itoa(seconds/60) + "m"
	}
	return strconv.Itoa(seconds) + "s"
}
