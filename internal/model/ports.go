package model

import "context"

// These interfaces decouple the streaming session from concrete storage
// implementations (Redis, in-memory). The cache is advisory: callers must
// treat every error and miss as "no data", never as a session failure.

// SessionCache is the per-instrument cache shared by all streaming sessions.
// Widths are label tokens from WidthLabel (e.g. "5m").
type SessionCache interface {
	// SetLiveQuote stores the latest live snapshot with a short TTL.
	SetLiveQuote(ctx context.Context, q LiveQuote) error

	// GetLiveQuote returns the latest live snapshot, or nil on a miss.
	GetLiveQuote(ctx context.Context, symbol string) (*LiveQuote, error)

	// SetOpeningPrice memoizes the day's opening price (~24h TTL).
	SetOpeningPrice(ctx context.Context, symbol, day string, price float64) error

	// GetOpeningPrice returns the memoized opening price for the day.
	// ok is false on a miss or when the cached value is not a positive number.
	GetOpeningPrice(ctx context.Context, symbol, day string) (price float64, ok bool, err error)

	// PushBar prepends a finalized bar to the bounded history list,
	// trimming the oldest entries beyond the cap.
	PushBar(ctx context.Context, symbol, width string, bar Bar) error

	// RecentBars returns up to n bars, newest first.
	RecentBars(ctx context.Context, symbol, width string, n int) ([]Bar, error)

	// SetIndicatorSnapshot overwrites the latest indicator snapshot.
	SetIndicatorSnapshot(ctx context.Context, symbol, width string, snap IndicatorSnapshot) error

	// GetIndicatorSnapshot returns the latest snapshot, or nil if none.
	GetIndicatorSnapshot(ctx context.Context, symbol, width string) (*IndicatorSnapshot, error)

	// Close releases underlying resources.
	Close() error
}

// QuoteFetcher resolves the reference (opening) price for an instrument
// from the upstream REST source. Implementations return 0 on any failure.
type QuoteFetcher interface {
	OpeningPrice(ctx context.Context, symbol string) float64
}
