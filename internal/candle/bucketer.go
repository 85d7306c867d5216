// Package candle buckets a tick stream into fixed-duration, epoch-aligned
// bars. One Bucketer serves one session and one instrument; it is driven
// synchronously by the session's tick-processing path and holds no locks.
package candle

import "stockstream/internal/model"

// Bucketer converts ticks into finalized bars. A bucket with zero ticks
// never exists — gaps in trading produce gaps in bar history.
type Bucketer struct {
	width int64 // bucket duration in seconds

	open      bool
	bucket    int64   // start of the open bucket (epoch seconds)
	lastPrice float64 // provisional close, last price wins
}

// DefaultWidth is the reference deployment's bucket duration in seconds.
const DefaultWidth = 300

// New creates a Bucketer with the given bucket width in seconds.
// Widths <= 0 fall back to DefaultWidth.
func New(width int64) *Bucketer {
	if width <= 0 {
		width = DefaultWidth
	}
	return &Bucketer{width: width}
}

// Width returns the bucket duration in seconds.
func (b *Bucketer) Width() int64 { return b.width }

// Apply incorporates one tick. When the tick crosses into a new bucket, the
// previously open bucket is finalized and returned; otherwise returns nil.
// Bars are emitted at most once per bucket, in non-decreasing ts order.
func (b *Bucketer) Apply(tick model.Tick) *model.Bar {
	key := tick.BucketStart(b.width)

	if !b.open {
		b.open = true
		b.bucket = key
		b.lastPrice = tick.Price
		return nil
	}

	if key == b.bucket {
		b.lastPrice = tick.Price
		return nil
	}

	done := &model.Bar{TS: b.bucket, Close: b.lastPrice}
	b.bucket = key
	b.lastPrice = tick.Price
	return done
}

// Forming returns the open bucket's start and provisional close.
// ok is false when no tick has been seen yet.
func (b *Bucketer) Forming() (ts int64, close float64, ok bool) {
	if !b.open {
		return 0, 0, false
	}
	return b.bucket, b.lastPrice, true
}
