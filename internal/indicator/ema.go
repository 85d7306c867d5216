package indicator

// StreamingEMA computes an exponential moving average with
// alpha = smoothing / (1 + period). O(1) per update, no window storage.
//
// "No average yet" is tracked with an explicit flag rather than a zero
// sentinel, so a genuine zero price cannot reset the state.
type StreamingEMA struct {
	period      int
	alpha       float64
	current     float64
	initialized bool
}

// NewStreamingEMA creates an EMA for the given period and smoothing
// multiplier. A period <= 0 leaves alpha at 0: the average then holds
// whatever value it was seeded or bootstrapped with.
func NewStreamingEMA(period int, smoothing float64) *StreamingEMA {
	e := &StreamingEMA{period: period}
	if period > 0 {
		e.alpha = smoothing / float64(1+period)
	}
	return e
}

// Seed bootstraps the average directly from a single value. Unlike the
// windowed average, no history is needed.
func (e *StreamingEMA) Seed(v float64) {
	e.current = v
	e.initialized = true
}

// Update folds a value into the average and returns the new average.
// The first value observed becomes the average as-is.
func (e *StreamingEMA) Update(v float64) float64 {
	if !e.initialized {
		e.current = v
		e.initialized = true
		return e.current
	}
	e.current = v*e.alpha + e.current*(1-e.alpha)
	return e.current
}

// Value returns the current average. ok is false before any Seed or Update.
func (e *StreamingEMA) Value() (avg float64, ok bool) {
	return e.current, e.initialized
}

// Alpha returns the smoothing coefficient in use.
func (e *StreamingEMA) Alpha() float64 { return e.alpha }
