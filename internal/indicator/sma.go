// Package indicator provides the incremental per-session estimators:
// a fixed-window simple moving average and a smoothing-factor exponential
// moving average. No I/O, no concurrency — one instance per session.
package indicator

// RollingSMA computes the mean over the most recent N values.
// Uses a preallocated circular buffer and a running sum so each
// Accumulate is O(1).
type RollingSMA struct {
	window int
	buf    []float64 // circular buffer, len == window when window > 0
	idx    int       // next write position
	count  int       // values currently held (<= window)
	sum    float64
}

// NewRollingSMA creates a windowed average over the last window values.
// A window <= 0 yields an unbounded degenerate average (mirrors the
// original engine's behavior for misconfigured windows).
func NewRollingSMA(window int) *RollingSMA {
	s := &RollingSMA{window: window}
	if window > 0 {
		s.buf = make([]float64, window)
	}
	return s
}

// Accumulate pushes a value into the window, evicting the oldest value when
// at capacity, and returns the mean of the values currently held.
// ok is false only when no value has ever been accumulated.
func (s *RollingSMA) Accumulate(v float64) (mean float64, ok bool) {
	if s.window <= 0 {
		// Degenerate: no eviction, plain running mean.
		s.sum += v
		s.count++
		return s.sum / float64(s.count), true
	}

	if s.count == s.window {
		s.sum -= s.buf[s.idx]
	} else {
		s.count++
	}
	s.buf[s.idx] = v
	s.sum += v
	s.idx = (s.idx + 1) % s.window

	return s.sum / float64(s.count), true
}

// Mean returns the current mean without mutating state.
// ok is false when the window is empty.
func (s *RollingSMA) Mean() (mean float64, ok bool) {
	if s.count == 0 {
		return 0, false
	}
	return s.sum / float64(s.count), true
}

// Seed warm-starts the window from cached bar history. closes is ordered
// newest-first (the cache's bar list order); the last window entries are
// replayed oldest-to-newest so the state matches continuous operation.
func (s *RollingSMA) Seed(closes []float64) {
	n := len(closes)
	if s.window > 0 && n > s.window {
		n = s.window
	}
	for i := n - 1; i >= 0; i-- {
		s.Accumulate(closes[i])
	}
}
