package feed

import "time"

const (
	initialBackoff = 1 * time.Second
	maxBackoff     = 30 * time.Second
)

// backoff produces the reconnect wait sequence 1s, 2s, 4s, ... capped at 30s.
// Reset is called after every successful (re)subscription.
type backoff struct {
	next time.Duration
}

func newBackoff() *backoff {
	return &backoff{next: initialBackoff}
}

// Next returns the wait before the upcoming retry and advances the sequence.
func (b *backoff) Next() time.Duration {
	d := b.next
	b.next *= 2
	if b.next > maxBackoff {
		b.next = maxBackoff
	}
	return d
}

// Reset restarts the sequence at the initial interval.
func (b *backoff) Reset() {
	b.next = initialBackoff
}
