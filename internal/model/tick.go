package model

// Tick represents a single trade reported by the upstream feed.
// Prices are vendor floats; TSMillis is the trade time in epoch milliseconds.
type Tick struct {
	Symbol   string  `json:"s"`
	Price    float64 `json:"p"`
	TSMillis int64   `json:"t"`
}

// BucketStart returns the epoch-second start of the fixed-width bucket this
// tick falls into. width is the bucket duration in seconds.
func (t Tick) BucketStart(width int64) int64 {
	return t.TSMillis / 1000 / width * width
}
