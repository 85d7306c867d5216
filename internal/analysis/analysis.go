// Package analysis computes windowed aggregates over historical series.
package analysis

import (
	"errors"
	"time"

	"stockstream/internal/history"
)

var ErrEmptyWindow = errors.New("analysis: no observations in window")

// Averages holds per-field means over a trailing window.
type Averages struct {
	Close  float64
	Volume float64
	Count  int
}

// WindowedAverages computes the mean close and volume over the trailing
// window ending at the newest observation. The window is anchored to the
// data, not the wall clock, so stale series still produce a result.
func WindowedAverages(points []history.Point, window time.Duration) (Averages, error) {
	if len(points) == 0 {
		return Averages{}, ErrEmptyWindow
	}

	end := points[0].TS
	for _, p := range points[1:] {
		if p.TS.After(end) {
			end = p.TS
		}
	}
	start := end.Add(-window)

	var avg Averages
	for _, p := range points {
		if p.TS.Before(start) || p.TS.After(end) {
			continue
		}
		avg.Close += p.Close
		avg.Volume += p.Volume
		avg.Count++
	}
	if avg.Count == 0 {
		return Averages{}, ErrEmptyWindow
	}
	avg.Close /= float64(avg.Count)
	avg.Volume /= float64(avg.Count)
	return avg, nil
}

// DailyAverages covers the trailing 24 hours.
func DailyAverages(points []history.Point) (Averages, error) {
	return WindowedAverages(points, 24*time.Hour)
}

// MonthlyAverages covers the trailing 30 days.
func MonthlyAverages(points []history.Point) (Averages, error) {
	return WindowedAverages(points, 30*24*time.Hour)
}
