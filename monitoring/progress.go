package monitoring

import (
	"encoding/json"
	"sync/atomic"
	"time"
)

// A ProgressBar tracks work done by many goroutines at once. The counters
// are updated without locking, so workers can report every access.
type ProgressBar struct {
	ID        string
	Name      string
	StartTime time.Time
	Total     uint64

	finished   atomic.Uint64
	inProgress atomic.Int64
}

// A ProgressSnapshot is the state of a ProgressBar at one moment.
type ProgressSnapshot struct {
	ID         string    `json:"id"`
	Name       string    `json:"name"`
	StartTime  time.Time `json:"start_time"`
	Total      uint64    `json:"total"`
	Finished   uint64    `json:"finished"`
	InProgress uint64    `json:"in_progress"`
	Rate       float64   `json:"rate"`
	Remaining  string    `json:"remaining"`
}

// IncrementInProgress adds the number of in-progress element.
func (b *ProgressBar) IncrementInProgress(amount uint64) {
	b.inProgress.Add(int64(amount))
}

// IncrementFinished add a certain amount to finished element.
func (b *ProgressBar) IncrementFinished(amount uint64) {
	b.finished.Add(amount)
}

// MoveInProgressToFinished reduces the number of in progress item by a certain
// amount and increase the finished item by the same amount.
func (b *ProgressBar) MoveInProgressToFinished(amount uint64) {
	b.inProgress.Add(-int64(amount))
	b.finished.Add(amount)
}

// Snapshot reads the counters and estimates the time left from the average
// rate since the bar was created.
func (b *ProgressBar) Snapshot(now time.Time) ProgressSnapshot {
	s := ProgressSnapshot{
		ID:         b.ID,
		Name:       b.Name,
		StartTime:  b.StartTime,
		Total:      b.Total,
		Finished:   b.finished.Load(),
		InProgress: uint64(max(b.inProgress.Load(), 0)),
	}

	elapsed := now.Sub(b.StartTime).Seconds()
	if elapsed <= 0 || s.Finished == 0 {
		return s
	}

	s.Rate = float64(s.Finished) / elapsed

	if s.Finished < s.Total {
		left := float64(s.Total-s.Finished) / s.Rate
		s.Remaining = time.Duration(left * float64(time.Second)).
			Round(time.Second).String()
	}

	return s
}

// MarshalJSON encodes the current snapshot.
func (b *ProgressBar) MarshalJSON() ([]byte, error) {
	return json.Marshal(b.Snapshot(time.Now()))
}
