package domain

import "time"

// Clock abstracts wall-clock reads so scoring, fusion, and decay are
// deterministic under test. Production code uses SystemClock.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock returns the real-time clock.
func SystemClock() Clock { return systemClock{} }
