package util

import "time"

// Clock abstracts wall time so expiration sweeps and fill timestamps are
// testable with a fixed clock.
type Clock interface {
	After(d time.Duration) <-chan time.Time
	Now() time.Time
}

type RealClock struct{}

func (RealClock) After(d time.Duration) <-chan time.Time { return time.After(d) }
func (RealClock) Now() time.Time                         { return time.Now() }
