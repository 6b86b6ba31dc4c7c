package application

import "time"

// Clock interface so time-dependent logic stays testable
type Clock interface {
	Now() time.Time
}

// SystemClock default implementation, wraps time.Now()
type SystemClock struct{}

func (SystemClock) Now() time.Time { return time.Now() }
