package service

import "time"

// Clock supplies wall-clock time to window decisions. Injectable so tests can
// pin "now"; the edit window is always judged at the moment of the call,
// never from a cached snapshot.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now().UTC() }

// SystemClock returns the production clock.
func SystemClock() Clock { return systemClock{} }

// ClockFunc adapts a plain function to the Clock interface.
type ClockFunc func() time.Time

// Now implements Clock.
func (f ClockFunc) Now() time.Time { return f() }
