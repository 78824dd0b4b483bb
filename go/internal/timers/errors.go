package timers

import "errors"

// ErrTimeOutOfRange is returned when a stopwatch reading falls outside the
// accepted 0..999999 second range.
var ErrTimeOutOfRange = errors.New("timer value out of range")
