package util

import "time"

// Timer measures per-sample pipeline latency. The zero value reports zero
// elapsed time, so records built without a timer stay well-formed.
type Timer struct {
	start time.Time
}

// StartTimer begins measuring from now.
func StartTimer() Timer {
	return Timer{start: time.Now()}
}

// Elapsed returns the duration since the timer started.
func (t Timer) Elapsed() time.Duration {
	if t.start.IsZero() {
		return 0
	}
	return time.Since(t.start)
}

// ElapsedMs returns elapsed whole milliseconds, the unit evaluation
// records persist.
func (t Timer) ElapsedMs() int64 {
	return t.Elapsed().Milliseconds()
}
