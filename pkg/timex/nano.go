package timex

import (
	"time"
	_ "unsafe"
)

//go:noescape
//go:linkname NanoTime runtime.nanotime
func NanoTime() int64

func SinceDur(start int64) time.Duration {
	return time.Duration(NanoTime() - start)
}

// StopWatch is a monotonic start mark taken from NanoTime.
type StopWatch int64

func NewStopWatch() StopWatch {
	return StopWatch(NanoTime())
}

// Stop returns the nanoseconds elapsed since the last mark and re-marks.
func (s *StopWatch) Stop() int64 {
	o := int64(*s)
	n := NanoTime()
	*s = StopWatch(n)
	return n - o
}

func (s *StopWatch) ElapsedDur() time.Duration {
	return time.Duration(NanoTime() - int64(*s))
}
