package limiter

import (
	"fmt"
	"time"
)

// Clock supplies the current logical timestamp in milliseconds.
// Successive calls are expected to be non-decreasing.
type Clock interface {
	NextTickInMs() int64
}

type ClockFunc func() int64

func (f ClockFunc) NextTickInMs() int64 {
	return f()
}

// SystemClock reports wall-clock milliseconds since the Unix epoch.
type SystemClock struct{}

func (SystemClock) NextTickInMs() int64 {
	return time.Now().UnixMilli()
}

// SequenceClock replays a pre-recorded list of timestamps, one per call.
// It panics once the sequence is exhausted.
type SequenceClock struct {
	times []int64
	idx   int
}

func NewSequenceClock(times ...int64) *SequenceClock {
	return &SequenceClock{times: append([]int64(nil), times...)}
}

func (c *SequenceClock) NextTickInMs() int64 {
	if c.idx >= len(c.times) {
		panic(fmt.Sprintf("sequence clock exhausted after %d ticks", len(c.times)))
	}
	t := c.times[c.idx]
	c.idx++
	return t
}

func (c *SequenceClock) Remaining() int {
	return len(c.times) - c.idx
}
