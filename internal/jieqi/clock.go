package jieqi

import "fmt"

// TimeControl is the per-side budget in milliseconds.
type TimeControl struct {
	RedMs      int64
	BlackMs    int64
	RedIncMs   int64
	BlackIncMs int64
}

// Enabled reports whether a main time is configured.
func (tc TimeControl) Enabled() bool { return tc.RedMs > 0 || tc.BlackMs > 0 }

// Clock tracks remaining time. The buffer only widens the timeout test; it
// is never credited to either side.
type Clock struct {
	tc       TimeControl
	bufferMs int64
}

func NewClock(tc TimeControl, bufferMs int64) *Clock {
	return &Clock{tc: tc, bufferMs: bufferMs}
}

// Update charges elapsed time to the mover and then credits its increment.
func (c *Clock) Update(mover Color, elapsedMs int64) {
	switch mover {
	case Red:
		c.tc.RedMs -= elapsedMs
		c.tc.RedMs += c.tc.RedIncMs
	case Black:
		c.tc.BlackMs -= elapsedMs
		c.tc.BlackMs += c.tc.BlackIncMs
	}
}

func (c *Clock) Remaining(side Color) int64 {
	if side == Black {
		return c.tc.BlackMs
	}
	return c.tc.RedMs
}

func (c *Clock) OutOfTime(side Color) bool {
	return c.Remaining(side) <= -c.bufferMs
}

// GoCommand is the search command carrying both clocks.
func (c *Clock) GoCommand() string {
	return fmt.Sprintf("go wtime %d btime %d winc %d binc %d",
		c.tc.RedMs, c.tc.BlackMs, c.tc.RedIncMs, c.tc.BlackIncMs)
}
