package hostproto

import (
	"io"
	"sync"
)

// Output writes protocol lines to the host. Each line is written whole under
// one lock, so lines from different workers never interleave.
type Output struct {
	mu   sync.Mutex
	w    io.Writer
	taps []func(string)
}

func NewOutput(w io.Writer) *Output { return &Output{w: w} }

// Tap registers fn to see every line after it has been written. Taps run
// under the output lock and must not block.
func (o *Output) Tap(fn func(string)) {
	if fn == nil {
		return
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.taps = append(o.taps, fn)
}

func (o *Output) Line(line string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	_, _ = io.WriteString(o.w, line+"\n")
	if f, ok := o.w.(interface{ Flush() error }); ok {
		_ = f.Flush()
	}
	for _, tap := range o.taps {
		tap(line)
	}
}
