package arena

import (
	"context"
	"sync"
	"time"

	"github.com/park285/jieqi-arena/internal/jieqi/uci"
)

// fakeEngine plays a fixed list of moves and resigns when it runs out.
type fakeEngine struct {
	name      string
	moves     []string
	delay     time.Duration
	block     bool
	panicMove bool
	failStart bool

	mu        sync.Mutex
	positions [][]string
	goCmds    []string
	started   bool
	stopped   int
	stopCh    chan struct{}
}

func newFake(name string, moves ...string) *fakeEngine {
	return &fakeEngine{name: name, moves: moves, stopCh: make(chan struct{})}
}

func (f *fakeEngine) Name() string { return f.name }

func (f *fakeEngine) Start(string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failStart {
		return false
	}
	f.started = true
	return true
}

func (f *fakeEngine) ApplyOptions(string) {}

func (f *fakeEngine) Stop() {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stopped == 0 {
		close(f.stopCh)
	}
	f.stopped++
}

func (f *fakeEngine) SetPosition(_ string, moves []string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.positions = append(f.positions, append([]string(nil), moves...))
	return nil
}

func (f *fakeEngine) RequestMove(ctx context.Context, goCmd string, _ bool) string {
	f.mu.Lock()
	f.goCmds = append(f.goCmds, goCmd)
	f.mu.Unlock()

	if f.panicMove {
		panic("engine exploded")
	}
	if f.block {
		select {
		case <-ctx.Done():
		case <-f.stopCh:
		}
		return uci.Resign
	}
	if f.delay > 0 {
		time.Sleep(f.delay)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.moves) == 0 {
		return uci.Resign
	}
	m := f.moves[0]
	f.moves = f.moves[1:]
	return m
}

func (f *fakeEngine) LastScore() (int, bool) { return 25, true }

func (f *fakeEngine) Positions() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([][]string(nil), f.positions...)
}

func (f *fakeEngine) GoCommands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.goCmds...)
}

func (f *fakeEngine) Stopped() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.stopped
}

// lineRecorder collects host lines from any goroutine.
type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (r *lineRecorder) Line(l string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lines = append(r.lines, l)
}

func (r *lineRecorder) Lines() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]string(nil), r.lines...)
}
