package arena

import (
	"context"
	"math/rand"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/jieqi-arena/internal/jieqi"
)

func newTestGame(t *testing.T, red, black Player, cfg GameConfig) *Game {
	t.Helper()
	if cfg.Rand == nil {
		cfg.Rand = rand.New(rand.NewSource(11))
	}
	g, err := NewGame(red, black, cfg)
	if err != nil {
		t.Fatalf("NewGame: %v", err)
	}
	return g
}

func TestResignFirstMoveLeavesBoard(t *testing.T) {
	red, black := newFake("red"), newFake("black")
	g := newTestGame(t, red, black, GameConfig{ID: 1})
	before := g.Board()

	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonResigned || v.Plies != 0 {
		t.Fatalf("verdict = %+v", v)
	}
	if diff := cmp.Diff(before, g.Board()); diff != "" {
		t.Fatalf("board changed (-before +after):\n%s", diff)
	}
	if len(g.History()) != 0 {
		t.Fatalf("history = %v", g.History())
	}
	if got := red.GoCommands(); len(got) != 1 || got[0] != FallbackGoCommand {
		t.Fatalf("go commands = %v", got)
	}
}

func TestNoMoveToken(t *testing.T) {
	g := newTestGame(t, newFake("red", NoMoveToken), newFake("black"), GameConfig{})
	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonNoMove {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestRepetitionDrawsOnThirdOccurrence(t *testing.T) {
	const fen = "r3k4/9/9/9/9/9/9/9/9/R2K5 w - 0 1"
	red := newFake("red", "a0a1", "a1a0", "a0a1", "a1a0", "a0a1")
	black := newFake("black", "a9a8", "a8a9", "a9a8", "a8a9", "a9a8")
	g := newTestGame(t, red, black, GameConfig{StartFEN: fen})

	v := g.Run(context.Background())
	if v.Reason != ReasonRepetition || !v.IsDraw() {
		t.Fatalf("verdict = %+v", v)
	}
	if v.Plies != 8 {
		t.Fatalf("repetition declared at ply %d, want 8", v.Plies)
	}
}

func TestMoveLimit(t *testing.T) {
	const fen = "r3k4/9/9/9/9/9/9/9/9/R2K5 w - 0 1"
	red := newFake("red", "a0a1", "a1a2")
	black := newFake("black", "a9a8", "a8a7")
	g := newTestGame(t, red, black, GameConfig{StartFEN: fen, MaxPlies: 3})
	v := g.Run(context.Background())
	if v.Reason != ReasonMoveLimit || v.Plies != 3 {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestIllegalMoveLoses(t *testing.T) {
	rec := &lineRecorder{}
	g := newTestGame(t, newFake("red", "a0a5"), newFake("black"), GameConfig{Primary: true, Host: rec.Line})
	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonIllegal || v.Detail != "a0a5" {
		t.Fatalf("verdict = %+v", v)
	}
	lines := rec.Lines()
	if lines[len(lines)-1] != "info result 0-1" {
		t.Fatalf("last host line = %q", lines[len(lines)-1])
	}
	if !strings.Contains(lines[0], "red made an illegal move (a0a5). black wins.") {
		t.Fatalf("info line = %q", lines[0])
	}
}

func TestClockTimeout(t *testing.T) {
	red := newFake("red", "a3a4")
	red.delay = 30 * time.Millisecond
	g := newTestGame(t, red, newFake("black"), GameConfig{
		TimeControl: jieqi.TimeControl{RedMs: 10, BlackMs: 10},
	})
	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonTimeout {
		t.Fatalf("verdict = %+v", v)
	}
	if got := red.GoCommands()[0]; got != "go wtime 10 btime 10 winc 0 binc 0" {
		t.Fatalf("go command = %q", got)
	}
	if len(g.History()) != 0 {
		t.Fatalf("timed-out move must not be applied")
	}
}

func TestMoveTimeoutResigns(t *testing.T) {
	red := newFake("red")
	red.block = true
	g := newTestGame(t, red, newFake("black"), GameConfig{MoveTimeout: 20 * time.Millisecond})
	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonTimeout {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestCancelledGameAborts(t *testing.T) {
	red := newFake("red")
	red.block = true
	g := newTestGame(t, red, newFake("black"), GameConfig{})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()
	v := g.Run(ctx)
	if v.Reason != ReasonAborted || !v.IsDraw() {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestFlipAndHiddenCaptureHistories(t *testing.T) {
	red := newFake("red", "b2e2")
	black := newFake("black", "h7h0")
	rec := &lineRecorder{}
	g := newTestGame(t, red, black, GameConfig{Primary: true, Host: rec.Line})

	v := g.Run(context.Background())
	if v.Winner != jieqi.Black || v.Reason != ReasonResigned || v.Plies != 2 {
		t.Fatalf("verdict = %+v", v)
	}

	hist := g.History()
	if len(hist) != 2 || len(hist[0]) != 5 || len(hist[1]) != 6 {
		t.Fatalf("history = %v", hist)
	}
	if jieqi.ColorOfChar(hist[0][4]) != jieqi.Red {
		t.Fatalf("red flip suffix %q", hist[0])
	}
	if jieqi.ColorOfChar(hist[1][4]) != jieqi.Black || jieqi.ColorOfChar(hist[1][5]) != jieqi.Red {
		t.Fatalf("black flip+capture suffix %q", hist[1])
	}

	// Red never learns which of its hidden pieces was taken.
	if diff := cmp.Diff([]string{hist[0], hist[1][:5]}, g.View(jieqi.Red)); diff != "" {
		t.Fatalf("red view (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(hist, g.View(jieqi.Black)); diff != "" {
		t.Fatalf("black view (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([][]string{nil, {hist[0], hist[1][:5]}}, red.Positions()); diff != "" {
		t.Fatalf("red engine positions (-want +got):\n%s", diff)
	}

	if got := g.pos.Pool.Remaining(jieqi.Red); got != 13 {
		t.Fatalf("red pool = %d", got)
	}
	if got := g.pos.Pool.Remaining(jieqi.Black); got != 14 {
		t.Fatalf("black pool = %d", got)
	}

	moves := g.Moves()
	if len(moves) != 2 || moves[1].Data != hist[1] || moves[1].EngineScore != 25 || moves[1].FEN == "" {
		t.Fatalf("transcript moves = %+v", moves)
	}
	if lines := rec.Lines(); !strings.HasPrefix(lines[0], "info move "+hist[0]+" time ") {
		t.Fatalf("first host line = %q", lines[0])
	}
}

func TestPoolExhaustionFallsBackToPawn(t *testing.T) {
	var fallbacks atomic.Int64
	g := newTestGame(t, newFake("red", "a3a4"), newFake("black"), GameConfig{
		StartFEN:      "4k4/9/9/9/9/9/X8/9/9/3K5 w - 0 1",
		PoolFallbacks: &fallbacks,
	})
	g.Run(context.Background())

	if got := g.History(); len(got) != 1 || got[0] != "a3a4P" {
		t.Fatalf("history = %v", got)
	}
	if fallbacks.Load() != 1 {
		t.Fatalf("fallback counter = %d", fallbacks.Load())
	}
	b := g.Board()
	if got := b.At(jieqi.Square{File: 0, Rank: 4}); got != jieqi.NewPiece(jieqi.Pawn, jieqi.Red) {
		t.Fatalf("a4 = %v", got)
	}
}

func TestCheckmateEndsGame(t *testing.T) {
	g := newTestGame(t, newFake("red", "a1a8"), newFake("black"), GameConfig{
		StartFEN: "1R2k4/9/9/9/9/9/9/9/R8/3K5 w - 0 1",
	})
	v := g.Run(context.Background())
	if v.Winner != jieqi.Red || v.Reason != ReasonCheckmate || v.Plies != 1 {
		t.Fatalf("verdict = %+v", v)
	}
}

func TestNewGameRejectsBadFEN(t *testing.T) {
	if _, err := NewGame(newFake("r"), newFake("b"), GameConfig{StartFEN: "garbage"}); err == nil {
		t.Fatalf("expected error")
	}
	if _, err := NewGame(nil, newFake("b"), GameConfig{}); err != ErrNoPlayer {
		t.Fatalf("err = %v", err)
	}
}
