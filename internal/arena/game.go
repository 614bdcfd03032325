package arena

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"sync/atomic"
	"time"
	"unicode"

	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/internal/jieqi"
	"github.com/park285/jieqi-arena/internal/jieqi/uci"
	"github.com/park285/jieqi-arena/internal/msgcat"
	"github.com/park285/jieqi-arena/pkg/matchdto"
)

const (
	DefaultMaxPlies   = 300
	FallbackGoCommand = "go movetime 2000"
	NoMoveToken       = "(none)"
)

// Player is the engine side of a game. *uci.Session implements it.
type Player interface {
	Name() string
	SetPosition(fen string, moves []string) error
	RequestMove(ctx context.Context, goCmd string, primary bool) string
	LastScore() (int, bool)
}

type GameConfig struct {
	ID       int
	StartFEN string
	// TimeControl with zero main times means fixed-time search.
	TimeControl jieqi.TimeControl
	BufferMs    int64
	Primary     bool
	MaxPlies    int
	// MoveTimeout bounds a single move request in wall-clock time; zero
	// waits as long as the engine keeps running.
	MoveTimeout time.Duration
	Rand        *rand.Rand
	Host        func(line string)
	Messages    *msgcat.Catalog
	Log         *zap.Logger
	// PoolFallbacks counts flips that had to substitute a pawn.
	PoolFallbacks *atomic.Int64
}

// Game plays one game between two players. It is not safe for concurrent
// use; the scheduler gives each game its own goroutine.
type Game struct {
	cfg       GameConfig
	red       Player
	black     Player
	pos       *jieqi.Position
	validator jieqi.Validator
	clock     *jieqi.Clock
	log       *zap.Logger
	msgs      *msgcat.Catalog

	history []string
	views   map[jieqi.Color][]string
	seen    map[string]int
	plies   int
	moves   []matchdto.MoveRecord
}

var ErrNoPlayer = errors.New("game needs two players")

// NewGame parses the start position and seeds the repetition table with it.
func NewGame(red, black Player, cfg GameConfig) (*Game, error) {
	if red == nil || black == nil {
		return nil, ErrNoPlayer
	}
	if cfg.StartFEN == "" {
		cfg.StartFEN = jieqi.DefaultFEN
	}
	if cfg.MaxPlies <= 0 {
		cfg.MaxPlies = DefaultMaxPlies
	}
	if cfg.Log == nil {
		cfg.Log = zap.NewNop()
	}
	if cfg.Messages == nil {
		cfg.Messages = msgcat.Default()
	}

	pos, err := jieqi.ParseFEN(cfg.StartFEN, cfg.Rand)
	if err != nil {
		return nil, fmt.Errorf("game %d: %w", cfg.ID, err)
	}

	g := &Game{
		cfg:   cfg,
		red:   red,
		black: black,
		pos:   pos,
		log:   cfg.Log.With(zap.Int("game", cfg.ID)),
		msgs:  cfg.Messages,
		views: map[jieqi.Color][]string{jieqi.Red: nil, jieqi.Black: nil},
		seen:  make(map[string]int),
	}
	for _, w := range pos.Warnings {
		g.log.Warn("pool_parse_warning", zap.String("detail", w))
	}
	if cfg.TimeControl.Enabled() {
		g.clock = jieqi.NewClock(cfg.TimeControl, cfg.BufferMs)
	}
	g.seen[g.repetitionKey()]++
	return g, nil
}

// Run plays until a verdict is reached or ctx is cancelled. Cancellation is
// reported as an aborted draw.
func (g *Game) Run(ctx context.Context) Verdict {
	for {
		if ctx.Err() != nil {
			return draw(ReasonAborted, g.plies, "match cancelled")
		}

		side := g.pos.Turn
		mover, opponent := g.player(side), g.player(side.Opponent())

		if err := mover.SetPosition(g.cfg.StartFEN, g.views[side]); err != nil {
			g.log.Warn("engine_write_failed", zap.String("engine", mover.Name()), zap.Error(err))
		}

		goCmd := FallbackGoCommand
		if g.clock != nil {
			goCmd = g.clock.GoCommand()
		}

		moveCtx, cancel := ctx, context.CancelFunc(func() {})
		if g.cfg.MoveTimeout > 0 {
			moveCtx, cancel = context.WithTimeout(ctx, g.cfg.MoveTimeout)
		}
		start := time.Now()
		token := mover.RequestMove(moveCtx, goCmd, g.cfg.Primary)
		elapsed := time.Since(start).Milliseconds()
		timedOut := moveCtx.Err() != nil
		cancel()

		if ctx.Err() != nil {
			return draw(ReasonAborted, g.plies, "match cancelled")
		}
		if timedOut && token == uci.Resign {
			return g.finishWin(side.Opponent(), ReasonTimeout, "verdict.timeout",
				map[string]any{"Loser": mover.Name(), "Winner": opponent.Name()}, "move wait exceeded")
		}

		switch token {
		case uci.Resign, "":
			return g.finishWin(side.Opponent(), ReasonResigned, "verdict.resigned",
				map[string]any{"Loser": mover.Name(), "Winner": opponent.Name()}, token)
		case NoMoveToken:
			return g.finishWin(side.Opponent(), ReasonNoMove, "verdict.no_move",
				map[string]any{"Loser": mover.Name(), "Winner": opponent.Name()}, token)
		}

		if !g.validator.Legal(token, side, &g.pos.Board) {
			return g.finishWin(side.Opponent(), ReasonIllegal, "verdict.illegal",
				map[string]any{"Loser": mover.Name(), "Move": token, "Winner": opponent.Name()}, token)
		}

		if g.clock != nil {
			g.clock.Update(side, elapsed)
			if g.clock.OutOfTime(side) {
				return g.finishWin(side.Opponent(), ReasonTimeout, "verdict.timeout",
					map[string]any{"Loser": mover.Name(), "Winner": opponent.Name()},
					fmt.Sprintf("remaining %dms", g.clock.Remaining(side)))
			}
		}

		played := g.applyMove(token, side)
		if g.cfg.Primary {
			g.host(fmt.Sprintf("info move %s time %d", played, elapsed))
		}
		g.record(played, side, mover, elapsed)

		g.pos.Turn = side.Opponent()
		if side == jieqi.Black {
			g.pos.Fullmove++
		}
		g.plies++
		next := g.pos.Turn

		if g.validator.Terminal(next, &g.pos.Board) {
			if g.validator.InCheck(next, &g.pos.Board) {
				return g.finishWin(side, ReasonCheckmate, "verdict.checkmate",
					map[string]any{"Side": sideName(next), "Winner": mover.Name()}, "")
			}
			return g.finishDraw(ReasonStalemate, "verdict.stalemate", map[string]any{"Side": sideName(next)})
		}

		key := g.repetitionKey()
		g.seen[key]++
		if g.seen[key] >= 3 {
			return g.finishDraw(ReasonRepetition, "verdict.repetition", nil)
		}

		if g.plies >= g.cfg.MaxPlies {
			return g.finishDraw(ReasonMoveLimit, "verdict.move_limit", nil)
		}
	}
}

// applyMove updates the board and returns the move with any flip suffixes.
// A face-down mover draws its identity from the mover's pool; a face-down
// victim draws one from the opponent's pool.
func (g *Game) applyMove(token string, side jieqi.Color) string {
	from, to, _ := jieqi.ParseMove(token)
	played := token[:4]
	board := &g.pos.Board

	mover := board.At(from)
	victim := board.At(to)

	if mover.Hidden {
		p, ok := g.pos.Pool.Draw(side)
		if !ok {
			p = jieqi.NewPiece(jieqi.Pawn, side)
			if g.cfg.PoolFallbacks != nil {
				g.cfg.PoolFallbacks.Add(1)
			}
			g.log.Warn("pool_exhausted", zap.Stringer("side", side), zap.String("move", token))
			g.info(g.msgs.Text("pool.exhausted", map[string]any{"Side": sideName(side)}))
		}
		played += string(p.Char())
		mover = p
	}
	if victim.Hidden {
		if p, ok := g.pos.Pool.Draw(side.Opponent()); ok {
			played += string(p.Char())
		} else {
			g.log.Warn("pool_exhausted_on_capture", zap.Stringer("side", side.Opponent()), zap.String("move", token))
			g.info(g.msgs.Text("pool.capture_empty", nil))
		}
	}

	board.Set(to, mover)
	board.Set(from, jieqi.Empty)
	return played
}

// record appends to the ground-truth history and both perspective views.
// A trailing identity of the other side's colour is the hidden piece the
// mover just captured; its owner never learns what it was.
func (g *Game) record(played string, side jieqi.Color, mover Player, elapsed int64) {
	g.history = append(g.history, played)

	redView, blackView := played, played
	if len(played) > 4 {
		last := rune(played[len(played)-1])
		switch {
		case side == jieqi.Black && unicode.IsUpper(last):
			redView = played[:len(played)-1]
		case side == jieqi.Red && unicode.IsLower(last):
			blackView = played[:len(played)-1]
		}
	}
	g.views[jieqi.Red] = append(g.views[jieqi.Red], redView)
	g.views[jieqi.Black] = append(g.views[jieqi.Black], blackView)

	rec := matchdto.MoveRecord{Type: "move", Data: played, FEN: g.FEN(), EngineTime: elapsed}
	if score, ok := mover.LastScore(); ok {
		rec.EngineScore = score
	}
	g.moves = append(g.moves, rec)
}

func (g *Game) finishWin(winner jieqi.Color, reason Reason, key string, data map[string]any, detail string) Verdict {
	g.info(g.msgs.Text(key, data))
	v := win(winner, reason, g.plies, detail)
	g.announce(v)
	return v
}

func (g *Game) finishDraw(reason Reason, key string, data map[string]any) Verdict {
	g.info(g.msgs.Text(key, data))
	v := draw(reason, g.plies, "")
	g.announce(v)
	return v
}

func (g *Game) announce(v Verdict) {
	g.log.Info("game_over",
		zap.String("result", v.Result()),
		zap.String("reason", string(v.Reason)),
		zap.Int("plies", v.Plies))
	if g.cfg.Primary {
		g.host("info result " + v.Result())
	}
}

func (g *Game) player(c jieqi.Color) Player {
	if c == jieqi.Black {
		return g.black
	}
	return g.red
}

func (g *Game) repetitionKey() string {
	side := "w"
	if g.pos.Turn == jieqi.Black {
		side = "b"
	}
	return g.pos.Board.Layout() + " " + side
}

func (g *Game) host(line string) {
	if g.cfg.Host != nil {
		g.cfg.Host(line)
	}
}

func (g *Game) info(text string) { g.host("info string " + text) }

// FEN is the current position including the remaining pool.
func (g *Game) FEN() string { return g.pos.FEN() }

func (g *Game) InitialFEN() string { return g.cfg.StartFEN }

// History returns the ground-truth move list.
func (g *Game) History() []string { return append([]string(nil), g.history...) }

// View returns the move list as side c has seen it.
func (g *Game) View(c jieqi.Color) []string { return append([]string(nil), g.views[c]...) }

func (g *Game) Moves() []matchdto.MoveRecord { return append([]matchdto.MoveRecord(nil), g.moves...) }

func (g *Game) Board() jieqi.Board { return g.pos.Board }

func sideName(c jieqi.Color) string {
	if c == jieqi.Black {
		return "Black"
	}
	return "Red"
}
