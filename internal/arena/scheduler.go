package arena

import (
	"context"
	"fmt"
	"math/rand"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/internal/jieqi"
	"github.com/park285/jieqi-arena/internal/jieqi/uci"
	"github.com/park285/jieqi-arena/internal/msgcat"
	"github.com/park285/jieqi-arena/internal/openingbook"
	"github.com/park285/jieqi-arena/pkg/matchdto"
)

// EngineSpec is how one engine is launched and configured.
type EngineSpec struct {
	Command string
	Options string
}

// Name is the basename of the engine executable, used in reports.
func (e EngineSpec) Name() string {
	fields := strings.Fields(e.Command)
	if len(fields) == 0 {
		return ""
	}
	cmd := fields[0]
	if i := strings.LastIndexAny(cmd, `/\`); i >= 0 {
		return cmd[i+1:]
	}
	return filepath.Base(cmd)
}

type Settings struct {
	Engine1     EngineSpec
	Engine2     EngineSpec
	Rounds      int
	Concurrency int
	TimeControl jieqi.TimeControl
	BufferMs    int64
	MoveTimeout time.Duration
	MaxPlies    int
	// BookFile lists one start FEN per line; empty means DefaultFEN.
	BookFile string
	// Trace logs engine traffic at debug level.
	Trace bool
}

// Task is one queued game. It is never shared between workers.
type Task struct {
	ID       int
	Red      EngineSpec
	Black    EngineSpec
	StartFEN string
}

// Stats are the match totals seen from engine 1.
type Stats struct {
	Score1        float64
	Score2        float64
	Wins          int
	Losses        int
	Draws         int
	Completed     int
	Total         int
	PoolFallbacks int64
	Stopped       bool
}

// Engine is a Player with a process lifecycle.
type Engine interface {
	Player
	Start(command string) bool
	ApplyOptions(blob string)
	Stop()
}

// EngineFactory builds an unstarted engine for one side of a game.
type EngineFactory func(name string, gameID int) Engine

// Observer receives results as they are produced. Implementations must be
// safe for concurrent use; every worker reports through them.
type Observer interface {
	GameFinished(ctx context.Context, rec matchdto.GameRecord, primary bool)
	StandingsUpdated(ctx context.Context, st matchdto.Standings)
	MatchFinished(ctx context.Context, sum matchdto.MatchSummary)
}

type Option func(*Scheduler)

func WithHost(host func(line string)) Option { return func(s *Scheduler) { s.host = host } }

func WithLogger(log *zap.Logger) Option {
	return func(s *Scheduler) {
		if log != nil {
			s.log = log
		}
	}
}

func WithMessages(c *msgcat.Catalog) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.msgs = c
		}
	}
}

func WithEngineFactory(f EngineFactory) Option { return func(s *Scheduler) { s.factory = f } }

func WithObserver(o Observer) Option {
	return func(s *Scheduler) {
		if o != nil {
			s.observers = append(s.observers, o)
		}
	}
}

func WithRand(r *rand.Rand) Option { return func(s *Scheduler) { s.rng = r } }

func WithMatchID(id string) Option { return func(s *Scheduler) { s.matchID = id } }

// Scheduler runs one match. Build a new one for every match.
type Scheduler struct {
	settings  Settings
	host      func(string)
	log       *zap.Logger
	msgs      *msgcat.Catalog
	factory   EngineFactory
	observers []Observer
	matchID   string

	rngMu sync.Mutex
	rng   *rand.Rand

	queueMu sync.Mutex
	queue   []Task

	statsMu sync.Mutex
	stats   Stats

	enginesMu sync.Mutex
	engines   map[Engine]struct{}

	cancelled atomic.Bool
	cancelMu  sync.Mutex
	cancelCtx context.CancelFunc

	fallbacks atomic.Int64

	publishMu sync.Mutex
	published int
}

func NewScheduler(settings Settings, opts ...Option) *Scheduler {
	if settings.Rounds <= 0 {
		settings.Rounds = 1
	}
	if settings.Concurrency <= 0 {
		settings.Concurrency = 1
	}
	s := &Scheduler{
		settings: settings,
		log:      zap.NewNop(),
		msgs:     msgcat.Default(),
		engines:  make(map[Engine]struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.rng == nil {
		s.rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	if s.matchID == "" {
		s.matchID = uuid.NewString()
	}
	if s.factory == nil {
		s.factory = s.processEngine
	}
	s.log = s.log.With(zap.String("match", s.matchID))
	return s
}

func (s *Scheduler) processEngine(name string, gameID int) Engine {
	log := s.log.With(zap.Int("game", gameID))
	return uci.NewSession(name, uci.NewProcessChannel(log),
		uci.WithLogger(log),
		uci.WithTrace(s.settings.Trace),
		uci.WithForwarder(s.send))
}

func (s *Scheduler) MatchID() string { return s.matchID }

// Run plays the whole match and blocks until every worker has returned.
func (s *Scheduler) Run(ctx context.Context) Stats {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	s.cancelMu.Lock()
	s.cancelCtx = cancel
	s.cancelMu.Unlock()
	if s.cancelled.Load() {
		cancel()
	}

	started := time.Now()
	total := s.settings.Rounds * 2
	s.statsMu.Lock()
	s.stats = Stats{Total: total}
	s.statsMu.Unlock()

	s.populate(s.loadBook())

	s.send(fmt.Sprintf("info game 0/%d", total))
	s.send("info wld 0-0-0")
	s.info("match.started", map[string]any{"Workers": s.settings.Concurrency})
	s.log.Info("match_start",
		zap.String("engine1", s.settings.Engine1.Name()),
		zap.String("engine2", s.settings.Engine2.Name()),
		zap.Int("games", total),
		zap.Int("workers", s.settings.Concurrency))

	var wg sync.WaitGroup
	for i := 0; i < s.settings.Concurrency; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			s.worker(ctx, id)
		}(i)
	}
	wg.Wait()

	stats := s.Stats()
	stats.Stopped = s.cancelled.Load()
	s.statsMu.Lock()
	s.stats.Stopped = stats.Stopped
	s.statsMu.Unlock()

	if stats.Stopped {
		s.info("match.stopped", nil)
	} else {
		s.info("match.finished", nil)
	}
	s.send(fmt.Sprintf("info wld %d-%d-%d", stats.Wins, stats.Losses, stats.Draws))
	s.log.Info("match_end",
		zap.Int("completed", stats.Completed),
		zap.Bool("stopped", stats.Stopped),
		zap.Int64("pool_fallbacks", stats.PoolFallbacks))

	sum := matchdto.MatchSummary{
		Standings:     s.standings(stats),
		StartedAt:     started,
		FinishedAt:    time.Now(),
		PoolFallbacks: stats.PoolFallbacks,
	}
	obsCtx := context.WithoutCancel(ctx)
	for _, o := range s.observers {
		o.MatchFinished(obsCtx, sum)
	}
	return stats
}

// Cancel stops the match: pending games are dropped and running engines are
// killed. Safe to call repeatedly and before Run.
func (s *Scheduler) Cancel() {
	if s.cancelled.Swap(true) {
		return
	}
	s.cancelMu.Lock()
	if s.cancelCtx != nil {
		s.cancelCtx()
	}
	s.cancelMu.Unlock()

	s.queueMu.Lock()
	s.queue = nil
	s.queueMu.Unlock()

	s.stopAllEngines()
	s.log.Info("match_cancelled")
}

func (s *Scheduler) Cancelled() bool { return s.cancelled.Load() }

// Stats returns a snapshot of the running totals.
func (s *Scheduler) Stats() Stats {
	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	st := s.stats
	st.PoolFallbacks = s.fallbacks.Load()
	return st
}

func (s *Scheduler) loadBook() []string {
	path := strings.TrimSpace(s.settings.BookFile)
	if path == "" {
		return nil
	}
	book, err := openingbook.Load(path)
	if err != nil {
		s.log.Warn("book_load_failed", zap.String("path", path), zap.Error(err))
		s.info("match.book_missing", map[string]any{"Path": path})
		return nil
	}
	for _, skipped := range book.Skipped {
		s.info("match.book_invalid", map[string]any{"Line": skipped.Line, "Error": skipped.Err.Error()})
	}
	if book.Len() == 0 {
		s.info("match.book_empty", nil)
		return nil
	}
	s.info("match.book_loaded", map[string]any{"Count": book.Len()})
	s.info("match.shuffling", nil)
	s.rngMu.Lock()
	book.Shuffle(s.rng)
	s.rngMu.Unlock()
	return book.Positions()
}

// populate queues two games per round, colours swapped, sharing a start
// position taken from the shuffled book in order.
func (s *Scheduler) populate(book []string) {
	s.info("match.populating", nil)
	e1, e2 := s.settings.Engine1, s.settings.Engine2

	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if s.cancelled.Load() {
		return
	}
	s.queue = make([]Task, 0, s.settings.Rounds*2)
	for i := 0; i < s.settings.Rounds; i++ {
		fen := jieqi.DefaultFEN
		if len(book) > 0 {
			fen = book[i%len(book)]
		}
		s.queue = append(s.queue,
			Task{ID: i*2 + 1, Red: e1, Black: e2, StartFEN: fen},
			Task{ID: i*2 + 2, Red: e2, Black: e1, StartFEN: fen})
	}
}

func (s *Scheduler) pop() (Task, bool) {
	s.queueMu.Lock()
	defer s.queueMu.Unlock()
	if len(s.queue) == 0 {
		return Task{}, false
	}
	t := s.queue[0]
	s.queue = s.queue[1:]
	return t, true
}

func (s *Scheduler) worker(ctx context.Context, id int) {
	primary := id == 0
	for {
		if s.cancelled.Load() || ctx.Err() != nil {
			return
		}
		task, ok := s.pop()
		if !ok {
			return
		}

		s.info("game.starting", map[string]any{"ID": task.ID, "Worker": id, "Primary": primary})
		if primary {
			s.send(fmt.Sprintf("info engine %s %s", task.Red.Name(), task.Black.Name()))
		}

		rec, verdict := s.play(ctx, task, primary)
		if verdict.Reason == ReasonAborted || ctx.Err() != nil {
			s.log.Info("game_aborted", zap.Int("game", task.ID))
			continue
		}

		st := s.fold(task, verdict)
		s.info("game.finished", map[string]any{
			"ID": task.ID, "Score1": st.Score1, "Score2": st.Score2, "Draws": st.Draws,
		})
		s.send(fmt.Sprintf("info game %d/%d", st.Completed, st.Total))
		s.send(fmt.Sprintf("info wld %d-%d-%d", st.Wins, st.Losses, st.Draws))

		obsCtx := context.WithoutCancel(ctx)
		for _, o := range s.observers {
			o.GameFinished(obsCtx, rec, primary)
		}
		s.publishStandings(obsCtx, st)
	}
}

// publishStandings delivers snapshots to observers in Completed order.
// A snapshot overtaken by a newer one is dropped.
func (s *Scheduler) publishStandings(ctx context.Context, st Stats) {
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	if st.Completed <= s.published {
		return
	}
	s.published = st.Completed
	standings := s.standings(st)
	for _, o := range s.observers {
		o.StandingsUpdated(ctx, standings)
	}
}

// play runs a single task. Spawn failures lose for the failing side and
// panics inside the game become draws.
func (s *Scheduler) play(ctx context.Context, task Task, primary bool) (rec matchdto.GameRecord, verdict Verdict) {
	rec = matchdto.GameRecord{
		ID:         uuid.NewString(),
		MatchID:    s.matchID,
		GameNumber: task.ID,
		Red:        task.Red.Name(),
		Black:      task.Black.Name(),
		InitialFEN: task.StartFEN,
		FinalFEN:   task.StartFEN,
		StartedAt:  time.Now(),
	}
	defer func() {
		rec.Result = verdict.Result()
		rec.Reason = string(verdict.Reason)
		rec.Plies = verdict.Plies
		rec.FinishedAt = time.Now()
	}()

	red := s.factory(task.Red.Name(), task.ID)
	black := s.factory(task.Black.Name(), task.ID)
	s.register(red, black)
	defer s.unregister(red, black)

	if !red.Start(task.Red.Command) {
		s.info("game.spawn_failed", map[string]any{"ID": task.ID, "Side": "Red", "Command": task.Red.Command, "Winner": "Black"})
		red.Stop()
		return rec, win(jieqi.Black, ReasonEngineFailure, 0, "red engine failed to start")
	}
	if !black.Start(task.Black.Command) {
		s.info("game.spawn_failed", map[string]any{"ID": task.ID, "Side": "Black", "Command": task.Black.Command, "Winner": "Red"})
		red.Stop()
		black.Stop()
		return rec, win(jieqi.Red, ReasonEngineFailure, 0, "black engine failed to start")
	}
	defer black.Stop()
	defer red.Stop()

	red.ApplyOptions(task.Red.Options)
	black.ApplyOptions(task.Black.Options)

	if s.cancelled.Load() || ctx.Err() != nil {
		return rec, draw(ReasonAborted, 0, "match cancelled")
	}
	if primary {
		s.send("info fen " + task.StartFEN)
	}

	var game *Game
	verdict = func() (v Verdict) {
		defer func() {
			if r := recover(); r != nil {
				s.log.Error("game_panic", zap.Int("game", task.ID), zap.Any("panic", r))
				s.info("game.crashed", map[string]any{"ID": task.ID, "Error": fmt.Sprint(r)})
				v = draw(ReasonCrashed, 0, fmt.Sprint(r))
			}
		}()
		g, err := NewGame(red, black, GameConfig{
			ID:            task.ID,
			StartFEN:      task.StartFEN,
			TimeControl:   s.settings.TimeControl,
			BufferMs:      s.settings.BufferMs,
			Primary:       primary,
			MaxPlies:      s.settings.MaxPlies,
			MoveTimeout:   s.settings.MoveTimeout,
			Rand:          s.gameRand(),
			Host:          s.send,
			Messages:      s.msgs,
			Log:           s.log,
			PoolFallbacks: &s.fallbacks,
		})
		if err != nil {
			s.log.Error("game_setup_failed", zap.Int("game", task.ID), zap.Error(err))
			s.info("game.crashed", map[string]any{"ID": task.ID, "Error": err.Error()})
			return draw(ReasonCrashed, 0, err.Error())
		}
		game = g
		return g.Run(ctx)
	}()

	if game != nil {
		rec.Started = true
		rec.FinalFEN = game.FEN()
		rec.Moves = game.Moves()
	}
	return rec, verdict
}

// fold adds one verdict to the totals and returns the updated snapshot.
// Engine 1 is identified by command and options together.
func (s *Scheduler) fold(task Task, v Verdict) Stats {
	e1Red := task.Red == s.settings.Engine1

	s.statsMu.Lock()
	defer s.statsMu.Unlock()
	switch {
	case v.IsDraw():
		s.stats.Score1 += 0.5
		s.stats.Score2 += 0.5
		s.stats.Draws++
	case (v.Winner == jieqi.Red) == e1Red:
		s.stats.Score1++
		s.stats.Wins++
	default:
		s.stats.Score2++
		s.stats.Losses++
	}
	s.stats.Completed++
	st := s.stats
	st.PoolFallbacks = s.fallbacks.Load()
	return st
}

func (s *Scheduler) standings(st Stats) matchdto.Standings {
	return matchdto.Standings{
		MatchID:   s.matchID,
		Engine1:   s.settings.Engine1.Name(),
		Engine2:   s.settings.Engine2.Name(),
		Score1:    st.Score1,
		Score2:    st.Score2,
		Wins:      st.Wins,
		Losses:    st.Losses,
		Draws:     st.Draws,
		Completed: st.Completed,
		Total:     st.Total,
		Stopped:   st.Stopped,
		UpdatedAt: time.Now(),
	}
}

func (s *Scheduler) register(engines ...Engine) {
	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()
	for _, e := range engines {
		s.engines[e] = struct{}{}
	}
}

func (s *Scheduler) unregister(engines ...Engine) {
	s.enginesMu.Lock()
	defer s.enginesMu.Unlock()
	for _, e := range engines {
		delete(s.engines, e)
	}
}

func (s *Scheduler) stopAllEngines() {
	s.enginesMu.Lock()
	active := make([]Engine, 0, len(s.engines))
	for e := range s.engines {
		active = append(active, e)
	}
	s.engines = make(map[Engine]struct{})
	s.enginesMu.Unlock()

	var wg sync.WaitGroup
	for _, e := range active {
		wg.Add(1)
		go func(e Engine) {
			defer wg.Done()
			e.Stop()
		}(e)
	}
	wg.Wait()
}

func (s *Scheduler) gameRand() *rand.Rand {
	s.rngMu.Lock()
	defer s.rngMu.Unlock()
	return rand.New(rand.NewSource(s.rng.Int63()))
}

func (s *Scheduler) send(line string) {
	if s.host != nil {
		s.host(line)
	}
}

func (s *Scheduler) info(key string, data map[string]any) {
	s.send("info string " + s.msgs.Text(key, data))
}
