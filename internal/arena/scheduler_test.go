package arena

import (
	"context"
	"math/rand"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"github.com/park285/jieqi-arena/internal/jieqi"
	"github.com/park285/jieqi-arena/pkg/matchdto"
)

type fakeFactory struct {
	mu      sync.Mutex
	build   func(name string) *fakeEngine
	engines []*fakeEngine
}

func (f *fakeFactory) New(name string, _ int) Engine {
	e := f.build(name)
	f.mu.Lock()
	f.engines = append(f.engines, e)
	f.mu.Unlock()
	return e
}

func (f *fakeFactory) All() []*fakeEngine {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*fakeEngine(nil), f.engines...)
}

type recordingObserver struct {
	mu        sync.Mutex
	games     []matchdto.GameRecord
	primary   []bool
	standings []matchdto.Standings
	summaries []matchdto.MatchSummary

	standingsDelay time.Duration
}

func (o *recordingObserver) GameFinished(_ context.Context, rec matchdto.GameRecord, primary bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.games = append(o.games, rec)
	o.primary = append(o.primary, primary)
}

func (o *recordingObserver) StandingsUpdated(_ context.Context, st matchdto.Standings) {
	if o.standingsDelay > 0 {
		time.Sleep(time.Duration(st.Completed%3) * o.standingsDelay)
	}
	o.mu.Lock()
	defer o.mu.Unlock()
	o.standings = append(o.standings, st)
}

func (o *recordingObserver) MatchFinished(_ context.Context, sum matchdto.MatchSummary) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.summaries = append(o.summaries, sum)
}

func testSettings() Settings {
	return Settings{
		Engine1:     EngineSpec{Command: "/opt/engines/alpha"},
		Engine2:     EngineSpec{Command: "/opt/engines/beta --fast"},
		Rounds:      1,
		Concurrency: 1,
	}
}

func newTestScheduler(settings Settings, build func(string) *fakeEngine, opts ...Option) (*Scheduler, *fakeFactory, *lineRecorder) {
	ff := &fakeFactory{build: build}
	rec := &lineRecorder{}
	opts = append([]Option{
		WithEngineFactory(ff.New),
		WithHost(rec.Line),
		WithRand(rand.New(rand.NewSource(5))),
		WithMatchID("match-test"),
	}, opts...)
	return NewScheduler(settings, opts...), ff, rec
}

func TestEngineSpecName(t *testing.T) {
	cases := map[string]string{
		"/opt/engines/alpha":       "alpha",
		`C:\engines\beta.exe`:      "beta.exe",
		"gamma":                    "gamma",
		"  /usr/bin/delta  ":       "delta",
		"/opt/engines/beta --fast": "beta",
	}
	for cmd, want := range cases {
		if got := (EngineSpec{Command: cmd}).Name(); got != want {
			t.Fatalf("Name(%q) = %q, want %q", cmd, got, want)
		}
	}
}

func TestRunResigningEnginesSplitsScore(t *testing.T) {
	obs := &recordingObserver{}
	s, ff, rec := newTestScheduler(testSettings(), func(name string) *fakeEngine {
		return newFake(name)
	}, WithObserver(obs))

	st := s.Run(context.Background())
	want := Stats{Score1: 1, Score2: 1, Wins: 1, Losses: 1, Completed: 2, Total: 2}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}

	lines := rec.Lines()
	if lines[len(lines)-1] != "info wld 1-1-0" {
		t.Fatalf("closing line = %q", lines[len(lines)-1])
	}
	for _, want := range []string{"info game 0/2", "info wld 0-0-0", "info game 2/2", "info engine alpha beta", "info engine beta alpha", "info fen " + jieqi.DefaultFEN} {
		if !containsLine(lines, want) {
			t.Fatalf("missing host line %q in %v", want, lines)
		}
	}

	for _, e := range ff.All() {
		if e.Stopped() == 0 {
			t.Fatalf("engine %s never stopped", e.Name())
		}
	}

	if len(obs.games) != 2 || len(obs.standings) != 2 || len(obs.summaries) != 1 {
		t.Fatalf("observer calls: games=%d standings=%d summaries=%d", len(obs.games), len(obs.standings), len(obs.summaries))
	}
	wantGames := []matchdto.GameRecord{
		{MatchID: "match-test", GameNumber: 1, Red: "alpha", Black: "beta", Result: "0-1", Reason: "resigned", InitialFEN: jieqi.DefaultFEN, Started: true},
		{MatchID: "match-test", GameNumber: 2, Red: "beta", Black: "alpha", Result: "0-1", Reason: "resigned", InitialFEN: jieqi.DefaultFEN, Started: true},
	}
	ignore := cmpopts.IgnoreFields(matchdto.GameRecord{}, "ID", "FinalFEN", "StartedAt", "FinishedAt", "Moves")
	if diff := cmp.Diff(wantGames, obs.games, ignore); diff != "" {
		t.Fatalf("game records (-want +got):\n%s", diff)
	}
	if got := obs.summaries[0].Standings; got.Wins != 1 || got.Losses != 1 || got.Completed != 2 || got.Stopped {
		t.Fatalf("summary standings = %+v", got)
	}
}

func TestManyWorkersShareTheQueue(t *testing.T) {
	const rounds = 12
	settings := testSettings()
	settings.Rounds = rounds
	settings.Concurrency = 4

	obs := &recordingObserver{standingsDelay: time.Millisecond}
	s, ff, rec := newTestScheduler(settings, func(name string) *fakeEngine {
		e := newFake(name)
		e.delay = time.Millisecond
		return e
	}, WithObserver(obs))

	st := s.Run(context.Background())
	want := Stats{Score1: rounds, Score2: rounds, Wins: rounds, Losses: rounds, Completed: 2 * rounds, Total: 2 * rounds}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Fatalf("stats (-want +got):\n%s", diff)
	}
	if st.Wins+st.Losses+st.Draws != st.Completed {
		t.Fatalf("results do not add up: %+v", st)
	}
	if got := len(ff.All()); got != 4*rounds {
		t.Fatalf("engines created = %d", got)
	}

	obs.mu.Lock()
	defer obs.mu.Unlock()
	if len(obs.games) != 2*rounds {
		t.Fatalf("games reported = %d", len(obs.games))
	}
	seen := make(map[int]bool)
	primaryGames := 0
	for i, g := range obs.games {
		if seen[g.GameNumber] {
			t.Fatalf("game %d played twice", g.GameNumber)
		}
		seen[g.GameNumber] = true
		if obs.primary[i] {
			primaryGames++
		}
	}
	for id := 1; id <= 2*rounds; id++ {
		if !seen[id] {
			t.Fatalf("game %d never played", id)
		}
	}
	if primaryGames == 0 {
		t.Fatalf("worker 0 played no games")
	}

	var fens, engines int
	for _, l := range rec.Lines() {
		switch {
		case strings.HasPrefix(l, "info fen "):
			fens++
		case strings.HasPrefix(l, "info engine "):
			engines++
		}
	}
	if fens != primaryGames || engines != primaryGames {
		t.Fatalf("info fen=%d engine=%d, want %d each (primary games only)", fens, engines, primaryGames)
	}

	for i := 1; i < len(obs.standings); i++ {
		if obs.standings[i].Completed <= obs.standings[i-1].Completed {
			t.Fatalf("standings out of order: %d after %d", obs.standings[i].Completed, obs.standings[i-1].Completed)
		}
	}
	if last := obs.standings[len(obs.standings)-1]; last.Completed != 2*rounds {
		t.Fatalf("last standings = %+v", last)
	}
}

func TestSpawnFailureLosesForFailingEngine(t *testing.T) {
	s, _, rec := newTestScheduler(testSettings(), func(name string) *fakeEngine {
		e := newFake(name)
		e.failStart = name == "beta"
		return e
	})
	st := s.Run(context.Background())
	if st.Wins != 2 || st.Losses != 0 || st.Completed != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if !containsLine(rec.Lines(), "info string [Game 2] Failed to start Red engine (/opt/engines/beta --fast). Black wins.") {
		t.Fatalf("missing spawn failure line: %v", rec.Lines())
	}
}

func TestPanickingGameIsDraw(t *testing.T) {
	s, _, _ := newTestScheduler(testSettings(), func(name string) *fakeEngine {
		e := newFake(name)
		e.panicMove = true
		return e
	})
	st := s.Run(context.Background())
	if st.Draws != 2 || st.Score1 != 1 || st.Score2 != 1 || st.Completed != 2 {
		t.Fatalf("stats = %+v", st)
	}
}

func TestCancelStopsRunningMatch(t *testing.T) {
	settings := testSettings()
	settings.Rounds = 3
	s, ff, rec := newTestScheduler(settings, func(name string) *fakeEngine {
		e := newFake(name)
		e.block = true
		return e
	})

	done := make(chan Stats, 1)
	go func() { done <- s.Run(context.Background()) }()

	deadline := time.Now().Add(2 * time.Second)
	for len(ff.All()) < 2 {
		if time.Now().After(deadline) {
			t.Fatalf("engines never started")
		}
		time.Sleep(5 * time.Millisecond)
	}
	s.Cancel()
	s.Cancel()

	var st Stats
	select {
	case st = <-done:
	case <-time.After(2 * time.Second):
		t.Fatalf("Run did not return after Cancel")
	}
	if !st.Stopped || st.Completed != 0 {
		t.Fatalf("stats = %+v", st)
	}
	if len(ff.All()) != 2 {
		t.Fatalf("queued games were started after cancel: %d engines", len(ff.All()))
	}
	for _, e := range ff.All() {
		if e.Stopped() == 0 {
			t.Fatalf("engine %s left running", e.Name())
		}
	}
	if !containsLine(rec.Lines(), "info string Tournament stopped prematurely.") {
		t.Fatalf("missing stopped line: %v", rec.Lines())
	}
}

func TestCancelBeforeRun(t *testing.T) {
	s, ff, _ := newTestScheduler(testSettings(), func(name string) *fakeEngine { return newFake(name) })
	s.Cancel()
	st := s.Run(context.Background())
	if !st.Stopped || st.Completed != 0 || len(ff.All()) != 0 {
		t.Fatalf("stats = %+v, engines = %d", st, len(ff.All()))
	}
}

func TestBookPositionsFeedGames(t *testing.T) {
	const fen = "r3k4/9/9/9/9/9/9/9/9/R2K5 w - 0 1"
	path := filepath.Join(t.TempDir(), "book.txt")
	if err := os.WriteFile(path, []byte(fen+"\nbroken line\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	settings := testSettings()
	settings.BookFile = path

	obs := &recordingObserver{}
	s, _, rec := newTestScheduler(settings, func(name string) *fakeEngine { return newFake(name) }, WithObserver(obs))
	s.Run(context.Background())

	for _, g := range obs.games {
		if g.InitialFEN != fen {
			t.Fatalf("game %d started from %q", g.GameNumber, g.InitialFEN)
		}
	}
	lines := rec.Lines()
	if !containsLine(lines, "info string Successfully loaded 1 FENs from BookFile.") {
		t.Fatalf("missing book line: %v", lines)
	}
	if !containsPrefix(lines, "info string Warning: Skipping book line 2:") {
		t.Fatalf("missing skip warning: %v", lines)
	}
}

func TestMissingBookFallsBack(t *testing.T) {
	settings := testSettings()
	settings.BookFile = filepath.Join(t.TempDir(), "absent.txt")
	s, _, rec := newTestScheduler(settings, func(name string) *fakeEngine { return newFake(name) })
	st := s.Run(context.Background())
	if st.Completed != 2 {
		t.Fatalf("stats = %+v", st)
	}
	if !containsPrefix(rec.Lines(), "info string Warning: Could not open BookFile") {
		t.Fatalf("missing book warning: %v", rec.Lines())
	}
}

func containsLine(lines []string, want string) bool {
	for _, l := range lines {
		if l == want {
			return true
		}
	}
	return false
}

func containsPrefix(lines []string, prefix string) bool {
	for _, l := range lines {
		if strings.HasPrefix(l, prefix) {
			return true
		}
	}
	return false
}
