package resultstore

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

var ErrNotFound = errors.New("not found")

// Store persists match results. Implementations must be safe for
// concurrent use.
type Store interface {
	SaveGame(ctx context.Context, rec matchdto.GameRecord) error
	SaveStandings(ctx context.Context, st matchdto.Standings) error
	SaveSummary(ctx context.Context, sum matchdto.MatchSummary) error
	Close() error
}

const defaultWriteTimeout = 5 * time.Second

// Recorder feeds scheduler events into a Store. Write failures are logged
// and never reach the match.
type Recorder struct {
	store   Store
	log     *zap.Logger
	timeout time.Duration
}

func NewRecorder(store Store, log *zap.Logger) *Recorder {
	if log == nil {
		log = zap.NewNop()
	}
	return &Recorder{store: store, log: log, timeout: defaultWriteTimeout}
}

func (r *Recorder) GameFinished(ctx context.Context, rec matchdto.GameRecord, _ bool) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.SaveGame(ctx, rec); err != nil {
		r.log.Warn("store_save_game_failed", zap.Int("game", rec.GameNumber), zap.Error(err))
	}
}

func (r *Recorder) StandingsUpdated(ctx context.Context, st matchdto.Standings) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.SaveStandings(ctx, st); err != nil {
		r.log.Warn("store_save_standings_failed", zap.String("match", st.MatchID), zap.Error(err))
	}
}

func (r *Recorder) MatchFinished(ctx context.Context, sum matchdto.MatchSummary) {
	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.store.SaveSummary(ctx, sum); err != nil {
		r.log.Warn("store_save_summary_failed", zap.String("match", sum.Standings.MatchID), zap.Error(err))
	}
}
