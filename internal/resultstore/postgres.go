package resultstore

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/lib/pq"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

const schemaSQL = `
CREATE TABLE IF NOT EXISTS arena_matches (
    match_id       TEXT PRIMARY KEY,
    engine1        TEXT NOT NULL,
    engine2        TEXT NOT NULL,
    score1         DOUBLE PRECISION NOT NULL DEFAULT 0,
    score2         DOUBLE PRECISION NOT NULL DEFAULT 0,
    wins           INTEGER NOT NULL DEFAULT 0,
    losses         INTEGER NOT NULL DEFAULT 0,
    draws          INTEGER NOT NULL DEFAULT 0,
    completed      INTEGER NOT NULL DEFAULT 0,
    total          INTEGER NOT NULL DEFAULT 0,
    stopped        BOOLEAN NOT NULL DEFAULT FALSE,
    pool_fallbacks BIGINT NOT NULL DEFAULT 0,
    started_at     TIMESTAMPTZ,
    finished_at    TIMESTAMPTZ,
    updated_at     TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS arena_games (
    game_id     TEXT PRIMARY KEY,
    match_id    TEXT NOT NULL,
    game_number INTEGER NOT NULL,
    red         TEXT NOT NULL,
    black       TEXT NOT NULL,
    result      TEXT NOT NULL,
    reason      TEXT NOT NULL,
    plies       INTEGER NOT NULL,
    initial_fen TEXT NOT NULL,
    final_fen   TEXT NOT NULL,
    moves       JSONB NOT NULL,
    started_at  TIMESTAMPTZ NOT NULL,
    finished_at TIMESTAMPTZ NOT NULL,
    duration_ms BIGINT NOT NULL
);
CREATE INDEX IF NOT EXISTS arena_games_match_idx ON arena_games (match_id, game_number);
`

const upsertGameSQL = `INSERT INTO arena_games (
    game_id, match_id, game_number, red, black, result, reason, plies,
    initial_fen, final_fen, moves, started_at, finished_at, duration_ms
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14
  ) ON CONFLICT (game_id) DO UPDATE SET
    result=EXCLUDED.result,
    reason=EXCLUDED.reason,
    plies=EXCLUDED.plies,
    final_fen=EXCLUDED.final_fen,
    moves=EXCLUDED.moves,
    finished_at=EXCLUDED.finished_at,
    duration_ms=EXCLUDED.duration_ms`

const upsertStandingsSQL = `INSERT INTO arena_matches (
    match_id, engine1, engine2, score1, score2, wins, losses, draws,
    completed, total, stopped, updated_at
  ) VALUES (
    $1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
  ) ON CONFLICT (match_id) DO UPDATE SET
    score1=EXCLUDED.score1,
    score2=EXCLUDED.score2,
    wins=EXCLUDED.wins,
    losses=EXCLUDED.losses,
    draws=EXCLUDED.draws,
    completed=EXCLUDED.completed,
    total=EXCLUDED.total,
    stopped=EXCLUDED.stopped,
    updated_at=EXCLUDED.updated_at`

const finishMatchSQL = `UPDATE arena_matches
    SET pool_fallbacks=$2, started_at=$3, finished_at=$4
  WHERE match_id=$1`

type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(ctx context.Context, databaseURL string) (*PostgresStore, error) {
	if strings.TrimSpace(databaseURL) == "" {
		return nil, fmt.Errorf("DATABASE_URL is required")
	}
	db, err := sql.Open("postgres", databaseURL)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	return &PostgresStore{db: db}, nil
}

func (p *PostgresStore) Close() error {
	if p == nil || p.db == nil {
		return nil
	}
	return p.db.Close()
}

func (p *PostgresStore) SaveGame(ctx context.Context, rec matchdto.GameRecord) error {
	args, err := gameArgs(rec)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, upsertGameSQL, args...)
	return err
}

func (p *PostgresStore) SaveStandings(ctx context.Context, st matchdto.Standings) error {
	_, err := p.db.ExecContext(ctx, upsertStandingsSQL, standingsArgs(st)...)
	return err
}

func (p *PostgresStore) SaveSummary(ctx context.Context, sum matchdto.MatchSummary) error {
	if err := p.SaveStandings(ctx, sum.Standings); err != nil {
		return err
	}
	_, err := p.db.ExecContext(ctx, finishMatchSQL,
		sum.Standings.MatchID, sum.PoolFallbacks, sum.StartedAt, sum.FinishedAt)
	return err
}

func gameArgs(rec matchdto.GameRecord) ([]any, error) {
	moves := rec.Moves
	if moves == nil {
		moves = []matchdto.MoveRecord{}
	}
	movesRaw, err := json.Marshal(moves)
	if err != nil {
		return nil, err
	}
	duration := rec.FinishedAt.Sub(rec.StartedAt).Milliseconds()
	if duration < 0 {
		duration = 0
	}
	return []any{
		rec.ID, rec.MatchID, rec.GameNumber, rec.Red, rec.Black,
		rec.Result, rec.Reason, rec.Plies,
		rec.InitialFEN, rec.FinalFEN, string(movesRaw),
		rec.StartedAt, rec.FinishedAt, duration,
	}, nil
}

func standingsArgs(st matchdto.Standings) []any {
	updated := st.UpdatedAt
	if updated.IsZero() {
		updated = time.Now()
	}
	return []any{
		st.MatchID, st.Engine1, st.Engine2, st.Score1, st.Score2,
		st.Wins, st.Losses, st.Draws, st.Completed, st.Total, st.Stopped, updated,
	}
}
