package resultstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

const ttlResults = 30 * 24 * time.Hour

// RedisStore keeps each game as JSON, the running standings as a hash and
// an index of matches ordered by last update.
type RedisStore struct {
	rdb    *redis.Client
	prefix string
}

func NewRedisStore(rdb *redis.Client, prefix string) *RedisStore {
	prefix = strings.TrimSpace(prefix)
	if prefix == "" {
		prefix = "jieqi"
	}
	return &RedisStore{rdb: rdb, prefix: prefix}
}

// OpenRedisStore parses a redis:// URL and checks the connection.
func OpenRedisStore(ctx context.Context, url, prefix string) (*RedisStore, error) {
	opt, err := redis.ParseURL(strings.TrimSpace(url))
	if err != nil {
		return nil, fmt.Errorf("parse redis url: %w", err)
	}
	rdb := redis.NewClient(opt)
	if err := rdb.Ping(ctx).Err(); err != nil {
		_ = rdb.Close()
		return nil, fmt.Errorf("redis ping: %w", err)
	}
	return NewRedisStore(rdb, prefix), nil
}

func (s *RedisStore) keyGame(id string) string { return s.prefix + ":game:" + id }
func (s *RedisStore) keyGames(matchID string) string {
	return s.prefix + ":match:" + matchID + ":games"
}
func (s *RedisStore) keyStandings(matchID string) string {
	return s.prefix + ":match:" + matchID + ":standings"
}
func (s *RedisStore) keySummary(matchID string) string {
	return s.prefix + ":match:" + matchID + ":summary"
}
func (s *RedisStore) keyMatches() string { return s.prefix + ":matches" }

func (s *RedisStore) SaveGame(ctx context.Context, rec matchdto.GameRecord) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	pipe := s.rdb.TxPipeline()
	pipe.Set(ctx, s.keyGame(rec.ID), raw, ttlResults)
	pipe.RPush(ctx, s.keyGames(rec.MatchID), rec.ID)
	pipe.Expire(ctx, s.keyGames(rec.MatchID), ttlResults)
	_, err = pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SaveStandings(ctx context.Context, st matchdto.Standings) error {
	pipe := s.rdb.TxPipeline()
	pipe.HSet(ctx, s.keyStandings(st.MatchID), standingsFields(st))
	pipe.Expire(ctx, s.keyStandings(st.MatchID), ttlResults)
	pipe.ZAdd(ctx, s.keyMatches(), redis.Z{Score: float64(st.UpdatedAt.Unix()), Member: st.MatchID})
	_, err := pipe.Exec(ctx)
	return err
}

func (s *RedisStore) SaveSummary(ctx context.Context, sum matchdto.MatchSummary) error {
	if err := s.SaveStandings(ctx, sum.Standings); err != nil {
		return err
	}
	raw, err := json.Marshal(sum)
	if err != nil {
		return err
	}
	return s.rdb.Set(ctx, s.keySummary(sum.Standings.MatchID), raw, ttlResults).Err()
}

// Games loads a match's games in the order they finished.
func (s *RedisStore) Games(ctx context.Context, matchID string) ([]matchdto.GameRecord, error) {
	ids, err := s.rdb.LRange(ctx, s.keyGames(matchID), 0, -1).Result()
	if err != nil {
		return nil, err
	}
	out := make([]matchdto.GameRecord, 0, len(ids))
	for _, id := range ids {
		raw, err := s.rdb.Get(ctx, s.keyGame(id)).Bytes()
		if errors.Is(err, redis.Nil) {
			continue
		}
		if err != nil {
			return nil, err
		}
		var rec matchdto.GameRecord
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode game %s: %w", id, err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (s *RedisStore) Standings(ctx context.Context, matchID string) (matchdto.Standings, error) {
	m, err := s.rdb.HGetAll(ctx, s.keyStandings(matchID)).Result()
	if err != nil {
		return matchdto.Standings{}, err
	}
	if len(m) == 0 {
		return matchdto.Standings{}, ErrNotFound
	}
	return parseStandings(matchID, m)
}

func (s *RedisStore) Summary(ctx context.Context, matchID string) (matchdto.MatchSummary, error) {
	raw, err := s.rdb.Get(ctx, s.keySummary(matchID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return matchdto.MatchSummary{}, ErrNotFound
	}
	if err != nil {
		return matchdto.MatchSummary{}, err
	}
	var sum matchdto.MatchSummary
	if err := json.Unmarshal(raw, &sum); err != nil {
		return matchdto.MatchSummary{}, err
	}
	return sum, nil
}

// RecentMatches lists match IDs, newest first.
func (s *RedisStore) RecentMatches(ctx context.Context, limit int64) ([]string, error) {
	if limit <= 0 {
		limit = 10
	}
	return s.rdb.ZRevRange(ctx, s.keyMatches(), 0, limit-1).Result()
}

func (s *RedisStore) Close() error { return s.rdb.Close() }

func standingsFields(st matchdto.Standings) map[string]any {
	return map[string]any{
		"engine1":   st.Engine1,
		"engine2":   st.Engine2,
		"score1":    strconv.FormatFloat(st.Score1, 'f', 1, 64),
		"score2":    strconv.FormatFloat(st.Score2, 'f', 1, 64),
		"wins":      st.Wins,
		"losses":    st.Losses,
		"draws":     st.Draws,
		"completed": st.Completed,
		"total":     st.Total,
		"stopped":   strconv.FormatBool(st.Stopped),
		"updatedAt": st.UpdatedAt.UTC().Format(time.RFC3339Nano),
	}
}

func parseStandings(matchID string, m map[string]string) (matchdto.Standings, error) {
	st := matchdto.Standings{MatchID: matchID, Engine1: m["engine1"], Engine2: m["engine2"]}
	var err error
	num := func(key string) int {
		if err != nil {
			return 0
		}
		var n int
		n, err = strconv.Atoi(m[key])
		return n
	}
	st.Wins, st.Losses, st.Draws = num("wins"), num("losses"), num("draws")
	st.Completed, st.Total = num("completed"), num("total")
	if err != nil {
		return st, fmt.Errorf("decode standings: %w", err)
	}
	if st.Score1, err = strconv.ParseFloat(m["score1"], 64); err != nil {
		return st, fmt.Errorf("decode standings: %w", err)
	}
	if st.Score2, err = strconv.ParseFloat(m["score2"], 64); err != nil {
		return st, fmt.Errorf("decode standings: %w", err)
	}
	st.Stopped = m["stopped"] == "true"
	if ts := m["updatedAt"]; ts != "" {
		if st.UpdatedAt, err = time.Parse(time.RFC3339Nano, ts); err != nil {
			return st, fmt.Errorf("decode standings: %w", err)
		}
	}
	return st, nil
}
