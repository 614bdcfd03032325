package resultstore

import (
	"context"
	"sort"
	"strings"
	"sync"

	"github.com/park285/jieqi-arena/pkg/matchdto"
)

// MemoryStore keeps results in process. It is used when neither Redis nor
// PostgreSQL is configured.
type MemoryStore struct {
	mu sync.RWMutex

	games     map[string][]matchdto.GameRecord // matchID -> games in arrival order
	standings map[string]matchdto.Standings
	summaries map[string]matchdto.MatchSummary
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		games:     make(map[string][]matchdto.GameRecord),
		standings: make(map[string]matchdto.Standings),
		summaries: make(map[string]matchdto.MatchSummary),
	}
}

func (m *MemoryStore) SaveGame(_ context.Context, rec matchdto.GameRecord) error {
	key := strings.TrimSpace(rec.MatchID)
	rec.Moves = append([]matchdto.MoveRecord(nil), rec.Moves...)

	m.mu.Lock()
	defer m.mu.Unlock()
	m.games[key] = append(m.games[key], rec)
	return nil
}

func (m *MemoryStore) SaveStandings(_ context.Context, st matchdto.Standings) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.standings[strings.TrimSpace(st.MatchID)] = st
	return nil
}

func (m *MemoryStore) SaveSummary(_ context.Context, sum matchdto.MatchSummary) error {
	key := strings.TrimSpace(sum.Standings.MatchID)
	m.mu.Lock()
	defer m.mu.Unlock()
	m.summaries[key] = sum
	m.standings[key] = sum.Standings
	return nil
}

// Games returns a match's games ordered by game number.
func (m *MemoryStore) Games(_ context.Context, matchID string) ([]matchdto.GameRecord, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	items := append([]matchdto.GameRecord(nil), m.games[strings.TrimSpace(matchID)]...)
	sort.Slice(items, func(i, j int) bool { return items[i].GameNumber < items[j].GameNumber })
	return items, nil
}

func (m *MemoryStore) Standings(_ context.Context, matchID string) (matchdto.Standings, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.standings[strings.TrimSpace(matchID)]
	if !ok {
		return matchdto.Standings{}, ErrNotFound
	}
	return st, nil
}

func (m *MemoryStore) Summary(_ context.Context, matchID string) (matchdto.MatchSummary, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	sum, ok := m.summaries[strings.TrimSpace(matchID)]
	if !ok {
		return matchdto.MatchSummary{}, ErrNotFound
	}
	return sum, nil
}

func (m *MemoryStore) Close() error { return nil }
