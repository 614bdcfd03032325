package matchdto

import "time"

// MoveRecord is one transcript entry.
type MoveRecord struct {
	Type        string `json:"type"`
	Data        string `json:"data"`
	FEN         string `json:"fen"`
	EngineScore int    `json:"engineScore"`
	EngineTime  int64  `json:"engineTime"`
}

// GameRecord is a finished game as persisted by result stores.
type GameRecord struct {
	ID         string       `json:"id"`
	MatchID    string       `json:"matchId"`
	GameNumber int          `json:"gameNumber"`
	Red        string       `json:"red"`
	Black      string       `json:"black"`
	Result     string       `json:"result"`
	Reason     string       `json:"reason"`
	Plies      int          `json:"plies"`
	Started    bool         `json:"started"` // false when no game was set up
	InitialFEN string       `json:"initialFen"`
	FinalFEN   string       `json:"finalFen"`
	Moves      []MoveRecord `json:"moves,omitempty"`
	StartedAt  time.Time    `json:"startedAt"`
	FinishedAt time.Time    `json:"finishedAt"`
}

// Standings are the running totals of a match from engine 1's side.
type Standings struct {
	MatchID   string    `json:"matchId"`
	Engine1   string    `json:"engine1"`
	Engine2   string    `json:"engine2"`
	Score1    float64   `json:"score1"`
	Score2    float64   `json:"score2"`
	Wins      int       `json:"wins"`
	Losses    int       `json:"losses"`
	Draws     int       `json:"draws"`
	Completed int       `json:"completed"`
	Total     int       `json:"total"`
	Stopped   bool      `json:"stopped"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// MatchSummary is posted to the webhook when a match ends.
type MatchSummary struct {
	Standings     Standings `json:"standings"`
	StartedAt     time.Time `json:"startedAt"`
	FinishedAt    time.Time `json:"finishedAt"`
	PoolFallbacks int64     `json:"poolFallbacks"`
}
