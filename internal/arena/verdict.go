package arena

import "github.com/park285/jieqi-arena/internal/jieqi"

// Reason explains how a game ended.
type Reason string

const (
	ReasonResigned      Reason = "resigned"
	ReasonNoMove        Reason = "no-move"
	ReasonIllegal       Reason = "illegal"
	ReasonTimeout       Reason = "timeout"
	ReasonCheckmate     Reason = "checkmate"
	ReasonStalemate     Reason = "stalemate"
	ReasonRepetition    Reason = "repetition"
	ReasonMoveLimit     Reason = "move-limit"
	ReasonAborted       Reason = "aborted"
	ReasonEngineFailure Reason = "engine-failure"
	ReasonCrashed       Reason = "crashed"
)

// Verdict is the outcome of one game. Winner is NoColor for draws and
// aborted games.
type Verdict struct {
	Winner jieqi.Color
	Reason Reason
	Plies  int
	Detail string
}

func (v Verdict) IsDraw() bool { return v.Winner == jieqi.NoColor }

// Result is the score string used on the host channel and in transcripts.
func (v Verdict) Result() string {
	switch v.Winner {
	case jieqi.Red:
		return "1-0"
	case jieqi.Black:
		return "0-1"
	default:
		return "1/2-1/2"
	}
}

func win(c jieqi.Color, r Reason, plies int, detail string) Verdict {
	return Verdict{Winner: c, Reason: r, Plies: plies, Detail: detail}
}

func draw(r Reason, plies int, detail string) Verdict {
	return Verdict{Winner: jieqi.NoColor, Reason: r, Plies: plies, Detail: detail}
}
