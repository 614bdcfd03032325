package jieqi

import (
	"errors"
	"fmt"
	"math/rand"
	"strconv"
	"strings"
)

// DefaultFEN is the standard Jieqi opening: both kings face up, every other
// piece face down on its orthodox square.
const DefaultFEN = "xxxxkxxxx/9/1x5x1/x1x1x1x1x/9/9/X1X1X1X1X/1X5X1/9/XXXXKXXXX w R2r2N2n2B2b2A2a2C2c2P5p5 0 1"

var ErrMalformedFEN = errors.New("malformed fen")

// Position is a decoded extended FEN.
type Position struct {
	Board    Board
	Turn     Color
	Pool     *Pool
	Halfmove int
	Fullmove int
	// Warnings collects recoverable problems found in the pool field.
	Warnings []string
}

// ParseFEN decodes an extended FEN. The pool field and the move counters are
// optional; a missing pool yields an empty pool.
func ParseFEN(fen string, rng *rand.Rand) (*Position, error) {
	fields := strings.Fields(fen)
	if len(fields) < 2 {
		return nil, fmt.Errorf("%w: %q", ErrMalformedFEN, fen)
	}

	board, err := parseLayout(fields[0])
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedFEN, err)
	}

	pos := &Position{Board: board, Pool: NewPool(rng), Fullmove: 1}
	switch fields[1] {
	case "w", "r":
		pos.Turn = Red
	case "b":
		pos.Turn = Black
	default:
		return nil, fmt.Errorf("%w: side %q", ErrMalformedFEN, fields[1])
	}

	if len(fields) > 2 && fields[2] != "-" {
		pos.Warnings = pos.Pool.Parse(fields[2])
	}
	if len(fields) > 3 {
		if pos.Halfmove, err = strconv.Atoi(fields[3]); err != nil {
			return nil, fmt.Errorf("%w: halfmove %q", ErrMalformedFEN, fields[3])
		}
	}
	if len(fields) > 4 {
		if pos.Fullmove, err = strconv.Atoi(fields[4]); err != nil {
			return nil, fmt.Errorf("%w: fullmove %q", ErrMalformedFEN, fields[4])
		}
	}
	return pos, nil
}

func parseLayout(layout string) (Board, error) {
	var b Board
	rows := strings.Split(layout, "/")
	if len(rows) != Ranks {
		return b, fmt.Errorf("want %d rows, got %d", Ranks, len(rows))
	}
	for i, row := range rows {
		rank := Ranks - 1 - i
		file := 0
		for j := 0; j < len(row); j++ {
			ch := row[j]
			switch {
			case ch >= '1' && ch <= '9':
				file += int(ch - '0')
			case ch == 'x' || ch == 'X':
				if file >= Files {
					return b, fmt.Errorf("row %d overflows", i)
				}
				b[rank][file] = HiddenCell
				file++
			default:
				p, ok := PieceFromChar(ch)
				if !ok {
					return b, fmt.Errorf("unknown piece %q", ch)
				}
				if file >= Files {
					return b, fmt.Errorf("row %d overflows", i)
				}
				b[rank][file] = p
				file++
			}
		}
		if file != Files {
			return b, fmt.Errorf("row %d has %d files", i, file)
		}
	}
	return b, nil
}

// FEN encodes the position back into the extended format.
func (p *Position) FEN() string {
	side := "w"
	if p.Turn == Black {
		side = "b"
	}
	pool := "-"
	if p.Pool != nil {
		if s := p.Pool.String(); s != "" {
			pool = s
		}
	}
	return fmt.Sprintf("%s %s %s %d %d", p.Board.Layout(), side, pool, p.Halfmove, p.Fullmove)
}
