package jieqi

import (
	"strconv"
	"strings"
)

const (
	Ranks = 10
	Files = 9
)

// Square addresses a cell. Rank 0 is Red's back rank, file 0 is the a-file.
type Square struct {
	File int
	Rank int
}

func (s Square) Valid() bool {
	return s.File >= 0 && s.File < Files && s.Rank >= 0 && s.Rank < Ranks
}

func (s Square) String() string {
	if !s.Valid() {
		return "??"
	}
	return string(rune('a'+s.File)) + strconv.Itoa(s.Rank)
}

// ParseSquare decodes coordinates such as "e0". Anything outside the grid
// yields ok=false.
func ParseSquare(s string) (Square, bool) {
	if len(s) != 2 {
		return Square{}, false
	}
	sq := Square{File: int(s[0]) - 'a', Rank: int(s[1]) - '0'}
	if !sq.Valid() {
		return Square{}, false
	}
	return sq, true
}

// ParseMove splits the coordinate prefix of a move such as "h2e2" or
// "a3a4R". Suffix characters are ignored.
func ParseMove(move string) (from, to Square, ok bool) {
	if len(move) < 4 {
		return Square{}, Square{}, false
	}
	from, okFrom := ParseSquare(move[0:2])
	to, okTo := ParseSquare(move[2:4])
	if !okFrom || !okTo {
		return Square{}, Square{}, false
	}
	return from, to, true
}

// Board is the 10x9 grid. It is a value type; assignment copies it.
type Board [Ranks][Files]Piece

func (b *Board) At(s Square) Piece {
	if !s.Valid() {
		return Empty
	}
	return b[s.Rank][s.File]
}

func (b *Board) Set(s Square, p Piece) {
	if !s.Valid() {
		return
	}
	b[s.Rank][s.File] = p
}

// Apply moves whatever stands on from to to, without any rule checks.
func (b *Board) Apply(from, to Square) {
	b.Set(to, b.At(from))
	b.Set(from, Empty)
}

func (b *Board) FindKing(c Color) (Square, bool) {
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			p := b[r][f]
			if p.Kind == King && p.Color == c && !p.Hidden {
				return Square{File: f, Rank: r}, true
			}
		}
	}
	return Square{}, false
}

// Layout renders the board part of a FEN string, rank 9 first. Face-down
// pieces on Red's half are written as 'X', on Black's half as 'x'.
func (b *Board) Layout() string {
	var sb strings.Builder
	for r := Ranks - 1; r >= 0; r-- {
		empty := 0
		for f := 0; f < Files; f++ {
			p := b[r][f]
			if p.IsEmpty() {
				empty++
				continue
			}
			if empty > 0 {
				sb.WriteString(strconv.Itoa(empty))
				empty = 0
			}
			if p.Hidden && r <= 4 {
				sb.WriteByte('X')
			} else {
				sb.WriteByte(p.Char())
			}
		}
		if empty > 0 {
			sb.WriteString(strconv.Itoa(empty))
		}
		if r > 0 {
			sb.WriteByte('/')
		}
	}
	return sb.String()
}

// StartLayout is the orthodox arrangement. A face-down piece moves as the
// piece that starts on its square.
var StartLayout = func() Board {
	var b Board
	back := []Kind{Rook, Knight, Bishop, Advisor, King, Advisor, Bishop, Knight, Rook}
	for f, k := range back {
		b[0][f] = NewPiece(k, Red)
		b[9][f] = NewPiece(k, Black)
	}
	for _, f := range []int{1, 7} {
		b[2][f] = NewPiece(Cannon, Red)
		b[7][f] = NewPiece(Cannon, Black)
	}
	for f := 0; f < Files; f += 2 {
		b[3][f] = NewPiece(Pawn, Red)
		b[6][f] = NewPiece(Pawn, Black)
	}
	return b
}()
