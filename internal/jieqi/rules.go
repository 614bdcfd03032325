package jieqi

// Validator implements the movement rules. It holds no state; face-down
// pieces are resolved against StartLayout.
type Validator struct{}

// HalfOf reports which side owns the half of the board the rank belongs to.
func HalfOf(rank int) Color {
	if rank <= 4 {
		return Red
	}
	return Black
}

// EffectiveColor is the revealed color, or the owner of the square's half for
// a face-down piece.
func EffectiveColor(p Piece, s Square) Color {
	switch {
	case p.IsEmpty():
		return NoColor
	case p.Hidden:
		return HalfOf(s.Rank)
	default:
		return p.Color
	}
}

// EffectiveKind is the revealed kind, or the kind that starts on s.
func EffectiveKind(p Piece, s Square) Kind {
	if p.Hidden {
		return StartLayout.At(s).Kind
	}
	return p.Kind
}

func inPalace(s Square, c Color) bool {
	if s.File < 3 || s.File > 5 {
		return false
	}
	if c == Red {
		return s.Rank <= 2
	}
	return s.Rank >= 7
}

func abs(n int) int {
	if n < 0 {
		return -n
	}
	return n
}

func sign(n int) int {
	switch {
	case n > 0:
		return 1
	case n < 0:
		return -1
	default:
		return 0
	}
}

// between counts occupied squares strictly between two squares on a line.
// It returns -1 when they do not share a rank or file.
func between(from, to Square, b *Board) int {
	if from.Rank != to.Rank && from.File != to.File {
		return -1
	}
	dr, df := sign(to.Rank-from.Rank), sign(to.File-from.File)
	n := 0
	for s := (Square{File: from.File + df, Rank: from.Rank + dr}); s != to; s = (Square{File: s.File + df, Rank: s.Rank + dr}) {
		if !b.At(s).IsEmpty() {
			n++
		}
	}
	return n
}

// MechanicallyLegal checks piece geometry and the own-capture rule only.
func (Validator) MechanicallyLegal(from, to Square, b *Board) bool {
	if !from.Valid() || !to.Valid() || from == to {
		return false
	}
	mover := b.At(from)
	if mover.IsEmpty() {
		return false
	}
	color := EffectiveColor(mover, from)
	target := b.At(to)
	// Own pieces are never captured, face-down ones included: a hidden
	// target belongs to the side whose half of the board it stands on.
	if !target.IsEmpty() && EffectiveColor(target, to) == color {
		return false
	}

	dr, df := to.Rank-from.Rank, to.File-from.File
	adr, adf := abs(dr), abs(df)

	switch EffectiveKind(mover, from) {
	case King:
		return adr+adf == 1 && inPalace(to, color)
	case Advisor:
		if adr != 1 || adf != 1 {
			return false
		}
		return !mover.Hidden || inPalace(to, color)
	case Bishop:
		if adr != 2 || adf != 2 {
			return false
		}
		eye := Square{File: from.File + df/2, Rank: from.Rank + dr/2}
		if !b.At(eye).IsEmpty() {
			return false
		}
		return !mover.Hidden || HalfOf(to.Rank) == color
	case Knight:
		var leg Square
		switch {
		case adr == 2 && adf == 1:
			leg = Square{File: from.File, Rank: from.Rank + dr/2}
		case adr == 1 && adf == 2:
			leg = Square{File: from.File + df/2, Rank: from.Rank}
		default:
			return false
		}
		return b.At(leg).IsEmpty()
	case Rook:
		return between(from, to, b) == 0
	case Cannon:
		n := between(from, to, b)
		if target.IsEmpty() {
			return n == 0
		}
		return n == 1
	case Pawn:
		forward := 1
		crossed := from.Rank >= 5
		if color == Black {
			forward = -1
			crossed = from.Rank <= 4
		}
		if dr == forward && df == 0 {
			return true
		}
		return crossed && dr == 0 && adf == 1
	default:
		return false
	}
}

// InCheck reports whether c's king is attacked by a face-up enemy piece or
// faces the enemy king on an open file. A missing king counts as check.
func (v Validator) InCheck(c Color, b *Board) bool {
	king, ok := b.FindKing(c)
	if !ok {
		return true
	}
	enemy := c.Opponent()
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			p := b[r][f]
			if !p.IsRevealed() || p.Color != enemy {
				continue
			}
			sq := Square{File: f, Rank: r}
			if p.Kind == King {
				if f == king.File && between(sq, king, b) == 0 {
					return true
				}
				continue
			}
			if v.MechanicallyLegal(sq, king, b) {
				return true
			}
		}
	}
	return false
}

func (v Validator) safe(from, to Square, c Color, b *Board) bool {
	scratch := *b
	scratch.Apply(from, to)
	return !v.InCheck(c, &scratch)
}

// Legal validates a move string for side c. Suffix characters after the
// coordinates are ignored.
func (v Validator) Legal(move string, c Color, b *Board) bool {
	from, to, ok := ParseMove(move)
	if !ok {
		return false
	}
	mover := b.At(from)
	if mover.IsEmpty() || EffectiveColor(mover, from) != c {
		return false
	}
	return v.MechanicallyLegal(from, to, b) && v.safe(from, to, c, b)
}

// LegalMoves lists every legal coordinate move of side c.
func (v Validator) LegalMoves(c Color, b *Board) []string {
	var moves []string
	v.eachLegal(c, b, func(from, to Square) bool {
		moves = append(moves, from.String()+to.String())
		return true
	})
	return moves
}

// Terminal reports whether side c has no legal move. Callers tell mate from
// stalemate with InCheck.
func (v Validator) Terminal(c Color, b *Board) bool {
	found := false
	v.eachLegal(c, b, func(_, _ Square) bool {
		found = true
		return false
	})
	return !found
}

func (v Validator) eachLegal(c Color, b *Board, yield func(from, to Square) bool) {
	for r := 0; r < Ranks; r++ {
		for f := 0; f < Files; f++ {
			from := Square{File: f, Rank: r}
			p := b.At(from)
			if p.IsEmpty() || EffectiveColor(p, from) != c {
				continue
			}
			for tr := 0; tr < Ranks; tr++ {
				for tf := 0; tf < Files; tf++ {
					to := Square{File: tf, Rank: tr}
					if !v.MechanicallyLegal(from, to, b) || !v.safe(from, to, c, b) {
						continue
					}
					if !yield(from, to) {
						return
					}
				}
			}
		}
	}
}
