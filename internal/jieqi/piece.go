package jieqi

// Color identifies a side.
type Color int

const (
	NoColor Color = iota
	Red
	Black
)

func (c Color) Opponent() Color {
	switch c {
	case Red:
		return Black
	case Black:
		return Red
	default:
		return NoColor
	}
}

func (c Color) String() string {
	switch c {
	case Red:
		return "red"
	case Black:
		return "black"
	default:
		return "none"
	}
}

// Kind is the role of a piece independent of its side.
type Kind int

const (
	NoKind Kind = iota
	King
	Advisor
	Bishop
	Knight
	Rook
	Cannon
	Pawn
)

func (k Kind) String() string {
	switch k {
	case King:
		return "king"
	case Advisor:
		return "advisor"
	case Bishop:
		return "bishop"
	case Knight:
		return "knight"
	case Rook:
		return "rook"
	case Cannon:
		return "cannon"
	case Pawn:
		return "pawn"
	default:
		return "none"
	}
}

// Piece is the content of a square. The zero value is an empty square.
// A face-down piece has Hidden set and no kind or color.
type Piece struct {
	Kind   Kind
	Color  Color
	Hidden bool
}

var (
	Empty      = Piece{}
	HiddenCell = Piece{Hidden: true}
)

func NewPiece(k Kind, c Color) Piece { return Piece{Kind: k, Color: c} }

func (p Piece) IsEmpty() bool    { return p == Empty }
func (p Piece) IsRevealed() bool { return !p.Hidden && p.Kind != NoKind }

var kindChars = map[Kind]byte{
	King:    'K',
	Advisor: 'A',
	Bishop:  'B',
	Knight:  'N',
	Rook:    'R',
	Cannon:  'C',
	Pawn:    'P',
}

var charPieces = func() map[byte]Piece {
	m := make(map[byte]Piece, 14)
	for k, ch := range kindChars {
		m[ch] = NewPiece(k, Red)
		m[ch+('a'-'A')] = NewPiece(k, Black)
	}
	return m
}()

// Char returns the FEN character of the piece; 'x' for a face-down piece
// and 0 for an empty square.
func (p Piece) Char() byte {
	if p.Hidden {
		return 'x'
	}
	ch, ok := kindChars[p.Kind]
	if !ok {
		return 0
	}
	if p.Color == Black {
		return ch + ('a' - 'A')
	}
	return ch
}

func (p Piece) String() string {
	if p.IsEmpty() {
		return "."
	}
	return string(p.Char())
}

// PieceFromChar decodes a revealed piece character. Hidden markers are not
// accepted here; see ParseFEN.
func PieceFromChar(ch byte) (Piece, bool) {
	p, ok := charPieces[ch]
	return p, ok
}

// ColorOfChar reports the side encoded by the case of a piece character.
func ColorOfChar(ch byte) Color {
	switch {
	case ch >= 'A' && ch <= 'Z':
		return Red
	case ch >= 'a' && ch <= 'z':
		return Black
	default:
		return NoColor
	}
}
