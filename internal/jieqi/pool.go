package jieqi

import (
	"fmt"
	"math/rand"
	"strconv"
	"strings"
	"sync"
	"time"
)

// poolOrder is the serialisation order shared with external tools.
var poolOrder = []Piece{
	NewPiece(Rook, Red), NewPiece(Rook, Black),
	NewPiece(Advisor, Red), NewPiece(Advisor, Black),
	NewPiece(Cannon, Red), NewPiece(Cannon, Black),
	NewPiece(Knight, Red), NewPiece(Knight, Black),
	NewPiece(Bishop, Red), NewPiece(Bishop, Black),
	NewPiece(Pawn, Red), NewPiece(Pawn, Black),
}

// DefaultPool is the identity pool of a fresh game: every non-king piece of
// both sides is still face down.
const DefaultPool = "R2r2A2a2C2c2N2n2B2b2P5p5"

// Pool counts the identities that have not been revealed yet.
type Pool struct {
	mu     sync.Mutex
	counts map[Piece]int
	rng    *rand.Rand
}

// NewPool returns an empty pool. A nil rng seeds from the clock.
func NewPool(rng *rand.Rand) *Pool {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pool{counts: make(map[Piece]int), rng: rng}
}

// Parse replaces the pool contents with the counts encoded in s. Entries
// that do not decode are skipped and reported back as warnings.
func (p *Pool) Parse(s string) []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	p.counts = make(map[Piece]int)
	if len(s)%2 != 0 {
		return []string{fmt.Sprintf("malformed piece pool %q", s)}
	}
	var warnings []string
	for i := 0; i+1 < len(s); i += 2 {
		piece, ok := PieceFromChar(s[i])
		digit := s[i+1]
		if !ok || piece.Kind == King || digit < '0' || digit > '9' {
			warnings = append(warnings, fmt.Sprintf("skipping pool entry %q", s[i:i+2]))
			continue
		}
		p.counts[piece] = int(digit - '0')
	}
	return warnings
}

func (p *Pool) String() string {
	p.mu.Lock()
	defer p.mu.Unlock()

	var sb strings.Builder
	for _, piece := range poolOrder {
		if n := p.counts[piece]; n > 0 {
			sb.WriteByte(piece.Char())
			sb.WriteString(strconv.Itoa(n))
		}
	}
	return sb.String()
}

func (p *Pool) Count(piece Piece) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.counts[piece]
}

// Remaining is the number of undrawn units of one side.
func (p *Pool) Remaining(c Color) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	total := 0
	for piece, n := range p.counts {
		if piece.Color == c && n > 0 {
			total += n
		}
	}
	return total
}

// Draw picks one remaining unit of color c uniformly and removes it.
// ok is false when that side has nothing left.
func (p *Pool) Draw(c Color) (Piece, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	total := 0
	for _, piece := range poolOrder {
		if piece.Color == c {
			total += p.counts[piece]
		}
	}
	if total <= 0 {
		return Empty, false
	}
	pick := p.rng.Intn(total)
	for _, piece := range poolOrder {
		if piece.Color != c {
			continue
		}
		n := p.counts[piece]
		if pick < n {
			p.counts[piece] = n - 1
			return piece, true
		}
		pick -= n
	}
	return Empty, false
}

// Clone copies the counts; the copy shares nothing with p except a fresh
// generator seeded from p's.
func (p *Pool) Clone() *Pool {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := &Pool{counts: make(map[Piece]int, len(p.counts)), rng: rand.New(rand.NewSource(p.rng.Int63()))}
	for k, v := range p.counts {
		cp.counts[k] = v
	}
	return cp
}
