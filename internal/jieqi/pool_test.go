package jieqi

import (
	"math/rand"
	"testing"
)

func TestPoolRoundTrip(t *testing.T) {
	cases := []string{
		DefaultPool,
		"R1p3",
		"a2C1n2B1",
		"",
	}
	for _, in := range cases {
		p := NewPool(rand.New(rand.NewSource(1)))
		if w := p.Parse(in); len(w) != 0 {
			t.Fatalf("Parse(%q) warnings: %v", in, w)
		}
		if got := p.String(); got != in {
			t.Fatalf("round trip %q -> %q", in, got)
		}
	}
}

func TestPoolParseSkipsBadPairs(t *testing.T) {
	p := NewPool(nil)
	w := p.Parse("R2Z1p3K1")
	if len(w) != 2 {
		t.Fatalf("want 2 warnings, got %v", w)
	}
	if got := p.String(); got != "R2p3" {
		t.Fatalf("got %q", got)
	}
}

func TestPoolParseOddLength(t *testing.T) {
	p := NewPool(nil)
	if w := p.Parse("R2p"); len(w) != 1 {
		t.Fatalf("want 1 warning, got %v", w)
	}
	if p.Remaining(Red) != 0 || p.Remaining(Black) != 0 {
		t.Fatalf("odd-length pool must stay empty, got %q", p.String())
	}
}

func TestPoolDrawDecrements(t *testing.T) {
	p := NewPool(rand.New(rand.NewSource(42)))
	p.Parse(DefaultPool)
	if got := p.Remaining(Red); got != 15 {
		t.Fatalf("red total = %d", got)
	}

	seen := map[Piece]int{}
	for i := 0; i < 15; i++ {
		before := p.Remaining(Red)
		piece, ok := p.Draw(Red)
		if !ok {
			t.Fatalf("draw %d exhausted early", i)
		}
		if piece.Color != Red || piece.Hidden {
			t.Fatalf("drew %v for red", piece)
		}
		if p.Remaining(Red) != before-1 {
			t.Fatalf("remaining %d after draw from %d", p.Remaining(Red), before)
		}
		seen[piece]++
	}
	if _, ok := p.Draw(Red); ok {
		t.Fatalf("expected exhaustion")
	}
	if seen[NewPiece(Pawn, Red)] != 5 || seen[NewPiece(Rook, Red)] != 2 {
		t.Fatalf("unexpected draw distribution %v", seen)
	}
	if got := p.Remaining(Black); got != 15 {
		t.Fatalf("black pool touched: %d", got)
	}
}

func TestPoolDrawWeightedByUnits(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	pawns := 0
	const trials = 4000
	for i := 0; i < trials; i++ {
		p := NewPool(rng)
		p.Parse("R1P9")
		piece, _ := p.Draw(Red)
		if piece.Kind == Pawn {
			pawns++
		}
	}
	// 9 of 10 units are pawns.
	if pawns < trials*8/10 {
		t.Fatalf("pawns drawn %d/%d; draw is not weighted by count", pawns, trials)
	}
}
