package openingbook

import (
	"math/rand"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/park285/jieqi-arena/internal/jieqi"
)

const altFEN = "xxxxkxxxx/9/1x5x1/x1x1x1x1x/9/9/X1X1X1X1X/1X5X1/9/XXXXKXXXX b R2r2N2n2B2b2A2a2C2c2P5p5 0 1"

func TestParseSkipsBlankAndInvalid(t *testing.T) {
	in := strings.Join([]string{
		jieqi.DefaultFEN,
		"",
		"   ",
		"not a fen",
		altFEN + "\r",
	}, "\n")
	b, err := Parse(strings.NewReader(in))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if diff := cmp.Diff([]string{jieqi.DefaultFEN, altFEN}, b.Positions()); diff != "" {
		t.Fatalf("positions (-want +got):\n%s", diff)
	}
	if len(b.Skipped) != 1 || b.Skipped[0].Line != 4 {
		t.Fatalf("skipped = %+v", b.Skipped)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.txt")); err == nil {
		t.Fatalf("expected error")
	}
}

func TestLoadAndShuffleKeepsPositions(t *testing.T) {
	path := filepath.Join(t.TempDir(), "book.txt")
	lines := []string{jieqi.DefaultFEN, altFEN, "4k4/9/9/9/9/9/9/9/9/3K5 w - 0 1"}
	if err := os.WriteFile(path, []byte(strings.Join(lines, "\n")+"\n"), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	b, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	b.Shuffle(rand.New(rand.NewSource(3)))

	got := b.Positions()
	sort.Strings(got)
	want := append([]string(nil), lines...)
	sort.Strings(want)
	if diff := cmp.Diff(want, got); diff != "" {
		t.Fatalf("shuffle changed contents (-want +got):\n%s", diff)
	}
}
