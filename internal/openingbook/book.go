package openingbook

import (
	"bufio"
	"fmt"
	"io"
	"math/rand"
	"os"
	"strings"

	"github.com/park285/jieqi-arena/internal/jieqi"
)

// Skipped records a book line that did not decode as a position.
type Skipped struct {
	Line int
	Err  error
}

// Book is an ordered list of start positions, one extended FEN per line.
type Book struct {
	positions []string
	Skipped   []Skipped
}

// Load reads a book file. A missing or unreadable file is an error; blank
// and undecodable lines are not.
func Load(path string) (*Book, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open book: %w", err)
	}
	defer f.Close()
	return Parse(f)
}

func Parse(r io.Reader) (*Book, error) {
	b := &Book{}
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 4096), 64*1024)
	n := 0
	for sc.Scan() {
		n++
		line := strings.TrimSpace(sc.Text())
		if line == "" {
			continue
		}
		if _, err := jieqi.ParseFEN(line, nil); err != nil {
			b.Skipped = append(b.Skipped, Skipped{Line: n, Err: err})
			continue
		}
		b.positions = append(b.positions, line)
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read book: %w", err)
	}
	return b, nil
}

func (b *Book) Len() int { return len(b.positions) }

// Positions returns a copy in the current order.
func (b *Book) Positions() []string { return append([]string(nil), b.positions...) }

func (b *Book) Shuffle(rng *rand.Rand) {
	rng.Shuffle(len(b.positions), func(i, j int) {
		b.positions[i], b.positions[j] = b.positions[j], b.positions[i]
	})
}
