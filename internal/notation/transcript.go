package notation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/internal/arena"
	"github.com/park285/jieqi-arena/internal/jieqi"
	"github.com/park285/jieqi-arena/internal/msgcat"
	"github.com/park285/jieqi-arena/pkg/matchdto"
)

// Metadata fields are written in this order.
type Metadata struct {
	Event      string `json:"event"`
	Site       string `json:"site"`
	Date       string `json:"date"`
	Round      string `json:"round"`
	White      string `json:"white"`
	Black      string `json:"black"`
	Result     string `json:"result"`
	InitialFen string `json:"initialFen"`
	FlipMode   string `json:"flipMode"`
	CurrentFen string `json:"currentFen"`
}

type Transcript struct {
	Metadata Metadata              `json:"metadata"`
	Moves    []matchdto.MoveRecord `json:"moves"`
}

// NewTranscript builds the file contents for one finished game.
func NewTranscript(rec matchdto.GameRecord) Transcript {
	finished := rec.FinishedAt
	if finished.IsZero() {
		finished = time.Now()
	}
	moves := rec.Moves
	if moves == nil {
		moves = []matchdto.MoveRecord{}
	}
	return Transcript{
		Metadata: Metadata{
			Event:      "Jieqi Game",
			Site:       "jieqibox",
			Date:       finished.Format("2006-01-02"),
			Round:      strconv.Itoa(rec.GameNumber),
			White:      rec.Red,
			Black:      rec.Black,
			Result:     rec.Result,
			InitialFen: rec.InitialFEN,
			FlipMode:   "random",
			CurrentFen: rec.FinalFEN,
		},
		Moves: moves,
	}
}

type WriterOption func(*Writer)

func WithHost(host func(string)) WriterOption { return func(w *Writer) { w.host = host } }

func WithLogger(log *zap.Logger) WriterOption {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}

func WithMessages(m *msgcat.Catalog) WriterOption {
	return func(w *Writer) {
		if m != nil {
			w.msgs = m
		}
	}
}

// WithImages also writes a PNG of the final position next to each transcript.
func WithImages(r BoardRenderer) WriterOption { return func(w *Writer) { w.renderer = r } }

// Writer saves one JSON transcript per finished game. It is an
// arena.Observer; file writes are serialised.
type Writer struct {
	dir      string
	host     func(string)
	log      *zap.Logger
	msgs     *msgcat.Catalog
	renderer BoardRenderer

	mu sync.Mutex
}

func NewWriter(dir string, opts ...WriterOption) *Writer {
	if dir == "" {
		dir = "notations"
	}
	w := &Writer{dir: dir, log: zap.NewNop(), msgs: msgcat.Default()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

func (w *Writer) Path(gameNumber int) string {
	return filepath.Join(w.dir, fmt.Sprintf("game_%d.json", gameNumber))
}

func (w *Writer) ImagePath(gameNumber int) string {
	return filepath.Join(w.dir, fmt.Sprintf("game_%d.png", gameNumber))
}

// Write stores the transcript and returns its path.
func (w *Writer) Write(rec matchdto.GameRecord) (string, error) {
	data, err := json.MarshalIndent(NewTranscript(rec), "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode transcript: %w", err)
	}
	path := w.Path(rec.GameNumber)

	w.mu.Lock()
	defer w.mu.Unlock()
	if err := os.MkdirAll(w.dir, 0o755); err != nil {
		return path, fmt.Errorf("create notation dir: %w", err)
	}
	if err := os.WriteFile(path, append(data, '\n'), 0o644); err != nil {
		return path, fmt.Errorf("write transcript: %w", err)
	}
	return path, nil
}

// GameFinished saves the transcript. Games that were never set up, because
// an engine failed to start or the position was rejected, have nothing to
// record.
func (w *Writer) GameFinished(ctx context.Context, rec matchdto.GameRecord, primary bool) {
	if !rec.Started || rec.Reason == string(arena.ReasonEngineFailure) {
		return
	}
	path, err := w.Write(rec)
	if err != nil {
		w.log.Warn("notation_write_failed", zap.Int("game", rec.GameNumber), zap.Error(err))
		w.info("game.notation_failed", map[string]any{"ID": rec.GameNumber, "Error": err.Error()})
		return
	}
	worker := "secondary"
	if primary {
		worker = "primary"
	}
	w.info("game.notation_saved", map[string]any{"ID": rec.GameNumber, "Path": path, "Worker": worker})

	if w.renderer != nil {
		if err := w.writeImage(ctx, rec); err != nil {
			w.log.Warn("notation_image_failed", zap.Int("game", rec.GameNumber), zap.Error(err))
		}
	}
}

func (w *Writer) writeImage(ctx context.Context, rec matchdto.GameRecord) error {
	pos, err := jieqi.ParseFEN(rec.FinalFEN, nil)
	if err != nil {
		return err
	}
	opts := RenderOptions{
		Caption: fmt.Sprintf("Game %d  %s vs %s  %s", rec.GameNumber, rec.Red, rec.Black, rec.Result),
	}
	if n := len(rec.Moves); n > 0 {
		if from, to, ok := jieqi.ParseMove(rec.Moves[n-1].Data); ok {
			opts.LastMove = &Highlight{From: from, To: to}
		}
	}
	png, err := w.renderer.RenderPNG(ctx, pos.Board, opts)
	if err != nil {
		return err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	return os.WriteFile(w.ImagePath(rec.GameNumber), png, 0o644)
}

func (w *Writer) StandingsUpdated(context.Context, matchdto.Standings) {}

func (w *Writer) MatchFinished(context.Context, matchdto.MatchSummary) {}

func (w *Writer) info(key string, data map[string]any) {
	if w.host != nil {
		w.host("info string " + w.msgs.Text(key, data))
	}
}
