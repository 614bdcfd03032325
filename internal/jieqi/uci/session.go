package uci

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// Resign is returned by RequestMove whenever no usable move arrives.
	Resign = "resign"

	MateScore = 10000

	stopGrace    = 100 * time.Millisecond
	deadPollWait = 10 * time.Millisecond
)

// Forwarder receives host-bound report lines.
type Forwarder func(line string)

type Option func(*Session)

func WithLogger(log *zap.Logger) Option {
	return func(s *Session) {
		if log != nil {
			s.log = log
		}
	}
}

// WithTrace logs every line sent to or received from the engine at debug
// level.
func WithTrace(on bool) Option { return func(s *Session) { s.trace = on } }

func WithForwarder(f Forwarder) Option { return func(s *Session) { s.forward = f } }

// Session drives one engine through the move protocol.
type Session struct {
	name    string
	ch      Channel
	log     *zap.Logger
	trace   bool
	forward Forwarder

	mu       sync.Mutex
	started  bool
	stopped  bool
	score    int
	hasScore bool
}

func NewSession(name string, ch Channel, opts ...Option) *Session {
	s := &Session{name: name, ch: ch, log: zap.NewNop()}
	for _, opt := range opts {
		opt(s)
	}
	s.log = s.log.With(zap.String("engine", name))
	return s
}

func (s *Session) Name() string { return s.name }

// Start launches the engine. It reports false instead of returning an error
// so a failed spawn can be scored like any other loss.
func (s *Session) Start(command string) bool {
	if err := s.ch.Start(command); err != nil {
		s.log.Warn("engine_spawn_failed", zap.String("command", command), zap.Error(err))
		return false
	}
	s.mu.Lock()
	s.started = true
	s.mu.Unlock()
	return true
}

// Stop asks the engine to quit, waits briefly and then kills it.
func (s *Session) Stop() {
	s.mu.Lock()
	if s.stopped || !s.started {
		s.stopped = true
		s.mu.Unlock()
		return
	}
	s.stopped = true
	s.mu.Unlock()

	if s.ch.Running() {
		_ = s.send("quit")
		time.Sleep(stopGrace)
	}
	if err := s.ch.Stop(); err != nil {
		s.log.Debug("engine_stop_error", zap.Error(err))
	}
}

func (s *Session) SetPosition(fen string, moves []string) error {
	return s.send(buildPositionCommand(fen, moves))
}

// ApplyOptions sends one setoption per "name X value Y" segment of blob.
// A segment runs up to the next "name " marker, so values may contain spaces.
func (s *Session) ApplyOptions(blob string) {
	for _, opt := range ParseOptions(blob) {
		if err := s.send(fmt.Sprintf("setoption name %s value %s", opt.Name, opt.Value)); err != nil {
			s.log.Warn("engine_option_failed", zap.String("option", opt.Name), zap.Error(err))
		}
	}
}

// RequestMove sends goCmd and blocks for the bestmove token. Analysis lines
// are forwarded only when primary is set. Resign is returned if the engine
// dies, or when ctx ends first.
func (s *Session) RequestMove(ctx context.Context, goCmd string, primary bool) string {
	s.mu.Lock()
	s.score, s.hasScore = 0, false
	s.mu.Unlock()

	if err := s.send(goCmd); err != nil {
		s.log.Warn("engine_write_failed", zap.Error(err))
	}

	for {
		line, err := s.ch.ReadLine(ctx)
		if err != nil {
			if ctx.Err() != nil {
				s.log.Warn("engine_move_wait_aborted", zap.Error(ctx.Err()))
				return Resign
			}
			if !errors.Is(err, io.EOF) || !s.ch.Running() {
				s.report(fmt.Sprintf("info string Error: Engine %s has stopped responding.", s.name))
				return Resign
			}
			select {
			case <-ctx.Done():
			case <-time.After(deadPollWait):
			}
			continue
		}
		if s.trace {
			s.log.Debug("engine_recv", zap.String("line", line))
		}

		switch {
		case line == "":
			continue
		case strings.HasPrefix(line, "info"):
			if strings.HasPrefix(line, "info string") {
				continue
			}
			if score, ok := ParseScore(line); ok {
				s.mu.Lock()
				s.score, s.hasScore = score, true
				s.mu.Unlock()
			}
			if primary {
				s.report(line)
			}
		case strings.HasPrefix(line, "bestmove"):
			fields := strings.Fields(line)
			if len(fields) < 2 {
				return ""
			}
			return fields[1]
		}
	}
}

// LastScore is the evaluation seen during the latest RequestMove.
func (s *Session) LastScore() (int, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.score, s.hasScore
}

func (s *Session) send(line string) error {
	if s.trace {
		s.log.Debug("engine_send", zap.String("line", line))
	}
	return s.ch.WriteLine(line)
}

func (s *Session) report(line string) {
	if s.forward != nil {
		s.forward(line)
	}
}

func buildPositionCommand(fen string, moves []string) string {
	var sb strings.Builder
	sb.WriteString("position fen ")
	sb.WriteString(fen)
	if len(moves) > 0 {
		sb.WriteString(" moves ")
		sb.WriteString(strings.Join(moves, " "))
	}
	return sb.String()
}

// ParseScore extracts the last "score cp N" or "score mate N" of an info
// line. Mate scores map to +/-MateScore.
func ParseScore(line string) (int, bool) {
	parts := strings.Fields(line)
	var (
		score int
		found bool
	)
	for i := 0; i+2 < len(parts); i++ {
		if parts[i] != "score" {
			continue
		}
		v, err := strconv.Atoi(parts[i+2])
		if err != nil {
			continue
		}
		switch parts[i+1] {
		case "cp":
			score, found = v, true
		case "mate":
			if v >= 0 {
				score = MateScore
			} else {
				score = -MateScore
			}
			found = true
		}
		i += 2
	}
	return score, found
}

// EngineOption is one parsed "name X value Y" pair.
type EngineOption struct {
	Name  string
	Value string
}

func ParseOptions(blob string) []EngineOption {
	const (
		nameKey  = "name "
		valueKey = " value "
	)
	var out []EngineOption
	pos := strings.Index(blob, nameKey)
	for pos >= 0 {
		rest := blob[pos+len(nameKey):]
		block := rest
		next := strings.Index(rest, nameKey)
		if next >= 0 {
			block = rest[:next]
		}
		// block is rest minus the "name " prefix, so prepend the space that
		// " value " expects when the name is empty.
		if i := strings.Index(" "+block, valueKey); i >= 0 {
			name := strings.TrimSpace((" " + block)[:i])
			value := strings.TrimSpace((" " + block)[i+len(valueKey):])
			if name != "" {
				out = append(out, EngineOption{Name: name, Value: value})
			}
		}
		if next < 0 {
			break
		}
		pos = pos + len(nameKey) + next
	}
	return out
}
