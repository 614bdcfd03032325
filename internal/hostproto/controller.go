package hostproto

import (
	"bufio"
	"context"
	"errors"
	"io"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/park285/jieqi-arena/internal/arena"
	"github.com/park285/jieqi-arena/internal/config"
	"github.com/park285/jieqi-arena/internal/msgcat"
	"github.com/park285/jieqi-arena/internal/obslog"
)

const (
	EngineName   = "JieqiArena Match Engine"
	EngineAuthor = "Velithia"
)

// Match is one running tournament. *arena.Scheduler implements it.
type Match interface {
	Run(ctx context.Context) arena.Stats
	Cancel()
}

// MatchFactory builds a fresh match from the settings in force at startmatch.
type MatchFactory func(settings config.Settings) Match

type Option func(*Controller)

func WithLogger(log *zap.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

func WithMessages(m *msgcat.Catalog) Option {
	return func(c *Controller) {
		if m != nil {
			c.msgs = m
		}
	}
}

// Controller runs the host command loop. Commands are handled one at a time
// on the caller's goroutine; only the match itself runs in the background.
type Controller struct {
	out      *Output
	settings config.Settings
	factory  MatchFactory
	log      *zap.Logger
	msgs     *msgcat.Catalog

	mu      sync.Mutex
	current Match
	done    chan struct{}
}

func NewController(out *Output, settings config.Settings, factory MatchFactory, opts ...Option) *Controller {
	c := &Controller{
		out:      out,
		settings: settings,
		factory:  factory,
		log:      zap.NewNop(),
		msgs:     msgcat.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Settings returns the current option values.
func (c *Controller) Settings() config.Settings { return c.settings }

// Run reads commands until quit, end of input or ctx cancellation. Every
// way out cancels and joins any running match before Run returns. Commands
// are handled on the caller's goroutine only; a separate reader feeds them
// in so that cancellation does not wait for the next input line.
func (c *Controller) Run(ctx context.Context, in io.Reader) error {
	lines := make(chan string)
	readErr := make(chan error, 1)
	done := make(chan struct{})
	defer close(done)
	go func() {
		sc := bufio.NewScanner(in)
		sc.Buffer(make([]byte, 4096), 1<<20)
		for sc.Scan() {
			select {
			case lines <- sc.Text():
			case <-done:
				return
			}
		}
		readErr <- sc.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			c.log.Info("host_loop_cancelled")
			c.shutdown()
			return ctx.Err()
		case err := <-readErr:
			c.shutdown()
			if err != nil && !errors.Is(err, io.EOF) {
				return err
			}
			return nil
		case line := <-lines:
			if quit := c.Handle(ctx, line); quit {
				return nil
			}
		}
	}
}

// Handle processes one command line and reports whether the loop should end.
func (c *Controller) Handle(ctx context.Context, line string) bool {
	line = strings.TrimRight(line, "\r")
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false
	}

	switch fields[0] {
	case "jai":
		c.handleJAI()
	case "setoption":
		c.handleSetOption(line)
	case "isready":
		if c.settings.Ready() {
			c.out.Line("readyok")
		} else {
			c.info("host.not_ready", nil)
		}
	case "startmatch":
		c.startMatch(ctx)
	case "stop":
		c.shutdown()
	case "quit":
		c.shutdown()
		return true
	default:
		c.log.Debug("host_unknown_command", zap.String("line", line))
	}
	return false
}

func (c *Controller) handleJAI() {
	c.out.Line("id name " + EngineName)
	c.out.Line("id author " + EngineAuthor)
	for _, d := range config.Declarations {
		c.out.Line(d.Line())
	}
	c.out.Line("jaiok")
}

func (c *Controller) handleSetOption(line string) {
	name, value, ok := parseSetOption(line)
	if !ok {
		c.log.Debug("setoption_malformed", zap.String("line", line))
		return
	}
	if err := c.settings.Apply(name, value); err != nil {
		c.log.Warn("setoption_rejected", zap.String("name", name), zap.Error(err))
		if errors.Is(err, config.ErrUnknownOption) {
			c.info("host.unknown_option", map[string]any{"Name": name})
		} else {
			c.info("host.bad_option", map[string]any{"Error": err.Error()})
		}
		return
	}
	if name == "Logging" {
		obslog.SetVerbose(c.settings.Logging)
	}
	c.log.Info("setoption", zap.String("name", name), zap.String("value", value))
}

// parseSetOption splits "setoption name <N> value <V...>". The name is one
// token and the value is the rest of the line, which may contain spaces.
func parseSetOption(line string) (name, value string, ok bool) {
	rest := line
	var tok [4]string
	for i := range tok {
		rest = strings.TrimLeft(rest, " \t")
		j := strings.IndexAny(rest, " \t")
		if j < 0 {
			tok[i], rest = rest, ""
			continue
		}
		tok[i], rest = rest[:j], rest[j:]
	}
	if tok[0] != "setoption" || tok[1] != "name" || tok[3] != "value" || tok[2] == "" {
		return "", "", false
	}
	if strings.HasPrefix(rest, " ") || strings.HasPrefix(rest, "\t") {
		rest = rest[1:]
	}
	return tok[2], rest, true
}

// startMatch waits for any previous match, then starts a new one in the
// background.
func (c *Controller) startMatch(ctx context.Context) {
	c.mu.Lock()
	prevDone := c.done
	c.mu.Unlock()
	if prevDone != nil {
		select {
		case <-prevDone:
		default:
			c.info("match.busy", nil)
			<-prevDone
		}
	}

	m := c.factory(c.settings)
	done := make(chan struct{})
	c.mu.Lock()
	c.current, c.done = m, done
	c.mu.Unlock()

	go func() {
		defer close(done)
		st := m.Run(ctx)
		c.log.Info("match_done",
			zap.Int("completed", st.Completed),
			zap.Int("wins", st.Wins),
			zap.Int("losses", st.Losses),
			zap.Int("draws", st.Draws),
			zap.Bool("stopped", st.Stopped))
	}()
}

// shutdown cancels the running match, which kills its engines and drops the
// queued games, and waits for it to return.
func (c *Controller) shutdown() {
	c.mu.Lock()
	m, done := c.current, c.done
	c.mu.Unlock()
	if m == nil {
		return
	}
	m.Cancel()
	<-done
}

// Wait blocks until the current match, if any, has finished.
func (c *Controller) Wait() {
	c.mu.Lock()
	done := c.done
	c.mu.Unlock()
	if done != nil {
		<-done
	}
}

func (c *Controller) info(key string, data map[string]any) {
	c.out.Line("info string " + c.msgs.Text(key, data))
}
