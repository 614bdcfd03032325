package uci

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"
)

var (
	ErrEmptyCommand      = errors.New("empty engine command")
	ErrEngineNotStarted  = errors.New("engine not started")
	ErrEngineAlreadyUsed = errors.New("engine channel already started")
)

// reapTimeout bounds how long Stop waits for stdout to close after the kill.
const reapTimeout = 2 * time.Second

// Channel is a bidirectional line stream to one engine. ReadLine returns
// io.EOF once the engine's output is exhausted.
type Channel interface {
	Start(command string) error
	WriteLine(line string) error
	ReadLine(ctx context.Context) (string, error)
	Running() bool
	Stop() error
}

// ProcessChannel runs the engine as a child process and talks to it over
// its stdin and stdout.
type ProcessChannel struct {
	log *zap.Logger

	mu      sync.Mutex
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	lines   chan string
	started bool
	exited  atomic.Bool
	waited  chan struct{}
	quit    chan struct{}
	once    sync.Once
}

func NewProcessChannel(log *zap.Logger) *ProcessChannel {
	if log == nil {
		log = zap.NewNop()
	}
	return &ProcessChannel{log: log}
}

// Start splits command on whitespace; the first field is the executable.
func (p *ProcessChannel) Start(command string) error {
	fields := strings.Fields(command)
	if len(fields) == 0 {
		return ErrEmptyCommand
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return ErrEngineAlreadyUsed
	}

	cmd := exec.Command(fields[0], fields[1:]...)
	isolate(cmd)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("create stdin pipe: %w", err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		stdin.Close()
		return fmt.Errorf("create stdout pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		stdin.Close()
		return fmt.Errorf("start engine: %w", err)
	}

	p.cmd = cmd
	p.stdin = stdin
	p.stdout = stdout
	p.lines = make(chan string, 256)
	p.waited = make(chan struct{})
	p.quit = make(chan struct{})
	p.started = true

	go p.pump(stdout, p.lines, p.quit)
	return nil
}

// pump forwards stdout lines until EOF. After Stop, lines are discarded so
// the child never blocks on a full pipe.
func (p *ProcessChannel) pump(stdout io.Reader, lines chan<- string, quit <-chan struct{}) {
	sc := bufio.NewScanner(stdout)
	sc.Buffer(make([]byte, 64*1024), 1024*1024)
	for sc.Scan() {
		select {
		case lines <- strings.TrimRight(sc.Text(), "\r"):
		case <-quit:
		}
	}
	if err := sc.Err(); err != nil {
		p.log.Debug("engine_stdout_error", zap.Error(err))
	}
	close(lines)

	err := p.cmd.Wait()
	p.exited.Store(true)
	close(p.waited)
	if err != nil {
		p.log.Debug("engine_exit", zap.Error(err))
	}
}

func (p *ProcessChannel) WriteLine(line string) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return ErrEngineNotStarted
	}
	_, err := io.WriteString(p.stdin, line+"\n")
	return err
}

func (p *ProcessChannel) ReadLine(ctx context.Context) (string, error) {
	p.mu.Lock()
	lines := p.lines
	p.mu.Unlock()
	if lines == nil {
		return "", ErrEngineNotStarted
	}

	select {
	case <-ctx.Done():
		return "", ctx.Err()
	case line, ok := <-lines:
		if !ok {
			return "", io.EOF
		}
		return line, nil
	}
}

func (p *ProcessChannel) Running() bool {
	p.mu.Lock()
	started := p.started
	p.mu.Unlock()
	return started && !p.exited.Load()
}

// Stop kills the process and everything it spawned, then waits for it to
// be reaped. Safe to call more than once.
func (p *ProcessChannel) Stop() error {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return nil
	}
	cmd, stdin, stdout, waited := p.cmd, p.stdin, p.stdout, p.waited
	p.mu.Unlock()

	p.once.Do(func() { close(p.quit) })
	_ = stdin.Close()
	if !p.exited.Load() {
		if err := killTree(cmd); err != nil {
			p.log.Debug("engine_kill_failed", zap.Error(err))
		}
	}

	t := time.NewTimer(reapTimeout)
	defer t.Stop()
	select {
	case <-waited:
		return nil
	case <-t.C:
	}
	// Something outside the process group still holds stdout.
	p.log.Warn("engine_stdout_held", zap.Int("pid", cmd.Process.Pid))
	_ = stdout.Close()
	<-waited
	return nil
}
