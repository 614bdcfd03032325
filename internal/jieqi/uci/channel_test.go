package uci

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strings"
	"testing"
	"time"
)

const helperEnv = "JIEQI_UCI_HELPER_ENGINE"

// TestHelperEngine is not a real test: it is the engine binary spawned by
// the ProcessChannel tests.
func TestHelperEngine(t *testing.T) {
	if os.Getenv(helperEnv) != "1" {
		return
	}
	in := bufio.NewScanner(os.Stdin)
	for in.Scan() {
		line := in.Text()
		switch {
		case strings.HasPrefix(line, "go"):
			fmt.Println("info depth 1 score cp 17 pv a3a4")
			fmt.Println("bestmove a3a4")
		case line == "crash":
			os.Exit(3)
		case line == "quit":
			os.Exit(0)
		}
	}
	os.Exit(0)
}

func helperCommand(t *testing.T) string {
	t.Helper()
	if strings.ContainsAny(os.Args[0], " \t") {
		t.Skip("test binary path contains whitespace")
	}
	t.Setenv(helperEnv, "1")
	return os.Args[0] + " -test.run=^TestHelperEngine$"
}

func TestProcessChannelRoundTrip(t *testing.T) {
	cmd := helperCommand(t)
	s := NewSession("helper", NewProcessChannel(nil))
	if !s.Start(cmd) {
		t.Fatalf("start failed")
	}
	defer s.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.SetPosition("startfen", nil); err != nil {
		t.Fatalf("SetPosition: %v", err)
	}
	if got := s.RequestMove(ctx, "go movetime 10", false); got != "a3a4" {
		t.Fatalf("move = %q", got)
	}
	if score, ok := s.LastScore(); !ok || score != 17 {
		t.Fatalf("score = %d, %v", score, ok)
	}
}

func TestProcessChannelCrashResigns(t *testing.T) {
	cmd := helperCommand(t)
	ch := NewProcessChannel(nil)
	s := NewSession("helper", ch)
	if !s.Start(cmd) {
		t.Fatalf("start failed")
	}
	defer s.Stop()

	if err := ch.WriteLine("crash"); err != nil {
		t.Fatalf("WriteLine: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if got := s.RequestMove(ctx, "go", false); got != Resign {
		t.Fatalf("move = %q", got)
	}
	if ch.Running() {
		t.Fatalf("crashed engine still reported running")
	}
}

func TestProcessChannelStartErrors(t *testing.T) {
	ch := NewProcessChannel(nil)
	if err := ch.Start("   "); err != ErrEmptyCommand {
		t.Fatalf("err = %v", err)
	}
	if err := ch.Start("/nonexistent/engine-binary"); err == nil {
		t.Fatalf("expected spawn error")
	}
	if err := ch.WriteLine("go"); err != ErrEngineNotStarted {
		t.Fatalf("err = %v", err)
	}
	if ch.Running() {
		t.Fatalf("not running")
	}
	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop on idle channel: %v", err)
	}
}

func TestProcessChannelStopKillsForkedChildren(t *testing.T) {
	if runtime.GOOS == "windows" {
		t.Skip("needs /bin/sh")
	}
	if _, err := os.Stat("/bin/sh"); err != nil {
		t.Skip("needs /bin/sh")
	}
	dir := t.TempDir()
	if strings.ContainsAny(dir, " \t") {
		t.Skip("temp dir contains whitespace")
	}
	marker := filepath.Join(dir, "child-survived")
	script := filepath.Join(dir, "engine.sh")
	body := "#!/bin/sh\n(sleep 3; touch " + marker + ") &\necho ready\nwhile read line; do :; done\n"
	if err := os.WriteFile(script, []byte(body), 0o755); err != nil {
		t.Fatal(err)
	}

	ch := NewProcessChannel(nil)
	if err := ch.Start(script); err != nil {
		t.Fatalf("Start: %v", err)
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if line, err := ch.ReadLine(ctx); err != nil || line != "ready" {
		t.Fatalf("ReadLine = %q, %v", line, err)
	}

	begin := time.Now()
	if err := ch.Stop(); err != nil {
		t.Fatalf("Stop: %v", err)
	}
	if took := time.Since(begin); took > time.Second {
		t.Fatalf("Stop took %v with a forked child holding stdout", took)
	}
	if ch.Running() {
		t.Fatalf("engine still running after Stop")
	}

	time.Sleep(3500 * time.Millisecond)
	if _, err := os.Stat(marker); err == nil {
		t.Fatalf("forked child outlived Stop")
	}
}
