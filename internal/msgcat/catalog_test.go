package msgcat

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefaultRendersEmbeddedMessages(t *testing.T) {
	c := Default()
	tests := []struct {
		key  string
		data map[string]any
		want string
	}{
		{"match.finished", nil, "Tournament finished!"},
		{"verdict.illegal", map[string]any{"Loser": "Red", "Winner": "Black", "Move": "a0a5"}, "Red made an illegal move (a0a5). Black wins."},
		{"game.finished", map[string]any{"ID": 3, "Score1": 1.5, "Score2": 0.5, "Draws": 1}, "Game 3 Finished. Score: E1 1.5 - E2 0.5 (Draws: 1)"},
	}
	for _, tt := range tests {
		got, err := c.Render(tt.key, tt.data)
		if err != nil {
			t.Fatalf("Render(%s): %v", tt.key, err)
		}
		if got != tt.want {
			t.Errorf("Render(%s) = %q, want %q", tt.key, got, tt.want)
		}
	}
}

func TestRenderMissingData(t *testing.T) {
	if _, err := Default().Render("verdict.timeout", map[string]any{"Loser": "Red"}); err == nil {
		t.Fatalf("expected missing key error")
	}
	if _, err := Default().Render("no.such.key", nil); err == nil {
		t.Fatalf("expected not found error")
	}
	if got := Default().Text("no.such.key", nil); got != "no.such.key" {
		t.Fatalf("Text fallback = %q", got)
	}
}

func TestOverrideDir(t *testing.T) {
	dir := t.TempDir()
	write := func(name, body string) {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
	}
	write("a.yaml", "match:\n  finished: \"All games played.\"\n")
	write("notes.txt", "ignored")

	c, err := New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("match.finished", nil); got != "All games played." {
		t.Fatalf("override = %q", got)
	}
	if got := c.Text("match.stopped", nil); got != "Tournament stopped prematurely." {
		t.Fatalf("embedded = %q", got)
	}

	write("b.yml", "match:\n  finished: \"Last file wins.\"\n")
	c, err = New(dir)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if got := c.Text("match.finished", nil); got != "Last file wins." {
		t.Fatalf("override order = %q", got)
	}
}

func TestOverrideRejectsUnknownKeysAndBadTemplates(t *testing.T) {
	for name, body := range map[string]string{
		"unknown key":  "match:\n  finshed: \"typo\"\n",
		"bad template": "match:\n  started: \"{{.Workers\"\n",
		"wrong shape":  "match: \"flat\"\n",
	} {
		dir := t.TempDir()
		if err := os.WriteFile(filepath.Join(dir, "m.yaml"), []byte(body), 0o644); err != nil {
			t.Fatal(err)
		}
		if _, err := New(dir); err == nil {
			t.Errorf("%s: expected error", name)
		}
	}
}

func TestOverrideDirMissing(t *testing.T) {
	if _, err := New(filepath.Join(t.TempDir(), "absent")); err == nil {
		t.Fatalf("expected error")
	}
}
