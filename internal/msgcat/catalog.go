package msgcat

import (
	_ "embed"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"text/template"

	yaml "gopkg.in/yaml.v3"
)

//go:embed messages.en.yaml
var embedded []byte

// Catalog holds the host-facing info strings as parsed templates keyed by
// "section.name". It is immutable after New.
type Catalog struct {
	tmpl map[string]*template.Template
}

var (
	defaultOnce sync.Once
	defaultCat  *Catalog
)

// Default returns the catalog built from the embedded messages only.
func Default() *Catalog {
	defaultOnce.Do(func() {
		c, err := New("")
		if err != nil {
			panic(err)
		}
		defaultCat = c
	})
	return defaultCat
}

// New loads the embedded messages, then every *.yaml/*.yml file in
// overrideDir in name order. Overrides may only replace existing keys, and
// every template is parsed up front.
func New(overrideDir string) (*Catalog, error) {
	src, err := decode(embedded)
	if err != nil {
		return nil, fmt.Errorf("parse embedded messages: %w", err)
	}
	if dir := strings.TrimSpace(overrideDir); dir != "" {
		if err := applyOverrides(src, dir); err != nil {
			return nil, err
		}
	}

	c := &Catalog{tmpl: make(map[string]*template.Template, len(src))}
	for key, text := range src {
		t, err := template.New(key).Option("missingkey=error").Parse(text)
		if err != nil {
			return nil, fmt.Errorf("message %s: %w", key, err)
		}
		c.tmpl[key] = t
	}
	return c, nil
}

func applyOverrides(src map[string]string, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return fmt.Errorf("read message dir: %w", err)
	}
	var names []string
	for _, e := range entries {
		ext := strings.ToLower(filepath.Ext(e.Name()))
		if !e.IsDir() && (ext == ".yaml" || ext == ".yml") {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)

	for _, name := range names {
		raw, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return fmt.Errorf("read %s: %w", name, err)
		}
		over, err := decode(raw)
		if err != nil {
			return fmt.Errorf("parse %s: %w", name, err)
		}
		for key, text := range over {
			if _, ok := src[key]; !ok {
				return fmt.Errorf("%s: unknown message %q", name, key)
			}
			src[key] = text
		}
	}
	return nil
}

// decode reads the two-level section/name layout of the message files.
func decode(raw []byte) (map[string]string, error) {
	var sections map[string]map[string]string
	if err := yaml.Unmarshal(raw, &sections); err != nil {
		return nil, err
	}
	out := make(map[string]string)
	for section, msgs := range sections {
		for name, text := range msgs {
			out[section+"."+name] = text
		}
	}
	return out, nil
}

// Render executes the template stored under key. Missing keys in data are
// errors.
func (c *Catalog) Render(key string, data any) (string, error) {
	t, ok := c.tmpl[key]
	if !ok {
		return "", fmt.Errorf("template not found: %s", key)
	}
	var b strings.Builder
	if err := t.Execute(&b, data); err != nil {
		return "", err
	}
	return b.String(), nil
}

// Text is Render for callers that cannot handle an error; it falls back to
// the key itself.
func (c *Catalog) Text(key string, data any) string {
	s, err := c.Render(key, data)
	if err != nil {
		return key
	}
	return s
}
