package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"

	"github.com/park285/jieqi-arena/internal/arena"
	"github.com/park285/jieqi-arena/internal/jieqi"
)

var (
	ErrUnknownOption = errors.New("unknown option")
	ErrInvalidOption = errors.New("invalid option value")
)

// Settings is the match configuration the host can change with setoption.
type Settings struct {
	Engine1Path     string `yaml:"engine1_path"`
	Engine1Options  string `yaml:"engine1_options"`
	Engine2Path     string `yaml:"engine2_path"`
	Engine2Options  string `yaml:"engine2_options"`
	BookFile        string `yaml:"book_file"`
	SaveNotation    bool   `yaml:"save_notation"`
	SaveNotationDir string `yaml:"save_notation_dir"`
	SaveBoardImage  bool   `yaml:"save_board_image"`
	TotalRounds     int    `yaml:"total_rounds"`
	Concurrency     int    `yaml:"concurrency"`
	MainTimeMs      int64  `yaml:"main_time_ms"`
	IncTimeMs       int64  `yaml:"inc_time_ms"`
	TimeoutBufferMs int64  `yaml:"timeout_buffer_ms"`
	MoveTimeoutMs   int64  `yaml:"move_timeout_ms"`
	MaxPlies        int    `yaml:"max_plies"`
	Logging         bool   `yaml:"logging"`
}

// AppConfig is everything the binary needs at startup.
type AppConfig struct {
	Settings Settings

	RedisURL       string
	RedisKeyPrefix string
	DatabaseURL    string
	WebhookURL     string
	TelemetryWSURL string
	MessagesDir    string
}

func Defaults() Settings {
	return Settings{
		SaveNotationDir: "notations",
		TotalRounds:     10,
		Concurrency:     2,
		MainTimeMs:      1000,
		IncTimeMs:       100,
		TimeoutBufferMs: 5000,
		MaxPlies:        arena.DefaultMaxPlies,
	}
}

// Load reads .env (if present), then the YAML file named by ARENA_CONFIG,
// then per-option environment overrides.
func Load() (*AppConfig, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	cfg := &AppConfig{Settings: Defaults(), RedisKeyPrefix: "jieqi"}

	if path := strings.TrimSpace(os.Getenv("ARENA_CONFIG")); path != "" {
		if err := cfg.Settings.loadYAML(path); err != nil {
			return nil, err
		}
	}

	for _, env := range envOptions {
		v, ok := os.LookupEnv(env.key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		if err := cfg.Settings.Apply(env.option, strings.TrimSpace(v)); err != nil {
			return nil, fmt.Errorf("%s: %w", env.key, err)
		}
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	if v := strings.TrimSpace(os.Getenv("REDIS_KEY_PREFIX")); v != "" {
		cfg.RedisKeyPrefix = v
	}
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.WebhookURL = strings.TrimSpace(os.Getenv("WEBHOOK_URL"))
	cfg.TelemetryWSURL = strings.TrimSpace(os.Getenv("TELEMETRY_WS_URL"))
	cfg.MessagesDir = strings.TrimSpace(os.Getenv("MESSAGES_DIR"))

	return cfg, nil
}

func (s *Settings) loadYAML(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, s); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}
	return s.validate()
}

func (s *Settings) validate() error {
	for _, d := range Declarations {
		if d.Type != "spin" {
			continue
		}
		v := s.spinValue(d.Name)
		if v < d.Min || v > d.Max {
			return fmt.Errorf("%w: %s=%d out of range [%d, %d]", ErrInvalidOption, d.Name, v, d.Min, d.Max)
		}
	}
	return nil
}

type envOption struct {
	key    string
	option string
}

var envOptions = []envOption{
	{"ENGINE1_PATH", "Engine1Path"},
	{"ENGINE1_OPTIONS", "Engine1Options"},
	{"ENGINE2_PATH", "Engine2Path"},
	{"ENGINE2_OPTIONS", "Engine2Options"},
	{"BOOK_FILE", "BookFile"},
	{"SAVE_NOTATION", "SaveNotation"},
	{"SAVE_NOTATION_DIR", "SaveNotationDir"},
	{"SAVE_BOARD_IMAGE", "SaveBoardImage"},
	{"TOTAL_ROUNDS", "TotalRounds"},
	{"CONCURRENCY", "Concurrency"},
	{"MAIN_TIME_MS", "MainTimeMs"},
	{"INC_TIME_MS", "IncTimeMs"},
	{"TIMEOUT_BUFFER_MS", "TimeoutBufferMs"},
	{"MOVE_TIMEOUT_MS", "MoveTimeoutMs"},
	{"MAX_PLIES", "MaxPlies"},
	{"ENGINE_LOGGING", "Logging"},
}

// Apply sets one option by its host-protocol name. Spin values are checked
// against the declared range; check values are true only for "true".
func (s *Settings) Apply(name, value string) error {
	d, ok := declaration(name)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownOption, name)
	}

	switch d.Type {
	case "check":
		on := strings.EqualFold(strings.TrimSpace(value), "true")
		switch name {
		case "SaveNotation":
			s.SaveNotation = on
		case "SaveBoardImage":
			s.SaveBoardImage = on
		case "Logging":
			s.Logging = on
		}
	case "spin":
		n, err := strconv.ParseInt(strings.TrimSpace(value), 10, 64)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidOption, name, value)
		}
		if n < d.Min || n > d.Max {
			return fmt.Errorf("%w: %s=%d out of range [%d, %d]", ErrInvalidOption, name, n, d.Min, d.Max)
		}
		s.setSpin(name, n)
	default:
		switch name {
		case "Engine1Path":
			s.Engine1Path = value
		case "Engine1Options":
			s.Engine1Options = value
		case "Engine2Path":
			s.Engine2Path = value
		case "Engine2Options":
			s.Engine2Options = value
		case "BookFile":
			s.BookFile = value
		case "SaveNotationDir":
			s.SaveNotationDir = value
		}
	}
	return nil
}

func (s *Settings) setSpin(name string, n int64) {
	switch name {
	case "TotalRounds":
		s.TotalRounds = int(n)
	case "Concurrency":
		s.Concurrency = int(n)
	case "MainTimeMs":
		s.MainTimeMs = n
	case "IncTimeMs":
		s.IncTimeMs = n
	case "TimeoutBufferMs":
		s.TimeoutBufferMs = n
	case "MoveTimeoutMs":
		s.MoveTimeoutMs = n
	case "MaxPlies":
		s.MaxPlies = int(n)
	}
}

func (s *Settings) spinValue(name string) int64 {
	switch name {
	case "TotalRounds":
		return int64(s.TotalRounds)
	case "Concurrency":
		return int64(s.Concurrency)
	case "MainTimeMs":
		return s.MainTimeMs
	case "IncTimeMs":
		return s.IncTimeMs
	case "TimeoutBufferMs":
		return s.TimeoutBufferMs
	case "MoveTimeoutMs":
		return s.MoveTimeoutMs
	case "MaxPlies":
		return int64(s.MaxPlies)
	}
	return 0
}

// Ready reports whether both engines are configured.
func (s Settings) Ready() bool {
	return strings.TrimSpace(s.Engine1Path) != "" && strings.TrimSpace(s.Engine2Path) != ""
}

// ArenaSettings snapshots the options for one match. A zero main time
// switches the games to fixed-time search.
func (s Settings) ArenaSettings() arena.Settings {
	tc := jieqi.TimeControl{}
	if s.MainTimeMs > 0 {
		tc = jieqi.TimeControl{
			RedMs:      s.MainTimeMs,
			BlackMs:    s.MainTimeMs,
			RedIncMs:   s.IncTimeMs,
			BlackIncMs: s.IncTimeMs,
		}
	}
	return arena.Settings{
		Engine1:     arena.EngineSpec{Command: s.Engine1Path, Options: s.Engine1Options},
		Engine2:     arena.EngineSpec{Command: s.Engine2Path, Options: s.Engine2Options},
		Rounds:      s.TotalRounds,
		Concurrency: s.Concurrency,
		TimeControl: tc,
		BufferMs:    s.TimeoutBufferMs,
		MoveTimeout: time.Duration(s.MoveTimeoutMs) * time.Millisecond,
		MaxPlies:    s.MaxPlies,
		BookFile:    s.BookFile,
		Trace:       s.Logging,
	}
}
