package obslog

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// 전역 로거. stdout은 호스트 프로토콜 채널이므로 콘솔 출력은 stderr로 보낸다.
var (
	globalLogger *zap.Logger = zap.NewNop()
	baseLevel                = zapcore.InfoLevel
	atomicLevel              = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	console      io.Writer   = os.Stderr
)

// Options describes where and how the arena logs.
type Options struct {
	Level   zapcore.Level
	Format  string // legacy | json | console
	Console bool
	File    string // empty disables the file sink
	Caller  bool
}

// L는 전역 로거를 반환.
func L() *zap.Logger { return globalLogger }

// SetVerbose는 Logging 옵션에 맞춰 debug 레벨을 켜고 끈다.
func SetVerbose(on bool) {
	if on {
		atomicLevel.SetLevel(zapcore.DebugLevel)
		return
	}
	atomicLevel.SetLevel(baseLevel)
}

// Level reports the currently enabled level.
func Level() zapcore.Level { return atomicLevel.Level() }

// OptionsFromEnv reads LOG_LEVEL, LOG_FORMAT, LOG_TO_CONSOLE, LOG_TO_FILE,
// LOG_FILE and LOG_CALLER.
func OptionsFromEnv() Options {
	opts := Options{
		Level:   parseLevel(os.Getenv("LOG_LEVEL")),
		Format:  strings.ToLower(strings.TrimSpace(os.Getenv("LOG_FORMAT"))),
		Console: envBool("LOG_TO_CONSOLE", true),
		Caller:  envBool("LOG_CALLER", false),
	}
	switch opts.Format {
	case "json", "console":
	default:
		opts.Format = "legacy"
	}
	if envBool("LOG_TO_FILE", false) {
		opts.File = filepath.Join("logs", "jieqi-arena.log")
		if p := strings.TrimSpace(os.Getenv("LOG_FILE")); p != "" {
			opts.File = p
		}
	}
	return opts
}

// InitFromEnv는 환경설정으로 zap 로거를 초기화.
func InitFromEnv() error { return Init(OptionsFromEnv()) }

// Init replaces the global logger.
func Init(opts Options) error {
	baseLevel = opts.Level
	atomicLevel.SetLevel(baseLevel)
	enc := zapcore.NewConsoleEncoder(encoderConfig(opts.Format))
	if opts.Format == "json" {
		enc = zapcore.NewJSONEncoder(encoderConfig(opts.Format))
	}

	var cores []zapcore.Core
	if opts.Console {
		cores = append(cores, zapcore.NewCore(enc, zapcore.AddSync(console), atomicLevel))
	}
	if opts.File != "" {
		if dir := filepath.Dir(opts.File); dir != "." {
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create log dir: %w", err)
			}
		}
		f, err := os.OpenFile(opts.File, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return fmt.Errorf("open log file: %w", err)
		}
		cores = append(cores, zapcore.NewCore(enc.Clone(), zapcore.AddSync(f), atomicLevel))
	}
	if len(cores) == 0 {
		globalLogger = zap.NewNop()
		return nil
	}

	zopts := []zap.Option{zap.AddStacktrace(zapcore.ErrorLevel)}
	if opts.Caller || opts.Format == "legacy" {
		zopts = append(zopts, zap.AddCaller())
	}
	globalLogger = zap.New(zapcore.NewTee(cores...), zopts...)
	return nil
}

// 인코더 설정
func encoderConfig(format string) zapcore.EncoderConfig {
	cfg := zap.NewProductionEncoderConfig()
	cfg.EncodeTime = zapcore.ISO8601TimeEncoder
	switch format {
	case "json":
		cfg.EncodeLevel = zapcore.LowercaseLevelEncoder
	case "console":
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
	default:
		cfg.EncodeTime = zapcore.TimeEncoderOfLayout("2006-01-02 15:04:05")
		cfg.EncodeLevel = zapcore.CapitalLevelEncoder
		cfg.ConsoleSeparator = " | "
	}
	return cfg
}

func parseLevel(s string) zapcore.Level {
	var lvl zapcore.Level
	if err := lvl.UnmarshalText([]byte(strings.ToLower(strings.TrimSpace(s)))); err != nil || s == "" {
		return zapcore.InfoLevel
	}
	return lvl
}

func envBool(k string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(k))
	if v == "" {
		return def
	}
	return strings.EqualFold(v, "true")
}
