// Package logger provides component-tagged structured logging for discordant.
//
// Every call names the component that emitted it ("bridge", "fetch", ...) so
// logs from the three execution contexts can be told apart. The backend is a
// zap core; Init replaces it, and the zero configuration logs info and above
// to stderr in console format.
package logger

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// LogLevel mirrors the zap levels exposed through configuration.
type LogLevel = zapcore.Level

const (
	DEBUG = zapcore.DebugLevel
	INFO  = zapcore.InfoLevel
	WARN  = zapcore.WarnLevel
	ERROR = zapcore.ErrorLevel
)

var (
	mu     sync.RWMutex
	base   *zap.Logger
	level            = zap.NewAtomicLevelAt(zapcore.InfoLevel)
	format           = "console"
	out    io.Writer = os.Stderr

	// exit is swapped in tests so FatalCF can be observed.
	exit = defaultExit
)

var defaultExit = os.Exit

func init() {
	base = build()
}

// Init configures level and output format ("console" or "json").
func Init(lvl, fmtName string) error {
	parsed, err := ParseLevel(lvl)
	if err != nil {
		return err
	}
	switch fmtName {
	case "", "console", "json":
	default:
		return fmt.Errorf("unknown log format %q", fmtName)
	}

	mu.Lock()
	defer mu.Unlock()
	level.SetLevel(parsed)
	if fmtName != "" {
		format = fmtName
	}
	base = build()
	return nil
}

// ParseLevel accepts debug, info, warn, error or fatal (case-insensitive).
func ParseLevel(s string) (LogLevel, error) {
	if s == "" {
		return INFO, nil
	}
	var l zapcore.Level
	if err := l.UnmarshalText([]byte(strings.ToLower(s))); err != nil {
		return INFO, fmt.Errorf("unknown log level %q", s)
	}
	return l, nil
}

// SetOutput redirects all log output. Used by tests.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
	base = build()
}

// build must be called with mu held (or from init).
func build() *zap.Logger {
	encCfg := zapcore.EncoderConfig{
		TimeKey:       "timestamp",
		LevelKey:      "level",
		NameKey:       "component",
		MessageKey:    "message",
		StacktraceKey: "",
		EncodeTime:    zapcore.RFC3339NanoTimeEncoder,
		EncodeLevel:   zapcore.LowercaseLevelEncoder,
		EncodeName:    zapcore.FullNameEncoder,
	}

	var enc zapcore.Encoder
	if format == "json" {
		enc = zapcore.NewJSONEncoder(encCfg)
	} else {
		encCfg.EncodeLevel = zapcore.CapitalLevelEncoder
		encCfg.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05.000")
		enc = zapcore.NewConsoleEncoder(encCfg)
	}

	core := zapcore.NewCore(enc, zapcore.AddSync(out), level)
	return zap.New(core)
}

func logMessage(lvl LogLevel, component, message string, fields map[string]interface{}) {
	mu.RLock()
	l := base
	mu.RUnlock()

	if component != "" {
		l = l.Named(component)
	}

	zfields := make([]zap.Field, 0, len(fields))
	for k, v := range fields {
		zfields = append(zfields, zap.Any(k, v))
	}

	if ce := l.Check(lvl, message); ce != nil {
		ce.Write(zfields...)
	}
}

// Sync flushes buffered output.
func Sync() {
	mu.RLock()
	l := base
	mu.RUnlock()
	_ = l.Sync()
}

func InfoC(component, message string) { logMessage(INFO, component, message, nil) }

func DebugCF(component, message string, fields map[string]interface{}) {
	logMessage(DEBUG, component, message, fields)
}

func InfoCF(component, message string, fields map[string]interface{}) {
	logMessage(INFO, component, message, fields)
}

func WarnCF(component, message string, fields map[string]interface{}) {
	logMessage(WARN, component, message, fields)
}

func ErrorCF(component, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
}

// FatalCF logs at error level, flushes, and exits the process with status 1.
// Only main calls it, once the command has failed.
func FatalCF(component, message string, fields map[string]interface{}) {
	logMessage(ERROR, component, message, fields)
	Sync()
	exit(1)
}
