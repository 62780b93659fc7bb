// Package logx is a thin structured-logging layer over zerolog.
//
// Components hold Logger values derived with With(); the zero value is a
// safe no-op. An optional rate-limited Telegram hook mirrors warnings and
// errors into an operator chat without ever blocking the caller.
package logx

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

type Config struct {
	Level   string
	Console bool
	File    FileConfig
}

type FileConfig struct {
	Enabled bool
	Path    string
}

const consoleTimeFormat = "2006-01-02T15:04:05.000Z07:00"

// Field mutates a zerolog event.
//
// This mirrors the ergonomics of slog.Attr without depending on slog.
// Fields are applied in order; if the same key is set twice, later wins.
type Field func(e *zerolog.Event)

func String(k, v string) Field      { return func(e *zerolog.Event) { e.Str(k, v) } }
func Int(k string, v int) Field     { return func(e *zerolog.Event) { e.Int(k, v) } }
func Int64(k string, v int64) Field { return func(e *zerolog.Event) { e.Int64(k, v) } }
func Bool(k string, v bool) Field   { return func(e *zerolog.Event) { e.Bool(k, v) } }
func Duration(k string, v time.Duration) Field {
	return func(e *zerolog.Event) { e.Dur(k, v) }
}
func Time(k string, v time.Time) Field { return func(e *zerolog.Event) { e.Time(k, v) } }
func Any(k string, v any) Field        { return func(e *zerolog.Event) { e.Interface(k, v) } }
func Err(err error) Field {
	return func(e *zerolog.Event) {
		if err != nil {
			e.Err(err)
		}
	}
}

// Logger is a lightweight structured logger.
//
// With() returns a derived logger with additional fixed fields.
// The zero value is a safe no-op logger.
type Logger struct {
	base    zerolog.Logger
	hasBase bool
	fields  []Field
}

// Nop returns a logger that never writes anything.
func Nop() Logger { return Logger{base: zerolog.Nop(), hasBase: true} }

func (l Logger) IsZero() bool { return !l.hasBase }

func (l Logger) With(fields ...Field) Logger {
	nf := make([]Field, 0, len(l.fields)+len(fields))
	nf = append(nf, l.fields...)
	nf = append(nf, fields...)
	return Logger{base: l.base, hasBase: l.hasBase, fields: nf}
}

func (l Logger) Debug(msg string, fields ...Field) { l.emit(l.base.Debug(), msg, fields) }
func (l Logger) Info(msg string, fields ...Field)  { l.emit(l.base.Info(), msg, fields) }
func (l Logger) Warn(msg string, fields ...Field)  { l.emit(l.base.Warn(), msg, fields) }
func (l Logger) Error(msg string, fields ...Field) { l.emit(l.base.Error(), msg, fields) }

func (l Logger) emit(e *zerolog.Event, msg string, fields []Field) {
	if !l.hasBase {
		return
	}
	for _, f := range l.fields {
		f(e)
	}
	for _, f := range fields {
		f(e)
	}
	e.Msg(msg)
}

// New builds the root logger from cfg. The returned closer owns the file
// sink and is safe to call even when no file is configured.
func New(cfg Config) (Logger, io.Closer, error) {
	var writers []io.Writer
	var closer io.Closer

	if cfg.Console {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}
	if cfg.File.Enabled && strings.TrimSpace(cfg.File.Path) != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File.Path), 0o755); err != nil {
			return Logger{}, nil, fmt.Errorf("log dir: %w", err)
		}
		f, err := os.OpenFile(cfg.File.Path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			return Logger{}, nil, fmt.Errorf("log file: %w", err)
		}
		writers = append(writers, f)
		closer = f
	}
	if len(writers) == 0 {
		writers = append(writers, newConsoleWriter(os.Stdout))
	}

	mw := zerolog.MultiLevelWriter(writers...)
	zl := zerolog.New(mw).Level(ParseLevel(cfg.Level, zerolog.InfoLevel)).With().Timestamp().Logger()
	if closer == nil {
		closer = nopCloser{}
	}
	return Logger{base: zl, hasBase: true}, closer, nil
}

// SetLevel changes the global minimum level. Used by config hot reload:
// per-logger levels stay as built, the global floor moves.
func SetLevel(level string) {
	zerolog.SetGlobalLevel(ParseLevel(level, zerolog.InfoLevel))
}

func ParseLevel(s string, def zerolog.Level) zerolog.Level {
	lvl, err := zerolog.ParseLevel(strings.ToLower(strings.TrimSpace(s)))
	if err != nil || s == "" {
		return def
	}
	return lvl
}

func newConsoleWriter(w io.Writer) io.Writer {
	return zerolog.ConsoleWriter{Out: w, TimeFormat: consoleTimeFormat}
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }

// TelegramHook forwards warning+ log lines to a chat through a send
// callback. Sends are rate limited and fire-and-forget: a slow or failing
// transport must never stall logging.
type TelegramHook struct {
	mu       sync.Mutex
	send     func(text string)
	minLevel zerolog.Level
	limiter  *rate.Limiter
}

// NewTelegramHook builds a hook passing at most perSec lines per second.
func NewTelegramHook(send func(text string), minLevel string, perSec int) *TelegramHook {
	if perSec <= 0 {
		perSec = 1
	}
	return &TelegramHook{
		send:     send,
		minLevel: ParseLevel(minLevel, zerolog.WarnLevel),
		limiter:  rate.NewLimiter(rate.Limit(perSec), perSec),
	}
}

func (h *TelegramHook) Run(e *zerolog.Event, level zerolog.Level, message string) {
	if h == nil || level < h.minLevel || level >= zerolog.NoLevel {
		return
	}
	h.mu.Lock()
	ok := h.limiter.Allow()
	h.mu.Unlock()
	if !ok {
		return
	}
	text := fmt.Sprintf("[%s] %s", strings.ToUpper(level.String()), message)
	go h.send(text)
}

// Attach returns a copy of l that also feeds hook.
func (l Logger) Attach(hook *TelegramHook) Logger {
	if !l.hasBase || hook == nil {
		return l
	}
	return Logger{base: l.base.Hook(hook), hasBase: true, fields: l.fields}
}
