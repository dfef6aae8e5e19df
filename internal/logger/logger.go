// Package logger installs a coloured slog handler as the process default and
// exposes the level helpers used across the server.
package logger

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"

	"github.com/fatih/color"
)

const (
	LevelFatal slog.Level = 12
)

// Handler renders records as `time | LEVEL | message key=value ...`.
type Handler struct {
	mu       *sync.Mutex
	writer   io.Writer
	attrs    []slog.Attr
	group    string
	logLevel slog.Leveler
}

// NewHandler creates a Handler writing to w for records at or above level.
func NewHandler(w io.Writer, level slog.Leveler) *Handler {
	return &Handler{
		mu:       &sync.Mutex{},
		writer:   w,
		logLevel: level,
	}
}

func (h *Handler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.logLevel.Level()
}

func (h *Handler) Handle(_ context.Context, r slog.Record) error {
	level := r.Level.String()

	switch r.Level {
	case slog.LevelDebug:
		level = color.MagentaString(level)
	case slog.LevelInfo:
		level = color.BlueString(level)
	case slog.LevelWarn:
		level = color.YellowString(level)
	case slog.LevelError:
		level = color.RedString(level)
	case LevelFatal:
		level = color.HiRedString("FATAL")
	}

	var b strings.Builder
	fmt.Fprintf(&b, "%s | %-5s | %s",
		color.GreenString(r.Time.Format("2006-01-02T15:04:05")),
		level,
		color.CyanString(r.Message),
	)

	for _, attr := range h.attrs {
		b.WriteString(color.CyanString(" %s=%v", h.key(attr.Key), attr.Value))
	}
	r.Attrs(func(attr slog.Attr) bool {
		b.WriteString(color.CyanString(" %s=%v", h.key(attr.Key), attr.Value))
		return true
	})
	b.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.writer, b.String())
	return err
}

func (h *Handler) key(k string) string {
	if h.group == "" {
		return k
	}
	return h.group + "." + k
}

func (h *Handler) WithAttrs(attrs []slog.Attr) slog.Handler {
	newAttrs := make([]slog.Attr, 0, len(h.attrs)+len(attrs))
	newAttrs = append(newAttrs, h.attrs...)
	for _, attr := range attrs {
		attr.Key = h.key(attr.Key)
		newAttrs = append(newAttrs, attr)
	}

	return &Handler{
		mu:       h.mu,
		writer:   h.writer,
		attrs:    newAttrs,
		group:    h.group,
		logLevel: h.logLevel,
	}
}

func (h *Handler) WithGroup(name string) slog.Handler {
	return &Handler{
		mu:       h.mu,
		writer:   h.writer,
		attrs:    h.attrs,
		group:    h.key(name),
		logLevel: h.logLevel,
	}
}

// ParseLevel maps a config string onto a slog level, defaulting to info.
func ParseLevel(s string) slog.Level {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// Init installs the coloured handler on stdout as the default logger.
func Init(level string) {
	slog.SetDefault(slog.New(NewHandler(os.Stdout, ParseLevel(level))))
	slog.Debug("Logger initialized")
}

func Debug(msg string, v ...any) {
	slog.Debug(msg, v...)
}

func DebugF(msg string, v ...any) {
	slog.Debug(fmt.Sprintf(msg, v...))
}

func Info(msg string, v ...any) {
	slog.Info(msg, v...)
}

func InfoF(msg string, v ...any) {
	slog.Info(fmt.Sprintf(msg, v...))
}

func Warn(msg string, v ...any) {
	slog.Warn(msg, v...)
}

func WarnF(msg string, v ...any) {
	slog.Warn(fmt.Sprintf(msg, v...))
}

func Error(msg string, v ...any) {
	slog.Error(msg, v...)
}

func ErrorF(msg string, v ...any) {
	slog.Error(fmt.Sprintf(msg, v...))
}

func Fatal(msg string, v ...any) {
	slog.Log(context.Background(), LevelFatal, msg, v...)
}

func FatalF(msg string, v ...any) {
	slog.Log(context.Background(), LevelFatal, fmt.Sprintf(msg, v...))
}
