package log

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"sync"
)

// DiscardHandler drops every record. It is the root handler until
// InitLogger runs.
func DiscardHandler() slog.Handler {
	return discardHandler{}
}

type discardHandler struct{}

func (discardHandler) Enabled(context.Context, slog.Level) bool  { return false }
func (discardHandler) Handle(context.Context, slog.Record) error { return nil }
func (d discardHandler) WithAttrs([]slog.Attr) slog.Handler      { return d }
func (d discardHandler) WithGroup(string) slog.Handler           { return d }

// terminalHandler prints LEVEL[time] msg key=value lines.
type terminalHandler struct {
	mu    sync.Mutex
	w     io.Writer
	level slog.Level
	attrs []slog.Attr
}

// NewTerminalHandlerWithLevel returns a line-oriented handler emitting
// records at lvl and above.
func NewTerminalHandlerWithLevel(w io.Writer, lvl slog.Level) slog.Handler {
	return &terminalHandler{w: w, level: lvl}
}

func (h *terminalHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level
}

func (h *terminalHandler) Handle(_ context.Context, r slog.Record) error {
	var sb strings.Builder
	sb.WriteString(LevelAlignedString(r.Level))
	sb.WriteByte('[')
	sb.WriteString(r.Time.Format("01-02|15:04:05.000"))
	sb.WriteString("] ")
	sb.WriteString(r.Message)
	for _, a := range h.attrs {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
	}
	r.Attrs(func(a slog.Attr) bool {
		fmt.Fprintf(&sb, " %s=%v", a.Key, a.Value)
		return true
	})
	sb.WriteByte('\n')

	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := io.WriteString(h.w, sb.String())
	return err
}

func (h *terminalHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	next := &terminalHandler{w: h.w, level: h.level}
	next.attrs = append(append([]slog.Attr{}, h.attrs...), attrs...)
	return next
}

func (h *terminalHandler) WithGroup(string) slog.Handler { return h }
