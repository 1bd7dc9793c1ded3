// Package slogutil provides the slog handler and logger plumbing for pfls.
//
// Every line has the form
//
//	TIMESTAMP [level] message | key=value key=value
//
// Stdout carries the language server protocol, so loggers built here write
// to stderr, a log file, or the editor through window/logMessage.
package slogutil

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"
)

// LineHandler writes one human-readable line per record.
type LineHandler struct {
	w      io.Writer
	mu     *sync.Mutex
	level  slog.Leveler
	attrs  []slog.Attr // already flattened
	groups []string
	stamp  bool
}

// NewLineHandler returns a handler writing to w. The level defaults to info.
func NewLineHandler(w io.Writer, opts *slog.HandlerOptions) *LineHandler {
	h := &LineHandler{w: w, mu: new(sync.Mutex), level: slog.LevelInfo, stamp: true}
	if opts != nil && opts.Level != nil {
		h.level = opts.Level
	}
	return h
}

func (h *LineHandler) Enabled(_ context.Context, level slog.Level) bool {
	return level >= h.level.Level()
}

func (h *LineHandler) Handle(_ context.Context, r slog.Record) error {
	line := h.format(r)
	h.mu.Lock()
	defer h.mu.Unlock()
	_, err := h.w.Write(line)
	return err
}

// format renders r including the trailing newline.
func (h *LineHandler) format(r slog.Record) []byte {
	var buf bytes.Buffer
	if h.stamp {
		buf.WriteString(r.Time.UTC().Format(time.RFC3339))
		buf.WriteByte(' ')
	}
	fmt.Fprintf(&buf, "[%s] %s", levelName(r.Level), r.Message)

	sep := " |"
	write := func(a slog.Attr) {
		if a.Key == "" {
			return
		}
		buf.WriteString(sep)
		sep = ""
		buf.WriteString(" " + a.Key + "=" + formatValue(a.Value))
	}
	for _, a := range h.attrs {
		write(a)
	}
	r.Attrs(func(a slog.Attr) bool {
		for _, fa := range flatten(h.groups, a) {
			write(fa)
		}
		return true
	})
	buf.WriteByte('\n')
	return buf.Bytes()
}

func (h *LineHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	c := h.clone()
	for _, a := range attrs {
		c.attrs = append(c.attrs, flatten(h.groups, a)...)
	}
	return c
}

func (h *LineHandler) WithGroup(name string) slog.Handler {
	if name == "" {
		return h
	}
	c := h.clone()
	c.groups = append(c.groups, name)
	return c
}

func (h *LineHandler) clone() *LineHandler {
	c := *h
	c.attrs = append([]slog.Attr(nil), h.attrs...)
	c.groups = append([]string(nil), h.groups...)
	return &c
}

// flatten expands group values into dotted keys under the open groups.
func flatten(groups []string, a slog.Attr) []slog.Attr {
	a.Value = a.Value.Resolve()
	if a.Value.Kind() != slog.KindGroup {
		if a.Key == "" || len(groups) == 0 {
			return []slog.Attr{a}
		}
		return []slog.Attr{{Key: strings.Join(groups, ".") + "." + a.Key, Value: a.Value}}
	}
	inner := groups
	if a.Key != "" {
		inner = append(append([]string(nil), groups...), a.Key)
	}
	var out []slog.Attr
	for _, ga := range a.Value.Group() {
		out = append(out, flatten(inner, ga)...)
	}
	return out
}

func levelName(level slog.Level) string {
	switch {
	case level >= slog.LevelError:
		return "error"
	case level >= slog.LevelWarn:
		return "warn"
	case level >= slog.LevelInfo:
		return "info"
	}
	return "debug"
}

// formatValue quotes strings containing blanks, quotes or '=' so requirement
// names with spaces stay readable.
func formatValue(v slog.Value) string {
	switch v.Kind() {
	case slog.KindString:
		return quote(v.String())
	case slog.KindTime:
		return v.Time().Format(time.RFC3339)
	case slog.KindAny:
		if err, ok := v.Any().(error); ok {
			return quote(err.Error())
		}
		return quote(fmt.Sprint(v.Any()))
	}
	return v.String()
}

func quote(s string) string {
	if s == "" || strings.ContainsAny(s, " \t\n\"=") {
		return strconv.Quote(s)
	}
	return s
}
