package slogutil

import (
	"bytes"
	"context"
	"log/slog"
)

// ClientSink delivers one rendered record to the editor.
type ClientSink func(level slog.Level, message string) error

// ClientHandler renders records like LineHandler, without the timestamp the
// editor adds itself, and passes them to a sink. The level is a LevelVar so
// the server can raise or lower it once the client has sent its settings.
type ClientHandler struct {
	line *LineHandler
	sink ClientSink
}

// NewClientHandler returns a handler forwarding records at or above level.
func NewClientHandler(level *slog.LevelVar, sink ClientSink) *ClientHandler {
	line := NewLineHandler(nil, &slog.HandlerOptions{Level: level})
	line.stamp = false
	return &ClientHandler{line: line, sink: sink}
}

func (h *ClientHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.line.Enabled(ctx, level)
}

func (h *ClientHandler) Handle(_ context.Context, r slog.Record) error {
	msg := bytes.TrimSuffix(h.line.format(r), []byte("\n"))
	return h.sink(r.Level, string(msg))
}

func (h *ClientHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ClientHandler{line: h.line.WithAttrs(attrs).(*LineHandler), sink: h.sink}
}

func (h *ClientHandler) WithGroup(name string) slog.Handler {
	return &ClientHandler{line: h.line.WithGroup(name).(*LineHandler), sink: h.sink}
}
