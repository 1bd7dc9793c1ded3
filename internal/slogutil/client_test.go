package slogutil

import (
	"log/slog"
	"testing"
)

type sent struct {
	level slog.Level
	msg   string
}

func TestClientHandler(t *testing.T) {
	var got []sent
	level := new(slog.LevelVar)
	level.Set(slog.LevelWarn)

	h := NewClientHandler(level, func(l slog.Level, msg string) error {
		got = append(got, sent{l, msg})
		return nil
	})
	logger := slog.New(h).With("uri", "file:///w/a.pf")

	logger.Info("skipped")
	logger.Warn("file excluded", "reason", "no roots")

	if len(got) != 1 {
		t.Fatalf("expected 1 forwarded record, got %d: %+v", len(got), got)
	}
	want := `[warn] file excluded | uri=file:///w/a.pf reason="no roots"`
	if got[0].msg != want || got[0].level != slog.LevelWarn {
		t.Errorf("expected %q at warn, got %q at %v", want, got[0].msg, got[0].level)
	}

	level.Set(slog.LevelDebug)
	logger.WithGroup("impact").Debug("traversal", "hops", 2)
	if len(got) != 2 || got[1].msg != "[debug] traversal | uri=file:///w/a.pf impact.hops=2" {
		t.Errorf("expected the lowered level to apply, got %+v", got)
	}

	level.Set(LevelSilent)
	logger.Error("dropped")
	if len(got) != 2 {
		t.Errorf("expected nothing forwarded when silenced, got %+v", got)
	}
}
