package logger

import (
	"testing"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithCarriesFields(t *testing.T) {
	core, logs := observer.New(zapcore.DebugLevel)
	log := FromZap(zap.New(core)).With("component", "pipeline")

	log.Warn("completion failed", "user_id", int64(7))

	entries := logs.All()
	if len(entries) != 1 {
		t.Fatalf("expected 1 entry, got %d", len(entries))
	}
	fields := entries[0].ContextMap()
	if fields["component"] != "pipeline" {
		t.Fatalf("missing component field: %v", fields)
	}
	if fields["user_id"] != int64(7) {
		t.Fatalf("missing user_id field: %v", fields)
	}
	if entries[0].Level != zapcore.WarnLevel {
		t.Fatalf("unexpected level %s", entries[0].Level)
	}
}

func TestNewModes(t *testing.T) {
	for _, mode := range []string{"production", "development", ""} {
		log, err := New(mode)
		if err != nil {
			t.Fatalf("New(%q): %v", mode, err)
		}
		log.Debug("ok")
	}
	Nop().Info("discarded")
}
