package app

import (
	"testing"

	"github.com/veritail/veritail/internal/config"
)

func TestDefaultGatePolicy(t *testing.T) {
	t.Run("disabled", func(t *testing.T) {
		cfg := &config.Config{GateDefaultsEnabled: false, GateMinConfidence: 0.7}
		if got := DefaultGatePolicy(cfg); got != nil {
			t.Errorf("DefaultGatePolicy() = %+v, want nil", got)
		}
	})

	t.Run("enabled", func(t *testing.T) {
		cfg := &config.Config{
			GateDefaultsEnabled: true,
			GateMinConfidence:   0.7,
			GateMinSources:      2,
		}
		got := DefaultGatePolicy(cfg)
		if got == nil {
			t.Fatal("DefaultGatePolicy() = nil, want policy")
		}
		if got.MinAnswerConfidence != 0.7 || got.MinSourceCount != 2 {
			t.Errorf("DefaultGatePolicy() = %+v, want 0.7/2", got)
		}
	})
}

func TestCloseOnEmptyApp(t *testing.T) {
	a := &App{}
	if err := a.Close(); err != nil {
		t.Errorf("Close() on empty app = %v", err)
	}
}
