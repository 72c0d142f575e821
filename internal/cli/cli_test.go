package cli

import (
	"bytes"
	"path/filepath"
	"testing"

	"github.com/InnClaw/InnClaw/internal/config"
)

func TestExclusionsAddRemove(t *testing.T) {
	t.Setenv("INNCLAW_CONFIG", filepath.Join(t.TempDir(), "config.json"))
	buf := &bytes.Buffer{}
	exclusionsAddCmd.SetOut(buf)
	exclusionsRemoveCmd.SetOut(buf)

	if err := exclusionsAddCmd.RunE(exclusionsAddCmd, []string{"guest-1"}); err != nil {
		t.Fatalf("add: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !cfg.Engine.Excluded("guest-1") {
		t.Error("guest-1 should be excluded after add")
	}

	// Adding again is a no-op.
	if err := exclusionsAddCmd.RunE(exclusionsAddCmd, []string{"guest-1"}); err != nil {
		t.Fatalf("re-add: %v", err)
	}
	cfg, _ = config.Load()
	if len(cfg.Engine.Exclusions) != 1 {
		t.Errorf("exclusions = %v, want one entry", cfg.Engine.Exclusions)
	}

	if err := exclusionsRemoveCmd.RunE(exclusionsRemoveCmd, []string{"guest-1"}); err != nil {
		t.Fatalf("remove: %v", err)
	}
	cfg, _ = config.Load()
	if cfg.Engine.Excluded("guest-1") {
		t.Error("guest-1 should not be excluded after remove")
	}
}

func TestModeCommand(t *testing.T) {
	t.Setenv("INNCLAW_CONFIG", filepath.Join(t.TempDir(), "config.json"))
	buf := &bytes.Buffer{}
	modeCmd.SetOut(buf)

	if err := modeCmd.RunE(modeCmd, []string{"rules"}); err != nil {
		t.Fatalf("mode rules: %v", err)
	}
	cfg, err := config.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Engine.Mode != config.ModeRules {
		t.Errorf("mode = %s, want rules", cfg.Engine.Mode)
	}

	if err := modeCmd.RunE(modeCmd, []string{"nonsense"}); err == nil {
		t.Error("unknown mode should be rejected")
	}
}
