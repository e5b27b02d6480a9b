package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestStringFallsBackWhenUnset(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_UNSET", "")
	if got := String("SLOTBOOK_TEST_UNSET", "fallback"); got != "fallback" {
		t.Fatalf("expected fallback, got %q", got)
	}
	t.Setenv("SLOTBOOK_TEST_UNSET", "  value ")
	if got := String("SLOTBOOK_TEST_UNSET", "fallback"); got != "value" {
		t.Fatalf("expected trimmed value, got %q", got)
	}
}

func TestPortValidation(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_PORT", "70000")
	if _, err := Port("SLOTBOOK_TEST_PORT", "8080"); err == nil {
		t.Fatal("expected error for out-of-range port")
	}
	t.Setenv("SLOTBOOK_TEST_PORT", "")
	p, err := Port("SLOTBOOK_TEST_PORT", "8084")
	if err != nil || p != "8084" {
		t.Fatalf("expected default port, got %q err=%v", p, err)
	}
}

func TestDurationAndInt(t *testing.T) {
	t.Setenv("SLOTBOOK_TEST_POLL", "1500ms")
	d, err := Duration("SLOTBOOK_TEST_POLL", time.Second)
	if err != nil || d != 1500*time.Millisecond {
		t.Fatalf("unexpected duration %v err=%v", d, err)
	}
	t.Setenv("SLOTBOOK_TEST_BATCH", "abc")
	if _, err := Int("SLOTBOOK_TEST_BATCH", 10); err == nil {
		t.Fatal("expected error for non-numeric int")
	}
}

func TestLoadFileEnvWins(t *testing.T) {
	dir := t.TempDir()
	body := []byte("SLOTBOOK_TEST_FROM_FILE: from-file\nSLOTBOOK_TEST_OVERRIDDEN: from-file\n")
	if err := os.WriteFile(filepath.Join(dir, "slotbook.yaml"), body, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv("SLOTBOOK_TEST_OVERRIDDEN", "from-env")

	if err := LoadFile("slotbook", dir); err != nil {
		t.Fatalf("LoadFile: %v", err)
	}
	t.Cleanup(func() { _ = LoadFile("slotbook-missing", t.TempDir()) })

	if got := String("SLOTBOOK_TEST_FROM_FILE", ""); got != "from-file" {
		t.Fatalf("expected file value, got %q", got)
	}
	if got := String("SLOTBOOK_TEST_OVERRIDDEN", ""); got != "from-env" {
		t.Fatalf("expected env to win, got %q", got)
	}
}

func TestLoadFileMissingIsNotAnError(t *testing.T) {
	if err := LoadFile("does-not-exist", t.TempDir()); err != nil {
		t.Fatalf("expected nil error for missing file, got %v", err)
	}
}
