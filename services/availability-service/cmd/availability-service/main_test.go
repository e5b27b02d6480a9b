package main

import (
	"bytes"
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/md-rashed-zaman/slotbook/libs/config"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	root := NewRootCmd()
	root.SetOut(&out)
	root.SetErr(&out)
	root.SetArgs(args)
	err := root.ExecuteContext(context.Background())
	return out.String(), err
}

func TestMigrateAndRegisterProvider(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "cli.db"))
	t.Setenv("LOG_LEVEL", "error")

	if _, err := run(t, "migrate"); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	out, err := run(t, "provider", "register", "prov-7")
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if !strings.Contains(out, "registered provider prov-7") {
		t.Fatalf("unexpected output %q", out)
	}
	out, err = run(t, "provider", "register", "prov-7")
	if err != nil {
		t.Fatalf("second register: %v", err)
	}
	if !strings.Contains(out, "already registered") {
		t.Fatalf("unexpected output %q", out)
	}
}

func TestUnknownStoreDriver(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	_, err := run(t, "migrate")
	if err == nil || !strings.Contains(err.Error(), "unknown STORE_DRIVER") {
		t.Fatalf("expected driver error, got %v", err)
	}
}

func TestStoreFlagOverridesEnvironment(t *testing.T) {
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("SQLITE_PATH", filepath.Join(t.TempDir(), "flag.db"))
	t.Setenv("LOG_LEVEL", "error")

	clean := t.TempDir()
	t.Cleanup(func() { _ = config.LoadFile("slotbook", clean) })

	if _, err := run(t, "migrate", "--store", "sqlite"); err != nil {
		t.Fatalf("migrate with --store: %v", err)
	}
	if got := storeDriver(); got != "sqlite" {
		t.Fatalf("flag should override the environment, got %q", got)
	}
}

func TestPublisherConfig(t *testing.T) {
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("OUTBOX_POLL_INTERVAL", "750ms")
	t.Setenv("OUTBOX_BATCH_SIZE", "20")

	cfg, err := publisherConfig()
	if err != nil {
		t.Fatal(err)
	}
	if cfg.PollEvery != 750*time.Millisecond || cfg.BatchSize != 20 || !cfg.DetachedWrite {
		t.Fatalf("unexpected config %+v", cfg)
	}

	t.Setenv("STORE_DRIVER", "postgres")
	if cfg, _ := publisherConfig(); cfg.DetachedWrite {
		t.Fatal("postgres keeps the write inside the fetch transaction")
	}

	t.Setenv("OUTBOX_POLL_INTERVAL", "soon")
	if _, err := publisherConfig(); err == nil {
		t.Fatal("expected a duration error")
	}
}

func TestRegisterRequiresProviderID(t *testing.T) {
	if _, err := run(t, "provider", "register"); err == nil {
		t.Fatal("expected an argument error")
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" a, ,b ,")
	if len(got) != 2 || got[0] != "a" || got[1] != "b" {
		t.Fatalf("parseList = %v", got)
	}
	if parseList("") != nil {
		t.Fatal("empty input should yield nil")
	}
}
