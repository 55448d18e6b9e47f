package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/testutil/testlog"
)

func writeFile(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "republishd.toml")
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestTemplateLoadsAndValidates(t *testing.T) {
	testlog.Start(t)

	path := filepath.Join(t.TempDir(), "republishd.toml")
	if err := WriteTemplate(path, false); err != nil {
		t.Fatalf("write template: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("template did not validate: %v", err)
	}
	if cfg.Mode != "audited" || cfg.FailureBudget != 5 || cfg.ServiceType != "_ssh._tcp" {
		t.Fatalf("unexpected template values: %+v", cfg)
	}
	logs.Logf("config/template: domain=%s server=%s", cfg.Domain, cfg.Server)

	if err := WriteTemplate(path, false); err == nil || !strings.Contains(err.Error(), "already exists") {
		t.Fatalf("expected overwrite refusal, got %v", err)
	}
	if err := WriteTemplate(path, true); err != nil {
		t.Fatalf("forced overwrite: %v", err)
	}
}

func TestLoadRejectsUnknownKeys(t *testing.T) {
	testlog.Start(t)

	path := writeFile(t, `key_file = "k"
domain = "example.net"
server = "ns1"
tll = 60
`)
	if _, err := Load(path); !errors.Is(err, ErrInvalid) {
		t.Fatalf("expected ErrInvalid for unknown key, got %v", err)
	}
}

func TestValidateRules(t *testing.T) {
	testlog.Start(t)

	base := Daemon{KeyFile: "k", Domain: "example.net", Server: "ns1"}
	if err := Validate(base); err != nil {
		t.Fatalf("minimal config rejected: %v", err)
	}

	cases := map[string]func(*Daemon){
		"missing key":      func(d *Daemon) { d.KeyFile = " " },
		"missing domain":   func(d *Daemon) { d.Domain = "" },
		"missing server":   func(d *Daemon) { d.Server = "" },
		"negative ttl":     func(d *Daemon) { d.TTL = -1 },
		"bad mode":         func(d *Daemon) { d.Mode = "paranoid" },
		"bad duration":     func(d *Daemon) { d.BrowseInterval = "soon" },
		"negative settle":  func(d *Daemon) { d.SettleInterval = "-1s" },
		"negative budget":  func(d *Daemon) { d.FailureBudget = -2 },
		"ssh without user": func(d *Daemon) { d.SSHHost = "dns.example.net" },
		"subject only":     func(d *Daemon) { d.NatsSubject = "x" },
	}
	for name, mutate := range cases {
		cfg := base
		mutate(&cfg)
		if err := Validate(cfg); !errors.Is(err, ErrInvalid) {
			t.Fatalf("%s: expected ErrInvalid, got %v", name, err)
		}
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "absent.toml")); err == nil {
		t.Fatalf("expected missing file error")
	}
}
