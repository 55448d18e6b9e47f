package nsupdate

import (
	"context"
	"testing"

	logs "github.com/danmuck/republish/internal/logging"
)

func TestJoinCommandEscaping(t *testing.T) {
	got := joinCommand("nsupdate", []string{"-k", "/etc/my key'.private"})
	want := "'nsupdate' '-k' '/etc/my key'\"'\"'.private'"
	if got != want {
		t.Fatalf("unexpected joined command\nwant: %s\ngot:  %s", want, got)
	}
	logs.Logf("runner/join-command: %s", got)
}

func TestLocalRunnerFeedsStdin(t *testing.T) {
	out, err := LocalRunner{}.Run(context.Background(), "server ns1\nsend\n", "cat")
	if err != nil {
		t.Fatalf("run cat: %v", err)
	}
	if out != "server ns1\nsend\n" {
		t.Fatalf("stdin not delivered, got %q", out)
	}
}

func TestSSHRunnerAddressValidation(t *testing.T) {
	r := SSHRunner{}
	if _, err := r.address(); err == nil {
		t.Fatalf("expected host validation error")
	}

	r.Host = "dns-primary"
	addr, err := r.address()
	if err != nil {
		t.Fatalf("unexpected address error: %v", err)
	}
	if addr != "dns-primary:22" {
		t.Fatalf("expected default ssh port, got %q", addr)
	}

	r.Port = "2222"
	if addr, _ := r.address(); addr != "dns-primary:2222" {
		t.Fatalf("expected explicit port, got %q", addr)
	}
}

func TestSSHRunnerClientConfigValidation(t *testing.T) {
	r := SSHRunner{Host: "dns-primary"}
	if _, err := r.clientConfig(); err == nil {
		t.Fatalf("expected missing user validation error")
	}
	r.User = "dns"
	if _, err := r.clientConfig(); err == nil {
		t.Fatalf("expected missing key path validation error")
	}
}
