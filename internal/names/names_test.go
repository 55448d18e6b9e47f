package names

import (
	"errors"
	"strings"
	"testing"
)

func TestRewriteReplacesSuffix(t *testing.T) {
	got, err := Rewrite("host.local", "local", "example.net")
	if err != nil {
		t.Fatalf("rewrite: %v", err)
	}
	if got != "host.example.net" {
		t.Fatalf("unexpected rewrite: %q", got)
	}

	got, err = Rewrite("nas.lan.local.", "local", "example.net")
	if err != nil {
		t.Fatalf("rewrite with root dot: %v", err)
	}
	if got != "nas.lan.example.net" {
		t.Fatalf("unexpected rewrite: %q", got)
	}
}

func TestRewriteKeepsPrefix(t *testing.T) {
	for _, prefix := range []string{"a.", "printer-2.", "x.y.z."} {
		got, err := Rewrite(prefix+"local", "local", "example.net")
		if err != nil {
			t.Fatalf("rewrite %q: %v", prefix, err)
		}
		if !strings.HasPrefix(got, prefix) || !strings.HasSuffix(got, "example.net") {
			t.Fatalf("rewrite %q produced %q", prefix, got)
		}
	}
}

func TestRewriteRejectsMissingSuffix(t *testing.T) {
	cases := []string{"host.lan", "local.host", "", "local", "lo"}
	for _, name := range cases {
		if got, err := Rewrite(name, "local", "example.net"); !errors.Is(err, ErrMalformedName) {
			t.Fatalf("expected ErrMalformedName for %q, got %q err=%v", name, got, err)
		}
	}
	if _, err := Rewrite("host.local", "", "example.net"); !errors.Is(err, ErrMalformedName) {
		t.Fatalf("expected empty suffix rejection, got %v", err)
	}
}

func TestRewriterSameHost(t *testing.T) {
	r := NewRewriter("local.", "example.net.")
	if !r.SameHost("host.local", "host.example.net") {
		t.Fatalf("expected same host")
	}
	if !r.SameHost("HOST.local.", "host.example.net.") {
		t.Fatalf("expected case and root dot to be ignored")
	}
	if r.SameHost("hostile.local", "host.example.net") {
		t.Fatalf("prefix of a different host must not match")
	}
	if r.SameHost("other.local", "host.example.net") {
		t.Fatalf("different host matched")
	}
	if r.SameHost("", "host.example.net") {
		t.Fatalf("absent name matched")
	}
	if r.SameHost("host.lan", "host.example.net") {
		t.Fatalf("foreign suffix matched")
	}
}

func TestRewriteRequiresLabelBoundary(t *testing.T) {
	cases := []string{"printer.notlocal", "hostlocal", ".local", "host..local", "..local"}
	for _, name := range cases {
		if got, err := Rewrite(name, "local", "example.net"); !errors.Is(err, ErrMalformedName) {
			t.Fatalf("expected ErrMalformedName for %q, got %q err=%v", name, got, err)
		}
	}
}

func TestRewriteNormalizesDottedSuffixes(t *testing.T) {
	cases := []struct{ oldSuffix, newSuffix string }{
		{".local", "example.net"},
		{"local.", ".example.net."},
		{" .local. ", "example.net"},
	}
	for _, tc := range cases {
		got, err := Rewrite("host.local", tc.oldSuffix, tc.newSuffix)
		if err != nil || got != "host.example.net" {
			t.Fatalf("Rewrite(host.local, %q, %q) = %q err=%v", tc.oldSuffix, tc.newSuffix, got, err)
		}
	}

	r := NewRewriter(".local", ".example.net")
	if got, err := r.Rewrite("Printer.LOCAL."); err != nil || got != "Printer.example.net" {
		t.Fatalf("unexpected rewriter output %q err=%v", got, err)
	}
	if _, err := NewRewriter(".", "example.net").Rewrite("host.local"); !errors.Is(err, ErrMalformedName) {
		t.Fatalf("expected dot-only suffix to be rejected, got %v", err)
	}
}
