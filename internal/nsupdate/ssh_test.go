package nsupdate

import (
	"bytes"
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/pem"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"

	logs "github.com/danmuck/republish/internal/logging"
	"github.com/danmuck/republish/internal/testutil/testlog"
	"github.com/danmuck/republish/internal/zone"
)

// sshFixture is an in-process ssh server that echoes the exec command and stdin back. Commands
// containing "fail" exit with status 2.
type sshFixture struct {
	addr       string
	keyPath    string
	knownHosts string

	mu       sync.Mutex
	commands []string
	stdins   []string
}

func newSignerFor(t *testing.T) (ssh.Signer, ed25519.PrivateKey) {
	t.Helper()
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	signer, err := ssh.NewSignerFromKey(priv)
	if err != nil {
		t.Fatalf("signer: %v", err)
	}
	return signer, priv
}

func startSSHFixture(t *testing.T) *sshFixture {
	t.Helper()
	dir := t.TempDir()

	hostSigner, _ := newSignerFor(t)
	clientSigner, clientKey := newSignerFor(t)

	block, err := ssh.MarshalPrivateKey(clientKey, "")
	if err != nil {
		t.Fatalf("marshal client key: %v", err)
	}
	f := &sshFixture{
		keyPath:    filepath.Join(dir, "id_ed25519"),
		knownHosts: filepath.Join(dir, "known_hosts"),
	}
	if err := os.WriteFile(f.keyPath, pem.EncodeToMemory(block), 0o600); err != nil {
		t.Fatalf("write key: %v", err)
	}

	cfg := &ssh.ServerConfig{
		PublicKeyCallback: func(_ ssh.ConnMetadata, key ssh.PublicKey) (*ssh.Permissions, error) {
			if bytes.Equal(key.Marshal(), clientSigner.PublicKey().Marshal()) {
				return nil, nil
			}
			return nil, errors.New("unknown client key")
		},
	}
	cfg.AddHostKey(hostSigner)

	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	t.Cleanup(func() { _ = ln.Close() })
	f.addr = ln.Addr().String()

	line := knownhosts.Line([]string{knownhosts.Normalize(f.addr)}, hostSigner.PublicKey())
	if err := os.WriteFile(f.knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("write known_hosts: %v", err)
	}

	go func() {
		for {
			conn, err := ln.Accept()
			if err != nil {
				return
			}
			go f.serve(conn, cfg)
		}
	}()
	return f
}

func (f *sshFixture) serve(conn net.Conn, cfg *ssh.ServerConfig) {
	_, chans, reqs, err := ssh.NewServerConn(conn, cfg)
	if err != nil {
		_ = conn.Close()
		return
	}
	go ssh.DiscardRequests(reqs)
	for newCh := range chans {
		if newCh.ChannelType() != "session" {
			_ = newCh.Reject(ssh.UnknownChannelType, "session only")
			continue
		}
		ch, requests, err := newCh.Accept()
		if err != nil {
			continue
		}
		go f.session(ch, requests)
	}
}

func (f *sshFixture) session(ch ssh.Channel, requests <-chan *ssh.Request) {
	for req := range requests {
		if req.Type != "exec" {
			_ = req.Reply(false, nil)
			continue
		}
		var payload struct{ Command string }
		if err := ssh.Unmarshal(req.Payload, &payload); err != nil {
			_ = req.Reply(false, nil)
			continue
		}
		_ = req.Reply(true, nil)

		go func(command string) {
			stdin, _ := io.ReadAll(ch)
			f.mu.Lock()
			f.commands = append(f.commands, command)
			f.stdins = append(f.stdins, string(stdin))
			f.mu.Unlock()

			status := uint32(0)
			if strings.Contains(command, "fail") {
				status = 2
			}
			fmt.Fprintf(ch, "cmd=%s\n%s", command, stdin)
			_, _ = ch.SendRequest("exit-status", false, ssh.Marshal(struct{ Status uint32 }{status}))
			_ = ch.Close()
		}(payload.Command)
	}
}

func (f *sshFixture) runner() SSHRunner {
	return SSHRunner{
		Host:           f.addr,
		User:           "dns",
		KeyPath:        f.keyPath,
		KnownHostsPath: f.knownHosts,
		Timeout:        2 * time.Second,
	}
}

func TestSSHRunnerFeedsStdinRemotely(t *testing.T) {
	testlog.Start(t)

	f := startSSHFixture(t)
	out, err := f.runner().Run(context.Background(), "server ns1\nsend\n", "nsupdate", "-k", "/etc/my key")
	if err != nil {
		t.Fatalf("run: %v out=%q", err, out)
	}
	want := "cmd='nsupdate' '-k' '/etc/my key'\nserver ns1\nsend\n"
	if out != want {
		t.Fatalf("unexpected output\nwant: %q\ngot:  %q", want, out)
	}
	logs.Logf("runner/ssh: remote command=%q", strings.SplitN(out, "\n", 2)[0])
}

func TestSSHRunnerReportsRemoteExitStatus(t *testing.T) {
	testlog.Start(t)

	f := startSSHFixture(t)
	_, err := f.runner().Run(context.Background(), "", "fail")
	var exitErr *ssh.ExitError
	if !errors.As(err, &exitErr) || exitErr.ExitStatus() != 2 {
		t.Fatalf("expected exit status 2, got %v", err)
	}
}

func TestSSHRunnerRejectsUnknownHostKey(t *testing.T) {
	testlog.Start(t)

	f := startSSHFixture(t)
	other, _ := newSignerFor(t)
	line := knownhosts.Line([]string{knownhosts.Normalize(f.addr)}, other.PublicKey())
	if err := os.WriteFile(f.knownHosts, []byte(line+"\n"), 0o600); err != nil {
		t.Fatalf("rewrite known_hosts: %v", err)
	}
	if _, err := f.runner().Run(context.Background(), "", "nsupdate"); err == nil {
		t.Fatalf("expected host key mismatch to fail")
	}

	insecure := f.runner()
	insecure.InsecureSkipHostKeyChecking = true
	if _, err := insecure.Run(context.Background(), "", "nsupdate"); err != nil {
		t.Fatalf("insecure run: %v", err)
	}
}

func TestEmitterAppliesOverSSH(t *testing.T) {
	testlog.Start(t)

	f := startSSHFixture(t)
	cfg := DefaultEmitterConfig()
	cfg.Settle = 0
	cfg.Fatal = func(err error) { t.Fatalf("unexpected fatal: %v", err) }
	e := NewEmitter(f.runner(), cfg)

	tx := zone.NewTransaction("ns1.example.net", "/etc/update.key").DeleteAll("host.example.net", zone.FamilyIPv6)
	if err := e.Apply(context.Background(), tx); err != nil {
		t.Fatalf("apply: %v", err)
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.commands) != 1 || f.commands[0] != "'nsupdate' '-k' '/etc/update.key'" {
		t.Fatalf("unexpected remote commands: %q", f.commands)
	}
	if f.stdins[0] != tx.Script() {
		t.Fatalf("script not delivered on stdin\nwant: %q\ngot:  %q", tx.Script(), f.stdins[0])
	}
	if e.Tolerance().Remaining() != DefaultFailureBudget {
		t.Fatalf("tolerance consumed on success")
	}
}

func TestSSHRunnerConfigErrors(t *testing.T) {
	if _, err := (SSHRunner{Host: "dns", User: "ops", KeyPath: filepath.Join(t.TempDir(), "absent")}).clientConfig(); !errors.Is(err, ErrRunnerConfig) {
		t.Fatalf("expected ErrRunnerConfig for missing key file, got %v", err)
	}
}
