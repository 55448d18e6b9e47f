package nsupdate

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var ErrRunnerConfig = errors.New("nsupdate: invalid runner config")

// joinCommand renders cmd and args as a single POSIX shell line for the remote side.
func joinCommand(cmd string, args []string) string {
	quoted := make([]string, 0, len(args)+1)
	for _, part := range append([]string{cmd}, args...) {
		quoted = append(quoted, shellQuote(part))
	}
	return strings.Join(quoted, " ")
}

func shellQuote(value string) string {
	return "'" + strings.ReplaceAll(value, "'", `'"'"'`) + "'"
}

// Runner executes the update channel command with the transaction script on stdin.
type Runner interface {
	Run(ctx context.Context, stdin string, cmd string, args ...string) (string, error)
}

type LocalRunner struct{}

func (LocalRunner) Run(ctx context.Context, stdin string, cmd string, args ...string) (string, error) {
	command := exec.CommandContext(ctx, cmd, args...)
	command.Stdin = strings.NewReader(stdin)
	out, err := command.CombinedOutput()
	return string(out), err
}

// SSHRunner runs the update command on a remote host, for deployments where the key stays there.
type SSHRunner struct {
	Host                        string
	Port                        string
	User                        string
	KeyPath                     string
	Passphrase                  []byte
	KnownHostsPath              string
	InsecureSkipHostKeyChecking bool
	Timeout                     time.Duration
}

// Run executes cmd on the remote host with stdin attached. Cancelling ctx closes the session.
func (r SSHRunner) Run(ctx context.Context, stdin string, cmd string, args ...string) (string, error) {
	client, err := r.dial(ctx)
	if err != nil {
		return "", err
	}
	defer client.Close()

	session, err := client.NewSession()
	if err != nil {
		return "", fmt.Errorf("ssh session on %s: %w", r.Host, err)
	}
	defer session.Close()

	stop := context.AfterFunc(ctx, func() { _ = session.Close() })
	defer stop()

	session.Stdin = strings.NewReader(stdin)
	out, err := session.CombinedOutput(joinCommand(cmd, args))
	if err != nil && ctx.Err() != nil {
		err = ctx.Err()
	}
	return string(out), err
}

func (r SSHRunner) dial(ctx context.Context) (*ssh.Client, error) {
	address, err := r.address()
	if err != nil {
		return nil, err
	}
	config, err := r.clientConfig()
	if err != nil {
		return nil, err
	}

	dialer := net.Dialer{Timeout: r.Timeout}
	conn, err := dialer.DialContext(ctx, "tcp", address)
	if err != nil {
		return nil, fmt.Errorf("ssh dial %s: %w", address, err)
	}
	clientConn, chans, reqs, err := ssh.NewClientConn(conn, address, config)
	if err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("ssh handshake %s: %w", address, err)
	}
	return ssh.NewClient(clientConn, chans, reqs), nil
}

// address defaults the port to 22 unless Port or a host:port Host says otherwise.
func (r SSHRunner) address() (string, error) {
	host := strings.TrimSpace(r.Host)
	switch {
	case host == "":
		return "", fmt.Errorf("%w: ssh host is required", ErrRunnerConfig)
	case r.Port != "":
		return net.JoinHostPort(host, r.Port), nil
	}
	if _, _, err := net.SplitHostPort(host); err == nil {
		return host, nil
	}
	return net.JoinHostPort(host, "22"), nil
}

func (r SSHRunner) clientConfig() (*ssh.ClientConfig, error) {
	if strings.TrimSpace(r.User) == "" {
		return nil, fmt.Errorf("%w: ssh user is required", ErrRunnerConfig)
	}
	signer, err := r.signer()
	if err != nil {
		return nil, err
	}
	hostKeys, err := r.hostKeyCallback()
	if err != nil {
		return nil, err
	}
	return &ssh.ClientConfig{
		User:            r.User,
		Auth:            []ssh.AuthMethod{ssh.PublicKeys(signer)},
		HostKeyCallback: hostKeys,
		Timeout:         r.Timeout,
	}, nil
}

func (r SSHRunner) signer() (ssh.Signer, error) {
	if strings.TrimSpace(r.KeyPath) == "" {
		return nil, fmt.Errorf("%w: ssh key path is required", ErrRunnerConfig)
	}
	pemBytes, err := os.ReadFile(r.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("%w: read ssh key: %v", ErrRunnerConfig, err)
	}
	if len(r.Passphrase) == 0 {
		return ssh.ParsePrivateKey(pemBytes)
	}
	return ssh.ParsePrivateKeyWithPassphrase(pemBytes, r.Passphrase)
}

// hostKeyCallback checks known_hosts (default ~/.ssh/known_hosts) unless checking is disabled.
func (r SSHRunner) hostKeyCallback() (ssh.HostKeyCallback, error) {
	if r.InsecureSkipHostKeyChecking {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	path := strings.TrimSpace(r.KnownHostsPath)
	if path == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("%w: known_hosts path not set and home dir unavailable", ErrRunnerConfig)
		}
		path = filepath.Join(home, ".ssh", "known_hosts")
	}
	return knownhosts.New(path)
}
