package ssh

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"golang.org/x/crypto/ssh"
)

const (
	defaultPort           = 22
	defaultConnectTimeout = 10 * time.Second
	defaultCommandTimeout = 60 * time.Second
)

// ErrTimeout is wrapped by ConnectError when a call exceeds its deadline.
var ErrTimeout = errors.New("ssh call timed out")

// Config holds the settings shared by every node the client talks to.
type Config struct {
	Port           int
	User           string
	PrivateKeyPath string
	PrivateKey     []byte
	KnownHostsFile string
	KnownHostsMode string
	Prompt         func(message string) (bool, error)

	// ConnectTimeout bounds dial, handshake and authentication.
	ConnectTimeout time.Duration
	// CommandTimeout bounds a whole Execute call, connection included.
	CommandTimeout time.Duration
}

// Result is the outcome of a command that ran to completion on the remote side.
type Result struct {
	Status int
	Stdout string
	Stderr string
}

// ConnectError reports that a command could not be run at all: the node was
// unreachable, rejected authentication, or the call timed out.
type ConnectError struct {
	Host string
	Op   string
	Err  error
}

func (e *ConnectError) Error() string {
	return fmt.Sprintf("ssh %s %s: %v", e.Op, e.Host, e.Err)
}

func (e *ConnectError) Unwrap() error { return e.Err }

// Client runs one command per connection on PodNet nodes and hypervisor hosts.
type Client struct {
	cfg    Config
	signer ssh.Signer
}

func NewClient(cfg Config) (*Client, error) {
	c := cfg
	if strings.TrimSpace(c.User) == "" {
		return nil, fmt.Errorf("ssh user is required")
	}
	if c.Port == 0 {
		c.Port = defaultPort
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = defaultConnectTimeout
	}
	if c.CommandTimeout <= 0 {
		c.CommandTimeout = defaultCommandTimeout
	}
	c.KnownHostsMode = normalizeKnownHostsMode(c.KnownHostsMode)
	if c.KnownHostsMode != "insecure" && strings.TrimSpace(c.KnownHostsFile) == "" {
		return nil, fmt.Errorf("known_hosts_file is required for known_hosts_mode %q", c.KnownHostsMode)
	}

	key := c.PrivateKey
	if len(key) == 0 {
		if strings.TrimSpace(c.PrivateKeyPath) == "" {
			return nil, fmt.Errorf("ssh private key is required")
		}
		raw, err := os.ReadFile(c.PrivateKeyPath)
		if err != nil {
			return nil, fmt.Errorf("read private key %s: %w", c.PrivateKeyPath, err)
		}
		key = raw
	}
	signer, err := ssh.ParsePrivateKey(key)
	if err != nil {
		return nil, fmt.Errorf("parse private key: %w", err)
	}
	return &Client{cfg: c, signer: signer}, nil
}

// Execute runs command on host. A non-zero exit is not an error: it is
// returned in Result.Status. Any failure to obtain an exit status is a
// *ConnectError.
func (c *Client) Execute(ctx context.Context, host, command string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.cfg.CommandTimeout)
	defer cancel()

	client, err := c.dial(ctx, host)
	if err != nil {
		return Result{}, err
	}
	defer func() { _ = client.Close() }()

	session, err := client.NewSession()
	if err != nil {
		return Result{}, &ConnectError{Host: host, Op: "session", Err: err}
	}
	defer func() { _ = session.Close() }()

	var stdout bytes.Buffer
	var stderr bytes.Buffer
	session.Stdout = &stdout
	session.Stderr = &stderr

	done := make(chan error, 1)
	go func() { done <- session.Run(command) }()

	select {
	case <-ctx.Done():
		// Closing the connection ends Run; the buffers are only safe to read
		// once its output copiers have returned.
		_ = client.Close()
		<-done
		return Result{Stdout: stdout.String(), Stderr: stderr.String()}, &ConnectError{Host: host, Op: "run", Err: timeoutCause(ctx)}
	case runErr := <-done:
		res := Result{Stdout: stdout.String(), Stderr: stderr.String()}
		if runErr == nil {
			return res, nil
		}
		var exitErr *ssh.ExitError
		if errors.As(runErr, &exitErr) {
			res.Status = exitErr.ExitStatus()
			return res, nil
		}
		return res, &ConnectError{Host: host, Op: "run", Err: formatRunError(runErr, res.Stderr)}
	}
}

func (c *Client) dial(ctx context.Context, host string) (*ssh.Client, error) {
	addr := net.JoinHostPort(host, strconv.Itoa(c.cfg.Port))
	callback, err := c.hostKeyCallback()
	if err != nil {
		return nil, &ConnectError{Host: host, Op: "known_hosts", Err: err}
	}
	clientConfig := &ssh.ClientConfig{
		User:              c.cfg.User,
		Auth:              []ssh.AuthMethod{ssh.PublicKeys(c.signer)},
		HostKeyCallback:   callback,
		HostKeyAlgorithms: []string{ssh.KeyAlgoED25519},
		Timeout:           c.cfg.ConnectTimeout,
	}

	d := net.Dialer{Timeout: c.cfg.ConnectTimeout}
	conn, err := d.DialContext(ctx, "tcp", addr)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &ConnectError{Host: host, Op: "dial", Err: timeoutCause(ctx)}
		}
		return nil, &ConnectError{Host: host, Op: "dial", Err: err}
	}

	deadline := time.Now().Add(c.cfg.ConnectTimeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetDeadline(deadline)
	sshConn, chans, reqs, err := ssh.NewClientConn(conn, addr, clientConfig)
	if err != nil {
		_ = conn.Close()
		if ctx.Err() != nil {
			return nil, &ConnectError{Host: host, Op: "handshake", Err: timeoutCause(ctx)}
		}
		return nil, &ConnectError{Host: host, Op: "handshake", Err: err}
	}
	_ = conn.SetDeadline(time.Time{})
	return ssh.NewClient(sshConn, chans, reqs), nil
}

func timeoutCause(ctx context.Context) error {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
	}
	return ctx.Err()
}

func formatRunError(runErr error, stderr string) error {
	errText := summarizeStderr(stderr)
	if errText == "" {
		return runErr
	}
	const max = 360
	if len(errText) > max {
		errText = errText[:max] + "..."
	}
	return fmt.Errorf("%w (%s)", runErr, errText)
}

// summarizeStderr keeps the last two meaningful lines of stderr.
func summarizeStderr(stderr string) string {
	lines := strings.Split(strings.TrimSpace(stderr), "\n")
	filtered := make([]string, 0, len(lines))
	for _, l := range lines {
		t := strings.TrimSpace(l)
		if t == "" {
			continue
		}
		filtered = append(filtered, t)
	}
	if len(filtered) == 0 {
		return ""
	}
	start := len(filtered) - 2
	if start < 0 {
		start = 0
	}
	return strings.Join(filtered[start:], " | ")
}
