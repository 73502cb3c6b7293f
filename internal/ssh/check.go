package ssh

import (
	"context"
	"fmt"
	"net"
	"strconv"
	"time"
)

// ProbeOptions control the TCP reachability probe used before touching nodes.
type ProbeOptions struct {
	Port           int
	Attempts       int
	ConnectTimeout time.Duration
	RetryDelay     time.Duration
}

type Reachability struct {
	Host     string
	Attempts int
	Elapsed  time.Duration
	Err      error
}

func (r Reachability) Reachable() bool { return r.Err == nil }

// ProbeTCP dials host:port until it accepts a connection or attempts run out.
func ProbeTCP(ctx context.Context, host string, opts ProbeOptions) Reachability {
	if opts.Port == 0 {
		opts.Port = defaultPort
	}
	if opts.Attempts <= 0 {
		opts.Attempts = 1
	}
	started := time.Now()
	r := Reachability{Host: host}
	address := net.JoinHostPort(host, strconv.Itoa(opts.Port))
	var lastErr error

	for i := 0; i < opts.Attempts; i++ {
		r.Attempts = i + 1
		d := net.Dialer{Timeout: opts.ConnectTimeout}
		conn, err := d.DialContext(ctx, "tcp", address)
		if err == nil {
			_ = conn.Close()
			r.Elapsed = time.Since(started)
			return r
		}
		lastErr = err
		if i == opts.Attempts-1 {
			break
		}

		select {
		case <-ctx.Done():
			r.Elapsed = time.Since(started)
			r.Err = fmt.Errorf("probe %s canceled after %d attempts in %s: %w", address, r.Attempts, r.Elapsed.Truncate(time.Millisecond), ctx.Err())
			return r
		case <-time.After(opts.RetryDelay):
		}
	}

	r.Elapsed = time.Since(started)
	r.Err = fmt.Errorf("probe %s failed after %d attempts in %s: %w", address, r.Attempts, r.Elapsed.Truncate(time.Millisecond), lastErr)
	return r
}

// ProbeAll probes hosts in order.
func ProbeAll(ctx context.Context, hosts []string, opts ProbeOptions) []Reachability {
	out := make([]Reachability, 0, len(hosts))
	for _, h := range hosts {
		out = append(out, ProbeTCP(ctx, h, opts))
	}
	return out
}
