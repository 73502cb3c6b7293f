package ssh

import (
	"bufio"
	"crypto/hmac"
	"crypto/sha1" //nolint:gosec // known_hosts hashing is HMAC-SHA1
	"encoding/base64"
	"errors"
	"fmt"
	"net"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/knownhosts"
)

var knownHostsMu sync.Mutex

func normalizeKnownHostsMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case "", "strict":
		return "strict"
	case "prompt":
		return "prompt"
	case "accept-new", "accept_new":
		return "accept-new"
	case "insecure", "off":
		return "insecure"
	default:
		return "strict"
	}
}

// NormalizeKnownHostsMode returns the canonical spelling of a known_hosts mode.
func NormalizeKnownHostsMode(mode string) string {
	return normalizeKnownHostsMode(mode)
}

// hostKeyCallback is rebuilt for every connection so entries appended by an
// earlier call are honored.
func (c *Client) hostKeyCallback() (ssh.HostKeyCallback, error) {
	mode := c.cfg.KnownHostsMode
	if mode == "insecure" {
		return ssh.InsecureIgnoreHostKey(), nil //nolint:gosec // explicit operator opt-in
	}

	path := c.cfg.KnownHostsFile
	if mode != "strict" {
		if err := ensureKnownHostsFile(path); err != nil {
			return nil, err
		}
	}
	verify, err := knownhosts.New(path)
	if err != nil {
		return nil, fmt.Errorf("load known_hosts %s: %w", path, err)
	}
	if mode == "strict" {
		return verify, nil
	}

	return func(hostname string, remote net.Addr, key ssh.PublicKey) error {
		err := verify(hostname, remote, key)
		if err == nil {
			return nil
		}
		var keyErr *knownhosts.KeyError
		if !errors.As(err, &keyErr) {
			return err
		}
		fp := ssh.FingerprintSHA256(key)
		changed := len(keyErr.Want) > 0

		switch mode {
		case "accept-new":
			if changed {
				return fmt.Errorf("ssh host key for %s changed (got %s): %w", hostname, fp, err)
			}
		case "prompt":
			if c.cfg.Prompt == nil {
				return err
			}
			question := fmt.Sprintf("Unknown SSH host key for %s (%s). Trust it?", hostname, fp)
			if changed {
				question = fmt.Sprintf("SSH host key for %s changed (now %s). Accept new host key?", hostname, fp)
			}
			ok, pErr := c.cfg.Prompt(question)
			if pErr != nil {
				return fmt.Errorf("known_hosts prompt failed: %w", pErr)
			}
			if !ok {
				return err
			}
		}
		return writeKnownHostsEntry(path, hostname, key, changed)
	}, nil
}

func ensureKnownHostsFile(path string) error {
	if err := os.MkdirAll(filepathDirSafe(path), 0o700); err != nil {
		return fmt.Errorf("create known_hosts dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known_hosts %s: %w", path, err)
	}
	return f.Close()
}

// writeKnownHostsEntry appends key for hostname. When replace is set, plain
// entries for the same host are dropped first.
func writeKnownHostsEntry(path, hostname string, key ssh.PublicKey, replace bool) error {
	knownHostsMu.Lock()
	defer knownHostsMu.Unlock()

	target := knownhosts.Normalize(hostname)
	if replace {
		if err := removeKnownHostsEntries(path, target); err != nil {
			return err
		}
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return fmt.Errorf("open known_hosts %s: %w", path, err)
	}
	defer func() { _ = f.Close() }()
	if _, err := f.WriteString(knownhosts.Line([]string{target}, key) + "\n"); err != nil {
		return fmt.Errorf("append known_hosts %s: %w", path, err)
	}
	return nil
}

func removeKnownHostsEntries(path, target string) error {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read known_hosts %s: %w", path, err)
	}
	var kept []string
	scanner := bufio.NewScanner(strings.NewReader(string(raw)))
	for scanner.Scan() {
		line := scanner.Text()
		fields := strings.Fields(line)
		if len(fields) >= 2 && !strings.HasPrefix(fields[0], "#") && hostListContains(fields[0], target) {
			continue
		}
		kept = append(kept, line)
	}
	out := strings.Join(kept, "\n")
	if out != "" {
		out += "\n"
	}
	if err := os.WriteFile(path, []byte(out), 0o600); err != nil {
		return fmt.Errorf("rewrite known_hosts %s: %w", path, err)
	}
	return nil
}

func hostListContains(list, target string) bool {
	for _, h := range strings.Split(list, ",") {
		if h == target {
			return true
		}
		if strings.HasPrefix(h, "|1|") && hashedHostMatches(h, target) {
			return true
		}
	}
	return false
}

// hashedHostMatches checks a "|1|salt|hash" known_hosts entry against host.
func hashedHostMatches(entry, host string) bool {
	parts := strings.Split(strings.TrimPrefix(entry, "|1|"), "|")
	if len(parts) != 2 {
		return false
	}
	salt, err := base64.StdEncoding.DecodeString(parts[0])
	if err != nil {
		return false
	}
	want, err := base64.StdEncoding.DecodeString(parts[1])
	if err != nil {
		return false
	}
	mac := hmac.New(sha1.New, salt)
	mac.Write([]byte(host))
	return hmac.Equal(mac.Sum(nil), want)
}

func filepathDirSafe(path string) string {
	dir := filepath.Dir(path)
	if dir == "" {
		return "."
	}
	return dir
}
