package plan

import (
	"fmt"
	"strings"
)

const heredocMarker = "PODNET_EOF"

// Heredoc writes body to path on the remote side without shell expansion.
// The terminator is chosen so that no line of body can end the document.
func Heredoc(path, body string) string {
	if !strings.HasSuffix(body, "\n") {
		body += "\n"
	}
	marker := heredocMarker
	for n := 1; containsLine(body, marker); n++ {
		marker = fmt.Sprintf("%s_%d", heredocMarker, n)
	}
	return fmt.Sprintf("tee %s <<'%s' >/dev/null\n%s%s", Quote(path), marker, body, marker)
}

func containsLine(body, line string) bool {
	for _, l := range strings.Split(body, "\n") {
		if strings.TrimRight(l, "\r") == line {
			return true
		}
	}
	return false
}

// Quote single-quotes s for a POSIX shell.
func Quote(s string) string {
	if s != "" && strings.IndexFunc(s, needsQuote) < 0 {
		return s
	}
	return "'" + strings.ReplaceAll(s, "'", `'"'"'`) + "'"
}

func needsQuote(r rune) bool {
	switch {
	case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
		return false
	}
	return !strings.ContainsRune("-_./:=@,+", r)
}
