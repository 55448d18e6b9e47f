// Package names rewrites discovered local-link hostnames into zone-qualified hostnames.
package names

import (
	"errors"
	"fmt"
	"strings"

	"github.com/danmuck/republish/internal/zone"
)

var ErrMalformedName = errors.New("names: malformed name")

// Rewrite replaces the oldSuffix labels at the end of name with newSuffix. Leading and trailing
// dots on either suffix and a trailing root dot on name are ignored. The suffix must match on a
// label boundary and leave a non-empty host part.
func Rewrite(name, oldSuffix, newSuffix string) (string, error) {
	trimmed := strings.TrimSuffix(name, ".")
	oldSuffix = trimDots(oldSuffix)
	newSuffix = trimDots(newSuffix)
	if oldSuffix == "" || newSuffix == "" {
		return "", fmt.Errorf("%w: empty suffix for %q", ErrMalformedName, name)
	}
	if strings.EqualFold(trimmed, oldSuffix) {
		return "", fmt.Errorf("%w: %q has no host part", ErrMalformedName, name)
	}
	tail := "." + oldSuffix
	if len(trimmed) < len(tail) || !strings.EqualFold(trimmed[len(trimmed)-len(tail):], tail) {
		return "", fmt.Errorf("%w: %q does not end in %q", ErrMalformedName, name, oldSuffix)
	}
	prefix := trimmed[:len(trimmed)-len(tail)]
	if prefix == "" || strings.HasPrefix(prefix, ".") || strings.HasSuffix(prefix, ".") || strings.Contains(prefix, "..") {
		return "", fmt.Errorf("%w: %q has an empty label", ErrMalformedName, name)
	}
	return prefix + "." + newSuffix, nil
}

func trimDots(s string) string {
	return strings.Trim(strings.TrimSpace(s), ".")
}

// Rewriter binds a local suffix to a remote domain.
type Rewriter struct {
	LocalSuffix  string
	RemoteDomain string
}

func NewRewriter(localSuffix, remoteDomain string) Rewriter {
	return Rewriter{
		LocalSuffix:  trimDots(localSuffix),
		RemoteDomain: trimDots(remoteDomain),
	}
}

func (r Rewriter) Rewrite(name string) (string, error) {
	return Rewrite(name, r.LocalSuffix, r.RemoteDomain)
}

// SameHost reports whether the discovered name rewrites to hostname. Names outside the local
// suffix never match.
func (r Rewriter) SameHost(discovered, hostname string) bool {
	if discovered == "" {
		return false
	}
	rewritten, err := r.Rewrite(discovered)
	if err != nil {
		return false
	}
	return zone.SameHostname(rewritten, hostname)
}
