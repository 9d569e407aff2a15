package scanning

import (
	"fmt"
	"net/url"
	"strings"
)

// Target identifies the web application under test. A Target is immutable and
// is used identically for every phase of a single orchestration run.
type Target struct {
	raw string
}

// NewTarget validates raw as an absolute http(s) URL and wraps it in a Target.
// Invalid input is reported as ErrInvalidTarget.
func NewTarget(raw string) (Target, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Target{}, fmt.Errorf("%w: target is empty", ErrInvalidTarget)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return Target{}, fmt.Errorf("%w: %v", ErrInvalidTarget, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return Target{}, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidTarget, u.Scheme)
	}
	if u.Host == "" {
		return Target{}, fmt.Errorf("%w: missing host", ErrInvalidTarget)
	}

	return Target{raw: raw}, nil
}

// String returns the target URL exactly as supplied.
func (t Target) String() string { return t.raw }

// IsZero reports whether t was never initialized.
func (t Target) IsZero() bool { return t.raw == "" }
