package lfs

import (
	"fmt"
	"strings"
)

// Scope names the repository an object belongs to. Its string form is the
// batch API path prefix "organization/repo_type/repo".
type Scope struct {
	Organization string
	RepoType     string
	Repo         string
}

// ParseScope parses a scope of the form "organization/repo_type/repo".
func ParseScope(s string) (Scope, error) {
	parts := strings.Split(strings.Trim(strings.TrimSpace(s), "/"), "/")
	if len(parts) != 3 {
		return Scope{}, fmt.Errorf("%w: %q: want organization/repo_type/repo", ErrInvalidScope, s)
	}

	sc := Scope{Organization: parts[0], RepoType: parts[1], Repo: parts[2]}
	if err := sc.Validate(); err != nil {
		return Scope{}, err
	}

	return sc, nil
}

// Validate reports whether every part of the scope is set and free of
// slashes.
func (s Scope) Validate() error {
	for _, p := range []string{s.Organization, s.RepoType, s.Repo} {
		if p == "" || strings.ContainsRune(p, '/') {
			return fmt.Errorf("%w: %q", ErrInvalidScope, s.String())
		}
	}
	return nil
}

func (s Scope) String() string {
	return s.Organization + "/" + s.RepoType + "/" + s.Repo
}
