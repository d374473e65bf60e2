package mphttp

import (
	"fmt"
	"sort"

	"github.com/advdv/mphttp/internal/pattern"
	"github.com/samber/lo"
)

// Reverser keeps track of named patterns and  allows building URLS.
type Reverser struct {
	pats map[string]*pattern.Pattern
}

// NewReverser inits the reverser.
func NewReverser() *Reverser {
	return &Reverser{make(map[string]*pattern.Pattern)}
}

// Reverse reverses the named pattern into a url.
func (r Reverser) Reverse(name string, vals ...string) (string, error) {
	pat, ok := r.pats[name]
	if !ok {
		names := lo.Keys(r.pats)
		sort.Strings(names)

		return "", fmt.Errorf("no pattern named: %q, got: %v", name, names) //nolint:goerr113
	}

	res, err := pattern.Build(pat, vals...)
	if err != nil {
		return "", fmt.Errorf("failed to build: %w", err)
	}

	return res, nil
}

// Has reports whether a pattern with the given name exists.
func (r Reverser) Has(name string) bool {
	_, ok := r.pats[name]
	return ok
}

// Named is a convenience method that panics if naming the pattern fails.
func (r Reverser) Named(name, str string) string {
	str, err := r.NamedPattern(name, str)
	if err != nil {
		panic("mphttp: " + err.Error())
	}

	return str
}

// NamedPattern will parse 's' as a path pattern while returning it as well.
func (r Reverser) NamedPattern(name, str string) (string, error) {
	if _, exists := r.pats[name]; exists {
		return str, fmt.Errorf("pattern with name %q already exists", name) //nolint:goerr113
	}

	pat, err := pattern.Parse(str)
	if err != nil {
		return str, fmt.Errorf("failed to parse pattern: %w", err)
	}

	r.pats[name] = pat

	return str, nil
}
