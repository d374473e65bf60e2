// Package pattern parses route path patterns, matches request paths against them and builds paths back
// from them.
//
// A pattern is a slash separated list of segments. A segment is a literal, a {name} capture that matches
// exactly one non-empty path segment, or a trailing * that matches the remaining zero or more segments.
package pattern

import (
	"net/url"
	"strings"

	"github.com/cockroachdb/errors"
)

// Kind is the kind of a pattern segment. Higher kinds are more specific.
type Kind int

const (
	Wildcard Kind = iota
	Capture
	Literal
)

// Segment is one element of a pattern.
type Segment struct {
	Kind  Kind
	Value string // literal text or capture name
}

// Pattern is a parsed path pattern.
type Pattern struct {
	raw  string
	segs []Segment
}

// Parse parses s as a path pattern.
func Parse(s string) (*Pattern, error) {
	if s == "" {
		return nil, errors.New("empty pattern")
	}

	if s[0] != '/' {
		return nil, errors.Newf("pattern %q must start with a slash", s)
	}

	p := &Pattern{raw: s}
	seen := map[string]bool{}

	parts := splitPath(s)
	for i, part := range parts {
		switch {
		case part == "":
			return nil, errors.Newf("pattern %q contains an empty segment", s)
		case part == "*":
			if i != len(parts)-1 {
				return nil, errors.Newf("pattern %q: wildcard must be the last segment", s)
			}

			p.segs = append(p.segs, Segment{Kind: Wildcard})
		case strings.HasPrefix(part, "{") && strings.HasSuffix(part, "}"):
			name := part[1 : len(part)-1]
			if name == "" {
				return nil, errors.Newf("pattern %q: capture without a name", s)
			}

			if seen[name] {
				return nil, errors.Newf("pattern %q: duplicate capture %q", s, name)
			}

			seen[name] = true
			p.segs = append(p.segs, Segment{Kind: Capture, Value: name})
		case strings.ContainsAny(part, "{}*"):
			return nil, errors.Newf("pattern %q: invalid segment %q", s, part)
		default:
			p.segs = append(p.segs, Segment{Kind: Literal, Value: part})
		}
	}

	return p, nil
}

// MustParse is like Parse but panics on error.
func MustParse(s string) *Pattern {
	p, err := Parse(s)
	if err != nil {
		panic("pattern: " + err.Error())
	}

	return p
}

func (p *Pattern) String() string { return p.raw }

// Segments returns a copy of the parsed segments.
func (p *Pattern) Segments() []Segment { return append([]Segment(nil), p.segs...) }

// HasWildcard reports whether the pattern ends in a wildcard.
func (p *Pattern) HasWildcard() bool {
	return len(p.segs) > 0 && p.segs[len(p.segs)-1].Kind == Wildcard
}

// Captures returns the capture names in order of appearance.
func (p *Pattern) Captures() []string {
	var names []string
	for _, s := range p.segs {
		if s.Kind == Capture {
			names = append(names, s.Value)
		}
	}

	return names
}

// Match is the result of matching a path against a pattern.
type Match struct {
	Captures map[string]string
	Rest     string
}

// Match reports whether path matches the pattern. The path is expected to be decoded already.
func (p *Pattern) Match(path string) (Match, bool) {
	if path == "" || path[0] != '/' {
		return Match{}, false
	}

	parts := splitPath(path)

	var m Match
	for i, seg := range p.segs {
		if seg.Kind == Wildcard {
			m.Rest = strings.Join(parts[i:], "/")
			return m, true
		}

		if i >= len(parts) {
			return Match{}, false
		}

		switch seg.Kind {
		case Literal:
			if parts[i] != seg.Value {
				return Match{}, false
			}
		case Capture:
			if parts[i] == "" {
				return Match{}, false
			}

			if m.Captures == nil {
				m.Captures = map[string]string{}
			}

			m.Captures[seg.Value] = parts[i]
		}
	}

	if len(parts) != len(p.segs) {
		return Match{}, false
	}

	return m, true
}

// Compare orders two patterns by specificity. It returns a positive number when a is more specific
// than b, a negative number when b is more specific and zero when they tie. A pattern without
// wildcard is always more specific than one with; otherwise segments are compared left to right with
// literal > capture > wildcard.
func Compare(a, b *Pattern) int {
	if aw, bw := a.HasWildcard(), b.HasWildcard(); aw != bw {
		if bw {
			return 1
		}

		return -1
	}

	for i := 0; i < len(a.segs) && i < len(b.segs); i++ {
		if d := int(a.segs[i].Kind) - int(b.segs[i].Kind); d != 0 {
			return d
		}
	}

	return len(a.segs) - len(b.segs)
}

// Build substitutes vals for the captures (and a trailing wildcard) in order of appearance.
func Build(p *Pattern, vals ...string) (string, error) {
	var b strings.Builder
	used := 0

	for _, seg := range p.segs {
		switch seg.Kind {
		case Literal:
			b.WriteString("/" + seg.Value)
		case Capture:
			if used >= len(vals) {
				return "", errors.Newf("not enough values for pattern %q", p.raw)
			}

			b.WriteString("/" + url.PathEscape(vals[used]))
			used++
		case Wildcard:
			if used < len(vals) {
				for _, part := range strings.Split(strings.Trim(vals[used], "/"), "/") {
					if part != "" {
						b.WriteString("/" + url.PathEscape(part))
					}
				}

				used++
			}
		}
	}

	if used < len(vals) {
		return "", errors.Newf("too many values for pattern %q", p.raw)
	}

	if b.Len() == 0 {
		return "/", nil
	}

	return b.String(), nil
}

// splitPath splits a slash-leading path into segments. The root path has no segments and a single
// trailing slash is ignored.
func splitPath(path string) []string {
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "" {
		return nil
	}

	return strings.Split(path, "/")
}
