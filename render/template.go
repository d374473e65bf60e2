// Package render implements a small logic-less template engine. Templates are compiled once and are
// pure afterwards: rendering the same template with the same arguments and the same set of named
// templates always yields the same output.
//
// Supported tags:
//
//	{{ name }}     argument, escaped according to the template mode
//	{{ raw name }} argument, not escaped
//	{{> other }}   named partial from the Manager, rendered with the same arguments
//	{{! note }}    comment, produces no output
//
// A missing argument or an unknown partial is a render error, never an empty string.
package render

import (
	"encoding/json"
	"fmt"
	"html"
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	// ErrMissingArgument is returned when a template references an argument that is not provided.
	ErrMissingArgument = errors.New("missing template argument")
	// ErrUnknownTemplate is returned when a named template or partial is not registered.
	ErrUnknownTemplate = errors.New("unknown template")
	// ErrTooDeep is returned when partials nest deeper than MaxDepth, usually because of a cycle.
	ErrTooDeep = errors.New("template nesting too deep")
)

// MaxDepth bounds partial nesting.
const MaxDepth = 16

// Mode determines how arguments are escaped.
type Mode int

const (
	ModeText Mode = iota
	ModeHTML
	ModeJSON
)

func (m Mode) String() string {
	switch m {
	case ModeHTML:
		return "html"
	case ModeJSON:
		return "json"
	default:
		return "text"
	}
}

// ParseMode parses the bundle representation of a mode.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "", "text":
		return ModeText, nil
	case "html":
		return ModeHTML, nil
	case "json":
		return ModeJSON, nil
	default:
		return ModeText, errors.Newf("unknown template mode %q", s)
	}
}

// modeFor picks the mode from the template name's extension.
func modeFor(name string) Mode {
	switch {
	case strings.HasSuffix(name, ".html"):
		return ModeHTML
	case strings.HasSuffix(name, ".json"):
		return ModeJSON
	default:
		return ModeText
	}
}

func (m Mode) escape(s string) string {
	switch m {
	case ModeHTML:
		return html.EscapeString(s)
	case ModeJSON:
		b, _ := json.Marshal(s) // marshalling a string cannot fail
		return string(b[1 : len(b)-1])
	default:
		return s
	}
}

type nodeKind int

const (
	nodeText nodeKind = iota
	nodeArg
	nodeRaw
	nodePartial
)

type node struct {
	kind nodeKind
	val  string
}

// Template is a compiled template. It holds no mutable state and can be rendered concurrently.
type Template struct {
	name  string
	mode  Mode
	nodes []node
}

// Option configures compilation.
type Option func(*Template)

// WithMode overrides the mode derived from the template name.
func WithMode(m Mode) Option {
	return func(t *Template) { t.mode = m }
}

// Compile parses src. The mode defaults to HTML for names ending in ".html", JSON for ".json" and
// plain text otherwise.
func Compile(name, src string, opts ...Option) (*Template, error) {
	t := &Template{name: name, mode: modeFor(name)}
	for _, o := range opts {
		o(t)
	}

	rest := src
	for rest != "" {
		open := strings.Index(rest, "{{")
		if open < 0 {
			t.nodes = append(t.nodes, node{nodeText, rest})
			break
		}

		if open > 0 {
			t.nodes = append(t.nodes, node{nodeText, rest[:open]})
		}

		end := strings.Index(rest[open+2:], "}}")
		if end < 0 {
			return nil, errors.Newf("template %q: unterminated tag at offset %d", name, len(src)-len(rest)+open)
		}

		n, err := parseTag(strings.TrimSpace(rest[open+2 : open+2+end]))
		if err != nil {
			return nil, errors.Wrapf(err, "template %q", name)
		}

		if n != nil {
			t.nodes = append(t.nodes, *n)
		}

		rest = rest[open+2+end+2:]
	}

	return t, nil
}

// MustCompile is like Compile but panics on error.
func MustCompile(name, src string, opts ...Option) *Template {
	t, err := Compile(name, src, opts...)
	if err != nil {
		panic("render: " + err.Error())
	}

	return t
}

func parseTag(tag string) (*node, error) {
	switch {
	case tag == "":
		return nil, errors.New("empty tag")
	case strings.HasPrefix(tag, "!"):
		return nil, nil
	case strings.HasPrefix(tag, ">"):
		name := strings.TrimSpace(tag[1:])
		if !validName(name) {
			return nil, errors.Newf("invalid partial name %q", name)
		}

		return &node{nodePartial, name}, nil
	case strings.HasPrefix(tag, "raw "):
		name := strings.TrimSpace(tag[4:])
		if !validName(name) {
			return nil, errors.Newf("invalid argument name %q", name)
		}

		return &node{nodeRaw, name}, nil
	default:
		if !validName(tag) {
			return nil, errors.Newf("invalid argument name %q", tag)
		}

		return &node{nodeArg, tag}, nil
	}
}

func validName(s string) bool {
	if s == "" {
		return false
	}

	for _, c := range s {
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case c == '_', c == '.', c == '-':
		default:
			return false
		}
	}

	return true
}

// Name returns the name the template was compiled with.
func (t *Template) Name() string { return t.name }

// Mode returns the escaping mode.
func (t *Template) Mode() Mode { return t.mode }

// Render renders the template. Partials are looked up in m, which may be nil when the template uses
// none.
func (t *Template) Render(args Args, m *Manager) (string, error) {
	var b strings.Builder
	if err := t.render(&b, args, m, 0); err != nil {
		return "", err
	}

	return b.String(), nil
}

func (t *Template) render(b *strings.Builder, args Args, m *Manager, depth int) error {
	if depth > MaxDepth {
		return errors.Wrapf(ErrTooDeep, "template %q", t.name)
	}

	for _, n := range t.nodes {
		switch n.kind {
		case nodeText:
			b.WriteString(n.val)
		case nodeArg, nodeRaw:
			s, err := args.str(n.val)
			if err != nil {
				return errors.Wrapf(err, "template %q", t.name)
			}

			if n.kind == nodeArg {
				s = t.mode.escape(s)
			}

			b.WriteString(s)
		case nodePartial:
			var p *Template
			if m != nil {
				p, _ = m.Lookup(n.val)
			}

			if p == nil {
				return errors.Wrapf(ErrUnknownTemplate, "template %q: partial %q", t.name, n.val)
			}

			if err := p.render(b, args, m, depth+1); err != nil {
				return err
			}
		}
	}

	return nil
}

// Args are the named values a template is rendered with.
type Args map[string]any

// Add adds a new argument. Nil values and names that already exist are rejected.
func (a Args) Add(name string, v any) error {
	if v == nil {
		return errors.Newf("argument %q: nil value", name)
	}

	if _, ok := a[name]; ok {
		return errors.Newf("argument %q already exists", name)
	}

	a[name] = v

	return nil
}

// Set adds or replaces an argument. Nil values are rejected.
func (a Args) Set(name string, v any) error {
	if v == nil {
		return errors.Newf("argument %q: nil value", name)
	}

	a[name] = v

	return nil
}

func (a Args) str(name string) (string, error) {
	v, ok := a[name]
	if !ok || v == nil {
		return "", errors.Wrapf(ErrMissingArgument, "%q", name)
	}

	switch v := v.(type) {
	case string:
		return v, nil
	case fmt.Stringer:
		return v.String(), nil
	case error:
		return v.Error(), nil
	case bool, int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64, float32, float64:
		return fmt.Sprint(v), nil
	default:
		return "", errors.Newf("argument %q: unsupported type %T", name, v)
	}
}
