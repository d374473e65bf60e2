package render

import (
	"io"
	"sort"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// Manager holds named templates. Registration usually happens at startup; lookups and rendering are
// safe for concurrent use.
type Manager struct {
	mu        sync.RWMutex
	templates map[string]*Template
	frozen    bool
}

// NewManager inits an empty manager.
func NewManager() *Manager {
	return &Manager{templates: map[string]*Template{}}
}

// Register compiles src and adds it under name.
func (m *Manager) Register(name, src string, opts ...Option) error {
	t, err := Compile(name, src, opts...)
	if err != nil {
		return err
	}

	return m.Add(t)
}

// MustRegister is like Register but panics on error.
func (m *Manager) MustRegister(name, src string, opts ...Option) {
	if err := m.Register(name, src, opts...); err != nil {
		panic("render: " + err.Error())
	}
}

// Add adds a compiled template. Names must be unique.
func (m *Manager) Add(t *Template) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.frozen {
		return errors.Newf("cannot add template %q: manager is frozen", t.name)
	}

	if _, exists := m.templates[t.name]; exists {
		return errors.Newf("template %q already registered", t.name)
	}

	m.templates[t.name] = t

	return nil
}

// Freeze disallows further registrations.
func (m *Manager) Freeze() {
	m.mu.Lock()
	m.frozen = true
	m.mu.Unlock()
}

// Lookup returns the named template.
func (m *Manager) Lookup(name string) (*Template, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.templates[name]

	return t, ok
}

// Names returns the registered names in sorted order.
func (m *Manager) Names() []string {
	m.mu.RLock()
	names := lo.Keys(m.templates)
	m.mu.RUnlock()

	sort.Strings(names)

	return names
}

// Render renders the named template with args.
func (m *Manager) Render(name string, args Args) (string, error) {
	t, ok := m.Lookup(name)
	if !ok {
		return "", errors.Wrapf(ErrUnknownTemplate, "%q", name)
	}

	return t.Render(args, m)
}

type bundle struct {
	Templates map[string]struct {
		Mode   string `yaml:"mode"`
		Source string `yaml:"source"`
	} `yaml:"templates"`
}

// LoadBundle registers every template of a YAML bundle:
//
//	templates:
//	  status.html:
//	    source: "<p>{{ message }}</p>"
//	  motd:
//	    mode: text
//	    source: "hello {{ user }}"
//
// Without a mode the name's extension decides.
func (m *Manager) LoadBundle(r io.Reader) error {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	var b bundle
	if err := dec.Decode(&b); err != nil {
		return errors.Wrap(err, "failed to decode template bundle")
	}

	names := lo.Keys(b.Templates)
	sort.Strings(names)

	for _, name := range names {
		entry := b.Templates[name]

		var opts []Option
		if entry.Mode != "" {
			mode, err := ParseMode(entry.Mode)
			if err != nil {
				return errors.Wrapf(err, "template %q", name)
			}

			opts = append(opts, WithMode(mode))
		}

		if err := m.Register(name, entry.Source, opts...); err != nil {
			return err
		}
	}

	return nil
}
