package source

import (
	"context"
	"io"
	"slices"
	"strings"
	"sync"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
	"gopkg.in/yaml.v3"
)

// MemoryLibrary keeps items in memory. It is safe for concurrent use.
type MemoryLibrary struct {
	mu    sync.RWMutex
	items map[string]Item
}

// NewMemoryLibrary inits a library holding items.
func NewMemoryLibrary(items ...Item) *MemoryLibrary {
	lib := &MemoryLibrary{items: make(map[string]Item, len(items))}
	for _, it := range items {
		lib.items[it.ID] = it
	}

	return lib
}

// LoadLibrary reads a YAML document of the form "items: [...]" into a new library.
func LoadLibrary(r io.Reader) (*MemoryLibrary, error) {
	var doc struct {
		Items []Item `yaml:"items"`
	}

	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)

	if err := dec.Decode(&doc); err != nil && !errors.Is(err, io.EOF) {
		return nil, errors.Wrap(err, "decode library")
	}

	for i, it := range doc.Items {
		if it.ID == "" {
			return nil, errors.Newf("library item %d has no id", i)
		}
	}

	return NewMemoryLibrary(doc.Items...), nil
}

// Put adds or replaces an item.
func (l *MemoryLibrary) Put(it Item) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.items[it.ID] = it
}

// List implements [Library]. Items are ordered by id.
func (l *MemoryLibrary) List(_ context.Context, q Query) ([]Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	items := lo.Filter(lo.Values(l.items), func(it Item, _ int) bool {
		return q.Kind == "" || it.Kind == q.Kind
	})

	slices.SortFunc(items, func(a, b Item) int { return strings.Compare(a.ID, b.ID) })

	return limit(items, q.Limit), nil
}

// Get implements [Library].
func (l *MemoryLibrary) Get(_ context.Context, id string) (Item, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	it, ok := l.items[id]
	if !ok {
		return Item{}, errors.Wrapf(ErrNotFound, "item %q", id)
	}

	return it, nil
}
