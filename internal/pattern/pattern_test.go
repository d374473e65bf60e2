package pattern_test

import (
	"testing"

	"github.com/advdv/mphttp/internal/pattern"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse(t *testing.T) {
	for _, bad := range []string{"", "items", "/a//b", "/a/*/b", "/{}", "/{id}/{id}", "/a{b}"} {
		_, err := pattern.Parse(bad)
		assert.Error(t, err, bad)
	}

	p := pattern.MustParse("/items/{id}/files/*")
	assert.True(t, p.HasWildcard())
	assert.Equal(t, []string{"id"}, p.Captures())
	assert.Equal(t, "/items/{id}/files/*", p.String())

	require.PanicsWithValue(t, "pattern: empty pattern", func() { pattern.MustParse("") })
}

func TestMatch(t *testing.T) {
	for _, tc := range []struct {
		pattern, path string
		ok            bool
		captures      map[string]string
		rest          string
	}{
		{"/", "/", true, nil, ""},
		{"/a/b", "/a/b", true, nil, ""},
		{"/a/b", "/a/b/", true, nil, ""},
		{"/a/b", "/a/c", false, nil, ""},
		{"/a/b", "/a", false, nil, ""},
		{"/a/b", "/a/b/c", false, nil, ""},
		{"/items/{id}", "/items/42", true, map[string]string{"id": "42"}, ""},
		{"/items/{id}", "/items", false, nil, ""},
		{"/a/*", "/a", true, nil, ""},
		{"/a/*", "/a/b/c", true, nil, "b/c"},
		{"/a/*", "/ab", false, nil, ""},
		{"/*", "/anything/at/all", true, nil, "anything/at/all"},
		{"/a", "relative", false, nil, ""},
	} {
		m, ok := pattern.MustParse(tc.pattern).Match(tc.path)
		require.Equal(t, tc.ok, ok, "%s ~ %s", tc.pattern, tc.path)
		if ok {
			assert.Equal(t, tc.captures, m.Captures, "%s ~ %s", tc.pattern, tc.path)
			assert.Equal(t, tc.rest, m.Rest, "%s ~ %s", tc.pattern, tc.path)
		}
	}
}

func TestCompare(t *testing.T) {
	more := func(a, b string) {
		t.Helper()
		assert.Positive(t, pattern.Compare(pattern.MustParse(a), pattern.MustParse(b)), "%s > %s", a, b)
		assert.Negative(t, pattern.Compare(pattern.MustParse(b), pattern.MustParse(a)), "%s < %s", b, a)
	}

	more("/a/b", "/a/*")
	more("/a/{x}", "/a/*")
	more("/a/b", "/a/{x}")
	more("/a/b/*", "/a/*")
	more("/a/{x}", "/{y}/b")

	assert.Zero(t, pattern.Compare(pattern.MustParse("/a/{x}"), pattern.MustParse("/a/{y}")))
}

func TestBuild(t *testing.T) {
	res, err := pattern.Build(pattern.MustParse("/items/{id}/stream"), "a b")
	require.NoError(t, err)
	assert.Equal(t, "/items/a%20b/stream", res)

	res, err = pattern.Build(pattern.MustParse("/static/*"), "css/site.css")
	require.NoError(t, err)
	assert.Equal(t, "/static/css/site.css", res)

	res, err = pattern.Build(pattern.MustParse("/"))
	require.NoError(t, err)
	assert.Equal(t, "/", res)

	_, err = pattern.Build(pattern.MustParse("/items/{id}"))
	require.ErrorContains(t, err, "not enough values")

	_, err = pattern.Build(pattern.MustParse("/items"), "x")
	require.ErrorContains(t, err, "too many values")
}
