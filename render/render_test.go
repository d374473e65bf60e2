package render_test

import (
	"errors"
	"strings"
	"sync"
	"testing"

	"github.com/advdv/mphttp/render"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCompileErrors(t *testing.T) {
	for name, src := range map[string]string{
		"unterminated":  "hello {{ name",
		"empty tag":     "a {{ }} b",
		"empty partial": "{{> }}",
		"bad name":      "{{ two words }}",
		"bad raw name":  "{{ raw a b }}",
	} {
		_, err := render.Compile(name, src)
		require.Error(t, err, name)
	}

	require.Panics(t, func() { render.MustCompile("x", "{{") })
}

func TestRender(t *testing.T) {
	m := render.NewManager()
	m.MustRegister("footer.html", "<i>{{ who }}</i>")

	tmpl := render.MustCompile("page.html", "{{! a comment }}<b>{{ title }}</b>{{ raw snippet }}{{> footer.html }}")
	assert.Equal(t, render.ModeHTML, tmpl.Mode())

	out, err := tmpl.Render(render.Args{
		"title":   "Fish & <Chips>",
		"snippet": "<br>",
		"who":     "me",
	}, m)
	require.NoError(t, err)
	assert.Equal(t, "<b>Fish &amp; &lt;Chips&gt;</b><br><i>me</i>", out)

	t.Run("missing argument", func(t *testing.T) {
		_, err := tmpl.Render(render.Args{"snippet": "", "who": "me"}, m)
		require.ErrorIs(t, err, render.ErrMissingArgument)
		require.ErrorContains(t, err, `"title"`)
	})

	t.Run("nil argument counts as missing", func(t *testing.T) {
		_, err := tmpl.Render(render.Args{"title": nil, "snippet": "", "who": "me"}, m)
		require.ErrorIs(t, err, render.ErrMissingArgument)
	})

	t.Run("unknown partial", func(t *testing.T) {
		_, err := tmpl.Render(render.Args{"title": "", "snippet": "", "who": ""}, render.NewManager())
		require.ErrorIs(t, err, render.ErrUnknownTemplate)

		_, err = tmpl.Render(render.Args{"title": "", "snippet": "", "who": ""}, nil)
		require.ErrorIs(t, err, render.ErrUnknownTemplate)
	})

	t.Run("unsupported argument type", func(t *testing.T) {
		_, err := render.MustCompile("x", "{{ v }}").Render(render.Args{"v": []int{1}}, nil)
		require.ErrorContains(t, err, "unsupported type")
	})

	t.Run("stringification", func(t *testing.T) {
		out, err := render.MustCompile("x", "{{ a }} {{ b }} {{ c }} {{ d }}").Render(render.Args{
			"a": 42, "b": true, "c": 1.5, "d": errors.New("boom"),
		}, nil)
		require.NoError(t, err)
		assert.Equal(t, "42 true 1.5 boom", out)
	})
}

func TestRenderIsPure(t *testing.T) {
	m := render.NewDefaultManager()
	args := render.Args{"code": 503, "name": "Service Unavailable", "detail": "library offline", "server": "mp"}

	first, err := m.Render(render.ErrorHTML, args)
	require.NoError(t, err)

	var wg sync.WaitGroup
	for range 16 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			out, err := m.Render(render.ErrorHTML, args)
			assert.NoError(t, err)
			assert.Equal(t, first, out)
		}()
	}

	wg.Wait()
	assert.Len(t, args, 4, "rendering must not modify its arguments")
}

func TestRecursionIsBounded(t *testing.T) {
	m := render.NewManager()
	m.MustRegister("loop", "x{{> loop }}")

	_, err := m.Render("loop", render.Args{})
	require.ErrorIs(t, err, render.ErrTooDeep)
}

func TestArgs(t *testing.T) {
	args := render.Args{}
	require.NoError(t, args.Add("a", "1"))
	require.ErrorContains(t, args.Add("a", "2"), "already exists")
	require.ErrorContains(t, args.Add("b", nil), "nil value")
	require.NoError(t, args.Set("a", "3"))
	require.Error(t, args.Set("a", nil))
	assert.Equal(t, render.Args{"a": "3"}, args)
}

func TestManager(t *testing.T) {
	m := render.NewManager()
	require.NoError(t, m.Register("a", "A"))
	require.ErrorContains(t, m.Register("a", "B"), "already registered")

	_, err := m.Render("nope", nil)
	require.ErrorIs(t, err, render.ErrUnknownTemplate)

	m.Freeze()
	require.ErrorContains(t, m.Register("b", "B"), "frozen")
	assert.Equal(t, []string{"a"}, m.Names())
}

func TestDefaultErrorTemplates(t *testing.T) {
	m := render.NewDefaultManager()
	args := render.Args{"code": 403, "name": "Forbidden", "detail": `No "access"`, "server": "mp"}

	page, err := m.Render(render.ErrorHTML, args)
	require.NoError(t, err)
	assert.Contains(t, page, "<title>403 Forbidden</title>")
	assert.Contains(t, page, "<p>No &#34;access&#34;</p>")
	assert.Contains(t, page, "<address>mp</address>")

	js, err := m.Render(render.ErrorJSON, args)
	require.NoError(t, err)
	assert.JSONEq(t, `{"code":403,"name":"Forbidden","detail":"No \"access\""}`, js)
}

func TestLoadBundle(t *testing.T) {
	m := render.NewManager()
	require.NoError(t, m.LoadBundle(strings.NewReader(`
templates:
  status.html:
    source: "<p>{{ message }}</p>"
  motd:
    mode: text
    source: "hello {{ user }}"
  data:
    mode: json
    source: '{"m":"{{ message }}"}'
`)))

	out, err := m.Render("status.html", render.Args{"message": "<ok>"})
	require.NoError(t, err)
	assert.Equal(t, "<p>&lt;ok&gt;</p>", out)

	out, err = m.Render("data", render.Args{"message": `a"b`})
	require.NoError(t, err)
	assert.Equal(t, `{"m":"a\"b"}`, out)

	require.Error(t, render.NewManager().LoadBundle(strings.NewReader("templates:\n  x:\n    mode: xml\n    source: a\n")))
	require.Error(t, render.NewManager().LoadBundle(strings.NewReader("templates:\n  x:\n    body: a\n")))
}
