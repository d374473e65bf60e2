package render

// Names of the built-in error page templates. Both are rendered with the arguments code, name, detail
// and server.
const (
	ErrorHTML   = "error.html"
	ErrorJSON   = "error.json"
	errorFooter = "error.footer.html"
)

const errorHTMLSource = `<!DOCTYPE html>
<html>
<head><title>{{ code }} {{ name }}</title></head>
<body>
<h1>{{ code }} {{ name }}</h1>
<p>{{ detail }}</p>
{{> error.footer.html }}
</body>
</html>
`

const errorFooterSource = `<hr>
<address>{{ server }}</address>
`

const errorJSONSource = `{"code":{{ code }},"name":"{{ name }}","detail":"{{ detail }}"}`

// NewDefaultManager returns a manager with the built-in error templates registered. It is not frozen so
// applications can add their own templates.
func NewDefaultManager() *Manager {
	m := NewManager()
	m.MustRegister(ErrorHTML, errorHTMLSource)
	m.MustRegister(errorFooter, errorFooterSource)
	m.MustRegister(ErrorJSON, errorJSONSource)

	return m
}
