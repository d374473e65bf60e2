package mphttp

import (
	"fmt"
	"strings"

	"github.com/advdv/mphttp/render"
	"github.com/cockroachdb/errors"
)

// DisclosePolicy controls whether fault messages reach the client.
type DisclosePolicy int

const (
	// DiscloseDefault shows the message of every fault except internal errors.
	DiscloseDefault DisclosePolicy = iota
	// DiscloseNever withholds every fault message.
	DiscloseNever
)

// RenderedFault is a fault turned into a response.
type RenderedFault struct {
	Status      int
	Name        string
	ContentType string
	Body        []byte
	Allow       []Method
}

var errNoTemplates = errors.New("no template manager")

// FaultRenderer turns faults into error pages using the error templates of a template manager.
type FaultRenderer struct {
	templates  *render.Manager
	policy     DisclosePolicy
	serverName string
}

// NewFaultRenderer inits a renderer. The manager must hold the [render.ErrorHTML] and
// [render.ErrorJSON] templates, see [render.NewDefaultManager].
func NewFaultRenderer(templates *render.Manager, policy DisclosePolicy, serverName string) *FaultRenderer {
	return &FaultRenderer{templates: templates, policy: policy, serverName: serverName}
}

// Render renders err, which is classified with [FaultOf]. With asJSON the JSON error template is used.
// When the template fails a plain text page is produced instead.
func (fr *FaultRenderer) Render(err error, asJSON bool) RenderedFault {
	f := FaultOf(err)
	rf := RenderedFault{
		Status: int(f.Code()),
		Name:   f.Kind().Humanized(),
		Allow:  f.Allowed(),
	}

	detail := ""
	if f.Disclosed() && fr.policy != DiscloseNever {
		detail = f.Message()
	}

	args := render.Args{"code": rf.Status, "name": rf.Name, "detail": detail, "server": fr.serverName}

	name, ctype := render.ErrorHTML, ContentTypeHTML
	if asJSON {
		name, ctype = render.ErrorJSON, ContentTypeJSON
	}

	body, rerr := "", errNoTemplates
	if fr.templates != nil {
		body, rerr = fr.templates.Render(name, args)
	}

	if rerr != nil {
		rf.ContentType = ContentTypeText
		rf.Body = []byte(strings.TrimSpace(fmt.Sprintf("%d %s\n%s", rf.Status, rf.Name, detail)) + "\n")

		return rf
	}

	rf.ContentType, rf.Body = ctype, []byte(body)

	return rf
}

// wantsJSON reports whether the client prefers a JSON error body: the route produces JSON or the
// client accepts JSON but not HTML.
func wantsJSON(req *Request, kind ResponseKind) bool {
	if kind == ResponseJSON {
		return true
	}

	if req == nil {
		return false
	}

	accept := strings.ToLower(strings.Join(req.headers.Values("Accept"), ","))

	return strings.Contains(accept, "application/json") && !strings.Contains(accept, "text/html")
}
