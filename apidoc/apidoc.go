// Package apidoc describes the routes of a registry as an OpenAPI 3 document.
package apidoc

import (
	"context"
	"net/http"
	"strings"
	"sync"

	"github.com/advdv/mphttp"
	"github.com/advdv/mphttp/internal/pattern"
	"github.com/cockroachdb/errors"
	"github.com/getkin/kin-openapi/openapi3"
	"github.com/samber/lo"
)

// OpenAPIVersion is the version of the produced documents.
const OpenAPIVersion = "3.0.3"

// Info describes the API as a whole.
type Info struct {
	Title       string
	Version     string
	Description string
}

// Build describes every route of reg. Only descriptors are read, no handler is invoked. Wildcards are
// documented as a trailing "{rest}" path parameter.
func Build(reg *mphttp.Registry, info Info) (*openapi3.T, error) {
	info.Title = lo.CoalesceOrEmpty(info.Title, "mphttp")
	info.Version = lo.CoalesceOrEmpty(info.Version, "0.0.0")

	doc := &openapi3.T{
		OpenAPI: OpenAPIVersion,
		Info: &openapi3.Info{
			Title:       info.Title,
			Version:     info.Version,
			Description: info.Description,
		},
		Paths: openapi3.NewPaths(),
		Components: &openapi3.Components{
			Schemas: openapi3.Schemas{"Fault": openapi3.NewSchemaRef("", faultSchema())},
		},
	}

	for _, desc := range reg.Routes() {
		pat, err := pattern.Parse(desc.Pattern)
		if err != nil {
			return nil, errors.Wrapf(err, "route %s %s", desc.Method, desc.Pattern)
		}

		doc.AddOperation(docPath(pat), string(desc.Method), operation(desc, pat))
	}

	if err := doc.Validate(context.Background()); err != nil {
		return nil, errors.Wrap(err, "invalid api document")
	}

	return doc, nil
}

func docPath(pat *pattern.Pattern) string {
	var b strings.Builder
	for _, seg := range pat.Segments() {
		b.WriteByte('/')

		switch seg.Kind {
		case pattern.Literal:
			b.WriteString(seg.Value)
		case pattern.Capture:
			b.WriteString("{" + seg.Value + "}")
		case pattern.Wildcard:
			b.WriteString("{rest}")
		}
	}

	if b.Len() == 0 {
		return "/"
	}

	return b.String()
}

func operation(desc mphttp.Descriptor, pat *pattern.Pattern) *openapi3.Operation {
	op := openapi3.NewOperation()
	op.OperationID = desc.Name
	op.Summary = desc.Summary

	declared := lo.SliceToMap(desc.Params, func(p mphttp.Param) (string, mphttp.Param) {
		return string(p.Location()) + ":" + p.Name, p
	})

	// every capture becomes a path parameter, declared or not
	names := pat.Captures()
	if pat.HasWildcard() {
		names = append(names, "rest")
	}

	for _, name := range names {
		p, ok := declared["path:"+name]
		if !ok {
			p = mphttp.Param{Name: name, In: mphttp.InPath}
		}

		op.AddParameter(parameter(p))
	}

	for _, p := range desc.Params {
		if p.Location() == mphttp.InQuery {
			op.AddParameter(parameter(p))
		}
	}

	op.Responses = openapi3.NewResponses(
		openapi3.WithStatus(http.StatusOK, &openapi3.ResponseRef{Value: success(desc.Kind)}),
		openapi3.WithName("default", openapi3.NewResponse().
			WithDescription("Fault").
			WithJSONSchemaRef(openapi3.NewSchemaRef("#/components/schemas/Fault", faultSchema()))),
	)

	return op
}

func parameter(p mphttp.Param) *openapi3.Parameter {
	var param *openapi3.Parameter
	if p.Location() == mphttp.InPath {
		param = openapi3.NewPathParameter(p.Name)
	} else {
		param = openapi3.NewQueryParameter(p.Name).WithRequired(p.Required)
	}

	param.Description = p.Doc

	return param.WithSchema(schemaFor(p.DataType()))
}

func schemaFor(typ mphttp.ParamType) *openapi3.Schema {
	switch typ {
	case mphttp.TypeInt:
		return openapi3.NewInt64Schema()
	case mphttp.TypeBool:
		return openapi3.NewBoolSchema()
	case mphttp.TypeFloat:
		return openapi3.NewFloat64Schema()
	default:
		return openapi3.NewStringSchema()
	}
}

func success(kind mphttp.ResponseKind) *openapi3.Response {
	resp := openapi3.NewResponse().WithDescription("OK")

	switch kind {
	case mphttp.ResponseJSON:
		return resp.WithJSONSchema(openapi3.NewObjectSchema())
	case mphttp.ResponseHTML:
		return resp.WithContent(openapi3.NewContentWithSchema(openapi3.NewStringSchema(), []string{"text/html"}))
	default:
		return resp.WithContent(openapi3.NewContentWithSchema(
			openapi3.NewStringSchema().WithFormat("binary"), []string{mphttp.ContentTypeOctetStream}))
	}
}

func faultSchema() *openapi3.Schema {
	return openapi3.NewObjectSchema().
		WithProperty("code", openapi3.NewIntegerSchema()).
		WithProperty("name", openapi3.NewStringSchema()).
		WithProperty("detail", openapi3.NewStringSchema())
}

// Handler serves the document of reg as JSON. The document is built on the first request, when all
// routes are registered.
func Handler(reg *mphttp.Registry, info Info) mphttp.HandlerFunc {
	build := sync.OnceValues(func() (*openapi3.T, error) { return Build(reg, info) })

	return func(context.Context, *mphttp.Request, mphttp.Params) (mphttp.Result, error) {
		doc, err := build()
		if err != nil {
			return mphttp.Result{}, err
		}

		return mphttp.JSON(doc), nil
	}
}
