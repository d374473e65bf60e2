package mphttp

import (
	"strconv"

	"github.com/cockroachdb/errors"
	"github.com/samber/lo"
)

// ParamIn tells where a declared parameter is read from.
type ParamIn string

const (
	InQuery ParamIn = "query"
	InPath  ParamIn = "path"
)

// ParamType is the declared type of a parameter.
type ParamType string

const (
	TypeString ParamType = "string"
	TypeInt    ParamType = "integer"
	TypeBool   ParamType = "boolean"
	TypeFloat  ParamType = "number"
)

// Param declares a parameter of a handler. Declared parameters are validated before the handler runs.
type Param struct {
	Name     string
	In       ParamIn   // defaults to InQuery
	Type     ParamType // defaults to TypeString
	Required bool
	Doc      string
}

// Location returns where the parameter is read from.
func (p Param) Location() ParamIn {
	if p.In == "" {
		return InQuery
	}

	return p.In
}

// DataType returns the declared type of the parameter.
func (p Param) DataType() ParamType {
	if p.Type == "" {
		return TypeString
	}

	return p.Type
}

// Params holds the validated, typed values of declared parameters.
type Params struct {
	vals map[string]any
}

// Has reports whether the parameter was provided.
func (p Params) Has(name string) bool {
	_, ok := p.vals[name]
	return ok
}

// String returns a string parameter, or the empty string.
func (p Params) String(name string) string {
	v, _ := p.vals[name].(string)
	return v
}

// Int returns an integer parameter, or zero.
func (p Params) Int(name string) int64 {
	v, _ := p.vals[name].(int64)
	return v
}

// Bool returns a boolean parameter, or false.
func (p Params) Bool(name string) bool {
	v, _ := p.vals[name].(bool)
	return v
}

// Float returns a number parameter, or zero.
func (p Params) Float(name string) float64 {
	v, _ := p.vals[name].(float64)
	return v
}

// validateParams reads every declared parameter from the request. A missing required parameter or a
// value that does not convert to the declared type is a BadRequest fault naming the parameter.
func validateParams(decl []Param, r *Request) (Params, error) {
	if len(decl) == 0 {
		return Params{}, nil
	}

	ps := Params{vals: make(map[string]any, len(decl))}
	for _, d := range decl {
		var raw string
		switch d.Location() {
		case InPath:
			raw = r.captures[d.Name]
		default:
			raw = r.query.Get(d.Name)
		}

		if raw == "" {
			if d.Required {
				return Params{}, BadRequest("parameter %q: required %s parameter is missing", d.Name, d.Location())
			}

			continue
		}

		v, err := convertParam(d.DataType(), raw)
		if err != nil {
			return Params{}, BadRequest("parameter %q: %q is not a valid %s", d.Name, raw, d.DataType())
		}

		ps.vals[d.Name] = v
	}

	return ps, nil
}

func convertParam(t ParamType, raw string) (any, error) {
	switch t {
	case TypeInt:
		return strconv.ParseInt(raw, 10, 64)
	case TypeBool:
		return strconv.ParseBool(raw)
	case TypeFloat:
		return strconv.ParseFloat(raw, 64)
	case TypeString:
		return raw, nil
	default:
		return nil, errors.Newf("unknown parameter type %q", t)
	}
}

// checkParamDecl validates parameter declarations at registration time.
func checkParamDecl(decl []Param, captures []string) error {
	seen := map[string]bool{}
	for _, d := range decl {
		if d.Name == "" {
			return errors.New("parameter without a name")
		}

		if seen[d.Name] {
			return errors.Newf("parameter %q declared twice", d.Name)
		}

		seen[d.Name] = true

		switch d.DataType() {
		case TypeString, TypeInt, TypeBool, TypeFloat:
		default:
			return errors.Newf("parameter %q: unknown type %q", d.Name, d.Type)
		}

		switch d.Location() {
		case InQuery:
		case InPath:
			if !lo.Contains(captures, d.Name) {
				return errors.Newf("path parameter %q has no matching {%s} segment", d.Name, d.Name)
			}
		default:
			return errors.Newf("parameter %q: unknown location %q", d.Name, d.In)
		}
	}

	return nil
}
