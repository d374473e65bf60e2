package mphttp

import (
	"fmt"
	"net/http"
	"strings"
	"unicode"

	"github.com/cockroachdb/errors"
)

// Code is an error code that mirrors the http status codes. Every fault kind maps onto exactly one code.
type Code int

const (
	CodeUnknown                     Code = 0
	CodeBadRequest                  Code = http.StatusBadRequest                  // RFC 9110, 15.5.1
	CodeUnauthorized                Code = http.StatusUnauthorized                // RFC 9110, 15.5.2
	CodeForbidden                   Code = http.StatusForbidden                   // RFC 9110, 15.5.4
	CodeNotFound                    Code = http.StatusNotFound                    // RFC 9110, 15.5.5
	CodeMethodNotAllowed            Code = http.StatusMethodNotAllowed            // RFC 9110, 15.5.6
	CodeRequestTimeout              Code = http.StatusRequestTimeout              // RFC 9110, 15.5.9
	CodeRequestHeaderFieldsTooLarge Code = http.StatusRequestHeaderFieldsTooLarge // RFC 6585, 5

	CodeInternalServerError     Code = http.StatusInternalServerError     // RFC 9110, 15.6.1
	CodeNotImplemented          Code = http.StatusNotImplemented          // RFC 9110, 15.6.2
	CodeServiceUnavailable      Code = http.StatusServiceUnavailable      // RFC 9110, 15.6.4
	CodeHTTPVersionNotSupported Code = http.StatusHTTPVersionNotSupported // RFC 9110, 15.6.6
)

// Kind names a class of fault. The set is closed: only the kinds declared here can be raised.
type Kind string

const (
	KindBadRequest                  Kind = "BadRequest"
	KindUnauthorized                Kind = "Unauthorized"
	KindForbidden                   Kind = "Forbidden"
	KindNotFound                    Kind = "NotFound"
	KindMethodNotAllowed            Kind = "MethodNotAllowed"
	KindRequestTimeout              Kind = "RequestTimeout"
	KindRequestHeaderFieldsTooLarge Kind = "RequestHeaderFieldsTooLarge"
	KindInternalError               Kind = "InternalError"
	KindNotImplemented              Kind = "NotImplemented"
	KindServiceUnavailable          Kind = "ServiceUnavailable"
	KindHTTPVersionNotSupported     Kind = "HTTPVersionNotSupported"
)

var kindCodes = map[Kind]Code{
	KindBadRequest:                  CodeBadRequest,
	KindUnauthorized:                CodeUnauthorized,
	KindForbidden:                   CodeForbidden,
	KindNotFound:                    CodeNotFound,
	KindMethodNotAllowed:            CodeMethodNotAllowed,
	KindRequestTimeout:              CodeRequestTimeout,
	KindRequestHeaderFieldsTooLarge: CodeRequestHeaderFieldsTooLarge,
	KindInternalError:               CodeInternalServerError,
	KindNotImplemented:              CodeNotImplemented,
	KindServiceUnavailable:          CodeServiceUnavailable,
	KindHTTPVersionNotSupported:     CodeHTTPVersionNotSupported,
}

// Code returns the status code of the kind, or [CodeUnknown] for kinds outside the closed set.
func (k Kind) Code() Code { return kindCodes[k] }

// Valid reports whether k is one of the declared kinds.
func (k Kind) Valid() bool {
	_, ok := kindCodes[k]
	return ok
}

// Humanized returns the display name of the kind, e.g. "Service Unavailable".
func (k Kind) Humanized() string { return Humanize(string(k)) }

// Fault describes a classified error condition that carries an HTTP status code. Handlers return
// faults (possibly wrapped) and the dispatcher turns them into responses.
type Fault struct {
	kind     Kind
	msg      string
	cause    error
	disclose bool
	allow    []Method
}

// NewFault inits a fault of the given kind. The message is disclosed to clients for every kind except
// [KindInternalError]. Panics when kind is not part of the closed set.
func NewFault(kind Kind, msg string, cause error) *Fault {
	if !kind.Valid() {
		panic(fmt.Sprintf("mphttp: unknown fault kind %q", kind))
	}

	return &Fault{kind: kind, msg: msg, cause: cause, disclose: kind != KindInternalError}
}

// BadRequest is raised for malformed messages and parameters that fail validation.
func BadRequest(format string, args ...any) *Fault {
	return NewFault(KindBadRequest, fmt.Sprintf(format, args...), nil)
}

// Unauthorized is raised when credentials are required but missing.
func Unauthorized(msg string) *Fault { return NewFault(KindUnauthorized, msg, nil) }

// Forbidden is raised when the caller is not allowed to access the resource.
func Forbidden(msg string) *Fault { return NewFault(KindForbidden, msg, nil) }

// NotFound is raised when no resource (or no handler) exists for the request.
func NotFound(format string, args ...any) *Fault {
	return NewFault(KindNotFound, fmt.Sprintf(format, args...), nil)
}

// MethodNotAllowed is raised when the path is known but not for the requested method.
func MethodNotAllowed(method Method, allowed ...Method) *Fault {
	f := NewFault(KindMethodNotAllowed, fmt.Sprintf("method %s is not allowed", method), nil)
	f.allow = allowed

	return f
}

// ServiceUnavailable is raised when a required collaborator is absent or failing.
func ServiceUnavailable(msg string, cause error) *Fault {
	return NewFault(KindServiceUnavailable, msg, cause)
}

// Internal wraps an unclassified error. Its cause is never disclosed to the client.
func Internal(cause error) *Fault {
	return NewFault(KindInternalError, "the server encountered an internal error", cause)
}

func (f *Fault) Kind() Kind      { return f.kind }
func (f *Fault) Code() Code      { return f.kind.Code() }
func (f *Fault) Message() string { return f.msg }
func (f *Fault) Unwrap() error   { return f.cause }

// Disclosed reports whether the message may be shown to the client.
func (f *Fault) Disclosed() bool { return f.disclose && f.kind != KindInternalError }

// Allowed returns the methods that are allowed for a [KindMethodNotAllowed] fault.
func (f *Fault) Allowed() []Method { return f.allow }

// Withheld returns a copy of the fault whose message is not disclosed to the client.
func (f *Fault) Withheld() *Fault {
	cp := *f
	cp.disclose = false

	return &cp
}

func (f *Fault) Error() string {
	var b strings.Builder
	b.WriteString(f.kind.Humanized())
	if f.msg != "" {
		b.WriteString(": ")
		b.WriteString(f.msg)
	}

	if f.cause != nil {
		b.WriteString(": ")
		b.WriteString(f.cause.Error())
	}

	return b.String()
}

// CodeOf returns the error's status code if it is or wraps a [*Fault] and [CodeUnknown] otherwise.
func CodeOf(err error) Code {
	if f, ok := asFault(err); ok {
		return f.Code()
	}

	return CodeUnknown
}

// FaultOf returns the fault err is or wraps. Any other error is classified as [KindInternalError].
func FaultOf(err error) *Fault {
	if f, ok := asFault(err); ok {
		return f
	}

	return Internal(err)
}

func asFault(err error) (*Fault, bool) {
	var f *Fault
	ok := errors.As(err, &f)

	return f, ok
}

// Humanize inserts a space before each internal capital letter of an enum-style name, so
// "ServiceUnavailable" becomes "Service Unavailable". A run of capitals is kept together as an
// acronym: "HTTPVersionNotSupported" becomes "HTTP Version Not Supported".
func Humanize(name string) string {
	runes := []rune(name)

	var b strings.Builder
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prev := runes[i-1]
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if unicode.IsLower(prev) || unicode.IsDigit(prev) || (unicode.IsUpper(prev) && nextLower) {
				b.WriteRune(' ')
			}
		}

		b.WriteRune(r)
	}

	return b.String()
}
