package mphttp_test

import (
	"testing"

	"github.com/advdv/mphttp"
	"github.com/cockroachdb/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFaultCode(t *testing.T) {
	f1 := mphttp.BadRequest("invalid %s", "input")
	require.Equal(t, mphttp.Code(400), f1.Code())
	require.Equal(t, mphttp.CodeBadRequest, mphttp.CodeOf(f1))
	require.Equal(t, "Bad Request: invalid input", f1.Error())
	require.True(t, f1.Disclosed())

	require.Equal(t, mphttp.CodeUnknown, mphttp.CodeOf(errors.New("bar")))
	require.Equal(t, mphttp.CodeServiceUnavailable, mphttp.CodeOf(
		errors.Wrap(mphttp.ServiceUnavailable("library offline", nil), "list items")))
}

func TestFaultKinds(t *testing.T) {
	for kind, code := range map[mphttp.Kind]mphttp.Code{
		mphttp.KindBadRequest:         400,
		mphttp.KindForbidden:          403,
		mphttp.KindNotFound:           404,
		mphttp.KindServiceUnavailable: 503,
		mphttp.KindInternalError:      500,
	} {
		assert.Equal(t, code, kind.Code(), kind)
	}

	require.PanicsWithValue(t, `mphttp: unknown fault kind "Teapot"`, func() {
		mphttp.NewFault("Teapot", "short and stout", nil)
	})
}

func TestFaultOf(t *testing.T) {
	t.Run("unclassified errors become internal and are withheld", func(t *testing.T) {
		cause := errors.New("db password is hunter2")
		f := mphttp.FaultOf(cause)
		require.Equal(t, mphttp.KindInternalError, f.Kind())
		require.False(t, f.Disclosed())
		require.ErrorIs(t, f, cause)
	})

	t.Run("wrapped faults are found", func(t *testing.T) {
		f := mphttp.FaultOf(errors.Wrap(mphttp.Forbidden("No access"), "check key"))
		require.Equal(t, mphttp.KindForbidden, f.Kind())
		require.Equal(t, "No access", f.Message())
	})

	t.Run("withheld copies do not disclose", func(t *testing.T) {
		f := mphttp.NotFound("item %d", 42)
		w := f.Withheld()
		require.True(t, f.Disclosed())
		require.False(t, w.Disclosed())
		require.Equal(t, f.Message(), w.Message())
	})

	t.Run("internal is never disclosed", func(t *testing.T) {
		require.False(t, mphttp.NewFault(mphttp.KindInternalError, "boom", nil).Disclosed())
	})
}

func TestHumanize(t *testing.T) {
	for in, exp := range map[string]string{
		"ServiceUnavailable":      "Service Unavailable",
		"Forbidden":               "Forbidden",
		"NotFound":                "Not Found",
		"InternalError":           "Internal Error",
		"HTTPVersionNotSupported": "HTTP Version Not Supported",
		"":                        "",
	} {
		assert.Equal(t, exp, mphttp.Humanize(in), in)
	}
}
