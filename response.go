package mphttp

import (
	"bufio"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/cockroachdb/errors"
)

// Content types set by the response writer for each kind of response.
const (
	ContentTypeJSON        = "application/json; charset=UTF-8"
	ContentTypeHTML        = "text/html; charset=UTF-8"
	ContentTypeText        = "text/plain; charset=UTF-8"
	ContentTypeOctetStream = "application/octet-stream"
)

// UnknownLength is passed to [ResponseWriter.WriteHeader] when the body length is not known upfront.
const UnknownLength = -1

// Contract violations of the response writer. In strict mode they panic instead.
var (
	ErrHeadersWritten    = errors.New("mphttp: response headers already written")
	ErrBodyBeforeHeaders = errors.New("mphttp: response body written before headers")
	ErrContentLength     = errors.New("mphttp: response body does not match the declared content length")
)

// ResponseConfig configures response writers.
type ResponseConfig struct {
	// ServerName is sent as the Server header when not empty.
	ServerName string
	// Strict makes contract violations panic, meant for development.
	Strict bool
	// Now returns the time for the Date header, defaults to time.Now.
	Now func() time.Time
}

// ResponseWriter writes one HTTP/1.1 response onto a connection. The status line and headers are
// written exactly once, before any body bytes. A body of known length is sent with Content-Length,
// otherwise it is sent in chunks (or delimited by closing the connection for HTTP/1.0 clients).
type ResponseWriter struct {
	bw     *bufio.Writer
	cfg    ResponseConfig
	head   bool
	http10 bool

	header      Headers
	wroteHeader bool
	status      int
	length      int64
	written     int64
	chunked     *chunkedWriter
	closeAfter  bool
	finished    bool
}

// NewResponseWriter inits a writer for the response to req. The request may be nil when it could not be
// parsed, the response is then written for an HTTP/1.1 GET.
func NewResponseWriter(w io.Writer, req *Request, cfg ResponseConfig) *ResponseWriter {
	bw, ok := w.(*bufio.Writer)
	if !ok {
		bw = bufio.NewWriter(w)
	}

	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	rw := &ResponseWriter{bw: bw, cfg: cfg, length: UnknownLength}
	if req != nil {
		rw.head = req.method == MethodHead
		rw.http10 = req.proto == HTTP10
	}

	return rw
}

// Header returns the headers that will be sent. Changes after [ResponseWriter.WriteHeader] have no
// effect.
func (w *ResponseWriter) Header() *Headers { return &w.header }

// SetClose asks for the connection to be closed after this response. It must be called before the
// headers are written to be announced to the client.
func (w *ResponseWriter) SetClose() { w.closeAfter = true }

// Closing reports whether the connection must be closed after this response.
func (w *ResponseWriter) Closing() bool { return w.closeAfter }

// HeadersWritten reports whether the status line and headers were written.
func (w *ResponseWriter) HeadersWritten() bool { return w.wroteHeader }

// Status returns the written status code, or zero.
func (w *ResponseWriter) Status() int { return w.status }

// Written returns the number of body bytes accepted so far.
func (w *ResponseWriter) Written() int64 { return w.written }

func (w *ResponseWriter) violation(err error, format string, args ...any) error {
	err = errors.Wrapf(err, format, args...)
	if w.cfg.Strict {
		panic(err)
	}

	w.closeAfter = true // the connection is in an unknown state

	return err
}

// WriteHeader writes the status line and headers. A contentLength of [UnknownLength] selects chunked
// framing.
func (w *ResponseWriter) WriteHeader(status int, contentLength int64) error {
	if w.wroteHeader {
		return w.violation(ErrHeadersWritten, "status %d after %d", status, w.status)
	}

	w.wroteHeader, w.status = true, status

	w.header.Del("Content-Length")
	w.header.Del("Transfer-Encoding")

	switch {
	case status == http.StatusNoContent || status == http.StatusNotModified || status < 200:
		w.length = 0
	case contentLength >= 0:
		w.length = contentLength
		w.header.Set("Content-Length", strconv.FormatInt(contentLength, 10))
	case w.http10:
		w.closeAfter = true // body ends when the connection closes
	case !w.head:
		w.header.Set("Transfer-Encoding", "chunked")
		w.chunked = newChunkedWriter(w.bw)
	}

	if w.closeAfter {
		w.header.Set("Connection", "close")
	}

	if !w.header.Has("Date") {
		w.header.Set("Date", w.cfg.Now().UTC().Format(http.TimeFormat))
	}

	if w.cfg.ServerName != "" && !w.header.Has("Server") {
		w.header.Set("Server", w.cfg.ServerName)
	}

	if _, err := fmt.Fprintf(w.bw, "%s %d %s\r\n", HTTP11, status, http.StatusText(status)); err != nil {
		return errors.Wrap(err, "write status line")
	}

	for _, h := range w.header {
		if _, err := fmt.Fprintf(w.bw, "%s: %s\r\n", h.Name, h.Value); err != nil {
			return errors.Wrap(err, "write header")
		}
	}

	if _, err := io.WriteString(w.bw, "\r\n"); err != nil {
		return errors.Wrap(err, "write header terminator")
	}

	return nil
}

// Write writes body bytes. For HEAD requests the bytes are counted but not sent.
func (w *ResponseWriter) Write(b []byte) (int, error) {
	if !w.wroteHeader {
		return 0, w.violation(ErrBodyBeforeHeaders, "%d bytes", len(b))
	}

	if w.length >= 0 && w.written+int64(len(b)) > w.length {
		return 0, w.violation(ErrContentLength, "declared %d, got at least %d", w.length, w.written+int64(len(b)))
	}

	w.written += int64(len(b))
	if w.head {
		return len(b), nil
	}

	if w.chunked != nil {
		return w.chunked.Write(b)
	}

	return w.bw.Write(b)
}

// Finish completes the response: it terminates a chunked body and flushes the connection buffer. A body
// shorter than the declared length is a violation since the client would wait for bytes that never
// come.
func (w *ResponseWriter) Finish() error {
	if w.finished {
		return nil
	}

	w.finished = true

	if !w.wroteHeader {
		return w.violation(ErrBodyBeforeHeaders, "finish without headers")
	}

	if w.length >= 0 && w.written < w.length && !w.head {
		if err := w.bw.Flush(); err != nil {
			return errors.Wrap(err, "flush")
		}

		return w.violation(ErrContentLength, "declared %d, wrote %d", w.length, w.written)
	}

	if w.chunked != nil {
		if err := w.chunked.Close(); err != nil {
			return errors.Wrap(err, "terminate chunked body")
		}
	}

	return errors.Wrap(w.bw.Flush(), "flush")
}
