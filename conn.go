package mphttp

import (
	"bufio"
	"context"
	"io"
	"net"
	"runtime/debug"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
)

// conn serves the requests of one client connection, one after another.
type conn struct {
	srv  *Server
	nc   net.Conn
	cr   *connReader
	br   *bufio.Reader
	bw   *bufio.Writer
	idle atomic.Bool

	req *Request
	w   *ResponseWriter
}

func newConn(srv *Server, nc net.Conn) *conn {
	cr := newConnReader(nc)

	return &conn{
		srv: srv,
		nc:  nc,
		cr:  cr,
		br:  bufio.NewReaderSize(cr, 4<<10),
		bw:  bufio.NewWriterSize(nc, 4<<10),
	}
}

type connState func(*conn) connState

func (c *conn) serve() {
	defer c.srv.trackConn(c, false)
	defer c.nc.Close()
	defer func() {
		if v := recover(); v != nil {
			c.srv.logs.LogUnhandledServeError(errors.Newf("panic serving %s: %v\n%s", c.nc.RemoteAddr(), v, debug.Stack()))
		}
	}()

	for state := awaitRequest; state != nil; {
		state = state(c)
	}
}

func (c *conn) setReadDeadline(d time.Duration) {
	if d > 0 {
		c.nc.SetReadDeadline(time.Now().Add(d)) //nolint:errcheck
	} else {
		c.nc.SetReadDeadline(time.Time{}) //nolint:errcheck
	}
}

// state funcs

func awaitRequest(c *conn) connState {
	if c.srv.shuttingDown() {
		return nil
	}

	c.idle.Store(true)
	c.setReadDeadline(c.srv.cfg.IdleTimeout)

	if _, err := c.br.Peek(1); err != nil {
		return nil // closed, idle timeout or shutdown
	}

	c.idle.Store(false)
	c.setReadDeadline(c.srv.cfg.ReadHeaderTimeout)

	req, err := ReadRequest(c.br, c.srv.cfg.MaxHeaderBytes, nil)
	switch {
	case err == nil:
		c.req = req
		return serveRequest
	case errors.Is(err, io.EOF), errors.Is(err, io.ErrUnexpectedEOF), errors.Is(err, net.ErrClosed):
		return nil
	case isTimeout(err):
		c.rejectRequest(NewFault(KindRequestTimeout, "request head not received in time", err))
		return nil
	default:
		c.rejectRequest(err)
		return nil
	}
}

// rejectRequest answers an unreadable request and half-closes the connection. The client may still
// be sending, closing right away could reset the connection before it has read the error page.
func (c *conn) rejectRequest(err error) {
	c.req = nil
	c.w = c.newWriter(nil)
	c.w.SetClose()

	if werr := c.srv.dispatch.WriteFault(c.w, nil, err); werr != nil {
		return
	}

	if tc, ok := c.nc.(interface{ CloseWrite() error }); ok {
		tc.CloseWrite() //nolint:errcheck

		linger := time.NewTimer(lingerDelay)
		defer linger.Stop()

		select {
		case <-linger.C:
		case <-c.srv.baseCtx.Done():
		}
	}
}

const lingerDelay = 250 * time.Millisecond

func serveRequest(c *conn) connState {
	c.setReadDeadline(0)
	c.w = c.newWriter(c.req)
	if !c.req.keepAlive() || c.srv.shuttingDown() {
		c.w.SetClose()
	}

	ctx, cancel := context.WithCancel(c.srv.baseCtx)
	defer cancel()

	// the client going away cancels ctx, watched once the request body is out of the way
	var served atomic.Bool

	body := c.req.body
	if body == nil {
		c.cr.startBackgroundRead(cancel)
	} else {
		c.req.body = &eofSignal{r: body, fn: func() {
			if !served.Load() {
				c.cr.startBackgroundRead(cancel)
			}
		}}
	}

	err := c.srv.dispatch.Serve(ctx, c.req, c.w)
	served.Store(true)
	c.cr.abortPendingRead()
	c.req.body = body

	if err != nil || c.w.Closing() {
		return nil
	}

	return drainBody
}

// drainBody discards what the handler left unread of the request body so the next request can be
// read. Bodies larger than the drain limit end the connection instead.
func drainBody(c *conn) connState {
	c.setReadDeadline(c.srv.cfg.ReadHeaderTimeout)

	n, err := io.CopyN(io.Discard, c.req.Body(), c.srv.cfg.MaxBodyDrain+1)
	if n > c.srv.cfg.MaxBodyDrain || (err != nil && !errors.Is(err, io.EOF)) {
		return nil
	}

	c.req, c.w = nil, nil

	return awaitRequest
}

func (c *conn) newWriter(req *Request) *ResponseWriter {
	if d := c.srv.cfg.WriteTimeout; d > 0 {
		c.nc.SetWriteDeadline(time.Now().Add(d)) //nolint:errcheck
	}

	return NewResponseWriter(c.bw, req, c.srv.cfg.Response)
}

func isTimeout(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}

// eofSignal calls fn once the wrapped body reader is exhausted.
type eofSignal struct {
	r    io.Reader
	once sync.Once
	fn   func()
}

func (e *eofSignal) Read(b []byte) (int, error) {
	n, err := e.r.Read(b)
	if errors.Is(err, io.EOF) {
		e.once.Do(e.fn)
	}

	return n, err
}

// connReader sits below the buffered reader of a connection. While a request is served it reads a
// single byte in the background so that a client closing the connection cancels the request. That
// byte is handed to the next Read.
type connReader struct {
	nc net.Conn

	mu      sync.Mutex
	cond    *sync.Cond
	inRead  bool
	aborted bool
	hasByte bool
	byteBuf [1]byte
	cancel  context.CancelFunc
}

func newConnReader(nc net.Conn) *connReader {
	cr := &connReader{nc: nc}
	cr.cond = sync.NewCond(&cr.mu)

	return cr
}

func (cr *connReader) Read(p []byte) (int, error) {
	cr.mu.Lock()
	if cr.inRead {
		cr.mu.Unlock()
		panic("mphttp: concurrent read on connection")
	}

	if len(p) == 0 {
		cr.mu.Unlock()
		return 0, nil
	}

	if cr.hasByte {
		p[0] = cr.byteBuf[0]
		cr.hasByte = false
		cr.mu.Unlock()

		return 1, nil
	}

	cr.inRead = true
	cr.mu.Unlock()

	n, err := cr.nc.Read(p)

	cr.mu.Lock()
	cr.inRead = false
	cr.cond.Broadcast()
	cr.mu.Unlock()

	return n, err
}

// startBackgroundRead starts watching the connection, cancel is called when it fails or is closed
// by the client. Calling it while a read is in progress does nothing.
func (cr *connReader) startBackgroundRead(cancel context.CancelFunc) {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if cr.inRead || cr.hasByte {
		return
	}

	cr.inRead = true
	cr.cancel = cancel
	cr.nc.SetReadDeadline(time.Time{}) //nolint:errcheck

	go cr.backgroundRead()
}

func (cr *connReader) backgroundRead() {
	n, err := cr.nc.Read(cr.byteBuf[:])

	cr.mu.Lock()
	defer cr.mu.Unlock()

	if n == 1 {
		cr.hasByte = true
	}

	if err != nil && !(cr.aborted && isTimeout(err)) {
		cr.cancel()
	}

	cr.aborted = false
	cr.inRead = false
	cr.cancel = nil
	cr.cond.Broadcast()
}

// abortPendingRead stops a background read and waits for it to return.
func (cr *connReader) abortPendingRead() {
	cr.mu.Lock()
	defer cr.mu.Unlock()

	if !cr.inRead {
		return
	}

	cr.aborted = true
	cr.nc.SetReadDeadline(time.Unix(1, 0)) //nolint:errcheck

	for cr.inRead {
		cr.cond.Wait()
	}

	cr.nc.SetReadDeadline(time.Time{}) //nolint:errcheck
}
