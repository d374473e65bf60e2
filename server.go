package mphttp

import (
	"context"
	"net"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cockroachdb/errors"
	"golang.org/x/net/netutil"
)

// ErrServerClosed is returned by [Server.Serve] after [Server.Shutdown] or [Server.Close].
var ErrServerClosed = errors.New("mphttp: server closed")

// ServerConfig configures the connection handling of a [Server].
type ServerConfig struct {
	// Addr is the TCP address to listen on, e.g. ":8080".
	Addr string
	// MaxConns limits the number of connections served at once. Zero means no limit.
	MaxConns int
	// MaxHeaderBytes limits the request line plus header section, defaults to [DefaultMaxHeaderBytes].
	MaxHeaderBytes int
	// MaxBodyDrain is how many unread request body bytes are discarded to keep a connection alive.
	MaxBodyDrain int64
	// ReadHeaderTimeout bounds reading a request head once its first byte arrived.
	ReadHeaderTimeout time.Duration
	// IdleTimeout bounds waiting for the next request on a kept-alive connection.
	IdleTimeout time.Duration
	// WriteTimeout bounds writing a response.
	WriteTimeout time.Duration
	// Response configures the response writers.
	Response ResponseConfig
}

// DefaultMaxBodyDrain is used when ServerConfig.MaxBodyDrain is zero.
const DefaultMaxBodyDrain = 256 << 10

// Server accepts connections and serves every connection from its own goroutine. Requests on one
// connection are handled strictly one after another so responses leave in request order.
type Server struct {
	cfg      ServerConfig
	dispatch *Dispatcher
	logs     Logger

	baseCtx    context.Context
	cancelBase context.CancelFunc
	inShutdown atomic.Bool

	mu        sync.Mutex
	listeners map[*net.Listener]struct{}
	conns     map[*conn]struct{}
	connsDone sync.WaitGroup
}

// NewServer inits a server.
func NewServer(cfg ServerConfig, dispatch *Dispatcher, logs Logger) *Server {
	if cfg.MaxBodyDrain == 0 {
		cfg.MaxBodyDrain = DefaultMaxBodyDrain
	}

	ctx, cancel := context.WithCancel(context.Background())

	return &Server{
		cfg:        cfg,
		dispatch:   dispatch,
		logs:       logs,
		baseCtx:    ctx,
		cancelBase: cancel,
		listeners:  map[*net.Listener]struct{}{},
		conns:      map[*conn]struct{}{},
	}
}

// ListenAndServe listens on the configured address and serves it.
func (s *Server) ListenAndServe() error {
	if s.shuttingDown() {
		return ErrServerClosed
	}

	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.Wrapf(err, "listen on %q", s.cfg.Addr)
	}

	return s.Serve(ln)
}

// Serve accepts connections from ln until the server is shut down. It always returns a non-nil error;
// after Shutdown or Close it is [ErrServerClosed].
func (s *Server) Serve(ln net.Listener) error {
	if s.cfg.MaxConns > 0 {
		ln = netutil.LimitListener(ln, s.cfg.MaxConns)
	}

	if !s.trackListener(&ln, true) {
		return ErrServerClosed
	}
	defer s.trackListener(&ln, false)

	var delay time.Duration
	for {
		nc, err := ln.Accept()
		if err != nil {
			if s.shuttingDown() {
				return ErrServerClosed
			}

			var ne net.Error
			if errors.As(err, &ne) && ne.Timeout() {
				delay = min(max(delay*2, 5*time.Millisecond), time.Second)
				time.Sleep(delay)

				continue
			}

			return errors.Wrap(err, "accept")
		}

		delay = 0

		c := newConn(s, nc)
		if !s.trackConn(c, true) {
			nc.Close()
			return ErrServerClosed
		}

		go c.serve()
	}
}

// Shutdown stops accepting connections, closes idle ones and waits for active ones to finish their
// current request. If ctx expires first the remaining connections are closed forcefully.
func (s *Server) Shutdown(ctx context.Context) error {
	s.inShutdown.Store(true)
	lnerr := s.closeListeners()

	ticker := time.NewTicker(10 * time.Millisecond)
	defer ticker.Stop()

	for {
		if s.closeIdleConns() {
			s.connsDone.Wait()
			s.cancelBase()

			return lnerr
		}

		select {
		case <-ctx.Done():
			s.Close()
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Close closes all listeners and connections immediately, cancelling the context of in-flight
// requests.
func (s *Server) Close() error {
	s.inShutdown.Store(true)
	s.cancelBase()
	err := s.closeListeners()

	s.mu.Lock()
	for c := range s.conns {
		c.nc.Close()
	}
	s.mu.Unlock()

	s.connsDone.Wait()

	return err
}

func (s *Server) shuttingDown() bool { return s.inShutdown.Load() }

func (s *Server) trackListener(ln *net.Listener, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.listeners, ln)
		return true
	}

	if s.shuttingDown() {
		return false
	}

	s.listeners[ln] = struct{}{}

	return true
}

func (s *Server) trackConn(c *conn, add bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !add {
		delete(s.conns, c)
		s.connsDone.Done()

		return true
	}

	if s.shuttingDown() {
		return false
	}

	s.conns[c] = struct{}{}
	s.connsDone.Add(1)

	return true
}

func (s *Server) closeListeners() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	for ln := range s.listeners {
		if cerr := (*ln).Close(); cerr != nil && err == nil {
			err = cerr
		}
	}

	return err
}

// closeIdleConns closes connections that wait for a request and reports whether no connection is left.
func (s *Server) closeIdleConns() bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	quiescent := true
	for c := range s.conns {
		if !c.idle.Load() {
			quiescent = false
			continue
		}

		c.nc.Close()
	}

	return quiescent
}
