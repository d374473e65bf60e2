package mphttp

import (
	"log"
	"sync"
	"sync/atomic"
	"testing"
	"time"
)

// RequestRecord describes a completed request.
type RequestRecord struct {
	Method   Method
	Path     string
	Pattern  string // matched route pattern, empty when no route matched
	Status   int
	Fault    Kind // empty on success
	Written  int64
	Duration time.Duration
	Err      error // full error, including causes that were withheld from the client
}

// Logger can be implemented to get informed about important states.
type Logger interface {
	LogRequest(rec RequestRecord)
	LogUnhandledServeError(err error)
	LogWriteError(err error)
}

type stdLogger struct{ *log.Logger }

func (l stdLogger) LogRequest(rec RequestRecord) {
	if rec.Err != nil {
		l.Logger.Printf("mphttp: %s %s %d %s (%s): %s", rec.Method, rec.Path, rec.Status, rec.Fault, rec.Duration, rec.Err)
		return
	}

	l.Logger.Printf("mphttp: %s %s %d (%s)", rec.Method, rec.Path, rec.Status, rec.Duration)
}

func (l stdLogger) LogUnhandledServeError(err error) {
	l.Logger.Printf("mphttp: unhandled server error: %s", err)
}

func (l stdLogger) LogWriteError(err error) {
	l.Logger.Printf("mphttp: error while writing response: %s", err)
}

func NewStdLogger(l *log.Logger) Logger {
	return stdLogger{l}
}

// MultiLogger fans out to several loggers.
type MultiLogger []Logger

func (m MultiLogger) LogRequest(rec RequestRecord) {
	for _, l := range m {
		l.LogRequest(rec)
	}
}

func (m MultiLogger) LogUnhandledServeError(err error) {
	for _, l := range m {
		l.LogUnhandledServeError(err)
	}
}

func (m MultiLogger) LogWriteError(err error) {
	for _, l := range m {
		l.LogWriteError(err)
	}
}

type TestLogger struct {
	tb testing.TB

	mu      sync.Mutex
	records []RequestRecord

	NumLogUnhandledServeError int64
	NumLogWriteError          int64
}

func NewTestLogger(tb testing.TB) *TestLogger {
	return &TestLogger{tb: tb}
}

func (l *TestLogger) LogRequest(rec RequestRecord) {
	l.mu.Lock()
	l.records = append(l.records, rec)
	l.mu.Unlock()
	l.tb.Logf("mphttp: %s %s %d %s", rec.Method, rec.Path, rec.Status, rec.Fault)
}

func (l *TestLogger) LogUnhandledServeError(err error) {
	atomic.AddInt64(&l.NumLogUnhandledServeError, 1)
	l.tb.Logf("mphttp: unhandled server error: %s", err)
}

func (l *TestLogger) LogWriteError(err error) {
	atomic.AddInt64(&l.NumLogWriteError, 1)
	l.tb.Logf("mphttp: error while writing response: %s", err)
}

// Records returns a copy of the request records logged so far.
func (l *TestLogger) Records() []RequestRecord {
	l.mu.Lock()
	defer l.mu.Unlock()

	return append([]RequestRecord(nil), l.records...)
}

var (
	_ Logger = &TestLogger{}
	_ Logger = MultiLogger{}
)
