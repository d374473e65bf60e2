package mphttp

import (
	"bufio"
	"bytes"
	"io"
	"net/url"
	"strconv"
	"strings"

	"github.com/cockroachdb/errors"
)

// ParseState is the state of the incremental [Parser].
type ParseState int

const (
	StateAwaitingRequestLine ParseState = iota
	StateAwaitingHeaderLine
	StateHeadersComplete
	StateBodyPassthrough
	StateDone
	StateFailed
)

func (s ParseState) String() string {
	switch s {
	case StateAwaitingRequestLine:
		return "AwaitingRequestLine"
	case StateAwaitingHeaderLine:
		return "AwaitingHeaderLine"
	case StateHeadersComplete:
		return "HeadersComplete"
	case StateBodyPassthrough:
		return "BodyPassthrough"
	case StateDone:
		return "Done"
	case StateFailed:
		return "Failed"
	default:
		return "ParseState(" + strconv.Itoa(int(s)) + ")"
	}
}

// DefaultMaxHeaderBytes bounds the size of the request line plus header section.
const DefaultMaxHeaderBytes = 1 << 16

// RequestLine is the first line of a request.
type RequestLine struct {
	Method Method
	Target string
	Proto  string
}

// ParserObserver is informed about each element of the request head as soon as it completes.
type ParserObserver interface {
	OnRequestLine(rl RequestLine)
	OnHeader(h Header)
	OnHeadersComplete()
}

// ObserverFuncs implements [ParserObserver] with optional functions.
type ObserverFuncs struct {
	RequestLine     func(RequestLine)
	Header          func(Header)
	HeadersComplete func()
}

func (o ObserverFuncs) OnRequestLine(rl RequestLine) {
	if o.RequestLine != nil {
		o.RequestLine(rl)
	}
}

func (o ObserverFuncs) OnHeader(h Header) {
	if o.Header != nil {
		o.Header(h)
	}
}

func (o ObserverFuncs) OnHeadersComplete() {
	if o.HeadersComplete != nil {
		o.HeadersComplete()
	}
}

// Parser is a resumable request-head parser. Bytes may be fed in chunks of any size; partial lines are
// buffered until their terminator arrives. The parser stops consuming at the end of the header section
// so body bytes are never taken from the caller.
type Parser struct {
	state   ParseState
	line    []byte
	limit   int
	size    int
	rl      RequestLine
	headers Headers
	obs     ParserObserver
	err     error
}

// NewParser inits a parser. A limit <= 0 selects [DefaultMaxHeaderBytes]; obs may be nil.
func NewParser(limit int, obs ParserObserver) *Parser {
	if limit <= 0 {
		limit = DefaultMaxHeaderBytes
	}

	if obs == nil {
		obs = ObserverFuncs{}
	}

	return &Parser{limit: limit, obs: obs}
}

// State returns the current state.
func (p *Parser) State() ParseState { return p.state }

// Err returns the fault that moved the parser into [StateFailed].
func (p *Parser) Err() error { return p.err }

// RequestLine returns the parsed request line; only valid after it was observed.
func (p *Parser) RequestLine() RequestLine { return p.rl }

// Headers returns a copy of the headers parsed so far.
func (p *Parser) Headers() Headers { return p.headers.Clone() }

// Feed consumes bytes from chunk and returns how many were consumed. Once the header section is
// complete no further bytes are consumed. Errors are faults and leave the parser in [StateFailed].
func (p *Parser) Feed(chunk []byte) (int, error) {
	if p.state == StateFailed {
		return 0, p.err
	}

	consumed := 0
	for consumed < len(chunk) && p.state < StateHeadersComplete {
		idx := bytes.IndexByte(chunk[consumed:], '\n')
		if idx < 0 {
			p.line = append(p.line, chunk[consumed:]...)
			p.size += len(chunk) - consumed
			consumed = len(chunk)

			if p.size > p.limit {
				return consumed, p.fail(NewFault(KindRequestHeaderFieldsTooLarge,
					"request header section exceeds "+strconv.Itoa(p.limit)+" bytes", nil))
			}

			break
		}

		p.line = append(p.line, chunk[consumed:consumed+idx]...)
		p.size += idx + 1
		consumed += idx + 1

		if p.size > p.limit {
			return consumed, p.fail(NewFault(KindRequestHeaderFieldsTooLarge,
				"request header section exceeds "+strconv.Itoa(p.limit)+" bytes", nil))
		}

		line := string(bytes.TrimSuffix(p.line, []byte{'\r'}))
		p.line = p.line[:0]

		if err := p.processLine(line); err != nil {
			return consumed, p.fail(err)
		}
	}

	return consumed, nil
}

func (p *Parser) fail(err error) error {
	p.state, p.err = StateFailed, err
	return err
}

func (p *Parser) processLine(line string) error {
	switch p.state {
	case StateAwaitingRequestLine:
		if line == "" {
			return nil // robustness: ignore empty lines before the request line
		}

		rl, err := parseRequestLine(line)
		if err != nil {
			return err
		}

		p.rl, p.state = rl, StateAwaitingHeaderLine
		p.obs.OnRequestLine(rl)
	case StateAwaitingHeaderLine:
		if line == "" {
			p.state = StateHeadersComplete
			p.obs.OnHeadersComplete()

			return nil
		}

		h, err := parseHeaderLine(line)
		if err != nil {
			return err
		}

		p.headers = append(p.headers, h)
		p.obs.OnHeader(h)
	}

	return nil
}

func parseRequestLine(line string) (RequestLine, error) {
	fields := strings.Split(line, " ")
	if len(fields) != 3 || fields[0] == "" || fields[1] == "" || fields[2] == "" {
		return RequestLine{}, BadRequest("malformed request line %q", line)
	}

	method, ok := ParseMethod(fields[0])
	if !ok {
		return RequestLine{}, BadRequest("unsupported method %q", fields[0])
	}

	switch proto := fields[2]; {
	case proto == HTTP10 || proto == HTTP11:
	case strings.HasPrefix(proto, "HTTP/"):
		return RequestLine{}, NewFault(KindHTTPVersionNotSupported, "unsupported protocol "+proto, nil)
	default:
		return RequestLine{}, BadRequest("malformed protocol version %q", proto)
	}

	return RequestLine{Method: method, Target: fields[1], Proto: fields[2]}, nil
}

func parseHeaderLine(line string) (Header, error) {
	if line[0] == ' ' || line[0] == '\t' {
		return Header{}, BadRequest("obsolete header line folding is not supported")
	}

	idx := strings.IndexByte(line, ':')
	if idx < 0 {
		return Header{}, BadRequest("header line %q lacks the name: value separator", line)
	}

	name := line[:idx]
	if name == "" || !validHeaderName(name) {
		return Header{}, BadRequest("invalid header name %q", name)
	}

	value := strings.Trim(line[idx+1:], " \t")
	if value == "" {
		return Header{}, BadRequest("empty value for header %q", name)
	}

	return NewHeader(name, value), nil
}

// validHeaderName checks for RFC 9110 token characters. Whitespace before the colon is rejected.
func validHeaderName(name string) bool {
	for i := 0; i < len(name); i++ {
		c := name[i]
		switch {
		case c >= 'a' && c <= 'z', c >= 'A' && c <= 'Z', c >= '0' && c <= '9':
		case strings.IndexByte("!#$%&'*+-.^_`|~", c) >= 0:
		default:
			return false
		}
	}

	return true
}

// Request builds the immutable request once the header section is complete. The body reader, if any,
// moves the parser into [StateBodyPassthrough], otherwise it is [StateDone].
func (p *Parser) Request(body io.Reader) (*Request, error) {
	if p.state == StateFailed {
		return nil, p.err
	}

	if p.state < StateHeadersComplete {
		return nil, errors.Newf("mphttp: request requested in parser state %s", p.state)
	}

	var u *url.URL
	var err error
	switch {
	case p.rl.Target == "*" && p.rl.Method == MethodOptions:
		u = &url.URL{Path: "*"}
	default:
		if u, err = url.ParseRequestURI(p.rl.Target); err != nil {
			return nil, p.fail(BadRequest("invalid request target %q", p.rl.Target))
		}
	}

	query, err := url.ParseQuery(u.RawQuery)
	if err != nil {
		return nil, p.fail(BadRequest("invalid query string: %v", err))
	}

	p.state = StateDone
	if body != nil {
		p.state = StateBodyPassthrough
	}

	return &Request{
		method:  p.rl.Method,
		target:  p.rl.Target,
		path:    u.Path,
		proto:   p.rl.Proto,
		headers: p.headers.Clone(),
		query:   query,
		body:    body,
	}, nil
}

// bodyFraming inspects the headers to decide how the body is delimited. A length of -1 means no body.
func bodyFraming(h Headers) (chunked bool, length int64, err error) {
	te := h.Values("Transfer-Encoding")
	cl := h.Values("Content-Length")

	if len(te) > 0 {
		if len(cl) > 0 {
			return false, 0, BadRequest("both Transfer-Encoding and Content-Length are present")
		}

		codings := strings.Split(strings.Join(te, ","), ",")
		if last := strings.TrimSpace(codings[len(codings)-1]); !strings.EqualFold(last, "chunked") {
			return false, 0, NewFault(KindNotImplemented, "unsupported transfer coding "+last, nil)
		}

		return true, -1, nil
	}

	if len(cl) == 0 {
		return false, -1, nil
	}

	for _, v := range cl[1:] {
		if v != cl[0] {
			return false, 0, BadRequest("conflicting Content-Length values")
		}
	}

	n, perr := strconv.ParseInt(cl[0], 10, 64)
	if perr != nil || n < 0 {
		return false, 0, BadRequest("invalid Content-Length %q", cl[0])
	}

	if n == 0 {
		return false, -1, nil
	}

	return false, n, nil
}

// ReadRequest drives a fresh parser from br until the header section is complete and returns the
// request. Body bytes stay in br and are exposed through the request body reader, framed by
// Content-Length or chunked transfer coding. A connection that is closed before any byte of a new
// request arrived yields io.EOF.
func ReadRequest(br *bufio.Reader, limit int, obs ParserObserver) (*Request, error) {
	p := NewParser(limit, obs)
	for p.State() < StateHeadersComplete {
		if _, err := br.Peek(1); err != nil {
			if errors.Is(err, io.EOF) {
				if p.size == 0 {
					return nil, io.EOF
				}

				return nil, io.ErrUnexpectedEOF
			}

			return nil, errors.Wrap(err, "read request head")
		}

		buf, _ := br.Peek(br.Buffered())
		n, err := p.Feed(buf)
		if _, derr := br.Discard(n); derr != nil {
			return nil, errors.Wrap(derr, "discard parsed bytes")
		}

		if err != nil {
			return nil, err
		}
	}

	chunked, length, err := bodyFraming(p.headers)
	if err != nil {
		return nil, p.fail(err)
	}

	var body io.Reader
	switch {
	case chunked:
		body = newChunkedReader(br)
	case length > 0:
		body = io.LimitReader(br, length)
	}

	return p.Request(body)
}
