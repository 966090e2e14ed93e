package http

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"runtime/debug"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

type connState uint8

const (
	stateAwaitStartLine connState = iota
	stateHeaders
	stateBody
	stateDispatch
	stateWriteResponse
	stateClose
)

func (s connState) String() string {
	switch s {
	case stateAwaitStartLine:
		return "await_start_line"
	case stateHeaders:
		return "headers"
	case stateBody:
		return "body"
	case stateDispatch:
		return "dispatch"
	case stateWriteResponse:
		return "write_response"
	default:
		return "close"
	}
}

// exchange is the state of one request/response cycle. A fresh one is made
// for every cycle on a connection.
type exchange struct {
	started   time.Time
	ctx       context.Context
	span      trace.Span
	startLine StartLine
	headers   Headers
	body      Body
	response  *Response
	keepAlive bool
}

// serveConn runs request/response cycles on c until the peer leaves, an
// error occurs or keep-alive ends. The caller closes c.
func (s *Server) serveConn(ctx context.Context, c *Conn) {
	defer func() {
		if recovered := recover(); recovered != nil {
			logAsyncError(ctx, s.logger, "connection handler panicked",
				"remote", c.RemoteAddrWithPort(),
				"panic", recovered,
				"stack", string(debug.Stack()))
		}
	}()

	if jail, ok := s.sink.(JailChecker); ok && jail.IsJailed(c.RemoteAddr()) {
		logTrace(ctx, s.logger, "dropping connection from jailed peer", "remote", c.RemoteAddr())
		return
	}

	if c.IsTLS() {
		if err := c.Handshake(ctx, s.cfg.HandshakeTimeout); err != nil {
			s.handleConnError(ctx, c, fmt.Errorf("http: tls handshake: %w", err))
			return
		}
	}

	for {
		keepAlive, err := s.serveCycle(ctx, c)
		if err != nil {
			s.handleConnError(ctx, c, err)
			return
		}
		if !keepAlive {
			return
		}
		c.ArmIdleDeadline()
	}
}

// serveCycle walks one exchange through the states and reports whether the
// connection should stay open for another.
func (s *Server) serveCycle(ctx context.Context, c *Conn) (bool, error) {
	ex := exchange{ctx: ctx}
	state := stateAwaitStartLine

	defer func() {
		if ex.span != nil {
			ex.span.End()
		}
	}()

	for {
		switch state {
		case stateAwaitStartLine:
			line, err := c.ReadLine()
			if err != nil {
				if errors.Is(err, io.EOF) {
					logTrace(ctx, s.logger, "peer closed the connection", "remote", c.RemoteAddrWithPort())
					return false, nil
				}
				return false, err
			}
			ex.started = time.Now()

			sl, err := ParseStartLine(line, s.cfg.MaxQueryKeys)
			if err != nil {
				return false, err
			}
			if sl.IsEmpty() {
				s.logger.DebugContext(ctx, "invalid start line, closing", "remote", c.RemoteAddrWithPort(), "line", excerpt([]byte(line)))
				state = stateClose
				continue
			}
			ex.startLine = sl
			ex.ctx, ex.span = tracer.Start(ctx, "http.request", trace.WithAttributes(
				attribute.String("http.request.method", string(sl.Verb)),
				attribute.String("url.path", "/"+sl.Path),
				attribute.String("network.protocol.version", sl.Version.String()),
				attribute.String("client.address", c.RemoteAddr()),
			))
			state = stateHeaders

		case stateHeaders:
			headers, err := ReadHeaders(c, s.cfg.MaxHeaders)
			if err != nil {
				return false, err
			}
			ex.headers = headers
			ex.keepAlive = wantsKeepAlive(ex.startLine.Version, headers)
			state = stateBody

		case stateBody:
			body, err := s.decoder.Decode(c, ex.headers)
			if err != nil {
				var parseErr *BodyParseError
				if !errors.As(err, &parseErr) {
					return false, err
				}
				s.logger.DebugContext(ex.ctx, "unable to parse request body", "remote", c.RemoteAddr(), "error", err)
				if errors.Is(err, ErrMalformedChunk) {
					// framing is lost, so is the next request
					ex.keepAlive = false
				}
				ex.response = Text(StatusBadRequest, "Bad request: the body could not be parsed")
				state = stateWriteResponse
				continue
			}
			ex.body = body
			state = stateDispatch

		case stateDispatch:
			res, ok := s.dispatch(&ex, c)
			if !ok {
				state = stateClose
				continue
			}
			ex.response = res
			state = stateWriteResponse

		case stateWriteResponse:
			if err := s.writeResponse(&ex, c); err != nil {
				return false, err
			}
			return ex.keepAlive, nil

		case stateClose:
			return false, nil
		}
	}
}

// dispatch resolves and runs the handler. ok is false when the connection
// should be dropped without an answer.
func (s *Server) dispatch(ex *exchange, c *Conn) (res *Response, ok bool) {
	sl := ex.startLine

	handler, found := s.router.Lookup(sl.Verb, sl.Path)
	if !found && sl.Verb == VerbHead {
		handler, found = s.router.Lookup(VerbGet, sl.Path)
	}
	if !found {
		if s.isSuspiciousPath(sl.Path) {
			s.report(ex.ctx, c.RemoteAddr(), ClassSuspiciousPath, fmt.Errorf("request for /%s", sl.Path))
			return nil, false
		}
		return Text(StatusNotFound, "Not found"), true
	}

	req := NewRequest(ex.ctx, sl, ex.headers, ex.body, c.RemoteAddr(), c.IsTLS())
	res, err := invoke(handler, req)
	if err == nil && res == nil {
		err = ErrNilResponse
	}
	if err == nil && res.err != nil {
		err = res.err
	}
	if err != nil {
		return s.serverError(ex, err), true
	}
	return res, true
}

// serverError logs err in full under a fresh correlation id and answers the
// client with only that id.
func (s *Server) serverError(ex *exchange, err error) *Response {
	id := uuid.NewString()
	logAsyncError(ex.ctx, s.logger, "handler failed",
		"correlation_id", id,
		"verb", ex.startLine.Verb,
		"path", ex.startLine.Path,
		"error", err)
	if ex.span != nil {
		ex.span.RecordError(err)
		ex.span.SetStatus(codes.Error, "handler failed")
	}
	return Text(StatusInternalServerError, "Server error: "+id)
}

func invoke(handler Handler, req *Request) (res *Response, err error) {
	defer func() {
		if recovered := recover(); recovered != nil {
			res = nil
			err = fmt.Errorf("http: handler panic: %v\n%s", recovered, debug.Stack())
		}
	}()
	return handler(req)
}

func (s *Server) writeResponse(ex *exchange, c *Conn) error {
	var (
		body   io.ReadCloser
		length int64
	)

	if ex.response.File != "" {
		rc, size, err := s.openFile(ex.response.File)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				ex.response = Text(StatusNotFound, "Not found")
			} else {
				ex.response = s.serverError(ex, err)
			}
		} else {
			body, length = rc, size
			defer rc.Close()
		}
	}

	headOnly := ex.startLine.Verb == VerbHead
	if _, err := s.assembler.write(c, ex.response, body, length, ex.keepAlive, headOnly); err != nil {
		return err
	}

	status := ex.response.Status
	attrs := metric.WithAttributes(attribute.Int("http.response.status_code", int(status)))
	requestCnt.Add(ex.ctx, 1, attrs)
	if !ex.started.IsZero() {
		requestDuration.Record(ex.ctx, float64(time.Since(ex.started).Microseconds())/1000, attrs)
	}
	if ex.span != nil {
		ex.span.SetAttributes(attribute.Int("http.response.status_code", int(status)))
	}
	logTrace(ex.ctx, s.logger, "response sent",
		"remote", c.RemoteAddr(),
		"status", status,
		"keep_alive", ex.keepAlive)
	return nil
}

func (s *Server) openFile(name string) (io.ReadCloser, int64, error) {
	if s.files == nil {
		return nil, 0, ErrFileSourceNotFound
	}
	rc, size, err := s.files.Open(name)
	if err != nil {
		return nil, 0, fmt.Errorf("http: open %q: %w", name, err)
	}
	return rc, size, nil
}

// serveRedirect answers any request on the plain port with a redirect to the
// TLS endpoint. Only the start line is read.
func (s *Server) serveRedirect(ctx context.Context, c *Conn) {
	line, err := c.ReadLine()
	if err != nil {
		if !errors.Is(err, io.EOF) {
			s.handleConnError(ctx, c, err)
		}
		return
	}
	sl, err := ParseStartLine(line, s.cfg.MaxQueryKeys)
	if err != nil {
		s.handleConnError(ctx, c, err)
		return
	}
	if sl.IsEmpty() {
		s.logger.DebugContext(ctx, "invalid start line on redirect port", "remote", c.RemoteAddrWithPort())
		return
	}

	location := s.secureURL(sl)
	logTrace(ctx, s.logger, "redirecting to secure endpoint", "remote", c.RemoteAddr(), "location", location)
	if _, err := s.assembler.write(c, RedirectTo(location), nil, 0, false, false); err != nil {
		s.handleConnError(ctx, c, err)
	}
}

func (s *Server) secureURL(sl StartLine) string {
	var sb strings.Builder
	sb.WriteString("https://")
	sb.WriteString(s.cfg.HostName)
	if s.cfg.TLSPort != 0 && s.cfg.TLSPort != 443 {
		fmt.Fprintf(&sb, ":%d", s.cfg.TLSPort)
	}
	sb.WriteByte('/')
	sb.WriteString(sl.Path)
	if sl.RawQuery != "" {
		sb.WriteByte('?')
		sb.WriteString(sl.RawQuery)
	}
	return sb.String()
}

// rejectFull answers 503 on a connection that got no buffers.
func (s *Server) rejectFull(ctx context.Context, raw io.Writer) {
	bw := bufio.NewWriterSize(raw, 512)
	res := Text(StatusServiceUnavailable, "Server is at capacity")
	if _, err := s.assembler.write(bw, res, nil, 0, false, false); err != nil {
		s.logger.DebugContext(ctx, "unable to send 503", "error", err)
	}
}

// handleConnError sorts a connection-ending error into an abuse report, a
// quiet debug line or a warning.
func (s *Server) handleConnError(ctx context.Context, c *Conn, err error) {
	if class, ok := classify(err, s.cfg.SuspiciousErrors); ok {
		s.report(ctx, c.RemoteAddr(), class, err)
		return
	}
	if isTransportError(err) {
		s.logger.DebugContext(ctx, "connection ended", "remote", c.RemoteAddrWithPort(), "error", err)
		return
	}
	s.logger.WarnContext(ctx, "connection failed", "remote", c.RemoteAddrWithPort(), "error", err)
}

func (s *Server) report(ctx context.Context, addr string, class Classification, cause error) {
	logAudit(ctx, s.logger, "reporting peer", "remote", addr, "class", class, "cause", cause)
	abuseCnt.Add(ctx, 1, metric.WithAttributes(attribute.String("class", string(class))))
	s.sink.Report(addr, class)
}

func (s *Server) isSuspiciousPath(path string) bool {
	for _, p := range s.cfg.SuspiciousPaths {
		if strings.TrimPrefix(p, "/") == path {
			return true
		}
	}
	return false
}

// wantsKeepAlive: HTTP/1.1 stays open unless told to close, HTTP/1.0
// closes unless asked to stay.
func wantsKeepAlive(version Version, h Headers) bool {
	if version == Version11 {
		return !h.HasConnectionClose()
	}
	return h.HasKeepAlive()
}
