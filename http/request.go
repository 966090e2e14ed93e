package http

import (
	"context"
)

// Request is one parsed request. It is built once per cycle by the
// connection handler and not changed afterwards.
type Request struct {
	ctx        context.Context
	startLine  StartLine
	headers    Headers
	body       Body
	remoteAddr string
	secure     bool
}

// NewRequest assembles a request by hand, for calling handlers outside a
// connection.
func NewRequest(ctx context.Context, startLine StartLine, headers Headers, body Body, remoteAddr string, secure bool) *Request {
	if ctx == nil {
		ctx = context.Background()
	}
	return &Request{
		ctx:        ctx,
		startLine:  startLine,
		headers:    headers,
		body:       body,
		remoteAddr: remoteAddr,
		secure:     secure,
	}
}

// Context carries the request span. It is cancelled when the server shuts
// down.
func (req *Request) Context() context.Context {
	return req.ctx
}

func (req *Request) StartLine() StartLine {
	return req.startLine
}

func (req *Request) Verb() Verb {
	return req.startLine.Verb
}

// Path is the request path without the leading slash or query string.
func (req *Request) Path() string {
	return req.startLine.Path
}

func (req *Request) Query() map[string]string {
	return req.startLine.Query
}

func (req *Request) QueryValue(key string) string {
	return req.startLine.QueryValue(key)
}

func (req *Request) Version() Version {
	return req.startLine.Version
}

func (req *Request) Headers() Headers {
	return req.headers
}

func (req *Request) Header(name string) string {
	return req.headers.Get(name)
}

func (req *Request) Body() Body {
	return req.body
}

// FormValue is shorthand for Body().Value(key).
func (req *Request) FormValue(key string) string {
	return req.body.Value(key)
}

func (req *Request) RemoteAddr() string {
	return req.remoteAddr
}

func (req *Request) IsTLS() bool {
	return req.secure
}
