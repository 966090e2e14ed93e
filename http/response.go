package http

import (
	"encoding/json"
	"fmt"
	"io"
	"slices"
	"strconv"
	"time"
)

// FileSource opens static assets for streamed responses. size is the exact
// number of bytes the reader will yield.
type FileSource interface {
	Open(name string) (rc io.ReadCloser, size int64, err error)
}

// Response is what a handler returns. Headers are single-valued. When File
// is set the body is streamed from the server's FileSource and Body is
// ignored.
type Response struct {
	Status  uint16
	Headers map[string]string
	Body    []byte
	File    string

	err error
}

func NewResponse(status uint16) *Response {
	return &Response{Status: status, Headers: make(map[string]string)}
}

// Text is shorthand for NewResponse(status).WithText(body).
func Text(status uint16, body string) *Response {
	return NewResponse(status).WithText(body)
}

// RedirectTo answers 303 See Other pointing at location.
func RedirectTo(location string) *Response {
	return NewResponse(StatusSeeOther).WithHeader("Location", location)
}

// FileResponse streams name from the FileSource with the given content type.
func FileResponse(name, contentType string) *Response {
	res := NewResponse(StatusOK)
	res.File = name
	if contentType != "" {
		res.WithHeader("Content-Type", contentType)
	}
	return res
}

func (res *Response) WithStatus(status uint16) *Response {
	res.Status = status
	return res
}

func (res *Response) WithHeader(name, value string) *Response {
	if res.Headers == nil {
		res.Headers = make(map[string]string)
	}
	res.Headers[name] = value
	return res
}

func (res *Response) WithBody(body []byte) *Response {
	res.Body = body
	return res
}

func (res *Response) WithText(payload string) *Response {
	return res.WithHeader("Content-Type", "text/plain; charset=UTF-8").WithBody([]byte(payload))
}

func (res *Response) WithHTML(payload string) *Response {
	return res.WithHeader("Content-Type", "text/html; charset=UTF-8").WithBody([]byte(payload))
}

// WithJSON encodes payload as the body. Strings and byte slices are taken
// as already encoded. An encoding failure surfaces as a handler error.
func (res *Response) WithJSON(payload any) *Response {
	res.WithHeader("Content-Type", "application/json")
	switch v := payload.(type) {
	case string:
		return res.WithBody([]byte(v))
	case []byte:
		return res.WithBody(v)
	}
	body, err := json.Marshal(payload)
	if err != nil {
		res.err = fmt.Errorf("http: encode json response: %w", err)
		return res
	}
	return res.WithBody(body)
}

// Err reports a failure recorded while building the response.
func (res *Response) Err() error {
	return res.err
}

// dateFormat is RFC 1123 with the zone fixed to GMT.
const dateFormat = "Mon, 02 Jan 2006 15:04:05 GMT"

// headers the assembler owns; caller values for them are dropped
var reservedHeaders = map[string]struct{}{
	"date":           {},
	"server":         {},
	"content-length": {},
	"connection":     {},
	"keep-alive":     {},
}

type flushWriter interface {
	io.Writer
	Flush() error
}

// assembler serializes responses onto a connection.
type assembler struct {
	serverName string
	keepAlive  int
	chunkSize  int
	clock      func() time.Time
}

func newAssembler(cfg Config, clock func() time.Time) *assembler {
	return &assembler{
		serverName: cfg.ServerName,
		keepAlive:  cfg.keepAliveSeconds(),
		chunkSize:  cfg.FileChunkSize,
		clock:      clock,
	}
}

// write sends res and flushes. A non-nil file replaces res.Body and length
// must be its exact size. For HEAD requests only the header block goes out.
// It returns the number of body bytes written.
func (a *assembler) write(w flushWriter, res *Response, file io.Reader, length int64, keepAlive, headOnly bool) (int64, error) {
	if file == nil {
		length = int64(len(res.Body))
	}

	if err := a.writeHeader(w, res, length, keepAlive); err != nil {
		return 0, err
	}

	var written int64
	if !headOnly {
		switch {
		case file != nil:
			n, err := a.stream(w, file, length)
			written = n
			if err != nil {
				return written, fmt.Errorf("http: stream %q: %w", res.File, err)
			}
		case length > 0:
			n, err := w.Write(res.Body)
			written = int64(n)
			if err != nil {
				return written, err
			}
		}
	}

	return written, w.Flush()
}

// stream copies exactly length bytes of file to w, chunkSize at a time.
func (a *assembler) stream(w io.Writer, file io.Reader, length int64) (int64, error) {
	buf := make([]byte, a.chunkSize)
	var written int64
	for written < length {
		n, err := file.Read(buf[:min(int64(len(buf)), length-written)])
		if n > 0 {
			if _, werr := w.Write(buf[:n]); werr != nil {
				return written, werr
			}
			written += int64(n)
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return written, err
		}
	}
	if written != length {
		return written, fmt.Errorf("yielded %d of %d bytes: %w", written, length, io.ErrUnexpectedEOF)
	}
	return written, nil
}

func (a *assembler) writeHeader(w io.Writer, res *Response, length int64, keepAlive bool) error {
	buf := make([]byte, 0, 256)
	buf = append(buf, "HTTP/1.1 "...)
	buf = strconv.AppendUint(buf, uint64(res.Status), 10)
	buf = append(buf, ' ')
	buf = append(buf, StatusText(res.Status)...)
	buf = append(buf, crlf...)

	buf = appendHeader(buf, "Date", a.clock().UTC().Format(dateFormat))
	buf = appendHeader(buf, "Server", a.serverName)

	names := make([]string, 0, len(res.Headers))
	for name := range res.Headers {
		if _, reserved := reservedHeaders[toLowerASCII(name)]; reserved {
			continue
		}
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		buf = appendHeader(buf, name, res.Headers[name])
	}

	buf = appendHeader(buf, "Content-Length", strconv.FormatInt(length, 10))
	if keepAlive {
		buf = appendHeader(buf, "Connection", "keep-alive")
		buf = appendHeader(buf, "Keep-Alive", "timeout="+strconv.Itoa(a.keepAlive))
	} else {
		buf = appendHeader(buf, "Connection", "close")
	}
	buf = append(buf, crlf...)

	_, err := w.Write(buf)
	return err
}

func appendHeader(buf []byte, name, value string) []byte {
	buf = append(buf, name...)
	buf = append(buf, ": "...)
	buf = append(buf, stripLineBreaks(value)...)
	return append(buf, crlf...)
}

// stripLineBreaks keeps caller values from splitting the header block.
func stripLineBreaks(s string) string {
	for i := 0; i < len(s); i++ {
		if s[i] == '\r' || s[i] == '\n' {
			out := make([]byte, 0, len(s))
			for j := 0; j < len(s); j++ {
				if s[j] != '\r' && s[j] != '\n' {
					out = append(out, s[j])
				}
			}
			return string(out)
		}
	}
	return s
}
