package http

import (
	"bufio"
	"bytes"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/freekieb7/wicket/test"
)

var fixedNow = time.Date(2024, time.March, 5, 14, 30, 0, 0, time.UTC)

func fixedClock() time.Time {
	return fixedNow
}

// flushBuffer is a bytes.Buffer with a no-op Flush.
type flushBuffer struct {
	bytes.Buffer
}

func (b *flushBuffer) Flush() error {
	return nil
}

func TestResponseRoundTrip(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ServerName = "wicket-test"
	a := newAssembler(cfg, fixedClock)

	res := Text(StatusCreated, "hello, world").
		WithHeader("X-Request-Kind", "test").
		WithHeader("Content-Length", "999").
		WithHeader("Server", "spoofed")

	var out flushBuffer
	n, err := a.write(&out, res, nil, 0, true, false)
	test.AssertNoError(t, err)
	test.AssertEqual(t, int64(len("hello, world")), n)

	parsed, err := http.ReadResponse(bufio.NewReader(&out), nil)
	test.AssertNoError(t, err)
	defer parsed.Body.Close()

	test.AssertEqual(t, 201, parsed.StatusCode)
	test.AssertEqual(t, "HTTP/1.1", parsed.Proto)
	test.AssertEqual(t, "wicket-test", parsed.Header.Get("Server"))
	test.AssertEqual(t, "Tue, 05 Mar 2024 14:30:00 GMT", parsed.Header.Get("Date"))
	test.AssertEqual(t, "text/plain; charset=UTF-8", parsed.Header.Get("Content-Type"))
	test.AssertEqual(t, "test", parsed.Header.Get("X-Request-Kind"))
	test.AssertEqual(t, int64(12), parsed.ContentLength)
	test.AssertEqual(t, "keep-alive", parsed.Header.Get("Connection"))
	test.AssertEqual(t, "timeout=3", parsed.Header.Get("Keep-Alive"))

	body, err := io.ReadAll(parsed.Body)
	test.AssertNoError(t, err)
	test.AssertEqual(t, "hello, world", string(body))
}

func TestResponseHeaderOrderAndClose(t *testing.T) {
	a := newAssembler(DefaultConfig(), fixedClock)
	res := NewResponse(StatusNoContent).
		WithHeader("B-Header", "2").
		WithHeader("A-Header", "1").
		WithHeader("X-Injected", "a\r\nEvil: yes")

	var out flushBuffer
	_, err := a.write(&out, res, nil, 0, false, false)
	test.AssertNoError(t, err)

	expected := "HTTP/1.1 204 No Content\r\n" +
		"Date: Tue, 05 Mar 2024 14:30:00 GMT\r\n" +
		"Server: wicket\r\n" +
		"A-Header: 1\r\n" +
		"B-Header: 2\r\n" +
		"X-Injected: aEvil: yes\r\n" +
		"Content-Length: 0\r\n" +
		"Connection: close\r\n" +
		"\r\n"
	test.AssertEqual(t, expected, out.String())
}

func TestResponseHeadOnly(t *testing.T) {
	a := newAssembler(DefaultConfig(), fixedClock)

	var out flushBuffer
	n, err := a.write(&out, Text(StatusOK, "not sent"), nil, 0, false, true)
	test.AssertNoError(t, err)
	test.AssertEqual(t, int64(0), n)
	test.AssertTrue(t, strings.HasSuffix(out.String(), "Content-Length: 8\r\nConnection: close\r\n\r\n"), "HEAD must only carry headers")
}

func TestResponseStreamsFileInChunks(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FileChunkSize = 16
	a := newAssembler(cfg, fixedClock)

	content := bytes.Repeat([]byte("0123456789"), 100)
	file := &countingReader{r: bytes.NewReader(content)}

	var out flushBuffer
	n, err := a.write(&out, FileResponse("big.txt", "text/plain"), file, int64(len(content)), false, false)
	test.AssertNoError(t, err)
	test.AssertEqual(t, int64(len(content)), n)
	test.AssertTrue(t, file.maxRead <= 16, "file must be read in chunks of at most FileChunkSize")

	parsed, err := http.ReadResponse(bufio.NewReader(&out), nil)
	test.AssertNoError(t, err)
	body, err := io.ReadAll(parsed.Body)
	test.AssertNoError(t, err)
	test.AssertTrue(t, bytes.Equal(content, body), "streamed body differs")
}

func TestResponseShortFile(t *testing.T) {
	a := newAssembler(DefaultConfig(), fixedClock)

	var out flushBuffer
	_, err := a.write(&out, FileResponse("short.txt", ""), strings.NewReader("abc"), 10, false, false)
	test.AssertErrorIs(t, err, io.ErrUnexpectedEOF)
}

func TestResponseJSON(t *testing.T) {
	res := NewResponse(StatusOK).WithJSON(map[string]int{"answer": 42})
	test.AssertNoError(t, res.Err())
	test.AssertEqual(t, `{"answer":42}`, string(res.Body))
	test.AssertEqual(t, "application/json", res.Headers["Content-Type"])

	res = NewResponse(StatusOK).WithJSON(func() {})
	test.AssertTrue(t, res.Err() != nil, "unencodable payload must record an error")
}

func TestRedirectTo(t *testing.T) {
	res := RedirectTo("https://example.com/")
	test.AssertEqual(t, StatusSeeOther, res.Status)
	test.AssertEqual(t, "https://example.com/", res.Headers["Location"])
}

func TestStatusText(t *testing.T) {
	test.AssertEqual(t, "Not Found", StatusText(StatusNotFound))
	test.AssertEqual(t, "Content Too Large", StatusText(StatusContentTooLarge))
	test.AssertEqual(t, "HTTP Version Not Supported", StatusText(StatusHTTPVersionNotSupported))
	for code, phrase := range reasonPhrases {
		test.AssertTrue(t, code >= 100 && code < 600, "reason phrase for an invalid code")
		test.AssertTrue(t, phrase != "", "empty reason phrase")
	}
	test.AssertEqual(t, "Unknown Status Code", StatusText(299))
	test.AssertEqual(t, "Unknown Status Code", StatusText(999))
}

type countingReader struct {
	r       io.Reader
	maxRead int
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > c.maxRead {
		c.maxRead = n
	}
	return n, err
}
