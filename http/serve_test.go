package http

import (
	"bufio"
	"context"
	"errors"
	"io"
	"io/fs"
	"net"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/freekieb7/wicket/test"
)

type report struct {
	addr  string
	class Classification
}

type recordingSink struct {
	mu      sync.Mutex
	reports []report
	jailed  map[string]bool
}

func (s *recordingSink) Report(addr string, class Classification) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reports = append(s.reports, report{addr: addr, class: class})
}

func (s *recordingSink) IsJailed(addr string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.jailed[addr]
}

func (s *recordingSink) Reports() []report {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]report(nil), s.reports...)
}

type memoryFiles map[string]string

func (m memoryFiles) Open(name string) (io.ReadCloser, int64, error) {
	content, ok := m[name]
	if !ok {
		return nil, 0, fs.ErrNotExist
	}
	return io.NopCloser(strings.NewReader(content)), int64(len(content)), nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.SocketTimeout = 2 * time.Second
	cfg.MaxConnections = 4
	return cfg
}

func newTestServer(cfg Config, router *Router, opts ...Option) *Server {
	return NewServer(cfg, router, append([]Option{WithClock(fixedClock)}, opts...)...)
}

type pipeClient struct {
	conn net.Conn
	br   *bufio.Reader
	done chan struct{}
}

// dialPipe serves one in-memory connection with serve, the way the accept
// loop would.
func dialPipe(t *testing.T, s *Server, serve func(context.Context, *Conn)) *pipeClient {
	t.Helper()

	serverSide, clientSide := net.Pipe()
	client := &pipeClient{conn: clientSide, br: bufio.NewReader(clientSide), done: make(chan struct{})}

	if !s.track() {
		t.Fatal("server already shut down")
	}
	go func() {
		defer close(client.done)
		s.handle(serverSide, false, serve)
	}()

	t.Cleanup(func() {
		clientSide.Close()
		<-client.done
	})
	return client
}

// roundTrip sends raw and reads one response, body included.
func (c *pipeClient) roundTrip(t *testing.T, raw, method string) (*http.Response, string) {
	t.Helper()

	if _, err := io.WriteString(c.conn, raw); err != nil {
		t.Fatalf("write request: %v", err)
	}
	res, err := http.ReadResponse(c.br, &http.Request{Method: method})
	if err != nil {
		t.Fatalf("read response: %v", err)
	}
	body, err := io.ReadAll(res.Body)
	if err != nil {
		t.Fatalf("read body: %v", err)
	}
	res.Body.Close()
	return res, string(body)
}

// expectClosed asserts the server hung up.
func (c *pipeClient) expectClosed(t *testing.T) {
	t.Helper()

	_ = c.conn.SetReadDeadline(time.Now().Add(time.Second))
	if _, err := c.br.ReadByte(); !errors.Is(err, io.EOF) {
		t.Errorf("expected the server to close the connection, got %v", err)
	}
	<-c.done
}

func helloRouter() *Router {
	router := NewRouter()
	router.Get("hello", func(req *Request) (*Response, error) {
		name := req.QueryValue("name")
		if name == "" {
			name = "world"
		}
		return Text(StatusOK, "hello "+name), nil
	})
	router.Post("echo", func(req *Request) (*Response, error) {
		return NewResponse(StatusOK).WithBody(req.Body().Bytes()), nil
	})
	router.Post("greet", func(req *Request) (*Response, error) {
		return Text(StatusOK, "hi "+req.FormValue("name")), nil
	})
	router.Get("fail", func(req *Request) (*Response, error) {
		return nil, errors.New("database on fire")
	})
	router.Get("panic", func(req *Request) (*Response, error) {
		panic("unexpected")
	})
	router.Get("nil", func(req *Request) (*Response, error) {
		return nil, nil
	})
	router.Get("asset", func(req *Request) (*Response, error) {
		return FileResponse(req.QueryValue("name"), "text/plain"), nil
	})
	return router
}

func TestServeKeepAliveHTTP11(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	for _, name := range []string{"alice", "bob", "carol"} {
		res, body := client.roundTrip(t, "GET /hello?name="+name+" HTTP/1.1\r\nHost: localhost\r\n\r\n", "GET")
		test.AssertEqual(t, 200, res.StatusCode)
		test.AssertEqual(t, "hello "+name, body)
		test.AssertEqual(t, "keep-alive", res.Header.Get("Connection"))
		test.AssertEqual(t, "timeout=3", res.Header.Get("Keep-Alive"))
		test.AssertEqual(t, "wicket", res.Header.Get("Server"))
	}
}

func TestServeHTTP11ConnectionClose(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "GET /hello HTTP/1.1\r\nConnection: close\r\n\r\n", "GET")
	test.AssertEqual(t, "close", res.Header.Get("Connection"))
	client.expectClosed(t)
}

func TestServeHTTP10ClosesByDefault(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, body := client.roundTrip(t, "GET /hello HTTP/1.0\r\n\r\n", "GET")
	test.AssertEqual(t, 200, res.StatusCode)
	test.AssertEqual(t, "hello world", body)
	test.AssertEqual(t, "close", res.Header.Get("Connection"))
	test.AssertEqual(t, "", res.Header.Get("Keep-Alive"))
	client.expectClosed(t)
}

func TestServeHTTP10KeepAlive(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "GET /hello HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", "GET")
	test.AssertEqual(t, "keep-alive", res.Header.Get("Connection"))
	test.AssertEqual(t, "timeout=3", res.Header.Get("Keep-Alive"))

	res, body := client.roundTrip(t, "GET /hello?name=again HTTP/1.0\r\nConnection: keep-alive\r\n\r\n", "GET")
	test.AssertEqual(t, 200, res.StatusCode)
	test.AssertEqual(t, "hello again", body)
}

func TestServeIdleTimeoutCloses(t *testing.T) {
	cfg := testConfig()
	cfg.SocketTimeout = 150 * time.Millisecond
	s := newTestServer(cfg, helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "GET /hello HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, "keep-alive", res.Header.Get("Connection"))

	start := time.Now()
	client.expectClosed(t)
	idle := time.Since(start)
	test.AssertTrue(t, idle >= 100*time.Millisecond, "closed before the idle timeout: "+idle.String())
	test.AssertTrue(t, idle < time.Second, "idle connection outlived its timeout: "+idle.String())
}

func TestServeIdleDeadlineRearmed(t *testing.T) {
	cfg := testConfig()
	cfg.SocketTimeout = 300 * time.Millisecond
	s := newTestServer(cfg, helloRouter())
	client := dialPipe(t, s, s.serveConn)

	start := time.Now()
	for i := 0; i < 4; i++ {
		if i > 0 {
			time.Sleep(150 * time.Millisecond)
		}
		res, body := client.roundTrip(t, "GET /hello HTTP/1.1\r\n\r\n", "GET")
		test.AssertEqual(t, 200, res.StatusCode)
		test.AssertEqual(t, "hello world", body)
	}
	test.AssertTrue(t, time.Since(start) > cfg.SocketTimeout, "requests finished inside a single timeout window")

	client.expectClosed(t)
}

func TestServeHandlerFailuresKeepConnection(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	for _, path := range []string{"fail", "panic", "nil"} {
		res, body := client.roundTrip(t, "GET /"+path+" HTTP/1.1\r\n\r\n", "GET")
		test.AssertEqual(t, 500, res.StatusCode)
		test.AssertTrue(t, strings.HasPrefix(body, "Server error: "), "unexpected body "+body)
		test.AssertTrue(t, !strings.Contains(body, "database on fire"), "internal detail leaked")
		test.AssertEqual(t, "keep-alive", res.Header.Get("Connection"))
	}

	res, body := client.roundTrip(t, "GET /hello HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 200, res.StatusCode)
	test.AssertEqual(t, "hello world", body)
}

func TestServeNotFound(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(testConfig(), helloRouter(), WithAbuseSink(sink))
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "GET /missing HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 404, res.StatusCode)
	test.AssertEqual(t, 0, len(sink.Reports()))
}

func TestServeHeadUsesGetRoute(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, body := client.roundTrip(t, "HEAD /hello HTTP/1.1\r\n\r\n", "HEAD")
	test.AssertEqual(t, 200, res.StatusCode)
	test.AssertEqual(t, int64(len("hello world")), res.ContentLength)
	test.AssertEqual(t, "", body)

	res, body = client.roundTrip(t, "GET /hello HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, "hello world", body)
}

func TestServeBodies(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	_, body := client.roundTrip(t, "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n4\r\nWiki\r\n6\r\npedia \r\n0\r\n\r\n", "POST")
	test.AssertEqual(t, "Wikipedia ", body)

	form := "name=alice+smith"
	_, body = client.roundTrip(t, "POST /greet HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 16\r\n\r\n"+form, "POST")
	test.AssertEqual(t, "hi alice smith", body)
}

func TestServeBadBodyAnswers400(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "POST /greet HTTP/1.1\r\n"+
		"Content-Type: application/x-www-form-urlencoded\r\n"+
		"Content-Length: 7\r\n\r\na=1&a=2", "POST")
	test.AssertEqual(t, 400, res.StatusCode)
	test.AssertEqual(t, "keep-alive", res.Header.Get("Connection"))

	res, _ = client.roundTrip(t, "GET /hello HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 200, res.StatusCode)

	res, _ = client.roundTrip(t, "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\nzz\r\n", "POST")
	test.AssertEqual(t, 400, res.StatusCode)
	test.AssertEqual(t, "close", res.Header.Get("Connection"))
	client.expectClosed(t)
}

func TestServeInvalidStartLineCloses(t *testing.T) {
	sink := &recordingSink{}
	s := newTestServer(testConfig(), helloRouter(), WithAbuseSink(sink))
	client := dialPipe(t, s, s.serveConn)

	if _, err := io.WriteString(client.conn, "NOT HTTP AT ALL\r\n"); err != nil {
		t.Fatal(err)
	}
	client.expectClosed(t)
	test.AssertEqual(t, 0, len(sink.Reports()))
}

func TestServeForbiddenUseIsReported(t *testing.T) {
	tests := map[string]string{
		"query keys":   "GET /hello?a=1&b=2&c=3 HTTP/1.1\r\n\r\n",
		"headers":      "GET /hello HTTP/1.1\r\nA: 1\r\nB: 2\r\nC: 3\r\n\r\n",
		"line length":  "GET /" + strings.Repeat("a", 200) + " HTTP/1.1\r\n\r\n",
		"body length":  "POST /echo HTTP/1.1\r\nContent-Length: 1000\r\n\r\n",
		"chunked body": "POST /echo HTTP/1.1\r\nTransfer-Encoding: chunked\r\n\r\n3e8\r\n",
	}

	for name, raw := range tests {
		t.Run(name, func(t *testing.T) {
			cfg := testConfig()
			cfg.MaxQueryKeys = 2
			cfg.MaxHeaders = 2
			cfg.MaxLineSize = 100
			cfg.MaxBodySize = 100

			sink := &recordingSink{}
			s := newTestServer(cfg, helloRouter(), WithAbuseSink(sink))
			client := dialPipe(t, s, s.serveConn)

			if _, err := io.WriteString(client.conn, raw); err != nil {
				t.Fatal(err)
			}
			client.expectClosed(t)

			reports := sink.Reports()
			test.AssertEqual(t, 1, len(reports))
			if len(reports) == 1 {
				test.AssertEqual(t, ClassForbiddenUse, reports[0].class)
				test.AssertEqual(t, "pipe", reports[0].addr)
			}
		})
	}
}

func TestServeSuspiciousPathIsReported(t *testing.T) {
	cfg := testConfig()
	cfg.SuspiciousPaths = []string{"/wp-login.php", ".env"}

	sink := &recordingSink{}
	s := newTestServer(cfg, helloRouter(), WithAbuseSink(sink))
	client := dialPipe(t, s, s.serveConn)

	if _, err := io.WriteString(client.conn, "GET /.env HTTP/1.1\r\n\r\n"); err != nil {
		t.Fatal(err)
	}
	client.expectClosed(t)
	test.AssertEqual(t, []report{{addr: "pipe", class: ClassSuspiciousPath}}, sink.Reports())
}

func TestServeDropsJailedPeer(t *testing.T) {
	sink := &recordingSink{jailed: map[string]bool{"pipe": true}}
	s := newTestServer(testConfig(), helloRouter(), WithAbuseSink(sink))
	client := dialPipe(t, s, s.serveConn)

	client.expectClosed(t)
}

func TestServeFileResponse(t *testing.T) {
	files := memoryFiles{"readme.txt": strings.Repeat("line of text\n", 2000)}
	s := newTestServer(testConfig(), helloRouter(), WithFileSource(files))
	client := dialPipe(t, s, s.serveConn)

	res, body := client.roundTrip(t, "GET /asset?name=readme.txt HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 200, res.StatusCode)
	test.AssertEqual(t, "text/plain", res.Header.Get("Content-Type"))
	test.AssertEqual(t, files["readme.txt"], body)

	res, _ = client.roundTrip(t, "GET /asset?name=missing.txt HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 404, res.StatusCode)
}

func TestServeFileWithoutSource(t *testing.T) {
	s := newTestServer(testConfig(), helloRouter())
	client := dialPipe(t, s, s.serveConn)

	res, _ := client.roundTrip(t, "GET /asset?name=readme.txt HTTP/1.1\r\n\r\n", "GET")
	test.AssertEqual(t, 500, res.StatusCode)
}

func TestServeRedirect(t *testing.T) {
	cfg := testConfig()
	cfg.HostName = "example.com"
	s := newTestServer(cfg, NewRouter())
	client := dialPipe(t, s, s.serveRedirect)

	res, _ := client.roundTrip(t, "GET /login?next=home HTTP/1.1\r\nHost: example.com\r\n\r\n", "GET")
	test.AssertEqual(t, 303, res.StatusCode)
	test.AssertEqual(t, "https://example.com:8443/login?next=home", res.Header.Get("Location"))
	test.AssertEqual(t, "close", res.Header.Get("Connection"))
	client.expectClosed(t)
}

func TestSecureURLDefaultPort(t *testing.T) {
	cfg := testConfig()
	cfg.HostName = "example.com"
	cfg.TLSPort = 443
	s := newTestServer(cfg, NewRouter())

	test.AssertEqual(t, "https://example.com/", s.secureURL(StartLine{}))
}

func TestServeRejectsWhenFull(t *testing.T) {
	cfg := testConfig()
	cfg.MaxConnections = 1
	s := newTestServer(cfg, helloRouter())

	held, ok := s.pool.acquire()
	test.AssertTrue(t, ok, "expected one free buffer")
	defer s.pool.release(held)

	client := dialPipe(t, s, s.serveConn)
	res, err := http.ReadResponse(client.br, nil)
	test.AssertNoError(t, err)
	if res != nil {
		test.AssertEqual(t, 503, res.StatusCode)
		res.Body.Close()
	}
}

func TestWantsKeepAlive(t *testing.T) {
	test.AssertTrue(t, wantsKeepAlive(Version11, Headers{}), "1.1 defaults to keep-alive")
	test.AssertTrue(t, !wantsKeepAlive(Version11, ParseHeaders([]string{"Connection: close"})), "1.1 honours close")
	test.AssertTrue(t, !wantsKeepAlive(Version10, Headers{}), "1.0 defaults to close")
	test.AssertTrue(t, wantsKeepAlive(Version10, ParseHeaders([]string{"Connection: keep-alive"})), "1.0 honours keep-alive")
}

func TestClassify(t *testing.T) {
	clues := DefaultConfig().SuspiciousErrors

	class, ok := classify(forbidden("too much", 1), clues)
	test.AssertTrue(t, ok, "forbidden use is reportable")
	test.AssertEqual(t, ClassForbiddenUse, class)

	class, ok = classify(errors.New("tls: no cipher suite supported by both client and server"), clues)
	test.AssertTrue(t, ok, "cipher scanning is reportable")
	test.AssertEqual(t, ClassVulnSeeking, class)

	_, ok = classify(io.EOF, clues)
	test.AssertTrue(t, !ok, "EOF is not abuse")
	test.AssertTrue(t, isTransportError(io.EOF), "EOF is a transport error")
	test.AssertTrue(t, isTransportError(net.ErrClosed), "closed is a transport error")
}
