package http

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
)

// Server accepts connections on its listeners and runs one goroutine per
// connection for the connection's whole life.
type Server struct {
	cfg       Config
	router    *Router
	logger    *slog.Logger
	sink      AbuseSink
	files     FileSource
	clock     func() time.Time
	decoder   BodyDecoder
	assembler *assembler
	pool      *connPool

	conns     *xsync.MapOf[*Conn, struct{}]
	listeners *xsync.MapOf[net.Listener, struct{}]

	baseCtx context.Context
	cancel  context.CancelFunc

	// mu orders listener registration and wg.Add against the closed flip
	// in Shutdown.
	mu     sync.Mutex
	wg     sync.WaitGroup
	closed atomic.Bool
}

type Option func(*Server)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

func WithAbuseSink(sink AbuseSink) Option {
	return func(s *Server) {
		if sink != nil {
			s.sink = sink
		}
	}
}

func WithFileSource(files FileSource) Option {
	return func(s *Server) {
		s.files = files
	}
}

// WithClock replaces time.Now for the Date header.
func WithClock(clock func() time.Time) Option {
	return func(s *Server) {
		if clock != nil {
			s.clock = clock
		}
	}
}

func NewServer(cfg Config, router *Router, opts ...Option) *Server {
	ctx, cancel := context.WithCancel(context.Background())
	s := &Server{
		cfg:       cfg,
		router:    router,
		logger:    discardLogger(),
		sink:      noopSink{},
		clock:     time.Now,
		decoder:   newBodyDecoder(cfg),
		pool:      newConnPool(cfg.MaxConnections),
		conns:     xsync.NewMapOf[*Conn, struct{}](xsync.WithPresize(cfg.MaxConnections >> 4)),
		listeners: xsync.NewMapOf[net.Listener, struct{}](),
		baseCtx:   ctx,
		cancel:    cancel,
	}
	for _, opt := range opts {
		opt(s)
	}
	s.assembler = newAssembler(cfg, s.clock)
	return s
}

// ListenAndServe opens the plain listener and, with certificate material,
// the TLS listener, then serves until ctx is done or a listener fails. With
// RedirectToSecure the plain listener only redirects.
func (s *Server) ListenAndServe(ctx context.Context) error {
	if err := s.cfg.Validate(); err != nil {
		return err
	}

	errCh := make(chan error, 2)
	serving := 0

	plainAddr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.Port))
	plain, err := net.Listen("tcp", plainAddr)
	if err != nil {
		return fmt.Errorf("http: listen on %s: %w", plainAddr, err)
	}
	serving++
	go func() {
		if s.cfg.RedirectToSecure {
			errCh <- s.ServeRedirect(plain)
			return
		}
		errCh <- s.Serve(plain)
	}()

	if s.cfg.TLSEnabled() {
		tlsConfig, err := s.tlsConfig()
		if err != nil {
			_ = plain.Close()
			return err
		}
		secureAddr := net.JoinHostPort(s.cfg.Host, strconv.Itoa(s.cfg.TLSPort))
		secure, err := net.Listen("tcp", secureAddr)
		if err != nil {
			_ = plain.Close()
			return fmt.Errorf("http: listen on %s: %w", secureAddr, err)
		}
		serving++
		go func() {
			errCh <- s.ServeTLS(tls.NewListener(secure, tlsConfig))
		}()
	}

	select {
	case err := <-errCh:
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SocketTimeout)
		defer cancel()
		return errors.Join(err, s.Shutdown(shutdownCtx))
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.SocketTimeout)
	defer cancel()
	err = s.Shutdown(shutdownCtx)
	for ; serving > 0; serving-- {
		if serveErr := <-errCh; serveErr != nil && !errors.Is(serveErr, ErrServerClosed) {
			err = errors.Join(err, serveErr)
		}
	}
	return err
}

func (s *Server) tlsConfig() (*tls.Config, error) {
	if s.cfg.TLSConfig != nil {
		return s.cfg.TLSConfig, nil
	}
	cert, err := tls.LoadX509KeyPair(s.cfg.CertFile, s.cfg.KeyFile)
	if err != nil {
		return nil, fmt.Errorf("http: load certificate: %w", err)
	}
	return &tls.Config{
		Certificates: []tls.Certificate{cert},
		MinVersion:   tls.VersionTLS12,
	}, nil
}

// Serve runs the plain accept loop on ln.
func (s *Server) Serve(ln net.Listener) error {
	return s.acceptLoop(ln, false, s.serveConn)
}

// ServeTLS runs the accept loop on a listener that yields *tls.Conn.
func (s *Server) ServeTLS(ln net.Listener) error {
	return s.acceptLoop(ln, true, s.serveConn)
}

// ServeRedirect answers every connection on ln with a redirect to the TLS
// endpoint.
func (s *Server) ServeRedirect(ln net.Listener) error {
	return s.acceptLoop(ln, false, s.serveRedirect)
}

func (s *Server) acceptLoop(ln net.Listener, secure bool, serve func(context.Context, *Conn)) error {
	s.router.freeze()
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return ErrServerClosed
	}
	s.listeners.Store(ln, struct{}{})
	s.mu.Unlock()
	defer s.listeners.Delete(ln)

	s.logger.Info("accepting connections", "addr", ln.Addr().String(), "tls", secure)

	var backoff time.Duration
	for {
		raw, err := ln.Accept()
		if err != nil {
			if s.closed.Load() {
				return ErrServerClosed
			}
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				if backoff == 0 {
					backoff = 5 * time.Millisecond
				} else {
					backoff = min(backoff*2, time.Second)
				}
				s.logger.Warn("accept failed, retrying", "error", err, "backoff", backoff)
				time.Sleep(backoff)
				continue
			}
			return fmt.Errorf("http: accept: %w", err)
		}
		backoff = 0

		if !s.track() {
			_ = raw.Close()
			return ErrServerClosed
		}
		go s.handle(raw, secure, serve)
	}
}

// track reserves a WaitGroup slot for a new connection goroutine. It fails
// once Shutdown has started.
func (s *Server) track() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed.Load() {
		return false
	}
	s.wg.Add(1)
	return true
}

func (s *Server) handle(raw net.Conn, secure bool, serve func(context.Context, *Conn)) {
	defer s.wg.Done()
	ctx := s.baseCtx

	buffers, ok := s.pool.acquire()
	if !ok {
		s.logger.WarnContext(ctx, "connection limit reached", "remote", raw.RemoteAddr().String())
		if !secure {
			_ = raw.SetDeadline(time.Now().Add(s.cfg.SocketTimeout))
			s.rejectFull(ctx, raw)
		}
		_ = raw.Close()
		return
	}
	defer s.pool.release(buffers)

	c := newConn(raw, secure, buffers, s.cfg, func(c *Conn) {
		s.conns.Delete(c)
		activeConnCnt.Add(ctx, -1)
	})
	s.conns.Store(c, struct{}{})
	activeConnCnt.Add(ctx, 1)
	defer c.Close()

	// Shutdown may have swept the registry before this conn was stored.
	if s.closed.Load() {
		return
	}

	logTrace(ctx, s.logger, "connection accepted", "remote", c.RemoteAddrWithPort(), "tls", secure)
	serve(ctx, c)
}

// Shutdown stops accepting, interrupts live connections and waits for their
// goroutines until ctx is done.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	if s.closed.Load() {
		s.mu.Unlock()
		return nil
	}
	s.closed.Store(true)
	s.mu.Unlock()
	s.cancel()

	var errs []error
	s.listeners.Range(func(ln net.Listener, _ struct{}) bool {
		if err := ln.Close(); err != nil && !errors.Is(err, net.ErrClosed) {
			errs = append(errs, err)
		}
		return true
	})
	s.conns.Range(func(c *Conn, _ struct{}) bool {
		_ = c.Close()
		return true
	})

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-ctx.Done():
		errs = append(errs, ctx.Err())
	}
	return errors.Join(errs...)
}

// ActiveConnections is the number of connections currently registered.
func (s *Server) ActiveConnections() int {
	return s.conns.Size()
}
