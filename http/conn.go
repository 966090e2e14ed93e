package http

import (
	"bufio"
	"bytes"
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"net"
	"sync"
	"time"
)

// lineReader is the part of a connection the parsers need. Conn satisfies it
// for the socket and lineScanner for in-memory multipart partitions.
type lineReader interface {
	ReadLine() (string, error)
	ReadN(n int64) ([]byte, error)
}

type lineScanner struct {
	br      *bufio.Reader
	maxLine int
}

func newLineScanner(data []byte, maxLine int) *lineScanner {
	return &lineScanner{br: bufio.NewReader(bytes.NewReader(data)), maxLine: maxLine}
}

// ReadLine reads up to the next LF, dropping CR bytes. It returns io.EOF
// when the stream ends before any byte was read and io.ErrUnexpectedEOF when
// it ends mid-line. Lines longer than maxLine are a forbidden use.
func (s *lineScanner) ReadLine() (string, error) {
	var line []byte
	for {
		b, err := s.br.ReadByte()
		if err != nil {
			if err == io.EOF && len(line) > 0 {
				return "", io.ErrUnexpectedEOF
			}
			return "", err
		}
		switch b {
		case '\n':
			return string(line), nil
		case '\r':
			continue
		}
		if s.maxLine > 0 && len(line) >= s.maxLine {
			return "", forbidden("client sent a line longer than allowed", int64(s.maxLine))
		}
		line = append(line, b)
	}
}

// ReadN reads exactly n bytes.
func (s *lineScanner) ReadN(n int64) ([]byte, error) {
	if n <= 0 {
		return []byte{}, nil
	}
	var buf bytes.Buffer
	buf.Grow(int(min(n, 64*1024)))
	read, err := io.CopyN(&buf, s.br, n)
	if err != nil {
		if err == io.EOF {
			return nil, fmt.Errorf("http: read %d of %d bytes: %w", read, n, io.ErrUnexpectedEOF)
		}
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *lineScanner) readRest() ([]byte, error) {
	return io.ReadAll(s.br)
}

// Conn wraps one accepted socket, plain or TLS, for its whole life across
// request/response cycles.
type Conn struct {
	lineScanner

	raw         net.Conn
	bw          *bufio.Writer
	buffers     *connBuffers
	secure      bool
	idleTimeout time.Duration

	closeOnce sync.Once
	closeErr  error
	onClose   func(*Conn)
}

func newConn(raw net.Conn, secure bool, buffers *connBuffers, cfg Config, onClose func(*Conn)) *Conn {
	buffers.reset(raw)
	c := &Conn{
		lineScanner: lineScanner{br: buffers.br, maxLine: cfg.MaxLineSize},
		raw:         raw,
		bw:          buffers.bw,
		buffers:     buffers,
		secure:      secure,
		idleTimeout: cfg.SocketTimeout,
		onClose:     onClose,
	}
	c.ArmIdleDeadline()
	return c
}

func (c *Conn) Write(p []byte) (int, error) {
	return c.bw.Write(p)
}

func (c *Conn) WriteString(s string) (int, error) {
	return c.bw.WriteString(s)
}

func (c *Conn) Flush() error {
	return c.bw.Flush()
}

// ArmIdleDeadline pushes the read/write deadline one idle timeout into the
// future.
func (c *Conn) ArmIdleDeadline() {
	if c.idleTimeout > 0 {
		_ = c.raw.SetDeadline(time.Now().Add(c.idleTimeout))
	}
}

// Handshake completes the TLS handshake up front so its failures can be
// classified. It is a no-op on plain connections.
func (c *Conn) Handshake(ctx context.Context, timeout time.Duration) error {
	tlsConn, ok := c.raw.(*tls.Conn)
	if !ok {
		return nil
	}
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return tlsConn.HandshakeContext(ctx)
}

func (c *Conn) IsTLS() bool {
	return c.secure
}

// RemoteAddr returns the peer host without its port.
func (c *Conn) RemoteAddr() string {
	addr := c.raw.RemoteAddr().String()
	host, _, err := net.SplitHostPort(addr)
	if err != nil {
		return addr
	}
	return host
}

func (c *Conn) RemoteAddrWithPort() string {
	return c.raw.RemoteAddr().String()
}

func (c *Conn) LocalAddr() string {
	return c.raw.LocalAddr().String()
}

// Close releases the socket and hands the buffers back. Safe to call more
// than once and from another goroutine, which interrupts a blocked read.
func (c *Conn) Close() error {
	c.closeOnce.Do(func() {
		c.closeErr = c.raw.Close()
		if c.onClose != nil {
			c.onClose(c)
		}
	})
	return c.closeErr
}

func (c *Conn) String() string {
	return fmt.Sprintf("(conn for remote address: %s)", c.RemoteAddrWithPort())
}
