package http

import (
	"context"
	"errors"
	"io"
	"net"
	"os"
	"strings"
	"syscall"
)

// Classification tags a peer report.
type Classification string

const (
	// ClassForbiddenUse is oversized or overly numerous input.
	ClassForbiddenUse Classification = "forbidden_use"
	// ClassVulnSeeking is a TLS peer demanding weak ciphers or versions.
	ClassVulnSeeking Classification = "vuln_seeking"
	// ClassSuspiciousPath is a request for a path only scanners ask for.
	ClassSuspiciousPath Classification = "suspicious_path"
)

// AbuseSink receives peers worth banning. Implementations must be safe for
// concurrent use.
type AbuseSink interface {
	Report(addr string, class Classification)
}

// JailChecker is optionally implemented by an AbuseSink. Connections from
// jailed peers are dropped before anything is read.
type JailChecker interface {
	IsJailed(addr string) bool
}

type noopSink struct{}

func (noopSink) Report(string, Classification) {}

// classify decides whether err earns the peer an abuse report.
func classify(err error, clues []string) (Classification, bool) {
	if err == nil {
		return "", false
	}
	if IsForbiddenUse(err) {
		return ClassForbiddenUse, true
	}
	msg := err.Error()
	for _, clue := range clues {
		if clue != "" && strings.Contains(msg, clue) {
			return ClassVulnSeeking, true
		}
	}
	return "", false
}

// isTransportError reports the ordinary ways a socket dies: peer gone,
// reset, broken pipe, deadline, or our own close.
func isTransportError(err error) bool {
	switch {
	case errors.Is(err, io.EOF),
		errors.Is(err, io.ErrUnexpectedEOF),
		errors.Is(err, net.ErrClosed),
		errors.Is(err, os.ErrDeadlineExceeded),
		errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, context.Canceled),
		errors.Is(err, syscall.ECONNRESET),
		errors.Is(err, syscall.EPIPE),
		errors.Is(err, syscall.ECONNABORTED):
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
