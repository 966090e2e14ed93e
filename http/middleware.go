package http

import (
	"fmt"
	"log/slog"
	"time"
)

type Middleware func(next Handler) Handler

// RecoverMiddleware turns a panic in next into an error, which the
// connection handler answers with a 500. The connection handler recovers
// panics too; this keeps the panic value in the error chain.
func RecoverMiddleware() Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (res *Response, err error) {
			defer func() {
				if recovered := recover(); recovered != nil {
					res = nil
					err = fmt.Errorf("http: handler panic on %s /%s: %v", req.Verb(), req.Path(), recovered)
				}
			}()

			return next(req)
		}
	}
}

// LogMiddleware audits every request with its outcome and duration.
func LogMiddleware(logger *slog.Logger) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (*Response, error) {
			start := time.Now()
			res, err := next(req)

			args := []any{
				"verb", req.Verb(),
				"path", req.Path(),
				"remote", req.RemoteAddr(),
				"duration", time.Since(start),
			}
			if res != nil {
				args = append(args, "status", res.Status)
			}
			if err != nil {
				args = append(args, "error", err)
			}
			logAudit(req.Context(), logger, "request handled", args...)

			return res, err
		}
	}
}

// HeaderMiddleware sets header on every response next produces, unless the
// handler already set it.
func HeaderMiddleware(name, value string) Middleware {
	return func(next Handler) Handler {
		return func(req *Request) (*Response, error) {
			res, err := next(req)
			if res != nil {
				if _, set := res.Headers[name]; !set {
					res.WithHeader(name, value)
				}
			}
			return res, err
		}
	}
}
