package http

import (
	"errors"
	"fmt"
)

var (
	ErrServerClosed       = errors.New("http: server closed")
	ErrBodyParse          = errors.New("http: body parse failed")
	ErrMalformedChunk     = errors.New("http: malformed chunk")
	ErrMissingPartName    = errors.New("http: no name value found in the headers of a partition")
	ErrMissingBoundary    = errors.New("http: no boundary value for multipart input")
	ErrRouteAfterStart    = errors.New("http: route registered after server started")
	ErrNilResponse        = errors.New("http: handler returned no response")
	ErrFileSourceNotFound = errors.New("http: response streams a file but no file source is configured")
)

// ForbiddenUseError marks input that is treated as a probable attack rather
// than a plain malformed request: oversized lines or bodies, too many headers
// or query keys.
type ForbiddenUseError struct {
	Reason string
	Limit  int64
}

func (e *ForbiddenUseError) Error() string {
	return fmt.Sprintf("http: forbidden use: %s (current max: %d)", e.Reason, e.Limit)
}

func forbidden(reason string, limit int64) error {
	return &ForbiddenUseError{Reason: reason, Limit: limit}
}

// IsForbiddenUse reports whether err is, or wraps, a ForbiddenUseError.
func IsForbiddenUse(err error) bool {
	var fe *ForbiddenUseError
	return errors.As(err, &fe)
}

// BodyParseError wraps any failure to interpret a request body. Excerpt
// never exceeds MaxErrorExcerptSize bytes of the offending data.
type BodyParseError struct {
	Cause   error
	Excerpt string
}

func (e *BodyParseError) Error() string {
	if e.Excerpt == "" {
		return fmt.Sprintf("%s: %v", ErrBodyParse, e.Cause)
	}
	return fmt.Sprintf("%s: %v. Data: %s", ErrBodyParse, e.Cause, e.Excerpt)
}

func (e *BodyParseError) Unwrap() []error {
	return []error{ErrBodyParse, e.Cause}
}

func bodyParseError(cause error, data []byte) error {
	return &BodyParseError{Cause: cause, Excerpt: excerpt(data)}
}

func excerpt(data []byte) string {
	if len(data) <= MaxErrorExcerptSize {
		return string(data)
	}
	return string(data[:MaxErrorExcerptSize]) + " ... (remainder of data trimmed)"
}
