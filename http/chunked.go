package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
)

// readChunked reads a Transfer-Encoding: chunked body: hex size lines
// (extensions after ';' ignored), payloads each followed by CRLF, a zero
// chunk, then trailer lines up to a blank line. Trailers are discarded.
func readChunked(r lineReader, maxBodySize int64) ([]byte, error) {
	var body bytes.Buffer
	for {
		line, err := r.ReadLine()
		if err != nil {
			return nil, chunkReadError(err, body.Bytes())
		}
		if semi := strings.IndexByte(line, ';'); semi >= 0 {
			line = line[:semi]
		}
		size, err := parseHex([]byte(strings.TrimSpace(line)))
		if err != nil {
			return nil, bodyParseError(fmt.Errorf("%w: bad size line %q", ErrMalformedChunk, excerpt([]byte(line))), body.Bytes())
		}

		if size == 0 {
			for {
				trailer, err := r.ReadLine()
				if err != nil {
					return nil, chunkReadError(err, body.Bytes())
				}
				if trailer == "" {
					return body.Bytes(), nil
				}
			}
		}

		if int64(body.Len())+size > maxBodySize {
			return nil, forbidden("client sent a chunked body larger than allowed", maxBodySize)
		}
		payload, err := r.ReadN(size)
		if err != nil {
			return nil, chunkReadError(err, body.Bytes())
		}
		body.Write(payload)

		terminator, err := r.ReadLine()
		if err != nil {
			return nil, chunkReadError(err, body.Bytes())
		}
		if terminator != "" {
			return nil, bodyParseError(fmt.Errorf("%w: expected CRLF after %d byte chunk", ErrMalformedChunk, size), body.Bytes())
		}
	}
}

// chunkReadError keeps forbidden-use and transport errors as they are and
// reports a stream cut short inside the framing as a malformed chunk.
func chunkReadError(err error, soFar []byte) error {
	if IsForbiddenUse(err) {
		return err
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
		return bodyParseError(fmt.Errorf("%w: stream ended inside chunked body", ErrMalformedChunk), soFar)
	}
	return err
}
