package http

import (
	"strings"
)

// Headers keeps the raw header lines in arrival order next to an index of
// lower-cased name to every value sent under that name.
type Headers struct {
	raw   []string
	index map[string][]string
}

// ReadHeaders reads lines until the blank line that ends the header block.
// More than maxCount header lines is a forbidden use.
func ReadHeaders(r lineReader, maxCount int) (Headers, error) {
	lines := make([]string, 0, 8)
	for {
		line, err := r.ReadLine()
		if err != nil {
			return Headers{}, err
		}
		if strings.TrimSpace(line) == "" {
			break
		}
		if len(lines) == maxCount {
			return Headers{}, forbidden("client sent too many headers", int64(maxCount))
		}
		lines = append(lines, line)
	}
	return ParseHeaders(lines), nil
}

// ParseHeaders builds the index from raw lines. Lines without a colon, or
// with an empty name, stay in Raw but are not indexed.
func ParseHeaders(lines []string) Headers {
	h := Headers{raw: lines, index: make(map[string][]string, len(lines))}
	for _, line := range lines {
		colon := strings.IndexByte(line, ':')
		if colon <= 0 {
			continue
		}
		key := toLowerASCII(strings.TrimSpace(line[:colon]))
		if key == "" {
			continue
		}
		value := strings.TrimSpace(line[colon+1:])
		h.index[key] = append(h.index[key], value)
	}
	return h
}

func (h Headers) Raw() []string {
	return h.raw
}

func (h Headers) Len() int {
	return len(h.raw)
}

// Values returns every value sent for name, in arrival order.
func (h Headers) Values(name string) []string {
	return h.index[toLowerASCII(name)]
}

// Get returns the first value for name or "".
func (h Headers) Get(name string) string {
	values := h.Values(name)
	if len(values) == 0 {
		return ""
	}
	return values[0]
}

func (h Headers) Has(name string) bool {
	return len(h.Values(name)) > 0
}

// ContentLength is 0 when the header is absent or unparsable.
func (h Headers) ContentLength() int64 {
	n, err := atoi([]byte(h.Get(headerContentLength)))
	if err != nil {
		return 0
	}
	return n
}

func (h Headers) ContentType() string {
	return h.Get(headerContentType)
}

func (h Headers) IsChunked() bool {
	for _, v := range h.Values(headerTransferEncoding) {
		if containsToken(v, "chunked") {
			return true
		}
	}
	return false
}

func (h Headers) HasKeepAlive() bool {
	for _, v := range h.Values(headerConnection) {
		if containsToken(v, "keep-alive") {
			return true
		}
	}
	return false
}

func (h Headers) HasConnectionClose() bool {
	for _, v := range h.Values(headerConnection) {
		if containsToken(v, "close") {
			return true
		}
	}
	return false
}
