package http

import (
	"strings"
)

type BodyKind uint8

const (
	BodyEmpty BodyKind = iota
	BodyURLEncoded
	BodyRaw
	BodyMultipart
)

func (k BodyKind) String() string {
	switch k {
	case BodyURLEncoded:
		return "url-encoded"
	case BodyRaw:
		return "raw"
	case BodyMultipart:
		return "multipart"
	default:
		return "empty"
	}
}

// Body is the decoded request body. Kind says which of Form, Raw or
// Partitions is meaningful; Raw always holds the bytes as received.
type Body struct {
	Kind       BodyKind
	Form       map[string]string
	Raw        []byte
	Partitions []Partition
}

// Partition is one named section of a multipart/form-data body.
type Partition struct {
	Headers  Headers
	Name     string
	Filename string
	Content  []byte
}

var EmptyBody = Body{Kind: BodyEmpty}

// Value returns a url-encoded field, or the text of a multipart partition
// with that name.
func (b Body) Value(key string) string {
	switch b.Kind {
	case BodyURLEncoded:
		return b.Form[key]
	case BodyMultipart:
		if p, ok := b.Partition(key); ok {
			return strings.TrimSpace(string(p.Content))
		}
	}
	return ""
}

// Partition returns the first partition named name.
func (b Body) Partition(name string) (Partition, bool) {
	for _, p := range b.Partitions {
		if p.Name == name {
			return p, true
		}
	}
	return Partition{}, false
}

func (b Body) Bytes() []byte {
	return b.Raw
}

func (b Body) String() string {
	return string(b.Raw)
}

// BodyDecoder reads and interprets request bodies under fixed limits.
type BodyDecoder struct {
	MaxBodySize int64
	MaxLineSize int
	MaxHeaders  int
}

func newBodyDecoder(cfg Config) BodyDecoder {
	return BodyDecoder{
		MaxBodySize: cfg.MaxBodySize,
		MaxLineSize: cfg.MaxLineSize,
		MaxHeaders:  cfg.MaxHeaders,
	}
}

// Decode reads the body announced by h from r. Chunked transfer encoding
// wins over Content-Length; with neither the body is empty. Oversized bodies
// are a forbidden use; everything that fails after the bytes are in hand is
// a *BodyParseError.
func (d BodyDecoder) Decode(r lineReader, h Headers) (Body, error) {
	var (
		raw []byte
		err error
	)

	switch {
	case h.IsChunked():
		raw, err = readChunked(r, d.MaxBodySize)
	case h.ContentLength() > 0:
		length := h.ContentLength()
		if length > d.MaxBodySize {
			return EmptyBody, forbidden("client announced a body larger than allowed", d.MaxBodySize)
		}
		raw, err = r.ReadN(length)
	default:
		return EmptyBody, nil
	}
	if err != nil {
		return EmptyBody, err
	}

	return d.Interpret(h.ContentType(), raw)
}

// Interpret turns raw bytes into a Body according to contentType.
func (d BodyDecoder) Interpret(contentType string, raw []byte) (Body, error) {
	mediaType, params := splitMediaType(contentType)

	switch mediaType {
	case contentTypeURLEncoded:
		form, err := DecodeForm(raw)
		if err != nil {
			return EmptyBody, bodyParseError(err, raw)
		}
		if len(form) == 0 {
			return Body{Kind: BodyEmpty, Raw: raw}, nil
		}
		return Body{Kind: BodyURLEncoded, Form: form, Raw: raw}, nil
	case contentTypeMultipart:
		boundary := params["boundary"]
		if boundary == "" {
			return EmptyBody, bodyParseError(ErrMissingBoundary, []byte(contentType))
		}
		partitions, err := d.decodeMultipart(raw, boundary)
		if err != nil {
			return EmptyBody, err
		}
		return Body{Kind: BodyMultipart, Raw: raw, Partitions: partitions}, nil
	default:
		if len(raw) == 0 {
			return EmptyBody, nil
		}
		return Body{Kind: BodyRaw, Raw: raw}, nil
	}
}

// splitMediaType splits "multipart/form-data; boundary=x" into the
// lower-cased media type and its parameters. Quoted values are unquoted.
func splitMediaType(contentType string) (string, map[string]string) {
	parts := strings.Split(contentType, ";")
	mediaType := toLowerASCII(strings.TrimSpace(parts[0]))
	params := make(map[string]string, len(parts)-1)
	for _, part := range parts[1:] {
		key, value, found := strings.Cut(part, "=")
		if !found {
			continue
		}
		value = strings.TrimSpace(value)
		if len(value) >= 2 && value[0] == '"' && value[len(value)-1] == '"' {
			value = value[1 : len(value)-1]
		}
		params[toLowerASCII(strings.TrimSpace(key))] = value
	}
	return mediaType, params
}
