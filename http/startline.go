package http

import (
	"net/url"
	"strings"
)

// nullToken is the literal a client sends to say "this value is null". It
// decodes to the empty string.
const nullToken = "%NULL%"

// StartLine is the first line of a request, e.g. GET /foo?a=1 HTTP/1.1.
// Path carries no leading slash and no query string.
type StartLine struct {
	Verb     Verb
	Path     string
	RawQuery string
	Query    map[string]string
	Version  Version
	Raw      string
}

// EmptyStartLine is returned for anything that does not fit the grammar.
var EmptyStartLine = StartLine{}

func (sl StartLine) IsEmpty() bool {
	return sl.Verb == VerbNone
}

// QueryValue returns the decoded query value for key, or "" when absent.
func (sl StartLine) QueryValue(key string) string {
	return sl.Query[key]
}

func (sl StartLine) String() string {
	return sl.Raw
}

type startLineState uint8

const (
	stateVerb startLineState = iota
	stateSlash
	statePath
	stateQuery
	stateVersion
)

// ParseStartLine validates line against VERB SP /path[?query] SP HTTP/1.x.
// Any mismatch yields EmptyStartLine and a nil error so the caller decides
// policy. A query string with more than maxQueryKeys pairs is a forbidden
// use and is the only case that returns an error.
func ParseStartLine(line string, maxQueryKeys int) (StartLine, error) {
	state := stateVerb
	verbEnd, pathStart, pathEnd := 0, 0, 0
	queryStart, queryEnd, versionFrom := -1, 0, 0

	for i := 0; i < len(line); i++ {
		c := line[i]
		if c < 0x20 || c == 0x7f {
			return EmptyStartLine, nil
		}

		switch state {
		case stateVerb:
			if c == ' ' {
				if i == 0 {
					return EmptyStartLine, nil
				}
				verbEnd = i
				state = stateSlash
				continue
			}
			if c < 'A' || c > 'Z' {
				return EmptyStartLine, nil
			}
		case stateSlash:
			if c != '/' {
				return EmptyStartLine, nil
			}
			pathStart = i + 1
			state = statePath
		case statePath:
			switch c {
			case '?':
				pathEnd = i
				queryStart = i + 1
				state = stateQuery
			case ' ':
				pathEnd = i
				versionFrom = i + 1
				state = stateVersion
			}
		case stateQuery:
			if c == ' ' {
				queryEnd = i
				versionFrom = i + 1
				state = stateVersion
			}
		case stateVersion:
			// compared as a whole below
		}
	}

	if state != stateVersion {
		return EmptyStartLine, nil
	}

	verb, ok := knownVerbs[line[:verbEnd]]
	if !ok {
		return EmptyStartLine, nil
	}

	var version Version
	switch line[versionFrom:] {
	case "HTTP/1.1":
		version = Version11
	case "HTTP/1.0":
		version = Version10
	default:
		return EmptyStartLine, nil
	}

	sl := StartLine{
		Verb:    verb,
		Path:    line[pathStart:pathEnd],
		Query:   map[string]string{},
		Version: version,
		Raw:     line,
	}

	if queryStart >= 0 {
		sl.RawQuery = line[queryStart:queryEnd]
		query, valid, err := parseQuery(sl.RawQuery, maxQueryKeys)
		if err != nil {
			return EmptyStartLine, err
		}
		if !valid {
			return EmptyStartLine, nil
		}
		sl.Query = query
	}

	return sl, nil
}

// parseQuery splits foo=bar&name=alice into a map. A pair without a key
// drops the whole query. Undecodable values and duplicate keys make the
// start line invalid.
func parseQuery(raw string, maxKeys int) (map[string]string, bool, error) {
	query := make(map[string]string)
	count := 0
	for _, pair := range strings.Split(raw, "&") {
		if pair == "" {
			continue
		}
		if count == maxKeys {
			return nil, false, forbidden("client provided too many query string keys", int64(maxKeys))
		}
		count++

		eq := strings.IndexByte(pair, '=')
		if eq <= 0 {
			return map[string]string{}, true, nil
		}
		key := pair[:eq]
		value, err := decodeValue(pair[eq+1:])
		if err != nil {
			return nil, false, nil
		}
		if _, dup := query[key]; dup {
			return nil, false, nil
		}
		query[key] = value
	}
	return query, true, nil
}

// decodeValue percent-decodes a form or query value. The null token maps to
// the empty string.
func decodeValue(s string) (string, error) {
	if s == nullToken {
		return "", nil
	}
	return url.QueryUnescape(s)
}
