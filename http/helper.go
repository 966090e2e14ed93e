package http

import (
	"errors"
	"math"
	"strings"
)

var errInvalidNumber = errors.New("invalid number")

// atoi parses a non-negative decimal without allocating.
func atoi(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, errInvalidNumber
	}
	var n int64
	for _, c := range b {
		if c < '0' || c > '9' {
			return 0, errInvalidNumber
		}
		if n > (math.MaxInt64-int64(c-'0'))/10 {
			return 0, errInvalidNumber
		}
		n = n*10 + int64(c-'0')
	}
	return n, nil
}

// parseHex parses a chunk size line such as "1a" or "1A;ext=1".
func parseHex(b []byte) (int64, error) {
	if len(b) == 0 || len(b) > 15 {
		return 0, errInvalidNumber
	}
	var n int64
	for _, c := range b {
		v := hexToByte(c)
		if v == 255 {
			return 0, errInvalidNumber
		}
		n = n<<4 | int64(v)
	}
	return n, nil
}

func hexToByte(c byte) byte {
	switch {
	case '0' <= c && c <= '9':
		return c - '0'
	case 'a' <= c && c <= 'f':
		return c - 'a' + 10
	case 'A' <= c && c <= 'F':
		return c - 'A' + 10
	}
	return 255
}

func toLowerASCII(s string) string {
	for i := 0; i < len(s); i++ {
		if 'A' <= s[i] && s[i] <= 'Z' {
			b := []byte(s)
			toLowerScalar(b[i:])
			return string(b)
		}
	}
	return s
}

func toLowerScalar(data []byte) {
	for i := range data {
		if data[i] >= 'A' && data[i] <= 'Z' {
			data[i] += 'a' - 'A'
		}
	}
}

// containsToken reports whether a comma separated header value carries token,
// compared case-insensitively.
func containsToken(value, token string) bool {
	for _, part := range strings.Split(value, ",") {
		if strings.EqualFold(strings.TrimSpace(part), token) {
			return true
		}
	}
	return false
}
