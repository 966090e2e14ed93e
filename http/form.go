package http

import (
	"errors"
	"fmt"
	"net/url"
	"slices"
	"strings"
)

var (
	errBlankFormKey  = errors.New("the key must not be blank")
	errFormPairNoEq  = errors.New("form pair has no '=' separator")
	errDuplicateForm = errors.New("duplicated form key")
)

// DecodeForm parses an application/x-www-form-urlencoded body such as
// valuea=3&valueb=this+is+something. Empty segments are skipped. A pair
// without '=', a blank key or a repeated key fails the whole body. Input
// echoed in errors is cut to MaxErrorExcerptSize.
func DecodeForm(raw []byte) (map[string]string, error) {
	form := make(map[string]string)
	for _, pair := range strings.Split(string(raw), "&") {
		if pair == "" {
			continue
		}
		rawKey, rawValue, found := strings.Cut(pair, "=")
		if !found {
			return nil, fmt.Errorf("%w: %q", errFormPairNoEq, excerpt([]byte(pair)))
		}
		key, err := url.QueryUnescape(rawKey)
		if err != nil {
			return nil, fmt.Errorf("decode key %q: %w", excerpt([]byte(rawKey)), err)
		}
		if strings.TrimSpace(key) == "" {
			return nil, errBlankFormKey
		}
		value, err := decodeValue(rawValue)
		if err != nil {
			return nil, fmt.Errorf("decode value of %q: %w", excerpt([]byte(key)), err)
		}
		if previous, dup := form[key]; dup {
			return nil, fmt.Errorf("%w: %s was duplicated in the post body - had values of %s and %s",
				errDuplicateForm, excerpt([]byte(key)), excerpt([]byte(previous)), excerpt([]byte(value)))
		}
		form[key] = value
	}
	return form, nil
}

// EncodeForm renders form as a url-encoded body with keys in sorted order,
// so DecodeForm(EncodeForm(m)) equals m.
func EncodeForm(form map[string]string) []byte {
	keys := make([]string, 0, len(form))
	for k := range form {
		keys = append(keys, k)
	}
	slices.Sort(keys)

	var sb strings.Builder
	for i, k := range keys {
		if i > 0 {
			sb.WriteByte('&')
		}
		sb.WriteString(url.QueryEscape(k))
		sb.WriteByte('=')
		sb.WriteString(url.QueryEscape(form[k]))
	}
	return []byte(sb.String())
}
