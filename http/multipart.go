package http

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	partNameRegex     = regexp.MustCompile(`\bname=(?:"([^"]*)"|([^;\s"]+))`)
	partFilenameRegex = regexp.MustCompile(`\bfilename=(?:"([^"]*)"|([^;\s"]+))`)

	errPartitionHeaders = errors.New("partition ended inside its header block")
)

// decodeMultipart splits raw on --boundary. The preamble before the first
// delimiter is ignored and --boundary-- ends the body. Each partition is a
// header block, a blank line, then content that is kept byte for byte minus
// the line break that precedes the next delimiter.
func (d BodyDecoder) decodeMultipart(raw []byte, boundary string) ([]Partition, error) {
	delimiter := []byte("--" + boundary)

	start := bytes.Index(raw, delimiter)
	if start < 0 {
		return nil, bodyParseError(fmt.Errorf("boundary %q not found", boundary), raw)
	}

	var partitions []Partition
	rest := raw[start+len(delimiter):]
	for {
		if bytes.HasPrefix(rest, []byte("--")) {
			break
		}
		rest = trimLeadingLineBreak(rest)

		end := bytes.Index(rest, delimiter)
		if end < 0 {
			// missing close delimiter; take what is left
			end = len(rest)
		}
		segment := trimTrailingLineBreak(rest[:end])

		if len(bytes.TrimSpace(segment)) > 0 {
			p, err := d.decodePartition(segment)
			if err != nil {
				return nil, err
			}
			partitions = append(partitions, p)
		}

		if end == len(rest) {
			break
		}
		rest = rest[end+len(delimiter):]
	}
	return partitions, nil
}

func (d BodyDecoder) decodePartition(segment []byte) (Partition, error) {
	scanner := newLineScanner(segment, d.MaxLineSize)
	headers, err := ReadHeaders(scanner, d.MaxHeaders)
	if err != nil {
		if IsForbiddenUse(err) {
			return Partition{}, err
		}
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return Partition{}, bodyParseError(errPartitionHeaders, segment)
		}
		return Partition{}, bodyParseError(err, segment)
	}

	disposition := strings.Join(headers.Values(headerContentDisp), ";")
	name := firstGroup(partNameRegex, disposition)
	if name == "" {
		return Partition{}, bodyParseError(ErrMissingPartName, segment)
	}

	content, err := scanner.readRest()
	if err != nil {
		return Partition{}, bodyParseError(err, segment)
	}

	return Partition{
		Headers:  headers,
		Name:     name,
		Filename: firstGroup(partFilenameRegex, disposition),
		Content:  content,
	}, nil
}

func firstGroup(re *regexp.Regexp, s string) string {
	m := re.FindStringSubmatch(s)
	if m == nil {
		return ""
	}
	if m[1] != "" {
		return m[1]
	}
	return m[2]
}

func trimLeadingLineBreak(b []byte) []byte {
	if bytes.HasPrefix(b, crlf) {
		return b[2:]
	}
	if len(b) > 0 && b[0] == '\n' {
		return b[1:]
	}
	return b
}

func trimTrailingLineBreak(b []byte) []byte {
	if bytes.HasSuffix(b, crlf) {
		return b[:len(b)-2]
	}
	if len(b) > 0 && b[len(b)-1] == '\n' {
		return b[:len(b)-1]
	}
	return b
}
