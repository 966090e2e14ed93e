package http

// Status codes the engine and its handlers answer with.
const (
	StatusContinue       uint16 = 100
	StatusOK             uint16 = 200
	StatusCreated        uint16 = 201
	StatusAccepted       uint16 = 202
	StatusNoContent      uint16 = 204
	StatusPartialContent uint16 = 206

	StatusMovedPermanently  uint16 = 301
	StatusFound             uint16 = 302
	StatusSeeOther          uint16 = 303
	StatusNotModified       uint16 = 304
	StatusTemporaryRedirect uint16 = 307
	StatusPermanentRedirect uint16 = 308

	StatusBadRequest                  uint16 = 400
	StatusUnauthorized                uint16 = 401
	StatusForbidden                   uint16 = 403
	StatusNotFound                    uint16 = 404
	StatusMethodNotAllowed            uint16 = 405
	StatusRequestTimeout              uint16 = 408
	StatusConflict                    uint16 = 409
	StatusGone                        uint16 = 410
	StatusLengthRequired              uint16 = 411
	StatusContentTooLarge             uint16 = 413
	StatusURITooLong                  uint16 = 414
	StatusUnsupportedMediaType        uint16 = 415
	StatusTooManyRequests             uint16 = 429
	StatusRequestHeaderFieldsTooLarge uint16 = 431

	StatusInternalServerError     uint16 = 500
	StatusNotImplemented          uint16 = 501
	StatusBadGateway              uint16 = 502
	StatusServiceUnavailable      uint16 = 503
	StatusGatewayTimeout          uint16 = 504
	StatusHTTPVersionNotSupported uint16 = 505
)

const unknownStatusCode = "Unknown Status Code"

var reasonPhrases = map[uint16]string{
	StatusContinue:       "Continue",
	StatusOK:             "OK",
	StatusCreated:        "Created",
	StatusAccepted:       "Accepted",
	StatusNoContent:      "No Content",
	StatusPartialContent: "Partial Content",

	StatusMovedPermanently:  "Moved Permanently",
	StatusFound:             "Found",
	StatusSeeOther:          "See Other",
	StatusNotModified:       "Not Modified",
	StatusTemporaryRedirect: "Temporary Redirect",
	StatusPermanentRedirect: "Permanent Redirect",

	StatusBadRequest:                  "Bad Request",
	StatusUnauthorized:                "Unauthorized",
	StatusForbidden:                   "Forbidden",
	StatusNotFound:                    "Not Found",
	StatusMethodNotAllowed:            "Method Not Allowed",
	StatusRequestTimeout:              "Request Timeout",
	StatusConflict:                    "Conflict",
	StatusGone:                        "Gone",
	StatusLengthRequired:              "Length Required",
	StatusContentTooLarge:             "Content Too Large",
	StatusURITooLong:                  "URI Too Long",
	StatusUnsupportedMediaType:        "Unsupported Media Type",
	StatusTooManyRequests:             "Too Many Requests",
	StatusRequestHeaderFieldsTooLarge: "Request Header Fields Too Large",

	StatusInternalServerError:     "Internal Server Error",
	StatusNotImplemented:          "Not Implemented",
	StatusBadGateway:              "Bad Gateway",
	StatusServiceUnavailable:      "Service Unavailable",
	StatusGatewayTimeout:          "Gateway Timeout",
	StatusHTTPVersionNotSupported: "HTTP Version Not Supported",
}

// StatusText returns the reason phrase for code, or "Unknown Status Code".
func StatusText(code uint16) string {
	if phrase, ok := reasonPhrases[code]; ok {
		return phrase
	}
	return unknownStatusCode
}
