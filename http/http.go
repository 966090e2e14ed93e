package http

const (
	DefaultReadBufferSize  = 4 * 1024
	DefaultWriteBufferSize = 4 * 1024
	DefaultFileChunkSize   = 8 * 1024

	// MaxErrorExcerptSize caps how much attacker supplied data is copied into
	// errors and logs.
	MaxErrorExcerptSize = 1024
)

// Handler turns a request into a response. A returned error, or a panic,
// is converted to a 500 response by the connection handler.
type Handler func(req *Request) (*Response, error)

type Verb string

const (
	VerbNone    Verb = ""
	VerbGet     Verb = "GET"
	VerbHead    Verb = "HEAD"
	VerbPost    Verb = "POST"
	VerbPut     Verb = "PUT"
	VerbPatch   Verb = "PATCH"
	VerbDelete  Verb = "DELETE"
	VerbOptions Verb = "OPTIONS"
)

var knownVerbs = map[string]Verb{
	"GET":     VerbGet,
	"HEAD":    VerbHead,
	"POST":    VerbPost,
	"PUT":     VerbPut,
	"PATCH":   VerbPatch,
	"DELETE":  VerbDelete,
	"OPTIONS": VerbOptions,
}

type Version uint8

const (
	VersionNone Version = iota
	Version10
	Version11
)

func (v Version) String() string {
	switch v {
	case Version10:
		return "HTTP/1.0"
	case Version11:
		return "HTTP/1.1"
	default:
		return "NONE"
	}
}

var (
	crlf = []byte("\r\n")

	headerContentLength    = "content-length"
	headerContentType      = "content-type"
	headerTransferEncoding = "transfer-encoding"
	headerConnection       = "connection"
	headerContentDisp      = "content-disposition"

	contentTypeURLEncoded = "application/x-www-form-urlencoded"
	contentTypeMultipart  = "multipart/form-data"
)
