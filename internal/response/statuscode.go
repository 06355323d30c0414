package response

// Kind classifies how a request was resolved. Every response the server can
// produce maps to exactly one kind. TemporaryRedirect and PermanentRedirect
// both carry code 307 and differ only in reason text.
type Kind int

const (
	OK Kind = iota
	TemporaryRedirect
	PermanentRedirect
	BadRequest
	URITooLong
	NotFound
)

// StatusText returns the fixed "<code> <REASON>" text for k. The reason
// phrases are uppercase per the wire format this server commits to, and the
// text doubles as the fallback response body.
func (k Kind) StatusText() string {
	switch k {
	case OK:
		return "200 OK"
	case TemporaryRedirect:
		return "307 TEMPORARY REDIRECT"
	case PermanentRedirect:
		return "307 PERMANENT REDIRECT"
	case BadRequest:
		return "400 BAD REQUEST"
	case URITooLong:
		return "414 REQUEST-URI TOO LONG"
	case NotFound:
		return "404 NOT FOUND"
	default:
		return "500 INTERNAL SERVER ERROR"
	}
}

// String is the lowercase name used in logs and metric labels.
func (k Kind) String() string {
	switch k {
	case OK:
		return "ok"
	case TemporaryRedirect:
		return "temporary_redirect"
	case PermanentRedirect:
		return "permanent_redirect"
	case BadRequest:
		return "bad_request"
	case URITooLong:
		return "uri_too_long"
	case NotFound:
		return "not_found"
	default:
		return "unknown"
	}
}
