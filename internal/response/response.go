// Package response assembles HTTP/1.1 responses byte by byte: status line,
// headers, a derived Content-Length, a blank line, and the body verbatim.
// There is no chunking and no keep-alive.
package response

import (
	"github.com/Jojodicus/lisho/internal/headers"
)

const httpVersion = "HTTP/1.1"

// DefaultHeaders is the header set every response starts from. The server
// hangs up after one exchange, and says so. Nothing volatile (no Date)
// belongs here: two identical requests must produce identical bytes.
func DefaultHeaders() headers.Headers {
	h := headers.NewHeaders()
	h.Set("Connection", "close")

	return h
}
