// Package headers holds the header set attached to outgoing responses and
// the consumer that discards incoming header blocks. Request headers are
// never interpreted: the server reads them off the wire so the peer can
// finish its request, then drops them.
package headers

import (
	"bytes"
	"strings"
)

const crlf = "\r\n"

// Headers is an unordered name/value set built fresh for every response.
// Keys are stored lowercase; the response writer canonicalizes them on the
// wire. Iteration order carries no meaning.
type Headers map[string]string

func NewHeaders() Headers {
	return map[string]string{}
}

// Skip consumes header lines from data without interpreting them. It
// returns how many bytes were consumed and whether the empty line ending
// the block was reached. n == 0 with done == false means data holds no
// complete line yet and more bytes are needed.
func Skip(data []byte) (n int, done bool) {
	for {
		idx := bytes.Index(data[n:], []byte(crlf))
		if idx == -1 {
			return n, false
		}
		n += idx + len(crlf)
		if idx == 0 {
			return n, true
		}
	}
}

// Set adds a value under key, joining repeated keys with a comma.
func (h Headers) Set(key, value string) {
	key = strings.ToLower(key)
	if _, ok := h[key]; ok {
		h[key] += ", " + value
		return
	}
	h[key] = value
}

// SetNew replaces any existing value under key.
func (h Headers) SetNew(key, value string) {
	h[strings.ToLower(key)] = value
}

func (h Headers) Get(key string) string {
	return h[strings.ToLower(key)]
}

func (h Headers) Del(key string) {
	delete(h, strings.ToLower(key))
}
