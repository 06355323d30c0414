// Package request reads one HTTP/1.1 request off a raw TCP stream: a
// size-capped request line, then the header block, which is drained without
// interpretation. Request bodies are not part of the protocol subset this
// server speaks.
package request

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode/utf8"

	"github.com/Jojodicus/lisho/internal/headers"
)

const (
	crlf = "\r\n"

	// readChunkSize is the fixed slice of the connection pulled per read
	// while accumulating the request line.
	readChunkSize = 128

	// DefaultMaxLineBytes caps the request line when no limit is
	// configured. The cap is always in force; configuration rejects zero
	// rather than treating it as unbounded.
	DefaultMaxLineBytes = 8192
)

var (
	// ErrLineTooLong marks a request line that reached the length cap, or
	// one whose newline never arrived as part of a CRLF pair. Callers
	// answer it with 414.
	ErrLineTooLong = errors.New("request line too long")

	// ErrMalformedLine marks a request line that is not UTF-8 text, hides
	// extra CR or LF bytes, or does not split into exactly three tokens.
	// Callers answer it with 400.
	ErrMalformedLine = errors.New("malformed request line")
)

type Request struct {
	RequestLine RequestLine
}

// RequestLine is the first line of the request, split on single spaces.
// Nothing beyond the three-token shape is validated here: the router
// decides what to make of the method, and the version token is kept only
// for completeness.
type RequestLine struct {
	HttpVersion   string
	RequestTarget string
	Method        string
}

// FromReader reads one request off r. maxLineBytes caps the request line;
// values below one fall back to DefaultMaxLineBytes.
//
// io.EOF is returned only when the peer closed without sending a byte, so
// callers can drop such connections silently. io.ErrUnexpectedEOF means the
// peer quit mid-line; like timeouts, it warrants no response at all.
func FromReader(r io.Reader, maxLineBytes int) (*Request, error) {
	if maxLineBytes < 1 {
		maxLineBytes = DefaultMaxLineBytes
	}

	raw, err := readLine(r, maxLineBytes)
	if err != nil {
		return nil, err
	}

	rl, consumed, err := ParseRequestLine(raw)
	if err != nil {
		return nil, err
	}

	if err := drainHeaders(r, raw[consumed:]); err != nil {
		return nil, err
	}

	return &Request{RequestLine: *rl}, nil
}

// ParseRequestLine parses accumulated request bytes up to the first CRLF.
// It returns the parsed line and how many bytes it consumed, terminator
// included; anything past that belongs to the header block.
//
// A newline that is present but never preceded by a carriage return means
// the line ran on without terminating, which reads as ErrLineTooLong, not
// as a malformed line.
func ParseRequestLine(data []byte) (*RequestLine, int, error) {
	if !utf8.Valid(data) {
		return nil, 0, fmt.Errorf("%w: not valid UTF-8", ErrMalformedLine)
	}

	s := string(data)
	idx := strings.Index(s, crlf)
	if idx == -1 {
		return nil, 0, ErrLineTooLong
	}

	line := s[:idx]
	if strings.ContainsAny(line, "\r\n") {
		return nil, 0, fmt.Errorf("%w: stray CR or LF before terminator", ErrMalformedLine)
	}

	parts := strings.Split(line, " ")
	if len(parts) != 3 {
		return nil, 0, fmt.Errorf("%w: %d tokens", ErrMalformedLine, len(parts))
	}

	return &RequestLine{
		Method:        parts[0],
		RequestTarget: parts[1],
		HttpVersion:   parts[2],
	}, idx + len(crlf), nil
}

// readLine accumulates fixed-size chunks until a newline byte shows up or
// the accumulated length reaches max. A newline arriving in the same chunk
// that crosses the cap wins over the cap. The returned bytes may run past
// the newline; the parser decides where the line actually ends.
func readLine(r io.Reader, max int) ([]byte, error) {
	var acc []byte
	buf := make([]byte, readChunkSize)

	for {
		if bytes.IndexByte(acc, '\n') != -1 {
			return acc, nil
		}
		if len(acc) >= max {
			return nil, ErrLineTooLong
		}

		n, err := r.Read(buf)
		acc = append(acc, buf[:n]...)

		if err != nil {
			if errors.Is(err, io.EOF) {
				if len(acc) == 0 {
					return nil, io.EOF
				}
				if bytes.IndexByte(acc, '\n') != -1 {
					return acc, nil
				}
				return nil, io.ErrUnexpectedEOF
			}
			return nil, err
		}
	}
}

// drainHeaders consumes the header block up to and including the empty
// line, starting from whatever the line reader over-read. EOF before the
// empty line counts as the end of the block: the peer has said everything
// it is going to, and the response can still go out.
func drainHeaders(r io.Reader, rest []byte) error {
	acc := rest
	buf := make([]byte, readChunkSize)

	for {
		n, done := headers.Skip(acc)
		if done {
			return nil
		}
		acc = acc[n:]

		rn, err := r.Read(buf)
		if rn > 0 {
			acc = append(acc, buf[:rn]...)
		}
		if err != nil {
			if errors.Is(err, io.EOF) {
				return nil
			}
			return err
		}
	}
}
