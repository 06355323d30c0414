package response

import (
	"bufio"
	"fmt"
	"io"
	"sort"

	"github.com/Jojodicus/lisho/internal/headers"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

type writerState int

const (
	stateWritingStatusLine writerState = iota
	stateWritingHeaders
	stateWritingBody
	stateDone
)

// Writer emits exactly one response in wire order. Calling the phases out
// of order is a programming error and gets refused, which keeps a bug from
// ever producing a half-framed response.
type Writer struct {
	writer *bufio.Writer
	state  writerState
}

func NewWriter(w io.Writer) *Writer {
	return &Writer{
		writer: bufio.NewWriter(w),
		state:  stateWritingStatusLine,
	}
}

func (w *Writer) WriteStatusLine(kind Kind) error {
	if w.state != stateWritingStatusLine {
		return fmt.Errorf("writer state out-of-order")
	}

	if _, err := w.writer.WriteString(httpVersion + " " + kind.StatusText() + "\r\n"); err != nil {
		return err
	}

	w.state = stateWritingHeaders
	return nil
}

// WriteHeaders writes h in sorted key order, so identical header sets come
// out as identical bytes, then the Content-Length derived from bodyLen,
// then the blank line. A Content-Length smuggled into h is dropped; the
// derived one is the only truth.
func (w *Writer) WriteHeaders(h headers.Headers, bodyLen int) error {
	if w.state != stateWritingHeaders {
		return fmt.Errorf("writer state out-of-order")
	}

	keys := make([]string, 0, len(h))
	for k := range h {
		if k == "content-length" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	caser := cases.Title(language.English)
	for _, k := range keys {
		if _, err := w.writer.WriteString(caser.String(k) + ": " + h[k] + "\r\n"); err != nil {
			return err
		}
	}
	if _, err := fmt.Fprintf(w.writer, "Content-Length: %d\r\n\r\n", bodyLen); err != nil {
		return err
	}

	w.state = stateWritingBody
	return nil
}

func (w *Writer) WriteBody(p []byte) (int, error) {
	if w.state != stateWritingBody {
		return 0, fmt.Errorf("writer state out-of-order")
	}

	w.state = stateDone
	return w.writer.Write(p)
}

// Send writes a complete response and flushes it to the connection. An
// empty body is replaced by the kind's status text, so every error reply
// says on the wire what it is.
func (w *Writer) Send(kind Kind, h headers.Headers, body []byte) error {
	if len(body) == 0 {
		body = []byte(kind.StatusText())
	}

	if err := w.WriteStatusLine(kind); err != nil {
		return err
	}
	if err := w.WriteHeaders(h, len(body)); err != nil {
		return err
	}
	if _, err := w.WriteBody(body); err != nil {
		return err
	}

	return w.writer.Flush()
}
