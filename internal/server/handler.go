package server

import (
	"errors"
	"io"
	"net"
	"strings"
	"time"

	"github.com/Jojodicus/lisho/internal/headers"
	"github.com/Jojodicus/lisho/internal/metrics"
	"github.com/Jojodicus/lisho/internal/pages"
	"github.com/Jojodicus/lisho/internal/request"
	"github.com/Jojodicus/lisho/internal/response"
)

const (
	contentTypeHTML = "text/html; charset=utf-8"
	contentTypeCSS  = "text/css; charset=utf-8"
)

// handle walks one connection through its states: read the request line,
// drain the headers, route, respond, hang up. Every path out of here writes
// at most one response.
func (s *Server) handle(conn net.Conn) {
	defer conn.Close()

	if err := conn.SetDeadline(time.Now().Add(s.opts.ReadTimeout)); err != nil {
		s.log.Debug("setting deadline", "error", err)
	}

	w := response.NewWriter(conn)

	req, err := request.FromReader(conn, s.opts.MaxRequestLineBytes)
	switch {
	case err == nil:
	case errors.Is(err, io.EOF):
		// connected and left without a byte; not worth a log line
		return
	case errors.Is(err, request.ErrLineTooLong):
		s.respond(w, response.URITooLong, response.DefaultHeaders(), nil)
		return
	case errors.Is(err, request.ErrMalformedLine):
		s.respond(w, response.BadRequest, response.DefaultHeaders(), nil)
		return
	default:
		// timeout, reset, or a peer that quit mid-line: no response to
		// write, nobody is listening for one
		s.log.Debug("connection abandoned", "error", err)
		s.opts.Metrics.ObserveRequest("abandoned")
		return
	}

	kind, h, body := s.route(req.RequestLine)
	s.respond(w, kind, h, body)
}

func (s *Server) respond(w *response.Writer, kind response.Kind, h headers.Headers, body []byte) {
	if err := w.Send(kind, h, body); err != nil {
		s.log.Debug("writing response", "error", err)
	}
	s.opts.Metrics.ObserveRequest(kind.String())
}

// route resolves a parsed request line to a response. The store wins over
// everything: a token someone registered shadows the built-in pages of the
// same name. Only exact "GET" exists here; any other method token is a
// thing this server does not have, hence 404 and never 405.
func (s *Server) route(rl request.RequestLine) (response.Kind, headers.Headers, []byte) {
	h := response.DefaultHeaders()

	if rl.Method != "GET" {
		return response.NotFound, h, nil
	}

	token := strings.TrimPrefix(rl.RequestTarget, "/")

	if url, ok := s.store.Get(token); ok {
		s.log.Info("token requested", "token", token, "url", url)
		s.opts.Metrics.ObserveHit()

		kind := response.TemporaryRedirect
		if s.opts.AllowClientCache {
			kind = response.PermanentRedirect
		}
		h.Set("Location", url)
		h.Set("Content-Type", contentTypeHTML)
		return kind, h, []byte(pages.RenderRedirect(token, url))
	}

	switch rl.RequestTarget {
	case "/", "/index.html":
		h.Set("Content-Type", contentTypeHTML)
		return response.OK, h, []byte(pages.Index())
	case "/style.css":
		h.Set("Content-Type", contentTypeCSS)
		return response.OK, h, []byte(pages.StyleSheet())
	case "/metrics":
		if s.opts.Metrics != nil {
			return s.renderMetrics(h)
		}
	}

	h.Set("Content-Type", contentTypeHTML)
	return response.NotFound, h, []byte(pages.RenderNotFound(token))
}

func (s *Server) renderMetrics(h headers.Headers) (response.Kind, headers.Headers, []byte) {
	body, err := s.opts.Metrics.Render()
	if err != nil {
		// a gather failure is a bug in the collectors, not in the request
		s.log.Warn("rendering metrics", "error", err)
		h.Set("Content-Type", contentTypeHTML)
		return response.NotFound, h, []byte(pages.RenderNotFound("metrics"))
	}
	h.Set("Content-Type", metrics.ContentType())
	return response.OK, h, body
}
