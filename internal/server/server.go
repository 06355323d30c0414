// Package server is the accept loop and the routing on top of it: one TCP
// connection in, one request read, one response written, connection closed.
// Connections are served strictly one at a time; the store swaps snapshots
// between connections and never needs a lock.
package server

import (
	"log/slog"
	"net"
	"sync/atomic"
	"time"

	"github.com/Jojodicus/lisho/internal/metrics"
	"github.com/Jojodicus/lisho/internal/store"
)

// DefaultReadTimeout bounds a whole exchange when no timeout is configured.
const DefaultReadTimeout = 500 * time.Millisecond

type Options struct {
	// ReadTimeout is the single deadline covering reading the request and
	// writing the response.
	ReadTimeout time.Duration

	// MaxRequestLineBytes caps the request line; zero means the request
	// package's default.
	MaxRequestLineBytes int

	// AllowClientCache answers hits with 307 PERMANENT REDIRECT instead
	// of 307 TEMPORARY REDIRECT.
	AllowClientCache bool

	// Metrics may be nil; then /metrics is a miss like any other.
	Metrics *metrics.Metrics

	Logger *slog.Logger
}

type Server struct {
	listener    net.Listener
	store       store.Store
	opts        Options
	log         *slog.Logger
	isListening atomic.Bool
}

// Serve binds addr and starts accepting. A failed bind comes back
// immediately; there is nothing sensible to retry at this layer.
func Serve(addr string, st store.Store, opts Options) (*Server, error) {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	if opts.ReadTimeout <= 0 {
		opts.ReadTimeout = DefaultReadTimeout
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}

	s := &Server{
		listener: listener,
		store:    st,
		opts:     opts,
		log:      opts.Logger,
	}
	s.isListening.Store(true)
	go s.listen()

	return s, nil
}

// Addr is the bound address, useful when addr was ":0".
func (s *Server) Addr() net.Addr {
	return s.listener.Addr()
}

func (s *Server) Close() error {
	if !s.isListening.CompareAndSwap(true, false) {
		return nil
	}

	if s.listener != nil {
		return s.listener.Close()
	}

	return nil
}

func (s *Server) listen() {
	for {
		conn, err := s.listener.Accept()
		if err != nil {
			if !s.isListening.Load() {
				return
			}
			s.log.Error("accepting connection", "error", err)
			continue
		}

		// reload check first, then the request: an edit made before this
		// connection is always visible to it
		s.checkReload()
		s.handle(conn)
	}
}

// checkReload swaps in a fresh snapshot when the store's backing data
// moved. Either step may fail; both failures leave the served mapping
// exactly as it was.
func (s *Server) checkReload() {
	changed, err := s.store.HasChanged()
	if err != nil {
		s.log.Debug("store change check failed", "error", err)
		return
	}
	if !changed {
		return
	}

	if err := s.store.Refresh(); err != nil {
		s.log.Warn("store reload failed, keeping previous mapping", "error", err)
		s.opts.Metrics.ObserveReload(false, 0)
		return
	}

	s.log.Info("store reloaded", "links", s.store.Len())
	s.opts.Metrics.ObserveReload(true, s.store.Len())
}
