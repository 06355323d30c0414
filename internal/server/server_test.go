package server

import (
	"bytes"
	"io"
	"net"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Jojodicus/lisho/internal/metrics"
	"github.com/Jojodicus/lisho/internal/slogutil"
)

// fakeStore is a Store whose change signal and reload behavior the tests
// script. A mutex keeps it race-clean: the server drives it from the accept
// goroutine while tests poke it from theirs.
type fakeStore struct {
	mu         sync.Mutex
	links      map[string]string
	pending    map[string]string
	changed    bool
	refreshErr error
	refreshes  int
}

func newFakeStore(links map[string]string) *fakeStore {
	if links == nil {
		links = map[string]string{}
	}
	return &fakeStore{links: links}
}

func (f *fakeStore) HasChanged() (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.changed, nil
}

func (f *fakeStore) Refresh() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.refreshes++
	if f.refreshErr != nil {
		return f.refreshErr
	}
	if f.pending != nil {
		f.links = f.pending
		f.pending = nil
	}
	f.changed = false
	return nil
}

func (f *fakeStore) Len() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.links)
}

func (f *fakeStore) Get(token string) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.links[token]
	return url, ok
}

// stage queues a new mapping (or a failure) for the next reload check.
func (f *fakeStore) stage(pending map[string]string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pending = pending
	f.refreshErr = err
	f.changed = true
}

func (f *fakeStore) refreshCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.refreshes
}

func startServer(t *testing.T, st *fakeStore, opts Options) *Server {
	t.Helper()
	if opts.Logger == nil {
		opts.Logger = slogutil.NewDiscardLogger()
	}
	if opts.ReadTimeout == 0 {
		opts.ReadTimeout = 2 * time.Second
	}
	s, err := Serve("127.0.0.1:0", st, opts)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// roundTrip writes raw to a fresh connection and reads until the server
// hangs up.
func roundTrip(t *testing.T, addr net.Addr, raw string) string {
	t.Helper()
	conn, err := net.Dial("tcp", addr.String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte(raw))
	require.NoError(t, err)

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	return string(data)
}

// parseResponse splits a raw response and checks its Content-Length against
// the actual body.
func parseResponse(t *testing.T, raw string) (status string, hdr map[string]string, body string) {
	t.Helper()
	head, body, found := strings.Cut(raw, "\r\n\r\n")
	require.True(t, found, "no header/body separator in %q", raw)

	lines := strings.Split(head, "\r\n")
	require.NotEmpty(t, lines)
	status = lines[0]

	hdr = map[string]string{}
	for _, line := range lines[1:] {
		k, v, ok := strings.Cut(line, ": ")
		require.True(t, ok, "bad header line %q", line)
		hdr[k] = v
	}

	cl, err := strconv.Atoi(hdr["Content-Length"])
	require.NoError(t, err, "missing or bad Content-Length")
	require.Equal(t, cl, len(body), "Content-Length disagrees with body")
	return status, hdr, body
}

func TestRedirectHit(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com/landing"})

	var logBuf bytes.Buffer
	logs := slogutil.NewLogger(&logBuf, "text", "info")
	s := startServer(t, st, Options{Logger: logs})

	raw := roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\nHost: localhost\r\n\r\n")
	status, hdr, body := parseResponse(t, raw)

	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
	assert.Equal(t, "https://example.com/landing", hdr["Location"])
	assert.Equal(t, "close", hdr["Connection"])
	assert.Contains(t, body, "abc")
	assert.Contains(t, body, "https://example.com/landing")

	// the hit shows up in the log with its token
	assert.Contains(t, logBuf.String(), "token requested")
	assert.Contains(t, logBuf.String(), "abc")
}

func TestRedirectPermanentWhenClientCacheAllowed(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{AllowClientCache: true})

	raw := roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\n\r\n")
	status, hdr, _ := parseResponse(t, raw)

	assert.Equal(t, "HTTP/1.1 307 PERMANENT REDIRECT", status)
	assert.Equal(t, "https://example.com", hdr["Location"])
}

func TestMissEchoesToken(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{})

	raw := roundTrip(t, s.Addr(), "GET /missing HTTP/1.1\r\n\r\n")
	status, hdr, body := parseResponse(t, raw)

	assert.Equal(t, "HTTP/1.1 404 NOT FOUND", status)
	assert.Contains(t, body, "missing")
	assert.NotContains(t, hdr, "Location")
}

func TestMalformedRequestLines(t *testing.T) {
	s := startServer(t, newFakeStore(map[string]string{"abc": "https://example.com"}), Options{})

	for _, raw := range []string{
		"BADREQUESTLINE\r\n\r\n",
		"GET /abc\r\n\r\n",
		"GET /abc HTTP/1.1 extra\r\n\r\n",
		"GET  /abc HTTP/1.1\r\n\r\n",
		"GET /\xff\xfe HTTP/1.1\r\n\r\n",
	} {
		status, _, _ := parseResponse(t, roundTrip(t, s.Addr(), raw))
		assert.Equal(t, "HTTP/1.1 400 BAD REQUEST", status, "for %q", raw)
	}
}

func TestNonGETIsNotFoundNeverMethodNotAllowed(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{})

	for _, method := range []string{"POST", "HEAD", "DELETE", "get", "Get"} {
		raw := roundTrip(t, s.Addr(), method+" /abc HTTP/1.1\r\n\r\n")
		status, hdr, _ := parseResponse(t, raw)
		assert.Equal(t, "HTTP/1.1 404 NOT FOUND", status, "method %s", method)
		assert.NotContains(t, hdr, "Location", "method %s must not redirect", method)
	}
}

func TestOverlongRequestLine(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{MaxRequestLineBytes: 64})

	raw := roundTrip(t, s.Addr(), "GET /"+strings.Repeat("a", 500)+" HTTP/1.1\r\n\r\n")
	status, _, _ := parseResponse(t, raw)
	assert.Equal(t, "HTTP/1.1 414 REQUEST-URI TOO LONG", status)
}

func TestStaticPages(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{})

	for _, target := range []string{"/", "/index.html"} {
		status, hdr, body := parseResponse(t, roundTrip(t, s.Addr(), "GET "+target+" HTTP/1.1\r\n\r\n"))
		assert.Equal(t, "HTTP/1.1 200 OK", status, "target %s", target)
		assert.Equal(t, "text/html; charset=utf-8", hdr["Content-Type"])
		assert.Contains(t, body, "lisho")
	}

	status, hdr, body := parseResponse(t, roundTrip(t, s.Addr(), "GET /style.css HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Equal(t, "text/css; charset=utf-8", hdr["Content-Type"])
	assert.Contains(t, body, "body")
}

func TestStoreShadowsStaticPages(t *testing.T) {
	st := newFakeStore(map[string]string{"style.css": "https://example.com/elsewhere"})
	s := startServer(t, st, Options{})

	status, hdr, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /style.css HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
	assert.Equal(t, "https://example.com/elsewhere", hdr["Location"])
}

func TestIdenticalRequestsIdenticalResponses(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{})

	req := "GET /abc HTTP/1.1\r\nHost: localhost\r\n\r\n"
	first := roundTrip(t, s.Addr(), req)
	second := roundTrip(t, s.Addr(), req)
	assert.Equal(t, first, second, "responses must be byte-identical")
}

func TestReloadBetweenConnections(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{})

	status, _, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /new HTTP/1.1\r\n\r\n"))
	require.Equal(t, "HTTP/1.1 404 NOT FOUND", status)

	st.stage(map[string]string{"new": "https://example.net"}, nil)

	status, hdr, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /new HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
	assert.Equal(t, "https://example.net", hdr["Location"])
	assert.Equal(t, 1, st.refreshCount())
}

func TestFailedReloadKeepsServing(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{})

	st.stage(nil, io.ErrClosedPipe)

	status, hdr, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
	assert.Equal(t, "https://example.com", hdr["Location"])
	assert.GreaterOrEqual(t, st.refreshCount(), 1)
}

func TestSilentConnectionThenNextRequestWorks(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{})

	// connect and hang up without sending anything
	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.Close())

	status, _, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
}

func TestSlowClientGetsNoResponse(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{ReadTimeout: 100 * time.Millisecond})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	// send nothing; the server must hang up without writing a byte
	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, data)
}

func TestPartialLineThenEOFGetsNoResponse(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{})

	conn, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	require.NoError(t, conn.SetDeadline(time.Now().Add(5*time.Second)))

	_, err = conn.Write([]byte("GET /half"))
	require.NoError(t, err)
	require.NoError(t, conn.(*net.TCPConn).CloseWrite())

	data, err := io.ReadAll(conn)
	require.NoError(t, err)
	assert.Empty(t, data)
	conn.Close()
}

func TestMetricsEndpoint(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{Metrics: metrics.New()})

	_, _, _ = parseResponse(t, roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\n\r\n"))
	_, _, _ = parseResponse(t, roundTrip(t, s.Addr(), "GET /nope HTTP/1.1\r\n\r\n"))

	status, hdr, body := parseResponse(t, roundTrip(t, s.Addr(), "GET /metrics HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 200 OK", status)
	assert.Contains(t, hdr["Content-Type"], "text/plain")
	assert.Contains(t, body, "lisho_token_hits_total 1")
	assert.Contains(t, body, `lisho_requests_total{outcome="temporary_redirect"} 1`)
	assert.Contains(t, body, `lisho_requests_total{outcome="not_found"} 1`)
}

func TestMetricsDisabledIsAMiss(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{})

	status, _, body := parseResponse(t, roundTrip(t, s.Addr(), "GET /metrics HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 404 NOT FOUND", status)
	assert.Contains(t, body, "metrics")
}

func TestEmptyTargetToken(t *testing.T) {
	// "GET  HTTP/1.1" is three tokens with an empty target: a miss on the
	// empty token, not a parse error
	s := startServer(t, newFakeStore(nil), Options{})

	status, _, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET  HTTP/1.1\r\n\r\n"))
	assert.Equal(t, "HTTP/1.1 404 NOT FOUND", status)
}

func TestConnectionsServedOneAtATime(t *testing.T) {
	st := newFakeStore(map[string]string{"abc": "https://example.com"})
	s := startServer(t, st, Options{ReadTimeout: 300 * time.Millisecond})

	// a silent connection occupies the loop until its deadline
	blocker, err := net.Dial("tcp", s.Addr().String())
	require.NoError(t, err)
	defer blocker.Close()
	time.Sleep(50 * time.Millisecond)

	start := time.Now()
	status, _, _ := parseResponse(t, roundTrip(t, s.Addr(), "GET /abc HTTP/1.1\r\n\r\n"))
	elapsed := time.Since(start)

	assert.Equal(t, "HTTP/1.1 307 TEMPORARY REDIRECT", status)
	assert.Greater(t, elapsed, 100*time.Millisecond,
		"second connection must wait for the first one's deadline")
}

func TestCloseStopsAccepting(t *testing.T) {
	s := startServer(t, newFakeStore(nil), Options{})
	addr := s.Addr().String()

	require.NoError(t, s.Close())
	require.NoError(t, s.Close(), "closing twice is fine")

	_, err := net.DialTimeout("tcp", addr, 200*time.Millisecond)
	assert.Error(t, err)
}
