package metrics

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRender(t *testing.T) {
	m := New()

	m.ObserveRequest("ok")
	m.ObserveRequest("not_found")
	m.ObserveRequest("not_found")
	m.ObserveHit()
	m.ObserveReload(true, 7)
	m.ObserveReload(false, 0)

	out, err := m.Render()
	require.NoError(t, err)
	text := string(out)

	assert.Contains(t, text, `lisho_requests_total{outcome="ok"} 1`)
	assert.Contains(t, text, `lisho_requests_total{outcome="not_found"} 2`)
	assert.Contains(t, text, "lisho_token_hits_total 1")
	assert.Contains(t, text, `lisho_store_reloads_total{result="ok"} 1`)
	assert.Contains(t, text, `lisho_store_reloads_total{result="error"} 1`)
	assert.Contains(t, text, "lisho_store_links 7")

	// exposition format basics: HELP and TYPE lines are present
	assert.Contains(t, text, "# HELP lisho_requests_total")
	assert.Contains(t, text, "# TYPE lisho_requests_total counter")
}

func TestSetLinks(t *testing.T) {
	m := New()
	m.SetLinks(3)

	out, err := m.Render()
	require.NoError(t, err)
	assert.Contains(t, string(out), "lisho_store_links 3")
}

func TestNilMetricsAreNoOps(t *testing.T) {
	var m *Metrics

	// must not panic
	m.ObserveRequest("ok")
	m.ObserveHit()
	m.ObserveReload(true, 1)
	m.SetLinks(1)
}

func TestContentType(t *testing.T) {
	assert.True(t, strings.HasPrefix(ContentType(), "text/plain"))
}
