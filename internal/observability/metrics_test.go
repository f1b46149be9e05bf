package observability

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNilMetricsAreNoops(t *testing.T) {
	var m *Metrics
	m.ObservePhase("reconcile", "ok", time.Second)
	m.ObserveReconcileBatch("ok", 10, 2)
	m.AddCompaniesInserted(3)
	m.IncMediaImage("post_image", "copied")
	m.ObserveClassification("timed_out", time.Second)
	m.ObserveLLMRequest("m", "/v1/responses", "200", time.Second, 1, 1)
	m.IncApifyRequest("runs", "201")
	m.IncIngestImage("uploaded")
	assert.Nil(t, m.Registry())
}

func TestCountersAccumulate(t *testing.T) {
	m := New()

	m.ObserveReconcileBatch("ok", 50, 7)
	m.ObserveReconcileBatch("failed", 50, 0)
	m.ObserveClassification("construction", 2*time.Second)
	m.ObserveClassification("construction", time.Second)
	m.ObserveLLMRequest("gpt-4o-mini", "/v1/responses", "200", time.Second, 100, 20)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.reconcileBatches.WithLabelValues("failed")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.reconcileCandidates))
	assert.Equal(t, 7.0, testutil.ToFloat64(m.reconcileMatches))
	assert.Equal(t, 2.0, testutil.ToFloat64(m.classifyImages.WithLabelValues("construction")))
	assert.Equal(t, 100.0, testutil.ToFloat64(m.llmTokens.WithLabelValues("gpt-4o-mini", "input")))
}

func TestHandlerExposesMetrics(t *testing.T) {
	m := New()
	m.AddCompaniesInserted(4)

	srv := httptest.NewServer(m.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, strings.Contains(string(body), "cs_companies_inserted_total 4"))
}
