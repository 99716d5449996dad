package metrics

import (
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserveStep(t *testing.T) {
	m := New()

	m.ObserveStep("search", 1, errors.New("timed out"))
	m.ObserveStep("search", 2, nil)
	m.ObserveStep("next_page", 1, nil)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepAttempts.WithLabelValues("search", "failure")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepAttempts.WithLabelValues("search", "success")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.StepAttempts.WithLabelValues("next_page", "success")))
}

func TestObservePage(t *testing.T) {
	m := New()

	m.ObservePage(10, 1)
	m.ObservePage(8, 0)

	assert.Equal(t, 2.0, testutil.ToFloat64(m.PagesExtracted))
	assert.Equal(t, 18.0, testutil.ToFloat64(m.RecordsExtracted))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.RecordsDropped))
}

func TestObserveCrawl(t *testing.T) {
	m := New()

	m.ObserveCrawl("policy", 2, 20, 3*time.Second)
	m.ObserveCrawl("failed", 0, 0, time.Second)

	assert.Equal(t, 1.0, testutil.ToFloat64(m.Crawls.WithLabelValues("policy")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Crawls.WithLabelValues("failed")))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.LastCrawlRecords))
	assert.Equal(t, 1, testutil.CollectAndCount(m.CrawlDuration))
}

// TestRegistriesAreIndependent verifies two instances never share state
func TestRegistriesAreIndependent(t *testing.T) {
	a, b := New(), New()
	a.ObservePage(5, 0)

	assert.Equal(t, 1.0, testutil.ToFloat64(a.PagesExtracted))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.PagesExtracted))
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObservePage(3, 0)

	server := httptest.NewServer(m.Handler())
	defer server.Close()

	resp, err := http.Get(server.URL)
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "newscrawl_records_extracted_total 3")
	assert.Contains(t, string(body), "go_goroutines")
}
