package metrics

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInit(t *testing.T) {
	// Call Init multiple times to test idempotency.
	Init()
	Init()

	require.NotNil(t, crawlerURLsTotal)
	require.NotNil(t, crawlerFetchAttemptsTotal)
	require.NotNil(t, crawlerRobotsFetchesTotal)
	require.NotNil(t, crawlerPolitenessWaitSeconds)
}

func TestObserveHelpers(t *testing.T) {
	Init()
	before := testutil.ToFloat64(crawlerURLsTotal.WithLabelValues("article"))
	ObserveURL("article")
	assert.Equal(t, before+1, testutil.ToFloat64(crawlerURLsTotal.WithLabelValues("article")))

	beforeAttempt := testutil.ToFloat64(crawlerFetchAttemptsTotal.WithLabelValues("light", "transient"))
	ObserveAttempt("light", "transient")
	assert.Equal(t, beforeAttempt+1, testutil.ToFloat64(crawlerFetchAttemptsTotal.WithLabelValues("light", "transient")))

	beforeRobots := testutil.ToFloat64(crawlerRobotsFetchesTotal.WithLabelValues("404"))
	ObserveRobotsFetch("404")
	assert.Equal(t, beforeRobots+1, testutil.ToFloat64(crawlerRobotsFetchesTotal.WithLabelValues("404")))

	ObserveFetchDuration("rendered", 250*time.Millisecond)
	ObservePolitenessWait(time.Second)
	ObserveArchive("gcs", "ok")
	assert.Positive(t, testutil.CollectAndCount(crawlerFetchDurationSeconds))
	assert.Equal(t, 1, testutil.CollectAndCount(crawlerPolitenessWaitSeconds))
}

func TestRouterServesHealthAndMetrics(t *testing.T) {
	ts := httptest.NewServer(NewRouter(nil))
	defer ts.Close()

	resp, err := http.Get(ts.URL + "/healthz")
	require.NoError(t, err)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "ok", string(body))

	ObserveURL("blocked")
	resp, err = http.Get(ts.URL + "/metrics")
	require.NoError(t, err)
	body, err = io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Contains(t, string(body), "crawler_urls_total")

	resp, err = http.Get(ts.URL + "/nope")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "200")), float64(2))
	assert.GreaterOrEqual(t, testutil.ToFloat64(httpRequestsTotal.WithLabelValues("GET", "404")), float64(1))
}

func TestStartAndClose(t *testing.T) {
	srv, err := Start("127.0.0.1:0", nil)
	require.NoError(t, err)

	resp, err := http.Get("http://" + srv.Addr() + "/healthz")
	require.NoError(t, err)
	require.NoError(t, resp.Body.Close())
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	require.NoError(t, srv.Close(ctx))
}
