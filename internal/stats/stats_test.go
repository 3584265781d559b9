package stats

import (
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewStatsUpdater(t *testing.T) {
	mux := http.NewServeMux()
	su := NewStatsUpdater(mux)
	assert.NotNil(t, su, "expected StatsUpdater to be non-nil")
	assert.NotNil(t, su.registry, "expected registry to be initialized")
	handler, pattern := mux.Handler(&http.Request{URL: &url.URL{Path: "/metrics"}, Method: http.MethodGet})
	assert.NotNil(t, handler, "expected handler for /metrics to be set")
	assert.Equal(t, "GET /metrics", pattern, "expected handler to be registered for GET method on /metrics")
}

func TestIncrDecr(t *testing.T) {
	su := NewStatsUpdater(nil)

	su.Incr(ChannelsOpen)
	su.Incr(ChannelsOpen)
	su.Decr(ChannelsOpen)
	assert.Equal(t, float64(1), su.Value(ChannelsOpen), "expected gauge to reflect increments and decrements")

	su.Incr("custom_metric")
	assert.Equal(t, float64(1), su.Value("custom_metric"), "expected unregistered metric to be created on first use")
	assert.Equal(t, float64(0), su.Value("never_used"), "expected unknown metric to read as zero")
}

func TestHandlerExposesMetrics(t *testing.T) {
	su := NewStatsUpdater(nil)
	su.Incr(FramesReceived)

	srv := httptest.NewServer(su.Handler())
	defer srv.Close()

	resp, err := http.Get(srv.URL)
	require.NoError(t, err)
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "chatclient_frames_received_total 1", "expected metric in exposition output")
}
