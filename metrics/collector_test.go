package metrics

import (
	"io"
	"net/http/httptest"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/use-agent/placafipe/models"
)

type stubSessions struct{ stats models.SessionStats }

func (s stubSessions) Stats() models.SessionStats { return s.stats }

func gather(t *testing.T, c *Collector) map[string]*dto.MetricFamily {
	t.Helper()
	families, err := c.Registry().Gather()
	require.NoError(t, err)
	out := make(map[string]*dto.MetricFamily, len(families))
	for _, f := range families {
		out[f.GetName()] = f
	}
	return out
}

func labels(m *dto.Metric) map[string]string {
	out := map[string]string{}
	for _, l := range m.GetLabel() {
		out[l.GetName()] = l.GetValue()
	}
	return out
}

func TestObserveLookup(t *testing.T) {
	c := NewCollector("placafipe", nil)
	c.ObserveLookup(models.OutcomeSuccess, "browser", 2*time.Second, 1)
	c.ObserveLookup(models.OutcomeSuccess, "browser", time.Second, 2)
	c.ObserveLookup(string(models.KindNotFound), "", time.Second, 1)
	c.ObserveLookup(string(models.KindInvalidInput), "", 0, 0)

	fams := gather(t, c)

	total := fams["placafipe_lookups_total"]
	require.NotNil(t, total)
	counts := map[string]float64{}
	for _, m := range total.GetMetric() {
		counts[labels(m)["outcome"]] += m.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"SUCCESS":       2,
		"NOT_FOUND":     1,
		"INVALID_INPUT": 1,
	}, counts)

	attempts := fams["placafipe_lookup_attempts"]
	require.NotNil(t, attempts)
	assert.Equal(t, uint64(3), attempts.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestObserveHTTP(t *testing.T) {
	c := NewCollector("placafipe", nil)
	c.ObserveHTTP("GET", "/consultar/:placa", 200, 10*time.Millisecond)
	c.ObserveHTTP("GET", "/consultar/:placa", 404, 10*time.Millisecond)

	fams := gather(t, c)
	family := fams["placafipe_http_requests_total"]
	require.NotNil(t, family)
	require.Len(t, family.GetMetric(), 2)
	for _, m := range family.GetMetric() {
		assert.Equal(t, "/consultar/:placa", labels(m)["route"])
	}
}

func TestSessionGauges(t *testing.T) {
	c := NewCollector("placafipe", stubSessions{models.SessionStats{
		OpenContexts: 3, MaxContexts: 4, Launches: 2, LaunchFailures: 1,
	}})

	fams := gather(t, c)
	assert.Equal(t, 3.0, fams["placafipe_browser_contexts_open"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 4.0, fams["placafipe_browser_contexts_max"].GetMetric()[0].GetGauge().GetValue())
	assert.Equal(t, 2.0, fams["placafipe_browser_launches_total"].GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, fams["placafipe_browser_launch_failures_total"].GetMetric()[0].GetCounter().GetValue())
}

func TestHandlerServesExposition(t *testing.T) {
	c := NewCollector("placafipe", nil)
	c.ObserveLookup(models.OutcomeSuccess, "http", time.Second, 1)

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))

	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Equal(t, 200, rec.Code)
	assert.Contains(t, string(body), `placafipe_lookups_total{outcome="SUCCESS",source="http"} 1`)
	assert.Contains(t, string(body), "go_goroutines")
}

func TestCollectorsAreIndependent(t *testing.T) {
	a := NewCollector("placafipe", nil)
	b := NewCollector("placafipe", nil)
	a.ObserveLookup(models.OutcomeSuccess, "browser", time.Second, 1)

	_, ok := gather(t, b)["placafipe_lookups_total"]
	assert.False(t, ok, "an untouched vector has no samples")
}
