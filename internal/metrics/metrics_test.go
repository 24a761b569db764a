package metrics

import (
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecorderCounts(t *testing.T) {
	r := New()
	r.RecordProviderRequest("1Min", 10*time.Millisecond)
	r.RecordProviderRequest("1Min", 10*time.Millisecond)
	r.RecordProviderRetry()
	r.RecordSynthetic(KindGap, 3)
	r.RecordSynthetic(KindBackfill, 0)
	r.RecordTick()

	assert.Equal(t, 2.0, testutil.ToFloat64(r.providerReqs.WithLabelValues("1Min")))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.providerRetries))
	assert.Equal(t, 3.0, testutil.ToFloat64(r.syntheticBars.WithLabelValues(KindGap)))
	assert.Equal(t, 1.0, testutil.ToFloat64(r.ticks))
}

func TestNilRecorderIsNoop(t *testing.T) {
	var r *Recorder
	r.RecordProviderRequest("5Min", time.Second)
	r.RecordProviderRetry()
	r.RecordSynthetic(KindPlaceholder, 2)
	r.RecordAssembly("5Min", 2)
	r.RecordTick()
	assert.Nil(t, r.Registry())
}

func TestHandlerExposesMetrics(t *testing.T) {
	r := New()
	r.RecordAssembly("15Min", 2)

	rec := httptest.NewRecorder()
	r.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	require.Equal(t, 200, rec.Code)
	assert.True(t, strings.Contains(rec.Body.String(), "barsim_assembly_pages"))
}
