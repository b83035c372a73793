package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(redeemTotal.WithLabelValues("already_used"))
	IncRedeem(" Already_Used ")
	assert.Equal(t, before+1, testutil.ToFloat64(redeemTotal.WithLabelValues("already_used")))

	before = testutil.ToFloat64(ingestTotal.WithLabelValues("created"))
	IncIngest("created")
	assert.Equal(t, before+1, testutil.ToFloat64(ingestTotal.WithLabelValues("created")))

	before = testutil.ToFloat64(notifyTotal.WithLabelValues("dropped"))
	IncNotify("dropped")
	assert.Equal(t, before+1, testutil.ToFloat64(notifyTotal.WithLabelValues("dropped")))
}

func TestSetCodes(t *testing.T) {
	SetCodes(7, 3)
	assert.Equal(t, 7.0, testutil.ToFloat64(codesGauge.WithLabelValues("unused")))
	assert.Equal(t, 3.0, testutil.ToFloat64(codesGauge.WithLabelValues("used")))
}

func TestObserveHTTP(t *testing.T) {
	ObserveHTTP("GET", "", 404, 5*time.Millisecond)
	assert.Equal(t, 1, testutil.CollectAndCount(httpDuration))
}

func TestMustRegisterIsIdempotent(t *testing.T) {
	assert.NotPanics(t, func() {
		MustRegister()
		MustRegister()
	})
}
