package metrics

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestCounters(t *testing.T) {
	m := New()
	m.Pull("divine")
	m.Pull("divine")
	m.PityTrigger("hard")
	m.Income("passive", 3750)
	m.ObserveBatch(time.Now(), "insufficient_funds")

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Pulls.WithLabelValues("divine")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.PityTriggers.WithLabelValues("hard")))
	assert.Equal(t, 3750.0, testutil.ToFloat64(m.IncomeGranted.WithLabelValues("passive")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.BatchFailures.WithLabelValues("insufficient_funds")))
}

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	assert.NotPanics(t, func() {
		m.Pull("common")
		m.ObserveBatch(time.Now(), "")
		m.StorageError("pull")
		m.HTTP("/v1/pulls", 200, time.Millisecond)
	})
}
