package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestAdInteractionsCounter(t *testing.T) {
	before := testutil.ToFloat64(AdInteractions.WithLabelValues("CLICK"))
	AdInteractions.WithLabelValues("CLICK").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(AdInteractions.WithLabelValues("CLICK")))
}

func TestSchedulerActiveJobsGauge(t *testing.T) {
	SchedulerActiveJobs.WithLabelValues("once").Set(3)
	assert.Equal(t, float64(3), testutil.ToFloat64(SchedulerActiveJobs.WithLabelValues("once")))
}
