package metrics

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestTimerObserveDuration(t *testing.T) {
	timer := NewTimer()
	time.Sleep(time.Millisecond)
	assert.Greater(t, timer.Duration(), time.Duration(0))

	assert.NotPanics(t, func() {
		timer.ObserveDuration(SupervisorActivationDuration)
	})
}

func TestHandlerNotNil(t *testing.T) {
	assert.NotNil(t, Handler())
}

func TestTaskOutcomesTotalLabels(t *testing.T) {
	TaskOutcomesTotal.WithLabelValues("success").Inc()
	TaskOutcomesTotal.WithLabelValues("failure").Inc()
	TaskOutcomesTotal.WithLabelValues("cancelled").Inc()
}
