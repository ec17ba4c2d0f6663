package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestObserve(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Observe("partition", time.Now(), nil)
	m.Observe("partition", time.Now(), nil)
	m.Observe("partition", time.Now(), errors.New("boom"))

	assert.Equal(t, 2.0, testutil.ToFloat64(m.Operations.WithLabelValues("partition", "ok")))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.Operations.WithLabelValues("partition", "error")))
	assert.Equal(t, 1, testutil.CollectAndCount(m.Duration))
}

func TestDust(t *testing.T) {
	m := New(prometheus.NewRegistry())

	m.Dust("rebalance", new(uint256.Int), new(uint256.Int))
	assert.Equal(t, 0.0, testutil.ToFloat64(m.DustReturned.WithLabelValues("rebalance")))

	m.Dust("rebalance", new(uint256.Int), uint256.NewInt(3))
	assert.Equal(t, 1.0, testutil.ToFloat64(m.DustReturned.WithLabelValues("rebalance")))
}

func TestNilMetrics(t *testing.T) {
	var m *Metrics
	require.NotPanics(t, func() {
		m.Observe("removal", time.Now(), nil)
		m.Dust("removal", uint256.NewInt(1))
	})
}

func TestNew_RegistersOnce(t *testing.T) {
	reg := prometheus.NewRegistry()
	New(reg)
	assert.Panics(t, func() { New(reg) })
}
