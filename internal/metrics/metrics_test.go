package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	require.NoError(t, Register(reg))
	assert.Error(t, Register(reg), "second registration must collide")
}

func TestCounters(t *testing.T) {
	before := testutil.ToFloat64(IndexBuilds.WithLabelValues("built"))
	IndexBuilds.WithLabelValues("built").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(IndexBuilds.WithLabelValues("built")))
}
