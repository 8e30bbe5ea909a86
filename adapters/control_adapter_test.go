package adapters_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/momentics/hioload-net/adapters"
	"github.com/momentics/hioload-net/api"
)

func TestControlAdapterBasic(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	assert.Empty(t, ctrl.GetConfig())

	require.NoError(t, ctrl.SetConfig(map[string]any{"k": 1}))
	stats := ctrl.Stats()
	assert.Equal(t, 1, stats["k"])
	assert.Contains(t, stats, "debug.platform.cpus")

	called := false
	ctrl.OnReload(func() { called = true })
	require.NoError(t, ctrl.SetConfig(map[string]any{"x": 2}))
	assert.True(t, called, "reload hook runs before SetConfig returns")

	assert.ErrorIs(t, ctrl.SetConfig(nil), api.ErrInvalidArgument)
}

func TestControlAdapterMetricsAndProbes(t *testing.T) {
	ctrl := adapters.NewControlAdapter()
	ctrl.Metrics().Counter("adapter_events_total", "events").Inc()
	ctrl.SetMetric("custom", "v")
	ctrl.RegisterDebugProbe("loops", func() any { return 4 })

	stats := ctrl.Stats()
	assert.Equal(t, 1.0, stats["adapter_events_total"])
	assert.Equal(t, "v", stats["custom"])
	assert.Equal(t, 4, stats["debug.loops"])
}
