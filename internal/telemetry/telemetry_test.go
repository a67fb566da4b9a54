package telemetry

import (
	"context"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	"go.uber.org/zap"
)

func TestInit(t *testing.T) {
	// A fresh registry avoids duplicate-collector panics across tests.
	orig := prometheus.DefaultRegisterer
	prometheus.DefaultRegisterer = prometheus.NewRegistry()
	t.Cleanup(func() { prometheus.DefaultRegisterer = orig })

	tel, err := Init("discoveryd-test", "dev", zap.NewNop())
	require.NoError(t, err)
	require.NotNil(t, tel)

	// Instruments created through the global meter must be usable.
	counter, err := otel.Meter("test").Int64Counter("discoveryd.test.events")
	require.NoError(t, err)
	counter.Add(context.Background(), 1)

	assert.NoError(t, tel.Shutdown(context.Background()))
}
