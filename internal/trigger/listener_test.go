package trigger_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	natsserver "github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/discoveryd/internal/config"
	"github.com/fyrsmithlabs/discoveryd/internal/trigger"
)

// startTestNATSServer starts an embedded NATS server for testing.
func startTestNATSServer(t *testing.T) *natsserver.Server {
	opts := &natsserver.Options{
		Host:           "127.0.0.1",
		Port:           -1, // Random port
		NoLog:          true,
		NoSigs:         true,
		MaxControlLine: 2048,
	}

	server, err := natsserver.NewServer(opts)
	require.NoError(t, err)

	go server.Start()

	if !server.ReadyForConnections(5 * time.Second) {
		t.Fatal("NATS server not ready")
	}

	t.Cleanup(func() {
		server.Shutdown()
		server.WaitForShutdown()
	})

	return server
}

func triggerConfig() config.TriggerConfig {
	return config.TriggerConfig{
		TriggerPrefix:       "vector_trigger_",
		NotifyChannelPrefix: "vector_update_",
		EnableRealtime:      true,
		BatchDelayMs:        100,
	}
}

func TestListener_Naming(t *testing.T) {
	l := trigger.NewListener(nil, triggerConfig(), nil, nil, nil, zap.NewNop())
	assert.Equal(t, "vector_update_orders", l.Subject("orders"))
	assert.Equal(t, "vector_trigger_orders", l.TriggerName("orders"))
}

func TestListener_CoalescesPublishedEvents(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	dispatch, jobs := collectJobs()
	l := trigger.NewListener(nc, triggerConfig(), nil, dispatch, trigger.RealClock(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx, []string{"orders"}) }()

	// Wait for the subscription before publishing.
	require.Eventually(t, func() bool {
		return nc.NumSubscriptions() > 0
	}, 2*time.Second, 10*time.Millisecond)

	publish := func(keys ...string) {
		data, err := json.Marshal(trigger.Event{
			SourceTable:  "orders",
			Operation:    trigger.OpUpdate,
			AffectedKeys: keys,
			OccurredAt:   time.Now(),
		})
		require.NoError(t, err)
		require.NoError(t, nc.Publish(l.Subject("orders"), data))
	}

	publish("1")
	publish("2")

	job := waitJob(t, jobs)
	assert.Equal(t, "orders", job.SourceTable)
	assert.Equal(t, []string{"orders"}, job.ResourceIDs)
	assert.Equal(t, []string{"1", "2"}, job.AffectedKeys)
	assert.Equal(t, 2, job.Events)
	assert.False(t, job.Full)
	assertNoJob(t, jobs)
}

func TestListener_MalformedEventsDropped(t *testing.T) {
	server := startTestNATSServer(t)
	nc, err := nats.Connect(server.ClientURL())
	require.NoError(t, err)
	defer nc.Close()

	dispatch, jobs := collectJobs()
	l := trigger.NewListener(nc, triggerConfig(), nil, dispatch, trigger.RealClock(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = l.Run(ctx, []string{"orders"}) }()

	require.Eventually(t, func() bool {
		return nc.NumSubscriptions() > 0
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, nc.Publish(l.Subject("orders"), []byte("not json")))
	assertNoJob(t, jobs)
}

func TestListener_RealtimeDisabled(t *testing.T) {
	cfg := triggerConfig()
	cfg.EnableRealtime = false

	dispatch, jobs := collectJobs()
	l := trigger.NewListener(nil, cfg, nil, dispatch, trigger.RealClock(), zap.NewNop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- l.Run(ctx, []string{"orders"}) }()

	assertNoJob(t, jobs)
	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
