package stress_test

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime"
	"github.com/ethpandaops/market-sim-harness/internal/harness/realtime/realtimetest"
	"github.com/ethpandaops/market-sim-harness/internal/harness/stress"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func discardLogger() logrus.FieldLogger {
	log := logrus.New()
	log.SetOutput(io.Discard)

	return log
}

func TestRunner_ServerDropDuringHold(t *testing.T) {
	t.Parallel()

	srv := realtimetest.NewServer(realtimetest.Config{})
	defer srv.Close()

	clients := make([]*realtime.Client, 5)

	r := stress.NewRunner(discardLogger(), func(id int) stress.Conn {
		clients[id] = realtime.NewClient(discardLogger(), srv.URL,
			realtime.WithRetryPolicy(realtime.RetryPolicy{}),
			realtime.WithBuffer(realtime.NewEventBuffer(1)),
		)

		return clients[id]
	}, stress.WithHold(time.Second))

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for srv.Connected() < 5 && time.Now().Before(deadline) {
			time.Sleep(5 * time.Millisecond)
		}

		srv.DropAll()
	}()

	res := r.Run(context.Background(), 5, 2*time.Second)

	assert.Zero(t, res.Succeeded)
	assert.False(t, res.Passed)
	require.Len(t, res.Errors, 5)

	for _, e := range res.Errors {
		assert.Contains(t, e, "dropped during hold")
	}

	for _, c := range clients {
		assert.Equal(t, realtime.StateDisconnected, c.State())
	}
}

func TestRunner_RealClientsCompleteCycle(t *testing.T) {
	t.Parallel()

	srv := realtimetest.NewServer(realtimetest.Config{})
	defer srv.Close()

	r := stress.NewRunner(discardLogger(), func(int) stress.Conn {
		return realtime.NewClient(discardLogger(), srv.URL, realtime.WithRetryPolicy(realtime.RetryPolicy{}))
	}, stress.WithHold(50*time.Millisecond))

	res := r.Run(context.Background(), 5, 2*time.Second)

	assert.Equal(t, 5, res.Succeeded)
	assert.True(t, res.Passed)
	assert.Empty(t, res.Errors)
}
