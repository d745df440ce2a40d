package safetynet_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/jrsteele09/go-payx-gateway/internal/metrics"
	"github.com/jrsteele09/go-payx-gateway/internal/safetynet"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type testFixture struct {
	logs    *bytes.Buffer
	metrics *metrics.Recorder
	net     *safetynet.Net
}

func setupTestFixture(t *testing.T) *testFixture {
	t.Helper()
	buf := &bytes.Buffer{}
	rec := metrics.New(prometheus.NewRegistry())
	return &testFixture{
		logs:    buf,
		metrics: rec,
		net:     safetynet.New(zerolog.New(buf), rec),
	}
}

func TestNet_Call(t *testing.T) {
	ctx := context.Background()

	t.Run("success is not caught", func(t *testing.T) {
		f := setupTestFixture(t)
		caught, cause := f.net.Call(ctx, "op", "s-1", "tid-1", func(context.Context) error { return nil })
		require.False(t, caught)
		require.NoError(t, cause)
		require.Empty(t, f.logs.String())
	})

	t.Run("error is caught and logged with context", func(t *testing.T) {
		f := setupTestFixture(t)
		boom := errors.New("store unavailable")
		caught, cause := f.net.Call(ctx, "UpdateQrCodeSessionResourceData", "s-1", "tid-1", func(context.Context) error { return boom })
		require.True(t, caught)
		require.ErrorIs(t, cause, boom)

		out := f.logs.String()
		require.Contains(t, out, `"operation":"UpdateQrCodeSessionResourceData"`)
		require.Contains(t, out, `"session_id":"s-1"`)
		require.Contains(t, out, `"trace_activity_id":"tid-1"`)
		require.Contains(t, out, "store unavailable")
		require.Equal(t, 1.0, testutil.ToFloat64(f.metrics.SafetyNetCaughtTotal.WithLabelValues("UpdateQrCodeSessionResourceData")))
	})

	t.Run("panic is caught", func(t *testing.T) {
		f := setupTestFixture(t)
		caught, cause := f.net.Call(ctx, "op", "s-1", "tid-1", func(context.Context) error { panic("nil map") })
		require.True(t, caught)
		require.ErrorContains(t, cause, "nil map")
		require.Contains(t, f.logs.String(), "safety net recovered panic")
	})
}

func TestRun_ReturnsValue(t *testing.T) {
	f := setupTestFixture(t)
	res := safetynet.Run(context.Background(), f.net, "op", "s-1", "tid", func(context.Context) (int, error) { return 42, nil })
	require.False(t, res.Caught)
	require.Equal(t, 42, res.Value)

	res = safetynet.Run(context.Background(), f.net, "op", "s-1", "tid", func(context.Context) (int, error) { return 7, errors.New("x") })
	require.True(t, res.Caught)
	require.Zero(t, res.Value)
}
