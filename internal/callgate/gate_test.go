package callgate

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	domainErrors "github.com/cassiomorais/checkout/internal/domain/errors"
	"github.com/sony/gobreaker/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGate(threshold uint32, coolDown time.Duration) *Gate {
	return New(Settings{
		FailureThreshold: threshold,
		CoolDown:         coolDown,
		DefaultTimeout:   time.Second,
	})
}

func TestInvoke_Success(t *testing.T) {
	g := testGate(3, time.Minute)

	got, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (string, error) {
			return "ok", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "ok", got)
	assert.Equal(t, gobreaker.StateClosed, g.State("dep"))
}

func TestInvoke_ErrorWithoutFallback(t *testing.T) {
	g := testGate(3, time.Minute)
	boom := errors.New("boom")

	_, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 0, boom
		})

	assert.ErrorIs(t, err, boom)
}

func TestInvoke_ErrorUsesFallback(t *testing.T) {
	g := testGate(3, time.Minute)
	fallback := 42

	got, err := Invoke(g, context.Background(), "dep", time.Second, &fallback,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("boom")
		})

	require.NoError(t, err)
	assert.Equal(t, 42, got)
}

func TestInvoke_Timeout(t *testing.T) {
	g := testGate(3, time.Minute)

	start := time.Now()
	_, err := Invoke(g, context.Background(), "dep", 20*time.Millisecond, nil,
		func(ctx context.Context) (int, error) {
			select {
			case <-time.After(5 * time.Second):
				return 1, nil
			case <-ctx.Done():
				return 0, ctx.Err()
			}
		})

	assert.ErrorIs(t, err, domainErrors.ErrDependencyTimeout)
	assert.Less(t, time.Since(start), time.Second)
}

func TestInvoke_OpensAfterConsecutiveFailures(t *testing.T) {
	g := testGate(3, time.Minute)
	var calls atomic.Int32

	fail := func(ctx context.Context) (int, error) {
		calls.Add(1)
		return 0, errors.New("down")
	}

	for i := 0; i < 3; i++ {
		_, err := Invoke(g, context.Background(), "dep", time.Second, nil, fail)
		assert.Error(t, err)
	}
	assert.Equal(t, gobreaker.StateOpen, g.State("dep"))

	// While open, the call is rejected without reaching the dependency.
	_, err := Invoke(g, context.Background(), "dep", time.Second, nil, fail)
	assert.ErrorIs(t, err, domainErrors.ErrCircuitOpen)
	assert.Equal(t, int32(3), calls.Load())
}

func TestInvoke_OpenCircuitUsesFallback(t *testing.T) {
	g := testGate(1, time.Minute)

	_, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (string, error) {
			return "", errors.New("down")
		})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, g.State("dep"))

	fallback := "degraded"
	got, err := Invoke(g, context.Background(), "dep", time.Second, &fallback,
		func(ctx context.Context) (string, error) {
			t.Fatal("dependency must not be called while open")
			return "", nil
		})

	require.NoError(t, err)
	assert.Equal(t, "degraded", got)
}

func TestInvoke_HalfOpenTrialCloses(t *testing.T) {
	g := testGate(1, 30*time.Millisecond)

	_, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		})
	require.Error(t, err)
	require.Equal(t, gobreaker.StateOpen, g.State("dep"))

	time.Sleep(50 * time.Millisecond)

	// After the cool-down, one trial call is allowed through; success
	// closes the breaker.
	got, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 7, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 7, got)
	assert.Equal(t, gobreaker.StateClosed, g.State("dep"))
}

func TestInvoke_HalfOpenTrialFailureReopens(t *testing.T) {
	g := testGate(1, 30*time.Millisecond)

	_, err := Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		})
	require.Error(t, err)

	time.Sleep(50 * time.Millisecond)

	_, err = Invoke(g, context.Background(), "dep", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("still down")
		})
	require.Error(t, err)
	assert.Equal(t, gobreaker.StateOpen, g.State("dep"))
}

func TestGate_BreakersAreIndependent(t *testing.T) {
	g := testGate(1, time.Minute)

	_, err := Invoke(g, context.Background(), "dep-a", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 0, errors.New("down")
		})
	require.Error(t, err)

	got, err := Invoke(g, context.Background(), "dep-b", time.Second, nil,
		func(ctx context.Context) (int, error) {
			return 1, nil
		})
	require.NoError(t, err)
	assert.Equal(t, 1, got)

	states := g.States()
	assert.Equal(t, gobreaker.StateOpen, states["dep-a"])
	assert.Equal(t, gobreaker.StateClosed, states["dep-b"])
}
