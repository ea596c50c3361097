package bis_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ridealert/ridealert/internal/transit/bis"
)

func TestPacer_MinSpacing(t *testing.T) {
	pacer := bis.NewPacer(bis.PacerConfig{
		MinSpacing:   50 * time.Millisecond,
		Window:       time.Second,
		MaxPerWindow: 100,
	})

	ctx := context.Background()

	start := time.Now()
	require.NoError(t, pacer.Wait(ctx))
	require.NoError(t, pacer.Wait(ctx))
	require.NoError(t, pacer.Wait(ctx))
	elapsed := time.Since(start)

	// Three requests means two enforced gaps.
	assert.GreaterOrEqual(t, elapsed, 100*time.Millisecond)
}

func TestPacer_WindowCap(t *testing.T) {
	pacer := bis.NewPacer(bis.PacerConfig{
		MinSpacing:   time.Millisecond,
		Window:       200 * time.Millisecond,
		MaxPerWindow: 3,
	})

	ctx := context.Background()

	start := time.Now()
	for i := 0; i < 3; i++ {
		require.NoError(t, pacer.Wait(ctx))
	}
	assert.Equal(t, 3, pacer.InFlightWindow())

	// Fourth call must block until the oldest request ages out of the window.
	require.NoError(t, pacer.Wait(ctx))
	elapsed := time.Since(start)

	assert.GreaterOrEqual(t, elapsed, 190*time.Millisecond)
}

func TestPacer_ContextCancelled(t *testing.T) {
	pacer := bis.NewPacer(bis.PacerConfig{
		MinSpacing:   time.Hour,
		Window:       time.Hour,
		MaxPerWindow: 100,
	})

	require.NoError(t, pacer.Wait(context.Background()))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	err := pacer.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}
