package exchange

import (
	"context"
	"io"
	"os"
	"testing"

	"index_risk_sentinel/config"
	"index_risk_sentinel/logs"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMain(m *testing.M) {
	logs.SetOutput(io.Discard)
	os.Exit(m.Run())
}

func TestMockClientFromConfig(t *testing.T) {
	sim := config.NewConfig().Simulation
	sim.Mode = "meltdown"
	sim.NewsImpact = "medium"
	sim.VIX = 28
	sim.Positions = []config.SimPositionConfig{{ID: "IC-1", Symbol: "nifty", Strategy: "iron_condor", Lots: 2, MTMPerPoint: -15}}
	c := NewMockClientFromConfig(sim)
	ctx := context.Background()

	b, err := c.GetMarketBackdrop(ctx)
	require.NoError(t, err)
	assert.Equal(t, Backdrop{VIX: 28, NewsImpact: "MEDIUM"}, b)

	positions, err := c.ListOpenPositions(ctx)
	require.NoError(t, err)
	require.Len(t, positions, 1)
	assert.Equal(t, "NIFTY", positions[0].Symbol)
	assert.Equal(t, "IRON_CONDOR", positions[0].Strategy)

	c.Step()
	q, err := c.GetCurrentPrice(ctx, "nifty")
	require.NoError(t, err)
	assert.Less(t, q.Price, 22000.0)
	assert.Positive(t, q.Volume)

	mtm, err := c.GetCurrentMTM(ctx, "IC-1")
	require.NoError(t, err)
	assert.Positive(t, mtm, "a short-delta position gains when the index falls")
}

func TestMockClientExits(t *testing.T) {
	c := NewMockClient()
	ctx := context.Background()
	c.SetPrice("NIFTY", 22000)
	c.AddPosition(Position{ID: "A", Symbol: "NIFTY", Lots: 1}, 0)
	c.SetMTM("A", -750)
	c.FailNextExits("A", 1)

	_, err := c.ExitPosition(ctx, Position{ID: "A"}, "test")
	assert.ErrorIs(t, err, ErrExitRejected)

	res, err := c.ExitPosition(ctx, Position{ID: "A"}, "test")
	require.NoError(t, err)
	assert.Equal(t, -750.0, res.RealizedPnL)
	assert.Equal(t, 2, c.ExitCount("A"))

	_, err = c.ExitPosition(ctx, Position{ID: "A"}, "test")
	assert.ErrorIs(t, err, ErrUnknownPosition)
	_, err = c.GetCurrentPrice(ctx, "SENSEX")
	assert.ErrorIs(t, err, ErrNoPrice)

	b, err := c.GetMarketBackdrop(ctx)
	require.NoError(t, err)
	assert.Equal(t, 20.0, b.VIX)
}
