package registry

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vitwit/agentpay/types"
)

func testProvider(id string, cost uint64, reliability float64, chains ...string) types.Provider {
	if len(chains) == 0 {
		chains = []string{types.ChainPolygon}
	}
	return types.Provider{
		ID:               id,
		Name:             "provider " + id,
		APIEndpoint:      "https://" + id + ".example.com",
		SupportedChains:  chains,
		CostPerRequest:   cost,
		ReliabilityScore: reliability,
		Active:           true,
	}
}

func TestRegisterDuplicateID(t *testing.T) {
	r := New(nil)

	require.NoError(t, r.Register(testProvider("p1", 10, 0.9)))

	err := r.Register(testProvider("p1", 20, 0.8))
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrDuplicateID))
}

func TestRecordPerformanceUnknownProvider(t *testing.T) {
	r := New(nil)

	err := r.RecordPerformance("ghost", 12.5)
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestPerformanceHistoryCap(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("p1", 10, 0.9)))

	// One outlier followed by 100 identical observations. The outlier must
	// be the entry evicted once the cap is exceeded.
	require.NoError(t, r.RecordPerformance("p1", 10_000))
	for i := 0; i < 100; i++ {
		require.NoError(t, r.RecordPerformance("p1", 2))
	}

	mean, ok := r.MeanResponseTime("p1")
	require.True(t, ok)
	assert.InDelta(t, 2.0, mean, 1e-9)
}

func TestSelectBestFiltersCandidates(t *testing.T) {
	r := New(nil)

	inactive := testProvider("inactive", 5, 0.9)
	inactive.Active = false
	require.NoError(t, r.Register(inactive))

	require.NoError(t, r.Register(testProvider("wrong-chain", 5, 0.9, types.ChainSolana)))
	require.NoError(t, r.Register(testProvider("too-costly", 500, 0.9)))
	require.NoError(t, r.Register(testProvider("unreliable", 5, 0.79)))
	require.NoError(t, r.Register(testProvider("ok", 5, 0.9)))

	best, ok := r.SelectBest(types.ChainPolygon, 100)
	require.True(t, ok)
	assert.Equal(t, "ok", best.ID)
}

func TestSelectBestNoCandidates(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("p1", 5, 0.9, types.ChainSolana)))

	_, ok := r.SelectBest(types.ChainPolygon, 100)
	assert.False(t, ok)
}

// Pins the inherited selection direction: scores are built from
// higher-is-better terms yet the minimum is chosen. With no history both
// candidates use the 0.5 performance default, so B's lower composite wins.
func TestSelectBestTakesMinimumScore(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("A", 10, 0.99)))
	require.NoError(t, r.Register(testProvider("B", 5, 0.81)))

	// A: 0.3/11 + 0.4*0.99 + 0.15 = 0.5733; B: 0.3/6 + 0.4*0.81 + 0.15 = 0.524
	best, ok := r.SelectBest(types.ChainPolygon, 20)
	require.True(t, ok)
	assert.Equal(t, "B", best.ID)
}

func TestSelectBestTieBreaksByID(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("b", 5, 0.9)))
	require.NoError(t, r.Register(testProvider("a", 5, 0.9)))

	best, ok := r.SelectBest(types.ChainPolygon, 100)
	require.True(t, ok)
	assert.Equal(t, "a", best.ID)
}

func TestDeactivate(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("p1", 5, 0.9)))

	require.NoError(t, r.Deactivate("p1"))

	p, ok := r.Get("p1")
	require.True(t, ok)
	assert.False(t, p.Active)

	_, ok = r.SelectBest(types.ChainPolygon, 100)
	assert.False(t, ok)

	err := r.Deactivate("ghost")
	require.Error(t, err)
	assert.True(t, types.IsCode(err, types.ErrNotFound))
}

func TestListOrderedByID(t *testing.T) {
	r := New(nil)
	for _, id := range []string{"c", "a", "b"} {
		require.NoError(t, r.Register(testProvider(id, 5, 0.9)))
	}

	list := r.List()
	require.Len(t, list, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, list[i].ID)
	}
}

func TestGetReturnsCopy(t *testing.T) {
	r := New(nil)
	require.NoError(t, r.Register(testProvider("p1", 5, 0.9)))

	p, ok := r.Get("p1")
	require.True(t, ok)
	p.SupportedChains[0] = "mutated"
	p.Active = false

	fresh, ok := r.Get("p1")
	require.True(t, ok)
	assert.Equal(t, types.ChainPolygon, fresh.SupportedChains[0])
	assert.True(t, fresh.Active)
}

func TestScoreUsesPerformanceHistory(t *testing.T) {
	r := New(nil)
	// Identical except for recorded latency. Slow history drags the
	// performance term down, so under minimum-selection the slow provider
	// wins the route.
	require.NoError(t, r.Register(testProvider("fast", 5, 0.9)))
	require.NoError(t, r.Register(testProvider("slow", 5, 0.9)))

	require.NoError(t, r.RecordPerformance("fast", 1))
	require.NoError(t, r.RecordPerformance("slow", 99))

	best, ok := r.SelectBest(types.ChainPolygon, 100)
	require.True(t, ok)
	assert.Equal(t, "slow", best.ID)
}

func TestRegisterManyProviders(t *testing.T) {
	r := New(nil)
	for i := 0; i < 50; i++ {
		require.NoError(t, r.Register(testProvider(fmt.Sprintf("p%02d", i), uint64(i), 0.9)))
	}
	assert.Len(t, r.List(), 50)
}
