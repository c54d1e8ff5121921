package sim

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/movement"
)

func newSim(t *testing.T, opts ...Option) *Sim {
	t.Helper()
	s, err := New(opts...)
	require.NoError(t, err)
	t.Cleanup(s.Close)
	return s
}

func settled(s *Sim) bool { return s.Settled() }

// requireConsistent checks every agent stands alone on a cell it owns.
func requireConsistent(t *testing.T, s *Sim) {
	t.Helper()
	seen := map[grid.Coord]string{}
	for _, a := range s.Agents {
		if a.State != AgentIdle {
			continue
		}
		other, dup := seen[a.At]
		require.Falsef(t, dup, "%s and %s both stand on %v", a.Label, other, a.At)
		seen[a.At] = a.Label
		cell, ok := s.Grid.CellAt(a.At)
		require.True(t, ok)
		require.Equalf(t, a.ID, cell.Occupant, "%s does not own its cell %v", a.Label, a.At)
	}
}

func TestSim_GatherThreeAgents(t *testing.T) {
	s := newSim(t,
		WithGridSize(100, 100),
		WithSeed(1),
		WithAgent("A", grid.Coord{X: 0, Y: 0}),
		WithAgent("B", grid.Coord{X: 1, Y: 0}),
		WithAgent("C", grid.Coord{X: 5, Y: 5}),
	)
	target := grid.Coord{X: 0, Y: 1}

	res := s.Gather(nil, target)
	require.Equal(t, movement.StatusOK, res.Status)
	require.Equal(t, 3, s.SimLog.CountCategory("move", "assigned"))

	tick := s.RunUntil(settled, 50)
	require.Positive(t, tick, "agents never settled:\n%s", s.SimLog.Format())

	assert.Equal(t, target, s.Agent("A").At)
	assert.Equal(t, grid.Coord{X: 1, Y: 1}, s.Agent("B").At)
	assert.Equal(t, grid.Coord{X: -1, Y: 1}, s.Agent("C").At)
	assert.Equal(t, 3, s.SimLog.CountCategory("move", "arrived"))
	assert.Zero(t, s.SimLog.CountCategory("move", "requeried"))
	assert.Equal(t, 3, s.Grid.OccupiedCount())
	requireConsistent(t, s)
}

func TestSim_ArrivalRequeriesTakenDestination(t *testing.T) {
	s := newSim(t, WithGridSize(40, 40), WithAgent("A", grid.Coord{}))
	dest := grid.Coord{X: 10, Y: 0}
	s.Gather(nil, dest)
	s.Step() // depart

	require.True(t, s.Grid.Occupy(dest, grid.NewHandle(), grid.OccupantObstacle))
	require.Positive(t, s.RunUntil(settled, 50))

	a := s.Agent("A")
	assert.Equal(t, grid.Coord{X: 11, Y: 0}, a.At)
	assert.True(t, s.SimLog.HasEntry("move", "requeried", "(11,0)"))
	requireConsistent(t, s)
}

func TestSim_NoPathKeepsOrigin(t *testing.T) {
	opts := []Option{WithGridSize(20, 20), WithAgent("A", grid.Coord{})}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx != 0 || dy != 0 {
				opts = append(opts, WithObstacle(grid.Coord{X: dx, Y: dy}))
			}
		}
	}
	s := newSim(t, opts...)

	res := s.Gather(nil, grid.Coord{X: 5, Y: 5})
	require.Equal(t, 1, res.Assigned())
	s.Step()

	a := s.Agent("A")
	assert.Equal(t, AgentIdle, a.State)
	assert.Equal(t, grid.Coord{}, a.At)
	assert.Equal(t, 1, s.SimLog.CountCategory("move", "no_path"))
	assert.False(t, s.Grid.IsFree(grid.Coord{}), "agent without a route keeps its cell")
	requireConsistent(t, s)
}

func TestSim_NoPathMidWalkStopsWhereItIs(t *testing.T) {
	s := newSim(t, WithGridSize(20, 20), WithAgent("A", grid.Coord{}))
	s.Gather(nil, grid.Coord{X: 5, Y: 0})
	s.RunTicks(2)
	a := s.Agent("A")
	require.Equal(t, AgentMoving, a.State)
	require.NotEqual(t, grid.Coord{}, a.At)

	// Wall off a new target so the re-plan fails.
	goal := grid.Coord{X: 8, Y: 8}
	for dy := -1; dy <= 1; dy++ {
		for dx := -1; dx <= 1; dx++ {
			if dx != 0 || dy != 0 {
				require.True(t, s.Grid.Occupy(goal.Add(grid.Coord{X: dx, Y: dy}), grid.NewHandle(), grid.OccupantObstacle))
			}
		}
	}
	res := s.Gather(nil, goal)
	require.Equal(t, goal, res.Destinations[a.ID])

	reached := a.At
	s.Step()
	assert.Equal(t, AgentIdle, a.State)
	assert.Equal(t, reached, a.At, "agent stops on the cell it reached")
	assert.Equal(t, 1, s.SimLog.CountCategory("move", "no_path"))
	cell, ok := s.Grid.CellAt(reached)
	require.True(t, ok)
	assert.Equal(t, a.ID, cell.Occupant)
	assert.True(t, s.Grid.IsFree(grid.Coord{}), "released origin is not reclaimed")
	requireConsistent(t, s)
}

func TestSim_InvalidTargetLeavesEveryoneIdle(t *testing.T) {
	s := newSim(t, WithGridSize(20, 20), WithRandomAgents(5))
	res := s.Gather(nil, grid.Coord{X: 500, Y: 500})
	assert.Equal(t, movement.StatusInvalidTarget, res.Status)
	assert.Equal(t, 5, s.SimLog.CountCategory("move", "unassigned"))
	assert.True(t, s.SimLog.HasEntry("move", "unassigned", "invalid_target"))
	assert.True(t, s.Settled())
}

func TestSim_GatherSubset(t *testing.T) {
	s := newSim(t,
		WithGridSize(30, 30),
		WithAgent("A", grid.Coord{X: -5, Y: 0}),
		WithAgent("B", grid.Coord{X: 5, Y: 0}),
	)
	res := s.Gather([]string{"B"}, grid.Coord{X: 0, Y: 8})
	assert.Equal(t, 1, res.Assigned())
	assert.Equal(t, AgentIdle, s.Agent("A").State)
	assert.Equal(t, AgentOrdered, s.Agent("B").State)
}

func TestSim_StructureOverlapFails(t *testing.T) {
	_, err := New(
		WithGridSize(20, 20),
		WithStructure(grid.Coord{}, 5, 3),
		WithStructure(grid.Coord{X: 4, Y: 2}, 3, 3),
	)
	require.ErrorIs(t, err, ErrPlacement)

	s := newSim(t, WithGridSize(20, 20), WithStructure(grid.Coord{}, 5, 3))
	assert.Len(t, s.Grid.CellsByOccupantType(grid.OccupantStructure), 15)
}

func TestSim_BuildErrors(t *testing.T) {
	_, err := New(WithAgent("A", grid.Coord{}), WithAgent("A", grid.Coord{X: 1}))
	require.ErrorIs(t, err, ErrDuplicateLabel)

	_, err = New(WithObstacle(grid.Coord{}), WithAgent("A", grid.Coord{}))
	require.ErrorIs(t, err, ErrPlacement)

	_, err = New(WithGridSize(0, 10))
	require.ErrorIs(t, err, grid.ErrInvalidDimensions)
}

func TestSim_Deterministic(t *testing.T) {
	run := func() SimSnapshot {
		s := newSim(t, WithGridSize(40, 40), WithSeed(2024), WithRandomObstacles(150), WithRandomAgents(15))
		target, ok := s.Grid.RandomFreeCell()
		require.True(t, ok)
		s.Gather(nil, target.Coord)
		s.RunUntil(settled, 200)
		return s.Snapshot()
	}
	first := run()
	for i := 0; i < 3; i++ {
		assert.Equal(t, first, run())
	}
}

func TestSim_RepeatedGathersStayConsistent(t *testing.T) {
	s := newSim(t, WithGridSize(50, 50), WithSeed(5), WithRandomObstacles(300), WithRandomAgents(20))
	want := s.Grid.OccupiedCount()

	for round := 0; round < 10; round++ {
		target, ok := s.Grid.RandomFreeCell()
		require.True(t, ok)
		s.Gather(nil, target.Coord)
		require.Positive(t, s.RunUntil(settled, 400), "round %d never settled", round)
		requireConsistent(t, s)
		require.Equal(t, want, s.Grid.OccupiedCount(), "round %d leaked or lost claims", round)
	}
}

func TestSim_WanderStaysNearHome(t *testing.T) {
	cfg := config.Default()
	cfg.Grid.Width, cfg.Grid.Height = 60, 60
	cfg.Wander.Window = 5
	s := newSim(t, WithConfig(cfg), WithRandomAgents(12))

	for round := 0; round < 8; round++ {
		s.Wander(nil)
		require.Positive(t, s.RunUntil(settled, 100))
		requireConsistent(t, s)
	}
	assert.Equal(t, 12*8, s.SimLog.CountCategory("wander", "pick"))
	for _, a := range s.Agents {
		// A wander pick is within the window; a re-query may push one ring out.
		assert.LessOrEqual(t, a.At.Chebyshev(a.Home), 2+cfg.Search.MaxRadius)
	}
}

func TestSim_EventsMirroredIntoSimLog(t *testing.T) {
	s := newSim(t, WithGridSize(20, 20), WithObstacle(grid.Coord{X: 3, Y: 3}), WithAgent("A", grid.Coord{}))
	assert.True(t, s.SimLog.HasEntry("grid", "occupied", "obstacle"))
	e, ok := s.SimLog.LastOf("grid", "occupied")
	require.True(t, ok)
	assert.Equal(t, "A", e.Agent)

	s.Gather(nil, grid.Coord{X: 2, Y: 0})
	s.RunUntil(settled, 20)
	freed := s.SimLog.Filter("grid", "freed")
	require.Len(t, freed, 1)
	assert.Equal(t, "A", freed[0].Agent)
}

func TestSim_VerboseLogsPositions(t *testing.T) {
	s := newSim(t, WithGridSize(10, 10), WithVerbose(true), WithAgent("A", grid.Coord{}))
	s.RunTicks(3)
	assert.Equal(t, 3, s.SimLog.CountCategory("move", "position"))
	assert.Equal(t, 3, s.CurrentTick())
}
