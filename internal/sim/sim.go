// Package sim is a headless tick harness around the occupancy lattice. It
// plays the external collaborators: a spawner placing terrain and agents,
// and a stand-in mover that walks agents cell by cell, freeing on departure
// and claiming on arrival.
package sim

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"

	"github.com/zyedidia/generic/mapset"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/movement"
	"github.com/Garsondee/Grid-Sense/internal/spatial"
)

// Errors returned while building a Sim.
var (
	ErrDuplicateLabel = errors.New("sim: duplicate agent label")
	ErrPlacement      = errors.New("sim: cannot place occupant")
)

// AgentState is where an agent is in its move cycle.
type AgentState uint8

const (
	AgentIdle    AgentState = iota // standing on a claimed cell
	AgentOrdered                   // has a destination, has not left yet
	AgentMoving                    // walking; holds no cell
	AgentBlocked                   // reached its destination but found nowhere to stand
)

func (s AgentState) String() string {
	switch s {
	case AgentIdle:
		return "idle"
	case AgentOrdered:
		return "ordered"
	case AgentMoving:
		return "moving"
	case AgentBlocked:
		return "blocked"
	default:
		return "unknown"
	}
}

// Agent is one mover in the harness.
type Agent struct {
	ID    grid.Handle
	Label string
	At    grid.Coord
	Home  grid.Coord // wander anchor; set on spawn
	Dest  grid.Coord
	State AgentState

	path      []grid.Coord
	pathIndex int
}

// Sim is the headless harness. It is not safe for concurrent use; hosts
// drive it from one goroutine and let other goroutines read the Grid.
type Sim struct {
	Cfg    config.Config
	Grid   *grid.Grid
	Query  *spatial.Service
	Coord  *movement.Coordinator
	Agents []*Agent
	SimLog *SimLog

	rng     *rand.Rand
	tick    int
	byLabel map[string]*Agent
	labels  map[grid.Handle]string
	unsub   func()

	obstacles     []grid.Coord
	structures    []footprint
	pendingAgents []pendingAgent
	randObstacles int
	randAgents    int
}

type footprint struct {
	origin grid.Coord
	w, h   int
}

type pendingAgent struct {
	label string
	at    grid.Coord
}

// simOptionKind controls the pass in which an option is applied.
type simOptionKind int

const (
	simOptInfra   simOptionKind = iota // grid size, seed, config, verbose, applied first
	simOptTerrain                      // obstacles and structures, placed once the grid exists
	simOptAgent                        // agents, placed after terrain
)

// Option is a builder function applied to a Sim during construction.
type Option struct {
	kind simOptionKind
	fn   func(*Sim)
}

// WithConfig replaces the settings. Later infra options still override it.
func WithConfig(cfg config.Config) Option {
	return Option{simOptInfra, func(s *Sim) {
		s.Cfg = cfg
		s.rng = rand.New(rand.NewSource(cfg.Sim.Seed)) // #nosec G404 -- simulation RNG
	}}
}

// WithGridSize sets the lattice dimensions in cells.
func WithGridSize(w, h int) Option {
	return Option{simOptInfra, func(s *Sim) {
		s.Cfg.Grid.Width = w
		s.Cfg.Grid.Height = h
	}}
}

// WithCellSize sets the world-space edge length of a cell.
func WithCellSize(size float64) Option {
	return Option{simOptInfra, func(s *Sim) {
		s.Cfg.Grid.CellSize = size
	}}
}

// WithSeed sets the RNG seed for deterministic runs.
func WithSeed(seed int64) Option {
	return Option{simOptInfra, func(s *Sim) {
		s.Cfg.Sim.Seed = seed
		s.rng = rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation RNG
	}}
}

// WithVerbose enables per-tick position logging.
func WithVerbose(v bool) Option {
	return Option{simOptInfra, func(s *Sim) {
		s.SimLog = NewSimLog(v)
	}}
}

// WithObstacle blocks a single cell.
func WithObstacle(c grid.Coord) Option {
	return Option{simOptTerrain, func(s *Sim) {
		s.obstacles = append(s.obstacles, c)
	}}
}

// WithStructure reserves a w x h block with its lowest corner at origin.
func WithStructure(origin grid.Coord, w, h int) Option {
	return Option{simOptTerrain, func(s *Sim) {
		s.structures = append(s.structures, footprint{origin: origin, w: w, h: h})
	}}
}

// WithRandomObstacles scatters n obstacles over free cells.
func WithRandomObstacles(n int) Option {
	return Option{simOptTerrain, func(s *Sim) {
		s.randObstacles += n
	}}
}

// WithAgent adds an agent standing on c.
func WithAgent(label string, c grid.Coord) Option {
	return Option{simOptAgent, func(s *Sim) {
		s.pendingAgents = append(s.pendingAgents, pendingAgent{label: label, at: c})
	}}
}

// WithRandomAgents adds n agents on random free cells, labelled A00, A01...
func WithRandomAgents(n int) Option {
	return Option{simOptAgent, func(s *Sim) {
		s.randAgents += n
	}}
}

// New constructs a Sim from the given options in ordered passes:
//  1. Infrastructure (config, grid size, seed, verbose)
//  2. Build the grid, query service and coordinator
//  3. Terrain (obstacles, structures)
//  4. Agents
func New(opts ...Option) (*Sim, error) {
	s := &Sim{
		Cfg:     config.Default(),
		SimLog:  NewSimLog(false),
		byLabel: map[string]*Agent{},
		labels:  map[grid.Handle]string{},
	}
	s.rng = rand.New(rand.NewSource(s.Cfg.Sim.Seed)) // #nosec G404 -- simulation RNG
	for _, o := range opts {
		if o.kind == simOptInfra {
			o.fn(s)
		}
	}
	if err := s.build(); err != nil {
		return nil, err
	}
	for _, o := range opts {
		if o.kind == simOptTerrain {
			o.fn(s)
		}
	}
	if err := s.placeTerrain(); err != nil {
		s.Close()
		return nil, err
	}
	for _, o := range opts {
		if o.kind == simOptAgent {
			o.fn(s)
		}
	}
	if err := s.placeAgents(); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Sim) build() error {
	g, err := grid.New(s.Cfg.Grid.Width, s.Cfg.Grid.Height, s.Cfg.Grid.CellSize, grid.WithSeed(s.rng.Int63()))
	if err != nil {
		return fmt.Errorf("sim: build grid: %w", err)
	}
	s.Grid = g
	s.Query = spatial.NewService(g)

	tb := movement.TieBreakRandom
	if s.Cfg.Gather.TieBreak == "stable" {
		tb = movement.TieBreakStable
	}
	s.Coord = movement.NewCoordinator(s.Query,
		movement.WithRadiusCap(s.Cfg.Gather.RadiusCap),
		movement.WithTieBreak(tb),
		movement.WithSeed(s.rng.Int63()),
	)
	s.unsub = g.Events().Subscribe(s.onEvent)
	return nil
}

func (s *Sim) placeTerrain() error {
	for _, c := range s.obstacles {
		if !s.Grid.Occupy(c, grid.NewHandle(), grid.OccupantObstacle) {
			return fmt.Errorf("%w: obstacle at %v", ErrPlacement, c)
		}
	}
	for _, f := range s.structures {
		if !s.Grid.OccupyFootprint(f.origin, f.w, f.h, grid.NewHandle(), grid.OccupantStructure) {
			return fmt.Errorf("%w: %dx%d structure at %v", ErrPlacement, f.w, f.h, f.origin)
		}
	}
	for i := 0; i < s.randObstacles; i++ {
		cell, ok := s.Grid.RandomFreeCell()
		if !ok {
			return fmt.Errorf("%w: grid full after %d random obstacles", ErrPlacement, i)
		}
		s.Grid.Occupy(cell.Coord, grid.NewHandle(), grid.OccupantObstacle)
	}
	return nil
}

func (s *Sim) placeAgents() error {
	for _, p := range s.pendingAgents {
		if err := s.spawn(p.label, p.at); err != nil {
			return err
		}
	}
	for i := 0; i < s.randAgents; i++ {
		cell, ok := s.Grid.RandomFreeCell()
		if !ok {
			return fmt.Errorf("%w: grid full after %d random agents", ErrPlacement, i)
		}
		if err := s.spawn(fmt.Sprintf("A%02d", len(s.Agents)), cell.Coord); err != nil {
			return err
		}
	}
	return nil
}

func (s *Sim) spawn(label string, at grid.Coord) error {
	if _, dup := s.byLabel[label]; dup {
		return fmt.Errorf("%w: %q", ErrDuplicateLabel, label)
	}
	a := &Agent{ID: grid.NewHandle(), Label: label, At: at, Home: at, Dest: at}
	s.labels[a.ID] = label
	if !s.Grid.Occupy(at, a.ID, grid.OccupantCharacter) {
		delete(s.labels, a.ID)
		return fmt.Errorf("%w: agent %s at %v", ErrPlacement, label, at)
	}
	s.Agents = append(s.Agents, a)
	s.byLabel[label] = a
	return nil
}

// onEvent mirrors grid notifications into the SimLog. It only reads.
func (s *Sim) onEvent(ev grid.Event) {
	label, ok := s.labels[ev.Occupant]
	if !ok {
		label = "--"
	}
	switch ev.Kind {
	case grid.EventOccupied:
		s.SimLog.Add(s.tick, label, "grid", "occupied", fmt.Sprintf("%v %s", ev.Coord, ev.Type), 0)
	case grid.EventFreed:
		s.SimLog.Add(s.tick, label, "grid", "freed", fmt.Sprintf("%v %s", ev.Coord, ev.Type), 0)
	case grid.EventRebuilt:
		s.SimLog.Add(s.tick, "--", "grid", "rebuilt", "", 0)
	}
}

// Close detaches the harness from the grid's event bus.
func (s *Sim) Close() {
	if s.unsub != nil {
		s.unsub()
		s.unsub = nil
	}
}

// Agent returns the agent with label, or nil.
func (s *Sim) Agent(label string) *Agent {
	return s.byLabel[label]
}

// LabelOf returns the label for an occupant handle, or "--".
func (s *Sim) LabelOf(id grid.Handle) string {
	if l, ok := s.labels[id]; ok {
		return l
	}
	return "--"
}

// Rand exposes the harness RNG so hosts can draw reproducible targets.
func (s *Sim) Rand() *rand.Rand {
	return s.rng
}

// selectAgents returns the agents with the given labels in spawn order.
// No labels selects everyone.
func (s *Sim) selectAgents(labels []string) []*Agent {
	if len(labels) == 0 {
		return s.Agents
	}
	want := mapset.New[string]()
	for _, l := range labels {
		want.Put(l)
	}
	var out []*Agent
	for _, a := range s.Agents {
		if want.Has(a.Label) {
			out = append(out, a)
		}
	}
	return out
}

// Gather orders the selected agents to assemble around target.
func (s *Sim) Gather(labels []string, target grid.Coord) movement.Result {
	agents := s.selectAgents(labels)
	req := movement.Request{Target: target, Agents: make([]movement.Agent, len(agents))}
	for i, a := range agents {
		req.Agents[i] = movement.Agent{ID: a.ID, At: a.At}
	}
	res := s.Coord.Assign(req)

	for _, id := range res.Order {
		a := s.byLabel[s.labels[id]]
		dest := res.Destinations[id]
		s.order(a, dest)
		s.SimLog.Add(s.tick, a.Label, "move", "assigned", fmt.Sprintf("%v → %v", a.At, dest), math.Sqrt(float64(dest.DistSq(target))))
	}
	for _, id := range res.Unassigned {
		s.SimLog.Add(s.tick, s.LabelOf(id), "move", "unassigned", res.Status.String(), 0)
	}
	slog.Debug("gather issued", "target", target, "agents", len(agents), "assigned", res.Assigned(), "status", res.Status)
	return res
}

// Wander orders each selected idle agent to a random free cell near home.
func (s *Sim) Wander(labels []string) {
	for _, a := range s.selectAgents(labels) {
		if a.State != AgentIdle {
			continue
		}
		dest := movement.Wander(s.Grid, s.rng, a.Home, s.Cfg.Wander.Window, s.Cfg.Wander.Attempts)
		s.SimLog.Add(s.tick, a.Label, "wander", "pick", fmt.Sprintf("%v → %v", a.At, dest), 0)
		s.order(a, dest)
	}
}

// order gives a a new destination. Agents already walking re-plan from
// where they are on the next tick.
func (s *Sim) order(a *Agent, dest grid.Coord) {
	a.Dest = dest
	a.path = nil
	a.pathIndex = 0
	switch a.State {
	case AgentIdle:
		a.State = AgentOrdered
	case AgentBlocked:
		a.State = AgentMoving
	}
}

// CurrentTick returns the current simulation tick.
func (s *Sim) CurrentTick() int {
	return s.tick
}

// Settled reports whether every agent is standing on a claimed cell.
func (s *Sim) Settled() bool {
	for _, a := range s.Agents {
		if a.State != AgentIdle {
			return false
		}
	}
	return true
}

// Step advances the harness one tick. Each walking agent moves one cell.
func (s *Sim) Step() {
	s.tick++
	for _, a := range s.Agents {
		switch a.State {
		case AgentOrdered:
			s.depart(a)
		case AgentMoving:
			s.walk(a)
		case AgentBlocked:
			s.arrive(a)
		}
		s.SimLog.AddVerbose(s.tick, a.Label, "move", "position", fmt.Sprintf("%v %s", a.At, a.State), 0)
	}
}

// depart plans a route and gives up the claimed cell. Without a route the
// agent keeps its cell and goes idle.
func (s *Sim) depart(a *Agent) {
	if a.Dest == a.At {
		a.State = AgentIdle
		return
	}
	path := findPath(s.Grid, a.At, a.Dest)
	if path == nil {
		s.SimLog.Add(s.tick, a.Label, "move", "no_path", fmt.Sprintf("%v → %v", a.At, a.Dest), 0)
		a.Dest = a.At
		a.State = AgentIdle
		return
	}
	s.Grid.Free(a.At)
	a.path = path
	a.pathIndex = 1
	a.State = AgentMoving
}

func (s *Sim) walk(a *Agent) {
	if a.path == nil {
		// Re-ordered mid-walk: plan from the current cell.
		a.path = findPath(s.Grid, a.At, a.Dest)
		a.pathIndex = 1
		if a.path == nil {
			// The origin is already released; stop on the cell reached.
			s.SimLog.Add(s.tick, a.Label, "move", "no_path", fmt.Sprintf("%v → %v", a.At, a.Dest), 0)
			a.Dest = a.At
			s.arrive(a)
			return
		}
	}
	if a.pathIndex < len(a.path) {
		a.At = a.path[a.pathIndex]
		a.pathIndex++
	}
	if a.pathIndex >= len(a.path) {
		s.arrive(a)
	}
}

// arrive claims the destination, falling back to the nearest free cell.
// A saturated neighbourhood leaves the agent blocked to retry next tick.
func (s *Sim) arrive(a *Agent) {
	got, ok := movement.Arrive(s.Grid, s.Query, a.ID, a.Dest, grid.OccupantCharacter, s.Cfg.Search.MaxRadius)
	if !ok {
		if a.State != AgentBlocked {
			s.SimLog.Add(s.tick, a.Label, "move", "blocked", a.Dest.String(), 0)
		}
		a.State = AgentBlocked
		return
	}
	if got != a.Dest {
		drift := math.Sqrt(float64(got.DistSq(a.Dest)))
		s.SimLog.Add(s.tick, a.Label, "move", "requeried", fmt.Sprintf("%v → %v", a.Dest, got), drift)
	}
	a.At = got
	a.Dest = got
	a.path = nil
	a.State = AgentIdle
	s.SimLog.Add(s.tick, a.Label, "move", "arrived", got.String(), 0)
}

// RunTicks advances the simulation n ticks.
func (s *Sim) RunTicks(n int) {
	for i := 0; i < n; i++ {
		s.Step()
	}
}

// RunUntil advances the simulation up to maxTicks, stopping early if predicate
// returns true. Returns the tick at which the predicate was satisfied, or -1.
func (s *Sim) RunUntil(predicate func(*Sim) bool, maxTicks int) int {
	for i := 0; i < maxTicks; i++ {
		s.Step()
		if predicate(s) {
			return s.tick
		}
	}
	return -1
}

// SimSnapshot is a lightweight state summary.
type SimSnapshot struct {
	Tick   int
	Agents []AgentSnapshot
}

// AgentSnapshot is a copy of an agent's state at a tick.
type AgentSnapshot struct {
	Label string
	At    grid.Coord
	Dest  grid.Coord
	State AgentState
}

// Snapshot returns the current state of all agents.
func (s *Sim) Snapshot() SimSnapshot {
	snap := SimSnapshot{Tick: s.tick}
	for _, a := range s.Agents {
		snap.Agents = append(snap.Agents, AgentSnapshot{Label: a.Label, At: a.At, Dest: a.Dest, State: a.State})
	}
	return snap
}
