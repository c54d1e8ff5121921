// Package movement turns "move this group toward that point" into a
// collision-free per-agent destination map, and carries the small helpers
// movers use around it: local wandering and claim-on-arrival.
package movement

import (
	"log/slog"
	"math/rand"
	"sort"
	"sync"

	"github.com/zyedidia/generic/mapset"

	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/spatial"
)

// DefaultRadiusCap is the outermost ring scanned for gather candidates.
const DefaultRadiusCap = 10

// TieBreak selects how equally-distant anchor candidates are resolved.
type TieBreak uint8

const (
	TieBreakRandom TieBreak = iota // uniform among tied agents, seeded
	TieBreakStable                 // first tied agent in input order
)

func (t TieBreak) String() string {
	switch t {
	case TieBreakRandom:
		return "random"
	case TieBreakStable:
		return "stable"
	default:
		return "unknown"
	}
}

// Status summarizes an assignment pass.
type Status uint8

const (
	StatusOK            Status = iota // every agent has a destination
	StatusPartial                     // local saturation left some agents without one
	StatusInvalidTarget               // target is off the lattice; nobody was assigned
)

func (s Status) String() string {
	switch s {
	case StatusOK:
		return "ok"
	case StatusPartial:
		return "partial"
	case StatusInvalidTarget:
		return "invalid_target"
	default:
		return "unknown"
	}
}

// Agent is one requester: its handle and where it stands now.
type Agent struct {
	ID grid.Handle
	At grid.Coord
}

// Request asks for destinations around Target for every agent.
type Request struct {
	Agents []Agent
	Target grid.Coord
}

// Result maps each placed agent to a distinct destination. Nothing in it is
// reserved on the grid; movers claim on arrival.
type Result struct {
	Target       grid.Coord
	Anchor       grid.Handle // NoOccupant when no agent took the target
	Destinations map[grid.Handle]grid.Coord
	Order        []grid.Handle // assigned agents in assignment order
	Unassigned   []grid.Handle
	Status       Status
}

// Assigned reports how many agents received a destination.
func (r Result) Assigned() int {
	return len(r.Destinations)
}

// Coordinator computes gather assignments. It keeps no state between passes
// apart from its RNG, so overlapping passes may hand out colliding
// destinations; arrival is the real gate.
type Coordinator struct {
	q         *spatial.Service
	radiusCap int
	tieBreak  TieBreak

	rngMu sync.Mutex
	rng   *rand.Rand
}

// Option configures a Coordinator.
type Option func(*Coordinator)

// WithRadiusCap sets the outermost candidate ring. r <= 0 keeps the default.
func WithRadiusCap(r int) Option {
	return func(c *Coordinator) {
		if r > 0 {
			c.radiusCap = r
		}
	}
}

// WithTieBreak selects the anchor tie-break rule.
func WithTieBreak(t TieBreak) Option {
	return func(c *Coordinator) { c.tieBreak = t }
}

// WithSeed seeds the anchor tie-break RNG.
func WithSeed(seed int64) Option {
	return func(c *Coordinator) {
		c.rng = rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation RNG, not crypto
	}
}

// WithRand uses r for anchor tie-breaks. The coordinator serializes access.
func WithRand(r *rand.Rand) Option {
	return func(c *Coordinator) {
		if r != nil {
			c.rng = r
		}
	}
}

// NewCoordinator builds a coordinator querying q.
func NewCoordinator(q *spatial.Service, opts ...Option) *Coordinator {
	c := &Coordinator{
		q:         q,
		radiusCap: DefaultRadiusCap,
		tieBreak:  TieBreakRandom,
		rng:       rand.New(rand.NewSource(1)), // #nosec G404 -- default deterministic seed
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

type ranked struct {
	Agent
	d int
}

// Assign resolves req into per-agent destinations. The agent nearest the
// target gets the target itself when it is free; everyone else is matched,
// nearest first, against the nearest free ring cells.
func (c *Coordinator) Assign(req Request) Result {
	res := Result{
		Target:       req.Target,
		Anchor:       grid.NoOccupant,
		Destinations: make(map[grid.Handle]grid.Coord, len(req.Agents)),
		Status:       StatusOK,
	}

	agents := dedupe(req.Agents)
	if len(agents) == 0 {
		return res
	}
	lat := c.q.Lattice()
	if !lat.IsValid(req.Target) {
		for _, a := range agents {
			res.Unassigned = append(res.Unassigned, a.ID)
		}
		res.Status = StatusInvalidTarget
		slog.Debug("gather target off lattice", "target", req.Target, "agents", len(agents))
		return res
	}

	pool := make([]ranked, len(agents))
	for i, a := range agents {
		pool[i] = ranked{Agent: a, d: a.At.DistSq(req.Target)}
	}

	consumed := mapset.New[grid.Coord]()
	anchor := c.pickAnchor(pool)
	if lat.IsFree(req.Target) {
		a := pool[anchor]
		res.Anchor = a.ID
		res.Destinations[a.ID] = req.Target
		res.Order = append(res.Order, a.ID)
		consumed.Put(req.Target)
		pool = append(pool[:anchor:anchor], pool[anchor+1:]...)
	}

	sort.SliceStable(pool, func(i, j int) bool { return pool[i].d < pool[j].d })

	cands := c.candidates(req.Target, len(pool), consumed)
	for i, a := range pool {
		if i >= len(cands) {
			res.Unassigned = append(res.Unassigned, a.ID)
			continue
		}
		res.Destinations[a.ID] = cands[i]
		res.Order = append(res.Order, a.ID)
	}
	if len(res.Unassigned) > 0 {
		res.Status = StatusPartial
		slog.Debug("gather saturated", "target", req.Target, "unassigned", len(res.Unassigned), "radiusCap", c.radiusCap)
	}
	return res
}

// pickAnchor returns the index in pool of the anchor agent.
func (c *Coordinator) pickAnchor(pool []ranked) int {
	best := pool[0].d
	for _, a := range pool[1:] {
		if a.d < best {
			best = a.d
		}
	}
	var tied []int
	for i, a := range pool {
		if a.d == best {
			tied = append(tied, i)
		}
	}
	if len(tied) == 1 || c.tieBreak == TieBreakStable {
		return tied[0]
	}
	c.rngMu.Lock()
	k := c.rng.Intn(len(tied))
	c.rngMu.Unlock()
	return tied[k]
}

// candidates collects free ring cells around target, whole rings at a time,
// until there are at least need of them or the radius cap is reached. The
// result is ordered by distance to target, ring-scan order on ties.
func (c *Coordinator) candidates(target grid.Coord, need int, consumed mapset.Set[grid.Coord]) []grid.Coord {
	if need == 0 {
		return nil
	}
	lat := c.q.Lattice()
	var out []grid.Coord
	for r := 1; r <= c.radiusCap && len(out) < need; r++ {
		for _, off := range spatial.Ring(r) {
			p := target.Add(off)
			if consumed.Has(p) || !lat.IsFree(p) {
				continue
			}
			consumed.Put(p)
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].DistSq(target) < out[j].DistSq(target)
	})
	return out
}

// dedupe keeps the first occurrence of each agent handle.
func dedupe(in []Agent) []Agent {
	seen := mapset.New[grid.Handle]()
	out := make([]Agent, 0, len(in))
	for _, a := range in {
		if seen.Has(a.ID) {
			continue
		}
		seen.Put(a.ID)
		out = append(out, a)
	}
	return out
}
