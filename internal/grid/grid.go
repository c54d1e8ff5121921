package grid

import (
	"errors"
	"fmt"
	"log/slog"
	"math"
	"math/rand"
	"sync"
)

// ErrInvalidDimensions is returned when a grid would be built with a
// non-positive width, height or cell size.
var ErrInvalidDimensions = errors.New("grid: invalid dimensions")

// Grid is the authoritative occupancy lattice. All methods are safe for
// concurrent use; mutations are all-or-nothing and publish their events
// only after the change has committed.
type Grid struct {
	mu       sync.RWMutex
	width    int
	height   int
	cellSize float64
	minX     int
	minY     int
	cells    []Cell // row-major: index = (y-minY)*width + (x-minX)
	occupied int

	rngMu sync.Mutex
	rng   *rand.Rand

	events *Bus
}

// Option configures a Grid at construction.
type Option func(*Grid)

// WithSeed seeds the RNG used by RandomFreeCell.
func WithSeed(seed int64) Option {
	return func(g *Grid) {
		g.rng = rand.New(rand.NewSource(seed)) // #nosec G404 -- simulation RNG, not crypto
	}
}

// WithRand uses r for RandomFreeCell. The grid serializes access to it.
func WithRand(r *rand.Rand) Option {
	return func(g *Grid) {
		if r != nil {
			g.rng = r
		}
	}
}

// WithBus publishes occupancy events on b instead of a private bus.
func WithBus(b *Bus) Option {
	return func(g *Grid) {
		if b != nil {
			g.events = b
		}
	}
}

// New builds a width x height lattice with square cells of cellSize world
// units. Malformed dimensions fail immediately.
func New(width, height int, cellSize float64, opts ...Option) (*Grid, error) {
	if err := validateDims(width, height, cellSize); err != nil {
		return nil, err
	}
	g := &Grid{
		rng:    rand.New(rand.NewSource(1)), // #nosec G404 -- default deterministic seed
		events: NewBus(),
	}
	for _, o := range opts {
		o(g)
	}
	g.build(width, height, cellSize)
	return g, nil
}

func validateDims(width, height int, cellSize float64) error {
	if width <= 0 || height <= 0 {
		return fmt.Errorf("%w: width=%d height=%d", ErrInvalidDimensions, width, height)
	}
	if cellSize <= 0 || math.IsNaN(cellSize) || math.IsInf(cellSize, 0) {
		return fmt.Errorf("%w: cellSize=%g", ErrInvalidDimensions, cellSize)
	}
	return nil
}

// build (re)allocates every cell. Caller holds g.mu or owns g exclusively.
func (g *Grid) build(width, height int, cellSize float64) {
	g.width = width
	g.height = height
	g.cellSize = cellSize
	g.minX = -width / 2
	g.minY = -height / 2
	g.occupied = 0
	g.cells = make([]Cell, width*height)
	for row := 0; row < height; row++ {
		for col := 0; col < width; col++ {
			c := Coord{X: g.minX + col, Y: g.minY + row}
			g.cells[row*width+col] = Cell{Coord: c, World: g.gridToWorld(c)}
		}
	}
}

// Rebuild discards every cell and all occupancy and builds a fresh lattice.
// Invalid dimensions leave the current grid untouched.
func (g *Grid) Rebuild(width, height int, cellSize float64) error {
	if err := validateDims(width, height, cellSize); err != nil {
		return err
	}
	g.mu.Lock()
	discarded := g.occupied
	g.build(width, height, cellSize)
	slog.Info("grid rebuilt", "width", width, "height", height, "cellSize", cellSize, "discarded", discarded)
	g.commit(Event{Kind: EventRebuilt})
	return nil
}

// Events returns the bus occupancy notifications are published on.
func (g *Grid) Events() *Bus {
	return g.events
}

// commit queues evs while the cell lock is still held, releases it and then
// drains the bus. Events leave in commit order, and by the time commit
// returns the caller's own events have been delivered.
// Caller holds g.mu for writing; commit releases it.
func (g *Grid) commit(evs ...Event) {
	g.events.enqueue(evs)
	g.mu.Unlock()
	g.events.flush()
}

// index maps c to its slot in g.cells. Caller holds g.mu.
func (g *Grid) index(c Coord) (int, bool) {
	col := c.X - g.minX
	row := c.Y - g.minY
	if col < 0 || col >= g.width || row < 0 || row >= g.height {
		return 0, false
	}
	return row*g.width + col, true
}

// Width returns the number of columns.
func (g *Grid) Width() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.width
}

// Height returns the number of rows.
func (g *Grid) Height() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.height
}

// CellSize returns the world-space edge length of one cell.
func (g *Grid) CellSize() float64 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.cellSize
}

// Bounds returns the smallest and largest valid coordinates (inclusive).
func (g *Grid) Bounds() (lo, hi Coord) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return Coord{X: g.minX, Y: g.minY}, Coord{X: g.minX + g.width - 1, Y: g.minY + g.height - 1}
}

// OccupiedCount returns how many cells are currently claimed.
func (g *Grid) OccupiedCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.occupied
}

// GridToWorld returns the world-space center of c. It does not check bounds.
func (g *Grid) GridToWorld(c Coord) Vec3 {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.gridToWorld(c)
}

func (g *Grid) gridToWorld(c Coord) Vec3 {
	s := g.cellSize
	return Vec3{X: float64(c.X)*s + s/2, Y: 0, Z: float64(c.Y)*s + s/2}
}

// WorldToGrid returns the coordinate whose cell contains w. Y is ignored.
func (g *Grid) WorldToGrid(w Vec3) Coord {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := g.cellSize
	return Coord{
		X: int(math.Round((w.X - s/2) / s)),
		Y: int(math.Round((w.Z - s/2) / s)),
	}
}

// CellAt returns a copy of the cell at c, or false outside the lattice.
func (g *Grid) CellAt(c Coord) (Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index(c)
	if !ok {
		return Cell{}, false
	}
	return g.cells[i], true
}

// IsValid reports whether c lies inside the lattice.
func (g *Grid) IsValid(c Coord) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	_, ok := g.index(c)
	return ok
}

// IsFree reports whether c is inside the lattice and unoccupied.
func (g *Grid) IsFree(c Coord) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	i, ok := g.index(c)
	return ok && !g.cells[i].Occupied
}

// Occupy claims c for occupant. It fails without side effects when c is
// outside the lattice or already taken, or when the claim itself is empty.
func (g *Grid) Occupy(c Coord, occupant Handle, t OccupantType) bool {
	if occupant == NoOccupant || t == OccupantNone || !t.Valid() {
		return false
	}
	g.mu.Lock()
	i, ok := g.index(c)
	if !ok || g.cells[i].Occupied {
		g.mu.Unlock()
		return false
	}
	cell := &g.cells[i]
	cell.Occupied = true
	cell.Occupant = occupant
	cell.Type = t
	g.occupied++
	g.commit(Event{Kind: EventOccupied, Coord: c, Occupant: occupant, Type: t})
	return true
}

// Free releases c. It fails without side effects when c is outside the
// lattice or not occupied.
func (g *Grid) Free(c Coord) bool {
	g.mu.Lock()
	i, ok := g.index(c)
	if !ok || !g.cells[i].Occupied {
		g.mu.Unlock()
		return false
	}
	cell := &g.cells[i]
	ev := Event{Kind: EventFreed, Coord: c, Occupant: cell.Occupant, Type: cell.Type}
	cell.clear()
	g.occupied--
	g.commit(ev)
	return true
}

// RandomFreeCell returns a cell chosen uniformly among the free ones, or
// false when the lattice is saturated.
func (g *Grid) RandomFreeCell() (Cell, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	free := len(g.cells) - g.occupied
	if free <= 0 {
		return Cell{}, false
	}
	g.rngMu.Lock()
	k := g.rng.Intn(free)
	g.rngMu.Unlock()
	for i := range g.cells {
		if g.cells[i].Occupied {
			continue
		}
		if k == 0 {
			return g.cells[i], true
		}
		k--
	}
	return Cell{}, false
}

// maxScanRadius keeps center±radius from overflowing.
const maxScanRadius = 1 << 30

// FreeCellsInRadius returns every free cell whose per-axis offset from
// center is within radius, in row-major order.
func (g *Grid) FreeCellsInRadius(center Coord, radius int) []Cell {
	if radius < 0 {
		return nil
	}
	g.mu.RLock()
	defer g.mu.RUnlock()
	// Clamp the square to the lattice so huge radii cost at most W*H.
	radius = min(radius, maxScanRadius)
	x0 := max(center.X-radius, g.minX)
	x1 := min(center.X+radius, g.minX+g.width-1)
	y0 := max(center.Y-radius, g.minY)
	y1 := min(center.Y+radius, g.minY+g.height-1)
	var out []Cell
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			i, ok := g.index(Coord{X: x, Y: y})
			if ok && !g.cells[i].Occupied {
				out = append(out, g.cells[i])
			}
		}
	}
	return out
}

// CellsByOccupantType returns every cell currently tagged t. OccupantNone
// selects the free cells.
func (g *Grid) CellsByOccupantType(t OccupantType) []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Cell
	for i := range g.cells {
		if g.cells[i].Type == t {
			out = append(out, g.cells[i])
		}
	}
	return out
}

// Snapshot returns a copy of every cell in row-major order.
func (g *Grid) Snapshot() []Cell {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Cell, len(g.cells))
	copy(out, g.cells)
	return out
}
