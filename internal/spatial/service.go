// Package spatial answers free-cell questions against an occupancy lattice:
// random free cell, bounded window scan and the expanding-ring nearest search
// used by group movement and arrival.
package spatial

import "github.com/Garsondee/Grid-Sense/internal/grid"

// DefaultMaxRadius bounds a ring search when the caller passes no cap.
const DefaultMaxRadius = 10

// Lattice is the read side of an occupancy grid. *grid.Grid satisfies it.
type Lattice interface {
	IsValid(c grid.Coord) bool
	IsFree(c grid.Coord) bool
	RandomFreeCell() (grid.Cell, bool)
	FreeCellsInRadius(center grid.Coord, radius int) []grid.Cell
}

// Service runs spatial queries over a Lattice.
type Service struct {
	lat Lattice
}

// NewService wraps lat.
func NewService(lat Lattice) *Service {
	return &Service{lat: lat}
}

// Lattice returns the wrapped lattice.
func (s *Service) Lattice() Lattice {
	return s.lat
}

// ring1 is the radius-1 preference order: cardinals (right, left, up, down)
// before diagonals.
var ring1 = [8]grid.Coord{
	{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1},
	{X: 1, Y: 1}, {X: -1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: -1},
}

// Ring returns the offsets at Chebyshev distance r in scan order. Radius 1
// uses the cardinal-first preference order; larger radii walk the square's
// perimeter row-major (y ascending, then x ascending). Ring(0) is the
// center alone.
func Ring(r int) []grid.Coord {
	switch {
	case r < 0:
		return nil
	case r == 0:
		return []grid.Coord{{}}
	case r == 1:
		out := make([]grid.Coord, len(ring1))
		copy(out, ring1[:])
		return out
	}
	out := make([]grid.Coord, 0, 8*r)
	for dy := -r; dy <= r; dy++ {
		for dx := -r; dx <= r; dx++ {
			if abs(dx) != r && abs(dy) != r {
				continue
			}
			out = append(out, grid.Coord{X: dx, Y: dy})
		}
	}
	return out
}

// NearestFreeCell scans rings of radius 1..maxRadius around center and
// returns the first valid, free coordinate. The center itself is never a
// candidate. maxRadius <= 0 uses DefaultMaxRadius.
func (s *Service) NearestFreeCell(center grid.Coord, maxRadius int) (grid.Coord, bool) {
	if maxRadius <= 0 {
		maxRadius = DefaultMaxRadius
	}
	for r := 1; r <= maxRadius; r++ {
		for _, off := range Ring(r) {
			c := center.Add(off)
			if s.lat.IsFree(c) {
				return c, true
			}
		}
	}
	return grid.Coord{}, false
}

// RandomFreeCell forwards to the lattice.
func (s *Service) RandomFreeCell() (grid.Cell, bool) {
	return s.lat.RandomFreeCell()
}

// FreeCellsInRadius forwards to the lattice.
func (s *Service) FreeCellsInRadius(center grid.Coord, radius int) []grid.Cell {
	return s.lat.FreeCellsInRadius(center, radius)
}

func abs(x int) int {
	if x < 0 {
		return -x
	}
	return x
}
