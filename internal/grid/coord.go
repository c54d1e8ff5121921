package grid

import "fmt"

// Coord is an integer lattice coordinate. The lattice is centered on the
// origin, so negative components are normal.
type Coord struct {
	X int
	Y int
}

// Add returns c offset by d.
func (c Coord) Add(d Coord) Coord {
	return Coord{X: c.X + d.X, Y: c.Y + d.Y}
}

// DistSq returns the squared Euclidean distance between c and o in grid units.
func (c Coord) DistSq(o Coord) int {
	dx := c.X - o.X
	dy := c.Y - o.Y
	return dx*dx + dy*dy
}

// Chebyshev returns the ring index of o around c (max per-axis offset).
func (c Coord) Chebyshev(o Coord) int {
	return max(abs(c.X-o.X), abs(c.Y-o.Y))
}

func (c Coord) String() string {
	return fmt.Sprintf("(%d,%d)", c.X, c.Y)
}

// Vec3 is a world-space position. The lattice lies in the X/Z plane; Y is up.
type Vec3 struct {
	X float64
	Y float64
	Z float64
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
