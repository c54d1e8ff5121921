package sim

import (
	"container/heap"
	"math"

	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/spatial"
)

// --- A* pathfinding over the occupancy lattice ---

type pathNode struct {
	c      grid.Coord
	g, h   float64
	parent *pathNode
	index  int // heap index
}

type openList []*pathNode

func (ol openList) Len() int           { return len(ol) }
func (ol openList) Less(i, j int) bool { return (ol[i].g + ol[i].h) < (ol[j].g + ol[j].h) }
func (ol openList) Swap(i, j int)      { ol[i], ol[j] = ol[j], ol[i]; ol[i].index = i; ol[j].index = j }
func (ol *openList) Push(x interface{}) {
	n := x.(*pathNode)
	n.index = len(*ol)
	*ol = append(*ol, n)
}
func (ol *openList) Pop() interface{} {
	old := *ol
	n := old[len(old)-1]
	old[len(old)-1] = nil
	*ol = old[:len(old)-1]
	return n
}

var dirs = [8]grid.Coord{
	{X: 1, Y: 0}, {X: -1, Y: 0}, {X: 0, Y: 1}, {X: 0, Y: -1},
	{X: 1, Y: 1}, {X: 1, Y: -1}, {X: -1, Y: 1}, {X: -1, Y: -1},
}

func octile(a, b grid.Coord) float64 {
	dx := math.Abs(float64(a.X - b.X))
	dy := math.Abs(float64(a.Y - b.Y))
	return dx + dy + (math.Sqrt2-2)*math.Min(dx, dy)
}

// findPath returns the cells from start to goal inclusive, or nil if goal is
// unreachable. Occupied cells block, except start and goal themselves: the
// mover has usually not left start yet, and goal is only checked on arrival.
func findPath(lat spatial.Lattice, start, goal grid.Coord) []grid.Coord {
	passable := func(c grid.Coord) bool {
		if c == start || c == goal {
			return lat.IsValid(c)
		}
		return lat.IsFree(c)
	}
	if !passable(start) || !passable(goal) {
		return nil
	}

	first := &pathNode{c: start, h: octile(start, goal)}
	ol := &openList{first}
	heap.Init(ol)

	closed := make(map[grid.Coord]bool)
	best := map[grid.Coord]*pathNode{start: first}

	for ol.Len() > 0 {
		cur := heap.Pop(ol).(*pathNode)
		if cur.c == goal {
			return buildPath(cur)
		}
		if closed[cur.c] {
			continue
		}
		closed[cur.c] = true

		for _, d := range dirs {
			n := cur.c.Add(d)
			if !passable(n) || closed[n] {
				continue
			}
			cost := 1.0
			if d.X != 0 && d.Y != 0 {
				// No diagonal corner-cutting past blocked cells.
				if !passable(grid.Coord{X: cur.c.X + d.X, Y: cur.c.Y}) || !passable(grid.Coord{X: cur.c.X, Y: cur.c.Y + d.Y}) {
					continue
				}
				cost = math.Sqrt2
			}
			g := cur.g + cost
			if prev, ok := best[n]; ok && g >= prev.g {
				continue
			}
			node := &pathNode{c: n, g: g, h: octile(n, goal), parent: cur}
			best[n] = node
			heap.Push(ol, node)
		}
	}
	return nil
}

func buildPath(end *pathNode) []grid.Coord {
	var cells []grid.Coord
	for n := end; n != nil; n = n.parent {
		cells = append(cells, n.c)
	}
	for i, j := 0, len(cells)-1; i < j; i, j = i+1, j-1 {
		cells[i], cells[j] = cells[j], cells[i]
	}
	return cells
}
