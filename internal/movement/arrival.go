package movement

import (
	"log/slog"

	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/spatial"
)

// arrivalRetries bounds how often a re-queried cell may be lost to another
// claimer between the query and the claim.
const arrivalRetries = 3

// Claimer is the write side a mover needs on arrival. *grid.Grid satisfies it.
type Claimer interface {
	Occupy(c grid.Coord, occupant grid.Handle, t grid.OccupantType) bool
}

// Arrive claims dest for id. When dest was taken after assignment it falls
// back to the nearest free cell around dest and claims that one instead. The
// returned coordinate is where id now stands; false means the area is
// saturated and nothing was claimed.
func Arrive(g Claimer, q *spatial.Service, id grid.Handle, dest grid.Coord, t grid.OccupantType, maxRadius int) (grid.Coord, bool) {
	if g.Occupy(dest, id, t) {
		return dest, true
	}
	for try := 0; try < arrivalRetries; try++ {
		alt, ok := q.NearestFreeCell(dest, maxRadius)
		if !ok {
			slog.Debug("arrival saturated", "agent", id, "dest", dest, "maxRadius", maxRadius)
			return grid.Coord{}, false
		}
		if g.Occupy(alt, id, t) {
			slog.Debug("arrival re-queried", "agent", id, "dest", dest, "claimed", alt)
			return alt, true
		}
	}
	slog.Debug("arrival lost every retry", "agent", id, "dest", dest)
	return grid.Coord{}, false
}
