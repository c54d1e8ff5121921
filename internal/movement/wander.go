package movement

import (
	"math/rand"

	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/spatial"
)

const (
	DefaultWanderWindow   = 5
	DefaultWanderAttempts = 8
)

// Wander picks a random free coordinate inside a window x window square
// centered on home. Even windows grow to the next odd size. After attempts
// failed picks it returns home.
func Wander(lat spatial.Lattice, rng *rand.Rand, home grid.Coord, window, attempts int) grid.Coord {
	if window <= 0 {
		window = DefaultWanderWindow
	}
	if window%2 == 0 {
		window++
	}
	if attempts <= 0 {
		attempts = DefaultWanderAttempts
	}
	half := window / 2
	for i := 0; i < attempts; i++ {
		c := grid.Coord{
			X: home.X + rng.Intn(window) - half,
			Y: home.Y + rng.Intn(window) - half,
		}
		if lat.IsFree(c) {
			return c
		}
	}
	return home
}
