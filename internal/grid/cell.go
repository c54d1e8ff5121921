package grid

import "github.com/google/uuid"

// OccupantType tags what is standing on a cell.
type OccupantType uint8

const (
	OccupantNone      OccupantType = iota // Empty cell
	OccupantCharacter                     // Agent / soldier / colonist
	OccupantObstacle                      // Rock, tree, wall segment
	OccupantStructure                     // Building footprint
	OccupantResource                      // Harvestable node
	occupantTypeCount                     // sentinel
)

func (t OccupantType) String() string {
	switch t {
	case OccupantNone:
		return "none"
	case OccupantCharacter:
		return "character"
	case OccupantObstacle:
		return "obstacle"
	case OccupantStructure:
		return "structure"
	case OccupantResource:
		return "resource"
	default:
		return "unknown"
	}
}

// Valid reports whether t is one of the declared occupant types.
func (t OccupantType) Valid() bool {
	return t < occupantTypeCount
}

// Handle identifies an occupant. The grid never interprets it.
type Handle = uuid.UUID

// NoOccupant is the zero handle recorded on free cells.
var NoOccupant = uuid.Nil

// NewHandle mints a random occupant handle.
func NewHandle() Handle {
	return uuid.New()
}

// Cell is one unit of the lattice.
// Occupied is true exactly when Occupant != NoOccupant.
type Cell struct {
	Coord    Coord
	World    Vec3 // cached world-space center
	Occupied bool
	Occupant Handle
	Type     OccupantType
}

func (c *Cell) clear() {
	c.Occupied = false
	c.Occupant = NoOccupant
	c.Type = OccupantNone
}
