// Package stream serves a read-only websocket feed of lattice occupancy: one
// snapshot frame on connect, then one frame per occupancy event.
package stream

import (
	"fmt"

	"github.com/vmihailenco/msgpack/v5"

	"github.com/Garsondee/Grid-Sense/internal/grid"
)

// Frame kinds.
const (
	KindSnapshot = "snapshot"
	KindEvent    = "event"
)

// CellState is one occupied cell on the wire.
type CellState struct {
	X        int    `msgpack:"x"`
	Y        int    `msgpack:"y"`
	Type     string `msgpack:"t"`
	Occupant string `msgpack:"o"`
}

// EventState is one occupancy event on the wire.
type EventState struct {
	Kind     string `msgpack:"k"`
	X        int    `msgpack:"x"`
	Y        int    `msgpack:"y"`
	Type     string `msgpack:"t"`
	Occupant string `msgpack:"o,omitempty"`
}

// Frame is the message sent to clients as a binary websocket message.
// Snapshots carry dimensions and the occupied cells; event frames carry
// Event and the bus sequence number. An event can repeat a change already
// visible in the preceding snapshot; applying it again is harmless.
type Frame struct {
	Kind     string      `msgpack:"kind"`
	Seq      uint64      `msgpack:"seq"`
	Width    int         `msgpack:"w,omitempty"`
	Height   int         `msgpack:"h,omitempty"`
	CellSize float64     `msgpack:"s,omitempty"`
	Cells    []CellState `msgpack:"cells,omitempty"`
	Event    *EventState `msgpack:"ev,omitempty"`
}

// SnapshotFrame captures every occupied cell of g.
func SnapshotFrame(g *grid.Grid) Frame {
	f := Frame{Kind: KindSnapshot}
	// Dimensions and cells come from separate reads; a rebuild in between is
	// followed by its own snapshot.
	f.Width, f.Height, f.CellSize = g.Width(), g.Height(), g.CellSize()
	for _, c := range g.Snapshot() {
		if !c.Occupied {
			continue
		}
		f.Cells = append(f.Cells, CellState{X: c.Coord.X, Y: c.Coord.Y, Type: c.Type.String(), Occupant: c.Occupant.String()})
	}
	return f
}

// EventFrame wraps a single occupancy event.
func EventFrame(ev grid.Event) Frame {
	es := &EventState{Kind: ev.Kind.String(), X: ev.Coord.X, Y: ev.Coord.Y, Type: ev.Type.String()}
	if ev.Occupant != grid.NoOccupant {
		es.Occupant = ev.Occupant.String()
	}
	return Frame{Kind: KindEvent, Seq: ev.Seq, Event: es}
}

// Encode serializes f with msgpack.
func Encode(f Frame) ([]byte, error) {
	data, err := msgpack.Marshal(&f)
	if err != nil {
		return nil, fmt.Errorf("stream: encode %s frame: %w", f.Kind, err)
	}
	return data, nil
}

// Decode parses a frame produced by Encode.
func Decode(data []byte) (Frame, error) {
	var f Frame
	if err := msgpack.Unmarshal(data, &f); err != nil {
		return Frame{}, fmt.Errorf("stream: decode frame: %w", err)
	}
	return f, nil
}
