package grid

// CanPlaceFootprint reports whether every cell of the w x h block whose
// lowest corner is origin is valid and free.
func (g *Grid) CanPlaceFootprint(origin Coord, w, h int) bool {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.canPlace(origin, w, h)
}

// canPlace is CanPlaceFootprint without locking. Caller holds g.mu.
func (g *Grid) canPlace(origin Coord, w, h int) bool {
	if w <= 0 || h <= 0 {
		return false
	}
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			i, ok := g.index(Coord{X: origin.X + dx, Y: origin.Y + dy})
			if !ok || g.cells[i].Occupied {
				return false
			}
		}
	}
	return true
}

// OccupyFootprint claims the whole w x h block for occupant, or nothing.
// The check and the claim happen under one lock.
func (g *Grid) OccupyFootprint(origin Coord, w, h int, occupant Handle, t OccupantType) bool {
	if occupant == NoOccupant || t == OccupantNone || !t.Valid() {
		return false
	}
	g.mu.Lock()
	if !g.canPlace(origin, w, h) {
		g.mu.Unlock()
		return false
	}
	evs := make([]Event, 0, w*h)
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c := Coord{X: origin.X + dx, Y: origin.Y + dy}
			i, _ := g.index(c)
			cell := &g.cells[i]
			cell.Occupied = true
			cell.Occupant = occupant
			cell.Type = t
			evs = append(evs, Event{Kind: EventOccupied, Coord: c, Occupant: occupant, Type: t})
		}
	}
	g.occupied += len(evs)
	g.commit(evs...)
	return true
}

// FreeFootprint releases every occupied cell in the block regardless of
// who holds it. Invalid and already-free cells are skipped.
func (g *Grid) FreeFootprint(origin Coord, w, h int) {
	if w <= 0 || h <= 0 {
		return
	}
	g.mu.Lock()
	var evs []Event
	for dy := 0; dy < h; dy++ {
		for dx := 0; dx < w; dx++ {
			c := Coord{X: origin.X + dx, Y: origin.Y + dy}
			i, ok := g.index(c)
			if !ok || !g.cells[i].Occupied {
				continue
			}
			cell := &g.cells[i]
			evs = append(evs, Event{Kind: EventFreed, Coord: c, Occupant: cell.Occupant, Type: cell.Type})
			cell.clear()
		}
	}
	if len(evs) == 0 {
		g.mu.Unlock()
		return
	}
	g.occupied -= len(evs)
	g.commit(evs...)
}
