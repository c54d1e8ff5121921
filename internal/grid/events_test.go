package grid

import (
	"sync"
	"testing"
	"time"
)

func TestEvents_PublishedAfterCommit(t *testing.T) {
	g := mustGrid(t, 6, 6, 1)
	h := NewHandle()
	c := Coord{1, 1}

	var sawOccupied, sawFreeAfter bool
	cancel := g.Events().Subscribe(func(ev Event) {
		// Reads are allowed from a callback; the cell lock is already released.
		cell, _ := g.CellAt(ev.Coord)
		switch ev.Kind {
		case EventOccupied:
			sawOccupied = cell.Occupied && cell.Occupant == h
		case EventFreed:
			sawFreeAfter = !cell.Occupied && ev.Occupant == h
		}
	})
	defer cancel()

	g.Occupy(c, h, OccupantCharacter)
	g.Free(c)
	if !sawOccupied {
		t.Fatal("occupied event should observe the committed claim")
	}
	if !sawFreeAfter {
		t.Fatal("freed event should carry the prior occupant and observe the free cell")
	}
}

func TestEvents_NoEventOnFailedMutation(t *testing.T) {
	g := mustGrid(t, 6, 6, 1)
	g.Occupy(Coord{0, 0}, NewHandle(), OccupantObstacle)

	var got []Event
	cancel := g.Events().Subscribe(func(ev Event) { got = append(got, ev) })
	defer cancel()

	g.Occupy(Coord{0, 0}, NewHandle(), OccupantCharacter)
	g.Free(Coord{2, 2})
	g.OccupyFootprint(Coord{-1, -1}, 2, 2, NewHandle(), OccupantStructure)
	if len(got) != 0 {
		t.Fatalf("failed mutations published %d events", len(got))
	}
}

func TestEvents_SequenceIsStrictlyIncreasing(t *testing.T) {
	g := mustGrid(t, 16, 16, 1)
	var mu sync.Mutex
	var seqs []uint64
	cancel := g.Events().Subscribe(func(ev Event) {
		mu.Lock()
		seqs = append(seqs, ev.Seq)
		mu.Unlock()
	})
	defer cancel()

	var wg sync.WaitGroup
	lo, _ := g.Bounds()
	for w := 0; w < 8; w++ {
		wg.Add(1)
		go func(row int) {
			defer wg.Done()
			for x := 0; x < 16; x++ {
				c := Coord{X: lo.X + x, Y: lo.Y + row}
				g.Occupy(c, NewHandle(), OccupantCharacter)
				g.Free(c)
			}
		}(w)
	}
	wg.Wait()

	if len(seqs) != 8*16*2 {
		t.Fatalf("expected %d events, got %d", 8*16*2, len(seqs))
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("events out of order at %d: %d after %d", i, seqs[i], seqs[i-1])
		}
	}
}

func TestEvents_FootprintPublishesPerCell(t *testing.T) {
	g := mustGrid(t, 10, 10, 1)
	ch, cancel := g.Events().Channel(32)
	defer cancel()

	g.OccupyFootprint(Coord{0, 0}, 3, 2, NewHandle(), OccupantStructure)
	for i := 0; i < 6; i++ {
		select {
		case ev := <-ch:
			if ev.Kind != EventOccupied || ev.Type != OccupantStructure {
				t.Fatalf("unexpected event %+v", ev)
			}
		default:
			t.Fatalf("expected 6 events, got %d", i)
		}
	}
}

func TestEvents_FullChannelDropsInsteadOfBlocking(t *testing.T) {
	g := mustGrid(t, 10, 10, 1)
	_, cancel := g.Events().Channel(2)
	defer cancel()

	for x := 0; x < 5; x++ {
		g.Occupy(Coord{x, 0}, NewHandle(), OccupantCharacter)
	}
	if d := g.Events().Dropped(); d != 3 {
		t.Fatalf("expected 3 dropped events, got %d", d)
	}
	if g.OccupiedCount() != 5 {
		t.Fatal("a slow observer must not stop mutations")
	}
}

func TestEvents_CancelStopsDelivery(t *testing.T) {
	g := mustGrid(t, 6, 6, 1)
	n := 0
	cancel := g.Events().Subscribe(func(Event) { n++ })
	g.Occupy(Coord{0, 0}, NewHandle(), OccupantCharacter)
	cancel()
	g.Occupy(Coord{1, 0}, NewHandle(), OccupantCharacter)
	if n != 1 {
		t.Fatalf("expected 1 event before cancel, got %d", n)
	}

	ch, stop := g.Events().Channel(4)
	stop()
	stop()
	if _, open := <-ch; open {
		t.Fatal("cancelled channel should be closed")
	}
}

func TestEvents_RebuildPublishesRebuilt(t *testing.T) {
	g := mustGrid(t, 6, 6, 1)
	var kinds []EventKind
	cancel := g.Events().Subscribe(func(ev Event) { kinds = append(kinds, ev.Kind) })
	defer cancel()

	if err := g.Rebuild(4, 4, 1); err != nil {
		t.Fatal(err)
	}
	if len(kinds) != 1 || kinds[0] != EventRebuilt {
		t.Fatalf("expected a single rebuilt event, got %v", kinds)
	}
}

func TestEvents_CallbackReadsUnderConcurrentWriters(t *testing.T) {
	g := mustGrid(t, 32, 32, 1)
	lo, _ := g.Bounds()

	var seqs []uint64
	cancel := g.Events().Subscribe(func(ev Event) {
		g.CellAt(ev.Coord)
		g.IsFree(ev.Coord)
		seqs = append(seqs, ev.Seq)
	})
	defer cancel()

	const writers, rounds = 8, 200
	done := make(chan struct{})
	go func() {
		var wg sync.WaitGroup
		for w := 0; w < writers; w++ {
			wg.Add(1)
			go func(w int) {
				defer wg.Done()
				h := NewHandle()
				for i := 0; i < rounds; i++ {
					c := Coord{X: lo.X + (w*4+i)%32, Y: lo.Y + (w+i)%32}
					if g.Occupy(c, h, OccupantCharacter) {
						g.Free(c)
					}
				}
			}(w)
		}
		wg.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("writers stalled while a callback was reading the grid")
	}
	for i := 1; i < len(seqs); i++ {
		if seqs[i] != seqs[i-1]+1 {
			t.Fatalf("callback saw seq %d after %d", seqs[i], seqs[i-1])
		}
	}
	if g.OccupiedCount() != 0 {
		t.Fatalf("every claim was released, %d cells still occupied", g.OccupiedCount())
	}
}
