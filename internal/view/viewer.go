// Package view is a read-only desktop viewer for the harness: it draws the
// lattice, the agents and a rolling occupancy log, and turns clicks into
// gather orders.
package view

import (
	"fmt"
	"image/color"
	"log/slog"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/ebitenutil"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/colornames"

	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/sim"
)

const (
	hudHeight   = 18
	minCellPx   = 2
	gridLinesPx = 6 // draw cell borders at or above this scale
	framesPerS  = 60
)

func occupantColor(t grid.OccupantType) color.RGBA {
	switch t {
	case grid.OccupantCharacter:
		return colornames.Deepskyblue
	case grid.OccupantObstacle:
		return colornames.Dimgray
	case grid.OccupantStructure:
		return colornames.Sienna
	case grid.OccupantResource:
		return colornames.Gold
	default:
		return colornames.Darkslategray
	}
}

// Viewer implements ebiten.Game over a harness.
type Viewer struct {
	sim    *sim.Sim
	cellPx int
	log    *EventLog

	events <-chan grid.Event
	cancel func()

	paused    bool
	wandering bool
	tickAccum float64
	tickRate  float64

	prevKeys      map[ebiten.Key]bool
	prevMouseLeft bool
	lastTarget    *grid.Coord
}

// New creates a viewer drawing each cell cellPx pixels wide.
func New(s *sim.Sim, cellPx int) *Viewer {
	if cellPx < minCellPx {
		cellPx = minCellPx
	}
	events, cancel := s.Grid.Events().Channel(512)
	return &Viewer{
		sim:      s,
		cellPx:   cellPx,
		log:      NewEventLog(),
		events:   events,
		cancel:   cancel,
		tickRate: float64(s.Cfg.Sim.TickRate),
		prevKeys: map[ebiten.Key]bool{},
	}
}

// Close stops the viewer's event subscription.
func (v *Viewer) Close() {
	v.cancel()
}

// Size returns the window size in pixels.
func (v *Viewer) Size() (int, int) {
	w := v.sim.Grid.Width()*v.cellPx + logPanelWidth
	h := v.sim.Grid.Height()*v.cellPx + hudHeight
	return w, h
}

// Layout implements ebiten.Game.
func (v *Viewer) Layout(_, _ int) (int, int) {
	return v.Size()
}

// Update implements ebiten.Game.
func (v *Viewer) Update() error {
	v.handleInput()
	v.drainEvents()
	if v.paused {
		return nil
	}
	v.tickAccum += v.tickRate / framesPerS
	for v.tickAccum >= 1.0 {
		v.tickAccum -= 1.0
		if v.wandering {
			v.sim.Wander(nil)
		}
		v.sim.Step()
	}
	return nil
}

// drainEvents moves everything the bus delivered since the last frame into
// the on-screen log.
func (v *Viewer) drainEvents() {
	for {
		select {
		case ev, ok := <-v.events:
			if !ok {
				return
			}
			v.log.Add(v.sim.CurrentTick(), v.sim.LabelOf(ev.Occupant), ev.Type, fmt.Sprintf("%s %v", ev.Kind, ev.Coord))
		default:
			return
		}
	}
}

func (v *Viewer) keyPressed(k ebiten.Key, now map[ebiten.Key]bool) bool {
	now[k] = ebiten.IsKeyPressed(k)
	return now[k] && !v.prevKeys[k]
}

// handleInput processes edge-triggered keys and clicks.
func (v *Viewer) handleInput() {
	currentKeys := map[ebiten.Key]bool{}

	// P: pause/resume.
	if v.keyPressed(ebiten.KeyP, currentKeys) {
		v.paused = !v.paused
	}
	// W: toggle wandering for idle agents.
	if v.keyPressed(ebiten.KeyW, currentKeys) {
		v.wandering = !v.wandering
	}

	// Left click: gather everyone at the clicked cell.
	if ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft) {
		if !v.prevMouseLeft {
			mx, my := ebiten.CursorPosition()
			if c, ok := v.ScreenToCell(mx, my); ok {
				v.gather(c)
			}
		}
	}
	v.prevMouseLeft = ebiten.IsMouseButtonPressed(ebiten.MouseButtonLeft)

	v.prevKeys = currentKeys
}

func (v *Viewer) gather(target grid.Coord) {
	res := v.sim.Gather(nil, target)
	v.lastTarget = &target
	v.log.Add(v.sim.CurrentTick(), "--", grid.OccupantNone,
		fmt.Sprintf("gather %v: %d assigned, %d left (%s)", target, res.Assigned(), len(res.Unassigned), res.Status))
	slog.Info("gather ordered", "target", target, "assigned", res.Assigned(), "unassigned", len(res.Unassigned))
}

// ScreenToCell maps a pixel inside the lattice area to its coordinate.
func (v *Viewer) ScreenToCell(mx, my int) (grid.Coord, bool) {
	if mx < 0 || my < 0 {
		return grid.Coord{}, false
	}
	lo, _ := v.sim.Grid.Bounds()
	c := grid.Coord{X: lo.X + mx/v.cellPx, Y: lo.Y + my/v.cellPx}
	if !v.sim.Grid.IsValid(c) {
		return grid.Coord{}, false
	}
	return c, true
}

// cellOrigin returns the top-left pixel of c.
func (v *Viewer) cellOrigin(c grid.Coord) (float32, float32) {
	lo, _ := v.sim.Grid.Bounds()
	return float32((c.X - lo.X) * v.cellPx), float32((c.Y - lo.Y) * v.cellPx)
}

// Draw implements ebiten.Game.
func (v *Viewer) Draw(screen *ebiten.Image) {
	screen.Fill(color.RGBA{R: 12, G: 14, B: 16, A: 255})

	gw := v.sim.Grid.Width() * v.cellPx
	gh := v.sim.Grid.Height() * v.cellPx
	px := float32(v.cellPx)

	vector.FillRect(screen, 0, 0, float32(gw), float32(gh), occupantColor(grid.OccupantNone), false)
	for _, c := range v.sim.Grid.Snapshot() {
		if !c.Occupied {
			continue
		}
		x, y := v.cellOrigin(c.Coord)
		vector.FillRect(screen, x, y, px, px, occupantColor(c.Type), false)
	}
	if v.cellPx >= gridLinesPx {
		v.drawGridLines(screen, gw, gh)
	}

	// Walking agents hold no cell; draw them and their destination.
	for _, a := range v.sim.Agents {
		if a.State == sim.AgentIdle {
			continue
		}
		x, y := v.cellOrigin(a.At)
		dx, dy := v.cellOrigin(a.Dest)
		half := px / 2
		vector.StrokeLine(screen, x+half, y+half, dx+half, dy+half, 1.0, color.RGBA{R: 255, G: 165, B: 0, A: 60}, false)
		vector.StrokeRect(screen, dx, dy, px, px, 1.0, colornames.Orange, false)
		vector.FillCircle(screen, x+half, y+half, max(half, 1), colornames.Orange, false)
	}
	if v.lastTarget != nil {
		x, y := v.cellOrigin(*v.lastTarget)
		vector.StrokeRect(screen, x-1, y-1, px+2, px+2, 1.5, colornames.Yellow, false)
	}

	status := "running"
	if v.paused {
		status = "paused"
	}
	wander := "off"
	if v.wandering {
		wander = "on"
	}
	ebitenutil.DebugPrintAt(screen,
		fmt.Sprintf("T=%d  %s  wander:%s  occupied:%d  [click] gather  [W] wander  [P] pause",
			v.sim.CurrentTick(), status, wander, v.sim.Grid.OccupiedCount()), 4, gh+1)

	v.log.Draw(screen, gw, gh+hudHeight)
}

func (v *Viewer) drawGridLines(screen *ebiten.Image, w, h int) {
	c := color.RGBA{R: 255, G: 255, B: 255, A: 14}
	for x := 0; x <= w; x += v.cellPx {
		vector.StrokeLine(screen, float32(x), 0, float32(x), float32(h), 1.0, c, false)
	}
	for y := 0; y <= h; y += v.cellPx {
		vector.StrokeLine(screen, 0, float32(y), float32(w), float32(y), 1.0, c, false)
	}
}
