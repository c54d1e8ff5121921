package main

import (
	"strings"
	"testing"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/movement"
)

func smallConfig() config.Config {
	cfg := config.Default()
	cfg.Grid.Width, cfg.Grid.Height = 40, 40
	cfg.Sim.Agents = 10
	cfg.Sim.Obstacles = 120
	return cfg
}

func TestRunGather_SettlesAndAccountsForEveryAgent(t *testing.T) {
	rs, err := runGather(1, 7, 400, smallConfig(), dumpRange{})
	if err != nil {
		t.Fatalf("runGather: %v", err)
	}
	if rs.agents != 10 {
		t.Fatalf("expected 10 agents, got %d", rs.agents)
	}
	if rs.status == movement.StatusInvalidTarget {
		t.Fatal("random free target must be on the lattice")
	}
	if rs.assigned+rs.unassigned != rs.agents {
		t.Fatalf("assigned=%d + unassigned=%d != agents=%d", rs.assigned, rs.unassigned, rs.agents)
	}
	if rs.settleTick < 0 {
		t.Fatal("run should settle within 400 ticks")
	}
	if rs.meanDist > rs.maxDist {
		t.Fatalf("mean %.2f exceeds max %.2f", rs.meanDist, rs.maxDist)
	}
}

func TestRunGather_SameSeedSameStats(t *testing.T) {
	a, err := runGather(1, 99, 400, smallConfig(), dumpRange{})
	if err != nil {
		t.Fatal(err)
	}
	b, err := runGather(1, 99, 400, smallConfig(), dumpRange{})
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("same seed produced different stats:\n%+v\n%+v", a, b)
	}
}

func TestRunGather_ConfigErrorsSurface(t *testing.T) {
	cfg := smallConfig()
	cfg.Grid.Width = 0
	if _, err := runGather(1, 1, 10, cfg, dumpRange{}); err == nil {
		t.Fatal("expected an error for a zero-width grid")
	}
}

func TestPrintAggregate(t *testing.T) {
	all := []runStats{
		{assigned: 8, unassigned: 2, requeried: 1, meanDist: 2, maxDist: 3, settleTick: 20},
		{assigned: 10, requeried: 3, meanDist: 4, maxDist: 6, settleTick: -1},
	}
	var out strings.Builder
	printAggregate(&out, all)
	got := out.String()
	for _, want := range []string{"runs=2 unsettled=1", "assigned=9.0", "requeried=2.0", "mean_of_means=3.00 worst=6.00", "settle_tick_avg=20.0"} {
		if !strings.Contains(got, want) {
			t.Fatalf("aggregate missing %q:\n%s", want, got)
		}
	}
}

func TestAvgTickString(t *testing.T) {
	if s := avgTickString(nil); s != "n/a" {
		t.Fatalf("expected n/a, got %s", s)
	}
	if s := avgTickString([]int{10, 20}); s != "15.0" {
		t.Fatalf("expected 15.0, got %s", s)
	}
}

func TestRunGather_DumpSelectedRun(t *testing.T) {
	rs, err := runGather(2, 7, 400, smallConfig(), dumpRange{run: 2, to: -1})
	if err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(rs.dump, "assigned") || !strings.Contains(rs.dump, "[T=000]") {
		t.Fatalf("full dump should include the tick-0 gather orders:\n%s", rs.dump)
	}

	windowed, err := runGather(2, 7, 400, smallConfig(), dumpRange{run: 2, from: 1, to: 1})
	if err != nil {
		t.Fatal(err)
	}
	if strings.Contains(windowed.dump, "[T=000]") {
		t.Fatalf("windowed dump leaked tick 0:\n%s", windowed.dump)
	}

	other, err := runGather(1, 7, 400, smallConfig(), dumpRange{run: 2, to: -1})
	if err != nil {
		t.Fatal(err)
	}
	if other.dump != "" {
		t.Fatal("unselected runs carry no dump")
	}
}
