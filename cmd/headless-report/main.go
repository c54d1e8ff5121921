package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math"
	"os"
	"strings"

	"github.com/atotto/clipboard"

	"github.com/Garsondee/Grid-Sense/internal/config"
	"github.com/Garsondee/Grid-Sense/internal/grid"
	"github.com/Garsondee/Grid-Sense/internal/movement"
	"github.com/Garsondee/Grid-Sense/internal/sim"
)

type runStats struct {
	runIndex int
	seed     int64
	target   grid.Coord
	status   movement.Status

	agents     int
	assigned   int
	unassigned int
	requeried  int
	noPath     int
	blocked    int

	meanDist    float64
	maxDist     float64
	settleTick  int // -1 when the run never settled
	maxReqDrift float64

	dump string // SimLog excerpt when this run was selected with -dump
}

// dumpRange selects a run and tick window whose SimLog is printed. to < 0
// means every recorded entry.
type dumpRange struct {
	run  int
	from int
	to   int
}

func main() {
	var runs int
	var ticks int
	var agents int
	var seedBase int64
	var seedStep int64
	var cfgPath string
	var logLevel string
	var copyOut bool
	var dump dumpRange

	flag.IntVar(&runs, "runs", 5, "number of headless gather runs")
	flag.IntVar(&ticks, "ticks", 600, "max ticks per run")
	flag.IntVar(&agents, "agents", 0, "agents per run (0 uses the config value)")
	flag.Int64Var(&seedBase, "seed-base", 42, "base RNG seed for run 1")
	flag.Int64Var(&seedStep, "seed-step", 1, "seed increment between runs")
	flag.StringVar(&cfgPath, "config", "", "YAML config file (defaults when empty)")
	flag.StringVar(&logLevel, "log-level", "warn", "log level: debug, info, warn, error")
	flag.BoolVar(&copyOut, "copy", false, "copy the report to the clipboard")
	flag.IntVar(&dump.run, "dump", 0, "print the SimLog of this run (1-based, 0 disables)")
	flag.IntVar(&dump.from, "dump-from", 0, "first tick of the -dump window")
	flag.IntVar(&dump.to, "dump-to", -1, "last tick of the -dump window (-1 dumps everything)")
	flag.Parse()

	if err := config.SetupLogging(os.Stderr, logLevel); err != nil {
		fmt.Println("error:", err)
		os.Exit(2)
	}
	if runs <= 0 {
		fmt.Println("error: -runs must be > 0")
		os.Exit(2)
	}
	if ticks <= 0 {
		fmt.Println("error: -ticks must be > 0")
		os.Exit(2)
	}

	cfg := config.Default()
	if cfgPath != "" {
		loaded, err := config.Load(cfgPath)
		if err != nil {
			slog.Error("failed to load config", "path", cfgPath, "error", err)
			os.Exit(1)
		}
		cfg = *loaded
	}
	if agents > 0 {
		cfg.Sim.Agents = agents
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid settings", "error", err)
		os.Exit(1)
	}

	var out strings.Builder
	fmt.Fprintf(&out, "=== Headless Gather Report ===\n")
	fmt.Fprintf(&out, "grid=%dx%d agents=%d obstacles=%d runs=%d ticks=%d seed_base=%d seed_step=%d tiebreak=%s\n\n",
		cfg.Grid.Width, cfg.Grid.Height, cfg.Sim.Agents, cfg.Sim.Obstacles, runs, ticks, seedBase, seedStep, cfg.Gather.TieBreak)

	all := make([]runStats, 0, runs)
	for i := 0; i < runs; i++ {
		seed := seedBase + int64(i)*seedStep
		rs, err := runGather(i+1, seed, ticks, cfg, dump)
		if err != nil {
			slog.Error("run failed", "run", i+1, "seed", seed, "error", err)
			os.Exit(1)
		}
		all = append(all, rs)
		printRun(&out, rs)
	}
	printAggregate(&out, all)

	fmt.Print(out.String())
	if copyOut {
		if err := clipboard.WriteAll(out.String()); err != nil {
			slog.Warn("failed to copy report to clipboard", "error", err)
		} else {
			fmt.Println("(report copied to clipboard)")
		}
	}
}

// runGather scatters obstacles and agents, gathers everyone at a random free
// cell and runs until every agent stands still.
func runGather(runIndex int, seed int64, ticks int, cfg config.Config, dump dumpRange) (runStats, error) {
	s, err := sim.New(
		sim.WithConfig(cfg),
		sim.WithSeed(seed),
		sim.WithRandomObstacles(cfg.Sim.Obstacles),
		sim.WithRandomAgents(cfg.Sim.Agents),
	)
	if err != nil {
		return runStats{}, err
	}
	defer s.Close()

	target, ok := s.Grid.RandomFreeCell()
	if !ok {
		return runStats{}, fmt.Errorf("no free cell for a gather target")
	}
	res := s.Gather(nil, target.Coord)
	settle := s.RunUntil(func(s *sim.Sim) bool { return s.Settled() }, ticks)

	rs := collectStats(runIndex, seed, s, res, settle)
	if dump.run == runIndex {
		rs.dump = dumpLog(s.SimLog, dump)
	}
	return rs, nil
}

func dumpLog(sl *sim.SimLog, dr dumpRange) string {
	if dr.to >= 0 {
		return sl.FormatRange(dr.from, dr.to)
	}
	var sb strings.Builder
	for _, e := range sl.Entries() {
		if e.Tick < dr.from {
			continue
		}
		sb.WriteString(e.String())
		sb.WriteByte('\n')
	}
	return sb.String()
}

func collectStats(runIndex int, seed int64, s *sim.Sim, res movement.Result, settle int) runStats {
	rs := runStats{
		runIndex:   runIndex,
		seed:       seed,
		target:     res.Target,
		status:     res.Status,
		agents:     len(s.Agents),
		assigned:   res.Assigned(),
		unassigned: len(res.Unassigned),
		requeried:  s.SimLog.CountCategory("move", "requeried"),
		noPath:     s.SimLog.CountCategory("move", "no_path"),
		blocked:    s.SimLog.CountCategory("move", "blocked"),
		settleTick: settle,
	}
	sum := 0.0
	for _, a := range s.Agents {
		d := math.Sqrt(float64(a.At.DistSq(res.Target)))
		sum += d
		rs.maxDist = math.Max(rs.maxDist, d)
	}
	if len(s.Agents) > 0 {
		rs.meanDist = sum / float64(len(s.Agents))
	}
	for _, e := range s.SimLog.Filter("move", "requeried") {
		rs.maxReqDrift = math.Max(rs.maxReqDrift, e.NumVal)
	}
	return rs
}

func printRun(out *strings.Builder, rs runStats) {
	fmt.Fprintf(out, "--- Run %d (seed=%d) ---\n", rs.runIndex, rs.seed)
	fmt.Fprintf(out, "target=%v status=%s settle_tick=%d\n", rs.target, rs.status, rs.settleTick)
	fmt.Fprintf(out, "orders: agents=%d assigned=%d unassigned=%d\n", rs.agents, rs.assigned, rs.unassigned)
	fmt.Fprintf(out, "arrival: requeried=%d max_drift=%.2f no_path=%d blocked=%d\n", rs.requeried, rs.maxReqDrift, rs.noPath, rs.blocked)
	fmt.Fprintf(out, "distance_to_target: mean=%.2f max=%.2f\n\n", rs.meanDist, rs.maxDist)
	if rs.dump != "" {
		fmt.Fprintf(out, "--- SimLog (run %d) ---\n%s\n", rs.runIndex, rs.dump)
	}
}

func printAggregate(out *strings.Builder, all []runStats) {
	totalAssigned := 0
	totalUnassigned := 0
	totalRequeried := 0
	totalNoPath := 0
	totalBlocked := 0
	meanSum := 0.0
	worst := 0.0
	settleTicks := make([]int, 0, len(all))
	unsettled := 0

	for _, rs := range all {
		totalAssigned += rs.assigned
		totalUnassigned += rs.unassigned
		totalRequeried += rs.requeried
		totalNoPath += rs.noPath
		totalBlocked += rs.blocked
		meanSum += rs.meanDist
		worst = math.Max(worst, rs.maxDist)
		if rs.settleTick >= 0 {
			settleTicks = append(settleTicks, rs.settleTick)
		} else {
			unsettled++
		}
	}

	n := len(all)
	fmt.Fprintln(out, "=== Aggregate ===")
	fmt.Fprintf(out, "runs=%d unsettled=%d\n", n, unsettled)
	fmt.Fprintf(out, "avg_per_run: assigned=%.1f unassigned=%.1f requeried=%.1f no_path=%.1f blocked=%.1f\n",
		avg(totalAssigned, n), avg(totalUnassigned, n), avg(totalRequeried, n), avg(totalNoPath, n), avg(totalBlocked, n))
	meanDist := 0.0
	if n > 0 {
		meanDist = meanSum / float64(n)
	}
	fmt.Fprintf(out, "distance_to_target: mean_of_means=%.2f worst=%.2f\n", meanDist, worst)
	fmt.Fprintf(out, "settle_tick_avg=%s\n", avgTickString(settleTicks))
}

func avg(sum int, n int) float64 {
	if n <= 0 {
		return 0
	}
	return float64(sum) / float64(n)
}

func avgTickString(vals []int) string {
	if len(vals) == 0 {
		return "n/a"
	}
	sum := 0
	for _, v := range vals {
		sum += v
	}
	return fmt.Sprintf("%.1f", float64(sum)/float64(len(vals)))
}
