// Command dweebsim runs the dweebs arena: agents that wander, scribe at desks
// and fight over beds, observed through the HTTP API.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"github.com/dustin/go-humanize"
	"github.com/google/uuid"

	"github.com/talgya/swift-dreams/internal/agents"
	"github.com/talgya/swift-dreams/internal/api"
	"github.com/talgya/swift-dreams/internal/config"
	"github.com/talgya/swift-dreams/internal/engine"
	"github.com/talgya/swift-dreams/internal/persistence"
	"github.com/talgya/swift-dreams/internal/replay"
	"github.com/talgya/swift-dreams/internal/world"
)

func main() {
	configPath := flag.String("config", "configs/dweebs.yaml", "path to the run config (empty for defaults)")
	fresh := flag.Bool("fresh", false, "ignore saved state and generate a new arena")
	autoRestart := flag.Bool("restart", false, "start a new round as soon as one ends")
	flag.Parse()

	setupLogging(os.Getenv("LOG_LEVEL"), os.Getenv("LOG_FORMAT"))

	cfg, err := config.Load(*configPath)
	if err != nil {
		slog.Error("failed to load config", "path", *configPath, "error", err)
		os.Exit(1)
	}
	slog.Info("dweebs: bed scramble simulation",
		"seed", cfg.Seed,
		"tick_rate_hz", cfg.TickRateHz,
		"round_seconds", cfg.Round.Seconds,
	)

	// ── Database ──────────────────────────────────────────────────────
	os.MkdirAll(filepath.Dir(cfg.Persistence.DBPath), 0o755)
	db, err := persistence.Open(cfg.Persistence.DBPath)
	if err != nil {
		slog.Error("failed to open database", "error", err)
		os.Exit(1)
	}
	defer db.Close()
	slog.Info("database opened", "path", cfg.Persistence.DBPath)

	// ── Load or Generate Arena ───────────────────────────────────────
	spawner := agents.NewSpawner(cfg.Seed, cfg.Advisor.ConsiderationDepth)
	runID := uuid.NewString()
	var (
		arena     *world.Arena
		allAgents []*agents.Agent
		startTick uint64
	)

	if !*fresh && db.HasWorldState() {
		slog.Info("found saved run, loading...")
		arena, allAgents, startTick, err = restore(db, spawner, cfg)
		if err != nil {
			slog.Error("failed to restore run", "error", err)
			os.Exit(1)
		}
		if id, err := db.GetMeta(persistence.MetaRunID); err == nil && id != "" {
			runID = id
		}
		slog.Info("run restored", "run_id", runID, "agents", len(allAgents), "tick", humanize.Comma(int64(startTick)))
	} else {
		slog.Info("generating new arena...")
		layout := world.Generate(world.GenConfig{
			Size:       cfg.Arena.Size,
			Seed:       cfg.Seed,
			Beds:       cfg.Arena.Beds,
			Desks:      cfg.Arena.Desks,
			Agents:     cfg.Arena.Agents,
			MinSpacing: cfg.Arena.MinSpacing,
			GridStep:   1,
		})
		arena = layout.Arena
		allAgents = spawner.SpawnAll(layout.Spawns, 0)
		for _, a := range allAgents {
			slog.Info("dweeb spawned", "id", a.ID, "name", a.Name,
				"x", fmt.Sprintf("%.1f", a.Body.Position.X), "z", fmt.Sprintf("%.1f", a.Body.Position.Z))
		}
	}
	slog.Info("arena ready", "arena", arena.String(), "agents", len(allAgents))

	// ── Simulation ────────────────────────────────────────────────────
	sim := engine.NewSimulation(cfg, arena, allAgents)
	sim.RunID = runID
	sim.LastTick = startTick
	if startTick > 0 {
		sim.ResumeEventSeq(db.EventCursor())
		if s, remaining, err := db.LoadScore(); err == nil {
			sim.Score.Restore(s, remaining)
		}
		if err := sim.ResumeRound(*autoRestart); err != nil {
			slog.Info("saved run has no round left; use -restart for a new round or -fresh for a new arena", "reason", err)
			return
		}
	}

	// Save on fresh generation only (loaded runs are already saved).
	if startTick == 0 {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("initial save failed", "error", err)
		}
	}

	var recorder *replay.Writer
	if cfg.Replay.Enabled {
		recorder = replay.NewWriter(cfg.Replay.Dir, runID, cfg.Replay.FramesPerSegment, cfg.Replay.EveryTicks)
		defer func() {
			if err := recorder.Close(); err != nil {
				slog.Error("replay close failed", "error", err)
			}
		}()
		slog.Info("recording replay", "dir", cfg.Replay.Dir, "run_id", runID)
	}

	eng := engine.NewEngine(cfg.TickRateHz)
	eng.Tick = startTick
	if cfg.Persistence.SaveEverySeconds > 0 {
		eng.SaveEvery = uint64(cfg.Persistence.SaveEverySeconds * float64(cfg.TickRateHz))
	}

	eng.OnTick = func(ctx context.Context, tick uint64) error {
		frame, err := sim.Step(ctx, tick)
		if err != nil {
			return err
		}
		if recorder != nil {
			if err := recorder.WriteFrame(frame); err != nil {
				slog.Warn("replay write failed", "tick", tick, "error", err)
			}
		}
		if frame.RoundOver {
			if *autoRestart {
				sim.RestartRound()
			} else {
				eng.Stop()
			}
		}
		return nil
	}
	eng.OnSecond = func(tick uint64) {
		if tick%(10*eng.SecondEvery) != 0 {
			return
		}
		st := sim.Status()
		slog.Info("status",
			"tick", humanize.Comma(int64(tick)),
			"asleep", fmt.Sprintf("%d/%d", st.Asleep, st.Agents),
			"occupied", st.Occupied,
			"score", st.Score.Score,
			"remaining", fmt.Sprintf("%.0fs", st.Score.Remaining),
		)
	}
	eng.OnSave = func(tick uint64) {
		if err := db.SaveWorldState(sim); err != nil {
			slog.Error("periodic save failed", "tick", tick, "error", err)
		}
	}

	// ── HTTP API ──────────────────────────────────────────────────────
	if cfg.API.AdminKey == "" {
		slog.Warn("DWEEBS_ADMIN_KEY not set; admin endpoints are disabled")
	}
	apiServer := api.NewServer(sim, eng, db, cfg.API)
	apiServer.Start()

	// ── Start ─────────────────────────────────────────────────────────
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("\n%d dweebs, %d beds, %d desks.\n",
		len(allAgents), len(arena.OfKind(world.DestBed)), len(arena.OfKind(world.DestDesk)))
	fmt.Printf("API: http://localhost:%d/api/v1/status\n", cfg.API.Port)
	if startTick > 0 {
		fmt.Printf("Resuming from tick %s\n", humanize.Comma(int64(startTick)))
	}
	fmt.Println("Starting simulation... (Ctrl+C to stop)")

	runErr := eng.Run(ctx)
	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		slog.Error("engine stopped with error", "error", runErr)
	}

	slog.Info("final save...")
	if err := db.SaveWorldState(sim); err != nil {
		slog.Error("final save failed", "error", err)
	}
	fmt.Println("Simulation stopped. Run state saved.")
}

// restore rebuilds the arena, agents and tick from the database.
func restore(db *persistence.DB, spawner *agents.Spawner, cfg config.Config) (*world.Arena, []*agents.Agent, uint64, error) {
	arena, err := db.LoadArena()
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load arena: %w", err)
	}
	loaded, err := db.LoadAgents(cfg.Advisor.ConsiderationDepth)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load agents: %w", err)
	}
	for _, a := range loaded {
		spawner.Restore(a)
	}
	tick, err := db.GetMetaUint(persistence.MetaLastTick)
	if err != nil {
		return nil, nil, 0, fmt.Errorf("load tick: %w", err)
	}
	return arena, loaded, tick, nil
}

func setupLogging(level, format string) {
	var lvl slog.Level
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: lvl}

	var handler slog.Handler
	if strings.EqualFold(format, "json") {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	} else {
		handler = slog.NewTextHandler(os.Stdout, opts)
	}
	slog.SetDefault(slog.New(handler))
}
