// Package engine runs the decision core on a fixed timestep: suggesters
// propose, advisors commit, actors emit intents, the kinematic collaborator
// moves bodies.
package engine

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// Engine drives the simulation forward at a fixed rate. Every tick advances
// simulated time by the same step regardless of wall-clock jitter.
type Engine struct {
	Tick     uint64        // Current tick counter (monotonic, never resets)
	Interval time.Duration // Base tick interval (1 / tick rate)

	// Cadences, in ticks. Zero disables the callback.
	SecondEvery uint64
	SaveEvery   uint64

	// Callbacks, populated during setup.
	OnTick   func(ctx context.Context, tick uint64) error // Every tick; an error stops the loop
	OnSecond func(tick uint64)                            // Every simulated second
	OnSave   func(tick uint64)                            // Every save interval

	mu    sync.Mutex
	speed float64 // Multiplier: 1.0 = real-time, 0 = paused
	stop  context.CancelFunc
}

// NewEngine creates an engine ticking at rateHz.
func NewEngine(rateHz int) *Engine {
	if rateHz <= 0 {
		rateHz = 1
	}
	return &Engine{
		Interval:    time.Second / time.Duration(rateHz),
		SecondEvery: uint64(rateHz),
		speed:       1,
	}
}

// Speed returns the current speed multiplier.
func (e *Engine) Speed() float64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.speed
}

// SetSpeed changes the speed multiplier; 0 pauses.
func (e *Engine) SetSpeed(v float64) {
	if v < 0 {
		v = 0
	}
	e.mu.Lock()
	e.speed = v
	e.mu.Unlock()
	slog.Info("speed changed", "speed", v)
}

// Run starts the simulation loop. It blocks until ctx is cancelled, Stop is
// called or OnTick fails.
func (e *Engine) Run(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.mu.Lock()
	e.stop = cancel
	e.mu.Unlock()
	defer cancel()

	slog.Info("simulation engine started", "tick", e.Tick, "speed", e.Speed(), "interval", e.Interval)

	for {
		speed := e.Speed()
		if speed <= 0 {
			// Paused; check again shortly.
			if !sleepCtx(ctx, 100*time.Millisecond) {
				break
			}
			continue
		}

		start := time.Now()
		if err := e.Step(ctx); err != nil {
			if ctx.Err() != nil {
				break
			}
			slog.Error("tick failed, stopping engine", "tick", e.Tick, "error", err)
			return err
		}

		// Sleep for the remainder of the tick interval, adjusted for speed.
		elapsed := time.Since(start)
		target := time.Duration(float64(e.Interval) / speed)
		if elapsed < target && !sleepCtx(ctx, target-elapsed) {
			break
		}
		if ctx.Err() != nil {
			break
		}
	}

	slog.Info("simulation engine stopped", "tick", humanize.Comma(int64(e.Tick)))
	return nil
}

// Stop halts the simulation loop.
func (e *Engine) Stop() {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.stop != nil {
		e.stop()
	}
}

// Step advances the simulation by one tick and fires the cadence callbacks.
func (e *Engine) Step(ctx context.Context) error {
	next := e.Tick + 1
	if e.OnTick != nil {
		if err := e.OnTick(ctx, next); err != nil {
			return err
		}
	}
	e.Tick = next

	if e.SecondEvery > 0 && e.Tick%e.SecondEvery == 0 && e.OnSecond != nil {
		e.OnSecond(e.Tick)
	}
	if e.SaveEvery > 0 && e.Tick%e.SaveEvery == 0 && e.OnSave != nil {
		e.OnSave(e.Tick)
	}
	return nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
