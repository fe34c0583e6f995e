// Package config loads run tuning from YAML, layered over defaults and
// overridden by DWEEBS_* environment variables.
package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full run tuning.
type Config struct {
	Seed       int64 `yaml:"seed" json:"seed"`
	TickRateHz int   `yaml:"tick_rate_hz" json:"tick_rate_hz"`

	Arena       ArenaConfig       `yaml:"arena" json:"arena"`
	Advisor     AdvisorConfig     `yaml:"advisor" json:"advisor"`
	Walk        WalkConfig        `yaml:"walk" json:"walk"`
	Bed         DestinationConfig `yaml:"bed" json:"bed"`
	Desk        DestinationConfig `yaml:"desk" json:"desk"`
	Sleep       SleepConfig       `yaml:"sleep" json:"sleep"`
	Awaken      AwakenConfig      `yaml:"awaken" json:"awaken"`
	Round       RoundConfig       `yaml:"round" json:"round"`
	Persistence PersistenceConfig `yaml:"persistence" json:"persistence"`
	Replay      ReplayConfig      `yaml:"replay" json:"replay"`
	API         APIConfig         `yaml:"api" json:"api"`
}

type ArenaConfig struct {
	Size       float64 `yaml:"size" json:"size"`
	Beds       int     `yaml:"beds" json:"beds"`
	Desks      int     `yaml:"desks" json:"desks"`
	Agents     int     `yaml:"agents" json:"agents"`
	MinSpacing float64 `yaml:"min_spacing" json:"min_spacing"`
}

type AdvisorConfig struct {
	ConsiderationDepth float64 `yaml:"consideration_depth" json:"consideration_depth"`
}

type WalkConfig struct {
	Speed       float64 `yaml:"speed" json:"speed"`
	FloatHeight float64 `yaml:"float_height" json:"float_height"`
}

// DestinationConfig tunes the assignment policy for one destination kind.
// JumpHeight applies to beds; WorkOffset and ScribeSeconds to desks.
type DestinationConfig struct {
	TargetRadius     float64 `yaml:"target_radius" json:"target_radius"`
	ClaimRadius      float64 `yaml:"claim_radius" json:"claim_radius"`
	UrgencyNumerator float64 `yaml:"urgency_numerator" json:"urgency_numerator"`
	UseScore         float64 `yaml:"use_score" json:"use_score"`
	JumpHeight       float64 `yaml:"jump_height,omitempty" json:"jump_height,omitempty"`
	WorkOffset       float64 `yaml:"work_offset,omitempty" json:"work_offset,omitempty"`
	ScribeSeconds    float64 `yaml:"scribe_seconds,omitempty" json:"scribe_seconds,omitempty"`
}

// SleepConfig rates are phase progress per second.
type SleepConfig struct {
	Score      float64 `yaml:"score" json:"score"`
	NREMRate   float64 `yaml:"nrem_rate" json:"nrem_rate"`
	NREMJitter float64 `yaml:"nrem_jitter" json:"nrem_jitter"`
	REMRate    float64 `yaml:"rem_rate" json:"rem_rate"`
	REMJitter  float64 `yaml:"rem_jitter" json:"rem_jitter"`
	PullSpeed  float64 `yaml:"pull_speed" json:"pull_speed"`
}

type AwakenConfig struct {
	REMWait       [2]float64 `yaml:"rem_wait" json:"rem_wait"`   // Seconds, [min, max)
	NREMWait      [2]float64 `yaml:"nrem_wait" json:"nrem_wait"` // Seconds, [min, max)
	BedCooldown   float64    `yaml:"bed_cooldown" json:"bed_cooldown"`
	KnockDistance float64    `yaml:"knock_distance" json:"knock_distance"`
}

type RoundConfig struct {
	Seconds float64 `yaml:"seconds" json:"seconds"` // 0 = endless
}

type PersistenceConfig struct {
	DBPath           string  `yaml:"db_path" json:"db_path"`
	SaveEverySeconds float64 `yaml:"save_every_seconds" json:"save_every_seconds"`
}

type ReplayConfig struct {
	Enabled          bool   `yaml:"enabled" json:"enabled"`
	Dir              string `yaml:"dir" json:"dir"`
	FramesPerSegment int    `yaml:"frames_per_segment" json:"frames_per_segment"`
	EveryTicks       int    `yaml:"every_ticks" json:"every_ticks"`
}

type APIConfig struct {
	Port               int    `yaml:"port" json:"port"`
	AdminKey           string `yaml:"admin_key" json:"admin_key"`
	RelayKey           string `yaml:"relay_key" json:"relay_key"`
	MaxStreamConns     int    `yaml:"max_stream_conns" json:"max_stream_conns"`
	InterruptPerMinute int    `yaml:"interrupt_per_minute" json:"interrupt_per_minute"`
}

// Default returns the tuning of the demo level.
func Default() Config {
	return Config{
		Seed:       42,
		TickRateHz: 30,
		Arena: ArenaConfig{
			Size:       20,
			Beds:       3,
			Desks:      3,
			Agents:     5,
			MinSpacing: 4,
		},
		Advisor: AdvisorConfig{ConsiderationDepth: 10},
		Walk:    WalkConfig{Speed: 2.5, FloatHeight: 2},
		Bed: DestinationConfig{
			TargetRadius:     2.5,
			ClaimRadius:      3,
			UrgencyNumerator: 40,
			UseScore:         100,
			JumpHeight:       4,
		},
		Desk: DestinationConfig{
			TargetRadius:     1,
			ClaimRadius:      3,
			UrgencyNumerator: 40,
			UseScore:         100,
			WorkOffset:       1.5,
			ScribeSeconds:    3,
		},
		Sleep: SleepConfig{
			Score:      1000,
			NREMRate:   0.1,
			NREMJitter: 0.02,
			REMRate:    0.25,
			REMJitter:  0.15,
			PullSpeed:  0.5,
		},
		Awaken: AwakenConfig{
			REMWait:       [2]float64{1, 2},
			NREMWait:      [2]float64{3, 5},
			BedCooldown:   8,
			KnockDistance: 3,
		},
		Round: RoundConfig{Seconds: 60},
		Persistence: PersistenceConfig{
			DBPath:           "data/dweebs.db",
			SaveEverySeconds: 10,
		},
		Replay: ReplayConfig{
			Enabled:          true,
			Dir:              "data/replay",
			FramesPerSegment: 1800,
			EveryTicks:       1,
		},
		API: APIConfig{
			Port:               8080,
			MaxStreamConns:     16,
			InterruptPerMinute: 30,
		},
	}
}

// DT returns the fixed timestep in seconds.
func (c Config) DT() float64 {
	return 1 / float64(c.TickRateHz)
}

// Load reads path over the defaults, applies environment overrides and
// validates the result. An empty path skips the file.
func Load(path string) (Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return c, fmt.Errorf("read config: %w", err)
		}
		if err := validateDocument(raw); err != nil {
			return c, err
		}
		if err := yaml.Unmarshal(raw, &c); err != nil {
			return c, fmt.Errorf("%s: %w", path, err)
		}
	}
	if err := c.applyEnv(os.Getenv); err != nil {
		return c, err
	}
	if err := c.Validate(); err != nil {
		return c, err
	}
	return c, nil
}

// applyEnv overrides fields from DWEEBS_* variables.
func (c *Config) applyEnv(getenv func(string) string) error {
	str := func(key string, dst *string) {
		if v := getenv(key); v != "" {
			*dst = v
		}
	}
	integer := func(key string, dst *int) error {
		v := getenv(key)
		if v == "" {
			return nil
		}
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q: %v", ErrInvalid, key, v, err)
		}
		*dst = n
		return nil
	}

	if v := getenv("DWEEBS_SEED"); v != "" {
		n, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			return fmt.Errorf("%w: DWEEBS_SEED=%q: %v", ErrInvalid, v, err)
		}
		c.Seed = n
	}
	if err := integer("DWEEBS_TICK_RATE_HZ", &c.TickRateHz); err != nil {
		return err
	}
	if err := integer("DWEEBS_AGENTS", &c.Arena.Agents); err != nil {
		return err
	}
	if err := integer("DWEEBS_API_PORT", &c.API.Port); err != nil {
		return err
	}
	str("DWEEBS_DB_PATH", &c.Persistence.DBPath)
	str("DWEEBS_REPLAY_DIR", &c.Replay.Dir)
	str("DWEEBS_ADMIN_KEY", &c.API.AdminKey)
	str("DWEEBS_RELAY_KEY", &c.API.RelayKey)
	return nil
}

// Validate checks the semantic constraints the schema cannot express.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf("%w: "+format, append([]any{ErrInvalid}, args...)...))
		}
	}

	check(c.TickRateHz > 0, "tick_rate_hz must be positive, got %d", c.TickRateHz)
	check(c.Arena.Size > 0, "arena.size must be positive")
	check(c.Advisor.ConsiderationDepth >= 1, "advisor.consideration_depth must be at least 1")
	check(c.Walk.Speed > 0, "walk.speed must be positive")
	for name, d := range map[string]DestinationConfig{"bed": c.Bed, "desk": c.Desk} {
		check(d.TargetRadius > 0, "%s.target_radius must be positive", name)
		check(d.ClaimRadius >= d.TargetRadius,
			"%s.claim_radius (%g) must not be below target_radius (%g)", name, d.ClaimRadius, d.TargetRadius)
		check(d.UrgencyNumerator > 0, "%s.urgency_numerator must be positive", name)
	}
	check(c.Bed.JumpHeight > 0, "bed.jump_height must be positive")
	check(c.Desk.ScribeSeconds > 0, "desk.scribe_seconds must be positive")
	check(c.Sleep.Score > c.Bed.UseScore && c.Sleep.Score > c.Desk.UseScore,
		"sleep.score must outrank destination use scores")
	if c.TickRateHz > 0 {
		dt := c.DT()
		check((c.Sleep.NREMRate+c.Sleep.NREMJitter)*dt < 1, "sleep.nrem_rate too fast for tick_rate_hz")
		check((c.Sleep.REMRate+c.Sleep.REMJitter)*dt < 1, "sleep.rem_rate too fast for tick_rate_hz")
	}
	check(c.Sleep.NREMRate > 0 && c.Sleep.REMRate > 0, "sleep rates must be positive")
	for name, w := range map[string][2]float64{"rem_wait": c.Awaken.REMWait, "nrem_wait": c.Awaken.NREMWait} {
		check(w[0] > 0 && w[1] >= w[0], "awaken.%s must be an increasing positive range", name)
	}
	check(c.Replay.FramesPerSegment > 0 || !c.Replay.Enabled, "replay.frames_per_segment must be positive")

	return errors.Join(errs...)
}
