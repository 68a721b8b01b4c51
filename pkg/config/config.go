// Package config holds the immutable simulation configuration.
//
// A Config is built once (Default, optionally overlaid by Load) and then
// passed by value to every component. Nothing reads configuration from
// package state.
package config

import (
	"errors"
	"fmt"
	"math/bits"
	"os"

	"github.com/BurntSushi/toml"
)

// ErrInvalid is wrapped by every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full simulation configuration.
type Config struct {
	Code   Code   `toml:"code"`
	Org    Org    `toml:"organism"`
	World  World  `toml:"world"`
	Backup Backup `toml:"backup"`
	Status Status `toml:"status"`
}

// Code configures the organism VM.
type Code struct {
	VarAmount    int     `toml:"var-amount"`     // registers per organism, power of two
	VarInitRange int     `toml:"var-init-range"` // registers start in [-range/2, range/2)
	YieldPeriod  int     `toml:"yield-period"`   // instructions per organism per tick
	BitsPerBlock int     `toml:"bits-per-block"` // width of the block offset in the payload
	MaxSize      int     `toml:"max-size"`       // program size above which energy cost explodes
	SizeCoef     float64 `toml:"size-coef"`      // energy cost multiplier for oversized programs
}

// Org configures organisms and the population.
type Org struct {
	StartAmount           int     `toml:"start-amount"`
	StartEnergy           float64 `toml:"start-energy"`
	StartColor            float64 `toml:"start-color"`
	MaxColor              float64 `toml:"max-color"`
	MemSize               int     `toml:"mem-size"`
	AlivePeriod           int     `toml:"alive-period"` // 0 means immortal
	EnergySpendPeriod     int     `toml:"energy-spend-period"`
	GarbagePeriod         int     `toml:"garbage-period"`
	ClonePeriod           int     `toml:"clone-period"`
	CrossoverPeriod       int     `toml:"crossover-period"`
	RainMutationPeriod    int     `toml:"rain-mutation-period"` // 0 disables rain mutation
	RainMutationPercent   float64 `toml:"rain-mutation-percent"`
	CloneMutationPercent  float64 `toml:"clone-mutation-percent"`
	CloneEnergyPercent    float64 `toml:"clone-energy-percent"`
	MutationProbs         []int   `toml:"mutation-probs"`
	MutationProbsMaxValue int     `toml:"mutation-probs-max-value"`
	MaxMutationPeriod     int     `toml:"max-mutation-period"`
}

// World configures the grid and its energy.
type World struct {
	Width              int     `toml:"width"`
	Height             int     `toml:"height"`
	Cyclical           bool    `toml:"cyclical"`
	MaxOrgs            int     `toml:"max-orgs"`
	StartEnergyDots    int     `toml:"start-energy-dots"`
	StartEnergyInDot   float64 `toml:"start-energy-in-dot"`
	EnergyCheckPercent float64 `toml:"energy-check-percent"`
	EnergyCheckPeriod  int     `toml:"energy-check-period"` // 0 disables refill
}

// Backup configures snapshot writing. Empty Dir and SQLite disable it.
type Backup struct {
	Period int    `toml:"period"`
	Keep   int    `toml:"keep"`
	Dir    string `toml:"dir"`
	SQLite string `toml:"sqlite"`
}

// Status configures the periodic status line.
type Status struct {
	Period int `toml:"period"` // ticks between status lines, 0 disables
}

// Default returns the stock configuration.
func Default() Config {
	return Config{
		Code: Code{
			VarAmount:    4,
			VarInitRange: 1000,
			YieldPeriod:  10,
			BitsPerBlock: 8,
			MaxSize:      100,
			SizeCoef:     10000,
		},
		Org: Org{
			StartAmount:           300,
			StartEnergy:           100000,
			StartColor:            0xFF0000,
			MaxColor:              0xFFFFFF,
			MemSize:               256,
			AlivePeriod:           8000,
			EnergySpendPeriod:     500,
			GarbagePeriod:         20,
			ClonePeriod:           10,
			CrossoverPeriod:       200,
			RainMutationPeriod:    1000,
			RainMutationPercent:   0.01,
			CloneMutationPercent:  0.1,
			CloneEnergyPercent:    0.5,
			MutationProbs:         []int{50, 100, 0, 50, 1, 1, 1, 1, 1},
			MutationProbsMaxValue: 100,
			MaxMutationPeriod:     1000,
		},
		World: World{
			Width:              1000,
			Height:             600,
			Cyclical:           true,
			MaxOrgs:            500,
			StartEnergyDots:    1000,
			StartEnergyInDot:   0x00FF00,
			EnergyCheckPercent: 0.3,
			EnergyCheckPeriod:  1000,
		},
		Backup: Backup{
			Period: 1000,
			Keep:   10,
		},
		Status: Status{
			Period: 100,
		},
	}
}

// Load decodes a TOML file over the defaults and validates the result.
// Keys missing from the file keep their default values.
func Load(path string) (Config, error) {
	cfg := Default()
	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("cannot read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse error in %s: %w", path, err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, fmt.Errorf("%s: %w", path, err)
	}
	return cfg, nil
}

// Validate checks ranges the rest of the system relies on.
func (c Config) Validate() error {
	switch {
	// the 2-bit relation selector must fit inside the var2 slot
	case c.Code.VarAmount < 4 || bits.OnesCount(uint(c.Code.VarAmount)) != 1:
		return fmt.Errorf("%w: code.var-amount must be a power of two >= 4, got %d", ErrInvalid, c.Code.VarAmount)
	case c.Code.BitsPerBlock < 1 || c.Code.BitsPerBlock > 16:
		return fmt.Errorf("%w: code.bits-per-block must be in 1..16, got %d", ErrInvalid, c.Code.BitsPerBlock)
	case c.Code.YieldPeriod < 1:
		return fmt.Errorf("%w: code.yield-period must be positive", ErrInvalid)
	case c.Code.VarInitRange < 0:
		return fmt.Errorf("%w: code.var-init-range must not be negative", ErrInvalid)
	case c.Org.MemSize < 0:
		return fmt.Errorf("%w: organism.mem-size must not be negative", ErrInvalid)
	case c.Org.EnergySpendPeriod < 1 || c.Org.GarbagePeriod < 1:
		return fmt.Errorf("%w: organism energy periods must be positive", ErrInvalid)
	case c.Org.MaxColor <= 0:
		return fmt.Errorf("%w: organism.max-color must be positive", ErrInvalid)
	case c.Org.CloneEnergyPercent < 0 || c.Org.CloneEnergyPercent > 1:
		return fmt.Errorf("%w: organism.clone-energy-percent must be in [0,1]", ErrInvalid)
	case c.World.Width < 1 || c.World.Height < 1:
		return fmt.Errorf("%w: world size %dx%d", ErrInvalid, c.World.Width, c.World.Height)
	case c.World.MaxOrgs < 1:
		return fmt.Errorf("%w: world.max-orgs must be positive", ErrInvalid)
	}
	for i, p := range c.Org.MutationProbs {
		if p < 0 {
			return fmt.Errorf("%w: organism.mutation-probs[%d] is negative", ErrInvalid, i)
		}
	}
	return nil
}
