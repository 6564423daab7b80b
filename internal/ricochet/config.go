package ricochet

import (
	"time"

	"ricochet-server/internal/grid"
)

// Config holds the per-room game parameters. Zero values fall back to
// DefaultConfig, except MaxRounds and ScoreLimit where zero means no limit.
type Config struct {
	MinPlayers          int           `json:"minPlayers"`
	MaxPlayers          int           `json:"maxPlayers"`
	ClaimWindow         time.Duration `json:"claimWindow"`
	ClaimGrace          time.Duration `json:"claimGrace"`
	VerificationTimeout time.Duration `json:"verificationTimeout"`
	RoundPause          time.Duration `json:"roundPause"`
	MaxRounds           int           `json:"maxRounds"`
	ScoreLimit          int           `json:"scoreLimit"`
	BaselinePoints      int           `json:"baselinePoints"`
	Robots              []grid.Color  `json:"robots"`
}

func DefaultConfig() Config {
	return Config{
		MinPlayers:          2,
		MaxPlayers:          8,
		ClaimWindow:         60 * time.Second,
		ClaimGrace:          10 * time.Second,
		VerificationTimeout: 30 * time.Second,
		RoundPause:          5 * time.Second,
		BaselinePoints:      20,
		Robots:              []grid.Color{grid.Red, grid.Green, grid.Blue, grid.Yellow},
	}
}

// SoloConfig is DefaultConfig for a single practising player.
func SoloConfig() Config {
	c := DefaultConfig()
	c.MinPlayers = 1
	return c
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MinPlayers < 1 {
		c.MinPlayers = d.MinPlayers
	}
	if c.MaxPlayers < c.MinPlayers {
		c.MaxPlayers = max(d.MaxPlayers, c.MinPlayers)
	}
	if c.ClaimWindow <= 0 {
		c.ClaimWindow = d.ClaimWindow
	}
	if c.ClaimGrace <= 0 {
		c.ClaimGrace = d.ClaimGrace
	}
	if c.VerificationTimeout <= 0 {
		c.VerificationTimeout = d.VerificationTimeout
	}
	if c.RoundPause <= 0 {
		c.RoundPause = d.RoundPause
	}
	if c.BaselinePoints < 1 {
		c.BaselinePoints = d.BaselinePoints
	}
	if len(c.Robots) == 0 {
		c.Robots = d.Robots
	}
	return c
}

// Points awarded for a verified solution: fewer declared moves score more,
// never less than one.
func (c Config) Points(declared int) int {
	return max(1, c.BaselinePoints-declared)
}
