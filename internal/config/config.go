package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	_ "github.com/joho/godotenv/autoload"

	"ricochet-server/internal/ricochet"
)

type AppConfig struct {
	Port           int
	AllowedOrigins []string

	RedisURL    string
	DatabaseURL string
	LayoutFile  string

	// Messages per second allowed on one websocket.
	RateLimit      int
	RoomIdleExpiry time.Duration
	// RoomEmptyGrace is how long a room whose players all dropped waits
	// for one of them to reconnect.
	RoomEmptyGrace time.Duration

	Game ricochet.Config
}

// Load reads the process environment; a .env file in the working directory
// is loaded first if present. Unset keys keep their defaults, malformed
// ones are errors.
func Load() (*AppConfig, error) {
	cfg := &AppConfig{
		Port:           8080,
		RateLimit:      10,
		RoomIdleExpiry: 10 * time.Minute,
		RoomEmptyGrace: 30 * time.Second,
		Game:           ricochet.DefaultConfig(),
	}

	cfg.RedisURL = strings.TrimSpace(os.Getenv("REDIS_URL"))
	cfg.DatabaseURL = strings.TrimSpace(os.Getenv("DATABASE_URL"))
	cfg.LayoutFile = strings.TrimSpace(os.Getenv("LAYOUT_FILE"))

	if v := strings.TrimSpace(os.Getenv("ALLOWED_ORIGINS")); v != "" {
		for _, p := range strings.Split(v, ",") {
			if s := strings.TrimSpace(p); s != "" {
				cfg.AllowedOrigins = append(cfg.AllowedOrigins, s)
			}
		}
	}

	ints := []struct {
		key   string
		dst   *int
		least int
	}{
		{"PORT", &cfg.Port, 1},
		{"RATE_LIMIT", &cfg.RateLimit, 1},
		{"MIN_PLAYERS", &cfg.Game.MinPlayers, 1},
		{"MAX_PLAYERS", &cfg.Game.MaxPlayers, 1},
		{"MAX_ROUNDS", &cfg.Game.MaxRounds, 0},
		{"SCORE_LIMIT", &cfg.Game.ScoreLimit, 0},
		{"BASELINE_POINTS", &cfg.Game.BaselinePoints, 1},
	}
	for _, f := range ints {
		if err := intVar(f.key, f.dst, f.least); err != nil {
			return nil, err
		}
	}

	durations := []struct {
		key string
		dst *time.Duration
	}{
		{"CLAIM_WINDOW", &cfg.Game.ClaimWindow},
		{"CLAIM_GRACE", &cfg.Game.ClaimGrace},
		{"VERIFICATION_TIMEOUT", &cfg.Game.VerificationTimeout},
		{"ROUND_PAUSE", &cfg.Game.RoundPause},
		{"ROOM_IDLE_EXPIRY", &cfg.RoomIdleExpiry},
		{"ROOM_EMPTY_GRACE", &cfg.RoomEmptyGrace},
	}
	for _, f := range durations {
		if err := durationVar(f.key, f.dst); err != nil {
			return nil, err
		}
	}

	if cfg.Game.MaxPlayers < cfg.Game.MinPlayers {
		return nil, fmt.Errorf("MAX_PLAYERS (%d) is below MIN_PLAYERS (%d)", cfg.Game.MaxPlayers, cfg.Game.MinPlayers)
	}
	return cfg, nil
}

func intVar(key string, dst *int, least int) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if n < least {
		return fmt.Errorf("%s must be at least %d, got %d", key, least, n)
	}
	*dst = n
	return nil
}

// durationVar accepts Go durations ("90s") or bare seconds ("90").
func durationVar(key string, dst *time.Duration) error {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return nil
	}
	if n, err := strconv.Atoi(v); err == nil {
		v = strconv.Itoa(n) + "s"
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return fmt.Errorf("%s: %w", key, err)
	}
	if d <= 0 {
		return fmt.Errorf("%s must be positive", key)
	}
	*dst = d
	return nil
}
