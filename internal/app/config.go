package app

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"griddojo/internal/devtools"
	"griddojo/internal/prefetch"
)

// Config controls runtime behavior for the TUI app and the headless commands.
type Config struct {
	LogPath     string
	DebugLayout bool
	ASCIIOnly   bool
	DataDir     string
	PacksDir    string
	// SetID and Mode fall back to the last used values when empty.
	SetID            string
	Mode             string
	HydrateURL       string
	HydratePath      string
	HydrateLatencyMS int
	NetworkQuality   string
	Prefetch         PrefetchConfig
	Gameplay         GameplayConfig
	UI               UIConfig
	// ReportBuffer bounds queued progress reports before new ones are dropped.
	ReportBuffer int
	// Dev serves the inspection endpoints on DevHTTP while playing.
	Dev     bool
	DevHTTP string
}

type PrefetchConfig struct {
	InitialBatch    int
	Concurrency     int
	WaveDelayMS     int
	RequestTimeoutS int
	LookAheadPad    int
}

// GameplayConfig overrides set timing when a field is positive.
type GameplayConfig struct {
	DurationSeconds    int
	TimeBonusSeconds   int
	TimePenaltySeconds int
	EndlessThreshold   int
}

type UIConfig struct {
	StyleVariant string
	MotionLevel  string
}

func DefaultConfig() Config {
	return Config{
		PacksDir:       "packs",
		NetworkQuality: "auto",
		Prefetch: PrefetchConfig{
			InitialBatch:    prefetch.DefaultInitialBatch,
			Concurrency:     prefetch.DefaultConcurrency,
			WaveDelayMS:     int(prefetch.DefaultWaveDelay.Milliseconds()),
			RequestTimeoutS: int(prefetch.DefaultRequestTimeout.Seconds()),
			LookAheadPad:    prefetch.DefaultLookAheadPad,
		},
		UI: UIConfig{
			StyleVariant: "modern_arcade",
			MotionLevel:  "full",
		},
		DevHTTP: devtools.DefaultAddr,
	}
}

func (c *Config) Validate() error {
	switch strings.ToLower(strings.TrimSpace(c.NetworkQuality)) {
	case "", "auto":
		c.NetworkQuality = "auto"
	default:
		if _, err := prefetch.ParseQuality(c.NetworkQuality); err != nil {
			return fmt.Errorf("invalid network quality %q", c.NetworkQuality)
		}
	}
	switch strings.ToLower(strings.TrimSpace(c.Mode)) {
	case "":
	case string(ModeClassic), string(ModeDaily):
		c.Mode = strings.ToLower(strings.TrimSpace(c.Mode))
	default:
		return fmt.Errorf("invalid game mode %q", c.Mode)
	}
	if c.HydrateLatencyMS < 0 {
		return fmt.Errorf("invalid hydrate latency %dms", c.HydrateLatencyMS)
	}
	if c.Prefetch.InitialBatch <= 0 {
		c.Prefetch.InitialBatch = prefetch.DefaultInitialBatch
	}
	if c.Prefetch.Concurrency <= 0 {
		c.Prefetch.Concurrency = prefetch.DefaultConcurrency
	}
	if c.Prefetch.WaveDelayMS < 0 {
		c.Prefetch.WaveDelayMS = int(prefetch.DefaultWaveDelay.Milliseconds())
	}
	if c.Prefetch.RequestTimeoutS <= 0 {
		c.Prefetch.RequestTimeoutS = int(prefetch.DefaultRequestTimeout.Seconds())
	}
	if c.Prefetch.LookAheadPad < 0 {
		c.Prefetch.LookAheadPad = prefetch.DefaultLookAheadPad
	}
	if c.ReportBuffer < 0 {
		return fmt.Errorf("invalid report buffer %d", c.ReportBuffer)
	}
	if c.HydratePath != "" && !strings.HasPrefix(c.HydratePath, "/") {
		c.HydratePath = "/" + c.HydratePath
	}
	if c.Gameplay.DurationSeconds < 0 || c.Gameplay.TimeBonusSeconds < 0 || c.Gameplay.TimePenaltySeconds < 0 {
		return errors.New("gameplay timing must not be negative")
	}
	switch c.UI.StyleVariant {
	case "", "modern_arcade", "cozy_clean", "retro_terminal":
	default:
		return fmt.Errorf("invalid ui style variant %q", c.UI.StyleVariant)
	}
	if c.UI.StyleVariant == "" {
		c.UI.StyleVariant = "modern_arcade"
	}
	switch c.UI.MotionLevel {
	case "", "off", "reduced", "full":
	default:
		return fmt.Errorf("invalid ui motion level %q", c.UI.MotionLevel)
	}
	if c.UI.MotionLevel == "" {
		c.UI.MotionLevel = "full"
	}
	if c.PacksDir == "" {
		c.PacksDir = "packs"
	}
	if strings.TrimSpace(c.DevHTTP) == "" {
		c.DevHTTP = devtools.DefaultAddr
	}

	if c.DataDir == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return errors.New("cannot resolve user home directory")
		}
		c.DataDir = filepath.Join(home, ".local", "share", "griddojo")
	}

	return nil
}
