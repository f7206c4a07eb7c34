package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"griddojo/internal/catalog"
	"griddojo/internal/prefetch"
	"griddojo/internal/state"
	"griddojo/internal/telemetry"

	"github.com/google/uuid"
)

// ListSets loads every challenge set under cfg.PacksDir.
func ListSets(ctx context.Context, cfg Config) ([]catalog.Set, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return catalog.NewLoader().LoadSets(ctx, cfg.PacksDir)
}

type WarmResult struct {
	SetID   string
	Mode    GameMode
	Stats   prefetch.Stats
	Elapsed time.Duration
}

// Warm runs the prefetch warm-up for one set without a UI. progress is called
// after every cache change with the current stats and warm-up ratio.
func Warm(ctx context.Context, cfg Config, progress func(prefetch.Stats, float64)) (WarmResult, error) {
	if err := cfg.Validate(); err != nil {
		return WarmResult{}, err
	}
	logger, err := telemetry.NewJSONLogger(cfg.LogPath)
	if err != nil {
		return WarmResult{}, err
	}
	defer logger.Close()

	loader := catalog.NewLoader()
	sets, err := loader.LoadSets(ctx, cfg.PacksDir)
	if err != nil {
		return WarmResult{}, err
	}
	set, err := pickSet(loader, sets, cfg.SetID)
	if err != nil {
		return WarmResult{}, err
	}
	mode := normalizeGameMode(cfg.Mode)

	cache := prefetch.NewManager(hydratorFor(cfg), prefetchOptions(cfg, logger)...)
	defer cache.Close()
	if progress != nil {
		cache.OnChange(func() { progress(cache.Stats(), cache.Progress()) })
	}

	start := time.Now()
	scope := prefetch.NewScope(string(mode), set.SetID, "warm-"+uuid.NewString())
	pool := orderChallenges(set.Challenges, mode, start)
	cache.Activate(scope, pool, len(pool) >= gameplayConfig(cfg.Gameplay).EndlessThreshold)
	err = cache.WaitWarm(ctx)
	res := WarmResult{
		SetID:   set.SetID,
		Mode:    mode,
		Stats:   cache.Stats(),
		Elapsed: time.Since(start),
	}
	if err != nil {
		return res, fmt.Errorf("warm %s: %w", set.SetID, err)
	}
	return res, nil
}

func pickSet(loader *catalog.FSLoader, sets []catalog.Set, setID string) (catalog.Set, error) {
	if len(sets) == 0 {
		return catalog.Set{}, fmt.Errorf("no challenge sets available")
	}
	if setID == "" {
		return sets[0], nil
	}
	return loader.FindSet(sets, setID)
}

type StatsReport struct {
	Summary  state.Summary
	LastRun  *state.LastRun
	TopRuns  []state.RunRecord
	Progress map[string]state.ChallengeProgress
}

// ReadStats reads the progress store. An empty setID reports across sets and
// skips per-challenge progress.
func ReadStats(ctx context.Context, cfg Config, setID string, limit int) (StatsReport, error) {
	if err := cfg.Validate(); err != nil {
		return StatsReport{}, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return StatsReport{}, err
	}
	store, err := state.NewSQLite(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		return StatsReport{}, err
	}
	defer store.Close()
	if err := store.EnsureSchema(ctx); err != nil {
		return StatsReport{}, err
	}

	var out StatsReport
	if out.Summary, err = store.GetSummary(ctx); err != nil {
		return out, err
	}
	if out.LastRun, err = store.GetLastRun(ctx); err != nil {
		return out, err
	}
	if out.TopRuns, err = store.TopRuns(ctx, setID, limit); err != nil {
		return out, err
	}
	if setID != "" {
		if out.Progress, err = store.GetChallengeProgressMap(ctx, setID); err != nil {
			return out, err
		}
	}
	return out, nil
}
