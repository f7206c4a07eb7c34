package app

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"griddojo/internal/catalog"
	"griddojo/internal/devtools"
	"griddojo/internal/grading"
	"griddojo/internal/hydrate"
	"griddojo/internal/prefetch"
	"griddojo/internal/session"
	"griddojo/internal/state"
	"griddojo/internal/telemetry"
	"griddojo/internal/ui"

	"github.com/google/uuid"
)

const (
	settingLastSet  = "last_set"
	settingLastMode = "last_mode"
)

type Option func(*App)

// WithView replaces the terminal UI.
func WithView(v ui.View) Option {
	return func(a *App) { a.view = v }
}

// WithHydrator replaces the hydrator chosen from Config.
func WithHydrator(h hydrate.Hydrator) Option {
	return func(a *App) { a.hydrator = h }
}

// WithClock sets the time source used for daily ordering and run timing.
func WithClock(now func() time.Time) Option {
	return func(a *App) { a.now = now }
}

type App struct {
	cfg Config
	now func() time.Time

	logger   *telemetry.JSONLogger
	store    *state.SQLiteStore
	loader   *catalog.FSLoader
	hydrator hydrate.Hydrator
	cache    *prefetch.Manager
	engine   *session.Engine
	view     ui.View
	dev      *devtools.Server
	devAddr  string

	sessionID   string
	unsubscribe func()

	mu     sync.Mutex
	sets   []catalog.Set
	setIdx int
	mode   GameMode
	// quality is the last network quality shown in the header.
	quality prefetch.Quality

	clockMu     sync.Mutex
	clockCancel context.CancelFunc
	clockDone   chan struct{}
	closeOnce   sync.Once
}

func New(cfg Config, opts ...Option) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		return nil, err
	}

	logger, err := telemetry.NewJSONLogger(cfg.LogPath)
	if err != nil {
		return nil, err
	}

	store, err := state.NewSQLite(filepath.Join(cfg.DataDir, "state.db"))
	if err != nil {
		_ = logger.Close()
		return nil, err
	}
	if err := store.EnsureSchema(context.Background()); err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}

	loader := catalog.NewLoader()
	sets, err := loader.LoadSets(context.Background(), cfg.PacksDir)
	if err != nil {
		_ = store.Close()
		_ = logger.Close()
		return nil, err
	}
	if len(sets) == 0 {
		_ = store.Close()
		_ = logger.Close()
		return nil, fmt.Errorf("no challenge sets available under %s", cfg.PacksDir)
	}

	a := &App{
		cfg:       cfg,
		now:       time.Now,
		logger:    logger,
		store:     store,
		loader:    loader,
		sessionID: uuid.NewString(),
		sets:      sets,
	}
	for _, o := range opts {
		o(a)
	}
	if a.hydrator == nil {
		a.hydrator = hydratorFor(cfg)
	}
	if a.view == nil {
		a.view = ui.New(ui.Options{
			ASCIIOnly:    cfg.ASCIIOnly,
			Debug:        cfg.DebugLayout,
			StyleVariant: cfg.UI.StyleVariant,
			MotionLevel:  cfg.UI.MotionLevel,
		})
	}

	a.restoreSelection()
	a.cache = prefetch.NewManager(a.hydrator, prefetchOptions(cfg, logger)...)
	a.engine = session.NewEngine(a.cache, newStoreReporter(store),
		session.WithLogger(logger),
		session.WithClock(a.now),
		session.WithMode(string(a.mode)),
		session.WithConfig(gameplayConfig(cfg.Gameplay)),
		session.WithReportBuffer(cfg.ReportBuffer),
	)
	a.cache.OnChange(a.engine.Refresh)
	a.cache.OnChange(a.syncQuality)
	a.engine.SetPool(a.pool())

	a.view.SetController(a)
	a.unsubscribe = a.engine.Subscribe(a.view.SetSnapshot)
	a.view.SetHeader(a.header())
	return a, nil
}

func hydratorFor(cfg Config) hydrate.Hydrator {
	if cfg.HydrateURL != "" {
		opts := []hydrate.ClientOption{
			hydrate.WithTimeout(time.Duration(cfg.Prefetch.RequestTimeoutS) * time.Second),
		}
		if cfg.HydratePath != "" {
			opts = append(opts, hydrate.WithPath(cfg.HydratePath))
		}
		return hydrate.NewHTTPClient(cfg.HydrateURL, opts...)
	}
	latency := time.Duration(cfg.HydrateLatencyMS) * time.Millisecond
	return hydrate.NewLocal(hydrate.WithLatency(latency, latency/2))
}

func prefetchOptions(cfg Config, logger telemetry.Logger) []prefetch.Option {
	opts := []prefetch.Option{
		prefetch.WithLogger(logger),
		prefetch.WithConcurrency(cfg.Prefetch.Concurrency),
		prefetch.WithInitialBatch(cfg.Prefetch.InitialBatch),
		prefetch.WithWaveDelay(time.Duration(cfg.Prefetch.WaveDelayMS) * time.Millisecond),
		prefetch.WithRequestTimeout(time.Duration(cfg.Prefetch.RequestTimeoutS) * time.Second),
		prefetch.WithLookAheadPad(cfg.Prefetch.LookAheadPad),
	}
	if cfg.NetworkQuality == "auto" {
		return append(opts, prefetch.WithAutoQuality(prefetch.NewLatencyEstimator()))
	}
	q, _ := prefetch.ParseQuality(cfg.NetworkQuality)
	return append(opts, prefetch.WithQuality(q))
}

func gameplayConfig(g GameplayConfig) session.Config {
	cfg := session.DefaultConfig()
	if g.EndlessThreshold > 0 {
		cfg.EndlessThreshold = g.EndlessThreshold
	}
	return cfg
}

// restoreSelection picks the set and mode from Config, then from the last
// saved settings, then from defaults.
func (a *App) restoreSelection() {
	saved, err := a.store.LoadSettings(context.Background())
	if err != nil {
		a.logger.Warn("settings.load_failed", map[string]any{"error": err.Error()})
		saved = map[string]string{}
	}
	setID := firstNonEmpty(a.cfg.SetID, saved[settingLastSet])
	a.setIdx = 0
	for i, s := range a.sets {
		if s.SetID == setID {
			a.setIdx = i
			break
		}
	}
	if a.cfg.SetID != "" && a.sets[a.setIdx].SetID != a.cfg.SetID {
		a.logger.Warn("app.unknown_set", map[string]any{"set_id": a.cfg.SetID})
	}
	a.mode = normalizeGameMode(firstNonEmpty(a.cfg.Mode, saved[settingLastMode]))
}

func (a *App) Run(ctx context.Context) error {
	set, mode := a.selection()
	a.logger.Info("app.start", map[string]any{
		"session":  a.sessionID,
		"set_id":   set.SetID,
		"mode":     string(mode),
		"hydrator": fmt.Sprintf("%T", a.hydrator),
	})
	if a.cfg.Dev {
		if err := a.startDev(); err != nil {
			return err
		}
	}
	a.startClock(ctx)
	defer a.stopClock()

	runDone := make(chan struct{})
	defer close(runDone)
	go func() {
		select {
		case <-ctx.Done():
			a.logger.Info("app.cancelled", map[string]any{"session": a.sessionID})
			a.view.Stop()
		case <-runDone:
		}
	}()

	a.view.SetSnapshot(a.engine.Snapshot())
	return a.view.Run()
}

func (a *App) startClock(ctx context.Context) {
	a.clockMu.Lock()
	defer a.clockMu.Unlock()
	if a.clockCancel != nil {
		return
	}
	clockCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	a.clockCancel = cancel
	a.clockDone = done
	go func() {
		defer close(done)
		a.engine.RunClock(clockCtx, time.Second)
	}()
}

func (a *App) stopClock() {
	a.clockMu.Lock()
	cancel, done := a.clockCancel, a.clockDone
	a.clockCancel, a.clockDone = nil, nil
	a.clockMu.Unlock()
	if cancel != nil {
		cancel()
		<-done
	}
}

func (a *App) startDev() error {
	a.dev = devtools.NewServer(a.cfg.DevHTTP, a.engine, a.cache, a, a.logger)
	addr, err := a.dev.Start()
	if err != nil {
		_ = a.dev.Close(context.Background())
		a.dev = nil
		return fmt.Errorf("start dev http on %s: %w", a.cfg.DevHTTP, err)
	}
	a.mu.Lock()
	a.devAddr = addr
	a.mu.Unlock()
	a.logger.Info("app.dev_http", map[string]any{"addr": addr})
	return nil
}

// DevAddr reports the bound dev server address, or "" outside dev mode.
func (a *App) DevAddr() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.devAddr
}

// Close abandons any active run, flushes reports and releases resources.
func (a *App) Close() {
	a.closeOnce.Do(func() {
		a.stopClock()
		if a.dev != nil {
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := a.dev.Close(ctx); err != nil {
				a.logger.Warn("app.dev_http_close_failed", map[string]any{"error": err.Error()})
			}
			cancel()
		}
		if a.unsubscribe != nil {
			a.unsubscribe()
		}
		a.engine.Reset()
		a.engine.Close()
		a.cache.Close()
		a.saveSelection()
		_ = a.store.Close()
		a.logger.Info("app.stop", map[string]any{"session": a.sessionID})
		_ = a.logger.Close()
	})
}

func (a *App) selection() (catalog.Set, GameMode) {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.sets[a.setIdx], a.mode
}

func (a *App) pool() session.Pool {
	set, mode := a.selection()
	return poolFor(set, mode, a.cfg.Gameplay, a.now())
}

func poolFor(set catalog.Set, mode GameMode, g GameplayConfig, now time.Time) session.Pool {
	timing := session.Config{
		DurationSeconds: set.Defaults.DurationSeconds,
		BonusSeconds:    set.Defaults.TimeBonusSeconds,
		PenaltySeconds:  set.Defaults.TimePenaltySeconds,
	}
	if g.DurationSeconds > 0 {
		timing.DurationSeconds = g.DurationSeconds
	}
	if g.TimeBonusSeconds > 0 {
		timing.BonusSeconds = g.TimeBonusSeconds
	}
	if g.TimePenaltySeconds > 0 {
		timing.PenaltySeconds = g.TimePenaltySeconds
	}
	return session.Pool{
		SetID:      set.SetID,
		Challenges: orderChallenges(set.Challenges, mode, now),
		Rules:      rulesFor(set.Scoring),
		Timing:     timing,
	}
}

func rulesFor(s catalog.ScoreRules) grading.Rules {
	return grading.Rules{
		BasePoints:            s.BasePoints,
		PerCorrectPoints:      s.PerCorrectPoints,
		MissingPenaltyPoints:  s.MissingPenaltyPoints,
		ExtraPenaltyPoints:    s.ExtraPenaltyPoints,
		CompletionBonusPoints: s.CompletionBonusPoints,
		StreakMultiplier:      s.StreakMultiplier,
	}
}

func (a *App) header() ui.HeaderState {
	set, mode := a.selection()
	quality := string(a.cache.NetworkQuality())
	if quality == "" {
		quality = "auto"
		if a.cfg.NetworkQuality != "auto" {
			quality = "unknown"
		}
	}
	return ui.HeaderState{
		SetID:    set.SetID,
		SetName:  set.Name,
		Mode:     string(mode),
		Quality:  quality,
		SetCount: len(a.sets),
	}
}

// syncQuality refreshes the header when the prefetch manager reclassifies
// the network.
func (a *App) syncQuality() {
	q := a.cache.NetworkQuality()
	a.mu.Lock()
	changed := q != a.quality
	a.quality = q
	a.mu.Unlock()
	if changed {
		a.view.SetHeader(a.header())
	}
}

func (a *App) saveSelection() {
	set, mode := a.selection()
	err := a.store.SaveSettings(context.Background(), map[string]string{
		settingLastSet:  set.SetID,
		settingLastMode: string(mode),
	})
	if err != nil {
		a.logger.Warn("settings.save_failed", map[string]any{"error": err.Error()})
	}
}

func (a *App) OnStart() {
	if !a.engine.Start() {
		snap := a.engine.Snapshot()
		if !snap.HasChallenge {
			a.view.FlashStatus("This set has no challenges")
		} else {
			a.view.FlashStatus("A run is already active; esc resets it")
		}
		return
	}
	a.view.SetHeader(a.header())
}

func (a *App) OnToggle(index int) {
	a.engine.ToggleCell(index)
}

func (a *App) OnSubmit() {
	snap := a.engine.Snapshot()
	if snap.Pending {
		a.view.FlashStatus("Challenge is still loading")
	}
	a.engine.Submit()
}

func (a *App) OnNext() {
	a.engine.Next()
}

func (a *App) OnRetry() {
	a.engine.Retry()
}

func (a *App) OnReset() {
	if a.engine.Snapshot().Active() {
		a.view.FlashStatus("Run reset")
	}
	a.engine.Reset()
}

func (a *App) OnCycleMode() {
	a.mu.Lock()
	a.mode = nextGameMode(a.mode)
	mode := a.mode
	a.mu.Unlock()

	a.engine.SetMode(string(mode))
	a.engine.SetPool(a.pool())
	a.saveSelection()
	a.view.SetHeader(a.header())
	a.view.FlashStatus("Mode: " + string(mode))
}

func (a *App) OnCycleSet() {
	a.mu.Lock()
	a.setIdx = (a.setIdx + 1) % len(a.sets)
	set := a.sets[a.setIdx]
	a.mu.Unlock()

	a.engine.SetPool(a.pool())
	a.saveSelection()
	a.view.SetHeader(a.header())
	a.view.FlashStatus(fmt.Sprintf("Set: %s (%d challenges)", firstNonEmpty(set.Name, set.SetID), len(set.Challenges)))
}

func (a *App) OnQuit() {
	a.view.Stop()
}

func firstNonEmpty(a, b string) string {
	if a != "" {
		return a
	}
	return b
}

var _ ui.Controller = (*App)(nil)
