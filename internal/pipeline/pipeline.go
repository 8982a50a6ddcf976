package pipeline

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"metapipe/internal/assets"
	"metapipe/internal/config"
	"metapipe/internal/convert"
	"metapipe/internal/fingerprint"
	"metapipe/internal/logging"
	"metapipe/internal/manifest"
	"metapipe/internal/reclaim"
	"metapipe/internal/services"
	"metapipe/internal/transfer"
)

// Mode selects which stages a run executes.
type Mode string

const (
	// ModeBuild runs the full production pipeline: reclaim, convert, prod
	// manifest, transfer.
	ModeBuild Mode = "build"
	// ModeConvert warms the storage cache without writing a manifest.
	ModeConvert Mode = "convert"
	// ModeDev writes a development manifest advertising source formats.
	ModeDev Mode = "dev"
	// ModeBundle writes a development manifest into the out dir after a
	// non-production bundle. Storage and the out dir contents are untouched.
	ModeBundle Mode = "bundle"
	// ModeHash records current fingerprints without converting anything.
	ModeHash Mode = "hash"
)

// ParseMode maps a mode name to a Mode.
func ParseMode(name string) (Mode, error) {
	switch Mode(name) {
	case ModeBuild, ModeConvert, ModeDev, ModeBundle, ModeHash:
		return Mode(name), nil
	default:
		return "", fmt.Errorf("unknown mode %q", name)
	}
}

// Options tunes a single run.
type Options struct {
	Mode Mode
	// SeedOutDir mirrors the public dir into the out dir before transfer.
	// Standalone builds set it; bundler hooks leave it to the host.
	SeedOutDir bool
	// Observer receives per-asset conversion progress.
	Observer convert.Observer
}

// State carries every stage result of one run.
type State struct {
	RunID     string
	Mode      Mode
	Started   time.Time
	Elapsed   time.Duration
	Selection assets.Selection
	Store     *fingerprint.Store
	Reclaim   reclaim.Report
	Convert   convert.Report
	Durations convert.TrackDurations
	Manifest  *manifest.Manifest
	// ManifestPath is set once the manifest has been written.
	ManifestPath string
	Transfer     transfer.Report
	Hashed       int
}

// Runner executes pipeline runs against one configuration.
type Runner struct {
	cfg    *config.Config
	deps   Deps
	logger *slog.Logger
}

// New constructs a Runner.
func New(cfg *config.Config, deps Deps, logger *slog.Logger) *Runner {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Runner{cfg: cfg, deps: deps, logger: logging.NewComponentLogger(logger, "pipeline")}
}

// Run executes one pipeline run. The returned State is populated as far as
// the run got, even when an error is returned.
func (r *Runner) Run(ctx context.Context, opts Options) (*State, error) {
	if r.cfg == nil {
		return nil, services.Wrap(services.ErrConfig, "pipeline", "run", "configuration unavailable", nil)
	}
	if _, err := ParseMode(string(opts.Mode)); err != nil {
		return nil, services.Wrap(services.ErrConfig, "pipeline", "run", "", err)
	}

	state := &State{RunID: uuid.NewString(), Mode: opts.Mode, Started: time.Now()}
	ctx = services.WithRunID(ctx, state.RunID)
	logger := logging.WithContext(ctx, r.logger)

	if err := r.cfg.EnsureDirectories(); err != nil {
		return state, err
	}
	lock, err := AcquireLock(r.cfg.Paths.StorageDir)
	if err != nil {
		return state, err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			logger.Warn("failed to release storage lock", logging.Error(err), logging.String("lock", lock.Path()))
		}
	}()

	logger.Info("run started",
		logging.String(logging.FieldEventType, "run_start"),
		logging.String("mode", string(opts.Mode)),
		logging.String("public_dir", r.cfg.Paths.PublicDir),
		logging.String("storage_dir", r.cfg.Paths.StorageDir))
	logging.Toggled(logger, r.cfg.Logging.Options, "run options",
		logging.String("game_version", r.cfg.Build.GameVersion),
		logging.Int("max_parallel", r.cfg.Build.MaxParallel),
		logging.Any("exclude", r.cfg.Build.Exclude),
		logging.Any("lossless_images", r.cfg.Build.LosslessImages),
		logging.String("av1_encoder", r.cfg.Tools.AV1Encoder))

	err = r.execute(ctx, logger, state, opts)
	state.Elapsed = time.Since(state.Started)
	if err != nil {
		logging.ErrorWithContext(logger, "run failed", "run_failed",
			logging.Error(err),
			logging.String("error_kind", services.Kind(err)),
			logging.Duration("elapsed", state.Elapsed),
			logging.String(logging.FieldErrorHint, "fix the reported asset or setting and re-run; converted assets stay cached"))
		return state, err
	}
	logger.Info("run completed",
		logging.String(logging.FieldEventType, "run_complete"),
		logging.Int("assets", state.Selection.Len()),
		logging.Int("converted", state.Convert.Count(convert.StatusConverted)),
		logging.Int("skipped", state.Convert.Count(convert.StatusSkipped)),
		logging.Int("reclaimed", len(state.Reclaim.Removed)),
		logging.Duration("elapsed", state.Elapsed))
	return state, nil
}

func (r *Runner) execute(ctx context.Context, logger *slog.Logger, state *State, opts Options) error {
	if err := r.classify(ctx, state); err != nil {
		return err
	}
	switch opts.Mode {
	case ModeDev:
		return r.dev(ctx, state, r.cfg.Paths.PublicDir)
	case ModeBundle:
		return r.dev(ctx, state, r.cfg.Paths.OutDir)
	}

	store, err := fingerprint.Load(r.cfg.Paths.StorageDir, r.cfg.Names.HashStore, logger)
	if err != nil {
		return err
	}
	state.Store = store

	if opts.Mode == ModeHash {
		return r.hash(ctx, state)
	}

	reclaimCtx := services.WithStage(ctx, "reclaim")
	report, err := reclaim.Run(reclaimCtx, r.cfg.Paths.StorageDir, state.Selection, store,
		reclaim.Options{LogRemovals: r.cfg.Logging.FileChange}, logger)
	state.Reclaim = report
	if err != nil {
		return err
	}

	convertErr := r.convertAll(ctx, state, opts, opts.Mode == ModeBuild)
	// The store is persisted even after a conversion failure: successful
	// assets keep their new fingerprints and failed ones keep the old.
	if err := persistStore(store); err != nil {
		return errors.Join(convertErr, err)
	}
	if convertErr != nil || opts.Mode == ModeConvert {
		return convertErr
	}
	return r.build(ctx, logger, state, opts)
}

func (r *Runner) classify(ctx context.Context, state *State) error {
	logger := logging.WithContext(services.WithStage(ctx, "classify"), r.logger)
	sel, err := assets.Classify(r.cfg.Paths.PublicDir, assets.Options{
		Exclude: r.cfg.Build.Exclude,
		Skip:    []string{r.cfg.Names.Manifest},
	})
	if err != nil {
		return err
	}
	state.Selection = sel
	for _, c := range sel.Conflicts() {
		logging.WarnWithContext(logger, "asset skipped: outputs collide with another asset", "output_collision",
			logging.String(logging.FieldAsset, c.Dropped.Key),
			logging.String("kept", c.Kept.Key),
			logging.String("output", c.Dropped.Base+c.Suffix),
			logging.String(logging.FieldErrorHint, "rename one of the two files"),
			logging.String(logging.FieldImpact, c.Dropped.Key+" is not converted or transferred"))
	}
	for _, asset := range sel.All() {
		logging.Toggled(logger, r.cfg.Logging.SelectFiles, "asset selected",
			logging.String(logging.FieldAsset, asset.Key),
			logging.String(logging.FieldKind, asset.Kind.String()))
	}
	attrs := []logging.Attr{logging.Int("total", sel.Len())}
	for _, kind := range assets.Kinds() {
		attrs = append(attrs, logging.Int(kind.String(), sel.Count(kind)))
	}
	logger.Info("assets classified", logging.Args(attrs...)...)
	return nil
}

// convertAll runs every kind's orchestrator concurrently and, when
// withDurations is set, the sound duration pass alongside them. Nothing is
// cancelled on failure; the first error is returned after all settle.
func (r *Runner) convertAll(ctx context.Context, state *State, opts Options, withDurations bool) error {
	ctx = services.WithStage(ctx, "convert")
	convertOpts := convert.Options{
		StorageDir:             r.cfg.Paths.StorageDir,
		MaxParallel:            r.cfg.Build.MaxParallel,
		AnimationFrameWarn:     r.cfg.Build.AnimationFrameWarn,
		AnimationSizeWarnBytes: r.cfg.Build.AnimationSizeWarnBytes,
		LosslessImages:         r.cfg.Build.LosslessImages,
		LogConvert:             r.cfg.Logging.Convert,
		LogFilesHash:           r.cfg.Logging.FilesHash,
		LogFileChange:          r.cfg.Logging.FileChange,
		Observer:               opts.Observer,
	}

	var (
		mu       sync.Mutex
		g        errgroup.Group
		firstErr error
	)
	record := func(err error) {
		if err == nil {
			return
		}
		mu.Lock()
		if firstErr == nil {
			firstErr = err
		}
		mu.Unlock()
	}
	for _, kind := range assets.Kinds() {
		list := state.Selection.Assets(kind)
		if len(list) == 0 {
			continue
		}
		orch := convert.New(kind, state.Store, r.deps.convertDeps(), convertOpts, r.logger)
		g.Go(func() error {
			report, err := orch.Run(ctx, list)
			mu.Lock()
			state.Convert.Merge(report)
			mu.Unlock()
			record(err)
			return nil
		})
	}
	if withDurations {
		g.Go(func() error {
			durations, err := convert.Durations(ctx, r.deps.Prober, state.Selection.Assets(assets.Sound), r.cfg.Build.MaxParallel, r.logger)
			mu.Lock()
			state.Durations = durations
			mu.Unlock()
			record(err)
			return nil
		})
	}
	_ = g.Wait()
	return firstErr
}

func (r *Runner) build(ctx context.Context, logger *slog.Logger, state *State, opts Options) error {
	ctx = services.WithStage(ctx, "transfer")
	if opts.SeedOutDir {
		if err := transfer.Clean(r.cfg.Paths.OutDir); err != nil {
			return err
		}
		manifestName := r.cfg.Names.Manifest
		seeded, err := transfer.Seed(r.cfg.Paths.PublicDir, r.cfg.Paths.OutDir, func(key string) bool {
			return key == manifestName
		})
		if err != nil {
			return err
		}
		logging.Toggled(logger, r.cfg.Logging.Public, "public dir mirrored", logging.Int("files", seeded))
	}

	if err := r.writeManifest(ctx, state, true, r.cfg.Paths.OutDir); err != nil {
		return err
	}

	report, err := transfer.Run(ctx, state.Selection, transfer.Options{
		StorageDir:  r.cfg.Paths.StorageDir,
		OutDir:      r.cfg.Paths.OutDir,
		MaxParallel: r.cfg.Build.MaxParallel,
		LogCopies:   r.cfg.Logging.Public,
	}, r.logger)
	state.Transfer = report
	return err
}

func (r *Runner) dev(ctx context.Context, state *State, dir string) error {
	ctx = services.WithStage(ctx, "durations")
	durations, err := convert.Durations(ctx, r.deps.Prober, state.Selection.Assets(assets.Sound), r.cfg.Build.MaxParallel, r.logger)
	state.Durations = durations
	if err != nil {
		return err
	}
	return r.writeManifest(ctx, state, false, dir)
}

func (r *Runner) writeManifest(ctx context.Context, state *State, prod bool, dir string) error {
	m := manifest.Build(prod, r.cfg.Build.GameVersion, state.Durations)
	state.Manifest = &m
	path, err := manifest.Write(dir, r.cfg.Names.Manifest, m)
	if err != nil {
		return err
	}
	state.ManifestPath = path
	logging.WithContext(ctx, r.logger).Info("manifest written",
		logging.String("path", path),
		logging.Bool("prod", prod),
		logging.Int("tracks", len(m.Sounds.TrackDuration)))
	return nil
}

func (r *Runner) hash(ctx context.Context, state *State) error {
	ctx = services.WithStage(ctx, "hash")
	logger := logging.WithContext(ctx, r.logger)
	var firstErr error
	for _, asset := range state.Selection.All() {
		fp, err := fingerprint.Fingerprint(asset.Path)
		if err != nil {
			if firstErr == nil {
				firstErr = fmt.Errorf("hash %s: %w", asset.Key, err)
			}
			continue
		}
		state.Store.Update(asset.Key, fp)
		state.Hashed++
		logging.Toggled(logger, r.cfg.Logging.FilesHash, "asset fingerprinted",
			logging.String(logging.FieldAsset, asset.Key),
			logging.String("fingerprint", fp))
	}
	pruned := state.Store.Prune(state.Selection.Has)
	if err := persistStore(state.Store); err != nil {
		return errors.Join(firstErr, err)
	}
	logger.Info("fingerprints recorded",
		logging.Int("hashed", state.Hashed),
		logging.Int("pruned", len(pruned)))
	return firstErr
}

// persistStore skips the write when the run left the mapping untouched.
func persistStore(store *fingerprint.Store) error {
	if !store.Dirty() {
		return nil
	}
	return store.Persist()
}
