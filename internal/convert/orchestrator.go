package convert

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"golang.org/x/sync/errgroup"

	"metapipe/internal/assets"
	"metapipe/internal/fingerprint"
	"metapipe/internal/logging"
	"metapipe/internal/media/ffprobe"
	"metapipe/internal/services"
)

// Transcoder runs one ffmpeg-style encode.
type Transcoder interface {
	Encode(ctx context.Context, input, output string, args []string) error
}

// ImageEncoder writes still-image renditions from one decoded source.
type ImageEncoder interface {
	Encode(ctx context.Context, src io.Reader, outputs map[string]string, lossless bool) error
}

// AV1Encoder renders the video av1 rendition. When nil the ffmpeg preset is used.
type AV1Encoder interface {
	Encode(ctx context.Context, input, output string) error
}

// Prober inspects media files.
type Prober interface {
	Inspect(ctx context.Context, path string) (ffprobe.Result, error)
}

// Deps are the external collaborators an Orchestrator drives.
type Deps struct {
	Transcoder Transcoder
	Images     ImageEncoder
	AV1        AV1Encoder
	Prober     Prober
}

// Options tunes an Orchestrator.
type Options struct {
	StorageDir string
	// MaxParallel bounds concurrent assets; -1 or 0 means unlimited.
	MaxParallel            int
	AnimationFrameWarn     int
	AnimationSizeWarnBytes int64
	LosslessImages         []string
	// LogConvert, LogFilesHash, and LogFileChange promote per-file lines to info.
	LogConvert    bool
	LogFilesHash  bool
	LogFileChange bool
	Observer      Observer
}

// Orchestrator converts the assets of one kind.
type Orchestrator struct {
	kind   assets.Kind
	store  *fingerprint.Store
	deps   Deps
	opts   Options
	logger *slog.Logger
}

// New builds an Orchestrator for kind.
func New(kind assets.Kind, store *fingerprint.Store, deps Deps, opts Options, logger *slog.Logger) *Orchestrator {
	if logger == nil {
		logger = logging.NewNop()
	}
	if opts.Observer == nil {
		opts.Observer = nopObserver{}
	}
	if opts.MaxParallel == 0 {
		opts.MaxParallel = -1
	}
	return &Orchestrator{
		kind:   kind,
		store:  store,
		deps:   deps,
		opts:   opts,
		logger: logging.NewComponentLogger(logger, "convert").With(logging.String(logging.FieldKind, kind.String())),
	}
}

// Kind returns the kind this orchestrator converts.
func (o *Orchestrator) Kind() assets.Kind { return o.kind }

// Run converts every asset in list. All assets run to completion; the
// returned error is the first asset failure, if any.
func (o *Orchestrator) Run(ctx context.Context, list []assets.Asset) (Report, error) {
	ctx = services.WithKind(ctx, o.kind.String())
	logger := logging.WithContext(ctx, o.logger)

	outcomes := make([]Outcome, len(list))
	var g errgroup.Group
	g.SetLimit(o.opts.MaxParallel)
	for i, asset := range list {
		if asset.Kind != o.kind {
			outcomes[i] = Outcome{Kind: asset.Kind, Key: asset.Key, Status: StatusFailed,
				Err: fmt.Errorf("convert %s: asset is %s, not %s", asset.Key, asset.Kind, o.kind)}
			continue
		}
		g.Go(func() error {
			outcomes[i] = o.runAsset(ctx, logger, asset)
			return outcomes[i].Err
		})
	}
	err := g.Wait()

	report := Report{Outcomes: outcomes}
	if err == nil {
		for _, out := range outcomes {
			if out.Err != nil {
				err = out.Err
				break
			}
		}
	}
	logger.Debug("kind conversion settled",
		logging.Int("converted", report.Count(StatusConverted)),
		logging.Int("skipped", report.Count(StatusSkipped)),
		logging.Int("failed", report.Count(StatusFailed)))
	return report, err
}

func (o *Orchestrator) runAsset(ctx context.Context, logger *slog.Logger, asset assets.Asset) Outcome {
	start := time.Now()
	o.opts.Observer.AssetStarted(asset.Kind, asset.Key)
	out := Outcome{Kind: asset.Kind, Key: asset.Key}
	defer func() {
		out.Elapsed = time.Since(start)
		o.opts.Observer.AssetFinished(out)
	}()

	assetLogger := logger.With(logging.String(logging.FieldAsset, asset.Key))

	fp, err := fingerprint.Fingerprint(asset.Path)
	if err != nil {
		out.Status, out.Err = StatusFailed, assetError("fingerprint", asset, err)
		return out
	}
	logging.Toggled(assetLogger, o.opts.LogFilesHash, "asset fingerprinted", logging.String("fingerprint", fp))

	stored, known := o.store.Lookup(asset.Key)
	if known && stored == fp {
		missing := o.missingOutputs(asset)
		if len(missing) == 0 {
			out.Status = StatusSkipped
			return out
		}
		assetLogger.Info("cached outputs missing, reconverting",
			logging.String(logging.FieldEventType, "outputs_missing"),
			logging.Any("missing", missing))
	} else {
		logging.Toggled(assetLogger, o.opts.LogFileChange, "asset changed",
			logging.Bool("previously_seen", known))
	}

	if asset.Kind == assets.Animation {
		out.Warnings = o.animationAdvisories(ctx, assetLogger, asset)
	}

	if err := o.convert(ctx, asset); err != nil {
		out.Status, out.Err = StatusFailed, assetError("convert", asset, err)
		logging.ErrorWithContext(assetLogger, "asset conversion failed", "asset_convert_failed",
			logging.Error(err),
			logging.String(logging.FieldErrorHint, "fix the source or encoder and re-run; the asset will be retried"))
		return out
	}

	o.store.Update(asset.Key, fp)
	out.Status = StatusConverted
	logging.Toggled(assetLogger, o.opts.LogConvert, "asset converted",
		logging.Duration("elapsed", time.Since(start)))
	return out
}

func (o *Orchestrator) missingOutputs(asset assets.Asset) []string {
	var missing []string
	for _, f := range asset.Kind.Outputs() {
		if _, err := os.Stat(asset.OutputPath(o.opts.StorageDir, f)); err != nil {
			missing = append(missing, f.Suffix)
		}
	}
	return missing
}

func (o *Orchestrator) convert(ctx context.Context, asset assets.Asset) error {
	if asset.Kind == assets.Image {
		return o.convertImage(ctx, asset)
	}
	if o.deps.Transcoder == nil {
		return services.Wrap(services.ErrEncode, "convert", "transcode", asset.Key, errors.New("no transcoder configured"))
	}

	var g errgroup.Group
	for _, f := range asset.Kind.Outputs() {
		output := asset.OutputPath(o.opts.StorageDir, f)
		g.Go(func() error {
			if asset.Kind == assets.Video && f.Name == "av1" && o.deps.AV1 != nil {
				return o.deps.AV1.Encode(ctx, asset.Path, output)
			}
			args, err := Args(asset.Kind, f)
			if err != nil {
				return services.Wrap(services.ErrEncode, "convert", "preset", f.Name, err)
			}
			return o.deps.Transcoder.Encode(ctx, asset.Path, output, args)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) convertImage(ctx context.Context, asset assets.Asset) error {
	if o.deps.Images == nil {
		return services.Wrap(services.ErrEncode, "convert", "image", asset.Key, errors.New("no image encoder configured"))
	}
	src, err := os.Open(asset.Path)
	if err != nil {
		return services.Wrap(services.ErrIO, "convert", "open source", asset.Path, err)
	}
	defer src.Close()

	outputs := make(map[string]string, len(asset.Kind.Outputs()))
	for _, f := range asset.Kind.Outputs() {
		outputs[f.Name] = asset.OutputPath(o.opts.StorageDir, f)
	}
	lossless := assets.MatchPatterns(asset.Key, o.opts.LosslessImages)
	return o.deps.Images.Encode(ctx, src, outputs, lossless)
}

func assetError(operation string, asset assets.Asset, err error) error {
	return fmt.Errorf("%s %s %s: %w", operation, asset.Kind, asset.Key, err)
}
