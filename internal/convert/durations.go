package convert

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"metapipe/internal/assets"
	"metapipe/internal/logging"
	"metapipe/internal/services"
)

// TrackDurations maps a sound asset's basename to its duration in seconds.
type TrackDurations map[string]float64

// Durations probes every sound asset concurrently. Each asset is probed
// regardless of the fingerprint cache. A failing probe leaves that asset out
// and does not stop the others; the first failure is returned alongside the
// durations that did succeed.
func Durations(ctx context.Context, prober Prober, sounds []assets.Asset, maxParallel int, logger *slog.Logger) (TrackDurations, error) {
	if logger == nil {
		logger = logging.NewNop()
	}
	logger = logging.NewComponentLogger(logger, "durations")
	if maxParallel == 0 {
		maxParallel = -1
	}

	durations := make(TrackDurations, len(sounds))
	if len(sounds) == 0 {
		return durations, nil
	}
	if prober == nil {
		return durations, services.Wrap(services.ErrProbe, "durations", "probe", "", errors.New("no prober configured"))
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(maxParallel)
	for _, sound := range sounds {
		g.Go(func() error {
			result, err := prober.Inspect(ctx, sound.Path)
			if err != nil {
				return fmt.Errorf("probe duration %s: %w", sound.Key, err)
			}
			seconds, err := result.DurationSeconds()
			if err != nil {
				return fmt.Errorf("probe duration %s: %w", sound.Key, err)
			}
			mu.Lock()
			durations[sound.Base] = seconds
			mu.Unlock()
			logger.Debug("track duration probed",
				logging.String(logging.FieldAsset, sound.Key),
				logging.Float64("seconds", seconds))
			return nil
		})
	}
	return durations, g.Wait()
}
