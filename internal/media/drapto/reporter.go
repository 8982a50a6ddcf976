package drapto

import (
	"log/slog"

	draptolib "github.com/five82/drapto"

	"metapipe/internal/logging"
)

// logReporter forwards the drapto events worth keeping to the logger.
type logReporter struct {
	logger      *slog.Logger
	lastPercent int
}

func newLogReporter(logger *slog.Logger, input string) *logReporter {
	return &logReporter{
		logger:      logger.With(logging.String(logging.FieldAsset, input)),
		lastPercent: -1,
	}
}

func (r *logReporter) Hardware(draptolib.HardwareSummary) {}

func (r *logReporter) Initialization(s draptolib.InitializationSummary) {
	r.logger.Debug("av1 encode initialized",
		logging.Any("resolution", s.Resolution),
		logging.Any("dynamic_range", s.DynamicRange))
}

func (r *logReporter) StageProgress(draptolib.StageProgress) {}

func (r *logReporter) CropResult(draptolib.CropSummary) {}

func (r *logReporter) EncodingConfig(s draptolib.EncodingConfigSummary) {
	r.logger.Debug("av1 encoding config",
		logging.Any("encoder", s.Encoder),
		logging.Any("preset", s.Preset),
		logging.Any("quality", s.Quality))
}

func (r *logReporter) EncodingStarted(uint64) {}

func (r *logReporter) EncodingProgress(s draptolib.ProgressSnapshot) {
	step := int(s.Percent) / 25 * 25
	if step <= r.lastPercent {
		return
	}
	r.lastPercent = step
	r.logger.Debug("av1 encode progress", logging.Int("percent", step))
}

func (r *logReporter) ValidationComplete(s draptolib.ValidationSummary) {
	if !s.Passed {
		logging.WarnWithContext(r.logger, "drapto validation failed", "drapto_validation_failed",
			logging.String(logging.FieldImpact, "the webm rendition may not match the source"))
	}
}

func (r *logReporter) EncodingComplete(s draptolib.EncodingOutcome) {
	r.logger.Debug("av1 encode complete",
		logging.Any("original_bytes", s.OriginalSize),
		logging.Any("encoded_bytes", s.EncodedSize))
}

func (r *logReporter) Warning(message string) {
	logging.WarnWithContext(r.logger, "drapto warning", "drapto_warning", logging.String("detail", message))
}

func (r *logReporter) Error(e draptolib.ReporterError) {
	logging.ErrorWithContext(r.logger, "drapto error", "drapto_error",
		logging.Any("title", e.Title),
		logging.Any("detail", e.Message),
		logging.Any(logging.FieldErrorHint, e.Suggestion))
}

func (r *logReporter) OperationComplete(string) {}

func (r *logReporter) BatchStarted(draptolib.BatchStartInfo) {}

func (r *logReporter) FileProgress(draptolib.FileProgressContext) {}

func (r *logReporter) BatchComplete(draptolib.BatchSummary) {}

var _ draptolib.Reporter = (*logReporter)(nil)
