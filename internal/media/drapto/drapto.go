// Package drapto produces the AV1 webm video rendition through the drapto
// encoding library instead of a bare ffmpeg libsvtav1 invocation.
//
// Drapto writes a Matroska file into a scratch directory; the result is then
// remuxed into the WebM output without re-encoding.
package drapto

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	draptolib "github.com/five82/drapto"

	"metapipe/internal/logging"
	"metapipe/internal/services"
)

// Remuxer copies streams from one container into another.
type Remuxer interface {
	Encode(ctx context.Context, input, output string, args []string) error
}

// encodeFunc runs drapto on input and leaves <stem>.mkv in outputDir.
type encodeFunc func(ctx context.Context, input, outputDir string, logger *slog.Logger) error

// Encoder renders AV1 webm outputs.
type Encoder struct {
	remux  Remuxer
	logger *slog.Logger
	encode encodeFunc
}

// Option configures the encoder.
type Option func(*Encoder)

// withEncodeFunc replaces the library call. Tests use it to avoid a real encode.
func withEncodeFunc(fn encodeFunc) Option {
	return func(e *Encoder) {
		if fn != nil {
			e.encode = fn
		}
	}
}

// New constructs an Encoder that remuxes drapto output with remux.
func New(remux Remuxer, logger *slog.Logger, opts ...Option) *Encoder {
	if logger == nil {
		logger = logging.NewNop()
	}
	e := &Encoder{
		remux:  remux,
		logger: logging.NewComponentLogger(logger, "drapto"),
		encode: libraryEncode,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Encode writes an AV1 rendition of input to output.
func (e *Encoder) Encode(ctx context.Context, input, output string) error {
	if input == "" || strings.TrimSpace(output) == "" {
		return services.Wrap(services.ErrEncode, "drapto", "encode", "", errors.New("input and output paths required"))
	}
	if e.remux == nil {
		return services.Wrap(services.ErrEncode, "drapto", "encode", "", errors.New("remuxer required"))
	}

	scratch, err := os.MkdirTemp("", "metapipe-drapto-*")
	if err != nil {
		return services.Wrap(services.ErrIO, "drapto", "scratch dir", "", err)
	}
	defer os.RemoveAll(scratch)

	if err := e.encode(ctx, input, scratch, e.logger); err != nil {
		return services.Wrap(services.ErrEncode, "drapto", "encode", filepath.Base(input), err)
	}

	mkv := filepath.Join(scratch, stem(input)+".mkv")
	if _, err := os.Stat(mkv); err != nil {
		return services.Wrap(services.ErrEncode, "drapto", "locate output", mkv, err)
	}
	if err := e.remux.Encode(ctx, mkv, output, []string{"-map", "0", "-c", "copy", "-f", "webm"}); err != nil {
		return fmt.Errorf("remux drapto output: %w", err)
	}
	return nil
}

func stem(path string) string {
	base := filepath.Base(path)
	s := strings.TrimSuffix(base, filepath.Ext(base))
	if s == "" {
		return base
	}
	return s
}

func libraryEncode(ctx context.Context, input, outputDir string, logger *slog.Logger) error {
	encoder, err := draptolib.New(draptolib.WithResponsive())
	if err != nil {
		return err
	}
	_, err = encoder.EncodeWithReporter(ctx, input, outputDir, newLogReporter(logger, input))
	return err
}
