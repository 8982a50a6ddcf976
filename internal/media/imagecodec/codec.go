// Package imagecodec re-encodes still images through libvips.
//
// One decoded image feeds every requested rendition (avif, webp, and a
// palette-quantized png) and the exports run concurrently.
package imagecodec

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/davidbyttow/govips/v2/vips"
	"golang.org/x/sync/errgroup"

	"metapipe/internal/fileutil"
	"metapipe/internal/services"
)

// Supported rendition names.
const (
	FormatAVIF = "avif"
	FormatWebP = "webp"
	FormatPNG  = "png"
)

var (
	startOnce sync.Once
	started   atomic.Bool
)

// Startup initializes libvips once per process. Encode calls it lazily.
func Startup() {
	startOnce.Do(func() {
		vips.LoggingSettings(nil, vips.LogLevelError)
		vips.Startup(nil)
		started.Store(true)
	})
}

// Shutdown releases libvips if it was started. Call it once at process exit.
func Shutdown() {
	if started.Load() {
		vips.Shutdown()
	}
}

// Encoder exports avif, webp, and png renditions of an image.
type Encoder struct{}

// New returns an Encoder. libvips starts on the first Encode.
func New() *Encoder {
	return &Encoder{}
}

// Encode decodes src once and writes each rendition named in outputs
// (format name to destination path). Lossless selects lossless avif and webp.
// All exports run to completion; the first failure is returned.
func (e *Encoder) Encode(ctx context.Context, src io.Reader, outputs map[string]string, lossless bool) error {
	for name := range outputs {
		if !Supported(name) {
			return services.Wrap(services.ErrEncode, "imagecodec", "encode", fmt.Sprintf("unsupported format %q", name), nil)
		}
	}
	if err := ctx.Err(); err != nil {
		return services.Wrap(services.ErrEncode, "imagecodec", "encode", "", err)
	}

	data, err := io.ReadAll(src)
	if err != nil {
		return services.Wrap(services.ErrIO, "imagecodec", "read source", "", err)
	}
	Startup()
	image, err := vips.NewImageFromBuffer(data)
	if err != nil {
		return services.Wrap(services.ErrEncode, "imagecodec", "decode", "", err)
	}
	defer image.Close()

	names := make([]string, 0, len(outputs))
	for name := range outputs {
		names = append(names, name)
	}
	sort.Strings(names)

	var g errgroup.Group
	for _, name := range names {
		dest := outputs[name]
		g.Go(func() error {
			copyRef, err := image.Copy()
			if err != nil {
				return services.Wrap(services.ErrEncode, "imagecodec", "copy", name, err)
			}
			defer copyRef.Close()

			encoded, err := export(copyRef, name, lossless)
			if err != nil {
				return services.Wrap(services.ErrEncode, "imagecodec", "export", name, err)
			}
			if err := fileutil.WriteFileAtomic(dest, encoded, 0o644); err != nil {
				return services.Wrap(services.ErrIO, "imagecodec", "write", dest, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// Supported reports whether name is an exportable rendition.
func Supported(name string) bool {
	switch name {
	case FormatAVIF, FormatWebP, FormatPNG:
		return true
	default:
		return false
	}
}

func export(image *vips.ImageRef, name string, lossless bool) ([]byte, error) {
	switch name {
	case FormatAVIF:
		buf, _, err := image.ExportAvif(avifParams(lossless))
		return buf, err
	case FormatWebP:
		buf, _, err := image.ExportWebp(webpParams(lossless))
		return buf, err
	case FormatPNG:
		buf, _, err := image.ExportPng(pngParams())
		return buf, err
	default:
		return nil, fmt.Errorf("unsupported format %q", name)
	}
}

func avifParams(lossless bool) *vips.AvifExportParams {
	params := vips.NewAvifExportParams()
	params.StripMetadata = true
	params.Lossless = lossless
	params.Speed = 5
	return params
}

func webpParams(lossless bool) *vips.WebpExportParams {
	params := vips.NewWebpExportParams()
	params.StripMetadata = true
	params.Lossless = lossless
	return params
}

func pngParams() *vips.PngExportParams {
	params := vips.NewPngExportParams()
	params.StripMetadata = true
	params.Palette = true
	params.Compression = 9
	return params
}
