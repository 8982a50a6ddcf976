package imagecodec

import (
	"context"
	"errors"
	"strings"
	"testing"

	"metapipe/internal/services"
)

func TestSupported(t *testing.T) {
	for _, name := range []string{FormatAVIF, FormatWebP, FormatPNG} {
		if !Supported(name) {
			t.Fatalf("%s should be supported", name)
		}
	}
	if Supported("gif") {
		t.Fatal("gif is not a still-image rendition")
	}
}

func TestEncodeRejectsUnknownFormatBeforeDecoding(t *testing.T) {
	var enc Encoder
	err := enc.Encode(context.Background(), strings.NewReader("not an image"), map[string]string{"bmp": "/tmp/x.bmp"}, false)
	if !errors.Is(err, services.ErrEncode) {
		t.Fatalf("expected ErrEncode, got %v", err)
	}
}

func TestExportParams(t *testing.T) {
	png := pngParams()
	if !png.Palette || png.Compression != 9 {
		t.Fatalf("png params = %+v", png)
	}
	if !avifParams(true).Lossless || avifParams(false).Lossless {
		t.Fatal("avif lossless flag not applied")
	}
	if !webpParams(true).Lossless {
		t.Fatal("webp lossless flag not applied")
	}
}
