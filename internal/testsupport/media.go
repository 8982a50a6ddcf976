package testsupport

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	"metapipe/internal/media/ffprobe"
)

// FakeTranscoder records encodes and writes a small marker file for each
// output. Fail maps an output file name (e.g. "jump.ogg") to the error to
// return instead.
type FakeTranscoder struct {
	mu    sync.Mutex
	calls []string
	Fail  map[string]error
}

// Encode implements the transcoder contract.
func (f *FakeTranscoder) Encode(_ context.Context, input, output string, _ []string) error {
	f.mu.Lock()
	f.calls = append(f.calls, output)
	err := f.Fail[filepath.Base(output)]
	f.mu.Unlock()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return err
	}
	return os.WriteFile(output, []byte("encoded from "+filepath.Base(input)), 0o644)
}

// Calls returns the recorded output paths, sorted.
func (f *FakeTranscoder) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := append([]string(nil), f.calls...)
	sort.Strings(out)
	return out
}

// Reset forgets recorded calls.
func (f *FakeTranscoder) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = nil
}

// FakeImageEncoder writes the source bytes to every requested output.
type FakeImageEncoder struct {
	calls    atomic.Int64
	mu       sync.Mutex
	lossless map[string]bool
	Fail     error
}

// Encode implements the image encoder contract.
func (f *FakeImageEncoder) Encode(_ context.Context, src io.Reader, outputs map[string]string, lossless bool) error {
	f.calls.Add(1)
	if f.Fail != nil {
		return f.Fail
	}
	data, err := io.ReadAll(src)
	if err != nil {
		return err
	}
	for _, path := range outputs {
		if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
			return err
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			return err
		}
		f.mu.Lock()
		if f.lossless == nil {
			f.lossless = make(map[string]bool)
		}
		f.lossless[path] = lossless
		f.mu.Unlock()
	}
	return nil
}

// Calls returns how many images were encoded.
func (f *FakeImageEncoder) Calls() int {
	return int(f.calls.Load())
}

// Lossless reports the lossless flag used for an output path.
func (f *FakeImageEncoder) Lossless(path string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lossless[path]
}

// FakeProber answers probes from tables keyed by file name.
type FakeProber struct {
	Durations map[string]string
	Frames    map[string]string
	Fail      map[string]error
	calls     atomic.Int64
}

// Inspect implements the prober contract.
func (f *FakeProber) Inspect(_ context.Context, path string) (ffprobe.Result, error) {
	f.calls.Add(1)
	name := filepath.Base(path)
	if err := f.Fail[name]; err != nil {
		return ffprobe.Result{}, err
	}
	duration, hasDuration := f.Durations[name]
	frames, hasFrames := f.Frames[name]
	if !hasDuration && !hasFrames {
		if strings.HasSuffix(strings.ToLower(name), ".wav") {
			duration = "1.000000"
		} else {
			return ffprobe.Result{}, fmt.Errorf("fake prober: no data for %s: %w", name, errors.ErrUnsupported)
		}
	}
	return ffprobe.Result{
		Streams: []ffprobe.Stream{{CodecType: "video", Duration: duration, NBFrames: frames}},
	}, nil
}

// Calls returns how many probes ran.
func (f *FakeProber) Calls() int {
	return int(f.calls.Load())
}
