package main

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/mattn/go-isatty"
	"github.com/schollz/progressbar/v3"

	"metapipe/internal/assets"
	"metapipe/internal/convert"
)

// progressObserver renders conversion progress on a terminal.
type progressObserver struct {
	mu  sync.Mutex
	bar *progressbar.ProgressBar
}

// newProgressObserver returns nil when w is not a terminal or progress is
// disabled, so log output stays clean in CI.
func newProgressObserver(w io.Writer, total int, disabled bool) *progressObserver {
	if disabled || total == 0 || !isTerminal(w) {
		return nil
	}
	bar := progressbar.NewOptions(total,
		progressbar.OptionSetWriter(w),
		progressbar.OptionSetDescription("converting"),
		progressbar.OptionShowCount(),
		progressbar.OptionSetPredictTime(true),
		progressbar.OptionClearOnFinish(),
		progressbar.OptionThrottle(100*time.Millisecond),
	)
	return &progressObserver{bar: bar}
}

func (p *progressObserver) AssetStarted(kind assets.Kind, key string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.bar.Describe(fmt.Sprintf("%s %s", kind, key))
}

func (p *progressObserver) AssetFinished(convert.Outcome) {
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Add(1)
}

func (p *progressObserver) finish() {
	if p == nil {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	_ = p.bar.Finish()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
