package ffmpeg

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"sync"

	"metapipe/internal/services"
)

// outputTailLines is how many trailing ffmpeg lines are kept for error reports.
const outputTailLines = 12

// Executor abstracts command execution for testability.
type Executor interface {
	Run(ctx context.Context, binary string, args []string, onOutput func(string)) error
}

// Option configures the runner.
type Option func(*Runner)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) Option {
	return func(r *Runner) {
		if exec != nil {
			r.exec = exec
		}
	}
}

// Runner wraps ffmpeg invocations.
type Runner struct {
	binary string
	exec   Executor
}

// New constructs a Runner for binary, defaulting to "ffmpeg".
func New(binary string, opts ...Option) *Runner {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		binary = "ffmpeg"
	}
	r := &Runner{binary: binary, exec: commandExecutor{}}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Binary returns the configured ffmpeg executable.
func (r *Runner) Binary() string { return r.binary }

// Encode transcodes input into output using args between the input and the
// output path.
func (r *Runner) Encode(ctx context.Context, input, output string, args []string) error {
	if input == "" || output == "" {
		return services.Wrap(services.ErrEncode, "ffmpeg", "encode", "", errors.New("input and output paths required"))
	}
	if err := os.MkdirAll(filepath.Dir(output), 0o755); err != nil {
		return services.Wrap(services.ErrIO, "ffmpeg", "create output dir", output, err)
	}

	partial := PartialPath(output)
	full := make([]string, 0, len(args)+8)
	full = append(full, "-hide_banner", "-nostdin", "-loglevel", "error", "-y", "-i", input)
	full = append(full, args...)
	full = append(full, partial)

	tail := newTail(outputTailLines)
	if err := r.exec.Run(ctx, r.binary, full, tail.add); err != nil {
		_ = os.Remove(partial)
		detail := filepath.Base(output)
		if lines := tail.String(); lines != "" {
			err = fmt.Errorf("%w: %s", err, lines)
		}
		return services.Wrap(services.ErrEncode, "ffmpeg", "encode", detail, err)
	}
	if err := os.Rename(partial, output); err != nil {
		_ = os.Remove(partial)
		return services.Wrap(services.ErrIO, "ffmpeg", "finalize output", output, err)
	}
	return nil
}

// PartialPath is the temporary file Encode writes before renaming into
// output. It keeps the output suffix so ffmpeg can infer the muxer.
func PartialPath(output string) string {
	dir, name := filepath.Split(output)
	ext := filepath.Ext(name)
	return filepath.Join(dir, "."+strings.TrimSuffix(name, ext)+".partial"+ext)
}

type tailBuffer struct {
	mu    sync.Mutex
	max   int
	lines []string
}

func newTail(max int) *tailBuffer {
	return &tailBuffer{max: max}
}

func (t *tailBuffer) add(line string) {
	line = strings.TrimSpace(line)
	if line == "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.lines = append(t.lines, line)
	if len(t.lines) > t.max {
		t.lines = t.lines[len(t.lines)-t.max:]
	}
}

func (t *tailBuffer) String() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	return strings.Join(t.lines, "; ")
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string, onOutput func(string)) error {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("stdout pipe: %w", err)
	}
	stderr, err := cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("stderr pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start command: %w", err)
	}

	var wg sync.WaitGroup
	scan := func(r io.Reader) {
		defer wg.Done()
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if onOutput != nil {
				onOutput(scanner.Text())
			}
		}
		_, _ = io.Copy(io.Discard, r)
	}

	wg.Add(2)
	go scan(stdout)
	go scan(stderr)
	wg.Wait()

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("wait command: %w", err)
	}
	return nil
}
