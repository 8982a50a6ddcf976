// Package plugin is the embedding API for bundler hosts: it adapts the
// pipeline to a bundler's lifecycle hooks. Hook failures are logged to the host logger and never returned, so a broken
// asset cannot crash the host process.
package plugin

import (
	"context"
	"log/slog"
	"sync"

	"metapipe/internal/config"
	"metapipe/internal/logging"
	"metapipe/internal/manifest"
	"metapipe/internal/pipeline"
	"metapipe/internal/services"
)

// Command is the bundler invocation the hooks run under.
type Command string

const (
	CommandServe Command = "serve"
	CommandBuild Command = "build"
)

// Runner is the pipeline surface the hooks drive.
type Runner interface {
	Run(ctx context.Context, opts pipeline.Options) (*pipeline.State, error)
}

// Plugin implements the bundler hooks.
type Plugin struct {
	cfg     *config.Config
	runner  Runner
	command Command
	logger  *slog.Logger

	mu      sync.Mutex
	lastErr error
}

// New constructs a Plugin for the given bundler command.
func New(cfg *config.Config, runner Runner, command Command, logger *slog.Logger) *Plugin {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Plugin{
		cfg:     cfg,
		runner:  runner,
		command: command,
		logger:  logging.NewComponentLogger(logger, "plugin"),
	}
}

// BuildStart writes the development manifest when serving.
func (p *Plugin) BuildStart(ctx context.Context) {
	if p.command != CommandServe {
		return
	}
	p.run(ctx, "build_start", pipeline.Options{Mode: pipeline.ModeDev})
}

// BuildEnd removes the development manifest when serving.
func (p *Plugin) BuildEnd(context.Context) {
	if p.command != CommandServe {
		return
	}
	removed, err := manifest.Remove(p.cfg.Paths.PublicDir, p.cfg.Names.Manifest)
	if err != nil {
		p.fail("build_end", err)
		return
	}
	p.logger.Debug("development manifest removed", logging.Bool("removed", removed))
}

// CloseBundle runs after a build bundle is written. Production builds run
// the full pipeline; other builds only write a development manifest into
// the out dir.
func (p *Plugin) CloseBundle(ctx context.Context) {
	if p.command != CommandBuild {
		return
	}
	mode := pipeline.ModeBundle
	if p.cfg.Build.Prod {
		mode = pipeline.ModeBuild
	}
	p.run(ctx, "close_bundle", pipeline.Options{Mode: mode})
}

// Failed reports whether any hook failed, and the first error.
func (p *Plugin) Failed() (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastErr != nil, p.lastErr
}

// ExitCode is the status the host should exit with.
func (p *Plugin) ExitCode() int {
	_, err := p.Failed()
	return services.ExitCode(err)
}

func (p *Plugin) run(ctx context.Context, hook string, opts pipeline.Options) {
	if _, err := p.runner.Run(ctx, opts); err != nil {
		p.fail(hook, err)
	}
}

func (p *Plugin) fail(hook string, err error) {
	p.mu.Lock()
	if p.lastErr == nil {
		p.lastErr = err
	}
	p.mu.Unlock()
	logging.ErrorWithContext(p.logger, "bundler hook failed", "plugin_hook_failed",
		logging.String("hook", hook),
		logging.String("error_kind", services.Kind(err)),
		logging.Error(err),
		logging.String(logging.FieldImpact, "assets for this bundle are incomplete"))
}
