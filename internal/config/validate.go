package config

import (
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validatePaths(); err != nil {
		return err
	}
	if err := c.validateNames(); err != nil {
		return err
	}
	if err := c.validateBuild(); err != nil {
		return err
	}
	if err := c.validateTools(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return nil
}

func (c *Config) validatePaths() error {
	if c.Paths.PublicDir == "" {
		return errors.New("paths.public_dir must be set")
	}
	if c.Paths.StorageDir == "" {
		return errors.New("paths.storage_dir must be set")
	}
	if c.Paths.PublicDir == c.Paths.StorageDir {
		return errors.New("paths.storage_dir must differ from paths.public_dir")
	}
	if within(c.Paths.StorageDir, c.Paths.PublicDir) {
		return errors.New("paths.storage_dir must not be inside paths.public_dir")
	}
	if within(c.Paths.PublicDir, c.Paths.StorageDir) {
		return errors.New("paths.public_dir must not be inside paths.storage_dir")
	}
	if c.Paths.OutDir == "" {
		return nil
	}
	// Builds empty out_dir before seeding it, so it must not overlap a tree
	// that holds sources or cached outputs.
	for _, other := range []struct{ key, dir string }{
		{"paths.public_dir", c.Paths.PublicDir},
		{"paths.storage_dir", c.Paths.StorageDir},
	} {
		switch {
		case c.Paths.OutDir == other.dir:
			return fmt.Errorf("paths.out_dir must differ from %s", other.key)
		case within(other.dir, c.Paths.OutDir):
			return fmt.Errorf("%s must not be inside paths.out_dir", other.key)
		case within(c.Paths.OutDir, other.dir):
			return fmt.Errorf("paths.out_dir must not be inside %s", other.key)
		}
	}
	return nil
}

func (c *Config) validateNames() error {
	for key, value := range map[string]string{
		"names.manifest":   c.Names.Manifest,
		"names.hash_store": c.Names.HashStore,
	} {
		if strings.ContainsAny(value, `/\`) {
			return fmt.Errorf("%s must be a plain file name, got %q", key, value)
		}
	}
	if c.Names.Manifest == c.Names.HashStore {
		return errors.New("names.manifest and names.hash_store must differ")
	}
	return nil
}

func (c *Config) validateBuild() error {
	if c.Build.MaxParallel < -1 {
		return errors.New("build.max_parallel must be -1 (unlimited) or positive")
	}
	if c.Build.AnimationFrameWarn < 0 {
		return errors.New("build.animation_frame_warn must be >= 0")
	}
	if c.Build.AnimationSizeWarnBytes < 0 {
		return errors.New("build.animation_size_warn_bytes must be >= 0")
	}
	for _, pattern := range append(append([]string{}, c.Build.Exclude...), c.Build.LosslessImages...) {
		if _, err := path.Match(pattern, ""); err != nil {
			return fmt.Errorf("build pattern %q: %w", pattern, err)
		}
	}
	return nil
}

func (c *Config) validateTools() error {
	switch c.Tools.AV1Encoder {
	case AV1EncoderFFmpeg, AV1EncoderDrapto:
	default:
		return fmt.Errorf("tools.av1_encoder must be %q or %q, got %q", AV1EncoderFFmpeg, AV1EncoderDrapto, c.Tools.AV1Encoder)
	}
	return nil
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format must be console or json, got %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "warning", "error":
	default:
		return fmt.Errorf("logging.level %q is not recognized", c.Logging.Level)
	}
	return nil
}

func within(child, parent string) bool {
	rel, err := filepath.Rel(parent, child)
	if err != nil {
		return false
	}
	return rel != "." && rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}
