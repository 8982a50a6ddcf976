package config

import (
	"fmt"
	"os"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizePaths(); err != nil {
		return err
	}
	c.normalizeNames()
	c.normalizeBuild()
	c.normalizeTools()
	c.normalizeLogging()
	return nil
}

func (c *Config) normalizePaths() error {
	var err error
	if strings.TrimSpace(c.Paths.PublicDir) == "" {
		c.Paths.PublicDir = defaultPublicDir
	}
	if c.Paths.PublicDir, err = expandPath(c.Paths.PublicDir); err != nil {
		return fmt.Errorf("paths.public_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.StorageDir) == "" {
		c.Paths.StorageDir = defaultStorageDir
	}
	if c.Paths.StorageDir, err = expandPath(c.Paths.StorageDir); err != nil {
		return fmt.Errorf("paths.storage_dir: %w", err)
	}
	if strings.TrimSpace(c.Paths.OutDir) == "" {
		c.Paths.OutDir = defaultOutDir
	}
	if c.Paths.OutDir, err = expandPath(c.Paths.OutDir); err != nil {
		return fmt.Errorf("paths.out_dir: %w", err)
	}
	return nil
}

func (c *Config) normalizeNames() {
	c.Names.Manifest = strings.TrimSpace(c.Names.Manifest)
	if c.Names.Manifest == "" {
		c.Names.Manifest = defaultManifest
	}
	c.Names.HashStore = strings.TrimSpace(c.Names.HashStore)
	if c.Names.HashStore == "" {
		c.Names.HashStore = defaultHashStore
	}
}

func (c *Config) normalizeBuild() {
	c.Build.GameVersion = strings.TrimSpace(c.Build.GameVersion)
	if c.Build.GameVersion == "" {
		if value, ok := os.LookupEnv(gameVersionEnv); ok {
			c.Build.GameVersion = strings.TrimSpace(value)
		}
	}
	if c.Build.GameVersion == "" {
		c.Build.GameVersion = defaultGameVersion
	}
	if c.Build.MaxParallel == 0 {
		c.Build.MaxParallel = defaultMaxParallel
	}
	if c.Build.AnimationFrameWarn == 0 {
		c.Build.AnimationFrameWarn = defaultAnimationFrameWarn
	}
	if c.Build.AnimationSizeWarnBytes == 0 {
		c.Build.AnimationSizeWarnBytes = defaultAnimationSizeWarnBytes
	}
	c.Build.Exclude = cleanPatterns(c.Build.Exclude)
	c.Build.LosslessImages = cleanPatterns(c.Build.LosslessImages)
}

func (c *Config) normalizeTools() {
	c.Tools.FFmpeg = strings.TrimSpace(c.Tools.FFmpeg)
	if c.Tools.FFmpeg == "" {
		c.Tools.FFmpeg = defaultFFmpegBinary
	}
	c.Tools.FFprobe = strings.TrimSpace(c.Tools.FFprobe)
	if c.Tools.FFprobe == "" {
		c.Tools.FFprobe = defaultFFprobeBinary
	}
	c.Tools.AV1Encoder = strings.ToLower(strings.TrimSpace(c.Tools.AV1Encoder))
	if c.Tools.AV1Encoder == "" {
		c.Tools.AV1Encoder = defaultAV1Encoder
	}
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
	if file := strings.TrimSpace(c.Logging.File); file != "" {
		if expanded, err := expandPath(file); err == nil {
			c.Logging.File = expanded
		}
	}
}

// cleanPatterns trims, converts to slash form, and drops blanks and duplicates.
func cleanPatterns(patterns []string) []string {
	if len(patterns) == 0 {
		return nil
	}
	seen := make(map[string]struct{}, len(patterns))
	out := make([]string, 0, len(patterns))
	for _, raw := range patterns {
		value := strings.TrimSpace(strings.ReplaceAll(raw, "\\", "/"))
		value = strings.TrimPrefix(value, "./")
		if value == "" {
			continue
		}
		if _, ok := seen[value]; ok {
			continue
		}
		seen[value] = struct{}{}
		out = append(out, value)
	}
	return out
}
