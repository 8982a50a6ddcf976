package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"metapipe/internal/services"
)

//go:embed sample_config.toml
var sampleConfig string

// Paths contains the three directory roots a run touches.
type Paths struct {
	// PublicDir is the source tree. Dev manifests are written here.
	PublicDir string `toml:"public_dir"`
	// StorageDir mirrors PublicDir with converted outputs and holds the hash store.
	StorageDir string `toml:"storage_dir"`
	// OutDir is the distribution tree filled by production builds.
	OutDir string `toml:"out_dir"`
}

// Names contains file names written inside the configured directories.
type Names struct {
	Manifest  string `toml:"manifest"`
	HashStore string `toml:"hash_store"`
}

// Build contains conversion and manifest settings.
type Build struct {
	GameVersion            string   `toml:"game_version"`
	Prod                   bool     `toml:"prod"`
	MaxParallel            int      `toml:"max_parallel"`
	AnimationFrameWarn     int      `toml:"animation_frame_warn"`
	AnimationSizeWarnBytes int64    `toml:"animation_size_warn_bytes"`
	Exclude                []string `toml:"exclude"`
	LosslessImages         []string `toml:"lossless_images"`
}

// Tools names the external binaries and the AV1 backend.
type Tools struct {
	FFmpeg     string `toml:"ffmpeg"`
	FFprobe    string `toml:"ffprobe"`
	AV1Encoder string `toml:"av1_encoder"`
}

// Logging contains configuration for log output. The boolean toggles promote
// a class of per-file lines from debug to info.
type Logging struct {
	Format      string `toml:"format"`
	Level       string `toml:"level"`
	File        string `toml:"file"`
	SelectFiles bool   `toml:"select_files"`
	FilesHash   bool   `toml:"files_hash"`
	Convert     bool   `toml:"convert"`
	Options     bool   `toml:"options"`
	Public      bool   `toml:"public"`
	FileChange  bool   `toml:"file_change"`
}

// Config encapsulates all configuration values for metapipe.
//
// Configuration sections by subsystem:
//   - Paths: source, storage cache, and distribution roots
//   - Names: manifest and fingerprint store file names
//   - Build: version, mode, parallelism, advisories, and asset filters
//   - Tools: ffmpeg/ffprobe binaries and the AV1 backend
//   - Logging: log format, level, file sink, and per-class toggles
type Config struct {
	Paths   Paths   `toml:"paths"`
	Names   Names   `toml:"names"`
	Build   Build   `toml:"build"`
	Tools   Tools   `toml:"tools"`
	Logging Logging `toml:"logging"`
}

// DefaultConfigPath returns the absolute path to the default configuration file location.
func DefaultConfigPath() (string, error) {
	return expandPath(defaultUserConfigPath)
}

// Load locates, parses, and validates a configuration file. The returned config has all
// path fields expanded and normalized.
func Load(path string) (*Config, string, bool, error) {
	cfg := Default()

	resolvedPath, exists, err := resolveConfigPath(path)
	if err != nil {
		return nil, "", false, err
	}

	if exists {
		file, err := os.Open(resolvedPath)
		if err != nil {
			return nil, "", false, services.Wrap(services.ErrConfig, "config", "open", resolvedPath, err)
		}
		defer file.Close()

		decoder := toml.NewDecoder(file)
		decoder.DisallowUnknownFields()
		if err := decoder.Decode(&cfg); err != nil {
			return nil, "", false, services.Wrap(services.ErrConfig, "config", "parse", resolvedPath, err)
		}
	}

	if err := cfg.Finalize(); err != nil {
		return nil, "", false, err
	}

	return &cfg, resolvedPath, exists, nil
}

// Finalize normalizes and validates the config. Callers that mutate a loaded
// config (CLI flag overrides) call it again before use.
func (c *Config) Finalize() error {
	if err := c.normalize(); err != nil {
		return services.Wrap(services.ErrConfig, "config", "normalize", "", err)
	}
	if err := c.Validate(); err != nil {
		return services.Wrap(services.ErrConfig, "config", "validate", "", err)
	}
	return nil
}

func resolveConfigPath(path string) (string, bool, error) {
	if path != "" {
		expanded, err := expandPath(path)
		if err != nil {
			return "", false, err
		}
		_, err = os.Stat(expanded)
		if err != nil {
			if errors.Is(err, fs.ErrNotExist) {
				return expanded, false, nil
			}
			return "", false, fmt.Errorf("stat config: %w", err)
		}
		return expanded, true, nil
	}

	defaultPath, err := expandPath(defaultUserConfigPath)
	if err != nil {
		return "", false, err
	}

	projectPath, err := filepath.Abs(defaultProjectConfigFile)
	if err != nil {
		return "", false, err
	}

	if info, err := os.Stat(defaultPath); err == nil && !info.IsDir() {
		return defaultPath, true, nil
	}
	if info, err := os.Stat(projectPath); err == nil && !info.IsDir() {
		return projectPath, true, nil
	}

	return defaultPath, false, nil
}

// EnsureDirectories creates the storage cache. The distribution tree is only
// created for production builds since dev runs never write there.
func (c *Config) EnsureDirectories() error {
	if err := os.MkdirAll(c.Paths.StorageDir, 0o755); err != nil {
		return services.Wrap(services.ErrIO, "config", "create storage dir", c.Paths.StorageDir, err)
	}
	if c.Build.Prod && strings.TrimSpace(c.Paths.OutDir) != "" {
		if err := os.MkdirAll(c.Paths.OutDir, 0o755); err != nil {
			return services.Wrap(services.ErrIO, "config", "create out dir", c.Paths.OutDir, err)
		}
	}
	return nil
}

// FFmpegBinary returns the ffmpeg executable used for audio, animation, and video encodes.
func (c *Config) FFmpegBinary() string {
	if c == nil || strings.TrimSpace(c.Tools.FFmpeg) == "" {
		return defaultFFmpegBinary
	}
	return c.Tools.FFmpeg
}

// FFprobeBinary returns the ffprobe executable used for durations and frame counts.
func (c *Config) FFprobeBinary() string {
	if c == nil || strings.TrimSpace(c.Tools.FFprobe) == "" {
		return defaultFFprobeBinary
	}
	return c.Tools.FFprobe
}

// HashStorePath is the absolute location of the persisted fingerprint store.
func (c *Config) HashStorePath() string {
	return filepath.Join(c.Paths.StorageDir, c.Names.HashStore)
}

// ManifestDir is where the manifest lands: the distribution tree for
// production builds and the source tree otherwise.
func (c *Config) ManifestDir() string {
	if c.Build.Prod {
		return c.Paths.OutDir
	}
	return c.Paths.PublicDir
}

func expandPath(pathValue string) (string, error) {
	if pathValue == "" {
		return pathValue, nil
	}
	if strings.HasPrefix(pathValue, "~") {
		home, err := os.UserHomeDir()
		if err != nil {
			return "", fmt.Errorf("resolve home directory: %w", err)
		}
		if pathValue == "~" {
			pathValue = home
		} else if len(pathValue) > 1 && (pathValue[1] == '/' || pathValue[1] == '\\') {
			pathValue = filepath.Join(home, pathValue[2:])
		}
	}
	cleaned := filepath.Clean(pathValue)
	absolute, err := filepath.Abs(cleaned)
	if err != nil {
		return "", fmt.Errorf("resolve absolute path for %q: %w", cleaned, err)
	}
	return absolute, nil
}

// ExpandPath exposes the repository path expansion rules for other packages.
func ExpandPath(pathValue string) (string, error) {
	return expandPath(pathValue)
}

// CreateSample writes a sample configuration file to the specified location.
func CreateSample(path string) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create config directory: %w", err)
		}
	}

	if err := os.WriteFile(path, []byte(sampleConfig), 0o644); err != nil {
		return fmt.Errorf("write sample config: %w", err)
	}
	return nil
}

// Encode renders the config as TOML, used by `config show`.
func (c *Config) Encode() ([]byte, error) {
	return toml.Marshal(c)
}
