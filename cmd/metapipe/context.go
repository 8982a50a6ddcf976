package main

import (
	"log/slog"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"metapipe/internal/config"
	"metapipe/internal/logging"
)

// globalFlags are persistent flags that override configuration values.
type globalFlags struct {
	configPath string
	publicDir  string
	storageDir string
	outDir     string
	manifest   string
	hashStore  string
	logLevel   string
	logFormat  string
	noProgress bool

	logSelectFiles bool
	logFilesHash   bool
	logConvert     bool
	logOptions     bool
	logPublic      bool
	logFileChange  bool
}

func (f *globalFlags) register(cmd *cobra.Command) {
	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Configuration file path")
	pf.StringVar(&f.publicDir, "publicDir", "", "Source asset directory")
	pf.StringVar(&f.storageDir, "storageDir", "", "Converted output cache directory")
	pf.StringVar(&f.outDir, "outDir", "", "Distribution directory for production builds")
	pf.StringVar(&f.manifest, "manifest", "", "Manifest file name")
	pf.StringVar(&f.hashStore, "hash-store", "", "Fingerprint store file name")
	pf.StringVar(&f.logLevel, "log-level", "", "Log level (debug, info, warn, error)")
	pf.StringVar(&f.logFormat, "log-format", "", "Log format (console, json)")
	pf.BoolVar(&f.noProgress, "no-progress", false, "Disable the progress bar")
	pf.BoolVar(&f.logSelectFiles, "log-select-files", false, "Log every selected asset")
	pf.BoolVar(&f.logFilesHash, "log-files-hash", false, "Log every computed fingerprint")
	pf.BoolVar(&f.logConvert, "log-convert", false, "Log every converted asset")
	pf.BoolVar(&f.logOptions, "log-options", false, "Log the resolved run options")
	pf.BoolVar(&f.logPublic, "log-public", false, "Log files copied into the distribution tree")
	pf.BoolVar(&f.logFileChange, "log-file-change", false, "Log assets whose fingerprint changed")
}

// apply copies explicitly set flags onto cfg.
func (f *globalFlags) apply(cmd *cobra.Command, cfg *config.Config) {
	changed := func(name string) bool {
		flag := cmd.Flags().Lookup(name)
		return flag != nil && flag.Changed
	}
	setString := func(name string, dst *string, value string) {
		if changed(name) {
			*dst = strings.TrimSpace(value)
		}
	}
	setBool := func(name string, dst *bool, value bool) {
		if changed(name) {
			*dst = value
		}
	}
	setString("publicDir", &cfg.Paths.PublicDir, f.publicDir)
	setString("storageDir", &cfg.Paths.StorageDir, f.storageDir)
	setString("outDir", &cfg.Paths.OutDir, f.outDir)
	setString("manifest", &cfg.Names.Manifest, f.manifest)
	setString("hash-store", &cfg.Names.HashStore, f.hashStore)
	setString("log-level", &cfg.Logging.Level, f.logLevel)
	setString("log-format", &cfg.Logging.Format, f.logFormat)
	setBool("log-select-files", &cfg.Logging.SelectFiles, f.logSelectFiles)
	setBool("log-files-hash", &cfg.Logging.FilesHash, f.logFilesHash)
	setBool("log-convert", &cfg.Logging.Convert, f.logConvert)
	setBool("log-options", &cfg.Logging.Options, f.logOptions)
	setBool("log-public", &cfg.Logging.Public, f.logPublic)
	setBool("log-file-change", &cfg.Logging.FileChange, f.logFileChange)
}

type commandContext struct {
	flags *globalFlags

	configOnce sync.Once
	config     *config.Config
	configPath string
	configSeen bool
	configErr  error

	loggerOnce sync.Once
	logger     *slog.Logger
	loggerErr  error
}

func newCommandContext(flags *globalFlags) *commandContext {
	return &commandContext{flags: flags}
}

func (c *commandContext) ensureConfig(cmd *cobra.Command) (*config.Config, error) {
	c.configOnce.Do(func() {
		cfg, path, exists, err := config.Load(strings.TrimSpace(c.flags.configPath))
		if err != nil {
			c.configErr = err
			return
		}
		c.flags.apply(cmd, cfg)
		if err := cfg.Finalize(); err != nil {
			c.configErr = err
			return
		}
		c.config = cfg
		c.configPath = path
		c.configSeen = exists
	})
	return c.config, c.configErr
}

func (c *commandContext) ensureLogger() (*slog.Logger, error) {
	c.loggerOnce.Do(func() {
		if c.config == nil {
			c.logger = logging.NewNop()
			return
		}
		c.logger, c.loggerErr = logging.NewFromConfig(c.config)
	})
	return c.logger, c.loggerErr
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}

func yesNo(value bool) string {
	if value {
		return "yes"
	}
	return "no"
}
