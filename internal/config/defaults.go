package config

const (
	defaultPublicDir   = "public"
	defaultStorageDir  = "resourceCache"
	defaultOutDir      = "dist"
	defaultManifest    = "meta.json"
	defaultHashStore   = "files-hash.json"
	defaultGameVersion = "0.0.0"

	defaultAnimationFrameWarn     = 50
	defaultAnimationSizeWarnBytes = 10_000_000
	defaultMaxParallel            = -1
	defaultFFmpegBinary           = "ffmpeg"
	defaultFFprobeBinary          = "ffprobe"
	defaultAV1Encoder             = AV1EncoderFFmpeg
	defaultLogFormat              = "console"
	defaultLogLevel               = "info"
	gameVersionEnv                = "GAME_VERSION"
	defaultUserConfigPath         = "~/.config/metapipe/config.toml"
	defaultProjectConfigFile      = "metapipe.toml"
)

// AV1 encoder backends for the video webm rendition.
const (
	AV1EncoderFFmpeg = "ffmpeg"
	AV1EncoderDrapto = "drapto"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Paths: Paths{
			PublicDir:  defaultPublicDir,
			StorageDir: defaultStorageDir,
			OutDir:     defaultOutDir,
		},
		Names: Names{
			Manifest:  defaultManifest,
			HashStore: defaultHashStore,
		},
		Build: Build{
			MaxParallel:            defaultMaxParallel,
			AnimationFrameWarn:     defaultAnimationFrameWarn,
			AnimationSizeWarnBytes: defaultAnimationSizeWarnBytes,
		},
		Tools: Tools{
			FFmpeg:     defaultFFmpegBinary,
			FFprobe:    defaultFFprobeBinary,
			AV1Encoder: defaultAV1Encoder,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
	}
}
