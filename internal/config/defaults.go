package config

const (
	defaultStateDir             = "~/.local/share/audioclean"
	defaultQuarantineSubdir     = "quarantine"
	defaultLogSubdir            = "logs"
	defaultFpcalcBinary         = "fpcalc"
	defaultKeepPolicy           = KeepBestQuality
	defaultFingerprintThreshold = 0.90
	defaultDedupeStrategy       = DedupeQuarantine
	defaultLayoutTemplate       = "{album_artist}/{album} ({year})/{disc}-{track:02} {title}"
	defaultConfidenceThreshold  = 0.85
	defaultConflictMode         = ConflictSuffix
	defaultParallelWorkers      = 4
	defaultArtMinDimension      = 500
	defaultArtFileName          = "cover.jpg"
	defaultLogFormat            = "console"
	defaultLogLevel             = "info"
	defaultLogRetentionDays     = 30
)

// Keep policies select the canonical member of a duplicate group.
const (
	KeepBestQuality  = "best_quality"
	KeepNewest       = "newest"
	KeepPathPriority = "path_priority"
)

// Dedupe strategies decide what happens to non-canonical duplicates.
const (
	DedupeQuarantine = "quarantine"
	DedupeMove       = "move"
	DedupeDelete     = "delete"
	DedupeOff        = "off"
)

// Conflict modes control destination collision handling in the planner.
const (
	ConflictSuffix = "suffix"
	ConflictOmit   = "omit"
)

// DefaultExtensions lists the audio containers recognized by the scanner.
func DefaultExtensions() []string {
	return []string{"mp3", "flac", "m4a", "aac", "ogg", "opus", "wav"}
}

// Default returns a Config populated with repository defaults. Directories
// derived from the state directory are filled in by normalize.
func Default() Config {
	return Config{
		Paths: Paths{
			StateDir: defaultStateDir,
		},
		Scan: Scan{
			Extensions:   DefaultExtensions(),
			Fingerprint:  true,
			FpcalcBinary: defaultFpcalcBinary,
		},
		Duplicates: Duplicates{
			KeepPolicy:           defaultKeepPolicy,
			FingerprintThreshold: defaultFingerprintThreshold,
			FingerprintEnabled:   true,
		},
		Planner: Planner{
			DedupeStrategy:      defaultDedupeStrategy,
			LayoutTemplate:      defaultLayoutTemplate,
			LayoutEnabled:       true,
			ConfidenceThreshold: defaultConfidenceThreshold,
			ConflictMode:        defaultConflictMode,
		},
		Apply: Apply{
			QuarantineEnabled: true,
			ParallelWorkers:   defaultParallelWorkers,
		},
		Art: Art{
			Enabled:      true,
			MinDimension: defaultArtMinDimension,
			FileName:     defaultArtFileName,
		},
		Logging: Logging{
			Format:        defaultLogFormat,
			Level:         defaultLogLevel,
			RetentionDays: defaultLogRetentionDays,
		},
	}
}
