package config

// ConfigDiff describes what changed between two configs.
// Only fields that can be safely hot-reloaded are tracked; provider and
// server changes require a restart.
type ConfigDiff struct {
	LogLevelChanged bool
	NewLogLevel     LogLevel

	// AnalysisChanged is true when any analysis tuning knob changed.
	// The new values apply to analyses started after the reload.
	AnalysisChanged bool
	NewAnalysis     AnalysisConfig

	// QuestionsFileChanged is true when the question file path changed.
	// A reload swaps the question set for sessions started afterwards;
	// a running session keeps the set it started with.
	QuestionsFileChanged bool
	NewQuestionsFile     string
}

// Empty reports whether the diff carries no hot-reloadable change.
func (d ConfigDiff) Empty() bool {
	return !d.LogLevelChanged && !d.AnalysisChanged && !d.QuestionsFileChanged
}

// Diff compares old and new configs and returns what changed.
// Only tracks changes that are safe to apply without restart.
func Diff(old, new *Config) ConfigDiff {
	d := ConfigDiff{}

	if old.Server.LogLevel != new.Server.LogLevel {
		d.LogLevelChanged = true
		d.NewLogLevel = new.Server.LogLevel
	}

	if old.Analysis != new.Analysis {
		d.AnalysisChanged = true
		d.NewAnalysis = new.Analysis
	}

	if old.Questions.File != new.Questions.File {
		d.QuestionsFileChanged = true
		d.NewQuestionsFile = new.Questions.File
	}

	return d
}
