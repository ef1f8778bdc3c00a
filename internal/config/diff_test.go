package config_test

import (
	"testing"

	"github.com/greenroomhq/greenroom/internal/config"
)

func baseConfig() *config.Config {
	return &config.Config{
		Server: config.ServerConfig{
			ListenAddr: ":8080",
			LogLevel:   config.LogInfo,
		},
		Analysis: config.AnalysisConfig{
			PauseGapSeconds: 1.5,
			MaxRewrites:     2,
		},
		Questions: config.QuestionsConfig{
			File: "/etc/greenroom/questions.yaml",
		},
	}
}

func TestDiff_NoChanges(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("Diff of identical configs = %+v, want empty", d)
	}
}

func TestDiff_LogLevel(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.LogLevel = config.LogDebug

	d := config.Diff(old, new)
	if !d.LogLevelChanged {
		t.Fatal("LogLevelChanged = false, want true")
	}
	if d.NewLogLevel != config.LogDebug {
		t.Errorf("NewLogLevel = %q, want debug", d.NewLogLevel)
	}
	if d.AnalysisChanged || d.QuestionsFileChanged {
		t.Errorf("unrelated changes flagged: %+v", d)
	}
}

func TestDiff_Analysis(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Analysis.PauseGapSeconds = 3.0

	d := config.Diff(old, new)
	if !d.AnalysisChanged {
		t.Fatal("AnalysisChanged = false, want true")
	}
	if d.NewAnalysis.PauseGapSeconds != 3.0 {
		t.Errorf("NewAnalysis.PauseGapSeconds = %v, want 3.0", d.NewAnalysis.PauseGapSeconds)
	}
}

func TestDiff_QuestionsFile(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Questions.File = "/etc/greenroom/sre-questions.yaml"

	d := config.Diff(old, new)
	if !d.QuestionsFileChanged {
		t.Fatal("QuestionsFileChanged = false, want true")
	}
	if d.NewQuestionsFile != "/etc/greenroom/sre-questions.yaml" {
		t.Errorf("NewQuestionsFile = %q", d.NewQuestionsFile)
	}
}

func TestDiff_ServerAddrIsNotHotReloadable(t *testing.T) {
	t.Parallel()
	old := baseConfig()
	new := baseConfig()
	new.Server.ListenAddr = ":9090"

	d := config.Diff(old, new)
	if !d.Empty() {
		t.Errorf("listen_addr change should not be hot-reloadable, diff = %+v", d)
	}
}
