// Package app wires all greenroom subsystems into a running server.
//
// The App struct owns the full lifecycle: New creates and connects all
// subsystems, Run serves HTTP until the context is cancelled, and Shutdown
// tears everything down in order.
//
// For testing, inject doubles via functional options (WithArchive,
// WithAnalyzer, etc.). When an option is not provided, New creates real
// implementations from the config.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/internal/config"
	"github.com/greenroomhq/greenroom/internal/health"
	"github.com/greenroomhq/greenroom/internal/httpapi"
	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/internal/session"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/history/postgres"
	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/embeddings"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
	"github.com/greenroomhq/greenroom/pkg/provider/vad"
)

// defaultEmbeddingDims matches OpenAI text-embedding-3-small, the most common
// embeddings configuration.
const defaultEmbeddingDims = 1536

// Providers holds one interface value per provider slot. Nil means the
// provider is not configured. Populated by main.go via the config registry.
type Providers struct {
	Transcriber transcribe.Transcriber
	LLM         llm.Provider
	TTS         tts.Provider
	Embeddings  embeddings.Provider
	VAD         vad.Engine
	Audio       audio.Platform
}

// Analyzer is the pipeline surface the app exposes to its HTTP API and room
// manager. Implemented by [analysis.Analyzer].
type Analyzer interface {
	Analyze(ctx context.Context, clip audio.Clip, actx analysis.Context) (*interview.AnalysisResult, error)
}

// App owns all subsystem lifetimes.
type App struct {
	cfg       *config.Config
	providers *Providers
	metrics   *observe.Metrics
	logLevel  *slog.LevelVar

	// analyzerMu guards analyzer so a config reload can swap in a pipeline
	// with new tuning while requests are in flight.
	analyzerMu sync.RWMutex
	analyzer   Analyzer

	questions *question.Manager
	archive   history.Archive
	recorder  *history.Recorder
	rooms     *RoomManager
	health    *health.Handler
	api       *httpapi.Server
	httpSrv   *http.Server

	// closers are called in order during Shutdown.
	closers []func() error

	// stopOnce guards the Shutdown path.
	stopOnce sync.Once
}

// Option is a functional option for New. Use these to inject test doubles.
type Option func(*App)

// WithAnalyzer injects an analysis pipeline instead of building one from the
// config.
func WithAnalyzer(a Analyzer) Option {
	return func(app *App) { app.analyzer = a }
}

// WithQuestionManager injects a question manager instead of creating one.
func WithQuestionManager(m *question.Manager) Option {
	return func(app *App) { app.questions = m }
}

// WithArchive injects a practice-history archive instead of connecting to
// Postgres from the config.
func WithArchive(a history.Archive) Option {
	return func(app *App) { app.archive = a }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(app *App) {
		if m != nil {
			app.metrics = m
		}
	}
}

// WithLogLevelVar hands the app the level var backing the process logger so
// config reloads can change verbosity.
func WithLogLevelVar(v *slog.LevelVar) Option {
	return func(app *App) { app.logLevel = v }
}

// ─── New ─────────────────────────────────────────────────────────────────────

// New creates an App by wiring all subsystems together. The providers struct
// comes from main.go (populated via the config registry). Use Option functions
// to inject test doubles for any subsystem.
func New(ctx context.Context, cfg *config.Config, providers *Providers, opts ...Option) (*App, error) {
	a := &App{
		cfg:       cfg,
		providers: providers,
	}
	for _, o := range opts {
		o(a)
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}

	// ── 1. Analysis pipeline ─────────────────────────────────────────────
	if err := a.initAnalyzer(); err != nil {
		return nil, fmt.Errorf("app: init analyzer: %w", err)
	}

	// ── 2. Question manager ──────────────────────────────────────────────
	if err := a.initQuestions(); err != nil {
		return nil, fmt.Errorf("app: init questions: %w", err)
	}

	// ── 3. Practice-history archive ──────────────────────────────────────
	archiveCheck, err := a.initArchive(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: init archive: %w", err)
	}

	// ── 4. Readiness checks ──────────────────────────────────────────────
	checkers := []health.Checker{
		health.CheckFFmpeg(),
		health.CheckQuestions(a.questions),
	}
	if archiveCheck != nil {
		checkers = append(checkers, *archiveCheck)
	}
	a.health = health.New(checkers...)

	// ── 5. Interview rooms ───────────────────────────────────────────────
	roomCfg := RoomManagerConfig{
		Analyzer:  a,
		Questions: a.questions,
		Recorder:  a.recorder,
		Metrics:   a.metrics,
	}
	if providers.LLM != nil {
		roomCfg.Summariser = session.NewLLMSummariser(providers.LLM)
	}
	a.rooms = NewRoomManager(roomCfg)

	// ── 6. HTTP surface ──────────────────────────────────────────────────
	apiOpts := []httpapi.Option{
		httpapi.WithHealth(a.health),
		httpapi.WithMetrics(a.metrics),
	}
	if providers.TTS != nil {
		apiOpts = append(apiOpts, httpapi.WithTTS(providers.TTS, cfg.Discord.VoiceID))
	}
	a.api = httpapi.NewServer(a, a.questions, apiOpts...)

	mux := http.NewServeMux()
	mux.Handle("/api/", a.api.Handler())
	mux.Handle("GET /metrics", promhttp.Handler())
	a.health.Register(mux)

	a.httpSrv = &http.Server{
		Addr:              cfg.Server.ListenAddr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}

	return a, nil
}

// ─── Init helpers ────────────────────────────────────────────────────────────

// initAnalyzer builds the analysis pipeline unless one was injected.
func (a *App) initAnalyzer() error {
	if a.analyzer != nil {
		return nil
	}
	if a.providers.Transcriber == nil {
		return fmt.Errorf("a transcriber provider is required")
	}

	analyzerOpts := []analysis.Option{analysis.WithMetrics(a.metrics)}
	transcoder, err := audio.NewTranscoder()
	if err != nil {
		slog.Warn("ffmpeg not found, only raw PCM and WAV uploads can be analyzed", "err", err)
	} else {
		analyzerOpts = append(analyzerOpts, analysis.WithTranscoder(transcoder))
	}

	a.analyzer = analysis.New(
		a.providers.Transcriber,
		a.providers.LLM,
		analysisConfig(a.cfg.Analysis),
		analyzerOpts...,
	)
	return nil
}

// initQuestions creates the question manager and loads the configured file.
func (a *App) initQuestions() error {
	if a.questions == nil {
		var qopts []question.Option
		if a.cfg.Questions.AdaptTimeoutSeconds > 0 {
			qopts = append(qopts, question.WithAdaptTimeout(time.Duration(a.cfg.Questions.AdaptTimeoutSeconds)*time.Second))
		}
		a.questions = question.New(a.providers.LLM, qopts...)
	}
	if a.cfg.Questions.File != "" {
		if err := a.questions.LoadFile(a.cfg.Questions.File); err != nil {
			return err
		}
		slog.Info("question file loaded", "path", a.cfg.Questions.File, "count", a.questions.Len())
	}
	return nil
}

// initArchive connects the pgvector-backed archive when a DSN is configured
// and no archive was injected. Returns the readiness checker for the store,
// or nil when archiving is disabled or injected.
func (a *App) initArchive(ctx context.Context) (*health.Checker, error) {
	if a.archive == nil {
		dsn := a.cfg.History.PostgresDSN
		if dsn == "" {
			slog.Info("practice-history archive disabled (no postgres_dsn)")
			return nil, nil
		}

		dims := a.cfg.History.EmbeddingDimensions
		if dims == 0 {
			dims = defaultEmbeddingDims
		}
		store, err := postgres.NewStore(ctx, dsn, dims)
		if err != nil {
			return nil, err
		}
		a.archive = store
		a.closers = append(a.closers, func() error {
			store.Close()
			return nil
		})

		a.initRecorder()
		check := health.CheckArchive(store)
		return &check, nil
	}

	a.initRecorder()
	return nil, nil
}

func (a *App) initRecorder() {
	var ropts []history.RecorderOption
	if a.providers.Embeddings != nil {
		ropts = append(ropts, history.WithEmbedder(a.providers.Embeddings))
	}
	a.recorder = history.NewRecorder(a.archive, ropts...)
}

// analysisConfig converts the YAML tuning block into the pipeline config.
func analysisConfig(c config.AnalysisConfig) analysis.Config {
	return analysis.Config{
		PauseGapSeconds: c.PauseGapSeconds,
		ScoreTimeout:    time.Duration(c.ScoreTimeoutSeconds) * time.Second,
		RewriteTimeout:  time.Duration(c.RewriteTimeoutSeconds) * time.Second,
		MaxRewrites:     c.MaxRewrites,
	}
}

// ─── Accessors ───────────────────────────────────────────────────────────────

// Analyze runs one clip through the current analysis pipeline. App implements
// [Analyzer] itself so a config reload can swap the pipeline under its
// callers.
func (a *App) Analyze(ctx context.Context, clip audio.Clip, actx analysis.Context) (*interview.AnalysisResult, error) {
	a.analyzerMu.RLock()
	analyzer := a.analyzer
	a.analyzerMu.RUnlock()
	return analyzer.Analyze(ctx, clip, actx)
}

// TranscriptScorer is the no-audio scoring surface of the analysis pipeline,
// used by the MCP tools. [analysis.Analyzer] implements it; injected test
// doubles may not.
type TranscriptScorer interface {
	ScoreTranscript(ctx context.Context, text string, actx analysis.Context) (*interview.AnalysisResult, error)
}

// ScoreTranscript scores already-transcribed text through the current
// pipeline. Fails when the active analyzer has no text path.
func (a *App) ScoreTranscript(ctx context.Context, text string, actx analysis.Context) (*interview.AnalysisResult, error) {
	a.analyzerMu.RLock()
	analyzer := a.analyzer
	a.analyzerMu.RUnlock()

	scorer, ok := analyzer.(TranscriptScorer)
	if !ok {
		return nil, fmt.Errorf("app: analyzer %T cannot score plain transcripts", analyzer)
	}
	return scorer.ScoreTranscript(ctx, text, actx)
}

// Rooms returns the interview room manager, the entry point for voice
// surfaces.
func (a *App) Rooms() *RoomManager { return a.rooms }

// Questions returns the shared question manager.
func (a *App) Questions() *question.Manager { return a.questions }

// Archive returns the practice-history archive, or nil when archiving is
// disabled.
func (a *App) Archive() history.Archive { return a.archive }

// Handler returns the full HTTP handler (API, health, metrics) for tests.
func (a *App) Handler() http.Handler { return a.httpSrv.Handler }

// ─── Run ─────────────────────────────────────────────────────────────────────

// Run serves HTTP until ctx is cancelled or the listener fails. When ctx is
// done, Run returns ctx.Err(); the caller is expected to follow with Shutdown.
func (a *App) Run(ctx context.Context) error {
	errCh := make(chan error, 1)
	go func() {
		var err error
		if tls := a.cfg.Server.TLS; tls != nil {
			err = a.httpSrv.ListenAndServeTLS(tls.CertFile, tls.KeyFile)
		} else {
			err = a.httpSrv.ListenAndServe()
		}
		if err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	slog.Info("server listening",
		"addr", a.cfg.Server.ListenAddr,
		"tls", a.cfg.Server.TLS != nil,
	)

	select {
	case <-ctx.Done():
		return ctx.Err()
	case err := <-errCh:
		return fmt.Errorf("app: serve: %w", err)
	}
}

// ─── Config reload ───────────────────────────────────────────────────────────

// ApplyDiff applies a hot-reloadable config change produced by
// [config.Diff]. Provider and server changes require a restart and never
// appear in a diff.
func (a *App) ApplyDiff(diff config.ConfigDiff) {
	if diff.Empty() {
		return
	}

	if diff.LogLevelChanged && a.logLevel != nil {
		a.logLevel.Set(slogLevel(diff.NewLogLevel))
		slog.Info("log level changed", "level", diff.NewLogLevel)
	}

	if diff.AnalysisChanged {
		a.analyzerMu.Lock()
		if a.providers.Transcriber != nil {
			analyzerOpts := []analysis.Option{analysis.WithMetrics(a.metrics)}
			if transcoder, err := audio.NewTranscoder(); err == nil {
				analyzerOpts = append(analyzerOpts, analysis.WithTranscoder(transcoder))
			}
			a.analyzer = analysis.New(
				a.providers.Transcriber,
				a.providers.LLM,
				analysisConfig(diff.NewAnalysis),
				analyzerOpts...,
			)
			slog.Info("analysis tuning reloaded",
				"pause_gap_seconds", diff.NewAnalysis.PauseGapSeconds,
				"max_rewrites", diff.NewAnalysis.MaxRewrites,
			)
		}
		a.analyzerMu.Unlock()
	}

	if diff.QuestionsFileChanged && diff.NewQuestionsFile != "" {
		if err := a.questions.LoadFile(diff.NewQuestionsFile); err != nil {
			slog.Warn("question file reload failed, keeping current set",
				"path", diff.NewQuestionsFile, "err", err)
		} else {
			slog.Info("question file reloaded",
				"path", diff.NewQuestionsFile, "count", a.questions.Len())
		}
	}
}

// slogLevel maps a config log level onto slog's scale.
func slogLevel(l config.LogLevel) slog.Level {
	switch l {
	case config.LogDebug:
		return slog.LevelDebug
	case config.LogWarn:
		return slog.LevelWarn
	case config.LogError:
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// ─── Shutdown ────────────────────────────────────────────────────────────────

// Shutdown tears down all subsystems. It respects the context deadline: if
// ctx expires before all closers finish, remaining closers are skipped and
// the context error is returned.
func (a *App) Shutdown(ctx context.Context) error {
	var shutdownErr error
	a.stopOnce.Do(func() {
		slog.Info("shutting down", "closers", len(a.closers))

		// Stop accepting requests first.
		if err := a.httpSrv.Shutdown(ctx); err != nil {
			slog.Warn("http shutdown error", "err", err)
		}

		// Abort any rooms still open so their resources release.
		a.rooms.CloseAll(ctx)

		for i, closer := range a.closers {
			select {
			case <-ctx.Done():
				slog.Warn("shutdown deadline exceeded", "remaining", len(a.closers)-i)
				shutdownErr = ctx.Err()
				return
			default:
			}
			if err := closer(); err != nil {
				slog.Warn("closer error", "index", i, "err", err)
			}
		}

		slog.Info("shutdown complete")
	})
	return shutdownErr
}
