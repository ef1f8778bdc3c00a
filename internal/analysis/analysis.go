// Package analysis turns one recorded answer clip into rendered-ready
// feedback: it drives decoding and transcription, groups transcript segments
// into answer turns, scores each turn against the communication rubric, and
// optionally generates rewrite suggestions.
//
// The failure asymmetry is the heart of the package: transcription failure is
// fatal to an Analyze call ([TranscriptionError], no partial result), while
// every downstream failure degrades in place — a scoring timeout yields
// unknown-valued criteria, a rewrite failure omits rewrites. A transcript has
// standalone value; a best-effort partial score does not justify discarding
// it.
package analysis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
	"github.com/greenroomhq/greenroom/pkg/provider/transcribe"
)

// Mode selects how transcript segments are grouped into turns.
type Mode string

const (
	// ModeGuided treats the whole clip as one turn bound to the supplied
	// question. This is what the guided session controller uses.
	ModeGuided Mode = "guided"

	// ModeFreeform splits the clip into turns at long silence gaps. Used when
	// a recording is analyzed without a predefined question sequence.
	ModeFreeform Mode = "freeform"
)

// Context carries the caller-supplied context for one Analyze call.
type Context struct {
	// QuestionText binds the answer to a question. Forces single-turn
	// grouping; empty in free-form mode.
	QuestionText string

	// JobDescription enables relevance-to-role scoring when non-empty.
	JobDescription string

	// IncludeRewrites requests rewrite suggestions for weak turns.
	IncludeRewrites bool

	// Mode selects turn grouping. Defaults to ModeFreeform unless
	// QuestionText is set.
	Mode Mode
}

// Config tunes the pipeline. Zero values are replaced by defaults in New.
type Config struct {
	// PauseGapSeconds is the free-form turn boundary: a silence of at least
	// this many seconds between segments starts a new turn. Default 1.5 —
	// comfortably above intra-sentence pauses (the transcriber's VAD already
	// splits segments at 0.5s of silence) but short enough to catch the
	// deliberate beat between two rehearsed answers.
	PauseGapSeconds float64

	// ScoreTimeout bounds each scoring and summary call. Default 60s.
	ScoreTimeout time.Duration

	// RewriteTimeout bounds each rewrite call. Default 90s.
	RewriteTimeout time.Duration

	// MaxRewrites caps how many turns get rewrite suggestions. Default 2.
	MaxRewrites int

	// Language is the transcription language tag. Default "en".
	Language string
}

// withDefaults returns c with zero fields replaced by defaults.
func (c Config) withDefaults() Config {
	if c.PauseGapSeconds <= 0 {
		c.PauseGapSeconds = 1.5
	}
	if c.ScoreTimeout <= 0 {
		c.ScoreTimeout = 60 * time.Second
	}
	if c.RewriteTimeout <= 0 {
		c.RewriteTimeout = 90 * time.Second
	}
	if c.MaxRewrites == 0 {
		c.MaxRewrites = 2
	}
	if c.Language == "" {
		c.Language = "en"
	}
	return c
}

// Analyzer is the turn-analysis orchestrator. It is safe for concurrent use;
// each Analyze call is independent.
type Analyzer struct {
	transcoder  *audio.Transcoder
	transcriber transcribe.Transcriber
	scorer      llm.Provider
	rewriter    llm.Provider
	cfg         Config
	metrics     *observe.Metrics
}

// Option configures an Analyzer.
type Option func(*Analyzer)

// WithTranscoder sets the ffmpeg transcoder used to decode container-format
// clips. Without one, only raw PCM clips can be analyzed.
func WithTranscoder(t *audio.Transcoder) Option {
	return func(a *Analyzer) { a.transcoder = t }
}

// WithRewriter routes rewrite generation to a different provider than
// scoring. By default the scoring provider handles both.
func WithRewriter(p llm.Provider) Option {
	return func(a *Analyzer) { a.rewriter = p }
}

// WithMetrics injects a metrics instance; tests use this to avoid the global
// meter provider.
func WithMetrics(m *observe.Metrics) Option {
	return func(a *Analyzer) { a.metrics = m }
}

// New creates an Analyzer over the given transcription and scoring
// collaborators.
func New(transcriber transcribe.Transcriber, scorer llm.Provider, cfg Config, opts ...Option) *Analyzer {
	a := &Analyzer{
		transcriber: transcriber,
		scorer:      scorer,
		cfg:         cfg.withDefaults(),
	}
	for _, o := range opts {
		o(a)
	}
	if a.rewriter == nil {
		a.rewriter = scorer
	}
	if a.metrics == nil {
		a.metrics = observe.DefaultMetrics()
	}
	return a
}

// Analyze runs the full pipeline for one clip: decode → transcribe → group
// turns → score → (optionally) rewrite. The only error it returns is a
// [TranscriptionError] (or [ErrEmptyClip]); every downstream failure degrades
// into the result instead.
func (a *Analyzer) Analyze(ctx context.Context, clip audio.Clip, actx Context) (*interview.AnalysisResult, error) {
	if clip.Empty() {
		return nil, ErrEmptyClip
	}

	a.metrics.AnalysesInFlight.Add(ctx, 1)
	defer a.metrics.AnalysesInFlight.Add(ctx, -1)
	analyzeStart := time.Now()
	defer func() {
		a.metrics.AnalyzeDuration.Record(ctx, time.Since(analyzeStart).Seconds())
	}()

	segs, err := a.transcribeClip(ctx, clip)
	if err != nil {
		return nil, err
	}

	segs = normalizeSegments(segs)
	if len(segs) == 0 {
		// Silence: never invoke the scorer, there is nothing to score.
		slog.Info("no speech detected in clip", "bytes", len(clip.Data))
		return &interview.AnalysisResult{
			Scores: interview.SessionScore{OverallSummary: "No speech detected."},
		}, nil
	}

	turns := groupTurns(segs, actx, a.cfg.PauseGapSeconds)
	result := &interview.AnalysisResult{Segments: segs}
	result.Scores = a.scoreTurns(ctx, turns)

	if actx.IncludeRewrites && len(result.Scores.Turns) > 0 {
		result.Rewrites = a.generateRewrites(ctx, turns, result.Scores.Turns)
	}
	return result, nil
}

// ScoreTranscript runs the scoring stages over already-transcribed text — the
// no-audio path used by the MCP tools. The text becomes a single turn with no
// timing, so pace stays unknown.
func (a *Analyzer) ScoreTranscript(ctx context.Context, text string, actx Context) (*interview.AnalysisResult, error) {
	segs := normalizeSegments([]interview.Segment{{Text: text, Start: 0, End: 0.001}})
	if len(segs) == 0 {
		return &interview.AnalysisResult{
			Scores: interview.SessionScore{OverallSummary: "No speech detected."},
		}, nil
	}
	// Strip the synthetic timing so pace reads unknown, not 0 wpm.
	segs[0].Start, segs[0].End = 0, 0

	turns := []interview.Turn{{
		Segments:       segs,
		QuestionText:   actx.QuestionText,
		JobDescription: actx.JobDescription,
	}}
	result := &interview.AnalysisResult{Segments: segs}
	result.Scores = a.scoreTurns(ctx, turns)
	if actx.IncludeRewrites && len(result.Scores.Turns) > 0 {
		result.Rewrites = a.generateRewrites(ctx, turns, result.Scores.Turns)
	}
	return result, nil
}

// transcribeClip decodes the clip to PCM and submits it for transcription.
// Both steps fail as [TranscriptionError].
func (a *Analyzer) transcribeClip(ctx context.Context, clip audio.Clip) ([]interview.Segment, error) {
	pcm := clip.Data
	if clip.Ext() != "" {
		if a.transcoder == nil {
			return nil, &TranscriptionError{Stage: "decode", Cause: errors.New("no transcoder configured for container formats")}
		}
		decoded, err := a.transcoder.DecodePCM(ctx, clip)
		if err != nil {
			return nil, &TranscriptionError{Stage: "decode", Cause: err}
		}
		pcm = decoded
	}

	start := time.Now()
	segs, err := a.transcriber.Transcribe(ctx, transcribe.Request{
		PCM:        pcm,
		SampleRate: audio.TranscribeSampleRate,
		Language:   a.cfg.Language,
	})
	a.metrics.TranscribeDuration.Record(ctx, time.Since(start).Seconds())
	if err != nil {
		return nil, &TranscriptionError{Stage: "transcribe", Cause: err}
	}
	return segs, nil
}

// scoreTurns scores every turn concurrently, then asks for the overall
// summary. Degraded turns are recorded in the metrics but never fail the
// call.
func (a *Analyzer) scoreTurns(ctx context.Context, turns []interview.Turn) interview.SessionScore {
	scores := make([]interview.TurnScore, len(turns))
	scored := make([]bool, len(turns))

	g, gctx := errgroup.WithContext(ctx)
	for i, t := range turns {
		g.Go(func() error {
			scores[i], scored[i] = a.scoreTurn(gctx, i, t)
			return nil
		})
	}
	g.Wait() // workers never return errors; degradation is per-turn

	anyScored := false
	for i := range scored {
		a.metrics.TurnsAnalyzed.Add(ctx, 1)
		if scored[i] {
			anyScored = true
		} else {
			a.metrics.ScoringDegraded.Add(ctx, 1)
		}
	}

	return interview.SessionScore{
		Turns:          scores,
		OverallSummary: a.summarize(ctx, turns, anyScored),
	}
}
