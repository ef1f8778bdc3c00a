// Package session drives the guided-interview state machine.
//
// A [Controller] owns one GuidedSession at a time and walks it through
// Setup → Active → Analyzing → Feedback → {Active | Complete}. Every user
// action (start, capture, retry, next) and every collaborator completion
// (playback finished, analysis finished) is a discrete event applied under
// one lock, producing a new session snapshot. Collaborator completions carry
// a generation tag so a completion that arrives after the user has already
// moved on is detected and discarded instead of corrupting a later attempt.
//
// The package also provides voice reconnection ([Reconnector]) for the
// Discord surface and session report summarisation ([Summariser],
// [LLMSummariser]).
package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

// Analyzer runs one captured answer through transcription and scoring.
// Implemented by [analysis.Analyzer].
type Analyzer interface {
	Analyze(ctx context.Context, clip audio.Clip, actx analysis.Context) (*interview.AnalysisResult, error)
}

// Player reads a question aloud. Play blocks until playback ends or fails;
// Stop aborts an in-progress playback early (e.g. the user starts answering
// before the question finishes) and releases the audio resource.
type Player interface {
	Play(ctx context.Context, text string) error
	Stop()
}

// Controller is the guided-session state machine. One controller manages one
// session at a time; all methods are safe for concurrent use, but the state
// machine itself processes one event at a time.
type Controller struct {
	analyzer   Analyzer
	player     Player
	summariser Summariser
	metrics    *observe.Metrics
	log        *slog.Logger

	mu   sync.Mutex
	sess interview.GuidedSession

	jobDescription string

	// captureOpen is false while question playback is in progress. A playback
	// error opens capture just like normal completion.
	captureOpen bool
	capturing   bool

	// playbackGen invalidates playback completions from a superseded question.
	playbackGen int

	// attemptID tags the most recently initiated analyze call. A completion
	// carrying any other ID is stale and must be discarded.
	attemptID string

	report *interview.SessionReport
}

// Option configures a Controller.
type Option func(*Controller)

// WithPlayer attaches a question playback collaborator. Without one, capture
// opens as soon as a question becomes current.
func WithPlayer(p Player) Option {
	return func(c *Controller) { c.player = p }
}

// WithSummariser attaches a session report summariser. Without one, reports
// carry a plain counting summary.
func WithSummariser(s Summariser) Option {
	return func(c *Controller) { c.summariser = s }
}

// WithMetrics overrides the default metrics instance.
func WithMetrics(m *observe.Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(c *Controller) {
		if log != nil {
			c.log = log
		}
	}
}

// NewController creates a Controller in the Setup state.
func NewController(analyzer Analyzer, opts ...Option) *Controller {
	c := &Controller{
		analyzer: analyzer,
		metrics:  observe.DefaultMetrics(),
		log:      slog.Default(),
		sess:     interview.GuidedSession{State: interview.StateSetup},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Start begins a new guided session over the given question set. The set is
// snapshotted: later edits to the source manager never reorder a running
// session. jobDescription may be empty; when set it flows into every analyze
// call so relevance can be scored.
func (c *Controller) Start(ctx context.Context, set interview.QuestionSet, jobDescription string) (interview.GuidedSession, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if set.Len() == 0 {
		return interview.GuidedSession{}, ErrEmptyQuestionSet
	}
	switch c.sess.State {
	case interview.StateActive, interview.StateAnalyzing, interview.StateFeedback:
		return interview.GuidedSession{}, ErrSessionActive
	}

	c.sess = interview.GuidedSession{
		ID:        uuid.NewString(),
		Questions: set.Clone(),
		Index:     0,
		Results:   make(map[int]*interview.AnalysisResult),
		State:     interview.StateActive,
		StartedAt: time.Now(),
	}
	c.jobDescription = jobDescription
	c.attemptID = ""
	c.capturing = false
	c.report = nil

	c.metrics.SessionsStarted.Add(ctx, 1)
	c.metrics.ActiveSessions.Add(ctx, 1)
	c.log.Info("guided session started",
		"session_id", c.sess.ID,
		"questions", set.Len(),
	)

	c.presentQuestionLocked(ctx)
	return c.sess.Clone(), nil
}

// presentQuestionLocked arms the current question: playback is requested from
// the player and capture stays closed until it finishes or fails. Must be
// called with c.mu held.
func (c *Controller) presentQuestionLocked(ctx context.Context) {
	c.playbackGen++
	c.captureOpen = c.player == nil
	if c.player == nil {
		return
	}

	gen := c.playbackGen
	question := c.sess.CurrentQuestion()
	go func() {
		err := c.player.Play(ctx, question)
		c.playbackFinished(gen, err)
	}()
}

// playbackFinished handles a playback completion event. Stale generations
// (the user already retried or advanced) are ignored. A playback error opens
// capture anyway: a failed speaker must never block answering.
func (c *Controller) playbackFinished(gen int, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if gen != c.playbackGen || c.sess.State != interview.StateActive {
		return
	}
	if err != nil {
		c.log.Warn("question playback failed, capture opened anyway",
			"session_id", c.sess.ID,
			"index", c.sess.Index,
			"error", &PlaybackError{Cause: err},
		)
	}
	c.captureOpen = true
}

// StopPlayback aborts an in-progress question playback early. Controller
// state is untouched beyond opening capture.
func (c *Controller) StopPlayback() {
	if c.player != nil {
		c.player.Stop()
	}
	c.mu.Lock()
	if c.sess.State == interview.StateActive {
		c.captureOpen = true
	}
	c.mu.Unlock()
}

// StartCapture marks the beginning of an answer recording. It fails when no
// question is active, while playback still holds the floor, or when a capture
// or analysis is already in progress.
func (c *Controller) StartCapture() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.State != interview.StateActive {
		return fmt.Errorf("%w: capture requires an active question, state is %s", ErrInvalidTransition, c.sess.State)
	}
	if !c.captureOpen {
		return ErrPlaybackInProgress
	}
	if c.capturing {
		return ErrCaptureInProgress
	}
	c.capturing = true
	return nil
}

// StopCapture ends the recording started by StartCapture and submits the
// captured clip for analysis. A zero-byte clip is a valid outcome: the
// session moves straight to Feedback with an empty result and the analyzer is
// never invoked; the user decides whether to retry.
func (c *Controller) StopCapture(ctx context.Context, clip audio.Clip) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !c.capturing || c.sess.State != interview.StateActive {
		return fmt.Errorf("%w: no capture in progress", ErrInvalidTransition)
	}
	c.capturing = false

	index := c.sess.Index
	if len(clip.Data) == 0 {
		c.log.Info("empty capture, skipping analysis",
			"session_id", c.sess.ID,
			"index", index,
		)
		c.sess.Results[index] = &interview.AnalysisResult{}
		c.sess.State = interview.StateFeedback
		return nil
	}

	attempt := uuid.NewString()
	c.attemptID = attempt
	c.sess.State = interview.StateAnalyzing

	actx := analysis.Context{
		QuestionText:    c.sess.CurrentQuestion(),
		JobDescription:  c.jobDescription,
		IncludeRewrites: true,
		Mode:            analysis.ModeGuided,
	}
	go func() {
		result, err := c.analyzer.Analyze(ctx, clip, actx)
		c.analysisFinished(ctx, attempt, index, result, err)
	}()
	return nil
}

// analysisFinished handles an analyze completion event. Only the most
// recently initiated attempt may write its result; anything else raced a
// retry and is discarded.
func (c *Controller) analysisFinished(ctx context.Context, attempt string, index int, result *interview.AnalysisResult, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if attempt != c.attemptID {
		c.metrics.StaleResultsDiscarded.Add(ctx, 1)
		c.log.Info("stale analysis result discarded",
			"session_id", c.sess.ID,
			"index", index,
		)
		return
	}

	if err != nil {
		c.log.Warn("analysis failed, storing empty result",
			"session_id", c.sess.ID,
			"index", index,
			"error", err,
		)
		result = &interview.AnalysisResult{}
	}

	c.sess.Results[index] = result
	if c.sess.State == interview.StateAnalyzing {
		c.sess.State = interview.StateFeedback
	}
}

// Retry re-arms the current question without advancing the index. The
// previous result slot is overwritten, never appended, once the retry
// completes. Retrying while an analysis is still in flight invalidates that
// attempt; its late result will be discarded.
func (c *Controller) Retry(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sess.State {
	case interview.StateFeedback, interview.StateAnalyzing:
	default:
		return fmt.Errorf("%w: retry from %s", ErrInvalidTransition, c.sess.State)
	}

	c.attemptID = ""
	c.capturing = false
	c.sess.State = interview.StateActive
	c.presentQuestionLocked(ctx)
	return nil
}

// Next advances to the following question, or to Complete when the current
// question was the last one.
func (c *Controller) Next(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.sess.State != interview.StateFeedback {
		return fmt.Errorf("%w: next from %s", ErrInvalidTransition, c.sess.State)
	}

	c.sess.Index++
	if c.sess.Index >= c.sess.Questions.Len() {
		c.sess.State = interview.StateComplete
		c.metrics.SessionsCompleted.Add(ctx, 1)
		c.metrics.ActiveSessions.Add(ctx, -1)
		c.log.Info("guided session complete",
			"session_id", c.sess.ID,
			"attempted", len(c.sess.AttemptedIndices()),
			"questions", c.sess.Questions.Len(),
		)
		return nil
	}

	c.sess.State = interview.StateActive
	c.presentQuestionLocked(ctx)
	return nil
}

// Report aggregates the stored results of a completed session. The first call
// runs the summariser; the result is cached for subsequent calls.
func (c *Controller) Report(ctx context.Context) (*interview.SessionReport, error) {
	c.mu.Lock()
	if c.sess.State != interview.StateComplete {
		c.mu.Unlock()
		return nil, fmt.Errorf("%w: report requires a complete session, state is %s", ErrInvalidTransition, c.sess.State)
	}
	if c.report != nil {
		report := c.report
		c.mu.Unlock()
		return report, nil
	}
	snapshot := c.sess.Clone()
	c.mu.Unlock()

	// Summarisation runs outside the lock; it may hit an LLM.
	report := BuildReport(snapshot)
	if c.summariser != nil && len(report.Entries) > 0 {
		summary, err := c.summariser.Summarise(ctx, report.Entries)
		if err != nil {
			c.log.Warn("session summary failed, using fallback",
				"session_id", snapshot.ID,
				"error", err,
			)
		} else if summary != "" {
			report.OverallSummary = summary
		}
	}

	c.mu.Lock()
	if c.report == nil {
		c.report = &report
	}
	result := c.report
	c.mu.Unlock()
	return result, nil
}

// Abort discards the current session and returns the controller to Setup.
// Any in-flight playback is stopped; an in-flight analysis becomes stale.
func (c *Controller) Abort(ctx context.Context) {
	if c.player != nil {
		c.player.Stop()
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	switch c.sess.State {
	case interview.StateActive, interview.StateAnalyzing, interview.StateFeedback:
		c.metrics.ActiveSessions.Add(ctx, -1)
	}
	c.attemptID = ""
	c.capturing = false
	c.playbackGen++
	c.sess = interview.GuidedSession{State: interview.StateSetup}
	c.report = nil
}

// Snapshot returns an independent copy of the current session state.
func (c *Controller) Snapshot() interview.GuidedSession {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.Clone()
}

// CaptureOpen reports whether an answer recording may start right now.
func (c *Controller) CaptureOpen() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.sess.State == interview.StateActive && c.captureOpen && !c.capturing
}
