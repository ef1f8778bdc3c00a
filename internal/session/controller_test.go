package session

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

// fakeAnalyzer is a scriptable Analyzer for controller tests.
type fakeAnalyzer struct {
	mu     sync.Mutex
	result *interview.AnalysisResult
	err    error
	gate   chan struct{} // when non-nil, Analyze blocks until closed
	calls  []analysis.Context
}

func (f *fakeAnalyzer) Analyze(ctx context.Context, _ audio.Clip, actx analysis.Context) (*interview.AnalysisResult, error) {
	f.mu.Lock()
	f.calls = append(f.calls, actx)
	gate, result, err := f.gate, f.result, f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return result, err
}

func (f *fakeAnalyzer) set(result *interview.AnalysisResult, err error) {
	f.mu.Lock()
	f.result = result
	f.err = err
	f.mu.Unlock()
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.calls)
}

// fakePlayer is a scriptable Player for controller tests.
type fakePlayer struct {
	mu    sync.Mutex
	block chan struct{} // when non-nil, Play blocks until closed
	err   error
	plays []string
	stops int
}

func (p *fakePlayer) Play(_ context.Context, text string) error {
	p.mu.Lock()
	p.plays = append(p.plays, text)
	block, err := p.block, p.err
	p.mu.Unlock()

	if block != nil {
		<-block
	}
	return err
}

func (p *fakePlayer) Stop() {
	p.mu.Lock()
	p.stops++
	p.mu.Unlock()
}

func questionSet(questions ...string) interview.QuestionSet {
	return interview.QuestionSet{Questions: questions, Source: interview.SourceDefault}
}

func resultWithSummary(summary string) *interview.AnalysisResult {
	return &interview.AnalysisResult{
		Segments: []interview.Segment{{Text: "answer", Start: 0, End: 3}},
		Scores:   interview.SessionScore{OverallSummary: summary},
	}
}

// waitState polls until the controller reaches the wanted state.
func waitState(t *testing.T, c *Controller, want interview.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.Snapshot().State == want {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatalf("timed out waiting for state %q, still %q", want, c.Snapshot().State)
}

// waitCaptureOpen polls until capture becomes available.
func waitCaptureOpen(t *testing.T, c *Controller) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if c.CaptureOpen() {
			return
		}
		time.Sleep(2 * time.Millisecond)
	}
	t.Fatal("timed out waiting for capture to open")
}

// answer runs one full capture+analysis cycle and waits for Feedback.
func answer(t *testing.T, c *Controller, clip audio.Clip) {
	t.Helper()
	waitCaptureOpen(t, c)
	if err := c.StartCapture(); err != nil {
		t.Fatalf("StartCapture() error: %v", err)
	}
	if err := c.StopCapture(context.Background(), clip); err != nil {
		t.Fatalf("StopCapture() error: %v", err)
	}
	waitState(t, c, interview.StateFeedback)
}

func pcm() audio.Clip { return audio.Clip{Data: []byte{1, 2, 3, 4}} }

func TestStart_RejectsEmptySet(t *testing.T) {
	t.Parallel()

	c := NewController(&fakeAnalyzer{})
	if _, err := c.Start(context.Background(), interview.QuestionSet{}, ""); !errors.Is(err, ErrEmptyQuestionSet) {
		t.Errorf("Start(empty) error = %v, want ErrEmptyQuestionSet", err)
	}
}

func TestStart_RejectsSecondSession(t *testing.T) {
	t.Parallel()

	c := NewController(&fakeAnalyzer{})
	if _, err := c.Start(context.Background(), questionSet("q1"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	if _, err := c.Start(context.Background(), questionSet("q2"), ""); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Start() error = %v, want ErrSessionActive", err)
	}
}

func TestPlaybackGatesCapture(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{block: make(chan struct{})}
	c := NewController(&fakeAnalyzer{}, WithPlayer(player))

	if _, err := c.Start(context.Background(), questionSet("Tell me about yourself"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	if err := c.StartCapture(); !errors.Is(err, ErrPlaybackInProgress) {
		t.Errorf("StartCapture() during playback error = %v, want ErrPlaybackInProgress", err)
	}

	close(player.block)
	waitCaptureOpen(t, c)

	if err := c.StartCapture(); err != nil {
		t.Errorf("StartCapture() after playback error: %v", err)
	}

	player.mu.Lock()
	defer player.mu.Unlock()
	if len(player.plays) != 1 || player.plays[0] != "Tell me about yourself" {
		t.Errorf("played = %v", player.plays)
	}
}

func TestPlaybackErrorOpensCapture(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{err: errors.New("voice gateway closed")}
	c := NewController(&fakeAnalyzer{}, WithPlayer(player))

	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	waitCaptureOpen(t, c)

	if c.Snapshot().State != interview.StateActive {
		t.Errorf("state after playback error = %q, want active", c.Snapshot().State)
	}
}

func TestStopPlayback_ReleasesResourceWithoutStateChange(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{block: make(chan struct{})}
	defer close(player.block)

	c := NewController(&fakeAnalyzer{}, WithPlayer(player))
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	c.StopPlayback()

	if !c.CaptureOpen() {
		t.Error("capture still closed after StopPlayback")
	}
	snap := c.Snapshot()
	if snap.State != interview.StateActive || snap.Index != 0 {
		t.Errorf("state changed by StopPlayback: %+v", snap)
	}
	player.mu.Lock()
	defer player.mu.Unlock()
	if player.stops != 1 {
		t.Errorf("player.Stop() called %d times, want 1", player.stops)
	}
}

func TestZeroByteCapture_SkipsAnalysis(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	answer(t, c, audio.Clip{})

	if analyzer.callCount() != 0 {
		t.Errorf("analyzer invoked %d times for empty capture, want 0", analyzer.callCount())
	}
	snap := c.Snapshot()
	result := snap.Results[0]
	if result == nil {
		t.Fatal("no result stored for empty capture")
	}
	if len(result.Segments) != 0 || len(result.Scores.Turns) != 0 {
		t.Errorf("empty capture stored non-empty result: %+v", result)
	}
}

func TestCaptureAnalyzeFeedbackCycle(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: resultWithSummary("nice answer")}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("Tell me about a conflict"), "Senior PM"); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	answer(t, c, pcm())

	snap := c.Snapshot()
	if got := snap.Results[0].Scores.OverallSummary; got != "nice answer" {
		t.Errorf("stored summary = %q", got)
	}

	analyzer.mu.Lock()
	defer analyzer.mu.Unlock()
	actx := analyzer.calls[0]
	if actx.QuestionText != "Tell me about a conflict" {
		t.Errorf("analyze question = %q", actx.QuestionText)
	}
	if actx.JobDescription != "Senior PM" {
		t.Errorf("analyze job description = %q", actx.JobDescription)
	}
	if !actx.IncludeRewrites {
		t.Error("guided analyze did not request rewrites")
	}
	if actx.Mode != analysis.ModeGuided {
		t.Errorf("analyze mode = %q", actx.Mode)
	}
}

func TestAnalysisFailureStoresEmptyResultAndReachesFeedback(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{err: errors.New("whisper unreachable")}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	answer(t, c, pcm())

	result := c.Snapshot().Results[0]
	if result == nil || len(result.Segments) != 0 {
		t.Errorf("failed analysis stored %+v, want empty result", result)
	}
}

func TestRetryKeepsIndexAndOverwritesResult(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: resultWithSummary("first take")}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("q1", "q2", "q3"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	// Question 1.
	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	// Question 2: answer, retry, answer again.
	answer(t, c, pcm())
	if err := c.Retry(ctx); err != nil {
		t.Fatalf("Retry() error: %v", err)
	}
	if got := c.Snapshot().Index; got != 1 {
		t.Fatalf("index after retry = %d, want 1", got)
	}
	analyzer.set(resultWithSummary("second take"), nil)
	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	// Question 3.
	analyzer.set(resultWithSummary("third answer"), nil)
	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	snap := c.Snapshot()
	if snap.State != interview.StateComplete {
		t.Fatalf("state = %q, want complete", snap.State)
	}
	if got := len(snap.Results); got != 3 {
		t.Fatalf("stored results = %d, want 3", got)
	}
	if got := snap.Results[1].Scores.OverallSummary; got != "second take" {
		t.Errorf("question 2 result = %q, want post-retry result", got)
	}
}

func TestRetryDuringAnalysisDiscardsLateResult(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	analyzer := &fakeAnalyzer{result: resultWithSummary("stale"), gate: gate}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	// Submit an answer and retry while the analysis is still in flight.
	waitCaptureOpen(t, c)
	if err := c.StartCapture(); err != nil {
		t.Fatalf("StartCapture() error: %v", err)
	}
	if err := c.StopCapture(ctx, pcm()); err != nil {
		t.Fatalf("StopCapture() error: %v", err)
	}
	waitState(t, c, interview.StateAnalyzing)
	if err := c.Retry(ctx); err != nil {
		t.Fatalf("Retry() during analysis error: %v", err)
	}

	// Release the stale attempt; its result must not land.
	analyzer.mu.Lock()
	analyzer.gate = nil
	analyzer.result = resultWithSummary("fresh")
	analyzer.mu.Unlock()
	close(gate)

	time.Sleep(20 * time.Millisecond)
	if snap := c.Snapshot(); snap.Results[0] != nil {
		t.Fatalf("stale result was stored: %+v", snap.Results[0])
	}
	if got := c.Snapshot().State; got != interview.StateActive {
		t.Fatalf("state after discarded result = %q, want active", got)
	}

	// The retry's own answer lands normally.
	answer(t, c, pcm())
	if got := c.Snapshot().Results[0].Scores.OverallSummary; got != "fresh" {
		t.Errorf("result = %q, want the retry's result", got)
	}
}

func TestSecondCaptureBlockedWhileAnalyzing(t *testing.T) {
	t.Parallel()

	gate := make(chan struct{})
	defer close(gate)

	analyzer := &fakeAnalyzer{result: resultWithSummary("r"), gate: gate}
	c := NewController(analyzer)
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	waitCaptureOpen(t, c)
	if err := c.StartCapture(); err != nil {
		t.Fatalf("StartCapture() error: %v", err)
	}
	if err := c.StopCapture(ctx, pcm()); err != nil {
		t.Fatalf("StopCapture() error: %v", err)
	}

	if err := c.StartCapture(); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("StartCapture() while analyzing error = %v, want ErrInvalidTransition", err)
	}
}

func TestCompleteReport_SkipsUnattempted(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: resultWithSummary("good conflict story")}
	c := NewController(analyzer)
	set := questionSet("Tell me about a conflict", "Estimate daily rideshare trips")
	if _, err := c.Start(context.Background(), set, ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	// Question 1: real answer. Question 2: zero-byte capture.
	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	answer(t, c, audio.Clip{})
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	report, err := c.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if len(report.Entries) != 1 {
		t.Fatalf("entries = %d, want 1: %+v", len(report.Entries), report)
	}
	if report.Entries[0].Index != 0 || report.Entries[0].Result.Scores.OverallSummary == "" {
		t.Errorf("entry = %+v, want question 1 with summary", report.Entries[0])
	}
	if len(report.Unattempted) != 1 || report.Unattempted[0] != 1 {
		t.Errorf("unattempted = %v, want [1]", report.Unattempted)
	}
	if report.OverallSummary != "Answered 1 of 2 questions." {
		t.Errorf("summary = %q", report.OverallSummary)
	}
}

// staticSummariser returns a fixed string, or an error when set.
type staticSummariser struct {
	text string
	err  error
}

func (s staticSummariser) Summarise(context.Context, []interview.ReportEntry) (string, error) {
	return s.text, s.err
}

func TestReport_UsesSummariser(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: resultWithSummary("ok")}
	c := NewController(analyzer, WithSummariser(staticSummariser{text: "Tight stories, add numbers."}))
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	report, err := c.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if report.OverallSummary != "Tight stories, add numbers." {
		t.Errorf("summary = %q, want summariser output", report.OverallSummary)
	}

	// Cached on second call.
	again, err := c.Report(ctx)
	if err != nil {
		t.Fatalf("second Report() error: %v", err)
	}
	if again != report {
		t.Error("Report() not cached")
	}
}

func TestReport_SummariserFailureFallsBack(t *testing.T) {
	t.Parallel()

	analyzer := &fakeAnalyzer{result: resultWithSummary("ok")}
	c := NewController(analyzer, WithSummariser(staticSummariser{err: errors.New("llm down")}))
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}
	ctx := context.Background()

	answer(t, c, pcm())
	if err := c.Next(ctx); err != nil {
		t.Fatalf("Next() error: %v", err)
	}

	report, err := c.Report(ctx)
	if err != nil {
		t.Fatalf("Report() error: %v", err)
	}
	if report.OverallSummary != "Answered 1 of 1 questions." {
		t.Errorf("summary = %q, want counting fallback", report.OverallSummary)
	}
}

func TestReport_BeforeCompleteRejected(t *testing.T) {
	t.Parallel()

	c := NewController(&fakeAnalyzer{})
	if _, err := c.Report(context.Background()); !errors.Is(err, ErrInvalidTransition) {
		t.Errorf("Report() in setup error = %v, want ErrInvalidTransition", err)
	}
}

func TestAbort_ResetsToSetup(t *testing.T) {
	t.Parallel()

	player := &fakePlayer{block: make(chan struct{})}
	defer close(player.block)

	c := NewController(&fakeAnalyzer{}, WithPlayer(player))
	if _, err := c.Start(context.Background(), questionSet("q1", "q2"), ""); err != nil {
		t.Fatalf("Start() error: %v", err)
	}

	c.Abort(context.Background())

	snap := c.Snapshot()
	if snap.State != interview.StateSetup {
		t.Errorf("state after abort = %q, want setup", snap.State)
	}
	player.mu.Lock()
	stops := player.stops
	player.mu.Unlock()
	if stops == 0 {
		t.Error("abort did not stop playback")
	}

	// A new session can start immediately.
	if _, err := c.Start(context.Background(), questionSet("q"), ""); err != nil {
		t.Errorf("Start() after abort error: %v", err)
	}
}
