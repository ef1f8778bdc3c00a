package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	sdkmetric "go.opentelemetry.io/otel/sdk/metric"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/history"
	historymock "github.com/greenroomhq/greenroom/pkg/history/mock"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

// fakeAnalyzer returns a scripted result for every clip.
type fakeAnalyzer struct {
	mu     sync.Mutex
	result *interview.AnalysisResult
	err    error
	calls  int
}

func (f *fakeAnalyzer) Analyze(_ context.Context, _ audio.Clip, _ analysis.Context) (*interview.AnalysisResult, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	return f.result, f.err
}

func (f *fakeAnalyzer) callCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func answeredResult(summary string) *interview.AnalysisResult {
	return &interview.AnalysisResult{
		Segments: []interview.Segment{{Text: "I led the migration project.", Start: 0, End: 2}},
		Scores: interview.SessionScore{
			Turns: []interview.TurnScore{{ActionableFeedback: summary}},
		},
	}
}

// writeQuestionFile writes a YAML question file and returns its path.
func writeQuestionFile(t *testing.T, questions ...string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "questions.yaml")
	data := "questions:\n"
	for _, q := range questions {
		data += "  - " + q + "\n"
	}
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write question file: %v", err)
	}
	return path
}

func testQuestions(t *testing.T, questions ...string) *question.Manager {
	t.Helper()
	m := question.New(nil)
	if err := m.LoadFile(writeQuestionFile(t, questions...)); err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	return m
}

func testMetrics(t *testing.T) *observe.Metrics {
	t.Helper()
	m, err := observe.NewMetrics(sdkmetric.NewMeterProvider())
	if err != nil {
		t.Fatalf("NewMetrics() error: %v", err)
	}
	return m
}

func newTestRooms(t *testing.T, an *fakeAnalyzer, recorder *history.Recorder, questions ...string) *RoomManager {
	t.Helper()
	if len(questions) == 0 {
		questions = []string{"Tell me about yourself"}
	}
	return NewRoomManager(RoomManagerConfig{
		Analyzer:  an,
		Questions: testQuestions(t, questions...),
		Recorder:  recorder,
		Metrics:   testMetrics(t),
	})
}

// waitRoomState polls the controller until it reaches want or the deadline
// passes.
func waitRoomState(t *testing.T, room *Room, want interview.SessionState) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if room.Controller.Snapshot().State == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("controller state = %s, want %s", room.Controller.Snapshot().State, want)
}

func answerCurrent(t *testing.T, room *Room) {
	t.Helper()
	if err := room.Controller.StartCapture(); err != nil {
		t.Fatalf("StartCapture() error: %v", err)
	}
	if err := room.Controller.StopCapture(context.Background(), audio.Clip{Data: []byte{1, 2, 3, 4}}); err != nil {
		t.Fatalf("StopCapture() error: %v", err)
	}
	waitRoomState(t, room, interview.StateFeedback)
}

func TestOpen_OneRoomPerUser(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("solid")}, nil)

	room, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if room.Controller.Snapshot().State != interview.StateActive {
		t.Errorf("state after open = %s, want %s", room.Controller.Snapshot().State, interview.StateActive)
	}

	if _, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"}); !errors.Is(err, ErrRoomExists) {
		t.Errorf("second Open() error = %v, want ErrRoomExists", err)
	}
	if m.Count() != 1 {
		t.Errorf("Count() = %d, want 1", m.Count())
	}
}

func TestOpen_DifferentUsersGetSeparateRooms(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("solid")}, nil)

	if _, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"}); err != nil {
		t.Fatalf("Open(user-1) error: %v", err)
	}
	if _, err := m.Open(context.Background(), OpenRequest{UserID: "user-2"}); err != nil {
		t.Fatalf("Open(user-2) error: %v", err)
	}
	if m.Count() != 2 {
		t.Errorf("Count() = %d, want 2", m.Count())
	}
}

func TestOpen_RejectedOpenRunsCleanup(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("solid")}, nil)

	cleaned := 0
	if _, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"}); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	_, err := m.Open(context.Background(), OpenRequest{
		UserID:  "user-1",
		Cleanup: func() error { cleaned++; return nil },
	})
	if !errors.Is(err, ErrRoomExists) {
		t.Fatalf("Open() error = %v, want ErrRoomExists", err)
	}
	// The rejected caller connected voice before Open; that connection must
	// be released.
	if cleaned != 1 {
		t.Errorf("cleanup ran %d times for rejected open, want 1", cleaned)
	}
}

func TestGet(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("solid")}, nil)

	if _, err := m.Get("user-1"); !errors.Is(err, ErrNoRoom) {
		t.Errorf("Get() before open error = %v, want ErrNoRoom", err)
	}

	opened, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	got, err := m.Get("user-1")
	if err != nil {
		t.Fatalf("Get() error: %v", err)
	}
	if got != opened {
		t.Error("Get() returned a different room than Open()")
	}
}

func TestFinish_BeforeCompleteRejected(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("solid")}, nil)

	if _, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"}); err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	if _, err := m.Finish(context.Background(), "user-1"); err == nil {
		t.Error("Finish() on an active session succeeded, want error")
	}
	if m.Count() != 1 {
		t.Errorf("room closed by failed Finish; Count() = %d, want 1", m.Count())
	}
}

func TestFinish_ArchivesAndClosesRoom(t *testing.T) {
	archive := &historymock.Archive{}
	recorder := history.NewRecorder(archive)
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("well structured")}, recorder,
		"Tell me about yourself", "Why this role?")

	cleaned := 0
	room, err := m.Open(context.Background(), OpenRequest{
		UserID:         "user-1",
		ChannelID:      "voice-9",
		JobDescription: "Senior Go engineer",
		Cleanup:        func() error { cleaned++; return nil },
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	for i := 0; i < 2; i++ {
		answerCurrent(t, room)
		if err := room.Controller.Next(context.Background()); err != nil {
			t.Fatalf("Next() error: %v", err)
		}
	}
	waitRoomState(t, room, interview.StateComplete)

	report, err := m.Finish(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Finish() error: %v", err)
	}
	if len(report.Entries) != 2 {
		t.Errorf("report entries = %d, want 2", len(report.Entries))
	}

	if len(archive.SaveSessionCalls) != 1 {
		t.Fatalf("SaveSession calls = %d, want 1", len(archive.SaveSessionCalls))
	}
	saved := archive.SaveSessionCalls[0].Rec
	if saved.UserID != "user-1" {
		t.Errorf("archived UserID = %q, want %q", saved.UserID, "user-1")
	}
	if saved.JobDescription != "Senior Go engineer" {
		t.Errorf("archived JobDescription = %q", saved.JobDescription)
	}
	if len(archive.SaveAnswerCalls) != 2 {
		t.Errorf("SaveAnswer calls = %d, want 2", len(archive.SaveAnswerCalls))
	}

	if cleaned != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleaned)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after Finish = %d, want 0", m.Count())
	}
}

func TestFinish_ArchiveFailureStillReturnsReport(t *testing.T) {
	archive := &historymock.Archive{SaveSessionErr: errors.New("connection refused")}
	recorder := history.NewRecorder(archive)
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("fine")}, recorder)

	room, err := m.Open(context.Background(), OpenRequest{UserID: "user-1"})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	answerCurrent(t, room)
	if err := room.Controller.Next(context.Background()); err != nil {
		t.Fatalf("Next() error: %v", err)
	}
	waitRoomState(t, room, interview.StateComplete)

	report, err := m.Finish(context.Background(), "user-1")
	if err != nil {
		t.Fatalf("Finish() error despite archive failure: %v", err)
	}
	if report == nil || len(report.Entries) != 1 {
		t.Errorf("report = %+v, want 1 entry", report)
	}
	if m.Count() != 0 {
		t.Errorf("Count() after Finish = %d, want 0", m.Count())
	}
}

func TestClose_AbortsAndReleases(t *testing.T) {
	an := &fakeAnalyzer{result: answeredResult("fine")}
	m := newTestRooms(t, an, nil)

	cleaned := 0
	room, err := m.Open(context.Background(), OpenRequest{
		UserID:  "user-1",
		Cleanup: func() error { cleaned++; return nil },
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}

	if err := m.Close(context.Background(), "user-1"); err != nil {
		t.Fatalf("Close() error: %v", err)
	}
	if got := room.Controller.Snapshot().State; got != interview.StateSetup {
		t.Errorf("state after Close = %s, want %s", got, interview.StateSetup)
	}
	if cleaned != 1 {
		t.Errorf("cleanup ran %d times, want 1", cleaned)
	}
	if err := m.Close(context.Background(), "user-1"); !errors.Is(err, ErrNoRoom) {
		t.Errorf("second Close() error = %v, want ErrNoRoom", err)
	}
}

func TestCloseAll(t *testing.T) {
	m := newTestRooms(t, &fakeAnalyzer{result: answeredResult("fine")}, nil)

	for _, user := range []string{"user-1", "user-2", "user-3"} {
		if _, err := m.Open(context.Background(), OpenRequest{UserID: user}); err != nil {
			t.Fatalf("Open(%s) error: %v", user, err)
		}
	}

	m.CloseAll(context.Background())
	if m.Count() != 0 {
		t.Errorf("Count() after CloseAll = %d, want 0", m.Count())
	}
}
