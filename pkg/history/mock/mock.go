// Package mock provides a test double for the history.Archive interface.
//
// Archive records every call and serves configurable responses, so tests can
// verify what the surfaces persist without a running PostgreSQL instance.
//
// Example:
//
//	a := &mock.Archive{
//	    SimilarAnswersResult: []history.AnswerMatch{{Distance: 0.12}},
//	}
//	matches, _ := a.SimilarAnswers(ctx, embedding, 5, "")
package mock

import (
	"context"
	"sync"

	"github.com/greenroomhq/greenroom/pkg/history"
)

// SaveSessionCall records a single invocation of SaveSession.
type SaveSessionCall struct {
	Ctx context.Context
	Rec history.SessionRecord
}

// SaveAnswerCall records a single invocation of SaveAnswer.
type SaveAnswerCall struct {
	Ctx context.Context
	Rec history.AnswerRecord
}

// GetSessionCall records a single invocation of GetSession.
type GetSessionCall struct {
	Ctx context.Context
	ID  string
}

// ListSessionsCall records a single invocation of ListSessions.
type ListSessionsCall struct {
	Ctx    context.Context
	UserID string
	Limit  int
}

// AnswersCall records a single invocation of Answers.
type AnswersCall struct {
	Ctx       context.Context
	SessionID string
}

// SimilarAnswersCall records a single invocation of SimilarAnswers.
type SimilarAnswersCall struct {
	Ctx              context.Context
	Embedding        []float32
	TopK             int
	ExcludeSessionID string
}

// Archive is a mock implementation of history.Archive.
type Archive struct {
	mu sync.Mutex

	// --- Configurable responses ---

	// SaveSessionErr, if non-nil, is returned by SaveSession.
	SaveSessionErr error

	// SaveAnswerErr, if non-nil, is returned by SaveAnswer.
	SaveAnswerErr error

	// GetSessionResult and GetSessionErr are returned by GetSession.
	GetSessionResult *history.SessionRecord
	GetSessionErr    error

	// ListSessionsResult and ListSessionsErr are returned by ListSessions.
	ListSessionsResult []history.SessionRecord
	ListSessionsErr    error

	// AnswersResult and AnswersErr are returned by Answers.
	AnswersResult []history.AnswerRecord
	AnswersErr    error

	// SimilarAnswersResult and SimilarAnswersErr are returned by SimilarAnswers.
	SimilarAnswersResult []history.AnswerMatch
	SimilarAnswersErr    error

	// --- Call records ---

	SaveSessionCalls    []SaveSessionCall
	SaveAnswerCalls     []SaveAnswerCall
	GetSessionCalls     []GetSessionCall
	ListSessionsCalls   []ListSessionsCall
	AnswersCalls        []AnswersCall
	SimilarAnswersCalls []SimilarAnswersCall
}

// SaveSession records the call and returns SaveSessionErr.
func (a *Archive) SaveSession(ctx context.Context, rec history.SessionRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SaveSessionCalls = append(a.SaveSessionCalls, SaveSessionCall{Ctx: ctx, Rec: rec})
	return a.SaveSessionErr
}

// SaveAnswer records the call and returns SaveAnswerErr.
func (a *Archive) SaveAnswer(ctx context.Context, rec history.AnswerRecord) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SaveAnswerCalls = append(a.SaveAnswerCalls, SaveAnswerCall{Ctx: ctx, Rec: rec})
	return a.SaveAnswerErr
}

// GetSession records the call and returns GetSessionResult, GetSessionErr.
func (a *Archive) GetSession(ctx context.Context, id string) (*history.SessionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.GetSessionCalls = append(a.GetSessionCalls, GetSessionCall{Ctx: ctx, ID: id})
	return a.GetSessionResult, a.GetSessionErr
}

// ListSessions records the call and returns ListSessionsResult, ListSessionsErr.
func (a *Archive) ListSessions(ctx context.Context, userID string, limit int) ([]history.SessionRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.ListSessionsCalls = append(a.ListSessionsCalls, ListSessionsCall{Ctx: ctx, UserID: userID, Limit: limit})
	return a.ListSessionsResult, a.ListSessionsErr
}

// Answers records the call and returns AnswersResult, AnswersErr.
func (a *Archive) Answers(ctx context.Context, sessionID string) ([]history.AnswerRecord, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.AnswersCalls = append(a.AnswersCalls, AnswersCall{Ctx: ctx, SessionID: sessionID})
	return a.AnswersResult, a.AnswersErr
}

// SimilarAnswers records the call and returns SimilarAnswersResult, SimilarAnswersErr.
func (a *Archive) SimilarAnswers(ctx context.Context, embedding []float32, topK int, excludeSessionID string) ([]history.AnswerMatch, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SimilarAnswersCalls = append(a.SimilarAnswersCalls, SimilarAnswersCall{
		Ctx:              ctx,
		Embedding:        embedding,
		TopK:             topK,
		ExcludeSessionID: excludeSessionID,
	})
	return a.SimilarAnswersResult, a.SimilarAnswersErr
}

// Reset clears all recorded calls. Thread-safe.
func (a *Archive) Reset() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.SaveSessionCalls = nil
	a.SaveAnswerCalls = nil
	a.GetSessionCalls = nil
	a.ListSessionsCalls = nil
	a.AnswersCalls = nil
	a.SimilarAnswersCalls = nil
}

// Ensure Archive implements history.Archive at compile time.
var _ history.Archive = (*Archive)(nil)
