package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/internal/session"
	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

var (
	// ErrRoomExists is returned by Open when the user already has a room.
	ErrRoomExists = errors.New("app: user already has an open interview room")

	// ErrNoRoom is returned when no room exists for the user.
	ErrNoRoom = errors.New("app: no open interview room for user")
)

// Room binds one user's guided interview to the voice resources backing it.
type Room struct {
	Controller *session.Controller

	// UserID is the surface-level identity of the candidate (e.g. a Discord
	// user ID). One room per user.
	UserID string

	// ChannelID is the voice channel the room is connected to, when any.
	ChannelID string

	// JobDescription is the role context the session was started with.
	JobDescription string

	// StartedAt is when the room was opened.
	StartedAt time.Time

	// cleanup releases voice resources (connection, capture) when the room
	// closes.
	cleanup func() error
}

// OpenRequest carries everything needed to open a room for a user.
type OpenRequest struct {
	UserID         string
	ChannelID      string
	JobDescription string

	// Player reads questions aloud. Nil means capture opens immediately when
	// a question becomes current.
	Player session.Player

	// Cleanup is called once when the room closes, after the session is
	// aborted or finished. Optional.
	Cleanup func() error
}

// RoomManagerConfig holds the dependencies of a [RoomManager].
type RoomManagerConfig struct {
	Analyzer   session.Analyzer
	Questions  *question.Manager
	Recorder   *history.Recorder
	Summariser session.Summariser
	Metrics    *observe.Metrics
	Logger     *slog.Logger
}

// RoomManager tracks one guided-interview room per user. All exported methods
// are safe for concurrent use.
type RoomManager struct {
	analyzer   session.Analyzer
	questions  *question.Manager
	recorder   *history.Recorder
	summariser session.Summariser
	metrics    *observe.Metrics
	log        *slog.Logger

	mu    sync.Mutex
	rooms map[string]*Room
}

// NewRoomManager creates a RoomManager with the given dependencies.
func NewRoomManager(cfg RoomManagerConfig) *RoomManager {
	log := cfg.Logger
	if log == nil {
		log = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = observe.DefaultMetrics()
	}
	return &RoomManager{
		analyzer:   cfg.Analyzer,
		questions:  cfg.Questions,
		recorder:   cfg.Recorder,
		summariser: cfg.Summariser,
		metrics:    metrics,
		log:        log,
		rooms:      make(map[string]*Room),
	}
}

// Open starts a guided session for the user over a snapshot of the current
// question set. Returns [ErrRoomExists] if the user already has a room open.
// On any failure the request's Cleanup runs, so voice resources acquired
// before the call never leak.
func (m *RoomManager) Open(ctx context.Context, req OpenRequest) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.rooms[req.UserID]; ok {
		if req.Cleanup != nil {
			_ = req.Cleanup()
		}
		return nil, fmt.Errorf("%w (session %s)", ErrRoomExists, existing.Controller.Snapshot().ID)
	}

	opts := []session.Option{
		session.WithMetrics(m.metrics),
		session.WithLogger(m.log),
	}
	if req.Player != nil {
		opts = append(opts, session.WithPlayer(req.Player))
	}
	if m.summariser != nil {
		opts = append(opts, session.WithSummariser(m.summariser))
	}

	ctrl := session.NewController(m.analyzer, opts...)
	sess, err := ctrl.Start(ctx, m.questions.Set(), req.JobDescription)
	if err != nil {
		if req.Cleanup != nil {
			_ = req.Cleanup()
		}
		return nil, err
	}

	room := &Room{
		Controller:     ctrl,
		UserID:         req.UserID,
		ChannelID:      req.ChannelID,
		JobDescription: req.JobDescription,
		StartedAt:      time.Now().UTC(),
		cleanup:        req.Cleanup,
	}
	m.rooms[req.UserID] = room

	m.log.Info("interview room opened",
		"user_id", req.UserID,
		"channel_id", req.ChannelID,
		"session_id", sess.ID,
		"questions", sess.Questions.Len(),
	)
	return room, nil
}

// Get returns the user's open room, or ErrNoRoom.
func (m *RoomManager) Get(userID string) (*Room, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	room, ok := m.rooms[userID]
	if !ok {
		return nil, ErrNoRoom
	}
	return room, nil
}

// Count returns the number of open rooms.
func (m *RoomManager) Count() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.rooms)
}

// Finish builds the session report for the user's completed session, archives
// it, and closes the room. Fails without closing anything when the session
// has not reached Complete. An archive failure is logged, not returned: the
// report has standalone value and the user is owed it either way.
func (m *RoomManager) Finish(ctx context.Context, userID string) (*interview.SessionReport, error) {
	m.mu.Lock()
	room, ok := m.rooms[userID]
	m.mu.Unlock()
	if !ok {
		return nil, ErrNoRoom
	}

	// Report runs outside the manager lock; it may hit an LLM for the
	// overall summary.
	report, err := room.Controller.Report(ctx)
	if err != nil {
		return nil, err
	}

	if m.recorder != nil {
		snapshot := room.Controller.Snapshot()
		if err := m.recorder.Record(ctx, snapshot, report, userID, room.JobDescription); err != nil {
			m.log.Warn("session archive failed",
				"user_id", userID,
				"session_id", snapshot.ID,
				"error", err,
			)
		}
	}

	m.remove(userID, room)
	return report, nil
}

// Close aborts the user's session, whatever state it is in, and releases the
// room's resources.
func (m *RoomManager) Close(ctx context.Context, userID string) error {
	m.mu.Lock()
	room, ok := m.rooms[userID]
	m.mu.Unlock()
	if !ok {
		return ErrNoRoom
	}

	room.Controller.Abort(ctx)
	m.remove(userID, room)
	return nil
}

// CloseAll aborts every open room. Used during shutdown.
func (m *RoomManager) CloseAll(ctx context.Context) {
	m.mu.Lock()
	rooms := make([]*Room, 0, len(m.rooms))
	for _, room := range m.rooms {
		rooms = append(rooms, room)
	}
	m.mu.Unlock()

	for _, room := range rooms {
		room.Controller.Abort(ctx)
		m.remove(room.UserID, room)
	}
}

// remove deletes the room from the map and runs its cleanup exactly once.
func (m *RoomManager) remove(userID string, room *Room) {
	m.mu.Lock()
	current, ok := m.rooms[userID]
	if ok && current == room {
		delete(m.rooms, userID)
	} else {
		ok = false
	}
	m.mu.Unlock()

	if ok && room.cleanup != nil {
		if err := room.cleanup(); err != nil {
			m.log.Warn("room cleanup error", "user_id", userID, "err", err)
		}
	}
	if ok {
		m.log.Info("interview room closed", "user_id", userID)
	}
}
