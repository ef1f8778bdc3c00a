package session

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/pkg/audio"
	audiomock "github.com/greenroomhq/greenroom/pkg/audio/mock"
)

func TestReconnector_ConnectJoinsChannel(t *testing.T) {
	conn := &audiomock.Connection{}
	platform := &audiomock.Platform{ConnectResult: conn}

	r := NewReconnector(ReconnectorConfig{
		Platform:  platform,
		ChannelID: "practice-voice",
	})

	got, err := r.Connect(context.Background())
	if err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	if got != conn {
		t.Error("Connect() did not return the platform's connection")
	}
	if r.Connection() != conn {
		t.Error("Connection() does not report the live link")
	}
	if len(platform.ConnectCalls) != 1 || platform.ConnectCalls[0].ChannelID != "practice-voice" {
		t.Errorf("connect calls = %+v, want one call for practice-voice", platform.ConnectCalls)
	}
}

func TestReconnector_ConnectFailure(t *testing.T) {
	platform := &audiomock.Platform{ConnectError: errors.New("voice gateway refused")}

	r := NewReconnector(ReconnectorConfig{
		Platform:  platform,
		ChannelID: "practice-voice",
	})

	if _, err := r.Connect(context.Background()); err == nil {
		t.Fatal("Connect() returned nil error for a refused join")
	}
	if r.Connection() != nil {
		t.Error("Connection() non-nil after a failed join")
	}
}

func TestReconnector_Defaults(t *testing.T) {
	r := NewReconnector(ReconnectorConfig{
		Platform:  &audiomock.Platform{},
		ChannelID: "practice-voice",
	})

	if r.attempts != defaultRedialAttempts {
		t.Errorf("attempts = %d, want %d", r.attempts, defaultRedialAttempts)
	}
	if r.backoff != defaultRedialBackoff {
		t.Errorf("backoff = %v, want %v", r.backoff, defaultRedialBackoff)
	}
	if r.backoffCap != defaultRedialCap {
		t.Errorf("backoffCap = %v, want %v", r.backoffCap, defaultRedialCap)
	}
}

func TestReconnector_RedialSwapsConnection(t *testing.T) {
	conn1 := &audiomock.Connection{}
	conn2 := &audiomock.Connection{}
	platform := &scriptedPlatform{connections: []audio.Connection{conn1, conn2}}

	var rebound atomic.Pointer[audio.Connection]
	r := NewReconnector(ReconnectorConfig{
		Platform:   platform,
		ChannelID:  "practice-voice",
		MaxRetries: 3,
		Backoff:    time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
		OnReconnect: func(c audio.Connection) {
			rebound.Store(&c)
		},
	})

	if _, err := r.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error: %v", err)
	}
	r.Monitor(t.Context())

	r.NotifyDisconnect()
	time.Sleep(50 * time.Millisecond)

	got := rebound.Load()
	if got == nil {
		t.Fatal("OnReconnect never ran after a drop")
	}
	if *got != conn2 {
		t.Error("OnReconnect received a connection other than the redialled one")
	}
	if r.Connection() != conn2 {
		t.Error("Connection() still reports the dropped link")
	}
	if conn1.CallCountDisconnect != 1 {
		t.Errorf("stale connection Disconnect calls = %d, want 1", conn1.CallCountDisconnect)
	}

	_ = r.Stop()
}

func TestReconnector_BackoffRetriesUntilSuccess(t *testing.T) {
	var dials atomic.Int32
	platform := &flakyPlatform{failures: 3, conn: &audiomock.Connection{}, dials: &dials}

	var rebound atomic.Bool
	r := NewReconnector(ReconnectorConfig{
		Platform:   platform,
		ChannelID:  "practice-voice",
		MaxRetries: 5,
		Backoff:    time.Millisecond,
		MaxBackoff: 10 * time.Millisecond,
		OnReconnect: func(audio.Connection) {
			rebound.Store(true)
		},
	})

	r.mu.Lock()
	r.conn = &audiomock.Connection{}
	r.mu.Unlock()

	r.Monitor(t.Context())
	r.NotifyDisconnect()
	time.Sleep(200 * time.Millisecond)

	if !rebound.Load() {
		t.Error("redial never succeeded despite attempts remaining")
	}
	// 3 failures then 1 success.
	if got := dials.Load(); got < 4 {
		t.Errorf("dial attempts = %d, want at least 4", got)
	}

	_ = r.Stop()
}

func TestReconnector_GivesUpAfterMaxRetries(t *testing.T) {
	var dials atomic.Int32
	platform := &downPlatform{err: errors.New("region outage"), dials: &dials}

	var rebound, gaveUp atomic.Bool
	r := NewReconnector(ReconnectorConfig{
		Platform:   platform,
		ChannelID:  "practice-voice",
		MaxRetries: 2,
		Backoff:    time.Millisecond,
		MaxBackoff: 5 * time.Millisecond,
		OnReconnect: func(audio.Connection) {
			rebound.Store(true)
		},
		OnGiveUp: func() {
			gaveUp.Store(true)
		},
	})

	r.mu.Lock()
	r.conn = &audiomock.Connection{}
	r.mu.Unlock()

	r.Monitor(t.Context())
	r.NotifyDisconnect()
	time.Sleep(100 * time.Millisecond)

	if rebound.Load() {
		t.Error("OnReconnect ran even though every redial failed")
	}
	if !gaveUp.Load() {
		t.Error("OnGiveUp never ran after redials were exhausted")
	}
	if got := dials.Load(); got != 2 {
		t.Errorf("dial attempts = %d, want exactly MaxRetries (2)", got)
	}

	_ = r.Stop()
}

func TestReconnector_Stop(t *testing.T) {
	conn := &audiomock.Connection{}
	platform := &audiomock.Platform{ConnectResult: conn}

	r := NewReconnector(ReconnectorConfig{
		Platform:  platform,
		ChannelID: "practice-voice",
	})
	_, _ = r.Connect(context.Background())

	if err := r.Stop(); err != nil {
		t.Fatalf("Stop() error: %v", err)
	}
	if r.Connection() != nil {
		t.Error("Connection() non-nil after Stop")
	}
	if conn.CallCountDisconnect != 1 {
		t.Errorf("Disconnect calls = %d, want 1", conn.CallCountDisconnect)
	}

	// Stop is idempotent.
	if err := r.Stop(); err != nil {
		t.Fatalf("second Stop() error: %v", err)
	}
}

func TestReconnector_NotifyDisconnectCoalesces(t *testing.T) {
	r := NewReconnector(ReconnectorConfig{
		Platform:  &audiomock.Platform{},
		ChannelID: "practice-voice",
	})

	// Repeated signals before a redial cycle must not block.
	r.NotifyDisconnect()
	r.NotifyDisconnect()
	r.NotifyDisconnect()
}

// scriptedPlatform hands out connections from a fixed sequence, repeating the
// last one once the script runs out.
type scriptedPlatform struct {
	mu          sync.Mutex
	connections []audio.Connection
	next        int
}

func (p *scriptedPlatform) Connect(_ context.Context, _ string) (audio.Connection, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	i := p.next
	p.next++
	if i >= len(p.connections) {
		i = len(p.connections) - 1
	}
	return p.connections[i], nil
}

// flakyPlatform fails the first N dials, then succeeds.
type flakyPlatform struct {
	failures int
	conn     audio.Connection
	dials    *atomic.Int32
}

func (p *flakyPlatform) Connect(_ context.Context, _ string) (audio.Connection, error) {
	if int(p.dials.Add(1)) <= p.failures {
		return nil, errors.New("voice gateway unavailable")
	}
	return p.conn, nil
}

// downPlatform never connects.
type downPlatform struct {
	err   error
	dials *atomic.Int32
}

func (p *downPlatform) Connect(_ context.Context, _ string) (audio.Connection, error) {
	p.dials.Add(1)
	return nil, p.err
}
