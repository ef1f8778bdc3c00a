package session

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/greenroomhq/greenroom/pkg/audio"
)

// Redial defaults. A guided interview survives a voice drop as long as the
// link comes back within the member's patience, so the window is generous.
const (
	defaultRedialAttempts = 10
	defaultRedialBackoff  = time.Second
	defaultRedialCap      = 30 * time.Second
)

// Reconnector keeps a practice room's voice link alive. The interview
// controller holds all session state, so a dropped voice connection loses
// nothing but audio: the Reconnector redials the channel with exponential
// backoff and swaps the live connection in place. Playback and capture
// collaborators source the connection through [Reconnector.Connection] on
// every use, so a successful redial rebinds them without restarting the
// session.
//
// Call [Reconnector.Connect] for the initial link, then [Reconnector.Monitor]
// to watch for drops signalled via [Reconnector.NotifyDisconnect].
//
// All methods are safe for concurrent use.
type Reconnector struct {
	platform    audio.Platform
	channelID   string
	attempts    int
	backoff     time.Duration
	backoffCap  time.Duration
	onReconnect func(audio.Connection)
	onGiveUp    func()

	mu   sync.Mutex
	conn audio.Connection

	done     chan struct{}
	stopOnce sync.Once
	dropped  chan struct{} // coalesces NotifyDisconnect signals
}

// ReconnectorConfig configures a [Reconnector].
type ReconnectorConfig struct {
	// Platform establishes voice connections.
	Platform audio.Platform

	// ChannelID is the voice channel to redial.
	ChannelID string

	// MaxRetries bounds redial attempts per drop. Defaults to 10.
	MaxRetries int

	// Backoff is the initial delay between redials, doubling each attempt up
	// to MaxBackoff. Defaults to 1s.
	Backoff time.Duration

	// MaxBackoff caps the redial delay. Defaults to 30s.
	MaxBackoff time.Duration

	// OnReconnect runs after a successful redial with the new connection.
	// May be nil.
	OnReconnect func(audio.Connection)

	// OnGiveUp runs once redials for a drop are exhausted, so the room can
	// tell the member the voice link is gone for good. May be nil.
	OnGiveUp func()
}

// NewReconnector creates a [Reconnector] for the given voice channel.
func NewReconnector(cfg ReconnectorConfig) *Reconnector {
	r := &Reconnector{
		platform:    cfg.Platform,
		channelID:   cfg.ChannelID,
		attempts:    cfg.MaxRetries,
		backoff:     cfg.Backoff,
		backoffCap:  cfg.MaxBackoff,
		onReconnect: cfg.OnReconnect,
		onGiveUp:    cfg.OnGiveUp,
		done:        make(chan struct{}),
		dropped:     make(chan struct{}, 1),
	}
	if r.attempts <= 0 {
		r.attempts = defaultRedialAttempts
	}
	if r.backoff <= 0 {
		r.backoff = defaultRedialBackoff
	}
	if r.backoffCap <= 0 {
		r.backoffCap = defaultRedialCap
	}
	return r
}

// Connect establishes the initial voice link.
func (r *Reconnector) Connect(ctx context.Context) (audio.Connection, error) {
	conn, err := r.platform.Connect(ctx, r.channelID)
	if err != nil {
		return nil, fmt.Errorf("join voice channel %s: %w", r.channelID, err)
	}

	r.mu.Lock()
	r.conn = conn
	r.mu.Unlock()

	return conn, nil
}

// Monitor starts watching for drops in a background goroutine. Each drop
// signalled via [Reconnector.NotifyDisconnect] triggers a redial cycle.
func (r *Reconnector) Monitor(ctx context.Context) {
	go r.watch(ctx)
}

// NotifyDisconnect signals that the voice link was lost and a redial should
// start. Safe to call repeatedly; signals within one redial cycle coalesce.
func (r *Reconnector) NotifyDisconnect() {
	select {
	case r.dropped <- struct{}{}:
	default:
	}
}

// Stop ends monitoring and disconnects the current link.
// Safe to call more than once.
func (r *Reconnector) Stop() error {
	r.stopOnce.Do(func() {
		close(r.done)
	})

	r.mu.Lock()
	conn := r.conn
	r.conn = nil
	r.mu.Unlock()

	if conn != nil {
		return conn.Disconnect()
	}
	return nil
}

// Connection returns the live voice connection, or nil mid-redial and after
// [Reconnector.Stop].
func (r *Reconnector) Connection() audio.Connection {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.conn
}

func (r *Reconnector) watch(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-r.dropped:
			r.redial(ctx)
		}
	}
}

// redial attempts to re-join the voice channel with exponential backoff,
// swapping the new connection in on success.
func (r *Reconnector) redial(ctx context.Context) {
	delay := r.backoff

	for attempt := 1; attempt <= r.attempts; attempt++ {
		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		default:
		}

		conn, err := r.platform.Connect(ctx, r.channelID)
		if err == nil {
			r.mu.Lock()
			stale := r.conn
			r.conn = conn
			r.mu.Unlock()

			// Release whatever is left of the dropped link.
			if stale != nil {
				_ = stale.Disconnect()
			}

			slog.Info("voice channel redial succeeded",
				"channel_id", r.channelID,
				"attempt", attempt,
			)
			if r.onReconnect != nil {
				r.onReconnect(conn)
			}
			return
		}

		slog.Warn("voice channel redial failed",
			"channel_id", r.channelID,
			"attempt", attempt,
			"max_attempts", r.attempts,
			"err", err,
		)

		select {
		case <-ctx.Done():
			return
		case <-r.done:
			return
		case <-time.After(delay):
		}

		delay *= 2
		if delay > r.backoffCap {
			delay = r.backoffCap
		}
	}

	slog.Error("voice link lost, redials exhausted",
		"channel_id", r.channelID,
		"max_attempts", r.attempts,
	)
	if r.onGiveUp != nil {
		r.onGiveUp()
	}
}
