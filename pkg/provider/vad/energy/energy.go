// Package energy implements a VAD engine based on short-term signal energy.
//
// Each frame's RMS level is mapped to a pseudo-probability on a dBFS scale and
// smoothed with an exponential moving average before thresholding. It has no
// model weights and no external dependencies, which makes it the default
// engine for flagging empty captures: a recording where no frame ever crosses
// the speech threshold almost certainly contains no answer.
package energy

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sync"

	"github.com/greenroomhq/greenroom/pkg/provider/vad"
)

// dBFS range mapped onto the [0, 1] probability scale. Levels at or below
// floorDB score 0; levels at or above ceilDB score 1.
const (
	floorDB = -60.0
	ceilDB  = -20.0
)

// smoothing is the EMA weight of the newest frame. One noisy frame should not
// flip the speech state on its own.
const smoothing = 0.35

const (
	defaultSpeechThreshold  = 0.5
	defaultSilenceThreshold = 0.35
)

// Engine creates energy-based VAD sessions.
type Engine struct{}

var _ vad.Engine = (*Engine)(nil)

// New returns an energy VAD engine.
func New() *Engine {
	return &Engine{}
}

// NewSession validates cfg and returns a session ready to accept frames.
// Zero thresholds select the defaults (0.5 speech, 0.35 silence).
func (e *Engine) NewSession(cfg vad.Config) (vad.SessionHandle, error) {
	if cfg.SampleRate <= 0 {
		return nil, fmt.Errorf("energy: sample rate %d must be positive", cfg.SampleRate)
	}
	if cfg.FrameSizeMs <= 0 {
		return nil, fmt.Errorf("energy: frame size %dms must be positive", cfg.FrameSizeMs)
	}
	speech := cfg.SpeechThreshold
	if speech == 0 {
		speech = defaultSpeechThreshold
	}
	silence := cfg.SilenceThreshold
	if silence == 0 {
		silence = defaultSilenceThreshold
	}
	if speech < 0 || speech > 1 {
		return nil, fmt.Errorf("energy: speech threshold %.2f out of range [0, 1]", speech)
	}
	if silence < 0 || silence > speech {
		return nil, fmt.Errorf("energy: silence threshold %.2f must be in [0, %.2f]", silence, speech)
	}

	// 16-bit mono PCM: samples per frame times two bytes.
	frameBytes := cfg.SampleRate * cfg.FrameSizeMs / 1000 * 2
	if frameBytes == 0 {
		return nil, fmt.Errorf("energy: frame of %dms at %dHz holds no samples", cfg.FrameSizeMs, cfg.SampleRate)
	}

	return &session{
		frameBytes: frameBytes,
		speech:     speech,
		silence:    silence,
	}, nil
}

// session is the per-stream detection state. Not safe for concurrent use.
type session struct {
	frameBytes int
	speech     float64
	silence    float64

	mu       sync.Mutex
	ema      float64
	inSpeech bool
	closed   bool
}

var _ vad.SessionHandle = (*session)(nil)

// ProcessFrame classifies one frame of little-endian 16-bit PCM.
func (s *session) ProcessFrame(frame []byte) (vad.VADEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return vad.VADEvent{}, errors.New("energy: session closed")
	}
	if len(frame) != s.frameBytes {
		return vad.VADEvent{}, fmt.Errorf("energy: frame is %d bytes, want %d", len(frame), s.frameBytes)
	}

	s.ema = s.ema*(1-smoothing) + probability(frame)*smoothing
	prob := s.ema

	event := vad.VADEvent{Probability: prob}
	switch {
	case !s.inSpeech && prob >= s.speech:
		s.inSpeech = true
		event.Type = vad.VADSpeechStart
	case !s.inSpeech:
		event.Type = vad.VADSilence
	case prob <= s.silence:
		s.inSpeech = false
		event.Type = vad.VADSpeechEnd
	default:
		event.Type = vad.VADSpeechContinue
	}
	return event, nil
}

// Reset clears the smoothed level and speech state.
func (s *session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ema = 0
	s.inSpeech = false
}

// Close marks the session closed. Safe to call repeatedly.
func (s *session) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	return nil
}

// probability maps the frame's RMS level to [0, 1] on a dBFS scale.
func probability(frame []byte) float64 {
	var sum float64
	n := len(frame) / 2
	for i := 0; i < n; i++ {
		sample := float64(int16(binary.LittleEndian.Uint16(frame[i*2:])))
		sum += sample * sample
	}
	rms := math.Sqrt(sum / float64(n))
	if rms < 1 {
		return 0
	}
	db := 20 * math.Log10(rms/32768.0)
	p := (db - floorDB) / (ceilDB - floorDB)
	return math.Max(0, math.Min(1, p))
}
