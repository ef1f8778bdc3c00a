package discord

import (
	"context"
	"encoding/binary"
	"sync"
	"testing"
	"time"

	"github.com/greenroomhq/greenroom/pkg/audio"
	audiomock "github.com/greenroomhq/greenroom/pkg/audio/mock"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
	ttsmock "github.com/greenroomhq/greenroom/pkg/provider/tts/mock"
	"github.com/greenroomhq/greenroom/pkg/provider/vad/energy"
)

// loudFrame returns one 20ms capture-format frame well above the speech floor.
func loudFrame() []byte {
	frame := make([]byte, captureFrameBytes)
	for i := 0; i < len(frame); i += 2 {
		binary.LittleEndian.PutUint16(frame[i:], uint16(int16(12000)))
	}
	return frame
}

func silentFrame() []byte {
	return make([]byte, captureFrameBytes)
}

func captureFrame(data []byte) audio.AudioFrame {
	return audio.AudioFrame{Data: data, SampleRate: captureSampleRate, Channels: 1}
}

func TestQuestionPlayer_PlayStreamsToConnection(t *testing.T) {
	out := make(chan audio.AudioFrame, 16)
	conn := &audiomock.Connection{OutputStreamResult: out}
	provider := &ttsmock.Provider{
		SynthesizeChunks: [][]byte{{1, 2}, {3, 4}},
		ListVoicesResult: []tts.VoiceProfile{{ID: "en-US-JennyNeural"}},
	}

	player := newQuestionPlayer(staticConn{conn}, provider, "")
	if err := player.Play(context.Background(), "Tell me about yourself."); err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if len(out) != 2 {
		t.Fatalf("frames written = %d, want 2", len(out))
	}
	frame := <-out
	if frame.SampleRate != ttsSampleRate || frame.Channels != 1 {
		t.Errorf("frame format = %d/%d, want %d/1", frame.SampleRate, frame.Channels, ttsSampleRate)
	}

	// No voice configured: the first catalogue entry is used.
	if got := provider.SynthesizeStreamCalls[0].Voice.ID; got != "en-US-JennyNeural" {
		t.Errorf("synthesis voice = %q, want the catalogue default", got)
	}
}

func TestQuestionPlayer_ConfiguredVoiceSkipsCatalogue(t *testing.T) {
	out := make(chan audio.AudioFrame, 16)
	conn := &audiomock.Connection{OutputStreamResult: out}
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}

	player := newQuestionPlayer(staticConn{conn}, provider, "nova")
	if err := player.Play(context.Background(), "hello"); err != nil {
		t.Fatalf("Play() error: %v", err)
	}

	if len(provider.ListVoicesCalls) != 0 {
		t.Errorf("ListVoices called %d times with a configured voice, want 0", len(provider.ListVoicesCalls))
	}
	if got := provider.SynthesizeStreamCalls[0].Voice.ID; got != "nova" {
		t.Errorf("synthesis voice = %q, want %q", got, "nova")
	}
}

func TestQuestionPlayer_StopAbortsBlockedPlayback(t *testing.T) {
	// Unbuffered output with no reader: Play blocks on the first frame.
	out := make(chan audio.AudioFrame)
	conn := &audiomock.Connection{OutputStreamResult: out}
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}, {2}}}

	player := newQuestionPlayer(staticConn{conn}, provider, "nova")

	done := make(chan error, 1)
	go func() {
		done <- player.Play(context.Background(), "hello")
	}()

	// Give playback a moment to block on the unread output channel.
	time.Sleep(50 * time.Millisecond)
	player.Stop()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Play() after Stop error = %v, want nil", err)
		}
	case <-time.After(2 * time.Second):
		t.Fatal("Play() did not return after Stop()")
	}
}

func TestAnswerRecorder_CapturesSpeechThenSilence(t *testing.T) {
	input := make(chan audio.AudioFrame, 512)
	conn := &audiomock.Connection{
		InputStreamsResult: map[string]<-chan audio.AudioFrame{"42": input},
	}
	recorder := &answerRecorder{
		conns:       staticConn{conn},
		vad:         energy.New(),
		maxDuration: 10 * time.Second,
		noSpeech:    5 * time.Second,
	}

	go func() {
		for i := 0; i < 25; i++ {
			input <- captureFrame(loudFrame())
		}
		for i := 0; i < 200; i++ {
			input <- captureFrame(silentFrame())
		}
	}()

	clip, spoke, err := recorder.record(context.Background())
	if err != nil {
		t.Fatalf("record() error: %v", err)
	}
	if !spoke {
		t.Error("spoke = false for a capture with speech")
	}
	if len(clip.Data) == 0 {
		t.Error("recorded clip is empty")
	}
	if clip.Filename != "" {
		t.Errorf("clip filename = %q, want empty for raw PCM", clip.Filename)
	}
}

func TestAnswerRecorder_NoSpeechFlagsEmptyCapture(t *testing.T) {
	input := make(chan audio.AudioFrame, 64)
	conn := &audiomock.Connection{
		InputStreamsResult: map[string]<-chan audio.AudioFrame{"42": input},
	}
	recorder := &answerRecorder{
		conns:    staticConn{conn},
		vad:      energy.New(),
		noSpeech: 200 * time.Millisecond,
	}

	stop := make(chan struct{})
	defer close(stop)
	go func() {
		for {
			select {
			case input <- captureFrame(silentFrame()):
			case <-stop:
				return
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	_, spoke, err := recorder.record(context.Background())
	if err != nil {
		t.Fatalf("record() error: %v", err)
	}
	if spoke {
		t.Error("spoke = true for a silent capture")
	}
}

func TestAnswerRecorder_ContextCancel(t *testing.T) {
	conn := &audiomock.Connection{
		InputStreamsResult: map[string]<-chan audio.AudioFrame{},
	}
	recorder := &answerRecorder{conns: staticConn{conn}, vad: energy.New()}

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(50 * time.Millisecond)
		cancel()
	}()

	if _, _, err := recorder.record(ctx); err == nil {
		t.Error("record() after cancel returned nil error")
	}
}

// swappableConn is a connSource whose connection can be replaced mid-use,
// the way a redial replaces a room's voice link.
type swappableConn struct {
	mu   sync.Mutex
	conn audio.Connection
}

func (s *swappableConn) Connection() audio.Connection {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.conn
}

func (s *swappableConn) swap(conn audio.Connection) {
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
}

func TestQuestionPlayer_PlaysOverRedialledConnection(t *testing.T) {
	out1 := make(chan audio.AudioFrame, 16)
	out2 := make(chan audio.AudioFrame, 16)
	source := &swappableConn{conn: &audiomock.Connection{OutputStreamResult: out1}}
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1, 2}}}

	player := newQuestionPlayer(source, provider, "nova")
	if err := player.Play(context.Background(), "first question"); err != nil {
		t.Fatalf("Play() error: %v", err)
	}
	if len(out1) != 1 {
		t.Fatalf("frames on original connection = %d, want 1", len(out1))
	}

	// Link drops and is redialled between questions.
	source.swap(&audiomock.Connection{OutputStreamResult: out2})

	if err := player.Play(context.Background(), "second question"); err != nil {
		t.Fatalf("Play() after redial error: %v", err)
	}
	if len(out2) != 1 {
		t.Errorf("frames on redialled connection = %d, want 1", len(out2))
	}
	if len(out1) != 1 {
		t.Errorf("frames on dropped connection = %d, want still 1", len(out1))
	}
}

func TestQuestionPlayer_NoConnectionFails(t *testing.T) {
	source := &swappableConn{}
	provider := &ttsmock.Provider{SynthesizeChunks: [][]byte{{1}}}

	player := newQuestionPlayer(source, provider, "nova")
	if err := player.Play(context.Background(), "hello"); err == nil {
		t.Error("Play() with no live connection returned nil error")
	}
}

func TestAnswerRecorder_FollowsRedialledConnection(t *testing.T) {
	// The original connection never produces audio; the redialled one does.
	source := &swappableConn{conn: &audiomock.Connection{
		InputStreamsResult: map[string]<-chan audio.AudioFrame{},
	}}
	recorder := &answerRecorder{
		conns:       source,
		vad:         energy.New(),
		maxDuration: 10 * time.Second,
		noSpeech:    8 * time.Second,
	}

	input := make(chan audio.AudioFrame, 512)
	go func() {
		// Swap in the redialled connection after the recorder has started,
		// then answer on it. The input poll picks up the new streams.
		time.Sleep(100 * time.Millisecond)
		source.swap(&audiomock.Connection{
			InputStreamsResult: map[string]<-chan audio.AudioFrame{"42": input},
		})
		for i := 0; i < 25; i++ {
			input <- captureFrame(loudFrame())
		}
		for i := 0; i < 200; i++ {
			input <- captureFrame(silentFrame())
		}
	}()

	clip, spoke, err := recorder.record(context.Background())
	if err != nil {
		t.Fatalf("record() error: %v", err)
	}
	if !spoke {
		t.Error("spoke = false for an answer given after a redial")
	}
	if len(clip.Data) == 0 {
		t.Error("recorded clip is empty")
	}
}
