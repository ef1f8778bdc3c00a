package discord

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/bwmarrin/discordgo"

	"github.com/greenroomhq/greenroom/internal/app"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
	"github.com/greenroomhq/greenroom/pkg/provider/vad"
)

// TTS providers are configured for raw PCM output; both edge and openai
// produce 24 kHz mono in their pcm formats. The voice connection resamples
// to Discord's 48 kHz stereo on send.
const ttsSampleRate = 24000

// Capture runs at the transcription format so recorded clips can go straight
// into the analysis pipeline without a container.
const (
	captureSampleRate = 16000
	captureFrameMs    = 20
	captureFrameBytes = captureSampleRate * captureFrameMs / 1000 * 2

	// endSilenceFrames ends a capture once this much silence follows speech
	// (75 × 20ms = 1.5s).
	endSilenceFrames = 75

	// preRollFrames of audio before the first detected speech are kept so
	// soft answer onsets are not clipped.
	preRollFrames = 10

	// maxAnswer bounds one recorded answer.
	maxAnswer = 3 * time.Minute

	// noSpeechWindow is how long the recorder waits for any speech at all
	// before flagging the capture as empty.
	noSpeechWindow = 45 * time.Second
)

// connSource yields the current voice connection. Live rooms source it from
// the session Reconnector, so a redialled link rebinds playback and capture
// without restarting the interview.
type connSource interface {
	Connection() audio.Connection
}

// staticConn is a connSource over a fixed connection.
type staticConn struct {
	conn audio.Connection
}

func (s staticConn) Connection() audio.Connection { return s.conn }

// ─── question playback ────────────────────────────────────────────────────────

// questionPlayer reads a question aloud over a voice connection. It implements
// the session controller's Player collaborator: Play blocks until the
// synthesized audio has been handed to the connection, Stop aborts playback.
type questionPlayer struct {
	conns   connSource
	tts     tts.Provider
	voiceID string

	voiceOnce sync.Once
	voice     tts.VoiceProfile
	voiceErr  error

	mu     sync.Mutex
	cancel context.CancelFunc
}

func newQuestionPlayer(conns connSource, provider tts.Provider, voiceID string) *questionPlayer {
	return &questionPlayer{conns: conns, tts: provider, voiceID: voiceID}
}

// resolveVoice picks the configured voice, or the provider's first catalogue
// entry when none is configured. Resolved once per player.
func (p *questionPlayer) resolveVoice(ctx context.Context) (tts.VoiceProfile, error) {
	p.voiceOnce.Do(func() {
		if p.voiceID != "" {
			p.voice = tts.VoiceProfile{ID: p.voiceID}
			return
		}
		voices, err := p.tts.ListVoices(ctx)
		if err != nil {
			p.voiceErr = fmt.Errorf("discord: resolve tts voice: %w", err)
			return
		}
		if len(voices) == 0 {
			p.voiceErr = errors.New("discord: tts provider lists no voices")
			return
		}
		p.voice = voices[0]
	})
	return p.voice, p.voiceErr
}

// Play synthesizes text and streams it to the voice connection, blocking
// until all audio has been written or Stop / ctx cancels it.
func (p *questionPlayer) Play(ctx context.Context, text string) error {
	playCtx, cancel := context.WithCancel(ctx)
	p.mu.Lock()
	p.cancel = cancel
	p.mu.Unlock()
	defer func() {
		cancel()
		p.mu.Lock()
		p.cancel = nil
		p.mu.Unlock()
	}()

	voice, err := p.resolveVoice(playCtx)
	if err != nil {
		return err
	}

	textCh := make(chan string, 1)
	textCh <- text
	close(textCh)

	audioCh, err := p.tts.SynthesizeStream(playCtx, textCh, voice)
	if err != nil {
		return fmt.Errorf("discord: synthesize question: %w", err)
	}

	// Fetch the connection per Play so a redialled link is picked up.
	conn := p.conns.Connection()
	if conn == nil {
		go audio.Drain(audioCh)
		return errors.New("discord: no live voice connection")
	}

	out := conn.OutputStream()
	for chunk := range audioCh {
		frame := audio.AudioFrame{Data: chunk, SampleRate: ttsSampleRate, Channels: 1}
		select {
		case out <- frame:
		case <-playCtx.Done():
			go audio.Drain(audioCh)
			// Stopped playback is not a failure; the capture gate opens either way.
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return nil
		}
	}
	return nil
}

// Stop aborts an in-progress Play.
func (p *questionPlayer) Stop() {
	p.mu.Lock()
	cancel := p.cancel
	p.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

// ─── answer capture ───────────────────────────────────────────────────────────

// answerRecorder turns a voice connection's input streams into one recorded
// answer clip: frames are converted to the capture format, gated by VAD, and
// accumulated until trailing silence follows speech.
type answerRecorder struct {
	conns connSource
	vad   vad.Engine

	// maxDuration and noSpeech default to maxAnswer / noSpeechWindow when zero.
	maxDuration time.Duration
	noSpeech    time.Duration
}

// record captures one answer. It returns the recorded clip and whether any
// speech was detected; a no-speech capture returns the (near-empty) clip with
// spoke=false so the caller can flag it instead of analyzing silence.
func (r *answerRecorder) record(ctx context.Context) (audio.Clip, bool, error) {
	sess, err := r.vad.NewSession(vad.Config{
		SampleRate:  captureSampleRate,
		FrameSizeMs: captureFrameMs,
	})
	if err != nil {
		return audio.Clip{}, false, fmt.Errorf("discord: create vad session: %w", err)
	}
	defer sess.Close()

	frames := make(chan audio.AudioFrame, 64)
	stopForward := r.forwardInputs(ctx, frames)
	defer stopForward()

	conv := audio.FormatConverter{Target: audio.Format{SampleRate: captureSampleRate, Channels: 1}}

	var (
		pcm          []byte
		vadBuf       []byte
		preRoll      [][]byte
		spoke        bool
		silentFrames int
	)
	maxDur := r.maxDuration
	if maxDur == 0 {
		maxDur = maxAnswer
	}
	noSpeech := r.noSpeech
	if noSpeech == 0 {
		noSpeech = noSpeechWindow
	}
	maxBytes := int(maxDur.Seconds()) * captureSampleRate * 2
	noSpeechDeadline := time.Now().Add(noSpeech)
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return audio.Clip{Data: pcm}, spoke, ctx.Err()

		case <-ticker.C:
			if !spoke && time.Now().After(noSpeechDeadline) {
				return audio.Clip{Data: pcm}, false, nil
			}

		case frame := <-frames:
			converted := conv.Convert(frame)
			vadBuf = append(vadBuf, converted.Data...)

			for len(vadBuf) >= captureFrameBytes {
				chunk := vadBuf[:captureFrameBytes:captureFrameBytes]
				vadBuf = vadBuf[captureFrameBytes:]

				event, err := sess.ProcessFrame(chunk)
				if err != nil {
					return audio.Clip{Data: pcm}, spoke, fmt.Errorf("discord: vad frame: %w", err)
				}

				switch event.Type {
				case vad.VADSpeechStart, vad.VADSpeechContinue:
					if !spoke {
						// Keep the pre-roll so the onset isn't clipped.
						for _, f := range preRoll {
							pcm = append(pcm, f...)
						}
						preRoll = nil
						spoke = true
					}
					silentFrames = 0
				default:
					if spoke {
						silentFrames++
					}
				}

				if spoke {
					pcm = append(pcm, chunk...)
				} else {
					preRoll = append(preRoll, chunk)
					if len(preRoll) > preRollFrames {
						preRoll = preRoll[1:]
					}
				}

				if spoke && silentFrames >= endSilenceFrames {
					return audio.Clip{Data: pcm}, true, nil
				}
				if len(pcm) >= maxBytes {
					return audio.Clip{Data: pcm}, spoke, nil
				}
			}
		}
	}
}

// forwardInputs fans every current and future input stream into out. Input
// streams appear lazily as audio arrives, and a redialled connection replaces
// them wholesale, so the poll tracks streams by channel identity rather than
// participant key. Returns a stop func.
func (r *answerRecorder) forwardInputs(ctx context.Context, out chan<- audio.AudioFrame) func() {
	fwdCtx, cancel := context.WithCancel(ctx)
	started := make(map[<-chan audio.AudioFrame]bool)

	startNew := func() {
		conn := r.conns.Connection()
		if conn == nil {
			return
		}
		for _, ch := range conn.InputStreams() {
			if started[ch] {
				continue
			}
			started[ch] = true
			go func(ch <-chan audio.AudioFrame) {
				for {
					select {
					case frame, ok := <-ch:
						if !ok {
							return
						}
						select {
						case out <- frame:
						case <-fwdCtx.Done():
							return
						}
					case <-fwdCtx.Done():
						return
					}
				}
			}(ch)
		}
	}
	startNew()

	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				startNew()
			case <-fwdCtx.Done():
				return
			}
		}
	}()

	return cancel
}

// ─── room loop ────────────────────────────────────────────────────────────────

// roomLoop drives one interview room's voice side: whenever the controller
// opens the capture gate it records an answer, submits it, waits for the
// analysis, and posts the feedback embed to the text channel the session was
// started from. The loop exits when the room closes or the session completes.
type roomLoop struct {
	bot           *Bot
	room          *app.Room
	conns         connSource
	session       *discordgo.Session
	textChannelID string
	userID        string
}

func (l *roomLoop) run() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Cancel any in-flight recording as soon as the room is gone.
	go func() {
		ticker := time.NewTicker(500 * time.Millisecond)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if !l.alive() {
					cancel()
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	b := l.bot
	b.mu.RLock()
	engine := b.deps.VAD
	b.mu.RUnlock()
	recorder := &answerRecorder{conns: l.conns, vad: engine}

	for {
		if !l.alive() {
			return
		}
		switch l.room.Controller.Snapshot().State {
		case interview.StateComplete, interview.StateSetup:
			return
		}

		if !l.room.Controller.CaptureOpen() {
			time.Sleep(150 * time.Millisecond)
			continue
		}

		if err := l.room.Controller.StartCapture(); err != nil {
			time.Sleep(150 * time.Millisecond)
			continue
		}

		clip, spoke, err := recorder.record(ctx)
		if err != nil {
			if ctx.Err() == nil {
				slog.Error("answer recording failed", "user_id", l.userID, "err", err)
			}
			return
		}

		if err := l.room.Controller.StopCapture(ctx, clip); err != nil {
			slog.Warn("submit capture failed", "user_id", l.userID, "err", err)
			continue
		}

		if !spoke {
			l.post("I didn't hear an answer. Use `/interview retry` to try again, or `/interview next` to skip.")
		}

		l.awaitAndPostFeedback(ctx)
	}
}

// alive reports whether this loop's room is still the user's open room.
func (l *roomLoop) alive() bool {
	l.bot.mu.RLock()
	rooms := l.bot.deps.Rooms
	l.bot.mu.RUnlock()
	current, err := rooms.Get(l.userID)
	return err == nil && current == l.room
}

// awaitAndPostFeedback waits for the analysis to finish and posts the scored
// feedback for the current question.
func (l *roomLoop) awaitAndPostFeedback(ctx context.Context) {
	deadline := time.Now().Add(2 * time.Minute)
	for time.Now().Before(deadline) {
		if ctx.Err() != nil {
			return
		}
		snap := l.room.Controller.Snapshot()
		switch snap.State {
		case interview.StateAnalyzing:
			time.Sleep(200 * time.Millisecond)
			continue
		case interview.StateFeedback:
			result := snap.Results[snap.Index]
			if result.Empty() {
				return
			}
			l.postEmbed(feedbackEmbed(snap.Index, snap.Questions.Len(), snap.CurrentQuestion(), result))
			return
		default:
			return
		}
	}
	l.post("Analysis is taking too long — check `/interview status`.")
}

func (l *roomLoop) post(content string) {
	if _, err := l.session.ChannelMessageSend(l.textChannelID, content); err != nil {
		slog.Warn("post message failed", "channel_id", l.textChannelID, "err", err)
	}
}

func (l *roomLoop) postEmbed(embed *discordgo.MessageEmbed) {
	msg := &discordgo.MessageSend{
		Embeds:     []*discordgo.MessageEmbed{embed},
		Components: feedbackButtons(),
	}
	if _, err := l.session.ChannelMessageSendComplex(l.textChannelID, msg); err != nil {
		slog.Warn("post embed failed", "channel_id", l.textChannelID, "err", err)
	}
}
