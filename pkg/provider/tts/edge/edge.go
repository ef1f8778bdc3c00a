// Package edge provides a TTS provider backed by the Microsoft Edge
// read-aloud service, the same neural voices the Edge browser uses. The
// service requires no API key, which makes it the default interviewer voice
// backend for local installs.
//
// Synthesis runs over a WebSocket: a speech.config message fixes the output
// format, then each text fragment is sent as an SSML document and the service
// streams back binary audio frames until it signals turn.end. It implements
// the tts.Provider interface.
package edge

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"

	"github.com/greenroomhq/greenroom/pkg/provider/tts"
)

const (
	// trustedClientToken is the fixed token the Edge browser embeds; the
	// read-aloud endpoints reject requests without it.
	trustedClientToken = "6A5AA1D4EAFF4E9FB37E23D68491D6F4"

	wsEndpoint     = "wss://speech.platform.bing.com/consumer/speech/synthesize/readaloud/edge/v1"
	voicesEndpoint = "https://speech.platform.bing.com/consumer/speech/synthesize/readaloud/voices/list"

	// chromiumVersion is reported in the Sec-MS-GEC-Version header; the
	// service only checks the shape, not the exact build.
	chromiumVersion = "130.0.2849.68"

	// OutputFormatMP3 is the default output: MP3 frames suitable for direct
	// download or browser playback.
	OutputFormatMP3 = "audio-24khz-48kbitrate-mono-mp3"

	// OutputFormatPCM is raw 24 kHz 16-bit mono PCM, the format voice-channel
	// playback uses before resampling to the platform rate.
	OutputFormatPCM = "raw-24khz-16bit-mono-pcm"
)

// PCMSampleRate is the sample rate of chunks produced under OutputFormatPCM.
const PCMSampleRate = 24000

// Compile-time assertion that Provider implements tts.Provider.
var _ tts.Provider = (*Provider)(nil)

// Option is a functional option for configuring the Edge Provider.
type Option func(*Provider)

// WithOutputFormat sets the audio output format (e.g., OutputFormatMP3,
// OutputFormatPCM). Defaults to OutputFormatMP3.
func WithOutputFormat(format string) Option {
	return func(p *Provider) {
		p.outputFormat = format
	}
}

// Provider implements tts.Provider backed by the Edge read-aloud service.
type Provider struct {
	outputFormat string
	httpClient   *http.Client
}

// New creates a new Edge Provider. No credentials are required.
func New(opts ...Option) (*Provider, error) {
	p := &Provider{
		outputFormat: OutputFormatMP3,
		httpClient:   &http.Client{Timeout: 15 * time.Second},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// OutputFormat returns the configured audio output format.
func (p *Provider) OutputFormat() string { return p.outputFormat }

// SynthesizeStream synthesises each fragment arriving on text and emits the
// resulting audio chunks on the returned channel. Each fragment is one
// request turn on its own WebSocket connection; the service closes turns
// after a single SSML document, so a fresh dial per fragment is the reliable
// mode. A spoken interview question is normally a single fragment.
//
// The returned audio channel is closed when the text channel closes and all
// audio has been forwarded, or when ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("edge: voice.ID must not be empty")
	}

	audioCh := make(chan []byte, 256)

	go func() {
		defer close(audioCh)
		for {
			select {
			case fragment, ok := <-text:
				if !ok {
					return
				}
				if strings.TrimSpace(fragment) == "" {
					continue
				}
				if err := p.synthesizeTurn(ctx, fragment, voice, audioCh); err != nil {
					if ctx.Err() == nil {
						slog.Error("edge: synthesis turn failed", "voice", voice.ID, "error", err)
					}
					return
				}
			case <-ctx.Done():
				return
			}
		}
	}()

	return audioCh, nil
}

// synthesizeTurn performs one complete request turn: dial, configure, send
// SSML, forward binary audio frames until the service signals turn.end.
func (p *Provider) synthesizeTurn(ctx context.Context, fragment string, voice tts.VoiceProfile, audioCh chan<- []byte) error {
	conn, _, err := websocket.Dial(ctx, requestURL(time.Now()), &websocket.DialOptions{
		HTTPHeader: http.Header{
			"Pragma":     []string{"no-cache"},
			"Cache-Control": []string{"no-cache"},
			"Origin":     []string{"chrome-extension://jdiccldimpdaibmpdkjnbmckianbfold"},
			"User-Agent": []string{"Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/" + chromiumVersion[:strings.Index(chromiumVersion, ".")] + ".0.0.0 Safari/537.36"},
		},
	})
	if err != nil {
		return fmt.Errorf("edge: dial: %w", err)
	}
	defer conn.Close(websocket.StatusNormalClosure, "done")

	// Audio frames can be large; the default read limit is 32 KiB.
	conn.SetReadLimit(1 << 20)

	if err := conn.Write(ctx, websocket.MessageText, speechConfigMessage(p.outputFormat, time.Now())); err != nil {
		return fmt.Errorf("edge: send speech.config: %w", err)
	}

	requestID := strings.ReplaceAll(uuid.NewString(), "-", "")
	ssml := buildSSML(fragment, voice)
	if err := conn.Write(ctx, websocket.MessageText, ssmlMessage(requestID, ssml, time.Now())); err != nil {
		return fmt.Errorf("edge: send ssml: %w", err)
	}

	for {
		msgType, msg, err := conn.Read(ctx)
		if err != nil {
			return fmt.Errorf("edge: read: %w", err)
		}

		switch msgType {
		case websocket.MessageText:
			if bytes.Contains(msg, []byte("Path:turn.end")) {
				return nil
			}
		case websocket.MessageBinary:
			payload, ok := audioPayload(msg)
			if !ok {
				continue
			}
			select {
			case audioCh <- payload:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
	}
}

// ---- ListVoices ----

// edgeVoice is a single entry from the read-aloud voice list.
type edgeVoice struct {
	ShortName    string `json:"ShortName"`
	FriendlyName string `json:"FriendlyName"`
	Gender       string `json:"Gender"`
	Locale       string `json:"Locale"`
}

// ListVoices returns the full voice catalogue of the read-aloud service.
func (p *Provider) ListVoices(ctx context.Context) ([]tts.VoiceProfile, error) {
	url := voicesEndpoint + "?trustedclienttoken=" + trustedClientToken
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("edge: list voices: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("edge: list voices HTTP: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("edge: list voices: unexpected status %d", resp.StatusCode)
	}

	var voices []edgeVoice
	if err := json.NewDecoder(resp.Body).Decode(&voices); err != nil {
		return nil, fmt.Errorf("edge: list voices decode: %w", err)
	}

	profiles := make([]tts.VoiceProfile, 0, len(voices))
	for _, v := range voices {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       v.ShortName,
			Name:     v.FriendlyName,
			Provider: "edge",
			Metadata: map[string]string{
				"gender": v.Gender,
				"locale": v.Locale,
			},
		})
	}
	return profiles, nil
}

// DefaultVoices returns the curated interviewer voice set offered in the
// product UI. The first entry is the default.
func DefaultVoices() []tts.VoiceProfile {
	return []tts.VoiceProfile{
		{ID: "en-US-JennyNeural", Name: "Jenny (US, natural)", Provider: "edge"},
		{ID: "en-US-GuyNeural", Name: "Guy (US, natural)", Provider: "edge"},
		{ID: "en-US-SaraNeural", Name: "Sara (US, calm)", Provider: "edge"},
		{ID: "en-GB-SoniaNeural", Name: "Sonia (UK, natural)", Provider: "edge"},
	}
}

// ---- helpers ----

// requestURL builds the WebSocket URL including the Sec-MS-GEC access token
// derived from the current clock.
func requestURL(now time.Time) string {
	return fmt.Sprintf("%s?TrustedClientToken=%s&Sec-MS-GEC=%s&Sec-MS-GEC-Version=1-%s",
		wsEndpoint, trustedClientToken, secMSGEC(now), chromiumVersion)
}

// secMSGEC computes the rolling access token the service checks: the SHA-256
// of the current Windows file time, rounded down to the latest five-minute
// boundary, concatenated with the trusted client token, as uppercase hex.
func secMSGEC(now time.Time) string {
	// Seconds between the Windows epoch (1601-01-01) and the Unix epoch.
	const epochDelta = 11_644_473_600

	ticks := now.UTC().Unix() + epochDelta
	ticks -= ticks % 300
	// Windows file time counts 100 ns intervals.
	sum := sha256.Sum256(fmt.Appendf(nil, "%d%s", ticks*10_000_000, trustedClientToken))
	return strings.ToUpper(hex.EncodeToString(sum[:]))
}

// speechConfigMessage builds the speech.config header+body frame that fixes
// the output format for the connection.
func speechConfigMessage(outputFormat string, now time.Time) []byte {
	body := fmt.Sprintf(`{"context":{"synthesis":{"audio":{"metadataoptions":{"sentenceBoundaryEnabled":"false","wordBoundaryEnabled":"false"},"outputFormat":%q}}}}`, outputFormat)
	return fmt.Appendf(nil, "X-Timestamp:%s\r\nContent-Type:application/json; charset=utf-8\r\nPath:speech.config\r\n\r\n%s",
		timestamp(now), body)
}

// ssmlMessage builds the ssml header+body frame carrying one request turn.
func ssmlMessage(requestID, ssml string, now time.Time) []byte {
	return fmt.Appendf(nil, "X-RequestId:%s\r\nContent-Type:application/ssml+xml\r\nX-Timestamp:%sZ\r\nPath:ssml\r\n\r\n%s",
		requestID, timestamp(now), ssml)
}

// buildSSML renders the SSML document for one fragment, applying the voice's
// pitch and rate adjustments via a prosody element.
func buildSSML(text string, voice tts.VoiceProfile) string {
	ratePct := 0
	if voice.SpeedFactor > 0 {
		ratePct = int((voice.SpeedFactor - 1) * 100)
	}
	pitchHz := int(voice.PitchShift)

	return fmt.Sprintf(
		`<speak version='1.0' xmlns='http://www.w3.org/2001/10/synthesis' xml:lang='en-US'><voice name='%s'><prosody pitch='%+dHz' rate='%+d%%' volume='+0%%'>%s</prosody></voice></speak>`,
		voice.ID, pitchHz, ratePct, escapeText(text))
}

// escapeText escapes the XML special characters in a text fragment.
func escapeText(s string) string {
	return xmlEscaper.Replace(s)
}

var xmlEscaper = strings.NewReplacer(
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
	"'", "&apos;",
	`"`, "&quot;",
)

// timestamp renders the JavaScript-style date string the service expects in
// X-Timestamp headers.
func timestamp(now time.Time) string {
	return now.UTC().Format("Mon Jan 02 2006 15:04:05 GMT+0000 (Coordinated Universal Time)")
}

// audioPayload extracts the audio bytes from a binary frame. The frame opens
// with a big-endian uint16 header length, followed by the header text and
// then the payload; only frames whose header carries Path:audio contain
// playable data.
func audioPayload(msg []byte) ([]byte, bool) {
	if len(msg) < 2 {
		return nil, false
	}
	headerLen := int(msg[0])<<8 | int(msg[1])
	if len(msg) < 2+headerLen {
		return nil, false
	}
	header := msg[2 : 2+headerLen]
	if !bytes.Contains(header, []byte("Path:audio")) {
		return nil, false
	}
	payload := msg[2+headerLen:]
	if len(payload) == 0 {
		return nil, false
	}
	return payload, true
}
