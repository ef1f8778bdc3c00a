// Package openai provides a TTS provider backed by the OpenAI speech API
// (POST /v1/audio/speech). It implements the tts.Provider interface.
//
// The API takes the full input text in one request, so the provider drains
// the text channel before synthesising; streaming starts on the response
// side, where audio bytes are forwarded chunk by chunk as they arrive.
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/greenroomhq/greenroom/pkg/provider/tts"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4o-mini-tts"

	// pcm yields raw 24kHz 16-bit mono samples, the easiest format to feed
	// into the playback resampler.
	defaultFormat = "pcm"

	chunkSize = 4096
)

// voiceNames is the fixed catalogue the speech API accepts. There is no list
// endpoint; the set is documented, not discoverable.
var voiceNames = []string{
	"alloy", "ash", "coral", "echo", "fable", "nova", "onyx", "sage", "shimmer",
}

// Option is a functional option for configuring the Provider.
type Option func(*Provider)

// WithModel sets the speech model (e.g., "gpt-4o-mini-tts", "tts-1-hd").
func WithModel(model string) Option {
	return func(p *Provider) {
		p.model = model
	}
}

// WithBaseURL overrides the API base URL, for proxies and compatible servers.
func WithBaseURL(baseURL string) Option {
	return func(p *Provider) {
		p.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithFormat sets the response audio format (e.g., "pcm", "mp3", "opus").
func WithFormat(format string) Option {
	return func(p *Provider) {
		p.format = format
	}
}

// WithHTTPClient replaces the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(p *Provider) {
		p.httpClient = client
	}
}

// Provider implements tts.Provider against the OpenAI speech endpoint.
type Provider struct {
	apiKey     string
	baseURL    string
	model      string
	format     string
	httpClient *http.Client
}

var _ tts.Provider = (*Provider)(nil)

// New creates an OpenAI TTS provider. apiKey must be non-empty.
func New(apiKey string, opts ...Option) (*Provider, error) {
	if apiKey == "" {
		return nil, errors.New("openai tts: apiKey must not be empty")
	}
	p := &Provider{
		apiKey:     apiKey,
		baseURL:    defaultBaseURL,
		model:      defaultModel,
		format:     defaultFormat,
		httpClient: &http.Client{Timeout: 2 * time.Minute},
	}
	for _, o := range opts {
		o(p)
	}
	return p, nil
}

// speechRequest is the JSON body for POST /v1/audio/speech.
type speechRequest struct {
	Model          string  `json:"model"`
	Input          string  `json:"input"`
	Voice          string  `json:"voice"`
	ResponseFormat string  `json:"response_format,omitempty"`
	Speed          float64 `json:"speed,omitempty"`
}

// apiError is the error envelope returned on non-2xx responses.
type apiError struct {
	Error struct {
		Message string `json:"message"`
		Type    string `json:"type"`
	} `json:"error"`
}

// SynthesizeStream drains the text channel, issues one synthesis request, and
// returns a channel emitting the response audio in chunks. The audio channel
// closes when the response body is exhausted or ctx is cancelled.
func (p *Provider) SynthesizeStream(ctx context.Context, text <-chan string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if voice.ID == "" {
		return nil, errors.New("openai tts: voice.ID must not be empty")
	}
	if !validVoice(voice.ID) {
		return nil, fmt.Errorf("openai tts: unknown voice %q", voice.ID)
	}

	var input strings.Builder
	for {
		select {
		case fragment, ok := <-text:
			if !ok {
				return p.synthesize(ctx, input.String(), voice)
			}
			input.WriteString(fragment)
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
}

func (p *Provider) synthesize(ctx context.Context, input string, voice tts.VoiceProfile) (<-chan []byte, error) {
	if strings.TrimSpace(input) == "" {
		return nil, errors.New("openai tts: input text is empty")
	}

	body := speechRequest{
		Model:          p.model,
		Input:          input,
		Voice:          voice.ID,
		ResponseFormat: p.format,
	}
	if voice.SpeedFactor != 0 && voice.SpeedFactor != 1.0 {
		body.Speed = voice.SpeedFactor
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("openai tts: encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/audio/speech", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("openai tts: build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+p.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("openai tts: request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		defer resp.Body.Close()
		var ae apiError
		if json.NewDecoder(io.LimitReader(resp.Body, 4096)).Decode(&ae) == nil && ae.Error.Message != "" {
			return nil, fmt.Errorf("openai tts: status %d: %s", resp.StatusCode, ae.Error.Message)
		}
		return nil, fmt.Errorf("openai tts: unexpected status %d", resp.StatusCode)
	}

	audioCh := make(chan []byte, 16)
	go func() {
		defer close(audioCh)
		defer resp.Body.Close()
		for {
			buf := make([]byte, chunkSize)
			n, err := resp.Body.Read(buf)
			if n > 0 {
				select {
				case audioCh <- buf[:n]:
				case <-ctx.Done():
					return
				}
			}
			if err != nil {
				return
			}
		}
	}()
	return audioCh, nil
}

// ListVoices returns the fixed OpenAI voice catalogue.
func (p *Provider) ListVoices(_ context.Context) ([]tts.VoiceProfile, error) {
	profiles := make([]tts.VoiceProfile, 0, len(voiceNames))
	for _, name := range voiceNames {
		profiles = append(profiles, tts.VoiceProfile{
			ID:       name,
			Name:     strings.ToUpper(name[:1]) + name[1:],
			Provider: "openai",
		})
	}
	return profiles, nil
}

func validVoice(id string) bool {
	for _, name := range voiceNames {
		if name == id {
			return true
		}
	}
	return false
}
