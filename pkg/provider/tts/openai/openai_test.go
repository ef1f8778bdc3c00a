package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/greenroomhq/greenroom/pkg/provider/tts"
)

func TestNew_RequiresAPIKey(t *testing.T) {
	if _, err := New(""); err == nil {
		t.Error("New(\"\") succeeded, want error")
	}
}

func TestSynthesizeStream_RejectsUnknownVoice(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	textCh := make(chan string)
	close(textCh)
	if _, err := p.SynthesizeStream(context.Background(), textCh, tts.VoiceProfile{ID: "bogus"}); err == nil {
		t.Error("SynthesizeStream() with unknown voice succeeded, want error")
	}
	if _, err := p.SynthesizeStream(context.Background(), textCh, tts.VoiceProfile{}); err == nil {
		t.Error("SynthesizeStream() with empty voice succeeded, want error")
	}
}

func TestSynthesize_SendsRequestAndStreamsAudio(t *testing.T) {
	audio := bytes.Repeat([]byte{0x01, 0x02}, 5000)

	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost || r.URL.Path != "/audio/speech" {
			t.Errorf("request = %s %s, want POST /audio/speech", r.Method, r.URL.Path)
		}
		if auth := r.Header.Get("Authorization"); auth != "Bearer key" {
			t.Errorf("Authorization = %q", auth)
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write(audio)
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL), WithModel("tts-1"), WithFormat("pcm"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	out, err := tts.Synthesize(context.Background(), p, "Tell me about yourself.", tts.VoiceProfile{ID: "nova", SpeedFactor: 1.2})
	if err != nil {
		t.Fatalf("Synthesize() error: %v", err)
	}
	if !bytes.Equal(out, audio) {
		t.Errorf("audio length = %d, want %d", len(out), len(audio))
	}

	if got.Model != "tts-1" {
		t.Errorf("request model = %q, want %q", got.Model, "tts-1")
	}
	if got.Voice != "nova" {
		t.Errorf("request voice = %q, want %q", got.Voice, "nova")
	}
	if got.Input != "Tell me about yourself." {
		t.Errorf("request input = %q", got.Input)
	}
	if got.ResponseFormat != "pcm" {
		t.Errorf("request response_format = %q, want %q", got.ResponseFormat, "pcm")
	}
	if got.Speed != 1.2 {
		t.Errorf("request speed = %v, want 1.2", got.Speed)
	}
}

func TestSynthesizeStream_JoinsFragments(t *testing.T) {
	var got speechRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.Write([]byte{1})
	}))
	defer srv.Close()

	p, err := New("key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	textCh := make(chan string, 2)
	textCh <- "Why do you want "
	textCh <- "this role?"
	close(textCh)

	audioCh, err := p.SynthesizeStream(context.Background(), textCh, tts.VoiceProfile{ID: "alloy"})
	if err != nil {
		t.Fatalf("SynthesizeStream() error: %v", err)
	}
	for range audioCh {
	}

	if got.Input != "Why do you want this role?" {
		t.Errorf("request input = %q, want the joined fragments", got.Input)
	}
}

func TestSynthesizeStream_EmptyInputRejected(t *testing.T) {
	p, err := New("key", WithBaseURL("http://127.0.0.1:0"))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	textCh := make(chan string)
	close(textCh)
	if _, err := p.SynthesizeStream(context.Background(), textCh, tts.VoiceProfile{ID: "alloy"}); err == nil {
		t.Error("SynthesizeStream() with no text succeeded, want error")
	}
}

func TestSynthesize_APIErrorSurfaced(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		json.NewEncoder(w).Encode(map[string]any{
			"error": map[string]any{"message": "invalid api key", "type": "invalid_request_error"},
		})
	}))
	defer srv.Close()

	p, err := New("bad-key", WithBaseURL(srv.URL))
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}

	_, err = tts.Synthesize(context.Background(), p, "hello", tts.VoiceProfile{ID: "echo"})
	if err == nil {
		t.Fatal("Synthesize() with a 401 succeeded, want error")
	}
	if !strings.Contains(err.Error(), "invalid api key") {
		t.Errorf("error %q does not include the API message", err)
	}
}

func TestListVoices(t *testing.T) {
	p, err := New("key")
	if err != nil {
		t.Fatalf("New() error: %v", err)
	}
	voices, err := p.ListVoices(context.Background())
	if err != nil {
		t.Fatalf("ListVoices() error: %v", err)
	}
	if len(voices) == 0 {
		t.Fatal("ListVoices() returned no voices")
	}
	for _, v := range voices {
		if v.Provider != "openai" {
			t.Errorf("voice %q provider = %q, want %q", v.ID, v.Provider, "openai")
		}
		if !validVoice(v.ID) {
			t.Errorf("listed voice %q is not accepted by SynthesizeStream", v.ID)
		}
	}
}
