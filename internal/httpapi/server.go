// Package httpapi is the HTTP surface of the greenroom server.
//
// It exposes the analysis pipeline and question manager to browser and CLI
// clients:
//
//	POST /api/analyze         — multipart audio upload → full analysis JSON
//	GET  /api/questions       — current interview question set
//	POST /api/questions/adapt — tailor the set to a job description
//	POST /api/tts             — synthesise a question as an audio clip
//	GET  /api/tts/voices      — available TTS voices
//	GET  /api/check           — dependency status (same checks as /readyz)
//
// Liveness, readiness, and metrics endpoints are mounted by the application
// wiring alongside these routes.
package httpapi

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/internal/health"
	"github.com/greenroomhq/greenroom/internal/observe"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/pkg/audio"
	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/tts"
)

// defaultMaxUploadBytes bounds one audio upload (25 MiB ≈ 20+ minutes of
// compressed speech, far beyond any single answer).
const defaultMaxUploadBytes = 25 << 20

// Analyzer is the slice of the analysis pipeline the HTTP surface needs.
type Analyzer interface {
	Analyze(ctx context.Context, clip audio.Clip, actx analysis.Context) (*interview.AnalysisResult, error)
}

// Server holds the handlers of the HTTP API. Construct with [NewServer] and
// mount with [Server.Register].
type Server struct {
	analyzer  Analyzer
	questions *question.Manager
	tts       tts.Provider
	voiceID   string
	health    *health.Handler
	metrics   *observe.Metrics
	log       *slog.Logger
	maxUpload int64
}

// Option customises a Server.
type Option func(*Server)

// WithTTS enables the /api/tts endpoints. voiceID is the default voice used
// when a request does not name one.
func WithTTS(p tts.Provider, voiceID string) Option {
	return func(s *Server) {
		s.tts = p
		s.voiceID = voiceID
	}
}

// WithHealth backs /api/check with the given readiness checks.
func WithHealth(h *health.Handler) Option {
	return func(s *Server) { s.health = h }
}

// WithMetrics sets the metrics instance used by the request middleware.
func WithMetrics(m *observe.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

// WithLogger sets the structured logger. Defaults to slog.Default.
func WithLogger(log *slog.Logger) Option {
	return func(s *Server) { s.log = log }
}

// WithMaxUploadBytes overrides the upload size limit.
func WithMaxUploadBytes(n int64) Option {
	return func(s *Server) {
		if n > 0 {
			s.maxUpload = n
		}
	}
}

// NewServer creates the HTTP API over the given pipeline and question manager.
func NewServer(analyzer Analyzer, questions *question.Manager, opts ...Option) *Server {
	s := &Server{
		analyzer:  analyzer,
		questions: questions,
		log:       slog.Default(),
		maxUpload: defaultMaxUploadBytes,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Register adds all API routes to mux.
func (s *Server) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /api/analyze", s.handleAnalyze)
	mux.HandleFunc("GET /api/questions", s.handleQuestions)
	mux.HandleFunc("POST /api/questions/adapt", s.handleAdaptQuestions)
	mux.HandleFunc("POST /api/tts", s.handleTTS)
	mux.HandleFunc("GET /api/tts/voices", s.handleVoices)
	mux.HandleFunc("GET /api/check", s.handleCheck)
}

// Handler returns the full API as a single handler, wrapped in the
// observability middleware when metrics are configured.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	s.Register(mux)
	if s.metrics != nil {
		return observe.Middleware(s.metrics)(mux)
	}
	return mux
}

// handleAnalyze accepts a multipart form with an "audio" file part plus
// optional "question_text", "job_description", "mode", and "include_rewrites"
// fields, runs the full analysis pipeline, and returns the result as JSON.
func (s *Server) handleAnalyze(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUpload)
	if err := r.ParseMultipartForm(s.maxUpload); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form: "+err.Error())
		return
	}

	file, header, err := r.FormFile("audio")
	if err != nil {
		writeError(w, http.StatusBadRequest, `missing "audio" file part`)
		return
	}
	defer file.Close()

	data, err := io.ReadAll(file)
	if err != nil {
		writeError(w, http.StatusBadRequest, "read upload: "+err.Error())
		return
	}

	clip := audio.Clip{Data: data, Filename: header.Filename}
	if err := audio.ValidateUpload(clip); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	actx := analysis.Context{
		QuestionText:    r.FormValue("question_text"),
		JobDescription:  r.FormValue("job_description"),
		IncludeRewrites: r.FormValue("include_rewrites") != "false",
	}
	switch r.FormValue("mode") {
	case "guided":
		actx.Mode = analysis.ModeGuided
	case "freeform", "":
		actx.Mode = analysis.ModeFreeform
	default:
		writeError(w, http.StatusBadRequest, `mode must be "guided" or "freeform"`)
		return
	}

	result, err := s.analyzer.Analyze(r.Context(), clip, actx)
	switch {
	case errors.Is(err, analysis.ErrEmptyClip):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case analysis.IsTranscriptionError(err):
		s.log.Error("transcription failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusBadGateway, "transcription failed: "+err.Error())
		return
	case err != nil:
		s.log.Error("analysis failed", "filename", header.Filename, "error", err)
		writeError(w, http.StatusInternalServerError, "analysis failed")
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// handleQuestions returns the current question set.
func (s *Server) handleQuestions(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, s.questions.Set())
}

type adaptRequest struct {
	JobDescription string `json:"job_description"`
}

// handleAdaptQuestions tailors the question set to a job description and
// returns the merged set.
func (s *Server) handleAdaptQuestions(w http.ResponseWriter, r *http.Request) {
	var req adaptRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	err := s.questions.LoadAdapted(r.Context(), req.JobDescription)
	switch {
	case errors.Is(err, question.ErrEmptyJobDescription):
		writeError(w, http.StatusBadRequest, err.Error())
		return
	case err != nil:
		s.log.Error("question adaptation failed", "error", err)
		writeError(w, http.StatusBadGateway, "question adaptation failed: "+err.Error())
		return
	}

	writeJSON(w, http.StatusOK, s.questions.Set())
}

type ttsRequest struct {
	Text    string `json:"text"`
	VoiceID string `json:"voice_id"`
}

// handleTTS synthesises the given text and returns the audio bytes.
func (s *Server) handleTTS(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusNotImplemented, "no TTS provider configured")
		return
	}

	var req ttsRequest
	if err := decodeJSON(r, &req); err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	if req.Text == "" {
		writeError(w, http.StatusBadRequest, "text is required")
		return
	}

	voice := tts.VoiceProfile{ID: req.VoiceID}
	if voice.ID == "" {
		voice.ID = s.voiceID
	}

	data, err := tts.Synthesize(r.Context(), s.tts, req.Text, voice)
	if err != nil {
		s.log.Error("synthesis failed", "voice", voice.ID, "error", err)
		writeError(w, http.StatusBadGateway, "synthesis failed: "+err.Error())
		return
	}

	w.Header().Set("Content-Type", "audio/mpeg")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(data)
}

// handleVoices lists the TTS provider's voice catalogue.
func (s *Server) handleVoices(w http.ResponseWriter, r *http.Request) {
	if s.tts == nil {
		writeError(w, http.StatusNotImplemented, "no TTS provider configured")
		return
	}

	voices, err := s.tts.ListVoices(r.Context())
	if err != nil {
		writeError(w, http.StatusBadGateway, "list voices: "+err.Error())
		return
	}
	writeJSON(w, http.StatusOK, voices)
}

// handleCheck reports dependency status using the same checks as /readyz.
func (s *Server) handleCheck(w http.ResponseWriter, r *http.Request) {
	if s.health == nil {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
		return
	}
	s.health.Readyz(w, r)
}
