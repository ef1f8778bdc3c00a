// Package question manages the ordered set of interview prompts a guided
// session walks through. A set comes from one of three sources: the built-in
// default list, a job-description-adapted list produced by the LLM
// collaborator, or a YAML question file; user appends extend any of them.
//
// The Manager guards the set with a mutex so the HTTP API, the Discord bot,
// and the MCP server can share one instance. Order is stable once handed to a
// session: adaptation replaces the whole set atomically, appends go to the
// end, and nothing ever reorders existing entries.
package question

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/antzucaro/matchr"
	"gopkg.in/yaml.v3"

	"github.com/greenroomhq/greenroom/pkg/interview"
	"github.com/greenroomhq/greenroom/pkg/provider/llm"
)

// defaultQuestions is the built-in interview prompt list.
var defaultQuestions = []string{
	"Tell me about yourself",
	"Why do you want this job?",
	"Why are you leaving your current role?",
	"Tell me about a challenge you overcame",
	"Describe a time you disagreed with a teammate",
	"What are your strengths and weaknesses?",
	"Where do you see yourself in 5 years?",
	"Do you have any questions for us?",
	"What's your biggest professional accomplishment?",
	"How do you handle failure or setbacks?",
}

const (
	// maxCommonOnAdapt caps how many default questions survive an adapt-merge.
	maxCommonOnAdapt = 7

	// maxTailoredOnAdapt caps how many generated questions an adapt-merge keeps.
	maxTailoredOnAdapt = 5

	// dedupeSimilarity is the Jaro-Winkler score above which a tailored
	// question is considered a duplicate of one already in the merged set.
	dedupeSimilarity = 0.90

	// adaptTemperature keeps generation focused; the reply must be strict JSON.
	adaptTemperature = 0.4

	defaultAdaptTimeout = 30 * time.Second
)

const adaptSystemPrompt = `You are an expert interview coach. Given a job description, generate 3-5 role-specific interview questions that hiring managers would ask for this role.

Return ONLY valid JSON with a "questions" array of strings. No markdown or extra text.
Example: {"questions": ["How have you designed APIs at scale?", "Describe your experience with distributed systems."]}`

const adaptUserTemplate = `Job description:
%s

Generate 3-5 role-specific interview questions. Return JSON:
{"questions": ["question1", "question2", ...]}`

var (
	// ErrBlankQuestion is returned by Append for empty or whitespace-only input.
	ErrBlankQuestion = errors.New("question: blank question")

	// ErrEmptyJobDescription is returned by LoadAdapted when no job description
	// text was supplied.
	ErrEmptyJobDescription = errors.New("question: empty job description")

	// ErrOutOfRange is returned by At for an index outside the set.
	ErrOutOfRange = errors.New("question: index out of range")
)

// Manager holds the current question set. Safe for concurrent use.
type Manager struct {
	mu      sync.RWMutex
	set     interview.QuestionSet
	adapter llm.Provider
	timeout time.Duration
	log     *slog.Logger
}

// Option configures a Manager.
type Option func(*Manager)

// WithAdaptTimeout overrides the per-call deadline for LoadAdapted.
func WithAdaptTimeout(d time.Duration) Option {
	return func(m *Manager) {
		if d > 0 {
			m.timeout = d
		}
	}
}

// WithLogger overrides the default slog logger.
func WithLogger(log *slog.Logger) Option {
	return func(m *Manager) {
		if log != nil {
			m.log = log
		}
	}
}

// New returns a Manager preloaded with the default set. adapter may be nil
// when question adaptation is not configured; LoadAdapted then fails cleanly.
func New(adapter llm.Provider, opts ...Option) *Manager {
	m := &Manager{
		adapter: adapter,
		timeout: defaultAdaptTimeout,
		log:     slog.Default(),
	}
	for _, opt := range opts {
		opt(m)
	}
	m.LoadDefault()
	return m
}

// LoadDefault replaces the current set with the built-in list.
func (m *Manager) LoadDefault() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = interview.QuestionSet{
		Questions: append([]string(nil), defaultQuestions...),
		Source:    interview.SourceDefault,
	}
}

// questionFile is the YAML shape of a user-supplied question file.
type questionFile struct {
	Questions []string `yaml:"questions"`
}

// LoadFile replaces the current set with the questions in a YAML file of the
// form "questions: [ ... ]". Blank entries are dropped; a file that yields no
// questions is an error and leaves the current set untouched.
func (m *Manager) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("question: read %s: %w", path, err)
	}

	var qf questionFile
	dec := yaml.NewDecoder(strings.NewReader(string(data)))
	dec.KnownFields(true)
	if err := dec.Decode(&qf); err != nil {
		return fmt.Errorf("question: parse %s: %w", path, err)
	}

	cleaned := make([]string, 0, len(qf.Questions))
	for _, q := range qf.Questions {
		if q = strings.TrimSpace(q); q != "" {
			cleaned = append(cleaned, q)
		}
	}
	if len(cleaned) == 0 {
		return fmt.Errorf("question: %s contains no questions", path)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	m.set = interview.QuestionSet{Questions: cleaned, Source: interview.SourceDefault}
	return nil
}

// LoadAdapted asks the LLM collaborator for role-specific questions tailored
// to jobDescription and replaces the current set with a merge of up to
// 7 default questions followed by up to 5 tailored ones. Tailored questions
// that near-duplicate an already-merged entry are dropped. On any failure the
// current set is left untouched and the error is returned.
func (m *Manager) LoadAdapted(ctx context.Context, jobDescription string) error {
	jobDescription = strings.TrimSpace(jobDescription)
	if jobDescription == "" {
		return ErrEmptyJobDescription
	}
	if m.adapter == nil {
		return errors.New("question: no adaptation provider configured")
	}

	callCtx, cancel := context.WithTimeout(ctx, m.timeout)
	defer cancel()

	resp, err := m.adapter.Complete(callCtx, llm.CompletionRequest{
		SystemPrompt: adaptSystemPrompt,
		Messages: []llm.Message{
			{Role: "user", Content: fmt.Sprintf(adaptUserTemplate, jobDescription)},
		},
		Temperature: adaptTemperature,
	})
	if err != nil {
		return fmt.Errorf("question: adapt: %w", err)
	}

	tailored := parseQuestions(resp.Content)
	if len(tailored) == 0 {
		return errors.New("question: adapt reply contained no usable questions")
	}

	merged := mergeAdapted(defaultQuestions, tailored)

	m.mu.Lock()
	m.set = interview.QuestionSet{Questions: merged, Source: interview.SourceAdapted}
	m.mu.Unlock()

	m.log.Info("question set adapted",
		"tailored", len(tailored),
		"total", len(merged),
	)
	return nil
}

// Append adds q to the end of the current set. Whitespace-only input is
// rejected with ErrBlankQuestion.
func (m *Manager) Append(q string) error {
	q = strings.TrimSpace(q)
	if q == "" {
		return ErrBlankQuestion
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.set.Questions = append(m.set.Questions, q)
	return nil
}

// At returns the question at index i.
func (m *Manager) At(i int) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if i < 0 || i >= len(m.set.Questions) {
		return "", fmt.Errorf("%w: %d of %d", ErrOutOfRange, i, len(m.set.Questions))
	}
	return m.set.Questions[i], nil
}

// Len returns the number of questions in the current set.
func (m *Manager) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.set.Questions)
}

// Set returns an independent snapshot of the current set. Sessions start from
// a snapshot so later edits never reorder a running interview.
func (m *Manager) Set() interview.QuestionSet {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.set.Clone()
}

// mergeAdapted builds the adapt-merge: up to maxCommonOnAdapt defaults, then
// up to maxTailoredOnAdapt tailored questions that do not near-duplicate
// anything already merged.
func mergeAdapted(defaults, tailored []string) []string {
	common := min(maxCommonOnAdapt, len(defaults))
	merged := append([]string(nil), defaults[:common]...)

	kept := 0
	for _, q := range tailored {
		if kept >= maxTailoredOnAdapt {
			break
		}
		if isNearDuplicate(q, merged) {
			continue
		}
		merged = append(merged, q)
		kept++
	}
	return merged
}

// isNearDuplicate reports whether candidate is too similar to any existing
// question under case-insensitive Jaro-Winkler comparison.
func isNearDuplicate(candidate string, existing []string) bool {
	c := strings.ToLower(candidate)
	for _, e := range existing {
		if matchr.JaroWinkler(c, strings.ToLower(e), true) >= dedupeSimilarity {
			return true
		}
	}
	return false
}

// adaptReply is the JSON shape the adaptation prompt demands.
type adaptReply struct {
	Questions []string `json:"questions"`
}

// parseQuestions extracts the questions array from an LLM reply, tolerating
// markdown fences and prose around the JSON object. Blank entries are dropped.
// Returns nil when no usable payload is found.
func parseQuestions(text string) []string {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil
	}

	// Strip a markdown code fence if present.
	if i := strings.Index(text, "```json"); i >= 0 {
		text = text[i+len("```json"):]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
		text = strings.TrimSpace(text)
	} else if i := strings.Index(text, "```"); i >= 0 {
		text = text[i+3:]
		if j := strings.Index(text, "```"); j >= 0 {
			text = text[:j]
		}
		text = strings.TrimSpace(text)
	}

	var reply adaptReply
	if err := json.Unmarshal([]byte(text), &reply); err != nil {
		// Fall back to the first balanced object in the text.
		obj := firstObject(text)
		if obj == "" {
			return nil
		}
		if err := json.Unmarshal([]byte(obj), &reply); err != nil {
			return nil
		}
	}

	out := make([]string, 0, len(reply.Questions))
	for _, q := range reply.Questions {
		if q = strings.TrimSpace(q); q != "" {
			out = append(out, q)
		}
	}
	if len(out) == 0 {
		return nil
	}
	return out
}

// firstObject returns the first balanced {...} in text, honouring JSON string
// literals, or "" when none exists.
func firstObject(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		c := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case c == '\\':
				escaped = true
			case c == '"':
				inString = false
			}
			continue
		}
		switch c {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
