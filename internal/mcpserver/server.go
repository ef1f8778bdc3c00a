// Package mcpserver exposes greenroom's text path over the Model Context
// Protocol: an editor agent can paste a rehearsal transcript and get it
// scored against the communication rubric without going through audio
// capture. The server speaks MCP over stdio (started with the -mcp flag)
// using the official Go SDK.
//
// Because there is no audio, there are no timestamps: pace always comes back
// unknown, and filler/pause counts rely on the scorer alone.
package mcpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/greenroomhq/greenroom/internal/analysis"
	"github.com/greenroomhq/greenroom/internal/question"
	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

const (
	serverName    = "greenroom"
	serverVersion = "1.0.0"
)

// defaultSessionLimit caps list_sessions when the caller gives no limit.
const defaultSessionLimit = 10

// Analyzer is the text-path slice of the analysis pipeline the MCP tools
// need. Implemented by [analysis.Analyzer] and by the app facade.
type Analyzer interface {
	ScoreTranscript(ctx context.Context, text string, actx analysis.Context) (*interview.AnalysisResult, error)
}

// Deps are the collaborators behind the MCP tools. Analyzer and Questions are
// required; Archive may be nil, in which case the history tool is not
// registered.
type Deps struct {
	Analyzer  Analyzer
	Questions *question.Manager
	Archive   history.Archive
}

// server holds the tool handlers. The SDK server owns transport and protocol;
// this struct only carries the dependencies into the handlers.
type server struct {
	deps Deps
}

// NewServer builds the MCP server with all tools registered.
func NewServer(deps Deps) (*mcpsdk.Server, error) {
	if deps.Analyzer == nil {
		return nil, errors.New("mcpserver: an analyzer is required")
	}
	if deps.Questions == nil {
		return nil, errors.New("mcpserver: a question manager is required")
	}

	s := &server{deps: deps}
	srv := mcpsdk.NewServer(&mcpsdk.Implementation{Name: serverName, Version: serverVersion}, nil)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "score_transcript",
		Description: "Score a pasted interview answer against the communication rubric " +
			"(direct answer, specific example, quantified impact, trade-offs, crisp takeaway). " +
			"Plain text has no timing, so speaking pace is reported as unknown.",
	}, s.scoreTranscript)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name:        "list_questions",
		Description: "List the current interview question set in order.",
	}, s.listQuestions)

	mcpsdk.AddTool(srv, &mcpsdk.Tool{
		Name: "adapt_questions",
		Description: "Tailor the question set to a job description. Replaces the current set " +
			"with default questions merged with role-specific ones and returns the new set.",
	}, s.adaptQuestions)

	if deps.Archive != nil {
		mcpsdk.AddTool(srv, &mcpsdk.Tool{
			Name:        "list_sessions",
			Description: "List recently completed practice sessions, newest first.",
		}, s.listSessions)
	}

	return srv, nil
}

// Serve runs the MCP server over stdio until ctx is cancelled or the client
// disconnects.
func Serve(ctx context.Context, deps Deps) error {
	srv, err := NewServer(deps)
	if err != nil {
		return err
	}
	return srv.Run(ctx, &mcpsdk.StdioTransport{})
}

// ─── Tool inputs ─────────────────────────────────────────────────────────────

type scoreTranscriptInput struct {
	// Transcript is the answer text to score. Required.
	Transcript string `json:"transcript"`

	// Question is the interview question the transcript answers, if known.
	Question string `json:"question,omitempty"`

	// JobDescription enables relevance-to-role judging when non-empty.
	JobDescription string `json:"job_description,omitempty"`

	// IncludeRewrites also requests tightened/expanded rewrite suggestions.
	IncludeRewrites bool `json:"include_rewrites,omitempty"`
}

type listQuestionsInput struct{}

type adaptQuestionsInput struct {
	// JobDescription is the role text to tailor the set to. Required.
	JobDescription string `json:"job_description"`
}

type listSessionsInput struct {
	// UserID filters to one user's sessions; empty lists across all users.
	UserID string `json:"user_id,omitempty"`

	// Limit caps the number of sessions returned. Defaults to 10.
	Limit int `json:"limit,omitempty"`
}

// ─── Tool handlers ───────────────────────────────────────────────────────────

func (s *server) scoreTranscript(ctx context.Context, _ *mcpsdk.CallToolRequest, in scoreTranscriptInput) (*mcpsdk.CallToolResult, any, error) {
	text := strings.TrimSpace(in.Transcript)
	if text == "" {
		return nil, nil, errors.New("transcript must not be empty")
	}

	result, err := s.deps.Analyzer.ScoreTranscript(ctx, text, analysis.Context{
		QuestionText:    in.Question,
		JobDescription:  in.JobDescription,
		IncludeRewrites: in.IncludeRewrites,
		Mode:            analysis.ModeGuided,
	})
	if err != nil {
		return nil, nil, fmt.Errorf("score transcript: %w", err)
	}
	return jsonResult(result)
}

func (s *server) listQuestions(_ context.Context, _ *mcpsdk.CallToolRequest, _ listQuestionsInput) (*mcpsdk.CallToolResult, any, error) {
	return jsonResult(s.deps.Questions.Set())
}

func (s *server) adaptQuestions(ctx context.Context, _ *mcpsdk.CallToolRequest, in adaptQuestionsInput) (*mcpsdk.CallToolResult, any, error) {
	if err := s.deps.Questions.LoadAdapted(ctx, in.JobDescription); err != nil {
		return nil, nil, fmt.Errorf("adapt questions: %w", err)
	}
	return jsonResult(s.deps.Questions.Set())
}

func (s *server) listSessions(ctx context.Context, _ *mcpsdk.CallToolRequest, in listSessionsInput) (*mcpsdk.CallToolResult, any, error) {
	limit := in.Limit
	if limit <= 0 {
		limit = defaultSessionLimit
	}
	recs, err := s.deps.Archive.ListSessions(ctx, in.UserID, limit)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	return jsonResult(recs)
}

// jsonResult renders v as an indented-JSON text block. The tools return their
// payloads as text rather than structured content so custom marshaling (e.g.
// tri-valued criteria encoding to true/false/null) survives intact.
func jsonResult(v any) (*mcpsdk.CallToolResult, any, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, nil, fmt.Errorf("encode result: %w", err)
	}
	return &mcpsdk.CallToolResult{
		Content: []mcpsdk.Content{&mcpsdk.TextContent{Text: string(data)}},
	}, nil, nil
}
