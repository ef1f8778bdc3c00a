package analysis

import (
	"fmt"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// scoreSystemPrompt instructs the scorer. The JSON-only instruction is load
// bearing: local models happily wrap payloads in markdown fences or prose, and
// the extractor in parse.go exists for exactly the replies that ignore it.
const scoreSystemPrompt = `You are an expert interview coach. Score the candidate's answer using this rubric. Return ONLY valid JSON, no markdown or extra text.

Rubric:
- direct_answer_10s: Did they answer the question directly in the first ~10 seconds? (met: true/false, note: string)
- specific_example: Did they give a specific, named example? (met: true/false, note: string)
- quantified_impact: Did they quantify impact with numbers or metrics? (met: true/false, note: string)
- tradeoffs_mentioned: Did they acknowledge tradeoffs or alternatives? (met: true/false, note: string)
- crisp_takeaway: Did they close with a crisp takeaway? (met: true/false, note: string)
- filler_count: Count of "um", "like", and similar filler words
- long_pauses: Estimated count of long mid-answer pauses (0-5)
- trailing_sentences: Did they trail off or ramble? (met: true/false, note: string)
- relevance_to_role: Does the answer demonstrate fit for the described role? Only when a job description is given. (met: true/false, note: string)
- question_type: One of: Behavioral, Product-sense, Technical, Estimation, Unknown
- actionable_feedback: 1-2 sentences on how to improve this answer as a job seeker`

// scoreUserTemplate is the per-turn user message. The reply must echo the
// exact field names; missing fields are coerced to neutral defaults.
const scoreUserTemplate = `Score this spoken interview answer (interviewer question not part of the recording).

%s%sAnswer:
%s

Return JSON in this exact shape:
{
  "direct_answer_10s": { "met": true, "note": "..." },
  "specific_example": { "met": true, "note": "..." },
  "quantified_impact": { "met": true, "note": "..." },
  "tradeoffs_mentioned": { "met": true, "note": "..." },
  "crisp_takeaway": { "met": true, "note": "..." },
  "filler_count": 0,
  "long_pauses": 0,
  "trailing_sentences": { "met": false, "note": "..." },
  "relevance_to_role": { "met": true, "note": "..." },
  "question_type": "...",
  "actionable_feedback": "..."
}`

// summarySystemPrompt drives the whole-session overall summary.
const summarySystemPrompt = `You are an expert interview coach. Given a candidate's spoken answers from one practice recording, write 2-3 sentences on their overall performance: biggest strength, biggest gap, one habit to change. Plain text only, no JSON, no markdown.`

// rewriteSystemPrompt drives answer rewriting. Rewrites must be genuinely
// better answers, not rewordings.
const rewriteSystemPrompt = `You are an expert interview coach. Your job is to help job seekers give BETTER interview answers - not just reword. Suggest professional, wholesome alternatives that show enthusiasm, fit, and value. Avoid generic rephrasing. Return ONLY valid JSON, no markdown or extra text.`

// rewriteUserTemplate asks for both rewrite variants of one answer.
const rewriteUserTemplate = `Full interview transcript (candidate answers only):
%s

The answer to improve (turn %d):
%s

Inferred question type: %s

Provide a BETTER professional answer the job seeker could give. Not a reword - a genuinely stronger interview response.

1. tight_45s: A ~45-second punchy version (direct, professional, confident)
2. expanded_2min: A ~2-minute version with more detail and structure

Return JSON:
{
  "tight_45s": "...",
  "expanded_2min": "..."
}`

// scoreUserPrompt renders the scoring user message for one turn.
func scoreUserPrompt(t interview.Turn) string {
	var question, role string
	if t.QuestionText != "" {
		question = "Question asked:\n" + t.QuestionText + "\n\n"
	}
	if t.JobDescription != "" {
		role = "Job description (for relevance_to_role):\n" + t.JobDescription + "\n\n"
	}
	return fmt.Sprintf(scoreUserTemplate, question, role, t.Text())
}

// summaryUserPrompt renders the overall-summary user message from all turns.
func summaryUserPrompt(turns []interview.Turn) string {
	var sb strings.Builder
	sb.WriteString("Answers:\n")
	for i, t := range turns {
		fmt.Fprintf(&sb, "Turn %d: %s\n", i, t.Text())
	}
	return sb.String()
}

// rewriteUserPrompt renders the rewrite user message for one scored turn.
func rewriteUserPrompt(transcript string, score interview.TurnScore) string {
	return fmt.Sprintf(rewriteUserTemplate, transcript, score.TurnIndex, score.Text, score.QuestionType)
}
