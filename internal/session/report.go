package session

import (
	"fmt"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// attempted reports whether a stored result represents an actual answer.
// Empty-capture feedback stores a zero-value result so the UI has something
// to render; the report treats those slots as unattempted.
func attempted(r *interview.AnalysisResult) bool {
	return r != nil && (len(r.Segments) > 0 || len(r.Scores.Turns) > 0 || r.Scores.OverallSummary != "")
}

// BuildReport aggregates a completed session's stored results into a report:
// one entry per answered question in question order, the indices the user
// skipped or left empty, and a counting summary that a [Summariser] may
// replace with coached prose.
func BuildReport(sess interview.GuidedSession) interview.SessionReport {
	report := interview.SessionReport{SessionID: sess.ID}

	for i := 0; i < sess.Questions.Len(); i++ {
		result, ok := sess.Results[i]
		if !ok || !attempted(result) {
			report.Unattempted = append(report.Unattempted, i)
			continue
		}
		report.Entries = append(report.Entries, interview.ReportEntry{
			Index:    i,
			Question: sess.Questions.Questions[i],
			Result:   result,
		})
	}

	report.OverallSummary = fmt.Sprintf("Answered %d of %d questions.",
		len(report.Entries), sess.Questions.Len())
	return report
}
