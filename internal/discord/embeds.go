package discord

import (
	"fmt"
	"strings"

	"github.com/bwmarrin/discordgo"

	"github.com/greenroomhq/greenroom/pkg/history"
	"github.com/greenroomhq/greenroom/pkg/interview"
)

const (
	colorQuestion = 0x5865F2 // blurple
	colorFeedback = 0x57F287 // green
	colorReport   = 0xFEE75C // yellow
	colorNeutral  = 0x99AAB5 // greyple
)

// maxFieldLen keeps embed fields under Discord's 1024-char field limit.
const maxFieldLen = 1000

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-1] + "…"
}

// questionEmbed announces the current question.
func questionEmbed(index, total int, text string) *discordgo.MessageEmbed {
	return &discordgo.MessageEmbed{
		Title:       fmt.Sprintf("Question %d of %d", index+1, total),
		Description: text,
		Color:       colorQuestion,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "Answer out loud when the question finishes. I'll stop recording after a pause.",
		},
	}
}

// criterionMark renders a tri-valued rubric judgement.
func criterionMark(c interview.Criterion) string {
	switch {
	case !c.Met.Known():
		return "➖"
	case c.Met.Met():
		return "✅"
	default:
		return "❌"
	}
}

// criteriaField lists the five rubric criteria with their marks.
func criteriaField(c interview.CriteriaSet) string {
	lines := []string{
		criterionMark(c.DirectAnswer) + " Direct answer in the first 10 seconds",
		criterionMark(c.SpecificExample) + " Specific, named example",
		criterionMark(c.QuantifiedImpact) + " Quantified impact",
		criterionMark(c.Tradeoffs) + " Trade-offs acknowledged",
		criterionMark(c.CrispTakeaway) + " Crisp takeaway",
	}
	return strings.Join(lines, "\n")
}

// feedbackEmbed renders one scored answer.
func feedbackEmbed(index, total int, question string, result *interview.AnalysisResult) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: fmt.Sprintf("Feedback — question %d of %d", index+1, total),
		Color: colorFeedback,
		Footer: &discordgo.MessageEmbedFooter{
			Text: "/interview retry to answer again · /interview next to move on",
		},
	}
	if question != "" {
		embed.Description = truncate(question, maxFieldLen)
	}

	if len(result.Scores.Turns) == 0 {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Transcript",
			Value: truncate(transcriptText(result.Segments), maxFieldLen),
		})
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Score",
			Value: "Scoring was unavailable for this answer; the transcript was kept.",
		})
		return embed
	}

	turn := result.Scores.Turns[0]
	embed.Fields = append(embed.Fields,
		&discordgo.MessageEmbedField{
			Name:  "Transcript",
			Value: truncate(turn.Text, maxFieldLen),
		},
		&discordgo.MessageEmbedField{
			Name:  "Rubric",
			Value: criteriaField(turn.Criteria),
		},
		&discordgo.MessageEmbedField{
			Name: "Delivery",
			Value: fmt.Sprintf("%d filler words · %d long pauses · pace: %s",
				turn.FillerCount, turn.LongPauses, paceLine(turn.Pace)),
		},
	)
	if turn.ActionableFeedback != "" {
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Coaching",
			Value: truncate(turn.ActionableFeedback, maxFieldLen),
		})
	}
	for _, rw := range result.Rewrites {
		if rw.TurnIndex != turn.TurnIndex {
			continue
		}
		if rw.Tight45s != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Tighter 45s version",
				Value: truncate(rw.Tight45s, maxFieldLen),
			})
		}
		if rw.Expanded2min != "" {
			embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
				Name:  "Expanded 2min version",
				Value: truncate(rw.Expanded2min, maxFieldLen),
			})
		}
	}
	return embed
}

func transcriptText(segments []interview.Segment) string {
	parts := make([]string, 0, len(segments))
	for _, s := range segments {
		if t := strings.TrimSpace(s.Text); t != "" {
			parts = append(parts, t)
		}
	}
	if len(parts) == 0 {
		return "(no speech recognised)"
	}
	return strings.Join(parts, " ")
}

func paceLine(p interview.Pace) string {
	if p.WPM == nil {
		return string(p.Rating)
	}
	return fmt.Sprintf("%s (%.0f wpm)", p.Rating, *p.WPM)
}

// statusEmbed shows where a running session stands.
func statusEmbed(snap interview.GuidedSession) *discordgo.MessageEmbed {
	answered := len(snap.AttemptedIndices())
	fields := []*discordgo.MessageEmbedField{
		{Name: "State", Value: string(snap.State), Inline: true},
		{Name: "Question", Value: fmt.Sprintf("%d of %d", snap.Index+1, snap.Questions.Len()), Inline: true},
		{Name: "Answered", Value: fmt.Sprintf("%d", answered), Inline: true},
	}
	if q := snap.CurrentQuestion(); q != "" {
		fields = append(fields, &discordgo.MessageEmbedField{
			Name:  "Current question",
			Value: truncate(q, maxFieldLen),
		})
	}
	return &discordgo.MessageEmbed{
		Title:  "Interview status",
		Color:  colorNeutral,
		Fields: fields,
	}
}

// reportEmbed renders the end-of-session report.
func reportEmbed(report *interview.SessionReport) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Session report",
		Color: colorReport,
	}
	if report.OverallSummary != "" {
		embed.Description = truncate(report.OverallSummary, 2000)
	}

	for _, entry := range report.Entries {
		value := "(no transcript)"
		if entry.Result != nil && len(entry.Result.Scores.Turns) > 0 {
			turn := entry.Result.Scores.Turns[0]
			met := 0
			for _, c := range []interview.Criterion{
				turn.Criteria.DirectAnswer, turn.Criteria.SpecificExample,
				turn.Criteria.QuantifiedImpact, turn.Criteria.Tradeoffs,
				turn.Criteria.CrispTakeaway,
			} {
				if c.Met.Met() {
					met++
				}
			}
			value = fmt.Sprintf("%d/5 criteria met · %d filler words", met, turn.FillerCount)
		} else if entry.Result != nil && len(entry.Result.Segments) > 0 {
			value = "transcribed, not scored"
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  truncate(fmt.Sprintf("Q%d: %s", entry.Index+1, entry.Question), 256),
			Value: value,
		})
	}

	if len(report.Unattempted) > 0 {
		skipped := make([]string, 0, len(report.Unattempted))
		for _, idx := range report.Unattempted {
			skipped = append(skipped, fmt.Sprintf("Q%d", idx+1))
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  "Skipped",
			Value: strings.Join(skipped, ", "),
		})
	}
	return embed
}

// historyEmbed lists recent completed sessions.
func historyEmbed(recs []history.SessionRecord) *discordgo.MessageEmbed {
	embed := &discordgo.MessageEmbed{
		Title: "Recent practice sessions",
		Color: colorNeutral,
	}
	for _, rec := range recs {
		name := rec.CompletedAt.Format("Jan 2, 2006 15:04")
		value := fmt.Sprintf("%d/%d questions answered", rec.AnsweredCount, rec.QuestionCount)
		if rec.JobDescription != "" {
			value += " · " + truncate(rec.JobDescription, 120)
		}
		if rec.OverallSummary != "" {
			value += "\n" + truncate(rec.OverallSummary, 300)
		}
		embed.Fields = append(embed.Fields, &discordgo.MessageEmbedField{
			Name:  name,
			Value: value,
		})
	}
	return embed
}
