package analysis

import (
	"sort"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// minSegmentSeconds is the duration below which a segment is merged into its
// predecessor. Whisper-style decoders occasionally emit sub-second fragments
// ("Yeah.", "So—") that would otherwise become micro-turns in free-form mode.
const minSegmentSeconds = 2.0

// normalizeSegments returns a cleaned copy of segs: blank-text and
// zero-duration spans are dropped, ordering by start time is restored, and
// spans shorter than [minSegmentSeconds] are merged into their predecessor.
// The input slice is not modified.
func normalizeSegments(segs []interview.Segment) []interview.Segment {
	cleaned := make([]interview.Segment, 0, len(segs))
	for _, s := range segs {
		s.Text = strings.TrimSpace(s.Text)
		if s.Text == "" || s.End <= s.Start {
			continue
		}
		cleaned = append(cleaned, s)
	}
	sort.SliceStable(cleaned, func(i, j int) bool {
		return cleaned[i].Start < cleaned[j].Start
	})

	merged := make([]interview.Segment, 0, len(cleaned))
	for _, s := range cleaned {
		if len(merged) > 0 && s.Duration() < minSegmentSeconds {
			last := &merged[len(merged)-1]
			last.Text += " " + s.Text
			if s.End > last.End {
				last.End = s.End
			}
			continue
		}
		merged = append(merged, s)
	}
	return merged
}

// groupTurns splits normalized segments into answer turns.
//
// In guided mode the whole clip is exactly one turn bound to the supplied
// question. In free-form mode a silence gap of pauseGap seconds or more
// between consecutive segments starts a new turn; the threshold is
// configurable because the right value depends on how deliberately the
// speaker pauses between answers.
func groupTurns(segs []interview.Segment, actx Context, pauseGap float64) []interview.Turn {
	if len(segs) == 0 {
		return nil
	}

	if actx.QuestionText != "" || actx.Mode == ModeGuided {
		return []interview.Turn{{
			Segments:       segs,
			QuestionText:   actx.QuestionText,
			JobDescription: actx.JobDescription,
		}}
	}

	var turns []interview.Turn
	current := []interview.Segment{segs[0]}
	for _, s := range segs[1:] {
		prevEnd := current[len(current)-1].End
		if s.Start-prevEnd >= pauseGap {
			turns = append(turns, interview.Turn{
				Segments:       current,
				JobDescription: actx.JobDescription,
			})
			current = []interview.Segment{s}
			continue
		}
		current = append(current, s)
	}
	turns = append(turns, interview.Turn{
		Segments:       current,
		JobDescription: actx.JobDescription,
	})
	return turns
}
