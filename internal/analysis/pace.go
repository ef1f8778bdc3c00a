package analysis

import (
	"fmt"
	"strings"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

// Pace rating boundaries in words per minute. Conversational interview
// delivery sits around 110–170 wpm; below that listeners disengage, above it
// answers sound rushed.
const (
	paceSlowBelow = 110.0
	paceFastAbove = 170.0
)

// computePace derives the speaking pace of a turn from its transcript
// timestamps. The scorer is never trusted for pace: it sees text only and
// would have to guess. A turn with no usable timing (zero or negative
// duration, e.g. a pasted transcript) gets a nil WPM and an unknown rating.
func computePace(t interview.Turn) interview.Pace {
	words := len(strings.Fields(t.Text()))
	minutes := (t.End() - t.Start()) / 60.0
	if words == 0 || minutes <= 0 {
		return interview.Pace{
			Rating:   interview.PaceUnknown,
			Feedback: "Pace could not be measured for this answer.",
		}
	}

	wpm := float64(words) / minutes
	p := interview.Pace{WPM: &wpm}
	switch {
	case wpm < paceSlowBelow:
		p.Rating = interview.PaceSlow
		p.Feedback = fmt.Sprintf("Around %.0f words per minute is on the slow side; tighten pauses and keep momentum.", wpm)
	case wpm > paceFastAbove:
		p.Rating = interview.PaceFast
		p.Feedback = fmt.Sprintf("Around %.0f words per minute is rushed; slow down and let key points land.", wpm)
	default:
		p.Rating = interview.PaceGood
		p.Feedback = fmt.Sprintf("Around %.0f words per minute is a comfortable interview pace.", wpm)
	}
	return p
}
