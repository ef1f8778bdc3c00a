package analysis

import (
	"testing"

	"github.com/greenroomhq/greenroom/pkg/interview"
)

func TestNormalizeSegments_OrderingAndHygiene(t *testing.T) {
	t.Parallel()

	in := []interview.Segment{
		{Text: "second", Start: 10, End: 14},
		{Text: "first", Start: 0, End: 4},
		{Text: "", Start: 4, End: 6},
		{Text: "inverted", Start: 8, End: 8},
	}

	got := normalizeSegments(in)
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	for i, s := range got {
		if s.Start >= s.End {
			t.Errorf("segment %d violates start < end: %+v", i, s)
		}
		if i > 0 && s.Start < got[i-1].Start {
			t.Errorf("segments out of order at %d: %+v", i, got)
		}
	}
	if got[0].Text != "first" || got[1].Text != "second" {
		t.Errorf("unexpected order: %+v", got)
	}
}

func TestNormalizeSegments_MergesShortIntoPredecessor(t *testing.T) {
	t.Parallel()

	in := []interview.Segment{
		{Text: "I led the migration", Start: 0, End: 5},
		{Text: "yeah", Start: 5.2, End: 6.0}, // 0.8s, below the 2s floor
		{Text: "and then we shipped it", Start: 8, End: 12},
	}

	got := normalizeSegments(in)
	if len(got) != 2 {
		t.Fatalf("got %d segments, want 2: %+v", len(got), got)
	}
	if got[0].Text != "I led the migration yeah" {
		t.Errorf("merged text = %q", got[0].Text)
	}
	if got[0].End != 6.0 {
		t.Errorf("merged end = %v, want 6.0", got[0].End)
	}
}

func TestNormalizeSegments_FirstSegmentNeverMergedAway(t *testing.T) {
	t.Parallel()

	in := []interview.Segment{{Text: "hi", Start: 0, End: 0.5}}
	got := normalizeSegments(in)
	if len(got) != 1 || got[0].Text != "hi" {
		t.Fatalf("short leading segment lost: %+v", got)
	}
}

func TestGroupTurns_GuidedModeIsSingleTurn(t *testing.T) {
	t.Parallel()

	segs := []interview.Segment{
		{Text: "a", Start: 0, End: 3},
		{Text: "b", Start: 20, End: 24}, // huge gap, still one turn
	}
	actx := Context{QuestionText: "Tell me about a conflict", Mode: ModeGuided}

	turns := groupTurns(segs, actx, 1.5)
	if len(turns) != 1 {
		t.Fatalf("got %d turns, want 1", len(turns))
	}
	if turns[0].QuestionText != actx.QuestionText {
		t.Errorf("turn question = %q", turns[0].QuestionText)
	}
	if len(turns[0].Segments) != 2 {
		t.Errorf("turn segments = %d, want 2", len(turns[0].Segments))
	}
}

func TestGroupTurns_FreeformSplitsAtPauseGap(t *testing.T) {
	t.Parallel()

	segs := []interview.Segment{
		{Text: "answer one part one", Start: 0, End: 4},
		{Text: "answer one part two", Start: 4.8, End: 9}, // 0.8s gap: same turn
		{Text: "answer two", Start: 11, End: 15},          // 2s gap: new turn
	}
	actx := Context{Mode: ModeFreeform, JobDescription: "Senior PM"}

	turns := groupTurns(segs, actx, 1.5)
	if len(turns) != 2 {
		t.Fatalf("got %d turns, want 2: %+v", len(turns), turns)
	}
	if len(turns[0].Segments) != 2 || len(turns[1].Segments) != 1 {
		t.Errorf("segment split = %d/%d, want 2/1", len(turns[0].Segments), len(turns[1].Segments))
	}
	for i, turn := range turns {
		if turn.JobDescription != "Senior PM" {
			t.Errorf("turn %d lost job description", i)
		}
		if turn.QuestionText != "" {
			t.Errorf("free-form turn %d has question text %q", i, turn.QuestionText)
		}
	}
}

func TestGroupTurns_Empty(t *testing.T) {
	t.Parallel()

	if turns := groupTurns(nil, Context{}, 1.5); turns != nil {
		t.Errorf("groupTurns(nil) = %+v, want nil", turns)
	}
}
