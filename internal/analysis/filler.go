package analysis

import (
	"strings"

	"github.com/antzucaro/matchr"
)

// fillerLexicon lists the filler words counted by the local estimator.
// Multi-word fillers are matched as phrases before single-word scanning.
var fillerLexicon = []string{
	"um", "uh", "erm", "like", "basically", "actually", "literally",
}

// fillerPhrases are counted by substring occurrence on the lowercased text.
var fillerPhrases = []string{
	"you know", "i mean", "sort of", "kind of",
}

// fillerMatchThreshold is the Jaro-Winkler score a phonetic candidate must
// reach to count as a filler variant ("umm", "uhh", "uhmm").
const fillerMatchThreshold = 0.88

// fillerCodes holds the Double Metaphone codes of the single-word fillers,
// computed once at init.
var fillerCodes = buildFillerCodes()

func buildFillerCodes() map[string][]string {
	codes := make(map[string][]string, len(fillerLexicon))
	for _, w := range fillerLexicon {
		p, s := matchr.DoubleMetaphone(w)
		var cs []string
		if p != "" {
			cs = append(cs, p)
		}
		if s != "" && s != p {
			cs = append(cs, s)
		}
		codes[w] = cs
	}
	return codes
}

// estimateFillerCount counts filler words in text without an LLM. It is the
// degraded-path substitute used when scoring fails, so degraded feedback
// still carries something measurable.
//
// Exact lexicon hits are counted directly; other tokens count when they share
// a Double Metaphone code with a filler AND score at least
// [fillerMatchThreshold] Jaro-Winkler against it, which picks up stretched
// variants like "ummm" without flagging ordinary words.
func estimateFillerCount(text string) int {
	lower := strings.ToLower(text)
	count := 0

	for _, phrase := range fillerPhrases {
		count += strings.Count(lower, phrase)
	}

	for _, tok := range strings.Fields(lower) {
		tok = strings.Trim(tok, ".,!?;:—-\"'()")
		if tok == "" {
			continue
		}
		if matchFiller(tok) {
			count++
		}
	}
	return count
}

// matchFiller reports whether tok is a filler word or a phonetic variant of one.
func matchFiller(tok string) bool {
	p, s := matchr.DoubleMetaphone(tok)
	for _, filler := range fillerLexicon {
		if tok == filler {
			return true
		}
		for _, code := range fillerCodes[filler] {
			if code != p && code != s {
				continue
			}
			if matchr.JaroWinkler(tok, filler, false) >= fillerMatchThreshold {
				return true
			}
		}
	}
	return false
}
