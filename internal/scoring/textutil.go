package scoring

import (
	"strings"
	"unicode"
)

// Answer-quality banding. A rating alone is easy to inflate; the free-text
// answers modulate it so that thin, vague responses are worth less than
// specific ones backed by concrete figures.
const (
	qualityBase     = 0.60
	qualityDepthMax = 0.25
	qualityFigures  = 0.15

	shortAnswerWords = 20
	fullAnswerWords  = 60
)

// answerWordCount returns the total word count across all answers.
func answerWordCount(answers []string) int {
	n := 0
	for _, a := range answers {
		n += len(strings.Fields(a))
	}
	return n
}

// containsFigures reports whether any answer cites a concrete number
// (revenue, user counts, growth rates and the like).
func containsFigures(answers []string) bool {
	for _, a := range answers {
		for _, r := range a {
			if unicode.IsDigit(r) {
				return true
			}
		}
	}
	return false
}

// qualityFactor maps the answers of one section to a multiplier in
// [qualityBase, 1.0]. Deterministic: depends only on the answer text.
func qualityFactor(answers []string) float64 {
	words := answerWordCount(answers)

	depth := 0.0
	switch {
	case words >= fullAnswerWords:
		depth = 1.0
	case words >= shortAnswerWords:
		depth = 0.5
	}

	figures := 0.0
	if containsFigures(answers) {
		figures = 1.0
	}

	return qualityBase + qualityDepthMax*depth + qualityFigures*figures
}

// hasContent reports whether a section response carries at least one
// non-blank answer.
func hasContent(resp SectionResponse) bool {
	for _, a := range resp.Answers {
		if strings.TrimSpace(a) != "" {
			return true
		}
	}
	return false
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
