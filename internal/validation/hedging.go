package validation

import (
	"regexp"
	"sort"
	"strings"
)

// HedgingThreshold is the hedging density above which output is flagged
const HedgingThreshold = 0.15

var hedgingPhrases = []string{
	"I think",
	"I believe",
	"I'm not sure",
	"I am not sure",
	"it is possible that",
	"it might be",
	"probably",
	"perhaps",
	"maybe",
	"as far as I know",
	"to the best of my knowledge",
	"I cannot confirm",
	"I don't have access",
	"I do not have access",
	"reportedly",
	"allegedly",
	"it seems",
	"it appears",
}

var hedgingPattern = compileHedging(hedgingPhrases)

// compileHedging builds one case-insensitive alternation, longest phrase first
func compileHedging(phrases []string) *regexp.Regexp {
	sorted := make([]string, len(phrases))
	copy(sorted, phrases)
	sort.SliceStable(sorted, func(i, j int) bool { return len(sorted[i]) > len(sorted[j]) })

	quoted := make([]string, len(sorted))
	for i, p := range sorted {
		quoted[i] = regexp.QuoteMeta(p)
	}
	return regexp.MustCompile(`(?i)\b(?:` + strings.Join(quoted, "|") + `)\b`)
}

// HedgingDensity is hedging matches per whitespace-separated token, capped at 1
func HedgingDensity(text string) float64 {
	tokens := len(strings.Fields(text))
	if tokens == 0 {
		return 0
	}

	hits := len(hedgingPattern.FindAllStringIndex(text, -1))
	density := float64(hits) / float64(tokens)
	if density > 1 {
		return 1
	}
	return density
}
