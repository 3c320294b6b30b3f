package privacy

import (
	"regexp"
	"strings"
)

var placeholderPattern = regexp.MustCompile(`<<[A-Z][A-Z0-9_]*_\d+>>`)

// Restore replaces every placeholder present in mapping with its original
// value in a single left-to-right pass.
//
// Placeholders that are not in mapping are left as ordinary text and never
// cause an error: the model may have paraphrased around or invented a
// placeholder. Callers that must not emit unresolved placeholders should check
// the result with Unresolved.
func Restore(text string, mapping Mapping) string {
	if text == "" || mapping.Len() == 0 {
		return text
	}

	pairs := make([]string, 0, 2*mapping.Len())
	for _, e := range mapping.entries {
		if e.Placeholder == "" {
			continue
		}
		pairs = append(pairs, e.Placeholder, e.Original)
	}
	if len(pairs) == 0 {
		return text
	}

	return strings.NewReplacer(pairs...).Replace(text)
}

// Unresolved lists placeholder-shaped tokens in text, in order of appearance,
// that mapping cannot resolve.
func Unresolved(text string, mapping Mapping) []string {
	var out []string
	for _, token := range placeholderPattern.FindAllString(text, -1) {
		if _, ok := mapping.Get(token); !ok {
			out = append(out, token)
		}
	}
	return out
}
