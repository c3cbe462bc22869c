// Package textutil turns plain text into token feature sequences.
package textutil

import (
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"
)

var tokenizeRe = regexp.MustCompile(`[\p{L}\p{N}_]+|[^\s\p{L}\p{N}_]`)

// Tokenize splits text into words and single punctuation marks.
func Tokenize(text string) []string {
	return tokenizeRe.FindAllString(text, -1)
}

// Affixes returns the prefixes and suffixes of s of length minN to maxN, in
// runes. Words shorter than an affix length yield nothing for that length.
func Affixes(s string, minN, maxN int) (prefixes, suffixes []string) {
	runes := []rune(s)
	for n := minN; n <= maxN && n <= len(runes); n++ {
		prefixes = append(prefixes, string(runes[:n]))
		suffixes = append(suffixes, string(runes[len(runes)-n:]))
	}
	return prefixes, suffixes
}

// Shape maps upper-case letters to X, lower-case to x and digits to d, and
// collapses runs of the same class: "McDonald's" becomes "XxXx'x".
func Shape(word string) string {
	var buf strings.Builder
	var last rune
	for _, r := range word {
		c := r
		switch {
		case unicode.IsUpper(r):
			c = 'X'
		case unicode.IsLower(r):
			c = 'x'
		case unicode.IsDigit(r):
			c = 'd'
		}
		if c != last {
			buf.WriteRune(c)
			last = c
		}
	}
	return buf.String()
}

var digitRe = regexp.MustCompile(`\d`)

// NumberPattern replaces digits with X and letters with C if the digit ratio >= threshold.
// Returns empty string otherwise.
func NumberPattern(text string, ratio float64) string {
	if text == "" {
		return ""
	}

	total := utf8.RuneCountInString(text)
	digitCount := 0
	for _, r := range text {
		if unicode.IsDigit(r) {
			digitCount++
		}
	}

	if float64(digitCount)/float64(total) < ratio {
		return ""
	}
	result := digitRe.ReplaceAllString(text, "X")
	var buf strings.Builder
	for _, r := range result {
		if r == 'X' || !unicode.IsLetter(r) {
			buf.WriteRune(r)
		} else {
			buf.WriteRune('C')
		}
	}
	return buf.String()
}

func isTitle(word string) bool {
	r, _ := utf8.DecodeRuneInString(word)
	return unicode.IsUpper(r)
}

// TokenFeatures builds one feature dict per token, in the form accepted by
// crf.FeaturesToAttributes. Neighbouring words contribute prev-/next-
// features; the first and last tokens are marked.
func TokenFeatures(tokens []string) []map[string]any {
	out := make([]map[string]any, len(tokens))
	for i, tok := range tokens {
		lower := strings.ToLower(tok)
		prefixes, suffixes := Affixes(lower, 2, 3)
		f := map[string]any{
			"bias":     1,
			"word":     lower,
			"shape":    Shape(tok),
			"is-title": isTitle(tok),
			"is-first": i == 0,
			"is-last":  i == len(tokens)-1,
			"prefix":   prefixes,
			"suffix":   suffixes,
		}
		if p := NumberPattern(tok, 0.3); p != "" {
			f["number"] = p
		}
		if i > 0 {
			f["prev-word"] = strings.ToLower(tokens[i-1])
			f["prev-title"] = isTitle(tokens[i-1])
		}
		if i < len(tokens)-1 {
			f["next-word"] = strings.ToLower(tokens[i+1])
			f["next-title"] = isTitle(tokens[i+1])
		}
		out[i] = f
	}
	return out
}
