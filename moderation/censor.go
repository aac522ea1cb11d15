package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"

	"chat-sync/errors"
)

// Censor scrubs forbidden words from message text before submission.
// Matching runs over a normalized view of the input (lowercased, leet
// speak folded, punctuation and spacing stripped) while replacement is
// applied to the original runes, so spacing and casing around a match
// are preserved. Attachment URLs are never passed through the censor.
type Censor struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// NewCensor builds the Aho-Corasick automaton from the forbidden word
// list. Words are normalized the same way input text is.
func NewCensor(words []string, replacement rune) (*Censor, error) {
	patterns := make([][]rune, 0, len(words))
	for _, word := range words {
		norm, _ := normalize([]rune(word))
		// Pure-noise entries normalize to nothing and would match anywhere.
		if len(norm) == 0 {
			continue
		}
		patterns = append(patterns, norm)
	}
	if len(patterns) == 0 {
		return nil, errors.ErrEmptyWordList
	}

	m := new(goahocorasick.Machine)
	if err := m.Build(patterns); err != nil {
		return nil, err
	}
	return &Censor{matcher: m, replacement: replacement}, nil
}

// Scrub replaces every forbidden span of the input with the replacement
// rune. The input is returned unchanged when nothing matches.
func (c *Censor) Scrub(original string) string {
	origRunes := []rune(original)
	norm, origIdx := normalize(origRunes)
	if len(norm) == 0 {
		return original
	}

	spans := c.matcher.MultiPatternSearch(norm, false)
	if len(spans) == 0 {
		return original
	}

	for _, span := range spans {
		start := span.Pos
		end := start + len(span.Word)
		if start < 0 || end > len(origIdx) {
			continue
		}
		// Map the normalized span back onto the original runes.
		for i := origIdx[start]; i <= origIdx[end-1]; i++ {
			origRunes[i] = c.replacement
		}
	}
	return string(origRunes)
}

// normalize lowercases, folds leet speak, and drops noise runes. The
// second return value maps each normalized rune back to its position in
// the input.
func normalize(input []rune) ([]rune, []int) {
	norm := make([]rune, 0, len(input))
	origIdx := make([]int, 0, len(input))
	for i, r := range input {
		folded := foldLeet(r)
		if isNoise(folded) {
			continue
		}
		norm = append(norm, unicode.ToLower(folded))
		origIdx = append(origIdx, i)
	}
	return norm, origIdx
}

// foldLeet maps common leet speak characters back to their standard
// alphabet counterparts.
func foldLeet(r rune) rune {
	switch r {
	case '4', '@':
		return 'a'
	case '3', '€':
		return 'e'
	case '1', '!', '|':
		return 'i'
	case '0':
		return 'o'
	case '5', '$':
		return 's'
	default:
		return r
	}
}

// isNoise identifies runes ignored during matching.
func isNoise(r rune) bool {
	return unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r)
}
