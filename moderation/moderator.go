// Package moderation masks forbidden words in message content before it is stored.
package moderation

import (
	"unicode"

	goahocorasick "github.com/anknown/ahocorasick"
)

// Moderator replaces every rune of a forbidden word with a replacement rune.
// Matching ignores case, punctuation and spacing, and folds common leet
// substitutions, so "B.4.d.g.€r" is caught by "badger".
// A Moderator built without words, or a nil one, leaves content untouched.
type Moderator struct {
	matcher     *goahocorasick.Machine
	replacement rune
}

// folded is a lowercase, noise-free copy of a text plus, for every kept rune,
// its position in the original text.
type folded struct {
	runes     []rune
	positions []int
}

func NewModerator(words []string, replacement rune) (*Moderator, error) {
	var patterns [][]rune
	for _, word := range words {
		if pattern := fold([]rune(word)).runes; len(pattern) > 0 {
			patterns = append(patterns, pattern)
		}
	}
	if len(patterns) == 0 {
		return &Moderator{replacement: replacement}, nil
	}

	matcher := new(goahocorasick.Machine)
	if err := matcher.Build(patterns); err != nil {
		return nil, err
	}
	return &Moderator{matcher: matcher, replacement: replacement}, nil
}

func (m *Moderator) Enabled() bool {
	return m != nil && m.matcher != nil
}

// Censor masks forbidden words in content. Runes between the first and last
// letter of a match, noise included, are masked as well.
func (m *Moderator) Censor(content string) string {
	if !m.Enabled() || content == "" {
		return content
	}
	original := []rune(content)
	text := fold(original)
	if len(text.runes) == 0 {
		return content
	}

	matches := m.matcher.MultiPatternSearch(text.runes, false)
	if len(matches) == 0 {
		return content
	}
	for _, match := range matches {
		first, last := match.Pos, match.Pos+len(match.Word)-1
		if first < 0 || last >= len(text.positions) {
			continue
		}
		for i := text.positions[first]; i <= text.positions[last]; i++ {
			original[i] = m.replacement
		}
	}
	return string(original)
}

func fold(input []rune) folded {
	out := folded{
		runes:     make([]rune, 0, len(input)),
		positions: make([]int, 0, len(input)),
	}
	for i, r := range input {
		r = unleet(r)
		if unicode.IsPunct(r) || unicode.IsSpace(r) || unicode.IsSymbol(r) {
			continue
		}
		out.runes = append(out.runes, unicode.ToLower(r))
		out.positions = append(out.positions, i)
	}
	return out
}

func unleet(r rune) rune {
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
	}
	return r
}
