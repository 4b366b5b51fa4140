// Package phonetic resolves loosely spelled labels, such as a language name
// typed by an operator or an object name reported by the headset, against a
// fixed vocabulary.
//
// Resolution first looks for a case-insensitive exact match. Failing that,
// labels whose Double Metaphone codes share a code with the input are ranked
// by Jaro-Winkler similarity and accepted above the phonetic threshold. If no
// label sounds alike, plain Jaro-Winkler similarity is accepted above the
// stricter fuzzy threshold.
package phonetic

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	defaultPhoneticThreshold = 0.70
	defaultFuzzyThreshold    = 0.85
)

// Option is a functional option for configuring a [Matcher].
type Option func(*Matcher)

// WithPhoneticThreshold sets the minimum Jaro-Winkler score for a label that
// sounds like the input. Default: 0.70.
func WithPhoneticThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.phoneticThreshold = threshold
	}
}

// WithFuzzyThreshold sets the minimum Jaro-Winkler score for a label that
// does not sound like the input. Default: 0.85.
func WithFuzzyThreshold(threshold float64) Option {
	return func(m *Matcher) {
		m.fuzzyThreshold = threshold
	}
}

// Matcher is read-only after construction and safe for concurrent use.
type Matcher struct {
	phoneticThreshold float64
	fuzzyThreshold    float64
}

// New returns a [Matcher] configured with the supplied options.
func New(opts ...Option) *Matcher {
	m := &Matcher{
		phoneticThreshold: defaultPhoneticThreshold,
		fuzzyThreshold:    defaultFuzzyThreshold,
	}
	for _, o := range opts {
		o(m)
	}
	return m
}

// Resolve returns the label in labels that best matches input, with its
// score. ok is false when nothing clears the thresholds; label is then "".
func (m *Matcher) Resolve(input string, labels []string) (label string, score float64, ok bool) {
	in := normalize(input)
	if in == "" {
		return "", 0, false
	}
	for _, l := range labels {
		if normalize(l) == in {
			return l, 1, true
		}
	}

	inCodes := metaphones(in)
	var (
		best      string
		bestScore float64
		bestSound bool
	)
	for _, l := range labels {
		norm := normalize(l)
		if norm == "" {
			continue
		}
		s := similarity(in, norm)
		sounds := shareCode(inCodes, metaphones(norm))
		switch {
		case sounds && s >= m.phoneticThreshold:
			if !bestSound || s > bestScore {
				best, bestScore, bestSound = l, s, true
			}
		case !sounds && !bestSound && s >= m.fuzzyThreshold && s > bestScore:
			best, bestScore = l, s
		}
	}
	if best == "" {
		return "", 0, false
	}
	return best, bestScore, true
}

func normalize(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// metaphones returns the set of primary and secondary Double Metaphone codes
// of every word in s.
func metaphones(s string) map[string]struct{} {
	words := strings.Fields(s)
	codes := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		p, alt := matchr.DoubleMetaphone(w)
		for _, c := range []string{p, alt} {
			if c != "" {
				codes[c] = struct{}{}
			}
		}
	}
	return codes
}

func shareCode(a, b map[string]struct{}) bool {
	if len(a) > len(b) {
		a, b = b, a
	}
	for c := range a {
		if _, ok := b[c]; ok {
			return true
		}
	}
	return false
}

// similarity is the best Jaro-Winkler score of the full strings and of the
// strings with spaces removed.
func similarity(a, b string) float64 {
	score := matchr.JaroWinkler(a, b, false)
	if strings.Contains(a, " ") || strings.Contains(b, " ") {
		joinedA := strings.ReplaceAll(a, " ", "")
		joinedB := strings.ReplaceAll(b, " ", "")
		score = max(score, matchr.JaroWinkler(joinedA, joinedB, false))
	}
	return score
}
