package menu

import (
	"strings"

	"github.com/antzucaro/matchr"
)

const (
	phoneticThreshold = 0.80
	fuzzyThreshold    = 0.88
)

// Mentioned returns the items a customer utterance refers to, in menu order.
//
// An item matches when its name appears in text ignoring spaces, or when a
// word of text is close to the name by Jaro-Winkler similarity. Words that
// share a Double Metaphone code with the name need a lower score; this
// catches romanized names such as "cola" heard as "kola". Korean particles
// glued to a name ("불고기버거로") still score above the fuzzy threshold.
func (m *Menu) Mentioned(text string) []Item {
	if m == nil || strings.TrimSpace(text) == "" {
		return nil
	}
	lower := strings.ToLower(text)
	compact := strings.Join(strings.Fields(lower), "")
	words := strings.Fields(lower)
	wordCodes := codes(words)

	var out []Item
	for _, it := range m.Items {
		name := strings.ToLower(strings.TrimSpace(it.Name))
		if name == "" {
			continue
		}
		if strings.Contains(compact, strings.Join(strings.Fields(name), "")) {
			out = append(out, it)
			continue
		}
		threshold := fuzzyThreshold
		if overlaps(wordCodes, codes(strings.Fields(name))) {
			threshold = phoneticThreshold
		}
		if bestScore(words, name) >= threshold {
			out = append(out, it)
		}
	}
	return out
}

// bestScore compares name against every single word and every adjacent word
// pair of the utterance.
func bestScore(words []string, name string) float64 {
	flat := strings.Join(strings.Fields(name), "")
	var best float64
	for i, w := range words {
		if s := matchr.JaroWinkler(w, flat, false); s > best {
			best = s
		}
		if i+1 < len(words) {
			if s := matchr.JaroWinkler(w+words[i+1], flat, false); s > best {
				best = s
			}
		}
	}
	return best
}

func codes(words []string) map[string]struct{} {
	out := make(map[string]struct{}, len(words)*2)
	for _, w := range words {
		p, s := matchr.DoubleMetaphone(w)
		if p != "" {
			out[p] = struct{}{}
		}
		if s != "" {
			out[s] = struct{}{}
		}
	}
	return out
}

func overlaps(a, b map[string]struct{}) bool {
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
