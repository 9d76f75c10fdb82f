package match

import (
	"strings"

	"github.com/agnivade/levenshtein"
	"github.com/antzucaro/matchr"
)

// LevenshteinSimilarity returns 1 - distance/max(len(a), len(b)) over runes.
// Two empty strings are identical (1.0).
func LevenshteinSimilarity(a, b string) float64 {
	la := len([]rune(a))
	lb := len([]rune(b))
	if la == 0 && lb == 0 {
		return 1.0
	}
	maxLen := la
	if lb > maxLen {
		maxLen = lb
	}
	dist := levenshtein.ComputeDistance(a, b)
	return 1.0 - float64(dist)/float64(maxLen)
}

// PhoneticCode reduces a normalized string to a coarse phonetic code: the
// Soundex code of each token, joined in order. Soundex (rather than the finer
// metaphone family) is deliberate — it ignores H/W and vowels, which is what
// absorbs transliteration variance like mohamed/mohmed. Tokens the encoder
// cannot voice (non-Latin script) are dropped, so an empty result means "no
// phonetic signal", not "matches other empty codes".
func PhoneticCode(s string) string {
	var codes []string
	for _, token := range strings.Fields(s) {
		token = asciiLetters(token)
		if token == "" {
			continue
		}
		if code := matchr.Soundex(token); code != "" {
			codes = append(codes, code)
		}
	}
	return strings.Join(codes, " ")
}

// asciiLetters strips everything outside a-z; the Soundex table only covers
// the Latin alphabet.
func asciiLetters(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= 'a' && r <= 'z' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// PhoneticSimilarity returns 1.0 on exact phonetic-code match, 0.0 otherwise.
// Deliberately coarse: it exists to catch cross-script transliteration
// variance and is only ever blended, never used alone.
func PhoneticSimilarity(a, b string) float64 {
	ca := PhoneticCode(a)
	cb := PhoneticCode(b)
	if ca == "" || cb == "" {
		return 0.0
	}
	if ca == cb {
		return 1.0
	}
	return 0.0
}

// TrigramSimilarity computes Jaccard similarity over overlapping 3-rune
// windows with boundary padding (two leading spaces, one trailing — the same
// windows pg_trgm indexes). Handles partial and typo matches without
// requiring near-equal lengths.
func TrigramSimilarity(a, b string) float64 {
	if a == "" && b == "" {
		return 1.0
	}
	if a == "" || b == "" {
		return 0.0
	}

	ta := trigramSet(a)
	tb := trigramSet(b)

	intersection := 0
	for t := range ta {
		if _, ok := tb[t]; ok {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0.0
	}
	return float64(intersection) / float64(union)
}

func trigramSet(s string) map[string]struct{} {
	padded := []rune("  " + s + " ")
	set := make(map[string]struct{}, len(padded))
	for i := 0; i+3 <= len(padded); i++ {
		set[string(padded[i:i+3])] = struct{}{}
	}
	return set
}
