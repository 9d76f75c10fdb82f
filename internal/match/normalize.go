package match

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// stripMarks removes diacritics and combining marks: NFD decomposition, drop
// the combining marks (which also covers Arabic harakat), recompose. Same
// chain for both scripts, no language tag needed.
var stripMarks = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// arabicFold collapses Arabic letter variants that represent the same name
// under data-entry variance: alef forms, alef maqsura, hamza carriers, taa
// marbuta. Arabic-Indic digits fold to ASCII so phone digits compare across
// scripts.
var arabicFold = map[rune]rune{
	'آ': 'ا', // آ -> ا
	'أ': 'ا', // أ -> ا
	'إ': 'ا', // إ -> ا
	'ٱ': 'ا', // ٱ -> ا
	'ى': 'ي', // ى -> ي
	'ئ': 'ي', // ئ -> ي
	'ؤ': 'و', // ؤ -> و
	'ة': 'ه', // ة -> ه

	'٠': '0', '١': '1', '٢': '2', '٣': '3', '٤': '4',
	'٥': '5', '٦': '6', '٧': '7', '٨': '8', '٩': '9',
	'۰': '0', '۱': '1', '۲': '2', '۳': '3', '۴': '4',
	'۵': '5', '۶': '6', '۷': '7', '۸': '8', '۹': '9',
}

const tatweel = 'ـ'

// Normalize produces the comparable form of a raw string: case folded,
// diacritics and combining marks stripped, Arabic variants folded, punctuation
// and repeated whitespace collapsed to single spaces. Pure and deterministic;
// scoring built on it is reproducible without any locale or global state.
func Normalize(s string) string {
	s = strings.ToLower(s)
	s, _, _ = transform.String(stripMarks, s)

	var b strings.Builder
	b.Grow(len(s))
	lastSpace := true
	for _, r := range s {
		if r == tatweel {
			continue
		}
		if folded, ok := arabicFold[r]; ok {
			r = folded
		}
		if !unicode.IsLetter(r) && !unicode.IsDigit(r) {
			// Punctuation and whitespace both collapse to a single separator.
			if !lastSpace {
				b.WriteRune(' ')
				lastSpace = true
			}
			continue
		}
		b.WriteRune(r)
		lastSpace = false
	}

	return strings.TrimRight(b.String(), " ")
}

// Digits returns only the digit characters of s, with Arabic-Indic digits
// folded to ASCII. Used to reduce phone numbers to comparable form.
func Digits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if folded, ok := arabicFold[r]; ok {
			r = folded
		}
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}
