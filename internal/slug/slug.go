// Package slug derives the normalized keys used for uniqueness and sorting
// of recipe titles and group names.
//
// A slug is lowercase ASCII letters and digits separated by single
// hyphens, with no leading or trailing hyphen. Accents are folded away
// ("Café" and "cafe" share a slug), Latin letters with no decomposition are
// spelled in ASCII ("Straße" becomes "strasse") and a fixed punctuation set
// is dropped without leaving a separator ("Mom's" becomes "moms").
package slug

import (
	"strings"
	"unicode"

	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Separator joins the words of a slug.
const Separator = '-'

// dropped characters vanish without producing a separator.
const dropped = `*+~.()'"!:@`

// symbols are spelled out before slugging so "Mac & Cheese" keeps its
// meaning as "mac-and-cheese".
var symbols = map[rune]string{
	'&': "and",
	'%': "percent",
	'$': "dollar",
	'<': "less",
	'>': "greater",
	'|': "or",
}

// letters maps lowercase Latin letters that survive mark stripping to their
// usual ASCII spelling.
var letters = map[rune]string{
	'æ': "ae",
	'œ': "oe",
	'ø': "o",
	'ß': "ss",
	'ł': "l",
	'ŀ': "l",
	'đ': "d",
	'ð': "d",
	'þ': "th",
	'ħ': "h",
	'ŧ': "t",
	'ı': "i",
	'ĸ': "k",
	'ŋ': "ng",
	'ſ': "s",
	'ƀ': "b",
	'ƶ': "z",
}

// Make returns the slug of s. It is pure, deterministic and
// locale-independent; Make(Make(s)) == Make(s) for every s.
func Make(s string) string {
	folded := strings.ToLower(strings.TrimSpace(s))
	if stripped, _, err := transform.String(stripMarks(), folded); err == nil {
		folded = stripped
	}

	var b strings.Builder
	b.Grow(len(folded))
	pending := false
	emit := func(r rune) {
		if pending && b.Len() > 0 {
			b.WriteRune(Separator)
		}
		pending = false
		b.WriteRune(r)
	}

	for _, r := range folded {
		switch {
		case strings.ContainsRune(dropped, r):
		case isASCIIAlnum(r):
			emit(r)
		case letters[r] != "":
			for _, l := range letters[r] {
				emit(l)
			}
		default:
			word, ok := symbols[r]
			if !ok {
				pending = true
				continue
			}
			for _, w := range word {
				emit(w)
			}
		}
	}
	return b.String()
}

// stripMarks decomposes accented characters and removes the combining
// marks. A transformer carries state, so each call gets its own chain.
func stripMarks() transform.Transformer {
	return transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
}

func isASCIIAlnum(r rune) bool {
	return (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
}
