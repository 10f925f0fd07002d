package transcript

import (
	"sort"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
	"golang.org/x/text/unicode/norm"
)

// CommandPrefix is kept by the normalizer so spoken-out slash commands survive.
const CommandPrefix = '/'

var fillers = map[string]struct{}{
	"그냥": {}, "저기": {}, "음": {}, "어": {}, "에": {}, "아": {},
	"그": {}, "저": {}, "이제": {}, "그러면": {}, "근데": {}, "자": {},
}

// Verb endings ("...해줘", "...하세요") stripped once per token.
var endingSuffixes = longestFirst([]string{
	"해줘", "해주라", "해줘요", "해주세요", "해", "해라", "해라요", "해요",
	"해라구", "해라구요", "해달라", "하자", "하시오", "하세", "하세요",
	"해보자", "해봐", "해봐요", "해볼래", "해줄래",
	"해줄수있어", "해줄수있니", "해줄수있나요",
})

// Case markers (josa) stripped once per token, after the ending.
var josaSuffixes = longestFirst([]string{
	"은", "는", "이", "가", "을", "를", "에", "에서", "으로", "로", "와", "과",
	"한테", "에게", "께", "께서", "에도", "까지", "부터", "밖에", "마다",
	"처럼", "같이", "인데", "인데요", "인데다", "인데도",
})

func longestFirst(in []string) []string {
	out := append([]string(nil), in...)
	sort.SliceStable(out, func(i, j int) bool {
		return len([]rune(out[i])) > len([]rune(out[j]))
	})
	return out
}

// Normalize canonicalizes recognized text for matching. The result is stable:
// Normalize(Normalize(s)) == Normalize(s). Empty output means no usable text.
//
// A single pass strips at most one ending and one case marker per token, which
// can expose another strippable suffix or turn a token into a filler word, so
// passes repeat until the text stops changing. After the first pass every
// change is a removal, so the loop terminates.
func Normalize(s string) string {
	cur := normalizeOnce(s)
	for {
		next := normalizeOnce(cur)
		if next == cur {
			return cur
		}
		cur = next
	}
}

func normalizeOnce(s string) string {
	s = norm.NFC.String(s)
	s = cases.Lower(language.Und).String(s)

	s = strings.Map(func(r rune) rune {
		if keepRune(r) {
			return r
		}
		return ' '
	}, s)

	tokens := strings.Fields(s)
	out := tokens[:0]
	for _, tok := range tokens {
		if _, ok := fillers[tok]; ok {
			continue
		}
		tok = trimOne(tok, endingSuffixes)
		tok = trimOne(tok, josaSuffixes)
		if tok == "" {
			continue
		}
		out = append(out, tok)
	}
	return strings.Join(out, " ")
}

func keepRune(r rune) bool {
	switch {
	case r == CommandPrefix:
		return true
	case unicode.IsSpace(r):
		return true
	case unicode.IsDigit(r):
		return true
	case unicode.Is(unicode.Hangul, r), unicode.Is(unicode.Latin, r):
		return true
	}
	return false
}

// trimOne removes the first listed suffix that ends tok.
func trimOne(tok string, suffixes []string) string {
	for _, suf := range suffixes {
		if strings.HasSuffix(tok, suf) {
			return strings.TrimSuffix(tok, suf)
		}
	}
	return tok
}
