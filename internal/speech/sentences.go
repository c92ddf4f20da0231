package speech

import (
	"strings"
	"unicode"
	"unicode/utf8"
)

// TextLimiter is implemented by engines that reject text above a size.
type TextLimiter interface {
	MaxTextSize() int
}

// abbreviations never end a sentence when followed by a lowercase word.
var abbreviations = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true,
	"sr": true, "jr": true, "st": true, "vs": true, "etc": true,
	"e.g": true, "i.e": true, "inc": true, "ltd": true, "co": true,
	"corp": true, "no": true, "approx": true,
	"jan": true, "feb": true, "mar": true, "apr": true, "jun": true,
	"jul": true, "aug": true, "sep": true, "sept": true, "oct": true,
	"nov": true, "dec": true,
}

// titles never end a sentence, even before a capitalised name.
var titles = map[string]bool{
	"mr": true, "mrs": true, "ms": true, "dr": true, "prof": true, "st": true,
}

// Sentences splits text at sentence boundaries. Whitespace runs, line
// breaks included, collapse to single spaces.
func Sentences(text string) []string {
	runes := []rune(strings.Join(strings.Fields(text), " "))

	var (
		out []string
		cur strings.Builder
	)
	for i, r := range runes {
		cur.WriteRune(r)
		if isBoundary(runes, i) {
			if s := strings.TrimSpace(cur.String()); s != "" {
				out = append(out, s)
			}
			cur.Reset()
		}
	}
	if s := strings.TrimSpace(cur.String()); s != "" {
		out = append(out, s)
	}
	return out
}

func isBoundary(runes []rune, pos int) bool {
	if pos >= len(runes)-1 {
		return true
	}

	switch runes[pos] {
	case '.', '!', '?':
	case '"', '\'', ')':
		// A closing quote or bracket ends the sentence it closes.
		return pos > 0 && strings.ContainsRune(".!?", runes[pos-1]) && nextIsUpper(runes, pos)
	default:
		return false
	}

	if runes[pos] == '.' {
		// Ellipsis or decimal number.
		if runes[pos+1] == '.' || (pos > 0 && runes[pos-1] == '.') {
			return false
		}
		if pos > 0 && unicode.IsDigit(runes[pos-1]) && unicode.IsDigit(runes[pos+1]) {
			return false
		}
		if word := wordBefore(runes, pos); abbreviations[word] {
			return !titles[word] && nextIsUpper(runes, pos)
		}
	}

	// Punctuation inside a quote ends at the quote.
	if strings.ContainsRune("\"')", runes[pos+1]) {
		return false
	}
	return nextIsUpper(runes, pos)
}

func wordBefore(runes []rune, pos int) string {
	start := pos - 1
	for start >= 0 && !unicode.IsSpace(runes[start]) {
		start--
	}
	return strings.ToLower(string(runes[start+1 : pos]))
}

func nextIsUpper(runes []rune, pos int) bool {
	next := pos + 1
	if next >= len(runes) || !unicode.IsSpace(runes[next]) {
		return false
	}
	for next < len(runes) && unicode.IsSpace(runes[next]) {
		next++
	}
	return next < len(runes) && (unicode.IsUpper(runes[next]) || unicode.IsDigit(runes[next]) || runes[next] == '"')
}

// Pieces packs the sentences of text into pieces of at most limit bytes.
// A sentence longer than limit is cut at word boundaries, or mid-word as a
// last resort. A non-positive limit returns text unchanged.
func Pieces(text string, limit int) []string {
	if limit <= 0 || len(text) <= limit {
		return []string{text}
	}

	var (
		out []string
		cur strings.Builder
	)
	flush := func() {
		if cur.Len() > 0 {
			out = append(out, cur.String())
			cur.Reset()
		}
	}
	add := func(s string) {
		if cur.Len() > 0 && cur.Len()+1+len(s) > limit {
			flush()
		}
		if cur.Len() > 0 {
			cur.WriteByte(' ')
		}
		cur.WriteString(s)
	}

	for _, sentence := range Sentences(text) {
		if len(sentence) <= limit {
			add(sentence)
			continue
		}
		for _, word := range strings.Fields(sentence) {
			for len(word) > limit {
				flush()
				cut := limit
				for cut > 0 && !utf8.RuneStart(word[cut]) {
					cut--
				}
				if cut == 0 {
					_, cut = utf8.DecodeRuneInString(word)
				}
				out = append(out, word[:cut])
				word = word[cut:]
			}
			add(word)
		}
	}
	flush()
	return out
}
