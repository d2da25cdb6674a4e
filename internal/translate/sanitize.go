package translate

import (
	"strings"
	"unicode/utf8"
)

// minDisplayRunes is the threshold below which sanitized output is
// considered unusable and the original content is displayed instead.
const minDisplayRunes = 3

// markerTokens are model-internal placeholders that must never reach the UI.
var markerTokens = []string{"<pad>", "<s>", "</s>", "<unk>", "[CLS]", "[SEP]"}

// Sanitize strips model-internal placeholder tokens from translated content
// and normalizes whitespace. SentencePiece word boundaries (▁) become
// spaces and WordPiece continuation markers (##) are removed.
func Sanitize(s string) string {
	for _, tok := range markerTokens {
		s = strings.ReplaceAll(s, tok, "")
	}
	s = strings.ReplaceAll(s, "▁", " ")
	s = strings.ReplaceAll(s, "##", "")
	return strings.Join(strings.Fields(s), " ")
}

// Displayable reports whether sanitized content is long enough to show in
// place of the original.
func Displayable(sanitized string) bool {
	return utf8.RuneCountInString(sanitized) >= minDisplayRunes
}
