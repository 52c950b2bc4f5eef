package voice

import (
	"regexp"
	"strings"
	"unicode"
)

var (
	fencedCode   = regexp.MustCompile("(?s)```.*?```")
	inlineCode   = regexp.MustCompile("`[^`]*`")
	markdownLink = regexp.MustCompile(`\[(.*?)\]\((.*?)\)`)
	bareURL      = regexp.MustCompile(`https?://\S+`)
	markupRunes  = strings.NewReplacer("*", " ", "_", " ", "#", " ", "~", " ", "|", " ", "<", " ", ">", " ", "\\", " ", "/", " ")
)

// speakable strips markdown, links and emoji from a reply before synthesis.
func speakable(text string) string {
	text = fencedCode.ReplaceAllString(text, " ")
	text = inlineCode.ReplaceAllString(text, " ")
	text = markdownLink.ReplaceAllString(text, "$1")
	text = bareURL.ReplaceAllString(text, " ")
	text = markupRunes.Replace(text)

	var b strings.Builder
	b.Grow(len(text))
	for _, r := range text {
		switch {
		case unicode.IsSpace(r):
			b.WriteByte(' ')
		case unicode.IsControl(r), unicode.In(r, unicode.So, unicode.Sk, unicode.Sm), r == '\u200d', r == '\ufe0f':
		case unicode.IsPunct(r) && !strings.ContainsRune(".,!?:;'\"-()", r):
			b.WriteByte(' ')
		default:
			b.WriteRune(r)
		}
	}
	return strings.Join(strings.Fields(b.String()), " ")
}
