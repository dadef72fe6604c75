package sanitize

import "strings"

const (
	fenceOpen  = "```html"
	fenceClose = "```"
	preOpen    = "<pre><code"
	preClose   = "</code></pre>"
)

// block is one candidate markup region; start/end cover the delimiters,
// content is the raw text between them.
type block struct {
	start, end int
	content    string
}

// scanBlocks finds fenced html blocks and <pre><code> blocks in order of
// appearance. Unterminated blocks are ignored.
func scanBlocks(s string) []block {
	lower := asciiLower(s)

	var out []block
	for i := 0; i < len(s); {
		f := indexFrom(lower, fenceOpen, i)
		p := indexFrom(lower, preOpen, i)
		if f < 0 && p < 0 {
			break
		}

		if f >= 0 && (p < 0 || f < p) {
			contentStart := f + len(fenceOpen)
			end := indexFrom(lower, fenceClose, contentStart)
			if end < 0 {
				i = contentStart
				continue
			}
			out = append(out, block{start: f, end: end + len(fenceClose), content: s[contentStart:end]})
			i = end + len(fenceClose)
			continue
		}

		tagEnd := indexFrom(s, ">", p+len(preOpen))
		if tagEnd < 0 {
			i = p + len(preOpen)
			continue
		}
		contentStart := tagEnd + 1
		end := indexFrom(lower, preClose, contentStart)
		if end < 0 {
			i = contentStart
			continue
		}
		out = append(out, block{start: p, end: end + len(preClose), content: s[contentStart:end]})
		i = end + len(preClose)
	}
	return out
}

func indexFrom(s, substr string, from int) int {
	if from > len(s) {
		return -1
	}
	idx := strings.Index(s[from:], substr)
	if idx < 0 {
		return -1
	}
	return from + idx
}

// asciiLower lowercases ASCII letters only so byte offsets stay aligned with s.
func asciiLower(s string) string {
	b := []byte(s)
	for i, c := range b {
		if 'A' <= c && c <= 'Z' {
			b[i] = c + ('a' - 'A')
		}
	}
	return string(b)
}
