// Package sanitize isolates complete markup documents embedded in chat text
// into sandboxed inline frames. Everything else in a message body is passed
// through untouched.
package sanitize

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"golang.org/x/net/html"
)

// Frame is one isolated rendering surface produced by Transform.
type Frame struct {
	ID     string
	SrcDoc string // decoded markup, unescaped
	Height int    // zero until the resize pass has run
}

type Result struct {
	HTML      string
	UsesFrame bool
	Frames    []Frame

	segments []Segment
}

// Segment is a run of the transformed body: either untouched text or one
// frame. Concatenating the segments in order yields the body with each
// complete document lifted out.
type Segment struct {
	Text  string
	Frame *Frame
}

// Segments splits the result for surfaces that draw frames themselves
// instead of emitting iframe markup.
func (r Result) Segments() []Segment {
	if r.segments == nil {
		return []Segment{{Text: r.HTML}}
	}
	return r.segments
}

const (
	MinFrameHeight = 200 // px
	FrameBuffer    = 20  // px
	ContainerWidth = 800 // px
)

// Transform scans body for fenced html blocks, turns the ones holding a
// complete document into frames and leaves the rest of the body as is.
func Transform(body string) Result {
	blocks := scanBlocks(body)
	if len(blocks) == 0 {
		return Result{HTML: body}
	}

	var (
		out      strings.Builder
		frames   []Frame
		segments []Segment
		tokens   = make(map[string]Frame)
		last     int
	)
	for _, b := range blocks {
		decoded := html.UnescapeString(b.content)
		if !IsCompleteDocument(decoded) {
			continue
		}
		f := Frame{ID: uuid.NewString(), SrcDoc: decoded}
		token := placeholder(f.ID)
		tokens[token] = f
		frames = append(frames, f)
		if b.start > last {
			segments = append(segments, Segment{Text: body[last:b.start]})
		}
		segments = append(segments, Segment{Frame: &f})

		out.WriteString(body[last:b.start])
		out.WriteString(token)
		last = b.end
	}
	if len(frames) == 0 {
		return Result{HTML: body}
	}
	out.WriteString(body[last:])
	if last < len(body) {
		segments = append(segments, Segment{Text: body[last:]})
	}

	rendered := out.String()
	for token, f := range tokens {
		rendered = strings.Replace(rendered, token, frameMarkup(f), 1)
	}
	return Result{HTML: rendered, UsesFrame: true, Frames: frames, segments: segments}
}

// IsCompleteDocument reports whether markup carries an html, head or body
// start tag. It is a heuristic, not a parse.
func IsCompleteDocument(markup string) bool {
	z := html.NewTokenizer(strings.NewReader(markup))
	for {
		switch z.Next() {
		case html.ErrorToken:
			return false
		case html.StartTagToken, html.SelfClosingTagToken:
			name, _ := z.TagName()
			switch string(name) {
			case "html", "head", "body":
				return true
			}
		}
	}
}

func placeholder(id string) string {
	return "\x00frame:" + id + "\x00"
}

var attrEscaper = strings.NewReplacer(
	"&", "&amp;",
	`"`, "&quot;",
	"'", "&#39;",
)

// EscapeSrcDoc escapes markup for use inside a double-quoted srcdoc attribute.
func EscapeSrcDoc(markup string) string {
	return attrEscaper.Replace(markup)
}

func frameMarkup(f Frame) string {
	return fmt.Sprintf(
		`<div class="html-frame-container" style="width:100%%;max-width:%dpx;">`+
			`<iframe class="html-frame" data-frame-id="%s" sandbox="allow-same-origin" loading="lazy" `+
			`style="width:100%%;min-height:%dpx;border:none;" srcdoc="%s"></iframe></div>`,
		ContainerWidth, f.ID, MinFrameHeight, EscapeSrcDoc(f.SrcDoc),
	)
}
