package render

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
	"github.com/muesli/reflow/wordwrap"
	"github.com/muesli/reflow/wrap"

	"github.com/cloudzz-dev/cldzlive/internal/client/sanitize"
)

// RowHeight converts the pixel quantities of the chat view (scroll
// threshold, frame sizes) to terminal rows.
const RowHeight = 16 // px

// Rows rounds px up to whole terminal rows.
func Rows(px int) int {
	if px <= 0 {
		return 0
	}
	return (px + RowHeight - 1) / RowHeight
}

// FrameSizing is sanitize.PixelSizing expressed in rows.
var FrameSizing = sanitize.Sizing{
	Min:    Rows(sanitize.MinFrameHeight),
	Buffer: Rows(sanitize.FrameBuffer),
}

var strict = bluemonday.StrictPolicy()

var blockBreaks = strings.NewReplacer(
	"<br>", "\n", "<br/>", "\n", "<br />", "\n",
	"</p>", "\n", "</div>", "\n", "</li>", "\n",
	"</h1>", "\n", "</h2>", "\n", "</h3>", "\n",
	"</tr>", "\n", "</pre>", "\n",
)

// Flatten reduces markup to the plain text a terminal can show.
func Flatten(markup string) string {
	text := strict.Sanitize(blockBreaks.Replace(markup))
	return strings.TrimSpace(html.UnescapeString(text))
}

// Wrap word-wraps s at width, breaking words longer than a line.
func Wrap(s string, width int) string {
	if width <= 0 {
		return s
	}
	return wrap.String(wordwrap.String(s, width), width)
}

// TextMeasurer measures a frame by the rows its flattened document takes at
// Width. Documents without visible text cannot be measured.
type TextMeasurer struct {
	Width int
}

func (tm TextMeasurer) Measure(f sanitize.Frame) (int, error) {
	text := Flatten(f.SrcDoc)
	if text == "" {
		return 0, sanitize.ErrUnmeasurable
	}
	return strings.Count(Wrap(text, tm.Width), "\n") + 1, nil
}
