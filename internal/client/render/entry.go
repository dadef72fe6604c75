package render

import (
	"strings"

	"github.com/google/uuid"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
	"github.com/cloudzz-dev/cldzlive/internal/client/metrics"
	"github.com/cloudzz-dev/cldzlive/internal/client/sanitize"
)

// Entry is one rendered message.
type Entry struct {
	ID      string
	Message message.Message
	Frames  []sanitize.Frame

	segments []sanitize.Segment
	actions  *actions
	rendered string
	width    int
}

func newEntry(m message.Message) *Entry {
	e := &Entry{ID: uuid.NewString(), Message: m}
	res := sanitize.Transform(m.Body)
	e.segments = res.Segments()
	e.Frames = res.Frames
	if len(res.Frames) > 0 {
		metrics.FramesEmbedded.Add(float64(len(res.Frames)))
	}
	return e
}

// Bound reports whether the entry's interactions are attached.
func (e *Entry) Bound() bool {
	return e.actions != nil
}

// frameHeight is the drawn height of a frame; unsized frames take the
// minimum.
func (e *Entry) frameHeight(id string) int {
	for _, f := range e.Frames {
		if f.ID == id && f.Height > 0 {
			return f.Height
		}
	}
	return FrameSizing.Min
}

// frameTextWidth is the wrap width inside a frame box drawn in a pane of
// paneWidth columns.
func frameTextWidth(paneWidth int) int {
	box := paneWidth - 4
	if limit := sanitize.ContainerWidth / 8; box > limit {
		box = limit
	}
	return box - 2
}

func (e *Entry) render(width int) string {
	if e.rendered != "" && e.width == width {
		return e.rendered
	}

	m := e.Message
	var name string
	switch {
	case m.Source == message.SourceLocal:
		name = localNameStyle.Render(m.SenderName)
	case m.IsUser:
		name = userNameStyle.Render(m.SenderName)
	default:
		name = aiNameStyle.Render(m.SenderName)
	}

	var b strings.Builder
	b.WriteString(timeStyle.Render(m.SentAt))
	b.WriteString(" ")
	b.WriteString(name)

	inner := width - 2
	for _, seg := range e.segments {
		if seg.Frame != nil {
			b.WriteString("\n")
			b.WriteString(indent(e.renderFrame(*seg.Frame, width)))
			continue
		}
		// user-authored text is shown as typed
		text := seg.Text
		if !m.IsUser {
			text = Flatten(text)
		}
		if strings.TrimSpace(text) == "" {
			continue
		}
		b.WriteString("\n")
		b.WriteString(indent(Wrap(text, inner)))
	}

	e.rendered = b.String()
	e.width = width
	return e.rendered
}

// renderFrame draws a frame as a bordered box of its current height.
func (e *Entry) renderFrame(f sanitize.Frame, paneWidth int) string {
	textWidth := frameTextWidth(paneWidth)
	height := e.frameHeight(f.ID)

	lines := strings.Split(Wrap(Flatten(f.SrcDoc), textWidth), "\n")
	if len(lines) > height {
		lines = lines[:height]
	}
	return frameStyle.Width(textWidth + 2).Height(height).Render(strings.Join(lines, "\n"))
}

func indent(s string) string {
	return "  " + strings.ReplaceAll(s, "\n", "\n  ")
}
