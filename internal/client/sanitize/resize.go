package sanitize

import "errors"

// ErrUnmeasurable is returned by a Measurer that cannot inspect a frame's
// document.
var ErrUnmeasurable = errors.New("frame content cannot be measured")

// Measurer reports the content height of a loaded frame.
type Measurer interface {
	Measure(f Frame) (int, error)
}

type MeasurerFunc func(f Frame) (int, error)

func (fn MeasurerFunc) Measure(f Frame) (int, error) {
	return fn(f)
}

// Sizing holds the minimum height and the buffer added to measured content,
// in whatever unit the Measurer reports.
type Sizing struct {
	Min    int
	Buffer int
}

var PixelSizing = Sizing{Min: MinFrameHeight, Buffer: FrameBuffer}

// Fit returns the height f should take once loaded: the measured content
// plus the buffer, never below the minimum. Frames that cannot be measured
// keep the minimum.
func (s Sizing) Fit(f Frame, m Measurer) int {
	h, err := m.Measure(f)
	if err != nil || h <= 0 {
		return s.Min
	}
	return max(h+s.Buffer, s.Min)
}

// Resize is the follow-up pass run after frames have been inserted. It
// returns a copy of frames with Height set.
func (s Sizing) Resize(frames []Frame, m Measurer) []Frame {
	out := make([]Frame, len(frames))
	for i, f := range frames {
		f.Height = s.Fit(f, m)
		out[i] = f
	}
	return out
}
