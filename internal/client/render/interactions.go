package render

import (
	"fmt"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

type actions struct {
	copy   func() error
	branch func() error // nil when the entry cannot be branched
}

// BindInteractions attaches copy and branch handlers to every entry that
// has none yet and returns how many were bound. Calling it after every
// batch is safe; an entry is only ever bound once.
func (r *Renderer) BindInteractions() int {
	n := 0
	for _, p := range []*pane{r.live, r.user} {
		for _, e := range p.entries {
			if e.actions != nil {
				continue
			}
			e.actions = r.bind(e)
			n++
		}
	}
	return n
}

func (r *Renderer) bind(e *Entry) *actions {
	m := e.Message
	a := &actions{
		copy: func() error {
			if err := r.copy(m.Body); err != nil {
				return fmt.Errorf("copy to clipboard: %w", err)
			}
			return nil
		},
	}
	if r.branch != nil && m.Pane == message.PaneLive && m.HasFloor {
		a.branch = func() error { return r.branch(m) }
	}
	return a
}

// Copy runs the copy interaction of an entry.
func (r *Renderer) Copy(entryID string) error {
	e, ok := r.byID[entryID]
	if !ok {
		return ErrNoEntry
	}
	if e.actions == nil {
		return ErrUnbound
	}
	return e.actions.copy()
}

// Branch runs the branch interaction of an entry.
func (r *Renderer) Branch(entryID string) error {
	e, ok := r.byID[entryID]
	if !ok {
		return ErrNoEntry
	}
	if e.actions == nil {
		return ErrUnbound
	}
	if e.actions.branch == nil {
		return ErrNoBranch
	}
	return e.actions.branch()
}
