// Package render appends messages into the live and user panes and keeps
// each pane's scroll position the way a reader expects: following new
// content only when already at the bottom.
package render

import (
	"errors"
	"strings"
	"time"

	"github.com/atotto/clipboard"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
	"github.com/cloudzz-dev/cldzlive/internal/client/session"
)

var (
	ErrNoEntry   = errors.New("no such entry")
	ErrUnbound   = errors.New("entry has no interactions bound")
	ErrNoBranch  = errors.New("entry cannot be branched")
	ErrEmptyText = errors.New("nothing to send")
)

type Options struct {
	Width  int // per pane
	Height int

	// Copy writes to the clipboard; defaults to clipboard.WriteAll.
	Copy func(string) error
	// Branch is called for live entries that carry a floor. Nil disables
	// branching.
	Branch func(message.Message) error

	Now    func() time.Time
	Logger zerolog.Logger
}

type pane struct {
	kind    message.Pane
	vp      viewport.Model
	entries []*Entry
}

// nearBottom reports whether the unseen content below the viewport fits
// within thresholdPx.
func (p *pane) nearBottom(thresholdPx int) bool {
	below := p.vp.TotalLineCount() - (p.vp.YOffset + p.vp.Height)
	return below*RowHeight <= thresholdPx
}

func (p *pane) refresh() {
	parts := make([]string, len(p.entries))
	for i, e := range p.entries {
		parts[i] = e.render(p.vp.Width)
	}
	p.vp.SetContent(strings.Join(parts, "\n"))
}

// Renderer owns both panes. It is not safe for concurrent use; the UI
// calls it from its update loop only.
type Renderer struct {
	sess *session.State
	live *pane
	user *pane
	byID map[string]*Entry

	copy   func(string) error
	branch func(message.Message) error
	now    func() time.Time
	log    zerolog.Logger
}

func New(sess *session.State, opts Options) *Renderer {
	if opts.Width <= 0 {
		opts.Width = 80
	}
	if opts.Height <= 0 {
		opts.Height = 20
	}
	if opts.Copy == nil {
		opts.Copy = clipboard.WriteAll
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Renderer{
		sess:   sess,
		live:   &pane{kind: message.PaneLive, vp: viewport.New(opts.Width, opts.Height)},
		user:   &pane{kind: message.PaneUser, vp: viewport.New(opts.Width, opts.Height)},
		byID:   make(map[string]*Entry),
		copy:   opts.Copy,
		branch: opts.Branch,
		now:    opts.Now,
		log:    opts.Logger,
	}
}

func (r *Renderer) pane(p message.Pane) *pane {
	if p == message.PaneLive {
		return r.live
	}
	return r.user
}

// SetSize resizes one pane and re-wraps its content.
func (r *Renderer) SetSize(p message.Pane, width, height int) {
	pn := r.pane(p)
	pn.vp.Width = width
	pn.vp.Height = height
	pn.refresh()
}

// Append routes m to the pane the ingestion adapter chose.
func (r *Renderer) Append(m message.Message) *Entry {
	if m.Pane == message.PaneLive {
		return r.AppendLive(m)
	}
	return r.AppendUser(m)
}

func (r *Renderer) AppendLive(m message.Message) *Entry {
	return r.add(r.live, m, false)
}

func (r *Renderer) AppendUser(m message.Message) *Entry {
	return r.add(r.user, m, false)
}

// AppendLocal echoes a message the viewer just sent into the user pane and
// scrolls to it regardless of the current position.
func (r *Renderer) AppendLocal(text string) (*Entry, error) {
	if strings.TrimSpace(text) == "" {
		return nil, ErrEmptyText
	}
	m := message.Message{
		DataType:   message.DataTypeUnknown,
		SenderName: r.sess.Username,
		IsUser:     true,
		Body:       text,
		SentAt:     r.now().Format(message.TimeLayout),
		Source:     message.SourceLocal,
		Pane:       message.PaneUser,
	}
	return r.add(r.user, m, true), nil
}

func (r *Renderer) add(p *pane, m message.Message, force bool) *Entry {
	follow := force || (!r.sess.InitialLoad() && p.nearBottom(r.sess.BottomThreshold))

	e := newEntry(m)
	p.entries = append(p.entries, e)
	r.byID[e.ID] = e
	p.refresh()

	if follow {
		p.vp.GotoBottom()
	}
	r.log.Debug().
		Str("pane", p.kind.String()).
		Str("source", m.Source.String()).
		Int("floor", m.Floor).
		Bool("scrolled", follow).
		Msg("[render] appended")
	return e
}

// AnchorBottom scrolls both panes to the bottom; used once the initial
// history has landed.
func (r *Renderer) AnchorBottom() {
	r.live.vp.GotoBottom()
	r.user.vp.GotoBottom()
}

// ResizeFrames is the follow-up pass for an entry whose frames have
// loaded: each frame takes the height of its content. It reports whether
// the entry had frames.
func (r *Renderer) ResizeFrames(entryID string) bool {
	e, ok := r.byID[entryID]
	if !ok || len(e.Frames) == 0 {
		return false
	}
	p := r.pane(e.Message.Pane)
	follow := p.vp.AtBottom()

	e.Frames = FrameSizing.Resize(e.Frames, TextMeasurer{Width: frameTextWidth(p.vp.Width)})
	e.rendered = ""
	p.refresh()
	if follow {
		p.vp.GotoBottom()
	}
	return true
}

// Update forwards a key or mouse message to one pane's viewport.
func (r *Renderer) Update(p message.Pane, msg tea.Msg) tea.Cmd {
	pn := r.pane(p)
	var cmd tea.Cmd
	pn.vp, cmd = pn.vp.Update(msg)
	return cmd
}

func (r *Renderer) View(p message.Pane) string {
	return r.pane(p).vp.View()
}

func (r *Renderer) Entries(p message.Pane) []*Entry {
	return r.pane(p).entries
}

// Last returns the newest entry of a pane, or nil.
func (r *Renderer) Last(p message.Pane) *Entry {
	entries := r.pane(p).entries
	if len(entries) == 0 {
		return nil
	}
	return entries[len(entries)-1]
}

func (r *Renderer) AtBottom(p message.Pane) bool {
	return r.pane(p).vp.AtBottom()
}
