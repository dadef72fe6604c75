// Package ui is the terminal chat view: a bubbletea model that owns the
// renderer and session and receives everything the producers deliver as
// messages.
package ui

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/rs/zerolog"

	"github.com/cloudzz-dev/cldzlive/internal/client/api"
	"github.com/cloudzz-dev/cldzlive/internal/client/conn"
	"github.com/cloudzz-dev/cldzlive/internal/client/message"
	"github.com/cloudzz-dev/cldzlive/internal/client/ratelimit"
	"github.com/cloudzz-dev/cldzlive/internal/client/render"
	"github.com/cloudzz-dev/cldzlive/internal/client/session"
)

const forkTimeout = 10 * time.Second

// --- Messages ---

type PollBatchMsg struct {
	RoomID string
	Batch  []message.Message
}

type PushMsg struct {
	Message message.Message
}

type StateMsg struct {
	State conn.State
}

type frameLoadedMsg struct {
	entryID string
}

type sentMsg struct {
	err error
}

type noticeMsg struct {
	text string
	err  bool
}

// --- Collaborators ---

type Sender interface {
	Send(payload message.Outbound) error
	Degraded() bool
}

type HistorySaver interface {
	SaveHistoryAsync(entry api.HistoryEntry)
}

type Forker interface {
	ForkPreview(ctx context.Context, targetID, roomID string, lastFloor int) (*api.ForkPreview, error)
}

type Deps struct {
	Session *session.State
	Sender  Sender
	History HistorySaver
	Forker  Forker // nil disables branching
	// AnchorID is the fork target; branching is disabled without it.
	AnchorID string
	Limiter  *ratelimit.Limiter // nil sends without limit

	Copy   func(string) error
	Logger zerolog.Logger
}

// Model is the chat view.
type Model struct {
	sess     *session.State
	renderer *render.Renderer
	sender   Sender
	history  HistorySaver
	forker   Forker
	anchorID string
	limiter  *ratelimit.Limiter
	log      zerolog.Logger

	input   textinput.Model
	focus   message.Pane
	branchQ []message.Message

	state    conn.State
	degraded bool
	notice   string
	noticeOK bool

	width  int
	height int
}

func New(d Deps) *Model {
	input := textinput.New()
	input.Placeholder = "Type a message..."
	input.CharLimit = 1000
	input.Width = 50
	input.Focus()

	m := &Model{
		sess:     d.Session,
		sender:   d.Sender,
		history:  d.History,
		forker:   d.Forker,
		anchorID: d.AnchorID,
		limiter:  d.Limiter,
		log:      d.Logger,
		input:    input,
		focus:    message.PaneLive,
	}

	opts := render.Options{Copy: d.Copy, Logger: d.Logger}
	if d.Forker != nil && d.AnchorID != "" {
		opts.Branch = m.queueBranch
	}
	m.renderer = render.New(d.Session, opts)
	return m
}

// Renderer exposes the panes for inspection.
func (m *Model) Renderer() *render.Renderer {
	return m.renderer
}

func (m *Model) queueBranch(msg message.Message) error {
	m.branchQ = append(m.branchQ, msg)
	return nil
}

// --- Init ---

func (m *Model) Init() tea.Cmd {
	return textinput.Blink
}

// --- Update ---

func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		switch msg.String() {
		case "ctrl+c", "esc":
			return m, tea.Quit

		case "enter":
			return m, m.send()

		case "tab":
			if m.focus == message.PaneLive {
				m.focus = message.PaneUser
			} else {
				m.focus = message.PaneLive
			}
			return m, nil

		case "pgup", "pgdown", "up", "down":
			return m, m.renderer.Update(m.focus, msg)

		case "ctrl+y":
			m.copyLast()
			return m, nil

		case "ctrl+b":
			return m, m.branchLast()
		}

	case tea.MouseMsg:
		return m, m.renderer.Update(m.focus, msg)

	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)

	case PollBatchMsg:
		cmds = append(cmds, m.appendAll(msg.Batch)...)
		if len(msg.Batch) > 0 && m.sess.CompleteInitialLoad() {
			m.renderer.AnchorBottom()
			m.log.Debug().Str("room", msg.RoomID).Msg("[ui] initial load complete")
		}

	case PushMsg:
		cmds = append(cmds, m.appendAll([]message.Message{msg.Message})...)

	case StateMsg:
		m.state = msg.State
		if m.sender != nil {
			m.degraded = m.sender.Degraded()
		}

	case frameLoadedMsg:
		m.renderer.ResizeFrames(msg.entryID)

	case sentMsg:
		if msg.err != nil {
			m.setNotice(fmt.Sprintf("send failed: %v", msg.err), false)
		}

	case noticeMsg:
		m.setNotice(msg.text, !msg.err)
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	cmds = append(cmds, cmd)
	return m, tea.Batch(cmds...)
}

// appendAll renders msgs in order, binds the new entries and schedules the
// resize pass for any frames they embed.
func (m *Model) appendAll(msgs []message.Message) []tea.Cmd {
	var cmds []tea.Cmd
	for _, msg := range msgs {
		e := m.renderer.Append(msg)
		if len(e.Frames) > 0 {
			cmds = append(cmds, frameLoaded(e.ID))
		}
	}
	m.renderer.BindInteractions()
	return cmds
}

func frameLoaded(entryID string) tea.Cmd {
	return func() tea.Msg {
		return frameLoadedMsg{entryID: entryID}
	}
}

func (m *Model) send() tea.Cmd {
	if err := m.sess.RequireLogin(); err != nil {
		m.setNotice(err.Error(), false)
		return nil
	}
	text := strings.TrimSpace(m.input.Value())
	if text == "" {
		return nil
	}
	if m.limiter != nil && !m.limiter.Allow() {
		m.setNotice(fmt.Sprintf("slow down, try again in %s", m.limiter.Retry().Round(time.Second)), false)
		return nil
	}
	m.input.SetValue("")

	if _, err := m.renderer.AppendLocal(text); err != nil {
		return nil
	}
	m.renderer.BindInteractions()

	payload := message.Outbound{Message: text, Username: m.sess.Username}
	entry := api.HistoryEntry{
		RoomID:      m.sess.RoomID,
		RoomName:    m.sess.RoomName,
		Username:    m.sess.Username,
		UserMessage: text,
	}
	sender, history := m.sender, m.history
	return func() tea.Msg {
		var err error
		if sender != nil {
			err = sender.Send(payload)
		}
		if history != nil {
			history.SaveHistoryAsync(entry)
		}
		return sentMsg{err: err}
	}
}

func (m *Model) copyLast() {
	e := m.renderer.Last(m.focus)
	if e == nil {
		return
	}
	if err := m.renderer.Copy(e.ID); err != nil {
		m.setNotice(err.Error(), false)
		return
	}
	m.setNotice("copied", true)
}

func (m *Model) branchLast() tea.Cmd {
	e := m.renderer.Last(message.PaneLive)
	if e == nil {
		return nil
	}
	if err := m.renderer.Branch(e.ID); err != nil {
		m.setNotice(err.Error(), false)
		return nil
	}

	var cmds []tea.Cmd
	for _, msg := range m.branchQ {
		cmds = append(cmds, m.forkPreview(msg))
	}
	m.branchQ = nil
	return tea.Batch(cmds...)
}

func (m *Model) forkPreview(msg message.Message) tea.Cmd {
	forker, target, room := m.forker, m.anchorID, m.sess.RoomID
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), forkTimeout)
		defer cancel()

		preview, err := forker.ForkPreview(ctx, target, room, msg.Floor)
		if err != nil {
			return noticeMsg{text: fmt.Sprintf("branch failed: %v", err), err: true}
		}
		return noticeMsg{text: fmt.Sprintf("branch ready: %d messages up to floor %d", len(preview.ChatInfo), msg.Floor)}
	}
}

func (m *Model) setNotice(text string, ok bool) {
	m.notice = text
	m.noticeOK = ok
}

func (m *Model) resize(width, height int) {
	m.width = width
	m.height = height

	paneHeight := height - 7
	if paneHeight < 3 {
		paneHeight = 3
	}
	liveWidth := width * 3 / 5
	userWidth := width - liveWidth - 1

	m.renderer.SetSize(message.PaneLive, liveWidth-2, paneHeight)
	m.renderer.SetSize(message.PaneUser, userWidth-2, paneHeight)
	m.input.Width = width - 4
}
