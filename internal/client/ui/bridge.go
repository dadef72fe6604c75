package ui

import (
	"sync"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/cloudzz-dev/cldzlive/internal/client/conn"
	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

// Program is the part of *tea.Program the bridge needs.
type Program interface {
	Send(msg tea.Msg)
}

// Bridge turns producer callbacks (poll batches, push frames, connection
// states) into messages for the UI loop, so every render happens in Update.
// It satisfies poll.Sink and conn.Sink.
type Bridge struct {
	mu sync.RWMutex
	p  Program
}

// Attach sets the program messages go to. Callbacks before Attach are
// dropped.
func (b *Bridge) Attach(p Program) {
	b.mu.Lock()
	b.p = p
	b.mu.Unlock()
}

func (b *Bridge) send(msg tea.Msg) {
	b.mu.RLock()
	p := b.p
	b.mu.RUnlock()
	if p != nil {
		p.Send(msg)
	}
}

func (b *Bridge) DeliverBatch(roomID string, batch []message.Message) {
	b.send(PollBatchMsg{RoomID: roomID, Batch: batch})
}

func (b *Bridge) DeliverPush(m message.Message) {
	b.send(PushMsg{Message: m})
}

func (b *Bridge) OnStateChange(s conn.State) {
	b.send(StateMsg{State: s})
}
