// Package ledger tracks the highest floor seen per room and gates the poll
// path on it.
package ledger

import (
	"sync"

	"github.com/cloudzz-dev/cldzlive/internal/client/message"
)

// Watermark holds lastFloor for one room. It never decreases.
type Watermark struct {
	roomID string

	mu        sync.Mutex
	lastFloor int
}

func NewWatermark(roomID string) *Watermark {
	return &Watermark{roomID: roomID}
}

func (w *Watermark) RoomID() string {
	return w.roomID
}

func (w *Watermark) LastFloor() int {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.lastFloor
}

// Admit accepts m when its floor is above lastFloor and advances lastFloor to
// it. Messages without a floor are never accepted.
func (w *Watermark) Admit(m message.Message) bool {
	if !m.HasFloor {
		return false
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	if m.Floor <= w.lastFloor {
		return false
	}
	w.lastFloor = m.Floor
	return true
}

// Ledger is the set of watermarks for the rooms active in this session.
type Ledger struct {
	mu    sync.Mutex
	rooms map[string]*Watermark
}

func New() *Ledger {
	return &Ledger{rooms: make(map[string]*Watermark)}
}

// Room returns the watermark for roomID, creating it at floor 0.
func (l *Ledger) Room(roomID string) *Watermark {
	l.mu.Lock()
	defer l.mu.Unlock()
	w, ok := l.rooms[roomID]
	if !ok {
		w = NewWatermark(roomID)
		l.rooms[roomID] = w
	}
	return w
}

// Forget discards the watermark of a room the view has left.
func (l *Ledger) Forget(roomID string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.rooms, roomID)
}
