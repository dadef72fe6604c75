package session

import (
	"errors"
	"strings"
	"sync/atomic"
)

var ErrNotLoggedIn = errors.New("please log in")

// DefaultBottomThreshold is how close to the bottom a pane must be for an
// append to keep it pinned.
const DefaultBottomThreshold = 50

// State is the identity and view flags of one chat view. It is created when
// the view opens and discarded with it; nothing is written to disk.
type State struct {
	RoomID   string
	RoomName string
	Username string

	BottomThreshold int

	initialLoadDone atomic.Bool
}

func New(roomID, roomName, username string) *State {
	return &State{
		RoomID:          roomID,
		RoomName:        roomName,
		Username:        strings.TrimSpace(username),
		BottomThreshold: DefaultBottomThreshold,
	}
}

// LoggedIn reports a usable username; the server sends "null" for guests.
func (s *State) LoggedIn() bool {
	return s.Username != "" && s.Username != "null"
}

// RequireLogin returns ErrNotLoggedIn for anonymous viewers.
func (s *State) RequireLogin() error {
	if !s.LoggedIn() {
		return ErrNotLoggedIn
	}
	return nil
}

// InitialLoad is true until the first non-empty poll batch has been rendered.
func (s *State) InitialLoad() bool {
	return !s.initialLoadDone.Load()
}

// CompleteInitialLoad flips InitialLoad to false for the rest of the session.
// It reports whether this call made the transition.
func (s *State) CompleteInitialLoad() bool {
	return s.initialLoadDone.CompareAndSwap(false, true)
}
