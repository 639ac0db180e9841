package chat

import "strings"

// State is a point-in-time copy of the widget session.
type State struct {
	Open         bool `json:"open"`
	Typing       bool `json:"typing"`
	BadgeVisible bool `json:"badgeVisible"`
}

// Session tracks the open/closed state and the typing flag of one widget.
// It is not safe for concurrent use; the owning widget serializes access.
type Session struct {
	open   bool
	typing bool
	badge  bool
}

// NewSession returns a closed, idle session. showBadge controls the unread indicator.
func NewSession(showBadge bool) *Session {
	return &Session{badge: showBadge}
}

// Toggle flips between open and closed and reports the new open state.
func (s *Session) Toggle() bool {
	if s.open {
		s.Close()
	} else {
		s.Open()
	}
	return s.open
}

// Open moves to the open state and suppresses the unread badge.
func (s *Session) Open() {
	s.open = true
	s.badge = false
}

// Close moves to the closed state.
func (s *Session) Close() {
	s.open = false
}

// BeginSend claims the typing flag for text. Blank input or an outstanding
// send leaves the session untouched and returns ok=false.
func (s *Session) BeginSend(text string) (trimmed string, ok bool) {
	trimmed = strings.TrimSpace(text)
	if trimmed == "" || s.typing {
		return "", false
	}
	s.typing = true
	return trimmed, true
}

// EndSend releases the typing flag.
func (s *Session) EndSend() {
	s.typing = false
}

// IsOpen reports whether the window is open.
func (s *Session) IsOpen() bool { return s.open }

// IsTyping reports whether a response is being resolved.
func (s *Session) IsTyping() bool { return s.typing }

// Snapshot copies the current state.
func (s *Session) Snapshot() State {
	return State{Open: s.open, Typing: s.typing, BadgeVisible: s.badge}
}
