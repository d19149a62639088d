package session

import "fmt"

// Status is the externally observable state of a session.
type Status int

const (
	StatusIdle Status = iota
	StatusConnecting
	StatusJoining
	StatusMatched
	StatusNegotiating
	StatusConnected
	StatusReconnecting
	StatusDisconnected
	StatusFailed
	StatusClosed
)

var statusNames = [...]string{
	StatusIdle:         "idle",
	StatusConnecting:   "connecting",
	StatusJoining:      "joining",
	StatusMatched:      "matched",
	StatusNegotiating:  "negotiating",
	StatusConnected:    "connected",
	StatusReconnecting: "reconnecting",
	StatusDisconnected: "disconnected",
	StatusFailed:       "failed",
	StatusClosed:       "closed",
}

func (s Status) String() string {
	if s >= 0 && int(s) < len(statusNames) {
		return statusNames[s]
	}
	return fmt.Sprintf("status(%d)", int(s))
}

// Startable reports whether Start is accepted in this status.
func (s Status) Startable() bool {
	return s == StatusIdle || s == StatusFailed || s == StatusDisconnected
}

// InRoom reports whether a room is assigned in this status.
func (s Status) InRoom() bool {
	return s == StatusMatched || s == StatusNegotiating || s == StatusConnected
}
