package models

import "time"

// SessionEvent represents a state transition event for a session
type SessionEvent struct {
	SessionID  string         `json:"session_id"`
	At         time.Time      `json:"at"`
	FromStatus *SessionStatus `json:"from_status,omitempty"`
	ToStatus   SessionStatus  `json:"to_status"`
	Reason     string         `json:"reason"`
}
