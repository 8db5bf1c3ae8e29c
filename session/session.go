package session

import (
	"time"
)

// Session is an account connected to a character-select front end. The
// front end owns the connection; the char server only tracks presence.
type Session struct {
	AccountID int32
	Remote    string
	LoginAt   time.Time
}

// New creates a Session for accountID logged in now.
func New(accountID int32, remote string) *Session {
	return &Session{
		AccountID: accountID,
		Remote:    remote,
		LoginAt:   time.Now(),
	}
}
