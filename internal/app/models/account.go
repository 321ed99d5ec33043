package models

import "time"

// Guest sessions use a reserved sentinel id/token pair. Real account ids are
// UUIDs and issued tokens are UUIDs, so the sentinel can never collide with
// an issued credential.
const (
	GuestID    = "-1"
	GuestToken = "-1"
	GuestName  = "Guest"
)

// Account is a row in the account store. The password hash never leaves the
// account domain.
type Account struct {
	ID           string
	Email        string
	Name         string
	ProfilePhoto string
	PasswordHash string
	Token        string
	Points       int64
	CreatedAt    time.Time
}

// Session is the per-request account context derived from the envelope
// credentials. It is never persisted across requests.
type Session struct {
	AccountID string
	Token     string
	IsGuest   bool
}

// NewSession derives a session context from envelope credentials. Only the
// explicit sentinel pair is a guest; missing credentials stay empty and fail
// validation downstream.
func NewSession(accountID, token string) Session {
	return Session{
		AccountID: accountID,
		Token:     token,
		IsGuest:   accountID == GuestID && token == GuestToken,
	}
}
