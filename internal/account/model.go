package account

import "time"

// Account represents a registered mailbox owner.
type Account struct {
	ID             string
	Email          string
	PasswordHash   []byte
	PGPFingerprint string
	MailActivated  bool
	TokenVersion   int
	CreatedAt      time.Time
}

// Credentials carries a login attempt.
type Credentials struct {
	Email    string
	Password string
}
