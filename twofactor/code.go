package twofactor

import "time"

// Code is a short-lived SMS verification code. Codes are single use and
// expire ten minutes after creation.
type Code struct {
	ID        string
	UserID    string
	Code      string
	CreatedAt time.Time
	ExpiresAt time.Time
	Used      bool
}

// Valid reports whether the code can still be redeemed at the given time.
func (c *Code) Valid(now time.Time) bool {
	return !c.Used && c.ExpiresAt.After(now)
}

// CodeRepo stores pending SMS verification codes.
type CodeRepo interface {
	// Create persists a new code
	Create(code *Code) error

	// LatestUnused returns the most recently created unused code for a user
	LatestUnused(userID string) (*Code, error)

	// MarkUsed marks a code as redeemed
	MarkUsed(codeID string) error

	// DeleteExpired removes codes that expired before the given time
	DeleteExpired(before time.Time) error
}
