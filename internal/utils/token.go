package utils

import "time"

// TokenData is the decoded identity carried by a bearer token.
type TokenData struct {
	UserID    string
	Role      string
	ExpiresAt time.Time
}
