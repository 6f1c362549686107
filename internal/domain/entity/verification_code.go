package entity

import "time"

// VerificationCode stores a hashed one-time email login code.
// The plaintext 6-digit code is never persisted; only a salted hash is kept.
// Older rows for the same email are left in place when a new code is issued —
// the used flag and expiry make them inert.
type VerificationCode struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Email     string    `gorm:"size:120;not null;index" json:"email"`
	CodeHash  string    `gorm:"size:64;not null" json:"-"`
	CodeSalt  string    `gorm:"size:64;not null" json:"-"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
	ExpiresAt time.Time `gorm:"not null;index" json:"expires_at"`
	Attempts  int       `gorm:"not null;default:0" json:"attempts"`
	Used      bool      `gorm:"not null;default:false" json:"used"`
}

func (VerificationCode) TableName() string {
	return "verification_codes"
}

func (c *VerificationCode) IsExpired(now time.Time) bool {
	return now.After(c.ExpiresAt)
}

// AttemptsExhausted reports whether the code has already burned through the
// allowed number of failed submissions.
func (c *VerificationCode) AttemptsExhausted(max int) bool {
	return c.Attempts >= max
}
