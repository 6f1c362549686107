package entity

import "time"

// Session stores an issued session token with device metadata.
// Lifetime is fixed at creation; validation never extends expiry.
type Session struct {
	ID           uint       `gorm:"primaryKey" json:"id"`
	UserID       uint       `gorm:"not null;index" json:"user_id"`
	SessionToken string     `gorm:"size:255;not null;uniqueIndex" json:"-"`
	DeviceInfo   string     `gorm:"type:text;not null;default:''" json:"device_info"`
	CreatedAt    time.Time  `gorm:"not null" json:"created_at"`
	ExpiresAt    time.Time  `gorm:"not null;index" json:"expires_at"`
	RevokedAt    *time.Time `gorm:"index" json:"revoked_at,omitempty"`
}

func (Session) TableName() string {
	return "sessions"
}

// IsValid checks session validity at the given instant.
func (s *Session) IsValid(now time.Time) bool {
	return s.RevokedAt == nil && !now.After(s.ExpiresAt)
}

// SessionInfo returns safe session details for clients (no token value).
func (s *Session) SessionInfo() map[string]interface{} {
	info := map[string]interface{}{
		"id":          s.ID,
		"device_info": s.DeviceInfo,
		"created_at":  s.CreatedAt,
		"expires_at":  s.ExpiresAt,
	}
	if s.RevokedAt != nil {
		info["revoked_at"] = s.RevokedAt
	}
	return info
}
