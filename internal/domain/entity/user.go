package entity

import "time"

// User представляет пользователя портала. Учетная запись создается при первом
// успешном входе по email-коду, отдельной регистрации нет.
type User struct {
	ID        uint      `gorm:"primaryKey" json:"id"`
	Username  string    `gorm:"size:80;uniqueIndex;default:null" json:"username,omitempty"`
	Email     string    `gorm:"size:120;not null;uniqueIndex" json:"email"`
	IsActive  bool      `gorm:"not null;default:true" json:"is_active"`
	IsAdmin   bool      `gorm:"not null;default:false" json:"is_admin"`
	CreatedAt time.Time `gorm:"not null;default:CURRENT_TIMESTAMP" json:"created_at"`
}

// TableName определяет имя таблицы для GORM
func (User) TableName() string {
	return "users"
}
