package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

type Role struct {
	ID   int    `gorm:"primaryKey;autoIncrement" json:"id"`
	Name string `gorm:"uniqueIndex;not null" json:"name"`
}

type User struct {
	ID           string    `gorm:"type:uuid;primaryKey" json:"id"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `gorm:"not null" json:"-"`
	IsActive     bool      `gorm:"not null;default:true" json:"is_active"`
	Roles        []Role    `gorm:"many2many:user_roles" json:"roles"`
	CreatedAt    time.Time `json:"created_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	return nil
}

type Session struct {
	JTI       string     `gorm:"primaryKey;size:64" json:"jti"`
	UserID    string     `gorm:"type:uuid;index;not null" json:"user_id"`
	ExpiresAt time.Time  `gorm:"not null" json:"expires_at"`
	RevokedAt *time.Time `json:"revoked_at,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
}

// AppVersion identifies a released mobile build. Mobile app tokens are issued
// against a specific version.
type AppVersion struct {
	ID          uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	VersionName string    `gorm:"size:20;not null" json:"version_name"`
	Platform    string    `gorm:"size:10;not null" json:"platform"`
	IsSupported bool      `gorm:"not null;default:true" json:"is_supported"`
	CreatedAt   time.Time `json:"created_at"`
}

// Language and Word are the vocabulary resources served through the generic
// CRUD surface. The full learning-content schema is owned by another service.
type Language struct {
	ID        uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Code      string    `gorm:"size:8;uniqueIndex;not null" json:"code"`
	Name      string    `gorm:"size:50;not null" json:"name"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

type Word struct {
	ID         uint      `gorm:"primaryKey;autoIncrement" json:"id"`
	Text       string    `gorm:"size:100;not null;index" json:"text"`
	LanguageID uint      `gorm:"index" json:"language_id"`
	Difficulty int       `gorm:"not null;default:1" json:"difficulty"`
	Notes      string    `json:"notes"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}
