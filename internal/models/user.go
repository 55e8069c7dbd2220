package models

import (
	"time"

	"github.com/segmentio/ksuid"
	"gorm.io/gorm"
)

// User is a registered account. Only the boundary CRUD layer touches it;
// the sync core sees users as opaque ids carried in identity tokens.
type User struct {
	ID           string    `json:"id" gorm:"type:char(27);primaryKey"`
	Name         string    `json:"name" gorm:"type:text;not null"`
	Email        string    `json:"email" gorm:"type:text;not null;uniqueIndex"`
	PasswordHash string    `json:"-" gorm:"type:text;not null"`
	Avatar       string    `json:"avatar,omitempty" gorm:"type:text"`
	CreatedAt    time.Time `json:"created_at" gorm:"autoCreateTime"`
	UpdatedAt    time.Time `json:"updated_at" gorm:"autoUpdateTime"`
}

func (u *User) BeforeCreate(tx *gorm.DB) error {
	if u.ID == "" {
		u.ID = ksuid.New().String()
	}
	return nil
}

type UserSignup struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type UserLogin struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}
