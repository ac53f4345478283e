package models

import (
	"time"

	"gorm.io/gorm"
)

// User mirrors the identity service's view of a student. The matching core
// only reads it.
type User struct {
	ID         uint      `gorm:"primaryKey"`
	TelegramID int64     `gorm:"index"`
	Gender     string    `gorm:"type:varchar(10);not null"`
	Verified   bool      `gorm:"default:false;not null;index"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
	UpdatedAt  time.Time `gorm:"autoUpdateTime"`
}

const (
	GenderMale   = "male"
	GenderFemale = "female"
)

// Category is the binary attribute used only to gate blind-date pairing.
type Category string

const (
	CategoryMale   Category = GenderMale
	CategoryFemale Category = GenderFemale
)

func (c Category) Valid() bool {
	return c == CategoryMale || c == CategoryFemale
}

// Opposite returns the category a requester is paired with.
func (c Category) Opposite() Category {
	switch c {
	case CategoryMale:
		return CategoryFemale
	case CategoryFemale:
		return CategoryMale
	}
	return ""
}

// BeforeSave hook for validation
func (u *User) BeforeSave(tx *gorm.DB) error {
	if !Category(u.Gender).Valid() {
		return gorm.ErrInvalidData
	}
	return nil
}

// TableName specifies the table name
func (User) TableName() string {
	return "users"
}
