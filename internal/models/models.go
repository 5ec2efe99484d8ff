package models

import (
	"time"

	"gorm.io/datatypes"
)

type User struct {
	ID           uint      `gorm:"primaryKey" json:"id"`
	Username     string    `gorm:"uniqueIndex;not null" json:"username"`
	Email        string    `gorm:"uniqueIndex;not null" json:"email"`
	PasswordHash string    `json:"-"`
	GoogleID     *string   `gorm:"uniqueIndex" json:"-"`
	CreatedAt    time.Time `json:"created_at"`

	Quizzes []Quiz `gorm:"foreignKey:UserID;constraint:OnDelete:CASCADE" json:"-"`
}

type Quiz struct {
	ID          uint      `gorm:"primaryKey" json:"id"`
	UserID      uint      `gorm:"index;not null" json:"-"`
	Title       string    `gorm:"not null" json:"title"`
	Description string    `json:"description"`
	VideoURL    string    `gorm:"not null" json:"video_url"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`

	Questions []Question `gorm:"foreignKey:QuizID;constraint:OnDelete:CASCADE" json:"questions"`
}

type Question struct {
	ID              uint           `gorm:"primaryKey" json:"id"`
	QuizID          uint           `gorm:"index;not null" json:"-"`
	QuestionTitle   string         `gorm:"not null" json:"question_title"`
	QuestionOptions datatypes.JSON `gorm:"not null" json:"question_options"`
	Answer          string         `gorm:"not null" json:"answer"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
}

// RevokedToken records a blacklisted refresh token JTI. A row is written on
// logout and consulted before any refresh token is honored. Rows past
// ExpiresAt are dead weight only, the exp claim already rejects the token.
type RevokedToken struct {
	ID        uint      `gorm:"primaryKey"`
	JTI       string    `gorm:"uniqueIndex;not null"`
	UserID    uint      `gorm:"index"`
	ExpiresAt time.Time `gorm:"index"`
	CreatedAt time.Time
}
