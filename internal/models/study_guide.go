package models

import (
	"time"

	"gorm.io/datatypes"
)

// StudyGuide is an AI-generated study plan for a language topic.
type StudyGuide struct {
	ID        uint           `gorm:"primaryKey" json:"id"`
	UserID    uint           `gorm:"index;not null" json:"user_id"`
	Language  string         `gorm:"size:64;not null" json:"language"`
	Level     string         `gorm:"size:16;not null" json:"level"`
	Topic     string         `gorm:"size:255;not null" json:"topic"`
	Title     string         `gorm:"size:255" json:"title"`
	Summary   string         `gorm:"type:text" json:"summary"`
	Sections  datatypes.JSON `gorm:"type:json" json:"sections"`
	Model     string         `gorm:"size:64" json:"model"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
}
