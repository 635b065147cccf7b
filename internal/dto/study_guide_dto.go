package dto

import (
	"encoding/json"
	"time"

	"github.com/noah-isme/linguahub-api/internal/models"
)

// StudyGuideRequest asks for a generated guide on a topic at a CEFR level.
type StudyGuideRequest struct {
	Language string `json:"language" validate:"required,min=2,max=64"`
	Level    string `json:"level" validate:"required,oneof=A1 A2 B1 B2 C1 C2"`
	Topic    string `json:"topic" validate:"required,min=3,max=255"`
}

// StudyGuideSection is one chapter of a study guide.
type StudyGuideSection struct {
	Heading   string   `json:"heading"`
	Content   string   `json:"content"`
	Exercises []string `json:"exercises,omitempty"`
}

// StudyGuideResponse is the serialized representation of a study guide.
type StudyGuideResponse struct {
	ID        uint                `json:"id"`
	UserID    uint                `json:"user_id"`
	Language  string              `json:"language"`
	Level     string              `json:"level"`
	Topic     string              `json:"topic"`
	Title     string              `json:"title"`
	Summary   string              `json:"summary"`
	Sections  []StudyGuideSection `json:"sections"`
	Model     string              `json:"model"`
	CreatedAt time.Time           `json:"created_at"`
	CacheHit  bool                `json:"cache_hit"`
}

// NewStudyGuideResponse converts a model into a DTO. Undecodable sections are dropped.
func NewStudyGuideResponse(model models.StudyGuide) StudyGuideResponse {
	sections := []StudyGuideSection{}
	if len(model.Sections) > 0 {
		_ = json.Unmarshal(model.Sections, &sections)
	}
	return StudyGuideResponse{
		ID:        model.ID,
		UserID:    model.UserID,
		Language:  model.Language,
		Level:     model.Level,
		Topic:     model.Topic,
		Title:     model.Title,
		Summary:   model.Summary,
		Sections:  sections,
		Model:     model.Model,
		CreatedAt: model.CreatedAt,
	}
}

// NewStudyGuideResponseSlice converts a slice of models into DTOs.
func NewStudyGuideResponseSlice(items []models.StudyGuide) []StudyGuideResponse {
	out := make([]StudyGuideResponse, 0, len(items))
	for _, item := range items {
		out = append(out, NewStudyGuideResponse(item))
	}
	return out
}
