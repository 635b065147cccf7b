package repository

import (
	"context"

	"gorm.io/gorm"

	"github.com/noah-isme/linguahub-api/internal/models"
)

// StudyGuideRepository stores generated study guides.
type StudyGuideRepository interface {
	Create(ctx context.Context, guide *models.StudyGuide) error
	FindByID(ctx context.Context, id uint) (models.StudyGuide, error)
	ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.StudyGuide, error)
}

type studyGuideRepository struct {
	db *gorm.DB
}

// NewStudyGuideRepository constructs a GORM-backed repository.
func NewStudyGuideRepository(db *gorm.DB) StudyGuideRepository {
	return &studyGuideRepository{db: db}
}

func (r *studyGuideRepository) Create(ctx context.Context, guide *models.StudyGuide) error {
	return r.db.WithContext(ctx).Create(guide).Error
}

func (r *studyGuideRepository) FindByID(ctx context.Context, id uint) (models.StudyGuide, error) {
	var guide models.StudyGuide
	if err := r.db.WithContext(ctx).First(&guide, id).Error; err != nil {
		return models.StudyGuide{}, err
	}
	return guide, nil
}

func (r *studyGuideRepository) ListByUser(ctx context.Context, userID uint, limit, offset int) ([]models.StudyGuide, error) {
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	if offset < 0 {
		offset = 0
	}

	var guides []models.StudyGuide
	if err := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&guides).Error; err != nil {
		return nil, err
	}
	return guides, nil
}
