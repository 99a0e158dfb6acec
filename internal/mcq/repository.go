package mcq

import (
	"context"

	"gorm.io/gorm"

	"exam-portal/internal/models"
)

type Repository struct {
	db *gorm.DB
}

func NewRepository(db *gorm.DB) *Repository {
	return &Repository{db: db}
}

func (r *Repository) CreateAttempt(ctx context.Context, attempt *models.Attempt) error {
	return r.db.WithContext(ctx).Create(attempt).Error
}

// ListAttempts returns a user's attempts, newest first.
func (r *Repository) ListAttempts(ctx context.Context, userID uint, limit int) ([]models.Attempt, error) {
	var attempts []models.Attempt
	q := r.db.WithContext(ctx).
		Where("user_id = ?", userID).
		Order("submitted_at desc").
		Order("id desc")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&attempts).Error; err != nil {
		return nil, err
	}
	return attempts, nil
}
