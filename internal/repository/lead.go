package repository

import (
	"context"

	"github.com/aman-churiwal/crm-gateway/internal/models"
	"github.com/aman-churiwal/crm-gateway/internal/storage"
)

type LeadRepository struct {
	db *storage.Postgres
}

func NewLeadRepository(db *storage.Postgres) *LeadRepository {
	return &LeadRepository{db: db}
}

func (r *LeadRepository) Create(ctx context.Context, lead *models.Lead) error {
	return r.db.DB.WithContext(ctx).Create(lead).Error
}

// Lists the newest leads, optionally filtered by source
func (r *LeadRepository) ListRecent(ctx context.Context, source string, limit int) ([]models.Lead, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}

	var leads []models.Lead
	q := r.db.DB.WithContext(ctx).Order("created_at DESC").Limit(limit)
	if source != "" {
		q = q.Where("source = ?", source)
	}
	err := q.Find(&leads).Error

	return leads, err
}
