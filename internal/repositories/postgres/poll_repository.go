package postgres

import (
	"context"

	"poll-service/internal/models"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

// PollRepository is the durable owner-of-record store for polls. The
// in-process state manager is only a cache in front of it.
type PollRepository interface {
	Create(ctx context.Context, record *models.PollRecord) error
	FindByID(ctx context.Context, id string) (*models.PollRecord, error)
	FindByChannelID(ctx context.Context, channelID string) ([]*models.PollRecord, error)
	Save(ctx context.Context, record *models.PollRecord) error
	Delete(ctx context.Context, id string) error
}

type pollRepository struct {
	db *gorm.DB
}

func NewPollRepository(db *gorm.DB) PollRepository {
	return &pollRepository{db: db}
}

func (r *pollRepository) Create(ctx context.Context, record *models.PollRecord) error {
	return r.db.WithContext(ctx).Create(record).Error
}

func (r *pollRepository) FindByID(ctx context.Context, id string) (*models.PollRecord, error) {
	var record models.PollRecord
	err := r.db.WithContext(ctx).First(&record, "id = ?", id).Error
	if err != nil {
		return nil, err
	}
	return &record, nil
}

func (r *pollRepository) FindByChannelID(ctx context.Context, channelID string) ([]*models.PollRecord, error) {
	var records []*models.PollRecord
	err := r.db.WithContext(ctx).Where("channel_id = ?", channelID).Order("created_at desc").Find(&records).Error
	return records, err
}

// Save upserts the record so snapshot replacements from the sync path do not
// depend on create/update ordering.
func (r *pollRepository) Save(ctx context.Context, record *models.PollRecord) error {
	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		DoUpdates: clause.AssignmentColumns([]string{"question", "is_active", "snapshot", "updated_at"}),
	}).Create(record).Error
}

func (r *pollRepository) Delete(ctx context.Context, id string) error {
	return r.db.WithContext(ctx).Delete(&models.PollRecord{}, "id = ?", id).Error
}
