package repository

import (
	"context"

	"artistsfirst/model"

	"gorm.io/gorm"
)

// EntitlementRepository is the durable record of purchases and the
// withdrawal audit trail.
type EntitlementRepository interface {
	Create(ctx context.Context, ent *model.Entitlement) error
	ListAll(ctx context.Context) ([]*model.Entitlement, error)
	ListByListener(ctx context.Context, listenerID int64) ([]*model.Entitlement, error)

	CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error
	ListWithdrawalsByArtist(ctx context.Context, artistID int64) ([]*model.Withdrawal, error)
}

// gormEntitlementRepository is the GORM implementation.
type gormEntitlementRepository struct {
	db *gorm.DB
}

// NewGormEntitlementRepository creates a GORM entitlement repository.
func NewGormEntitlementRepository(db *gorm.DB) EntitlementRepository {
	return &gormEntitlementRepository{db: db}
}

// Create inserts a purchase record.
func (r *gormEntitlementRepository) Create(ctx context.Context, ent *model.Entitlement) error {
	return r.db.WithContext(ctx).Create(ent).Error
}

// ListAll returns every purchase record; the playback gate loads them into
// its cache at startup.
func (r *gormEntitlementRepository) ListAll(ctx context.Context) ([]*model.Entitlement, error) {
	var ents []*model.Entitlement
	if err := r.db.WithContext(ctx).Find(&ents).Error; err != nil {
		return nil, err
	}
	return ents, nil
}

// ListByListener returns a listener's purchases.
func (r *gormEntitlementRepository) ListByListener(ctx context.Context, listenerID int64) ([]*model.Entitlement, error) {
	var ents []*model.Entitlement
	err := r.db.WithContext(ctx).
		Where("listener_id = ?", listenerID).
		Order("created_at DESC").
		Find(&ents).Error
	if err != nil {
		return nil, err
	}
	return ents, nil
}

// CreateWithdrawal inserts a withdrawal audit row.
func (r *gormEntitlementRepository) CreateWithdrawal(ctx context.Context, w *model.Withdrawal) error {
	return r.db.WithContext(ctx).Create(w).Error
}

// ListWithdrawalsByArtist returns an artist's withdrawal history.
func (r *gormEntitlementRepository) ListWithdrawalsByArtist(ctx context.Context, artistID int64) ([]*model.Withdrawal, error) {
	var ws []*model.Withdrawal
	err := r.db.WithContext(ctx).
		Where("artist_id = ?", artistID).
		Order("created_at DESC").
		Find(&ws).Error
	if err != nil {
		return nil, err
	}
	return ws, nil
}
