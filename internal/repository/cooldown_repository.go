package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"violation-service/internal/domain/violation"
)

// CooldownRepository persists cooldown entries so suppression survives
// restarts and is shared between service instances.
type CooldownRepository struct {
	db *gorm.DB
}

func NewCooldownRepository(db *gorm.DB) *CooldownRepository {
	return &CooldownRepository{db: db}
}

type CooldownEntry struct {
	ID              int64     `gorm:"primaryKey"`
	ViolationType   string    `gorm:"not null;index:idx_cooldown_lookup,priority:1"`
	VehicleIdentity string    `gorm:"not null"`
	RegisteredAt    time.Time `gorm:"not null;index:idx_cooldown_lookup,priority:2"`
}

func (CooldownEntry) TableName() string {
	return "cooldown_entries"
}

func (r *CooldownRepository) Append(ctx context.Context, entry violation.CooldownEntry) error {
	return r.db.WithContext(ctx).Create(&CooldownEntry{
		ViolationType:   string(entry.Type),
		VehicleIdentity: entry.VehicleIdentity.String(),
		RegisteredAt:    entry.RegisteredAt,
	}).Error
}

func (r *CooldownRepository) Exists(ctx context.Context, typ violation.Type, vehicle violation.VehicleIdentity, since time.Time) (bool, error) {
	query := r.db.WithContext(ctx).
		Model(&CooldownEntry{}).
		Where("violation_type = ?", string(typ)).
		Where("registered_at >= ?", since)

	if vehicle != "" {
		query = query.Where("vehicle_identity = ?", vehicle.String())
	}

	var count int64
	if err := query.Count(&count).Error; err != nil {
		return false, err
	}
	return count > 0, nil
}

func (r *CooldownRepository) Prune(ctx context.Context, cutoff time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Where("registered_at < ?", cutoff).Delete(&CooldownEntry{})
	return res.RowsAffected, res.Error
}
