package repository

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"violation-service/internal/domain/violation"
)

var ErrNotFound = errors.New("record not found")

const (
	StatusPending   = "pending"
	StatusResolved  = "resolved"
	StatusDismissed = "dismissed"
)

type ViolationRepository struct {
	db *gorm.DB
}

func NewViolationRepository(db *gorm.DB) *ViolationRepository {
	return &ViolationRepository{db: db}
}

type Violation struct {
	ID             uuid.UUID      `gorm:"type:uuid;primaryKey" json:"id"`
	VehicleNumber  string         `gorm:"not null;index" json:"vehicle_number"`
	ViolationType  string         `gorm:"not null;index" json:"violation_type"`
	Location       *string        `json:"location,omitempty"`
	CameraID       *string        `json:"camera_id,omitempty"`
	OfficerID      *string        `json:"officer_id,omitempty"`
	Status         string         `gorm:"not null;default:pending;index" json:"status"`
	FineAmount     float64        `gorm:"not null" json:"fine_amount"`
	Confidence     *float64       `json:"confidence,omitempty"`
	DetectionClass *string        `json:"detection_class,omitempty"`
	BBox           datatypes.JSON `gorm:"column:bbox" json:"bbox,omitempty"`
	Timestamp      time.Time      `gorm:"not null;index" json:"timestamp"`
	CreatedAt      time.Time      `json:"created_at"`
}

func (Violation) TableName() string {
	return "violations"
}

func (v *Violation) BeforeCreate(tx *gorm.DB) error {
	if v.ID == uuid.Nil {
		v.ID = uuid.New()
	}
	return nil
}

func (r *ViolationRepository) Create(ctx context.Context, v *violation.Confirmed) error {
	record := Violation{
		ID:            v.ID,
		VehicleNumber: v.VehicleIdentity.String(),
		ViolationType: string(v.Type),
		Status:        StatusPending,
		FineAmount:    v.FineAmount,
		Timestamp:     v.Timestamp,
		CreatedAt:     time.Now(),
	}

	if v.Location != "" {
		record.Location = &v.Location
	}
	if v.CameraID != "" {
		record.CameraID = &v.CameraID
	}
	if v.OfficerID != "" {
		record.OfficerID = &v.OfficerID
	}
	// Records created without a detection carry no confidence or class.
	if v.Confidence != 0 {
		confidence := v.Confidence
		record.Confidence = &confidence
		class := v.SourceClass.String()
		record.DetectionClass = &class
	}
	if v.BBox.Area() > 0 {
		bbox, err := json.Marshal(v.BBox)
		if err != nil {
			return err
		}
		record.BBox = datatypes.JSON(bbox)
	}

	if err := r.db.WithContext(ctx).Create(&record).Error; err != nil {
		return err
	}

	v.ID = record.ID
	return nil
}

func (r *ViolationRepository) GetByID(ctx context.Context, id uuid.UUID) (*Violation, error) {
	var v Violation
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&v).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	return &v, nil
}

func (r *ViolationRepository) List(ctx context.Context, status *string, offset, limit int) ([]Violation, error) {
	query := r.db.WithContext(ctx).Model(&Violation{})

	if status != nil {
		query = query.Where("status = ?", *status)
	}

	query = query.Order("timestamp DESC")

	if limit > 0 {
		query = query.Limit(limit)
	}
	if offset > 0 {
		query = query.Offset(offset)
	}

	var violations []Violation
	err := query.Find(&violations).Error
	return violations, err
}

func (r *ViolationRepository) UpdateStatus(ctx context.Context, id uuid.UUID, status string) error {
	res := r.db.WithContext(ctx).Model(&Violation{}).Where("id = ?", id).Update("status", status)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *ViolationRepository) Delete(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Where("id = ?", id).Delete(&Violation{})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}
