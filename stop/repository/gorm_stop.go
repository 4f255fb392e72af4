package repository

import (
	"context"

	"github.com/addisgo/delivery-backend/entity"
	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormStopRepo implements stop.Repository using GORM (v2).
type GormStopRepo struct{ db *gorm.DB }

func NewGormStopRepo(db *gorm.DB) stoppkg.Repository { return &GormStopRepo{db: db} }

func (r *GormStopRepo) GetStopByID(ctx context.Context, id uuid.UUID) (*entity.Stop, error) {
	var s entity.Stop
	if err := r.db.WithContext(ctx).First(&s, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &s, nil
}

func (r *GormStopRepo) GetStopByNumber(ctx context.Context, deliveryID uuid.UUID, stopNumber int) (*entity.Stop, error) {
	var s entity.Stop
	err := r.db.WithContext(ctx).
		Where("delivery_id = ? AND stop_number = ?", deliveryID, stopNumber).
		First(&s).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &s, nil
}

func (r *GormStopRepo) ListStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	var stops []entity.Stop
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ?", deliveryID).
		Order("stop_number ASC").
		Find(&stops).Error; err != nil {
		return nil, err
	}
	return stops, nil
}

func (r *GormStopRepo) ListPendingStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	var stops []entity.Stop
	if err := r.db.WithContext(ctx).
		Where("delivery_id = ? AND status = ?", deliveryID, entity.StopPending).
		Order("stop_number ASC").
		Find(&stops).Error; err != nil {
		return nil, err
	}
	return stops, nil
}

func (r *GormStopRepo) CountStops(ctx context.Context, deliveryID uuid.UUID) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Stop{}).
		Where("delivery_id = ?", deliveryID).
		Count(&count).Error
	return count, err
}

func (r *GormStopRepo) CountStopsByStatus(ctx context.Context, deliveryID uuid.UUID, status entity.StopStatus) (int64, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&entity.Stop{}).
		Where("delivery_id = ? AND status = ?", deliveryID, status).
		Count(&count).Error
	return count, err
}

// TransitionStatus performs the guarded write the engine's state machine
// rests on: the allowed prior statuses are part of the WHERE clause, so of
// two racing transitions at most one sees a non-zero affected-row count.
func (r *GormStopRepo) TransitionStatus(ctx context.Context, stopID uuid.UUID, allowedFrom []entity.StopStatus, target entity.StopStatus, patch map[string]interface{}) (int64, error) {
	updates := map[string]interface{}{"status": target}
	for col, val := range patch {
		updates[col] = val
	}
	res := r.db.WithContext(ctx).Model(&entity.Stop{}).
		Where("id = ? AND status IN ?", stopID, allowedFrom).
		Updates(updates)
	return res.RowsAffected, res.Error
}
