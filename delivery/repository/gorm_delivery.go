package repository

import (
	"context"
	"time"

	deliverypkg "github.com/addisgo/delivery-backend/delivery"
	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type GormDeliveryRepo struct{ db *gorm.DB }

func NewGormDeliveryRepo(db *gorm.DB) deliverypkg.Repository { return &GormDeliveryRepo{db: db} }

func (r *GormDeliveryRepo) CreateDeliveryWithStops(ctx context.Context, d *entity.Delivery, stops []entity.Stop) (*entity.Delivery, error) {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(d).Error; err != nil {
			return err
		}
		for i := range stops {
			stops[i].DeliveryID = d.ID
		}
		return tx.Create(&stops).Error
	})
	if err != nil {
		return nil, err
	}
	return d, nil
}

func (r *GormDeliveryRepo) GetDeliveryByID(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	var d entity.Delivery
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDeliveryRepo) GetActiveDeliveryForDriver(ctx context.Context, driverID uuid.UUID) (*entity.Delivery, error) {
	var d entity.Delivery
	err := r.db.WithContext(ctx).
		Where("driver_id = ? AND status NOT IN (?, ?)", driverID, entity.DeliveryDelivered, entity.DeliveryFailed).
		Order("updated_at DESC").
		First(&d).Error
	if err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, nil
		}
		return nil, err
	}
	return &d, nil
}

// AdvanceCursor is the optimistic-concurrency substitute for a cross-entity
// transaction: the caller's pre-read cursor value is the precondition, and a
// zero affected-row count tells it the advance lost a race.
func (r *GormDeliveryRepo) AdvanceCursor(ctx context.Context, id uuid.UUID, from, to int) (bool, error) {
	res := r.db.WithContext(ctx).Model(&entity.Delivery{}).
		Where("id = ? AND current_stop_index = ?", id, from).
		Update("current_stop_index", to)
	if res.Error != nil {
		return false, res.Error
	}
	return res.RowsAffected > 0, nil
}

func (r *GormDeliveryRepo) MarkInTransit(ctx context.Context, id uuid.UUID) error {
	return r.db.WithContext(ctx).Model(&entity.Delivery{}).
		Where("id = ? AND status = ?", id, entity.DeliveryCreated).
		Update("status", entity.DeliveryInTransit).Error
}

func (r *GormDeliveryRepo) MarkDelivered(ctx context.Context, id uuid.UUID) error {
	now := time.Now()
	return r.db.WithContext(ctx).Model(&entity.Delivery{}).
		Where("id = ? AND status NOT IN (?, ?)", id, entity.DeliveryDelivered, entity.DeliveryFailed).
		Updates(map[string]interface{}{
			"status":       entity.DeliveryDelivered,
			"completed_at": now,
		}).Error
}
