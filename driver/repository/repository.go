package repository

import (
	"context"

	driverpkg "github.com/addisgo/delivery-backend/driver"
	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// GormDriverRepo implements driver.Repository using GORM (v2).
type GormDriverRepo struct {
	db *gorm.DB
}

func NewGormDriverRepo(db *gorm.DB) driverpkg.Repository {
	return &GormDriverRepo{db: db}
}

func (r *GormDriverRepo) StoreDriver(ctx context.Context, d *entity.Driver) (*entity.Driver, error) {
	if err := r.db.WithContext(ctx).Create(d).Error; err != nil {
		return nil, err
	}
	return d, nil
}

func (r *GormDriverRepo) GetDriverByID(ctx context.Context, id uuid.UUID) (*entity.Driver, error) {
	var d entity.Driver
	if err := r.db.WithContext(ctx).First(&d, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDriverRepo) GetDriverByPhone(ctx context.Context, phone string) (*entity.Driver, error) {
	var d entity.Driver
	err := r.db.WithContext(ctx).First(&d, "phone = ?", phone).Error
	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &d, nil
}

func (r *GormDriverRepo) SetAvailable(ctx context.Context, driverID uuid.UUID, available bool) error {
	return r.db.WithContext(ctx).Model(&entity.Driver{}).
		Where("id = ?", driverID).
		Update("available", available).Error
}
