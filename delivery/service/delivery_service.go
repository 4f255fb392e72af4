package service

import (
	"context"
	"errors"
	"fmt"

	deliverypkg "github.com/addisgo/delivery-backend/delivery"
	driverpkg "github.com/addisgo/delivery-backend/driver"
	"github.com/addisgo/delivery-backend/entity"
	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type deliveryService struct {
	deliveries deliverypkg.Repository
	drivers    driverpkg.Repository
}

func NewDeliveryService(deliveries deliverypkg.Repository, drivers driverpkg.Repository) deliverypkg.Service {
	return &deliveryService{deliveries: deliveries, drivers: drivers}
}

func (s *deliveryService) CreateDelivery(ctx context.Context, req deliverypkg.CreateDeliveryRequest) (*entity.Delivery, error) {
	if len(req.Stops) == 0 {
		return nil, fmt.Errorf("%w: a delivery needs at least one stop", stoppkg.ErrInvalidTransition)
	}
	if _, err := s.drivers.GetDriverByID(ctx, req.DriverID); err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("driver %s: %w", req.DriverID, stoppkg.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}

	d := &entity.Delivery{
		DriverID:         req.DriverID,
		CurrentStopIndex: 1,
		TotalStops:       len(req.Stops),
		Status:           entity.DeliveryCreated,
		PickupAddress:    req.PickupAddress,
	}
	stops := make([]entity.Stop, len(req.Stops))
	for i, in := range req.Stops {
		stops[i] = entity.Stop{
			StopNumber:    i + 1,
			Status:        entity.StopPending,
			Address:       in.Address,
			ReceiverPhone: in.ReceiverPhone,
		}
	}
	created, err := s.deliveries.CreateDeliveryWithStops(ctx, d, stops)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if err := s.drivers.SetAvailable(ctx, req.DriverID, false); err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return created, nil
}

func (s *deliveryService) GetDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	d, err := s.deliveries.GetDeliveryByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("delivery %s: %w", id, stoppkg.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *deliveryService) ActiveDeliveryForDriver(ctx context.Context, driverID uuid.UUID) (*entity.Delivery, error) {
	d, err := s.deliveries.GetActiveDeliveryForDriver(ctx, driverID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return d, nil
}
