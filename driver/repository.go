package driver

import (
	"context"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
)

// Repository is the driver availability register. The completion cascade
// flips Available back on through SetAvailable, keyed off the delivery's
// stored driver_id.
type Repository interface {
	StoreDriver(ctx context.Context, d *entity.Driver) (*entity.Driver, error)
	GetDriverByID(ctx context.Context, id uuid.UUID) (*entity.Driver, error)
	// GetDriverByPhone returns (nil, nil) when no driver carries the phone.
	GetDriverByPhone(ctx context.Context, phone string) (*entity.Driver, error)
	SetAvailable(ctx context.Context, driverID uuid.UUID, available bool) error
}
