package delivery

import (
	"context"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
)

// StopInput is one ordered waypoint supplied at intake. Stop numbers are
// assigned from the slice order, starting at 1.
type StopInput struct {
	Address       string
	ReceiverPhone string
}

type CreateDeliveryRequest struct {
	DriverID      uuid.UUID
	PickupAddress string
	Stops         []StopInput
}

// Service owns delivery intake and reads. All stop-level mutation goes
// through the stop progression engine, never through here.
type Service interface {
	// CreateDelivery persists a delivery and its ordered stop batch, fixing
	// total_stops and pointing the cursor at the first stop, then marks the
	// driver unavailable.
	CreateDelivery(ctx context.Context, req CreateDeliveryRequest) (*entity.Delivery, error)
	GetDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)
	// ActiveDeliveryForDriver returns the driver's in-flight delivery, or
	// nil when the driver has none.
	ActiveDeliveryForDriver(ctx context.Context, driverID uuid.UUID) (*entity.Delivery, error)
}
