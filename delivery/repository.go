package delivery

import (
	"context"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
)

// Repository defines DB operations for deliveries.
type Repository interface {
	// CreateDeliveryWithStops persists the delivery and its ordered stop
	// batch in one transaction.
	CreateDeliveryWithStops(ctx context.Context, d *entity.Delivery, stops []entity.Stop) (*entity.Delivery, error)

	GetDeliveryByID(ctx context.Context, id uuid.UUID) (*entity.Delivery, error)

	// GetActiveDeliveryForDriver returns the most recently updated
	// non-terminal delivery assigned to a driver, or (nil, nil) if none.
	GetActiveDeliveryForDriver(ctx context.Context, driverID uuid.UUID) (*entity.Delivery, error)

	// AdvanceCursor moves current_stop_index from `from` to `to` only if it
	// still equals `from` (compare-and-swap). Returns false when the
	// precondition failed, i.e. a concurrent advance won the race.
	AdvanceCursor(ctx context.Context, id uuid.UUID, from, to int) (bool, error)

	// MarkInTransit moves a created delivery to in_transit. A delivery
	// already past created is left alone.
	MarkInTransit(ctx context.Context, id uuid.UUID) error

	// MarkDelivered sets the terminal delivered status and stamps
	// completed_at. Idempotent: an already terminal delivery is left alone.
	MarkDelivered(ctx context.Context, id uuid.UUID) error
}
