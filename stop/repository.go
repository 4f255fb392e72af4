package stop

import (
	"context"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
)

// Repository defines DB operations for stops.
//
// All writes go through guarded conditional updates: the expected prior
// status is part of the WHERE clause and the affected-row count tells the
// caller whether the guard held. That is what keeps concurrent transitions
// on the same stop from both succeeding.
type Repository interface {
	GetStopByID(ctx context.Context, id uuid.UUID) (*entity.Stop, error)

	// GetStopByNumber returns the stop at the given position within a
	// delivery, or (nil, nil) when no such stop exists.
	GetStopByNumber(ctx context.Context, deliveryID uuid.UUID, stopNumber int) (*entity.Stop, error)

	// ListStops returns all stops of a delivery ordered ascending by stop_number.
	ListStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error)

	// ListPendingStops returns the not-yet-visited stops ascending by stop_number.
	ListPendingStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error)

	CountStops(ctx context.Context, deliveryID uuid.UUID) (int64, error)
	CountStopsByStatus(ctx context.Context, deliveryID uuid.UUID, status entity.StopStatus) (int64, error)

	// TransitionStatus moves a stop to target iff its current status is one
	// of allowedFrom, applying extra patch columns in the same statement.
	// Returns the number of affected rows (0 means the guard did not hold).
	TransitionStatus(ctx context.Context, stopID uuid.UUID, allowedFrom []entity.StopStatus, target entity.StopStatus, patch map[string]interface{}) (int64, error)
}
