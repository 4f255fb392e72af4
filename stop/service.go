package stop

import (
	"context"
	"time"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/addisgo/delivery-backend/realtime"
	"github.com/google/uuid"
)

// ProofPayload carries the opaque completion artifacts attached to a stop.
// The engine stores the references verbatim and never interprets them.
type ProofPayload struct {
	PhotoURL     *string
	SignatureURL *string
	Notes        *string
}

// StatusPatch is the administrative field patch applied by UpdateStopStatus.
// Nil fields are left untouched. Terminal fields that are already set on the
// stop cannot be patched again.
type StatusPatch struct {
	Status      entity.StopStatus
	ArrivedAt   *time.Time
	CompletedAt *time.Time
	Proof       ProofPayload
}

// Service is the stop progression engine.
//
// Failed-stop policy: failing a stop advances the cursor exactly like a
// completion (skip-and-continue), so a route never wedges behind an
// unreachable address. A delivery whose route included a failed stop still
// reaches its terminal status when the cursor exhausts, but AllCompleted
// stays false for it permanently.
type Service interface {
	// ListStops returns every stop of the delivery ascending by stop number.
	ListStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error)

	// CurrentStop returns the stop at the delivery cursor, or nil once the
	// cursor has passed the last stop. A nil stop is not an error.
	CurrentStop(ctx context.Context, deliveryID uuid.UUID) (*entity.Stop, error)

	// RemainingStops returns the pending stops ascending by stop number.
	RemainingStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error)

	// AllCompleted reports whether every stop of the delivery is completed.
	// A single failed stop makes this permanently false.
	AllCompleted(ctx context.Context, deliveryID uuid.UUID) (bool, error)

	// MarkArrived moves the stop at the cursor from pending to in_progress
	// and stamps arrived_at. Arriving at any other stop is ErrInvalidTransition.
	MarkArrived(ctx context.Context, stopID uuid.UUID) (*entity.Stop, error)

	// CompleteStop completes the stop at the cursor, attaches the proof
	// payload and advances the delivery cursor by one. When the cursor passes
	// the last stop the delivery is marked delivered and its driver is made
	// available again.
	CompleteStop(ctx context.Context, stopID, deliveryID uuid.UUID, proof ProofPayload) (*entity.Stop, error)

	// MarkStopFailed fails the stop at the cursor, records the reason in the
	// completion notes and advances the cursor (skip-and-continue).
	MarkStopFailed(ctx context.Context, stopID uuid.UUID, reason string) (*entity.Stop, error)

	// UpdateStopStatus applies an administrative single-stop patch. Already
	// set terminal fields and backwards status moves are rejected, as is
	// setting in_progress on a stop that is not at the cursor.
	UpdateStopStatus(ctx context.Context, stopID uuid.UUID, patch StatusPatch) (*entity.Stop, error)

	// WatchStops subscribes to full stop-list snapshots for one delivery.
	// A snapshot is re-emitted after every stop mutation; the stream never
	// terminates on its own and must be closed by the consumer.
	WatchStops(ctx context.Context, deliveryID uuid.UUID) (*realtime.Subscription, error)
}
