package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	deliverypkg "github.com/addisgo/delivery-backend/delivery"
	driverpkg "github.com/addisgo/delivery-backend/driver"
	"github.com/addisgo/delivery-backend/entity"
	"github.com/addisgo/delivery-backend/metrics"
	"github.com/addisgo/delivery-backend/realtime"
	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

// cursorRetryLimit bounds internal retries of the cursor compare-and-swap
// before the conflict surfaces as ErrStoreUnavailable.
const cursorRetryLimit = 3

type stopService struct {
	stops      stoppkg.Repository
	deliveries deliverypkg.Repository
	drivers    driverpkg.Repository
	hub        *realtime.Hub
	now        func() time.Time
}

// NewStopService builds the progression engine. The engine is stateless: all
// consistency lives in the store's conditional updates, so any number of
// instances can serve the same deliveries.
func NewStopService(stops stoppkg.Repository, deliveries deliverypkg.Repository, drivers driverpkg.Repository, hub *realtime.Hub) stoppkg.Service {
	return &stopService{
		stops:      stops,
		deliveries: deliveries,
		drivers:    drivers,
		hub:        hub,
		now:        time.Now,
	}
}

func (s *stopService) getDelivery(ctx context.Context, id uuid.UUID) (*entity.Delivery, error) {
	d, err := s.deliveries.GetDeliveryByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("delivery %s: %w", id, stoppkg.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return d, nil
}

func (s *stopService) getStop(ctx context.Context, id uuid.UUID) (*entity.Stop, error) {
	st, err := s.stops.GetStopByID(ctx, id)
	if err != nil {
		if errors.Is(err, gorm.ErrRecordNotFound) {
			return nil, fmt.Errorf("stop %s: %w", id, stoppkg.ErrNotFound)
		}
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return st, nil
}

func (s *stopService) ListStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	if _, err := s.getDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}
	stops, err := s.stops.ListStops(ctx, deliveryID)
	if err != nil {
		// best-effort projection: degrade to empty rather than break readers
		log.Printf("stops: list for delivery %s failed: %v", deliveryID, err)
		return []entity.Stop{}, nil
	}
	if len(stops) == 0 {
		log.Printf("stops: delivery %s exists but has no stops", deliveryID)
	}
	return stops, nil
}

func (s *stopService) CurrentStop(ctx context.Context, deliveryID uuid.UUID) (*entity.Stop, error) {
	d, err := s.getDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	st, err := s.stops.GetStopByNumber(ctx, deliveryID, d.CurrentStopIndex)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	// nil when the cursor has passed the last stop: a normal terminal
	// condition, not an error
	return st, nil
}

func (s *stopService) RemainingStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	if _, err := s.getDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}
	stops, err := s.stops.ListPendingStops(ctx, deliveryID)
	if err != nil {
		log.Printf("stops: remaining for delivery %s failed: %v", deliveryID, err)
		return []entity.Stop{}, nil
	}
	return stops, nil
}

func (s *stopService) AllCompleted(ctx context.Context, deliveryID uuid.UUID) (bool, error) {
	if _, err := s.getDelivery(ctx, deliveryID); err != nil {
		return false, err
	}
	total, err := s.stops.CountStops(ctx, deliveryID)
	if err != nil {
		return false, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if total == 0 {
		log.Printf("stops: delivery %s exists but has no stops", deliveryID)
		return false, nil
	}
	completed, err := s.stops.CountStopsByStatus(ctx, deliveryID, entity.StopCompleted)
	if err != nil {
		return false, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	return completed == total, nil
}

func (s *stopService) MarkArrived(ctx context.Context, stopID uuid.UUID) (*entity.Stop, error) {
	st, err := s.getStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	d, err := s.getDelivery(ctx, st.DeliveryID)
	if err != nil {
		return nil, err
	}
	if st.StopNumber != d.CurrentStopIndex {
		return nil, fmt.Errorf("%w: stop %d is not the current stop (cursor at %d)",
			stoppkg.ErrInvalidTransition, st.StopNumber, d.CurrentStopIndex)
	}
	affected, err := s.stops.TransitionStatus(ctx, stopID,
		[]entity.StopStatus{entity.StopPending}, entity.StopInProgress,
		map[string]interface{}{"arrived_at": s.now()})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: stop %s is not pending", stoppkg.ErrInvalidTransition, stopID)
	}
	if err := s.deliveries.MarkInTransit(ctx, d.ID); err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	s.publishSnapshot(ctx, st.DeliveryID)
	return s.getStop(ctx, stopID)
}

func (s *stopService) CompleteStop(ctx context.Context, stopID, deliveryID uuid.UUID, proof stoppkg.ProofPayload) (*entity.Stop, error) {
	st, err := s.getStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	if st.DeliveryID != deliveryID {
		return nil, fmt.Errorf("%w: stop %s does not belong to delivery %s",
			stoppkg.ErrInvalidTransition, stopID, deliveryID)
	}
	d, err := s.getDelivery(ctx, deliveryID)
	if err != nil {
		return nil, err
	}
	if st.StopNumber != d.CurrentStopIndex {
		return nil, fmt.Errorf("%w: stop %d is not the current stop (cursor at %d)",
			stoppkg.ErrInvalidTransition, st.StopNumber, d.CurrentStopIndex)
	}
	if st.Status == entity.StopCompleted {
		// a previous attempt completed the stop but the cursor never moved
		// (the partial-application failure mode); finish the advance instead
		// of failing the re-drive
		if err := s.redriveCursor(ctx, d, st.StopNumber); err != nil {
			return nil, err
		}
		s.publishSnapshot(ctx, deliveryID)
		return s.getStop(ctx, stopID)
	}
	if st.Status == entity.StopFailed {
		return nil, fmt.Errorf("%w: stop %s already failed", stoppkg.ErrInvalidTransition, stopID)
	}

	patch := map[string]interface{}{"completed_at": s.now()}
	if proof.PhotoURL != nil {
		patch["proof_photo_url"] = *proof.PhotoURL
	}
	if proof.SignatureURL != nil {
		patch["signature_url"] = *proof.SignatureURL
	}
	if proof.Notes != nil {
		patch["completion_notes"] = *proof.Notes
	}
	// arrival tracking is optional, so a pending stop is still completable
	affected, err := s.stops.TransitionStatus(ctx, stopID,
		[]entity.StopStatus{entity.StopInProgress, entity.StopPending}, entity.StopCompleted, patch)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: stop %s is already terminal", stoppkg.ErrInvalidTransition, stopID)
	}
	metrics.StopCompletionsTotal.Inc()

	// The stop write above is durable before the cursor moves. If the
	// advance below fails the caller gets a retryable error and re-drives;
	// the already-completed stop is then detected and only the cursor is
	// re-attempted.
	if err := s.advanceCursor(ctx, deliveryID, st.StopNumber); err != nil {
		return nil, err
	}
	s.publishSnapshot(ctx, deliveryID)
	return s.getStop(ctx, stopID)
}

func (s *stopService) MarkStopFailed(ctx context.Context, stopID uuid.UUID, reason string) (*entity.Stop, error) {
	st, err := s.getStop(ctx, stopID)
	if err != nil {
		return nil, err
	}
	d, err := s.getDelivery(ctx, st.DeliveryID)
	if err != nil {
		return nil, err
	}
	if st.StopNumber != d.CurrentStopIndex {
		return nil, fmt.Errorf("%w: stop %d is not the current stop (cursor at %d)",
			stoppkg.ErrInvalidTransition, st.StopNumber, d.CurrentStopIndex)
	}
	if st.Status == entity.StopFailed {
		if err := s.redriveCursor(ctx, d, st.StopNumber); err != nil {
			return nil, err
		}
		s.publishSnapshot(ctx, st.DeliveryID)
		return s.getStop(ctx, stopID)
	}
	if st.Status == entity.StopCompleted {
		return nil, fmt.Errorf("%w: stop %s already completed", stoppkg.ErrInvalidTransition, stopID)
	}
	affected, err := s.stops.TransitionStatus(ctx, stopID,
		[]entity.StopStatus{entity.StopPending, entity.StopInProgress}, entity.StopFailed,
		map[string]interface{}{"completion_notes": reason})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return nil, fmt.Errorf("%w: stop %s is already terminal", stoppkg.ErrInvalidTransition, stopID)
	}
	metrics.StopFailuresTotal.Inc()

	// skip-and-continue: the route moves on past the failed stop so the
	// delivery never wedges; AllCompleted stays false for it permanently
	if err := s.advanceCursor(ctx, st.DeliveryID, st.StopNumber); err != nil {
		return nil, err
	}
	s.publishSnapshot(ctx, st.DeliveryID)
	return s.getStop(ctx, stopID)
}

var statusRank = map[entity.StopStatus]int{
	entity.StopPending:    0,
	entity.StopInProgress: 1,
	entity.StopCompleted:  2,
	entity.StopFailed:     2,
}

func (s *stopService) UpdateStopStatus(ctx context.Context, stopID uuid.UUID, patch stoppkg.StatusPatch) (*entity.Stop, error) {
	targetRank, known := statusRank[patch.Status]
	if !known {
		return nil, fmt.Errorf("%w: unknown status %q", stoppkg.ErrInvalidTransition, patch.Status)
	}
	// a lost status-guard race re-reads and re-validates against the fresh
	// state, same budget as the cursor compare-and-swap
	for attempt := 1; attempt <= cursorRetryLimit; attempt++ {
		st, done, err := s.applyStatusPatch(ctx, stopID, patch, targetRank)
		if done {
			return st, err
		}
		log.Printf("stops: status patch for stop %s attempt %d/%d: %v",
			stopID, attempt, cursorRetryLimit, stoppkg.ErrConflictRetryable)
	}
	return nil, fmt.Errorf("%w: status patch for stop %s lost %d consecutive races",
		stoppkg.ErrStoreUnavailable, stopID, cursorRetryLimit)
}

// applyStatusPatch runs one validate-and-write attempt. done is false only
// when the guarded write matched zero rows, meaning the stop changed between
// the read and the write and the caller should re-validate.
func (s *stopService) applyStatusPatch(ctx context.Context, stopID uuid.UUID, patch stoppkg.StatusPatch, targetRank int) (*entity.Stop, bool, error) {
	st, err := s.getStop(ctx, stopID)
	if err != nil {
		return nil, true, err
	}
	if st.Status.Terminal() && patch.Status != st.Status {
		return nil, true, fmt.Errorf("%w: stop %s is already %s", stoppkg.ErrInvalidTransition, stopID, st.Status)
	}
	if targetRank < statusRank[st.Status] {
		return nil, true, fmt.Errorf("%w: cannot move stop %s from %s back to %s",
			stoppkg.ErrInvalidTransition, stopID, st.Status, patch.Status)
	}
	if patch.Status != st.Status && targetRank > 0 {
		// in_progress only at the cursor; terminal states never ahead of it
		d, err := s.getDelivery(ctx, st.DeliveryID)
		if err != nil {
			return nil, true, err
		}
		if patch.Status == entity.StopInProgress && st.StopNumber != d.CurrentStopIndex {
			return nil, true, fmt.Errorf("%w: stop %d is not the current stop (cursor at %d)",
				stoppkg.ErrInvalidTransition, st.StopNumber, d.CurrentStopIndex)
		}
		if patch.Status.Terminal() && st.StopNumber > d.CurrentStopIndex {
			return nil, true, fmt.Errorf("%w: stop %d is ahead of the cursor (%d)",
				stoppkg.ErrInvalidTransition, st.StopNumber, d.CurrentStopIndex)
		}
	}

	cols := map[string]interface{}{}
	if patch.ArrivedAt != nil {
		if st.ArrivedAt != nil {
			return nil, true, fmt.Errorf("%w: arrived_at already set on stop %s", stoppkg.ErrInvalidTransition, stopID)
		}
		cols["arrived_at"] = *patch.ArrivedAt
	}
	if patch.CompletedAt != nil {
		if st.CompletedAt != nil {
			return nil, true, fmt.Errorf("%w: completed_at already set on stop %s", stoppkg.ErrInvalidTransition, stopID)
		}
		cols["completed_at"] = *patch.CompletedAt
	}
	if patch.Proof.PhotoURL != nil {
		if st.ProofPhotoURL != nil {
			return nil, true, fmt.Errorf("%w: proof_photo_url already set on stop %s", stoppkg.ErrInvalidTransition, stopID)
		}
		cols["proof_photo_url"] = *patch.Proof.PhotoURL
	}
	if patch.Proof.SignatureURL != nil {
		if st.SignatureURL != nil {
			return nil, true, fmt.Errorf("%w: signature_url already set on stop %s", stoppkg.ErrInvalidTransition, stopID)
		}
		cols["signature_url"] = *patch.Proof.SignatureURL
	}
	if patch.Proof.Notes != nil {
		if st.CompletionNotes != nil {
			return nil, true, fmt.Errorf("%w: completion_notes already set on stop %s", stoppkg.ErrInvalidTransition, stopID)
		}
		cols["completion_notes"] = *patch.Proof.Notes
	}

	// the status read above is the write precondition, so a concurrent
	// transition surfaces as a lost race instead of being overwritten
	affected, err := s.stops.TransitionStatus(ctx, stopID,
		[]entity.StopStatus{st.Status}, patch.Status, cols)
	if err != nil {
		return nil, true, fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if affected == 0 {
		return nil, false, nil
	}
	s.publishSnapshot(ctx, st.DeliveryID)
	out, err := s.getStop(ctx, stopID)
	return out, true, err
}

func (s *stopService) WatchStops(ctx context.Context, deliveryID uuid.UUID) (*realtime.Subscription, error) {
	if _, err := s.getDelivery(ctx, deliveryID); err != nil {
		return nil, err
	}
	sub := s.hub.Subscribe(deliveryID)
	// prime new watchers with the current state
	s.publishSnapshot(ctx, deliveryID)
	return sub, nil
}

// advanceCursor moves the delivery cursor past stopNumber with a bounded
// compare-and-swap retry, then runs the completion cascade if the cursor
// exhausted the route.
func (s *stopService) advanceCursor(ctx context.Context, deliveryID uuid.UUID, stopNumber int) error {
	for attempt := 1; attempt <= cursorRetryLimit; attempt++ {
		d, err := s.getDelivery(ctx, deliveryID)
		if err != nil {
			return err
		}
		if d.CurrentStopIndex > stopNumber {
			// a concurrent writer (or an earlier partial attempt) already
			// advanced past this stop
			return s.cascadeIfExhausted(ctx, d, d.CurrentStopIndex)
		}
		ok, err := s.deliveries.AdvanceCursor(ctx, deliveryID, stopNumber, stopNumber+1)
		if err != nil {
			return fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
		}
		if ok {
			return s.cascadeIfExhausted(ctx, d, stopNumber+1)
		}
		metrics.CursorConflictsTotal.Inc()
		log.Printf("stops: delivery %s cursor advance attempt %d/%d: %v",
			deliveryID, attempt, cursorRetryLimit, stoppkg.ErrConflictRetryable)
	}
	return fmt.Errorf("%w: cursor advance for delivery %s lost %d consecutive races",
		stoppkg.ErrStoreUnavailable, deliveryID, cursorRetryLimit)
}

// redriveCursor finishes a partial application: the stop is already terminal
// but the cursor still points at it. The advance is a single compare-and-swap
// so only one re-driving caller can win; a lost swap means another writer
// finished the advance first and this caller reports the conflict.
func (s *stopService) redriveCursor(ctx context.Context, d *entity.Delivery, stopNumber int) error {
	ok, err := s.deliveries.AdvanceCursor(ctx, d.ID, stopNumber, stopNumber+1)
	if err != nil {
		return fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if !ok {
		return fmt.Errorf("%w: stop %d was already driven past on delivery %s",
			stoppkg.ErrInvalidTransition, stopNumber, d.ID)
	}
	return s.cascadeIfExhausted(ctx, d, stopNumber+1)
}

// cascadeIfExhausted completes the delivery and frees its driver once the
// cursor has passed the last stop. Both writes are idempotent, so re-driving
// a partially applied cascade is safe.
func (s *stopService) cascadeIfExhausted(ctx context.Context, d *entity.Delivery, newIndex int) error {
	if newIndex <= d.TotalStops {
		return nil
	}
	if err := s.deliveries.MarkDelivered(ctx, d.ID); err != nil {
		return fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	if err := s.drivers.SetAvailable(ctx, d.DriverID, true); err != nil {
		return fmt.Errorf("%w: %v", stoppkg.ErrStoreUnavailable, err)
	}
	metrics.DeliveriesDeliveredTotal.Inc()
	return nil
}

func (s *stopService) publishSnapshot(ctx context.Context, deliveryID uuid.UUID) {
	if s.hub == nil || s.hub.WatcherCount(deliveryID) == 0 {
		return
	}
	stops, err := s.stops.ListStops(ctx, deliveryID)
	if err != nil {
		log.Printf("stops: snapshot for delivery %s failed: %v", deliveryID, err)
		return
	}
	s.hub.Publish(deliveryID, stops)
}
