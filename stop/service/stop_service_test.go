package service

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/addisgo/delivery-backend/realtime"
	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

// ---- in-memory fakes with the same guard semantics as the gorm repos ----

type fakeStopRepo struct {
	mu    sync.Mutex
	stops map[uuid.UUID]*entity.Stop
	// denyTransitions forces that many guarded writes to match zero rows, to
	// exercise the status-patch retry path
	denyTransitions int
}

func newFakeStopRepo() *fakeStopRepo {
	return &fakeStopRepo{stops: make(map[uuid.UUID]*entity.Stop)}
}

func copyStop(s *entity.Stop) *entity.Stop {
	c := *s
	return &c
}

func (r *fakeStopRepo) GetStopByID(_ context.Context, id uuid.UUID) (*entity.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stops[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return copyStop(s), nil
}

func (r *fakeStopRepo) GetStopByNumber(_ context.Context, deliveryID uuid.UUID, n int) (*entity.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.stops {
		if s.DeliveryID == deliveryID && s.StopNumber == n {
			return copyStop(s), nil
		}
	}
	return nil, nil
}

func (r *fakeStopRepo) ListStops(_ context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []entity.Stop
	for _, s := range r.stops {
		if s.DeliveryID == deliveryID {
			out = append(out, *s)
		}
	}
	for i := 0; i < len(out); i++ {
		for j := i + 1; j < len(out); j++ {
			if out[j].StopNumber < out[i].StopNumber {
				out[i], out[j] = out[j], out[i]
			}
		}
	}
	return out, nil
}

func (r *fakeStopRepo) ListPendingStops(ctx context.Context, deliveryID uuid.UUID) ([]entity.Stop, error) {
	all, _ := r.ListStops(ctx, deliveryID)
	var out []entity.Stop
	for _, s := range all {
		if s.Status == entity.StopPending {
			out = append(out, s)
		}
	}
	return out, nil
}

func (r *fakeStopRepo) CountStops(ctx context.Context, deliveryID uuid.UUID) (int64, error) {
	all, _ := r.ListStops(ctx, deliveryID)
	return int64(len(all)), nil
}

func (r *fakeStopRepo) CountStopsByStatus(ctx context.Context, deliveryID uuid.UUID, status entity.StopStatus) (int64, error) {
	all, _ := r.ListStops(ctx, deliveryID)
	var n int64
	for _, s := range all {
		if s.Status == status {
			n++
		}
	}
	return n, nil
}

func (r *fakeStopRepo) TransitionStatus(_ context.Context, stopID uuid.UUID, allowedFrom []entity.StopStatus, target entity.StopStatus, patch map[string]interface{}) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.denyTransitions > 0 {
		r.denyTransitions--
		return 0, nil
	}
	s, ok := r.stops[stopID]
	if !ok {
		return 0, nil
	}
	allowed := false
	for _, from := range allowedFrom {
		if s.Status == from {
			allowed = true
			break
		}
	}
	if !allowed {
		return 0, nil
	}
	s.Status = target
	for col, val := range patch {
		switch col {
		case "arrived_at":
			t := val.(time.Time)
			s.ArrivedAt = &t
		case "completed_at":
			t := val.(time.Time)
			s.CompletedAt = &t
		case "proof_photo_url":
			v := val.(string)
			s.ProofPhotoURL = &v
		case "signature_url":
			v := val.(string)
			s.SignatureURL = &v
		case "completion_notes":
			v := val.(string)
			s.CompletionNotes = &v
		default:
			return 0, fmt.Errorf("fakeStopRepo: unexpected patch column %q", col)
		}
	}
	s.UpdatedAt = time.Now()
	return 1, nil
}

type fakeDeliveryRepo struct {
	mu         sync.Mutex
	deliveries map[uuid.UUID]*entity.Delivery
	// denyAdvances forces that many compare-and-swap failures before
	// advances succeed again, to exercise the retry path
	denyAdvances int
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{deliveries: make(map[uuid.UUID]*entity.Delivery)}
}

func (r *fakeDeliveryRepo) CreateDeliveryWithStops(_ context.Context, d *entity.Delivery, stops []entity.Stop) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	cp := *d
	r.deliveries[d.ID] = &cp
	return d, nil
}

func (r *fakeDeliveryRepo) GetDeliveryByID(_ context.Context, id uuid.UUID) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	d, ok := r.deliveries[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	cp := *d
	return &cp, nil
}

func (r *fakeDeliveryRepo) GetActiveDeliveryForDriver(_ context.Context, driverID uuid.UUID) (*entity.Delivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, d := range r.deliveries {
		if d.DriverID == driverID && !d.Status.Terminal() {
			cp := *d
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeDeliveryRepo) AdvanceCursor(_ context.Context, id uuid.UUID, from, to int) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.denyAdvances > 0 {
		r.denyAdvances--
		return false, nil
	}
	d, ok := r.deliveries[id]
	if !ok || d.CurrentStopIndex != from {
		return false, nil
	}
	d.CurrentStopIndex = to
	return true, nil
}

func (r *fakeDeliveryRepo) MarkInTransit(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deliveries[id]; ok && d.Status == entity.DeliveryCreated {
		d.Status = entity.DeliveryInTransit
	}
	return nil
}

func (r *fakeDeliveryRepo) MarkDelivered(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.deliveries[id]; ok && !d.Status.Terminal() {
		now := time.Now()
		d.Status = entity.DeliveryDelivered
		d.CompletedAt = &now
	}
	return nil
}

type fakeDriverRepo struct {
	mu        sync.Mutex
	available map[uuid.UUID]bool
}

func newFakeDriverRepo() *fakeDriverRepo {
	return &fakeDriverRepo{available: make(map[uuid.UUID]bool)}
}

func (r *fakeDriverRepo) StoreDriver(_ context.Context, d *entity.Driver) (*entity.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d.ID == uuid.Nil {
		d.ID = uuid.New()
	}
	r.available[d.ID] = d.Available
	return d, nil
}

func (r *fakeDriverRepo) GetDriverByID(_ context.Context, id uuid.UUID) (*entity.Driver, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	avail, ok := r.available[id]
	if !ok {
		return nil, gorm.ErrRecordNotFound
	}
	return &entity.Driver{ID: id, Available: avail}, nil
}

func (r *fakeDriverRepo) GetDriverByPhone(_ context.Context, _ string) (*entity.Driver, error) {
	// the engine never looks drivers up by phone
	return nil, nil
}

func (r *fakeDriverRepo) SetAvailable(_ context.Context, driverID uuid.UUID, available bool) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.available[driverID] = available
	return nil
}

func (r *fakeDriverRepo) isAvailable(id uuid.UUID) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.available[id]
}

// ---- fixture ----

type engineFixture struct {
	svc        stoppkg.Service
	stops      *fakeStopRepo
	deliveries *fakeDeliveryRepo
	drivers    *fakeDriverRepo
	hub        *realtime.Hub
	driverID   uuid.UUID
}

func newEngineFixture(t *testing.T) *engineFixture {
	t.Helper()
	f := &engineFixture{
		stops:      newFakeStopRepo(),
		deliveries: newFakeDeliveryRepo(),
		drivers:    newFakeDriverRepo(),
		hub:        realtime.NewHub(),
		driverID:   uuid.New(),
	}
	f.drivers.available[f.driverID] = false
	f.svc = NewStopService(f.stops, f.deliveries, f.drivers, f.hub)
	return f
}

// seedDelivery creates a delivery with n pending stops numbered 1..n and the
// cursor at 1. Returns the delivery id and the stop ids in visitation order.
func (f *engineFixture) seedDelivery(n int) (uuid.UUID, []uuid.UUID) {
	d := &entity.Delivery{
		ID:               uuid.New(),
		DriverID:         f.driverID,
		CurrentStopIndex: 1,
		TotalStops:       n,
		Status:           entity.DeliveryCreated,
	}
	f.deliveries.deliveries[d.ID] = d
	ids := make([]uuid.UUID, n)
	for i := 0; i < n; i++ {
		s := &entity.Stop{
			ID:         uuid.New(),
			DeliveryID: d.ID,
			StopNumber: i + 1,
			Status:     entity.StopPending,
			Address:    fmt.Sprintf("stop %d", i+1),
		}
		f.stops.stops[s.ID] = s
		ids[i] = s.ID
	}
	return d.ID, ids
}

func strptr(s string) *string { return &s }

// ---- query operations ----

func TestListStopsOrderedByStopNumber(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, _ := f.seedDelivery(5)

	stops, err := f.svc.ListStops(context.Background(), deliveryID)
	require.NoError(t, err)
	require.Len(t, stops, 5)
	for i, s := range stops {
		assert.Equal(t, i+1, s.StopNumber)
	}
}

func TestListStopsUnknownDelivery(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.svc.ListStops(context.Background(), uuid.New())
	require.ErrorIs(t, err, stoppkg.ErrNotFound)
}

func TestCurrentStopFollowsCursor(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	cur, err := f.svc.CurrentStop(ctx, deliveryID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, stopIDs[0], cur.ID)

	_, err = f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	cur, err = f.svc.CurrentStop(ctx, deliveryID)
	require.NoError(t, err)
	require.NotNil(t, cur)
	assert.Equal(t, stopIDs[1], cur.ID)

	_, err = f.svc.CompleteStop(ctx, stopIDs[1], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	// cursor past the end: nil stop, no error
	cur, err = f.svc.CurrentStop(ctx, deliveryID)
	require.NoError(t, err)
	assert.Nil(t, cur)
}

func TestRemainingStops(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(3)
	ctx := context.Background()

	_, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	rest, err := f.svc.RemainingStops(ctx, deliveryID)
	require.NoError(t, err)
	require.Len(t, rest, 2)
	assert.Equal(t, 2, rest[0].StopNumber)
	assert.Equal(t, 3, rest[1].StopNumber)
}

func TestAllCompletedDeliveryWithoutStops(t *testing.T) {
	f := newEngineFixture(t)
	d := &entity.Delivery{ID: uuid.New(), DriverID: f.driverID, CurrentStopIndex: 1}
	f.deliveries.deliveries[d.ID] = d

	done, err := f.svc.AllCompleted(context.Background(), d.ID)
	require.NoError(t, err)
	assert.False(t, done)
}

// ---- arrival ----

func TestMarkArrived(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	st, err := f.svc.MarkArrived(ctx, stopIDs[0])
	require.NoError(t, err)
	assert.Equal(t, entity.StopInProgress, st.Status)
	require.NotNil(t, st.ArrivedAt)

	d, err := f.deliveries.GetDeliveryByID(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryInTransit, d.Status)

	// arriving twice is an invalid transition
	_, err = f.svc.MarkArrived(ctx, stopIDs[0])
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

func TestMarkArrivedOutOfOrder(t *testing.T) {
	f := newEngineFixture(t)
	_, stopIDs := f.seedDelivery(3)

	_, err := f.svc.MarkArrived(context.Background(), stopIDs[2])
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

// ---- completion and the cascade ----

func TestCompleteStopFullRoute(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	_, err := f.svc.MarkArrived(ctx, stopIDs[0])
	require.NoError(t, err)

	st, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{
		PhotoURL: strptr("https://proofs.example/stop1.jpg"),
		Notes:    strptr("left at reception"),
	})
	require.NoError(t, err)
	assert.Equal(t, entity.StopCompleted, st.Status)
	require.NotNil(t, st.CompletedAt)
	require.NotNil(t, st.ProofPhotoURL)
	assert.Equal(t, "https://proofs.example/stop1.jpg", *st.ProofPhotoURL)

	d, err := f.deliveries.GetDeliveryByID(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentStopIndex)
	assert.False(t, d.Status.Terminal())
	assert.False(t, f.drivers.isAvailable(f.driverID))

	// arrival tracking is optional: a pending stop completes directly
	_, err = f.svc.CompleteStop(ctx, stopIDs[1], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	d, err = f.deliveries.GetDeliveryByID(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 3, d.CurrentStopIndex)
	assert.Equal(t, entity.DeliveryDelivered, d.Status)
	require.NotNil(t, d.CompletedAt)
	assert.True(t, f.drivers.isAvailable(f.driverID))

	done, err := f.svc.AllCompleted(ctx, deliveryID)
	require.NoError(t, err)
	assert.True(t, done)
}

func TestCascadeTriggersExactlyOnLastStop(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(3)
	ctx := context.Background()

	for i, stopID := range stopIDs {
		_, err := f.svc.CompleteStop(ctx, stopID, deliveryID, stoppkg.ProofPayload{})
		require.NoError(t, err)

		d, err := f.deliveries.GetDeliveryByID(ctx, deliveryID)
		require.NoError(t, err)
		if i < len(stopIDs)-1 {
			assert.False(t, d.Status.Terminal(), "delivered before stop %d completed", i+2)
		} else {
			assert.Equal(t, entity.DeliveryDelivered, d.Status)
		}
	}
}

func TestCompleteStopWrongDelivery(t *testing.T) {
	f := newEngineFixture(t)
	_, stopIDs := f.seedDelivery(2)
	otherDelivery, _ := f.seedDelivery(1)

	_, err := f.svc.CompleteStop(context.Background(), stopIDs[0], otherDelivery, stoppkg.ProofPayload{})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

func TestCompletedStopIsImmutable(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	st, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{
		Notes: strptr("first attempt"),
	})
	require.NoError(t, err)
	completedAt := *st.CompletedAt

	_, err = f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{
		Notes: strptr("second attempt"),
	})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)

	_, err = f.svc.MarkArrived(ctx, stopIDs[0])
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)

	after, err := f.stops.GetStopByID(ctx, stopIDs[0])
	require.NoError(t, err)
	assert.Equal(t, entity.StopCompleted, after.Status)
	assert.Equal(t, completedAt, *after.CompletedAt)
	assert.Equal(t, "first attempt", *after.CompletionNotes)
}

func TestConcurrentCompletionsAdvanceCursorOnce(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)

	const callers = 8
	errs := make([]error, callers)
	var wg sync.WaitGroup
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
		}(i)
	}
	wg.Wait()

	// A caller that observes the stop already completed in the narrow window
	// before the cursor moves re-drives the advance through the same
	// compare-and-swap, so at most one re-driver can join the winner in
	// reporting success. Every other loser gets ErrInvalidTransition and the
	// cursor moves once.
	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
		} else {
			assert.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
		}
	}
	assert.GreaterOrEqual(t, wins, 1)

	d, err := f.deliveries.GetDeliveryByID(context.Background(), deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentStopIndex, "the cursor must advance exactly once")
}

func TestCursorConflictRecoversWithinBudget(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	f.deliveries.denyAdvances = 2

	_, err := f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	d, err := f.deliveries.GetDeliveryByID(context.Background(), deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentStopIndex)
}

func TestCursorConflictExhaustionSurfaces(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	f.deliveries.denyAdvances = 3

	_, err := f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.ErrorIs(t, err, stoppkg.ErrStoreUnavailable)

	// the stop write is durable even though the cursor never moved
	st, err := f.stops.GetStopByID(context.Background(), stopIDs[0])
	require.NoError(t, err)
	assert.Equal(t, entity.StopCompleted, st.Status)
	d, err := f.deliveries.GetDeliveryByID(context.Background(), deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 1, d.CurrentStopIndex)

	// re-driving the same call detects the completed stop and repairs the
	// cursor instead of rejecting the terminal state
	st, err = f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)
	assert.Equal(t, entity.StopCompleted, st.Status)
	d, err = f.deliveries.GetDeliveryByID(context.Background(), deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentStopIndex)
}

func TestPartialCompletionReDriveLosesRace(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	f.deliveries.denyAdvances = 3

	_, err := f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.ErrorIs(t, err, stoppkg.ErrStoreUnavailable)

	// a re-driving caller whose swap loses must not report success
	f.deliveries.denyAdvances = 1
	_, err = f.svc.CompleteStop(context.Background(), stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

func TestMarkStopFailedReDriveRepairsCursor(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(3)
	f.deliveries.denyAdvances = 3

	_, err := f.svc.MarkStopFailed(context.Background(), stopIDs[0], "gate locked")
	require.ErrorIs(t, err, stoppkg.ErrStoreUnavailable)

	st, err := f.svc.MarkStopFailed(context.Background(), stopIDs[0], "gate locked")
	require.NoError(t, err)
	assert.Equal(t, entity.StopFailed, st.Status)

	d, err := f.deliveries.GetDeliveryByID(context.Background(), deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 2, d.CurrentStopIndex)
}

// ---- failure policy: skip-and-continue ----

func TestMarkStopFailedAdvancesCursor(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(3)
	ctx := context.Background()

	_, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	st, err := f.svc.MarkStopFailed(ctx, stopIDs[1], "address unreachable")
	require.NoError(t, err)
	assert.Equal(t, entity.StopFailed, st.Status)
	require.NotNil(t, st.CompletionNotes)
	assert.Equal(t, "address unreachable", *st.CompletionNotes)

	d, err := f.deliveries.GetDeliveryByID(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, 3, d.CurrentStopIndex, "the route continues past the failed stop")
	assert.False(t, d.Status.Terminal())
}

func TestFailedStopNeverCountsAsCompleted(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	_, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)
	_, err = f.svc.MarkStopFailed(ctx, stopIDs[1], "receiver absent")
	require.NoError(t, err)

	// the cursor exhausted the route, so the delivery completes and the
	// driver is freed, but AllCompleted flags the failed stop forever
	d, err := f.deliveries.GetDeliveryByID(ctx, deliveryID)
	require.NoError(t, err)
	assert.Equal(t, entity.DeliveryDelivered, d.Status)
	assert.True(t, f.drivers.isAvailable(f.driverID))

	done, err := f.svc.AllCompleted(ctx, deliveryID)
	require.NoError(t, err)
	assert.False(t, done)
}

func TestMarkStopFailedNotAtCursor(t *testing.T) {
	f := newEngineFixture(t)
	_, stopIDs := f.seedDelivery(3)

	_, err := f.svc.MarkStopFailed(context.Background(), stopIDs[2], "early report")
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

// ---- administrative patch ----

func TestUpdateStopStatusGuards(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	// in_progress only at the cursor
	_, err := f.svc.UpdateStopStatus(ctx, stopIDs[1], stoppkg.StatusPatch{Status: entity.StopInProgress})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)

	// terminal states never land ahead of the cursor
	_, err = f.svc.UpdateStopStatus(ctx, stopIDs[1], stoppkg.StatusPatch{Status: entity.StopCompleted})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)

	_, err = f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{
		Notes: strptr("original notes"),
	})
	require.NoError(t, err)

	// no rewinding a terminal stop
	_, err = f.svc.UpdateStopStatus(ctx, stopIDs[0], stoppkg.StatusPatch{Status: entity.StopPending})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)

	// terminal fields are write-once
	_, err = f.svc.UpdateStopStatus(ctx, stopIDs[0], stoppkg.StatusPatch{
		Status: entity.StopCompleted,
		Proof:  stoppkg.ProofPayload{Notes: strptr("rewritten notes")},
	})
	require.ErrorIs(t, err, stoppkg.ErrInvalidTransition)
}

func TestUpdateStopStatusCorrectivePatch(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	_, err := f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	// attach a late-arriving signature to a completed stop
	st, err := f.svc.UpdateStopStatus(ctx, stopIDs[0], stoppkg.StatusPatch{
		Status: entity.StopCompleted,
		Proof:  stoppkg.ProofPayload{SignatureURL: strptr("https://proofs.example/sig.png")},
	})
	require.NoError(t, err)
	require.NotNil(t, st.SignatureURL)
	assert.Equal(t, "https://proofs.example/sig.png", *st.SignatureURL)
}

func TestUpdateStopStatusRetriesLostGuardRace(t *testing.T) {
	f := newEngineFixture(t)
	_, stopIDs := f.seedDelivery(2)
	f.stops.denyTransitions = 2

	st, err := f.svc.UpdateStopStatus(context.Background(), stopIDs[0],
		stoppkg.StatusPatch{Status: entity.StopInProgress})
	require.NoError(t, err)
	assert.Equal(t, entity.StopInProgress, st.Status)
}

func TestUpdateStopStatusRetryExhaustionSurfaces(t *testing.T) {
	f := newEngineFixture(t)
	_, stopIDs := f.seedDelivery(2)
	f.stops.denyTransitions = 3

	_, err := f.svc.UpdateStopStatus(context.Background(), stopIDs[0],
		stoppkg.StatusPatch{Status: entity.StopInProgress})
	require.ErrorIs(t, err, stoppkg.ErrStoreUnavailable)
}

// ---- live projection ----

func TestWatchStopsEmitsSnapshots(t *testing.T) {
	f := newEngineFixture(t)
	deliveryID, stopIDs := f.seedDelivery(2)
	ctx := context.Background()

	sub, err := f.svc.WatchStops(ctx, deliveryID)
	require.NoError(t, err)
	defer sub.Close()

	// new watchers are primed with the current state
	snap := requireSnapshot(t, sub)
	require.Len(t, snap, 2)
	assert.Equal(t, entity.StopPending, snap[0].Status)

	_, err = f.svc.MarkArrived(ctx, stopIDs[0])
	require.NoError(t, err)

	snap = requireSnapshot(t, sub)
	require.Len(t, snap, 2)
	assert.Equal(t, entity.StopInProgress, snap[0].Status)

	_, err = f.svc.CompleteStop(ctx, stopIDs[0], deliveryID, stoppkg.ProofPayload{})
	require.NoError(t, err)

	snap = requireSnapshot(t, sub)
	assert.Equal(t, entity.StopCompleted, snap[0].Status)
}

func TestWatchStopsUnknownDelivery(t *testing.T) {
	f := newEngineFixture(t)
	_, err := f.svc.WatchStops(context.Background(), uuid.New())
	require.ErrorIs(t, err, stoppkg.ErrNotFound)
}

func requireSnapshot(t *testing.T, sub *realtime.Subscription) []entity.Stop {
	t.Helper()
	select {
	case snap, ok := <-sub.Stops():
		require.True(t, ok, "snapshot stream closed unexpectedly")
		return snap
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for a snapshot")
		return nil
	}
}
