package realtime

import (
	"testing"

	"github.com/addisgo/delivery-backend/entity"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func snapshot(n int) []entity.Stop {
	stops := make([]entity.Stop, n)
	for i := range stops {
		stops[i] = entity.Stop{ID: uuid.New(), StopNumber: i + 1, Status: entity.StopPending}
	}
	return stops
}

func TestHubPublishReachesOnlyMatchingDelivery(t *testing.T) {
	h := NewHub()
	deliveryA := uuid.New()
	deliveryB := uuid.New()

	subA := h.Subscribe(deliveryA)
	defer subA.Close()
	subB := h.Subscribe(deliveryB)
	defer subB.Close()

	h.Publish(deliveryA, snapshot(3))

	select {
	case snap := <-subA.Stops():
		assert.Len(t, snap, 3)
	default:
		t.Fatal("watcher on delivery A received nothing")
	}
	select {
	case <-subB.Stops():
		t.Fatal("watcher on delivery B received a foreign snapshot")
	default:
	}
}

func TestHubCloseDetachesAndClosesChannel(t *testing.T) {
	h := NewHub()
	deliveryID := uuid.New()

	sub := h.Subscribe(deliveryID)
	require.Equal(t, 1, h.WatcherCount(deliveryID))

	sub.Close()
	sub.Close() // idempotent
	assert.Equal(t, 0, h.WatcherCount(deliveryID))

	_, ok := <-sub.Stops()
	assert.False(t, ok, "channel must be closed after Close")

	// publishing after close must not panic
	h.Publish(deliveryID, snapshot(1))
}

func TestHubSlowWatcherKeepsNewestSnapshot(t *testing.T) {
	h := NewHub()
	deliveryID := uuid.New()
	sub := h.Subscribe(deliveryID)
	defer sub.Close()

	// overflow the buffer; the oldest snapshots are shed
	for i := 1; i <= snapshotBuffer+3; i++ {
		h.Publish(deliveryID, snapshot(i))
	}

	var last []entity.Stop
	for {
		select {
		case snap := <-sub.Stops():
			last = snap
			continue
		default:
		}
		break
	}
	require.NotNil(t, last)
	assert.Len(t, last, snapshotBuffer+3, "the newest snapshot must survive")
}

func TestHubMultipleWatchersSameDelivery(t *testing.T) {
	h := NewHub()
	deliveryID := uuid.New()

	sub1 := h.Subscribe(deliveryID)
	defer sub1.Close()
	sub2 := h.Subscribe(deliveryID)
	defer sub2.Close()
	require.Equal(t, 2, h.WatcherCount(deliveryID))

	h.Publish(deliveryID, snapshot(2))

	for _, sub := range []*Subscription{sub1, sub2} {
		select {
		case snap := <-sub.Stops():
			assert.Len(t, snap, 2)
		default:
			t.Fatal("every watcher of the delivery must receive the snapshot")
		}
	}
}
