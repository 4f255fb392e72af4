package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// DeliveryStatus enumerates the lifecycle of a delivery. Transitions only
// move forward; delivered and failed are terminal.
type DeliveryStatus string

const (
	DeliveryCreated   DeliveryStatus = "created"    // stops assigned, driver not yet moving
	DeliveryInTransit DeliveryStatus = "in_transit" // driver working through the stop list
	DeliveryDelivered DeliveryStatus = "delivered"  // cursor passed the last stop
	DeliveryFailed    DeliveryStatus = "failed"     // abandoned by an administrative action
)

// Terminal reports whether s is a final delivery status.
func (s DeliveryStatus) Terminal() bool {
	return s == DeliveryDelivered || s == DeliveryFailed
}

// Delivery is one multi-stop delivery run assigned to a single driver.
//
// CurrentStopIndex is a 1-based cursor over the delivery's stops: it equals
// the StopNumber of the stop currently being worked, starts at 1 and only
// ever increases. The delivery is complete once the cursor passes TotalStops.
// DriverID is fixed at creation and is what the completion cascade uses to
// free the driver, never the identity of whichever caller drove the last stop.
type Delivery struct {
	ID               uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	DriverID         uuid.UUID      `json:"driver_id" gorm:"type:uuid;index;not null"`
	CurrentStopIndex int            `json:"current_stop_index" gorm:"not null;default:1"`
	TotalStops       int            `json:"total_stops" gorm:"not null"`
	Status           DeliveryStatus `json:"status" gorm:"type:text;index;not null;default:'created'"`
	PickupAddress    string         `json:"pickup_address" gorm:"type:text;not null"`
	CompletedAt      *time.Time     `json:"completed_at,omitempty"`
	CreatedAt        time.Time      `json:"created_at"`
	UpdatedAt        time.Time      `json:"updated_at"`
	DeletedAt        gorm.DeletedAt `json:"-" gorm:"index"`
}
