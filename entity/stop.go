package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// StopStatus enumerates the lifecycle of a single stop.
type StopStatus string

const (
	StopPending    StopStatus = "pending"     // not yet visited
	StopInProgress StopStatus = "in_progress" // driver arrived, handing over
	StopCompleted  StopStatus = "completed"   // handed over, proof attached
	StopFailed     StopStatus = "failed"      // could not be completed (e.g. address unreachable)
)

// Terminal reports whether s is a final stop status. Terminal stops are never
// mutated again by the progression engine.
func (s StopStatus) Terminal() bool {
	return s == StopCompleted || s == StopFailed
}

// Stop is one ordered waypoint within a multi-stop delivery.
//
// StopNumber is unique within a delivery and defines the visitation order
// (1..Delivery.TotalStops). ArrivedAt and CompletedAt are set once and never
// rewound. The proof fields are opaque references produced by the upload
// collaborator; the engine stores and returns them verbatim.
type Stop struct {
	ID              uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	DeliveryID      uuid.UUID      `json:"delivery_id" gorm:"type:uuid;not null;uniqueIndex:idx_stops_delivery_stop_number"`
	StopNumber      int            `json:"stop_number" gorm:"not null;uniqueIndex:idx_stops_delivery_stop_number"`
	Status          StopStatus     `json:"status" gorm:"type:text;index;not null;default:'pending'"`
	Address         string         `json:"address" gorm:"type:text;not null"`
	ReceiverPhone   string         `json:"receiver_phone,omitempty" gorm:"type:text"`
	ArrivedAt       *time.Time     `json:"arrived_at,omitempty"`
	CompletedAt     *time.Time     `json:"completed_at,omitempty"`
	ProofPhotoURL   *string        `json:"proof_photo_url,omitempty" gorm:"type:text;default:null"`
	SignatureURL    *string        `json:"signature_url,omitempty" gorm:"type:text;default:null"`
	CompletionNotes *string        `json:"completion_notes,omitempty" gorm:"type:text;default:null"`
	CreatedAt       time.Time      `json:"created_at"`
	UpdatedAt       time.Time      `json:"updated_at"`
	DeletedAt       gorm.DeletedAt `json:"-" gorm:"index"`
}
