package entity

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

// Driver is the availability register entry for a delivery driver.
// Available is flipped off when a delivery is assigned and flipped back on
// by the completion cascade.
type Driver struct {
	ID        uuid.UUID      `json:"id" gorm:"type:uuid;primaryKey;default:uuid_generate_v4()"`
	FirstName string         `json:"first_name" gorm:"type:text;not null"`
	LastName  string         `json:"last_name" gorm:"type:text;not null"`
	Phone     string         `json:"phone" gorm:"type:text;index;not null"`
	Active    bool           `json:"active" gorm:"default:true;index"`
	Available bool           `json:"available" gorm:"default:false;index"`
	CreatedAt time.Time      `json:"created_at"`
	UpdatedAt time.Time      `json:"updated_at"`
	DeletedAt gorm.DeletedAt `json:"-" gorm:"index"`
}
