package driver

import (
	"context"
	"errors"

	"github.com/addisgo/delivery-backend/entity"
)

var (
	// ErrPhoneTaken means a driver already registered with the phone.
	ErrPhoneTaken = errors.New("driver with this phone already exists")
	// ErrUnknownDriver means no active driver matches the login phone.
	ErrUnknownDriver = errors.New("no active driver with this phone")
)

// RegisterDriverRequest carries the data required to register a driver.
// Phone ownership is verified upstream by the identity provider before the
// handler calls the service.
type RegisterDriverRequest struct {
	FirstName string
	LastName  string
	Phone     string
}

// Service exposes driver onboarding and token issuance. Availability
// mutation stays on the repository; the progression engine and delivery
// intake flip it directly.
type Service interface {
	// RegisterDriver persists a new driver, available and active.
	RegisterDriver(ctx context.Context, req RegisterDriverRequest) (*entity.Driver, error)
	// Login issues a signed driver token for the phone's registered driver.
	Login(ctx context.Context, phone string) (string, *entity.Driver, error)
}
