package service

import (
	"context"
	"time"

	authpkg "github.com/addisgo/delivery-backend/auth"
	driverpkg "github.com/addisgo/delivery-backend/driver"
	"github.com/addisgo/delivery-backend/entity"
)

const tokenTTL = 24 * time.Hour

type driverService struct {
	repo   driverpkg.Repository
	secret string
}

// NewDriverService constructs a Service backed by the provided repository.
// Tokens are signed with the given secret.
func NewDriverService(repo driverpkg.Repository, secret string) driverpkg.Service {
	return &driverService{repo: repo, secret: secret}
}

func (s *driverService) RegisterDriver(ctx context.Context, req driverpkg.RegisterDriverRequest) (*entity.Driver, error) {
	existing, err := s.repo.GetDriverByPhone(ctx, req.Phone)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, driverpkg.ErrPhoneTaken
	}
	d := &entity.Driver{
		FirstName: req.FirstName,
		LastName:  req.LastName,
		Phone:     req.Phone,
		Active:    true,
		Available: true,
	}
	return s.repo.StoreDriver(ctx, d)
}

func (s *driverService) Login(ctx context.Context, phone string) (string, *entity.Driver, error) {
	d, err := s.repo.GetDriverByPhone(ctx, phone)
	if err != nil {
		return "", nil, err
	}
	if d == nil || !d.Active {
		return "", nil, driverpkg.ErrUnknownDriver
	}
	principal := &authpkg.Principal{
		UserID:   d.ID.String(),
		Role:     "driver",
		DriverID: d.ID.String(),
	}
	token, err := authpkg.SignJWT(s.secret, principal, tokenTTL)
	if err != nil {
		return "", nil, err
	}
	return token, d, nil
}
