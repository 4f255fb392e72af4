package api

import (
	"errors"
	"net/http"

	driverpkg "github.com/addisgo/delivery-backend/driver"
	"github.com/gin-gonic/gin"
)

type DriverHandler struct{ svc driverpkg.Service }

func NewDriverHandler(svc driverpkg.Service) *DriverHandler {
	return &DriverHandler{svc: svc}
}

type registerDriverPayload struct {
	FirstName string `json:"first_name" binding:"required"`
	LastName  string `json:"last_name" binding:"required"`
	Phone     string `json:"phone" binding:"required"`
}

// RegisterDriver creates a driver row, available for assignment. Phone
// ownership is verified by the identity provider before this endpoint is
// called.
func (h *DriverHandler) RegisterDriver() gin.HandlerFunc {
	return func(c *gin.Context) {
		var p registerDriverPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		d, err := h.svc.RegisterDriver(ctx, driverpkg.RegisterDriverRequest{
			FirstName: p.FirstName,
			LastName:  p.LastName,
			Phone:     p.Phone,
		})
		if err != nil {
			if errors.Is(err, driverpkg.ErrPhoneTaken) {
				c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
				return
			}
			c.JSON(http.StatusInternalServerError, gin.H{"error": "registration failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

type loginPayload struct {
	Phone string `json:"phone" binding:"required"`
}

// Login issues a driver token for a registered phone.
func (h *DriverHandler) Login() gin.HandlerFunc {
	return func(c *gin.Context) {
		var p loginPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		token, d, err := h.svc.Login(ctx, p.Phone)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "login failed", "detail": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"token": token, "driver": d})
	}
}
