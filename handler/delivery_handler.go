package api

import (
	"net/http"

	deliverypkg "github.com/addisgo/delivery-backend/delivery"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type DeliveryHandler struct{ svc deliverypkg.Service }

func NewDeliveryHandler(svc deliverypkg.Service) *DeliveryHandler {
	return &DeliveryHandler{svc: svc}
}

type stopInputPayload struct {
	Address       string `json:"address" binding:"required"`
	ReceiverPhone string `json:"receiver_phone"`
}

type createDeliveryPayload struct {
	DriverID      string             `json:"driver_id" binding:"required"`
	PickupAddress string             `json:"pickup_address" binding:"required"`
	Stops         []stopInputPayload `json:"stops" binding:"required,min=1,dive"`
}

func (h *DeliveryHandler) CreateDelivery() gin.HandlerFunc {
	return func(c *gin.Context) {
		var p createDeliveryPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		driverID, err := uuid.Parse(p.DriverID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid driver_id"})
			return
		}
		req := deliverypkg.CreateDeliveryRequest{
			DriverID:      driverID,
			PickupAddress: p.PickupAddress,
		}
		for _, in := range p.Stops {
			req.Stops = append(req.Stops, deliverypkg.StopInput{
				Address:       in.Address,
				ReceiverPhone: in.ReceiverPhone,
			})
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		d, err := h.svc.CreateDelivery(ctx, req)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusCreated, d)
	}
}

func (h *DeliveryHandler) GetDelivery() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		d, err := h.svc.GetDelivery(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, d)
	}
}

// ActiveDelivery returns the authenticated driver's in-flight delivery.
func (h *DeliveryHandler) ActiveDelivery() gin.HandlerFunc {
	return func(c *gin.Context) {
		driverID, err := uuid.Parse(c.GetString("driver_id"))
		if err != nil {
			c.JSON(http.StatusForbidden, gin.H{"error": "driver_id missing in context"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		d, err := h.svc.ActiveDeliveryForDriver(ctx, driverID)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		// d is null when the driver has no in-flight delivery
		c.JSON(http.StatusOK, gin.H{"delivery": d})
	}
}
