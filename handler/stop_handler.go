package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/addisgo/delivery-backend/entity"
	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

type StopHandler struct{ svc stoppkg.Service }

func NewStopHandler(svc stoppkg.Service) *StopHandler { return &StopHandler{svc: svc} }

// statusFor maps engine errors onto HTTP statuses.
func statusFor(err error) int {
	switch {
	case errors.Is(err, stoppkg.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, stoppkg.ErrInvalidTransition):
		return http.StatusConflict
	case errors.Is(err, stoppkg.ErrConflictRetryable):
		return http.StatusConflict
	case errors.Is(err, stoppkg.ErrStoreUnavailable):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func opCtx(c *gin.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request.Context(), 10*time.Second)
}

func (h *StopHandler) ListStops() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		stops, err := h.svc.ListStops(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stops": stops})
	}
}

func (h *StopHandler) CurrentStop() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		st, err := h.svc.CurrentStop(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		// st is null once the cursor has passed the last stop
		c.JSON(http.StatusOK, gin.H{"stop": st})
	}
}

func (h *StopHandler) RemainingStops() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		stops, err := h.svc.RemainingStops(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"stops": stops})
	}
}

func (h *StopHandler) AllCompleted() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		done, err := h.svc.AllCompleted(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, gin.H{"all_completed": done})
	}
}

func (h *StopHandler) MarkArrived() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		st, err := h.svc.MarkArrived(ctx, id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type completePayload struct {
	DeliveryID      string  `json:"delivery_id" binding:"required"`
	ProofPhotoURL   *string `json:"proof_photo_url"`
	SignatureURL    *string `json:"signature_url"`
	CompletionNotes *string `json:"completion_notes"`
}

func (h *StopHandler) CompleteStop() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop id"})
			return
		}
		var p completePayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		deliveryID, err := uuid.Parse(p.DeliveryID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery_id"})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		st, err := h.svc.CompleteStop(ctx, id, deliveryID, stoppkg.ProofPayload{
			PhotoURL:     p.ProofPhotoURL,
			SignatureURL: p.SignatureURL,
			Notes:        p.CompletionNotes,
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type failPayload struct {
	Reason string `json:"reason" binding:"required"`
}

func (h *StopHandler) MarkFailed() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop id"})
			return
		}
		var p failPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		st, err := h.svc.MarkStopFailed(ctx, id, p.Reason)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type statusPatchPayload struct {
	Status          string     `json:"status" binding:"required"`
	ArrivedAt       *time.Time `json:"arrived_at"`
	CompletedAt     *time.Time `json:"completed_at"`
	ProofPhotoURL   *string    `json:"proof_photo_url"`
	SignatureURL    *string    `json:"signature_url"`
	CompletionNotes *string    `json:"completion_notes"`
}

// UpdateStatus is the administrative single-stop patch endpoint.
func (h *StopHandler) UpdateStatus() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid stop id"})
			return
		}
		var p statusPatchPayload
		if err := c.ShouldBindJSON(&p); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request payload", "detail": err.Error()})
			return
		}
		ctx, cancel := opCtx(c)
		defer cancel()
		st, err := h.svc.UpdateStopStatus(ctx, id, stoppkg.StatusPatch{
			Status:      entity.StopStatus(p.Status),
			ArrivedAt:   p.ArrivedAt,
			CompletedAt: p.CompletedAt,
			Proof: stoppkg.ProofPayload{
				PhotoURL:     p.ProofPhotoURL,
				SignatureURL: p.SignatureURL,
				Notes:        p.CompletionNotes,
			},
		})
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		c.JSON(http.StatusOK, st)
	}
}
