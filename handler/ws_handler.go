package api

import (
	"net/http"

	stoppkg "github.com/addisgo/delivery-backend/stop"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{CheckOrigin: func(r *http.Request) bool { return true }}

type WSHandler struct{ svc stoppkg.Service }

func NewWSHandler(svc stoppkg.Service) *WSHandler { return &WSHandler{svc: svc} }

// WatchStops upgrades to WS and streams full stop-list snapshots for one
// delivery. Each message is an idempotent snapshot, not a delta. The stream
// runs until the client disconnects; there is no server-side timeout.
func (h *WSHandler) WatchStops() gin.HandlerFunc {
	return func(c *gin.Context) {
		id, err := uuid.Parse(c.Param("id"))
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid delivery id"})
			return
		}
		sub, err := h.svc.WatchStops(c.Request.Context(), id)
		if err != nil {
			c.JSON(statusFor(err), gin.H{"error": err.Error()})
			return
		}
		conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
		if err != nil {
			sub.Close()
			return
		}
		defer conn.Close()
		defer sub.Close()

		// read loop only detects the client going away
		done := make(chan struct{})
		go func() {
			defer close(done)
			for {
				if _, _, err := conn.ReadMessage(); err != nil {
					return
				}
			}
		}()

		for {
			select {
			case stops, ok := <-sub.Stops():
				if !ok {
					return
				}
				msg := map[string]any{"event": "stops.snapshot", "data": stops}
				if err := conn.WriteJSON(msg); err != nil {
					return
				}
			case <-done:
				return
			}
		}
	}
}
