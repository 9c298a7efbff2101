package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"retailcore/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog/log"
)

// OrderFeed delivers raw order event payloads for one tenant.
type OrderFeed interface {
	Subscribe(ctx context.Context, tenantID string) (<-chan []byte, func(), error)
}

// EventsHandler streams order events to shop staff over SSE. Delivery is
// best effort; the order list endpoint stays authoritative.
type EventsHandler struct {
	feed      OrderFeed
	keepAlive time.Duration
}

func NewEventsHandler(feed OrderFeed) *EventsHandler {
	return &EventsHandler{feed: feed, keepAlive: 25 * time.Second}
}

// Stream godoc
// @Summary      Real-time order events
// @Description  Server-sent events for the caller's tenant only.
// @Tags         orders
// @Produce      text/event-stream
// @Security     BearerAuth
// @Success      200
// @Router       /v1/orders/events [get]
func (h *EventsHandler) Stream(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	ctx := c.Request.Context()
	events, closeFn, err := h.feed.Subscribe(ctx, claims.TenantID)
	if err != nil {
		log.Warn().Err(err).Str("tenant_id", claims.TenantID).Msg("order feed subscribe failed")
		c.JSON(http.StatusServiceUnavailable, apierror.New(apierror.CodeUnavailable, "real-time feed unavailable, poll /v1/orders"))
		return
	}
	defer closeFn()

	c.Header("Cache-Control", "no-cache")
	c.Header("Connection", "keep-alive")
	c.Header("X-Accel-Buffering", "no")

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	c.Stream(func(w io.Writer) bool {
		select {
		case <-ctx.Done():
			return false
		case payload, open := <-events:
			if !open {
				return false
			}
			c.SSEvent("order", string(payload))
			return true
		case <-ticker.C:
			c.SSEvent("ping", "")
			return true
		}
	})
}
