package handler

import (
	"net/http"

	"retailcore/internal/dto"
	"retailcore/internal/service"
	"retailcore/internal/tenant"

	"github.com/gin-gonic/gin"
)

// OrdersHandler is the shop staff view of incoming orders.
type OrdersHandler struct{ svc service.OrderService }

func NewOrdersHandler(svc service.OrderService) *OrdersHandler { return &OrdersHandler{svc: svc} }

// List godoc
// @Summary      List shop orders
// @Description  Polling view for staff; authoritative when real-time events are missed.
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        status query string false "Filter by status"
// @Param        cursor query string false "Opaque cursor"
// @Param        limit  query int    false "Page size (default 20, max 100)"
// @Success      200  {object} dto.OrderPage
// @Router       /v1/orders [get]
func (h *OrdersHandler) List(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	var q dto.OrderListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.svc.ListShopOrders(c.Request.Context(), claims.TenantID, q.Status, q.Cursor, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// Get godoc
// @Summary      Order detail
// @Tags         orders
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order UUID"
// @Success      200  {object} dto.OrderResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/orders/{id} [get]
func (h *OrdersHandler) Get(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	o, err := h.svc.GetOrderDetail(c.Request.Context(), claims.TenantID, id)
	if err != nil {
		writeError(c, err)
		return
	}
	if o == nil {
		writeError(c, service.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}

// UpdateStatus godoc
// @Summary      Move an order through its lifecycle
// @Description  Confirming consumes reserved stock; cancelling a pending order releases it.
// @Tags         orders
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                       true "Order UUID"
// @Param        body body dto.UpdateOrderStatusRequest true "Target status"
// @Success      200  {object} dto.OrderResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/orders/{id}/status [patch]
func (h *OrdersHandler) UpdateStatus(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.UpdateOrderStatusRequest
	if !bindAndValidate(c, &req) {
		return
	}
	o, err := h.svc.UpdateOrderStatus(c.Request.Context(), claims.TenantID, id, req.Status, claims.UserID, tenant.ActorStaff, req.Note)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
