package handler

import (
	"net/http"
	"strings"

	"retailcore/internal/apierror"
	"retailcore/internal/dto"
	"retailcore/internal/service"

	"github.com/gin-gonic/gin"
)

const idempotencyHeader = "Idempotency-Key"

// ShopOrdersHandler serves the customer-facing mobile storefront.
type ShopOrdersHandler struct{ svc service.OrderService }

func NewShopOrdersHandler(svc service.OrderService) *ShopOrdersHandler {
	return &ShopOrdersHandler{svc: svc}
}

// PlaceOrder godoc
// @Summary      Place a mobile order
// @Description  Reserves stock and creates the order atomically. Replaying the same idempotency key returns the existing order with 200.
// @Tags         shop
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        Idempotency-Key header string             false "Client-generated key"
// @Param        body            body   dto.PlaceOrderInput true  "Order"
// @Success      201  {object} dto.PlaceOrderResult
// @Success      200  {object} dto.PlaceOrderResult
// @Failure      409  {object} apierror.APIError
// @Failure      422  {object} apierror.APIError
// @Router       /v1/shop/orders [post]
func (h *ShopOrdersHandler) PlaceOrder(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	var req dto.PlaceOrderInput
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apierror.New(apierror.CodeBadRequest, "invalid JSON: "+err.Error()))
		return
	}
	// The header wins over the body and goes through the same tag checks.
	if key := strings.TrimSpace(c.GetHeader(idempotencyHeader)); key != "" {
		req.IdempotencyKey = &key
	}
	if !runValidation(c, &req) {
		return
	}
	req.CustomerID = claims.UserID

	res, err := h.svc.PlaceOrder(c.Request.Context(), claims.TenantID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	status := http.StatusCreated
	if res.Duplicate {
		status = http.StatusOK
	}
	c.JSON(status, res)
}

// ListMine godoc
// @Summary      List my orders
// @Tags         shop
// @Produce      json
// @Security     BearerAuth
// @Param        cursor query string false "Opaque cursor from a previous page"
// @Param        limit  query int    false "Page size (default 20, max 100)"
// @Success      200  {object} dto.OrderPage
// @Router       /v1/shop/orders [get]
func (h *ShopOrdersHandler) ListMine(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	var q dto.OrderListQuery
	if !bindQuery(c, &q) {
		return
	}
	page, err := h.svc.GetCustomerOrders(c.Request.Context(), claims.TenantID, claims.UserID, q.Cursor, q.Limit)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, page)
}

// GetMine godoc
// @Summary      Order detail with status history
// @Tags         shop
// @Produce      json
// @Security     BearerAuth
// @Param        id path string true "Order UUID"
// @Success      200  {object} dto.OrderResponse
// @Failure      404  {object} apierror.APIError
// @Router       /v1/shop/orders/{id} [get]
func (h *ShopOrdersHandler) GetMine(c *gin.Context) {
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
	// Another customer's order is indistinguishable from a missing one.
	if o == nil || o.CustomerID != claims.UserID {
		writeError(c, service.ErrOrderNotFound)
		return
	}
	c.JSON(http.StatusOK, o)
}

// Cancel godoc
// @Summary      Cancel my pending order
// @Tags         shop
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        id   path string                 true  "Order UUID"
// @Param        body body dto.CancelOrderRequest false "Reason"
// @Success      200  {object} dto.OrderResponse
// @Failure      403  {object} apierror.APIError
// @Failure      409  {object} apierror.APIError
// @Router       /v1/shop/orders/{id}/cancel [post]
func (h *ShopOrdersHandler) Cancel(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	id, ok := pathID(c)
	if !ok {
		return
	}
	var req dto.CancelOrderRequest
	if c.Request.ContentLength != 0 && !bindAndValidate(c, &req) {
		return
	}
	o, err := h.svc.CancelByCustomer(c.Request.Context(), claims.TenantID, id, claims.UserID, req.Reason)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, o)
}
