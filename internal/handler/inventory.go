package handler

import (
	"net/http"

	"retailcore/internal/dto"
	"retailcore/internal/service"

	"github.com/gin-gonic/gin"
)

type InventoryHandler struct{ svc service.InventoryService }

func NewInventoryHandler(svc service.InventoryService) *InventoryHandler {
	return &InventoryHandler{svc: svc}
}

// Adjust godoc
// @Summary      Adjust on-hand stock
// @Description  Applies a signed correction and records an adjustment movement. Stock cannot drop below what live orders have reserved.
// @Tags         inventory
// @Accept       json
// @Produce      json
// @Security     BearerAuth
// @Param        body body dto.AdjustStockRequest true "Adjustment"
// @Success      200  {object} dto.InventoryResponse
// @Failure      409  {object} apierror.APIError
// @Router       /v1/inventory/adjust [post]
func (h *InventoryHandler) Adjust(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	var req dto.AdjustStockRequest
	if !bindAndValidate(c, &req) {
		return
	}
	resp, err := h.svc.AdjustStock(c.Request.Context(), claims.TenantID, claims.UserID, req)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, resp)
}

// Movements godoc
// @Summary      Inventory movement audit trail
// @Tags         inventory
// @Produce      json
// @Security     BearerAuth
// @Param        product_id   query string false "Product UUID"
// @Param        warehouse_id query string false "Warehouse UUID"
// @Param        order_id     query string false "Order UUID"
// @Param        limit        query int    false "Max rows (default 100, max 500)"
// @Success      200  {array} dto.MovementResponse
// @Router       /v1/inventory/movements [get]
func (h *InventoryHandler) Movements(c *gin.Context) {
	claims, ok := caller(c)
	if !ok {
		return
	}
	var q dto.MovementQuery
	if !bindQuery(c, &q) {
		return
	}
	rows, err := h.svc.ListMovements(c.Request.Context(), claims.TenantID, q)
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, rows)
}
