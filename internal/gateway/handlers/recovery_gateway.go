package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/usman4222/Pharma-Backend-sub000/internal/gateway/middleware"
	recoveryhandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/recovery/handler"
)

type RecoveryHTTPHandler struct {
	recovery *recoveryhandler.RecoveryHandler
}

func NewRecoveryHTTPHandler(recovery *recoveryhandler.RecoveryHandler) *RecoveryHTTPHandler {
	return &RecoveryHTTPHandler{
		recovery: recovery,
	}
}

type ApplyRecoveryRequest struct {
	OrderIDs     []int64    `json:"order_ids" binding:"required,min=1"`
	Amount       string     `json:"amount" binding:"required"`
	RecoveryDate *time.Time `json:"recovery_date,omitempty"`
}

type ListRecoveriesQuery struct {
	CounterpartyID *int64 `form:"counterparty_id,omitempty"`
	OrderID        *int64 `form:"order_id,omitempty"`
	Page           int    `form:"page,default=1"`
	PageSize       int    `form:"page_size,default=10"`
}

func (h *RecoveryHTTPHandler) ApplyRecovery(c *gin.Context) {
	var req ApplyRecoveryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	serviceReq := &recoveryhandler.ApplyRecoveryRequest{
		OrderIDs:   req.OrderIDs,
		Amount:     req.Amount,
		RecordedBy: c.GetInt64(middleware.ContextUserID),
	}
	if req.RecoveryDate != nil {
		serviceReq.RecoveryDate = *req.RecoveryDate
	}

	resp, err := h.recovery.ApplyRecovery(ctx, serviceReq)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Recovery applied", resp))
}

func (h *RecoveryHTTPHandler) ListRecoveries(c *gin.Context) {
	var query ListRecoveriesQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid query parameters"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	resp, err := h.recovery.ListRecoveries(ctx, &recoveryhandler.ListRecoveriesRequest{
		CounterpartyID: query.CounterpartyID,
		OrderID:        query.OrderID,
		Page:           query.Page,
		PageSize:       query.PageSize,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successWithMetaResponse("Recoveries retrieved", resp.Recoveries, gin.H{
		"total_count": resp.TotalCount,
		"page":        query.Page,
		"page_size":   query.PageSize,
	}))
}
