package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	profithandler "github.com/usman4222/Pharma-Backend-sub000/internal/services/profit/handler"
)

type ProfitHTTPHandler struct {
	profit *profithandler.ProfitHandler
}

func NewProfitHTTPHandler(profit *profithandler.ProfitHandler) *ProfitHTTPHandler {
	return &ProfitHTTPHandler{
		profit: profit,
	}
}

type CreateInvestorRequest struct {
	Name             string  `json:"name" binding:"required"`
	Shares           string  `json:"shares" binding:"required"`
	ProfitPercentage *string `json:"profit_percentage,omitempty"`
	JoinDate         string  `json:"join_date" binding:"required"`
}

type SetInvestorStatusRequest struct {
	Status string `json:"status" binding:"required"`
}

func (h *ProfitHTTPHandler) CreateInvestor(c *gin.Context) {
	var req CreateInvestorRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	joinDate, err := time.Parse("2006-01-02", req.JoinDate)
	if err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("join_date must be YYYY-MM-DD"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	investor, err := h.profit.CreateInvestor(ctx, &profithandler.CreateInvestorRequest{
		Name:             req.Name,
		Shares:           req.Shares,
		ProfitPercentage: req.ProfitPercentage,
		JoinDate:         joinDate,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, successResponse("Investor created", investor))
}

func (h *ProfitHTTPHandler) GetInvestor(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	investor, err := h.profit.GetInvestor(ctx, id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Investor retrieved", investor))
}

func (h *ProfitHTTPHandler) ListInvestors(c *gin.Context) {
	ctx, cancel := requestContext()
	defer cancel()

	investors, err := h.profit.ListInvestors(ctx, c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Investors retrieved", investors))
}

func (h *ProfitHTTPHandler) SetInvestorStatus(c *gin.Context) {
	id, ok := parseIDParam(c)
	if !ok {
		return
	}
	var req SetInvestorStatusRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, errorResponse("Invalid request format"))
		return
	}

	ctx, cancel := requestContext()
	defer cancel()

	investor, err := h.profit.SetInvestorStatus(ctx, id, &profithandler.SetInvestorStatusRequest{
		Status: req.Status,
	})
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Investor status updated", investor))
}

func (h *ProfitHTTPHandler) MonthlyStatement(c *gin.Context) {
	month := c.Param("month")

	ctx, cancel := requestContext()
	defer cancel()

	stmt, err := h.profit.MonthlyStatement(ctx, month)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, successResponse("Statement retrieved", stmt))
}
