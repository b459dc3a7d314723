package handler

import (
	"context"
	"time"

	"github.com/go-redis/redis/v8"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
)

const (
	STATEMENT_CACHE_PREFIX = "profit:statement:"

	// Reserve rates fixed by partnership agreement: 2% of gross sale for
	// operating expenses, 10% of profit for charity.
	expenseReserveRate = "0.02"
	charityReserveRate = "0.10"
)

var hundred = decimal.NewFromInt(100)

type ProfitHandler struct {
	db    *gorm.DB
	redis *redis.Client
}

func NewProfitHandler(db *gorm.DB, redisClient *redis.Client) *ProfitHandler {
	return &ProfitHandler{
		db:    db,
		redis: redisClient,
	}
}

func lockForUpdate(tx *gorm.DB) *gorm.DB {
	if tx.Dialector.Name() == "postgres" {
		return tx.Clauses(clause.Locking{Strength: "UPDATE"})
	}
	return tx
}

type DistributionResult struct {
	GrossSale      decimal.Decimal
	GrossProfit    decimal.Decimal
	ExpenseReserve decimal.Decimal
	CharityReserve decimal.Decimal
	Distributable  decimal.Decimal
	Shares         []models.InvestorProfitShare
}

// eligibleForMonth applies the mid-month cutoff: an investor is in for the
// sale month if they joined on or before its first day, or joined between
// the 1st and the 15th of the current month once the 15th has passed.
func eligibleForMonth(joinDate, now time.Time) bool {
	monthStart := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	if !joinDate.After(monthStart) {
		return true
	}
	midMonth := time.Date(now.Year(), now.Month(), 15, 0, 0, 0, 0, now.Location())
	return now.Day() >= 15 && joinDate.Before(midMonth.AddDate(0, 0, 1))
}

// DistributeWithinTx computes and records the profit distribution for one
// committed sale. It runs inside the sale's transaction: a failed write
// here rolls the whole sale back.
func (s *ProfitHandler) DistributeWithinTx(tx *gorm.DB, orderID int64, grossSale, profit decimal.Decimal, now time.Time) (*DistributionResult, error) {
	expenseReserve := grossSale.Mul(mustDec(expenseReserveRate))
	charityReserve := profit.Mul(mustDec(charityReserveRate))
	distributable := profit.Sub(charityReserve).Sub(expenseReserve)

	result := &DistributionResult{
		GrossSale:      grossSale,
		GrossProfit:    profit,
		ExpenseReserve: expenseReserve,
		CharityReserve: charityReserve,
		Distributable:  distributable,
	}

	var investors []models.Investor
	if err := lockForUpdate(tx).
		Where("status = ?", models.InvestorActive).
		Order("id asc").
		Find(&investors).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	month := now.Format("2006-01")
	houseTotal := decimal.Zero

	for _, investor := range investors {
		if !eligibleForMonth(investor.JoinDate, now) {
			continue
		}

		shares := mustDec(investor.Shares)
		baseShare := distributable.Mul(shares).Div(hundred)

		profitPercent := hundred
		if investor.ProfitPercentage != nil {
			profitPercent = mustDec(*investor.ProfitPercentage)
		}
		investorAmount := baseShare.Mul(profitPercent).Div(hundred)
		houseAmount := baseShare.Sub(investorAmount)

		record := models.InvestorProfitShare{
			InvestorID:     investor.ID,
			OrderID:        orderID,
			Month:          month,
			GrossSale:      grossSale.StringFixed(2),
			GrossProfit:    profit.StringFixed(2),
			ExpenseReserve: expenseReserve.StringFixed(2),
			CharityReserve: charityReserve.StringFixed(2),
			Distributable:  distributable.StringFixed(2),
			SharePercent:   shares.StringFixed(4),
			InvestorAmount: investorAmount.StringFixed(2),
			HouseAmount:    houseAmount.StringFixed(2),
			CreatedAt:      now,
		}
		if err := tx.Create(&record).Error; err != nil {
			return nil, apperrors.Internal(err)
		}

		balance := mustDec(investor.Balance).Add(investorAmount)
		if err := tx.Model(&models.Investor{}).
			Where("id = ?", investor.ID).
			Updates(map[string]interface{}{
				"balance":    balance.StringFixed(2),
				"updated_at": now,
			}).Error; err != nil {
			return nil, apperrors.Internal(err)
		}

		houseTotal = houseTotal.Add(houseAmount)
		result.Shares = append(result.Shares, record)
	}

	if houseTotal.IsPositive() {
		if err := s.creditHouse(tx, houseTotal, now); err != nil {
			return nil, err
		}
	}

	return result, nil
}

func (s *ProfitHandler) creditHouse(tx *gorm.DB, amount decimal.Decimal, now time.Time) error {
	var house models.HouseAccount
	if err := lockForUpdate(tx).First(&house).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return apperrors.Invariant("house account is not seeded")
		}
		return apperrors.Internal(err)
	}

	balance := mustDec(house.Balance).Add(amount)
	return tx.Model(&house).Updates(map[string]interface{}{
		"balance":    balance.StringFixed(2),
		"updated_at": now,
	}).Error
}

// -- Investors --

type CreateInvestorRequest struct {
	Name             string
	Shares           string
	ProfitPercentage *string
	JoinDate         time.Time
}

func (s *ProfitHandler) CreateInvestor(ctx context.Context, req *CreateInvestorRequest) (*models.Investor, error) {
	if req.Name == "" {
		return nil, apperrors.Validation("name required")
	}
	shares, err := decimal.NewFromString(req.Shares)
	if err != nil || !shares.IsPositive() || shares.GreaterThan(hundred) {
		return nil, apperrors.Validation("shares must be a percentage between 0 and 100")
	}
	if req.ProfitPercentage != nil {
		pct, err := decimal.NewFromString(*req.ProfitPercentage)
		if err != nil || pct.IsNegative() || pct.GreaterThan(hundred) {
			return nil, apperrors.Validation("profit percentage must be between 0 and 100")
		}
	}
	if req.JoinDate.IsZero() {
		return nil, apperrors.Validation("join date required")
	}

	investor := models.Investor{
		Name:             req.Name,
		Shares:           shares.StringFixed(4),
		ProfitPercentage: req.ProfitPercentage,
		JoinDate:         req.JoinDate,
		Balance:          "0.00",
		Status:           models.InvestorActive,
	}
	if err := s.db.WithContext(ctx).Create(&investor).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return &investor, nil
}

func (s *ProfitHandler) GetInvestor(ctx context.Context, id int64) (*models.Investor, error) {
	var investor models.Investor
	if err := s.db.WithContext(ctx).First(&investor, id).Error; err != nil {
		if err == gorm.ErrRecordNotFound {
			return nil, apperrors.NotFound("investor %d not found", id)
		}
		return nil, apperrors.Internal(err)
	}
	return &investor, nil
}

func (s *ProfitHandler) ListInvestors(ctx context.Context, status string) ([]models.Investor, error) {
	query := s.db.WithContext(ctx).Model(&models.Investor{})
	if status != "" {
		query = query.Where("status = ?", status)
	}
	var investors []models.Investor
	if err := query.Order("id asc").Find(&investors).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return investors, nil
}

type SetInvestorStatusRequest struct {
	Status string
}

func (s *ProfitHandler) SetInvestorStatus(ctx context.Context, id int64, req *SetInvestorStatusRequest) (*models.Investor, error) {
	if req.Status != models.InvestorActive && req.Status != models.InvestorInactive {
		return nil, apperrors.Validation("status must be active or inactive")
	}

	investor, err := s.GetInvestor(ctx, id)
	if err != nil {
		return nil, err
	}

	if err := s.db.WithContext(ctx).Model(investor).
		Updates(map[string]interface{}{"status": req.Status, "updated_at": time.Now()}).Error; err != nil {
		return nil, apperrors.Internal(err)
	}
	return investor, nil
}

// -- Statements --

type InvestorMonthTotal struct {
	InvestorID     int64  `json:"investor_id"`
	InvestorName   string `json:"investor_name"`
	Orders         int    `json:"orders"`
	InvestorAmount string `json:"investor_amount"`
	HouseAmount    string `json:"house_amount"`
}

type MonthlyStatementResponse struct {
	Month         string               `json:"month"`
	Totals        []InvestorMonthTotal `json:"totals"`
	HouseTotal    string               `json:"house_total"`
	InvestorTotal string               `json:"investor_total"`
}

// MonthlyStatement aggregates the append-only share records for one
// calendar month ("YYYY-MM").
func (s *ProfitHandler) MonthlyStatement(ctx context.Context, month string) (*MonthlyStatementResponse, error) {
	if _, err := time.Parse("2006-01", month); err != nil {
		return nil, apperrors.Validation("month must be in YYYY-MM format")
	}

	var records []models.InvestorProfitShare
	if err := s.db.WithContext(ctx).
		Where("month = ?", month).
		Preload("Investor").
		Order("investor_id asc, id asc").
		Find(&records).Error; err != nil {
		return nil, apperrors.Internal(err)
	}

	perInvestor := map[int64]*InvestorMonthTotal{}
	var order []int64
	houseTotal := decimal.Zero
	investorTotal := decimal.Zero

	for _, record := range records {
		entry, ok := perInvestor[record.InvestorID]
		if !ok {
			entry = &InvestorMonthTotal{InvestorID: record.InvestorID}
			if record.Investor != nil {
				entry.InvestorName = record.Investor.Name
			}
			perInvestor[record.InvestorID] = entry
			order = append(order, record.InvestorID)
		}

		entry.Orders++
		amount := mustDec(record.InvestorAmount)
		house := mustDec(record.HouseAmount)
		entry.InvestorAmount = mustDec(defaultAmount(entry.InvestorAmount)).Add(amount).StringFixed(2)
		entry.HouseAmount = mustDec(defaultAmount(entry.HouseAmount)).Add(house).StringFixed(2)
		houseTotal = houseTotal.Add(house)
		investorTotal = investorTotal.Add(amount)
	}

	resp := &MonthlyStatementResponse{
		Month:         month,
		HouseTotal:    houseTotal.StringFixed(2),
		InvestorTotal: investorTotal.StringFixed(2),
	}
	for _, id := range order {
		resp.Totals = append(resp.Totals, *perInvestor[id])
	}
	return resp, nil
}

func mustDec(s string) decimal.Decimal {
	d, _ := decimal.NewFromString(s)
	return d
}

func defaultAmount(s string) string {
	if s == "" {
		return "0.00"
	}
	return s
}
