// Package ledger holds the pure balance and allocation math shared by the
// order, recovery and inventory services. Everything here is side-effect
// free; the services apply the results inside their own transactions.
package ledger

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/usman4222/Pharma-Backend-sub000/internal/apperrors"
	"github.com/usman4222/Pharma-Backend-sub000/internal/database/models"
)

// NetBalance adds the deltas to a counterparty's running pay/receive
// balances and nets them so that at most one side is nonzero. Every
// purchase, sale, return and reversal goes through this function.
func NetBalance(pay, receive, deltaPay, deltaReceive decimal.Decimal) (decimal.Decimal, decimal.Decimal) {
	pay = pay.Add(deltaPay)
	receive = receive.Add(deltaReceive)

	if pay.GreaterThan(receive) {
		return pay.Sub(receive), decimal.Zero
	}
	return decimal.Zero, receive.Sub(pay)
}

// ReverseAdjustment computes the balance as if the opposite transaction of
// orderType had occurred for amount, used to undo an order's prior effect.
func ReverseAdjustment(pay, receive, amount decimal.Decimal, orderType string) (decimal.Decimal, decimal.Decimal, error) {
	switch orderType {
	case models.OrderTypePurchase:
		// A purchase raised pay; reverse with a receive-side delta.
		newPay, newReceive := NetBalance(pay, receive, decimal.Zero, amount)
		return newPay, newReceive, nil
	case models.OrderTypeSale:
		// A sale raised receive; reverse with a pay-side delta.
		newPay, newReceive := NetBalance(pay, receive, amount, decimal.Zero)
		return newPay, newReceive, nil
	default:
		return pay, receive, apperrors.Invariant("cannot reverse balance for order type %q", orderType)
	}
}

// SettlePayment reduces the side of the balance the order type raised,
// floored at zero. Payments settle existing exposure and never flip the
// balance to the other side.
func SettlePayment(pay, receive, amount decimal.Decimal, orderType string) (decimal.Decimal, decimal.Decimal) {
	switch orderType {
	case models.OrderTypePurchase:
		pay = pay.Sub(amount)
		if pay.IsNegative() {
			pay = decimal.Zero
		}
	case models.OrderTypeSale:
		receive = receive.Sub(amount)
		if receive.IsNegative() {
			receive = decimal.Zero
		}
	}
	return pay, receive
}

// BatchLot is the slice of batch state the allocator needs, ordered by the
// caller with the soonest expiry first.
type BatchLot struct {
	BatchNumber string
	ExpiryDate  time.Time
	Stock       int32
}

type Allocation struct {
	BatchNumber string
	Units       int32
}

// PlanAllocation greedily takes stock from lots in the given order until the
// request is satisfied. Near-expiry stock moves first, so lots must be
// sorted by ascending expiry. A nonzero shortfall means the caller must fail
// with insufficient stock and write nothing.
func PlanAllocation(lots []BatchLot, requested int32) ([]Allocation, int32) {
	remaining := requested
	var allocations []Allocation

	for _, lot := range lots {
		if remaining == 0 {
			break
		}
		if lot.Stock <= 0 {
			continue
		}
		take := lot.Stock
		if remaining < take {
			take = remaining
		}
		allocations = append(allocations, Allocation{BatchNumber: lot.BatchNumber, Units: take})
		remaining -= take
	}

	return allocations, remaining
}
