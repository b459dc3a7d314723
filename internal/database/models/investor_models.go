package models

import "time"

const (
	InvestorActive   = "active"
	InvestorInactive = "inactive"
)

type Investor struct {
	ID   int64  `gorm:"primaryKey;autoIncrement"`
	Name string `gorm:"type:varchar(255);not null"`
	// Shares is the investor's ownership percentage of the business.
	Shares string `gorm:"type:decimal(8,4);not null"`
	// ProfitPercentage is the slice of the investor's base share kept by
	// the investor; the rest accrues to the house account. Nil means 100.
	ProfitPercentage *string   `gorm:"type:decimal(5,2)"`
	JoinDate         time.Time `gorm:"not null"`
	Balance          string    `gorm:"type:decimal(18,2);not null;default:0"`
	Status           string    `gorm:"type:varchar(16);not null;default:'active';index"`
	CreatedAt        time.Time
	UpdatedAt        time.Time
}

// InvestorProfitShare is the append-only audit row written per eligible
// investor per sale. Never mutated after creation.
type InvestorProfitShare struct {
	ID         int64  `gorm:"primaryKey;autoIncrement"`
	InvestorID int64  `gorm:"not null;index"`
	OrderID    int64  `gorm:"not null;index"`
	Month      string `gorm:"type:varchar(7);not null;index"` // YYYY-MM

	GrossSale      string `gorm:"type:decimal(18,2);not null"`
	GrossProfit    string `gorm:"type:decimal(18,2);not null"`
	ExpenseReserve string `gorm:"type:decimal(18,2);not null"`
	CharityReserve string `gorm:"type:decimal(18,2);not null"`
	Distributable  string `gorm:"type:decimal(18,2);not null"`
	SharePercent   string `gorm:"type:decimal(8,4);not null"`
	InvestorAmount string `gorm:"type:decimal(18,2);not null"`
	HouseAmount    string `gorm:"type:decimal(18,2);not null"`

	CreatedAt time.Time

	Investor *Investor `gorm:"foreignKey:InvestorID"`
}

// HouseAccount is the owning business entity. A single row is seeded at
// migration and credited with every distribution remainder.
type HouseAccount struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	Name      string `gorm:"type:varchar(255);not null"`
	Balance   string `gorm:"type:decimal(18,2);not null;default:0"`
	CreatedAt time.Time
	UpdatedAt time.Time
}
