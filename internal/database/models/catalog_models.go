package models

import "time"

type Product struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	Name           string `gorm:"type:varchar(255);uniqueIndex;not null"`
	RetailPrice    string `gorm:"type:decimal(18,2);not null"`
	TradePrice     string `gorm:"type:decimal(18,2);not null"`
	WholesalePrice string `gorm:"type:decimal(18,2);not null"`
	SalesTaxRate   string `gorm:"type:decimal(5,2);not null;default:0"`
	FurtherTaxRate string `gorm:"type:decimal(5,2);not null;default:0"`

	CompanyID  *int64
	GenericID  *int64
	PackSizeID *int64
	TypeID     *int64

	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time

	Batches []Batch `gorm:"foreignKey:ProductID"`
}

// Batch is one manufactured lot of a product. Stock never goes below zero;
// callers must fail instead of clamping.
type Batch struct {
	ID          int64     `gorm:"primaryKey;autoIncrement"`
	ProductID   int64     `gorm:"not null;index;uniqueIndex:idx_product_batch"`
	BatchNumber string    `gorm:"type:varchar(64);not null;uniqueIndex:idx_product_batch"`
	UnitCost    string    `gorm:"type:decimal(18,2);not null"`
	RetailPrice string    `gorm:"type:decimal(18,2);not null"`
	ExpiryDate  time.Time `gorm:"not null;index"`
	Stock       int32     `gorm:"not null;default:0"`
	CreatedAt   time.Time
	UpdatedAt   time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

const (
	MovementIn         = "in"
	MovementOut        = "out"
	MovementAdjustment = "adjustment"
)

const (
	RefPurchase       = "purchase"
	RefSale           = "sale"
	RefSaleReturn     = "sale_return"
	RefPurchaseReturn = "purchase_return"
	RefFreeSale       = "free_sale"
	RefOrderDelete    = "order_delete"
	RefStockRestore   = "stock_restore"
)

type StockMovement struct {
	ID            int64   `gorm:"primaryKey;autoIncrement"`
	ProductID     int64   `gorm:"not null;index"`
	BatchNumber   string  `gorm:"type:varchar(64);not null"`
	MovementType  string  `gorm:"type:varchar(16);not null"`
	Quantity      int32   `gorm:"not null"`
	UnitCost      *string `gorm:"type:decimal(18,2)"`
	ReferenceType string  `gorm:"type:varchar(32);not null"`
	ReferenceID   *string `gorm:"type:varchar(100)"`
	Notes         *string `gorm:"type:text"`
	CreatedBy     int64   `gorm:"not null"`
	CreatedAt     time.Time
}
