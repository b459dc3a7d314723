package models

import "time"

const (
	OrderTypePurchase       = "purchase"
	OrderTypeSale           = "sale"
	OrderTypePurchaseReturn = "purchase_return"
	OrderTypeSaleReturn     = "sale_return"
	OrderTypeEstimated      = "estimated"
)

const (
	OrderStatusPending   = "pending"
	OrderStatusCompleted = "completed"
	OrderStatusCancelled = "cancelled"
	OrderStatusRecovered = "recovered"
	OrderStatusReturned  = "returned"
)

const (
	RoleSupplier = "supplier"
	RoleCustomer = "customer"
	RoleBoth     = "both"
)

type Order struct {
	ID             int64  `gorm:"primaryKey;autoIncrement"`
	InvoiceNumber  string `gorm:"type:varchar(64);uniqueIndex;not null"`
	Type           string `gorm:"type:varchar(20);not null;index"`
	CounterpartyID int64  `gorm:"not null;index"`
	BookerID       *int64

	Subtotal   string `gorm:"type:decimal(18,2);not null"`
	Total      string `gorm:"type:decimal(18,2);not null"`
	PaidAmount string `gorm:"type:decimal(18,2);not null"`
	// DueAmount is this order's own outstanding amount (total - paid),
	// for purchases and sales alike. Recovery operations pay it down.
	DueAmount   string `gorm:"type:decimal(18,2);not null"`
	NetValue    string `gorm:"type:decimal(18,2);not null"`
	TotalProfit string `gorm:"type:decimal(18,2);not null;default:0"`

	Status   string `gorm:"type:varchar(16);not null;index"`
	DueDate  *time.Time
	ReturnOf *int64 `gorm:"index"` // original order, set on *_return orders

	CreatedAt time.Time
	UpdatedAt time.Time

	OrderItems   []OrderItem   `gorm:"foreignKey:OrderID;constraint:OnDelete:CASCADE"`
	Counterparty *Counterparty `gorm:"foreignKey:CounterpartyID"`
	Booker       *Booker       `gorm:"foreignKey:BookerID"`
}

type OrderItem struct {
	ID        int64  `gorm:"primaryKey;autoIncrement"`
	OrderID   int64  `gorm:"index;not null"`
	ProductID *int64 `gorm:"index"`
	// EstimateName carries the free-text product name on estimate lines
	// that have no product master.
	EstimateName  *string `gorm:"type:varchar(255)"`
	BatchNumber   string  `gorm:"type:varchar(64);not null"`
	ExpiryDate    *time.Time
	Units         int32  `gorm:"not null"`
	ReturnedUnits int32  `gorm:"not null;default:0"`
	UnitPrice     string `gorm:"type:decimal(18,2);not null"`
	Discount      string `gorm:"type:decimal(18,2);not null;default:0"`
	LineTotal     string `gorm:"type:decimal(18,2);not null"`
	Profit        string `gorm:"type:decimal(18,2);not null;default:0"`
	CreatedAt     time.Time

	Product *Product `gorm:"foreignKey:ProductID"`
}

// Counterparty is a supplier, customer or both. Pay is what the business
// owes them, Receive what they owe the business; after every adjustment at
// most one of the two is nonzero.
type Counterparty struct {
	ID      int64  `gorm:"primaryKey;autoIncrement"`
	Name    string `gorm:"type:varchar(255);not null"`
	Role    string `gorm:"type:varchar(16);not null;index"`
	Pay     string `gorm:"type:decimal(18,2);not null;default:0"`
	Receive string `gorm:"type:decimal(18,2);not null;default:0"`

	Phone    *string `gorm:"type:varchar(50)"`
	Address  *string `gorm:"type:text"`
	AreaID   *int64
	IsActive bool `gorm:"not null;default:true"`

	CreatedAt time.Time
	UpdatedAt time.Time
}

type Booker struct {
	ID        int64   `gorm:"primaryKey;autoIncrement"`
	Name      string  `gorm:"type:varchar(255);not null"`
	Phone     *string `gorm:"type:varchar(50)"`
	AreaID    *int64
	IsActive  bool `gorm:"not null;default:true"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// Recovery is one application of a payment against one order.
type Recovery struct {
	ID             int64     `gorm:"primaryKey;autoIncrement"`
	OrderID        int64     `gorm:"not null;index"`
	CounterpartyID int64     `gorm:"not null;index"`
	Amount         string    `gorm:"type:decimal(18,2);not null"`
	RecoveryDate   time.Time `gorm:"not null"`
	RecordedBy     int64     `gorm:"not null"`
	CreatedAt      time.Time
}
