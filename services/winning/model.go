package winning

import (
	"time"

	"github.com/shopspring/decimal"
	"gorm.io/datatypes"
)

type WinningType string

const (
	TypePayment WinningType = "PAYMENT"
	TypeReward  WinningType = "REWARD"
)

type PaymentStatus string

const (
	StatusOwed        PaymentStatus = "OWED"
	StatusOnHold      PaymentStatus = "ON_HOLD"
	StatusOnHoldAdmin PaymentStatus = "ON_HOLD_ADMIN"
	StatusProcessing  PaymentStatus = "PROCESSING"
	StatusPaid        PaymentStatus = "PAID"
	StatusCancelled   PaymentStatus = "CANCELLED"
	StatusFailed      PaymentStatus = "FAILED"
	StatusReturned    PaymentStatus = "RETURNED"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case StatusOwed, StatusOnHold, StatusOnHoldAdmin, StatusProcessing,
		StatusPaid, StatusCancelled, StatusFailed, StatusReturned:
		return true
	}
	return false
}

type ReleaseStatus string

const (
	ReleasePending   ReleaseStatus = "PENDING"
	ReleaseProcessed ReleaseStatus = "PROCESSED"
	ReleaseFailed    ReleaseStatus = "FAILED"
	ReleaseReturned  ReleaseStatus = "RETURNED"
)

// Winning is an awarded amount, paid through one or more installments.
type Winning struct {
	ID          string         `gorm:"column:id;primaryKey" json:"id"`
	WinnerID    string         `gorm:"column:winner_id;index" json:"winner_id"`
	Type        WinningType    `gorm:"column:type" json:"type"`
	Category    string         `gorm:"column:category" json:"category"`
	Title       string         `gorm:"column:title" json:"title"`
	Description string         `gorm:"column:description" json:"description"`
	ExternalID  string         `gorm:"column:external_id;index" json:"external_id,omitempty"`
	Origin      string         `gorm:"column:origin" json:"origin,omitempty"`
	Attributes  datatypes.JSON `gorm:"column:attributes" json:"attributes,omitempty"`
	CreatedBy   string         `gorm:"column:created_by" json:"created_by"`
	CreatedAt   time.Time      `gorm:"column:created_at" json:"created_at"`

	Payments []*Payment `gorm:"foreignKey:WinningID" json:"payments,omitempty"`
}

func (Winning) TableName() string { return "winnings" }

// Payment is one installment of a winning and the unit of version tracking.
type Payment struct {
	ID                string          `gorm:"column:id;primaryKey" json:"id"`
	WinningID         string          `gorm:"column:winning_id;index" json:"winning_id"`
	InstallmentNumber int             `gorm:"column:installment_number" json:"installment_number"`
	GrossAmount       decimal.Decimal `gorm:"column:gross_amount;type:decimal(12,2)" json:"gross_amount"`
	NetAmount         decimal.Decimal `gorm:"column:net_amount;type:decimal(12,2)" json:"net_amount"`
	TotalAmount       decimal.Decimal `gorm:"column:total_amount;type:decimal(12,2)" json:"total_amount"`
	Currency          string          `gorm:"column:currency" json:"currency"`
	Status            PaymentStatus   `gorm:"column:status;index" json:"status"`
	ReleaseDate       *time.Time      `gorm:"column:release_date" json:"release_date,omitempty"`
	DatePaid          *time.Time      `gorm:"column:date_paid" json:"date_paid,omitempty"`
	Version           int64           `gorm:"column:version;not null;default:1" json:"version"`
	BillingAccount    string          `gorm:"column:billing_account" json:"billing_account,omitempty"`
	CreatedBy         string          `gorm:"column:created_by" json:"created_by"`
	UpdatedBy         string          `gorm:"column:updated_by" json:"updated_by,omitempty"`
	CreatedAt         time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt         time.Time       `gorm:"column:updated_at" json:"updated_at"`
}

func (Payment) TableName() string { return "payments" }

func (p *Payment) IsPrimary() bool {
	return p.InstallmentNumber == 1
}

// Audit is an append-only record of an edit made to a winning.
type Audit struct {
	ID        string    `gorm:"column:id;primaryKey" json:"id"`
	WinningID string    `gorm:"column:winning_id;index" json:"winning_id"`
	UserID    string    `gorm:"column:user_id" json:"user_id"`
	Action    string    `gorm:"column:action" json:"action"`
	Note      *string   `gorm:"column:note" json:"note,omitempty"`
	CreatedAt time.Time `gorm:"column:created_at" json:"created_at"`
}

func (Audit) TableName() string { return "audits" }

// PaymentRelease is one settlement batch submitted to the provider.
type PaymentRelease struct {
	ID                    string          `gorm:"column:id;primaryKey" json:"id"`
	Code                  string          `gorm:"column:code" json:"code,omitempty"`
	UserID                string          `gorm:"column:user_id;index" json:"user_id"`
	TotalNetAmount        decimal.Decimal `gorm:"column:total_net_amount;type:decimal(12,2)" json:"total_net_amount"`
	Currency              string          `gorm:"column:currency" json:"currency"`
	Status                ReleaseStatus   `gorm:"column:status" json:"status"`
	PayoutMethod          string          `gorm:"column:payout_method" json:"payout_method"`
	ProviderBatchID       string          `gorm:"column:provider_batch_id" json:"provider_batch_id,omitempty"`
	ExternalTransactionID string          `gorm:"column:external_transaction_id;index" json:"external_transaction_id,omitempty"`
	Metadata              datatypes.JSON  `gorm:"column:metadata" json:"metadata,omitempty"`
	ReleaseDate           time.Time       `gorm:"column:release_date" json:"release_date"`
	CreatedAt             time.Time       `gorm:"column:created_at" json:"created_at"`
	UpdatedAt             time.Time       `gorm:"column:updated_at" json:"updated_at"`

	Associations []*PaymentReleaseAssociation `gorm:"foreignKey:PaymentReleaseID" json:"associations,omitempty"`
}

func (PaymentRelease) TableName() string { return "payment_releases" }

type PaymentReleaseAssociation struct {
	PaymentReleaseID string `gorm:"column:payment_release_id;primaryKey" json:"payment_release_id"`
	PaymentID        string `gorm:"column:payment_id;primaryKey;index" json:"payment_id"`
}

func (PaymentReleaseAssociation) TableName() string { return "payment_release_associations" }

// Models lists every table owned by the payment record store, in migration order.
func Models() []any {
	return []any{&Winning{}, &Payment{}, &Audit{}, &PaymentRelease{}, &PaymentReleaseAssociation{}}
}
