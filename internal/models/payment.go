package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// TransactionStatus represents the status of a charge in the history store
type TransactionStatus string

const (
	TransactionPending   TransactionStatus = "PENDING"
	TransactionCompleted TransactionStatus = "COMPLETED"
	TransactionFailed    TransactionStatus = "FAILED"
	TransactionRefunded  TransactionStatus = "REFUNDED"
)

// PaymentTransaction is a charge recorded by the platform. The routing engine only reads it.
type PaymentTransaction struct {
	ID                uuid.UUID         `gorm:"type:uuid;primaryKey;default:gen_random_uuid()" json:"id"`
	MerchantID        string            `gorm:"type:varchar(255);not null;index:idx_payment_transactions_merchant_created,priority:1" json:"merchantId"`
	Provider          ProviderName      `gorm:"type:varchar(50);not null" json:"provider"`
	ProviderReference string            `gorm:"type:varchar(255)" json:"providerReference,omitempty"`
	Amount            decimal.Decimal   `gorm:"type:decimal(12,2);not null" json:"amount"`
	Fee               decimal.Decimal   `gorm:"type:decimal(12,2);default:0" json:"fee"`
	Currency          string            `gorm:"type:varchar(3);default:'USD'" json:"currency"`
	Status            TransactionStatus `gorm:"type:varchar(50);not null;index" json:"status"`
	RoutingStrategy   string            `gorm:"type:varchar(50)" json:"routingStrategy,omitempty"`
	RoutingMode       string            `gorm:"type:varchar(20)" json:"routingMode,omitempty"`
	CreatedAt         time.Time         `gorm:"not null;index:idx_payment_transactions_merchant_created,priority:2" json:"createdAt"`
	UpdatedAt         time.Time         `json:"updatedAt"`
}

// TableName overrides the table name
func (PaymentTransaction) TableName() string {
	return "payment_transactions"
}

// TransactionRecord is the minimal view of a completed transaction the volume tracker needs
type TransactionRecord struct {
	Amount     decimal.Decimal
	Provider   ProviderName
	OccurredAt time.Time
}
