package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"payment-routing-service/internal/models"
)

// TransactionRepository reads and records the platform's payment transactions
type TransactionRepository struct {
	db *gorm.DB
}

// NewTransactionRepository creates a new transaction repository
func NewTransactionRepository(db *gorm.DB) *TransactionRepository {
	return &TransactionRepository{db: db}
}

// CompletedTransactions returns a merchant's completed transactions with
// from <= created_at < to, oldest first
func (r *TransactionRepository) CompletedTransactions(ctx context.Context, merchantID string, from, to time.Time) ([]models.TransactionRecord, error) {
	var rows []models.PaymentTransaction
	err := r.db.WithContext(ctx).
		Select("amount", "provider", "created_at").
		Where("merchant_id = ? AND status = ? AND created_at >= ? AND created_at < ?",
			merchantID, models.TransactionCompleted, from, to).
		Order("created_at ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}

	records := make([]models.TransactionRecord, 0, len(rows))
	for _, row := range rows {
		records = append(records, models.TransactionRecord{
			Amount:     row.Amount,
			Provider:   row.Provider,
			OccurredAt: row.CreatedAt,
		})
	}
	return records, nil
}

// CreateTransaction records a charge attempt
func (r *TransactionRepository) CreateTransaction(ctx context.Context, tx *models.PaymentTransaction) error {
	return r.db.WithContext(ctx).Create(tx).Error
}
