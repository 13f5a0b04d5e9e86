package store

import (
	"context"
	"encoding/base64"
	"time"

	"github.com/fintrack/backend/internal/model"
)

//go:generate mockgen -source=store.go -destination=store_mock.go -package=store

// Store defines the record-store interface the engine reads from. The engine
// itself never writes back; mutating operations exist for the surrounding
// application layer.
type Store interface {
	// Transaction operations
	CreateTransaction(ctx context.Context, tx *model.Transaction) error
	GetTransaction(ctx context.Context, txID string) (*model.Transaction, error)
	UpdateTransaction(ctx context.Context, tx *model.Transaction) error
	DeleteTransaction(ctx context.Context, txID string) error
	ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error)

	// Recurring transaction operations. Recurring transactions are
	// deactivated rather than deleted so history stays reproducible.
	CreateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error
	GetRecurringTransaction(ctx context.Context, rtID string) (*model.RecurringTransaction, error)
	UpdateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error
	DeactivateRecurringTransaction(ctx context.Context, rtID string) error
	ListRecurringTransactions(ctx context.Context, userID string, activeOnly bool, pageSize int32, pageToken string) ([]*model.RecurringTransaction, string, error)

	// Payment method operations
	CreatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error
	GetPaymentMethod(ctx context.Context, pmID string) (*model.PaymentMethod, error)
	UpdatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error
	ListPaymentMethods(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.PaymentMethod, string, error)

	// Currency directory operations
	UpsertCurrency(ctx context.Context, c *model.Currency) error
	GetCurrency(ctx context.Context, code string) (*model.Currency, error)
	ListCurrencies(ctx context.Context) ([]*model.Currency, error)

	// Rate snapshot operations. One snapshot per calendar date; PutRateSnapshot
	// replaces any existing snapshot for that date.
	PutRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error
	ListRateSnapshots(ctx context.Context, startDate, endDate *time.Time) ([]*model.RateSnapshot, error)
}

// EncodePageToken encodes a document ID into a page token.
func EncodePageToken(docID string) string {
	if docID == "" {
		return ""
	}
	return base64.URLEncoding.EncodeToString([]byte(docID))
}

// DecodePageToken decodes a page token back to a document ID.
func DecodePageToken(token string) (string, error) {
	if token == "" {
		return "", nil
	}
	b, err := base64.URLEncoding.DecodeString(token)
	if err != nil {
		return "", err
	}
	return string(b), nil
}
