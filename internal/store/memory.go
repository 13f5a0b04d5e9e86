package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
)

// MemoryStore implements Store with in-memory storage. Used for local
// development and tests.
type MemoryStore struct {
	mu sync.RWMutex

	transactions   map[string]*model.Transaction
	recurring      map[string]*model.RecurringTransaction
	paymentMethods map[string]*model.PaymentMethod
	currencies     map[string]*model.Currency
	rateSnapshots  map[string]*model.RateSnapshot // keyed by YYYY-MM-DD
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		transactions:   make(map[string]*model.Transaction),
		recurring:      make(map[string]*model.RecurringTransaction),
		paymentMethods: make(map[string]*model.PaymentMethod),
		currencies:     make(map[string]*model.Currency),
		rateSnapshots:  make(map[string]*model.RateSnapshot),
	}
}

// paginateIDs applies cursor-based pagination to a sorted slice of IDs.
// Returns the paginated IDs and the next page token (empty if no more pages).
func paginateIDs(ids []string, pageSize int32, pageToken string) ([]string, string, error) {
	if pageSize <= 0 {
		pageSize = 100
	}

	sort.Strings(ids)

	startIdx := 0
	if pageToken != "" {
		cursorID, err := DecodePageToken(pageToken)
		if err != nil {
			return nil, "", fmt.Errorf("invalid page token: %w", err)
		}
		found := false
		for i, id := range ids {
			if id > cursorID {
				startIdx = i
				found = true
				break
			}
		}
		if !found {
			return nil, "", nil
		}
	}

	ids = ids[startIdx:]

	var nextToken string
	if int32(len(ids)) > pageSize {
		nextToken = EncodePageToken(ids[pageSize-1])
		ids = ids[:pageSize]
	}

	return ids, nextToken, nil
}

// Transaction operations

func (m *MemoryStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	tx, ok := m.transactions[txID]
	if !ok {
		return nil, fmt.Errorf("transaction not found: %s", txID)
	}
	return tx, nil
}

func (m *MemoryStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[tx.ID]; !ok {
		return fmt.Errorf("transaction not found: %s", tx.ID)
	}
	m.transactions[tx.ID] = tx
	return nil
}

func (m *MemoryStore) DeleteTransaction(ctx context.Context, txID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.transactions[txID]; !ok {
		return fmt.Errorf("transaction not found: %s", txID)
	}
	delete(m.transactions, txID)
	return nil
}

func (m *MemoryStore) ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, tx := range m.transactions {
		if userID != "" && tx.UserID != userID {
			continue
		}
		// Range filters are day-granular and inclusive on both ends; a
		// transaction time-stamped anywhere on the last day still matches.
		d := recurrence.DateOf(tx.Date)
		if startDate != nil && d.Before(recurrence.DateOf(*startDate)) {
			continue
		}
		if endDate != nil && d.After(recurrence.DateOf(*endDate)) {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	pageIDs, nextToken, err := paginateIDs(matchingIDs, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	txs := make([]*model.Transaction, 0, len(pageIDs))
	for _, id := range pageIDs {
		txs = append(txs, m.transactions[id])
	}
	return txs, nextToken, nil
}

// Recurring transaction operations

func (m *MemoryStore) CreateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	m.recurring[rt.ID] = rt
	return nil
}

func (m *MemoryStore) GetRecurringTransaction(ctx context.Context, rtID string) (*model.RecurringTransaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	rt, ok := m.recurring[rtID]
	if !ok {
		return nil, fmt.Errorf("recurring transaction not found: %s", rtID)
	}
	return rt, nil
}

func (m *MemoryStore) UpdateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.recurring[rt.ID]; !ok {
		return fmt.Errorf("recurring transaction not found: %s", rt.ID)
	}
	m.recurring[rt.ID] = rt
	return nil
}

func (m *MemoryStore) DeactivateRecurringTransaction(ctx context.Context, rtID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	rt, ok := m.recurring[rtID]
	if !ok {
		return fmt.Errorf("recurring transaction not found: %s", rtID)
	}
	rt.Active = false
	rt.UpdatedAt = time.Now()
	return nil
}

func (m *MemoryStore) ListRecurringTransactions(ctx context.Context, userID string, activeOnly bool, pageSize int32, pageToken string) ([]*model.RecurringTransaction, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, rt := range m.recurring {
		if userID != "" && rt.UserID != userID {
			continue
		}
		if activeOnly && !rt.Active {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	pageIDs, nextToken, err := paginateIDs(matchingIDs, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	rts := make([]*model.RecurringTransaction, 0, len(pageIDs))
	for _, id := range pageIDs {
		rts = append(rts, m.recurring[id])
	}
	return rts, nextToken, nil
}

// Payment method operations

func (m *MemoryStore) CreatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if pm.ID == "" {
		pm.ID = uuid.New().String()
	}
	m.paymentMethods[pm.ID] = pm
	return nil
}

func (m *MemoryStore) GetPaymentMethod(ctx context.Context, pmID string) (*model.PaymentMethod, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	pm, ok := m.paymentMethods[pmID]
	if !ok {
		return nil, fmt.Errorf("payment method not found: %s", pmID)
	}
	return pm, nil
}

func (m *MemoryStore) UpdatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.paymentMethods[pm.ID]; !ok {
		return fmt.Errorf("payment method not found: %s", pm.ID)
	}
	m.paymentMethods[pm.ID] = pm
	return nil
}

func (m *MemoryStore) ListPaymentMethods(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.PaymentMethod, string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var matchingIDs []string
	for id, pm := range m.paymentMethods {
		if userID != "" && pm.UserID != userID {
			continue
		}
		matchingIDs = append(matchingIDs, id)
	}

	pageIDs, nextToken, err := paginateIDs(matchingIDs, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	pms := make([]*model.PaymentMethod, 0, len(pageIDs))
	for _, id := range pageIDs {
		pms = append(pms, m.paymentMethods[id])
	}
	return pms, nextToken, nil
}

// Currency directory operations

func (m *MemoryStore) UpsertCurrency(ctx context.Context, c *model.Currency) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.currencies[c.Code] = c
	return nil
}

func (m *MemoryStore) GetCurrency(ctx context.Context, code string) (*model.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	c, ok := m.currencies[code]
	if !ok {
		return nil, fmt.Errorf("currency not found: %s", code)
	}
	return c, nil
}

func (m *MemoryStore) ListCurrencies(ctx context.Context) ([]*model.Currency, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	codes := make([]string, 0, len(m.currencies))
	for code := range m.currencies {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	out := make([]*model.Currency, 0, len(codes))
	for _, code := range codes {
		out = append(out, m.currencies[code])
	}
	return out, nil
}

// Rate snapshot operations

func (m *MemoryStore) PutRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := recurrence.DateOf(snap.Date).Format("2006-01-02")
	m.rateSnapshots[key] = snap
	return nil
}

func (m *MemoryStore) ListRateSnapshots(ctx context.Context, startDate, endDate *time.Time) ([]*model.RateSnapshot, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var keys []string
	for key, snap := range m.rateSnapshots {
		d := recurrence.DateOf(snap.Date)
		if startDate != nil && d.Before(recurrence.DateOf(*startDate)) {
			continue
		}
		if endDate != nil && d.After(recurrence.DateOf(*endDate)) {
			continue
		}
		keys = append(keys, key)
	}
	sort.Strings(keys)

	out := make([]*model.RateSnapshot, 0, len(keys))
	for _, key := range keys {
		out = append(out, m.rateSnapshots[key])
	}
	return out, nil
}
