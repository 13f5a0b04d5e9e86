package store

import (
	"context"
	"fmt"
	"time"

	"cloud.google.com/go/firestore"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"google.golang.org/api/iterator"

	"github.com/fintrack/backend/internal/model"
	"github.com/fintrack/backend/internal/recurrence"
)

// FirestoreStore implements the Store interface using Firestore.
type FirestoreStore struct {
	client *firestore.Client
}

// NewFirestoreStore creates a new Firestore-backed store.
func NewFirestoreStore(client *firestore.Client) Store {
	return &FirestoreStore{
		client: client,
	}
}

// Monetary amounts and rates are persisted as decimal strings; Firestore has
// no fixed-point numeric type and float64 would reintroduce the drift the
// engine exists to avoid.

type transactionDoc struct {
	UserID          string
	AccountID       string
	PaymentMethodID string
	Description     string
	Amount          string
	CurrencyCode    string
	IsExpense       bool
	Date            time.Time
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type ruleDoc struct {
	Freq       int
	Interval   int
	Count      int
	Until      time.Time
	ByMonthDay int
	ByWeekday  int
	ByMonth    int
	Start      time.Time
}

type recurringDoc struct {
	UserID          string
	AccountID       string
	PaymentMethodID string
	Description     string
	Amount          string
	CurrencyCode    string
	IsExpense       bool
	Rule            ruleDoc
	Active          bool
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

type paymentMethodDoc struct {
	UserID      string
	Name        string
	IsCredit    bool
	ClosingRule *ruleDoc
	DueRule     *ruleDoc
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

type currencyDoc struct {
	Name      string
	Visible   bool
	CreatedAt time.Time
	UpdatedAt time.Time
}

type rateSnapshotDoc struct {
	Date  time.Time
	Base  string
	Rates map[string]string
}

func toRuleDoc(r recurrence.Rule) ruleDoc {
	return ruleDoc{
		Freq:       int(r.Freq),
		Interval:   r.Interval,
		Count:      r.Count,
		Until:      r.Until,
		ByMonthDay: r.ByMonthDay,
		ByWeekday:  r.ByWeekday,
		ByMonth:    r.ByMonth,
		Start:      r.Start,
	}
}

func fromRuleDoc(d ruleDoc) recurrence.Rule {
	return recurrence.Rule{
		Freq:       recurrence.Frequency(d.Freq),
		Interval:   d.Interval,
		Count:      d.Count,
		Until:      d.Until,
		ByMonthDay: d.ByMonthDay,
		ByWeekday:  d.ByWeekday,
		ByMonth:    d.ByMonth,
		Start:      d.Start,
	}
}

func parseAmount(field, raw string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		return decimal.Zero, fmt.Errorf("failed to parse %s %q: %w", field, raw, err)
	}
	return d, nil
}

// applyDateAwarePagination handles pagination for queries with date range filters.
// Firestore requires OrderBy on inequality fields first, so we use OrderBy("Date") + OrderBy(__name__).
// The cursor must include both the Date value and the document ID.
func (s *FirestoreStore) applyDateAwarePagination(ctx context.Context, query firestore.Query, collection string, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy("Date", firestore.Asc).OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		cursorDoc, err := s.client.Collection(collection).Doc(docID).Get(ctx)
		if err != nil {
			return query, fmt.Errorf("failed to fetch cursor document: %w", err)
		}
		dateVal := cursorDoc.Data()["Date"]
		query = query.StartAfter(dateVal, docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1)
	return query, nil
}

// applyCursorPagination adds OrderBy + StartAfter + Limit to a query for
// cursor-based pagination. It fetches pageSize+1 docs so the caller can detect
// whether a next page exists.
func applyCursorPagination(query firestore.Query, pageSize int32, pageToken string) (firestore.Query, error) {
	query = query.OrderBy(firestore.DocumentID, firestore.Asc)

	if pageToken != "" {
		docID, err := DecodePageToken(pageToken)
		if err != nil {
			return query, fmt.Errorf("invalid page token: %w", err)
		}
		query = query.StartAfter(docID)
	}

	if pageSize <= 0 {
		pageSize = 100
	}
	query = query.Limit(int(pageSize) + 1)
	return query, nil
}

// Transaction operations

func (s *FirestoreStore) CreateTransaction(ctx context.Context, tx *model.Transaction) error {
	if tx.ID == "" {
		tx.ID = uuid.New().String()
	}
	_, err := s.client.Collection("transactions").Doc(tx.ID).Set(ctx, transactionDocFrom(tx))
	return err
}

func transactionDocFrom(tx *model.Transaction) transactionDoc {
	return transactionDoc{
		UserID:          tx.UserID,
		AccountID:       tx.AccountID,
		PaymentMethodID: tx.PaymentMethodID,
		Description:     tx.Description,
		Amount:          tx.Amount.String(),
		CurrencyCode:    tx.CurrencyCode,
		IsExpense:       tx.IsExpense,
		// Stored at UTC midnight so the day-granular range filters in
		// ListTransactions stay inclusive of the last day.
		Date:      recurrence.DateOf(tx.Date),
		CreatedAt: tx.CreatedAt,
		UpdatedAt: tx.UpdatedAt,
	}
}

func transactionFromDoc(id string, d transactionDoc) (*model.Transaction, error) {
	amount, err := parseAmount("transaction amount", d.Amount)
	if err != nil {
		return nil, err
	}
	return &model.Transaction{
		ID:              id,
		UserID:          d.UserID,
		AccountID:       d.AccountID,
		PaymentMethodID: d.PaymentMethodID,
		Description:     d.Description,
		Amount:          amount,
		CurrencyCode:    d.CurrencyCode,
		IsExpense:       d.IsExpense,
		Date:            d.Date,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) GetTransaction(ctx context.Context, txID string) (*model.Transaction, error) {
	doc, err := s.client.Collection("transactions").Doc(txID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("transaction not found: %w", err)
	}
	var d transactionDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse transaction: %w", err)
	}
	return transactionFromDoc(doc.Ref.ID, d)
}

func (s *FirestoreStore) UpdateTransaction(ctx context.Context, tx *model.Transaction) error {
	_, err := s.client.Collection("transactions").Doc(tx.ID).Set(ctx, transactionDocFrom(tx))
	return err
}

func (s *FirestoreStore) DeleteTransaction(ctx context.Context, txID string) error {
	_, err := s.client.Collection("transactions").Doc(txID).Delete(ctx)
	return err
}

func (s *FirestoreStore) ListTransactions(ctx context.Context, userID string, startDate, endDate *time.Time, pageSize int32, pageToken string) ([]*model.Transaction, string, error) {
	query := s.client.Collection("transactions").Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if startDate != nil {
		query = query.Where("Date", ">=", recurrence.DateOf(*startDate))
	}
	if endDate != nil {
		query = query.Where("Date", "<=", recurrence.DateOf(*endDate))
	}

	query, err := s.applyDateAwarePagination(ctx, query, "transactions", pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var txs []*model.Transaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to iterate transactions: %w", err)
		}
		var d transactionDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, "", fmt.Errorf("failed to parse transaction: %w", err)
		}
		tx, err := transactionFromDoc(doc.Ref.ID, d)
		if err != nil {
			return nil, "", err
		}
		txs = append(txs, tx)
	}

	var nextToken string
	if int32(len(txs)) > pageSize {
		txs = txs[:pageSize]
		nextToken = EncodePageToken(txs[len(txs)-1].ID)
	}
	return txs, nextToken, nil
}

// Recurring transaction operations

func (s *FirestoreStore) CreateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error {
	if rt.ID == "" {
		rt.ID = uuid.New().String()
	}
	_, err := s.client.Collection("recurringTransactions").Doc(rt.ID).Set(ctx, recurringDocFrom(rt))
	return err
}

func recurringDocFrom(rt *model.RecurringTransaction) recurringDoc {
	return recurringDoc{
		UserID:          rt.UserID,
		AccountID:       rt.AccountID,
		PaymentMethodID: rt.PaymentMethodID,
		Description:     rt.Description,
		Amount:          rt.Amount.String(),
		CurrencyCode:    rt.CurrencyCode,
		IsExpense:       rt.IsExpense,
		Rule:            toRuleDoc(rt.Rule),
		Active:          rt.Active,
		CreatedAt:       rt.CreatedAt,
		UpdatedAt:       rt.UpdatedAt,
	}
}

func recurringFromDoc(id string, d recurringDoc) (*model.RecurringTransaction, error) {
	amount, err := parseAmount("recurring amount", d.Amount)
	if err != nil {
		return nil, err
	}
	return &model.RecurringTransaction{
		ID:              id,
		UserID:          d.UserID,
		AccountID:       d.AccountID,
		PaymentMethodID: d.PaymentMethodID,
		Description:     d.Description,
		Amount:          amount,
		CurrencyCode:    d.CurrencyCode,
		IsExpense:       d.IsExpense,
		Rule:            fromRuleDoc(d.Rule),
		Active:          d.Active,
		CreatedAt:       d.CreatedAt,
		UpdatedAt:       d.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) GetRecurringTransaction(ctx context.Context, rtID string) (*model.RecurringTransaction, error) {
	doc, err := s.client.Collection("recurringTransactions").Doc(rtID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("recurring transaction not found: %w", err)
	}
	var d recurringDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse recurring transaction: %w", err)
	}
	return recurringFromDoc(doc.Ref.ID, d)
}

func (s *FirestoreStore) UpdateRecurringTransaction(ctx context.Context, rt *model.RecurringTransaction) error {
	_, err := s.client.Collection("recurringTransactions").Doc(rt.ID).Set(ctx, recurringDocFrom(rt))
	return err
}

func (s *FirestoreStore) DeactivateRecurringTransaction(ctx context.Context, rtID string) error {
	_, err := s.client.Collection("recurringTransactions").Doc(rtID).Update(ctx, []firestore.Update{
		{Path: "Active", Value: false},
		{Path: "UpdatedAt", Value: time.Now()},
	})
	return err
}

func (s *FirestoreStore) ListRecurringTransactions(ctx context.Context, userID string, activeOnly bool, pageSize int32, pageToken string) ([]*model.RecurringTransaction, string, error) {
	query := s.client.Collection("recurringTransactions").Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}
	if activeOnly {
		query = query.Where("Active", "==", true)
	}

	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var rts []*model.RecurringTransaction
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to iterate recurring transactions: %w", err)
		}
		var d recurringDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, "", fmt.Errorf("failed to parse recurring transaction: %w", err)
		}
		rt, err := recurringFromDoc(doc.Ref.ID, d)
		if err != nil {
			return nil, "", err
		}
		rts = append(rts, rt)
	}

	var nextToken string
	if int32(len(rts)) > pageSize {
		rts = rts[:pageSize]
		nextToken = EncodePageToken(rts[len(rts)-1].ID)
	}
	return rts, nextToken, nil
}

// Payment method operations

func (s *FirestoreStore) CreatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error {
	if pm.ID == "" {
		pm.ID = uuid.New().String()
	}
	_, err := s.client.Collection("paymentMethods").Doc(pm.ID).Set(ctx, paymentMethodDocFrom(pm))
	return err
}

func paymentMethodDocFrom(pm *model.PaymentMethod) paymentMethodDoc {
	d := paymentMethodDoc{
		UserID:    pm.UserID,
		Name:      pm.Name,
		IsCredit:  pm.IsCredit,
		CreatedAt: pm.CreatedAt,
		UpdatedAt: pm.UpdatedAt,
	}
	if pm.ClosingRule != nil {
		rd := toRuleDoc(*pm.ClosingRule)
		d.ClosingRule = &rd
	}
	if pm.DueRule != nil {
		rd := toRuleDoc(*pm.DueRule)
		d.DueRule = &rd
	}
	return d
}

func paymentMethodFromDoc(id string, d paymentMethodDoc) *model.PaymentMethod {
	pm := &model.PaymentMethod{
		ID:        id,
		UserID:    d.UserID,
		Name:      d.Name,
		IsCredit:  d.IsCredit,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}
	if d.ClosingRule != nil {
		r := fromRuleDoc(*d.ClosingRule)
		pm.ClosingRule = &r
	}
	if d.DueRule != nil {
		r := fromRuleDoc(*d.DueRule)
		pm.DueRule = &r
	}
	return pm
}

func (s *FirestoreStore) GetPaymentMethod(ctx context.Context, pmID string) (*model.PaymentMethod, error) {
	doc, err := s.client.Collection("paymentMethods").Doc(pmID).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("payment method not found: %w", err)
	}
	var d paymentMethodDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse payment method: %w", err)
	}
	return paymentMethodFromDoc(doc.Ref.ID, d), nil
}

func (s *FirestoreStore) UpdatePaymentMethod(ctx context.Context, pm *model.PaymentMethod) error {
	_, err := s.client.Collection("paymentMethods").Doc(pm.ID).Set(ctx, paymentMethodDocFrom(pm))
	return err
}

func (s *FirestoreStore) ListPaymentMethods(ctx context.Context, userID string, pageSize int32, pageToken string) ([]*model.PaymentMethod, string, error) {
	query := s.client.Collection("paymentMethods").Query
	if userID != "" {
		query = query.Where("UserID", "==", userID)
	}

	query, err := applyCursorPagination(query, pageSize, pageToken)
	if err != nil {
		return nil, "", err
	}

	if pageSize <= 0 {
		pageSize = 100
	}

	iter := query.Documents(ctx)
	defer iter.Stop()

	var pms []*model.PaymentMethod
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to iterate payment methods: %w", err)
		}
		var d paymentMethodDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, "", fmt.Errorf("failed to parse payment method: %w", err)
		}
		pms = append(pms, paymentMethodFromDoc(doc.Ref.ID, d))
	}

	var nextToken string
	if int32(len(pms)) > pageSize {
		pms = pms[:pageSize]
		nextToken = EncodePageToken(pms[len(pms)-1].ID)
	}
	return pms, nextToken, nil
}

// Currency directory operations

func (s *FirestoreStore) UpsertCurrency(ctx context.Context, c *model.Currency) error {
	_, err := s.client.Collection("currencies").Doc(c.Code).Set(ctx, currencyDoc{
		Name:      c.Name,
		Visible:   c.Visible,
		CreatedAt: c.CreatedAt,
		UpdatedAt: c.UpdatedAt,
	})
	return err
}

func (s *FirestoreStore) GetCurrency(ctx context.Context, code string) (*model.Currency, error) {
	doc, err := s.client.Collection("currencies").Doc(code).Get(ctx)
	if err != nil {
		return nil, fmt.Errorf("currency not found: %w", err)
	}
	var d currencyDoc
	if err := doc.DataTo(&d); err != nil {
		return nil, fmt.Errorf("failed to parse currency: %w", err)
	}
	return &model.Currency{
		Code:      doc.Ref.ID,
		Name:      d.Name,
		Visible:   d.Visible,
		CreatedAt: d.CreatedAt,
		UpdatedAt: d.UpdatedAt,
	}, nil
}

func (s *FirestoreStore) ListCurrencies(ctx context.Context) ([]*model.Currency, error) {
	iter := s.client.Collection("currencies").OrderBy(firestore.DocumentID, firestore.Asc).Documents(ctx)
	defer iter.Stop()

	var out []*model.Currency
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate currencies: %w", err)
		}
		var d currencyDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse currency: %w", err)
		}
		out = append(out, &model.Currency{
			Code:      doc.Ref.ID,
			Name:      d.Name,
			Visible:   d.Visible,
			CreatedAt: d.CreatedAt,
			UpdatedAt: d.UpdatedAt,
		})
	}
	return out, nil
}

// Rate snapshot operations

func (s *FirestoreStore) PutRateSnapshot(ctx context.Context, snap *model.RateSnapshot) error {
	date := recurrence.DateOf(snap.Date)
	rates := make(map[string]string, len(snap.Rates))
	for code, rate := range snap.Rates {
		rates[code] = rate.String()
	}
	_, err := s.client.Collection("rateSnapshots").Doc(date.Format("2006-01-02")).Set(ctx, rateSnapshotDoc{
		Date:  date,
		Base:  snap.Base,
		Rates: rates,
	})
	return err
}

func (s *FirestoreStore) ListRateSnapshots(ctx context.Context, startDate, endDate *time.Time) ([]*model.RateSnapshot, error) {
	query := s.client.Collection("rateSnapshots").Query
	if startDate != nil {
		query = query.Where("Date", ">=", recurrence.DateOf(*startDate))
	}
	if endDate != nil {
		query = query.Where("Date", "<=", recurrence.DateOf(*endDate))
	}
	query = query.OrderBy("Date", firestore.Asc)

	iter := query.Documents(ctx)
	defer iter.Stop()

	var out []*model.RateSnapshot
	for {
		doc, err := iter.Next()
		if err == iterator.Done {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("failed to iterate rate snapshots: %w", err)
		}
		var d rateSnapshotDoc
		if err := doc.DataTo(&d); err != nil {
			return nil, fmt.Errorf("failed to parse rate snapshot: %w", err)
		}
		rates := make(map[string]decimal.Decimal, len(d.Rates))
		for code, raw := range d.Rates {
			rate, err := parseAmount("rate", raw)
			if err != nil {
				return nil, err
			}
			rates[code] = rate
		}
		out = append(out, &model.RateSnapshot{
			Date:  d.Date,
			Base:  d.Base,
			Rates: rates,
		})
	}
	return out, nil
}
