// Package memstore is an in-memory implementation of ledger.Store.
// It stores records in maps guarded by a single RWMutex, which also gives the
// single-writer-per-store serialization the engine relies on. Data is lost on
// restart - for persistence, use the BigQuery-backed store.
package memstore

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/dvloznov/ledger-engine/internal/domain"
	"github.com/dvloznov/ledger-engine/internal/ledger"
	"github.com/google/uuid"
)

// Store is an in-memory ledger.Store. It is safe for concurrent use and
// returns copies of stored records to avoid external modifications.
type Store struct {
	mu sync.RWMutex

	accounts     map[string]*domain.Account
	transactions map[string]*domain.Transaction
	checkpoints  map[string]*domain.BalanceCheckpoint
	recurring    map[string]*domain.RecurringTransaction

	nextSeq int64
}

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		accounts:     make(map[string]*domain.Account),
		transactions: make(map[string]*domain.Transaction),
		checkpoints:  make(map[string]*domain.BalanceCheckpoint),
		recurring:    make(map[string]*domain.RecurringTransaction),
	}
}

// AddAccount inserts an account, generating an id if none is set.
// Seeding helper for imports, tests and the CLI; not part of ledger.Store.
func (s *Store) AddAccount(ctx context.Context, a *domain.Account) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	}
	if a.CreatedTS.IsZero() {
		a.CreatedTS = time.Now()
	}
	cp := *a
	s.accounts[a.ID] = &cp
	return a.ID, nil
}

// AddTransaction inserts a transaction, assigning its id and insertion seq.
// The date is truncated to day granularity.
func (s *Store) AddTransaction(ctx context.Context, t *domain.Transaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.NewString()
	}
	s.nextSeq++
	t.Seq = s.nextSeq
	t.Date = domain.TruncateToDay(t.Date)
	if t.CreatedTS.IsZero() {
		t.CreatedTS = time.Now()
	}
	cp := copyTransaction(t)
	s.transactions[t.ID] = cp
	return t.ID, nil
}

// DeleteTransaction removes a transaction. The caller is responsible for
// reconciling the owning account afterwards.
func (s *Store) DeleteTransaction(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.transactions[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.transactions, id)
	return nil
}

// GetAccount implements ledger.Store.
func (s *Store) GetAccount(ctx context.Context, id string) (*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.accounts[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

// ListAccounts implements ledger.Store.
func (s *Store) ListAccounts(ctx context.Context) ([]*domain.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.Account, 0, len(s.accounts))
	for _, a := range s.accounts {
		cp := *a
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// UpdateAccount implements ledger.Store.
func (s *Store) UpdateAccount(ctx context.Context, id string, patch ledger.AccountPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.accounts[id]
	if !ok {
		return ledger.ErrNotFound
	}
	applyAccountPatch(a, patch)
	return nil
}

// GetTransaction implements ledger.Store.
func (s *Store) GetTransaction(ctx context.Context, id string) (*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	t, ok := s.transactions[id]
	if !ok {
		return nil, ledger.ErrNotFound
	}
	return copyTransaction(t), nil
}

// ListTransactionsByAccount implements ledger.Store. Results are sorted by
// (date, insertion seq) ascending.
func (s *Store) ListTransactionsByAccount(ctx context.Context, accountID string, dateRange *domain.DateRange) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range s.transactions {
		if t.AccountID != accountID {
			continue
		}
		if dateRange != nil && !dateRange.Contains(t.Date) {
			continue
		}
		out = append(out, copyTransaction(t))
	}
	sortFoldOrder(out)
	return out, nil
}

// ListTransactionsByDateRange implements ledger.Store.
func (s *Store) ListTransactionsByDateRange(ctx context.Context, dateRange domain.DateRange) ([]*domain.Transaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Transaction
	for _, t := range s.transactions {
		if !dateRange.Contains(t.Date) {
			continue
		}
		out = append(out, copyTransaction(t))
	}
	sortFoldOrder(out)
	return out, nil
}

// UpdateTransaction implements ledger.Store.
func (s *Store) UpdateTransaction(ctx context.Context, id string, patch ledger.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	return s.updateTransactionLocked(id, patch)
}

// UpdateTransactionPair implements ledger.Store. Both patches apply under one
// lock acquisition: preconditions for both records are verified before either
// write, so the pair updates atomically or not at all.
func (s *Store) UpdateTransactionPair(ctx context.Context, idA, idB string, patchA, patchB ledger.TransactionPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	a, ok := s.transactions[idA]
	if !ok {
		return ledger.ErrNotFound
	}
	b, ok := s.transactions[idB]
	if !ok {
		return ledger.ErrNotFound
	}
	if patchA.RequireUnlinked && a.IsLinked() {
		return ledger.ErrConflict
	}
	if patchB.RequireUnlinked && b.IsLinked() {
		return ledger.ErrConflict
	}
	applyTransactionPatch(a, patchA)
	applyTransactionPatch(b, patchB)
	return nil
}

// ListCheckpoints implements ledger.Store.
func (s *Store) ListCheckpoints(ctx context.Context, accountID string) ([]*domain.BalanceCheckpoint, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.BalanceCheckpoint
	for _, cp := range s.checkpoints {
		if cp.AccountID != accountID {
			continue
		}
		c := *cp
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.Before(out[j].Date) })
	return out, nil
}

// AddCheckpoint implements ledger.Store.
func (s *Store) AddCheckpoint(ctx context.Context, cp *domain.BalanceCheckpoint) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if cp.ID == "" {
		cp.ID = uuid.NewString()
	}
	if cp.CreatedTS.IsZero() {
		cp.CreatedTS = time.Now()
	}
	cp.Date = domain.TruncateToDay(cp.Date)
	c := *cp
	s.checkpoints[cp.ID] = &c
	return cp.ID, nil
}

// DeleteCheckpoint implements ledger.Store. Deleting a missing checkpoint is
// an explicit error, not a no-op: it is a user-initiated operation.
func (s *Store) DeleteCheckpoint(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.checkpoints[id]; !ok {
		return ledger.ErrNotFound
	}
	delete(s.checkpoints, id)
	return nil
}

// AddRecurring implements ledger.Store.
func (s *Store) AddRecurring(ctx context.Context, rec *domain.RecurringTransaction) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	if rec.CreatedTS.IsZero() {
		rec.CreatedTS = time.Now()
	}
	cp := copyRecurring(rec)
	s.recurring[rec.ID] = cp
	return rec.ID, nil
}

// UpdateRecurring implements ledger.Store.
func (s *Store) UpdateRecurring(ctx context.Context, id string, patch ledger.RecurringPatch) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec, ok := s.recurring[id]
	if !ok {
		return ledger.ErrNotFound
	}
	applyRecurringPatch(rec, patch)
	return nil
}

// FindRecurringByName implements ledger.Store.
func (s *Store) FindRecurringByName(ctx context.Context, name string) (*domain.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, rec := range s.recurring {
		if rec.Name == name {
			return copyRecurring(rec), nil
		}
	}
	return nil, nil
}

// ListRecurring implements ledger.Store.
func (s *Store) ListRecurring(ctx context.Context) ([]*domain.RecurringTransaction, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*domain.RecurringTransaction, 0, len(s.recurring))
	for _, rec := range s.recurring {
		out = append(out, copyRecurring(rec))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (s *Store) updateTransactionLocked(id string, patch ledger.TransactionPatch) error {
	t, ok := s.transactions[id]
	if !ok {
		return ledger.ErrNotFound
	}
	if patch.RequireUnlinked && t.IsLinked() {
		return ledger.ErrConflict
	}
	applyTransactionPatch(t, patch)
	return nil
}

func sortFoldOrder(txs []*domain.Transaction) {
	sort.Slice(txs, func(i, j int) bool {
		if !txs[i].Date.Equal(txs[j].Date) {
			return txs[i].Date.Before(txs[j].Date)
		}
		return txs[i].Seq < txs[j].Seq
	})
}

func copyTransaction(t *domain.Transaction) *domain.Transaction {
	cp := *t
	if t.Tags != nil {
		cp.Tags = append([]string(nil), t.Tags...)
	}
	return &cp
}

func copyRecurring(r *domain.RecurringTransaction) *domain.RecurringTransaction {
	cp := *r
	if r.Occurrences != nil {
		cp.Occurrences = append([]domain.Occurrence(nil), r.Occurrences...)
	}
	return &cp
}

func applyTransactionPatch(t *domain.Transaction, p ledger.TransactionPatch) {
	if p.Date != nil {
		t.Date = domain.TruncateToDay(*p.Date)
	}
	if p.Amount != nil {
		t.Amount = *p.Amount
	}
	if p.Direction != nil {
		t.Direction = *p.Direction
	}
	if p.BalanceAfter != nil {
		t.BalanceAfter = *p.BalanceAfter
	}
	if p.Category != nil {
		t.Category = *p.Category
	}
	if p.Subcategory != nil {
		t.Subcategory = *p.Subcategory
	}
	if p.IsRecurring != nil {
		t.IsRecurring = *p.IsRecurring
	}
	if p.LinkedTransferID != nil {
		t.LinkedTransferID = *p.LinkedTransferID
	}
}

func applyAccountPatch(a *domain.Account, p ledger.AccountPatch) {
	if p.InitialBalance != nil {
		a.InitialBalance = *p.InitialBalance
	}
	if p.InitialBalanceDate != nil {
		a.InitialBalanceDate = domain.TruncateToDay(*p.InitialBalanceDate)
	}
	if p.Balance != nil {
		a.Balance = *p.Balance
	}
	if p.LastRecalculated != nil {
		a.LastRecalculated = *p.LastRecalculated
	}
}

func applyRecurringPatch(r *domain.RecurringTransaction, p ledger.RecurringPatch) {
	if p.Amount != nil {
		r.Amount = *p.Amount
	}
	if p.ExpectedDay != nil {
		r.ExpectedDay = *p.ExpectedDay
	}
	if p.LastDetected != nil {
		r.LastDetected = *p.LastDetected
	}
	if p.NextExpected != nil {
		r.NextExpected = *p.NextExpected
	}
	if p.Status != nil {
		r.Status = *p.Status
	}
	if p.Occurrences != nil {
		r.Occurrences = append([]domain.Occurrence(nil), (*p.Occurrences)...)
	}
}

// Ensure Store implements ledger.Store.
var _ ledger.Store = (*Store)(nil)
