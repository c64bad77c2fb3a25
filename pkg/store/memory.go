package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

// MemoryStore is an in-memory implementation of Storage. Writes are
// serialized by a mutex and reads return copies.
type MemoryStore struct {
	mu           sync.RWMutex
	customers    map[uuid.UUID]models.Customer
	loans        map[uuid.UUID]models.Loan
	transactions []models.Transaction
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		customers: make(map[uuid.UUID]models.Customer),
		loans:     make(map[uuid.UUID]models.Loan),
	}
}

func (m *MemoryStore) CreateCustomer(_ context.Context, c *models.Customer) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[c.ID]; ok {
		return fmt.Errorf("customer %s already exists", c.ID)
	}
	m.customers[c.ID] = *c
	return nil
}

func (m *MemoryStore) GetCustomer(_ context.Context, id uuid.UUID) (*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.customers[id]
	if !ok {
		return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	return &c, nil
}

func (m *MemoryStore) GetCustomersForOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Customer, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.customersForOwner(ownerID), nil
}

func (m *MemoryStore) customersForOwner(ownerID uuid.UUID) []*models.Customer {
	var out []*models.Customer
	for _, c := range m.customers {
		if c.OwnerID == ownerID {
			c := c
			out = append(out, &c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *MemoryStore) GetOwners(_ context.Context) ([]uuid.UUID, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	seen := make(map[uuid.UUID]bool)
	var owners []uuid.UUID
	for _, c := range m.customers {
		if !seen[c.OwnerID] {
			seen[c.OwnerID] = true
			owners = append(owners, c.OwnerID)
		}
	}
	sort.Slice(owners, func(i, j int) bool { return owners[i].String() < owners[j].String() })
	return owners, nil
}

func (m *MemoryStore) DeleteCustomer(_ context.Context, id uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[id]; !ok {
		return fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}
	doomed := make(map[uuid.UUID]bool)
	for loanID, loan := range m.loans {
		if loan.CustomerID == id {
			doomed[loanID] = true
			delete(m.loans, loanID)
		}
	}
	kept := m.transactions[:0]
	for _, t := range m.transactions {
		if !doomed[t.LoanID] {
			kept = append(kept, t)
		}
	}
	m.transactions = kept
	delete(m.customers, id)
	return nil
}

func (m *MemoryStore) CreateLoan(_ context.Context, loan *models.Loan, disbursement *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.customers[loan.CustomerID]; !ok {
		return fmt.Errorf("customer %s: %w", loan.CustomerID, ErrNotFound)
	}
	m.loans[loan.ID] = *loan
	m.transactions = append(m.transactions, *disbursement)
	return nil
}

func (m *MemoryStore) GetLoan(_ context.Context, id uuid.UUID) (*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	loan, ok := m.loans[id]
	if !ok {
		return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
	}
	return &loan, nil
}

func (m *MemoryStore) GetLoansForCustomer(_ context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.loansForCustomer(customerID), nil
}

func (m *MemoryStore) loansForCustomer(customerID uuid.UUID) []*models.Loan {
	var out []*models.Loan
	for _, loan := range m.loans {
		if loan.CustomerID == customerID {
			loan := loan
			out = append(out, &loan)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].OriginationDate.Before(out[j].OriginationDate) })
	return out
}

func (m *MemoryStore) CreateTransaction(_ context.Context, t *models.Transaction) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.loans[t.LoanID]; !ok {
		return fmt.Errorf("loan %s: %w", t.LoanID, ErrNotFound)
	}
	m.transactions = append(m.transactions, *t)
	return nil
}

func (m *MemoryStore) GetTransactionsForLoan(_ context.Context, loanID uuid.UUID) ([]*models.Transaction, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.transactionsForLoan(loanID), nil
}

func (m *MemoryStore) transactionsForLoan(loanID uuid.UUID) []*models.Transaction {
	var out []*models.Transaction
	for _, t := range m.transactions {
		if t.LoanID == loanID {
			t := t
			out = append(out, &t)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].OccurredOn.Before(out[j].OccurredOn) })
	return out
}

// View holds the read lock for the whole of fn, so writers wait until it returns.
func (m *MemoryStore) View(_ context.Context, fn func(Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(memoryReader{m})
}

// memoryReader reads without locking; it is only handed out by View.
type memoryReader struct {
	m *MemoryStore
}

func (r memoryReader) GetCustomersForOwner(_ context.Context, ownerID uuid.UUID) ([]*models.Customer, error) {
	return r.m.customersForOwner(ownerID), nil
}

func (r memoryReader) GetLoansForCustomer(_ context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	return r.m.loansForCustomer(customerID), nil
}

func (r memoryReader) GetTransactionsForLoan(_ context.Context, loanID uuid.UUID) ([]*models.Transaction, error) {
	return r.m.transactionsForLoan(loanID), nil
}

func (m *MemoryStore) Close() error {
	return nil
}
