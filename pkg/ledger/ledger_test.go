package ledger

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// failingStore rejects every loan write so the ledger's error wrapping can be checked.
type failingStore struct {
	*store.MemoryStore
}

func (f failingStore) CreateLoan(context.Context, *models.Loan, *models.Transaction) error {
	return errors.New("disk full")
}

func newTestLedger(s store.Storage) *Ledger {
	log := logrus.New()
	log.SetOutput(io.Discard)
	return NewLedger(s, log)
}

func createCustomer(t *testing.T, l *Ledger) *models.Customer {
	t.Helper()
	c, err := l.CreateCustomer(context.Background(), uuid.New(), "  Minh  ", "0909", "")
	if err != nil {
		t.Fatalf("Failed to create customer: %v", err)
	}
	return c
}

func TestCreateCustomer(t *testing.T) {
	l := newTestLedger(store.NewMemoryStore())

	c := createCustomer(t, l)
	if c.Name != "Minh" {
		t.Errorf("Expected trimmed name Minh, got %q", c.Name)
	}

	_, err := l.CreateCustomer(context.Background(), uuid.New(), "   ", "", "")
	if !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for blank name, got %v", err)
	}
}

func TestCreateLoan(t *testing.T) {
	s := store.NewMemoryStore()
	l := newTestLedger(s)
	c := createCustomer(t, l)
	origination := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)

	loan, err := l.CreateLoan(context.Background(), c.ID, 10000000, decimal.NewFromInt(3), origination)
	if err != nil {
		t.Fatalf("Failed to create loan: %v", err)
	}

	txs, err := s.GetTransactionsForLoan(context.Background(), loan.ID)
	if err != nil {
		t.Fatalf("Failed to get transactions: %v", err)
	}
	if len(txs) != 1 {
		t.Fatalf("Expected 1 transaction (disbursement), got %d", len(txs))
	}
	if txs[0].Kind != models.KindDisbursement {
		t.Errorf("Expected disbursement, got %s", txs[0].Kind)
	}
	if txs[0].Amount != loan.LoanAmount {
		t.Errorf("Expected disbursement amount %d, got %d", loan.LoanAmount, txs[0].Amount)
	}
	if !txs[0].OccurredOn.Equal(origination) {
		t.Errorf("Expected disbursement on %s, got %s", origination, txs[0].OccurredOn)
	}
}

func TestCreateLoan_Validation(t *testing.T) {
	l := newTestLedger(store.NewMemoryStore())
	c := createCustomer(t, l)
	ctx := context.Background()

	if _, err := l.CreateLoan(ctx, c.ID, 0, decimal.NewFromInt(3), time.Time{}); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount for zero amount, got %v", err)
	}
	if _, err := l.CreateLoan(ctx, c.ID, 1000, decimal.NewFromInt(-1), time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for negative rate, got %v", err)
	}
	if _, err := l.CreateLoan(ctx, uuid.New(), 1000, decimal.Zero, time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown customer, got %v", err)
	}
	if _, err := l.CreateLoan(ctx, c.ID, 1000, decimal.Zero, time.Time{}); err != nil {
		t.Errorf("Zero interest rate should be accepted, got %v", err)
	}
}

func TestCreateLoan_StorageFailure(t *testing.T) {
	l := newTestLedger(failingStore{store.NewMemoryStore()})
	c := createCustomer(t, l)

	_, err := l.CreateLoan(context.Background(), c.ID, 1000, decimal.NewFromInt(2), time.Time{})
	if err == nil {
		t.Fatal("Expected storage error")
	}
}

func TestRecordTransaction(t *testing.T) {
	s := store.NewMemoryStore()
	l := newTestLedger(s)
	c := createCustomer(t, l)
	ctx := context.Background()

	loan, _ := l.CreateLoan(ctx, c.ID, 5000000, decimal.NewFromInt(3), time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))

	if _, err := l.RecordTransaction(ctx, loan.ID, models.KindPrincipalPayment, 2000000, time.Date(2024, 6, 15, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Failed to record payment: %v", err)
	}
	if _, err := l.RecordTransaction(ctx, loan.ID, models.KindInterestPayment, 150000, time.Date(2024, 7, 1, 0, 0, 0, 0, time.UTC)); err != nil {
		t.Fatalf("Failed to record interest: %v", err)
	}

	detail, err := l.GetLoanDetail(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to get loan detail: %v", err)
	}
	if detail.Principal != 3000000 {
		t.Errorf("Expected principal 3000000, got %d", detail.Principal)
	}
	if len(detail.Transactions) != 3 {
		t.Errorf("Expected 3 transactions, got %d", len(detail.Transactions))
	}

	if _, err := l.RecordTransaction(ctx, loan.ID, models.KindDisbursement, 100, time.Time{}); !errors.Is(err, ErrValidation) {
		t.Errorf("Expected ErrValidation for a second disbursement, got %v", err)
	}
	if _, err := l.RecordTransaction(ctx, loan.ID, models.KindInterestPayment, -5, time.Time{}); !errors.Is(err, models.ErrInvalidAmount) {
		t.Errorf("Expected ErrInvalidAmount, got %v", err)
	}
	if _, err := l.RecordTransaction(ctx, uuid.New(), models.KindInterestPayment, 5, time.Time{}); !errors.Is(err, store.ErrNotFound) {
		t.Errorf("Expected ErrNotFound for unknown loan, got %v", err)
	}
}

func TestDeleteCustomer(t *testing.T) {
	s := store.NewMemoryStore()
	l := newTestLedger(s)
	c := createCustomer(t, l)
	ctx := context.Background()
	loan, _ := l.CreateLoan(ctx, c.ID, 1000, decimal.NewFromInt(1), time.Time{})

	if err := l.DeleteCustomer(ctx, c.ID); err != nil {
		t.Fatalf("Failed to delete customer: %v", err)
	}

	txs, err := s.GetTransactionsForLoan(ctx, loan.ID)
	if err != nil {
		t.Fatalf("Failed to read transactions: %v", err)
	}
	principal, err := CurrentPrincipal(txs)
	if err != nil || principal != 0 {
		t.Errorf("Expected 0 principal for a deleted loan, got %d (%v)", principal, err)
	}
}
