package ledger

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// ErrValidation wraps every input rejection made before a record is written.
var ErrValidation = errors.New("validation failed")

// Ledger handles the write side of the book: customers, loans and their
// append-only transactions.
type Ledger struct {
	storage store.Storage
	log     *logrus.Logger
	now     func() time.Time
}

// NewLedger creates a new Ledger with a given Storage implementation.
func NewLedger(s store.Storage, log *logrus.Logger) *Ledger {
	return &Ledger{
		storage: s,
		log:     log,
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// CreateCustomer registers a new customer under an owner.
func (l *Ledger) CreateCustomer(ctx context.Context, ownerID uuid.UUID, name, phone, notes string) (*models.Customer, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: customer name is required", ErrValidation)
	}
	if ownerID == uuid.Nil {
		return nil, fmt.Errorf("%w: owner is required", ErrValidation)
	}

	customer := &models.Customer{
		ID:        uuid.New(),
		OwnerID:   ownerID,
		Name:      name,
		Phone:     strings.TrimSpace(phone),
		Notes:     notes,
		CreatedAt: l.now(),
	}
	if err := l.storage.CreateCustomer(ctx, customer); err != nil {
		return nil, fmt.Errorf("failed to store customer: %w", err)
	}

	l.log.WithFields(logrus.Fields{"customer_id": customer.ID, "owner_id": ownerID}).Info("Customer created")
	return customer, nil
}

// CreateLoan initializes a new loan for a customer together with its
// disbursement. A zero originationDate means today.
func (l *Ledger) CreateLoan(ctx context.Context, customerID uuid.UUID, amount int64, rate decimal.Decimal, originationDate time.Time) (*models.Loan, error) {
	if amount <= 0 {
		return nil, fmt.Errorf("%w: loan %w", ErrValidation, models.ErrInvalidAmount)
	}
	if rate.IsNegative() {
		return nil, fmt.Errorf("%w: interest rate must not be negative", ErrValidation)
	}
	if originationDate.IsZero() {
		originationDate = l.now()
	}

	if _, err := l.storage.GetCustomer(ctx, customerID); err != nil {
		return nil, err
	}

	loan := &models.Loan{
		ID:              uuid.New(),
		CustomerID:      customerID,
		LoanAmount:      amount,
		InterestRate:    rate,
		OriginationDate: originationDate,
	}
	disbursement := &models.Transaction{
		ID:         uuid.New(),
		LoanID:     loan.ID,
		Kind:       models.KindDisbursement,
		Amount:     amount,
		OccurredOn: originationDate,
	}

	if err := l.storage.CreateLoan(ctx, loan, disbursement); err != nil {
		return nil, fmt.Errorf("failed to store loan: %w", err)
	}

	l.log.WithFields(logrus.Fields{
		"loan_id":     loan.ID,
		"customer_id": customerID,
		"amount":      amount,
		"rate":        rate.String(),
	}).Info("Loan disbursed")
	return loan, nil
}

// RecordTransaction appends a repayment to a loan. Only interest and
// principal payments can be recorded; disbursements are created with the loan.
// A zero occurredOn means now.
func (l *Ledger) RecordTransaction(ctx context.Context, loanID uuid.UUID, kind models.TransactionKind, amount int64, occurredOn time.Time) (*models.Transaction, error) {
	if kind != models.KindInterestPayment && kind != models.KindPrincipalPayment {
		return nil, fmt.Errorf("%w: cannot record a %q transaction", ErrValidation, kind.String())
	}
	if amount <= 0 {
		return nil, fmt.Errorf("%w: transaction %w", ErrValidation, models.ErrInvalidAmount)
	}
	if occurredOn.IsZero() {
		occurredOn = l.now()
	}

	if _, err := l.storage.GetLoan(ctx, loanID); err != nil {
		return nil, err
	}

	transaction := &models.Transaction{
		ID:         uuid.New(),
		LoanID:     loanID,
		Kind:       kind,
		Amount:     amount,
		OccurredOn: occurredOn,
	}
	if err := l.storage.CreateTransaction(ctx, transaction); err != nil {
		return nil, fmt.Errorf("failed to store %s transaction: %w", kind, err)
	}

	l.log.WithFields(logrus.Fields{"loan_id": loanID, "kind": kind.String(), "amount": amount}).Info("Transaction recorded")
	return transaction, nil
}

// DeleteCustomer removes a customer together with its loans and transactions.
func (l *Ledger) DeleteCustomer(ctx context.Context, customerID uuid.UUID) error {
	if err := l.storage.DeleteCustomer(ctx, customerID); err != nil {
		return err
	}
	l.log.WithField("customer_id", customerID).Info("Customer deleted")
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (l *Ledger) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	return l.storage.GetCustomer(ctx, id)
}

// ListLoans retrieves all loans of a customer.
func (l *Ledger) ListLoans(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	return l.storage.GetLoansForCustomer(ctx, customerID)
}

// LoanDetail is a loan with its chronological history and current principal.
type LoanDetail struct {
	Loan         *models.Loan          `json:"loan"`
	Transactions []*models.Transaction `json:"transactions"`
	Principal    int64                 `json:"current_principal"`
}

// GetLoanDetail refetches a loan's full history and recomputes its principal.
func (l *Ledger) GetLoanDetail(ctx context.Context, loanID uuid.UUID) (*LoanDetail, error) {
	loan, err := l.storage.GetLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	txs, err := l.storage.GetTransactionsForLoan(ctx, loanID)
	if err != nil {
		return nil, err
	}
	principal, err := CurrentPrincipal(txs)
	if err != nil {
		l.log.WithError(err).WithField("loan_id", loanID).Error("Ledger integrity error")
		return nil, err
	}
	return &LoanDetail{Loan: loan, Transactions: txs, Principal: principal}, nil
}
