package store

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

// ErrNotFound is returned when a customer or loan does not exist.
var ErrNotFound = errors.New("not found")

// Reader is the read side needed to assemble an owner's portfolio.
type Reader interface {
	GetCustomersForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Customer, error)
	GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error)
	GetTransactionsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Transaction, error)
}

// Storage defines the persistence operations for customers, loans and transactions.
// Transactions are append-only: there is no update or delete for them other
// than the cascade triggered by DeleteCustomer.
type Storage interface {
	CreateCustomer(ctx context.Context, customer *models.Customer) error
	GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error)
	GetCustomersForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Customer, error)
	GetOwners(ctx context.Context) ([]uuid.UUID, error)
	DeleteCustomer(ctx context.Context, id uuid.UUID) error

	// CreateLoan stores the loan and its disbursement in a single atomic operation.
	CreateLoan(ctx context.Context, loan *models.Loan, disbursement *models.Transaction) error
	GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error)
	GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error)

	CreateTransaction(ctx context.Context, transaction *models.Transaction) error
	GetTransactionsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Transaction, error)

	// View runs fn against a Reader that sees one consistent state of the
	// store; writes that commit while fn runs are not visible to it.
	View(ctx context.Context, fn func(Reader) error) error

	Close() error
}
