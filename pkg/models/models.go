package models

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var (
	// ErrUnknownTransactionKind marks a transaction whose kind is not one of the
	// three ledger kinds. It is a data-integrity error, never a valid state.
	ErrUnknownTransactionKind = errors.New("unknown transaction kind")
	// ErrInvalidAmount is returned when an amount is zero or negative.
	ErrInvalidAmount = errors.New("amount must be positive")
)

type Customer struct {
	ID        uuid.UUID `json:"id"`
	OwnerID   uuid.UUID `json:"owner_id"` // User who manages this customer's book
	Name      string    `json:"name"`
	Phone     string    `json:"phone"`
	Notes     string    `json:"notes"`
	CreatedAt time.Time `json:"created_at"`
}

type Loan struct {
	ID              uuid.UUID       `json:"id"`
	CustomerID      uuid.UUID       `json:"customer_id"`
	LoanAmount      int64           `json:"loan_amount"`
	InterestRate    decimal.Decimal `json:"interest_rate"` // Percent per accrual period
	OriginationDate time.Time       `json:"origination_date"`
}

// TransactionKind is a closed set of ledger entry kinds. The zero value is
// not a valid kind.
type TransactionKind struct {
	value string
}

const (
	kindDisbursement     = "disbursement"
	kindInterestPayment  = "interest_payment"
	kindPrincipalPayment = "principal_payment"
)

var (
	KindDisbursement     = TransactionKind{value: kindDisbursement}
	KindInterestPayment  = TransactionKind{value: kindInterestPayment}
	KindPrincipalPayment = TransactionKind{value: kindPrincipalPayment}
)

var validKinds = map[string]TransactionKind{
	kindDisbursement:     KindDisbursement,
	kindInterestPayment:  KindInterestPayment,
	kindPrincipalPayment: KindPrincipalPayment,
}

// ParseTransactionKind converts a stored or submitted string into a kind.
func ParseTransactionKind(s string) (TransactionKind, error) {
	k, ok := validKinds[s]
	if !ok {
		return TransactionKind{}, fmt.Errorf("%w: %q", ErrUnknownTransactionKind, s)
	}
	return k, nil
}

func (k TransactionKind) String() string { return k.value }

// IsValid reports whether k is one of the three ledger kinds.
func (k TransactionKind) IsValid() bool {
	_, ok := validKinds[k.value]
	return ok
}

func (k TransactionKind) MarshalJSON() ([]byte, error) {
	if !k.IsValid() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransactionKind, k.value)
	}
	return json.Marshal(k.value)
}

func (k *TransactionKind) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return err
	}
	parsed, err := ParseTransactionKind(s)
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}

type Transaction struct {
	ID         uuid.UUID       `json:"id"`
	LoanID     uuid.UUID       `json:"loan_id"`
	Kind       TransactionKind `json:"kind"`
	Amount     int64           `json:"amount"`
	OccurredOn time.Time       `json:"occurred_on"`
}

// Snapshot is an immutable view of one owner's book at a single instant.
// Loans are keyed by customer, transactions by loan.
type Snapshot struct {
	OwnerID      uuid.UUID
	Customers    []*Customer
	Loans        map[uuid.UUID][]*Loan
	Transactions map[uuid.UUID][]*Transaction
}

// LoansFor returns the loans of a customer, or nil when it has none.
func (s *Snapshot) LoansFor(customerID uuid.UUID) []*Loan {
	if s == nil || s.Loans == nil {
		return nil
	}
	return s.Loans[customerID]
}

// TransactionsFor returns the transactions of a loan. A loan that is absent
// from the snapshot yields an empty set.
func (s *Snapshot) TransactionsFor(loanID uuid.UUID) []*Transaction {
	if s == nil || s.Transactions == nil {
		return nil
	}
	return s.Transactions[loanID]
}
