package arrears_test

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mcclellann/loanbook/pkg/arrears"
	"github.com/mcclellann/loanbook/pkg/models"
)

var day0 = time.Date(2024, 1, 1, 9, 30, 0, 0, time.UTC)

func on(days int) time.Time { return day0.AddDate(0, 0, days) }

func newLoan(customerID uuid.UUID, amount int64, originDay int) (*models.Loan, []*models.Transaction) {
	loan := &models.Loan{
		ID:              uuid.New(),
		CustomerID:      customerID,
		LoanAmount:      amount,
		InterestRate:    decimal.NewFromInt(3),
		OriginationDate: on(originDay),
	}
	return loan, []*models.Transaction{entry(loan, models.KindDisbursement, amount, originDay)}
}

func entry(loan *models.Loan, kind models.TransactionKind, amount int64, d int) *models.Transaction {
	return &models.Transaction{ID: uuid.New(), LoanID: loan.ID, Kind: kind, Amount: amount, OccurredOn: on(d)}
}

func engine(t *testing.T) *arrears.Engine {
	t.Helper()
	e, err := arrears.NewEngine(30)
	require.NoError(t, err)
	return e
}

func TestNewEngine_RejectsNonPositivePeriod(t *testing.T) {
	_, err := arrears.NewEngine(0)
	assert.Error(t, err)
	_, err = arrears.NewEngine(-30)
	assert.Error(t, err)
}

func TestTier(t *testing.T) {
	cases := map[int]int{0: 0, -3: 0, 1: 1, 29: 1, 30: 1, 31: 2, 60: 2, 61: 3, 3001: 101}
	for days, want := range cases {
		assert.Equal(t, want, arrears.Tier(days, 30), "days overdue %d", days)
	}
}

func TestTier_NonPositivePeriod(t *testing.T) {
	assert.NotPanics(t, func() {
		assert.Equal(t, 0, arrears.Tier(5, 0))
		assert.Equal(t, 0, arrears.Tier(5, -30))
	})
}

func TestDueDate(t *testing.T) {
	e := engine(t)

	t.Run("defaults to origination plus one period", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 10000000, 0)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), e.DueDate(loan, txs))
	})

	t.Run("follows the latest interest payment regardless of order", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 10000000, 0)
		txs = append(txs,
			entry(loan, models.KindInterestPayment, 300000, 55),
			entry(loan, models.KindInterestPayment, 300000, 28),
			entry(loan, models.KindPrincipalPayment, 1000000, 70),
		)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 85), e.DueDate(loan, txs))
	})

	t.Run("empty history uses origination", func(t *testing.T) {
		loan, _ := newLoan(uuid.New(), 10000000, 0)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), e.DueDate(loan, nil))
	})
}

func TestDaysOverdue(t *testing.T) {
	e := engine(t)
	loan, txs := newLoan(uuid.New(), 10000000, 0)

	assert.Equal(t, 0, e.DaysOverdue(loan, txs, on(10)))
	assert.Equal(t, 0, e.DaysOverdue(loan, txs, on(30)), "exactly on the due date")
	assert.Equal(t, 1, e.DaysOverdue(loan, txs, on(31)))
	assert.Equal(t, 14, e.DaysOverdue(loan, txs, on(44)))

	t.Run("monotonic in today", func(t *testing.T) {
		prev := 0
		for d := 0; d < 200; d++ {
			got := e.DaysOverdue(loan, txs, on(d))
			require.GreaterOrEqual(t, got, prev, "day %d", d)
			prev = got
		}
	})
}

func TestLoanStatus(t *testing.T) {
	e := engine(t)

	t.Run("unpaid loan 44 days after disbursement", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 10000000, 0)
		status, err := e.LoanStatus(loan, txs, on(44))
		require.NoError(t, err)

		assert.True(t, status.Active)
		assert.Equal(t, int64(10000000), status.Principal)
		require.NotNil(t, status.DueDate)
		assert.Equal(t, time.Date(2024, 1, 31, 0, 0, 0, 0, time.UTC), *status.DueDate)
		assert.Equal(t, 14, status.DaysOverdue)
		assert.Equal(t, 1, status.Tier)
	})

	t.Run("zero interest rate is evaluated normally", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 500, 0)
		loan.InterestRate = decimal.Zero
		status, err := e.LoanStatus(loan, txs, on(61))
		require.NoError(t, err)
		assert.Equal(t, 31, status.DaysOverdue)
		assert.Equal(t, 2, status.Tier)
	})

	t.Run("repaid loan is inactive", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 1000, 0)
		txs = append(txs, entry(loan, models.KindPrincipalPayment, 1000, 5))
		status, err := e.LoanStatus(loan, txs, on(400))
		require.NoError(t, err)
		assert.False(t, status.Active)
		assert.Nil(t, status.DueDate)
		assert.Zero(t, status.DaysOverdue)
		assert.Zero(t, status.Tier)
	})

	t.Run("unknown kind is a data-integrity error", func(t *testing.T) {
		loan, txs := newLoan(uuid.New(), 1000, 0)
		txs = append(txs, &models.Transaction{ID: uuid.New(), LoanID: loan.ID, Amount: 10, OccurredOn: on(1)})
		_, err := e.LoanStatus(loan, txs, on(1))
		assert.ErrorIs(t, err, models.ErrUnknownTransactionKind)
	})
}

func TestCustomerStatus(t *testing.T) {
	e := engine(t)
	customerID := uuid.New()

	repaid, repaidTxs := newLoan(customerID, 2000000, 0)
	repaidTxs = append(repaidTxs, entry(repaid, models.KindPrincipalPayment, 2000000, 20))

	current, currentTxs := newLoan(customerID, 5000000, 40)
	currentTxs = append(currentTxs, entry(current, models.KindInterestPayment, 150000, 70))

	late, lateTxs := newLoan(customerID, 3000000, 20)

	ledger := map[uuid.UUID][]*models.Transaction{
		repaid.ID:  repaidTxs,
		current.ID: currentTxs,
		late.ID:    lateTxs,
	}
	lookup := func(id uuid.UUID) []*models.Transaction { return ledger[id] }

	t.Run("fully repaid loan is excluded from the earliest due date", func(t *testing.T) {
		status, err := e.CustomerStatus([]*models.Loan{repaid, current, late}, lookup, on(95))
		require.NoError(t, err)

		require.NotNil(t, status.EarliestDueDate)
		assert.Equal(t, time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, 50), *status.EarliestDueDate)
		assert.Equal(t, 45, status.DaysOverdue)
		assert.Equal(t, 2, status.Tier)
		assert.Equal(t, 2, status.ActiveLoans)
		assert.Equal(t, int64(10000000), status.TotalLoanAmount)
	})

	t.Run("no active loans means on time", func(t *testing.T) {
		status, err := e.CustomerStatus([]*models.Loan{repaid}, lookup, on(500))
		require.NoError(t, err)
		assert.Nil(t, status.EarliestDueDate)
		assert.Zero(t, status.DaysOverdue)
		assert.Zero(t, status.Tier)
		assert.Equal(t, int64(2000000), status.TotalLoanAmount)
	})

	t.Run("loan missing from the ledger contributes nothing", func(t *testing.T) {
		ghost, _ := newLoan(customerID, 700, 0)
		status, err := e.CustomerStatus([]*models.Loan{ghost}, lookup, on(500))
		require.NoError(t, err)
		assert.Nil(t, status.EarliestDueDate)
		assert.Zero(t, status.ActiveLoans)
	})
}

func TestCustomerAlerts(t *testing.T) {
	e := engine(t)
	owner := uuid.New()
	older := &models.Customer{ID: uuid.New(), OwnerID: owner, Name: "Older", CreatedAt: on(-10)}
	newer := &models.Customer{ID: uuid.New(), OwnerID: owner, Name: "Newer", CreatedAt: on(-1)}

	loan, txs := newLoan(older.ID, 10000000, 0)
	snap := &models.Snapshot{
		OwnerID:      owner,
		Customers:    []*models.Customer{older, newer},
		Loans:        map[uuid.UUID][]*models.Loan{older.ID: {loan}},
		Transactions: map[uuid.UUID][]*models.Transaction{loan.ID: txs},
	}

	alerts, err := e.CustomerAlerts(snap, on(44))
	require.NoError(t, err)
	require.Len(t, alerts, 2)

	assert.Equal(t, "Newer", alerts[0].Name)
	assert.Zero(t, alerts[0].DaysOverdue)
	assert.Equal(t, "Older", alerts[1].Name)
	assert.Equal(t, 14, alerts[1].DaysOverdue)
	assert.Equal(t, 1, alerts[1].Tier)

	overdue := arrears.Overdue(alerts)
	require.Len(t, overdue, 1)
	assert.Equal(t, older.ID, overdue[0].ID)
}
