package dashboard

import (
	"fmt"
	"time"

	"github.com/mcclellann/loanbook/pkg/arrears"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/shopspring/decimal"
)

var hundred = decimal.NewFromInt(100)

// Summary holds the portfolio totals of one owner.
//
// Accrued interest is carried as an exact fraction, the sum of
// principal × rate × days over 100 × P, and only divided when it is read.
type Summary struct {
	TotalLoaned int64

	accrual decimal.Decimal
	divisor decimal.Decimal
}

// TotalAccruedInterest is the unrounded accrued interest.
func (s Summary) TotalAccruedInterest() decimal.Decimal {
	if s.divisor.IsZero() {
		return decimal.Zero
	}
	return s.accrual.Div(s.divisor)
}

// RoundedAccruedInterest rounds the exact accrued interest to whole currency
// units, halves away from zero.
func (s Summary) RoundedAccruedInterest() int64 {
	if s.divisor.IsZero() {
		return 0
	}
	return s.accrual.DivRound(s.divisor, 0).IntPart()
}

// Aggregator sums portfolio totals across one owner's book.
type Aggregator struct {
	periodDays int
}

// NewAggregator uses the same accrual period as the arrears engine.
func NewAggregator(e *arrears.Engine) *Aggregator {
	return &Aggregator{periodDays: e.PeriodDays()}
}

// ElapsedDays is the number of days between the loan's accrual anchor and
// today. It never goes below zero.
func (a *Aggregator) ElapsedDays(loan *models.Loan, transactions []*models.Transaction, today time.Time) int {
	days := arrears.DaysBetween(arrears.AccrualAnchor(loan, transactions), today)
	if days <= 0 {
		return 0
	}
	return days
}

func (a *Aggregator) divisor() decimal.Decimal {
	return hundred.Mul(decimal.NewFromInt(int64(a.periodDays)))
}

// accrual is principal × rate × elapsed days, the undivided interest of one loan.
func (a *Aggregator) accrual(loan *models.Loan, principal int64, transactions []*models.Transaction, today time.Time) decimal.Decimal {
	return decimal.NewFromInt(principal).
		Mul(loan.InterestRate).
		Mul(decimal.NewFromInt(int64(a.ElapsedDays(loan, transactions, today))))
}

// AccruedInterest is principal × rate% × elapsed periods for one loan.
func (a *Aggregator) AccruedInterest(loan *models.Loan, principal int64, transactions []*models.Transaction, today time.Time) decimal.Decimal {
	return a.accrual(loan, principal, transactions, today).Div(a.divisor())
}

// Summarize totals the snapshot. Every loan counts toward TotalLoaned; only
// loans with principal outstanding accrue interest.
func (a *Aggregator) Summarize(snap *models.Snapshot, today time.Time) (Summary, error) {
	summary := Summary{accrual: decimal.Zero, divisor: a.divisor()}
	for _, c := range snap.Customers {
		for _, loan := range snap.LoansFor(c.ID) {
			summary.TotalLoaned += loan.LoanAmount

			txs := snap.TransactionsFor(loan.ID)
			principal, err := ledger.CurrentPrincipal(txs)
			if err != nil {
				return Summary{}, fmt.Errorf("loan %s: %w", loan.ID, err)
			}
			if principal <= 0 {
				continue
			}
			summary.accrual = summary.accrual.Add(a.accrual(loan, principal, txs, today))
		}
	}
	return summary, nil
}
