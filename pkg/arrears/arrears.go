// Package arrears derives due dates and overdue severity for loans and rolls
// them up per customer. Everything here is a pure function of its inputs.
package arrears

import (
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
)

// DefaultPeriodDays is the accrual period used when none is configured.
const DefaultPeriodDays = 30

// Engine computes arrears for a fixed accrual period.
type Engine struct {
	period int
}

// NewEngine returns an Engine whose interest falls due every periodDays days.
func NewEngine(periodDays int) (*Engine, error) {
	if periodDays <= 0 {
		return nil, fmt.Errorf("accrual period must be positive, got %d days", periodDays)
	}
	return &Engine{period: periodDays}, nil
}

// PeriodDays returns the accrual period length.
func (e *Engine) PeriodDays() int { return e.period }

// LoanStatus is the arrears view of one loan.
type LoanStatus struct {
	LoanID      uuid.UUID  `json:"loan_id"`
	Principal   int64      `json:"current_principal"`
	Active      bool       `json:"active"`
	DueDate     *time.Time `json:"due_date,omitempty"`
	DaysOverdue int        `json:"days_overdue"`
	Tier        int        `json:"tier"`
}

// CustomerStatus rolls up a customer's active loans.
type CustomerStatus struct {
	EarliestDueDate *time.Time `json:"earliest_due_date"`
	DaysOverdue     int        `json:"days_overdue"`
	Tier            int        `json:"tier"`
	ActiveLoans     int        `json:"active_loans"`
	TotalLoanAmount int64      `json:"total_loan_amount"`
}

// CustomerAlert is one row of the customer list shown with its alert badge.
type CustomerAlert struct {
	*models.Customer
	CustomerStatus
}

// LastInterestPayment returns the date of the most recent interest payment,
// or false when none has been recorded.
func LastInterestPayment(transactions []*models.Transaction) (time.Time, bool) {
	var last time.Time
	found := false
	for _, tx := range transactions {
		if tx.Kind != models.KindInterestPayment {
			continue
		}
		if !found || tx.OccurredOn.After(last) {
			last = tx.OccurredOn
			found = true
		}
	}
	return last, found
}

// AccrualAnchor is the date interest has been settled up to: the latest
// interest payment, or the origination date when none exists.
func AccrualAnchor(loan *models.Loan, transactions []*models.Transaction) time.Time {
	if last, ok := LastInterestPayment(transactions); ok {
		return civilDate(last)
	}
	return civilDate(loan.OriginationDate)
}

// DueDate is the next date an interest payment is expected.
func (e *Engine) DueDate(loan *models.Loan, transactions []*models.Transaction) time.Time {
	return AccrualAnchor(loan, transactions).AddDate(0, 0, e.period)
}

// DaysOverdue counts whole days past the due date, floored at zero.
func (e *Engine) DaysOverdue(loan *models.Loan, transactions []*models.Transaction, today time.Time) int {
	return overdue(e.DueDate(loan, transactions), today)
}

// Tier buckets days overdue into consecutive period-length bands: 0 is on
// time, 1 covers days 1..P, 2 covers P+1..2P and so on without an upper bound.
func (e *Engine) Tier(daysOverdue int) int {
	return Tier(daysOverdue, e.period)
}

// Tier is the package-level form of Engine.Tier. A non-positive period has
// no bands, so everything lands in tier 0.
func Tier(daysOverdue, periodDays int) int {
	if daysOverdue <= 0 || periodDays <= 0 {
		return 0
	}
	return (daysOverdue-1)/periodDays + 1
}

// LoanStatus evaluates one loan. Loans with no principal left are inactive
// and carry no due date or overdue state.
func (e *Engine) LoanStatus(loan *models.Loan, transactions []*models.Transaction, today time.Time) (LoanStatus, error) {
	principal, err := ledger.CurrentPrincipal(transactions)
	if err != nil {
		return LoanStatus{}, fmt.Errorf("loan %s: %w", loan.ID, err)
	}

	status := LoanStatus{LoanID: loan.ID, Principal: principal, Active: principal > 0}
	if !status.Active {
		return status, nil
	}

	due := e.DueDate(loan, transactions)
	status.DueDate = &due
	status.DaysOverdue = overdue(due, today)
	status.Tier = e.Tier(status.DaysOverdue)
	return status, nil
}

// CustomerStatus rolls up the given loans of one customer. The customer's
// overdue days are those of the active loan with the earliest due date; with
// no active loans the customer is on time and has no due date.
func (e *Engine) CustomerStatus(loans []*models.Loan, transactionsFor func(loanID uuid.UUID) []*models.Transaction, today time.Time) (CustomerStatus, error) {
	var out CustomerStatus
	for _, loan := range loans {
		out.TotalLoanAmount += loan.LoanAmount

		status, err := e.LoanStatus(loan, transactionsFor(loan.ID), today)
		if err != nil {
			return CustomerStatus{}, err
		}
		if !status.Active {
			continue
		}
		out.ActiveLoans++
		if out.EarliestDueDate == nil || status.DueDate.Before(*out.EarliestDueDate) {
			out.EarliestDueDate = status.DueDate
			out.DaysOverdue = status.DaysOverdue
		}
	}
	out.Tier = e.Tier(out.DaysOverdue)
	return out, nil
}

// CustomerAlerts evaluates every customer in the snapshot, newest customer first.
func (e *Engine) CustomerAlerts(snap *models.Snapshot, today time.Time) ([]CustomerAlert, error) {
	alerts := make([]CustomerAlert, 0, len(snap.Customers))
	for _, c := range snap.Customers {
		status, err := e.CustomerStatus(snap.LoansFor(c.ID), snap.TransactionsFor, today)
		if err != nil {
			return nil, fmt.Errorf("customer %s: %w", c.ID, err)
		}
		alerts = append(alerts, CustomerAlert{Customer: c, CustomerStatus: status})
	}
	sort.SliceStable(alerts, func(i, j int) bool {
		return alerts[i].CreatedAt.After(alerts[j].CreatedAt)
	})
	return alerts, nil
}

// Overdue filters alerts down to customers with at least one day overdue.
func Overdue(alerts []CustomerAlert) []CustomerAlert {
	var out []CustomerAlert
	for _, a := range alerts {
		if a.DaysOverdue > 0 {
			out = append(out, a)
		}
	}
	return out
}
