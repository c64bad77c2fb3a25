package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

// sqlStore holds the queries shared by the SQLite and PostgreSQL stores.
// Queries are written with '?' placeholders and rebound per driver.
type sqlStore struct {
	db     *sql.DB
	rebind func(string) string
	// viewIsolation is the isolation level of View transactions.
	viewIsolation sql.IsolationLevel
}

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// sqlReader runs the portfolio read queries against a connection or a transaction.
type sqlReader struct {
	q      querier
	rebind func(string) string
}

func (s *sqlStore) reader() sqlReader {
	return sqlReader{q: s.db, rebind: s.rebind}
}

// View runs fn inside one read-only database transaction.
func (s *sqlStore) View(ctx context.Context, fn func(Reader) error) error {
	tx, err := s.db.BeginTx(ctx, &sql.TxOptions{Isolation: s.viewIsolation, ReadOnly: true})
	if err != nil {
		return fmt.Errorf("failed to begin read transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(sqlReader{q: tx, rebind: s.rebind}); err != nil {
		return err
	}
	return tx.Commit()
}

func bindQuestion(query string) string { return query }

// bindDollar rewrites '?' placeholders into PostgreSQL's $1, $2, ... form.
func bindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const (
	customerColumns    = `id, owner_id, name, phone, notes, created_at`
	loanColumns        = `id, customer_id, loan_amount, interest_rate, origination_date`
	transactionColumns = `id, loan_id, kind, amount, occurred_on`
)

type scanner interface {
	Scan(dest ...any) error
}

// CreateCustomer inserts a new customer.
func (s *sqlStore) CreateCustomer(ctx context.Context, c *models.Customer) error {
	_, err := s.db.ExecContext(ctx, s.rebind(
		`INSERT INTO customers (`+customerColumns+`) VALUES (?, ?, ?, ?, ?, ?)`),
		c.ID.String(), c.OwnerID.String(), c.Name, c.Phone, c.Notes, c.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// GetCustomer retrieves a customer by its ID.
func (s *sqlStore) GetCustomer(ctx context.Context, id uuid.UUID) (*models.Customer, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+customerColumns+` FROM customers WHERE id = ?`), id.String())
	c, err := scanCustomer(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("customer %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// GetCustomersForOwner lists an owner's customers, newest first.
func (s *sqlStore) GetCustomersForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Customer, error) {
	return s.reader().GetCustomersForOwner(ctx, ownerID)
}

func (s sqlReader) GetCustomersForOwner(ctx context.Context, ownerID uuid.UUID) ([]*models.Customer, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(
		`SELECT `+customerColumns+` FROM customers WHERE owner_id = ? ORDER BY created_at DESC`), ownerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get customers for owner %s: %w", ownerID, err)
	}
	defer rows.Close()

	var customers []*models.Customer
	for rows.Next() {
		c, err := scanCustomer(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan customer row: %w", err)
		}
		customers = append(customers, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return customers, nil
}

// GetOwners lists every owner that has at least one customer.
func (s *sqlStore) GetOwners(ctx context.Context) ([]uuid.UUID, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT DISTINCT owner_id FROM customers ORDER BY owner_id`)
	if err != nil {
		return nil, fmt.Errorf("failed to get owners: %w", err)
	}
	defer rows.Close()

	var owners []uuid.UUID
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("failed to scan owner row: %w", err)
		}
		id, err := uuid.Parse(raw)
		if err != nil {
			return nil, fmt.Errorf("invalid owner id %q: %w", raw, err)
		}
		owners = append(owners, id)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return owners, nil
}

// DeleteCustomer removes a customer with all its loans and their transactions.
func (s *sqlStore) DeleteCustomer(ctx context.Context, id uuid.UUID) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(
		`DELETE FROM transactions WHERE loan_id IN (SELECT id FROM loans WHERE customer_id = ?)`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated transactions: %w", err)
	}
	_, err = tx.ExecContext(ctx, s.rebind(`DELETE FROM loans WHERE customer_id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete associated loans: %w", err)
	}

	result, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM customers WHERE id = ?`), id.String())
	if err != nil {
		return fmt.Errorf("failed to delete customer: %w", err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("customer %s: %w", id, ErrNotFound)
	}

	return tx.Commit()
}

// CreateLoan inserts the loan and its disbursement within one database transaction.
func (s *sqlStore) CreateLoan(ctx context.Context, loan *models.Loan, disbursement *models.Transaction) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO loans (`+loanColumns+`) VALUES (?, ?, ?, ?, ?)`),
		loan.ID.String(), loan.CustomerID.String(), loan.LoanAmount, loan.InterestRate, loan.OriginationDate,
	)
	if err != nil {
		return fmt.Errorf("failed to create loan: %w", err)
	}

	_, err = tx.ExecContext(ctx, s.rebind(`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?)`),
		disbursement.ID.String(), disbursement.LoanID.String(), disbursement.Kind.String(), disbursement.Amount, disbursement.OccurredOn,
	)
	if err != nil {
		return fmt.Errorf("failed to create disbursement transaction: %w", err)
	}

	return tx.Commit()
}

// GetLoan retrieves a loan by its ID.
func (s *sqlStore) GetLoan(ctx context.Context, id uuid.UUID) (*models.Loan, error) {
	row := s.db.QueryRowContext(ctx, s.rebind(`SELECT `+loanColumns+` FROM loans WHERE id = ?`), id.String())
	loan, err := scanLoan(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("loan %s: %w", id, ErrNotFound)
		}
		return nil, fmt.Errorf("failed to get loan: %w", err)
	}
	return loan, nil
}

// GetLoansForCustomer retrieves all loans of a customer in origination order.
func (s *sqlStore) GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	return s.reader().GetLoansForCustomer(ctx, customerID)
}

func (s sqlReader) GetLoansForCustomer(ctx context.Context, customerID uuid.UUID) ([]*models.Loan, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(
		`SELECT `+loanColumns+` FROM loans WHERE customer_id = ? ORDER BY origination_date ASC`), customerID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get loans for customer %s: %w", customerID, err)
	}
	defer rows.Close()

	var loans []*models.Loan
	for rows.Next() {
		loan, err := scanLoan(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan loan row: %w", err)
		}
		loans = append(loans, loan)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration: %w", err)
	}
	return loans, nil
}

// CreateTransaction appends a transaction to a loan's ledger.
func (s *sqlStore) CreateTransaction(ctx context.Context, t *models.Transaction) error {
	_, err := s.db.ExecContext(ctx, s.rebind(`INSERT INTO transactions (`+transactionColumns+`) VALUES (?, ?, ?, ?, ?)`),
		t.ID.String(), t.LoanID.String(), t.Kind.String(), t.Amount, t.OccurredOn,
	)
	if err != nil {
		return fmt.Errorf("failed to create transaction: %w", err)
	}
	return nil
}

// GetTransactionsForLoan retrieves all transactions for a given loan ID in chronological order.
func (s *sqlStore) GetTransactionsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Transaction, error) {
	return s.reader().GetTransactionsForLoan(ctx, loanID)
}

func (s sqlReader) GetTransactionsForLoan(ctx context.Context, loanID uuid.UUID) ([]*models.Transaction, error) {
	rows, err := s.q.QueryContext(ctx, s.rebind(
		`SELECT `+transactionColumns+` FROM transactions WHERE loan_id = ? ORDER BY occurred_on ASC`), loanID.String())
	if err != nil {
		return nil, fmt.Errorf("failed to get transactions for loan %s: %w", loanID, err)
	}
	defer rows.Close()

	var transactions []*models.Transaction
	for rows.Next() {
		t, err := scanTransaction(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan transaction row: %w", err)
		}
		transactions = append(transactions, t)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error during rows iteration for loan transactions: %w", err)
	}
	return transactions, nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func scanCustomer(row scanner) (*models.Customer, error) {
	var c models.Customer
	var idStr, ownerStr string
	if err := row.Scan(&idStr, &ownerStr, &c.Name, &c.Phone, &c.Notes, &c.CreatedAt); err != nil {
		return nil, err
	}
	var err error
	if c.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid customer id %q: %w", idStr, err)
	}
	if c.OwnerID, err = uuid.Parse(ownerStr); err != nil {
		return nil, fmt.Errorf("invalid owner id %q: %w", ownerStr, err)
	}
	return &c, nil
}

func scanLoan(row scanner) (*models.Loan, error) {
	var loan models.Loan
	var idStr, customerStr string
	if err := row.Scan(&idStr, &customerStr, &loan.LoanAmount, &loan.InterestRate, &loan.OriginationDate); err != nil {
		return nil, err
	}
	var err error
	if loan.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", idStr, err)
	}
	if loan.CustomerID, err = uuid.Parse(customerStr); err != nil {
		return nil, fmt.Errorf("invalid customer id %q: %w", customerStr, err)
	}
	return &loan, nil
}

// scanTransaction surfaces models.ErrUnknownTransactionKind for rows whose
// kind column holds anything other than the three ledger kinds.
func scanTransaction(row scanner) (*models.Transaction, error) {
	var t models.Transaction
	var idStr, loanStr, kind string
	if err := row.Scan(&idStr, &loanStr, &kind, &t.Amount, &t.OccurredOn); err != nil {
		return nil, err
	}
	var err error
	if t.ID, err = uuid.Parse(idStr); err != nil {
		return nil, fmt.Errorf("invalid transaction id %q: %w", idStr, err)
	}
	if t.LoanID, err = uuid.Parse(loanStr); err != nil {
		return nil, fmt.Errorf("invalid loan id %q: %w", loanStr, err)
	}
	if t.Kind, err = models.ParseTransactionKind(kind); err != nil {
		return nil, fmt.Errorf("transaction %s: %w", idStr, err)
	}
	return &t, nil
}
