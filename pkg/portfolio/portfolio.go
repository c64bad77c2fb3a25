// Package portfolio loads an owner's book from storage as an immutable
// snapshot. Callers reload after every write instead of patching a previous
// snapshot.
package portfolio

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/store"
)

// Load fetches every customer, loan and transaction that belongs to ownerID
// from a single consistent view of the store.
func Load(ctx context.Context, s store.Storage, ownerID uuid.UUID) (*models.Snapshot, error) {
	var snap *models.Snapshot
	err := s.View(ctx, func(r store.Reader) error {
		var err error
		snap, err = load(ctx, r, ownerID)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

func load(ctx context.Context, r store.Reader, ownerID uuid.UUID) (*models.Snapshot, error) {
	customers, err := r.GetCustomersForOwner(ctx, ownerID)
	if err != nil {
		return nil, fmt.Errorf("load customers: %w", err)
	}

	snap := &models.Snapshot{
		OwnerID:      ownerID,
		Customers:    customers,
		Loans:        make(map[uuid.UUID][]*models.Loan, len(customers)),
		Transactions: make(map[uuid.UUID][]*models.Transaction),
	}
	for _, c := range customers {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		loans, err := r.GetLoansForCustomer(ctx, c.ID)
		if err != nil {
			return nil, fmt.Errorf("load loans for customer %s: %w", c.ID, err)
		}
		snap.Loans[c.ID] = loans

		for _, loan := range loans {
			txs, err := r.GetTransactionsForLoan(ctx, loan.ID)
			if err != nil {
				return nil, fmt.Errorf("load transactions for loan %s: %w", loan.ID, err)
			}
			snap.Transactions[loan.ID] = txs
		}
	}
	return snap, nil
}
