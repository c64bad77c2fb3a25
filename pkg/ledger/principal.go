package ledger

import (
	"fmt"

	"github.com/mcclellann/loanbook/pkg/models"
)

// CurrentPrincipal folds a loan's transactions into the principal still owed:
// disbursements add, principal payments subtract, interest payments are
// ignored. Order does not matter and the result is not clamped at zero.
// An empty history yields 0.
func CurrentPrincipal(transactions []*models.Transaction) (int64, error) {
	var principal int64
	for _, tx := range transactions {
		switch tx.Kind {
		case models.KindDisbursement:
			principal += tx.Amount
		case models.KindPrincipalPayment:
			principal -= tx.Amount
		case models.KindInterestPayment:
		default:
			return 0, fmt.Errorf("transaction %s: %w: %q", tx.ID, models.ErrUnknownTransactionKind, tx.Kind.String())
		}
	}
	return principal, nil
}
