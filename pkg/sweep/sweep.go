package sweep

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mcclellann/loanbook/pkg/arrears"
	"github.com/mcclellann/loanbook/pkg/portfolio"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/sirupsen/logrus"
)

// Sweeper walks every owner's book and reports overdue customers.
type Sweeper struct {
	storage store.Storage
	engine  *arrears.Engine
	log     *logrus.Logger
}

func NewSweeper(s store.Storage, e *arrears.Engine, log *logrus.Logger) *Sweeper {
	return &Sweeper{storage: s, engine: e, log: log}
}

// Run evaluates all owners as of today and returns how many overdue customers
// were found. A failing owner is logged and skipped; its error is still
// returned once every owner has been visited.
func (s *Sweeper) Run(ctx context.Context, today time.Time) (int, error) {
	owners, err := s.storage.GetOwners(ctx)
	if err != nil {
		return 0, fmt.Errorf("list owners: %w", err)
	}

	var errs []error
	total := 0
	for _, owner := range owners {
		snap, err := portfolio.Load(ctx, s.storage, owner)
		if err != nil {
			s.log.WithError(err).WithField("owner_id", owner).Error("Failed to load portfolio for sweep")
			errs = append(errs, err)
			continue
		}
		alerts, err := s.engine.CustomerAlerts(snap, today)
		if err != nil {
			s.log.WithError(err).WithField("owner_id", owner).Error("Ledger integrity error during sweep")
			errs = append(errs, err)
			continue
		}

		for _, a := range arrears.Overdue(alerts) {
			total++
			s.log.WithFields(logrus.Fields{
				"owner_id":          owner,
				"customer_id":       a.ID,
				"customer":          a.Name,
				"days_overdue":      a.DaysOverdue,
				"tier":              a.Tier,
				"earliest_due_date": a.EarliestDueDate.Format(time.DateOnly),
			}).Warn("Customer overdue")
		}
	}

	s.log.WithFields(logrus.Fields{"owners": len(owners), "overdue_customers": total}).Info("Arrears sweep complete")
	return total, errors.Join(errs...)
}
