package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/mcclellann/loanbook/pkg/arrears"
	"github.com/mcclellann/loanbook/pkg/cache"
	"github.com/mcclellann/loanbook/pkg/dashboard"
	"github.com/mcclellann/loanbook/pkg/ledger"
	"github.com/mcclellann/loanbook/pkg/models"
	"github.com/mcclellann/loanbook/pkg/portfolio"
	"github.com/mcclellann/loanbook/pkg/store"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const ownerHeader = "X-Owner-ID"

type ctxKey struct{}

var errForbidden = errors.New("record belongs to another owner")

// Server holds the ledger and the read-side engines.
type Server struct {
	ledger     *ledger.Ledger
	engine     *arrears.Engine
	aggregator *dashboard.Aggregator
	storage    store.Storage // Read-side queries that bypass the ledger
	cache      cache.Cache
	log        *logrus.Logger
	now        func() time.Time
}

func NewServer(s store.Storage, c cache.Cache, engine *arrears.Engine, log *logrus.Logger) *Server {
	return &Server{
		ledger:     ledger.NewLedger(s, log),
		engine:     engine,
		aggregator: dashboard.NewAggregator(engine),
		storage:    s,
		cache:      c,
		log:        log,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// Routes registers every endpoint behind the owner middleware.
func (s *Server) Routes() *mux.Router {
	router := mux.NewRouter()
	router.Use(s.ownerMiddleware)

	router.HandleFunc("/dashboard", s.dashboardHandler).Methods("GET")
	router.HandleFunc("/customers", s.listCustomersHandler).Methods("GET")
	router.HandleFunc("/customers", s.createCustomerHandler).Methods("POST")
	router.HandleFunc("/customers/{id}", s.getCustomerHandler).Methods("GET")
	router.HandleFunc("/customers/{id}", s.deleteCustomerHandler).Methods("DELETE")
	router.HandleFunc("/customers/{id}/loans", s.listLoansHandler).Methods("GET")
	router.HandleFunc("/customers/{id}/loans", s.createLoanHandler).Methods("POST")
	router.HandleFunc("/loans/{id}", s.getLoanHandler).Methods("GET")
	router.HandleFunc("/loans/{id}/transactions", s.recordTransactionHandler).Methods("POST")
	return router
}

// ownerMiddleware resolves the requesting owner; every read and write is scoped to it.
func (s *Server) ownerMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		owner, err := uuid.Parse(r.Header.Get(ownerHeader))
		if err != nil || owner == uuid.Nil {
			http.Error(w, "Missing or invalid "+ownerHeader+" header", http.StatusUnauthorized)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), ctxKey{}, owner)))
	})
}

func ownerFrom(ctx context.Context) uuid.UUID {
	owner, _ := ctx.Value(ctxKey{}).(uuid.UUID)
	return owner
}

func (s *Server) today() time.Time {
	return s.now()
}

const (
	dashboardView = "dashboard"
	alertsView    = "alerts"
)

func generationKey(owner uuid.UUID) string {
	return "gen:" + owner.String()
}

func viewKey(view string, owner uuid.UUID, generation int64, today time.Time) string {
	return fmt.Sprintf("%s:%s:%d:%s", view, owner, generation, today.Format(time.DateOnly))
}

// invalidate bumps the owner's generation, retiring every read model cached
// before the write.
func (s *Server) invalidate(ctx context.Context, owner uuid.UUID) {
	if _, err := s.cache.Bump(ctx, generationKey(owner)); err != nil {
		s.log.WithError(err).WithField("owner_id", owner).Error("Failed to invalidate cache")
	}
}

// cached serves the owner's view from the cache or renders it with build.
// A rendered view is stored only if the owner's generation did not move while
// it was being built.
func (s *Server) cached(w http.ResponseWriter, r *http.Request, owner uuid.UUID, view string, today time.Time, build func() (any, error)) {
	ctx := r.Context()
	genKey := generationKey(owner)
	gen, err := s.cache.Generation(ctx, genKey)
	cacheable := err == nil
	if !cacheable {
		s.log.WithError(err).WithField("owner_id", owner).Warn("Cache generation unavailable, serving uncached")
	}
	key := viewKey(view, owner, gen, today)

	if cacheable {
		if body, ok := s.cache.Get(ctx, key); ok {
			w.Header().Set("Content-Type", "application/json")
			w.Write([]byte(body))
			return
		}
	}

	v, err := build()
	if err != nil {
		s.writeError(w, err)
		return
	}
	body, err := json.Marshal(v)
	if err != nil {
		s.writeError(w, err)
		return
	}

	if cacheable {
		current, err := s.cache.Generation(ctx, genKey)
		switch {
		case err != nil:
			s.log.WithError(err).WithField("key", key).Warn("Failed to recheck cache generation")
		case current != gen:
			s.log.WithFields(logrus.Fields{"key": key, "generation": current}).Debug("Owner written during render, not caching")
		default:
			if err := s.cache.Set(ctx, key, string(body)); err != nil {
				s.log.WithError(err).WithField("key", key).Warn("Failed to populate cache")
			}
		}
	}
	w.Header().Set("Content-Type", "application/json")
	w.Write(body)
}

type dashboardResponse struct {
	TotalLoaned          int64 `json:"total_loaned"`
	TotalAccruedInterest int64 `json:"total_accrued_interest"`
}

func (s *Server) dashboardHandler(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	today := s.today()

	s.cached(w, r, owner, dashboardView, today, func() (any, error) {
		snap, err := portfolio.Load(r.Context(), s.storage, owner)
		if err != nil {
			return nil, err
		}
		summary, err := s.aggregator.Summarize(snap, today)
		if err != nil {
			return nil, err
		}
		return dashboardResponse{
			TotalLoaned:          summary.TotalLoaned,
			TotalAccruedInterest: summary.RoundedAccruedInterest(),
		}, nil
	})
}

func (s *Server) listCustomersHandler(w http.ResponseWriter, r *http.Request) {
	owner := ownerFrom(r.Context())
	today := s.today()

	s.cached(w, r, owner, alertsView, today, func() (any, error) {
		snap, err := portfolio.Load(r.Context(), s.storage, owner)
		if err != nil {
			return nil, err
		}
		return s.engine.CustomerAlerts(snap, today)
	})
}

func (s *Server) createCustomerHandler(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Name  string `json:"name"`
		Phone string `json:"phone"`
		Notes string `json:"notes"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	owner := ownerFrom(r.Context())
	customer, err := s.ledger.CreateCustomer(r.Context(), owner, req.Name, req.Phone, req.Notes)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidate(r.Context(), owner)

	writeJSON(w, http.StatusCreated, customer)
}

// customerFor loads the customer named in the path and checks ownership.
func (s *Server) customerFor(r *http.Request) (*models.Customer, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return nil, fmt.Errorf("%w: invalid customer ID", ledger.ErrValidation)
	}
	customer, err := s.ledger.GetCustomer(r.Context(), id)
	if err != nil {
		return nil, err
	}
	if customer.OwnerID != ownerFrom(r.Context()) {
		return nil, errForbidden
	}
	return customer, nil
}

func (s *Server) getCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customerFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	loans, err := s.ledger.ListLoans(r.Context(), customer.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}

	ledgers := make(map[uuid.UUID][]*models.Transaction, len(loans))
	for _, loan := range loans {
		txs, err := s.storage.GetTransactionsForLoan(r.Context(), loan.ID)
		if err != nil {
			s.writeError(w, err)
			return
		}
		ledgers[loan.ID] = txs
	}
	status, err := s.engine.CustomerStatus(loans, func(id uuid.UUID) []*models.Transaction { return ledgers[id] }, s.today())
	if err != nil {
		s.writeError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, arrears.CustomerAlert{Customer: customer, CustomerStatus: status})
}

func (s *Server) deleteCustomerHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customerFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := s.ledger.DeleteCustomer(r.Context(), customer.ID); err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidate(r.Context(), customer.OwnerID)

	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) listLoansHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customerFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	loans, err := s.ledger.ListLoans(r.Context(), customer.ID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if loans == nil {
		loans = []*models.Loan{}
	}
	writeJSON(w, http.StatusOK, loans)
}

func (s *Server) createLoanHandler(w http.ResponseWriter, r *http.Request) {
	customer, err := s.customerFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		LoanAmount      int64           `json:"loan_amount"`
		InterestRate    decimal.Decimal `json:"interest_rate"`
		OriginationDate *time.Time      `json:"origination_date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var origination time.Time
	if req.OriginationDate != nil {
		origination = *req.OriginationDate
	}

	loan, err := s.ledger.CreateLoan(r.Context(), customer.ID, req.LoanAmount, req.InterestRate, origination)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidate(r.Context(), customer.OwnerID)

	writeJSON(w, http.StatusCreated, loan)
}

// loanFor loads the loan named in the path and checks ownership through its customer.
func (s *Server) loanFor(r *http.Request) (uuid.UUID, error) {
	id, err := uuid.Parse(mux.Vars(r)["id"])
	if err != nil {
		return uuid.Nil, fmt.Errorf("%w: invalid loan ID", ledger.ErrValidation)
	}
	loan, err := s.storage.GetLoan(r.Context(), id)
	if err != nil {
		return uuid.Nil, err
	}
	customer, err := s.ledger.GetCustomer(r.Context(), loan.CustomerID)
	if err != nil {
		return uuid.Nil, err
	}
	if customer.OwnerID != ownerFrom(r.Context()) {
		return uuid.Nil, errForbidden
	}
	return id, nil
}

type loanResponse struct {
	*ledger.LoanDetail
	Status arrears.LoanStatus `json:"status"`
}

func (s *Server) getLoanHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := s.loanFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	detail, err := s.ledger.GetLoanDetail(r.Context(), loanID)
	if err != nil {
		s.writeError(w, err)
		return
	}
	status, err := s.engine.LoanStatus(detail.Loan, detail.Transactions, s.today())
	if err != nil {
		s.writeError(w, err)
		return
	}
	if detail.Transactions == nil {
		detail.Transactions = []*models.Transaction{}
	}

	writeJSON(w, http.StatusOK, loanResponse{LoanDetail: detail, Status: status})
}

func (s *Server) recordTransactionHandler(w http.ResponseWriter, r *http.Request) {
	loanID, err := s.loanFor(r)
	if err != nil {
		s.writeError(w, err)
		return
	}

	var req struct {
		Kind       models.TransactionKind `json:"kind"`
		Amount     int64                  `json:"amount"`
		OccurredOn *time.Time             `json:"occurred_on"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var occurred time.Time
	if req.OccurredOn != nil {
		occurred = *req.OccurredOn
	}

	tx, err := s.ledger.RecordTransaction(r.Context(), loanID, req.Kind, req.Amount, occurred)
	if err != nil {
		s.writeError(w, err)
		return
	}
	s.invalidate(r.Context(), ownerFrom(r.Context()))

	writeJSON(w, http.StatusCreated, tx)
}

func (s *Server) writeError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, ledger.ErrValidation):
		http.Error(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, store.ErrNotFound), errors.Is(err, errForbidden):
		http.Error(w, "Not found", http.StatusNotFound)
	case errors.Is(err, models.ErrUnknownTransactionKind):
		s.log.WithError(err).Error("Ledger integrity error")
		http.Error(w, "Ledger integrity error", http.StatusInternalServerError)
	default:
		s.log.WithError(err).Error("Request failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
