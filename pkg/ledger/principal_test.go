package ledger

import (
	"errors"
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/mcclellann/loanbook/pkg/models"
)

func tx(kind models.TransactionKind, amount int64, day int) *models.Transaction {
	return &models.Transaction{
		ID:         uuid.New(),
		Kind:       kind,
		Amount:     amount,
		OccurredOn: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).AddDate(0, 0, day),
	}
}

func TestCurrentPrincipal(t *testing.T) {
	cases := []struct {
		name string
		txs  []*models.Transaction
		want int64
	}{
		{"empty history", nil, 0},
		{"disbursement only", []*models.Transaction{tx(models.KindDisbursement, 10000000, 0)}, 10000000},
		{
			"principal payment reduces balance",
			[]*models.Transaction{
				tx(models.KindDisbursement, 5000000, 0),
				tx(models.KindPrincipalPayment, 2000000, 10),
			},
			3000000,
		},
		{
			"interest payments are ignored",
			[]*models.Transaction{
				tx(models.KindDisbursement, 5000000, 0),
				tx(models.KindInterestPayment, 150000, 30),
				tx(models.KindInterestPayment, 150000, 60),
			},
			5000000,
		},
		{
			"overpayment is not clamped",
			[]*models.Transaction{
				tx(models.KindDisbursement, 1000, 0),
				tx(models.KindPrincipalPayment, 1500, 5),
			},
			-500,
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := CurrentPrincipal(tc.txs)
			if err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
			if got != tc.want {
				t.Errorf("Expected principal %d, got %d", tc.want, got)
			}
		})
	}
}

func TestCurrentPrincipal_OrderIndependent(t *testing.T) {
	txs := []*models.Transaction{
		tx(models.KindDisbursement, 8000000, 0),
		tx(models.KindPrincipalPayment, 1000000, 3),
		tx(models.KindInterestPayment, 240000, 30),
		tx(models.KindPrincipalPayment, 2500000, 41),
		tx(models.KindInterestPayment, 135000, 60),
		tx(models.KindPrincipalPayment, 500000, 75),
	}
	want, err := CurrentPrincipal(txs)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if want != 4000000 {
		t.Fatalf("Expected principal 4000000, got %d", want)
	}

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 50; i++ {
		shuffled := append([]*models.Transaction(nil), txs...)
		r.Shuffle(len(shuffled), func(a, b int) { shuffled[a], shuffled[b] = shuffled[b], shuffled[a] })
		got, err := CurrentPrincipal(shuffled)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got != want {
			t.Fatalf("permutation %d: expected %d, got %d", i, want, got)
		}
	}
}

func TestCurrentPrincipal_UnknownKind(t *testing.T) {
	txs := []*models.Transaction{
		tx(models.KindDisbursement, 1000, 0),
		tx(models.TransactionKind{}, 1000, 1),
	}

	_, err := CurrentPrincipal(txs)
	if !errors.Is(err, models.ErrUnknownTransactionKind) {
		t.Errorf("Expected ErrUnknownTransactionKind, got %v", err)
	}
}
