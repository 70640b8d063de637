package marketplace

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"

	"github.com/sudo-init-do/gigmarket/internal/alerts"
)

const (
	aliceID  int64 = 1 // client with a card
	bobID    int64 = 2 // client without a card
	frankID  int64 = 10
	gretaID  int64 = 11
	gig42    int64 = 42
	gretaGig int64 = 43
)

func newTestService(t *testing.T, opts ...Option) (*Service, *fakeStore) {
	t.Helper()
	fs := newFakeStore()
	fs.addClient(aliceID, "alice", true)
	fs.addClient(bobID, "bob", false)
	fs.addFreelancer(frankID, "frank", true)
	fs.addFreelancer(gretaID, "greta", true)
	fs.addGig(gig42, frankID, "Logo design", "50")
	fs.addGig(gretaGig, gretaID, "Copywriting", "80")
	return NewService(fs, zap.NewNop(), opts...), fs
}

func amount(s string) *decimal.Decimal {
	d := decimal.RequireFromString(s)
	return &d
}

func TestPurchase(t *testing.T) {
	ctx := context.Background()

	t.Run("creates pending order and payment", func(t *testing.T) {
		svc, fs := newTestService(t)
		id, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Amount: amount("50"), Description: "need a logo"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		o := fs.st.orders[id]
		if o.Status != StatusPending || o.FreelancerID != frankID || o.ClientID != aliceID {
			t.Fatalf("unexpected order %+v", o)
		}
		if !fs.st.payments[id].Equal(decimal.RequireFromString("50")) {
			t.Fatalf("unexpected payment %s", fs.st.payments[id])
		}
		evs := fs.events()
		if len(evs) != 1 || evs[0].Kind != alerts.KindOrderPlaced || evs[0].To != "frank@example.com" {
			t.Fatalf("unexpected events %+v", evs)
		}
	})

	t.Run("amount defaults to gig price", func(t *testing.T) {
		svc, fs := newTestService(t)
		id, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gretaGig, Description: "blog post"})
		if err != nil {
			t.Fatal(err)
		}
		if !fs.st.payments[id].Equal(decimal.RequireFromString("80")) {
			t.Fatalf("expected gig price, got %s", fs.st.payments[id])
		}
	})

	t.Run("third pending is fine, fourth is refused", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(1, gig42, aliceID, StatusPending, "10")
		fs.addOrder(2, gig42, aliceID, StatusPending, "10")

		if _, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Description: "x"}); err != nil {
			t.Fatalf("third purchase: %v", err)
		}
		_, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Amount: amount("50"), Description: "x"})
		if !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}
		if n := fs.pendingFor(aliceID); n != 3 {
			t.Fatalf("expected 3 pending, got %d", n)
		}
	})

	t.Run("completed orders do not count toward the cap", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(1, gig42, aliceID, StatusPending, "10")
		fs.addOrder(2, gig42, aliceID, StatusPending, "10")
		fs.addOrder(3, gig42, aliceID, StatusCompleted, "10")
		if _, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Description: "x"}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	})

	t.Run("configurable cap", func(t *testing.T) {
		svc, _ := newTestService(t, WithMaxPending(1))
		if _, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Description: "x"}); err != nil {
			t.Fatal(err)
		}
		if _, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Description: "x"}); !errors.Is(err, ErrLimitExceeded) {
			t.Fatalf("expected ErrLimitExceeded, got %v", err)
		}
	})

	t.Run("largest storable amount is accepted", func(t *testing.T) {
		svc, fs := newTestService(t)
		id, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Amount: amount("9999999999.99"), Description: "x"})
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if !fs.st.payments[id].Equal(decimal.RequireFromString("9999999999.99")) {
			t.Fatalf("unexpected payment %v", fs.st.payments[id])
		}
	})

	errCases := []struct {
		name   string
		client int64
		req    PurchaseRequest
		want   error
	}{
		{"no card", bobID, PurchaseRequest{GigID: gig42, Description: "x"}, ErrPaymentMethodMissing},
		{"missing gig", aliceID, PurchaseRequest{GigID: 999, Description: "x"}, ErrNotFound},
		{"missing description", aliceID, PurchaseRequest{GigID: gig42, Description: "   "}, ErrValidation},
		{"non-positive amount", aliceID, PurchaseRequest{GigID: gig42, Amount: amount("0"), Description: "x"}, ErrValidation},
		{"amount rounds to zero", aliceID, PurchaseRequest{GigID: gig42, Amount: amount("0.004"), Description: "x"}, ErrValidation},
		{"amount with sub-cent part", aliceID, PurchaseRequest{GigID: gig42, Amount: amount("10.005"), Description: "x"}, ErrValidation},
		{"amount too large", aliceID, PurchaseRequest{GigID: gig42, Amount: amount("99999999999"), Description: "x"}, ErrValidation},
		{"unknown client", 77, PurchaseRequest{GigID: gig42, Description: "x"}, ErrNotFound},
	}
	for _, tc := range errCases {
		t.Run(tc.name, func(t *testing.T) {
			svc, fs := newTestService(t)
			_, err := svc.Purchase(ctx, tc.client, tc.req)
			if !errors.Is(err, tc.want) {
				t.Fatalf("expected %v, got %v", tc.want, err)
			}
			if len(fs.st.orders) != 0 || len(fs.events()) != 0 {
				t.Fatal("a rejected purchase must leave no order or event behind")
			}
		})
	}

	t.Run("payment failure rolls back the order", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.failOn["InsertPayment"] = errInjected
		_, err := svc.Purchase(ctx, aliceID, PurchaseRequest{GigID: gig42, Description: "x"})
		if !errors.Is(err, ErrInternal) {
			t.Fatalf("expected ErrInternal, got %v", err)
		}
		if errors.Is(err, errInjected) {
			t.Fatal("internal causes must not leak to callers")
		}
		if len(fs.st.orders) != 0 || len(fs.st.payments) != 0 || len(fs.events()) != 0 {
			t.Fatal("expected full rollback")
		}
	})
}

func TestPurchaseConcurrentCap(t *testing.T) {
	svc, fs := newTestService(t)
	fs.addOrder(1, gig42, aliceID, StatusPending, "10")
	fs.addOrder(2, gig42, aliceID, StatusPending, "10")

	const n = 20
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		okCount int
		limited int
	)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := svc.Purchase(context.Background(), aliceID, PurchaseRequest{GigID: gig42, Description: "race"})
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				okCount++
			case errors.Is(err, ErrLimitExceeded):
				limited++
			default:
				t.Errorf("unexpected error: %v", err)
			}
		}()
	}
	wg.Wait()

	if okCount != 1 || limited != n-1 {
		t.Fatalf("expected exactly one success, got %d ok / %d limited", okCount, limited)
	}
	if p := fs.pendingFor(aliceID); p != 3 {
		t.Fatalf("pending count %d exceeds cap", p)
	}
}

func TestSubmit(t *testing.T) {
	ctx := context.Background()

	t.Run("pending order becomes completed, second submit is invalid", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(7, gig42, aliceID, StatusPending, "50")

		if err := svc.Submit(ctx, frankID, 7); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if got := fs.st.orders[7].Status; got != StatusCompleted {
			t.Fatalf("expected C, got %s", got)
		}
		if err := svc.Submit(ctx, frankID, 7); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
		evs := fs.events()
		if len(evs) != 1 || evs[0].Kind != alerts.KindOrderDelivered || evs[0].To != "alice@example.com" {
			t.Fatalf("unexpected events %+v", evs)
		}
	})

	t.Run("other freelancer is forbidden", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(7, gig42, aliceID, StatusPending, "50")
		if err := svc.Submit(ctx, gretaID, 7); !errors.Is(err, ErrForbidden) {
			t.Fatalf("expected ErrForbidden, got %v", err)
		}
		if fs.st.orders[7].Status != StatusPending {
			t.Fatal("status must not change")
		}
	})

	t.Run("missing order", func(t *testing.T) {
		svc, _ := newTestService(t)
		if err := svc.Submit(ctx, frankID, 404); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("concurrent submits apply once", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(7, gig42, aliceID, StatusPending, "50")

		var wg sync.WaitGroup
		errs := make(chan error, 10)
		for i := 0; i < 10; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				errs <- svc.Submit(context.Background(), frankID, 7)
			}()
		}
		wg.Wait()
		close(errs)

		succeeded := 0
		for err := range errs {
			if err == nil {
				succeeded++
			} else if !errors.Is(err, ErrInvalidState) {
				t.Fatalf("unexpected error %v", err)
			}
		}
		if succeeded != 1 {
			t.Fatalf("expected one successful submit, got %d", succeeded)
		}
	})
}

func TestCancel(t *testing.T) {
	ctx := context.Background()

	t.Run("archives pending order with cancelled code", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusPending, "30")

		if err := svc.Cancel(ctx, aliceID, 9); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if _, ok := fs.st.orders[9]; ok {
			t.Fatal("order must be removed")
		}
		if _, ok := fs.st.payments[9]; ok {
			t.Fatal("payment must be removed")
		}
		h := fs.historyFor(9)
		if len(h) != 1 {
			t.Fatalf("expected one history row, got %d", len(h))
		}
		if h[0].Status != StatusCancelled || !h[0].Amount.Equal(decimal.RequireFromString("30")) ||
			h[0].ClientID != aliceID || h[0].GigID == nil || *h[0].GigID != gig42 {
			t.Fatalf("unexpected history row %+v", h[0])
		}
		evs := fs.events()
		if len(evs) != 1 || evs[0].Kind != alerts.KindOrderCancelled || evs[0].To != "frank@example.com" {
			t.Fatalf("unexpected events %+v", evs)
		}
	})

	t.Run("second cancel finds nothing", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusPending, "30")
		if err := svc.Cancel(ctx, aliceID, 9); err != nil {
			t.Fatal(err)
		}
		if err := svc.Cancel(ctx, aliceID, 9); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
		if len(fs.historyFor(9)) != 1 {
			t.Fatal("order archived twice")
		}
	})

	t.Run("completed order cannot be cancelled", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusCompleted, "30")
		if err := svc.Cancel(ctx, aliceID, 9); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("someone else's order is not found", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusPending, "30")
		if err := svc.Cancel(ctx, bobID, 9); !errors.Is(err, ErrNotFound) {
			t.Fatalf("expected ErrNotFound, got %v", err)
		}
	})

	t.Run("publish failure rolls back the cancel", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusPending, "30")
		fs.failOn["Publish"] = errInjected
		if err := svc.Cancel(ctx, aliceID, 9); !errors.Is(err, ErrInternal) {
			t.Fatalf("expected ErrInternal, got %v", err)
		}
		if _, ok := fs.st.orders[9]; !ok {
			t.Fatal("order must survive a rolled back cancel")
		}
		if len(fs.historyFor(9)) != 0 {
			t.Fatal("history must be rolled back")
		}
	})

	t.Run("cancel and submit race serialise", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(9, gig42, aliceID, StatusPending, "30")

		var wg sync.WaitGroup
		var cancelErr, submitErr error
		wg.Add(2)
		go func() { defer wg.Done(); cancelErr = svc.Cancel(context.Background(), aliceID, 9) }()
		go func() { defer wg.Done(); submitErr = svc.Submit(context.Background(), frankID, 9) }()
		wg.Wait()

		switch {
		case cancelErr == nil && submitErr == nil:
			t.Fatal("both cancel and submit succeeded")
		case cancelErr == nil:
			if !errors.Is(submitErr, ErrNotFound) {
				t.Fatalf("submit after cancel: %v", submitErr)
			}
		case submitErr == nil:
			if !errors.Is(cancelErr, ErrInvalidState) {
				t.Fatalf("cancel after submit: %v", cancelErr)
			}
		default:
			t.Fatalf("both failed: %v / %v", cancelErr, submitErr)
		}
	})
}

func TestConfirmCompletion(t *testing.T) {
	ctx := context.Background()

	t.Run("mark as done archives with completed code", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusCompleted, "50")
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, ActionMarkDone, "ignored"); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		h := fs.historyFor(5)
		if len(h) != 1 || h[0].Status != StatusCompleted {
			t.Fatalf("unexpected history %+v", h)
		}
		if len(fs.st.reviews) != 0 {
			t.Fatal("mark as done must not add a review")
		}
		if _, ok := fs.st.payments[5]; ok {
			t.Fatal("payment must be removed")
		}
	})

	t.Run("give review archives and records review", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusCompleted, "50")
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, ActionGiveReview, "  great work  "); err != nil {
			t.Fatal(err)
		}
		if len(fs.st.reviews) != 1 || fs.st.reviews[0].Text != "great work" || fs.st.reviews[0].FreelancerID != frankID {
			t.Fatalf("unexpected reviews %+v", fs.st.reviews)
		}
		evs := fs.events()
		if len(evs) != 1 || evs[0].Subject != "You received a new review" {
			t.Fatalf("unexpected events %+v", evs)
		}
	})

	t.Run("empty review is rejected without side effects", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusCompleted, "50")
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, ActionGiveReview, " "); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
		if _, ok := fs.st.orders[5]; !ok || len(fs.historyFor(5)) != 0 {
			t.Fatal("order must not be archived")
		}
	})

	t.Run("unknown action", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusCompleted, "50")
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, "ship it", ""); !errors.Is(err, ErrValidation) {
			t.Fatalf("expected ErrValidation, got %v", err)
		}
	})

	t.Run("pending order cannot be confirmed", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusPending, "50")
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, ActionMarkDone, ""); !errors.Is(err, ErrInvalidState) {
			t.Fatalf("expected ErrInvalidState, got %v", err)
		}
	})

	t.Run("review failure rolls back archival", func(t *testing.T) {
		svc, fs := newTestService(t)
		fs.addOrder(5, gig42, aliceID, StatusCompleted, "50")
		fs.failOn["InsertReview"] = errInjected
		if err := svc.ConfirmCompletion(ctx, aliceID, 5, ActionGiveReview, "nice"); !errors.Is(err, ErrInternal) {
			t.Fatalf("expected ErrInternal, got %v", err)
		}
		if _, ok := fs.st.orders[5]; !ok || len(fs.historyFor(5)) != 0 {
			t.Fatal("archival must be rolled back")
		}
	})
}

func TestTxTimeoutRollsBack(t *testing.T) {
	svc, fs := newTestService(t, WithTxTimeout(time.Nanosecond))

	_, err := svc.Purchase(context.Background(), aliceID, PurchaseRequest{GigID: gig42, Description: "slow"})
	if !errors.Is(err, ErrInternal) {
		t.Fatalf("expected ErrInternal after timeout, got %v", err)
	}
	if len(fs.st.orders) != 0 {
		t.Fatal("timed out purchase must not persist")
	}
}

func TestStatusCode(t *testing.T) {
	cases := map[error]int{
		newError(ErrValidation, "x"):           400,
		newError(ErrInvalidState, "x"):         400,
		newError(ErrLimitExceeded, "x"):        400,
		newError(ErrPaymentMethodMissing, "x"): 400,
		newError(ErrUnauthorized, "x"):         401,
		newError(ErrForbidden, "x"):            403,
		newError(ErrNotFound, "x"):             404,
		errInjected:                            500,
	}
	for err, want := range cases {
		if got := StatusCode(err); got != want {
			t.Errorf("%v: expected %d, got %d", err, want, got)
		}
	}
	if msg := UserMessage(errInjected); msg == errInjected.Error() {
		t.Fatal("internal error text leaked")
	}
}
