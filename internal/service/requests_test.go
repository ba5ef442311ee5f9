package service

import (
	"context"
	"sync"
	"testing"

	"github.com/Skotchmaster/marketplace/internal/cart"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) pendingRequest(t *testing.T, seller, buyer Actor, qty int) *models.PurchaseRequest {
	t.Helper()
	prod := e.product(t, seller, "Commission", 2500, models.PaymentRequest)
	pr, err := e.requests.Create(context.Background(), buyer, transport.PurchaseRequestCreate{ProductID: prod.ID, Quantity: qty})
	require.NoError(t, err)
	return pr
}

func TestRequests_CreateUsesDefaultRequestPrice(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "")
	buyer := e.user(t, "buyer", "")

	pr := e.pendingRequest(t, seller, buyer, 0)
	assert.Equal(t, models.RequestPending, pr.Status)
	assert.Equal(t, 1, pr.Quantity)
	assert.Equal(t, int64(2500), pr.UnitAmount)
	assert.Equal(t, "Commission", pr.ProductName)

	instant := e.product(t, seller, "Vase", 500, models.PaymentInstant)
	_, err := e.requests.Create(ctx, buyer, transport.PurchaseRequestCreate{ProductID: instant.ID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.requests.Create(ctx, seller, transport.PurchaseRequestCreate{ProductID: instant.ID})
	assert.ErrorIs(t, err, ErrValidation)

	_, err = e.requests.Create(ctx, buyer, transport.PurchaseRequestCreate{ProductID: uuid.New()})
	assert.ErrorIs(t, err, ErrNotFound)

	mine, err := e.requests.List(ctx, buyer.ID, "buyer")
	require.NoError(t, err)
	assert.Len(t, mine, 1)
	_, err = e.requests.List(ctx, buyer.ID, "admin")
	assert.ErrorIs(t, err, ErrValidation)
}

func TestRequests_ApproveOpensCheckout(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	pr := e.pendingRequest(t, seller, buyer, 3)

	approval, err := e.requests.Approve(ctx, seller, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, approval.Request.Status)
	assert.NotEmpty(t, approval.CheckoutURL)

	require.Len(t, e.pay.Sessions, 1)
	params := e.pay.Sessions[0].Params
	assert.Equal(t, "acct_seller", params.DestinationAccount)
	assert.Equal(t, pr.ID.String(), params.Metadata["purchaseRequestId"])
	assert.Equal(t, buyer.ID, params.Metadata["userId"])
	assert.Equal(t, "buyer@example.com", params.CustomerEmail)
	assert.Equal(t, int64(750), params.ApplicationFee)
	assert.Equal(t, int64(3), params.LineItems[0].Quantity)

	stored, err := e.repo.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestApproved, stored.Status)
	require.NotNil(t, stored.CheckoutSessionID)
	assert.Equal(t, e.pay.Sessions[0].ID, *stored.CheckoutSessionID)

	_, err = e.requests.Approve(ctx, seller, pr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
	_, err = e.requests.Reject(ctx, seller, pr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)
}

func TestRequests_SessionFailureRevertsToPending(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	pr := e.pendingRequest(t, seller, buyer, 1)
	e.pay.FailOn(payments.OpCreateSession, errRemote)

	_, err := e.requests.Approve(ctx, seller, pr.ID)
	require.ErrorIs(t, err, ErrUpstream)

	stored, err := e.repo.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Len(t, e.events.Events(events.TopicPurchaseRequests), 1, "only the creation event")
}

func TestRequests_ApprovePreconditions(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "")
	other := e.user(t, "other", "acct_other")
	buyer := e.user(t, "buyer", "")
	pr := e.pendingRequest(t, seller, buyer, 1)

	_, err := e.requests.Approve(ctx, other, pr.ID)
	assert.ErrorIs(t, err, ErrForbidden)

	_, err = e.requests.Approve(ctx, seller, pr.ID)
	assert.ErrorIs(t, err, ErrNotConnected)

	_, err = e.requests.Approve(ctx, seller, uuid.New())
	assert.ErrorIs(t, err, ErrNotFound)

	stored, err := e.repo.GetPurchaseRequest(ctx, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Zero(t, e.pay.Calls(payments.OpCreateSession))
}

func TestRequests_AmountLimits(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	commission := e.product(t, seller, "Commission", 2500, models.PaymentRequest)
	fresco := e.product(t, seller, "Fresco", cart.MaxAmount, models.PaymentRequest)

	_, err := e.requests.Create(ctx, buyer, transport.PurchaseRequestCreate{ProductID: commission.ID, Quantity: cart.MaxQuantity + 1})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.requests.Create(ctx, buyer, transport.PurchaseRequestCreate{ProductID: fresco.ID, Quantity: 2})
	assert.ErrorIs(t, err, ErrValidation)

	// Rows written before the limits existed still must not reach the processor.
	legacy := models.PurchaseRequest{
		ID:          uuid.New(),
		BuyerID:     buyer.ID,
		SellerID:    seller.ID,
		ProductName: "Legacy",
		UnitAmount:  1 << 62,
		Currency:    "usd",
		Quantity:    2,
		Status:      models.RequestPending,
	}
	require.NoError(t, e.repo.CreatePurchaseRequests(ctx, []models.PurchaseRequest{legacy}))

	_, err = e.requests.Approve(ctx, seller, legacy.ID)
	assert.ErrorIs(t, err, ErrValidation)

	stored, err := e.repo.GetPurchaseRequest(ctx, legacy.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestPending, stored.Status)
	assert.Zero(t, e.pay.Calls(payments.OpCreateSession))
}

func TestRequests_RejectIsTerminal(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	pr := e.pendingRequest(t, seller, buyer, 1)

	rejected, err := e.requests.Reject(ctx, seller, pr.ID)
	require.NoError(t, err)
	assert.Equal(t, models.RequestRejected, rejected.Status)

	_, err = e.requests.Approve(ctx, seller, pr.ID)
	assert.ErrorIs(t, err, ErrInvalidTransition)

	evs := e.events.Events(events.TopicPurchaseRequests)
	require.Len(t, evs, 2)
	assert.Equal(t, EventRequestRejected, evs[1].Event["type"])
}

func TestRequests_ConcurrentApprovalsOnlyOneWins(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	pr := e.pendingRequest(t, seller, buyer, 1)

	const n = 5
	var wg sync.WaitGroup
	errs := make([]error, n)
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = e.requests.Approve(context.Background(), seller, pr.ID)
		}(i)
	}
	wg.Wait()

	wins := 0
	for _, err := range errs {
		if err == nil {
			wins++
			continue
		}
		assert.ErrorIs(t, err, ErrInvalidTransition)
	}
	assert.Equal(t, 1, wins)
	assert.Len(t, e.pay.Sessions, 1)
}
