package service

import (
	"context"
	"testing"

	"github.com/Skotchmaster/marketplace/internal/cart"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func (e *env) product(t *testing.T, seller Actor, name string, amount int64, style models.PaymentStyle) *models.Product {
	t.Helper()
	prod, err := e.catalog.CreateProduct(context.Background(), seller, productReq(name, priceReq(amount, style, true)))
	require.NoError(t, err)
	return prod
}

func line(p *models.Product, qty int) transport.CartItemRequest {
	return transport.CartItemRequest{ProductID: p.ID, PriceID: p.Prices[0].ID, Quantity: qty}
}

func TestCheckout_SingleSellerDestinationCharge(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	vase := e.product(t, seller, "Vase", 1005, models.PaymentInstant)

	res, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(vase, 2)}})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentInstant, res.Mode)
	require.Len(t, res.Sessions, 1)
	assert.Equal(t, res.Sessions[0].URL, res.URL)
	assert.Equal(t, int64(2010), res.Sessions[0].Subtotal)
	assert.Equal(t, int64(201), res.Sessions[0].Fee)

	require.Len(t, e.pay.Sessions, 1)
	params := e.pay.Sessions[0].Params
	assert.Equal(t, "acct_seller", params.DestinationAccount)
	assert.Equal(t, int64(201), params.ApplicationFee)
	assert.Equal(t, "buyer@example.com", params.CustomerEmail)
	assert.Equal(t, "buyer", params.Metadata["userId"])
	assert.Equal(t, "seller", params.Metadata["sellerId"])
	require.Len(t, params.LineItems, 1)
	assert.Equal(t, int64(1005), params.LineItems[0].UnitAmount)
	assert.Equal(t, int64(2), params.LineItems[0].Quantity)
	assert.Equal(t, []string{"https://img.example/Vase.png"}, params.LineItems[0].Images)
}

func TestCheckout_OneSessionPerSellerInCartOrder(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice", "acct_alice")
	bob := e.user(t, "bob", "acct_bob")
	buyer := e.user(t, "buyer", "")

	bowl := e.product(t, bob, "Bowl", 300, models.PaymentInstant)
	vase := e.product(t, alice, "Vase", 500, models.PaymentInstant)
	cup := e.product(t, bob, "Cup", 100, models.PaymentInstant)

	res, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{
		line(bowl, 1), line(vase, 1), line(cup, 3),
	}})
	require.NoError(t, err)

	require.Len(t, res.Sessions, 2)
	assert.Equal(t, "bob", res.Sessions[0].SellerID)
	assert.Equal(t, int64(600), res.Sessions[0].Subtotal)
	assert.Equal(t, int64(60), res.Sessions[0].Fee)
	assert.Equal(t, "alice", res.Sessions[1].SellerID)
	assert.Equal(t, int64(50), res.Sessions[1].Fee)

	assert.Equal(t, "acct_bob", e.pay.Sessions[0].Params.DestinationAccount)
	assert.Len(t, e.pay.Sessions[0].Params.LineItems, 2)
	assert.Equal(t, "acct_alice", e.pay.Sessions[1].Params.DestinationAccount)
}

func TestCheckout_LaterSessionFailureExpiresEarlierOnes(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	alice := e.user(t, "alice", "acct_alice")
	bob := e.user(t, "bob", "acct_bob")
	buyer := e.user(t, "buyer", "")
	vase := e.product(t, alice, "Vase", 500, models.PaymentInstant)
	bowl := e.product(t, bob, "Bowl", 300, models.PaymentInstant)

	e.pay.FailAfter(payments.OpCreateSession, 1, errRemote)
	_, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(vase, 1), line(bowl, 1)}})
	require.ErrorIs(t, err, ErrUpstream)

	require.Len(t, e.pay.Sessions, 1)
	assert.True(t, e.pay.Sessions[0].Expired)
}

func TestCheckout_RejectsBeforeAnyProcessorCall(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	connected := e.user(t, "connected", "acct_c")
	unconnected := e.user(t, "unconnected", "")
	buyer := e.user(t, "buyer", "")

	instant := e.product(t, connected, "Vase", 500, models.PaymentInstant)
	request := e.product(t, connected, "Commission", 5000, models.PaymentRequest)
	offline := e.product(t, unconnected, "Quilt", 800, models.PaymentInstant)

	tests := []struct {
		name  string
		buyer Actor
		items []transport.CartItemRequest
		want  error
	}{
		{"empty cart", buyer, nil, ErrValidation},
		{"mixed styles", buyer, []transport.CartItemRequest{line(instant, 1), line(request, 1)}, ErrValidation},
		{"seller not connected", buyer, []transport.CartItemRequest{line(instant, 1), line(offline, 1)}, ErrNotConnected},
		{"own product", connected, []transport.CartItemRequest{line(instant, 1)}, ErrValidation},
		{"unknown price", buyer, []transport.CartItemRequest{{ProductID: instant.ID, PriceID: uuid.New(), Quantity: 1}}, ErrNotFound},
		{"price of another product", buyer, []transport.CartItemRequest{{ProductID: offline.ID, PriceID: instant.Prices[0].ID, Quantity: 1}}, ErrNotFound},
		{"zero quantity", buyer, []transport.CartItemRequest{line(instant, 0)}, ErrValidation},
		{"no email", Actor{ID: "stranger"}, []transport.CartItemRequest{line(instant, 1)}, ErrMissingEmail},
	}
	for _, tt := range tests {
		_, err := e.checkout.Checkout(ctx, tt.buyer, transport.CheckoutRequest{Items: tt.items})
		assert.ErrorIs(t, err, tt.want, tt.name)
	}
	assert.Zero(t, e.pay.Calls(payments.OpCreateSession))
}

func TestCheckout_TotalsAboveLimitAreRefused(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	buyer := e.user(t, "buyer", "")
	big := e.product(t, seller, "Mural", cart.MaxAmount, models.PaymentInstant)
	commission := e.product(t, seller, "Fresco", cart.MaxAmount, models.PaymentRequest)

	_, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(big, 2)}})
	assert.ErrorIs(t, err, ErrValidation)
	_, err = e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(big, cart.MaxQuantity+1)}})
	assert.ErrorIs(t, err, ErrValidation)
	assert.Zero(t, e.pay.Calls(payments.OpCreateSession))

	_, err = e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(commission, 2)}})
	assert.ErrorIs(t, err, ErrValidation)
	reqs, err := e.requests.List(ctx, buyer.ID, "buyer")
	require.NoError(t, err)
	assert.Empty(t, reqs)

	res, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(big, 1)}})
	require.NoError(t, err)
	assert.Equal(t, int64(cart.MaxAmount), res.Sessions[0].Subtotal)
	assert.Equal(t, int64(10_000_000), res.Sessions[0].Fee)
}

func TestCheckout_EmailFromIdentityProvider(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "acct_seller")
	vase := e.product(t, seller, "Vase", 500, models.PaymentInstant)
	e.checkout.Emails = staticEmails{"newcomer": "newcomer@idp.example"}

	_, err := e.checkout.Checkout(ctx, Actor{ID: "newcomer"}, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(vase, 1)}})
	require.NoError(t, err)
	assert.Equal(t, "newcomer@idp.example", e.pay.Sessions[0].Params.CustomerEmail)

	u, err := e.repo.GetUser(ctx, "newcomer")
	require.NoError(t, err)
	assert.Equal(t, "newcomer@idp.example", u.Email)
}

func TestCheckout_RequestCartCreatesPendingRequests(t *testing.T) {
	t.Parallel()

	e := newEnv(t)
	ctx := context.Background()
	seller := e.user(t, "seller", "")
	buyer := e.user(t, "buyer", "")
	commission := e.product(t, seller, "Commission", 5000, models.PaymentRequest)
	portrait := e.product(t, seller, "Portrait", 9000, models.PaymentRequest)

	res, err := e.checkout.Checkout(ctx, buyer, transport.CheckoutRequest{Items: []transport.CartItemRequest{line(commission, 1), line(portrait, 2)}})
	require.NoError(t, err)

	assert.Equal(t, models.PaymentRequest, res.Mode)
	assert.Empty(t, res.URL)
	require.Len(t, res.PurchaseRequests, 2)
	assert.Zero(t, e.pay.Calls(payments.OpCreateSession))

	stored, err := e.repo.ListPurchaseRequestsBySeller(ctx, seller.ID)
	require.NoError(t, err)
	require.Len(t, stored, 2)
	for _, pr := range stored {
		assert.Equal(t, models.RequestPending, pr.Status)
		assert.Equal(t, buyer.ID, pr.BuyerID)
	}
}
