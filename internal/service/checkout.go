package service

import (
	"context"
	"fmt"

	"github.com/Skotchmaster/marketplace/internal/cart"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/google/uuid"
)

type CheckoutService struct {
	Repo       *repo.GormRepo
	Payments   payments.Processor
	Events     events.Publisher
	Emails     EmailLookup
	FeePercent int64
	PublicURL  string
}

type SellerSession struct {
	SellerID  string `json:"seller_id"`
	SessionID string `json:"session_id"`
	URL       string `json:"url"`
	Subtotal  int64  `json:"subtotal"`
	Fee       int64  `json:"fee"`
}

// CheckoutResult carries one checkout session per seller for INSTANT carts,
// or the created purchase requests for REQUEST carts. URL is the first
// session's address.
type CheckoutResult struct {
	Mode             models.PaymentStyle      `json:"mode"`
	URL              string                   `json:"url,omitempty"`
	Sessions         []SellerSession          `json:"sessions,omitempty"`
	PurchaseRequests []models.PurchaseRequest `json:"purchase_requests,omitempty"`
}

func (s *CheckoutService) successURL() string {
	return s.PublicURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}"
}

func (s *CheckoutService) cancelURL() string {
	return s.PublicURL + "/cart"
}

// resolveCart rebuilds the cart from stored prices so amounts, styles and
// sellers never come from the client.
func (s *CheckoutService) resolveCart(ctx context.Context, items []transport.CartItemRequest) (*cart.Cart, error) {
	if len(items) == 0 {
		return nil, fmt.Errorf("%w: %v", ErrValidation, cart.ErrEmpty)
	}
	priceIDs := make([]uuid.UUID, 0, len(items))
	productIDs := make([]uuid.UUID, 0, len(items))
	for _, it := range items {
		priceIDs = append(priceIDs, it.PriceID)
		productIDs = append(productIDs, it.ProductID)
	}
	prices, err := s.Repo.GetPricesByIDs(ctx, priceIDs)
	if err != nil {
		return nil, err
	}
	products, err := s.Repo.GetProductsByIDs(ctx, productIDs)
	if err != nil {
		return nil, err
	}
	priceByID := make(map[uuid.UUID]models.Price, len(prices))
	for _, p := range prices {
		priceByID[p.ID] = p
	}
	productByID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		productByID[p.ID] = p
	}

	resolved := make([]cart.Item, 0, len(items))
	for _, it := range items {
		price, ok := priceByID[it.PriceID]
		if !ok || price.ProductID != it.ProductID {
			return nil, fmt.Errorf("%w: price %s", ErrNotFound, it.PriceID)
		}
		prod, ok := productByID[it.ProductID]
		if !ok {
			return nil, fmt.Errorf("%w: product %s", ErrNotFound, it.ProductID)
		}
		item := cart.Item{
			ProductID:    prod.ID,
			SellerID:     prod.SellerID,
			PriceID:      price.ID,
			PaymentStyle: price.PaymentStyle,
			UnitPrice:    price.UnitAmount,
			Currency:     price.Currency,
			Quantity:     it.Quantity,
			Name:         prod.Name,
		}
		if len(prod.Images) > 0 {
			item.Image = prod.Images[0]
		}
		resolved = append(resolved, item)
	}
	c, err := cart.New(resolved...)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	return c, nil
}

// Checkout turns a cart into checkout sessions or purchase requests. INSTANT
// carts get one destination-charge session per seller; if any session cannot
// be created the ones already opened are expired and nothing is returned.
func (s *CheckoutService) Checkout(ctx context.Context, buyer Actor, req transport.CheckoutRequest) (*CheckoutResult, error) {
	l := logging.FromContext(ctx).With("svc", "checkout", "buyer_id", buyer.ID)

	c, err := s.resolveCart(ctx, req.Items)
	if err != nil {
		return nil, err
	}
	for _, it := range c.Items() {
		if it.SellerID == buyer.ID {
			return nil, fmt.Errorf("%w: cannot buy your own product", ErrValidation)
		}
	}

	email, err := resolveEmail(ctx, s.Repo, s.Emails, buyer.ID, buyer.Email)
	if err != nil {
		return nil, err
	}
	if _, err := ensureUser(ctx, s.Repo, buyer.ID, email); err != nil {
		return nil, err
	}

	if c.Style() == models.PaymentRequest {
		return s.requestCheckout(ctx, buyer, c)
	}

	groups := c.BySeller()
	sellerIDs := make([]string, 0, len(groups))
	for _, g := range groups {
		sellerIDs = append(sellerIDs, g.SellerID)
	}
	sellers, err := s.Repo.GetUsersByIDs(ctx, sellerIDs)
	if err != nil {
		return nil, err
	}
	accounts := make(map[string]string, len(sellers))
	for _, u := range sellers {
		if u.Connected() {
			accounts[u.ID] = *u.StripeAccountID
		}
	}
	subtotals := make([]int64, len(groups))
	for i, g := range groups {
		if accounts[g.SellerID] == "" {
			return nil, fmt.Errorf("%w: seller %s", ErrNotConnected, g.SellerID)
		}
		for _, it := range g.Items {
			if it.Currency != g.Items[0].Currency {
				return nil, fmt.Errorf("%w: mixed currencies for one seller", ErrValidation)
			}
		}
		sub, err := g.Subtotal()
		if err != nil {
			return nil, fmt.Errorf("%w: seller %s: %v", ErrValidation, g.SellerID, err)
		}
		subtotals[i] = sub
	}

	result := &CheckoutResult{Mode: models.PaymentInstant}
	for i, g := range groups {
		subtotal := subtotals[i]
		fee := platformFee(subtotal, s.FeePercent)

		lines := make([]payments.LineItem, 0, len(g.Items))
		for _, it := range g.Items {
			li := payments.LineItem{
				Name:       it.Name,
				UnitAmount: it.UnitPrice,
				Currency:   it.Currency,
				Quantity:   int64(it.Quantity),
			}
			if it.Image != "" {
				li.Images = []string{it.Image}
			}
			lines = append(lines, li)
		}

		sess, err := s.Payments.CreateCheckoutSession(ctx, payments.SessionParams{
			DestinationAccount: accounts[g.SellerID],
			CustomerEmail:      email,
			LineItems:          lines,
			ApplicationFee:     fee,
			SuccessURL:         s.successURL(),
			CancelURL:          s.cancelURL(),
			Metadata: map[string]string{
				"userId":   buyer.ID,
				"sellerId": g.SellerID,
			},
		})
		if err != nil {
			l.Warn("checkout_session_failed", "seller_id", g.SellerID, "opened", len(result.Sessions), "error", err)
			s.expireSessions(ctx, result.Sessions)
			return nil, upstream("create checkout session", err)
		}
		result.Sessions = append(result.Sessions, SellerSession{
			SellerID:  g.SellerID,
			SessionID: sess.ID,
			URL:       sess.URL,
			Subtotal:  subtotal,
			Fee:       fee,
		})
	}
	result.URL = result.Sessions[0].URL

	l.Info("checkout_started", "sessions", len(result.Sessions))
	return result, nil
}

func (s *CheckoutService) expireSessions(ctx context.Context, sessions []SellerSession) {
	for _, sess := range sessions {
		if err := s.Payments.ExpireCheckoutSession(context.WithoutCancel(ctx), sess.SessionID); err != nil {
			logging.FromContext(ctx).Error("expire_session_failed", "session_id", sess.SessionID, "error", err)
		}
	}
}

func (s *CheckoutService) requestCheckout(ctx context.Context, buyer Actor, c *cart.Cart) (*CheckoutResult, error) {
	items := c.Items()
	reqs := make([]models.PurchaseRequest, 0, len(items))
	for _, it := range items {
		if _, err := it.Total(); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrValidation, it.Name, err)
		}
		productID, priceID := it.ProductID, it.PriceID
		reqs = append(reqs, models.PurchaseRequest{
			ID:          uuid.New(),
			BuyerID:     buyer.ID,
			SellerID:    it.SellerID,
			ProductID:   &productID,
			PriceID:     &priceID,
			ProductName: it.Name,
			UnitAmount:  it.UnitPrice,
			Currency:    it.Currency,
			Quantity:    it.Quantity,
			Status:      models.RequestPending,
		})
	}
	if err := s.Repo.CreatePurchaseRequests(ctx, reqs); err != nil {
		return nil, err
	}
	for i := range reqs {
		publish(ctx, s.Events, events.TopicPurchaseRequests, reqs[i].ID.String(), requestEvent(EventRequestCreated, &reqs[i]))
	}
	logging.FromContext(ctx).Info("purchase_requests_created", "buyer_id", buyer.ID, "count", len(reqs))
	return &CheckoutResult{Mode: models.PaymentRequest, PurchaseRequests: reqs}, nil
}
