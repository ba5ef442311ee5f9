package service

import (
	"context"
	"errors"
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

// RequestService drives purchase requests from PENDING to a decision.
type RequestService struct {
	Repo       *repo.GormRepo
	Payments   payments.Processor
	Events     events.Publisher
	Emails     EmailLookup
	FeePercent int64
	PublicURL  string
}

// Create opens a PENDING request for one REQUEST-style price. Without a
// price id the product's default price is used.
func (s *RequestService) Create(ctx context.Context, buyer Actor, req transport.PurchaseRequestCreate) (*models.PurchaseRequest, error) {
	prod, err := s.Repo.GetProduct(ctx, req.ProductID)
	if err != nil {
		return nil, notFound(err, "product")
	}
	if prod.SellerID == buyer.ID {
		return nil, fmt.Errorf("%w: cannot request your own product", ErrValidation)
	}

	var price *models.Price
	for i := range prod.Prices {
		p := &prod.Prices[i]
		if (req.PriceID != nil && p.ID == *req.PriceID) || (req.PriceID == nil && p.IsDefault) {
			price = p
			break
		}
	}
	if price == nil {
		return nil, fmt.Errorf("%w: price", ErrNotFound)
	}
	if price.PaymentStyle != models.PaymentRequest {
		return nil, fmt.Errorf("%w: price is not sold by request", ErrValidation)
	}
	qty := req.Quantity
	if qty == 0 {
		qty = 1
	}
	if qty < 0 || qty > cart.MaxQuantity {
		return nil, fmt.Errorf("%w: quantity must be between 1 and %d", ErrValidation, cart.MaxQuantity)
	}
	if _, err := cart.LineTotal(price.UnitAmount, qty); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}
	if _, err := ensureUser(ctx, s.Repo, buyer.ID, buyer.Email); err != nil {
		return nil, err
	}

	pr := models.PurchaseRequest{
		ID:          uuid.New(),
		BuyerID:     buyer.ID,
		SellerID:    prod.SellerID,
		ProductID:   &prod.ID,
		PriceID:     &price.ID,
		ProductName: prod.Name,
		UnitAmount:  price.UnitAmount,
		Currency:    price.Currency,
		Quantity:    qty,
		Status:      models.RequestPending,
	}
	if err := s.Repo.CreatePurchaseRequests(ctx, []models.PurchaseRequest{pr}); err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.TopicPurchaseRequests, pr.ID.String(), requestEvent(EventRequestCreated, &pr))
	return &pr, nil
}

// List returns the requests where the user is the seller or the buyer.
func (s *RequestService) List(ctx context.Context, userID, role string) ([]models.PurchaseRequest, error) {
	switch role {
	case "seller":
		return s.Repo.ListPurchaseRequestsBySeller(ctx, userID)
	case "buyer", "":
		return s.Repo.ListPurchaseRequestsByBuyer(ctx, userID)
	default:
		return nil, fmt.Errorf("%w: role must be seller or buyer", ErrValidation)
	}
}

func (s *RequestService) decidable(ctx context.Context, seller Actor, id uuid.UUID, to models.RequestStatus) (*models.PurchaseRequest, error) {
	pr, err := s.Repo.GetPurchaseRequest(ctx, id)
	if err != nil {
		return nil, notFound(err, "purchase request")
	}
	if pr.SellerID != seller.ID {
		return nil, fmt.Errorf("%w: request belongs to another seller", ErrForbidden)
	}
	if !pr.Status.CanTransition(to) {
		return nil, fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, pr.Status, to)
	}
	return pr, nil
}

type Approval struct {
	Request     *models.PurchaseRequest `json:"request"`
	CheckoutURL string                  `json:"checkout_url"`
}

// Approve moves a PENDING request to APPROVED and opens a checkout session
// for the buyer. If the session cannot be created the request goes back to
// PENDING.
func (s *RequestService) Approve(ctx context.Context, seller Actor, id uuid.UUID) (*Approval, error) {
	l := logging.FromContext(ctx).With("svc", "requests", "op", "approve", "seller_id", seller.ID, "request_id", id)

	pr, err := s.decidable(ctx, seller, id, models.RequestApproved)
	if err != nil {
		return nil, err
	}
	sellerUser, err := s.Repo.GetUser(ctx, seller.ID)
	if err != nil {
		return nil, notFound(err, "seller")
	}
	if !sellerUser.Connected() {
		return nil, ErrNotConnected
	}
	email, err := resolveEmail(ctx, s.Repo, s.Emails, pr.BuyerID, "")
	if err != nil {
		return nil, err
	}

	var images []string
	if pr.ProductID != nil {
		if prod, err := s.Repo.GetProduct(ctx, *pr.ProductID); err == nil && len(prod.Images) > 0 {
			images = []string{prod.Images[0]}
		}
	}

	subtotal, err := cart.LineTotal(pr.UnitAmount, pr.Quantity)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrValidation, err)
	}

	if err := s.Repo.TransitionPurchaseRequest(ctx, pr.ID, models.RequestPending, models.RequestApproved); err != nil {
		if errors.Is(err, repo.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: request already decided", ErrInvalidTransition)
		}
		return nil, err
	}

	sess, err := s.Payments.CreateCheckoutSession(ctx, payments.SessionParams{
		DestinationAccount: *sellerUser.StripeAccountID,
		CustomerEmail:      email,
		LineItems: []payments.LineItem{{
			Name:       pr.ProductName,
			Images:     images,
			UnitAmount: pr.UnitAmount,
			Currency:   pr.Currency,
			Quantity:   int64(pr.Quantity),
		}},
		ApplicationFee: platformFee(subtotal, s.FeePercent),
		SuccessURL:     s.PublicURL + "/checkout/success?session_id={CHECKOUT_SESSION_ID}",
		CancelURL:      s.PublicURL + "/dashboard",
		Metadata: map[string]string{
			"userId":            pr.BuyerID,
			"sellerId":          pr.SellerID,
			"purchaseRequestId": pr.ID.String(),
		},
	})
	if err != nil {
		l.Warn("checkout_session_failed", "error", err)
		if rerr := s.Repo.TransitionPurchaseRequest(context.WithoutCancel(ctx), pr.ID, models.RequestApproved, models.RequestPending); rerr != nil {
			l.Error("revert_approval_failed", "error", rerr)
		}
		return nil, upstream("create checkout session", err)
	}
	if err := s.Repo.SetPurchaseRequestSession(ctx, pr.ID, sess.ID); err != nil {
		l.Error("db_error", "error", err)
	}

	pr.Status = models.RequestApproved
	pr.CheckoutSessionID = &sess.ID
	publish(ctx, s.Events, events.TopicPurchaseRequests, pr.ID.String(), requestEvent(EventRequestApproved, pr))

	l.Info("request_approved", "session_id", sess.ID)
	return &Approval{Request: pr, CheckoutURL: sess.URL}, nil
}

func (s *RequestService) Reject(ctx context.Context, seller Actor, id uuid.UUID) (*models.PurchaseRequest, error) {
	pr, err := s.decidable(ctx, seller, id, models.RequestRejected)
	if err != nil {
		return nil, err
	}
	if err := s.Repo.TransitionPurchaseRequest(ctx, pr.ID, models.RequestPending, models.RequestRejected); err != nil {
		if errors.Is(err, repo.ErrStatusChanged) {
			return nil, fmt.Errorf("%w: request already decided", ErrInvalidTransition)
		}
		return nil, err
	}
	pr.Status = models.RequestRejected
	publish(ctx, s.Events, events.TopicPurchaseRequests, pr.ID.String(), requestEvent(EventRequestRejected, pr))

	logging.FromContext(ctx).Info("request_rejected", "request_id", pr.ID, "seller_id", seller.ID)
	return pr, nil
}
