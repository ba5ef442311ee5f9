package payments

import (
	"context"
	"fmt"
	"strings"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/client"
)

type Stripe struct {
	api *client.API
}

func NewStripe(secretKey string) *Stripe {
	return &Stripe{api: client.New(secretKey, nil)}
}

func (s *Stripe) CreateAccount(ctx context.Context, email string) (string, error) {
	params := &stripe.AccountParams{
		Type:  stripe.String(string(stripe.AccountTypeStandard)),
		Email: stripe.String(email),
	}
	params.Context = ctx
	acct, err := s.api.Accounts.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create account: %w", err)
	}
	return acct.ID, nil
}

func (s *Stripe) CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	params := &stripe.AccountLinkParams{
		Account:    stripe.String(accountID),
		RefreshURL: stripe.String(refreshURL),
		ReturnURL:  stripe.String(returnURL),
		Type:       stripe.String("account_onboarding"),
	}
	params.Context = ctx
	link, err := s.api.AccountLinks.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create account link: %w", err)
	}
	return link.URL, nil
}

func productParams(ctx context.Context, accountID string, p ProductParams) *stripe.ProductParams {
	params := &stripe.ProductParams{
		Name:        stripe.String(p.Name),
		Description: stripe.String(p.Description),
		Images:      stripe.StringSlice(p.Images),
	}
	if p.Description == "" {
		params.Description = nil
	}
	if p.LocalID != "" {
		params.AddMetadata(LocalProductKey, p.LocalID)
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	return params
}

func (s *Stripe) CreateProduct(ctx context.Context, accountID string, p ProductParams) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	prod, err := s.api.Products.New(productParams(ctx, accountID, p))
	if err != nil {
		return "", fmt.Errorf("stripe: create product: %w", err)
	}
	return prod.ID, nil
}

func (s *Stripe) UpdateProduct(ctx context.Context, accountID, productID string, p ProductParams) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	if _, err := s.api.Products.Update(productID, productParams(ctx, accountID, p)); err != nil {
		return fmt.Errorf("stripe: update product %s: %w", productID, err)
	}
	return nil
}

func (s *Stripe) FindProductByLocalID(ctx context.Context, accountID, localID string) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	params := &stripe.ProductSearchParams{
		SearchParams: stripe.SearchParams{
			Query: fmt.Sprintf("metadata['%s']:'%s'", LocalProductKey, strings.ReplaceAll(localID, "'", "")),
			Limit: stripe.Int64(1),
		},
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)

	iter := s.api.Products.Search(params)
	if iter.Next() {
		return iter.Product().ID, nil
	}
	if err := iter.Err(); err != nil {
		return "", fmt.Errorf("stripe: search product: %w", err)
	}
	return "", ErrNotFound
}

func (s *Stripe) DeleteProduct(ctx context.Context, accountID, productID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	params := &stripe.ProductParams{}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := s.api.Products.Del(productID, params); err != nil {
		return fmt.Errorf("stripe: delete product %s: %w", productID, err)
	}
	return nil
}

func (s *Stripe) ArchiveProduct(ctx context.Context, accountID, productID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	params := &stripe.ProductParams{Active: stripe.Bool(false)}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := s.api.Products.Update(productID, params); err != nil {
		return fmt.Errorf("stripe: archive product %s: %w", productID, err)
	}
	return nil
}

func (s *Stripe) CreatePrice(ctx context.Context, accountID string, p PriceParams) (string, error) {
	if err := requireAccount(accountID); err != nil {
		return "", err
	}
	params := &stripe.PriceParams{
		Product:    stripe.String(p.ProductID),
		UnitAmount: stripe.Int64(p.UnitAmount),
		Currency:   stripe.String(strings.ToLower(p.Currency)),
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	price, err := s.api.Prices.New(params)
	if err != nil {
		return "", fmt.Errorf("stripe: create price: %w", err)
	}
	return price.ID, nil
}

func (s *Stripe) UpdatePriceMetadata(ctx context.Context, accountID, priceID string, metadata map[string]string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	params := &stripe.PriceParams{}
	for k, v := range metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := s.api.Prices.Update(priceID, params); err != nil {
		return fmt.Errorf("stripe: update price %s: %w", priceID, err)
	}
	return nil
}

func (s *Stripe) DeactivatePrice(ctx context.Context, accountID, priceID string) error {
	if err := requireAccount(accountID); err != nil {
		return err
	}
	params := &stripe.PriceParams{Active: stripe.Bool(false)}
	params.Context = ctx
	params.SetStripeAccount(accountID)
	if _, err := s.api.Prices.Update(priceID, params); err != nil {
		return fmt.Errorf("stripe: deactivate price %s: %w", priceID, err)
	}
	return nil
}

func (s *Stripe) CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error) {
	if err := requireAccount(p.DestinationAccount); err != nil {
		return nil, err
	}

	lineItems := make([]*stripe.CheckoutSessionLineItemParams, 0, len(p.LineItems))
	for _, li := range p.LineItems {
		lineItems = append(lineItems, &stripe.CheckoutSessionLineItemParams{
			PriceData: &stripe.CheckoutSessionLineItemPriceDataParams{
				Currency:   stripe.String(strings.ToLower(li.Currency)),
				UnitAmount: stripe.Int64(li.UnitAmount),
				ProductData: &stripe.CheckoutSessionLineItemPriceDataProductDataParams{
					Name:   stripe.String(li.Name),
					Images: stripe.StringSlice(li.Images),
				},
			},
			Quantity: stripe.Int64(li.Quantity),
		})
	}

	params := &stripe.CheckoutSessionParams{
		Mode:          stripe.String(string(stripe.CheckoutSessionModePayment)),
		CustomerEmail: stripe.String(p.CustomerEmail),
		LineItems:     lineItems,
		SuccessURL:    stripe.String(p.SuccessURL),
		CancelURL:     stripe.String(p.CancelURL),
		PaymentIntentData: &stripe.CheckoutSessionPaymentIntentDataParams{
			ApplicationFeeAmount: stripe.Int64(p.ApplicationFee),
			TransferData: &stripe.CheckoutSessionPaymentIntentDataTransferDataParams{
				Destination: stripe.String(p.DestinationAccount),
			},
		},
	}
	for k, v := range p.Metadata {
		params.AddMetadata(k, v)
	}
	params.Context = ctx

	sess, err := s.api.CheckoutSessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe: create checkout session: %w", err)
	}
	return &Session{ID: sess.ID, URL: sess.URL}, nil
}

func (s *Stripe) ExpireCheckoutSession(ctx context.Context, sessionID string) error {
	params := &stripe.CheckoutSessionExpireParams{}
	params.Context = ctx
	if _, err := s.api.CheckoutSessions.Expire(sessionID, params); err != nil {
		return fmt.Errorf("stripe: expire checkout session %s: %w", sessionID, err)
	}
	return nil
}

func (s *Stripe) ListRecentCharges(ctx context.Context, accountID string, limit int64) ([]Charge, error) {
	if err := requireAccount(accountID); err != nil {
		return nil, err
	}
	params := &stripe.ChargeListParams{}
	params.Limit = stripe.Int64(limit)
	params.Single = true
	params.Context = ctx
	params.SetStripeAccount(accountID)

	var out []Charge
	iter := s.api.Charges.List(params)
	for iter.Next() {
		ch := iter.Charge()
		out = append(out, Charge{Amount: ch.Amount, Currency: string(ch.Currency), Created: ch.Created})
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("stripe: list charges: %w", err)
	}
	return out, nil
}
