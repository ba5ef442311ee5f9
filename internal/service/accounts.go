package service

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/Skotchmaster/marketplace/internal/identity"
	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/payments"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/search"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/slugs"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// insightCharges is how many recent charges the insights summary covers.
const insightCharges = 5

type AccountService struct {
	Repo      *repo.GormRepo
	Payments  payments.Processor
	Events    events.Publisher
	Index     search.Indexer
	Emails    EmailLookup
	PublicURL string
}

// HandleIdentityEvent applies a verified identity-provider webhook. Replays
// are harmless: creation is idempotent and deleting a missing user is a no-op.
func (s *AccountService) HandleIdentityEvent(ctx context.Context, ev *identity.Event) error {
	l := logging.FromContext(ctx).With("svc", "accounts", "event", ev.Type, "user_id", ev.Data.ID)

	switch ev.Type {
	case identity.EventUserCreated:
		if _, err := ensureUser(ctx, s.Repo, ev.Data.ID, ev.Email()); err != nil {
			return err
		}
		publish(ctx, s.Events, events.TopicUsers, ev.Data.ID, UserEvent{Type: EventUserCreated, UserID: ev.Data.ID, OccurredAt: time.Now().UTC()})
		l.Info("user_created")
	case identity.EventUserDeleted:
		products, err := s.Repo.ListProductsBySeller(ctx, ev.Data.ID)
		if err != nil {
			return err
		}
		deleted, err := s.Repo.DeleteUser(ctx, ev.Data.ID)
		if err != nil {
			return err
		}
		if !deleted {
			l.Info("user_delete_skipped", "reason", "unknown user")
			return nil
		}
		for i := range products {
			unindex(ctx, s.Index, products[i].ID)
		}
		publish(ctx, s.Events, events.TopicUsers, ev.Data.ID, UserEvent{Type: EventUserDeleted, UserID: ev.Data.ID, OccurredAt: time.Now().UTC()})
		l.Info("user_deleted", "products", len(products))
	default:
		l.Debug("identity_event_ignored")
	}
	return nil
}

func (s *AccountService) EnsureUser(ctx context.Context, actor Actor) (*models.User, error) {
	return ensureUser(ctx, s.Repo, actor.ID, actor.Email)
}

type ProductSummary struct {
	models.Product
	Synced bool `json:"synced"`
}

type Dashboard struct {
	User     *models.User             `json:"user"`
	Products []ProductSummary         `json:"products"`
	Selling  []models.PurchaseRequest `json:"selling_requests"`
	Buying   []models.PurchaseRequest `json:"buying_requests"`
}

func (s *AccountService) Dashboard(ctx context.Context, actor Actor) (*Dashboard, error) {
	u, err := ensureUser(ctx, s.Repo, actor.ID, actor.Email)
	if err != nil {
		return nil, err
	}
	products, err := s.Repo.ListProductsBySeller(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	selling, err := s.Repo.ListPurchaseRequestsBySeller(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	buying, err := s.Repo.ListPurchaseRequestsByBuyer(ctx, actor.ID)
	if err != nil {
		return nil, err
	}

	d := &Dashboard{
		User:     u,
		Products: make([]ProductSummary, 0, len(products)),
		Selling:  selling,
		Buying:   buying,
	}
	for i := range products {
		d.Products = append(d.Products, ProductSummary{Product: products[i], Synced: products[i].Synced()})
	}
	return d, nil
}

type Connection struct {
	AccountID     string `json:"account_id"`
	OnboardingURL string `json:"onboarding_url"`
}

func (s *AccountService) onboardingLink(ctx context.Context, account string) (string, error) {
	link, err := s.Payments.CreateOnboardingLink(ctx, account, s.PublicURL+"/onboarding?refresh=true", s.PublicURL+"/dashboard")
	if err != nil {
		return "", upstream("create onboarding link", err)
	}
	return link, nil
}

// ConnectAccount creates the seller's connected account, or reuses the one
// already stored, marks the user as an artisan and returns an onboarding link.
func (s *AccountService) ConnectAccount(ctx context.Context, actor Actor, email string) (*Connection, error) {
	l := logging.FromContext(ctx).With("svc", "accounts", "op", "connect", "user_id", actor.ID)

	u, err := ensureUser(ctx, s.Repo, actor.ID, actor.Email)
	if err != nil {
		return nil, err
	}

	account := ""
	if u.Connected() {
		account = *u.StripeAccountID
	} else {
		if email == "" {
			email = actor.Email
		}
		email, err = resolveEmail(ctx, s.Repo, s.Emails, actor.ID, email)
		if err != nil {
			return nil, err
		}
		account, err = s.Payments.CreateAccount(ctx, email)
		if err != nil {
			l.Warn("create_account_failed", "error", err)
			return nil, upstream("create account", err)
		}
	}
	if err := s.Repo.SetStripeAccount(ctx, actor.ID, &account, models.RoleArtisan); err != nil {
		return nil, err
	}

	link, err := s.onboardingLink(ctx, account)
	if err != nil {
		return nil, err
	}
	publish(ctx, s.Events, events.TopicUsers, actor.ID, UserEvent{Type: EventUserConnected, UserID: actor.ID, OccurredAt: time.Now().UTC()})

	l.Info("account_connected", "account_id", account, "reused", u.Connected())
	return &Connection{AccountID: account, OnboardingURL: link}, nil
}

func (s *AccountService) OnboardingLink(ctx context.Context, actor Actor) (string, error) {
	account, err := s.account(ctx, actor.ID)
	if err != nil {
		return "", err
	}
	return s.onboardingLink(ctx, account)
}

// DisconnectAccount forgets the connected account locally. The remote account
// and the user's role are left as they are.
func (s *AccountService) DisconnectAccount(ctx context.Context, actor Actor) error {
	u, err := s.Repo.GetUser(ctx, actor.ID)
	if err != nil {
		return notFound(err, "user")
	}
	if err := s.Repo.SetStripeAccount(ctx, actor.ID, nil, u.Role); err != nil {
		return notFound(err, "user")
	}
	logging.FromContext(ctx).Info("account_disconnected", "user_id", actor.ID)
	return nil
}

func (s *AccountService) account(ctx context.Context, userID string) (string, error) {
	u, err := s.Repo.GetUser(ctx, userID)
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return "", ErrNotConnected
	}
	if err != nil {
		return "", err
	}
	if !u.Connected() {
		return "", ErrNotConnected
	}
	return *u.StripeAccountID, nil
}

// Insights summarises the most recent charges in major units.
type Insights struct {
	TotalRevenue    string     `json:"total_revenue"`
	AverageCharge   string     `json:"average_charge"`
	Transactions    int        `json:"transactions"`
	Currency        string     `json:"currency,omitempty"`
	LastTransaction *time.Time `json:"last_transaction,omitempty"`
}

func (s *AccountService) Insights(ctx context.Context, actor Actor) (*Insights, error) {
	account, err := s.account(ctx, actor.ID)
	if err != nil {
		return nil, err
	}
	charges, err := s.Payments.ListRecentCharges(ctx, account, insightCharges)
	if err != nil {
		return nil, upstream("list charges", err)
	}
	return summarize(charges), nil
}

func summarize(charges []payments.Charge) *Insights {
	total := decimal.Zero
	var last int64
	for _, c := range charges {
		total = total.Add(decimal.NewFromInt(c.Amount))
		last = max(last, c.Created)
	}
	total = total.Shift(-2)

	out := &Insights{
		TotalRevenue:  total.StringFixed(2),
		AverageCharge: decimal.Zero.StringFixed(2),
		Transactions:  len(charges),
	}
	if len(charges) == 0 {
		return out
	}
	out.AverageCharge = total.Div(decimal.NewFromInt(int64(len(charges)))).StringFixed(2)
	out.Currency = charges[0].Currency
	ts := time.Unix(last, 0).UTC()
	out.LastTransaction = &ts
	return out
}

// BackfillSlugs gives every user without a slug a generated one and returns
// how many were updated.
func (s *AccountService) BackfillSlugs(ctx context.Context) (int, error) {
	users, err := s.Repo.UsersWithoutSlug(ctx)
	if err != nil {
		return 0, err
	}
	updated := 0
	for _, u := range users {
		slug, err := slugs.Unique(ctx, slugs.ForUser(u.ID), s.Repo.UserSlugExists)
		if err != nil {
			return updated, err
		}
		if err := s.Repo.SetUserSlug(ctx, u.ID, slug); err != nil {
			return updated, fmt.Errorf("set slug for %s: %w", u.ID, err)
		}
		updated++
	}
	logging.FromContext(ctx).Info("slugs_backfilled", "updated", updated)
	return updated, nil
}

type PublicUser struct {
	ID        string    `json:"id"`
	Slug      string    `json:"slug"`
	Role      string    `json:"role,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

func publicUser(u *models.User) PublicUser {
	pu := PublicUser{ID: u.ID, Role: u.Role, CreatedAt: u.CreatedAt}
	if u.Slug != nil {
		pu.Slug = *u.Slug
	}
	return pu
}

type Profile struct {
	User     PublicUser           `json:"user"`
	Listings []repo.SellerListing `json:"listings"`
}

func (s *AccountService) Profile(ctx context.Context, slug string) (*Profile, error) {
	u, err := s.Repo.GetUserBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "user")
	}
	listings, err := s.Repo.SellerListings(ctx, u.ID)
	if err != nil {
		return nil, err
	}
	if listings == nil {
		listings = []repo.SellerListing{}
	}
	return &Profile{
		User:     publicUser(u),
		Listings: listings,
	}, nil
}
