// Package payments is the port to the payment processor. Every call that
// touches a seller's objects takes the connected account id explicitly and
// refuses to run without one, so nothing lands on the platform account by
// mistake.
package payments

import (
	"context"
	"errors"
)

var (
	ErrMissingAccount = errors.New("payments: connected account id is required")
	ErrNotFound       = errors.New("payments: object not found")
)

// LocalProductKey is the metadata key linking a remote product to its local id.
const LocalProductKey = "localProductId"

type ProductParams struct {
	LocalID     string
	Name        string
	Description string
	Images      []string
}

type PriceParams struct {
	ProductID  string
	UnitAmount int64
	Currency   string
	Metadata   map[string]string
}

type LineItem struct {
	Name       string
	Images     []string
	UnitAmount int64
	Currency   string
	Quantity   int64
}

// SessionParams describes a destination charge: the buyer pays the platform,
// the fee is withheld and the rest is transferred to DestinationAccount.
type SessionParams struct {
	DestinationAccount string
	CustomerEmail      string
	LineItems          []LineItem
	ApplicationFee     int64
	SuccessURL         string
	CancelURL          string
	Metadata           map[string]string
}

type Session struct {
	ID  string `json:"id"`
	URL string `json:"url"`
}

type Charge struct {
	Amount   int64
	Currency string
	Created  int64
}

type Processor interface {
	CreateAccount(ctx context.Context, email string) (string, error)
	CreateOnboardingLink(ctx context.Context, accountID, refreshURL, returnURL string) (string, error)

	CreateProduct(ctx context.Context, accountID string, p ProductParams) (string, error)
	UpdateProduct(ctx context.Context, accountID, productID string, p ProductParams) error
	// FindProductByLocalID returns ErrNotFound when no remote product carries the local id.
	FindProductByLocalID(ctx context.Context, accountID, localID string) (string, error)
	DeleteProduct(ctx context.Context, accountID, productID string) error
	ArchiveProduct(ctx context.Context, accountID, productID string) error

	CreatePrice(ctx context.Context, accountID string, p PriceParams) (string, error)
	UpdatePriceMetadata(ctx context.Context, accountID, priceID string, metadata map[string]string) error
	// DeactivatePrice never deletes: remote prices are immutable and only archived.
	DeactivatePrice(ctx context.Context, accountID, priceID string) error

	CreateCheckoutSession(ctx context.Context, p SessionParams) (*Session, error)
	ExpireCheckoutSession(ctx context.Context, sessionID string) error

	ListRecentCharges(ctx context.Context, accountID string, limit int64) ([]Charge, error)
}

func requireAccount(accountID string) error {
	if accountID == "" {
		return ErrMissingAccount
	}
	return nil
}
