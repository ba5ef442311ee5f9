package models

import (
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
)

const RoleArtisan = "ARTISAN"

// User ids come from the identity provider and are never generated locally.
type User struct {
	ID              string    `gorm:"primaryKey"                json:"id"`
	Slug            *string   `gorm:"uniqueIndex"               json:"slug,omitempty"`
	Email           string    `gorm:"not null;default:''"       json:"email,omitempty"`
	Role            string    `gorm:"not null;default:''"       json:"role,omitempty"`
	StripeAccountID *string   `                                 json:"stripe_account_id,omitempty"`
	CreatedAt       time.Time `                                 json:"created_at"`
	UpdatedAt       time.Time `                                 json:"updated_at"`
}

func (u *User) Connected() bool {
	return u.StripeAccountID != nil && *u.StripeAccountID != ""
}

type Marketplace struct {
	ID          uuid.UUID `gorm:"type:uuid;primaryKey"          json:"id"`
	Name        string    `gorm:"not null"                      json:"name"`
	Slug        string    `gorm:"uniqueIndex;not null"          json:"slug"`
	Description string    `gorm:"not null;default:''"           json:"description"`
	Owners      []User    `gorm:"many2many:marketplace_owners;"  json:"owners,omitempty"`
	Members     []User    `gorm:"many2many:marketplace_members;" json:"members,omitempty"`
	Prices      []Price   `gorm:"foreignKey:MarketplaceID"      json:"prices,omitempty"`
	CreatedAt   time.Time `                                     json:"created_at"`
	UpdatedAt   time.Time `                                     json:"updated_at"`
}

func (m *Marketplace) BeforeCreate(tx *gorm.DB) error {
	if m.ID == uuid.Nil {
		m.ID = uuid.New()
	}
	return nil
}

type Product struct {
	ID              uuid.UUID                   `gorm:"type:uuid;primaryKey"          json:"id"`
	Name            string                      `gorm:"not null"                      json:"name"`
	Description     string                      `gorm:"not null;default:''"           json:"description"`
	Images          datatypes.JSONSlice[string] `                                     json:"images"`
	SellerID        string                      `gorm:"index;not null"                json:"seller_id"`
	StripeProductID *string                     `                                     json:"stripe_product_id"`
	TotalQuantity   int                         `gorm:"not null;default:0"            json:"total_quantity"`
	Prices          []Price                     `gorm:"foreignKey:ProductID"          json:"prices,omitempty"`
	Tags            []Tag                       `gorm:"many2many:product_tags;"       json:"tags,omitempty"`
	CreatedAt       time.Time                   `                                     json:"created_at"`
	UpdatedAt       time.Time                   `                                     json:"updated_at"`
}

func (p *Product) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

// Synced is false while the product or any of its prices only exists locally.
func (p *Product) Synced() bool {
	if p.StripeProductID == nil || *p.StripeProductID == "" {
		return false
	}
	for i := range p.Prices {
		if !p.Prices[i].Synced() {
			return false
		}
	}
	return true
}

type PaymentStyle string

const (
	PaymentInstant PaymentStyle = "INSTANT"
	PaymentRequest PaymentStyle = "REQUEST"
)

func (s PaymentStyle) Valid() bool {
	return s == PaymentInstant || s == PaymentRequest
}

// PlaceholderPriceID stands in for the remote price id until the seller
// connects a payment account.
const PlaceholderPriceID = "unsynced"

type Price struct {
	ID                uuid.UUID    `gorm:"type:uuid;primaryKey"        json:"id"`
	ProductID         uuid.UUID    `gorm:"type:uuid;index;not null"    json:"product_id"`
	StripePriceID     string       `gorm:"not null"                    json:"stripe_price_id"`
	UnitAmount        int64        `gorm:"not null"                    json:"unit_amount"`
	Currency          string       `gorm:"not null;default:'usd'"      json:"currency"`
	IsDefault         bool         `gorm:"not null;default:false"      json:"is_default"`
	PaymentStyle      PaymentStyle `gorm:"not null;default:'INSTANT'"  json:"payment_style"`
	AllocatedQuantity int          `gorm:"not null;default:0"          json:"allocated_quantity"`
	MarketplaceID     *uuid.UUID   `gorm:"type:uuid;index"             json:"marketplace_id"`
	CreatedAt         time.Time    `                                   json:"created_at"`
	UpdatedAt         time.Time    `                                   json:"updated_at"`
}

func (p *Price) BeforeCreate(tx *gorm.DB) error {
	if p.ID == uuid.Nil {
		p.ID = uuid.New()
	}
	return nil
}

func (p *Price) Synced() bool {
	return p.StripePriceID != "" && p.StripePriceID != PlaceholderPriceID
}

type Tag struct {
	ID        uuid.UUID `gorm:"type:uuid;primaryKey"  json:"id"`
	Name      string    `gorm:"uniqueIndex;not null"  json:"name"`
	CreatedBy *string   `                             json:"created_by,omitempty"`
	CreatedAt time.Time `                             json:"created_at"`
}

func (t *Tag) BeforeCreate(tx *gorm.DB) error {
	if t.ID == uuid.Nil {
		t.ID = uuid.New()
	}
	return nil
}

type ProductTag struct {
	ProductID uuid.UUID `gorm:"type:uuid;primaryKey" json:"product_id"`
	TagID     uuid.UUID `gorm:"type:uuid;primaryKey" json:"tag_id"`
	CreatedAt time.Time `                            json:"created_at"`
}

func (ProductTag) TableName() string {
	return "product_tags"
}

type RequestStatus string

const (
	RequestPending  RequestStatus = "PENDING"
	RequestApproved RequestStatus = "APPROVED"
	RequestRejected RequestStatus = "REJECTED"
)

// CanTransition reports whether from -> to is an allowed move. Only pending
// requests can be decided; approved and rejected are terminal.
func (from RequestStatus) CanTransition(to RequestStatus) bool {
	return from == RequestPending && (to == RequestApproved || to == RequestRejected)
}

// PurchaseRequest is one (buyer, seller, product, price) tuple. Name and
// amount are captured at creation so the approval charges what was asked.
type PurchaseRequest struct {
	ID                uuid.UUID     `gorm:"type:uuid;primaryKey"               json:"id"`
	BuyerID           string        `gorm:"index;not null"                     json:"buyer_id"`
	SellerID          string        `gorm:"index;not null"                     json:"seller_id"`
	ProductID         *uuid.UUID    `gorm:"type:uuid;index"                    json:"product_id"`
	PriceID           *uuid.UUID    `gorm:"type:uuid"                          json:"price_id"`
	ProductName       string        `gorm:"not null;default:''"                json:"product_name"`
	UnitAmount        int64         `gorm:"not null"                           json:"unit_amount"`
	Currency          string        `gorm:"not null;default:'usd'"             json:"currency"`
	Quantity          int           `gorm:"not null;default:1"                 json:"quantity"`
	Status            RequestStatus `gorm:"index;not null;default:'PENDING'"   json:"status"`
	CheckoutSessionID *string       `                                          json:"checkout_session_id,omitempty"`
	CreatedAt         time.Time     `                                          json:"created_at"`
	UpdatedAt         time.Time     `                                          json:"updated_at"`
}

func (r *PurchaseRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}
