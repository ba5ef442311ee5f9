package transport

import "github.com/google/uuid"

type PriceRequest struct {
	// ID is set when an existing price is edited and left empty for new ones.
	ID                *uuid.UUID `json:"id"`
	UnitAmount        int64      `json:"unit_amount"        validate:"gt=0,lte=99999999"`
	Currency          string     `json:"currency"           validate:"omitempty,len=3,alpha"`
	IsDefault         bool       `json:"is_default"`
	PaymentStyle      string     `json:"payment_style"      validate:"omitempty,oneof=INSTANT REQUEST"`
	AllocatedQuantity int        `json:"allocated_quantity" validate:"gte=0"`
	MarketplaceID     *uuid.UUID `json:"marketplace_id"`
}

// ProductRequest is the body of product create and update. A nil Tags keeps
// the current tags on update; an empty list clears them.
type ProductRequest struct {
	Name        string         `json:"name"        validate:"required,max=200"`
	Description string         `json:"description" validate:"max=5000"`
	Images      []string       `json:"images"      validate:"max=10,dive,url"`
	Prices      []PriceRequest `json:"prices"      validate:"required,min=1,dive"`
	Tags        []string       `json:"tags"        validate:"omitempty,max=20,dive,max=50,excludesall=0x2C"`
}

type DeleteProductRequest struct {
	DeleteRemote bool `json:"delete_remote" query:"delete_remote"`
}

type CartItemRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
	PriceID   uuid.UUID `json:"price_id"   validate:"required"`
	Quantity  int       `json:"quantity"   validate:"gt=0,lte=10000"`
}

type CheckoutRequest struct {
	Items []CartItemRequest `json:"items" validate:"required,min=1,max=100,dive"`
}

type PurchaseRequestCreate struct {
	ProductID uuid.UUID  `json:"product_id" validate:"required"`
	PriceID   *uuid.UUID `json:"price_id"`
	Quantity  int        `json:"quantity"   validate:"omitempty,gt=0,lte=10000"`
}

type MarketplaceRequest struct {
	Name        string `json:"name"        validate:"required,max=100"`
	Description string `json:"description" validate:"max=2000"`
}

type TagRequest struct {
	Name string `json:"name" validate:"required,max=50,excludesall=0x2C"`
}

type ConnectRequest struct {
	Email string `json:"email" validate:"omitempty,email"`
}

type SyncRequest struct {
	ProductID uuid.UUID `json:"product_id" validate:"required"`
}
