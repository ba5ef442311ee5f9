package service

import (
	"time"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
)

const (
	EventProductCreated  = "product_created"
	EventProductUpdated  = "product_updated"
	EventProductDeleted  = "product_deleted"
	EventProductSynced   = "product_synced"
	EventMarketplaceNew  = "marketplace_created"
	EventMemberJoined    = "marketplace_member_joined"
	EventMemberLeft      = "marketplace_member_left"
	EventRequestCreated  = "purchase_request_created"
	EventRequestApproved = "purchase_request_approved"
	EventRequestRejected = "purchase_request_rejected"
	EventUserCreated     = "user_created"
	EventUserDeleted     = "user_deleted"
	EventUserConnected   = "user_connected"
)

type ProductEvent struct {
	Type       string    `json:"type"`
	ProductID  uuid.UUID `json:"product_id"`
	SellerID   string    `json:"seller_id"`
	Name       string    `json:"name,omitempty"`
	Synced     bool      `json:"synced"`
	OccurredAt time.Time `json:"occurred_at"`
}

func productEvent(typ string, p *models.Product) ProductEvent {
	return ProductEvent{
		Type:       typ,
		ProductID:  p.ID,
		SellerID:   p.SellerID,
		Name:       p.Name,
		Synced:     p.Synced(),
		OccurredAt: time.Now().UTC(),
	}
}

type MarketplaceEvent struct {
	Type          string    `json:"type"`
	MarketplaceID uuid.UUID `json:"marketplace_id"`
	UserID        string    `json:"user_id"`
	OccurredAt    time.Time `json:"occurred_at"`
}

type PurchaseRequestEvent struct {
	Type       string               `json:"type"`
	RequestID  uuid.UUID            `json:"request_id"`
	BuyerID    string               `json:"buyer_id"`
	SellerID   string               `json:"seller_id"`
	Status     models.RequestStatus `json:"status"`
	OccurredAt time.Time            `json:"occurred_at"`
}

func requestEvent(typ string, pr *models.PurchaseRequest) PurchaseRequestEvent {
	return PurchaseRequestEvent{
		Type:       typ,
		RequestID:  pr.ID,
		BuyerID:    pr.BuyerID,
		SellerID:   pr.SellerID,
		Status:     pr.Status,
		OccurredAt: time.Now().UTC(),
	}
}

type UserEvent struct {
	Type       string    `json:"type"`
	UserID     string    `json:"user_id"`
	OccurredAt time.Time `json:"occurred_at"`
}
