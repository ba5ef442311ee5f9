package repo

import (
	"context"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
)

func (r *GormRepo) CreatePurchaseRequests(ctx context.Context, reqs []models.PurchaseRequest) error {
	if len(reqs) == 0 {
		return nil
	}
	return r.DB.WithContext(ctx).Create(&reqs).Error
}

func (r *GormRepo) GetPurchaseRequest(ctx context.Context, id uuid.UUID) (*models.PurchaseRequest, error) {
	var pr models.PurchaseRequest
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&pr).Error; err != nil {
		return nil, err
	}
	return &pr, nil
}

// TransitionPurchaseRequest moves the request from -> to only if it is still
// in from. A lost race returns ErrStatusChanged.
func (r *GormRepo) TransitionPurchaseRequest(ctx context.Context, id uuid.UUID, from, to models.RequestStatus) error {
	res := r.DB.WithContext(ctx).
		Model(&models.PurchaseRequest{}).
		Where("id = ? AND status = ?", id, from).
		Update("status", to)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrStatusChanged
	}
	return nil
}

func (r *GormRepo) SetPurchaseRequestSession(ctx context.Context, id uuid.UUID, sessionID string) error {
	return r.DB.WithContext(ctx).
		Model(&models.PurchaseRequest{}).
		Where("id = ?", id).
		Update("checkout_session_id", sessionID).Error
}

func (r *GormRepo) ListPurchaseRequestsBySeller(ctx context.Context, sellerID string) ([]models.PurchaseRequest, error) {
	return r.listPurchaseRequests(ctx, "seller_id", sellerID)
}

func (r *GormRepo) ListPurchaseRequestsByBuyer(ctx context.Context, buyerID string) ([]models.PurchaseRequest, error) {
	return r.listPurchaseRequests(ctx, "buyer_id", buyerID)
}

func (r *GormRepo) listPurchaseRequests(ctx context.Context, column, userID string) ([]models.PurchaseRequest, error) {
	var items []models.PurchaseRequest
	if err := r.DB.WithContext(ctx).
		Where(map[string]any{column: userID}).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}
