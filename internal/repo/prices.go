package repo

import (
	"context"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func (r *GormRepo) CreatePrice(ctx context.Context, p *models.Price) error {
	return r.DB.WithContext(ctx).Create(p).Error
}

func (r *GormRepo) GetPrice(ctx context.Context, id uuid.UUID) (*models.Price, error) {
	var p models.Price
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&p).Error; err != nil {
		return nil, err
	}
	return &p, nil
}

func (r *GormRepo) GetPricesByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Price, error) {
	var items []models.Price
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdatePrice writes every mutable column of the price.
func (r *GormRepo) UpdatePrice(ctx context.Context, p *models.Price) error {
	res := r.DB.WithContext(ctx).Model(&models.Price{ID: p.ID}).Updates(map[string]any{
		"stripe_price_id":    p.StripePriceID,
		"unit_amount":        p.UnitAmount,
		"currency":           p.Currency,
		"is_default":         p.IsDefault,
		"payment_style":      p.PaymentStyle,
		"allocated_quantity": p.AllocatedQuantity,
		"marketplace_id":     p.MarketplaceID,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) SetPriceStripeID(ctx context.Context, id uuid.UUID, stripePriceID string) error {
	return r.DB.WithContext(ctx).Model(&models.Price{ID: id}).Update("stripe_price_id", stripePriceID).Error
}

func (r *GormRepo) DeletePrice(ctx context.Context, id uuid.UUID) error {
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.PurchaseRequest{}).Where("price_id = ?", id).Update("price_id", nil).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Price{}).Error
}
