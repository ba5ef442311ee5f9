package repo

import (
	"context"
	"strings"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

func withPrices(db *gorm.DB) *gorm.DB {
	return db.Order("created_at ASC, id ASC")
}

// CreateProduct inserts the product together with its prices.
func (r *GormRepo) CreateProduct(ctx context.Context, prod *models.Product) error {
	return r.DB.WithContext(ctx).Omit("Tags").Create(prod).Error
}

func (r *GormRepo) GetProduct(ctx context.Context, id uuid.UUID) (*models.Product, error) {
	var product models.Product
	if err := r.DB.WithContext(ctx).
		Preload("Prices", withPrices).
		Preload("Tags").
		Where("id = ?", id).
		First(&product).Error; err != nil {
		return nil, err
	}
	return &product, nil
}

func (r *GormRepo) GetProductsByIDs(ctx context.Context, ids []uuid.UUID) ([]models.Product, error) {
	var items []models.Product
	if len(ids) == 0 {
		return items, nil
	}
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) ListProductsBySeller(ctx context.Context, sellerID string) ([]models.Product, error) {
	var items []models.Product
	if err := r.DB.WithContext(ctx).
		Preload("Prices", withPrices).
		Preload("Tags").
		Where("seller_id = ?", sellerID).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

// UpdateProductFields writes the product's own columns, not its prices.
func (r *GormRepo) UpdateProductFields(ctx context.Context, prod *models.Product) error {
	res := r.DB.WithContext(ctx).Model(&models.Product{ID: prod.ID}).Updates(map[string]any{
		"name":           prod.Name,
		"description":    prod.Description,
		"images":         prod.Images,
		"total_quantity": prod.TotalQuantity,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) SetProductStripeID(ctx context.Context, id uuid.UUID, stripeProductID *string) error {
	return r.DB.WithContext(ctx).Model(&models.Product{ID: id}).Update("stripe_product_id", stripeProductID).Error
}

func (r *GormRepo) DeleteProduct(ctx context.Context, id uuid.UUID) error {
	return r.Transaction(ctx, func(tx *GormRepo) error {
		var n int64
		if err := tx.DB.WithContext(ctx).Model(&models.Product{}).Where("id = ?", id).Count(&n).Error; err != nil {
			return err
		}
		if n == 0 {
			return gorm.ErrRecordNotFound
		}
		return tx.deleteProductRows(ctx, id)
	})
}

// deleteProductRows must run inside a transaction.
func (r *GormRepo) deleteProductRows(ctx context.Context, id uuid.UUID) error {
	db := r.DB.WithContext(ctx)
	if err := db.Model(&models.PurchaseRequest{}).
		Where("product_id = ?", id).
		Updates(map[string]any{"product_id": nil, "price_id": nil}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id = ?", id).Delete(&models.ProductTag{}).Error; err != nil {
		return err
	}
	if err := db.Where("product_id = ?", id).Delete(&models.Price{}).Error; err != nil {
		return err
	}
	return db.Where("id = ?", id).Delete(&models.Product{}).Error
}

// SearchProducts is the database search used when no search index is configured.
func (r *GormRepo) SearchProducts(ctx context.Context, q string, offset, limit int) (int64, []models.Product, error) {
	pattern := "%" + strings.ToLower(strings.TrimSpace(q)) + "%"
	where := "LOWER(name) LIKE ? OR LOWER(description) LIKE ?"

	var total int64
	if err := r.DB.WithContext(ctx).Model(&models.Product{}).Where(where, pattern, pattern).Count(&total).Error; err != nil {
		return 0, nil, err
	}

	items := make([]models.Product, 0, limit)
	if err := r.DB.WithContext(ctx).
		Preload("Prices", withPrices).
		Where(where, pattern, pattern).
		Order("created_at DESC").
		Offset(offset).
		Limit(limit).
		Find(&items).Error; err != nil {
		return 0, nil, err
	}
	return total, items, nil
}
