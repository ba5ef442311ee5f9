package repo

import (
	"context"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

func (r *GormRepo) MarketplaceSlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Marketplace{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

// CreateMarketplace inserts the marketplace and makes ownerID both owner and member.
func (r *GormRepo) CreateMarketplace(ctx context.Context, m *models.Marketplace, ownerID string) error {
	return r.Transaction(ctx, func(tx *GormRepo) error {
		db := tx.DB.WithContext(ctx)
		if err := db.Omit(clause.Associations).Create(m).Error; err != nil {
			return err
		}
		if err := db.Exec("INSERT INTO marketplace_owners (marketplace_id, user_id) VALUES (?, ?)", m.ID, ownerID).Error; err != nil {
			return err
		}
		return db.Exec("INSERT INTO marketplace_members (marketplace_id, user_id) VALUES (?, ?)", m.ID, ownerID).Error
	})
}

func (r *GormRepo) GetMarketplace(ctx context.Context, id uuid.UUID) (*models.Marketplace, error) {
	var m models.Marketplace
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *GormRepo) GetMarketplaceBySlug(ctx context.Context, slug string) (*models.Marketplace, error) {
	var m models.Marketplace
	if err := r.DB.WithContext(ctx).
		Preload("Owners").
		Preload("Members").
		Where("slug = ?", slug).
		First(&m).Error; err != nil {
		return nil, err
	}
	return &m, nil
}

func (r *GormRepo) ownedBy(userID string) *gorm.DB {
	return r.DB.Table("marketplace_owners").Select("marketplace_id").Where("user_id = ?", userID)
}

func (r *GormRepo) joinedBy(userID string) *gorm.DB {
	return r.DB.Table("marketplace_members").Select("marketplace_id").Where("user_id = ?", userID)
}

func (r *GormRepo) ListMarketplacesForUser(ctx context.Context, userID string) ([]models.Marketplace, error) {
	var items []models.Marketplace
	if err := r.DB.WithContext(ctx).
		Where("id IN (?) OR id IN (?)", r.ownedBy(userID), r.joinedBy(userID)).
		Order("created_at DESC").
		Find(&items).Error; err != nil {
		return nil, err
	}
	return items, nil
}

func (r *GormRepo) CountMarketplaces(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	if len(ids) == 0 {
		return 0, nil
	}
	err := r.DB.WithContext(ctx).Model(&models.Marketplace{}).Where("id IN ?", ids).Count(&n).Error
	return n, err
}

// CountAccessibleMarketplaces counts the ids the user owns or is a member of.
func (r *GormRepo) CountAccessibleMarketplaces(ctx context.Context, userID string, ids []uuid.UUID) (int64, error) {
	var n int64
	if len(ids) == 0 {
		return 0, nil
	}
	err := r.DB.WithContext(ctx).
		Model(&models.Marketplace{}).
		Where("id IN ?", ids).
		Where("id IN (?) OR id IN (?)", r.ownedBy(userID), r.joinedBy(userID)).
		Count(&n).Error
	return n, err
}

func (r *GormRepo) IsMarketplaceOwner(ctx context.Context, marketplaceID uuid.UUID, userID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Table("marketplace_owners").
		Where("marketplace_id = ? AND user_id = ?", marketplaceID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) IsMarketplaceMember(ctx context.Context, marketplaceID uuid.UUID, userID string) (bool, error) {
	var n int64
	err := r.DB.WithContext(ctx).Table("marketplace_members").
		Where("marketplace_id = ? AND user_id = ?", marketplaceID, userID).
		Count(&n).Error
	return n > 0, err
}

func (r *GormRepo) AddMarketplaceMember(ctx context.Context, marketplaceID uuid.UUID, userID string) error {
	return r.DB.WithContext(ctx).
		Exec("INSERT INTO marketplace_members (marketplace_id, user_id) VALUES (?, ?)", marketplaceID, userID).Error
}

func (r *GormRepo) RemoveMarketplaceMember(ctx context.Context, marketplaceID uuid.UUID, userID string) (bool, error) {
	res := r.DB.WithContext(ctx).
		Exec("DELETE FROM marketplace_members WHERE marketplace_id = ? AND user_id = ?", marketplaceID, userID)
	return res.RowsAffected > 0, res.Error
}

// MarketplaceListing is a marketplace-scoped price with its product.
type MarketplaceListing struct {
	Price   models.Price   `json:"price"`
	Product models.Product `json:"product"`
}

func (r *GormRepo) MarketplaceListings(ctx context.Context, marketplaceID uuid.UUID) ([]MarketplaceListing, error) {
	var prices []models.Price
	if err := r.DB.WithContext(ctx).
		Where("marketplace_id = ?", marketplaceID).
		Order("created_at DESC").
		Find(&prices).Error; err != nil {
		return nil, err
	}
	if len(prices) == 0 {
		return []MarketplaceListing{}, nil
	}

	ids := make([]uuid.UUID, 0, len(prices))
	for _, p := range prices {
		ids = append(ids, p.ProductID)
	}
	products, err := r.GetProductsByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	byID := make(map[uuid.UUID]models.Product, len(products))
	for _, p := range products {
		byID[p.ID] = p
	}

	out := make([]MarketplaceListing, 0, len(prices))
	for _, price := range prices {
		prod, ok := byID[price.ProductID]
		if !ok {
			continue
		}
		out = append(out, MarketplaceListing{Price: price, Product: prod})
	}
	return out, nil
}
