package repo

import (
	"context"
	"strings"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
)

func (r *GormRepo) SuggestTags(ctx context.Context, q string, limit int) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.DB.WithContext(ctx).
		Where("LOWER(name) LIKE ?", "%"+strings.ToLower(q)+"%").
		Order("name ASC").
		Limit(limit).
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}

func (r *GormRepo) TagExists(ctx context.Context, name string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.Tag{}).Where("name = ?", name).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormRepo) CreateTag(ctx context.Context, t *models.Tag) error {
	return r.DB.WithContext(ctx).Create(t).Error
}

// EnsureTags returns the tags with the given names, creating the missing ones.
func (r *GormRepo) EnsureTags(ctx context.Context, names []string, createdBy string) ([]models.Tag, error) {
	out := make([]models.Tag, 0, len(names))
	for _, name := range names {
		tag := models.Tag{Name: name, CreatedBy: &createdBy}
		if err := r.DB.WithContext(ctx).Where("name = ?", name).FirstOrCreate(&tag).Error; err != nil {
			return nil, err
		}
		out = append(out, tag)
	}
	return out, nil
}

// SetProductTags replaces the product's tag associations.
func (r *GormRepo) SetProductTags(ctx context.Context, productID uuid.UUID, tagIDs []uuid.UUID) error {
	db := r.DB.WithContext(ctx)
	if err := db.Where("product_id = ?", productID).Delete(&models.ProductTag{}).Error; err != nil {
		return err
	}
	if len(tagIDs) == 0 {
		return nil
	}
	links := make([]models.ProductTag, 0, len(tagIDs))
	for _, id := range tagIDs {
		links = append(links, models.ProductTag{ProductID: productID, TagID: id})
	}
	return db.Create(&links).Error
}

func (r *GormRepo) ProductTags(ctx context.Context, productID uuid.UUID) ([]models.Tag, error) {
	var tags []models.Tag
	if err := r.DB.WithContext(ctx).
		Joins("JOIN product_tags ON product_tags.tag_id = tags.id").
		Where("product_tags.product_id = ?", productID).
		Order("tags.name ASC").
		Find(&tags).Error; err != nil {
		return nil, err
	}
	return tags, nil
}
