package repo

import (
	"context"
	"errors"

	"github.com/Skotchmaster/marketplace/internal/models"
	"gorm.io/gorm"
)

func (r *GormRepo) GetUser(ctx context.Context, id string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("id = ?", id).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUserBySlug(ctx context.Context, slug string) (*models.User, error) {
	var user models.User
	if err := r.DB.WithContext(ctx).Where("slug = ?", slug).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

func (r *GormRepo) GetUsersByIDs(ctx context.Context, ids []string) ([]models.User, error) {
	var users []models.User
	if len(ids) == 0 {
		return users, nil
	}
	if err := r.DB.WithContext(ctx).Where("id IN ?", ids).Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// CreateUserIfNotExists reports whether a new row was inserted.
func (r *GormRepo) CreateUserIfNotExists(ctx context.Context, u *models.User) (bool, error) {
	tx := r.DB.WithContext(ctx).Where("id = ?", u.ID).FirstOrCreate(u)
	if tx.Error != nil {
		return false, tx.Error
	}
	return tx.RowsAffected > 0, nil
}

func (r *GormRepo) SetUserEmail(ctx context.Context, id, email string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("email", email).Error
}

func (r *GormRepo) SetUserSlug(ctx context.Context, id, slug string) error {
	return r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Update("slug", slug).Error
}

// SetStripeAccount stores (or clears, when account is nil) the connected
// account together with the role that goes with it.
func (r *GormRepo) SetStripeAccount(ctx context.Context, id string, account *string, role string) error {
	res := r.DB.WithContext(ctx).Model(&models.User{}).Where("id = ?", id).Updates(map[string]any{
		"stripe_account_id": account,
		"role":              role,
	})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return gorm.ErrRecordNotFound
	}
	return nil
}

func (r *GormRepo) UserSlugExists(ctx context.Context, slug string) (bool, error) {
	var n int64
	if err := r.DB.WithContext(ctx).Model(&models.User{}).Where("slug = ?", slug).Count(&n).Error; err != nil {
		return false, err
	}
	return n > 0, nil
}

func (r *GormRepo) UsersWithoutSlug(ctx context.Context) ([]models.User, error) {
	var users []models.User
	if err := r.DB.WithContext(ctx).Where("slug IS NULL OR slug = ''").Order("created_at ASC").Find(&users).Error; err != nil {
		return nil, err
	}
	return users, nil
}

// DeleteUser removes the user with its memberships and listings. Purchase
// requests are kept for the other party and lose their product references.
func (r *GormRepo) DeleteUser(ctx context.Context, id string) (bool, error) {
	deleted := false
	err := r.Transaction(ctx, func(tx *GormRepo) error {
		if _, err := tx.GetUser(ctx, id); err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return nil
			}
			return err
		}

		db := tx.DB.WithContext(ctx)
		if err := db.Exec("DELETE FROM marketplace_owners WHERE user_id = ?", id).Error; err != nil {
			return err
		}
		if err := db.Exec("DELETE FROM marketplace_members WHERE user_id = ?", id).Error; err != nil {
			return err
		}

		var products []models.Product
		if err := db.Select("id").Where("seller_id = ?", id).Find(&products).Error; err != nil {
			return err
		}
		for i := range products {
			if err := tx.deleteProductRows(ctx, products[i].ID); err != nil {
				return err
			}
		}

		if err := db.Where("id = ?", id).Delete(&models.User{}).Error; err != nil {
			return err
		}
		deleted = true
		return nil
	})
	return deleted, err
}
