package repo

import (
	"context"
	"errors"

	"github.com/Skotchmaster/marketplace/internal/models"
	"gorm.io/gorm"
)

var ErrStatusChanged = errors.New("status changed concurrently")

type GormRepo struct {
	DB *gorm.DB
}

// Transaction runs fn against a repo bound to a single database transaction.
func (r *GormRepo) Transaction(ctx context.Context, fn func(tx *GormRepo) error) error {
	return r.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(&GormRepo{DB: tx})
	})
}

func Migrate(db *gorm.DB) error {
	if err := db.SetupJoinTable(&models.Product{}, "Tags", &models.ProductTag{}); err != nil {
		return err
	}
	return db.AutoMigrate(
		&models.User{},
		&models.Marketplace{},
		&models.Product{},
		&models.Price{},
		&models.Tag{},
		&models.ProductTag{},
		&models.PurchaseRequest{},
	)
}

func isPostgres(db *gorm.DB) bool {
	return db.Dialector.Name() == "postgres"
}
