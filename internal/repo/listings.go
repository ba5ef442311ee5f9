package repo

import (
	"context"
	"strings"
	"time"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
	"gorm.io/datatypes"
)

// SellerListing is one product of a seller's public page with its most
// recently created price and the names of its tags.
type SellerListing struct {
	ProductID     uuid.UUID                   `json:"product_id"`
	Name          string                      `json:"name"`
	Description   string                      `json:"description"`
	Images        datatypes.JSONSlice[string] `json:"images"`
	TotalQuantity int                         `json:"total_quantity"`
	PriceID       uuid.UUID                   `json:"price_id"`
	UnitAmount    int64                       `json:"unit_amount"`
	Currency      string                      `json:"currency"`
	PaymentStyle  models.PaymentStyle         `json:"payment_style"`
	MarketplaceID *uuid.UUID                  `json:"marketplace_id"`
	PriceCreated  time.Time                   `json:"price_created_at"`
	TagNames      string                      `json:"-"`
	Tags          []string                    `gorm:"-" json:"tags"`
}

const sellerListingsPostgres = `
SELECT DISTINCT ON (p.id)
	p.id AS product_id, p.name, p.description, p.images, p.total_quantity,
	pr.id AS price_id, pr.unit_amount, pr.currency, pr.payment_style, pr.marketplace_id,
	pr.created_at AS price_created,
	COALESCE(t.names, '') AS tag_names
FROM products p
JOIN prices pr ON pr.product_id = p.id
LEFT JOIN (
	SELECT pt.product_id, string_agg(tg.name, ',' ORDER BY tg.name) AS names
	FROM product_tags pt
	JOIN tags tg ON tg.id = pt.tag_id
	GROUP BY pt.product_id
) t ON t.product_id = p.id
WHERE p.seller_id = ?
ORDER BY p.id, pr.created_at DESC`

const sellerListingsPortable = `
SELECT
	p.id AS product_id, p.name, p.description, p.images, p.total_quantity,
	pr.id AS price_id, pr.unit_amount, pr.currency, pr.payment_style, pr.marketplace_id,
	pr.created_at AS price_created,
	COALESCE((
		SELECT group_concat(name, ',') FROM (
			SELECT tg.name FROM product_tags pt JOIN tags tg ON tg.id = pt.tag_id
			WHERE pt.product_id = p.id ORDER BY tg.name
		)
	), '') AS tag_names
FROM products p
JOIN prices pr ON pr.id = (
	SELECT id FROM prices WHERE product_id = p.id ORDER BY created_at DESC, id DESC LIMIT 1
)
WHERE p.seller_id = ?
ORDER BY p.id`

// SellerListings runs a hand-written aggregation below the ORM's relation
// loading. Postgres uses DISTINCT ON; other dialects use a correlated subquery.
func (r *GormRepo) SellerListings(ctx context.Context, sellerID string) ([]SellerListing, error) {
	query := sellerListingsPortable
	if isPostgres(r.DB) {
		query = sellerListingsPostgres
	}

	var rows []SellerListing
	if err := r.DB.WithContext(ctx).Raw(query, sellerID).Scan(&rows).Error; err != nil {
		return nil, err
	}
	for i := range rows {
		rows[i].Tags = splitTags(rows[i].TagNames)
	}
	return rows, nil
}

func splitTags(s string) []string {
	if s == "" {
		return []string{}
	}
	return strings.Split(s, ",")
}
