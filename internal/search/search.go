package search

import (
	"context"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/google/uuid"
)

// Document is what gets indexed for a product.
type Document struct {
	ID          uuid.UUID `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Images      []string  `json:"images"`
	SellerID    string    `json:"seller_id"`
	Tags        []string  `json:"tags"`
	Synced      bool      `json:"synced"`
}

func DocumentFrom(p *models.Product) Document {
	tags := make([]string, 0, len(p.Tags))
	for _, t := range p.Tags {
		tags = append(tags, t.Name)
	}
	return Document{
		ID:          p.ID,
		Name:        p.Name,
		Description: p.Description,
		Images:      []string(p.Images),
		SellerID:    p.SellerID,
		Tags:        tags,
		Synced:      p.Synced(),
	}
}

type Indexer interface {
	IndexProduct(ctx context.Context, doc Document) error
	DeleteProduct(ctx context.Context, id uuid.UUID) error
}

type Searcher interface {
	Search(ctx context.Context, query string, from, size int) (int64, []Document, error)
}

type Noop struct{}

func (Noop) IndexProduct(context.Context, Document) error  { return nil }
func (Noop) DeleteProduct(context.Context, uuid.UUID) error { return nil }
