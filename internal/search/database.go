package search

import (
	"context"

	"github.com/Skotchmaster/marketplace/internal/repo"
)

// Database searches the product table directly. Used when no Elasticsearch
// endpoint is configured.
type Database struct {
	Repo *repo.GormRepo
}

func (d *Database) Search(ctx context.Context, query string, from, size int) (int64, []Document, error) {
	total, items, err := d.Repo.SearchProducts(ctx, query, from, size)
	if err != nil {
		return 0, nil, err
	}
	docs := make([]Document, 0, len(items))
	for i := range items {
		docs = append(docs, DocumentFrom(&items[i]))
	}
	return total, docs, nil
}
