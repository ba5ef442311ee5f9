package service

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/search"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/idpclient"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/slugs"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Actor is the authenticated caller. Email is the address carried by the
// session, if any.
type Actor struct {
	ID    string
	Email string
}

// EmailLookup resolves a user's primary address at the identity provider.
type EmailLookup interface {
	PrimaryEmail(ctx context.Context, userID string) (string, error)
}

// Compensator retries the undo of a remote side effect whose local
// counterpart failed to persist. Objects it cannot undo are logged as orphaned.
type Compensator struct {
	Attempts int
	Backoff  time.Duration
}

func (c Compensator) Run(ctx context.Context, kind, remoteID string, undo func(ctx context.Context) error) {
	ctx = context.WithoutCancel(ctx)
	attempts := max(c.Attempts, 1)

	var err error
	for i := 1; i <= attempts; i++ {
		if err = undo(ctx); err == nil {
			return
		}
		if i < attempts && c.Backoff > 0 {
			time.Sleep(c.Backoff * time.Duration(i))
		}
	}
	logging.FromContext(ctx).Error("orphaned_remote_object",
		"kind", kind,
		"remote_id", remoteID,
		"attempts", attempts,
		"error", err,
	)
}

// ensureUser returns the local user, creating it on first sight. A known
// email fills in an empty stored one.
func ensureUser(ctx context.Context, r *repo.GormRepo, id, email string) (*models.User, error) {
	u, err := r.GetUser(ctx, id)
	if err == nil {
		if u.Email == "" && email != "" {
			if err := r.SetUserEmail(ctx, id, email); err != nil {
				return nil, err
			}
			u.Email = email
		}
		return u, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}

	slug, err := slugs.Unique(ctx, slugs.ForUser(id), r.UserSlugExists)
	if err != nil {
		return nil, err
	}
	u = &models.User{ID: id, Email: email, Slug: &slug}
	if _, err := r.CreateUserIfNotExists(ctx, u); err != nil {
		return nil, err
	}
	return r.GetUser(ctx, id)
}

// resolveEmail tries the hint, then the stored user, then the identity
// provider. A found address is written back to the user row.
func resolveEmail(ctx context.Context, r *repo.GormRepo, lookup EmailLookup, userID, hint string) (string, error) {
	if hint = strings.TrimSpace(hint); hint != "" {
		return hint, nil
	}
	u, err := r.GetUser(ctx, userID)
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		return "", err
	}
	if u != nil && u.Email != "" {
		return u.Email, nil
	}
	if lookup == nil {
		return "", ErrMissingEmail
	}

	email, err := lookup.PrimaryEmail(ctx, userID)
	switch {
	case errors.Is(err, idpclient.ErrUserNotFound):
		return "", ErrMissingEmail
	case err != nil:
		logging.FromContext(ctx).Warn("email_lookup_failed", "user_id", userID, "error", err)
		return "", ErrMissingEmail
	case email == "":
		return "", ErrMissingEmail
	}
	if u != nil {
		if err := r.SetUserEmail(ctx, userID, email); err != nil {
			logging.FromContext(ctx).Warn("store_email_failed", "user_id", userID, "error", err)
		}
	}
	return email, nil
}

// platformFee is percent of amount in minor units, rounded half away from zero.
func platformFee(amount, percent int64) int64 {
	return decimal.NewFromInt(amount).
		Mul(decimal.NewFromInt(percent)).
		Div(decimal.NewFromInt(100)).
		Round(0).
		IntPart()
}

func publish(ctx context.Context, p events.Publisher, topic, key string, event any) {
	if p == nil {
		return
	}
	if err := p.PublishEvent(ctx, topic, key, event); err != nil {
		logging.FromContext(ctx).Warn("publish_event_failed", "topic", topic, "key", key, "error", err)
	}
}

func index(ctx context.Context, ix search.Indexer, p *models.Product) {
	if ix == nil || p == nil {
		return
	}
	if err := ix.IndexProduct(ctx, search.DocumentFrom(p)); err != nil {
		logging.FromContext(ctx).Warn("index_product_failed", "product_id", p.ID, "error", err)
	}
}

func unindex(ctx context.Context, ix search.Indexer, id uuid.UUID) {
	if ix == nil {
		return
	}
	if err := ix.DeleteProduct(ctx, id); err != nil {
		logging.FromContext(ctx).Warn("unindex_product_failed", "product_id", id, "error", err)
	}
}
