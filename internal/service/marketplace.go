package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/Skotchmaster/marketplace/internal/transport"
	"github.com/Skotchmaster/marketplace/pkg/events"
	"github.com/Skotchmaster/marketplace/pkg/logging"
	"github.com/Skotchmaster/marketplace/pkg/slugs"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

type MarketplaceService struct {
	Repo   *repo.GormRepo
	Events events.Publisher
}

// slugAttempts bounds retries when a concurrent create takes the chosen slug.
const slugAttempts = 3

func (s *MarketplaceService) Create(ctx context.Context, actor Actor, req transport.MarketplaceRequest) (*models.Marketplace, error) {
	name := strings.TrimSpace(req.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	base := slugs.FromName(name)
	if base == "" {
		return nil, fmt.Errorf("%w: name has no usable characters", ErrValidation)
	}
	if _, err := ensureUser(ctx, s.Repo, actor.ID, actor.Email); err != nil {
		return nil, err
	}

	var m *models.Marketplace
	for attempt := 0; attempt < slugAttempts; attempt++ {
		slug, err := slugs.Unique(ctx, base, s.Repo.MarketplaceSlugExists)
		if err != nil {
			return nil, err
		}
		m = &models.Marketplace{
			ID:          uuid.New(),
			Name:        name,
			Slug:        slug,
			Description: strings.TrimSpace(req.Description),
		}
		err = s.Repo.CreateMarketplace(ctx, m, actor.ID)
		if err == nil {
			break
		}
		if !errors.Is(err, gorm.ErrDuplicatedKey) || attempt == slugAttempts-1 {
			return nil, err
		}
		m = nil
	}

	publish(ctx, s.Events, events.TopicMarketplaces, m.ID.String(), MarketplaceEvent{
		Type:          EventMarketplaceNew,
		MarketplaceID: m.ID,
		UserID:        actor.ID,
		OccurredAt:    time.Now().UTC(),
	})
	logging.FromContext(ctx).Info("marketplace_created", "marketplace_id", m.ID, "slug", m.Slug, "owner_id", actor.ID)
	return m, nil
}

// ListForUser returns the marketplaces the user owns or has joined.
func (s *MarketplaceService) ListForUser(ctx context.Context, userID string) ([]models.Marketplace, error) {
	return s.Repo.ListMarketplacesForUser(ctx, userID)
}

// PublicMarketplace is the marketplace as visitors see it. Owners and members
// carry no contact or payout details.
type PublicMarketplace struct {
	ID          uuid.UUID    `json:"id"`
	Name        string       `json:"name"`
	Slug        string       `json:"slug"`
	Description string       `json:"description"`
	Owners      []PublicUser `json:"owners"`
	Members     []PublicUser `json:"members"`
	CreatedAt   time.Time    `json:"created_at"`
}

type MarketplaceDetail struct {
	Marketplace PublicMarketplace         `json:"marketplace"`
	Listings    []repo.MarketplaceListing `json:"listings"`
}

func (s *MarketplaceService) GetBySlug(ctx context.Context, slug string) (*MarketplaceDetail, error) {
	m, err := s.Repo.GetMarketplaceBySlug(ctx, slug)
	if err != nil {
		return nil, notFound(err, "marketplace")
	}
	listings, err := s.Repo.MarketplaceListings(ctx, m.ID)
	if err != nil {
		return nil, err
	}
	return &MarketplaceDetail{
		Marketplace: PublicMarketplace{
			ID:          m.ID,
			Name:        m.Name,
			Slug:        m.Slug,
			Description: m.Description,
			Owners:      publicUsers(m.Owners),
			Members:     publicUsers(m.Members),
			CreatedAt:   m.CreatedAt,
		},
		Listings: listings,
	}, nil
}

func publicUsers(users []models.User) []PublicUser {
	out := make([]PublicUser, 0, len(users))
	for i := range users {
		out = append(out, publicUser(&users[i]))
	}
	return out
}

func (s *MarketplaceService) Join(ctx context.Context, actor Actor, id uuid.UUID) error {
	if _, err := s.Repo.GetMarketplace(ctx, id); err != nil {
		return notFound(err, "marketplace")
	}
	if _, err := ensureUser(ctx, s.Repo, actor.ID, actor.Email); err != nil {
		return err
	}
	owner, err := s.Repo.IsMarketplaceOwner(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	member, err := s.Repo.IsMarketplaceMember(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if owner || member {
		return fmt.Errorf("%w: already a member", ErrConflict)
	}
	if err := s.Repo.AddMarketplaceMember(ctx, id, actor.ID); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return fmt.Errorf("%w: already a member", ErrConflict)
		}
		return err
	}

	publish(ctx, s.Events, events.TopicMarketplaces, id.String(), MarketplaceEvent{
		Type:          EventMemberJoined,
		MarketplaceID: id,
		UserID:        actor.ID,
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}

// Leave removes a member. Owners cannot leave their marketplace.
func (s *MarketplaceService) Leave(ctx context.Context, actor Actor, id uuid.UUID) error {
	if _, err := s.Repo.GetMarketplace(ctx, id); err != nil {
		return notFound(err, "marketplace")
	}
	owner, err := s.Repo.IsMarketplaceOwner(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if owner {
		return fmt.Errorf("%w: owners cannot leave", ErrForbidden)
	}
	removed, err := s.Repo.RemoveMarketplaceMember(ctx, id, actor.ID)
	if err != nil {
		return err
	}
	if !removed {
		return fmt.Errorf("%w: not a member", ErrConflict)
	}

	publish(ctx, s.Events, events.TopicMarketplaces, id.String(), MarketplaceEvent{
		Type:          EventMemberLeft,
		MarketplaceID: id,
		UserID:        actor.ID,
		OccurredAt:    time.Now().UTC(),
	})
	return nil
}
