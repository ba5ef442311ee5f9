package service

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/Skotchmaster/marketplace/internal/models"
	"github.com/Skotchmaster/marketplace/internal/repo"
	"github.com/google/uuid"
	"gorm.io/gorm"
)

const tagSuggestions = 10

type TagService struct {
	Repo *repo.GormRepo
}

func (s *TagService) Suggest(ctx context.Context, query string) ([]models.Tag, error) {
	return s.Repo.SuggestTags(ctx, strings.TrimSpace(query), tagSuggestions)
}

func (s *TagService) Create(ctx context.Context, actor Actor, name string) (*models.Tag, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, fmt.Errorf("%w: name required", ErrValidation)
	}
	if err := checkTagName(name); err != nil {
		return nil, err
	}
	exists, err := s.Repo.TagExists(ctx, name)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, fmt.Errorf("%w: tag %q exists", ErrConflict, name)
	}

	tag := &models.Tag{ID: uuid.New(), Name: name, CreatedBy: &actor.ID}
	if err := s.Repo.CreateTag(ctx, tag); err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return nil, fmt.Errorf("%w: tag %q exists", ErrConflict, name)
		}
		return nil, err
	}
	return tag, nil
}

func (s *TagService) ForProduct(ctx context.Context, productID uuid.UUID) ([]models.Tag, error) {
	if _, err := s.Repo.GetProduct(ctx, productID); err != nil {
		return nil, notFound(err, "product")
	}
	return s.Repo.ProductTags(ctx, productID)
}

// Tag names travel comma-joined out of the listings query, so a comma inside
// a name would split it in two.
func checkTagName(name string) error {
	if strings.Contains(name, ",") {
		return fmt.Errorf("%w: tag %q must not contain a comma", ErrValidation, name)
	}
	return nil
}
