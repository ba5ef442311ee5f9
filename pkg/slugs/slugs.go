package slugs

import (
	"context"
	"fmt"
	"strings"

	"github.com/gosimple/slug"
)

// ExistsFunc reports whether a slug is already taken.
type ExistsFunc func(ctx context.Context, candidate string) (bool, error)

const maxAttempts = 1000

// FromName lowercases the name and joins words with dashes.
func FromName(name string) string {
	return slug.Make(strings.TrimSpace(name))
}

// ForUser derives the base slug of a user from its identity-provider id.
func ForUser(userID string) string {
	base := userID
	if len(base) > 5 {
		base = base[:5]
	}
	return "user-" + strings.ToLower(base)
}

// Unique returns base if it is free, otherwise base-1, base-2, ...
func Unique(ctx context.Context, base string, exists ExistsFunc) (string, error) {
	if base == "" {
		return "", fmt.Errorf("empty slug")
	}
	candidate := base
	for i := 1; i <= maxAttempts; i++ {
		taken, err := exists(ctx, candidate)
		if err != nil {
			return "", err
		}
		if !taken {
			return candidate, nil
		}
		candidate = fmt.Sprintf("%s-%d", base, i)
	}
	return "", fmt.Errorf("no free slug for %q after %d attempts", base, maxAttempts)
}
