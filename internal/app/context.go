package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"crisisline/internal/config"
	"crisisline/internal/domain"
	"crisisline/internal/repo"
)

// ResolveUserAndConfig loads the workspace config and ensures the acting
// user exists in the database, seeding a local account on first use so
// CLI commands work without going through register.
func ResolveUserAndConfig(ctx context.Context, workspace, userID string, r repo.Repo) (string, *config.Config, error) {
	if userID == "" {
		userID = "local-user"
	}
	cfg, err := config.Load(workspace)
	if err != nil {
		return "", nil, err
	}
	if _, err := r.GetUser(ctx, userID); err != nil {
		if !errors.Is(err, repo.ErrNotFound) {
			return "", nil, err
		}
		now := time.Now().UTC().Format(time.RFC3339)
		u := domain.User{
			ID:        userID,
			Email:     userID + "@local",
			FullName:  userID,
			CreatedAt: now,
		}
		if err := r.InsertUser(ctx, u); err != nil {
			return "", nil, fmt.Errorf("seed user %s: %w", userID, err)
		}
	}
	return userID, cfg, nil
}
