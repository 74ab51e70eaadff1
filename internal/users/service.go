package users

import (
	"context"
	"time"

	"github.com/deckhand/deckhand/backend/auth-service/internal/models"
	"github.com/deckhand/deckhand/backend/auth-service/internal/oauth"
)

// Service is the identity resolver: it maps provider profiles and guild roles
// onto local user records.
type Service struct {
	repo UserRepository
}

func NewService(r UserRepository) *Service {
	return &Service{repo: r}
}

// ResolveOrCreate upserts a user from a Discord profile. An existing record
// gets its display fields, roles and last_login refreshed; an absent one is
// created. "Not found" is never a failure path here.
func (s *Service) ResolveOrCreate(ctx context.Context, p *oauth.Profile, roles []string) (*models.User, error) {
	u := &models.User{
		UserID:     p.ID,
		Username:   p.Username,
		GlobalName: p.GlobalName,
		AvatarHash: p.Avatar,
		Roles:      roles,
		IsAdmin:    containsRole(roles, "admin"),
		LastLogin:  time.Now().UTC(),
	}
	return s.repo.UpsertBySubject(ctx, u)
}

func (s *Service) GetBySubject(ctx context.Context, sub string) (*models.User, error) {
	return s.repo.GetBySubject(ctx, sub)
}

func containsRole(roles []string, want string) bool {
	for _, r := range roles {
		if r == want {
			return true
		}
	}
	return false
}
