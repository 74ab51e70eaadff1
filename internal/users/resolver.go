package users

import (
	"context"

	"github.com/deckhand/deckhand/backend/auth-service/pkg/logger"
)

// PermissionResolver resolves a subject's permission set from its stored
// roles. It satisfies the auth middleware's resolver contract; a failed
// lookup resolves to no permissions rather than an error, so a Mongo outage
// degrades to 403s instead of 500s.
type PermissionResolver struct {
	svc      *Service
	mappings map[string][]string
}

func NewPermissionResolver(svc *Service, mappings map[string][]string) *PermissionResolver {
	return &PermissionResolver{svc: svc, mappings: mappings}
}

func (r *PermissionResolver) PermissionsFor(ctx context.Context, sub string) []string {
	u, err := r.svc.GetBySubject(ctx, sub)
	if err != nil {
		logger.Warnf("permission lookup failed for sub=%s: %v", sub, err)
		return nil
	}
	if u == nil {
		return nil
	}
	return RolesToPermissions(r.mappings, u.Roles)
}
