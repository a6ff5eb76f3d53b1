package authz

import (
	"context"
	"log/slog"

	"github.com/trufflehub/farm-management/internal"
)

// GrantReader answers whether any of the given roles carries an active grant
// for the triple.
type GrantReader interface {
	RolesHaveActiveGrant(ctx context.Context, roleIDs []int64, namespace, controller, action string) (bool, error)
}

// MembershipReader answers whether a user belongs to a tenant.
type MembershipReader interface {
	IsMember(ctx context.Context, userID, tenantID int64) (bool, error)
}

// Service is the authorization decision function. Authorize never returns an
// error: resolution failures and unknown triples both come back as deny.
type Service struct {
	grants      GrantReader
	memberships MembershipReader
	cache       *Cache
	logger      *slog.Logger
}

func NewService(grants GrantReader, memberships MembershipReader, cache *Cache, logger *slog.Logger) *Service {
	return &Service{
		grants:      grants,
		memberships: memberships,
		cache:       cache,
		logger:      logger,
	}
}

// Authorize decides whether the actor may execute the triple, optionally
// scoped to a tenant (tenantID zero means unscoped). Admins bypass every
// check. Decisions for non-admins are cached per (user, route[, tenant]);
// admin results are not cached since they never consult the store.
func (s *Service) Authorize(ctx context.Context, actor *internal.Actor, namespace, controller, action string, tenantID int64) bool {
	if actor == nil {
		return false
	}
	if actor.IsAdmin {
		return true
	}

	if allowed, ok := s.cache.Get(actor.UserID, namespace, controller, action, tenantID); ok {
		return allowed
	}

	allowed := s.resolve(ctx, actor, namespace, controller, action, tenantID)
	s.cache.Set(actor.UserID, namespace, controller, action, tenantID, allowed)
	return allowed
}

func (s *Service) resolve(ctx context.Context, actor *internal.Actor, namespace, controller, action string, tenantID int64) bool {
	granted, err := s.grants.RolesHaveActiveGrant(ctx, actor.RoleIDs, namespace, controller, action)
	if err != nil {
		s.logger.Error("grant resolution failed, denying",
			"error", err,
			"user_id", actor.UserID,
			"namespace", namespace,
			"controller", controller,
			"action", action)
		return false
	}
	if !granted {
		return false
	}

	if tenantID != 0 {
		member, err := s.memberships.IsMember(ctx, actor.UserID, tenantID)
		if err != nil {
			s.logger.Error("membership resolution failed, denying",
				"error", err, "user_id", actor.UserID, "tenant_id", tenantID)
			return false
		}
		if !member {
			return false
		}
	}

	return true
}

// Cache exposes the decision cache so permission mutations can invalidate it.
func (s *Service) Cache() *Cache {
	return s.cache
}
