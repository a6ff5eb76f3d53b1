package authz

import (
	"context"
	"errors"
	"log/slog"
	"testing"
	"time"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/trufflehub/farm-management/internal"
)

func TestAuthz(t *testing.T) {
	gomega.RegisterFailHandler(ginkgo.Fail)
	ginkgo.RunSpecs(t, "Authz Module Suite")
}

// Mock GrantReader for testing
type mockGrantReader struct {
	grants map[string]bool // route -> granted
	calls  int
	err    error
}

func (m *mockGrantReader) RolesHaveActiveGrant(ctx context.Context, roleIDs []int64, namespace, controller, action string) (bool, error) {
	m.calls++
	if m.err != nil {
		return false, m.err
	}
	if len(roleIDs) == 0 {
		return false, nil
	}
	return m.grants[namespace+"/"+controller+"#"+action], nil
}

// Mock MembershipReader for testing
type mockMembershipReader struct {
	members map[int64]map[int64]bool // userID -> tenantID -> member
	err     error
}

func (m *mockMembershipReader) IsMember(ctx context.Context, userID, tenantID int64) (bool, error) {
	if m.err != nil {
		return false, m.err
	}
	return m.members[userID][tenantID], nil
}

var _ = ginkgo.Describe("AuthzService", func() {
	var (
		service     *Service
		grants      *mockGrantReader
		memberships *mockMembershipReader
		cache       *Cache
		ctx         context.Context
		actor       *internal.Actor
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		grants = &mockGrantReader{grants: map[string]bool{
			"operations/harvests#index": true,
		}}
		memberships = &mockMembershipReader{members: map[int64]map[int64]bool{
			7: {42: true},
		}}
		cache = NewCache(time.Hour)
		service = NewService(grants, memberships, cache, slog.Default())
		actor = &internal.Actor{UserID: 7, Email: "worker@trufflehub.test", RoleIDs: []int64{3}}
	})

	ginkgo.Describe("Authorize", func() {
		ginkgo.Context("with a nil actor", func() {
			ginkgo.It("should deny", func() {
				allowed := service.Authorize(ctx, nil, "operations", "harvests", "index", 0)
				gomega.Expect(allowed).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("when the actor is an admin", func() {
			ginkgo.It("should allow without consulting the store", func() {
				admin := &internal.Actor{UserID: 1, IsAdmin: true}

				allowed := service.Authorize(ctx, admin, "operations", "harvests", "destroy", 0)

				gomega.Expect(allowed).To(gomega.BeTrue())
				gomega.Expect(grants.calls).To(gomega.Equal(0))
			})

			ginkgo.It("should not populate the cache", func() {
				admin := &internal.Actor{UserID: 1, IsAdmin: true}

				service.Authorize(ctx, admin, "operations", "harvests", "destroy", 0)

				gomega.Expect(cache.Len()).To(gomega.Equal(0))
			})
		})

		ginkgo.Context("when a role carries an active grant", func() {
			ginkgo.It("should allow", func() {
				allowed := service.Authorize(ctx, actor, "operations", "harvests", "index", 0)
				gomega.Expect(allowed).To(gomega.BeTrue())
			})

			ginkgo.It("should serve repeat decisions from the cache", func() {
				service.Authorize(ctx, actor, "operations", "harvests", "index", 0)
				service.Authorize(ctx, actor, "operations", "harvests", "index", 0)

				gomega.Expect(grants.calls).To(gomega.Equal(1))
			})
		})

		ginkgo.Context("when no grant exists", func() {
			ginkgo.It("should deny by default", func() {
				allowed := service.Authorize(ctx, actor, "operations", "harvests", "destroy", 0)
				gomega.Expect(allowed).To(gomega.BeFalse())
			})

			ginkgo.It("should cache the denial too", func() {
				service.Authorize(ctx, actor, "operations", "harvests", "destroy", 0)
				service.Authorize(ctx, actor, "operations", "harvests", "destroy", 0)

				gomega.Expect(grants.calls).To(gomega.Equal(1))
			})
		})

		ginkgo.Context("when the actor has no roles", func() {
			ginkgo.It("should deny", func() {
				noRoles := &internal.Actor{UserID: 9}

				allowed := service.Authorize(ctx, noRoles, "operations", "harvests", "index", 0)

				gomega.Expect(allowed).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("with a tenant scope", func() {
			ginkgo.It("should allow members of the farm", func() {
				allowed := service.Authorize(ctx, actor, "operations", "harvests", "index", 42)
				gomega.Expect(allowed).To(gomega.BeTrue())
			})

			ginkgo.It("should deny non-members even with a grant", func() {
				allowed := service.Authorize(ctx, actor, "operations", "harvests", "index", 99)
				gomega.Expect(allowed).To(gomega.BeFalse())
			})

			ginkgo.It("should cache scoped and unscoped decisions separately", func() {
				service.Authorize(ctx, actor, "operations", "harvests", "index", 42)
				service.Authorize(ctx, actor, "operations", "harvests", "index", 99)
				service.Authorize(ctx, actor, "operations", "harvests", "index", 0)

				gomega.Expect(cache.Len()).To(gomega.Equal(3))
			})
		})

		ginkgo.Context("when grant resolution fails", func() {
			ginkgo.It("should deny", func() {
				grants.err = errors.New("connection refused")

				allowed := service.Authorize(ctx, actor, "operations", "harvests", "index", 0)

				gomega.Expect(allowed).To(gomega.BeFalse())
			})
		})

		ginkgo.Context("when membership resolution fails", func() {
			ginkgo.It("should deny", func() {
				memberships.err = errors.New("connection refused")

				allowed := service.Authorize(ctx, actor, "operations", "harvests", "index", 42)

				gomega.Expect(allowed).To(gomega.BeFalse())
			})
		})
	})
})

var _ = ginkgo.Describe("Cache", func() {
	var cache *Cache

	ginkgo.BeforeEach(func() {
		cache = NewCache(time.Hour)
	})

	ginkgo.It("should miss on unknown keys", func() {
		_, ok := cache.Get(1, "ops", "harvests", "index", 0)
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.It("should return what was stored", func() {
		cache.Set(1, "ops", "harvests", "index", 0, true)
		cache.Set(1, "ops", "harvests", "destroy", 0, false)

		allowed, ok := cache.Get(1, "ops", "harvests", "index", 0)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(allowed).To(gomega.BeTrue())

		allowed, ok = cache.Get(1, "ops", "harvests", "destroy", 0)
		gomega.Expect(ok).To(gomega.BeTrue())
		gomega.Expect(allowed).To(gomega.BeFalse())
	})

	ginkgo.It("should expire entries after the TTL", func() {
		base := time.Now()
		cache.now = func() time.Time { return base }
		cache.Set(1, "ops", "harvests", "index", 0, true)

		cache.now = func() time.Time { return base.Add(2 * time.Hour) }

		_, ok := cache.Get(1, "ops", "harvests", "index", 0)
		gomega.Expect(ok).To(gomega.BeFalse())
	})

	ginkgo.Describe("InvalidateRoute", func() {
		ginkgo.It("should drop every user's entries for that route only", func() {
			cache.Set(1, "ops", "harvests", "index", 0, true)
			cache.Set(2, "ops", "harvests", "index", 0, true)
			cache.Set(2, "ops", "harvests", "index", 42, true)
			cache.Set(1, "ops", "plots", "index", 0, true)

			cache.InvalidateRoute("ops", "harvests", "index")

			_, ok := cache.Get(1, "ops", "harvests", "index", 0)
			gomega.Expect(ok).To(gomega.BeFalse())
			_, ok = cache.Get(2, "ops", "harvests", "index", 0)
			gomega.Expect(ok).To(gomega.BeFalse())
			_, ok = cache.Get(2, "ops", "harvests", "index", 42)
			gomega.Expect(ok).To(gomega.BeFalse())

			_, ok = cache.Get(1, "ops", "plots", "index", 0)
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})

	ginkgo.Describe("InvalidateUser", func() {
		ginkgo.It("should drop only that user's entries", func() {
			cache.Set(1, "ops", "harvests", "index", 0, true)
			cache.Set(1, "ops", "plots", "index", 42, true)
			cache.Set(2, "ops", "harvests", "index", 0, true)

			cache.InvalidateUser(1)

			_, ok := cache.Get(1, "ops", "harvests", "index", 0)
			gomega.Expect(ok).To(gomega.BeFalse())
			_, ok = cache.Get(1, "ops", "plots", "index", 42)
			gomega.Expect(ok).To(gomega.BeFalse())

			_, ok = cache.Get(2, "ops", "harvests", "index", 0)
			gomega.Expect(ok).To(gomega.BeTrue())
		})
	})
})

var _ = ginkgo.Describe("DenialMessage", func() {
	ginkgo.It("should phrase CRUD actions as capabilities", func() {
		gomega.Expect(DenialMessage("index", "")).To(gomega.Equal("You are not allowed to view this list"))
		gomega.Expect(DenialMessage("destroy", "")).To(gomega.Equal("You are not allowed to delete this record"))
	})

	ginkgo.It("should append the farm name when scoped", func() {
		msg := DenialMessage("update", "Perigord Demo Farm")
		gomega.Expect(msg).To(gomega.Equal("You are not allowed to update this record on farm Perigord Demo Farm"))
	})
})
