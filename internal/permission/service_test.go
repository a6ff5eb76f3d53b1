package permission

import (
	"context"
	"log/slog"

	"github.com/onsi/ginkgo/v2"
	"github.com/onsi/gomega"

	"github.com/trufflehub/farm-management/internal"
)

// Mock RoleRepository for testing
type mockRoleRepo struct {
	roles       map[int64]*Role
	grants      map[int64]map[int64]struct{} // roleID -> permissionIDs
	assignments map[int64]map[int64]struct{} // userID -> roleIDs
	nextID      int64
}

func newMockRoleRepo() *mockRoleRepo {
	return &mockRoleRepo{
		roles:       make(map[int64]*Role),
		grants:      make(map[int64]map[int64]struct{}),
		assignments: make(map[int64]map[int64]struct{}),
		nextID:      1,
	}
}

func (m *mockRoleRepo) CreateRole(ctx context.Context, r *Role) error {
	for _, existing := range m.roles {
		if existing.Name == r.Name {
			return internal.ErrDuplicateRole
		}
	}
	r.ID = m.nextID
	m.nextID++
	copied := *r
	m.roles[r.ID] = &copied
	return nil
}

func (m *mockRoleRepo) GetRoleByID(ctx context.Context, id int64) (*Role, error) {
	r, ok := m.roles[id]
	if !ok {
		return nil, internal.ErrRoleNotFound
	}
	return r, nil
}

func (m *mockRoleRepo) GetRoleByName(ctx context.Context, name string) (*Role, error) {
	for _, r := range m.roles {
		if r.Name == name {
			return r, nil
		}
	}
	return nil, internal.ErrRoleNotFound
}

func (m *mockRoleRepo) ListRoles(ctx context.Context) ([]*Role, error) {
	var result []*Role
	for _, r := range m.roles {
		result = append(result, r)
	}
	return result, nil
}

func (m *mockRoleRepo) GrantPermission(ctx context.Context, roleID, permissionID int64) error {
	if m.grants[roleID] == nil {
		m.grants[roleID] = make(map[int64]struct{})
	}
	m.grants[roleID][permissionID] = struct{}{}
	return nil
}

func (m *mockRoleRepo) RevokePermission(ctx context.Context, roleID, permissionID int64) error {
	delete(m.grants[roleID], permissionID)
	return nil
}

func (m *mockRoleRepo) RolesHaveActiveGrant(ctx context.Context, roleIDs []int64, namespace, controller, action string) (bool, error) {
	return false, nil
}

func (m *mockRoleRepo) AssignRole(ctx context.Context, userID, roleID int64) error {
	if m.assignments[userID] == nil {
		m.assignments[userID] = make(map[int64]struct{})
	}
	m.assignments[userID][roleID] = struct{}{}
	return nil
}

func (m *mockRoleRepo) RemoveRole(ctx context.Context, userID, roleID int64) error {
	delete(m.assignments[userID], roleID)
	return nil
}

func (m *mockRoleRepo) RoleIDsForUser(ctx context.Context, userID int64) ([]int64, error) {
	var ids []int64
	for roleID := range m.assignments[userID] {
		ids = append(ids, roleID)
	}
	return ids, nil
}

func (m *mockRoleRepo) UserIDsWithRole(ctx context.Context, roleID int64) ([]int64, error) {
	var ids []int64
	for userID, roles := range m.assignments {
		if _, ok := roles[roleID]; ok {
			ids = append(ids, userID)
		}
	}
	return ids, nil
}

var _ = ginkgo.Describe("PermissionService", func() {
	var (
		service *Service
		repo    *mockPermissionRepo
		roles   *mockRoleRepo
		audit   *mockAuditRepo
		cache   *mockInvalidator
		ctx     context.Context
	)

	ginkgo.BeforeEach(func() {
		ctx = context.Background()
		repo = newMockPermissionRepo()
		roles = newMockRoleRepo()
		audit = &mockAuditRepo{}
		cache = &mockInvalidator{}
		service = NewService(repo, roles, audit, cache, nil, slog.Default())
	})

	register := func() *Permission {
		perm, err := service.Register(ctx, "operations", "harvests", "index", "")
		gomega.Expect(err).NotTo(gomega.HaveOccurred())
		audit.entries = nil
		cache.routes = nil
		return perm
	}

	ginkgo.Describe("Register", func() {
		ginkgo.It("should create an active permission with the CRUD default description", func() {
			perm, err := service.Register(ctx, "operations", "harvests", "index", "")

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(perm.Status).To(gomega.Equal(StatusActive))
			gomega.Expect(perm.DiscoveryMethod).To(gomega.Equal(DiscoveryManual))
			gomega.Expect(perm.Description).To(gomega.Equal("View list of records"))
			gomega.Expect(audit.entries).To(gomega.HaveLen(1))
			gomega.Expect(audit.entries[0].ChangeType).To(gomega.Equal(ChangeCreated))
		})

		ginkgo.It("should reject a duplicate route", func() {
			register()

			_, err := service.Register(ctx, "operations", "harvests", "index", "")

			gomega.Expect(err).To(gomega.MatchError(internal.ErrDuplicatePermission))
		})
	})

	ginkgo.Describe("Archive", func() {
		ginkgo.It("should flip the status, audit the prior state and invalidate the route", func() {
			perm := register()

			archived, err := service.Archive(ctx, perm.ID, "route removed")

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(archived.Status).To(gomega.Equal(StatusArchived))

			gomega.Expect(audit.entries).To(gomega.HaveLen(1))
			gomega.Expect(audit.entries[0].ChangeType).To(gomega.Equal(ChangeArchived))
			gomega.Expect(audit.entries[0].Reason).To(gomega.Equal("route removed"))
			gomega.Expect(audit.entries[0].PreviousState.Status).To(gomega.Equal(StatusActive))

			gomega.Expect(cache.routes).To(gomega.ContainElement("operations/harvests#index"))
		})

		ginkgo.It("should be idempotent", func() {
			perm := register()
			_, err := service.Archive(ctx, perm.ID, "first")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			audit.entries = nil

			again, err := service.Archive(ctx, perm.ID, "second")

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(again.Status).To(gomega.Equal(StatusArchived))
			gomega.Expect(audit.entries).To(gomega.BeEmpty())
		})

		ginkgo.It("should fail for an unknown permission", func() {
			_, err := service.Archive(ctx, 9999, "whatever")
			gomega.Expect(err).To(gomega.MatchError(internal.ErrPermissionNotFound))
		})
	})

	ginkgo.Describe("Reactivate", func() {
		ginkgo.It("should restore an archived permission and audit the transition", func() {
			perm := register()
			_, err := service.Archive(ctx, perm.ID, "cleanup")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			audit.entries = nil

			restored, err := service.Reactivate(ctx, perm.ID, "needed again")

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(restored.Status).To(gomega.Equal(StatusActive))
			gomega.Expect(restored.DiscoveryMethod).To(gomega.Equal(DiscoveryManual))

			gomega.Expect(audit.entries).To(gomega.HaveLen(1))
			gomega.Expect(audit.entries[0].ChangeType).To(gomega.Equal(ChangeReactivated))
			gomega.Expect(audit.entries[0].PreviousState.Status).To(gomega.Equal(StatusArchived))
		})

		ginkgo.It("should be a no-op on an active permission", func() {
			perm := register()

			_, err := service.Reactivate(ctx, perm.ID, "noop")

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(audit.entries).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("AuditTrail", func() {
		ginkgo.It("should return the full lifecycle of a permission", func() {
			perm, err := service.Register(ctx, "operations", "harvests", "index", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			_, err = service.Archive(ctx, perm.ID, "cleanup")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			_, err = service.Reactivate(ctx, perm.ID, "back")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			trail, err := service.AuditTrail(ctx, perm.ID)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(trail).To(gomega.HaveLen(3))
		})
	})

	ginkgo.Describe("GrantToRole", func() {
		ginkgo.It("should record the grant and invalidate the route", func() {
			perm := register()
			role, err := service.CreateRole(ctx, "farm_manager", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			cache.routes = nil

			err = service.GrantToRole(ctx, role.ID, perm.ID)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(roles.grants[role.ID]).To(gomega.HaveKey(perm.ID))
			gomega.Expect(cache.routes).To(gomega.ContainElement("operations/harvests#index"))
		})

		ginkgo.It("should fail when the role does not exist", func() {
			perm := register()

			err := service.GrantToRole(ctx, 9999, perm.ID)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrRoleNotFound))
		})

		ginkgo.It("should fail when the permission does not exist", func() {
			err := service.GrantToRole(ctx, 1, 9999)
			gomega.Expect(err).To(gomega.MatchError(internal.ErrPermissionNotFound))
		})
	})

	ginkgo.Describe("RevokeFromRole", func() {
		ginkgo.It("should drop the grant and invalidate the route", func() {
			perm := register()
			role, err := service.CreateRole(ctx, "farm_manager", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(service.GrantToRole(ctx, role.ID, perm.ID)).To(gomega.Succeed())
			cache.routes = nil

			err = service.RevokeFromRole(ctx, role.ID, perm.ID)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(roles.grants[role.ID]).NotTo(gomega.HaveKey(perm.ID))
			gomega.Expect(cache.routes).To(gomega.ContainElement("operations/harvests#index"))
		})
	})

	ginkgo.Describe("AssignRole", func() {
		ginkgo.It("should link the user and invalidate only that user", func() {
			role, err := service.CreateRole(ctx, "field_worker", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			err = service.AssignRole(ctx, 7, role.ID)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(roles.assignments[int64(7)]).To(gomega.HaveKey(role.ID))
			gomega.Expect(cache.users).To(gomega.Equal([]int64{7}))
			gomega.Expect(cache.routes).To(gomega.BeEmpty())
		})

		ginkgo.It("should fail for an unknown role", func() {
			err := service.AssignRole(ctx, 7, 9999)

			gomega.Expect(err).To(gomega.MatchError(internal.ErrRoleNotFound))
			gomega.Expect(cache.users).To(gomega.BeEmpty())
		})
	})

	ginkgo.Describe("RemoveRole", func() {
		ginkgo.It("should unlink the user and invalidate their decisions", func() {
			role, err := service.CreateRole(ctx, "field_worker", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(service.AssignRole(ctx, 7, role.ID)).To(gomega.Succeed())
			cache.users = nil

			err = service.RemoveRole(ctx, 7, role.ID)

			gomega.Expect(err).NotTo(gomega.HaveOccurred())
			gomega.Expect(roles.assignments[int64(7)]).NotTo(gomega.HaveKey(role.ID))
			gomega.Expect(cache.users).To(gomega.Equal([]int64{7}))
		})
	})

	ginkgo.Describe("CreateRole", func() {
		ginkgo.It("should reject a duplicate name", func() {
			_, err := service.CreateRole(ctx, "farm_manager", "")
			gomega.Expect(err).NotTo(gomega.HaveOccurred())

			_, err = service.CreateRole(ctx, "farm_manager", "")

			gomega.Expect(err).To(gomega.MatchError(internal.ErrDuplicateRole))
		})
	})
})
