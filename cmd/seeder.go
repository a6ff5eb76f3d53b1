package cmd

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/trufflehub/farm-management/internal/auth"
	"github.com/trufflehub/farm-management/internal/permission"
	permissionPostgres "github.com/trufflehub/farm-management/internal/permission/postgres"
	"github.com/trufflehub/farm-management/internal/tenant"
	tenantPostgres "github.com/trufflehub/farm-management/internal/tenant/postgres"
	"github.com/trufflehub/farm-management/internal/user"
	userPostgres "github.com/trufflehub/farm-management/internal/user/postgres"
	"github.com/trufflehub/farm-management/pkg/logger"
)

var seedCmd = &cobra.Command{
	Use:   "seed",
	Short: "Seed the database with sample data",
	Long:  `Seed the database with sample data for development and testing purposes.`,
	Run: func(cmd *cobra.Command, args []string) {
		runSeeder()
	},
}

func runSeeder() {
	cfg, err := loadConfig(".")
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger.Init(os.Getenv("APP_ENV"))
	lg := logger.LoggerWrapper()

	db, err := initDB(cfg.Database)
	if err != nil {
		log.Fatalf("failed to init db: %v", err)
	}
	defer db.Close()

	gormDB, err := initGorm(db)
	if err != nil {
		log.Fatalf("failed to init orm: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()

	if clearData {
		for _, table := range []string{
			"notifications", "permission_audits", "role_permissions",
			"user_roles", "permissions", "roles", "memberships", "tenants", "users",
		} {
			if err := gormDB.WithContext(ctx).Exec("DELETE FROM " + table).Error; err != nil {
				log.Fatalf("failed to clear %s: %v", table, err)
			}
		}
		fmt.Println("cleared existing data")
	}

	userRepo := userPostgres.NewUserRepository(gormDB)
	roleRepo := permissionPostgres.NewRoleRepository(gormDB)
	tenantRepo := tenantPostgres.NewTenantRepository(gormDB)
	permRepo := permissionPostgres.NewPermissionRepository(gormDB)

	hash, err := auth.HashPassword("password")
	if err != nil {
		log.Fatalf("failed to hash seed password: %v", err)
	}

	admin := seedUser(ctx, userRepo, &user.User{
		Email:        "admin@trufflehub.test",
		Name:         "Admin",
		PasswordHash: hash,
		IsAdmin:      true,
		IsActive:     true,
	})
	manager := seedUser(ctx, userRepo, &user.User{
		Email:        "manager@trufflehub.test",
		Name:         "Farm Manager",
		PasswordHash: hash,
		IsActive:     true,
	})
	worker := seedUser(ctx, userRepo, &user.User{
		Email:        "worker@trufflehub.test",
		Name:         "Field Worker",
		PasswordHash: hash,
		IsActive:     true,
	})

	// Demo farm with everyone as a member
	farmSvc := tenant.NewService(tenantRepo, lg)
	farm, err := farmSvc.Create(ctx, "Perigord Demo Farm", "perigord-demo")
	if err != nil {
		farm, err = farmSvc.GetByHandle(ctx, "perigord-demo")
		if err != nil {
			log.Fatalf("failed to seed demo farm: %v", err)
		}
	}
	for _, u := range []*user.User{admin, manager, worker} {
		if _, err := farmSvc.AddMember(ctx, farm.ID, u.ID); err != nil {
			log.Fatalf("failed to add farm member: %v", err)
		}
	}

	// Baseline roles and permissions
	managerRole := seedRole(ctx, roleRepo, "farm_manager", "Manages farm operations and members")
	workerRole := seedRole(ctx, roleRepo, "field_worker", "Day-to-day field work")

	seedGrant(ctx, permRepo, roleRepo, managerRole, "admin", "farms", "index")
	seedGrant(ctx, permRepo, roleRepo, managerRole, "admin", "farms", "show")
	seedGrant(ctx, permRepo, roleRepo, managerRole, "admin", "farm_members", "create")
	seedGrant(ctx, permRepo, roleRepo, managerRole, "admin", "notifications", "create")
	seedGrant(ctx, permRepo, roleRepo, workerRole, "admin", "farms", "show")

	if err := roleRepo.AssignRole(ctx, manager.ID, managerRole.ID); err != nil {
		log.Fatalf("failed to assign manager role: %v", err)
	}
	if err := roleRepo.AssignRole(ctx, worker.ID, workerRole.ID); err != nil {
		log.Fatalf("failed to assign worker role: %v", err)
	}

	fmt.Println("seed complete")
	fmt.Println("  admin:   admin@trufflehub.test / password")
	fmt.Println("  manager: manager@trufflehub.test / password")
	fmt.Println("  worker:  worker@trufflehub.test / password")
}

func seedUser(ctx context.Context, repo user.Repository, u *user.User) *user.User {
	existing, err := repo.GetByEmail(ctx, u.Email)
	if err == nil {
		fmt.Println("user already exists:", u.Email)
		return existing
	}
	if err := repo.Create(ctx, u); err != nil {
		log.Fatalf("failed to seed user %s: %v", u.Email, err)
	}
	fmt.Println("seeded user:", u.Email)
	return u
}

func seedRole(ctx context.Context, repo permission.RoleRepository, name, description string) *permission.Role {
	existing, err := repo.GetRoleByName(ctx, name)
	if err == nil {
		return existing
	}
	role := &permission.Role{Name: name, Description: description}
	if err := repo.CreateRole(ctx, role); err != nil {
		log.Fatalf("failed to seed role %s: %v", name, err)
	}
	fmt.Println("seeded role:", name)
	return role
}

func seedGrant(ctx context.Context, permRepo permission.Repository, roleRepo permission.RoleRepository, role *permission.Role, namespace, controller, action string) {
	perm, err := permRepo.FindByRoute(ctx, namespace, controller, action)
	if err != nil {
		perm = &permission.Permission{
			Namespace:       namespace,
			Controller:      controller,
			Action:          action,
			Description:     permission.DefaultDescription(action),
			Status:          permission.StatusActive,
			DiscoveredAt:    time.Now(),
			DiscoveryMethod: permission.DiscoveryManual,
		}
		if err := permRepo.Create(ctx, perm); err != nil {
			log.Fatalf("failed to seed permission %s: %v", perm.Route(), err)
		}
	}
	if err := roleRepo.GrantPermission(ctx, role.ID, perm.ID); err != nil {
		log.Fatalf("failed to grant %s to %s: %v", perm.Route(), role.Name, err)
	}
}
