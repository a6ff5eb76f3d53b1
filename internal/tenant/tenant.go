package tenant

import (
	"regexp"
	"strings"
	"time"

	"github.com/trufflehub/farm-management/internal"
	tenantDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/tenant"
)

// Tenant is one farm. Handles are URL-safe, lowercase and unique
// case-insensitively; "TruffleWorks" and "truffleworks" are the same farm.
type Tenant struct {
	ID        int64     `json:"id"`
	Handle    string    `json:"handle"`
	Name      string    `json:"name"`
	IsActive  bool      `json:"is_active"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// Membership links a user to a farm. At most one membership per user carries
// IsDefault.
type Membership struct {
	ID        int64     `json:"id"`
	TenantID  int64     `json:"tenant_id"`
	UserID    int64     `json:"user_id"`
	IsDefault bool      `json:"is_default"`
	CreatedAt time.Time `json:"created_at"`
}

var handlePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// NormalizeHandle lowercases and trims a raw handle, collapsing spaces and
// underscores to hyphens.
func NormalizeHandle(raw string) string {
	h := strings.ToLower(strings.TrimSpace(raw))
	h = strings.ReplaceAll(h, " ", "-")
	h = strings.ReplaceAll(h, "_", "-")
	for strings.Contains(h, "--") {
		h = strings.ReplaceAll(h, "--", "-")
	}
	return strings.Trim(h, "-")
}

// ValidateHandle checks the normalized form.
func ValidateHandle(handle string) error {
	if handle == "" || len(handle) > 63 || !handlePattern.MatchString(handle) {
		return internal.NewValidationError(
			"handle must be lowercase letters, digits and hyphens",
			internal.ErrCodeInvalidHandle)
	}
	return nil
}

func ToDataModel(t *Tenant) *tenantDatamodel.Tenant {
	return &tenantDatamodel.Tenant{
		ID:        t.ID,
		Handle:    t.Handle,
		Name:      t.Name,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func FromDataModel(t *tenantDatamodel.Tenant) *Tenant {
	return &Tenant{
		ID:        t.ID,
		Handle:    t.Handle,
		Name:      t.Name,
		IsActive:  t.IsActive,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

func MembershipFromDataModel(m *tenantDatamodel.Membership) *Membership {
	return &Membership{
		ID:        m.ID,
		TenantID:  m.TenantID,
		UserID:    m.UserID,
		IsDefault: m.IsDefault,
		CreatedAt: m.CreatedAt,
	}
}
