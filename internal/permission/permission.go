package permission

import (
	"strings"
	"time"
	"unicode"

	permissionDatamodel "github.com/trufflehub/farm-management/internal/core/datamodel/permission"
)

const (
	StatusActive   = "active"
	StatusArchived = "archived"

	DiscoveryManual    = "manual"
	DiscoveryAutomatic = "automatic"

	ChangeCreated     = "created"
	ChangeReactivated = "reactivated"
	ChangeArchived    = "archived"
)

// Permission maps one routed (namespace, controller, action) triple to a
// grantable capability. The triple is unique; records are never hard-deleted,
// they flip between active and archived.
type Permission struct {
	ID              int64     `json:"id"`
	Namespace       string    `json:"namespace"`
	Controller      string    `json:"controller"`
	Action          string    `json:"action"`
	Description     string    `json:"description"`
	Status          string    `json:"status"`
	DiscoveredAt    time.Time `json:"discovered_at"`
	DiscoveryMethod string    `json:"discovery_method"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

func (p *Permission) IsActive() bool {
	return p.Status == StatusActive
}

// Route renders the triple in the canonical "namespace/controller#action" form
// used in cache keys and logs.
func (p *Permission) Route() string {
	return RouteKey(p.Namespace, p.Controller, p.Action)
}

func RouteKey(namespace, controller, action string) string {
	return namespace + "/" + controller + "#" + action
}

type Role struct {
	ID          int64     `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// AuditEntry records one lifecycle change on a permission. Entries are
// immutable once written.
type AuditEntry struct {
	ID            int64          `json:"id"`
	PermissionID  int64          `json:"permission_id"`
	ChangeType    string         `json:"change_type"`
	PreviousState *PreviousState `json:"previous_state,omitempty"`
	Reason        string         `json:"reason"`
	CreatedAt     time.Time      `json:"created_at"`
}

// PreviousState snapshots the fields that mattered before a transition.
type PreviousState struct {
	Status       string    `json:"status"`
	Description  string    `json:"description"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// crudDescriptions gives discovered permissions a readable default description
// for the conventional CRUD action names.
var crudDescriptions = map[string]string{
	"index":   "View list of records",
	"show":    "View details of a record",
	"new":     "Access new record form",
	"create":  "Create a new record",
	"edit":    "Access edit record form",
	"update":  "Update an existing record",
	"destroy": "Delete a record",
}

// DefaultDescription returns the CRUD description for well-known action names
// and a humanized fallback for everything else.
func DefaultDescription(action string) string {
	if desc, ok := crudDescriptions[action]; ok {
		return desc
	}
	return humanize(action)
}

func humanize(s string) string {
	s = strings.ReplaceAll(strings.TrimSpace(s), "_", " ")
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}

// skippedNamespaces and skippedControllers keep internal and public endpoints
// out of the permission registry.
var skippedNamespaces = map[string]struct{}{
	"public": {},
}

var skippedControllers = map[string]struct{}{
	"authorization_checks": {},
	"health":               {},
	"sessions":             {},
}

// ShouldRegister reports whether a triple is eligible for discovery. Internal
// method markers (leading underscore) and setter-style names (containing '=')
// are noise, never real actions.
func ShouldRegister(namespace, controller, action string) bool {
	if namespace == "" || controller == "" || action == "" {
		return false
	}
	if _, ok := skippedNamespaces[namespace]; ok {
		return false
	}
	if _, ok := skippedControllers[controller]; ok {
		return false
	}
	if strings.HasPrefix(action, "_") || strings.Contains(action, "=") {
		return false
	}
	return true
}

func ToDataModel(p *Permission) *permissionDatamodel.Permission {
	return &permissionDatamodel.Permission{
		ID:              p.ID,
		Namespace:       p.Namespace,
		Controller:      p.Controller,
		Action:          p.Action,
		Description:     p.Description,
		Status:          p.Status,
		DiscoveredAt:    p.DiscoveredAt,
		DiscoveryMethod: p.DiscoveryMethod,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func FromDataModel(p *permissionDatamodel.Permission) *Permission {
	return &Permission{
		ID:              p.ID,
		Namespace:       p.Namespace,
		Controller:      p.Controller,
		Action:          p.Action,
		Description:     p.Description,
		Status:          p.Status,
		DiscoveredAt:    p.DiscoveredAt,
		DiscoveryMethod: p.DiscoveryMethod,
		CreatedAt:       p.CreatedAt,
		UpdatedAt:       p.UpdatedAt,
	}
}

func RoleFromDataModel(r *permissionDatamodel.Role) *Role {
	return &Role{
		ID:          r.ID,
		Name:        r.Name,
		Description: r.Description,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
	}
}
