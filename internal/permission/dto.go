package permission

import "github.com/trufflehub/farm-management/internal"

type RegisterPermissionDTO struct {
	Namespace   string `json:"namespace"`
	Controller  string `json:"controller"`
	Action      string `json:"action"`
	Description string `json:"description,omitempty"`
}

func (d RegisterPermissionDTO) Validate() error {
	if d.Namespace == "" || d.Controller == "" || d.Action == "" {
		return internal.NewValidationError("namespace, controller and action are required",
			internal.ErrCodeMissingField)
	}
	if !ShouldRegister(d.Namespace, d.Controller, d.Action) {
		return internal.NewValidationError("route is not eligible for registration",
			internal.ErrCodeInvalidRoute)
	}
	return nil
}

type StatusChangeDTO struct {
	Reason string `json:"reason,omitempty"`
}

type CreateRoleDTO struct {
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}

func (d CreateRoleDTO) Validate() error {
	if d.Name == "" {
		return internal.NewValidationError("role name is required", internal.ErrCodeMissingField)
	}
	return nil
}

type GrantDTO struct {
	PermissionID int64 `json:"permission_id"`
}

type AssignmentDTO struct {
	UserID int64 `json:"user_id"`
	RoleID int64 `json:"role_id"`
}

func (d AssignmentDTO) Validate() error {
	if d.UserID == 0 || d.RoleID == 0 {
		return internal.NewValidationError("user_id and role_id are required",
			internal.ErrCodeMissingField)
	}
	return nil
}
