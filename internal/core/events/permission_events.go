package events

import (
	"time"

	"github.com/google/uuid"
)

const (
	// EventTypeActionExecuted is published by the request instrumentation
	// middleware once per handled route. The discovery job consumes it.
	EventTypeActionExecuted = "permission.action_executed"

	// EventTypePermissionChanged is published when a permission's status
	// flips, so interested parties can refresh their own state.
	EventTypePermissionChanged = "permission.changed"
)

// NewActionExecutedEvent builds the discovery trigger for a routed action.
func NewActionExecutedEvent(namespace, controller, action, description string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EventTypeActionExecuted,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"namespace":   namespace,
			"controller":  controller,
			"action":      action,
			"description": description,
		},
	}
}

// NewPermissionChangedEvent reports a status transition on a permission.
func NewPermissionChangedEvent(namespace, controller, action, status string) BaseEvent {
	return BaseEvent{
		ID:        uuid.NewString(),
		Type:      EventTypePermissionChanged,
		Timestamp: time.Now(),
		Data: map[string]interface{}{
			"namespace":  namespace,
			"controller": controller,
			"action":     action,
			"status":     status,
		},
	}
}
