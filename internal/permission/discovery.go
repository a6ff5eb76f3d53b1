package permission

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/trufflehub/farm-management/internal"
	"github.com/trufflehub/farm-management/internal/core/events"
)

// DiscoveryRequest identifies one executed route. Description is optional;
// discovery falls back to the CRUD lookup table when it is empty.
type DiscoveryRequest struct {
	Namespace   string
	Controller  string
	Action      string
	Description string
}

// DiscoveryJob registers permissions the first time a route is actually
// executed. Running it twice for the same triple is a no-op, and two
// concurrent runs for a new triple resolve through the store's uniqueness
// constraint: the loser's duplicate insert is treated as success.
type DiscoveryJob struct {
	repo   Repository
	audit  AuditRepository
	cache  CacheInvalidator
	logger *slog.Logger
	now    func() time.Time
}

func NewDiscoveryJob(repo Repository, audit AuditRepository, cache CacheInvalidator, logger *slog.Logger) *DiscoveryJob {
	return &DiscoveryJob{
		repo:   repo,
		audit:  audit,
		cache:  cache,
		logger: logger,
		now:    time.Now,
	}
}

func (j *DiscoveryJob) Run(ctx context.Context, req DiscoveryRequest) error {
	if !ShouldRegister(req.Namespace, req.Controller, req.Action) {
		j.logger.Debug("discovery skipped for route",
			"route", RouteKey(req.Namespace, req.Controller, req.Action))
		return nil
	}

	existing, err := j.repo.FindByRoute(ctx, req.Namespace, req.Controller, req.Action)
	switch {
	case err == nil:
		if existing.IsActive() {
			return nil
		}
		return j.reactivate(ctx, existing)
	case errors.Is(err, internal.ErrPermissionNotFound):
		return j.create(ctx, req)
	default:
		return fmt.Errorf("discovery lookup failed: %w", err)
	}
}

func (j *DiscoveryJob) create(ctx context.Context, req DiscoveryRequest) error {
	description := req.Description
	if description == "" {
		description = DefaultDescription(req.Action)
	}

	perm := &Permission{
		Namespace:       req.Namespace,
		Controller:      req.Controller,
		Action:          req.Action,
		Description:     description,
		Status:          StatusActive,
		DiscoveredAt:    j.now(),
		DiscoveryMethod: DiscoveryAutomatic,
	}

	if err := j.repo.Create(ctx, perm); err != nil {
		if errors.Is(err, internal.ErrDuplicatePermission) {
			// Lost the race to a concurrent discovery for the same triple.
			j.logger.Debug("permission already discovered concurrently", "route", perm.Route())
			return nil
		}
		return fmt.Errorf("discovery create failed: %w", err)
	}

	j.appendAudit(ctx, perm.ID, ChangeCreated, nil)
	j.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)

	j.logger.Info("permission discovered", "permission_id", perm.ID, "route", perm.Route())
	return nil
}

func (j *DiscoveryJob) reactivate(ctx context.Context, perm *Permission) error {
	prev := snapshot(perm)

	perm.Status = StatusActive
	perm.DiscoveredAt = j.now()
	perm.DiscoveryMethod = DiscoveryAutomatic

	if err := j.repo.Update(ctx, perm); err != nil {
		return fmt.Errorf("discovery reactivate failed: %w", err)
	}

	j.appendAudit(ctx, perm.ID, ChangeReactivated, prev)
	j.cache.InvalidateRoute(perm.Namespace, perm.Controller, perm.Action)

	j.logger.Info("archived permission reactivated on use",
		"permission_id", perm.ID, "route", perm.Route())
	return nil
}

func (j *DiscoveryJob) appendAudit(ctx context.Context, permissionID int64, changeType string, prev *PreviousState) {
	entry := &AuditEntry{
		PermissionID:  permissionID,
		ChangeType:    changeType,
		PreviousState: prev,
		Reason:        "automatic discovery",
	}
	if err := j.audit.Append(ctx, entry); err != nil {
		j.logger.Error("failed to append discovery audit entry",
			"error", err, "permission_id", permissionID, "change_type", changeType)
	}
}

// RegisterDiscoveryHandler binds the discovery job to the event bus so that
// route instrumentation can trigger it off the request path.
func RegisterDiscoveryHandler(bus *events.EventBus, job *DiscoveryJob) {
	bus.Subscribe(events.EventTypeActionExecuted, func(ctx context.Context, event events.Event) error {
		data, ok := event.Payload().(map[string]interface{})
		if !ok {
			return fmt.Errorf("malformed discovery event payload: %T", event.Payload())
		}
		req := DiscoveryRequest{
			Namespace:   stringField(data, "namespace"),
			Controller:  stringField(data, "controller"),
			Action:      stringField(data, "action"),
			Description: stringField(data, "description"),
		}
		return job.Run(ctx, req)
	})
}

// RecordActionExecuted publishes the discovery trigger for a routed action.
// Fire-and-forget: the request that caused it never waits.
func RecordActionExecuted(ctx context.Context, bus *events.EventBus, namespace, controller, action, description string) {
	evt := events.NewActionExecutedEvent(namespace, controller, action, description)
	_ = bus.Publish(ctx, evt)
}

func stringField(data map[string]interface{}, key string) string {
	if v, ok := data[key].(string); ok {
		return v
	}
	return ""
}
