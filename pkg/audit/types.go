package audit

import "time"

// EventType represents the category of audit event
type EventType string

const (
	// Authorization events
	EventTypeAuthzPermissionCheck  EventType = "authz.permission_check"
	EventTypeAuthzPermissionGrant  EventType = "authz.permission_grant"
	EventTypeAuthzPermissionRevoke EventType = "authz.permission_revoke"
	EventTypeAuthzPermissionSync   EventType = "authz.permission_sync"
	EventTypeAuthzRoleAssign       EventType = "authz.role_assign"
	EventTypeAuthzRoleRemove       EventType = "authz.role_remove"
	EventTypeAuthzRoleSync         EventType = "authz.role_sync"
	EventTypeAuthzAccessDenied     EventType = "authz.access_denied"

	// Entity mutation events
	EventTypeRoleCreate       EventType = "entity.role_create"
	EventTypeRoleUpdate       EventType = "entity.role_update"
	EventTypeRoleDelete       EventType = "entity.role_delete"
	EventTypePermissionCreate EventType = "entity.permission_create"
	EventTypePermissionUpdate EventType = "entity.permission_update"
	EventTypePermissionDelete EventType = "entity.permission_delete"
)

// EventStatus represents the outcome of an event
type EventStatus string

const (
	EventStatusSuccess EventStatus = "success"
	EventStatusFailure EventStatus = "failure"
	EventStatusDenied  EventStatus = "denied"
)

// ResourceType represents the type of resource being acted on
type ResourceType string

const (
	ResourceTypeRole       ResourceType = "role"
	ResourceTypePermission ResourceType = "permission"
	ResourceTypeUser       ResourceType = "user"
)

// Event represents a single audit log entry
type Event struct {
	Timestamp time.Time   `json:"timestamp"`
	EventType EventType   `json:"event_type"`
	Status    EventStatus `json:"status"`

	// Actor information
	ActorID *int64 `json:"actor_id,omitempty"`

	// Resource information
	ResourceType ResourceType `json:"resource_type,omitempty"`
	ResourceID   string       `json:"resource_id,omitempty"`

	// Request context
	RequestID string `json:"request_id,omitempty"`
	Method    string `json:"method,omitempty"`
	Path      string `json:"path,omitempty"`

	// Additional details
	Message      string `json:"message,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}
