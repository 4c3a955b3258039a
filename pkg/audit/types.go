package audit

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Action identifies what happened.
type Action string

const (
	ActionPermissionRegistered Action = "permission.registered"
	ActionPermissionRemoved    Action = "permission.removed"

	ActionRoleCreated            Action = "role.created"
	ActionRoleUpdated            Action = "role.updated"
	ActionRoleDeleted            Action = "role.deleted"
	ActionRoleRestored           Action = "role.restored"
	ActionRolePermissionsChanged Action = "role.permissions_changed"

	ActionRoleAssigned Action = "assignment.created"
	ActionRoleRevoked  Action = "assignment.revoked"

	ActionGrantCreated Action = "grant.created"
	ActionGrantRevoked Action = "grant.revoked"

	ActionAccessDenied Action = "access.denied"
)

// EntityType identifies the kind of entity an action touched.
type EntityType string

const (
	EntityPermission EntityType = "permission"
	EntityRole       EntityType = "role"
	EntityAssignment EntityType = "assignment"
	EntityGrant      EntityType = "grant"
	EntityUser       EntityType = "user"
)

// Record is a single audit log entry. ScopeType and ScopeID are empty for
// actions that are not scoped, such as permission catalog changes.
type Record struct {
	ID          string                 `json:"id"`
	OccurredAt  time.Time              `json:"occurred_at"`
	Action      Action                 `json:"action"`
	EntityType  EntityType             `json:"entity_type"`
	EntityID    string                 `json:"entity_id"`
	ActorUserID string                 `json:"actor_user_id,omitempty"`
	ScopeType   string                 `json:"scope_type,omitempty"`
	ScopeID     string                 `json:"scope_id,omitempty"`
	Metadata    map[string]interface{} `json:"metadata,omitempty"`
}

// NewRecord creates a record with a fresh ID and timestamp.
func NewRecord(action Action, entityType EntityType, entityID string) *Record {
	return &Record{
		ID:         uuid.NewString(),
		OccurredAt: time.Now().UTC(),
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
	}
}

// WithActor sets the acting user.
func (r *Record) WithActor(userID string) *Record {
	r.ActorUserID = userID
	return r
}

// WithScope sets the scope the action happened in.
func (r *Record) WithScope(scopeType, scopeID string) *Record {
	r.ScopeType = scopeType
	r.ScopeID = scopeID
	return r
}

// WithMetadata attaches one metadata key. The map is created lazily.
func (r *Record) WithMetadata(key string, value interface{}) *Record {
	if r.Metadata == nil {
		r.Metadata = make(map[string]interface{})
	}
	r.Metadata[key] = value
	return r
}

// ToJSON serializes the record.
func (r *Record) ToJSON() ([]byte, error) {
	return json.Marshal(r)
}

// FromJSON parses a record from JSON.
func FromJSON(data []byte) (*Record, error) {
	var record Record
	if err := json.Unmarshal(data, &record); err != nil {
		return nil, err
	}
	return &record, nil
}

// Filter narrows a List query. Zero values mean "any".
type Filter struct {
	Start       *time.Time
	End         *time.Time
	Action      Action
	EntityType  EntityType
	EntityID    string
	ActorUserID string
	ScopeType   string
	ScopeID     string

	Limit  int
	Offset int
}
