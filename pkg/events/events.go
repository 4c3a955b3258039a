package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// Event types emitted by the authorization engine.
const (
	TypePermissionRegistered = "permission.registered"
	TypePermissionRemoved    = "permission.removed"

	TypeRoleCreated            = "role.created"
	TypeRoleUpdated            = "role.updated"
	TypeRoleDeleted            = "role.deleted"
	TypeRoleRestored           = "role.restored"
	TypeRolePermissionsChanged = "role.permissions_changed"

	TypeRoleAssigned = "assignment.created"
	TypeRoleRevoked  = "assignment.revoked"

	TypeGrantCreated = "grant.created"
	TypeGrantRevoked = "grant.revoked"
)

// Event is a notification about a change in the authorization data.
// Consumers use these to refresh their own views; delivery is best-effort
// and correctness never depends on an event arriving.
type Event struct {
	ID         string                 `json:"id"`
	Type       string                 `json:"type"`
	OccurredAt time.Time              `json:"occurred_at"`
	UserID     string                 `json:"user_id,omitempty"`
	ScopeType  string                 `json:"scope_type,omitempty"`
	ScopeID    string                 `json:"scope_id,omitempty"`
	Data       map[string]interface{} `json:"data,omitempty"`
}

// NewEvent creates an event with a fresh ID and timestamp.
func NewEvent(eventType string) *Event {
	return &Event{
		ID:         uuid.NewString(),
		Type:       eventType,
		OccurredAt: time.Now().UTC(),
	}
}

// WithUser sets the user the event concerns.
func (e *Event) WithUser(userID string) *Event {
	e.UserID = userID
	return e
}

// WithScope sets the scope the event happened in.
func (e *Event) WithScope(scopeType, scopeID string) *Event {
	e.ScopeType = scopeType
	e.ScopeID = scopeID
	return e
}

// WithData attaches one payload key. The map is created lazily.
func (e *Event) WithData(key string, value interface{}) *Event {
	if e.Data == nil {
		e.Data = make(map[string]interface{})
	}
	e.Data[key] = value
	return e
}

// Marshal serializes the event.
func (e *Event) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Unmarshal parses an event from JSON.
func Unmarshal(data []byte) (*Event, error) {
	var event Event
	if err := json.Unmarshal(data, &event); err != nil {
		return nil, err
	}
	return &event, nil
}

// Publisher delivers events to interested consumers.
type Publisher interface {
	// Publish delivers one event.
	Publish(ctx context.Context, event *Event) error

	// Close releases the publisher.
	Close() error
}

// NopPublisher discards all events.
type NopPublisher struct{}

func (NopPublisher) Publish(ctx context.Context, event *Event) error { return nil }

func (NopPublisher) Close() error { return nil }
