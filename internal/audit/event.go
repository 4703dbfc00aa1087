// Package audit records security-relevant events. Emission is best effort:
// events are queued without blocking and sink failures are only logged.
package audit

import (
	"context"
	"time"
)

// Action classifies an audit event.
type Action string

// Known actions.
const (
	ActionLogin            Action = "LOGIN"
	ActionFailedLogin      Action = "FAILED_LOGIN"
	ActionLogout           Action = "LOGOUT"
	ActionCreate           Action = "CREATE"
	ActionUpdate           Action = "UPDATE"
	ActionDelete           Action = "DELETE"
	ActionView             Action = "VIEW"
	ActionAdmin            Action = "ADMIN_ACTION"
	ActionPermissionChange Action = "PERMISSION_CHANGE"
	ActionPasswordChange   Action = "PASSWORD_CHANGE"
)

// Event is one audit record.
type Event struct {
	UserID    *int64         `json:"user_id,omitempty"`
	Action    Action         `json:"action"`
	Resource  string         `json:"resource"`
	Details   map[string]any `json:"details"`
	IPAddress string         `json:"ip_address"`
	UserAgent string         `json:"user_agent"`
	Timestamp time.Time      `json:"timestamp"`
}

// Sink persists events.
type Sink interface {
	Write(ctx context.Context, event Event) error
}

// Emitter accepts events without blocking the caller.
type Emitter interface {
	Emit(event Event)
}

// EmitterFunc adapts a function to Emitter.
type EmitterFunc func(Event)

// Emit calls f.
func (f EmitterFunc) Emit(event Event) { f(event) }

// Discard drops every event.
var Discard Emitter = EmitterFunc(func(Event) {})

// UserRef returns a pointer to id, for Event.UserID.
func UserRef(id int64) *int64 {
	return &id
}
