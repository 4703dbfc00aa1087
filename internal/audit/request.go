package audit

import (
	"net/http"
	"time"

	"github.com/odyssey-erp/rbacadmin/internal/shared"
)

// RequestEvent builds an event stamped with the caller's address and agent.
// actorID is zero for anonymous callers.
func RequestEvent(r *http.Request, actorID int64, action Action, resource string, details map[string]any) Event {
	client := shared.ClientFromRequest(r)
	ev := Event{
		Action:    action,
		Resource:  resource,
		Details:   details,
		IPAddress: client.IPAddress,
		UserAgent: client.UserAgent,
		Timestamp: time.Now().UTC(),
	}
	if actorID > 0 {
		ev.UserID = UserRef(actorID)
	}
	return ev
}
