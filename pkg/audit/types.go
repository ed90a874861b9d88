package audit

import (
	"time"

	"github.com/google/uuid"
)

// Action names the audited operation
type Action string

const (
	ActionRoleCreate       Action = "role.create"
	ActionRoleUpdate       Action = "role.update"
	ActionRoleDelete       Action = "role.delete"
	ActionPermissionCreate Action = "permission.create"
	ActionPermissionDelete Action = "permission.delete"
	ActionAccountCreate    Action = "account.create"
	ActionAccountDelete    Action = "account.delete"
	ActionAccessDenied     Action = "access.denied"
	ActionLogin            Action = "auth.login"
)

// Outcome is the result of the audited operation
type Outcome string

const (
	OutcomeSuccess Outcome = "success"
	OutcomeDenied  Outcome = "denied"
	OutcomeFailure Outcome = "failure"
)

// Resource types
const (
	ResourceRole       = "role"
	ResourcePermission = "permission"
	ResourceAccount    = "account"
	ResourceRoute      = "route"
)

// Event is one row of the audit trail
type Event struct {
	ID           int64                  `json:"id"`
	OccurredAt   time.Time              `json:"occurred_at"`
	ActorID      *uuid.UUID             `json:"actor_id"`
	ProviderID   *uuid.UUID             `json:"provider_id"`
	Action       Action                 `json:"action"`
	ResourceType string                 `json:"resource_type"`
	ResourceID   string                 `json:"resource_id,omitempty"`
	Outcome      Outcome                `json:"outcome"`
	StatusCode   int                    `json:"status_code,omitempty"`
	RequestID    string                 `json:"request_id,omitempty"`
	Metadata     map[string]interface{} `json:"metadata,omitempty"`
}
