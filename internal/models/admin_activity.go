package models

import (
	"encoding/json"
	"time"
)

// Audit actions.
const (
	ActionCreate     = "create"
	ActionUpdate     = "update"
	ActionDelete     = "delete"
	ActionCancel     = "cancel"
	ActionRefund     = "refund"
	ActionAssignRole = "assign-role"
	ActionActivate   = "activate"
	ActionSuspend    = "suspend"
)

// Audit severities.
const (
	SeverityLow      = "low"
	SeverityMedium   = "medium"
	SeverityHigh     = "high"
	SeverityCritical = "critical"
)

// AdminActivity is one append-only audit log entry. It is never updated
// or deleted and is never read back as a decision input.
type AdminActivity struct {
	ID          int64           `db:"id" json:"id"`
	AdminID     int64           `db:"admin_id" json:"admin_id"`
	Action      string          `db:"action" json:"action"`
	TargetModel string          `db:"target_model" json:"target_model"`
	TargetID    int64           `db:"target_id" json:"target_id"`
	TargetName  string          `db:"target_name" json:"target_name,omitempty"`
	Before      json.RawMessage `db:"before_state" json:"before,omitempty"`
	After       json.RawMessage `db:"after_state" json:"after,omitempty"`
	Reason      string          `db:"reason" json:"reason,omitempty"`
	IPAddress   string          `db:"ip_address" json:"ip_address,omitempty"`
	UserAgent   string          `db:"user_agent" json:"user_agent,omitempty"`
	Severity    string          `db:"severity" json:"severity"`
	CreatedAt   time.Time       `db:"created_at" json:"created_at"`
}
