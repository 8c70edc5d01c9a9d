package models

import (
	"encoding/json"
	"time"
)

type AlertSeverity string

const (
	SeverityLow      AlertSeverity = "low"
	SeverityMedium   AlertSeverity = "medium"
	SeverityHigh     AlertSeverity = "high"
	SeverityCritical AlertSeverity = "critical"
)

type AlertStatus string

const (
	AlertNew       AlertStatus = "new"
	AlertReviewing AlertStatus = "reviewing"
	AlertResolved  AlertStatus = "resolved"
	AlertDismissed AlertStatus = "dismissed"
)

// Terminal reports whether the alert has left triage for good.
func (s AlertStatus) Terminal() bool {
	return s == AlertResolved || s == AlertDismissed
}

// AbuseAlert flags a suspicious transaction or account pattern. Alerts are
// produced by a Detector and are mutable only through the status field.
type AbuseAlert struct {
	ID            int64           `json:"id"`
	AlertID       string          `json:"alert_id"`
	TenantID      int64           `json:"tenant_id"`
	TransactionID string          `json:"transaction_id,omitempty"`
	UserID        *int64          `json:"user_id,omitempty"`
	RuleName      string          `json:"rule_name"`
	Severity      AlertSeverity   `json:"severity"`
	Status        AlertStatus     `json:"status"`
	Details       json.RawMessage `json:"details"`
	ResolvedBy    *int64          `json:"resolved_by,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	UpdatedAt     time.Time       `json:"updated_at"`
}
