package audit

import (
	"encoding/json"
	"log"
	"time"
)

type AuditEvent struct {
	Timestamp     time.Time `json:"timestamp"`
	EventType     string    `json:"event_type"`
	TenantID      int64     `json:"tenant_id"`
	TransactionID string    `json:"transaction_id,omitempty"`
	ActorID       int64     `json:"actor_id,omitempty"`
	Amount        string    `json:"amount,omitempty"`
	Status        string    `json:"status"`
	Details       any       `json:"details,omitempty"`
}

// AuditLogger writes single-line JSON audit events through the standard
// logger. The transaction table is the durable audit trail; this stream is
// for operators tailing logs.
type AuditLogger struct{}

func NewAuditLogger() *AuditLogger {
	return &AuditLogger{}
}

func (a *AuditLogger) LogTransfer(tenantID int64, transactionID string, senderID, receiverID int64, amount string, status string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "TRANSFER",
		TenantID:      tenantID,
		TransactionID: transactionID,
		Amount:        amount,
		Status:        status,
		Details: map[string]int64{
			"sender_id":   senderID,
			"receiver_id": receiverID,
		},
	})
}

func (a *AuditLogger) LogApproval(tenantID int64, requestID string, approverID int64, decision string) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "APPROVAL",
		TenantID:      tenantID,
		TransactionID: requestID,
		ActorID:       approverID,
		Status:        decision,
	})
}

func (a *AuditLogger) LogFederationChange(tenantID, partnerTenantID, actorID int64, details string) {
	a.log(AuditEvent{
		Timestamp: time.Now(),
		EventType: "FEDERATION",
		TenantID:  tenantID,
		ActorID:   actorID,
		Status:    "SUCCESS",
		Details: map[string]any{
			"partner_tenant_id": partnerTenantID,
			"change":            details,
		},
	})
}

func (a *AuditLogger) LogError(tenantID int64, transactionID string, err error) {
	a.log(AuditEvent{
		Timestamp:     time.Now(),
		EventType:     "ERROR",
		TenantID:      tenantID,
		TransactionID: transactionID,
		Status:        "FAILED",
		Details:       map[string]string{"error": err.Error()},
	})
}

func (a *AuditLogger) log(event AuditEvent) {
	data, _ := json.Marshal(event)
	log.Printf("AUDIT: %s", string(data))
}
