package events

import (
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"

	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/models"
)

// Publisher broadcasts completed transactions over NATS so federation
// partners and analytics can follow the ledger without polling. The broker
// is optional: a nil Publisher drops events.
type Publisher struct {
	conn          *nats.Conn
	subjectPrefix string
}

// Connect dials the configured broker. A connection failure is logged and
// returns nil; the ledger never depends on the broker being up.
func Connect(cfg *config.NATSConfig) *Publisher {
	nc, err := nats.Connect(cfg.URL,
		nats.Name("nexus-backend"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		log.Printf("[EVENTS] NATS connection failed, continuing without events: %v", err)
		return nil
	}

	log.Printf("[EVENTS] Connected to NATS at %s", cfg.URL)
	return &Publisher{conn: nc, subjectPrefix: cfg.SubjectPrefix}
}

// PublishTransaction emits one event per completed transaction on
// <prefix>.<tenant_id>. Fire and forget.
func (p *Publisher) PublishTransaction(txn *models.Transaction) error {
	if p == nil || p.conn == nil {
		return nil
	}

	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	subject := fmt.Sprintf("%s.%d", p.subjectPrefix, txn.TenantID)
	return p.conn.Publish(subject, data)
}

func (p *Publisher) Close() {
	if p != nil && p.conn != nil {
		p.conn.Drain()
	}
}
