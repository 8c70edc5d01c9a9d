package services

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/nexushours/backend/internal/events"
	"github.com/nexushours/backend/internal/models"
)

// transactionNotifier fans a committed transaction out to the redis abuse
// analysis queue and the NATS event stream. Every code path that creates a
// Transaction row feeds it here after commit so the abuse worker sees the
// full stream, not just direct transfers. Both legs are best-effort: the
// transfer has already settled.
type transactionNotifier struct {
	redis    *redis.Client
	events   *events.Publisher
	queueKey string
	tag      string
}

func newTransactionNotifier(redisClient *redis.Client, publisher *events.Publisher, queueKey, tag string) *transactionNotifier {
	return &transactionNotifier{
		redis:    redisClient,
		events:   publisher,
		queueKey: queueKey,
		tag:      tag,
	}
}

func (n *transactionNotifier) Notify(ctx context.Context, txn *models.Transaction) {
	if err := n.queueForAnalysis(ctx, txn); err != nil {
		log.Printf("[%s] Failed to queue %s for abuse analysis: %v", n.tag, txn.TransactionID, err)
	}

	if err := n.events.PublishTransaction(txn); err != nil {
		log.Printf("[%s] Failed to publish event for %s: %v", n.tag, txn.TransactionID, err)
	}
}

func (n *transactionNotifier) queueForAnalysis(ctx context.Context, txn *models.Transaction) error {
	if n.redis == nil {
		return nil
	}

	data, err := json.Marshal(txn)
	if err != nil {
		return err
	}

	return n.redis.RPush(ctx, n.queueKey, data).Err()
}
