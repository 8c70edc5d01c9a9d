package alerts

import (
	"context"
	"encoding/json"
	"log"

	"github.com/go-redis/redis/v8"

	"github.com/nexushours/backend/internal/config"
	"github.com/nexushours/backend/internal/models"
)

// Detector turns a stream of committed transactions into abuse alerts. The
// detection heuristics live outside this repository; deployments plug their
// own implementation in.
type Detector interface {
	Detect(ctx context.Context, txn models.Transaction) ([]models.AbuseAlert, error)
}

// NoopDetector produces no alerts. The default until a real detector is
// wired in.
type NoopDetector struct{}

func (NoopDetector) Detect(context.Context, models.Transaction) ([]models.AbuseAlert, error) {
	return nil, nil
}

// AlertStore is the slice of the alert service the worker needs.
type AlertStore interface {
	Insert(alert *models.AbuseAlert) error
}

// Worker drains the post-commit transaction queue and feeds detector output
// into abuse_alerts.
type Worker struct {
	redis    *redis.Client
	detector Detector
	store    AlertStore
	cfg      *config.LedgerConfig
}

func NewWorker(redisClient *redis.Client, detector Detector, store AlertStore, cfg *config.LedgerConfig) *Worker {
	if detector == nil {
		detector = NoopDetector{}
	}
	if cfg == nil {
		cfg = config.LoadLedgerConfig()
	}
	return &Worker{
		redis:    redisClient,
		detector: detector,
		store:    store,
		cfg:      cfg,
	}
}

// Run blocks until ctx is cancelled, popping one transaction at a time.
// A malformed queue entry is dropped and logged, never retried.
func (w *Worker) Run(ctx context.Context) {
	if w.redis == nil {
		log.Println("[ABUSE] Redis unavailable, abuse analysis worker disabled")
		return
	}

	log.Printf("[ABUSE] Worker draining %q", w.cfg.AbuseQueueKey)
	for {
		if ctx.Err() != nil {
			return
		}

		result, err := w.redis.BLPop(ctx, w.cfg.AbuseQueuePopTimeout, w.cfg.AbuseQueueKey).Result()
		if err == redis.Nil {
			continue
		}
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			log.Printf("[ABUSE] Queue pop failed: %v", err)
			continue
		}

		// BLPop returns [key, value].
		if len(result) != 2 {
			continue
		}

		w.process(ctx, []byte(result[1]))
	}
}

func (w *Worker) process(ctx context.Context, payload []byte) {
	var txn models.Transaction
	if err := json.Unmarshal(payload, &txn); err != nil {
		log.Printf("[ABUSE] Dropping malformed queue entry: %v", err)
		return
	}

	found, err := w.detector.Detect(ctx, txn)
	if err != nil {
		log.Printf("[ABUSE] Detector failed for %s: %v", txn.TransactionID, err)
		return
	}

	for i := range found {
		alert := &found[i]
		alert.TenantID = txn.TenantID
		if alert.TransactionID == "" {
			alert.TransactionID = txn.TransactionID
		}
		if err := w.store.Insert(alert); err != nil {
			log.Printf("[ABUSE] Failed to store alert for %s: %v", txn.TransactionID, err)
		}
	}
}
