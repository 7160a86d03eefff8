package main

import (
	"context"
	"encoding/json"
	"time"

	"github.com/rs/zerolog"
	"github.com/segmentio/kafka-go"
)

// LedgerNotifier tails the stock ledger and pushes each entry to Kafka so
// downstream platforms (storefront caches, reporting) see stock changes
// without polling us. Best-effort: delivery failures are logged and the
// cursor is not advanced, so the batch is retried next tick.
type LedgerNotifier struct {
	store  Store
	writer *kafka.Writer
	log    zerolog.Logger
	lastID int64
}

func NewLedgerNotifier(store Store, brokers []string, topic string, log zerolog.Logger) *LedgerNotifier {
	return &LedgerNotifier{
		store: store,
		log:   log,
		writer: &kafka.Writer{
			Addr:     kafka.TCP(brokers...),
			Topic:    topic,
			Balancer: &kafka.Hash{},
		},
	}
}

func (n *LedgerNotifier) Run(ctx context.Context, interval time.Duration) {
	// Start from the current tail; history is for the audit surface, not
	// the event stream.
	id, err := n.store.LatestLedgerID(ctx)
	if err != nil {
		n.log.Error().Err(err).Msg("ledger notifier: cannot read tail, starting at 0")
	}
	n.lastID = id

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			n.writer.Close()
			return
		case <-ticker.C:
			n.publishPending(ctx)
		}
	}
}

func (n *LedgerNotifier) publishPending(ctx context.Context) {
	entries, err := n.store.LedgerSince(ctx, n.lastID, 100)
	if err != nil {
		n.log.Warn().Err(err).Msg("ledger notifier: read failed")
		return
	}
	if len(entries) == 0 {
		return
	}

	msgs := make([]kafka.Message, 0, len(entries))
	for _, e := range entries {
		payload, err := json.Marshal(e)
		if err != nil {
			n.log.Error().Err(err).Int64("entry", e.ID).Msg("ledger notifier: marshal failed")
			continue
		}
		msgs = append(msgs, kafka.Message{Key: []byte(e.SKU), Value: payload})
	}

	if err := n.writer.WriteMessages(ctx, msgs...); err != nil {
		n.log.Warn().Err(err).Msg("ledger notifier: publish failed, will retry")
		return
	}
	n.lastID = entries[len(entries)-1].ID
}
