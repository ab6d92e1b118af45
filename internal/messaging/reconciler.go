package messaging

import (
	"anonchat/backend/internal/models"
	"anonchat/backend/internal/storage"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"
)

// Reconciler rebuilds chat summaries from the message log. It repairs pairs
// whose summary update failed after the message itself was stored.
type Reconciler struct {
	store    Store
	log      *slog.Logger
	interval time.Duration
}

func NewReconciler(store Store, logger *slog.Logger, interval time.Duration) *Reconciler {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Reconciler{store: store, log: logger, interval: interval}
}

// Run drains the reconcile queue on every tick until ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	r.log.Info("reconciler - run - started", "interval", r.interval)
	for {
		select {
		case <-ctx.Done():
			r.log.Info("reconciler - run - stopped")
			return
		case <-ticker.C:
			n, err := r.Drain(ctx)
			if err != nil && !errors.Is(err, storage.ErrCacheUnavailable) && ctx.Err() == nil {
				r.log.Error("reconciler - run - drain failed", "err", err)
			}
			if n > 0 {
				r.log.Info("reconciler - run - summaries repaired", "count", n)
			}
		}
	}
}

// Drain reconciles queued pairs until the queue is empty. A pair that fails
// again is put back for the next round.
func (r *Reconciler) Drain(ctx context.Context) (int, error) {
	repaired := 0
	for {
		if ctx.Err() != nil {
			return repaired, ctx.Err()
		}
		key, err := r.store.PopReconcile(ctx)
		if errors.Is(err, storage.ErrNotFound) {
			return repaired, nil
		}
		if err != nil {
			return repaired, err
		}

		if err := r.ReconcilePair(ctx, key); err != nil {
			r.log.Error("reconciler - drain - pair failed, requeued", "pair", key, "err", err)
			if qerr := r.store.EnqueueReconcile(ctx, key); qerr != nil {
				r.log.Error("reconciler - drain - requeue failed", "pair", key, "err", qerr)
			}
			return repaired, err
		}
		repaired++
	}
}

// ReconcilePair sets the pair's summary to its latest stored message. The
// upsert keeps a newer summary written concurrently.
func (r *Reconciler) ReconcilePair(ctx context.Context, key string) error {
	a, b, ok := models.ParseChatKey(key)
	if !ok {
		r.log.Warn("reconciler - pair - dropping malformed key", "pair", key)
		return nil
	}

	latest, err := r.store.LatestMessageBetween(ctx, a, b)
	if errors.Is(err, storage.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("latest message %s: %w", key, err)
	}

	if _, err := r.store.UpsertChat(ctx, a, b, latest.Content, latest.Timestamp); err != nil {
		return fmt.Errorf("upsert %s: %w", key, err)
	}
	return nil
}

// ReconcileAll walks every pair that has messages. It is the full repair used
// by the admin tool and does not depend on the queue.
func (r *Reconciler) ReconcileAll(ctx context.Context) (int, error) {
	keys, err := r.store.MessagePairs(ctx)
	if err != nil {
		return 0, fmt.Errorf("list pairs: %w", err)
	}

	done := 0
	for _, key := range keys {
		if err := r.ReconcilePair(ctx, key); err != nil {
			return done, err
		}
		done++
	}
	return done, nil
}
