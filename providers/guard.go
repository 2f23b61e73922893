package providers

import (
	"context"
	"fmt"
	"log/slog"
)

// CaptureStore records which captures are in flight or done.
type CaptureStore interface {
	// Begin marks key as in progress. It reports true if key was already
	// in progress or completed.
	Begin(ctx context.Context, key string) (bool, error)
	Complete(ctx context.Context, key string) error
	// Release forgets an in-progress key after a failed capture.
	Release(ctx context.Context, key string) error
}

type guardedProvider struct {
	Provider
	store CaptureStore
	log   *slog.Logger
}

// WithCaptureGuard makes CaptureTransaction refuse a second capture of the
// same transaction. A failed capture releases its key so the caller can
// decide to try again; nothing is retried here.
func WithCaptureGuard(p Provider, store CaptureStore, log *slog.Logger) Provider {
	if log == nil {
		log = slog.Default()
	}
	return &guardedProvider{Provider: p, store: store, log: log}
}

func (g *guardedProvider) CaptureTransaction(ctx context.Context, tx *Transaction, clientIP string) error {
	id := tx.TransactionToken()
	if id == "" {
		id = tx.Reference()
	}
	if id == "" {
		return g.Provider.CaptureTransaction(ctx, tx, clientIP)
	}
	key := fmt.Sprintf("capture:%s:%s", g.Name(), id)

	dup, err := g.store.Begin(ctx, key)
	if err != nil {
		return fmt.Errorf("capture guard: %w", err)
	}
	if dup {
		g.log.WarnContext(ctx, "duplicate capture rejected", "key", key)
		return ErrDuplicateCapture
	}

	if err := g.Provider.CaptureTransaction(ctx, tx, clientIP); err != nil {
		if rerr := g.store.Release(ctx, key); rerr != nil {
			g.log.ErrorContext(ctx, "capture guard release failed", "key", key, "err", rerr)
		}
		return err
	}

	if err := g.store.Complete(ctx, key); err != nil {
		g.log.ErrorContext(ctx, "capture guard complete failed", "key", key, "err", err)
	}
	return nil
}
