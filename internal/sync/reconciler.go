package sync

import (
	"fmt"
	"strconv"
	"time"

	"github.com/matheus3301/wpdl/internal/store"
	"go.uber.org/zap"
)

// Checkpoint keys.
const (
	KeyHistoryLastBatch = "history.last_batch_at"
	KeyHistoryMessages  = "history.messages"
	KeyLIDReconciledAt  = "lid.reconciled_at"
)

// Reconciler manages history sync checkpoints and LID chat merging.
type Reconciler struct {
	mirror *store.Mirror
	logger *zap.Logger
	now    func() time.Time
}

// NewReconciler creates a new reconciler.
func NewReconciler(mirror *store.Mirror, logger *zap.Logger) *Reconciler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Reconciler{mirror: mirror, logger: logger, now: time.Now}
}

// UpdateCheckpoint updates a sync checkpoint value.
func (r *Reconciler) UpdateCheckpoint(key, value string) error {
	return r.mirror.SetSyncState(key, value)
}

// GetCheckpoint retrieves a sync checkpoint value, "" when unset.
func (r *Reconciler) GetCheckpoint(key string) (string, error) {
	v, _, err := r.mirror.SyncState(key)
	return v, err
}

// RecordHistoryBatch advances the history checkpoints by n messages.
func (r *Reconciler) RecordHistoryBatch(n int) error {
	prev, err := r.GetCheckpoint(KeyHistoryMessages)
	if err != nil {
		return err
	}
	total, _ := strconv.ParseInt(prev, 10, 64)
	if err := r.UpdateCheckpoint(KeyHistoryMessages, itoa(total+int64(n))); err != nil {
		return err
	}
	return r.UpdateCheckpoint(KeyHistoryLastBatch, r.now().UTC().Format(time.RFC3339))
}

// ReconcileLIDs replaces the LID mapping and merges LID-addressed chats into
// their phone number chats.
func (r *Reconciler) ReconcileLIDs(mappings []store.LIDMapping) (int64, error) {
	if len(mappings) == 0 {
		return 0, nil
	}
	if err := r.mirror.SyncLIDMap(mappings); err != nil {
		return 0, fmt.Errorf("sync lid map: %w", err)
	}
	merged, err := r.mirror.ReconcileLIDs()
	if err != nil {
		return 0, fmt.Errorf("reconcile lids: %w", err)
	}
	if merged > 0 {
		r.logger.Info("merged LID chats", zap.Int64("chats", merged))
	}
	if err := r.UpdateCheckpoint(KeyLIDReconciledAt, r.now().UTC().Format(time.RFC3339)); err != nil {
		return merged, err
	}
	return merged, nil
}
