package repository

import (
	"context"
	"fmt"
	"strings"

	"github.com/CosmoTheDev/procwatch/internal/database"
	"github.com/CosmoTheDev/procwatch/models"
)

// markSentBatchSize caps how many ids one UPDATE carries.
const markSentBatchSize = 1000

// BulkInsertChanges writes detected changes in a single transaction.
func (s *Store) BulkInsertChanges(ctx context.Context, changes []models.DetectedChange) error {
	if len(changes) == 0 {
		return nil
	}
	return s.db.Tx(ctx, func(tx database.Executor) error {
		for i := range changes {
			change := changes[i]
			change.ID = 0
			if _, err := tx.Insert(ctx, "detected_changes", change); err != nil {
				return fmt.Errorf("inserting change %s %s: %w", change.ChangeType, change.FullName, err)
			}
		}
		return nil
	})
}

// ListChanges returns the changes recorded by one scan.
func (s *Store) ListChanges(ctx context.Context, scanLogID int64) ([]models.DetectedChange, error) {
	var out []models.DetectedChange
	err := s.db.Select(ctx, &out, `SELECT id, scan_log_id, tenant_id, tenant_code, environment,
		full_name, object_type, change_type, previous_hash, current_hash,
		detected_at, notification_sent
		FROM detected_changes WHERE scan_log_id = ? ORDER BY full_name`, scanLogID)
	if err != nil {
		return nil, fmt.Errorf("listing changes for log %d: %w", scanLogID, err)
	}
	return out, nil
}

// PendingNotifications returns every change not yet notified, oldest first.
func (s *Store) PendingNotifications(ctx context.Context) ([]models.DetectedChange, error) {
	var out []models.DetectedChange
	err := s.db.Select(ctx, &out, `SELECT id, scan_log_id, tenant_id, tenant_code, environment,
		full_name, object_type, change_type, previous_hash, current_hash,
		detected_at, notification_sent
		FROM detected_changes WHERE notification_sent = 0 ORDER BY detected_at, id`)
	if err != nil {
		return nil, fmt.Errorf("listing pending notifications: %w", err)
	}
	return out, nil
}

// MarkNotificationSent flags the given change ids as notified, batching the
// id list so no single statement carries more than 1000 parameters.
func (s *Store) MarkNotificationSent(ctx context.Context, ids []int64) error {
	for start := 0; start < len(ids); start += markSentBatchSize {
		end := start + markSentBatchSize
		if end > len(ids) {
			end = len(ids)
		}
		batch := ids[start:end]
		placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(batch)), ", ")
		args := make([]interface{}, len(batch))
		for i, id := range batch {
			args[i] = id
		}
		err := s.db.Exec(ctx,
			`UPDATE detected_changes SET notification_sent = 1 WHERE id IN (`+placeholders+`)`, args...)
		if err != nil {
			return fmt.Errorf("marking %d notifications sent: %w", len(batch), err)
		}
	}
	return nil
}
