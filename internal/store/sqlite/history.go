package sqlite

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/events"
	"github.com/onsitehq/leadq/internal/store"
)

// RecordUpload appends the batch and its phone merges to history.
func (s *Store) RecordUpload(ctx context.Context, batch *domain.UploadBatch, merges []domain.PhoneMerge) error {
	changes, err := store.EncodeChanges(batch.ChangesByField)
	if err != nil {
		return err
	}
	batch.UploadedAt = s.stamp(batch.UploadedAt)

	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO upload_history (
				id, file_name, source, uploaded_at, total_rows, new_leads, updated_leads,
				unchanged_leads, skipped_rows, phone_merged, total_after, changes_by_field, duration_ms
			)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`, batch.ID, batch.FileName, batch.Source, db.FormatTime(batch.UploadedAt), batch.TotalRows,
			batch.NewLeads, batch.UpdatedLeads, batch.UnchangedLeads, batch.SkippedRows,
			batch.PhoneMerged, batch.TotalAfter, changes, batch.DurationMS)
		if err != nil {
			return fmt.Errorf("failed to record upload %s: %w", batch.ID, err)
		}

		for i := range merges {
			m := &merges[i]
			m.BatchID = batch.ID
			m.CreatedAt = s.stamp(m.CreatedAt)
			res, err := tx.ExecContext(ctx, `
				INSERT INTO phone_merges (batch_id, phone, kept_lead_id, kept_name, merged_count, merged_ids, created_at)
				VALUES (?, ?, ?, ?, ?, ?, ?)
			`, m.BatchID, m.Phone, m.KeptLeadID, m.KeptName, m.MergedCount,
				domain.JoinMergedFrom(m.MergedIDs), db.FormatTime(m.CreatedAt))
			if err != nil {
				return fmt.Errorf("failed to record phone merge for %s: %w", m.Phone, err)
			}
			m.ID, _ = res.LastInsertId()
		}

		return ew.LogBatchRecorded(tx, batch, len(merges))
	})
}

// ListUploads returns upload batches newest first. limit <= 0 returns all.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]*domain.UploadBatch, error) {
	query := `
		SELECT id, file_name, source, uploaded_at, total_rows, new_leads, updated_leads,
			unchanged_leads, skipped_rows, phone_merged, total_after, changes_by_field, duration_ms
		FROM upload_history
		ORDER BY uploaded_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var out []*domain.UploadBatch
	for rows.Next() {
		var b domain.UploadBatch
		var uploadedAt, changes string
		if err := rows.Scan(&b.ID, &b.FileName, &b.Source, &uploadedAt, &b.TotalRows, &b.NewLeads,
			&b.UpdatedLeads, &b.UnchangedLeads, &b.SkippedRows, &b.PhoneMerged, &b.TotalAfter,
			&changes, &b.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		b.UploadedAt = db.ParseTime(uploadedAt)
		if b.ChangesByField, err = store.DecodeChanges(changes); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ListPhoneMerges returns phone merges newest first. limit <= 0 returns all.
func (s *Store) ListPhoneMerges(ctx context.Context, limit int) ([]*domain.PhoneMerge, error) {
	query := `
		SELECT id, batch_id, phone, kept_lead_id, kept_name, merged_count, merged_ids, created_at
		FROM phone_merges
		ORDER BY created_at DESC, id DESC`
	var args []interface{}
	if limit > 0 {
		query += " LIMIT ?"
		args = append(args, limit)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list phone merges: %w", err)
	}
	defer rows.Close()

	var out []*domain.PhoneMerge
	for rows.Next() {
		var m domain.PhoneMerge
		var mergedIDs, createdAt string
		if err := rows.Scan(&m.ID, &m.BatchID, &m.Phone, &m.KeptLeadID, &m.KeptName,
			&m.MergedCount, &mergedIDs, &createdAt); err != nil {
			return nil, fmt.Errorf("failed to scan phone merge: %w", err)
		}
		m.MergedIDs = domain.SplitMergedFrom(mergedIDs)
		m.CreatedAt = db.ParseTime(createdAt)
		out = append(out, &m)
	}
	return out, rows.Err()
}
