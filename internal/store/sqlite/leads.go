package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/onsitehq/leadq/internal/cursor"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/events"
	"github.com/onsitehq/leadq/internal/store"
)

const leadColumns = `external_id, phone_normalized, merged_from, lead_status, sales_stage,
	lead_name, fields, source, created_at, last_updated`

type scanner interface {
	Scan(dest ...interface{}) error
}

// scanLead reads one leads row. The raw last_updated string is returned for
// cursor construction.
func scanLead(sc scanner) (*domain.Lead, string, error) {
	var (
		l                      domain.Lead
		mergedFrom, fields     string
		status, stage, name    string
		createdAt, lastUpdated string
	)
	if err := sc.Scan(&l.ExternalID, &l.PhoneNormalized, &mergedFrom, &status, &stage,
		&name, &fields, &l.Source, &createdAt, &lastUpdated); err != nil {
		return nil, "", err
	}
	decoded, err := store.DecodeFields(fields)
	if err != nil {
		return nil, "", fmt.Errorf("lead %s: %w", l.ExternalID, err)
	}
	l.Fields = decoded
	l.MergedFrom = domain.SplitMergedFrom(mergedFrom)
	l.CreatedAt = db.ParseTime(createdAt)
	l.LastUpdated = db.ParseTime(lastUpdated)
	return &l, lastUpdated, nil
}

// Get returns one lead by external id.
func (s *Store) Get(ctx context.Context, externalID string) (*domain.Lead, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+leadColumns+" FROM leads WHERE external_id = ?", externalID)
	l, _, err := scanLead(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, store.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get lead %s: %w", externalID, err)
	}
	return l, nil
}

// ScanAll returns every lead ordered by external id.
func (s *Store) ScanAll(ctx context.Context) ([]*domain.Lead, error) {
	rows, err := s.db.QueryContext(ctx, "SELECT "+leadColumns+" FROM leads ORDER BY external_id")
	if err != nil {
		return nil, fmt.Errorf("failed to scan leads: %w", err)
	}
	defer rows.Close()

	var leads []*domain.Lead
	for rows.Next() {
		l, _, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// BulkInsert inserts leads in one transaction and logs lead.created events.
func (s *Store) BulkInsert(ctx context.Context, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	batchID := store.BatchID(ctx)

	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO leads (`+leadColumns+`)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, l := range leads {
			fields, err := store.EncodeFields(l.Fields)
			if err != nil {
				return err
			}
			l.CreatedAt = s.stamp(l.CreatedAt)
			l.LastUpdated = s.stamp(l.LastUpdated)
			if _, err := stmt.ExecContext(ctx, l.ExternalID, l.PhoneNormalized, domain.JoinMergedFrom(l.MergedFrom),
				l.Status(), l.Stage(), l.Name(), fields, l.Source,
				db.FormatTime(l.CreatedAt), db.FormatTime(l.LastUpdated)); err != nil {
				return fmt.Errorf("failed to insert lead %s: %w", l.ExternalID, err)
			}
			if err := ew.LogLeadCreated(tx, batchID, l); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkUpdate replaces stored leads in one transaction and logs
// lead.updated (or lead.merged) events.
func (s *Store) BulkUpdate(ctx context.Context, updates []domain.LeadUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	batchID := store.BatchID(ctx)

	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		stmt, err := tx.PrepareContext(ctx, `
			UPDATE leads
			SET phone_normalized = ?, merged_from = ?, lead_status = ?, sales_stage = ?,
				lead_name = ?, fields = ?, source = ?, last_updated = ?
			WHERE external_id = ?
		`)
		if err != nil {
			return fmt.Errorf("failed to prepare update: %w", err)
		}
		defer stmt.Close()

		for _, u := range updates {
			l := u.Lead
			fields, err := store.EncodeFields(l.Fields)
			if err != nil {
				return err
			}
			l.LastUpdated = s.stamp(l.LastUpdated)
			res, err := stmt.ExecContext(ctx, l.PhoneNormalized, domain.JoinMergedFrom(l.MergedFrom),
				l.Status(), l.Stage(), l.Name(), fields, l.Source, db.FormatTime(l.LastUpdated), l.ExternalID)
			if err != nil {
				return fmt.Errorf("failed to update lead %s: %w", l.ExternalID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("failed to update lead %s: %w", l.ExternalID, store.ErrNotFound)
			}
			if err := ew.LogLeadUpdated(tx, batchID, u); err != nil {
				return err
			}
		}
		return nil
	})
}

// BulkDelete removes leads in one transaction and logs lead.deleted events.
// Unknown ids are ignored.
func (s *Store) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	batchID := store.BatchID(ctx)

	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		for _, id := range ids {
			res, err := tx.ExecContext(ctx, "DELETE FROM leads WHERE external_id = ?", id)
			if err != nil {
				return fmt.Errorf("failed to delete lead %s: %w", id, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				continue
			}
			if err := ew.LogLeadDeleted(tx, batchID, id); err != nil {
				return err
			}
		}
		return nil
	})
}

// Count returns the number of stored leads.
func (s *Store) Count(ctx context.Context) (int, error) {
	var n int
	if err := s.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM leads").Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return n, nil
}

// ListLeads returns one page of leads and the cursor for the next page
// ("" when there is none).
func (s *Store) ListLeads(ctx context.Context, opts store.ListOptions) ([]*domain.Lead, string, error) {
	ordering, err := opts.Ordering()
	if err != nil {
		return nil, "", err
	}
	page, err := cursor.Apply(opts.Cursor, ordering)
	if err != nil {
		return nil, "", err
	}

	var where []string
	var args []interface{}
	if opts.Status != "" {
		where = append(where, "lead_status = ? COLLATE NOCASE")
		args = append(args, opts.Status)
	}
	if opts.Source != "" {
		where = append(where, "source = ?")
		args = append(args, opts.Source)
	}
	if page.WhereClause != "" {
		where = append(where, page.WhereClause)
		args = append(args, page.Params...)
	}

	query := "SELECT " + leadColumns + " FROM leads"
	if len(where) > 0 {
		query += " WHERE " + strings.Join(where, " AND ")
	}
	query += " " + page.OrderByClause
	if page.LimitParam != nil {
		query += " " + page.LimitClause
		args = append(args, *page.LimitParam)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, "", fmt.Errorf("failed to list leads: %w", err)
	}
	defer rows.Close()

	var leads []*domain.Lead
	var stamps []string
	for rows.Next() {
		l, lastUpdated, err := scanLead(rows)
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
		stamps = append(stamps, lastUpdated)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}

	if opts.Limit <= 0 || len(leads) <= opts.Limit {
		return leads, "", nil
	}
	leads = leads[:opts.Limit]
	next, err := opts.NextCursor(leads[len(leads)-1], stamps[opts.Limit-1])
	if err != nil {
		return nil, "", err
	}
	return leads, next, nil
}

// Clear deletes all leads, history and events.
func (s *Store) Clear(ctx context.Context) error {
	return s.withTx(ctx, func(tx *sql.Tx, ew *events.Writer) error {
		for _, table := range []string{"phone_merges", "upload_history", "leads", "event_log"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return ew.LogCleared(tx)
	})
}
