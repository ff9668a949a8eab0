// Package postgres is the shared-server record store, for deployments where
// several operators import into one database.
package postgres

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/onsitehq/leadq/internal/cursor"
	"github.com/onsitehq/leadq/internal/db"
	"github.com/onsitehq/leadq/internal/domain"
	"github.com/onsitehq/leadq/internal/store"
)

//go:embed schema.sql
var schemaSQL string

// insertChunk bounds the rows sent in one multi-row INSERT.
const insertChunk = 500

var leadColumns = []string{
	"external_id", "phone_normalized", "merged_from", "lead_status", "sales_stage",
	"lead_name", "fields", "source", "created_at", "last_updated",
}

var uploadColumns = []string{
	"id", "file_name", "source", "uploaded_at", "total_rows", "new_leads", "updated_leads",
	"unchanged_leads", "skipped_rows", "phone_merged", "total_after", "changes_by_field", "duration_ms",
}

var mergeColumns = []string{
	"id", "batch_id", "phone", "kept_lead_id", "kept_name", "merged_count", "merged_ids", "created_at",
}

// Store implements store.Store on PostgreSQL.
type Store struct {
	db   *sql.DB
	psql sq.StatementBuilderType
	now  func() time.Time
}

var _ store.Store = (*Store)(nil)

// New wraps an open connection. Tests pass a sqlmock connection here.
func New(conn *sql.DB) *Store {
	return &Store{
		db:   conn,
		psql: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
		now:  func() time.Time { return time.Now().UTC() },
	}
}

// Open connects through the pgx stdlib driver and pings the server.
func Open(ctx context.Context, databaseURL string) (*Store, error) {
	conn, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	conn.SetConnMaxIdleTime(5 * time.Minute)
	conn.SetConnMaxLifetime(30 * time.Minute)
	conn.SetMaxIdleConns(5)
	conn.SetMaxOpenConns(10)

	if err := conn.PingContext(ctx); err != nil {
		conn.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}
	return New(conn), nil
}

// EnsureSchema creates missing tables and indexes.
func (s *Store) EnsureSchema(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, schemaSQL); err != nil {
		return fmt.Errorf("failed to apply schema: %w", err)
	}
	return nil
}

// Close closes the connection pool.
func (s *Store) Close() error {
	return s.db.Close()
}

// WithTransaction executes fn within a transaction
func (s *Store) WithTransaction(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(tx); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

func (s *Store) stamp(t time.Time) time.Time {
	if t.IsZero() {
		return s.now()
	}
	return t.UTC()
}

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanLead(sc scanner) (*domain.Lead, error) {
	var (
		l                   domain.Lead
		mergedFrom, fields  string
		status, stage, name string
	)
	if err := sc.Scan(&l.ExternalID, &l.PhoneNormalized, &mergedFrom, &status, &stage,
		&name, &fields, &l.Source, &l.CreatedAt, &l.LastUpdated); err != nil {
		return nil, err
	}
	decoded, err := store.DecodeFields(fields)
	if err != nil {
		return nil, fmt.Errorf("lead %s: %w", l.ExternalID, err)
	}
	l.Fields = decoded
	l.MergedFrom = domain.SplitMergedFrom(mergedFrom)
	return &l, nil
}

// Get returns one lead by external id.
func (s *Store) Get(ctx context.Context, externalID string) (*domain.Lead, error) {
	query, args, err := s.psql.Select(leadColumns...).
		From("leads").
		Where(sq.Eq{"external_id": externalID}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	l, err := scanLead(s.db.QueryRowContext(ctx, query, args...))
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
	query, args, err := s.psql.Select(leadColumns...).From("leads").OrderBy("external_id").ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}
	return s.queryLeads(ctx, query, args)
}

func (s *Store) queryLeads(ctx context.Context, query string, args []interface{}) ([]*domain.Lead, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query leads: %w", err)
	}
	defer rows.Close()

	var leads []*domain.Lead
	for rows.Next() {
		l, err := scanLead(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan lead: %w", err)
		}
		leads = append(leads, l)
	}
	return leads, rows.Err()
}

// BulkInsert inserts leads with multi-row INSERTs in one transaction.
func (s *Store) BulkInsert(ctx context.Context, leads []*domain.Lead) error {
	if len(leads) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		for start := 0; start < len(leads); start += insertChunk {
			end := start + insertChunk
			if end > len(leads) {
				end = len(leads)
			}
			insert := s.psql.Insert("leads").Columns(leadColumns...)
			for _, l := range leads[start:end] {
				fields, err := store.EncodeFields(l.Fields)
				if err != nil {
					return err
				}
				l.CreatedAt = s.stamp(l.CreatedAt)
				l.LastUpdated = s.stamp(l.LastUpdated)
				insert = insert.Values(l.ExternalID, l.PhoneNormalized, domain.JoinMergedFrom(l.MergedFrom),
					l.Status(), l.Stage(), l.Name(), fields, l.Source, l.CreatedAt, l.LastUpdated)
			}
			query, args, err := insert.ToSql()
			if err != nil {
				return fmt.Errorf("failed to build insert: %w", err)
			}
			if _, err := tx.ExecContext(ctx, query, args...); err != nil {
				return fmt.Errorf("failed to insert leads: %w", err)
			}
		}
		return nil
	})
}

// BulkUpdate replaces stored leads in one transaction.
func (s *Store) BulkUpdate(ctx context.Context, updates []domain.LeadUpdate) error {
	if len(updates) == 0 {
		return nil
	}
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, u := range updates {
			l := u.Lead
			fields, err := store.EncodeFields(l.Fields)
			if err != nil {
				return err
			}
			l.LastUpdated = s.stamp(l.LastUpdated)
			query, args, err := s.psql.Update("leads").
				SetMap(sq.Eq{
					"phone_normalized": l.PhoneNormalized,
					"merged_from":      domain.JoinMergedFrom(l.MergedFrom),
					"lead_status":      l.Status(),
					"sales_stage":      l.Stage(),
					"lead_name":        l.Name(),
					"fields":           fields,
					"source":           l.Source,
					"last_updated":     l.LastUpdated,
				}).
				Where(sq.Eq{"external_id": l.ExternalID}).
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build update: %w", err)
			}
			res, err := tx.ExecContext(ctx, query, args...)
			if err != nil {
				return fmt.Errorf("failed to update lead %s: %w", l.ExternalID, err)
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("failed to update lead %s: %w", l.ExternalID, store.ErrNotFound)
			}
		}
		return nil
	})
}

// BulkDelete removes leads with a single statement. Unknown ids are ignored.
func (s *Store) BulkDelete(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	query, args, err := s.psql.Delete("leads").Where(sq.Eq{"external_id": ids}).ToSql()
	if err != nil {
		return fmt.Errorf("failed to build delete: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("failed to delete leads: %w", err)
	}
	return nil
}

// Count returns the number of stored leads.
func (s *Store) Count(ctx context.Context) (int, error) {
	query, args, err := s.psql.Select("COUNT(*)").From("leads").ToSql()
	if err != nil {
		return 0, fmt.Errorf("failed to build query: %w", err)
	}
	var n int
	if err := s.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, fmt.Errorf("failed to count leads: %w", err)
	}
	return n, nil
}

// RecordUpload appends the batch and its phone merges to history.
func (s *Store) RecordUpload(ctx context.Context, batch *domain.UploadBatch, merges []domain.PhoneMerge) error {
	changes, err := store.EncodeChanges(batch.ChangesByField)
	if err != nil {
		return err
	}
	batch.UploadedAt = s.stamp(batch.UploadedAt)

	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		query, args, err := s.psql.Insert("upload_history").
			Columns(uploadColumns...).
			Values(batch.ID, batch.FileName, batch.Source, batch.UploadedAt, batch.TotalRows,
				batch.NewLeads, batch.UpdatedLeads, batch.UnchangedLeads, batch.SkippedRows,
				batch.PhoneMerged, batch.TotalAfter, changes, batch.DurationMS).
			ToSql()
		if err != nil {
			return fmt.Errorf("failed to build insert: %w", err)
		}
		if _, err := tx.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("failed to record upload %s: %w", batch.ID, err)
		}

		for i := range merges {
			m := &merges[i]
			m.BatchID = batch.ID
			m.CreatedAt = s.stamp(m.CreatedAt)
			query, args, err := s.psql.Insert("phone_merges").
				Columns(mergeColumns[1:]...).
				Values(m.BatchID, m.Phone, m.KeptLeadID, m.KeptName, m.MergedCount,
					domain.JoinMergedFrom(m.MergedIDs), m.CreatedAt).
				Suffix("RETURNING id").
				ToSql()
			if err != nil {
				return fmt.Errorf("failed to build insert: %w", err)
			}
			if err := tx.QueryRowContext(ctx, query, args...).Scan(&m.ID); err != nil {
				return fmt.Errorf("failed to record phone merge for %s: %w", m.Phone, err)
			}
		}
		return nil
	})
}

// ListUploads returns upload batches newest first. limit <= 0 returns all.
func (s *Store) ListUploads(ctx context.Context, limit int) ([]*domain.UploadBatch, error) {
	q := s.psql.Select(uploadColumns...).From("upload_history").OrderBy("uploaded_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list uploads: %w", err)
	}
	defer rows.Close()

	var out []*domain.UploadBatch
	for rows.Next() {
		var b domain.UploadBatch
		var changes string
		if err := rows.Scan(&b.ID, &b.FileName, &b.Source, &b.UploadedAt, &b.TotalRows, &b.NewLeads,
			&b.UpdatedLeads, &b.UnchangedLeads, &b.SkippedRows, &b.PhoneMerged, &b.TotalAfter,
			&changes, &b.DurationMS); err != nil {
			return nil, fmt.Errorf("failed to scan upload: %w", err)
		}
		if b.ChangesByField, err = store.DecodeChanges(changes); err != nil {
			return nil, err
		}
		out = append(out, &b)
	}
	return out, rows.Err()
}

// ListPhoneMerges returns phone merges newest first. limit <= 0 returns all.
func (s *Store) ListPhoneMerges(ctx context.Context, limit int) ([]*domain.PhoneMerge, error) {
	q := s.psql.Select(mergeColumns...).From("phone_merges").OrderBy("created_at DESC", "id DESC")
	if limit > 0 {
		q = q.Limit(uint64(limit))
	}
	query, args, err := q.ToSql()
	if err != nil {
		return nil, fmt.Errorf("failed to build query: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list phone merges: %w", err)
	}
	defer rows.Close()

	var out []*domain.PhoneMerge
	for rows.Next() {
		var m domain.PhoneMerge
		var mergedIDs string
		if err := rows.Scan(&m.ID, &m.BatchID, &m.Phone, &m.KeptLeadID, &m.KeptName,
			&m.MergedCount, &mergedIDs, &m.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan phone merge: %w", err)
		}
		m.MergedIDs = domain.SplitMergedFrom(mergedIDs)
		out = append(out, &m)
	}
	return out, rows.Err()
}

// ListLeads returns one page of leads and the cursor for the next page.
func (s *Store) ListLeads(ctx context.Context, opts store.ListOptions) ([]*domain.Lead, string, error) {
	ordering, err := opts.Ordering()
	if err != nil {
		return nil, "", err
	}
	page, err := cursor.Apply(opts.Cursor, ordering)
	if err != nil {
		return nil, "", err
	}

	q := s.psql.Select(leadColumns...).From("leads")
	if opts.Status != "" {
		q = q.Where("LOWER(lead_status) = LOWER(?)", opts.Status)
	}
	if opts.Source != "" {
		q = q.Where(sq.Eq{"source": opts.Source})
	}
	if page.WhereClause != "" {
		q = q.Where(page.WhereClause, page.Params...)
	}
	q = q.OrderBy(page.OrderBy...)
	if page.LimitParam != nil {
		q = q.Limit(uint64(*page.LimitParam))
	}

	query, args, err := q.ToSql()
	if err != nil {
		return nil, "", fmt.Errorf("failed to build query: %w", err)
	}
	leads, err := s.queryLeads(ctx, query, args)
	if err != nil {
		return nil, "", err
	}

	if opts.Limit <= 0 || len(leads) <= opts.Limit {
		return leads, "", nil
	}
	leads = leads[:opts.Limit]
	last := leads[len(leads)-1]
	next, err := opts.NextCursor(last, db.FormatTime(last.LastUpdated))
	if err != nil {
		return nil, "", err
	}
	return leads, next, nil
}

// Clear deletes all leads and history.
func (s *Store) Clear(ctx context.Context) error {
	return s.WithTransaction(ctx, func(tx *sql.Tx) error {
		for _, table := range []string{"phone_merges", "upload_history", "leads"} {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+table); err != nil {
				return fmt.Errorf("failed to clear %s: %w", table, err)
			}
		}
		return nil
	})
}
