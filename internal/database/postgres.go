package database

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/lib/pq"
)

//go:embed schema.sql
var schema string

type PostgresDB struct {
	db *sql.DB
}

func NewPostgresDB(ctx context.Context, connectionString string) (*PostgresDB, error) {
	db, err := sql.Open("postgres", connectionString)
	if err != nil {
		return nil, err
	}

	// Test connection
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}

	return &PostgresDB{db: db}, nil
}

// Migrate creates the tables if they do not exist.
func (p *PostgresDB) Migrate(ctx context.Context) error {
	if _, err := p.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("migrate: %w", err)
	}
	return nil
}

func (p *PostgresDB) Close() error { return p.db.Close() }

// notFound folds "no rows" and malformed UUIDs into ErrNotFound.
func notFound(err error) error {
	if errors.Is(err, sql.ErrNoRows) {
		return ErrNotFound
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) && pqErr.Code == "22P02" { // invalid_text_representation
		return ErrNotFound
	}
	return err
}

// SaveItems inserts a batch in one transaction; either every item lands or none.
func (p *PostgresDB) SaveItems(ctx context.Context, items []*PortfolioItem) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareContext(ctx, `
        INSERT INTO portfolio_items (id, user_id, filename, content_type, size, storage_key, url, uploaded_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `)
	if err != nil {
		return err
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, it := range items {
		if it.ID == "" {
			it.ID = uuid.NewString()
		}
		if it.UploadedAt.IsZero() {
			it.UploadedAt = now
		}
		if _, err := stmt.ExecContext(ctx,
			it.ID, it.UserID, it.Filename, it.ContentType, it.Size, it.StorageKey, it.URL, it.UploadedAt,
		); err != nil {
			return fmt.Errorf("insert item %s: %w", it.Filename, err)
		}
	}
	return tx.Commit()
}

func (p *PostgresDB) GetItem(ctx context.Context, itemID string) (*PortfolioItem, error) {
	query := `
        SELECT id, user_id, filename, content_type, size, storage_key, url, uploaded_at, deleted_at
        FROM portfolio_items
        WHERE id = $1 AND deleted_at IS NULL
    `
	var it PortfolioItem
	err := p.db.QueryRowContext(ctx, query, itemID).Scan(
		&it.ID, &it.UserID, &it.Filename, &it.ContentType, &it.Size,
		&it.StorageKey, &it.URL, &it.UploadedAt, &it.DeletedAt,
	)
	if err != nil {
		return nil, notFound(err)
	}
	return &it, nil
}

func (p *PostgresDB) ListItems(ctx context.Context, userID string, limit, offset int) ([]*PortfolioItem, error) {
	query := `
        SELECT id, user_id, filename, content_type, size, storage_key, url, uploaded_at
        FROM portfolio_items
        WHERE user_id = $1 AND deleted_at IS NULL
        ORDER BY uploaded_at DESC, id
        LIMIT $2 OFFSET $3
    `
	rows, err := p.db.QueryContext(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var items []*PortfolioItem
	for rows.Next() {
		var it PortfolioItem
		if err := rows.Scan(&it.ID, &it.UserID, &it.Filename, &it.ContentType, &it.Size, &it.StorageKey, &it.URL, &it.UploadedAt); err != nil {
			return nil, err
		}
		items = append(items, &it)
	}
	return items, rows.Err()
}

func (p *PostgresDB) DeleteItem(ctx context.Context, itemID, userID string) error {
	query := `
        UPDATE portfolio_items
        SET deleted_at = NOW()
        WHERE id = $1 AND user_id = $2 AND deleted_at IS NULL
    `
	result, err := p.db.ExecContext(ctx, query, itemID, userID)
	if err != nil {
		return notFound(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) CreateMessage(ctx context.Context, m *Message) error {
	if m.ID == "" {
		m.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	m.CreatedAt, m.UpdatedAt = now, now

	_, err := p.db.ExecContext(ctx, `
        INSERT INTO messages (id, sender_id, receiver_id, body, booking_status, read, created_at, updated_at)
        VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
    `, m.ID, m.SenderID, m.ReceiverID, m.Body, string(m.BookingStatus), m.Read, m.CreatedAt, m.UpdatedAt)
	return err
}

func (p *PostgresDB) GetMessage(ctx context.Context, messageID string) (*Message, error) {
	var m Message
	var status string
	err := p.db.QueryRowContext(ctx, `
        SELECT id, sender_id, receiver_id, body, booking_status, read, created_at, updated_at
        FROM messages
        WHERE id = $1
    `, messageID).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &status, &m.Read, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	m.BookingStatus = BookingStatus(status)
	return &m, nil
}

func (p *PostgresDB) CountUnread(ctx context.Context, userID string) (int, error) {
	var n int
	err := p.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM messages WHERE receiver_id = $1 AND NOT read`, userID,
	).Scan(&n)
	return n, err
}

func (p *PostgresDB) MarkRead(ctx context.Context, messageID, userID string) error {
	result, err := p.db.ExecContext(ctx, `
        UPDATE messages SET read = TRUE, updated_at = NOW()
        WHERE id = $1 AND receiver_id = $2
    `, messageID, userID)
	if err != nil {
		return notFound(err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrNotFound
	}
	return nil
}

func (p *PostgresDB) UpdateBookingStatus(ctx context.Context, messageID string, status BookingStatus) (*Message, error) {
	var m Message
	var st string
	err := p.db.QueryRowContext(ctx, `
        UPDATE messages SET booking_status = $2, updated_at = NOW()
        WHERE id = $1
        RETURNING id, sender_id, receiver_id, body, booking_status, read, created_at, updated_at
    `, messageID, string(status)).Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Body, &st, &m.Read, &m.CreatedAt, &m.UpdatedAt)
	if err != nil {
		return nil, notFound(err)
	}
	m.BookingStatus = BookingStatus(st)
	return &m, nil
}

func (p *PostgresDB) CreateProcessingJob(ctx context.Context, itemID string, maxRetries int) (int64, error) {
	var id int64
	err := p.db.QueryRowContext(ctx, `
        INSERT INTO processing_jobs (item_id, max_retries) VALUES ($1, $2) RETURNING id
    `, itemID, maxRetries).Scan(&id)
	return id, err
}

const jobColumns = `id, item_id, status, retry_count, max_retries, error_message,
        thumbnail_small, thumbnail_medium, thumbnail_large,
        original_width, original_height, created_at, updated_at, completed_at`

func scanJob(row interface{ Scan(...any) error }) (*ProcessingJob, error) {
	var j ProcessingJob
	var status string
	err := row.Scan(&j.ID, &j.ItemID, &status, &j.RetryCount, &j.MaxRetries, &j.ErrorMessage,
		&j.ThumbnailSmall, &j.ThumbnailMedium, &j.ThumbnailLarge,
		&j.OriginalWidth, &j.OriginalHeight, &j.CreatedAt, &j.UpdatedAt, &j.CompletedAt)
	if err != nil {
		return nil, err
	}
	j.Status = JobStatus(status)
	return &j, nil
}

// GetNextPendingJob claims the oldest pending job, or returns nil when the
// queue is empty. Concurrent workers never claim the same row.
func (p *PostgresDB) GetNextPendingJob(ctx context.Context) (*ProcessingJob, error) {
	row := p.db.QueryRowContext(ctx, `
        UPDATE processing_jobs SET status = 'processing', updated_at = NOW()
        WHERE id = (
            SELECT id FROM processing_jobs
            WHERE status = 'pending'
            ORDER BY created_at, id
            LIMIT 1
            FOR UPDATE SKIP LOCKED
        )
        RETURNING `+jobColumns)
	job, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	return job, err
}

func (p *PostgresDB) UpdateJobStatus(ctx context.Context, jobID int64, status JobStatus, errorMsg string) error {
	_, err := p.db.ExecContext(ctx, `
        UPDATE processing_jobs SET status = $2, error_message = $3, updated_at = NOW()
        WHERE id = $1
    `, jobID, string(status), errorMsg)
	return err
}

// FailJob records an attempt failure. The job goes back to pending until
// its retries are used up, then it is marked failed.
func (p *PostgresDB) FailJob(ctx context.Context, jobID int64, errorMsg string) (JobStatus, error) {
	var status string
	err := p.db.QueryRowContext(ctx, `
        UPDATE processing_jobs
        SET retry_count = retry_count + 1,
            status = CASE WHEN retry_count + 1 >= max_retries THEN 'failed' ELSE 'pending' END,
            error_message = $2,
            updated_at = NOW()
        WHERE id = $1
        RETURNING status
    `, jobID, errorMsg).Scan(&status)
	if err != nil {
		return "", notFound(err)
	}
	return JobStatus(status), nil
}

func (p *PostgresDB) CompleteJob(ctx context.Context, jobID int64, res ThumbnailResult) error {
	_, err := p.db.ExecContext(ctx, `
        UPDATE processing_jobs
        SET status = 'completed', error_message = '',
            thumbnail_small = $2, thumbnail_medium = $3, thumbnail_large = $4,
            original_width = $5, original_height = $6,
            updated_at = NOW(), completed_at = NOW()
        WHERE id = $1
    `, jobID, res.Small, res.Medium, res.Large, res.Width, res.Height)
	return err
}

func (p *PostgresDB) GetJobByItemID(ctx context.Context, itemID string) (*ProcessingJob, error) {
	row := p.db.QueryRowContext(ctx, `
        SELECT `+jobColumns+`
        FROM processing_jobs
        WHERE item_id = $1
        ORDER BY id DESC
        LIMIT 1
    `, itemID)
	job, err := scanJob(row)
	if err != nil {
		return nil, notFound(err)
	}
	return job, nil
}
