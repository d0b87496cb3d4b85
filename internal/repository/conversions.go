package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/pdf2text/constants"
	"github.com/joseph-ayodele/pdf2text/internal/common"
	"github.com/joseph-ayodele/pdf2text/internal/entity"
)

type ConversionRepository interface {
	Insert(ctx context.Context, c *entity.Conversion) error
	Get(ctx context.Context, id uuid.UUID) (*entity.Conversion, error)
	ListRecent(ctx context.Context, limit int) ([]*entity.Conversion, error)
}

type conversionRepo struct {
	db  *sql.DB
	log *slog.Logger
}

func NewConversionRepository(db *sql.DB, log *slog.Logger) ConversionRepository {
	if log == nil {
		log = slog.Default()
	}
	return &conversionRepo{db: db, log: log}
}

// Insert stores c, filling in ID and CreatedAt when they are zero.
func (r *conversionRepo) Insert(ctx context.Context, c *entity.Conversion) error {
	if c.ID == uuid.Nil {
		c.ID = uuid.New()
	}
	if c.CreatedAt.IsZero() {
		c.CreatedAt = time.Now().UTC()
	}
	_, err := r.db.ExecContext(ctx, `
		INSERT INTO conversions (id, filename, content_hash, language, max_pages, pages_processed,
			total_pages, truncated, status, error_message, artifact_path, engine, elapsed_ms, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.ID.String(), c.Filename, c.ContentHash, c.Language, c.MaxPages, c.PagesProcessed,
		c.TotalPages, c.Truncated, string(c.Status), c.ErrorMessage, c.ArtifactPath, c.Engine,
		c.ElapsedMS, c.CreatedAt.UnixMilli(),
	)
	if err != nil {
		r.log.Error("conversion insert failed", "filename", c.Filename, "err", err)
		return fmt.Errorf("insert conversion: %w", err)
	}
	r.log.Debug("conversion recorded", "id", c.ID, "filename", c.Filename, "status", c.Status)
	return nil
}

func (r *conversionRepo) Get(ctx context.Context, id uuid.UUID) (*entity.Conversion, error) {
	row := r.db.QueryRowContext(ctx, selectConversion+` WHERE id = ?`, id.String())
	c, err := scanConversion(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, common.NewAppError("NOT_FOUND", "conversion not found", common.ErrNotFound)
	}
	if err != nil {
		r.log.Error("conversion get failed", "id", id, "err", err)
		return nil, err
	}
	return c, nil
}

// ListRecent returns up to limit conversions, newest first. limit <= 0 means all.
func (r *conversionRepo) ListRecent(ctx context.Context, limit int) ([]*entity.Conversion, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := r.db.QueryContext(ctx, selectConversion+` ORDER BY created_at DESC, rowid DESC LIMIT ?`, limit)
	if err != nil {
		r.log.Error("conversion list failed", "err", err)
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var out []*entity.Conversion
	for rows.Next() {
		c, err := scanConversion(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

const selectConversion = `
	SELECT id, filename, content_hash, language, max_pages, pages_processed, total_pages,
		truncated, status, error_message, artifact_path, engine, elapsed_ms, created_at
	FROM conversions`

type scanner interface {
	Scan(dest ...any) error
}

func scanConversion(s scanner) (*entity.Conversion, error) {
	var (
		c         entity.Conversion
		id        string
		status    string
		errMsg    sql.NullString
		artifact  sql.NullString
		createdMS int64
	)
	if err := s.Scan(&id, &c.Filename, &c.ContentHash, &c.Language, &c.MaxPages, &c.PagesProcessed,
		&c.TotalPages, &c.Truncated, &status, &errMsg, &artifact, &c.Engine, &c.ElapsedMS, &createdMS); err != nil {
		return nil, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return nil, fmt.Errorf("bad conversion id %q: %w", id, err)
	}
	c.ID = parsed
	c.Status = constants.ConversionStatus(status)
	if errMsg.Valid {
		c.ErrorMessage = &errMsg.String
	}
	if artifact.Valid {
		c.ArtifactPath = &artifact.String
	}
	c.CreatedAt = time.UnixMilli(createdMS).UTC()
	return &c, nil
}
