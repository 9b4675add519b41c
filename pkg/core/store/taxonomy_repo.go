package store

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"xbrl_crawler/pkg/core/taxonomy"
)

// TaxonomyRepo is the postgres-backed taxonomy.Store. Content placement
// follows the configured inline threshold: small files live in the row's
// bytea column, larger ones in a postgres large object referenced by oid.
//
// Schema assumption:
// CREATE TABLE IF NOT EXISTS taxonomy_files (
//   id UUID PRIMARY KEY,
//   namespace TEXT NOT NULL DEFAULT '',
//   filename TEXT NOT NULL,
//   file_type TEXT NOT NULL,
//   source_type TEXT NOT NULL,
//   size_bytes BIGINT NOT NULL,
//   content_hash TEXT NOT NULL UNIQUE,
//   file_content BYTEA,
//   file_oid OID,
//   is_compressed BOOLEAN NOT NULL DEFAULT FALSE,
//   compression_type TEXT NOT NULL DEFAULT 'none',
//   source_url TEXT NOT NULL DEFAULT '',
//   download_url TEXT NOT NULL DEFAULT '',
//   processing_status TEXT NOT NULL,
//   created_at TIMESTAMPTZ NOT NULL,
//   updated_at TIMESTAMPTZ NOT NULL
// );
type TaxonomyRepo struct {
	cfg taxonomy.StoreConfig
}

// NewTaxonomyRepo creates the repository. The pool must be initialized via
// InitDB before use.
func NewTaxonomyRepo(cfg taxonomy.StoreConfig) *TaxonomyRepo {
	if cfg.MaxInlineBytes <= 0 {
		cfg.MaxInlineBytes = taxonomy.DefaultStoreConfig().MaxInlineBytes
	}
	return &TaxonomyRepo{cfg: cfg}
}

const taxonomyColumns = `id, namespace, filename, file_type, source_type, size_bytes,
	content_hash, file_content, file_oid, is_compressed, compression_type,
	source_url, download_url, processing_status, created_at, updated_at`

// Put stores content under its hash. The UNIQUE(content_hash) constraint
// makes the get-or-insert atomic across concurrent writers: losers of the
// insert race fall through to reading the winner's row.
func (r *TaxonomyRepo) Put(ctx context.Context, content []byte, meta taxonomy.FileMeta) (*taxonomy.TaxonomyFile, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	hash := taxonomy.HashContent(content)
	if existing, err := r.GetByHash(ctx, hash); err == nil {
		return existing, nil
	} else if err != taxonomy.ErrNotFound {
		return nil, err
	}

	stored := content
	compressed := false
	if r.cfg.CompressionEnabled {
		gz, err := taxonomy.GzipContent(content)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", meta.Filename, err)
		}
		stored = gz
		compressed = true
	}

	now := time.Now().UTC()
	file := &taxonomy.TaxonomyFile{
		ID:               uuid.New(),
		Namespace:        meta.Namespace,
		Filename:         meta.Filename,
		FileType:         meta.FileType,
		SourceType:       meta.SourceType,
		SizeBytes:        int64(len(content)),
		ContentHash:      hash,
		IsCompressed:     compressed,
		CompressionType:  taxonomy.CompressionNone,
		SourceURL:        meta.SourceURL,
		DownloadURL:      meta.DownloadURL,
		ProcessingStatus: taxonomy.StatusDownloaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if compressed {
		file.CompressionType = taxonomy.CompressionGzip
	}

	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin taxonomy insert: %w", err)
	}
	defer tx.Rollback(ctx)

	if len(stored) > r.cfg.MaxInlineBytes {
		lo := tx.LargeObjects()
		oid, err := lo.Create(ctx, 0)
		if err != nil {
			return nil, fmt.Errorf("create large object: %w", err)
		}
		obj, err := lo.Open(ctx, oid, pgx.LargeObjectModeWrite)
		if err != nil {
			return nil, fmt.Errorf("open large object: %w", err)
		}
		if _, err := obj.Write(stored); err != nil {
			return nil, fmt.Errorf("write large object: %w", err)
		}
		if err := obj.Close(); err != nil {
			return nil, fmt.Errorf("close large object: %w", err)
		}
		file.FileOID = &oid
	} else {
		file.FileContent = stored
	}

	query := `
		INSERT INTO taxonomy_files (` + taxonomyColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
		ON CONFLICT (content_hash) DO NOTHING`
	tag, err := tx.Exec(ctx, query,
		file.ID, file.Namespace, file.Filename, file.FileType, file.SourceType,
		file.SizeBytes, file.ContentHash, file.FileContent, file.FileOID,
		file.IsCompressed, file.CompressionType, file.SourceURL, file.DownloadURL,
		file.ProcessingStatus, file.CreatedAt, file.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("insert taxonomy file %s: %w", meta.Filename, err)
	}
	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit taxonomy insert: %w", err)
	}

	if tag.RowsAffected() == 0 {
		// Lost the race; a concurrent Put of the same content landed first.
		return r.GetByHash(ctx, hash)
	}
	return file, nil
}

// GetByID returns the record with the given id.
func (r *TaxonomyRepo) GetByID(ctx context.Context, id uuid.UUID) (*taxonomy.TaxonomyFile, error) {
	return r.queryOne(ctx, `WHERE id = $1`, id)
}

// GetByHash returns the record for a content hash.
func (r *TaxonomyRepo) GetByHash(ctx context.Context, hash string) (*taxonomy.TaxonomyFile, error) {
	return r.queryOne(ctx, `WHERE content_hash = $1`, hash)
}

// GetByName looks a file up by namespace and filename. An empty namespace
// matches any namespace, the dedup key DTS resolution uses.
func (r *TaxonomyRepo) GetByName(ctx context.Context, namespace, filename string) (*taxonomy.TaxonomyFile, error) {
	if namespace != "" {
		return r.queryOne(ctx, `WHERE namespace = $1 AND filename = $2`, namespace, filename)
	}
	return r.queryOne(ctx, `WHERE filename = $1 ORDER BY created_at LIMIT 1`, filename)
}

func (r *TaxonomyRepo) queryOne(ctx context.Context, where string, args ...any) (*taxonomy.TaxonomyFile, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}
	row := pool.QueryRow(ctx, `SELECT `+taxonomyColumns+` FROM taxonomy_files `+where, args...)
	file, err := scanTaxonomyFile(row)
	if err == pgx.ErrNoRows {
		return nil, taxonomy.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("query taxonomy file: %w", err)
	}
	return file, nil
}

// List returns records matching filter.
func (r *TaxonomyRepo) List(ctx context.Context, filter taxonomy.Filter) ([]*taxonomy.TaxonomyFile, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	query := `SELECT ` + taxonomyColumns + ` FROM taxonomy_files WHERE 1=1`
	var args []any
	if filter.FileType != "" {
		args = append(args, filter.FileType)
		query += fmt.Sprintf(" AND file_type = $%d", len(args))
	}
	if filter.SourceType != "" {
		args = append(args, filter.SourceType)
		query += fmt.Sprintf(" AND source_type = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		query += fmt.Sprintf(" AND processing_status = $%d", len(args))
	}
	query += " ORDER BY created_at"

	rows, err := pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("list taxonomy files: %w", err)
	}
	defer rows.Close()

	var out []*taxonomy.TaxonomyFile
	for rows.Next() {
		file, err := scanTaxonomyFile(rows)
		if err != nil {
			return nil, fmt.Errorf("scan taxonomy file: %w", err)
		}
		out = append(out, file)
	}
	return out, rows.Err()
}

// Content returns the raw (decompressed) bytes of a stored file, reading
// from the large-object tier when the row carries an oid.
func (r *TaxonomyRepo) Content(ctx context.Context, id uuid.UUID) ([]byte, error) {
	file, err := r.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	stored := file.FileContent
	if file.FileOID != nil {
		pool := GetPool()
		tx, err := pool.Begin(ctx)
		if err != nil {
			return nil, fmt.Errorf("begin large object read: %w", err)
		}
		defer tx.Rollback(ctx)

		los := tx.LargeObjects()
		obj, err := los.Open(ctx, *file.FileOID, pgx.LargeObjectModeRead)
		if err != nil {
			return nil, fmt.Errorf("open large object %d: %w", *file.FileOID, err)
		}
		stored, err = io.ReadAll(obj)
		obj.Close()
		if err != nil {
			return nil, fmt.Errorf("read large object %d: %w", *file.FileOID, err)
		}
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit large object read: %w", err)
		}
	}

	if file.IsCompressed {
		return taxonomy.GunzipContent(stored)
	}
	return stored, nil
}

// Stats summarizes the stored corpus in one aggregate query.
func (r *TaxonomyRepo) Stats(ctx context.Context) (*taxonomy.StoreStats, error) {
	pool := GetPool()
	if pool == nil {
		return nil, fmt.Errorf("database pool not initialized")
	}

	stats := &taxonomy.StoreStats{}
	err := pool.QueryRow(ctx, `
		SELECT COUNT(*),
		       COALESCE(SUM(size_bytes), 0),
		       COUNT(*) FILTER (WHERE file_oid IS NULL),
		       COUNT(*) FILTER (WHERE file_oid IS NOT NULL),
		       COUNT(*) FILTER (WHERE is_compressed)
		FROM taxonomy_files`).Scan(
		&stats.TotalFiles, &stats.TotalSizeBytes, &stats.InlineFiles,
		&stats.LargeObjectFiles, &stats.CompressedFiles)
	if err != nil {
		return nil, fmt.Errorf("taxonomy store stats: %w", err)
	}
	return stats, nil
}

func scanTaxonomyFile(row pgx.Row) (*taxonomy.TaxonomyFile, error) {
	var f taxonomy.TaxonomyFile
	err := row.Scan(&f.ID, &f.Namespace, &f.Filename, &f.FileType, &f.SourceType,
		&f.SizeBytes, &f.ContentHash, &f.FileContent, &f.FileOID,
		&f.IsCompressed, &f.CompressionType, &f.SourceURL, &f.DownloadURL,
		&f.ProcessingStatus, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

