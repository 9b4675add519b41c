package taxonomy

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"sync"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned by Get* methods when no record matches.
var ErrNotFound = fmt.Errorf("taxonomy file not found")

// Store is the persistence boundary for taxonomy files.
//
// Put is content-addressed: the store hashes content first and, if a record
// with that hash already exists, returns it unchanged without writing. The
// lookup-then-insert is atomic with respect to concurrent Puts of the same
// content, so two filings racing on the same standard taxonomy file end up
// sharing one record.
type Store interface {
	Put(ctx context.Context, content []byte, meta FileMeta) (*TaxonomyFile, error)
	GetByID(ctx context.Context, id uuid.UUID) (*TaxonomyFile, error)
	GetByHash(ctx context.Context, hash string) (*TaxonomyFile, error)
	GetByName(ctx context.Context, namespace, filename string) (*TaxonomyFile, error)
	List(ctx context.Context, filter Filter) ([]*TaxonomyFile, error)
	Content(ctx context.Context, id uuid.UUID) ([]byte, error)
	Stats(ctx context.Context) (*StoreStats, error)
}

// StoreConfig controls content placement and compression.
type StoreConfig struct {
	// MaxInlineBytes is the size threshold above which content goes to
	// out-of-line large-object storage instead of the record itself.
	MaxInlineBytes int
	// CompressionEnabled gzips content before storing.
	CompressionEnabled bool
}

// DefaultStoreConfig mirrors production defaults: compress, and keep files up
// to 10MB inline.
func DefaultStoreConfig() StoreConfig {
	return StoreConfig{
		MaxInlineBytes:     10 * 1024 * 1024,
		CompressionEnabled: true,
	}
}

// MemoryStore is a Store for development and tests. Concurrency discipline
// matches the persistent implementation: one lock guards the hash index so
// get-or-insert is atomic.
type MemoryStore struct {
	cfg StoreConfig

	mu      sync.RWMutex
	byHash  map[string]*TaxonomyFile
	byID    map[uuid.UUID]*TaxonomyFile
	byName  map[string]*TaxonomyFile // namespace + "\x00" + filename
	objects map[uint32][]byte        // simulated large-object tier
	nextOID uint32
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore(cfg StoreConfig) *MemoryStore {
	if cfg.MaxInlineBytes <= 0 {
		cfg.MaxInlineBytes = DefaultStoreConfig().MaxInlineBytes
	}
	return &MemoryStore{
		cfg:     cfg,
		byHash:  make(map[string]*TaxonomyFile),
		byID:    make(map[uuid.UUID]*TaxonomyFile),
		byName:  make(map[string]*TaxonomyFile),
		objects: make(map[uint32][]byte),
		nextOID: 1,
	}
}

func nameKey(namespace, filename string) string {
	return namespace + "\x00" + filename
}

// Put stores content under its hash, returning the existing record if the
// content was seen before.
func (s *MemoryStore) Put(ctx context.Context, content []byte, meta FileMeta) (*TaxonomyFile, error) {
	hash := HashContent(content)

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.byHash[hash]; ok {
		return existing, nil
	}

	stored := content
	compressed := false
	if s.cfg.CompressionEnabled {
		gz, err := gzipBytes(content)
		if err != nil {
			return nil, fmt.Errorf("compress %s: %w", meta.Filename, err)
		}
		stored = gz
		compressed = true
	}

	now := time.Now().UTC()
	file := &TaxonomyFile{
		ID:               uuid.New(),
		Namespace:        meta.Namespace,
		Filename:         meta.Filename,
		FileType:         meta.FileType,
		SourceType:       meta.SourceType,
		SizeBytes:        int64(len(content)),
		ContentHash:      hash,
		IsCompressed:     compressed,
		CompressionType:  CompressionNone,
		SourceURL:        meta.SourceURL,
		DownloadURL:      meta.DownloadURL,
		ProcessingStatus: StatusDownloaded,
		CreatedAt:        now,
		UpdatedAt:        now,
	}
	if compressed {
		file.CompressionType = CompressionGzip
	}

	if len(stored) > s.cfg.MaxInlineBytes {
		oid := s.nextOID
		s.nextOID++
		s.objects[oid] = stored
		file.FileOID = &oid
	} else {
		file.FileContent = stored
	}

	s.byHash[hash] = file
	s.byID[file.ID] = file
	s.byName[nameKey(meta.Namespace, meta.Filename)] = file

	return file, nil
}

// GetByID returns the record with the given id.
func (s *MemoryStore) GetByID(ctx context.Context, id uuid.UUID) (*TaxonomyFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.byID[id]; ok {
		return f, nil
	}
	return nil, ErrNotFound
}

// GetByHash returns the record for a content hash.
func (s *MemoryStore) GetByHash(ctx context.Context, hash string) (*TaxonomyFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if f, ok := s.byHash[hash]; ok {
		return f, nil
	}
	return nil, ErrNotFound
}

// GetByName looks a file up by namespace and filename. An empty namespace
// matches any namespace with that filename, which is how DTS resolution keys
// its dedup lookup (hrefs rarely carry the namespace).
func (s *MemoryStore) GetByName(ctx context.Context, namespace, filename string) (*TaxonomyFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if namespace != "" {
		if f, ok := s.byName[nameKey(namespace, filename)]; ok {
			return f, nil
		}
		return nil, ErrNotFound
	}
	for _, f := range s.byName {
		if f.Filename == filename {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// List returns records matching filter, in no particular order.
func (s *MemoryStore) List(ctx context.Context, filter Filter) ([]*TaxonomyFile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*TaxonomyFile
	for _, f := range s.byID {
		if filter.FileType != "" && f.FileType != filter.FileType {
			continue
		}
		if filter.SourceType != "" && f.SourceType != filter.SourceType {
			continue
		}
		if filter.Status != "" && f.ProcessingStatus != filter.Status {
			continue
		}
		out = append(out, f)
	}
	return out, nil
}

// Content returns the raw (decompressed) bytes of a stored file.
func (s *MemoryStore) Content(ctx context.Context, id uuid.UUID) ([]byte, error) {
	s.mu.RLock()
	f, ok := s.byID[id]
	var stored []byte
	if ok {
		if f.FileOID != nil {
			stored = s.objects[*f.FileOID]
		} else {
			stored = f.FileContent
		}
	}
	s.mu.RUnlock()

	if !ok {
		return nil, ErrNotFound
	}
	if f.IsCompressed {
		return gunzipBytes(stored)
	}
	return stored, nil
}

// Stats summarizes the store.
func (s *MemoryStore) Stats(ctx context.Context) (*StoreStats, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	stats := &StoreStats{}
	for _, f := range s.byID {
		stats.TotalFiles++
		stats.TotalSizeBytes += f.SizeBytes
		if f.IsInline() {
			stats.InlineFiles++
		} else {
			stats.LargeObjectFiles++
		}
		if f.IsCompressed {
			stats.CompressedFiles++
		}
	}
	return stats, nil
}

// GzipContent compresses content for storage.
func GzipContent(content []byte) ([]byte, error) {
	return gzipBytes(content)
}

// GunzipContent reverses GzipContent.
func GunzipContent(stored []byte) ([]byte, error) {
	return gunzipBytes(stored)
}

func gzipBytes(content []byte) ([]byte, error) {
	var buf bytes.Buffer
	gz := gzip.NewWriter(&buf)
	if _, err := gz.Write(content); err != nil {
		return nil, err
	}
	if err := gz.Close(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func gunzipBytes(stored []byte) ([]byte, error) {
	gz, err := gzip.NewReader(bytes.NewReader(stored))
	if err != nil {
		return nil, fmt.Errorf("open gzip stream: %w", err)
	}
	defer gz.Close()
	raw, err := io.ReadAll(gz)
	if err != nil {
		return nil, fmt.Errorf("decompress content: %w", err)
	}
	return raw, nil
}
