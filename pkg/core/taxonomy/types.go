// Package taxonomy models stored XBRL taxonomy files (schemas and linkbases)
// and provides content-addressed storage for them. A file is identified by the
// sha256 of its raw content: two references resolving to byte-identical
// content always map to one stored record.
package taxonomy

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/google/uuid"
)

// FileType classifies a taxonomy file by role.
type FileType string

const (
	FileTypeSchema               FileType = "schema"
	FileTypeLabelLinkbase        FileType = "label_linkbase"
	FileTypePresentationLinkbase FileType = "presentation_linkbase"
	FileTypeCalculationLinkbase  FileType = "calculation_linkbase"
	FileTypeDefinitionLinkbase   FileType = "definition_linkbase"
)

// SourceType classifies where a taxonomy file originates.
type SourceType string

const (
	SourceCompanySpecific SourceType = "company_specific"
	SourceUsGaap          SourceType = "us_gaap"
	SourceSecDei          SourceType = "sec_dei"
	SourceFasbSrt         SourceType = "fasb_srt"
	SourceIfrs            SourceType = "ifrs"
	SourceOtherStandard   SourceType = "other_standard"
)

// ProcessingStatus tracks a file through the ingestion state machine:
// pending -> downloading -> downloaded -> processing -> completed | failed.
type ProcessingStatus string

const (
	StatusPending     ProcessingStatus = "pending"
	StatusDownloading ProcessingStatus = "downloading"
	StatusDownloaded  ProcessingStatus = "downloaded"
	StatusProcessing  ProcessingStatus = "processing"
	StatusCompleted   ProcessingStatus = "completed"
	StatusFailed      ProcessingStatus = "failed"
)

// CompressionType names the compression applied to stored content.
type CompressionType string

const (
	CompressionNone CompressionType = "none"
	CompressionGzip CompressionType = "gzip"
)

// TaxonomyFile is one persisted schema or linkbase file.
//
// Exactly one of FileContent / FileOID is populated, chosen by the store's
// inline-size threshold. ContentHash is computed over the raw (uncompressed)
// bytes.
type TaxonomyFile struct {
	ID        uuid.UUID `json:"id"`
	Namespace string    `json:"namespace"`
	Filename  string    `json:"filename"`

	Version  string     `json:"version,omitempty"`
	FileDate *time.Time `json:"file_date,omitempty"`

	FileType   FileType   `json:"file_type"`
	SourceType SourceType `json:"source_type"`

	FileContent []byte  `json:"-"`                  // inline storage
	FileOID     *uint32 `json:"file_oid,omitempty"` // out-of-line large object

	SizeBytes       int64           `json:"size_bytes"` // raw content size
	ContentHash     string          `json:"content_hash"`
	IsCompressed    bool            `json:"is_compressed"`
	CompressionType CompressionType `json:"compression_type"`

	SourceURL   string `json:"source_url,omitempty"`
	DownloadURL string `json:"download_url,omitempty"`

	ProcessingStatus       ProcessingStatus `json:"processing_status"`
	ProcessingError        string           `json:"processing_error,omitempty"`
	ConceptsExtracted      int              `json:"concepts_extracted"`
	RelationshipsExtracted int              `json:"relationships_extracted"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// IsInline reports whether content is stored in the row itself.
func (f *TaxonomyFile) IsInline() bool {
	return f.FileOID == nil
}

// FileMeta carries the descriptive fields for a Put. Content identity (hash,
// size, storage placement) is derived by the store, not by the caller.
type FileMeta struct {
	Namespace   string
	Filename    string
	FileType    FileType
	SourceType  SourceType
	SourceURL   string
	DownloadURL string
}

// Filter narrows a List call. Zero-valued fields match everything.
type Filter struct {
	FileType   FileType
	SourceType SourceType
	Status     ProcessingStatus
}

// StoreStats summarizes stored taxonomy content.
type StoreStats struct {
	TotalFiles       int64 `json:"total_files"`
	TotalSizeBytes   int64 `json:"total_size_bytes"`
	InlineFiles      int64 `json:"inline_files"`
	LargeObjectFiles int64 `json:"large_object_files"`
	CompressedFiles  int64 `json:"compressed_files"`
}

// HashContent returns the hex sha256 of content. Hashing the same bytes twice
// always yields the same digest; the store relies on this for deduplication.
func HashContent(content []byte) string {
	sum := sha256.Sum256(content)
	return hex.EncodeToString(sum[:])
}
