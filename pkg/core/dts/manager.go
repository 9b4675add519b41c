package dts

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/google/uuid"

	"xbrl_crawler/pkg/core/taxonomy"
	"xbrl_crawler/pkg/core/xbrl"
)

// Resolution is the immutable outcome of resolving one DTS reference.
// Re-resolving the same reference produces a new value.
type Resolution struct {
	Reference  xbrl.DtsReference `json:"reference"`
	SchemaID   *uuid.UUID        `json:"schema_id,omitempty"`
	LinkbaseID *uuid.UUID        `json:"linkbase_id,omitempty"`
	LocalPath  string            `json:"local_file_path,omitempty"`
	Resolved   bool              `json:"is_resolved"`
	Error      string            `json:"resolution_error,omitempty"`
}

// Summary aggregates resolution outcomes for one instance document.
type Summary struct {
	Total      int `json:"total"`
	Resolved   int `json:"resolved"`
	Unresolved int `json:"unresolved"`
}

// Resolver resolves DTS references against the taxonomy store first, then a
// local cache directory. Resolution is single-level: only references found
// directly in the instance document are resolved, not references transitively
// reachable from resolved schemas or linkbases.
type Resolver struct {
	store    taxonomy.Store
	cacheDir string
}

// NewResolver creates a resolver. cacheDir may be empty to skip the local
// file cache tier.
func NewResolver(store taxonomy.Store, cacheDir string) *Resolver {
	return &Resolver{store: store, cacheDir: cacheDir}
}

// ResolveInstance resolves every reference extracted from one instance
// document. An unresolvable reference degrades to an unresolved Resolution;
// only storage failures abort the call.
func (r *Resolver) ResolveInstance(ctx context.Context, refs []xbrl.DtsReference, filingID uuid.UUID) ([]Resolution, error) {
	resolutions := make([]Resolution, 0, len(refs))
	for _, ref := range refs {
		res, err := r.resolve(ctx, ref)
		if err != nil {
			return nil, fmt.Errorf("resolve %s for filing %s: %w", ref.Href, filingID, err)
		}
		resolutions = append(resolutions, res)
	}
	return resolutions, nil
}

// Summarize counts resolution outcomes.
func Summarize(resolutions []Resolution) Summary {
	s := Summary{Total: len(resolutions)}
	for _, res := range resolutions {
		if res.Resolved {
			s.Resolved++
		} else {
			s.Unresolved++
		}
	}
	return s
}

func (r *Resolver) resolve(ctx context.Context, ref xbrl.DtsReference) (Resolution, error) {
	filename := FilenameFromHref(ref.Href)
	if filename == "" {
		return Resolution{
			Reference: ref,
			Error:     fmt.Sprintf("reference has no usable filename: %q", ref.Href),
		}, nil
	}

	// Tier 1: the persistent store. This lookup is the dedup key; the same
	// reference seen across many filings resolves to one stored record.
	existing, err := r.store.GetByName(ctx, "", filename)
	if err != nil && !errors.Is(err, taxonomy.ErrNotFound) {
		return Resolution{}, fmt.Errorf("store lookup for %s: %w", filename, err)
	}
	if err == nil {
		return r.resolved(ref, existing), nil
	}

	// Tier 2: the local cache directory.
	if r.cacheDir != "" {
		localPath := filepath.Join(r.cacheDir, filename)
		content, readErr := os.ReadFile(localPath)
		if readErr == nil {
			stored, putErr := r.store.Put(ctx, content, taxonomy.FileMeta{
				Namespace:   NamespaceFor(ref.Href),
				Filename:    filename,
				FileType:    FileTypeFor(ref.Type, ref.Href),
				SourceType:  SourceTypeFor(ref.Href),
				SourceURL:   ref.Href,
				DownloadURL: ref.Href,
			})
			if putErr != nil {
				return Resolution{}, fmt.Errorf("store cached file %s: %w", filename, putErr)
			}
			res := r.resolved(ref, stored)
			res.LocalPath = localPath
			return res, nil
		}
		if !errors.Is(readErr, os.ErrNotExist) {
			return Resolution{}, fmt.Errorf("read cached file %s: %w", localPath, readErr)
		}
	}

	// Tier 3 would fetch via the crawler; absent that, record the gap. The
	// filing's extracted facts remain usable.
	return Resolution{
		Reference: ref,
		Error:     fmt.Sprintf("no local taxonomy file found for: %s", ref.Href),
	}, nil
}

func (r *Resolver) resolved(ref xbrl.DtsReference, file *taxonomy.TaxonomyFile) Resolution {
	res := Resolution{Reference: ref, Resolved: true}
	id := file.ID
	if file.FileType == taxonomy.FileTypeSchema {
		res.SchemaID = &id
	} else {
		res.LinkbaseID = &id
	}
	if r.cacheDir != "" {
		candidate := filepath.Join(r.cacheDir, file.Filename)
		if _, err := os.Stat(candidate); err == nil {
			res.LocalPath = candidate
		}
	}
	return res
}

// TaxonomyMapping builds a reference-string → local-filename table for
// downstream tooling that resolves taxonomy URLs offline. Every downloaded
// file is mapped under its source URL, its filename, and its namespace.
func (r *Resolver) TaxonomyMapping(ctx context.Context) (map[string]string, error) {
	files, err := r.store.List(ctx, taxonomy.Filter{Status: taxonomy.StatusDownloaded})
	if err != nil {
		return nil, fmt.Errorf("list downloaded taxonomy files: %w", err)
	}

	mapping := make(map[string]string, len(files)*3)
	for _, f := range files {
		if f.SourceURL != "" {
			mapping[f.SourceURL] = f.Filename
		}
		mapping[f.Filename] = f.Filename
		if f.Namespace != "" {
			mapping[f.Namespace] = f.Filename
		}
	}
	return mapping, nil
}
