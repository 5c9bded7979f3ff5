package dedup

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/Ganesh-K-Indium/Ingestion-Pipeline/internal/storage"
)

// Tier names the criterion that produced a match.
type Tier string

const (
	TierNone                Tier = ""
	TierImageFingerprint    Tier = "image_fingerprint"
	TierDocumentFingerprint Tier = "document_fingerprint"
	TierSourceName          Tier = "source_name"
)

// DefaultPageSize is the scroll page size used to collect matching units.
const DefaultPageSize = 256

// Criteria identifies a document for duplicate lookups.
type Criteria struct {
	SourceName          string
	DocumentFingerprint string   // Empty when the document could not be fingerprinted
	ImageFingerprints   []string // Per-image fingerprints, in extraction order
}

// Match is the result of a duplicate lookup.
type Match struct {
	Exists bool
	Tier   Tier
	Units  []*storage.Unit // All matching units, in store order
}

// Detector answers "has this content been ingested already" against a store.
// It only reads.
type Detector struct {
	pageSize uint32
	logger   *slog.Logger
}

// New creates a Detector. A nil logger falls back to slog.Default().
func New(logger *slog.Logger) *Detector {
	if logger == nil {
		logger = slog.Default()
	}
	return &Detector{pageSize: DefaultPageSize, logger: logger}
}

// Text checks the text store: by document fingerprint when there is one,
// otherwise by source name.
func (d *Detector) Text(ctx context.Context, store storage.Reader, c Criteria) (Match, error) {
	filter, tier := d.documentFilter(storage.ContentText, c)
	return d.lookup(ctx, store, filter, tier)
}

// Images checks the image store tier by tier: any per-image fingerprint,
// then the document fingerprint, then the source name. The source name is
// checked even when a fingerprint exists. The first tier with a match wins
// and later tiers are not queried.
func (d *Detector) Images(ctx context.Context, store storage.Reader, c Criteria) (Match, error) {
	for _, hash := range c.ImageFingerprints {
		if hash == "" {
			continue
		}
		m, err := d.lookup(ctx, store, storage.Filter{ContentType: storage.ContentImage, ImageHash: hash}, TierImageFingerprint)
		if err != nil || m.Exists {
			return m, err
		}
	}

	if c.DocumentFingerprint != "" {
		m, err := d.lookup(ctx, store, storage.Filter{ContentType: storage.ContentImage, ContentHash: c.DocumentFingerprint}, TierDocumentFingerprint)
		if err != nil || m.Exists || c.SourceName == "" {
			return m, err
		}
	}

	// Units written before fingerprinting carry only the source name.
	return d.lookup(ctx, store, storage.Filter{ContentType: storage.ContentImage, SourceFile: c.SourceName}, TierSourceName)
}

func (d *Detector) documentFilter(ct storage.ContentType, c Criteria) (storage.Filter, Tier) {
	if c.DocumentFingerprint != "" {
		return storage.Filter{ContentType: ct, ContentHash: c.DocumentFingerprint}, TierDocumentFingerprint
	}
	return storage.Filter{ContentType: ct, SourceFile: c.SourceName}, TierSourceName
}

func (d *Detector) lookup(ctx context.Context, store storage.Reader, filter storage.Filter, tier Tier) (Match, error) {
	if tier == TierSourceName && filter.SourceFile == "" {
		return Match{}, fmt.Errorf("%w: no fingerprint and no source name", ErrDetectionUnavailable)
	}

	n, err := store.Count(ctx, filter)
	if err != nil {
		return Match{}, fmt.Errorf("%w: count %s by %s: %v", ErrDetectionUnavailable, filter.ContentType, tier, err)
	}
	if n == 0 {
		d.logger.Debug("no duplicate", "content_type", filter.ContentType, "tier", tier)
		return Match{}, nil
	}

	units := make([]*storage.Unit, 0, n)
	offset := ""
	for {
		page, next, err := store.Scroll(ctx, filter, d.pageSize, offset)
		if err != nil {
			return Match{}, fmt.Errorf("%w: scroll %s by %s: %v", ErrDetectionUnavailable, filter.ContentType, tier, err)
		}
		units = append(units, page...)
		if next == "" {
			break
		}
		offset = next
	}

	d.logger.Debug("duplicate found", "content_type", filter.ContentType, "tier", tier, "units", len(units))
	return Match{Exists: true, Tier: tier, Units: units}, nil
}
