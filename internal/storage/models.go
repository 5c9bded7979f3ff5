package storage

import (
	"context"
	"time"
)

// ContentType separates text chunks from image captions inside a collection.
type ContentType string

const (
	ContentText  ContentType = "text"
	ContentImage ContentType = "image"
)

// Unit is one stored point: a text chunk or a described image.
// Content is the text that gets embedded and returned as page content.
type Unit struct {
	ID          string
	Content     string
	ContentType ContentType
	SourceFile  string // File name, e.g. "META.pdf"
	OwnerTag    string // Grouping label derived from the file name, e.g. "META"
	PageNumber  int    // 1-based
	UnitIndex   int    // Position among sibling units of the same document
	ContentHash string // Fingerprint of the whole document
	ImageHash   string // Fingerprint of the raw image bytes (images only)
	ImageRef    string // "{stem}-page{N}-{name}" (images only)
	ContextText string // Text near the image used for captioning (images only)
	Caption     string // Describer output (images only)
	IngestedAt  time.Time
	Embedding   []float32
}

// Filter selects units by metadata. Empty fields are ignored; ContentType is
// always applied when set.
type Filter struct {
	ContentType ContentType
	ContentHash string
	ImageHash   string
	SourceFile  string
}

// Reader is the read side of the store contract.
type Reader interface {
	Count(ctx context.Context, filter Filter) (uint64, error)
	// Scroll returns up to limit units matching filter, starting after
	// offset. The returned token is empty when there are no further pages.
	Scroll(ctx context.Context, filter Filter, limit uint32, offset string) ([]*Unit, string, error)
}

// Writer is the write side of the store contract.
type Writer interface {
	// AddUnits stores units under the given ids. Writing an id that already
	// exists overwrites it.
	AddUnits(ctx context.Context, units []*Unit, ids []string) error
}

// Collection is a single vector store collection.
type Collection interface {
	Reader
	Writer
}

// Embedder turns unit content into vectors before upsert.
type Embedder interface {
	GenerateEmbeddings(ctx context.Context, texts []string) ([][]float32, error)
}

// Payload keys. The nested "metadata" layout mirrors langchain's Qdrant
// vector store so previously ingested points remain queryable.
const (
	payloadContent  = "page_content"
	payloadMetadata = "metadata"

	keyContentType = "content_type"
	keySourceFile  = "source_file"
	keyCompany     = "company"
	keyPageNum     = "page_num"
	keyUnitIndex   = "unit_index"
	keyContentHash = "content_hash"
	keyImageHash   = "image_content_hash"
	keyImageRef    = "image_source_in_file"
	keyContextText = "context_text"
	keyCaption     = "caption"
	keyIngestedAt  = "ingestion_timestamp"
)

// Fields accepted by QdrantStorage.ListSources.
const (
	FieldSourceFile = keySourceFile
	FieldOwnerTag   = keyCompany
)

// Filterable payload fields; each gets a keyword index.
var indexedFields = []string{
	payloadMetadata + "." + keyContentType,
	payloadMetadata + "." + keySourceFile,
	payloadMetadata + "." + keyCompany,
	payloadMetadata + "." + keyContentHash,
	payloadMetadata + "." + keyImageHash,
}

// VectorName is the named vector holding content embeddings.
const VectorName = "content"

// DefaultVectorDimension is the embedding size for text-embedding-3-small.
const DefaultVectorDimension = 1536
