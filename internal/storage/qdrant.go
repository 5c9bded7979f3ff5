package storage

import (
	"context"
	"fmt"
	"sort"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/qdrant/go-client/qdrant"
)

// Config holds Qdrant connection settings.
type Config struct {
	Host      string
	Port      int
	APIKey    string
	UseTLS    bool
	Dimension int // Embedding size; DefaultVectorDimension when zero
}

// QdrantStorage wraps the Qdrant client with connection management and health checks.
// It hands out Collection handles; it holds no per-collection state itself.
type QdrantStorage struct {
	client    *qdrant.Client
	dimension int
}

// NewQdrantStorage creates a new Qdrant client with health validation.
// It performs health check with retry on startup and fails fast if Qdrant is unreachable.
func NewQdrantStorage(cfg Config) (*QdrantStorage, error) {
	client, err := qdrant.NewClient(&qdrant.Config{
		Host:   cfg.Host,
		Port:   cfg.Port,
		APIKey: cfg.APIKey,
		UseTLS: cfg.UseTLS,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create qdrant client: %w", err)
	}

	dim := cfg.Dimension
	if dim <= 0 {
		dim = DefaultVectorDimension
	}
	storage := &QdrantStorage{client: client, dimension: dim}

	if err := storage.healthCheckWithRetry(context.Background()); err != nil {
		client.Close()
		return nil, fmt.Errorf("%w: %v", ErrQdrantUnreachable, err)
	}

	return storage, nil
}

func newBackoff(ctx context.Context) backoff.BackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = 500 * time.Millisecond
	b.MaxInterval = 10 * time.Second
	b.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(b, ctx)
}

func (s *QdrantStorage) healthCheckWithRetry(ctx context.Context) error {
	return backoff.Retry(func() error { return s.Health(ctx) }, newBackoff(ctx))
}

// Health performs a single health check against Qdrant.
func (s *QdrantStorage) Health(ctx context.Context) error {
	result, err := s.client.HealthCheck(ctx)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	if result == nil || result.Title == "" {
		return fmt.Errorf("health check returned invalid response")
	}
	return nil
}

// EnsureCollection creates the named collection with a cosine "content"
// vector and keyword payload indexes if it does not exist yet. Idempotent.
func (s *QdrantStorage) EnsureCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		return nil
	}

	err = s.client.CreateCollection(ctx, &qdrant.CreateCollection{
		CollectionName: name,
		VectorsConfig: qdrant.NewVectorsConfigMap(map[string]*qdrant.VectorParams{
			VectorName: {
				Size:     uint64(s.dimension),
				Distance: qdrant.Distance_Cosine,
			},
		}),
	})
	if err != nil {
		return fmt.Errorf("failed to create collection %s: %w", name, err)
	}

	// Dedup filters scan these fields on every ingestion; unindexed they are
	// full scans.
	for _, field := range indexedFields {
		_, err := s.client.CreateFieldIndex(ctx, &qdrant.CreateFieldIndexCollection{
			CollectionName: name,
			FieldName:      field,
			FieldType:      qdrant.FieldType_FieldTypeKeyword.Enum(),
		})
		if err != nil {
			return fmt.Errorf("failed to create index for field %s: %w", field, err)
		}
	}
	return nil
}

// RecreateCollection drops the named collection and creates it empty.
func (s *QdrantStorage) RecreateCollection(ctx context.Context, name string) error {
	exists, err := s.client.CollectionExists(ctx, name)
	if err != nil {
		return fmt.Errorf("failed to check collection %s: %w", name, err)
	}
	if exists {
		if err := s.client.DeleteCollection(ctx, name); err != nil {
			return fmt.Errorf("failed to delete collection %s: %w", name, err)
		}
	}
	return s.EnsureCollection(ctx, name)
}

// Close closes the Qdrant client connection.
func (s *QdrantStorage) Close() error {
	if s.client != nil {
		return s.client.Close()
	}
	return nil
}

// Collection returns a handle on the named collection. The embedder fills
// in vectors for units that arrive without one.
func (s *QdrantStorage) Collection(name string, embedder Embedder) *QdrantCollection {
	return &QdrantCollection{storage: s, name: name, embedder: embedder}
}

// ListSources returns the distinct values of a metadata field ("source_file"
// or "company") across the whole collection, sorted.
func (s *QdrantStorage) ListSources(ctx context.Context, collection, field string) ([]string, error) {
	seen := make(map[string]struct{})
	var offset *qdrant.PointId
	batchSize := uint32(256)

	for {
		results, err := s.client.Scroll(ctx, &qdrant.ScrollPoints{
			CollectionName: collection,
			Limit:          qdrant.PtrOf(batchSize + 1),
			Offset:         offset,
			WithPayload:    qdrant.NewWithPayloadInclude(payloadMetadata + "." + field),
		})
		if err != nil {
			return nil, fmt.Errorf("failed to scroll %s: %w", collection, err)
		}

		page := results
		if uint32(len(results)) > batchSize {
			page = results[:batchSize]
		}
		for _, point := range page {
			fields := point.Payload[payloadMetadata].GetStructValue().GetFields()
			if v := fields[field].GetStringValue(); v != "" {
				seen[v] = struct{}{}
			}
		}

		if uint32(len(results)) <= batchSize {
			break
		}
		offset = results[batchSize].Id
	}

	values := make([]string, 0, len(seen))
	for v := range seen {
		values = append(values, v)
	}
	sort.Strings(values)
	return values, nil
}

// QdrantCollection implements Collection on one Qdrant collection.
type QdrantCollection struct {
	storage  *QdrantStorage
	name     string
	embedder Embedder
}

var _ Collection = (*QdrantCollection)(nil)

// Name returns the collection name.
func (c *QdrantCollection) Name() string { return c.name }

// AddUnits embeds units that have no vector and upserts them in batches of 100.
func (c *QdrantCollection) AddUnits(ctx context.Context, units []*Unit, ids []string) error {
	if len(units) != len(ids) {
		return fmt.Errorf("%w: %d units, %d ids", ErrLengthMismatch, len(units), len(ids))
	}
	if len(units) == 0 {
		return nil
	}

	if err := c.embed(ctx, units); err != nil {
		return err
	}
	for i, u := range units {
		if len(u.Embedding) != c.storage.dimension {
			return fmt.Errorf("%w: unit %d has %d dimensions, expected %d",
				ErrDimensionMismatch, i, len(u.Embedding), c.storage.dimension)
		}
	}

	batchSize := 100
	for i := 0; i < len(units); i += batchSize {
		end := min(i+batchSize, len(units))

		points := make([]*qdrant.PointStruct, 0, end-i)
		for j := i; j < end; j++ {
			points = append(points, &qdrant.PointStruct{
				Id: qdrant.NewIDUUID(ids[j]),
				Vectors: qdrant.NewVectorsMap(map[string]*qdrant.Vector{
					VectorName: qdrant.NewVector(units[j].Embedding...),
				}),
				Payload: qdrant.NewValueMap(toPayload(units[j])),
			})
		}

		if err := c.upsertWithRetry(ctx, points); err != nil {
			return fmt.Errorf("failed to upsert batch %d-%d into %s: %w", i, end, c.name, err)
		}
	}
	return nil
}

func (c *QdrantCollection) embed(ctx context.Context, units []*Unit) error {
	var (
		texts   []string
		targets []*Unit
	)
	for _, u := range units {
		if len(u.Embedding) == 0 {
			texts = append(texts, u.Content)
			targets = append(targets, u)
		}
	}
	if len(texts) == 0 {
		return nil
	}
	if c.embedder == nil {
		return fmt.Errorf("collection %s: %d units without embeddings and no embedder", c.name, len(texts))
	}

	vectors, err := c.embedder.GenerateEmbeddings(ctx, texts)
	if err != nil {
		return fmt.Errorf("embeddings: %w", err)
	}
	if len(vectors) != len(targets) {
		return fmt.Errorf("embeddings: got %d vectors for %d texts", len(vectors), len(targets))
	}
	for i, u := range targets {
		u.Embedding = vectors[i]
	}
	return nil
}

func (c *QdrantCollection) upsertWithRetry(ctx context.Context, points []*qdrant.PointStruct) error {
	operation := func() error {
		_, err := c.storage.client.Upsert(ctx, &qdrant.UpsertPoints{
			CollectionName: c.name,
			Points:         points,
			// Later duplicate checks must observe this write.
			Wait: qdrant.PtrOf(true),
		})
		return err
	}
	return backoff.Retry(operation, newBackoff(ctx))
}

// Count returns the exact number of points matching filter.
func (c *QdrantCollection) Count(ctx context.Context, filter Filter) (uint64, error) {
	n, err := c.storage.client.Count(ctx, &qdrant.CountPoints{
		CollectionName: c.name,
		Filter:         filter.qdrant(),
		Exact:          qdrant.PtrOf(true),
	})
	if err != nil {
		return 0, fmt.Errorf("failed to count %s: %w", c.name, err)
	}
	return n, nil
}

// Scroll pages through points matching filter. One extra point is requested
// so the next page token is the first id of the following page.
func (c *QdrantCollection) Scroll(ctx context.Context, filter Filter, limit uint32, offset string) ([]*Unit, string, error) {
	if limit == 0 {
		return nil, "", nil
	}

	var start *qdrant.PointId
	if offset != "" {
		start = qdrant.NewIDUUID(offset)
	}

	results, err := c.storage.client.Scroll(ctx, &qdrant.ScrollPoints{
		CollectionName: c.name,
		Filter:         filter.qdrant(),
		Limit:          qdrant.PtrOf(limit + 1),
		Offset:         start,
		WithPayload:    qdrant.NewWithPayload(true),
	})
	if err != nil {
		return nil, "", fmt.Errorf("failed to scroll %s: %w", c.name, err)
	}

	next := ""
	if uint32(len(results)) > limit {
		next = pointID(results[limit].Id)
		results = results[:limit]
	}

	units := make([]*Unit, 0, len(results))
	for _, point := range results {
		units = append(units, fromPayload(pointID(point.Id), point.Payload))
	}
	return units, next, nil
}

func pointID(id *qdrant.PointId) string {
	if u := id.GetUuid(); u != "" {
		return u
	}
	return strconv.FormatUint(id.GetNum(), 10)
}

func toPayload(u *Unit) map[string]any {
	meta := map[string]any{
		keyContentType: string(u.ContentType),
		keySourceFile:  u.SourceFile,
		keyCompany:     u.OwnerTag,
		keyPageNum:     u.PageNumber,
		keyUnitIndex:   u.UnitIndex,
		keyContentHash: u.ContentHash,
		keyIngestedAt:  u.IngestedAt.Format(time.RFC3339),
	}
	if u.ContentType == ContentImage {
		meta[keyImageHash] = u.ImageHash
		meta[keyImageRef] = u.ImageRef
		meta[keyContextText] = u.ContextText
		meta[keyCaption] = u.Caption
	}
	return map[string]any{
		payloadContent:  u.Content,
		payloadMetadata: meta,
	}
}

func fromPayload(id string, payload map[string]*qdrant.Value) *Unit {
	meta := payload[payloadMetadata].GetStructValue().GetFields()
	str := func(key string) string { return meta[key].GetStringValue() }

	ingestedAt, err := time.Parse(time.RFC3339, str(keyIngestedAt))
	if err != nil {
		ingestedAt = time.Time{} // Older points used a non-RFC3339 layout
	}

	return &Unit{
		ID:          id,
		Content:     payload[payloadContent].GetStringValue(),
		ContentType: ContentType(str(keyContentType)),
		SourceFile:  str(keySourceFile),
		OwnerTag:    str(keyCompany),
		PageNumber:  intValue(meta[keyPageNum]),
		UnitIndex:   intValue(meta[keyUnitIndex]),
		ContentHash: str(keyContentHash),
		ImageHash:   str(keyImageHash),
		ImageRef:    str(keyImageRef),
		ContextText: str(keyContextText),
		Caption:     str(keyCaption),
		IngestedAt:  ingestedAt,
	}
}

// intValue reads an integer that earlier writers sometimes stored as a string.
func intValue(v *qdrant.Value) int {
	if v == nil {
		return 0
	}
	if s := v.GetStringValue(); s != "" {
		n, _ := strconv.Atoi(s)
		return n
	}
	return int(v.GetIntegerValue())
}
