package storage

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/qdrant/go-client/qdrant"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func textUnit(source, hash string, index int) *Unit {
	return &Unit{
		Content:     fmt.Sprintf("chunk %d of %s", index, source),
		ContentType: ContentText,
		SourceFile:  source,
		ContentHash: hash,
		UnitIndex:   index,
	}
}

func TestMemoryStore_AddUnitsLengthMismatch(t *testing.T) {
	store := NewMemoryStore()

	err := store.AddUnits(context.Background(), []*Unit{textUnit("a.pdf", "h", 0)}, nil)

	assert.ErrorIs(t, err, ErrLengthMismatch)
	assert.Equal(t, 0, store.Len())
}

func TestMemoryStore_UpsertOverwritesSameID(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	require.NoError(t, store.AddUnits(ctx, []*Unit{textUnit("a.pdf", "h", 0)}, []string{"id-1"}))
	updated := textUnit("a.pdf", "h", 0)
	updated.Content = "rewritten"
	require.NoError(t, store.AddUnits(ctx, []*Unit{updated}, []string{"id-1"}))

	assert.Equal(t, 1, store.Len())
	got, ok := store.Get("id-1")
	require.True(t, ok)
	assert.Equal(t, "rewritten", got.Content)
	assert.Equal(t, 2, store.Writes())
}

func TestMemoryStore_CountByFilter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	units := []*Unit{textUnit("a.pdf", "h1", 0), textUnit("a.pdf", "h1", 1), textUnit("b.pdf", "h2", 0)}
	img := &Unit{ContentType: ContentImage, SourceFile: "a.pdf", ContentHash: "h1", ImageHash: "i1"}
	require.NoError(t, store.AddUnits(ctx, append(units, img), []string{"1", "2", "3", "4"}))

	tests := []struct {
		name   string
		filter Filter
		want   uint64
	}{
		{"all", Filter{}, 4},
		{"text only", Filter{ContentType: ContentText}, 3},
		{"text by hash", Filter{ContentType: ContentText, ContentHash: "h1"}, 2},
		{"image by hash", Filter{ContentType: ContentImage, ContentHash: "h1"}, 1},
		{"image by image hash", Filter{ContentType: ContentImage, ImageHash: "i1"}, 1},
		{"text by source", Filter{ContentType: ContentText, SourceFile: "b.pdf"}, 1},
		{"no match", Filter{ContentType: ContentImage, SourceFile: "b.pdf"}, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			n, err := store.Count(ctx, tt.filter)
			require.NoError(t, err)
			assert.Equal(t, tt.want, n)
		})
	}
}

func TestMemoryStore_ScrollPagination(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	var (
		units []*Unit
		ids   []string
	)
	for i := 0; i < 7; i++ {
		units = append(units, textUnit("a.pdf", "h", i))
		ids = append(ids, fmt.Sprintf("id-%02d", i))
	}
	require.NoError(t, store.AddUnits(ctx, units, ids))

	var (
		got    []string
		offset string
		pages  int
	)
	for {
		page, next, err := store.Scroll(ctx, Filter{ContentType: ContentText}, 3, offset)
		require.NoError(t, err)
		for _, u := range page {
			got = append(got, u.ID)
		}
		pages++
		if next == "" {
			break
		}
		offset = next
	}

	assert.Equal(t, ids, got, "every unit exactly once, in id order")
	assert.Equal(t, 3, pages)
}

func TestMemoryStore_InjectedErrors(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	boom := errors.New("connection refused")

	store.CountErr = boom
	_, err := store.Count(ctx, Filter{})
	assert.ErrorIs(t, err, boom)

	store.ScrollErr = boom
	_, _, err = store.Scroll(ctx, Filter{}, 10, "")
	assert.ErrorIs(t, err, boom)

	store.AddErr = boom
	err = store.AddUnits(ctx, []*Unit{textUnit("a.pdf", "h", 0)}, []string{"x"})
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, store.Len())
}

func TestFilter_Conditions(t *testing.T) {
	assert.Nil(t, Filter{}.qdrant())

	must := Filter{ContentType: ContentImage, ImageHash: "abc"}.conditions()
	require.Len(t, must, 2)
	assert.Equal(t, "metadata.content_type", must[0].GetField().GetKey())
	assert.Equal(t, "image", must[0].GetField().GetMatch().GetKeyword())
	assert.Equal(t, "metadata.image_content_hash", must[1].GetField().GetKey())
}

func TestPayloadRoundTrip(t *testing.T) {
	u := &Unit{
		Content:     "This is an image with the caption: revenue chart",
		ContentType: ContentImage,
		SourceFile:  "META.pdf",
		OwnerTag:    "META",
		PageNumber:  3,
		UnitIndex:   1,
		ContentHash: "doc",
		ImageHash:   "img",
		ImageRef:    "META-page3-Im0",
		ContextText: "See chart below",
		Caption:     "revenue chart",
	}

	got := fromPayload("id", qdrant.NewValueMap(toPayload(u)))

	assert.Equal(t, "id", got.ID)
	assert.Equal(t, u.Content, got.Content)
	assert.Equal(t, u.ContentType, got.ContentType)
	assert.Equal(t, u.SourceFile, got.SourceFile)
	assert.Equal(t, u.OwnerTag, got.OwnerTag)
	assert.Equal(t, u.PageNumber, got.PageNumber)
	assert.Equal(t, u.UnitIndex, got.UnitIndex)
	assert.Equal(t, u.ImageHash, got.ImageHash)
	assert.Equal(t, u.ImageRef, got.ImageRef)
	assert.Equal(t, u.Caption, got.Caption)
}
