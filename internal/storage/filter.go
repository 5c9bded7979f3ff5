package storage

import "github.com/qdrant/go-client/qdrant"

// conditions converts a Filter into qdrant must-conditions.
func (f Filter) conditions() []*qdrant.Condition {
	var must []*qdrant.Condition
	add := func(key, value string) {
		if value != "" {
			must = append(must, qdrant.NewMatch(payloadMetadata+"."+key, value))
		}
	}
	add(keyContentType, string(f.ContentType))
	add(keyContentHash, f.ContentHash)
	add(keyImageHash, f.ImageHash)
	add(keySourceFile, f.SourceFile)
	return must
}

func (f Filter) qdrant() *qdrant.Filter {
	must := f.conditions()
	if len(must) == 0 {
		return nil
	}
	return &qdrant.Filter{Must: must}
}

// Matches reports whether u satisfies every non-empty field of f.
func (f Filter) Matches(u *Unit) bool {
	switch {
	case f.ContentType != "" && u.ContentType != f.ContentType:
		return false
	case f.ContentHash != "" && u.ContentHash != f.ContentHash:
		return false
	case f.ImageHash != "" && u.ImageHash != f.ImageHash:
		return false
	case f.SourceFile != "" && u.SourceFile != f.SourceFile:
		return false
	}
	return true
}
