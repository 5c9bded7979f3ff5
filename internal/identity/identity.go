// Package identity derives deterministic point ids for stored units.
//
// Ids are name-based UUIDs (version 5) in the DNS namespace. The name layout
// is shared with stores populated by earlier versions of the pipeline, so
// re-ingesting unchanged content overwrites the same points.
package identity

import (
	"fmt"

	"github.com/google/uuid"
)

// Namespace is the UUID namespace every id is derived in.
var Namespace = uuid.NameSpaceDNS

// TextID returns the id of the index-th text chunk taken from the given page
// of the document with the given fingerprint.
func TextID(fingerprint string, page, index int) string {
	return derive(fmt.Sprintf("%s_page%d_%d", fingerprint, page, index))
}

// ImageID returns the id of the index-th described image of a source file.
// The image fingerprint is deliberately not part of the name.
func ImageID(ownerTag, sourceName string, index int) string {
	if ownerTag == "" {
		ownerTag = "NA"
	}
	return derive(fmt.Sprintf("%s_%s_%d", ownerTag, sourceName, index))
}

func derive(name string) string {
	return uuid.NewSHA1(Namespace, []byte(name)).String()
}
