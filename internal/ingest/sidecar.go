package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// Sidecar is the per-document audit file of image captions. Ingestion never
// reads it back; duplicate detection relies on the store.
type Sidecar struct {
	Metadata           map[string]string `json:"metadata"` // image ref -> caption
	IngestionTimestamp string            `json:"ingestion_timestamp"`
	SourceFile         string            `json:"source_file"`
	Company            string            `json:"company"`
}

// SidecarPath returns metadata_{file name}.json next to the source.
func SidecarPath(sourcePath string) string {
	return filepath.Join(filepath.Dir(sourcePath), "metadata_"+filepath.Base(sourcePath)+".json")
}

// WriteSidecar writes s as indented JSON, replacing any earlier file.
func WriteSidecar(path string, s Sidecar) error {
	data, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal sidecar: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write sidecar: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("write sidecar: %w", err)
	}
	return nil
}

// ReadSidecar loads a file written by WriteSidecar.
func ReadSidecar(path string) (Sidecar, error) {
	var s Sidecar
	data, err := os.ReadFile(path)
	if err != nil {
		return s, fmt.Errorf("read sidecar: %w", err)
	}
	if err := json.Unmarshal(data, &s); err != nil {
		return s, fmt.Errorf("parse sidecar %s: %w", path, err)
	}
	return s, nil
}
