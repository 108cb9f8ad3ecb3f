package manifest

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"rolloutctl/pkg/logging"
)

// Write persists the manifest under dir as one atomic filesystem operation:
// the document is fully encoded in memory, written to a temp file in the
// same directory, then renamed into place. Readers never observe a partial
// manifest.
func Write(m Manifest, dir string) (string, error) {
	data, err := json.MarshalIndent(m, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encoding manifest: %w", err)
	}
	data = append(data, '\n')

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("creating manifest directory: %w", err)
	}

	finalPath := filepath.Join(dir, FileName(m))

	tmp, err := os.CreateTemp(dir, ".manifest-*.json")
	if err != nil {
		return "", fmt.Errorf("creating manifest temp file: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return "", fmt.Errorf("writing manifest: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return "", fmt.Errorf("closing manifest temp file: %w", err)
	}
	if err := os.Rename(tmpName, finalPath); err != nil {
		return "", fmt.Errorf("publishing manifest: %w", err)
	}

	logging.Info(subsystem, "manifest written to %s", finalPath)
	return finalPath, nil
}

// FileName derives the manifest file name from environment and timestamp.
func FileName(m Manifest) string {
	return fmt.Sprintf("rollout-%s-%s.json", m.Environment, m.DeploymentTimestamp.UTC().Format("20060102-150405"))
}
