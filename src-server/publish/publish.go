// Package publish writes rendered artifacts where the external static
// sync picks them up. Writes are atomic (temp file + rename) so a
// half-written calendar is never published.
package publish

import (
	"fmt"
	"os"
	"path/filepath"
)

func Write(dir, name string, data []byte) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("publish.Write: %w", err)
	}

	tmp, err := os.CreateTemp(dir, ".techcal-*.tmp")
	if err != nil {
		return fmt.Errorf("publish.Write: %w", err)
	}
	tmpName := tmp.Name()
	defer os.Remove(tmpName)

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("publish.Write: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return fmt.Errorf("publish.Write: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("publish.Write: %w", err)
	}
	if err := os.Chmod(tmpName, 0o644); err != nil {
		return fmt.Errorf("publish.Write: %w", err)
	}
	if err := os.Rename(tmpName, filepath.Join(dir, name)); err != nil {
		return fmt.Errorf("publish.Write: %w", err)
	}
	return nil
}
