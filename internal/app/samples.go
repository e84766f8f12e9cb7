package app

import (
	"embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
)

//go:embed samples
var samples embed.FS

// WriteSamples copies the sample contracts, policies and fixtures into
// workspace. Existing files are kept unless overwrite is set. It returns the
// paths it wrote.
func WriteSamples(workspace string, overwrite bool) ([]string, error) {
	var written []string
	err := fs.WalkDir(samples, "samples", func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel("samples", path)
		if err != nil {
			return err
		}
		target := filepath.Join(workspace, rel)
		if d.IsDir() {
			return os.MkdirAll(target, 0755)
		}
		if !overwrite {
			if _, err := os.Stat(target); err == nil {
				return nil
			} else if !errors.Is(err, os.ErrNotExist) {
				return err
			}
		}
		data, err := samples.ReadFile(path)
		if err != nil {
			return err
		}
		if err := os.WriteFile(target, data, 0644); err != nil {
			return fmt.Errorf("write %s: %w", target, err)
		}
		written = append(written, target)
		return nil
	})
	return written, err
}
