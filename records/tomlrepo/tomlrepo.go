// Package tomlrepo provides TOML file-backed record repositories. Each
// repository owns one file and serializes access with a mutex; every write
// rewrites the full file so a crash never leaves a partially applied change
// visible to a later load.
package tomlrepo

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/pelletier/go-toml/v2"
)

// loadFile decodes the TOML file at path into dst. A missing file is not an
// error; dst is left untouched so callers start from their zero value.
func loadFile(path string, dst any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("read %s: %w", path, err)
	}
	if err := toml.Unmarshal(data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}

// saveFile encodes src as TOML and atomically replaces the file at path.
func saveFile(path string, src any) error {
	data, err := toml.Marshal(src)
	if err != nil {
		return fmt.Errorf("encode %s: %w", path, err)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("prepare %s: %w", path, err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", tmp, err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("replace %s: %w", path, err)
	}
	return nil
}
