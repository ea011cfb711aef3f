package codegen

import (
	"errors"
	"os"
	"path/filepath"
)

// WriteFile implements the three-tier write strategy:
// (a) standard write, (b) write via an explicit MkdirAll + create, (c)
// temp-file then rename. Each tier is verified non-empty before success;
// the first working tier wins.
func WriteFile(path string, content []byte) error {
	if len(content) == 0 {
		return errors.New("codegen: refusing to write empty content to " + path)
	}

	if err := tierStandardWrite(path, content); err == nil {
		return verifyNonEmpty(path)
	}

	if err := tierPathLibraryWrite(path, content); err == nil {
		return verifyNonEmpty(path)
	}

	if err := tierTempThenRename(path, content); err != nil {
		return err
	}
	return verifyNonEmpty(path)
}

func tierStandardWrite(path string, content []byte) error {
	return os.WriteFile(path, content, 0o644)
}

// tierPathLibraryWrite ensures the parent directory exists (mirroring a
// path-library's mkdir-then-write convenience) before writing.
func tierPathLibraryWrite(path string, content []byte) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	return os.WriteFile(path, content, 0o644)
}

func tierTempThenRename(path string, content []byte) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	tmp, err := os.CreateTemp(dir, ".codegen-*.tmp")
	if err != nil {
		return err
	}
	tmpPath := tmp.Name()
	if _, err := tmp.Write(content); err != nil {
		tmp.Close()
		os.Remove(tmpPath)
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return err
	}
	return os.Rename(tmpPath, path)
}

func verifyNonEmpty(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if info.Size() == 0 {
		return errors.New("codegen: wrote " + path + " but file is empty")
	}
	return nil
}
