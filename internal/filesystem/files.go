// Package filesystem moves inbox files around without leaving partial
// writes behind.
package filesystem

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// WriteFileAtomic writes data to a temporary file in the target's directory,
// syncs it and renames it over target. Readers see either the old content or
// the new content.
func WriteFileAtomic(target string, data []byte, perm os.FileMode) error {
	dir := filepath.Dir(target)
	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // G301: inbox directories are shared with the producer
		return fmt.Errorf("creating parent directory: %w", err)
	}

	tmp, err := os.CreateTemp(dir, "."+filepath.Base(target)+".*.tmp")
	if err != nil {
		return fmt.Errorf("creating temp file: %w", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() { _ = os.Remove(tmpPath) }

	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("writing temp file: %w", err)
	}
	if err := tmp.Sync(); err != nil {
		_ = tmp.Close()
		cleanup()
		return fmt.Errorf("syncing temp file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		cleanup()
		return fmt.Errorf("closing temp file: %w", err)
	}
	if err := os.Chmod(tmpPath, perm); err != nil {
		cleanup()
		return fmt.Errorf("setting permissions: %w", err)
	}
	if err := os.Rename(tmpPath, target); err != nil {
		cleanup()
		return fmt.Errorf("renaming temp to target: %w", err)
	}
	return nil
}

// MoveFile moves src into dstDir, keeping its base name. When the name is
// taken a numeric suffix is added before the extension. It returns the new
// path.
func MoveFile(src, dstDir string) (string, error) {
	if err := os.MkdirAll(dstDir, 0o755); err != nil { //nolint:gosec // G301: see WriteFileAtomic
		return "", fmt.Errorf("creating %s: %w", dstDir, err)
	}
	dst, err := freeName(dstDir, filepath.Base(src))
	if err != nil {
		return "", err
	}

	if err := os.Rename(src, dst); err == nil {
		return dst, nil
	} else if !isCrossDevice(err) {
		return "", fmt.Errorf("moving %s: %w", src, err)
	}

	if err := copyFile(src, dst); err != nil {
		_ = os.Remove(dst)
		return "", fmt.Errorf("copying %s across devices: %w", src, err)
	}
	if err := os.Remove(src); err != nil {
		return dst, fmt.Errorf("removing %s after copy: %w", src, err)
	}
	return dst, nil
}

// ErrorReportPath returns where the failure report for path is written.
func ErrorReportPath(path string) string {
	return strings.TrimSuffix(path, filepath.Ext(path)) + ".error.txt"
}

func freeName(dir, name string) (string, error) {
	ext := filepath.Ext(name)
	stem := strings.TrimSuffix(name, ext)
	candidate := filepath.Join(dir, name)
	for i := 1; i < 10000; i++ {
		_, err := os.Lstat(candidate)
		if errors.Is(err, os.ErrNotExist) {
			return candidate, nil
		}
		if err != nil {
			return "", fmt.Errorf("checking %s: %w", candidate, err)
		}
		candidate = filepath.Join(dir, stem+"."+strconv.Itoa(i)+ext)
	}
	return "", fmt.Errorf("no free name for %s in %s", name, dir)
}

func isCrossDevice(err error) bool {
	var linkErr *os.LinkError
	return errors.As(err, &linkErr) && strings.Contains(linkErr.Err.Error(), "cross-device")
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) //nolint:gosec // G304: src is an inbox file
	if err != nil {
		return err
	}
	defer in.Close() //nolint:errcheck

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o644) //nolint:gosec // G302: batch files are not secret
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}
