package util

import (
	"crypto/sha1"
	"fmt"
	"os"
	"syscall"
)

// GenerateFileKey creates a stable key for a file from its filesystem
// metadata: SHA1 of (dev, inode, size, mtime). Re-importing an unchanged
// file yields the same key, so imports upsert instead of duplicating rows.
func GenerateFileKey(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("failed to stat file: %w", err)
	}

	stat, ok := info.Sys().(*syscall.Stat_t)
	if !ok {
		return GenerateSimpleFileKey(info.Size(), info.ModTime().Unix()), nil
	}

	h := sha1.New()
	fmt.Fprintf(h, "%d:%d:%d:%d", stat.Dev, stat.Ino, info.Size(), info.ModTime().Unix())
	return fmt.Sprintf("%x", h.Sum(nil)), nil
}

// GenerateSimpleFileKey creates a key from size and mtime only (portable fallback)
func GenerateSimpleFileKey(size int64, mtimeUnix int64) string {
	h := sha1.New()
	fmt.Fprintf(h, "%d:%d", size, mtimeUnix)
	return fmt.Sprintf("%x", h.Sum(nil))
}
