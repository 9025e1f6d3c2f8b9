// Package backup writes compressed snapshots of the database file. Rebuild
// is the one destructive operation in the system; a snapshot beforehand makes
// it reversible.
package backup

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/klauspost/compress/gzip"
)

// Snapshot copies the database file at dbPath to a timestamped .gz sibling
// and returns the snapshot path. Returns "" without error when the database
// does not exist yet (nothing to back up).
//
// The snapshot is taken with a plain file copy, so it must run while no
// writer is active (the rebuild command does this before touching the store).
func Snapshot(dbPath string) (string, error) {
	src, err := os.Open(dbPath)
	if err != nil {
		if os.IsNotExist(err) {
			return "", nil
		}
		return "", fmt.Errorf("failed to open database: %w", err)
	}
	defer src.Close()

	stamp := time.Now().UTC().Format("20060102-150405")
	backupPath := fmt.Sprintf("%s.%s.gz", dbPath, stamp)

	dst, err := os.OpenFile(backupPath, os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0600)
	if err != nil {
		return "", fmt.Errorf("failed to create backup file: %w", err)
	}

	gz := gzip.NewWriter(dst)
	if _, err := io.Copy(gz, src); err != nil {
		gz.Close()
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to write backup: %w", err)
	}
	if err := gz.Close(); err != nil {
		dst.Close()
		os.Remove(backupPath)
		return "", fmt.Errorf("failed to finalize backup: %w", err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("failed to close backup: %w", err)
	}

	return backupPath, nil
}

// Restore decompresses a snapshot produced by Snapshot back to dbPath,
// replacing whatever is there.
func Restore(snapshotPath, dbPath string) error {
	src, err := os.Open(snapshotPath)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer src.Close()

	gz, err := gzip.NewReader(src)
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	defer gz.Close()

	tmp := dbPath + ".restore"
	dst, err := os.OpenFile(tmp, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		return fmt.Errorf("failed to create restore file: %w", err)
	}

	if _, err := io.Copy(dst, gz); err != nil {
		dst.Close()
		os.Remove(tmp)
		return fmt.Errorf("failed to decompress snapshot: %w", err)
	}
	if err := dst.Close(); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to close restore file: %w", err)
	}

	if err := os.Rename(tmp, dbPath); err != nil {
		os.Remove(tmp)
		return fmt.Errorf("failed to replace database: %w", err)
	}
	return nil
}
