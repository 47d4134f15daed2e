package fileops

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/xid"
	log "github.com/sirupsen/logrus"
	"golang.org/x/xerrors"
)

// AtomicWriter performs crash-safe file writes via temp-file-then-rename
// with optional backup and read-back verification
type AtomicWriter struct {
	MaxRetries    int
	RetryDelay    time.Duration
	BackupEnabled bool
	VerifyEnabled bool

	// test hook invoked after the temp file is written but before rename.
	// returning an error aborts the attempt.
	beforeRename func(tempPath string) error
}

// NewAtomicWriter creates a new AtomicWriter with sane defaults
func NewAtomicWriter() *AtomicWriter {
	return &AtomicWriter{
		MaxRetries:    3,
		RetryDelay:    50 * time.Millisecond,
		BackupEnabled: true,
		VerifyEnabled: false,
	}
}

// makeSuffix returns a unique suffix for temp and backup files
func makeSuffix() string {
	return fmt.Sprintf("%d.%s", time.Now().UnixNano(), xid.New().String())
}

// WriteFile writes data to the path atomically.
// A concurrent reader in the same process never observes a partially
// written file: the data becomes visible only through the final rename.
func (writer *AtomicWriter) WriteFile(path string, data []byte) error {
	logger := log.WithFields(log.Fields{
		"package":  "fileops",
		"struct":   "AtomicWriter",
		"function": "WriteFile",
	})

	err := os.MkdirAll(filepath.Dir(path), 0755)
	if err != nil {
		return xerrors.Errorf("failed to create parent directory for %q: %w", path, err)
	}

	backupPath := ""
	if writer.BackupEnabled {
		if _, statErr := os.Stat(path); statErr == nil {
			backupPath = fmt.Sprintf("%s.backup.%s", path, makeSuffix())
			if copyErr := copyFile(path, backupPath); copyErr != nil {
				logger.WithError(copyErr).Debugf("failed to snapshot %q, continuing without backup", path)
				backupPath = ""
			}
		}
	}

	var lastErr error
	maxRetries := writer.MaxRetries
	if maxRetries < 1 {
		maxRetries = 1
	}

	for attempt := 1; attempt <= maxRetries; attempt++ {
		lastErr = writer.writeOnce(path, data)
		if lastErr == nil {
			if len(backupPath) > 0 {
				os.Remove(backupPath)
			}
			return nil
		}

		logger.WithError(lastErr).Debugf("write attempt %d/%d for %q failed", attempt, maxRetries, path)

		if attempt < maxRetries {
			// linear backoff
			time.Sleep(writer.RetryDelay * time.Duration(attempt))
		}
	}

	if len(backupPath) > 0 {
		if restoreErr := os.Rename(backupPath, path); restoreErr != nil {
			logger.WithError(restoreErr).Errorf("failed to restore backup over %q", path)
		}
	}

	return xerrors.Errorf("failed to write %q after %d attempts: %w", path, maxRetries, lastErr)
}

// writeOnce performs a single temp-write-verify-rename cycle
func (writer *AtomicWriter) writeOnce(path string, data []byte) error {
	tempPath := fmt.Sprintf("%s.tmp.%s", path, makeSuffix())

	err := os.WriteFile(tempPath, data, 0644)
	if err != nil {
		os.Remove(tempPath)
		return xerrors.Errorf("failed to write temp file: %w", err)
	}

	if writer.VerifyEnabled {
		written, readErr := os.ReadFile(tempPath)
		if readErr != nil {
			os.Remove(tempPath)
			return xerrors.Errorf("failed to read back temp file: %w", readErr)
		}

		if !bytes.Equal(written, data) {
			os.Remove(tempPath)
			return xerrors.Errorf("temp file content does not match written data")
		}
	}

	if writer.beforeRename != nil {
		if hookErr := writer.beforeRename(tempPath); hookErr != nil {
			os.Remove(tempPath)
			return hookErr
		}
	}

	// atomic on the same filesystem
	err = os.Rename(tempPath, path)
	if err != nil {
		os.Remove(tempPath)
		return xerrors.Errorf("failed to rename temp file onto %q: %w", path, err)
	}

	return nil
}

// DeleteFile removes the file; a missing file is not an error
func (writer *AtomicWriter) DeleteFile(path string) error {
	err := os.Remove(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return xerrors.Errorf("failed to delete %q: %w", path, err)
	}

	return nil
}

// copyFile copies src to dst
func copyFile(src string, dst string) error {
	data, err := os.ReadFile(src)
	if err != nil {
		return err
	}

	return os.WriteFile(dst, data, 0644)
}
