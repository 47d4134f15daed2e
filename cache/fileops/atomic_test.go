package fileops

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/xerrors"
)

func TestWriteFile(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	path := filepath.Join(tempDir, "subdir", "entry.json")
	data := []byte(`{"key":"a","data":"dmFsdWU="}`)

	err := writer.WriteFile(path, data)
	require.NoError(t, err)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, data, written)
}

func TestWriteFileOverwrite(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	path := filepath.Join(tempDir, "entry.json")

	require.NoError(t, writer.WriteFile(path, []byte("first")))
	require.NoError(t, writer.WriteFile(path, []byte("second")))

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("second"), written)

	// no temp or backup files left behind
	entries, err := os.ReadDir(tempDir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

func TestWriteFileVerify(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()
	writer.VerifyEnabled = true

	path := filepath.Join(tempDir, "entry.json")

	err := writer.WriteFile(path, []byte("verified content"))
	require.NoError(t, err)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("verified content"), written)
}

func TestWriteFileFailureBeforeRenameKeepsOriginal(t *testing.T) {
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "entry.json")
	original := []byte("original content")

	writer := NewAtomicWriter()
	require.NoError(t, writer.WriteFile(path, original))

	// kill the write path after the temp file is written but before rename
	writer.MaxRetries = 2
	writer.RetryDelay = time.Millisecond
	writer.beforeRename = func(tempPath string) error {
		return xerrors.Errorf("injected failure")
	}

	err := writer.WriteFile(path, []byte("new content"))
	require.Error(t, err)

	written, readErr := os.ReadFile(path)
	require.NoError(t, readErr)
	assert.Equal(t, original, written, "target must remain intact")

	// temp files must never be observed by readers
	entries, err2 := os.ReadDir(tempDir)
	require.NoError(t, err2)
	assert.Len(t, entries, 1)
}

func TestWriteFileRetriesThenSucceeds(t *testing.T) {
	tempDir := t.TempDir()

	path := filepath.Join(tempDir, "entry.json")

	attempts := 0
	writer := NewAtomicWriter()
	writer.MaxRetries = 3
	writer.RetryDelay = time.Millisecond
	writer.beforeRename = func(tempPath string) error {
		attempts++
		if attempts < 3 {
			return xerrors.Errorf("transient failure")
		}
		return nil
	}

	err := writer.WriteFile(path, []byte("eventually written"))
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	written, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, []byte("eventually written"), written)
}

func TestDeleteFile(t *testing.T) {
	tempDir := t.TempDir()
	writer := NewAtomicWriter()

	path := filepath.Join(tempDir, "entry.json")
	require.NoError(t, writer.WriteFile(path, []byte("data")))

	require.NoError(t, writer.DeleteFile(path))
	_, err := os.Stat(path)
	assert.True(t, os.IsNotExist(err))

	// deleting a missing file is not an error
	assert.NoError(t, writer.DeleteFile(path))
}
