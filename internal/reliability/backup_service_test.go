package reliability

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memObjectStore struct {
	objects map[string][]byte
	deleted []string
}

func newMemObjectStore() *memObjectStore {
	return &memObjectStore{objects: make(map[string][]byte)}
}

func (m *memObjectStore) Upload(ctx context.Context, key string, body io.Reader) error {
	data, err := io.ReadAll(body)
	if err != nil {
		return err
	}
	m.objects[key] = data
	return nil
}

func (m *memObjectStore) List(ctx context.Context, prefix string) ([]types.Object, error) {
	var out []types.Object
	for key, data := range m.objects {
		out = append(out, types.Object{
			Key:  aws.String(key),
			Size: aws.Int64(int64(len(data))),
		})
	}
	return out, nil
}

func (m *memObjectStore) Delete(ctx context.Context, key string) error {
	delete(m.objects, key)
	m.deleted = append(m.deleted, key)
	return nil
}

func newTestBackup(t *testing.T) (*BackupService, *memObjectStore, string) {
	t.Helper()
	dataDir := t.TempDir()
	ledgerPath := filepath.Join(dataDir, "ledger.json")
	require.NoError(t, os.WriteFile(ledgerPath, []byte(`{"cash": 1000000, "stocks": []}`), 0644))
	require.NoError(t, os.WriteFile(filepath.Join(dataDir, "history.db"), []byte("sqlite"), 0644))

	store := newMemObjectStore()
	return NewBackupService(store, ledgerPath, dataDir, zerolog.Nop()), store, dataDir
}

func archiveEntries(t *testing.T, data []byte) []string {
	t.Helper()
	gr, err := gzip.NewReader(bytes.NewReader(data))
	require.NoError(t, err)
	tr := tar.NewReader(gr)

	var names []string
	for {
		header, err := tr.Next()
		if err == io.EOF {
			break
		}
		require.NoError(t, err)
		names = append(names, header.Name)
	}
	return names
}

func TestCreateAndUpload(t *testing.T) {
	svc, store, dataDir := newTestBackup(t)

	require.NoError(t, svc.CreateAndUpload(context.Background()))
	require.Len(t, store.objects, 1)

	for key, data := range store.objects {
		assert.Contains(t, key, archivePrefix)
		names := archiveEntries(t, data)
		assert.Contains(t, names, "ledger.json")
		assert.Contains(t, names, "history.db")
		assert.Contains(t, names, "backup-metadata.json")
	}

	// Staging directory is cleaned up.
	entries, err := os.ReadDir(dataDir)
	require.NoError(t, err)
	for _, entry := range entries {
		assert.False(t, entry.IsDir(), "staging residue: %s", entry.Name())
	}
}

func TestCreateAndUploadEmptyDirFails(t *testing.T) {
	dataDir := t.TempDir()
	svc := NewBackupService(newMemObjectStore(), filepath.Join(dataDir, "missing.json"), dataDir, zerolog.Nop())

	err := svc.CreateAndUpload(context.Background())
	assert.Error(t, err)
}

func TestListBackupsSortsNewestFirst(t *testing.T) {
	svc, store, _ := newTestBackup(t)
	store.objects[archivePrefix+"2026-08-25-090500.tar.gz"] = []byte("a")
	store.objects[archivePrefix+"2026-08-27-090500.tar.gz"] = []byte("bb")
	store.objects["unrelated.txt"] = []byte("x")

	backups, err := svc.ListBackups(context.Background())
	require.NoError(t, err)
	require.Len(t, backups, 2)
	assert.Equal(t, archivePrefix+"2026-08-27-090500.tar.gz", backups[0].Filename)
	assert.Equal(t, int64(2), backups[0].SizeBytes)
}

func TestRotateOldBackupsKeepsMinimum(t *testing.T) {
	svc, store, _ := newTestBackup(t)

	// Five backups, all far older than retention.
	base := time.Now().AddDate(0, 0, -100)
	for i := 0; i < 5; i++ {
		name := archivePrefix + base.AddDate(0, 0, i).Format(archiveStamp) + ".tar.gz"
		store.objects[name] = []byte("x")
	}

	require.NoError(t, svc.RotateOldBackups(context.Background(), 30))
	assert.Len(t, store.deleted, 2)
	assert.Len(t, store.objects, 3)
}

func TestRotateZeroRetentionKeepsEverything(t *testing.T) {
	svc, store, _ := newTestBackup(t)
	store.objects[archivePrefix+"2020-01-01-000000.tar.gz"] = []byte("x")

	require.NoError(t, svc.RotateOldBackups(context.Background(), 0))
	assert.Empty(t, store.deleted)
}
