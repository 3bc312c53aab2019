package blob

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/adflow/pipeline/internal/config"
	"github.com/adflow/pipeline/internal/model"
)

func TestPutWritesToDeterministicPath(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(config.BlobConfig{BucketDir: root})
	require.NoError(t, err)

	payload := model.RawPayload{Source: "hmac_rest", BatchID: "20260701_100000"}
	require.NoError(t, store.Put(context.Background(), payload.BlobKey(), []byte(`{"rows":[]}`)))

	data, err := os.ReadFile(filepath.Join(root, "hmac_rest", "batch_20260701_100000", "data.json"))
	require.NoError(t, err)
	require.Equal(t, `{"rows":[]}`, string(data))
}

func TestPutOverwritesExistingObject(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(config.BlobConfig{BucketDir: root})
	require.NoError(t, err)

	key := "hmac_rest/batch_20260701_100000/data.json"
	require.NoError(t, store.Put(context.Background(), key, []byte("first")))
	require.NoError(t, store.Put(context.Background(), key, []byte("second")))

	data, err := os.ReadFile(filepath.Join(root, filepath.FromSlash(key)))
	require.NoError(t, err)
	require.Equal(t, "second", string(data))
}

func TestPutLeavesNoTempFileBehind(t *testing.T) {
	root := t.TempDir()
	store, err := NewFSStore(config.BlobConfig{BucketDir: root})
	require.NoError(t, err)

	key := "bearer_rest/batch_20260701_100000/data.json"
	require.NoError(t, store.Put(context.Background(), key, []byte("payload")))

	entries, err := os.ReadDir(filepath.Join(root, "bearer_rest", "batch_20260701_100000"))
	require.NoError(t, err)
	require.Len(t, entries, 1)
	require.Equal(t, "data.json", entries[0].Name())
}
