package file_test

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/aretw0/strata/internal/adapters/file"
	"github.com/aretw0/strata/pkg/domain"
	"github.com/aretw0/strata/pkg/filter"
	"github.com/aretw0/strata/pkg/ports"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFileStore_Contract(t *testing.T) {
	store := file.New(t.TempDir())
	ports.RunStackStoreContract(t, store)
}

func TestFileStore_WritesReadableJSON(t *testing.T) {
	dir := t.TempDir()
	store := file.New(dir)
	ctx := context.Background()

	snap := domain.NewSnapshot("s1", filter.Stack{Past: []filter.Definition{
		filter.TermsFilter{ItemType: filter.Nodes, Field: "kind", Terms: []string{"a"}},
	}})
	require.NoError(t, store.Save(ctx, "s1", snap))

	data, err := os.ReadFile(filepath.Join(dir, "s1.json"))
	require.NoError(t, err)
	assert.Contains(t, string(data), `"type": "terms"`)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "no temp files left behind")
}

func TestFileStore_CorruptFile(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "bad.json"), []byte("{"), 0o644))

	_, err := file.New(dir).Load(context.Background(), "bad")
	require.Error(t, err)
	assert.NotErrorIs(t, err, domain.ErrSessionNotFound)
}

func TestFileStore_EmptyID(t *testing.T) {
	store := file.New(t.TempDir())
	assert.Error(t, store.Save(context.Background(), "", &domain.Snapshot{}))
	_, err := store.Load(context.Background(), "")
	assert.Error(t, err)
}

func TestFileStore_ListMissingDir(t *testing.T) {
	ids, err := file.New(filepath.Join(t.TempDir(), "none")).List(context.Background())
	require.NoError(t, err)
	assert.Empty(t, ids)
}
