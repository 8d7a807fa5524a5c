package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// writeArtifacts creates files with the given names below base/dir
func writeArtifacts(t *testing.T, base, dir string, names ...string) {
	t.Helper()
	full := filepath.Join(base, filepath.FromSlash(dir))
	require.NoError(t, os.MkdirAll(full, 0755))
	for _, name := range names {
		require.NoError(t, os.WriteFile(filepath.Join(full, name), []byte(name), 0644))
	}
}

func newTestLocalStore(t *testing.T) (*LocalStorageProvider, string) {
	t.Helper()
	base := t.TempDir()
	store, err := NewLocalStorageProvider(&LocalConfig{BasePath: base, Permissions: 0755})
	require.NoError(t, err)
	return store, base
}

func TestNewLocalStorageProvider(t *testing.T) {
	tests := []struct {
		name    string
		config  *LocalConfig
		wantErr bool
	}{
		{name: "valid config", config: &LocalConfig{BasePath: t.TempDir(), Permissions: 0755}},
		{name: "nil config", config: nil, wantErr: true},
		{name: "empty base path", config: &LocalConfig{BasePath: ""}, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			provider, err := NewLocalStorageProvider(tt.config)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.NotNil(t, provider)
		})
	}
}

func TestLocalStorageProvider_List(t *testing.T) {
	store, base := newTestLocalStore(t)
	ctx := context.Background()

	writeArtifacts(t, base, "app/dsmr", "dsmr.20240102-2.tgz", "dsmr.20240101-1.tgz")
	require.NoError(t, os.MkdirAll(filepath.Join(base, "app", "dsmr", "nested"), 0755))

	infos, err := store.List(ctx, "app/dsmr")
	require.NoError(t, err)
	assert.Equal(t, []string{"dsmr.20240101-1.tgz", "dsmr.20240102-2.tgz"}, Names(infos))
	assert.Equal(t, int64(len("dsmr.20240101-1.tgz")), infos[0].Size)
	assert.False(t, infos[0].ModTime.IsZero())

	_, err = store.List(ctx, "app/missing")
	require.Error(t, err)
	assert.True(t, IsNotFound(err))
}

func TestLocalStorageProvider_ListStaysInsideBase(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app", "inside.txt")

	infos, err := store.List(context.Background(), "../../app")
	require.NoError(t, err)
	assert.Equal(t, []string{"inside.txt"}, Names(infos))
}

func TestLocalStorageProvider_OpenAndDelete(t *testing.T) {
	store, base := newTestLocalStore(t)
	ctx := context.Background()
	writeArtifacts(t, base, "db/mariadb", "mariadb.20240101-1.sql.gz")

	rc, err := store.Open(ctx, "db/mariadb", "mariadb.20240101-1.sql.gz")
	require.NoError(t, err)
	content, err := io.ReadAll(rc)
	require.NoError(t, rc.Close())
	require.NoError(t, err)
	assert.Equal(t, "mariadb.20240101-1.sql.gz", string(content))

	require.NoError(t, store.Delete(ctx, "db/mariadb", "mariadb.20240101-1.sql.gz"))
	_, err = os.Stat(filepath.Join(base, "db", "mariadb", "mariadb.20240101-1.sql.gz"))
	assert.True(t, os.IsNotExist(err))

	err = store.Delete(ctx, "db/mariadb", "mariadb.20240101-1.sql.gz")
	assert.True(t, IsNotFound(err))

	_, err = store.Open(ctx, "db/mariadb", "missing.tgz")
	assert.True(t, IsNotFound(err))
}

func TestLocalStorageProvider_RejectsInvalidNames(t *testing.T) {
	store, _ := newTestLocalStore(t)
	ctx := context.Background()

	for _, name := range []string{"", ".", "..", "../escape", `a\b`} {
		err := store.Delete(ctx, "app", name)
		require.Error(t, err, name)
		var backupErr *BackupError
		require.ErrorAs(t, err, &backupErr)
		assert.Equal(t, BackupErrorTypeValidation, backupErr.Type)
	}
}

func TestLocalStorageProvider_Exists(t *testing.T) {
	store, base := newTestLocalStore(t)
	ctx := context.Background()
	writeArtifacts(t, base, "other/zigbee", "zigbee.20240101-1.tgz")

	exists, err := store.Exists(ctx, "other/zigbee")
	require.NoError(t, err)
	assert.True(t, exists)

	exists, err = store.Exists(ctx, "other/missing")
	require.NoError(t, err)
	assert.False(t, exists)

	writeArtifacts(t, base, "other/empty")
	exists, err = store.Exists(ctx, "other/empty")
	require.NoError(t, err)
	assert.True(t, exists, "an empty directory exists")

	exists, err = store.Exists(ctx, "other/zigbee/zigbee.20240101-1.tgz")
	require.NoError(t, err)
	assert.False(t, exists, "a file is not a directory")
}

func TestLocalStorageProvider_HealthCheck(t *testing.T) {
	store, base := newTestLocalStore(t)
	assert.NoError(t, store.HealthCheck(context.Background()))
	assert.Equal(t, base, store.GetBasePath())
	assert.Equal(t, "local:"+base, store.Name())

	missing, err := NewLocalStorageProvider(&LocalConfig{BasePath: filepath.Join(base, "gone")})
	require.NoError(t, err)
	err = missing.HealthCheck(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "does not exist")
}
