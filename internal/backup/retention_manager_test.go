package backup

import (
	"context"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"backup-expiry/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockArtifactStore is a mock implementation of ArtifactStore
type MockArtifactStore struct {
	mock.Mock
}

func (m *MockArtifactStore) List(ctx context.Context, dir string) ([]ArtifactInfo, error) {
	args := m.Called(ctx, dir)
	infos, _ := args.Get(0).([]ArtifactInfo)
	return infos, args.Error(1)
}

func (m *MockArtifactStore) Open(ctx context.Context, dir, name string) (io.ReadCloser, error) {
	args := m.Called(ctx, dir, name)
	rc, _ := args.Get(0).(io.ReadCloser)
	return rc, args.Error(1)
}

func (m *MockArtifactStore) Delete(ctx context.Context, dir, name string) error {
	args := m.Called(ctx, dir, name)
	return args.Error(0)
}

func (m *MockArtifactStore) Exists(ctx context.Context, dir string) (bool, error) {
	args := m.Called(ctx, dir)
	return args.Bool(0), args.Error(1)
}

func (m *MockArtifactStore) Name() string {
	return "mock"
}

// monday is a fixed "today" for manager tests
var monday = time.Date(2024, time.January, 8, 3, 30, 0, 0, time.UTC)

var weekOfJanuary = []string{
	"dsmr.20240101-1.tgz", "dsmr.20240102-2.tgz", "dsmr.20240103-3.tgz", "dsmr.20240104-4.tgz",
	"dsmr.20240105-5.tgz", "dsmr.20240106-6.tgz", "dsmr.20240107-7.tgz",
}

func newTestConfig() *SystemConfig {
	cfg := NewDefaultSystemConfig()
	cfg.App = []EntityConfig{{Name: "dsmr"}}
	cfg.DB = []EntityConfig{{Name: "mariadb"}}
	cfg.ExpiryApp.RetentionPolicy = RetentionPolicy{Day: 5, Month: 1}
	cfg.ExpiryDB.RetentionPolicy = RetentionPolicy{Day: 2}
	cfg.Resolve()
	return cfg
}

func newTestManager(t *testing.T, cfg *SystemConfig, store ArtifactStore, opts RetentionManagerOptions) *RetentionManager {
	t.Helper()
	if opts.Now == nil {
		opts.Now = func() time.Time { return monday }
	}
	if opts.RetryBaseDelay == 0 {
		opts.RetryBaseDelay = time.Millisecond
	}
	rm, err := NewRetentionManager([]ArtifactStore{store}, cfg, logging.NewDiscardLogger(), opts)
	require.NoError(t, err)
	return rm
}

func remainingFiles(t *testing.T, base, dir string) []string {
	t.Helper()
	entries, err := os.ReadDir(filepath.Join(base, filepath.FromSlash(dir)))
	require.NoError(t, err)
	var names []string
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	return names
}

func TestNewRetentionManager(t *testing.T) {
	store, _ := newTestLocalStore(t)

	_, err := NewRetentionManager(nil, newTestConfig(), nil, RetentionManagerOptions{})
	assert.Error(t, err)

	_, err = NewRetentionManager([]ArtifactStore{store}, nil, nil, RetentionManagerOptions{})
	assert.Error(t, err)

	rm, err := NewRetentionManager([]ArtifactStore{store}, newTestConfig(), nil, RetentionManagerOptions{DryRun: true})
	require.NoError(t, err)
	assert.True(t, rm.IsDryRun())
	assert.Len(t, rm.Stores(), 1)
}

func TestRetentionManager_Run(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", append(weekOfJanuary, "dsmr.badname.tgz")...)
	writeArtifacts(t, base, "db/mariadb", "mariadb.20240106-6.sql.gz", "mariadb.20240107-7.sql.gz", "mariadb.20240105-5.sql.gz")

	rm := newTestManager(t, newTestConfig(), store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	assert.False(t, report.HasErrors(), report.Errors)
	assert.Equal(t, 3, report.TotalDeleted())
	assert.Equal(t, monday, report.StartedAt)
	assert.NotEmpty(t, report.RunID)

	require.Len(t, report.Entities, 2)
	app := report.Entities[0]
	assert.Equal(t, "app dsmr", app.Label())
	assert.Equal(t, []string{"dsmr.20240102-2.tgz", "dsmr.20240101-1.tgz"}, app.Deleted)
	assert.Equal(t, 5, app.Retained)
	assert.Equal(t, 2, app.Expired)
	require.Len(t, app.Invalid, 1)
	assert.Equal(t, "dsmr.badname.tgz", app.Invalid[0].Name)

	assert.Equal(t, []string{
		"dsmr.20240103-3.tgz", "dsmr.20240104-4.tgz", "dsmr.20240105-5.tgz",
		"dsmr.20240106-6.tgz", "dsmr.20240107-7.tgz", "dsmr.badname.tgz",
	}, remainingFiles(t, base, "app/dsmr"))
	assert.Equal(t, []string{"mariadb.20240106-6.sql.gz", "mariadb.20240107-7.sql.gz"}, remainingFiles(t, base, "db/mariadb"))

	// a second run with the same clock has nothing left to do
	again, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)
	assert.Zero(t, again.TotalDeleted())
}

func TestRetentionManager_RunKeepsNameWithoutSuffix(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", "dsmr.20240107-7.tgz", "dsmr.20230101-7")
	writeArtifacts(t, base, "db/mariadb")

	cfg := newTestConfig()
	cfg.ExpiryApp.RetentionPolicy = RetentionPolicy{Day: 1}
	cfg.Resolve()
	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	app := report.Entities[0]
	assert.Empty(t, app.Deleted)
	require.Len(t, app.Invalid, 1)
	assert.Equal(t, "dsmr.20230101-7", app.Invalid[0].Name)
	assert.ElementsMatch(t, []string{"dsmr.20240107-7.tgz", "dsmr.20230101-7"}, remainingFiles(t, base, "app/dsmr"))
}

func TestRetentionManager_RunDryRun(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)
	writeArtifacts(t, base, "db/mariadb")

	rm := newTestManager(t, newTestConfig(), store, RetentionManagerOptions{DryRun: true})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	assert.True(t, report.DryRun)
	assert.Zero(t, report.TotalDeleted())
	assert.Equal(t, 2, report.Entities[0].Expired)
	assert.Len(t, remainingFiles(t, base, "app/dsmr"), len(weekOfJanuary))
}

func TestRetentionManager_RunMissingDirectory(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)

	rm := newTestManager(t, newTestConfig(), store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	// the missing db directory does not stop the app cleanup
	require.Equal(t, 1, report.ErrorCount())
	assert.Contains(t, report.FirstError(), "db/mariadb' does not exist")
	assert.Equal(t, 2, report.TotalDeleted())
	assert.Contains(t, report.Summary(), "Backup: 1 error(s), Msg1=Directory ")
}

func TestRetentionManager_RunZeroDay(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)
	writeArtifacts(t, base, "db/mariadb", "mariadb.20230101-7.sql.gz", "mariadb.20240101-1.sql.gz", "mariadb.20240102-2.sql.gz")

	cfg := newTestConfig()
	cfg.ExpiryDB.RetentionPolicy = RetentionPolicy{Day: 0, Month: 3, Year: 1}
	cfg.Resolve()

	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	require.Len(t, report.Entities, 2)
	db := report.Entities[1]
	assert.True(t, db.Skipped)
	assert.Equal(t, "day=0 configured", db.SkipReason)
	assert.Empty(t, db.Deleted)
	assert.Len(t, remainingFiles(t, base, "db/mariadb"), 3)
	assert.False(t, report.HasErrors())
}

func TestRetentionManager_RunWeekdayGate(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)
	writeArtifacts(t, base, "db/mariadb")

	cfg := newTestConfig()
	cfg.ExpiryApp.Weekday = []int{WeekdaySunday}

	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)
	require.Len(t, report.Entities, 1)
	assert.Equal(t, EntityClassDB, report.Entities[0].Class)
	assert.Len(t, remainingFiles(t, base, "app/dsmr"), len(weekOfJanuary))

	// manual runs ignore the weekday schedule
	report, err = rm.Run(context.Background(), Selection{Manual: true, Class: EntityClassApp})
	require.NoError(t, err)
	require.Len(t, report.Entities, 1)
	assert.True(t, report.Manual)
	assert.Len(t, report.Entities[0].Deleted, 2)
}

func TestRetentionManager_RunSelection(t *testing.T) {
	disabled := false

	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)
	writeArtifacts(t, base, "app/grafana", "grafana.20240101-1.tgz", "grafana.20240102-2.tgz")
	writeArtifacts(t, base, "db/mariadb")

	cfg := newTestConfig()
	cfg.App = append(cfg.App, EntityConfig{Name: "grafana", Enabled: &disabled, Expiry: RetentionPolicy{Day: 1}})
	cfg.Resolve()

	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	t.Run("scheduled run skips disabled entities", func(t *testing.T) {
		report, err := rm.Run(context.Background(), Selection{})
		require.NoError(t, err)
		for _, entity := range report.Entities {
			assert.NotEqual(t, "grafana", entity.Entity)
		}
	})

	t.Run("manual run by name", func(t *testing.T) {
		report, err := rm.Run(context.Background(), Selection{Manual: true, Class: EntityClassApp, Name: "grafana"})
		require.NoError(t, err)
		require.Len(t, report.Entities, 1)
		assert.Equal(t, []string{"grafana.20240101-1.tgz"}, report.Entities[0].Deleted)
		assert.Equal(t, RetentionPolicy{Day: 1, Month: 1}, report.Entities[0].Policy)
	})

	t.Run("unknown entity", func(t *testing.T) {
		_, err := rm.Run(context.Background(), Selection{Manual: true, Class: EntityClassDB, Name: "postgres"})
		require.Error(t, err)
		assert.True(t, IsNotFound(err))
	})
}

func TestRetentionManager_RunExpiryDisabled(t *testing.T) {
	store := &MockArtifactStore{}

	cfg := newTestConfig()
	cfg.General.Expiry = false

	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)
	assert.Empty(t, report.Entities)
	store.AssertNotCalled(t, "List", mock.Anything, mock.Anything)
}

func TestRetentionManager_RunOtherClassDefault(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr")
	writeArtifacts(t, base, "db/mariadb")
	writeArtifacts(t, base, "other/zigbee2mqtt", "zigbee2mqtt.20240106-6.tgz", "zigbee2mqtt.20240107-7.tgz")
	writeArtifacts(t, base, "other/mosquitto", "mosquitto.20240106-6.tgz", "mosquitto.20240107-7.tgz")

	cfg := newTestConfig()
	cfg.Other = []EntityConfig{
		{Name: "zigbee2mqtt"},
		{Name: "mosquitto", Expiry: RetentionPolicy{Day: 1}},
	}
	cfg.Resolve()
	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)
	require.Len(t, report.Entities, 4)

	zigbee := report.Entities[2]
	assert.True(t, zigbee.Skipped)
	assert.Len(t, remainingFiles(t, base, "other/zigbee2mqtt"), 2)

	mosquitto := report.Entities[3]
	assert.Equal(t, []string{"mosquitto.20240106-6.tgz"}, mosquitto.Deleted)
	assert.Equal(t, []string{"mosquitto.20240107-7.tgz"}, remainingFiles(t, base, "other/mosquitto"))
}

func TestRetentionManager_DeletionRetry(t *testing.T) {
	ctx := context.Background()
	infos := []ArtifactInfo{
		{Name: "dsmr.20240107-7.tgz"},
		{Name: "dsmr.20240106-6.tgz"},
		{Name: "dsmr.20240105-5.tgz"},
	}

	cfg := newTestConfig()
	cfg.DB = nil
	cfg.App[0].Expiry = RetentionPolicy{Day: 1}
	cfg.General.Retry = 2
	cfg.Resolve()

	t.Run("transient failure is retried", func(t *testing.T) {
		store := &MockArtifactStore{}
		store.On("List", mock.Anything, "app/dsmr").Return(infos, nil)
		store.On("Delete", mock.Anything, "app/dsmr", "dsmr.20240106-6.tgz").
			Return(NewStorageError("connection reset", nil)).Once()
		store.On("Delete", mock.Anything, "app/dsmr", "dsmr.20240106-6.tgz").Return(nil).Once()
		store.On("Delete", mock.Anything, "app/dsmr", "dsmr.20240105-5.tgz").Return(nil).Once()

		rm := newTestManager(t, cfg, store, RetentionManagerOptions{})
		report, err := rm.Run(ctx, Selection{})
		require.NoError(t, err)

		assert.False(t, report.HasErrors(), report.Errors)
		assert.Equal(t, 2, report.TotalDeleted())
		store.AssertNumberOfCalls(t, "Delete", 3)
	})

	t.Run("permanent failure is reported", func(t *testing.T) {
		store := &MockArtifactStore{}
		store.On("List", mock.Anything, "app/dsmr").Return(infos, nil)
		store.On("Delete", mock.Anything, "app/dsmr", "dsmr.20240106-6.tgz").
			Return(NewPermissionError("read-only file system", nil))
		store.On("Delete", mock.Anything, "app/dsmr", "dsmr.20240105-5.tgz").Return(nil)

		rm := newTestManager(t, cfg, store, RetentionManagerOptions{})
		report, err := rm.Run(ctx, Selection{})
		require.NoError(t, err)

		require.Equal(t, 1, report.ErrorCount())
		assert.Contains(t, report.FirstError(), "app dsmr: 'mock/app/dsmr/dsmr.20240106-6.tgz' FAILED deletion")
		assert.Equal(t, []string{"dsmr.20240106-6.tgz"}, report.Entities[0].Failed)
		assert.Equal(t, []string{"dsmr.20240105-5.tgz"}, report.Entities[0].Deleted)
		store.AssertNumberOfCalls(t, "Delete", 2)
	})

	t.Run("retries are bounded", func(t *testing.T) {
		store := &MockArtifactStore{}
		store.On("List", mock.Anything, "app/dsmr").Return(infos, nil)
		store.On("Delete", mock.Anything, "app/dsmr", mock.Anything).Return(NewNetworkError("timeout", nil))

		rm := newTestManager(t, cfg, store, RetentionManagerOptions{})
		report, err := rm.Run(ctx, Selection{})
		require.NoError(t, err)

		assert.Equal(t, 2, report.ErrorCount())
		store.AssertNumberOfCalls(t, "Delete", 6)
	})
}

func TestRetentionManager_ListFailure(t *testing.T) {
	cfg := newTestConfig()
	cfg.DB = nil
	cfg.Resolve()

	store := &MockArtifactStore{}
	store.On("List", mock.Anything, "app/dsmr").Return(nil, NewPermissionError("access denied", nil))

	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})
	report, err := rm.Run(context.Background(), Selection{})
	require.NoError(t, err)

	require.Equal(t, 1, report.ErrorCount())
	assert.Contains(t, report.FirstError(), "app dsmr: failed to list 'mock/app/dsmr'")
	assert.True(t, report.Entities[0].Skipped)
	store.AssertNotCalled(t, "Delete", mock.Anything, mock.Anything, mock.Anything)
}

func TestRetentionManager_PlanEntity(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)

	cfg := newTestConfig()
	rm := newTestManager(t, cfg, store, RetentionManagerOptions{})

	entity, ok := cfg.FindEntity(EntityClassApp, "dsmr")
	require.True(t, ok)

	result, err := rm.PlanEntity(context.Background(), store, EntityClassApp, entity)
	require.NoError(t, err)
	assert.Equal(t, []string{"dsmr.20240102-2.tgz", "dsmr.20240101-1.tgz"}, artifactNames(result.Plan.Expired()))
	assert.Len(t, remainingFiles(t, base, "app/dsmr"), len(weekOfJanuary))
}

func TestRetentionManager_Plan(t *testing.T) {
	store, base := newTestLocalStore(t)
	writeArtifacts(t, base, "app/dsmr", weekOfJanuary...)

	rm := newTestManager(t, newTestConfig(), store, RetentionManagerOptions{})

	results, errs := rm.Plan(context.Background(), Selection{Manual: true})

	require.Len(t, results, 2)
	assert.Equal(t, 2, results[0].Expired)
	assert.Equal(t, "mariadb", results[1].Entity)
	assert.True(t, results[1].Skipped)
	assert.Equal(t, []string{"Directory 'local:" + base + "/db/mariadb' does not exist"}, errs)
	assert.Len(t, remainingFiles(t, base, "app/dsmr"), len(weekOfJanuary))

	results, errs = rm.Plan(context.Background(), Selection{Manual: true, Class: EntityClassApp, Name: "dsmr"})
	assert.Empty(t, errs)
	require.Len(t, results, 1)
	assert.Equal(t, "dsmr", results[0].Entity)
}

func TestEntityDir(t *testing.T) {
	assert.Equal(t, "app/dsmr", EntityDir(EntityClassApp, "dsmr"))
	assert.Equal(t, "other/zigbee2mqtt", EntityDir(EntityClassOther, "zigbee2mqtt"))
}

func TestSelection_IsEmpty(t *testing.T) {
	assert.True(t, Selection{}.IsEmpty())
	assert.True(t, Selection{Manual: true}.IsEmpty())
	assert.False(t, Selection{Class: EntityClassDB}.IsEmpty())
	assert.False(t, Selection{Image: true}.IsEmpty())
}
