package backup

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"backup-expiry/internal/logging"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func readAuditEntries(t *testing.T, path string) []map[string]interface{} {
	t.Helper()
	file, err := os.Open(path)
	require.NoError(t, err)
	defer file.Close()

	var entries []map[string]interface{}
	scanner := bufio.NewScanner(file)
	for scanner.Scan() {
		var entry map[string]interface{}
		require.NoError(t, json.Unmarshal(scanner.Bytes(), &entry))
		entries = append(entries, entry)
	}
	require.NoError(t, scanner.Err())
	return entries
}

func TestNewAuditLogger(t *testing.T) {
	al, err := NewAuditLogger(AuditLoggerConfig{})
	require.NoError(t, err)
	assert.NotEmpty(t, al.GetCorrelationID())
	assert.NotNil(t, al.Logger())

	other := al.WithCorrelationID("run-42")
	assert.Equal(t, "run-42", other.GetCorrelationID())
	assert.NotEqual(t, al.GetCorrelationID(), other.GetCorrelationID())

	assert.NotEqual(t, NewRunID(), NewRunID())
}

func TestAuditLogger_WritesTrail(t *testing.T) {
	store, _ := newTestLocalStore(t)
	path := filepath.Join(t.TempDir(), "audit", "expiry.log")

	al, err := NewAuditLogger(AuditLoggerConfig{
		Logger:        logging.NewDiscardLogger(),
		AuditLogFile:  path,
		CorrelationID: "run-1",
	})
	require.NoError(t, err)

	finish := al.LogRunStart(context.Background(), true, false)
	result := &EntityResult{Class: EntityClassApp, Entity: "dsmr"}
	al.LogDeletion(store, result, "dsmr.20240101-1.tgz", false, nil)
	al.LogDeletion(store, result, "dsmr.20240102-2.tgz", false, errors.New("permission denied"))
	al.LogImageDeletion(store, "mosquitto.tar.gz", false, nil)

	report := NewRunReport("run-1", monday)
	report.AddError("app dsmr: deletion failed")
	finish(report)

	entries := readAuditEntries(t, path)
	require.Len(t, entries, 5)

	for _, entry := range entries {
		assert.Equal(t, "run-1", entry["correlation_id"])
	}
	assert.Equal(t, "run_start", entries[0]["operation"])
	assert.Equal(t, "artifact_delete", entries[1]["operation"])
	assert.Equal(t, "success", entries[1]["result"])
	assert.Equal(t, "failure", entries[2]["result"])
	assert.Equal(t, "image_delete", entries[3]["operation"])
	assert.Equal(t, "run_complete", entries[4]["operation"])
	assert.Equal(t, "failure", entries[4]["result"])

	details, ok := entries[2]["details"].(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "permission denied", details["error"])
	assert.Equal(t, "dsmr", details["entity"])
}

func TestAuditLogger_DryRunLeavesNoTrail(t *testing.T) {
	store, _ := newTestLocalStore(t)
	path := filepath.Join(t.TempDir(), "expiry.log")

	al, err := NewAuditLogger(AuditLoggerConfig{Logger: logging.NewDiscardLogger(), AuditLogFile: path})
	require.NoError(t, err)

	al.LogDeletion(store, &EntityResult{Class: EntityClassDB, Entity: "mariadb"}, "mariadb.20240101-1.sql.gz", true, nil)
	al.LogImageDeletion(store, "mosquitto.tar.gz", true, nil)

	_, err = os.Stat(path)
	assert.True(t, os.IsNotExist(err))
}
