package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/linlanniao/odinscheduler/internal/config"
	"github.com/linlanniao/odinscheduler/internal/store"
)

func writeCreds(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "credentials.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestLoad_ValidCredentials(t *testing.T) {
	path := writeCreds(t, `
jobs_db:
  host: jobsdb.internal
  port: 5432
  user: odin
  passwd: secret
  backend: postgres
reporting_db:
  host: reportingdb.internal
  port: 5432
odin_db: {}
`)

	creds, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, "jobsdb.internal", creds.JobsDB.Host)

	sc := creds.StoreConfig(5*time.Second, "/tmp/docs")
	assert.Equal(t, store.BackendPostgres, sc.Backend)
	assert.Equal(t, 5*time.Second, sc.ConnectTimeout)
}

func TestLoad_MissingJobsDBHost(t *testing.T) {
	path := writeCreds(t, `
jobs_db:
  backend: postgres
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_InvalidBackend(t *testing.T) {
	path := writeCreds(t, `
jobs_db:
  host: jobsdb.internal
  backend: mysql
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_ReportingDBHostWithoutPort(t *testing.T) {
	path := writeCreds(t, `
jobs_db:
  host: jobsdb.internal
  backend: postgres
reporting_db:
  host: reportingdb.internal
`)
	_, err := config.Load(path)
	assert.Error(t, err)
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := config.Load(filepath.Join(t.TempDir(), "nope.yaml"))
	assert.Error(t, err)
}
