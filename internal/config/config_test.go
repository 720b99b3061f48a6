package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/kbworks/docingest/internal/pkg/errs"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadDefaults(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"host": "localhost", "db_name": "kb"},
		"storage": {"providers": {"local": {}}},
		"embedding": {"provider": "internal"},
		"converter": {"engine_url": "http://docling:8080"}
	}`)
	cfg, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, 8080, cfg.Port)
	require.Equal(t, "files-bucket", cfg.Storage.Bucket)
	require.Equal(t, 30, cfg.Ingest.BatchSize)
	require.Equal(t, 60000, cfg.Database.StatementTimeoutMS)
	require.Equal(t, 5432, cfg.Database.Port)
	require.Equal(t, "disable", cfg.Database.SSLMode)
	require.Equal(t, 120, cfg.Janitor.MaxProcessingAgeMinutes)
}

func TestLoadRejectsOversizedBatch(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"host": "localhost", "db_name": "kb"},
		"embedding": {"provider": "internal"},
		"converter": {"engine_url": "http://docling:8080"},
		"ingest": {"batch_size": 101}
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoadRequiresEmbeddingProvider(t *testing.T) {
	path := writeConfig(t, `{
		"database": {"host": "localhost", "db_name": "kb"},
		"converter": {"engine_url": "http://docling:8080"}
	}`)
	_, err := Load(path)
	require.Error(t, err)
}

func TestResolveStorageProviderPriority(t *testing.T) {
	t.Setenv(EnvUseLocalStorage, "true")
	t.Setenv(EnvUseCloudflareR2, "true")
	t.Setenv(EnvCloudProvider, "aws")
	provider, err := ResolveStorageProvider("")
	require.NoError(t, err)
	require.Equal(t, "local", provider)

	t.Setenv(EnvUseLocalStorage, "")
	provider, err = ResolveStorageProvider("")
	require.NoError(t, err)
	require.Equal(t, "r2", provider)

	t.Setenv(EnvUseCloudflareR2, "")
	provider, err = ResolveStorageProvider("")
	require.NoError(t, err)
	require.Equal(t, "aws", provider)

	t.Setenv(EnvCloudProvider, "gcloud")
	provider, err = ResolveStorageProvider("")
	require.NoError(t, err)
	require.Equal(t, "gcloud", provider)
}

func TestResolveStorageProviderFailures(t *testing.T) {
	t.Setenv(EnvUseLocalStorage, "")
	t.Setenv(EnvUseCloudflareR2, "")
	t.Setenv(EnvCloudProvider, "azure")
	_, err := ResolveStorageProvider("")
	require.True(t, errs.IsConfiguration(err))

	t.Setenv(EnvCloudProvider, "")
	_, err = ResolveStorageProvider("")
	require.True(t, errs.IsConfiguration(err))

	provider, err := ResolveStorageProvider("gcloud")
	require.NoError(t, err)
	require.Equal(t, "gcloud", provider)
}

func TestJobFromEnv(t *testing.T) {
	t.Setenv(EnvTaskID, "task-1")
	t.Setenv(EnvBucketID, "bucket-1")
	t.Setenv(EnvFileName, "course-1/notes.pdf")
	t.Setenv(EnvFileSize, "2048")
	t.Setenv(EnvContentType, "application/pdf")
	t.Setenv(EnvPageNumberOffset, "3")
	t.Setenv("DO_OCR", "true")

	job, err := JobFromEnv()
	require.NoError(t, err)
	require.Equal(t, "task-1", job.TaskID)
	require.Equal(t, int64(2048), job.FileSize)
	require.Equal(t, 3, job.PageNumberOffset)
	require.NotNil(t, job.Options)
	require.True(t, job.Options.OCR)
	require.False(t, job.Options.TableStructure)

	courseID, name := job.SplitKey()
	require.Equal(t, "course-1", courseID)
	require.Equal(t, "notes.pdf", name)
}

func TestJobFromEnvMissingRequired(t *testing.T) {
	t.Setenv(EnvTaskID, "")
	t.Setenv(EnvBucketID, "")
	t.Setenv(EnvFileName, "")
	t.Setenv(EnvFileSize, "")
	_, err := JobFromEnv()
	require.True(t, errs.IsConfiguration(err))
}

func TestJobFromEnvNoOptions(t *testing.T) {
	t.Setenv(EnvTaskID, "task-1")
	t.Setenv(EnvBucketID, "bucket-1")
	t.Setenv(EnvFileName, "course-1/notes.md")
	t.Setenv(EnvFileSize, "10")
	for _, name := range convertOptionVars {
		t.Setenv(name, "")
	}
	job, err := JobFromEnv()
	require.NoError(t, err)
	require.Nil(t, job.Options)
}
