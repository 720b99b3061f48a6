package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/kbworks/docingest/internal/model"
	"github.com/kbworks/docingest/internal/pkg/errs"
)

// Environment switches recognised by the storage backend selection.
const (
	EnvUseLocalStorage = "USE_LOCAL_FILE_STORAGE"
	EnvUseCloudflareR2 = "USE_CLOUDFLARE_R2"
	EnvCloudProvider   = "CLOUD_PROVIDER"
)

// Job descriptor environment variables, one ingestion job per process run.
const (
	EnvTaskID           = "TASK_ID"
	EnvBucketID         = "BUCKET_ID"
	EnvFileName         = "FILE_NAME"
	EnvFileSize         = "FILE_SIZE"
	EnvContentType      = "CONTENT_TYPE"
	EnvPageNumberOffset = "PAGE_NUMBER_OFFSET"
)

var convertOptionVars = []string{
	"DO_OCR", "DO_TABLE_STRUCTURE", "DO_FORMULA_ENRICHMENT",
	"DO_CODE_ENRICHMENT", "DO_PICTURE_DESCRIPTION",
}

// ResolveStorageProvider picks the storage backend once per process.
// Priority: local flag > cloudflare flag > CLOUD_PROVIDER > the configured
// default. No match is a configuration error, not a silent fallback.
func ResolveStorageProvider(defaultProvider string) (string, error) {
	if envBool(EnvUseLocalStorage) {
		return "local", nil
	}
	if envBool(EnvUseCloudflareR2) {
		return "r2", nil
	}
	switch provider := strings.ToLower(strings.TrimSpace(os.Getenv(EnvCloudProvider))); provider {
	case "aws", "gcloud":
		return provider, nil
	case "":
	default:
		return "", errs.Newf(errs.ErrConfiguration, "unsupported %s %q", EnvCloudProvider, provider)
	}
	if defaultProvider != "" {
		return defaultProvider, nil
	}
	return "", errs.New(errs.ErrConfiguration, "no storage backend selected and no default declared")
}

// JobFromEnv builds the job descriptor the way the container entrypoint
// receives it from ECS tasks or Cloud Run jobs.
func JobFromEnv() (*model.IngestJob, error) {
	job := &model.IngestJob{
		TaskID:      os.Getenv(EnvTaskID),
		BucketID:    os.Getenv(EnvBucketID),
		ObjectKey:   os.Getenv(EnvFileName),
		ContentType: os.Getenv(EnvContentType),
	}
	var missing []string
	if job.TaskID == "" {
		missing = append(missing, EnvTaskID)
	}
	if job.BucketID == "" {
		missing = append(missing, EnvBucketID)
	}
	if job.ObjectKey == "" {
		missing = append(missing, EnvFileName)
	}
	rawSize := os.Getenv(EnvFileSize)
	if rawSize == "" {
		missing = append(missing, EnvFileSize)
	}
	if len(missing) > 0 {
		return nil, errs.Newf(errs.ErrConfiguration, "missing required environment variables: %s", strings.Join(missing, ", "))
	}
	size, err := strconv.ParseInt(rawSize, 10, 64)
	if err != nil {
		return nil, errs.Wrapf(errs.ErrConfiguration, err, "invalid %s", EnvFileSize)
	}
	job.FileSize = size
	if raw := os.Getenv(EnvPageNumberOffset); raw != "" {
		offset, err := strconv.Atoi(raw)
		if err != nil {
			return nil, errs.Wrapf(errs.ErrConfiguration, err, "invalid %s", EnvPageNumberOffset)
		}
		job.PageNumberOffset = offset
	}
	job.Options = convertOptionsFromEnv()
	return job, nil
}

// convertOptionsFromEnv returns nil when no option variable is set, so the
// engine keeps its defaults.
func convertOptionsFromEnv() *model.ConvertOptions {
	set := false
	for _, name := range convertOptionVars {
		if os.Getenv(name) != "" {
			set = true
			break
		}
	}
	if !set {
		return nil
	}
	return &model.ConvertOptions{
		OCR:                envBool("DO_OCR"),
		TableStructure:     envBool("DO_TABLE_STRUCTURE"),
		FormulaEnrichment:  envBool("DO_FORMULA_ENRICHMENT"),
		CodeEnrichment:     envBool("DO_CODE_ENRICHMENT"),
		PictureDescription: envBool("DO_PICTURE_DESCRIPTION"),
	}
}

func envBool(name string) bool {
	return strings.EqualFold(strings.TrimSpace(os.Getenv(name)), "true")
}

func (c DatabaseConfig) BuildDSN() string {
	if c.DSN != "" {
		return c.DSN
	}
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
