package config

import "fmt"

type StorageConfig struct {
	Provider string `yaml:"provider"` // local, s3, gcs
	// ArchivePrefix is the key prefix for completed trip transcripts.
	ArchivePrefix string              `yaml:"archive_prefix"`
	Local         *LocalStorageConfig `yaml:"local"`
	AWS           *AWSStorageConfig   `yaml:"aws"`
	GCP           *GCPStorageConfig   `yaml:"gcp"`
}

type LocalStorageConfig struct {
	BasePath string `yaml:"base_path"`
	BaseURL  string `yaml:"base_url"`
}

type AWSStorageConfig struct {
	Region          string `yaml:"region"`
	Bucket          string `yaml:"bucket"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
}

type GCPStorageConfig struct {
	ProjectID       string `yaml:"project_id"`
	Bucket          string `yaml:"bucket"`
	CredentialsFile string `yaml:"credentials_file"`
}

func loadStorageConfig() *StorageConfig {
	return &StorageConfig{
		Provider:      getEnv("STORAGE_PROVIDER", "local"),
		ArchivePrefix: getEnv("STORAGE_ARCHIVE_PREFIX", "transcripts"),
		Local: &LocalStorageConfig{
			BasePath: getEnv("STORAGE_LOCAL_PATH", "./archive"),
			BaseURL:  getEnv("STORAGE_LOCAL_URL", "http://localhost:8080/archive"),
		},
		AWS: &AWSStorageConfig{
			Region:          getEnv("AWS_S3_REGION", "us-east-1"),
			Bucket:          getEnv("AWS_S3_BUCKET", ""),
			AccessKeyID:     getEnv("AWS_ACCESS_KEY_ID", ""),
			SecretAccessKey: getEnv("AWS_SECRET_ACCESS_KEY", ""),
		},
		GCP: &GCPStorageConfig{
			ProjectID:       getEnv("GCP_PROJECT_ID", ""),
			Bucket:          getEnv("GCP_STORAGE_BUCKET", ""),
			CredentialsFile: getEnv("GCP_CREDENTIALS_FILE", ""),
		},
	}
}

func (c *StorageConfig) validate() error {
	switch c.Provider {
	case "local":
		if c.Local.BasePath == "" {
			return fmt.Errorf("STORAGE_LOCAL_PATH is required for local storage")
		}
	case "s3":
		if c.AWS.Bucket == "" {
			return fmt.Errorf("AWS_S3_BUCKET is required for s3 storage")
		}
	case "gcs":
		if c.GCP.Bucket == "" {
			return fmt.Errorf("GCP_STORAGE_BUCKET is required for gcs storage")
		}
	default:
		return fmt.Errorf("unsupported STORAGE_PROVIDER %q", c.Provider)
	}
	return nil
}
