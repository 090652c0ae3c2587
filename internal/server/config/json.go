package config

import (
	"encoding/json"
	"os"

	"github.com/haexhub/haex-sync/internal/flagx"
)

// JsonConfig is the DTO used only for reading JSON configuration files.
// After unmarshalling, non-zero fields are copied into the runtime Config.
type JsonConfig struct {
	Port                 int    `json:"port"`
	CORSOrigin           string `json:"cors_origin"`
	DatabaseDSN          string `json:"database_dsn"`
	AuthURL              string `json:"auth_url"`
	AuthServiceKey       string `json:"auth_service_key"`
	AuthJWTSecret        string `json:"auth_jwt_secret"`
	S3Endpoint           string `json:"s3_endpoint"`
	S3RootUser           string `json:"s3_root_user"`
	S3RootPassword       string `json:"s3_root_password"`
	S3Region             string `json:"s3_region"`
	S3BucketPrefix       string `json:"s3_bucket_prefix"`
	StorageEncryptionKey string `json:"storage_encryption_key"`
	Environment          string `json:"environment"`
}

// parseJson loads configuration values from a JSON file into the provided
// Config. The file path comes from the -c/-config flags or the CONFIG
// environment variable; if neither is set the overlay is skipped.
func parseJson(config *Config) {
	path := flagx.JsonConfigFlags()
	if path == "" {
		path = os.Getenv("CONFIG")
	}
	if path == "" {
		return
	}

	data, err := os.ReadFile(path)
	if err != nil {
		panic(err)
	}

	jc := &JsonConfig{}
	if err := json.Unmarshal(data, jc); err != nil {
		panic(err)
	}

	if jc.Port != 0 {
		config.Port = jc.Port
	}
	if jc.CORSOrigin != "" {
		config.CORSOrigin = jc.CORSOrigin
	}
	if jc.DatabaseDSN != "" {
		config.DatabaseDSN = jc.DatabaseDSN
	}
	if jc.AuthURL != "" {
		config.AuthURL = jc.AuthURL
	}
	if jc.AuthServiceKey != "" {
		config.AuthServiceKey = jc.AuthServiceKey
	}
	if jc.AuthJWTSecret != "" {
		config.AuthJWTSecret = jc.AuthJWTSecret
	}
	if jc.S3Endpoint != "" {
		config.S3Endpoint = jc.S3Endpoint
	}
	if jc.S3RootUser != "" {
		config.S3RootUser = jc.S3RootUser
	}
	if jc.S3RootPassword != "" {
		config.S3RootPassword = jc.S3RootPassword
	}
	if jc.S3Region != "" {
		config.S3Region = jc.S3Region
	}
	if jc.S3BucketPrefix != "" {
		config.S3BucketPrefix = jc.S3BucketPrefix
	}
	if jc.StorageEncryptionKey != "" {
		config.StorageEncryptionKey = jc.StorageEncryptionKey
	}
	if jc.Environment != "" {
		config.Environment = jc.Environment
	}
}
