package config

import (
	"os"
	"strconv"
)

// parseEnv overlays Config fields from environment variables. Only
// variables that are actually set override the current value.
func parseEnv(config *Config) {
	if v, ok := os.LookupEnv("PORT"); ok {
		if port, err := strconv.Atoi(v); err == nil {
			config.Port = port
		}
	}
	if v, ok := os.LookupEnv("CORS_ORIGIN"); ok {
		config.CORSOrigin = v
	}
	if v, ok := os.LookupEnv("DATABASE_URL"); ok {
		config.DatabaseDSN = v
	}
	if v, ok := os.LookupEnv("AUTH_URL"); ok {
		config.AuthURL = v
	}
	if v, ok := os.LookupEnv("AUTH_SERVICE_KEY"); ok {
		config.AuthServiceKey = v
	}
	if v, ok := os.LookupEnv("AUTH_JWT_SECRET"); ok {
		config.AuthJWTSecret = v
	}
	if v, ok := os.LookupEnv("S3_ENDPOINT"); ok {
		config.S3Endpoint = v
	}
	if v, ok := os.LookupEnv("S3_ROOT_USER"); ok {
		config.S3RootUser = v
	}
	if v, ok := os.LookupEnv("S3_ROOT_PASSWORD"); ok {
		config.S3RootPassword = v
	}
	if v, ok := os.LookupEnv("S3_REGION"); ok {
		config.S3Region = v
	}
	if v, ok := os.LookupEnv("S3_BUCKET_PREFIX"); ok {
		config.S3BucketPrefix = v
	}
	if v, ok := os.LookupEnv("STORAGE_ENCRYPTION_KEY"); ok {
		config.StorageEncryptionKey = v
	}
	if v, ok := os.LookupEnv("ENVIRONMENT"); ok {
		config.Environment = v
	}
}
