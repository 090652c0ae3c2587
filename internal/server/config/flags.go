package config

import (
	"flag"
	"os"

	"github.com/haexhub/haex-sync/internal/flagx"
)

// parseFlags populates selected Config fields from command-line flags.
//
// Supported flags (short forms):
//
//	-p int      HTTP listen port
//	-d string   PostgreSQL DSN
//	-o string   CORS origin ("*" or comma-separated list)
//	-a string   identity provider base URL
//	-k string   identity provider service key
//	-j string   identity provider JWT secret
//	-e string   S3 base endpoint (e.g., "http://127.0.0.1:9000")
//	-u string   S3 root user
//	-w string   S3 root password
//	-g string   S3 region
//	-x string   storage encryption key
//
// The function first filters os.Args to only the flags it recognizes
// using flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-p", "-d", "-o", "-a", "-k", "-j", "-e", "-u", "-w", "-g", "-x"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.IntVar(&config.Port, "p", config.Port, "HTTP listen port")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.CORSOrigin, "o", config.CORSOrigin, "CORS origin")
	fs.StringVar(&config.AuthURL, "a", config.AuthURL, "identity provider URL")
	fs.StringVar(&config.AuthServiceKey, "k", config.AuthServiceKey, "identity provider service key")
	fs.StringVar(&config.AuthJWTSecret, "j", config.AuthJWTSecret, "identity provider JWT secret")
	fs.StringVar(&config.S3Endpoint, "e", config.S3Endpoint, "S3 base endpoint")
	fs.StringVar(&config.S3RootUser, "u", config.S3RootUser, "S3 root user")
	fs.StringVar(&config.S3RootPassword, "w", config.S3RootPassword, "S3 root password")
	fs.StringVar(&config.S3Region, "g", config.S3Region, "S3 region")
	fs.StringVar(&config.StorageEncryptionKey, "x", config.StorageEncryptionKey, "storage encryption key")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}
}
