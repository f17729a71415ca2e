package config

import (
	"flag"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
)

// parseFlags populates selected server Config fields from command-line
// flags. Less common settings (mail templates, S3, default admin) are file
// or default only.
//
// Supported flags:
//
//	-a string   HTTP bind address (e.g., ":8080")
//	-k string   storage backend kind: inmemory | local | postgres | redis
//	-d string   PostgreSQL DSN
//	-r string   Redis address
//	-o string   data dir for the local backend
//	-s string   JWT HMAC secret key
//	-q string   session cookie HMAC secret
//	-t int      access token validity, minutes
//	-f int      refresh token validity, minutes
//	-w int      reset code validity, minutes
//
// The function first filters os.Args to only the flags it recognizes using
// flagx.FilterArgs, avoiding collisions with other components.
func parseFlags(config *Config) {
	args := flagx.FilterArgs(os.Args[1:], []string{"-a", "-k", "-d", "-r", "-o", "-s", "-q", "-t", "-f", "-w"})

	fs := flag.NewFlagSet("main", flag.ContinueOnError)

	fs.StringVar(&config.EndpointAddr, "a", config.EndpointAddr, "address and port to run server")
	fs.StringVar(&config.StorageBackend, "k", config.StorageBackend, "storage backend kind")
	fs.StringVar(&config.DatabaseDSN, "d", config.DatabaseDSN, "database DSN")
	fs.StringVar(&config.RedisAddr, "r", config.RedisAddr, "redis address")
	fs.StringVar(&config.DataDir, "o", config.DataDir, "data directory for the local backend")
	fs.StringVar(&config.SecretKey, "s", config.SecretKey, "JWT secret key")
	fs.StringVar(&config.SessionSecret, "q", config.SessionSecret, "session cookie secret")

	accessMinutes := fs.Int("t", int(config.AccessTokenValidityDuration.Minutes()), "access token validity (in minutes)")
	refreshMinutes := fs.Int("f", int(config.RefreshTokenValidityDuration.Minutes()), "refresh token validity (in minutes)")
	resetMinutes := fs.Int("w", int(config.ResetCodeValidityDuration.Minutes()), "reset code validity (in minutes)")

	if err := fs.Parse(args); err != nil {
		panic(err)
	}

	config.AccessTokenValidityDuration = time.Duration(*accessMinutes) * time.Minute
	config.RefreshTokenValidityDuration = time.Duration(*refreshMinutes) * time.Minute
	config.ResetCodeValidityDuration = time.Duration(*resetMinutes) * time.Minute
}
