package config

import (
	"encoding/json"
	"os"
	"time"

	"github.com/dmitrijs2005/authkeeper/internal/flagx"
	"github.com/dmitrijs2005/authkeeper/internal/timex"
)

// JsonConfig is the intermediate DTO for reading JSON configuration files.
// Interval fields use timex.Duration so both "30m" strings and integer
// nanoseconds parse. Pointer fields distinguish "absent" from "zero", so a
// partial file only overrides what it names.
type JsonConfig struct {
	EndpointAddr *string `json:"endpoint_addr"`

	StorageBackend *string `json:"storage_backend"`
	DataDir        *string `json:"data_dir"`
	SubfolderChars *int    `json:"subfolder_chars"`
	DatabaseDSN    *string `json:"database_dsn"`
	RedisAddr      *string `json:"redis_addr"`

	BlobBackend *string `json:"blob_backend"`
	BlobDir     *string `json:"blob_dir"`

	SecretKey     *string `json:"secret_key"`
	SessionSecret *string `json:"session_secret"`
	CookieSecure  *bool   `json:"cookie_secure"`

	AccessTokenValidityDuration  *timex.Duration `json:"access_token_validity_duration"`
	RefreshTokenValidityDuration *timex.Duration `json:"refresh_token_validity_duration"`
	ResetCodeValidityDuration    *timex.Duration `json:"reset_code_validity_duration"`
	BlacklistSweepInterval       *timex.Duration `json:"blacklist_sweep_interval"`

	S3RootUser     *string `json:"s3_root_user"`
	S3RootPassword *string `json:"s3_root_password"`
	S3Bucket       *string `json:"s3_bucket"`
	S3Region       *string `json:"s3_region"`
	S3BaseEndpoint *string `json:"s3_base_endpoint"`

	SMTPHost     *string `json:"smtp_host"`
	SMTPPort     *int    `json:"smtp_port"`
	SMTPUsername *string `json:"smtp_username"`
	SMTPPassword *string `json:"smtp_password"`

	ResetEmailSender  *string `json:"reset_email_sender"`
	ResetEmailSubject *string `json:"reset_email_subject"`
	ResetEmailBody    *string `json:"reset_email_body"`

	DefaultAdminUser     *string `json:"default_admin_user"`
	DefaultAdminPassword *string `json:"default_admin_password"`
}

// parseJson loads configuration values from the JSON file given via the -c
// or -config flags, if any, into the provided Config. An unreadable or
// invalid file panics; a missing flag is not an error.
func parseJson(config *Config) {
	jsonConfigFile := flagx.JsonConfigFlags()
	if jsonConfigFile == "" {
		return
	}

	file, err := os.ReadFile(jsonConfigFile)
	if err != nil {
		panic(err)
	}

	c := &JsonConfig{}
	if err := json.Unmarshal(file, c); err != nil {
		panic(err)
	}

	applyJson(config, c)
}

func applyJson(config *Config, c *JsonConfig) {
	setString := func(dst *string, src *string) {
		if src != nil {
			*dst = *src
		}
	}
	setInt := func(dst *int, src *int) {
		if src != nil {
			*dst = *src
		}
	}
	setBool := func(dst *bool, src *bool) {
		if src != nil {
			*dst = *src
		}
	}
	setDuration := func(dst *time.Duration, src *timex.Duration) {
		if src != nil {
			*dst = src.Duration
		}
	}

	setString(&config.EndpointAddr, c.EndpointAddr)

	setString(&config.StorageBackend, c.StorageBackend)
	setString(&config.DataDir, c.DataDir)
	setInt(&config.SubfolderChars, c.SubfolderChars)
	setString(&config.DatabaseDSN, c.DatabaseDSN)
	setString(&config.RedisAddr, c.RedisAddr)

	setString(&config.BlobBackend, c.BlobBackend)
	setString(&config.BlobDir, c.BlobDir)

	setString(&config.SecretKey, c.SecretKey)
	setString(&config.SessionSecret, c.SessionSecret)
	setBool(&config.CookieSecure, c.CookieSecure)

	setDuration(&config.AccessTokenValidityDuration, c.AccessTokenValidityDuration)
	setDuration(&config.RefreshTokenValidityDuration, c.RefreshTokenValidityDuration)
	setDuration(&config.ResetCodeValidityDuration, c.ResetCodeValidityDuration)
	setDuration(&config.BlacklistSweepInterval, c.BlacklistSweepInterval)

	setString(&config.S3RootUser, c.S3RootUser)
	setString(&config.S3RootPassword, c.S3RootPassword)
	setString(&config.S3Bucket, c.S3Bucket)
	setString(&config.S3Region, c.S3Region)
	setString(&config.S3BaseEndpoint, c.S3BaseEndpoint)

	setString(&config.SMTPHost, c.SMTPHost)
	setInt(&config.SMTPPort, c.SMTPPort)
	setString(&config.SMTPUsername, c.SMTPUsername)
	setString(&config.SMTPPassword, c.SMTPPassword)

	setString(&config.ResetEmailSender, c.ResetEmailSender)
	setString(&config.ResetEmailSubject, c.ResetEmailSubject)
	setString(&config.ResetEmailBody, c.ResetEmailBody)

	setString(&config.DefaultAdminUser, c.DefaultAdminUser)
	setString(&config.DefaultAdminPassword, c.DefaultAdminPassword)
}
