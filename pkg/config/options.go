package config

import (
	"fmt"
	"io"
	"log/slog"
	"time"
)

// WithDatabase sets the database URL: "memory" or a postgres:// URL.
func WithDatabase(url string) Option {
	return func(c *Config) error {
		if _, err := databaseKind(url); err != nil {
			return err
		}
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *Config) error {
		if schema == "" {
			return fmt.Errorf("database schema cannot be empty")
		}
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate creates the tables during Build.
func WithAutoMigrate(enabled bool) Option {
	return func(c *Config) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithStorage sets the blob storage URL.
func WithStorage(url string) Option {
	return func(c *Config) error {
		if _, err := parseStorageURL(url); err != nil {
			return err
		}
		c.StorageURL = url
		return nil
	}
}

// WithFilesystemStorage stores blobs under baseDir.
func WithFilesystemStorage(baseDir string, compress bool) Option {
	return func(c *Config) error {
		if baseDir == "" {
			return fmt.Errorf("filesystem base directory cannot be empty")
		}
		c.StorageURL = "file://" + baseDir
		if compress {
			c.StorageURL += "?compress=true"
		}
		return nil
	}
}

// WithS3Credentials sets static S3 credentials.
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *Config) error {
		if (accessKeyID == "") != (secretAccessKey == "") {
			return fmt.Errorf("access key id and secret access key must be set together")
		}
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Encryption enables server-side encryption. An empty algorithm means AES256.
func WithS3Encryption(algorithm, kmsKeyID string) Option {
	return func(c *Config) error {
		if algorithm == "" {
			algorithm = "AES256"
		}
		if algorithm != "AES256" && algorithm != "aws:kms" {
			return fmt.Errorf("sse algorithm must be 'AES256' or 'aws:kms', got: %s", algorithm)
		}
		c.S3.EnableSSE = true
		c.S3.SSEAlgorithm = algorithm
		c.S3.SSEKMSKeyID = kmsKeyID
		return nil
	}
}

// WithMaxObjectSize limits the size of stored objects.
func WithMaxObjectSize(n int64) Option {
	return func(c *Config) error {
		if n <= 0 {
			return fmt.Errorf("max object size must be positive, got: %d", n)
		}
		c.MaxObjectSize = n
		return nil
	}
}

// WithEventLogging toggles logging of object lifecycle events.
func WithEventLogging(enabled bool) Option {
	return func(c *Config) error {
		c.EventLogging = enabled
		return nil
	}
}

// WithDedupWindows sets the per-address dedup windows for hits and likes.
func WithDedupWindows(hit, like time.Duration) Option {
	return func(c *Config) error {
		if hit < 0 || like < 0 {
			return fmt.Errorf("dedup windows must not be negative")
		}
		c.HitDedupWindow = hit
		c.LikeDedupWindow = like
		return nil
	}
}

// WithTagCache sizes the tag resolution cache. A size of zero disables it.
func WithTagCache(size int, ttl time.Duration) Option {
	return func(c *Config) error {
		if size < 0 || ttl < 0 {
			return fmt.Errorf("tag cache size and ttl must not be negative")
		}
		c.TagCacheSize = size
		c.TagCacheTTL = ttl
		return nil
	}
}

// WithLogging sets the level and format of the built logger.
func WithLogging(level, format string, out io.Writer) Option {
	return func(c *Config) error {
		if format != "text" && format != "json" {
			return fmt.Errorf("log format must be 'text' or 'json', got: %s", format)
		}
		c.LogLevel = level
		c.LogFormat = format
		c.LogOutput = out
		return nil
	}
}

// WithLogger uses logger instead of building one.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Config) error {
		c.Logger = logger
		return nil
	}
}
