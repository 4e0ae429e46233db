package config

import (
	"fmt"
)

// WithPort sets the server port
func WithPort(port string) Option {
	return func(c *ServerConfig) error {
		if port == "" {
			return fmt.Errorf("port cannot be empty")
		}
		c.Port = port
		return nil
	}
}

// WithEnvironment sets the environment (development, production, testing)
func WithEnvironment(env string) Option {
	return func(c *ServerConfig) error {
		if env == "" {
			return fmt.Errorf("environment cannot be empty")
		}
		c.Environment = env
		return nil
	}
}

// WithDatabase configures the database backend
func WithDatabase(dbType, url string) Option {
	return func(c *ServerConfig) error {
		if dbType != "memory" && dbType != "postgres" {
			return fmt.Errorf("database type must be 'memory' or 'postgres', got: %s", dbType)
		}
		if dbType == "postgres" && url == "" {
			return fmt.Errorf("database URL is required for postgres")
		}
		c.DatabaseType = dbType
		c.DatabaseURL = url
		return nil
	}
}

// WithDatabaseSchema sets the database schema (for Postgres)
func WithDatabaseSchema(schema string) Option {
	return func(c *ServerConfig) error {
		c.DBSchema = schema
		return nil
	}
}

// WithAutoMigrate enables or disables schema creation on startup
func WithAutoMigrate(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.AutoMigrate = enabled
		return nil
	}
}

// WithJWTSecret sets the HS256 secret used to verify bearer tokens
func WithJWTSecret(secret string) Option {
	return func(c *ServerConfig) error {
		if secret == "" {
			return fmt.Errorf("jwt secret cannot be empty")
		}
		c.JWTSecret = secret
		return nil
	}
}

// WithMemoryStorage stores images in memory (for testing). URLs are built
// from baseURL.
func WithMemoryStorage(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.StorageType = "memory"
		c.StorageBaseURL = baseURL
		return nil
	}
}

// WithFilesystemStorage stores images under dir. The server serves them
// under baseURL.
func WithFilesystemStorage(dir, baseURL string) Option {
	return func(c *ServerConfig) error {
		if dir == "" {
			return fmt.Errorf("storage directory cannot be empty")
		}
		c.StorageType = "fs"
		c.StorageDir = dir
		c.StorageBaseURL = baseURL
		return nil
	}
}

// WithoutImageStorage disables image uploads
func WithoutImageStorage() Option {
	return func(c *ServerConfig) error {
		c.StorageType = "none"
		return nil
	}
}

// WithS3Storage stores images in an S3 bucket
func WithS3Storage(bucket, region string) Option {
	return func(c *ServerConfig) error {
		if bucket == "" {
			return fmt.Errorf("S3 bucket cannot be empty")
		}
		if region == "" {
			region = "us-east-1"
		}
		c.StorageType = "s3"
		c.S3.Bucket = bucket
		c.S3.Region = region
		return nil
	}
}

// WithS3Credentials sets static AWS credentials for S3 storage
func WithS3Credentials(accessKeyID, secretAccessKey string) Option {
	return func(c *ServerConfig) error {
		c.S3.AccessKeyID = accessKeyID
		c.S3.SecretAccessKey = secretAccessKey
		return nil
	}
}

// WithS3Endpoint sets a custom S3 endpoint (for MinIO, LocalStack, etc.)
func WithS3Endpoint(endpoint string, usePathStyle bool) Option {
	return func(c *ServerConfig) error {
		c.S3.Endpoint = endpoint
		c.S3.UsePathStyle = usePathStyle
		return nil
	}
}

// WithS3PublicURL serves images from a public bucket or CDN instead of presigned URLs
func WithS3PublicURL(baseURL string) Option {
	return func(c *ServerConfig) error {
		c.S3.PublicBaseURL = baseURL
		return nil
	}
}

// WithS3PresignDuration sets the presigned URL duration for S3 (in seconds)
func WithS3PresignDuration(durationSeconds int) Option {
	return func(c *ServerConfig) error {
		if durationSeconds <= 0 {
			return fmt.Errorf("presign duration must be positive, got: %d", durationSeconds)
		}
		c.S3.PresignDuration = durationSeconds
		return nil
	}
}

// WithEventLogging enables or disables event logging
func WithEventLogging(enabled bool) Option {
	return func(c *ServerConfig) error {
		c.EnableEventLogging = enabled
		return nil
	}
}

// WithDefaults resets the configuration to library defaults
func WithDefaults() Option {
	return func(c *ServerConfig) error {
		*c = defaults()
		return nil
	}
}
