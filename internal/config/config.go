package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds the server settings resolved from flags, environment, an
// optional config file and defaults, in that order of precedence.
type Config struct {
	Env            string
	Port           string
	JWTSecret      string
	AllowedOrigins []string

	DBType           string
	DatabaseURL      string
	DBFallbackMemory bool
	MongoURI         string
	MongoDB          string

	S3Bucket           string
	S3Region           string
	S3PublicBaseURL    string
	AttachmentMaxBytes int64

	WSBroadcastAll      bool
	WSMessagesPerSecond float64
	WSMessageBurst      int
}

// IsProduction reports whether the server runs in production mode
func (c *Config) IsProduction() bool {
	return c.Env == "production"
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("env", "development")
	v.SetDefault("port", "8080")
	v.SetDefault("db_type", "postgres")
	v.SetDefault("db_fallback_memory", false)
	v.SetDefault("mongo_db", "tutorchat")
	v.SetDefault("s3_region", "us-east-1")
	v.SetDefault("attachment_max_bytes", 10<<20)
	v.SetDefault("ws_broadcast_all", false)
	v.SetDefault("ws_messages_per_second", 5.0)
	v.SetDefault("ws_message_burst", 10)
}

// Load reads .env (if present), then the environment, then an optional YAML
// file given by --config, with command line flags taking precedence.
func Load(args []string) (*Config, error) {
	// A missing .env file is normal outside local development
	_ = godotenv.Load()

	flags := pflag.NewFlagSet("server", pflag.ContinueOnError)
	flags.String("config", "", "path to a YAML config file")
	flags.String("port", "", "HTTP listen port")
	flags.String("db-type", "", "message store backend: postgres, mongo or memory")
	if err := flags.Parse(args); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	if err := v.BindPFlag("port", flags.Lookup("port")); err != nil {
		return nil, err
	}
	if err := v.BindPFlag("db_type", flags.Lookup("db-type")); err != nil {
		return nil, err
	}

	if path, _ := flags.GetString("config"); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file %s: %w", path, err)
		}
	}

	cfg := &Config{
		Env:            v.GetString("env"),
		Port:           v.GetString("port"),
		JWTSecret:      v.GetString("jwt_secret"),
		AllowedOrigins: splitList(v.GetString("allowed_origins")),

		DBType:           strings.ToLower(v.GetString("db_type")),
		DatabaseURL:      v.GetString("database_url"),
		DBFallbackMemory: v.GetBool("db_fallback_memory"),
		MongoURI:         v.GetString("mongo_uri"),
		MongoDB:          v.GetString("mongo_db"),

		S3Bucket:           v.GetString("s3_bucket"),
		S3Region:           v.GetString("s3_region"),
		S3PublicBaseURL:    v.GetString("s3_public_base_url"),
		AttachmentMaxBytes: v.GetInt64("attachment_max_bytes"),

		WSBroadcastAll:      v.GetBool("ws_broadcast_all"),
		WSMessagesPerSecond: v.GetFloat64("ws_messages_per_second"),
		WSMessageBurst:      v.GetInt("ws_message_burst"),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	if c.JWTSecret == "" {
		return errors.New("JWT_SECRET is required")
	}

	switch c.DBType {
	case "postgres":
		if c.DatabaseURL == "" {
			return errors.New("DATABASE_URL is required for the postgres backend")
		}
	case "mongo":
		if c.MongoURI == "" {
			return errors.New("MONGO_URI is required for the mongo backend")
		}
	case "memory":
	default:
		return fmt.Errorf("unsupported DB_TYPE: %s", c.DBType)
	}

	if c.AttachmentMaxBytes <= 0 {
		return errors.New("ATTACHMENT_MAX_BYTES must be positive")
	}
	return nil
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
