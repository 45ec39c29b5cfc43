package config

import (
	"errors"
	"fmt"
	"io/fs"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

const (
	StorageMemory   = "memory"
	StorageMongo    = "mongo"
	StoragePostgres = "postgres"
	StorageMySQL    = "mysql"
)

type Config struct {
	Server  ServerConfig
	Storage StorageConfig
	Redis   RedisConfig
	JWT     JWTConfig
	Voting  VotingConfig
	Log     LogConfig
}

type ServerConfig struct {
	Port         string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
	StaticDir    string
	SessionTTL   time.Duration
}

type StorageConfig struct {
	Kind        string
	MongoURI    string
	MongoDB     string
	DatabaseURL string
}

type RedisConfig struct {
	URL string
}

type JWTConfig struct {
	Secret         string
	ExpirationTime time.Duration
}

type VotingConfig struct {
	MaxRetries int
	LockTTL    time.Duration
}

type LogConfig struct {
	Level string
}

var (
	ErrUnknownStorage = errors.New("unknown storage")
	ErrMissingSetting = errors.New("missing setting")
)

// LoadDotEnv reads .env from the working directory if there is one.
func LoadDotEnv() error {
	err := godotenv.Load()
	if errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	return err
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("FORUM_PORT", "8080")
	v.SetDefault("FORUM_READ_TIMEOUT", 15*time.Second)
	v.SetDefault("FORUM_WRITE_TIMEOUT", 15*time.Second)
	v.SetDefault("FORUM_STORAGE", StorageMemory)
	v.SetDefault("MONGO_DB", "forum")
	v.SetDefault("JWT_SECRET", "")
	v.SetDefault("JWT_EXPIRE", "12h")
	v.SetDefault("SESSION_TTL", "24h")
	v.SetDefault("VOTE_MAX_RETRIES", 5)
	v.SetDefault("VOTE_LOCK_TTL", "5s")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("STATIC_DIR", "")
	v.SetDefault("MONGO_URI", "")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("REDIS_URL", "")
}

// Load reads the configuration from the environment and checks it.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)
	v.AutomaticEnv()

	cfg := &Config{
		Server: ServerConfig{
			Port:         v.GetString("FORUM_PORT"),
			ReadTimeout:  v.GetDuration("FORUM_READ_TIMEOUT"),
			WriteTimeout: v.GetDuration("FORUM_WRITE_TIMEOUT"),
			StaticDir:    v.GetString("STATIC_DIR"),
			SessionTTL:   v.GetDuration("SESSION_TTL"),
		},
		Storage: StorageConfig{
			Kind:        v.GetString("FORUM_STORAGE"),
			MongoURI:    v.GetString("MONGO_URI"),
			MongoDB:     v.GetString("MONGO_DB"),
			DatabaseURL: v.GetString("DATABASE_URL"),
		},
		Redis: RedisConfig{
			URL: v.GetString("REDIS_URL"),
		},
		JWT: JWTConfig{
			Secret:         v.GetString("JWT_SECRET"),
			ExpirationTime: v.GetDuration("JWT_EXPIRE"),
		},
		Voting: VotingConfig{
			MaxRetries: v.GetInt("VOTE_MAX_RETRIES"),
			LockTTL:    v.GetDuration("VOTE_LOCK_TTL"),
		},
		Log: LogConfig{
			Level: v.GetString("LOG_LEVEL"),
		},
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) Validate() error {
	if c.JWT.Secret == "" {
		return fmt.Errorf("%w: JWT_SECRET", ErrMissingSetting)
	}

	switch c.Storage.Kind {
	case StorageMemory:
	case StorageMongo:
		if c.Storage.MongoURI == "" {
			return fmt.Errorf("%w: MONGO_URI", ErrMissingSetting)
		}
	case StoragePostgres, StorageMySQL:
		if c.Storage.DatabaseURL == "" {
			return fmt.Errorf("%w: DATABASE_URL", ErrMissingSetting)
		}
	default:
		return fmt.Errorf("%w: %q", ErrUnknownStorage, c.Storage.Kind)
	}

	if c.Voting.MaxRetries < 0 {
		return fmt.Errorf("VOTE_MAX_RETRIES must not be negative, got %d", c.Voting.MaxRetries)
	}
	return nil
}
