package config

import (
	"fmt"
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

const (
	StoreFile     = "file"
	StoreRedis    = "redis"
	StorePostgres = "postgres"
	StoreMongo    = "mongo"
)

type Config struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	BaseDomain   string

	TokenStore string
	TokenFile  string
	TokenKey   string
	ErrorLog   string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	MongoURI      string
	MongoDatabase string
}

func Load() (*Config, error) {
	// Try to load .env file, but don't fail if it doesn't exist
	_ = godotenv.Load()

	redisDB, err := strconv.Atoi(getEnv("REDIS_DB", "0"))
	if err != nil {
		return nil, fmt.Errorf("REDIS_DB must be an integer: %w", err)
	}

	cfg := &Config{
		ClientID:      os.Getenv("AMO_CLIENT_ID"),
		ClientSecret:  os.Getenv("AMO_CLIENT_SECRET"),
		RedirectURI:   os.Getenv("AMO_REDIRECT_URI"),
		BaseDomain:    os.Getenv("AMO_BASE_DOMAIN"),
		TokenStore:    getEnv("AMO_TOKEN_STORE", StoreFile),
		TokenFile:     getEnv("AMO_TOKEN_FILE", "storage/tokens.json"),
		TokenKey:      getEnv("AMO_TOKEN_KEY", "amocrm:tokens"),
		ErrorLog:      getEnv("AMO_ERROR_LOG", "storage/error.log"),
		RedisAddr:     getEnv("REDIS_ADDR", "localhost:6379"),
		RedisPassword: os.Getenv("REDIS_PASSWORD"),
		RedisDB:       redisDB,
		MongoURI:      getEnv("MONGO_URI", "mongodb://localhost:27017"),
		MongoDatabase: getEnv("MONGO_DATABASE", "amocrm"),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if c.ClientID == "" {
		return fmt.Errorf("AMO_CLIENT_ID is required")
	}
	if c.ClientSecret == "" {
		return fmt.Errorf("AMO_CLIENT_SECRET is required")
	}
	if c.RedirectURI == "" {
		return fmt.Errorf("AMO_REDIRECT_URI is required")
	}
	if c.BaseDomain == "" {
		return fmt.Errorf("AMO_BASE_DOMAIN is required")
	}
	switch c.TokenStore {
	case StoreFile:
		if c.TokenFile == "" {
			return fmt.Errorf("AMO_TOKEN_FILE is required for the file token store")
		}
	case StoreRedis, StorePostgres, StoreMongo:
	default:
		return fmt.Errorf("AMO_TOKEN_STORE %q is not supported", c.TokenStore)
	}
	return nil
}

// getEnv gets an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}
