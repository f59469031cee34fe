// backend-go/internal/config/config.go
package config

import (
	"log"
	"os"
	"sync"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	Server   ServerConfig
	Database DatabaseConfig
	App      AppConfig
	Cache    CacheConfig
	Storage  StorageConfig
	Drive    DriveConfig
	Pricing  PricingConfig
}

type ServerConfig struct {
	Port           string
	Mode           string
	ReadTimeout    int
	WriteTimeout   int
	AllowedOrigins []string
}

type DatabaseConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	DBName   string
	SSLMode  string
}

type AppConfig struct {
	InputDir  string
	OutputDir string
	LogLevel  string
	LogJSON   bool
}

type CacheConfig struct {
	Enabled       bool
	RedisURL      string
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	RunTTLSeconds int
}

// StorageConfig points at the S3-compatible bucket holding daily input snapshots.
type StorageConfig struct {
	Endpoint     string
	AccessKey    string
	SecretKey    string
	Bucket       string
	Region       string
	UseSSL       bool
	InputPrefix  string
	OutputPrefix string
}

type DriveConfig struct {
	CredentialsJSON string
	FolderPath      string
}

// PricingConfig holds run-level knobs. Reference tables live in pricing.Reference
// and can be overridden from ReferenceFile.
type PricingConfig struct {
	ReferenceFile   string
	Category        string
	TargetMarginPct float64 // 0 means computed targets
	Workers         int
	DayOfWeek       string
}

var (
	once     sync.Once
	instance *Config
)

func Load() *Config {
	once.Do(func() {
		// Load .env file if it exists
		_ = godotenv.Load()

		setDefaults(viper.GetViper())

		// Read from environment variables
		viper.AutomaticEnv()

		ensureDir(viper.GetString("APP_INPUT_DIR"))
		ensureDir(viper.GetString("APP_OUTPUT_DIR"))

		instance = fromViper(viper.GetViper())
	})

	return instance
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("SERVER_PORT", "8080")
	v.SetDefault("SERVER_MODE", "debug")
	v.SetDefault("SERVER_READ_TIMEOUT", 30)
	v.SetDefault("SERVER_WRITE_TIMEOUT", 60)
	v.SetDefault("SERVER_ALLOWED_ORIGINS", []string{"*"})
	v.SetDefault("DB_HOST", "localhost")
	v.SetDefault("DB_PORT", "5432")
	v.SetDefault("DB_USER", "postgres")
	v.SetDefault("DB_PASSWORD", "postgres")
	v.SetDefault("DB_NAME", "pricing")
	v.SetDefault("DB_SSLMODE", "disable")
	v.SetDefault("APP_INPUT_DIR", "./data/inputs")
	v.SetDefault("APP_OUTPUT_DIR", "./data/output")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_JSON", false)
	v.SetDefault("CACHE_ENABLED", false)
	v.SetDefault("REDIS_URL", "")
	v.SetDefault("REDIS_HOST", "127.0.0.1")
	v.SetDefault("REDIS_PORT", "6379")
	v.SetDefault("REDIS_PASSWORD", "")
	v.SetDefault("REDIS_DB", 0)
	v.SetDefault("CACHE_RUN_TTL_SECONDS", 3600)
	v.SetDefault("S3_REGION", "us-east-1")
	v.SetDefault("S3_USE_SSL", true)
	v.SetDefault("S3_INPUT_PREFIX", "pricing/inputs/")
	v.SetDefault("S3_OUTPUT_PREFIX", "pricing/outputs/")
	v.SetDefault("GOOGLE_DRIVE_FOLDER_PATH", "")
	v.SetDefault("PRICING_REFERENCE_FILE", "")
	v.SetDefault("PRICING_CATEGORY", "Eggs")
	v.SetDefault("PRICING_TARGET_MARGIN_PCT", 0)
	v.SetDefault("PRICING_WORKERS", 4)
	v.SetDefault("PRICING_DAY_OF_WEEK", "")
}

func fromViper(v *viper.Viper) *Config {
	return &Config{
		Server: ServerConfig{
			Port:           v.GetString("SERVER_PORT"),
			Mode:           v.GetString("SERVER_MODE"),
			ReadTimeout:    v.GetInt("SERVER_READ_TIMEOUT"),
			WriteTimeout:   v.GetInt("SERVER_WRITE_TIMEOUT"),
			AllowedOrigins: v.GetStringSlice("SERVER_ALLOWED_ORIGINS"),
		},
		Database: DatabaseConfig{
			Host:     v.GetString("DB_HOST"),
			Port:     v.GetString("DB_PORT"),
			User:     v.GetString("DB_USER"),
			Password: v.GetString("DB_PASSWORD"),
			DBName:   v.GetString("DB_NAME"),
			SSLMode:  v.GetString("DB_SSLMODE"),
		},
		App: AppConfig{
			InputDir:  v.GetString("APP_INPUT_DIR"),
			OutputDir: v.GetString("APP_OUTPUT_DIR"),
			LogLevel:  v.GetString("LOG_LEVEL"),
			LogJSON:   v.GetBool("LOG_JSON"),
		},
		Cache: CacheConfig{
			Enabled:       v.GetBool("CACHE_ENABLED"),
			RedisURL:      v.GetString("REDIS_URL"),
			RedisHost:     v.GetString("REDIS_HOST"),
			RedisPort:     v.GetString("REDIS_PORT"),
			RedisPassword: v.GetString("REDIS_PASSWORD"),
			RedisDB:       v.GetInt("REDIS_DB"),
			RunTTLSeconds: v.GetInt("CACHE_RUN_TTL_SECONDS"),
		},
		Storage: StorageConfig{
			Endpoint:     v.GetString("S3_ENDPOINT"),
			AccessKey:    v.GetString("S3_ACCESS_KEY"),
			SecretKey:    v.GetString("S3_SECRET_KEY"),
			Bucket:       v.GetString("S3_BUCKET"),
			Region:       v.GetString("S3_REGION"),
			UseSSL:       v.GetBool("S3_USE_SSL"),
			InputPrefix:  v.GetString("S3_INPUT_PREFIX"),
			OutputPrefix: v.GetString("S3_OUTPUT_PREFIX"),
		},
		Drive: DriveConfig{
			CredentialsJSON: v.GetString("GOOGLE_DRIVE_CREDENTIALS_JSON"),
			FolderPath:      v.GetString("GOOGLE_DRIVE_FOLDER_PATH"),
		},
		Pricing: PricingConfig{
			ReferenceFile:   v.GetString("PRICING_REFERENCE_FILE"),
			Category:        v.GetString("PRICING_CATEGORY"),
			TargetMarginPct: v.GetFloat64("PRICING_TARGET_MARGIN_PCT"),
			Workers:         v.GetInt("PRICING_WORKERS"),
			DayOfWeek:       v.GetString("PRICING_DAY_OF_WEEK"),
		},
	}
}

func ensureDir(dir string) {
	if dir == "" {
		return
	}
	if _, err := os.Stat(dir); os.IsNotExist(err) {
		if err := os.MkdirAll(dir, 0755); err != nil {
			log.Fatalf("Failed to create directory %s: %v", dir, err)
		}
	}
}
