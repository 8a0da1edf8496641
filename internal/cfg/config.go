package cfg

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

type Config struct {
	HTTPPort string
	GRPCPort string

	MongoURI       string
	MongoDatabase  string
	MongoOpTimeout time.Duration

	MaxUploadMemory int64

	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioUseSSL    bool
	MinioBucket    string

	RedisAddr     string
	RedisPassword string

	KafkaBrokers []string
	KafkaTopic   string

	JWTSecret string
	JWTTTL    time.Duration

	AllowedCORSOrigins []string
	RateLimitRequests  int
	RateLimitWindow    time.Duration

	PythonBin     string
	ScriptsDir    string
	WorkDir       string
	ScriptCatalog string
	ScriptTimeout time.Duration

	ReconcileInterval time.Duration

	ShutdownGracePeriod time.Duration
	ReadTimeout         time.Duration
	WriteTimeout        time.Duration
	IdleTimeout         time.Duration

	LogDebug bool
}

// MinioEnabled reports whether report archiving to object storage is configured.
func (c Config) MinioEnabled() bool {
	return c.MinioEndpoint != "" && c.MinioBucket != ""
}

func (c Config) KafkaEnabled() bool {
	return len(c.KafkaBrokers) > 0 && c.KafkaTopic != ""
}

func Load() (Config, error) {
	_ = godotenv.Load(".env")

	cfg := Config{
		HTTPPort:            getEnv("HTTP_PORT", "5000"),
		GRPCPort:            getEnv("GRPC_PORT", "9095"),
		MongoURI:            getEnv("MONGODB_URI", "mongodb://localhost:27017"),
		MongoDatabase:       getEnv("MONGODB_DATABASE", "wattwiseai"),
		MongoOpTimeout:      getEnvDuration("MONGO_OP_TIMEOUT", 10*time.Second),
		MaxUploadMemory:     getEnvInt64("MAX_UPLOAD_MEMORY", 32<<20),
		MinioEndpoint:       os.Getenv("MINIO_ENDPOINT"),
		MinioAccessKey:      os.Getenv("MINIO_ACCESS_KEY"),
		MinioSecretKey:      os.Getenv("MINIO_SECRET_KEY"),
		MinioUseSSL:         getEnvBool("MINIO_USE_SSL", false),
		MinioBucket:         getEnv("MINIO_BUCKET", "wattwise-reports"),
		RedisAddr:           os.Getenv("REDIS_ADDR"),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:        parseCSVEnv("KAFKA_BROKERS"),
		KafkaTopic:          getEnv("KAFKA_TOPIC", "dataset-events"),
		JWTSecret:           os.Getenv("JWT_SECRET"),
		JWTTTL:              getEnvDuration("JWT_TTL", 24*time.Hour),
		AllowedCORSOrigins:  parseCSVEnv("ALLOWED_ORIGINS"),
		RateLimitRequests:   getEnvInt("RATE_LIMIT_REQUESTS", 120),
		RateLimitWindow:     getEnvDuration("RATE_LIMIT_WINDOW", time.Minute),
		PythonBin:           getEnv("PYTHON_BIN", "python"),
		ScriptsDir:          getEnv("SCRIPTS_DIR", "./scripts"),
		WorkDir:             getEnv("WORK_DIR", "."),
		ScriptCatalog:       os.Getenv("SCRIPT_CATALOG"),
		ScriptTimeout:       getEnvDuration("SCRIPT_TIMEOUT", 2*time.Minute),
		ReconcileInterval:   getEnvDuration("RECONCILE_INTERVAL", 0),
		ShutdownGracePeriod: getEnvDuration("SHUTDOWN_GRACE_PERIOD", 10*time.Second),
		ReadTimeout:         getEnvDuration("READ_TIMEOUT", 30*time.Second),
		WriteTimeout:        getEnvDuration("WRITE_TIMEOUT", 5*time.Minute),
		IdleTimeout:         getEnvDuration("IDLE_TIMEOUT", 60*time.Second),
		LogDebug:            getEnvBool("LOG_DEBUG", false),
	}

	if len(cfg.JWTSecret) < 32 {
		return Config{}, fmt.Errorf("JWT_SECRET must be at least 32 characters long")
	}
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		return val
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	switch strings.ToLower(strings.TrimSpace(os.Getenv(key))) {
	case "true", "1", "yes":
		return true
	case "false", "0", "no":
		return false
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.Atoi(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvInt64(key string, fallback int64) int64 {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := strconv.ParseInt(val, 10, 64); err == nil {
			return parsed
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if val := strings.TrimSpace(os.Getenv(key)); val != "" {
		if parsed, err := time.ParseDuration(val); err == nil {
			return parsed
		}
	}
	return fallback
}

func parseCSVEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}
