package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration. Values come from the
// environment (optionally seeded by a .env file) with working defaults
// for a single-machine studio setup.
type Config struct {
	Host string
	Port string

	UploadDir    string // original source recordings land here
	SeparatedDir string // separation output folders, one per job
	MaxUploadMB  int64  // upload size cap in megabytes

	LogLevel string
	LogPath  string

	// Separation tooling
	DemucsPath      string
	SpleeterPath    string
	DefaultSplitter string
	DefaultModel    string

	// Fallback transcoder for containers without a native decoder
	FFmpegPath string

	// Secondary split backend: remote service wins over local tooling.
	SplitBackendURL string
	SplitToolVocals string // command template for local vocal splits
	SplitToolDrums  string // command template for local drum splits

	// Engine output
	AudioSpeaker bool // attach a local speaker sink to the mix output

	// MySQL (optional; in-memory project store is used when disabled)
	DBEnabled  bool
	DBHost     string
	DBPort     string
	DBUser     string
	DBPassword string
	DBName     string

	// Redis (optional manifest/playback cache)
	RedisEnabled  bool
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int

	// MinIO (optional stem mirror)
	MinioEnabled   bool
	MinioEndpoint  string
	MinioAccessKey string
	MinioSecretKey string
	MinioBucket    string
	MinioRegion    string
	MinioUseSSL    bool
}

// getEnv gets an environment variable or returns a default value.
func getEnv(key, fallback string) string {
	if value, exists := os.LookupEnv(key); exists {
		return value
	}
	return fallback
}

// getEnvInt gets an environment variable as int or returns a default value.
func getEnvInt(key string, fallback int) int {
	if value, exists := os.LookupEnv(key); exists {
		if intVal, err := strconv.Atoi(value); err == nil {
			return intVal
		}
	}
	return fallback
}

// getEnvBool gets an environment variable as bool or returns a default value.
func getEnvBool(key string, fallback bool) bool {
	if value, exists := os.LookupEnv(key); exists {
		if boolVal, err := strconv.ParseBool(value); err == nil {
			return boolVal
		}
	}
	return fallback
}

// Load loads configuration from environment variables (via .env file) or defaults.
func Load() *Config {
	// godotenv.Load() will not override variables already in the environment.
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on existing environment variables and defaults.")
	}

	dataBase := getEnv("DATA_DIR", ".")

	return &Config{
		Host: getEnv("HOST", "0.0.0.0"),
		Port: getEnv("PORT", "8080"),

		UploadDir:    getEnv("UPLOAD_DIR", filepath.Join(dataBase, "uploads")),
		SeparatedDir: getEnv("SEPARATED_DIR", filepath.Join(dataBase, "separated")),
		MaxUploadMB:  int64(getEnvInt("MAX_UPLOAD_MB", 500)),

		LogLevel: getEnv("LOG_LEVEL", "info"),
		LogPath:  getEnv("LOG_PATH", filepath.Join("logs", "stemdeck.log")),

		DemucsPath:      getEnv("DEMUCS_PATH", "demucs"),
		SpleeterPath:    getEnv("SPLEETER_PATH", "spleeter"),
		DefaultSplitter: getEnv("DEFAULT_SPLITTER", "demucs"),
		DefaultModel:    getEnv("DEFAULT_MODEL", "htdemucs_6s"),

		FFmpegPath: getEnv("FFMPEG_PATH", "ffmpeg"),

		SplitBackendURL: getEnv("SPLIT_BACKEND_URL", ""),
		SplitToolVocals: getEnv("SPLIT_TOOL_VOCALS", ""),
		SplitToolDrums:  getEnv("SPLIT_TOOL_DRUMS", ""),

		AudioSpeaker: getEnvBool("AUDIO_SPEAKER", false),

		DBEnabled:  getEnvBool("DB_ENABLED", false),
		DBHost:     getEnv("DB_HOST", "127.0.0.1"),
		DBPort:     getEnv("DB_PORT", "3306"),
		DBUser:     getEnv("DB_USER", "root"),
		DBPassword: os.Getenv("DB_PASSWORD"), // no hardcoded default for credentials
		DBName:     getEnv("DB_NAME", "stemdeck"),

		RedisEnabled:  getEnvBool("REDIS_ENABLED", false),
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),

		MinioEnabled:   getEnvBool("MINIO_ENABLED", false),
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "stemdeck"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}

// Addr returns the host:port the HTTP server binds to.
func (c *Config) Addr() string {
	return c.Host + ":" + c.Port
}
