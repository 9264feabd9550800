package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"

	"github.com/joho/godotenv"
)

// Config stores the application configuration.
type Config struct {
	FFmpegPath    string
	AudioBitrate  string // e.g., "192k" for mp3 output
	UploadDir     string // Base directory for all uploads
	AudioDir      string // Subdirectory for uploaded source audio: UploadDir/audio
	MergedDir     string // Subdirectory for generated merge outputs: UploadDir/merged
	MergeWorkers  int    // Size of the merge worker pool
	SilenceGapSec int    // Minimum silence span (seconds) removed by the trim filter
	SilenceNoise  string // Amplitude threshold treated as silence, e.g. "-50dB"
	DBHost        string
	DBPort        string
	DBUser        string
	DBPassword    string
	DBName        string
	JWTSecret     string
	// Redis配置
	RedisHost     string
	RedisPort     string
	RedisPassword string
	RedisDB       int
	// MinIO配置
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
	// godotenv.Load() will not override existing env vars.
	err := godotenv.Load()
	if err != nil {
		log.Println("No .env file found or error loading .env, relying on existing environment variables and defaults.")
	}

	uploadBase := getEnv("UPLOAD_DIR", "uploads")

	return &Config{
		FFmpegPath:    getEnv("FFMPEG_PATH", "ffmpeg"),
		AudioBitrate:  getEnv("AUDIO_BITRATE", "192k"),
		UploadDir:     uploadBase,
		AudioDir:      filepath.Join(uploadBase, "audio"),
		MergedDir:     filepath.Join(uploadBase, "merged"),
		MergeWorkers:  getEnvInt("MERGE_WORKERS", 2),
		SilenceGapSec: getEnvInt("SILENCE_GAP_SEC", 5),
		SilenceNoise:  getEnv("SILENCE_NOISE", "-50dB"),
		DBHost:        getEnv("DB_HOST", "127.0.0.1"),
		DBPort:        getEnv("DB_PORT", "3306"),
		DBUser:        getEnv("DB_USER", "root"),
		DBPassword:    os.Getenv("DB_PASSWORD"), // no hardcoded default for passwords
		DBName:        getEnv("DB_NAME", "mixmerge"),
		JWTSecret:     getEnv("JWT_SECRET", "mixmerge-dev-secret"),
		// Redis配置，使用默认值
		RedisHost:     getEnv("REDIS_HOST", "127.0.0.1"),
		RedisPort:     getEnv("REDIS_PORT", "6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getEnvInt("REDIS_DB", 0),
		// MinIO配置
		MinioEndpoint:  getEnv("MINIO_ENDPOINT", "127.0.0.1:9000"),
		MinioAccessKey: getEnv("MINIO_ACCESS_KEY", ""),
		MinioSecretKey: getEnv("MINIO_SECRET_KEY", ""),
		MinioBucket:    getEnv("MINIO_BUCKET", "mixmerge"),
		MinioRegion:    getEnv("MINIO_REGION", "us-east-1"),
		MinioUseSSL:    getEnvBool("MINIO_USE_SSL", false),
	}
}
