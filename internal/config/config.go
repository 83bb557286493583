package config

import (
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	fileKey := envKey + "_FILE"
	filePath := os.Getenv(fileKey)
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	val := strings.TrimSpace(string(data))
	os.Setenv(envKey, val)
}

type Config struct {
	Server    ServerConfig
	Redis     RedisConfig
	RateLimit RateLimitConfig
	Storage   StorageConfig
	Tools     ToolsConfig
	Search    SearchConfig
	Audio     AudioConfig
	Jobs      JobsConfig
	Groq      GroqConfig
	Catalog   CatalogConfig
}

type ServerConfig struct {
	Port        string
	Env         string
	LogLevel    string
	BodyLimitMB int
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type RateLimitConfig struct {
	SearchPerHour int
	ExportPerHour int
	UploadPerHour int
}

type StorageConfig struct {
	UploadDir     string
	ExportDir     string
	MaxAge        time.Duration
	SweepInterval string // asynq cron spec
}

type ToolsConfig struct {
	YtdlpPath   string
	FfmpegPath  string
	FfprobePath string
}

type SearchConfig struct {
	ResultsPerQuery     int
	ConfidenceThreshold float64
}

type AudioConfig struct {
	Bitrate         string // AAC bitrate of the mixed export
	DownloadQuality string // yt-dlp --audio-quality
}

type JobsConfig struct {
	MaxConcurrent int
	Timeout       time.Duration // 0 disables the deadline
}

type GroqConfig struct {
	APIKey          string
	BaseURL         string
	Model           string
	TranscribeModel string
}

// CatalogConfig holds the music catalog's client credentials
type CatalogConfig struct {
	ClientID     string
	ClientSecret string
	AuthURL      string
	APIURL       string
}

func Load() (*Config, error) {
	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GROQ_API_KEY")
	readSecret("SPOTIPY_CLIENT_SECRET")

	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Environment variables
	viper.AutomaticEnv()

	// Bind environment variables with underscores to nested config keys
	_ = viper.BindEnv("server.port", "SERVER_PORT")
	_ = viper.BindEnv("server.env", "SERVER_ENV")
	_ = viper.BindEnv("server.log_level", "LOG_LEVEL")
	_ = viper.BindEnv("server.body_limit_mb", "BODY_LIMIT_MB")
	_ = viper.BindEnv("redis.addr", "REDIS_ADDR")
	_ = viper.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = viper.BindEnv("redis.db", "REDIS_DB")
	_ = viper.BindEnv("ratelimit.search_per_hour", "RATELIMIT_SEARCH_PER_HOUR")
	_ = viper.BindEnv("ratelimit.export_per_hour", "RATELIMIT_EXPORT_PER_HOUR")
	_ = viper.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = viper.BindEnv("storage.upload_dir", "UPLOAD_DIR")
	_ = viper.BindEnv("storage.export_dir", "EXPORT_DIR")
	_ = viper.BindEnv("storage.max_age", "STORAGE_MAX_AGE")
	_ = viper.BindEnv("storage.sweep_interval", "STORAGE_SWEEP_INTERVAL")
	_ = viper.BindEnv("tools.ytdlp_path", "YTDLP_PATH")
	_ = viper.BindEnv("tools.ffmpeg_path", "FFMPEG_PATH")
	_ = viper.BindEnv("tools.ffprobe_path", "FFPROBE_PATH")
	_ = viper.BindEnv("search.results_per_query", "SEARCH_RESULTS_PER_QUERY")
	_ = viper.BindEnv("search.confidence_threshold", "SEARCH_CONFIDENCE_THRESHOLD")
	_ = viper.BindEnv("audio.bitrate", "AUDIO_BITRATE")
	_ = viper.BindEnv("audio.download_quality", "AUDIO_DOWNLOAD_QUALITY")
	_ = viper.BindEnv("jobs.max_concurrent", "JOBS_MAX_CONCURRENT")
	_ = viper.BindEnv("jobs.timeout", "JOBS_TIMEOUT")
	_ = viper.BindEnv("groq.api_key", "GROQ_API_KEY")
	_ = viper.BindEnv("groq.base_url", "GROQ_BASE_URL")
	_ = viper.BindEnv("groq.model", "GROQ_MODEL")
	_ = viper.BindEnv("groq.transcribe_model", "GROQ_TRANSCRIBE_MODEL")
	_ = viper.BindEnv("catalog.client_id", "SPOTIPY_CLIENT_ID")
	_ = viper.BindEnv("catalog.client_secret", "SPOTIPY_CLIENT_SECRET")
	_ = viper.BindEnv("catalog.auth_url", "CATALOG_AUTH_URL")
	_ = viper.BindEnv("catalog.api_url", "CATALOG_API_URL")

	// Defaults
	viper.SetDefault("server.port", "5001")
	viper.SetDefault("server.env", "development")
	viper.SetDefault("server.log_level", "info")
	viper.SetDefault("server.body_limit_mb", 500)
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("ratelimit.search_per_hour", 60)
	viper.SetDefault("ratelimit.export_per_hour", 30)
	viper.SetDefault("ratelimit.upload_per_hour", 60)

	// Storage defaults
	viper.SetDefault("storage.upload_dir", "./uploads")
	viper.SetDefault("storage.export_dir", "./exports")
	viper.SetDefault("storage.max_age", "24h")
	viper.SetDefault("storage.sweep_interval", "@every 30m")

	// Tool defaults resolve through PATH
	viper.SetDefault("tools.ytdlp_path", "yt-dlp")
	viper.SetDefault("tools.ffmpeg_path", "ffmpeg")
	viper.SetDefault("tools.ffprobe_path", "ffprobe")

	viper.SetDefault("search.results_per_query", 5)
	viper.SetDefault("search.confidence_threshold", 15)
	viper.SetDefault("audio.bitrate", "192k")
	viper.SetDefault("audio.download_quality", "192K")
	viper.SetDefault("jobs.max_concurrent", 4)
	viper.SetDefault("jobs.timeout", "0s")

	// Groq defaults
	viper.SetDefault("groq.base_url", "https://api.groq.com/openai/v1")
	viper.SetDefault("groq.model", "llama-3.3-70b-versatile")
	viper.SetDefault("groq.transcribe_model", "whisper-large-v3-turbo")

	// Catalog defaults
	viper.SetDefault("catalog.auth_url", "https://accounts.spotify.com/api/token")
	viper.SetDefault("catalog.api_url", "https://api.spotify.com/v1")

	// Try to read config file (optional)
	_ = viper.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port:        viper.GetString("server.port"),
			Env:         viper.GetString("server.env"),
			LogLevel:    viper.GetString("server.log_level"),
			BodyLimitMB: viper.GetInt("server.body_limit_mb"),
		},
		Redis: RedisConfig{
			Addr:     viper.GetString("redis.addr"),
			Password: viper.GetString("redis.password"),
			DB:       viper.GetInt("redis.db"),
		},
		RateLimit: RateLimitConfig{
			SearchPerHour: viper.GetInt("ratelimit.search_per_hour"),
			ExportPerHour: viper.GetInt("ratelimit.export_per_hour"),
			UploadPerHour: viper.GetInt("ratelimit.upload_per_hour"),
		},
		Storage: StorageConfig{
			UploadDir:     viper.GetString("storage.upload_dir"),
			ExportDir:     viper.GetString("storage.export_dir"),
			MaxAge:        viper.GetDuration("storage.max_age"),
			SweepInterval: viper.GetString("storage.sweep_interval"),
		},
		Tools: ToolsConfig{
			YtdlpPath:   viper.GetString("tools.ytdlp_path"),
			FfmpegPath:  viper.GetString("tools.ffmpeg_path"),
			FfprobePath: viper.GetString("tools.ffprobe_path"),
		},
		Search: SearchConfig{
			ResultsPerQuery:     viper.GetInt("search.results_per_query"),
			ConfidenceThreshold: viper.GetFloat64("search.confidence_threshold"),
		},
		Audio: AudioConfig{
			Bitrate:         viper.GetString("audio.bitrate"),
			DownloadQuality: viper.GetString("audio.download_quality"),
		},
		Jobs: JobsConfig{
			MaxConcurrent: viper.GetInt("jobs.max_concurrent"),
			Timeout:       viper.GetDuration("jobs.timeout"),
		},
		Groq: GroqConfig{
			APIKey:          viper.GetString("groq.api_key"),
			BaseURL:         viper.GetString("groq.base_url"),
			Model:           viper.GetString("groq.model"),
			TranscribeModel: viper.GetString("groq.transcribe_model"),
		},
		Catalog: CatalogConfig{
			ClientID:     viper.GetString("catalog.client_id"),
			ClientSecret: viper.GetString("catalog.client_secret"),
			AuthURL:      viper.GetString("catalog.auth_url"),
			APIURL:       viper.GetString("catalog.api_url"),
		},
	}

	return cfg, nil
}
