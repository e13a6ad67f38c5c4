package config

import (
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultPrompt is used when a generation request does not carry its own prompt.
const DefaultPrompt = "A professional cinematic presentation video featuring this business leader and the company logo. " +
	"The video should have a corporate, trustworthy atmosphere with bright lighting. " +
	"The leader is presenting in a modern office environment. " +
	"The CopilOF logo appears elegantly as a watermark or intro graphic. " +
	"The theme is 'Partner in training compliance'. High resolution, photorealistic."

// readSecret reads a Docker secret from a file path specified by an env var
// with _FILE suffix. If FOO is already set directly, the file is skipped.
// If FOO_FILE is set, reads the file content and sets FOO.
func readSecret(envKey string) {
	if os.Getenv(envKey) != "" {
		return
	}
	filePath := os.Getenv(envKey + "_FILE")
	if filePath == "" {
		return
	}
	data, err := os.ReadFile(filePath)
	if err != nil {
		return
	}
	os.Setenv(envKey, strings.TrimSpace(string(data)))
}

type Config struct {
	Server     ServerConfig
	Log        LogConfig
	Redis      RedisConfig
	Gemini     GeminiConfig
	Generation GenerationConfig
	Worker     WorkerConfig
	Upload     UploadConfig
	RateLimit  RateLimitConfig
	Status     StatusConfig
}

type ServerConfig struct {
	Port string
	Env  string
}

type LogConfig struct {
	Level  string
	Format string
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type GeminiConfig struct {
	APIKey string
	Model  string
}

type GenerationConfig struct {
	Resolution     string
	AspectRatio    string
	NumberOfVideos int
	PollInterval   time.Duration
	MaxWait        time.Duration
	DefaultPrompt  string
}

// MaxPolls is the number of job refreshes allowed before giving up.
func (g GenerationConfig) MaxPolls() int {
	if g.PollInterval <= 0 {
		return 1
	}
	n := int(g.MaxWait / g.PollInterval)
	if n < 1 {
		return 1
	}
	return n
}

type WorkerConfig struct {
	Mode        string // "asynq" or "inline"
	Concurrency int
	// ClaimTimeout fails a dispatched run that no worker has started
	ClaimTimeout time.Duration
}

type UploadConfig struct {
	MaxSize int64 // bytes
}

type RateLimitConfig struct {
	GeneratePerHour int
	UploadPerHour   int
}

type StatusConfig struct {
	TTL time.Duration
}

const (
	WorkerModeAsynq  = "asynq"
	WorkerModeInline = "inline"
)

// Load builds the configuration from defaults, an optional config.yaml,
// an optional .env file and the process environment.
func Load() (*Config, error) {
	return load(viper.New())
}

func load(v *viper.Viper) (*Config, error) {
	_ = godotenv.Load()

	// Read Docker Swarm secrets from _FILE env vars before Viper binds
	readSecret("REDIS_PASSWORD")
	readSecret("GEMINI_API_KEY")
	readSecret("API_KEY")

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.AutomaticEnv()

	_ = v.BindEnv("server.port", "SERVER_PORT")
	_ = v.BindEnv("server.env", "SERVER_ENV")
	_ = v.BindEnv("log.level", "LOG_LEVEL")
	_ = v.BindEnv("log.format", "LOG_FORMAT")
	_ = v.BindEnv("redis.addr", "REDIS_ADDR")
	_ = v.BindEnv("redis.password", "REDIS_PASSWORD")
	_ = v.BindEnv("redis.db", "REDIS_DB")
	_ = v.BindEnv("gemini.api_key", "GEMINI_API_KEY", "API_KEY")
	_ = v.BindEnv("gemini.model", "GEMINI_VIDEO_MODEL")
	_ = v.BindEnv("generation.resolution", "GENERATION_RESOLUTION")
	_ = v.BindEnv("generation.aspect_ratio", "GENERATION_ASPECT_RATIO")
	_ = v.BindEnv("generation.poll_interval", "GENERATION_POLL_INTERVAL")
	_ = v.BindEnv("generation.max_wait", "GENERATION_MAX_WAIT")
	_ = v.BindEnv("generation.default_prompt", "GENERATION_DEFAULT_PROMPT")
	_ = v.BindEnv("worker.mode", "WORKER_MODE")
	_ = v.BindEnv("worker.concurrency", "WORKER_CONCURRENCY")
	_ = v.BindEnv("worker.claim_timeout", "WORKER_CLAIM_TIMEOUT")
	_ = v.BindEnv("upload.max_size", "UPLOAD_MAX_SIZE")
	_ = v.BindEnv("ratelimit.generate_per_hour", "RATELIMIT_GENERATE_PER_HOUR")
	_ = v.BindEnv("ratelimit.upload_per_hour", "RATELIMIT_UPLOAD_PER_HOUR")
	_ = v.BindEnv("status.ttl", "STATUS_TTL")

	v.SetDefault("server.port", "8000")
	v.SetDefault("server.env", "development")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.format", "console")
	v.SetDefault("redis.addr", "localhost:6379")
	v.SetDefault("redis.password", "")
	v.SetDefault("redis.db", 0)

	// Veo defaults
	v.SetDefault("gemini.model", "veo-3.1-generate-preview")
	v.SetDefault("generation.resolution", "720p")
	v.SetDefault("generation.aspect_ratio", "16:9")
	v.SetDefault("generation.number_of_videos", 1)
	v.SetDefault("generation.poll_interval", 5*time.Second)
	v.SetDefault("generation.max_wait", 10*time.Minute)
	v.SetDefault("generation.default_prompt", DefaultPrompt)

	v.SetDefault("worker.mode", WorkerModeAsynq)
	v.SetDefault("worker.concurrency", 2)
	v.SetDefault("worker.claim_timeout", 2*time.Minute)
	v.SetDefault("upload.max_size", 10*1024*1024)
	v.SetDefault("ratelimit.generate_per_hour", 10)
	v.SetDefault("ratelimit.upload_per_hour", 100)
	v.SetDefault("status.ttl", 24*time.Hour)

	// Try to read config file (optional)
	_ = v.ReadInConfig()

	cfg := &Config{
		Server: ServerConfig{
			Port: v.GetString("server.port"),
			Env:  v.GetString("server.env"),
		},
		Log: LogConfig{
			Level:  v.GetString("log.level"),
			Format: v.GetString("log.format"),
		},
		Redis: RedisConfig{
			Addr:     v.GetString("redis.addr"),
			Password: v.GetString("redis.password"),
			DB:       v.GetInt("redis.db"),
		},
		Gemini: GeminiConfig{
			APIKey: v.GetString("gemini.api_key"),
			Model:  v.GetString("gemini.model"),
		},
		Generation: GenerationConfig{
			Resolution:     v.GetString("generation.resolution"),
			AspectRatio:    v.GetString("generation.aspect_ratio"),
			NumberOfVideos: v.GetInt("generation.number_of_videos"),
			PollInterval:   v.GetDuration("generation.poll_interval"),
			MaxWait:        v.GetDuration("generation.max_wait"),
			DefaultPrompt:  v.GetString("generation.default_prompt"),
		},
		Worker: WorkerConfig{
			Mode:         strings.ToLower(v.GetString("worker.mode")),
			Concurrency:  v.GetInt("worker.concurrency"),
			ClaimTimeout: v.GetDuration("worker.claim_timeout"),
		},
		Upload: UploadConfig{
			MaxSize: v.GetInt64("upload.max_size"),
		},
		RateLimit: RateLimitConfig{
			GeneratePerHour: v.GetInt("ratelimit.generate_per_hour"),
			UploadPerHour:   v.GetInt("ratelimit.upload_per_hour"),
		},
		Status: StatusConfig{
			TTL: v.GetDuration("status.ttl"),
		},
	}

	return cfg, nil
}

// LoadAPIKey re-resolves only the Gemini credential. It backs the key
// selection flow, so a key dropped into .env or a secret file after startup
// is picked up without a restart.
func LoadAPIKey() (string, error) {
	if env, err := godotenv.Read(); err == nil {
		for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
			if val := strings.TrimSpace(env[name]); val != "" {
				return val, nil
			}
		}
	}
	readSecret("GEMINI_API_KEY")
	readSecret("API_KEY")
	for _, name := range []string{"GEMINI_API_KEY", "API_KEY"} {
		if val := strings.TrimSpace(os.Getenv(name)); val != "" {
			return val, nil
		}
	}
	return "", nil
}
