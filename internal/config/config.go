package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/ilyakaznacheev/cleanenv"
	"github.com/joho/godotenv"

	"vnovel-server/internal/logger"
)

// Config структура для хранения всей конфигурации сервера.
type Config struct {
	AppEnv string `env:"APP_ENV" env-default:"development"`
	Logger logger.Config
	Server ServerConfig
	AI     AIConfig
	Chat   ChatConfig
	Story  StoryConfig
	Image  ImageConfig
	DB     DatabaseConfig
	Redis  RedisConfig
	MQ     RabbitMQConfig
	Auth   AuthConfig
	Tasks  TaskConfig
}

// ServerConfig настройки HTTP сервера.
type ServerConfig struct {
	Port               string        `env:"SERVER_PORT" env-default:"8080"`
	ReadTimeout        time.Duration `env:"SERVER_READ_TIMEOUT" env-default:"15s"`
	WriteTimeout       time.Duration `env:"SERVER_WRITE_TIMEOUT" env-default:"5m"` // SSE и ожидание картинки
	IdleTimeout        time.Duration `env:"SERVER_IDLE_TIMEOUT" env-default:"60s"`
	ShutdownTimeout    time.Duration `env:"SERVER_SHUTDOWN_TIMEOUT" env-default:"10s"`
	CORSAllowedOrigins string        `env:"CORS_ALLOWED_ORIGINS" env-default:"http://localhost:3000"`
}

// AllowedOrigins возвращает список разрешенных источников CORS.
func (c ServerConfig) AllowedOrigins() []string {
	var out []string
	for _, o := range strings.Split(c.CORSAllowedOrigins, ",") {
		if o = strings.TrimSpace(o); o != "" {
			out = append(out, o)
		}
	}
	return out
}

// AIConfig настройки LLM провайдера.
type AIConfig struct {
	ClientType     string        `env:"AI_CLIENT_TYPE" env-default:"openrouter"` // openrouter, groq, openai, ollama
	BaseURL        string        `env:"AI_BASE_URL" env-default:""`              // пусто = по типу клиента
	APIKey         string        `env:"AI_API_KEY" env-default:""`
	Timeout        time.Duration `env:"AI_TIMEOUT" env-default:"120s"`
	MaxAttempts    int           `env:"AI_MAX_ATTEMPTS" env-default:"3"`
	BaseRetryDelay time.Duration `env:"AI_BASE_RETRY_DELAY" env-default:"1s"`
}

// ChatConfig настройки /api/chat.
type ChatConfig struct {
	Model           string `env:"CHAT_MODEL" env-default:"google/gemini-2.5-flash"`
	AllowedModels   string `env:"CHAT_ALLOWED_MODELS" env-default:"google/gemini-2.5-flash,google/gemini-2.5-pro,anthropic/claude-sonnet-4,moonshotai/kimi-k2-0905,openai/gpt-4o"`
	MaxOutputTokens int    `env:"CHAT_MAX_OUTPUT_TOKENS" env-default:"10000"`
	ToolsEnabled    bool   `env:"CHAT_TOOLS_ENABLED" env-default:"false"`
	MaxSteps        int    `env:"CHAT_MAX_STEPS" env-default:"5"`
}

// AllowedModelList возвращает список моделей, которые клиент может запросить.
func (c ChatConfig) AllowedModelList() []string {
	var out []string
	for _, m := range strings.Split(c.AllowedModels, ",") {
		if m = strings.TrimSpace(m); m != "" {
			out = append(out, m)
		}
	}
	return out
}

// StoryConfig настройки генерации истории.
type StoryConfig struct {
	Model       string  `env:"STORY_MODEL" env-default:"moonshotai/kimi-k2-0905"`
	Temperature float64 `env:"STORY_TEMPERATURE" env-default:"0.8"`
	MaxTokens   int     `env:"STORY_MAX_TOKENS" env-default:"2000"`
}

// ImageConfig настройки генерации изображений.
type ImageConfig struct {
	KieBaseURL          string        `env:"KIE_BASE_URL" env-default:"https://api.kie.ai"`
	KieAPIKey           string        `env:"KIE_API_KEY" env-default:""`
	KiePollAttempts     int           `env:"KIE_POLL_ATTEMPTS" env-default:"24"`
	KiePollInterval     time.Duration `env:"KIE_POLL_INTERVAL" env-default:"3s"`
	ReplicateBaseURL    string        `env:"REPLICATE_BASE_URL" env-default:"https://api.replicate.com"`
	ReplicateAPIKey     string        `env:"REPLICATE_API_KEY" env-default:""`
	ReplicatePollDelay  time.Duration `env:"REPLICATE_POLL_INTERVAL" env-default:"2s"`
	ReplicateMaxPolls   int           `env:"REPLICATE_MAX_POLLS" env-default:"60"`
	ReplicateMaxBytes   int64         `env:"REPLICATE_MAX_IMAGE_BYTES" env-default:"20971520"`
	PollinationsBaseURL string        `env:"POLLINATIONS_BASE_URL" env-default:"https://image.pollinations.ai"`
	HTTPTimeout         time.Duration `env:"IMAGE_HTTP_TIMEOUT" env-default:"60s"`
	SavePath            string        `env:"IMAGE_SAVE_PATH" env-default:"./data/images"`
	PublicBaseURL       string        `env:"IMAGE_PUBLIC_BASE_URL" env-default:"http://localhost:8080/images"`
	RateInterval        time.Duration `env:"IMAGE_RATE_INTERVAL" env-default:"2s"`
	RateBurst           int           `env:"IMAGE_RATE_BURST" env-default:"2"`
	CacheTTL            time.Duration `env:"IMAGE_CACHE_TTL" env-default:"30m"`
}

// DatabaseConfig настройки PostgreSQL. Пустой DSN = хранение в памяти.
type DatabaseConfig struct {
	DSN         string        `env:"DATABASE_URL" env-default:""`
	MaxConns    int32         `env:"DB_MAX_CONNECTIONS" env-default:"10"`
	IdleTimeout time.Duration `env:"DB_MAX_IDLE_TIME" env-default:"5m"`
	MaxRetries  int           `env:"DB_CONNECT_RETRIES" env-default:"10"`
	RetryDelay  time.Duration `env:"DB_CONNECT_RETRY_DELAY" env-default:"3s"`
	AutoMigrate bool          `env:"DB_AUTO_MIGRATE" env-default:"true"`
}

// RedisConfig настройки Redis. Пустой адрес = кэш в памяти.
type RedisConfig struct {
	Addr     string `env:"REDIS_ADDR" env-default:""`
	Password string `env:"REDIS_PASSWORD" env-default:""`
	DB       int    `env:"REDIS_DB" env-default:"0"`
}

// RabbitMQConfig настройки RabbitMQ. Пустой URL = задачи выполняются в процессе.
type RabbitMQConfig struct {
	URL              string `env:"RABBITMQ_URL" env-default:""`
	ImageTaskQueue   string `env:"RABBITMQ_IMAGE_TASK_QUEUE" env-default:"image_generation_tasks"`
	ImageResultQueue string `env:"RABBITMQ_IMAGE_RESULT_QUEUE" env-default:"image_generation_results"`
}

// AuthConfig настройки JWT. Пустой секрет = анонимный режим (пользователь guest).
type AuthConfig struct {
	JWTSecret string `env:"JWT_SECRET" env-default:""`
}

// TaskConfig настройки менеджера фоновых задач.
type TaskConfig struct {
	MaxActive       int           `env:"TASKS_MAX_ACTIVE" env-default:"10"`
	CleanupInterval time.Duration `env:"TASKS_CLEANUP_INTERVAL" env-default:"10m"`
	RetainFor       time.Duration `env:"TASKS_RETAIN_FOR" env-default:"1h"`
}

// Load загружает конфигурацию из переменных окружения и .env файла.
func Load() (*Config, error) {
	// .env файл необязателен
	_ = godotenv.Load()

	var cfg Config
	if err := cleanenv.ReadEnv(&cfg); err != nil {
		return nil, fmt.Errorf("error loading configuration: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate проверяет согласованность настроек.
func (c *Config) Validate() error {
	if c.AI.MaxAttempts < 1 {
		return fmt.Errorf("AI_MAX_ATTEMPTS must be >= 1, got %d", c.AI.MaxAttempts)
	}
	if c.Image.KiePollAttempts < 1 {
		return fmt.Errorf("KIE_POLL_ATTEMPTS must be >= 1, got %d", c.Image.KiePollAttempts)
	}
	if c.Chat.MaxSteps < 1 {
		return fmt.Errorf("CHAT_MAX_STEPS must be >= 1, got %d", c.Chat.MaxSteps)
	}
	if c.Image.RateBurst < 1 {
		return fmt.Errorf("IMAGE_RATE_BURST must be >= 1, got %d", c.Image.RateBurst)
	}
	return nil
}
