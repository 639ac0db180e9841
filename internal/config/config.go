package config

import (
	"context"
	"os"
	"strconv"
	"strings"

	"github.com/cloudwego/eino-ext/components/model/ark"
	"github.com/cloudwego/eino/components/model"
	"github.com/pkg/errors"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server  ServerConfig
	AI      AIConfig
	Storage StorageConfig
	// WidgetConfigPath points at a YAML file with widget option overrides.
	WidgetConfigPath string
	LogLevel         string
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	echo, err := parseBoolEnv("ENABLE_ECHO_ENDPOINT", true)
	if err != nil {
		return nil, err
	}
	server.EchoEndpoint = echo

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	storage, err := loadStorageConfig()
	if err != nil {
		return nil, err
	}

	return &Config{
		Server:           server,
		AI:               ai,
		Storage:          storage,
		WidgetConfigPath: strings.TrimSpace(os.Getenv("WIDGET_CONFIG")),
		LogLevel:         getEnvOrDefault("LOG_LEVEL", "info"),
	}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr string
	// EchoEndpoint mounts the demo reply endpoint under /api/echo.
	EchoEndpoint bool
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, errors.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port}, nil
}

// AIConfig 描述大模型相关配置。模型可选，配置后作为组件的回复来源。
type AIConfig struct {
	APIKey      string
	AccessKey   string
	SecretKey   string
	Model       string
	BaseURL     string
	Region      string
	Temperature *float32
	TopP        *float32
	MaxTokens   *int
	// SystemPrompt is appended to the prompt generated from widget options.
	SystemPrompt string
	// HistoryLimit caps how many transcript messages reach the model.
	HistoryLimit int
}

// Enabled 表示是否提供了必需的密钥。
func (c AIConfig) Enabled() bool {
	return c.Model != "" && (c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != ""))
}

// NewChatModel 使用配置创建一个 Ark 模型实例。
func (c AIConfig) NewChatModel(ctx context.Context) (model.ChatModel, error) {
	if !c.Enabled() {
		return nil, ErrAIDisabled
	}

	chatModel, err := ark.NewChatModel(ctx, &ark.ChatModelConfig{
		BaseURL:     c.BaseURL,
		Region:      c.Region,
		APIKey:      c.APIKey,
		AccessKey:   c.AccessKey,
		SecretKey:   c.SecretKey,
		Model:       c.Model,
		MaxTokens:   c.MaxTokens,
		Temperature: c.Temperature,
		TopP:        c.TopP,
	})
	if err != nil {
		return nil, errors.Wrap(err, "create ark chat model")
	}
	return chatModel, nil
}

// ErrAIDisabled is returned when no model or credentials are configured.
var ErrAIDisabled = errors.New("Ark 凭证或模型配置缺失，至少提供 ARK_API_KEY + ARK_MODEL 或 AK/SK 组合")

const defaultHistoryLimit = 10

func loadAIConfig() (AIConfig, error) {
	temperature, err := optionalEnv("ARK_TEMPERATURE", parseFloat32)
	if err != nil {
		return AIConfig{}, err
	}
	topP, err := optionalEnv("ARK_TOP_P", parseFloat32)
	if err != nil {
		return AIConfig{}, err
	}
	maxTokens, err := optionalEnv("ARK_MAX_TOKENS", strconv.Atoi)
	if err != nil {
		return AIConfig{}, err
	}
	history, err := optionalEnv("AI_HISTORY_LIMIT", strconv.Atoi)
	if err != nil {
		return AIConfig{}, err
	}

	historyLimit := defaultHistoryLimit
	if history != nil {
		historyLimit = max(*history, 1)
	}

	// ARK_MODEL wins; the bare "Model" variable is still honoured for older .env files.
	modelName := getEnvOrDefault("ARK_MODEL", strings.TrimSpace(os.Getenv("Model")))

	return AIConfig{
		APIKey:       strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:    strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:    strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		Model:        modelName,
		BaseURL:      getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:       getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:  temperature,
		TopP:         topP,
		MaxTokens:    maxTokens,
		SystemPrompt: strings.TrimSpace(os.Getenv("AI_SYSTEM_PROMPT")),
		HistoryLimit: historyLimit,
	}, nil
}

// Storage drivers.
const (
	DriverMemory = "memory"
	DriverFile   = "file"
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
)

// StorageConfig 描述聊天记录持久化后端。
type StorageConfig struct {
	Driver    string
	Path      string
	RedisAddr string
	RedisDB   int
}

func loadStorageConfig() (StorageConfig, error) {
	driver := strings.ToLower(getEnvOrDefault("STORAGE_DRIVER", DriverMemory))

	defaultPath := ""
	switch driver {
	case DriverMemory, DriverRedis:
	case DriverFile:
		defaultPath = "data/transcripts"
	case DriverSQLite:
		defaultPath = "data/supportbot.db"
	default:
		return StorageConfig{}, errors.Errorf("invalid STORAGE_DRIVER value: %q", driver)
	}

	redisDB, err := optionalEnv("REDIS_DB", strconv.Atoi)
	if err != nil {
		return StorageConfig{}, err
	}

	cfg := StorageConfig{
		Driver:    driver,
		Path:      getEnvOrDefault("STORAGE_PATH", defaultPath),
		RedisAddr: getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
	}
	if redisDB != nil {
		cfg.RedisDB = *redisDB
	}
	return cfg, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	val, err := optionalEnv(key, strconv.ParseBool)
	if err != nil || val == nil {
		return defaultValue, err
	}
	return *val, nil
}

// optionalEnv parses key with parse; unset or blank yields nil.
func optionalEnv[T any](key string, parse func(string) (T, error)) (*T, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil, nil
	}
	val, err := parse(raw)
	if err != nil {
		return nil, errors.Wrapf(err, "invalid %s value %q", key, raw)
	}
	return &val, nil
}

func parseFloat32(s string) (float32, error) {
	v, err := strconv.ParseFloat(s, 32)
	return float32(v), err
}
