package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config 聚合整个服务的配置项。
type Config struct {
	Server ServerConfig
	AI     AIConfig
	Face   FaceConfig
}

// Load 从环境变量加载配置。
func Load() (*Config, error) {
	server, err := loadServerConfig()
	if err != nil {
		return nil, err
	}

	ai, err := loadAIConfig()
	if err != nil {
		return nil, err
	}

	face, err := loadFaceConfig()
	if err != nil {
		return nil, err
	}

	return &Config{Server: server, AI: ai, Face: face}, nil
}

// ServerConfig 描述 HTTP 服务配置。
type ServerConfig struct {
	Addr     string
	LogLevel string
}

// loadServerConfig 解析服务器监听地址。
func loadServerConfig() (ServerConfig, error) {
	port := strings.TrimSpace(os.Getenv("PORT"))
	if port == "" {
		port = "8080"
	}

	logLevel := getEnvOrDefault("LOG_LEVEL", "info")

	if strings.Contains(port, ":") {
		// 允许用户直接传入 ":8080" 或 "127.0.0.1:8080"。
		return ServerConfig{Addr: port, LogLevel: logLevel}, nil
	}

	if strings.Contains(port, " ") {
		return ServerConfig{}, fmt.Errorf("invalid PORT value: %q", port)
	}

	return ServerConfig{Addr: ":" + port, LogLevel: logLevel}, nil
}

// Backend 选择推理引擎的接入方式。
type Backend string

const (
	// BackendOpenAI 兼容 OpenAI 接口的本地模型服务（Ollama、llama.cpp、LM Studio）。
	BackendOpenAI Backend = "openai"
	// BackendArk 火山方舟。
	BackendArk Backend = "ark"
)

// AIConfig 描述大模型相关配置。
type AIConfig struct {
	Backend       Backend
	OpenAIBaseURL string
	OpenAIAPIKey  string
	APIKey        string
	AccessKey     string
	SecretKey     string
	BaseURL       string
	Region        string
	Temperature   float32
	MaxTokens     int
}

// Enabled 表示当前后端所需的凭证是否齐全。
func (c AIConfig) Enabled() bool {
	switch c.Backend {
	case BackendArk:
		return c.APIKey != "" || (c.AccessKey != "" && c.SecretKey != "")
	case BackendOpenAI:
		return c.OpenAIBaseURL != ""
	default:
		return false
	}
}

func loadAIConfig() (AIConfig, error) {
	backend := Backend(strings.ToLower(getEnvOrDefault("AI_BACKEND", string(BackendOpenAI))))
	if backend != BackendOpenAI && backend != BackendArk {
		return AIConfig{}, fmt.Errorf("invalid AI_BACKEND value %q", backend)
	}

	temperature := float32(0.7)
	if override, err := parseOptionalFloatEnv("AI_TEMPERATURE"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		temperature = float32(*override)
	}

	maxTokens := 150
	if override, err := parseOptionalIntEnv("AI_MAX_TOKENS"); err != nil {
		return AIConfig{}, err
	} else if override != nil {
		if *override < 1 {
			return AIConfig{}, fmt.Errorf("invalid AI_MAX_TOKENS value %d", *override)
		}
		maxTokens = *override
	}

	return AIConfig{
		Backend:       backend,
		OpenAIBaseURL: getEnvOrDefault("OPENAI_BASE_URL", "http://localhost:11434/v1"),
		OpenAIAPIKey:  getEnvOrDefault("OPENAI_API_KEY", "ollama"),
		APIKey:        strings.TrimSpace(os.Getenv("ARK_API_KEY")),
		AccessKey:     strings.TrimSpace(os.Getenv("ARK_ACCESS_KEY")),
		SecretKey:     strings.TrimSpace(os.Getenv("ARK_SECRET_KEY")),
		BaseURL:       getEnvOrDefault("ARK_BASE_URL", "https://ark.cn-beijing.volces.com/api/v3"),
		Region:        getEnvOrDefault("ARK_REGION", "cn-beijing"),
		Temperature:   temperature,
		MaxTokens:     maxTokens,
	}, nil
}

// FaceConfig 描述角色与模型目录。
type FaceConfig struct {
	PersonaID   string
	CatalogPath string
	ModelID     string
	AutoLoad    bool
}

func loadFaceConfig() (FaceConfig, error) {
	autoLoad, err := parseBoolEnv("MODEL_AUTOLOAD", true)
	if err != nil {
		return FaceConfig{}, err
	}

	return FaceConfig{
		PersonaID:   getEnvOrDefault("PERSONA_ID", "rocket"),
		CatalogPath: strings.TrimSpace(os.Getenv("MODEL_CATALOG")),
		ModelID:     strings.TrimSpace(os.Getenv("MODEL_ID")),
		AutoLoad:    autoLoad,
	}, nil
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := strings.TrimSpace(os.Getenv(key)); value != "" {
		return value
	}
	return defaultValue
}

func parseBoolEnv(key string, defaultValue bool) (bool, error) {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return defaultValue, nil
	}

	val, err := strconv.ParseBool(raw)
	if err != nil {
		return false, fmt.Errorf("invalid %s value %q: %w", key, raw, err)
	}
	return val, nil
}

func parseOptionalFloatEnv(key string) (*float64, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.ParseFloat(value, 64)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}

func parseOptionalIntEnv(key string) (*int, error) {
	raw, ok := os.LookupEnv(key)
	if !ok {
		return nil, nil
	}

	value := strings.TrimSpace(raw)
	if value == "" {
		return nil, nil
	}

	val, err := strconv.Atoi(value)
	if err != nil {
		return nil, fmt.Errorf("invalid %s value %q: %w", key, value, err)
	}
	return &val, nil
}
