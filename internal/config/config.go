package config

import (
	"strings"

	"github.com/spf13/viper"
)

type Config struct {
	AppPort             int    `mapstructure:"APP_PORT"`
	StorageBackend      string `mapstructure:"STORAGE_BACKEND"` // "file" or "sqlite"
	DataDir             string `mapstructure:"DATA_DIR"`
	DatabasePath        string `mapstructure:"DATABASE_PATH"`
	ChatAPIURL          string `mapstructure:"CHAT_API_URL"`
	ChatAPIKey          string `mapstructure:"CHAT_API_KEY"`
	ChatbotID           string `mapstructure:"CHATBOT_ID"`
	ChatModel           string `mapstructure:"CHAT_MODEL"`
	MaxInputLength      int    `mapstructure:"MAX_INPUT_LENGTH"`
	GreetingMessage     string `mapstructure:"GREETING_MESSAGE"`
	HistoryLimit        int    `mapstructure:"HISTORY_LIMIT"`
	ReducedHistoryLimit int    `mapstructure:"REDUCED_HISTORY_LIMIT"`
	LinkDomain          string `mapstructure:"LINK_DOMAIN"`
	LogLevel            string `mapstructure:"LOG_LEVEL"`
}

func LoadConfig() (*Config, error) {
	viper.SetDefault("APP_PORT", 8000)
	viper.SetDefault("STORAGE_BACKEND", "file")
	viper.SetDefault("DATA_DIR", "/data/assistant")
	viper.SetDefault("DATABASE_PATH", "/data/assistant/engine.db")
	viper.SetDefault("CHAT_API_URL", "https://api.chatbase.co/api/v1/chat")
	viper.SetDefault("CHAT_API_KEY", "")
	viper.SetDefault("CHATBOT_ID", "")
	viper.SetDefault("CHAT_MODEL", "gpt-4o-mini")
	// Observed deployments use 500 or 800; this is deliberately a setting,
	// never a constant at a call site.
	viper.SetDefault("MAX_INPUT_LENGTH", 500)
	viper.SetDefault("GREETING_MESSAGE", "Hi! How can I help you today?")
	viper.SetDefault("HISTORY_LIMIT", 100)
	viper.SetDefault("REDUCED_HISTORY_LIMIT", 50)
	viper.SetDefault("LINK_DOMAIN", "")
	viper.SetDefault("LOG_LEVEL", "INFO")

	viper.SetConfigName(".env")
	viper.SetConfigType("env")
	viper.AddConfigPath(".")

	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if err := viper.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, err
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	return &cfg, nil
}
