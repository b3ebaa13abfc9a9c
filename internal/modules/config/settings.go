package config

import (
	"errors"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// EngineSettings is the control plane's own configuration: exchange
// credentials, risk ceilings, and the filesystem paths the orchestrator
// needs. Loaded via viper so values can come from a YAML file, environment
// variables, or both, the way the rest of the pack's services layer their
// settings.
type EngineSettings struct {
	ExchangeAPIKey    string
	ExchangeAPISecret string
	ExchangeBaseURL   string

	TelegramToken  string
	TelegramChatID int64

	PostgresDSN string

	AgentsDir string
	DataDir   string

	CycleInterval time.Duration

	RiskFraction    float64
	MaxDailyLossPct float64
	MaxDrawdown     float64
	MaxLeverage     int
}

// LoadSettings reads .env (if present, via godotenv) into the process
// environment, then layers a YAML settings file on top via viper — env
// vars win over the file.
func LoadSettings(path string) (EngineSettings, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetConfigFile(path)
	v.SetConfigType("yaml")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("exchange.base_url", "https://fapi.binance.com")
	v.SetDefault("cycle_interval", "60s")
	v.SetDefault("risk.fraction", 0.025)
	v.SetDefault("risk.max_daily_loss_pct", 0.05)
	v.SetDefault("risk.max_drawdown", 0.25)
	v.SetDefault("risk.max_leverage", 2)
	v.SetDefault("agents_dir", "agents")
	v.SetDefault("data_dir", "data")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return EngineSettings{}, err
		}
	}

	return EngineSettings{
		ExchangeAPIKey:    v.GetString("exchange.api_key"),
		ExchangeAPISecret: v.GetString("exchange.api_secret"),
		ExchangeBaseURL:   v.GetString("exchange.base_url"),
		TelegramToken:     v.GetString("telegram.token"),
		TelegramChatID:    v.GetInt64("telegram.chat_id"),
		PostgresDSN:       v.GetString("postgres.dsn"),
		AgentsDir:         v.GetString("agents_dir"),
		DataDir:           v.GetString("data_dir"),
		CycleInterval:     v.GetDuration("cycle_interval"),
		RiskFraction:      v.GetFloat64("risk.fraction"),
		MaxDailyLossPct:   v.GetFloat64("risk.max_daily_loss_pct"),
		MaxDrawdown:       v.GetFloat64("risk.max_drawdown"),
		MaxLeverage:       v.GetInt("risk.max_leverage"),
	}, nil
}

// NewEngineSettings is the fx provider wrapping LoadSettings for injection,
// reading the path from SETTINGS_FILE (defaulting to configs/engine.yaml).
// Missing exchange credentials are an error, so the app fails to start.
func NewEngineSettings() (EngineSettings, error) {
	path := getenvDefault("SETTINGS_FILE", "configs/engine.yaml")
	s, err := LoadSettings(path)
	if err != nil {
		return EngineSettings{}, err
	}
	if s.ExchangeAPIKey == "" || s.ExchangeAPISecret == "" {
		return EngineSettings{}, errors.New("config: exchange.api_key and exchange.api_secret are required")
	}
	return s, nil
}

func getenvDefault(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
