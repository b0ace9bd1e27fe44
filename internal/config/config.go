package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type Config struct {
	BaseURL string        `mapstructure:"base_url"`
	StateDB string        `mapstructure:"state_db"`
	Timeout time.Duration `mapstructure:"timeout"`
	Server  struct {
		Addr           string   `mapstructure:"addr"`
		DB             string   `mapstructure:"db"`
		UploadDir      string   `mapstructure:"upload_dir"`
		LoanDays       int      `mapstructure:"loan_days"`
		AllowedOrigins []string `mapstructure:"allowed_origins"`
	} `mapstructure:"server"`
}

// LoanPeriod is the server's loan length.
func (c Config) LoanPeriod() time.Duration {
	return time.Duration(c.Server.LoanDays) * 24 * time.Hour
}

func home() string {
	if h, err := os.UserHomeDir(); err == nil {
		return h
	}
	return "."
}

// Load reads config.yaml (cwd or ~/.library), an optional .env file and
// LIBRARY_* environment overrides, in increasing precedence.
func Load() (Config, error) {
	_ = godotenv.Load()

	v := viper.New()
	v.SetDefault("base_url", "http://127.0.0.1:5000")
	v.SetDefault("state_db", filepath.Join(home(), ".library", "state.db"))
	v.SetDefault("timeout", 15*time.Second)
	v.SetDefault("server.addr", "127.0.0.1:5000")
	v.SetDefault("server.db", "library.db")
	v.SetDefault("server.upload_dir", "uploads")
	v.SetDefault("server.loan_days", 14)
	v.SetDefault("server.allowed_origins", []string{"http://localhost:3000", "http://127.0.0.1:3000", "http://localhost:5173"})

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	v.AddConfigPath(filepath.Join(home(), ".library"))
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	}

	v.SetEnvPrefix("LIBRARY")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// shorter names for the server keys
	_ = v.BindEnv("server.addr", "LIBRARY_SERVER_ADDR")
	_ = v.BindEnv("server.db", "LIBRARY_SERVER_DB")
	_ = v.BindEnv("server.upload_dir", "LIBRARY_UPLOAD_DIR")
	_ = v.BindEnv("server.loan_days", "LIBRARY_LOAN_DAYS")
	_ = v.BindEnv("server.allowed_origins", "LIBRARY_ALLOWED_ORIGINS")

	var c Config
	if err := v.Unmarshal(&c); err != nil {
		return Config{}, fmt.Errorf("config: %w", err)
	}
	if c.BaseURL == "" {
		return Config{}, fmt.Errorf("config: base_url/LIBRARY_BASE_URL required")
	}
	if c.Server.LoanDays <= 0 {
		return Config{}, fmt.Errorf("config: loan_days must be positive, got %d", c.Server.LoanDays)
	}
	return c, nil
}
