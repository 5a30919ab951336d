package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"

	"github.com/dkeye/babel/internal/domain"
)

type GatewayConfig struct {
	BaseURL            string        `mapstructure:"base_url"`
	APIKey             string        `mapstructure:"api_key"`
	TranscriptionModel string        `mapstructure:"transcription_model"`
	TranslationModel   string        `mapstructure:"translation_model"`
	Timeout            time.Duration `mapstructure:"timeout"`
}

type PipelineConfig struct {
	Workers int `mapstructure:"workers"`
}

type RateLimitConfig struct {
	RPS   float64 `mapstructure:"rps"`
	Burst int     `mapstructure:"burst"`
}

type JournalConfig struct {
	// Path empty keeps the journal in memory.
	Path       string `mapstructure:"path"`
	MaxPerRoom int    `mapstructure:"max_per_room"`
}

type RTCConfig struct {
	Enabled  bool     `mapstructure:"enabled"`
	STUNURLs []string `mapstructure:"stun_urls"`
}

type Config struct {
	Mode            string        `mapstructure:"mode"`
	Port            int           `mapstructure:"port"`
	StaticPath      string        `mapstructure:"static_path"`
	Secret          string        `mapstructure:"secret"`
	LogLevel        string        `mapstructure:"log_level"`
	ReadLimit       int64         `mapstructure:"read_limit"`
	PingPeriod      time.Duration `mapstructure:"ping_period"`
	SendBuffer      int           `mapstructure:"send_buffer"`
	SlowReader      string        `mapstructure:"slow_reader"`
	Languages       []string      `mapstructure:"languages"`
	DefaultLanguage string        `mapstructure:"default_language"`

	Gateway   GatewayConfig   `mapstructure:"gateway"`
	Pipeline  PipelineConfig  `mapstructure:"pipeline"`
	RateLimit RateLimitConfig `mapstructure:"ratelimit"`
	Journal   JournalConfig   `mapstructure:"journal"`
	RTC       RTCConfig       `mapstructure:"rtc"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("mode", "release")
	v.SetDefault("port", 8080)
	v.SetDefault("static_path", "./web")
	v.SetDefault("secret", "babel-dev-secret")
	v.SetDefault("log_level", "info")
	// Base64 audio of a long utterance is well above the old signalling limit.
	v.SetDefault("read_limit", 16<<20)
	v.SetDefault("ping_period", "54s")
	v.SetDefault("send_buffer", 64)
	v.SetDefault("slow_reader", "drop")
	v.SetDefault("languages", domain.DefaultLanguages)
	v.SetDefault("default_language", "en")

	v.SetDefault("gateway.base_url", "https://api.groq.com/openai/v1")
	v.SetDefault("gateway.api_key", "")
	v.SetDefault("gateway.transcription_model", "whisper-large-v3")
	v.SetDefault("gateway.translation_model", "llama-3.1-8b-instant")
	v.SetDefault("gateway.timeout", "30s")

	v.SetDefault("pipeline.workers", 4)

	v.SetDefault("ratelimit.rps", 20)
	v.SetDefault("ratelimit.burst", 40)

	v.SetDefault("journal.path", "")
	v.SetDefault("journal.max_per_room", 200)

	v.SetDefault("rtc.enabled", false)
	v.SetDefault("rtc.stun_urls", []string{"stun:stun.l.google.com:19302"})
}

// Load reads config/config.<CONFIG_ENV>.yaml. BABEL_* variables override it,
// e.g. BABEL_GATEWAY_API_KEY.
func Load() (*Config, error) {
	env := os.Getenv("CONFIG_ENV")
	if env == "" {
		env = "dev"
	}
	return LoadFile(fmt.Sprintf("config/config.%s.yaml", env))
}

func LoadFile(fileName string) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetConfigFile(fileName)
	v.AddConfigPath(".")
	v.AddConfigPath("./config")

	v.SetEnvPrefix("BABEL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	if err := v.ReadInConfig(); err != nil {
		log.Warn().Str("module", "config").Str("file", fileName).Msg("config file not found, using defaults")
	} else {
		log.Info().Str("module", "config").Str("file", fileName).Msg("loaded config")
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	log.Info().Str("module", "config").
		Str("mode", cfg.Mode).
		Int("port", cfg.Port).
		Str("static", cfg.StaticPath).
		Bool("rtc", cfg.RTC.Enabled).
		Bool("offline_gateway", cfg.Gateway.APIKey == "").
		Msg("config ready")
	return &cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if c.Port <= 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.Pipeline.Workers <= 0 {
		errs = append(errs, errors.New("pipeline.workers must be positive"))
	}
	if c.Gateway.Timeout <= 0 {
		errs = append(errs, errors.New("gateway.timeout must be positive"))
	}
	if c.SendBuffer <= 0 {
		errs = append(errs, errors.New("send_buffer must be positive"))
	}
	if c.ReadLimit <= 0 {
		errs = append(errs, errors.New("read_limit must be positive"))
	}
	if c.SlowReader != "drop" && c.SlowReader != "kick" {
		errs = append(errs, fmt.Errorf("slow_reader must be drop or kick, got %q", c.SlowReader))
	}
	catalog, err := domain.NewCatalog(c.Languages)
	if err != nil {
		errs = append(errs, fmt.Errorf("languages: %w", err))
	} else if _, err := catalog.Parse(c.DefaultLanguage); err != nil {
		errs = append(errs, fmt.Errorf("default_language: %w", err))
	}
	return errors.Join(errs...)
}
