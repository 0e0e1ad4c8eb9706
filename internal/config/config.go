package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	env "github.com/caarlos0/env/v11"
	"gopkg.in/yaml.v3"

	"github.com/hession/rollmate/internal/dice"
	"github.com/hession/rollmate/internal/logger"
)

var (
	// configDir is the configuration directory path
	// Can be set via SetConfigDir before loading config
	configDir     string
	configDirInit bool
)

// SetConfigDir sets a custom configuration directory
// Must be called before any config loading functions
func SetConfigDir(dir string) {
	configDir = dir
	configDirInit = true
}

// GetConfigDir returns the configuration directory
// Priority: 1. Manually set via SetConfigDir, 2. ./config in current directory
func GetConfigDir() string {
	if !configDirInit {
		cwd, err := os.Getwd()
		if err == nil {
			configDir = filepath.Join(cwd, "config")
		}
		configDirInit = true
	}
	return configDir
}

// Config application configuration structure
type Config struct {
	Tool   ToolConfig   `yaml:"tool"`
	Dice   DiceConfig   `yaml:"dice"`
	Log    LogConfig    `yaml:"log"`
	Model  ModelConfig  `yaml:"model"`
	Server ServerConfig `yaml:"server"`
}

// ToolConfig controls how the dice tool is registered
type ToolConfig struct {
	Name        string `yaml:"name" env:"ROLLMATE_TOOL_NAME"`
	DisplayName string `yaml:"display_name" env:"ROLLMATE_TOOL_DISPLAY_NAME"`
	Stealth     bool   `yaml:"stealth" env:"ROLLMATE_TOOL_STEALTH"`
	ToolCalling bool   `yaml:"tool_calling" env:"ROLLMATE_TOOL_CALLING"`
}

// DiceConfig formula bounds and seeding
type DiceConfig struct {
	MaxDice     int   `yaml:"max_dice" env:"ROLLMATE_DICE_MAX_DICE"`
	MaxSides    int   `yaml:"max_sides" env:"ROLLMATE_DICE_MAX_SIDES"`
	MaxModifier int   `yaml:"max_modifier" env:"ROLLMATE_DICE_MAX_MODIFIER"`
	Seed        int64 `yaml:"seed" env:"ROLLMATE_DICE_SEED"` // 0 = seed from crypto/rand
}

// LogConfig logger configuration
type LogConfig struct {
	Dir     string `yaml:"dir" env:"ROLLMATE_LOG_DIR"`
	Level   string `yaml:"level" env:"ROLLMATE_LOG_LEVEL"`
	MaxDays int    `yaml:"max_days" env:"ROLLMATE_LOG_MAX_DAYS"`
	Console bool   `yaml:"console" env:"ROLLMATE_LOG_CONSOLE"`
}

// ModelConfig LLM model configuration
type ModelConfig struct {
	APIKey      string  `yaml:"api_key" env:"LLM_API_KEY"`
	BaseURL     string  `yaml:"base_url" env:"LLM_BASE_URL"`
	Model       string  `yaml:"model" env:"LLM_MODEL"`
	Temperature float64 `yaml:"temperature" env:"LLM_TEMPERATURE"`
	MaxTokens   int     `yaml:"max_tokens" env:"LLM_MAX_TOKENS"`
	MaxRetries  int     `yaml:"max_retries" env:"LLM_MAX_RETRIES"`
}

// ServerConfig MCP server configuration
type ServerConfig struct {
	Transport string `yaml:"transport" env:"ROLLMATE_TRANSPORT"` // "stdio" | "http"
	Addr      string `yaml:"addr" env:"ROLLMATE_ADDR"`
}

// DefaultConfig returns default configuration
func DefaultConfig() *Config {
	return &Config{
		Tool: ToolConfig{
			Name:        "roll_dice_formula",
			DisplayName: "Roll Dice",
			Stealth:     true,
			ToolCalling: true,
		},
		Dice: DiceConfig{
			MaxDice:     dice.MaxDice,
			MaxSides:    dice.MaxSides,
			MaxModifier: dice.MaxModifier,
		},
		Log: LogConfig{
			Dir:     LogDir(),
			Level:   "info",
			MaxDays: 7,
		},
		Model: ModelConfig{
			BaseURL:     "https://api.deepseek.com",
			Model:       "deepseek-chat",
			Temperature: 0.7,
			MaxTokens:   1024,
			MaxRetries:  3,
		},
		Server: ServerConfig{
			Transport: "stdio",
			Addr:      "127.0.0.1:8931",
		},
	}
}

// ConfigDir returns the configuration directory path
func ConfigDir() (string, error) {
	dir := GetConfigDir()
	if dir == "" {
		return "", fmt.Errorf("failed to determine config directory")
	}
	return dir, nil
}

// LogDir returns the log directory path
func LogDir() string {
	dir := GetConfigDir()
	if dir == "" {
		return "logs"
	}
	return filepath.Join(dir, "logs")
}

// ConfigPath returns the configuration file path
func ConfigPath() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.yaml"), nil
}

// Load loads configuration from file, creating a default file on first
// run, then applies environment overrides.
func Load() (*Config, error) {
	configPath, err := ConfigPath()
	if err != nil {
		return nil, err
	}

	cfg := DefaultConfig()

	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		if err := Save(cfg); err != nil {
			return nil, fmt.Errorf("failed to create default config: %w", err)
		}
	} else {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse config file: %w", err)
		}
	}

	if err := ApplyEnv(cfg); err != nil {
		return nil, err
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// ApplyEnv overlays environment variables onto cfg. Unset variables leave
// the file values untouched.
func ApplyEnv(cfg *Config) error {
	if err := env.Parse(cfg); err != nil {
		return fmt.Errorf("failed to parse environment: %w", err)
	}
	return nil
}

// Save saves configuration to file
func Save(cfg *Config) error {
	configPath, err := ConfigPath()
	if err != nil {
		return err
	}

	dir := filepath.Dir(configPath)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("failed to serialize config: %w", err)
	}

	content := "# rollmate configuration file\n# Environment variables (ROLLMATE_*, LLM_*) override these values.\n\n" + string(data)

	if err := os.WriteFile(configPath, []byte(content), 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Dice.MaxDice <= 0 || c.Dice.MaxDice > dice.MaxDice {
		return fmt.Errorf("config error: dice.max_dice must be between 1 and %d", dice.MaxDice)
	}
	if c.Dice.MaxSides < dice.MinSides || c.Dice.MaxSides > dice.MaxSides {
		return fmt.Errorf("config error: dice.max_sides must be between %d and %d", dice.MinSides, dice.MaxSides)
	}
	if c.Dice.MaxModifier < 0 || c.Dice.MaxModifier > dice.MaxModifier {
		return fmt.Errorf("config error: dice.max_modifier must be between 0 and %d", dice.MaxModifier)
	}

	if _, err := logger.ParseLevel(c.Log.Level); err != nil {
		return fmt.Errorf("config error: log.level: %w", err)
	}
	if c.Log.MaxDays <= 0 {
		return fmt.Errorf("config error: log.max_days must be greater than 0")
	}

	if c.Model.Temperature < 0 || c.Model.Temperature > 2 {
		return fmt.Errorf("config error: model.temperature must be between 0 and 2")
	}
	if c.Model.MaxTokens <= 0 {
		return fmt.Errorf("config error: model.max_tokens must be greater than 0")
	}
	if c.Model.MaxRetries < 0 {
		return fmt.Errorf("config error: model.max_retries cannot be negative")
	}

	switch strings.ToLower(strings.TrimSpace(c.Server.Transport)) {
	case "stdio":
	case "http":
		if strings.TrimSpace(c.Server.Addr) == "" {
			return fmt.Errorf("config error: server.addr cannot be empty for http transport")
		}
	default:
		return fmt.Errorf("config error: server.transport must be stdio or http, got %q", c.Server.Transport)
	}

	return nil
}

// DiceLimits returns the configured formula bounds.
func (c *Config) DiceLimits() dice.Limits {
	return dice.Limits{
		MaxDice:     c.Dice.MaxDice,
		MaxSides:    c.Dice.MaxSides,
		MaxModifier: c.Dice.MaxModifier,
	}
}

// LoggerConfig converts the log section for logger.NewLogger.
func (c *Config) LoggerConfig() logger.Config {
	level, _ := logger.ParseLevel(c.Log.Level)
	return logger.Config{
		LogDir:     c.Log.Dir,
		Level:      level,
		MaxDays:    c.Log.MaxDays,
		ConsoleOut: c.Log.Console,
	}
}

// IsAPIKeyConfigured checks if API key is configured
func (c *Config) IsAPIKeyConfigured() bool {
	return c.Model.APIKey != ""
}

// String returns string representation of config (hides sensitive info)
func (c *Config) String() string {
	return fmt.Sprintf(`rollmate configuration:
  Tool:
    Name: %s
    Display Name: %s
    Stealth: %v
    Tool Calling: %v
  Dice:
    Max Dice: %d
    Max Sides: %d
    Max Modifier: %d
    Seed: %d
  Log:
    Dir: %s
    Level: %s
    Max Days: %d
    Console: %v
  Model:
    API Key: %s
    Base URL: %s
    Model: %s
    Temperature: %.1f
    Max Tokens: %d
    Max Retries: %d
  Server:
    Transport: %s
    Addr: %s`,
		c.Tool.Name,
		c.Tool.DisplayName,
		c.Tool.Stealth,
		c.Tool.ToolCalling,
		c.Dice.MaxDice,
		c.Dice.MaxSides,
		c.Dice.MaxModifier,
		c.Dice.Seed,
		c.Log.Dir,
		c.Log.Level,
		c.Log.MaxDays,
		c.Log.Console,
		redactAPIKey(c.Model.APIKey),
		c.Model.BaseURL,
		c.Model.Model,
		c.Model.Temperature,
		c.Model.MaxTokens,
		c.Model.MaxRetries,
		c.Server.Transport,
		c.Server.Addr,
	)
}

func redactAPIKey(value string) string {
	if value == "" {
		return "(not configured)"
	}
	if len(value) > 8 {
		return value[:8] + "..."
	}
	return "***"
}
