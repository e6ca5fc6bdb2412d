package server

import (
	"fmt"
	"os"
	"time"

	"github.com/hashicorp/hcl/v2/gohcl"
	"github.com/hashicorp/hcl/v2/hclparse"

	"github.com/quizbuzz/quizbuzz/internal/roomcode"
)

// Config represents the complete server configuration
type Config struct {
	Server    ServerSettings    `hcl:"server,block"`
	Game      GameSettings      `hcl:"game,block"`
	Generator GeneratorSettings `hcl:"generator,block"`
}

// ServerSettings contains server-level configuration
type ServerSettings struct {
	Address        string `hcl:"address,optional"`
	Port           int    `hcl:"port,optional"`
	LogLevel       string `hcl:"log_level,optional"`
	RoomCodeLength int    `hcl:"room_code_length,optional"`
}

// GameSettings contains the countdown durations driving a round
type GameSettings struct {
	PickDelaySeconds    int `hcl:"pick_delay_seconds,optional"`
	BuzzWindowSeconds   int `hcl:"buzz_window_seconds,optional"`
	AnswerWindowSeconds int `hcl:"answer_window_seconds,optional"`
}

// GeneratorSettings selects and configures the board content backend
type GeneratorSettings struct {
	Kind      string `hcl:"kind,optional"` // "bank" or "openai"
	Model     string `hcl:"model,optional"`
	BaseURL   string `hcl:"base_url,optional"`
	APIKeyEnv string `hcl:"api_key_env,optional"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Server: ServerSettings{
			Address:        "localhost",
			Port:           8080,
			LogLevel:       "info",
			RoomCodeLength: roomcode.DefaultLength,
		},
		Game: GameSettings{
			PickDelaySeconds:    2,
			BuzzWindowSeconds:   10,
			AnswerWindowSeconds: 6,
		},
		Generator: GeneratorSettings{
			Kind:      "bank",
			APIKeyEnv: "OPENAI_API_KEY",
		},
	}
}

// LoadConfig loads configuration from an HCL file, falling back to defaults
// when the file does not exist.
func LoadConfig(filename string) (*Config, error) {
	if _, err := os.Stat(filename); os.IsNotExist(err) {
		return DefaultConfig(), nil
	}

	parser := hclparse.NewParser()
	file, diags := parser.ParseHCLFile(filename)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to parse HCL file: %s", diags.Error())
	}

	var config Config
	diags = gohcl.DecodeBody(file.Body, nil, &config)
	if diags.HasErrors() {
		return nil, fmt.Errorf("failed to decode HCL: %s", diags.Error())
	}

	defaults := DefaultConfig()
	if config.Server.Address == "" {
		config.Server.Address = defaults.Server.Address
	}
	if config.Server.Port == 0 {
		config.Server.Port = defaults.Server.Port
	}
	if config.Server.LogLevel == "" {
		config.Server.LogLevel = defaults.Server.LogLevel
	}
	if config.Server.RoomCodeLength == 0 {
		config.Server.RoomCodeLength = defaults.Server.RoomCodeLength
	}
	if config.Game.PickDelaySeconds == 0 {
		config.Game.PickDelaySeconds = defaults.Game.PickDelaySeconds
	}
	if config.Game.BuzzWindowSeconds == 0 {
		config.Game.BuzzWindowSeconds = defaults.Game.BuzzWindowSeconds
	}
	if config.Game.AnswerWindowSeconds == 0 {
		config.Game.AnswerWindowSeconds = defaults.Game.AnswerWindowSeconds
	}
	if config.Generator.Kind == "" {
		config.Generator.Kind = defaults.Generator.Kind
	}
	if config.Generator.APIKeyEnv == "" {
		config.Generator.APIKeyEnv = defaults.Generator.APIKeyEnv
	}

	return &config, nil
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port < 1 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid port: %d", c.Server.Port)
	}
	if c.Server.RoomCodeLength < 4 || c.Server.RoomCodeLength > 12 {
		return fmt.Errorf("room code length must be between 4 and 12, got %d", c.Server.RoomCodeLength)
	}
	if c.Game.PickDelaySeconds <= 0 {
		return fmt.Errorf("pick delay must be positive")
	}
	if c.Game.BuzzWindowSeconds <= 0 {
		return fmt.Errorf("buzz window must be positive")
	}
	if c.Game.AnswerWindowSeconds <= 0 {
		return fmt.Errorf("answer window must be positive")
	}
	switch c.Generator.Kind {
	case "bank", "openai":
	default:
		return fmt.Errorf("invalid generator kind: %s", c.Generator.Kind)
	}
	return nil
}

// ListenAddress returns the full listen address
func (c *Config) ListenAddress() string {
	return fmt.Sprintf("%s:%d", c.Server.Address, c.Server.Port)
}

// Timings converts the configured durations for the orchestrator
func (c *Config) Timings() Timings {
	return Timings{
		PickDelay:    time.Duration(c.Game.PickDelaySeconds) * time.Second,
		BuzzWindow:   time.Duration(c.Game.BuzzWindowSeconds) * time.Second,
		AnswerWindow: time.Duration(c.Game.AnswerWindowSeconds) * time.Second,
	}
}
