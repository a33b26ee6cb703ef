package internal

import (
	"fmt"
	"log/slog"
	"time"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/dastan/internal/llm"
	"github.com/starford/dastan/internal/prompt"
	"github.com/starford/dastan/internal/reader"
)

// Auth modes.
const (
	AuthModeDisabled = "disabled"
	AuthModeToken    = "token"
)

// Config represents the application configuration.
type Config struct {
	App      ApplicationConfig `yaml:"app"`
	Provider ProviderConfig    `yaml:"provider"`
	Tools    ToolsConfig       `yaml:"tools"`
	Fixtures FixturesConfig    `yaml:"fixtures"`
	SQLite   SQLiteConfig      `yaml:"sqlite"`
	Auth     AuthConfig        `yaml:"auth"`
}

// Validate validates the configuration.
func (c *Config) Validate() error {
	if err := c.App.Validate(); err != nil {
		return err
	}
	if err := c.Provider.Validate(); err != nil {
		return fmt.Errorf("provider: %w", err)
	}
	if err := c.Tools.Validate(); err != nil {
		return fmt.Errorf("tools: %w", err)
	}
	if err := c.SQLite.Validate(); err != nil {
		return err
	}
	return c.Auth.Validate()
}

// ApplicationConfig holds application-level configuration.
type ApplicationConfig struct {
	LogLevel slog.Level `yaml:"log_level"`
	HTTP     HTTPConfig `yaml:"http"`
}

// Validate validates the application configuration.
func (c *ApplicationConfig) Validate() error {
	return c.HTTP.Validate()
}

// HTTPConfig holds HTTP server configuration.
type HTTPConfig struct {
	Port int `yaml:"port" env:"HTTP_PORT"`
}

// Address returns HTTP server address.
func (c *HTTPConfig) Address() string {
	return fmt.Sprintf(":%d", c.Port)
}

// Validate validates the HTTP configuration.
func (c *HTTPConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Port, validation.Required, validation.Min(1), validation.Max(65535)),
	)
}

// ProviderConfig describes the model endpoint. The key itself is never stored in
// the config file; APIKeyEnv names the variable that holds it.
type ProviderConfig struct {
	Endpoint       string        `yaml:"endpoint" env:"PROVIDER_ENDPOINT"`
	APIKeyEnv      string        `yaml:"api_key_env" env:"PROVIDER_API_KEY_ENV"`
	Timeout        time.Duration `yaml:"timeout" env:"PROVIDER_TIMEOUT"`
	MaxRetries     int           `yaml:"max_retries" env:"PROVIDER_MAX_RETRIES"`
	InitialBackoff time.Duration `yaml:"initial_backoff" env:"PROVIDER_INITIAL_BACKOFF"`
	MaxBackoff     time.Duration `yaml:"max_backoff" env:"PROVIDER_MAX_BACKOFF"`
}

// Validate validates the provider configuration.
func (c *ProviderConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Endpoint, validation.Required),
		validation.Field(&c.APIKeyEnv, validation.Required),
		validation.Field(&c.Timeout, validation.Required, validation.Min(time.Second)),
		validation.Field(&c.MaxRetries, validation.Min(0), validation.Max(10)),
		validation.Field(&c.InitialBackoff, validation.Min(time.Duration(0))),
		validation.Field(&c.MaxBackoff, validation.Min(c.InitialBackoff)),
	)
}

// Client returns the llm client configuration with the key read via lookup.
func (c *ProviderConfig) Client(lookup func(string) string) llm.Config {
	return llm.Config{
		Endpoint:       c.Endpoint,
		APIKey:         lookup(c.APIKeyEnv),
		Timeout:        c.Timeout,
		MaxRetries:     c.MaxRetries,
		InitialBackoff: c.InitialBackoff,
		MaxBackoff:     c.MaxBackoff,
	}
}

// ToolConfig selects how one tool is served.
type ToolConfig struct {
	Mode         string        `yaml:"mode" env:"MODE"`
	Model        string        `yaml:"model" env:"MODEL"`
	FixtureDelay time.Duration `yaml:"fixture_delay" env:"FIXTURE_DELAY"`
}

// Validate validates the tool configuration.
func (c *ToolConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(string(reader.ModeLive), string(reader.ModeFixture))),
		validation.Field(&c.Model, validation.When(c.Mode == string(reader.ModeLive), validation.Required)),
		validation.Field(&c.FixtureDelay, validation.Min(time.Duration(0)), validation.Max(time.Minute)),
	)
}

// ToolsConfig holds one ToolConfig per reading tool.
type ToolsConfig struct {
	Lookup     ToolConfig `yaml:"lookup" env-prefix:"TOOL_LOOKUP_"`
	Paraphrase ToolConfig `yaml:"paraphrase" env-prefix:"TOOL_PARAPHRASE_"`
	Summarize  ToolConfig `yaml:"summarize" env-prefix:"TOOL_SUMMARIZE_"`
	Analyze    ToolConfig `yaml:"analyze" env-prefix:"TOOL_ANALYZE_"`
	Questions  ToolConfig `yaml:"questions" env-prefix:"TOOL_QUESTIONS_"`
	Timeline   ToolConfig `yaml:"timeline" env-prefix:"TOOL_TIMELINE_"`
}

func (c *ToolsConfig) byTask() map[prompt.Task]*ToolConfig {
	return map[prompt.Task]*ToolConfig{
		prompt.TaskLookup:     &c.Lookup,
		prompt.TaskParaphrase: &c.Paraphrase,
		prompt.TaskSummarize:  &c.Summarize,
		prompt.TaskAnalyze:    &c.Analyze,
		prompt.TaskQuestions:  &c.Questions,
		prompt.TaskTimeline:   &c.Timeline,
	}
}

// Validate validates every tool.
func (c *ToolsConfig) Validate() error {
	for _, task := range prompt.Tasks {
		if err := c.byTask()[task].Validate(); err != nil {
			return fmt.Errorf("%s: %w", task, err)
		}
	}
	return nil
}

// Reader converts the section into the reader's per-task configuration.
func (c *ToolsConfig) Reader() map[prompt.Task]reader.ToolConfig {
	out := make(map[prompt.Task]reader.ToolConfig, len(prompt.Tasks))
	for task, tc := range c.byTask() {
		out[task] = reader.ToolConfig{
			Mode:         reader.Mode(tc.Mode),
			Model:        tc.Model,
			FixtureDelay: tc.FixtureDelay,
		}
	}
	return out
}

// AnyLive reports whether at least one tool calls the provider.
func (c *ToolsConfig) AnyLive() bool {
	for _, tc := range c.byTask() {
		if tc.Mode == string(reader.ModeLive) {
			return true
		}
	}
	return false
}

// FixturesConfig points at an optional directory of per-tool fixture overrides.
type FixturesConfig struct {
	Dir   string `yaml:"dir" env:"FIXTURES_DIR"`
	Watch bool   `yaml:"watch" env:"FIXTURES_WATCH"`
}

// SQLiteConfig holds SQLite database configuration.
type SQLiteConfig struct {
	Path string `yaml:"path" env:"SQLITE_PATH"`
}

// Validate validates the SQLite configuration.
func (c *SQLiteConfig) Validate() error {
	return validation.ValidateStruct(c,
		validation.Field(&c.Path, validation.Required),
	)
}

// AuthConfig holds authentication configuration.
//
// Mode controls how authentication is enforced:
//   - "disabled" (default): no authentication required, suitable for local dev.
//   - "token": Bearer token authentication; Token must be non-empty.
type AuthConfig struct {
	Mode  string `yaml:"mode" env:"AUTH_MODE"`
	Token string `yaml:"token" env:"AUTH_TOKEN"`
}

// Validate validates the auth configuration.
func (c *AuthConfig) Validate() error {
	if c.Mode == "" {
		c.Mode = AuthModeDisabled
	}
	if err := validation.ValidateStruct(c,
		validation.Field(&c.Mode, validation.Required, validation.In(AuthModeDisabled, AuthModeToken)),
	); err != nil {
		return err
	}
	if c.Mode == AuthModeToken && c.Token == "" {
		return fmt.Errorf("auth: mode is %q but token is empty", AuthModeToken)
	}
	return nil
}

// AuthEnabled returns true when authentication is active.
func (c *AuthConfig) AuthEnabled() bool {
	return c.Mode == AuthModeToken
}

// NewDefaultConfig returns a new Config with sensible default values.
func NewDefaultConfig() *Config {
	return &Config{
		App: ApplicationConfig{
			LogLevel: slog.LevelInfo,
			HTTP: HTTPConfig{
				Port: 8080,
			},
		},
		Provider: ProviderConfig{
			Endpoint:       llm.DefaultEndpoint,
			APIKeyEnv:      "OPENAI_API_KEY",
			Timeout:        60 * time.Second,
			MaxRetries:     2,
			InitialBackoff: 500 * time.Millisecond,
			MaxBackoff:     5 * time.Second,
		},
		Tools: ToolsConfig{
			Lookup:     ToolConfig{Mode: string(reader.ModeLive), Model: "o4-mini", FixtureDelay: time.Second},
			Paraphrase: ToolConfig{Mode: string(reader.ModeFixture), Model: "o4-mini", FixtureDelay: 500 * time.Millisecond},
			Summarize:  ToolConfig{Mode: string(reader.ModeLive), Model: "o3-mini", FixtureDelay: time.Second},
			Analyze:    ToolConfig{Mode: string(reader.ModeLive), Model: "o3", FixtureDelay: time.Second},
			Questions:  ToolConfig{Mode: string(reader.ModeLive), Model: "o3", FixtureDelay: time.Second},
			Timeline:   ToolConfig{Mode: string(reader.ModeFixture), Model: "o4-mini", FixtureDelay: time.Second},
		},
		Fixtures: FixturesConfig{
			Watch: true,
		},
		SQLite: SQLiteConfig{
			Path: "./dastan.db",
		},
		Auth: AuthConfig{
			Mode: AuthModeDisabled,
		},
	}
}
