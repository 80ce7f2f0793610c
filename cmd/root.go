package cmd

import (
	"errors"
	"io/fs"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/resume-agent/internal/auth"
	"github.com/spigell/resume-agent/internal/evaluation"
	"github.com/spigell/resume-agent/internal/interview"
	"github.com/spigell/resume-agent/internal/server"
	"github.com/spigell/resume-agent/internal/storage"
	"github.com/spigell/resume-agent/internal/store"
)

const (
	app       = "resume-agent"
	envPrefix = "RESUME_AGENT"
)

type Config struct {
	Server     server.Config    `mapstructure:"server"`
	Interview  InterviewConfig  `mapstructure:"interview"`
	Evaluation EvaluationConfig `mapstructure:"evaluation"`
	AI         AIConfig         `mapstructure:"ai"`
	Database   store.Config     `mapstructure:"database"`
	Storage    StorageConfig    `mapstructure:"storage"`
	Auth       AuthConfig       `mapstructure:"auth"`
	Payments   PaymentsConfig   `mapstructure:"payments"`
	Report     ReportConfig     `mapstructure:"report"`
}

type InterviewConfig struct {
	// QuestionSource is "ai" or "bank".
	QuestionSource string           `mapstructure:"question-source"`
	Registry       interview.Config `mapstructure:"registry"`
}

type EvaluationConfig struct {
	evaluation.Config `mapstructure:",squash"`
	// PromptsFile overrides entries of the built-in prompt catalog.
	PromptsFile string `mapstructure:"prompts-file"`
}

type AIConfig struct {
	// Provider is "gemini", "vertexai" or "disabled".
	Provider string        `mapstructure:"provider"`
	Gemini   *GeminiConfig `mapstructure:"gemini"`
	Vertex   *VertexConfig `mapstructure:"vertex"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxAttempts  int    `mapstructure:"max-attempts"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

type VertexConfig struct {
	Project  string `mapstructure:"project"`
	Location string `mapstructure:"location"`
	Model    string `mapstructure:"model"`
}

type StorageConfig struct {
	storage.Config `mapstructure:",squash"`
	SecretKeyFile  string `mapstructure:"secret-key-file"`
}

type AuthConfig struct {
	Secret     string           `mapstructure:"secret"`
	SecretFile string           `mapstructure:"secret-file"`
	AccessTTL  time.Duration    `mapstructure:"access-ttl"`
	RefreshTTL time.Duration    `mapstructure:"refresh-ttl"`
	OAuth      auth.OAuthConfig `mapstructure:"oauth"`
}

type PaymentsConfig struct {
	APIKey            string `mapstructure:"api-key"`
	APIKeyFile        string `mapstructure:"api-key-file"`
	WebhookSecret     string `mapstructure:"webhook-secret"`
	WebhookSecretFile string `mapstructure:"webhook-secret-file"`
}

type ReportConfig struct {
	SampleSize int `mapstructure:"sample-size"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "resume-agent is an API and cli for resume scoring and mock interviews",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is resume-agent.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))

	setDefaults(viper.GetViper())
}

// setDefaults registers every key so environment variables such as
// RESUME_AGENT_AI_GEMINI_API_KEY are seen by Unmarshal.
func setDefaults(v *viper.Viper) {
	defaults := map[string]any{
		"server.listen":                    ":8000",
		"server.read-timeout":              30 * time.Second,
		"server.write-timeout":             60 * time.Second,
		"server.shutdown-timeout":          15 * time.Second,
		"server.rate-limit":                10.0,
		"server.rate-burst":                20,
		"server.cors-origins":              []string{"http://localhost:3000"},
		"server.max-upload-bytes":          10 << 20,
		"server.presign-ttl":               time.Hour,
		"server.frontend-url":              "http://localhost:3000",
		"interview.question-source":        interview.SourceAI,
		"interview.registry.ttl":           2 * time.Hour,
		"interview.registry.reap-interval": time.Minute,
		"interview.registry.max-sessions":  10000,
		"evaluation.timeout":               evaluation.DefaultTimeout,
		"evaluation.max-input-runes":       12000,
		"evaluation.prompts-file":          "",
		"ai.provider":                      "gemini",
		"ai.gemini.api-key":                "",
		"ai.gemini.api-key-file":           "",
		"ai.gemini.model":                  "gemini-2.5-flash",
		"ai.gemini.max-attempts":           3,
		"ai.gemini.max-log-length":         200,
		"ai.vertex.project":                "",
		"ai.vertex.location":               "us-central1",
		"ai.vertex.model":                  "",
		"database.driver":                  store.DriverSQLite,
		"database.dsn":                     "",
		"storage.endpoint":                 "",
		"storage.access-key":               "",
		"storage.secret-key":               "",
		"storage.secret-key-file":          "",
		"storage.bucket":                   "resumes",
		"storage.region":                   "",
		"storage.secure":                   false,
		"auth.secret":                      "",
		"auth.secret-file":                 "",
		"auth.access-ttl":                  60 * time.Minute,
		"auth.refresh-ttl":                 7 * 24 * time.Hour,
		"auth.oauth.redirect-base":         "http://localhost:8000",
		"auth.oauth.github.client-id":      "",
		"auth.oauth.github.client-secret":  "",
		"auth.oauth.google.client-id":      "",
		"auth.oauth.google.client-secret":  "",
		"payments.api-key":                 "",
		"payments.api-key-file":            "",
		"payments.webhook-secret":          "",
		"payments.webhook-secret-file":     "",
		"report.sample-size":               1000,
	}
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
}

func initConfig() {
	// A missing .env is normal outside local development.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Printf("loading .env: %v", err)
	}

	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	viper.AutomaticEnv()

	if cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.AddConfigPath(".")
		viper.SetConfigName(app)
		viper.SetConfigType("yaml")
	}

	// We can't proceed if the config file parsed with error. Without an
	// explicit --config a missing file means defaults and environment only.
	if err := viper.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			log.Fatal(err)
		}
	}
}

func getConfig() (*Config, error) {
	var config *Config
	err := viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	return config, nil
}
