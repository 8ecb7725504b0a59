package cmd

import (
	"errors"
	"log"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/spigell/interviewpilot/internal/adapter"
	"github.com/spigell/interviewpilot/internal/engine"
	"github.com/spigell/interviewpilot/internal/server"
)

const (
	app       = "interviewpilot"
	envPrefix = "INTERVIEWPILOT"
)

type Config struct {
	HTTP      server.Config   `mapstructure:"http"`
	Database  DatabaseConfig  `mapstructure:"database"`
	Redis     RedisConfig     `mapstructure:"redis"`
	Cache     CacheConfig     `mapstructure:"cache"`
	Auth      AuthConfig      `mapstructure:"auth"`
	Resumes   ResumesConfig   `mapstructure:"resumes"`
	Interview InterviewConfig `mapstructure:"interview"`
	AI        AIConfig        `mapstructure:"ai"`
}

type DatabaseConfig struct {
	DSN string `mapstructure:"dsn"`
}

type RedisConfig struct {
	URL    string `mapstructure:"url"`
	Prefix string `mapstructure:"prefix"`
}

type CacheConfig struct {
	QuestionsTTL    time.Duration `mapstructure:"questions-ttl"`
	FeedbackTTL     time.Duration `mapstructure:"feedback-ttl"`
	LocalTTL        time.Duration `mapstructure:"local-ttl"`
	CleanupInterval time.Duration `mapstructure:"cleanup-interval"`
}

type AuthConfig struct {
	Secret     string        `mapstructure:"secret"`
	SecretFile string        `mapstructure:"secret-file"`
	Issuer     string        `mapstructure:"issuer"`
	TokenTTL   time.Duration `mapstructure:"token-ttl"`
}

type ResumesConfig struct {
	// Backend is one of sql, http or mongo.
	Backend    string      `mapstructure:"backend"`
	DSN        string      `mapstructure:"dsn"`
	GatewayURL string      `mapstructure:"gateway-url"`
	Token      string      `mapstructure:"token"`
	TokenFile  string      `mapstructure:"token-file"`
	UserAgent  string      `mapstructure:"user-agent"`
	Mongo      MongoConfig `mapstructure:"mongo"`
}

type MongoConfig struct {
	URI        string `mapstructure:"uri"`
	Database   string `mapstructure:"database"`
	Collection string `mapstructure:"collection"`
}

type InterviewConfig struct {
	TopicCount    int           `mapstructure:"topic-count"`
	MaxTopicCount int           `mapstructure:"max-topic-count"`
	MaxDuration   time.Duration `mapstructure:"max-duration"`
	SweepInterval time.Duration `mapstructure:"sweep-interval"`
}

type AIConfig struct {
	Provider      string        `mapstructure:"provider"`
	Timeout       time.Duration `mapstructure:"timeout"`
	MaxRetries    int           `mapstructure:"max-retries"`
	BaseDelay     time.Duration `mapstructure:"base-delay"`
	MaxDelay      time.Duration `mapstructure:"max-delay"`
	RatePerSecond float64       `mapstructure:"rate-per-second"`
	Burst         int           `mapstructure:"burst"`
	Gemini        GeminiConfig  `mapstructure:"gemini"`
}

type GeminiConfig struct {
	APIKey       string `mapstructure:"api-key"`
	APIKeyFile   string `mapstructure:"api-key-file"`
	Model        string `mapstructure:"model"`
	MaxLogLength int    `mapstructure:"max-log-length"`
}

var (
	// Used for flags.
	cfgFile string

	rootCmd = &cobra.Command{
		Use:   app,
		Short: "interviewpilot runs mock interviews generated from resumes and grades the answers",
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringVar(&cfgFile, "config", "", "a config file (default is interviewpilot.yaml in current directory)")
	rootCmd.PersistentFlags().BoolP("debug", "d", false, "verbose/debug output")
	rootCmd.PersistentFlags().BoolP("json", "j", false, "json format for logging")

	viper.BindPFlag("debug", rootCmd.PersistentFlags().Lookup("debug"))
	viper.BindPFlag("json", rootCmd.PersistentFlags().Lookup("json"))
}

func setDefaults() {
	httpDefaults := server.DefaultConfig()
	engineDefaults := engine.DefaultConfig()
	policy := adapter.DefaultPolicy()

	viper.SetDefault("http.listen", httpDefaults.Listen)
	viper.SetDefault("http.rate-limit", httpDefaults.RateLimit)
	viper.SetDefault("http.rate-window", httpDefaults.RateWindow)
	viper.SetDefault("http.health-timeout", httpDefaults.HealthTimeout)
	viper.SetDefault("http.body-limit", httpDefaults.BodyLimit)

	viper.SetDefault("database.dsn", "sqlite://"+app+".db")

	viper.SetDefault("redis.url", "")
	viper.SetDefault("redis.prefix", app+":")

	viper.SetDefault("cache.questions-ttl", engineDefaults.QuestionsTTL)
	viper.SetDefault("cache.feedback-ttl", engineDefaults.FeedbackTTL)
	viper.SetDefault("cache.local-ttl", 10*time.Minute)
	viper.SetDefault("cache.cleanup-interval", 5*time.Minute)

	viper.SetDefault("auth.secret", "")
	viper.SetDefault("auth.secret-file", "")
	viper.SetDefault("auth.issuer", "")
	viper.SetDefault("auth.token-ttl", 24*time.Hour)

	viper.SetDefault("resumes.backend", "sql")
	viper.SetDefault("resumes.dsn", "")
	viper.SetDefault("resumes.gateway-url", "")
	viper.SetDefault("resumes.token", "")
	viper.SetDefault("resumes.token-file", "")
	viper.SetDefault("resumes.user-agent", "")
	viper.SetDefault("resumes.mongo.uri", "")
	viper.SetDefault("resumes.mongo.database", app)
	viper.SetDefault("resumes.mongo.collection", "resumes")

	viper.SetDefault("interview.topic-count", engineDefaults.DefaultTopicCount)
	viper.SetDefault("interview.max-topic-count", engineDefaults.MaxTopicCount)
	viper.SetDefault("interview.max-duration", engineDefaults.MaxDuration)
	viper.SetDefault("interview.sweep-interval", time.Minute)

	viper.SetDefault("ai.provider", "gemini")
	viper.SetDefault("ai.timeout", policy.Timeout)
	viper.SetDefault("ai.max-retries", policy.MaxRetries)
	viper.SetDefault("ai.base-delay", policy.BaseDelay)
	viper.SetDefault("ai.max-delay", policy.MaxDelay)
	viper.SetDefault("ai.rate-per-second", 0)
	viper.SetDefault("ai.burst", 1)
	viper.SetDefault("ai.gemini.api-key", "")
	viper.SetDefault("ai.gemini.api-key-file", "")
	viper.SetDefault("ai.gemini.model", "")
	viper.SetDefault("ai.gemini.max-log-length", 0)
}

func initConfig() {
	// .env is optional.
	_ = godotenv.Load()

	setDefaults()

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

	// An explicit config must parse; the default one is optional.
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
