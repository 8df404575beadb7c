package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Conf is the application configuration. It is set once by LoadConfig at
// start-up; tests may assign it directly.
var Conf *Config

type (
	ServerConfig struct {
		Host                      string
		Port                      int
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		Host          string
		Port          int
		DisableTLS    bool
	}

	AIConfig struct {
		GeminiAPIKey      string
		ChatModel         string
		EmbeddingModel    string
		EmbeddingDim      int
		TopK              int
		CacheTTL          time.Duration
		RateLimit         float64
		RateBurst         int
		IndexPollInterval time.Duration
	}

	CacheConfig struct {
		UpstashURL   string
		UpstashToken string
	}

	// StorageConfig selects where uploaded library files live. With a B2
	// bucket configured, Backblaze is used; otherwise files go to Dir.
	StorageConfig struct {
		Dir         string
		B2AccountID string
		B2AppKey    string
		B2Bucket    string
	}

	Config struct {
		Debug    bool
		TestMode bool
		Env      string // DEV (default), TEST, QA, PROD
		Build    string

		AppName         string
		SecretKey       string
		WorkDir         string
		FrontendBaseURL string

		DefaultFromEmail          mail.Address
		SendgridAPIKey            string
		RollbarToken              string
		PasswordResetTimeoutDelta time.Duration

		Server   ServerConfig
		Database DatabaseConfig
		AI       AIConfig
		Cache    CacheConfig
		Storage  StorageConfig
	}
)

// Address returns the "host:port" the database listens on.
func (c DatabaseConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// Address returns the "host:port" the server listens on.
func (c ServerConfig) Address() string {
	return c.Host + ":" + strconv.Itoa(c.Port)
}

// LoadConfig reads configuration from defaults, an optional
// config/.env.<env> file and the environment, in increasing precedence.
func LoadConfig(workDir string) *Config {
	v := viper.New()
	v.SetTypeByDefaultValue(true)

	// defaults
	v.SetDefault("debug", true)
	v.SetDefault("testMode", false)
	v.SetDefault("appName", "Soma")
	v.SetDefault("secretKey", "w#c7fz+t81k)m(qj@e5$-soma-dev-only-4&y^0hx2nr*du")
	v.SetDefault("frontendBaseURL", "http://localhost:3000")
	v.SetDefault("defaultFromEmail", "noreply@localhost")
	v.SetDefault("passwordResetTimeoutDelta", 3*24*time.Hour)

	v.SetDefault("server.host", "")
	v.SetDefault("server.port", 8000)
	v.SetDefault("server.jwtExpirationDelta", 7*24*time.Hour)
	v.SetDefault("server.jwtRefreshExpirationDelta", 4*time.Hour)

	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.name", "soma")
	v.SetDefault("database.user", "soma")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", 5432)
	v.SetDefault("database.disableTLS", true)

	v.SetDefault("ai.chatModel", "gemini-2.0-flash")
	v.SetDefault("ai.embeddingModel", "text-embedding-004")
	v.SetDefault("ai.embeddingDim", 768)
	v.SetDefault("ai.topK", 5)
	v.SetDefault("ai.cacheTTL", time.Hour)
	v.SetDefault("ai.rateLimit", 1.0)
	v.SetDefault("ai.rateBurst", 5)
	v.SetDefault("ai.indexPollInterval", 30*time.Second)

	v.SetDefault("storage.dir", filepath.Join(workDir, "assets", "uploads"))

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	Conf = &Config{
		Debug:    v.GetBool("debug"),
		TestMode: v.GetBool("testMode"),
		Env:      env,
		Build:    v.GetString("build"),

		AppName:         v.GetString("appName"),
		SecretKey:       v.GetString("secretKey"),
		WorkDir:         workDir,
		FrontendBaseURL: v.GetString("frontendBaseURL"),

		DefaultFromEmail:          mail.Address{Name: v.GetString("appName"), Address: v.GetString("defaultFromEmail")},
		SendgridAPIKey:            v.GetString("sendgridApiKey"),
		RollbarToken:              v.GetString("rollbarToken"),
		PasswordResetTimeoutDelta: v.GetDuration("passwordResetTimeoutDelta"),

		Server: ServerConfig{
			Host:                      v.GetString("server.host"),
			Port:                      v.GetInt("server.port"),
			JWTExpirationDelta:        v.GetDuration("server.jwtExpirationDelta"),
			JWTRefreshExpirationDelta: v.GetDuration("server.jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			Host:          v.GetString("database.host"),
			Port:          v.GetInt("database.port"),
			DisableTLS:    v.GetBool("database.disableTLS"),
		},
		AI: AIConfig{
			GeminiAPIKey:      v.GetString("ai.geminiApiKey"),
			ChatModel:         v.GetString("ai.chatModel"),
			EmbeddingModel:    v.GetString("ai.embeddingModel"),
			EmbeddingDim:      v.GetInt("ai.embeddingDim"),
			TopK:              v.GetInt("ai.topK"),
			CacheTTL:          v.GetDuration("ai.cacheTTL"),
			RateLimit:         v.GetFloat64("ai.rateLimit"),
			RateBurst:         v.GetInt("ai.rateBurst"),
			IndexPollInterval: v.GetDuration("ai.indexPollInterval"),
		},
		Cache: CacheConfig{
			UpstashURL:   v.GetString("cache.upstashUrl"),
			UpstashToken: v.GetString("cache.upstashToken"),
		},
		Storage: StorageConfig{
			Dir:         v.GetString("storage.dir"),
			B2AccountID: v.GetString("storage.b2AccountId"),
			B2AppKey:    v.GetString("storage.b2AppKey"),
			B2Bucket:    v.GetString("storage.b2Bucket"),
		},
	}
	return Conf
}

// TestConfig returns a Config suitable for unit tests: no external
// services, short deltas, deterministic secret.
func TestConfig() *Config {
	return &Config{
		Debug:                     true,
		TestMode:                  true,
		Env:                       "TEST",
		AppName:                   "Soma",
		SecretKey:                 "test-secret-key",
		DefaultFromEmail:          mail.Address{Name: "Soma", Address: "noreply@localhost"},
		PasswordResetTimeoutDelta: 3 * 24 * time.Hour,
		FrontendBaseURL:           "http://localhost:3000",
		Server: ServerConfig{
			Port:                      8000,
			JWTExpirationDelta:        7 * 24 * time.Hour,
			JWTRefreshExpirationDelta: 4 * time.Hour,
		},
		AI: AIConfig{
			ChatModel:         "gemini-2.0-flash",
			EmbeddingModel:    "text-embedding-004",
			EmbeddingDim:      768,
			TopK:              5,
			CacheTTL:          time.Hour,
			RateLimit:         1,
			RateBurst:         5,
			IndexPollInterval: time.Second,
		},
	}
}
