package config

import (
	"log"
	"time"

	"github.com/spf13/viper"
)

type Config struct {
	Server      ServerConfig      `mapstructure:"server"`
	MongoDB     MongoDBConfig     `mapstructure:"mongodb"`
	Redis       RedisConfig       `mapstructure:"redis"`
	Auth        AuthConfig        `mapstructure:"auth"`
	Google      GoogleConfig      `mapstructure:"google"`
	Recognition RecognitionConfig `mapstructure:"recognition"`
}

type ServerConfig struct {
	Port string `mapstructure:"port"`
	Mode string `mapstructure:"mode"` // debug, release, test
}

type MongoDBConfig struct {
	URI      string `mapstructure:"uri"`
	Database string `mapstructure:"database"`
}

type RedisConfig struct {
	Addr     string `mapstructure:"addr"`
	Password string `mapstructure:"password"`
	DB       int    `mapstructure:"db"`
}

type AuthConfig struct {
	CredentialsFile string `mapstructure:"credentials_file"`
}

type GoogleConfig struct {
	VisionCredentials string `mapstructure:"vision_credentials"`
	VisionAPIKey      string `mapstructure:"vision_api_key"`
}

// RecognitionConfig maps onto the recognition tuning table; zero values
// fall back to the library defaults.
type RecognitionConfig struct {
	CacheSize            int     `mapstructure:"cache_size"`
	ConfidenceThreshold  int     `mapstructure:"confidence_threshold"`
	StabilityThreshold   int     `mapstructure:"stability_threshold"`
	InvalidateIntervalMs int     `mapstructure:"invalidate_interval_ms"`
	EWMAAlpha            float64 `mapstructure:"ewma_alpha"`
	LoopThreshold        int     `mapstructure:"loop_threshold"`
	TotalTolerance       float64 `mapstructure:"total_tolerance"`
	SessionTTLSeconds    int     `mapstructure:"session_ttl_seconds"`
}

// SessionTTL returns how long an idle scan session survives.
func (c RecognitionConfig) SessionTTL() time.Duration {
	if c.SessionTTLSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func LoadConfig() *Config {
	viper.SetConfigName("config")
	viper.SetConfigType("yaml")
	viper.AddConfigPath(".")
	viper.AddConfigPath("./config")

	// Set defaults
	viper.SetDefault("server.port", ":8080")
	viper.SetDefault("server.mode", "debug")
	viper.SetDefault("mongodb.uri", "mongodb://localhost:27017")
	viper.SetDefault("mongodb.database", "receiptfusion")
	viper.SetDefault("redis.addr", "localhost:6379")
	viper.SetDefault("redis.password", "")
	viper.SetDefault("redis.db", 0)
	viper.SetDefault("auth.credentials_file", "firebase-credentials.json")
	viper.SetDefault("google.vision_credentials", "")
	viper.SetDefault("google.vision_api_key", "")
	viper.SetDefault("recognition.cache_size", 20)
	viper.SetDefault("recognition.confidence_threshold", 70)
	viper.SetDefault("recognition.stability_threshold", 50)
	viper.SetDefault("recognition.invalidate_interval_ms", 2000)
	viper.SetDefault("recognition.ewma_alpha", 0.3)
	viper.SetDefault("recognition.loop_threshold", 10)
	viper.SetDefault("recognition.total_tolerance", 0.01)
	viper.SetDefault("recognition.session_ttl_seconds", 300)

	// Read from environment variables
	viper.AutomaticEnv()

	if err := viper.ReadInConfig(); err != nil {
		log.Printf("Warning: config file not found, using defaults: %v", err)
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		log.Fatalf("Failed to unmarshal config: %v", err)
	}

	return &cfg
}
