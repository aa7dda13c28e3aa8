package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"classbook/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

const (
	DriverSQLite = "sqlite"
	DriverRedis  = "redis"
	DriverMongo  = "mongo"
	DriverMemory = "memory"
)

type Config struct {
	App          AppConfig          `yaml:"app"`
	Database     DatabaseConfig     `yaml:"database"`
	Redis        RedisConfig        `yaml:"redis"`
	API          APIConfig          `yaml:"api"`
	Auth         AuthConfig         `yaml:"auth"`
	Reservations ReservationsConfig `yaml:"reservations"`
	Generator    GeneratorConfig    `yaml:"generator"`
	Events       EventsConfig       `yaml:"events"`
	Exports      ExportConfig       `yaml:"exports"`
	Monitoring   MonitoringConfig   `yaml:"monitoring"`
	Logging      LoggingConfig      `yaml:"logging"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Driver string      `yaml:"driver"`
	Path   string      `yaml:"path"`
	Mongo  MongoConfig `yaml:"mongo"`
}

type MongoConfig struct {
	URI            string        `yaml:"uri"`
	Database       string        `yaml:"database"`
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
	ReadTimeout    time.Duration `yaml:"read_timeout"`
	WriteTimeout   time.Duration `yaml:"write_timeout"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type APIConfig struct {
	HTTP      APIHTTPConfig      `yaml:"http"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port         int           `yaml:"port"`
	ReadTimeout  time.Duration `yaml:"read_timeout"`
	WriteTimeout time.Duration `yaml:"write_timeout"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

type AuthConfig struct {
	JWTSecret          string `yaml:"jwt_secret"`
	TokenTTLMinutes    int    `yaml:"token_ttl_minutes"`
	BcryptCost         int    `yaml:"bcrypt_cost"`
	LoginAttempts      int    `yaml:"login_attempts"`
	LoginWindowSeconds int    `yaml:"login_window_seconds"`
}

func (a AuthConfig) TokenTTL() time.Duration {
	return time.Duration(a.TokenTTLMinutes) * time.Minute
}

func (a AuthConfig) LoginWindow() time.Duration {
	return time.Duration(a.LoginWindowSeconds) * time.Second
}

type ReservationsConfig struct {
	// StrictOwnership rejects cancelling a reserved booking that has no owner.
	StrictOwnership bool `yaml:"strict_ownership"`
}

type GeneratorConfig struct {
	Rooms       []string `yaml:"rooms"`
	Hours       []int    `yaml:"hours"`
	HorizonDays int      `yaml:"horizon_days"`
	IDPrefix    string   `yaml:"id_prefix"`
	RetryFactor int      `yaml:"retry_factor"`
	Seed        uint64   `yaml:"seed"`
	Timezone    string   `yaml:"timezone"`
}

type EventsConfig struct {
	Kafka KafkaConfig `yaml:"kafka"`
}

type KafkaConfig struct {
	Enabled    bool     `yaml:"enabled"`
	Brokers    []string `yaml:"brokers"`
	Topic      string   `yaml:"topic"`
	QueueSize  int      `yaml:"queue_size"`
	MaxRetries int      `yaml:"max_retries"`
}

type ExportConfig struct {
	SheetName string `yaml:"sheet_name"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level    string `yaml:"level"`
	Format   string `yaml:"format"`
	Output   string `yaml:"output"`
	FilePath string `yaml:"file_path"`
}

func Load(configPath string) (*Config, error) {
	// .env is optional
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			return errors.New("database path is required")
		}
	case DriverMongo:
		if c.Database.Mongo.URI == "" {
			return errors.New("database.mongo.uri is required for the mongo driver")
		}
	case DriverRedis:
		if c.Redis.Address == "" {
			return errors.New("redis.address is required for the redis driver")
		}
	case DriverMemory:
	default:
		return fmt.Errorf("unknown database driver %q", c.Database.Driver)
	}

	if strings.TrimSpace(c.Auth.JWTSecret) == "" {
		return errors.New("auth.jwt_secret is required")
	}

	if c.Events.Kafka.Enabled && (len(c.Events.Kafka.Brokers) == 0 || c.Events.Kafka.Topic == "") {
		return errors.New("events.kafka requires brokers and topic when enabled")
	}

	return c.Generator.Validate()
}

func (g GeneratorConfig) Validate() error {
	if len(g.Rooms) == 0 {
		return errors.New("generator.rooms must not be empty")
	}
	if len(g.Hours) == 0 {
		return errors.New("generator.hours must not be empty")
	}
	for _, h := range g.Hours {
		if h < 0 || h > 23 {
			return fmt.Errorf("generator hour %d out of range", h)
		}
	}
	if g.HorizonDays <= 0 {
		return errors.New("generator.horizon_days must be positive")
	}
	if g.RetryFactor <= 0 {
		return errors.New("generator.retry_factor must be positive")
	}
	if _, err := time.LoadLocation(g.Timezone); err != nil {
		return fmt.Errorf("generator.timezone: %w", err)
	}
	return nil
}

// ValidateRooms checks a room catalog for blank and duplicate names.
func ValidateRooms(rooms []models.Room) error {
	seen := make(map[string]bool, len(rooms))
	for i, room := range rooms {
		if strings.TrimSpace(room.Name) == "" {
			return fmt.Errorf("room #%d has an empty name", i+1)
		}
		if seen[room.Name] {
			return fmt.Errorf("duplicate room name found: %s", room.Name)
		}
		seen[room.Name] = true
	}
	return nil
}

func (c *Config) applyDefaults() {
	if c.Database.Driver == "" {
		c.Database.Driver = DriverSQLite
	}
	if c.Database.Mongo.Database == "" {
		c.Database.Mongo.Database = "classbook"
	}
	if c.Database.Mongo.ConnectTimeout == 0 {
		c.Database.Mongo.ConnectTimeout = 10 * time.Second
	}
	if c.Database.Mongo.ReadTimeout == 0 {
		c.Database.Mongo.ReadTimeout = 5 * time.Second
	}
	if c.Database.Mongo.WriteTimeout == 0 {
		c.Database.Mongo.WriteTimeout = 5 * time.Second
	}

	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.HTTP.ReadTimeout == 0 {
		c.API.HTTP.ReadTimeout = 15 * time.Second
	}
	if c.API.HTTP.WriteTimeout == 0 {
		c.API.HTTP.WriteTimeout = 60 * time.Second
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	if c.Auth.TokenTTLMinutes == 0 {
		c.Auth.TokenTTLMinutes = models.DefaultTokenTTLMinutes
	}
	if c.Auth.BcryptCost == 0 {
		c.Auth.BcryptCost = 10
	}
	if c.Auth.LoginAttempts == 0 {
		c.Auth.LoginAttempts = models.LoginAttempts
	}
	if c.Auth.LoginWindowSeconds == 0 {
		c.Auth.LoginWindowSeconds = models.LoginWindow
	}

	if len(c.Generator.Rooms) == 0 {
		c.Generator.Rooms = append([]string(nil), models.DefaultRooms...)
	}
	if len(c.Generator.Hours) == 0 {
		c.Generator.Hours = append([]int(nil), models.DefaultHours...)
	}
	if c.Generator.HorizonDays == 0 {
		c.Generator.HorizonDays = models.DefaultHorizonDays
	}
	if c.Generator.IDPrefix == "" {
		c.Generator.IDPrefix = models.DefaultGeneratedIDPrefix
	}
	if c.Generator.RetryFactor == 0 {
		c.Generator.RetryFactor = models.DefaultRetryFactor
	}
	if c.Generator.Timezone == "" {
		c.Generator.Timezone = "UTC"
	}

	if c.Events.Kafka.QueueSize == 0 {
		c.Events.Kafka.QueueSize = models.EventQueueSize
	}
	if c.Events.Kafka.MaxRetries == 0 {
		c.Events.Kafka.MaxRetries = 3
	}
	if c.Exports.SheetName == "" {
		c.Exports.SheetName = "Bookings"
	}
}
