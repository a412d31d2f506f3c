package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds every setting the backend reads from its environment.
type Config struct {
	ServerURL    string // The URL where the server is running
	MongoURI     string // MongoDB connection URI
	DBName       string // The name of the MongoDB database
	SigningKey   string // HMAC key used to verify bearer tokens
	RedisURL     string // Redis URL for the version counter and notification dedup
	RabbitMQURL  string // RabbitMQ URL for milestone notifications, empty disables them
	SMTPEmail    string // Sender address for milestone emails
	SMTPPassword string
	LogLevel     string
	Location     *time.Location // Timezone deciding which date is "today"
	WeekStart    time.Weekday
	NumConsumers int
}

// Load reads the .env file at envFile, if there is one, and then the
// process environment. Missing required values are reported by name.
func Load(envFile string) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("error loading %s: %w", envFile, err)
		}
	}

	cfg := &Config{
		ServerURL:    getenv("SERVER_URL", "http://localhost:8080"),
		MongoURI:     getenv("MONGODB_URI", "mongodb://localhost:27017/?replicaSet=rs0"),
		DBName:       getenv("DB_NAME", "habitual"),
		SigningKey:   os.Getenv("JWT_SIGNING_KEY"),
		RedisURL:     getenv("REDIS_URL", "redis://localhost:6379/0"),
		RabbitMQURL:  os.Getenv("RABBITMQ_URL"),
		SMTPEmail:    os.Getenv("SMTP_EMAIL"),
		SMTPPassword: os.Getenv("SMTP_PASSWORD"),
		LogLevel:     getenv("LOG_LEVEL", "info"),
	}

	if cfg.SigningKey == "" {
		return nil, errors.New("JWT_SIGNING_KEY must be set")
	}

	loc, err := loadLocation(os.Getenv("TIMEZONE"))
	if err != nil {
		return nil, fmt.Errorf("invalid TIMEZONE: %w", err)
	}
	cfg.Location = loc

	switch strings.ToLower(getenv("WEEK_START", "monday")) {
	case "monday":
		cfg.WeekStart = time.Monday
	case "sunday":
		cfg.WeekStart = time.Sunday
	default:
		return nil, fmt.Errorf("invalid WEEK_START %q: want monday or sunday", os.Getenv("WEEK_START"))
	}

	cfg.NumConsumers, err = strconv.Atoi(getenv("NUM_MILESTONE_CONSUMERS", "2"))
	if err != nil || cfg.NumConsumers < 1 {
		return nil, fmt.Errorf("invalid NUM_MILESTONE_CONSUMERS %q", os.Getenv("NUM_MILESTONE_CONSUMERS"))
	}

	return cfg, nil
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func loadLocation(name string) (*time.Location, error) {
	if name == "" || name == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(name)
}
