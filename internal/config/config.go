package config

import (
	"log"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all configuration for the application.
type Config struct {
	// BindAddr is the host:port the HTTP server listens on.
	BindAddr string
	// SessionSecret signs the cookie store used for client identity.
	SessionSecret string

	StunHost string
	StunPort int

	TurnHost   string
	TurnPort   int
	TurnSecret string

	TwilioAccountSID string
	TwilioKeySID     string
	TwilioAuthToken  string

	// RedisAddr enables the redis-backed store when set.
	RedisAddr     string
	RedisPassword string
	RedisDB       int

	PingInterval time.Duration
	ReapTimeout  time.Duration
	RoomExpiry   time.Duration
}

// New loads configuration from environment variables.
func New() *Config {
	if err := godotenv.Load(); err != nil {
		log.Println("No .env file found, relying on environment variables")
	}

	cfg := &Config{
		BindAddr:         getEnv("BIND_ADDR", ":5000"),
		SessionSecret:    os.Getenv("SESSION_SECRET"),
		StunHost:         getEnv("STUN_HOST", "stun.l.google.com"),
		StunPort:         getEnvInt("STUN_PORT", 19302),
		TurnHost:         os.Getenv("TURN_HOST"),
		TurnPort:         getEnvInt("TURN_PORT", 0),
		TurnSecret:       os.Getenv("TURN_STATIC_AUTH_SECRET"),
		TwilioAccountSID: os.Getenv("TWILIO_ACCOUNT_SID"),
		TwilioKeySID:     os.Getenv("TWILIO_KEY_SID"),
		TwilioAuthToken:  os.Getenv("TWILIO_AUTH_TOKEN"),
		RedisAddr:        os.Getenv("REDIS_ADDR"),
		RedisPassword:    os.Getenv("REDIS_PASSWORD"),
		RedisDB:          getEnvInt("REDIS_DB", 0),
		PingInterval:     getEnvDuration("PING_INTERVAL", 30*time.Second),
		ReapTimeout:      getEnvDuration("REAP_TIMEOUT", 60*time.Second),
		RoomExpiry:       getEnvDuration("ROOM_EXPIRY", time.Hour),
	}

	if cfg.SessionSecret == "" {
		log.Fatal("Required environment variable SESSION_SECRET is not set.")
	}

	return cfg
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		log.Fatalf("Invalid value for %s: %v", key, err)
	}
	return n
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		log.Fatalf("Invalid value for %s: %v", key, err)
	}
	return d
}
