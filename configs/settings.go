package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

type Settings struct {
	PostgresURL       string
	NatsURL           string
	NatsToken         string
	GameServicePort   string
	SocketServicePort string
	GuessServicePort  string
	RateLimit         int
	JWTSecret         string
	MongoURI          string
	HistoryTTL        time.Duration
	PlayerTimeout     time.Duration // 0 disables eviction
	ReaperInterval    time.Duration
	PublicURL         string // base of the invite link encoded in QR codes
	GuessResolver     string // "nats" or "local"
	AllowedOrigins    []string
	LogLevel          string
}

const (
	ResolverNats  = "nats"
	ResolverLocal = "local"
)

// NewViper returns a viper instance reading the service environment.
func NewViper() *viper.Viper {
	v := viper.New()
	v.AutomaticEnv()

	v.SetDefault("NATS_URL", "nats://localhost:4224")
	v.SetDefault("GAME_SERVICE_PORT", "8001")
	v.SetDefault("SOCKET_SERVICE_PORT", "8002")
	v.SetDefault("GUESS_SERVICE_PORT", "8003")
	v.SetDefault("RATE_LIMIT", 120)
	v.SetDefault("HISTORY_TTL", "720h")
	v.SetDefault("PLAYER_TIMEOUT", "0s")
	v.SetDefault("REAPER_INTERVAL", "30s")
	v.SetDefault("PUBLIC_URL", "http://localhost:5173")
	v.SetDefault("GUESS_RESOLVER", ResolverNats)
	v.SetDefault("ALLOWED_ORIGINS", "http://localhost:5173")
	v.SetDefault("LOG_LEVEL", "info")
	return v
}

// LoadSettings reads Settings from v and validates them.
func LoadSettings(v *viper.Viper) (*Settings, error) {
	s := &Settings{
		PostgresURL:       v.GetString("POSTGRES_URL"),
		NatsURL:           v.GetString("NATS_URL"),
		NatsToken:         v.GetString("NATS_TOKEN"),
		GameServicePort:   v.GetString("GAME_SERVICE_PORT"),
		SocketServicePort: v.GetString("SOCKET_SERVICE_PORT"),
		GuessServicePort:  v.GetString("GUESS_SERVICE_PORT"),
		RateLimit:         v.GetInt("RATE_LIMIT"),
		JWTSecret:         v.GetString("JWT_SECRET_KEY"),
		MongoURI:          v.GetString("MONGODB_URI"),
		HistoryTTL:        v.GetDuration("HISTORY_TTL"),
		PlayerTimeout:     v.GetDuration("PLAYER_TIMEOUT"),
		ReaperInterval:    v.GetDuration("REAPER_INTERVAL"),
		PublicURL:         strings.TrimRight(v.GetString("PUBLIC_URL"), "/"),
		GuessResolver:     strings.ToLower(v.GetString("GUESS_RESOLVER")),
		LogLevel:          v.GetString("LOG_LEVEL"),
	}
	for _, o := range strings.Split(v.GetString("ALLOWED_ORIGINS"), ",") {
		if o = strings.TrimSpace(o); o != "" {
			s.AllowedOrigins = append(s.AllowedOrigins, o)
		}
	}

	if err := s.validate(); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *Settings) validate() error {
	if s.RateLimit < 1 {
		return fmt.Errorf("invalid RATE_LIMIT %d", s.RateLimit)
	}
	if s.GuessResolver != ResolverNats && s.GuessResolver != ResolverLocal {
		return fmt.Errorf("invalid GUESS_RESOLVER %q (nats|local)", s.GuessResolver)
	}
	if s.PlayerTimeout < 0 {
		return errors.New("PLAYER_TIMEOUT must not be negative")
	}
	if s.PlayerTimeout > 0 && s.ReaperInterval <= 0 {
		return errors.New("REAPER_INTERVAL must be positive when PLAYER_TIMEOUT is set")
	}
	if s.HistoryTTL <= 0 {
		return errors.New("HISTORY_TTL must be positive")
	}
	return nil
}
