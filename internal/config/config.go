package config

import (
	"fmt"  // Error wrapping
	"time" // Durations

	"github.com/caarlos0/env/v11" // Struct tag based environment parsing
	"github.com/joho/godotenv"    // For loading .env files
)

// Config holds the application configuration
type Config struct {
	AppPort       string        `env:"APP_PORT" envDefault:"8080"`                // Application port
	DBDriver      string        `env:"DB_DRIVER" envDefault:"mysql"`              // mysql or sqlite
	DBUser        string        `env:"DB_USER"`                                   // Database user
	DBPassword    string        `env:"DB_PASSWORD"`                               // Database password
	DBHost        string        `env:"DB_HOST" envDefault:"127.0.0.1"`            // Database host
	DBPort        string        `env:"DB_PORT" envDefault:"3306"`                 // Database port
	DBName        string        `env:"DB_NAME" envDefault:"server_rental"`        // Database name
	SQLitePath    string        `env:"SQLITE_PATH" envDefault:"server_rental.db"` // SQLite file, ":memory:" for a throwaway store
	JWTSecret     string        `env:"JWT_SECRET,required,notEmpty"`              // JWT secret key
	JWTTTL        time.Duration `env:"JWT_TTL" envDefault:"24h"`                  // Token lifetime
	RedisAddr     string        `env:"REDIS_ADDR" envDefault:"127.0.0.1:6379"`    // Redis server address
	RedisPass     string        `env:"REDIS_PASS"`                                // Redis password
	RedisDB       int           `env:"REDIS_DB" envDefault:"0"`                   // Redis database number
	CacheTTL      time.Duration `env:"CACHE_TTL" envDefault:"60s"`                // Read cache lifetime
	AdminUsername string        `env:"ADMIN_USERNAME" envDefault:"admin"`         // Administrator login
	AdminPassword string        `env:"ADMIN_PASSWORD,required,notEmpty"`          // Administrator password
	StartingCoins int           `env:"STARTING_COINS" envDefault:"100"`           // Balance granted at registration
	SweepSchedule string        `env:"SWEEP_SCHEDULE" envDefault:"@every 1m"`     // Cron spec of the metering sweep, empty disables it
	SweepLockTTL  time.Duration `env:"SWEEP_LOCK_TTL" envDefault:"50s"`           // Lifetime of the cross instance sweep lock
	LoginRate     float64       `env:"LOGIN_RATE" envDefault:"1"`                 // Login attempts per second per client
	LoginBurst    int           `env:"LOGIN_BURST" envDefault:"5"`                // Login burst per client
	IsProd        bool          `env:"IS_PROD" envDefault:"false"`                // Is production environment
}

// LoadConfig loads configuration from the environment, reading a .env file first if present
func LoadConfig() (*Config, error) {
	_ = godotenv.Load() // Load .env file if present
	var cfg Config
	if err := env.Parse(&cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	// Validate values the service cannot run without
	if cfg.DBDriver != "mysql" && cfg.DBDriver != "sqlite" {
		return nil, fmt.Errorf("unsupported DB_DRIVER %q", cfg.DBDriver)
	}
	if cfg.StartingCoins < 0 {
		return nil, fmt.Errorf("STARTING_COINS must not be negative")
	}
	return &cfg, nil
}

// DSN builds the MySQL Data Source Name
func (c *Config) DSN() string {
	return c.DBUser + ":" + c.DBPassword + "@tcp(" + c.DBHost + ":" + c.DBPort + ")/" + c.DBName + "?parseTime=true"
}
