// Package config reads runtime settings from the environment.  The server
// loads a .env file first, so every value can also come from there.
package config

import "time"

// Config is the top-level application configuration.
type Config struct {
	Env       string // dev, test or prod
	Port      string
	LogLevel  string // debug, info, warn or error
	DB        DBConfig
	Auth      AuthConfig
	Retention RetentionConfig
}

// DBConfig locates the MySQL database.  Pass may be empty.
type DBConfig struct {
	User string
	Pass string
	Host string
	Port string
	Name string
}

// AuthConfig covers token signing and password hashing.
type AuthConfig struct {
	JWTSecret      string
	AccessTTLMin   int
	RefreshTTLDays int
	BcryptCost     int
}

// RetentionConfig drives the stale-user sweep.  An Interval of 0 turns the
// background sweep off; the admin endpoint keeps working.
type RetentionConfig struct {
	MaxAge   time.Duration
	Interval time.Duration
}

// Load reads all settings.  Missing required values stop the process.
func Load() Config {
	return Config{
		Env:      must("APP_ENV"),
		Port:     must("APP_PORT"),
		LogLevel: envStr("LOG_LEVEL", "info"),
		DB: DBConfig{
			User: must("DB_USER"),
			Pass: envStr("DB_PASS", ""),
			Host: must("DB_HOST"),
			Port: must("DB_PORT"),
			Name: must("DB_NAME"),
		},
		Auth: AuthConfig{
			JWTSecret:      must("JWT_SECRET"),
			AccessTTLMin:   mustInt("ACCESS_TOKEN_TTL_MIN"),
			RefreshTTLDays: mustInt("REFRESH_TOKEN_TTL_DAYS"),
			BcryptCost:     mustInt("BCRYPT_COST"),
		},
		Retention: RetentionConfig{
			MaxAge:   envDur("RETENTION_MAX_AGE", 365*24*time.Hour),
			Interval: envDur("RETENTION_INTERVAL", 0),
		},
	}
}
