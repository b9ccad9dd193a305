package config

import (
	"errors"
	"os"
	"strconv"
	"strings"
)

// Config contains runtime configuration required by the service.
type Config struct {
	DBURL        string
	SharedSecret string
	ListenAddr   string
	RecentWindow int
}

// Load reads required values from environment variables.
//
//	DB_URL        Postgres connection string (required)
//	SHARED_SECRET credential devices must send in the "message" field
//	LISTEN_ADDR   HTTP listen address, default ":8080"
//	RECENT_WINDOW dashboard seed window size, default 20
func Load() (Config, error) {
	dbURL := strings.TrimSpace(os.Getenv("DB_URL"))
	if dbURL == "" {
		return Config{}, errors.New("DB_URL required")
	}

	secret := strings.TrimSpace(os.Getenv("SHARED_SECRET"))
	if secret == "" {
		// Local dev fallback so the service runs out-of-the-box.
		secret = "skywalker"
	}

	addr := strings.TrimSpace(os.Getenv("LISTEN_ADDR"))
	if addr == "" {
		addr = ":8080"
	}

	window := 20
	if raw := strings.TrimSpace(os.Getenv("RECENT_WINDOW")); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return Config{}, errors.New("RECENT_WINDOW must be a positive integer")
		}
		window = n
	}

	return Config{
		DBURL:        dbURL,
		SharedSecret: secret,
		ListenAddr:   addr,
		RecentWindow: window,
	}, nil
}
