package config

import (
	"os"
	"strconv"

	"github.com/joho/godotenv"
)

// LoadEnvOverlay best-effort loads a .env file at path (if present) and
// applies ZEROBUFFER_LOG_LEVEL / ZEROBUFFER_LOG_DEV overrides onto c. A
// missing .env file is not an error; it is the normal case outside local
// development.
func LoadEnvOverlay(c *Config, path string) error {
	if err := godotenv.Load(path); err != nil && !os.IsNotExist(err) {
		return err
	}

	if level := os.Getenv("ZEROBUFFER_LOG_LEVEL"); level != "" {
		c.Log.Level = level
	}
	if dev := os.Getenv("ZEROBUFFER_LOG_DEV"); dev != "" {
		if b, err := strconv.ParseBool(dev); err == nil {
			c.Log.Development = b
		}
	}
	return nil
}
