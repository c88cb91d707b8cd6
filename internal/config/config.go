// Package config loads exporter configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds everything the exporter reads from the environment.
// Values are populated by Load.
type Config struct {
	// Token is the Dixa api credential. Required.
	Token string

	// UseBearer switches the v1 api Authorization header to the
	// "Bearer <token>" scheme. Set DIXA_USE_BEARER=true to enable.
	UseBearer bool

	// BaseURL overrides the v1 api endpoint when non-empty.
	BaseURL string

	// ExportsBase overrides the exports api endpoint when non-empty.
	ExportsBase string

	// StartISO and EndISO are the fallback export window used when the
	// CLI does not supply a range. Must be set together.
	StartISO string
	EndISO   string
}

// Load reads configuration from environment variables and returns a Config.
// Returns an error listing any required variables that are not set.
func Load() (Config, error) {
	cfg := Config{
		Token:       os.Getenv("DIXA_TOKEN"),
		BaseURL:     os.Getenv("DIXA_BASE_URL"),
		ExportsBase: os.Getenv("DIXA_EXPORTS_BASE"),
		StartISO:    os.Getenv("DIXA_START_ISO"),
		EndISO:      os.Getenv("DIXA_END_ISO"),
	}

	if v := os.Getenv("DIXA_USE_BEARER"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return Config{}, fmt.Errorf("DIXA_USE_BEARER: %q is not a boolean", v)
		}
		cfg.UseBearer = b
	}

	var missing []string
	if cfg.Token == "" {
		missing = append(missing, "DIXA_TOKEN")
	}
	if len(missing) > 0 {
		return Config{}, fmt.Errorf("required environment variables not set: %s", strings.Join(missing, ", "))
	}

	return cfg, nil
}
