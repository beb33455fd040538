// Package config loads the status API's own small environment, separate
// from the node's main RINGNODE_ config (pkg/config).
package config

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
)

type ServerConfig struct {
	Port string
}

var AppConfig ServerConfig

// Load reads statusapi/.env if present and resolves the listen port from
// RINGNODE_STATUS_PORT, defaulting to 8081. A missing .env file is not an
// error — only a malformed one is.
func Load() error {
	if _, err := os.Stat("statusapi/.env"); err == nil {
		if err := godotenv.Load("statusapi/.env"); err != nil {
			return fmt.Errorf("loading env: %w", err)
		}
	}
	port := os.Getenv("RINGNODE_STATUS_PORT")
	if port == "" {
		port = "8081"
	}
	AppConfig = ServerConfig{Port: port}
	return nil
}
