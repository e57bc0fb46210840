package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/caarlos0/env/v11"
)

// CLI holds the demiurge command's environment settings.
type CLI struct {
	RPCURL     string        `env:"DEMIURGE_RPC_URL" envDefault:"http://127.0.0.1:9944"`
	Keystore   string        `env:"DEMIURGE_KEYSTORE"`
	Passphrase string        `env:"DEMIURGE_PASSPHRASE"`
	Token      string        `env:"DEMIURGE_TOKEN"`
	Retries    int           `env:"DEMIURGE_RETRIES" envDefault:"3"`
	Timeout    time.Duration `env:"DEMIURGE_TIMEOUT" envDefault:"30s"`
	NoColor    bool          `env:"NO_COLOR"`
}

// LoadCLI parses CLI settings from the environment. The keystore defaults
// to ~/.demiurge/keys.db.
func LoadCLI() (*CLI, error) {
	var c CLI
	if err := env.Parse(&c); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	if c.Retries < 0 {
		return nil, fmt.Errorf("DEMIURGE_RETRIES must not be negative")
	}
	if c.Keystore == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return nil, fmt.Errorf("keystore path: %w", err)
		}
		c.Keystore = filepath.Join(home, ".demiurge", "keys.db")
	}
	return &c, nil
}
