package cmd

import (
	"fmt"

	"github.com/amkisko/snake/internal/config"
)

// LoadConfig resolves the client configuration from flags.
func LoadConfig(opts config.Options) (*config.Config, error) {
	cfg, err := config.Load(opts)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	return cfg, nil
}
