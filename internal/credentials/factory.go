package credentials

import (
	"fmt"

	"efm-go/internal/config"
)

// NewStoreFromConfig returns the credential store configured for cloud access.
func NewStoreFromConfig(cfg config.CloudConfig) (Store, error) {
	if cfg.CredentialsPath == "" {
		return nil, fmt.Errorf("cloud credentials_path is not set")
	}
	return NewAgeStore(cfg.CredentialsPath), nil
}
