package node

import (
	"errors"
	"fmt"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/kelseyhightower/envconfig"
)

// Config holds configuration for a development chain node. Every field
// can be set from a NODE_* environment variable.
type Config struct {
	Listen        string        `envconfig:"LISTEN" default:":9067"`
	DataDir       string        `envconfig:"DATADIR" default:"./data"`
	ChainName     string        `envconfig:"CHAIN_NAME" default:"regtest"`
	BlockInterval time.Duration `envconfig:"BLOCK_INTERVAL" default:"10s"`
	EmptyBlocks   bool          `envconfig:"EMPTY_BLOCKS" default:"false"`

	GenesisAddress string `envconfig:"GENESIS_ADDRESS"`
	GenesisAmount  uint64 `envconfig:"GENESIS_AMOUNT" default:"2100000000000000"`

	// MinerAddress receives BlockReward in every produced block
	MinerAddress string `envconfig:"MINER_ADDRESS"`
	BlockReward  uint64 `envconfig:"BLOCK_REWARD" default:"1000000000"`

	MempoolSize  int     `envconfig:"MEMPOOL_SIZE" default:"10000"`
	RateLimitRPS float64 `envconfig:"RATE_LIMIT_RPS" default:"30"`
	RateBurst    int     `envconfig:"RATE_LIMIT_BURST" default:"60"`

	LogLevel string `envconfig:"LOG_LEVEL" default:"info"`
}

// LoadConfig reads the node configuration from the environment
func LoadConfig() (*Config, error) {
	cfg := &Config{}
	if err := envconfig.Process("NODE", cfg); err != nil {
		return nil, fmt.Errorf("failed to process config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks values envconfig cannot check on its own
func (c *Config) Validate() error {
	if c.ChainName == "" {
		return errors.New("chain name must not be empty")
	}
	if c.BlockInterval <= 0 {
		return fmt.Errorf("block interval must be positive, got %s", c.BlockInterval)
	}
	if c.GenesisAddress != "" && !common.IsHexAddress(c.GenesisAddress) {
		return fmt.Errorf("invalid genesis address %q", c.GenesisAddress)
	}
	if c.MinerAddress != "" && !common.IsHexAddress(c.MinerAddress) {
		return fmt.Errorf("invalid miner address %q", c.MinerAddress)
	}
	if c.MempoolSize <= 0 {
		return fmt.Errorf("mempool size must be positive, got %d", c.MempoolSize)
	}
	return nil
}
