// Package config loads the coordinator's YAML configuration file into
// typed settings, the way the teacher's tutorial commands parse their own
// flags: minimal validation, fail loudly on malformed input.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Provider describes one configured chain: its contract, RPC endpoint and
// the cadences the chain watcher and chain connection run at.
type Provider struct {
	ContractAddress string `yaml:"contract_address"`
	ProviderURL     string `yaml:"provider"`
	ChainName       string `yaml:"chain_name"`
	StartBlock      int64  `yaml:"start_block"`
	BlockTimeSec    uint64 `yaml:"block_time_sec"`
	BlockUpdateSec  uint64 `yaml:"block_update_sec"`
	LogUpdateSec    uint64 `yaml:"log_update_sec"`
	ProviderID      int64  `yaml:"provider_id"`
	BatchSize       int64  `yaml:"batch_size"`
	SkipOld         bool   `yaml:"skip_old"`
	KeepAlive       bool   `yaml:"keep_alive"`
}

// IPFSNode describes one pinning target.
type IPFSNode struct {
	APIURL   string `yaml:"api_url"`
	Gateway  string `yaml:"gateway"`
	Login    string `yaml:"login"`
	Password string `yaml:"password"`
}

// Config is the root of config.yml.
type Config struct {
	Providers          []Provider `yaml:"providers"`
	IPFSNodes          []IPFSNode `yaml:"ipfs_nodes"`
	RetryFailedCidsSec uint64     `yaml:"retry_failed_cids_sec"`
	UpdateNodesSec     uint64     `yaml:"update_nodes_sec"`
	AdminSecret        string     `yaml:"admin_secret"`
	OnlyAPI            bool       `yaml:"only_api"`
	DatabaseURL        string     `yaml:"database_url"`
	ListenAddr         string     `yaml:"listen_addr"`
}

// Load reads and parses the YAML file at path.
func Load(path string) (*Config, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("parsing yaml: %w", err)
	}

	if err := cfg.validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = ":8080"
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if len(c.IPFSNodes) == 0 {
		return fmt.Errorf("ipfs_nodes must not be empty")
	}
	if c.AdminSecret == "" {
		return fmt.Errorf("admin_secret is required")
	}
	if !c.OnlyAPI && len(c.Providers) == 0 {
		return fmt.Errorf("providers must not be empty unless only_api is set")
	}
	for i, p := range c.Providers {
		if p.ContractAddress == "" || p.ProviderURL == "" {
			return fmt.Errorf("provider[%d]: contract_address and provider are required", i)
		}
	}
	return nil
}

// ResolveDatabaseURL returns the configured pool URL, falling back to the
// DATABASE_URL environment variable (the "standard pool URL" of spec.md §6).
func (c *Config) ResolveDatabaseURL() (string, error) {
	if c.DatabaseURL != "" {
		return c.DatabaseURL, nil
	}
	if v := os.Getenv("DATABASE_URL"); v != "" {
		return v, nil
	}
	return "", fmt.Errorf("database_url not set in config and DATABASE_URL not set in environment")
}
