package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"autonledger/crypto"

	"github.com/BurntSushi/toml"
)

// GenesisAllocation seeds an identity balance at first boot.
type GenesisAllocation struct {
	Address string `toml:"Address"`
	Amount  string `toml:"Amount"`
}

type Config struct {
	RPCAddress      string              `toml:"RPCAddress"`
	MetricsAddress  string              `toml:"MetricsAddress"`
	DataDir         string              `toml:"DataDir"`
	NetworkName     string              `toml:"NetworkName"`
	NodeKeystore    string              `toml:"NodeKeystore"`
	GenesisAdmin    string              `toml:"GenesisAdmin"`
	GenesisFeeBps   uint32              `toml:"GenesisFeeBps"`
	GenesisVault    string              `toml:"GenesisVault"`
	GenesisBalances []GenesisAllocation `toml:"GenesisBalances"`
}

// Load loads the configuration from the given path, creating a default file
// (and node keystore) when none exists yet.
func Load(path string) (*Config, error) {
	cfg := &Config{}
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return createDefault(path)
	}

	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}

	if strings.TrimSpace(cfg.NetworkName) == "" {
		cfg.NetworkName = "auton-local"
	}
	if strings.TrimSpace(cfg.DataDir) == "" {
		cfg.DataDir = "./auton-data"
	}
	if cfg.NodeKeystore == "" {
		cfg.NodeKeystore = defaultKeystorePath(path)
	}
	if err := ensureKeystore(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the address-bearing fields eagerly so a bad config fails at
// boot instead of at the first genesis write.
func (c *Config) Validate() error {
	if c.GenesisAdmin != "" {
		if _, err := crypto.DecodeAddress(c.GenesisAdmin); err != nil {
			return fmt.Errorf("config: invalid GenesisAdmin: %w", err)
		}
	}
	if c.GenesisVault != "" {
		if _, err := crypto.DecodeAddress(c.GenesisVault); err != nil {
			return fmt.Errorf("config: invalid GenesisVault: %w", err)
		}
	}
	if c.GenesisFeeBps > 10_000 {
		return fmt.Errorf("config: GenesisFeeBps %d exceeds 10000", c.GenesisFeeBps)
	}
	for _, alloc := range c.GenesisBalances {
		if _, err := crypto.DecodeAddress(alloc.Address); err != nil {
			return fmt.Errorf("config: invalid genesis allocation address %q: %w", alloc.Address, err)
		}
	}
	return nil
}

func ensureKeystore(cfg *Config) error {
	if _, err := os.Stat(cfg.NodeKeystore); err == nil {
		return nil
	} else if !os.IsNotExist(err) {
		return err
	}
	key, err := crypto.GeneratePrivateKey()
	if err != nil {
		return err
	}
	return crypto.SaveToKeystore(cfg.NodeKeystore, key, keystorePassphrase())
}

func keystorePassphrase() string {
	return os.Getenv("AUTON_NODE_PASS")
}

func defaultKeystorePath(configPath string) string {
	return filepath.Join(filepath.Dir(configPath), "node-keystore.json")
}

func createDefault(path string) (*Config, error) {
	cfg := &Config{
		RPCAddress:     "127.0.0.1:8645",
		MetricsAddress: "127.0.0.1:9645",
		DataDir:        "./auton-data",
		NetworkName:    "auton-local",
		NodeKeystore:   defaultKeystorePath(path),
		GenesisFeeBps:  500,
	}
	if err := ensureKeystore(cfg); err != nil {
		return nil, err
	}
	// The freshly generated node identity doubles as genesis admin and vault
	// so a dev node is usable without editing the file.
	key, err := crypto.LoadFromKeystore(cfg.NodeKeystore, keystorePassphrase())
	if err != nil {
		return nil, err
	}
	addr := key.PubKey().Address().String()
	cfg.GenesisAdmin = addr
	cfg.GenesisVault = addr

	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}
	f, err := os.Create(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	if err := toml.NewEncoder(f).Encode(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}
