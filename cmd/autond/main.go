package main

import (
	"flag"
	"fmt"
	"log/slog"
	"math/big"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"autonledger/config"
	"autonledger/core"
	"autonledger/crypto"
	"autonledger/observability/logging"
	"autonledger/rpc"
	"autonledger/storage"
	"autonledger/storage/trie"

	"github.com/prometheus/client_golang/prometheus/promhttp"
)

func main() {
	configFile := flag.String("config", "./config.toml", "Path to the configuration file")
	flag.Parse()

	env := strings.TrimSpace(os.Getenv("AUTON_ENV"))
	logger := logging.Setup("autond", env)

	cfg, err := config.Load(*configFile)
	if err != nil {
		logger.Error("Failed to load config", slog.Any("error", err))
		os.Exit(1)
	}

	if err := os.MkdirAll(cfg.DataDir, 0o755); err != nil {
		logger.Error("Failed to prepare data directory", slog.Any("error", err))
		os.Exit(1)
	}

	metaDB, err := storage.NewLevelDB(filepath.Join(cfg.DataDir, "meta"))
	if err != nil {
		logger.Error("Failed to open metadata store", slog.Any("error", err))
		os.Exit(1)
	}
	defer metaDB.Close()

	trieDB, stateKV, err := trie.OpenTrieDB(filepath.Join(cfg.DataDir, "state"))
	if err != nil {
		logger.Error("Failed to open state database", slog.Any("error", err))
		os.Exit(1)
	}
	defer stateKV.Close()

	node, err := core.NewNode(metaDB, trieDB)
	if err != nil {
		logger.Error("Failed to create node", slog.Any("error", err))
		os.Exit(1)
	}

	allocations, err := genesisAllocations(cfg)
	if err != nil {
		logger.Error("Failed to parse genesis balances", slog.Any("error", err))
		os.Exit(1)
	}
	admin, vault, err := genesisIdentities(cfg)
	if err != nil {
		logger.Error("Failed to resolve genesis identities", slog.Any("error", err))
		os.Exit(1)
	}
	if err := node.EnsureGenesis(admin, cfg.GenesisFeeBps, vault, allocations); err != nil {
		logger.Error("Failed to apply genesis state", slog.Any("error", err))
		os.Exit(1)
	}

	if addr := strings.TrimSpace(cfg.MetricsAddress); addr != "" {
		go func() {
			mux := http.NewServeMux()
			mux.Handle("/metrics", promhttp.Handler())
			logger.Info("serving metrics", slog.String("addr", addr))
			if err := http.ListenAndServe(addr, mux); err != nil {
				logger.Error("metrics server terminated", slog.Any("error", err))
			}
		}()
	}

	logger.Info("node initialised",
		slog.String("network", cfg.NetworkName),
		slog.String("stateRoot", node.StateRoot().Hex()),
	)

	server := rpc.NewServer(node)
	if err := server.Start(cfg.RPCAddress); err != nil {
		logger.Error("RPC server terminated", slog.Any("error", err))
		os.Exit(1)
	}
}

func genesisIdentities(cfg *config.Config) ([20]byte, [20]byte, error) {
	admin, err := decodeConfigAddress(cfg.GenesisAdmin, "GenesisAdmin")
	if err != nil {
		return [20]byte{}, [20]byte{}, err
	}
	vault := admin
	if strings.TrimSpace(cfg.GenesisVault) != "" {
		vault, err = decodeConfigAddress(cfg.GenesisVault, "GenesisVault")
		if err != nil {
			return [20]byte{}, [20]byte{}, err
		}
	}
	return admin, vault, nil
}

func decodeConfigAddress(value string, field string) ([20]byte, error) {
	trimmed := strings.TrimSpace(value)
	if trimmed == "" {
		return [20]byte{}, fmt.Errorf("%s must be configured", field)
	}
	addr, err := crypto.DecodeAddress(trimmed)
	if err != nil {
		return [20]byte{}, fmt.Errorf("invalid %s: %w", field, err)
	}
	return addr.Array(), nil
}

func genesisAllocations(cfg *config.Config) ([]core.GenesisAllocation, error) {
	allocations := make([]core.GenesisAllocation, 0, len(cfg.GenesisBalances))
	for _, entry := range cfg.GenesisBalances {
		addr, err := decodeConfigAddress(entry.Address, "GenesisBalances.Address")
		if err != nil {
			return nil, err
		}
		amount, ok := new(big.Int).SetString(strings.TrimSpace(entry.Amount), 10)
		if !ok || amount.Sign() < 0 {
			return nil, fmt.Errorf("invalid genesis amount %q for %s", entry.Amount, entry.Address)
		}
		allocations = append(allocations, core.GenesisAllocation{Address: addr, Amount: amount})
	}
	return allocations, nil
}
