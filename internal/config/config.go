// Package config loads the static chain/DEX topology from a YAML file,
// overlaid with environment variables (via godotenv) for secrets and
// tunables.
package config

import (
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// ChainConfig is the static, per-chain topology: RPC endpoints and
// arbitrage thresholds.
type ChainConfig struct {
	ChainID         string   `yaml:"chainId"`
	ChainIDNumeric  int64    `yaml:"chainIdNumeric"` // EIP-155 chain ID, for tx signing
	RPCURL          string   `yaml:"rpcUrl"`
	PrimaryWSURL    string   `yaml:"primaryWsUrl"`
	FallbackWSURLs  []string `yaml:"fallbackWsUrls"`
	StalenessMs     int      `yaml:"stalenessMs"`     // 5000/10000/15000 fast/medium/slow
	MinProfitUsd    float64  `yaml:"minProfitUsd"`
	MinProfitPct    float64  `yaml:"minProfitPct"`
	Confidence      float64  `yaml:"confidence"`
	ExpiryMs        int64    `yaml:"expiryMs"`
	GasEstimateUnit uint64   `yaml:"gasEstimateUnits"`
	Partition       string   `yaml:"partition"`
	ExecutorAddress string   `yaml:"executorAddress"`
	FlashLoanProtocol string `yaml:"flashLoanProtocol"` // "aave-v3" or "uniswap-v3"
	Pairs           []PairConfig `yaml:"pairs"`
}

// PairConfig is one statically configured DEX pair this chain's
// ingestion pipeline watches. Sync/Swap logs never carry token
// addresses, so this topology is the only source of truth for them.
type PairConfig struct {
	DexName   string `yaml:"dexName"`
	Address   string `yaml:"address"`
	Token0    string `yaml:"token0"`
	Token1    string `yaml:"token1"`
	Decimals0 uint8  `yaml:"decimals0"`
	Decimals1 uint8  `yaml:"decimals1"`
	// Symbol0/Symbol1 are canonical, chain-independent asset identifiers
	// (e.g. "weth", "usdc"), used to key cross-chain price comparisons
	// since the same asset's contract address differs per chain.
	Symbol0 string `yaml:"symbol0"`
	Symbol1 string `yaml:"symbol1"`
}

// RiskConfig mirrors the risk-parameter set.
type RiskConfig struct {
	TotalCapital           float64 `yaml:"totalCapital"`
	MaxDailyLossPct        float64 `yaml:"maxDailyLossPct"`
	MinEvThreshold         float64 `yaml:"minEvThreshold"`
	MinWinProbability      float64 `yaml:"minWinProbability"`
	KellyMultiplier        float64 `yaml:"kellyMultiplier"`
	MaxSingleTradeFraction float64 `yaml:"maxSingleTradeFraction"`
	MinTradeFraction       float64 `yaml:"minTradeFraction"`
}

// NonceConfig mirrors the NONCE_POOL_* variables.
type NonceConfig struct {
	PoolSize             int `yaml:"poolSize"`
	ReplenishThreshold   int `yaml:"replenishThreshold"`
	SyncIntervalSec      int `yaml:"syncIntervalSec"`
	PendingTimeoutSec    int `yaml:"pendingTimeoutSec"`
}

// FeatureFlags mirrors the feature-flag set.
type FeatureFlags struct {
	BatchedQuoter       bool `yaml:"batchedQuoter"`
	StatisticalArbitrage bool `yaml:"statisticalArbitrage"`
}

// Config is the full static configuration tree.
type Config struct {
	Chains       []ChainConfig `yaml:"chains"`
	Risk         RiskConfig    `yaml:"risk"`
	Nonce        NonceConfig   `yaml:"nonce"`
	Features     FeatureFlags  `yaml:"features"`
	RedisAddr    string        `yaml:"redisAddr"`
	MysqlDSN     string        `yaml:"-"` // from env, never checked into YAML
	WalletKeyEnc string        `yaml:"-"`
	LogLevel     string        `yaml:"logLevel"`
}

// Load reads path as YAML, then loads envPath (if non-empty) via
// godotenv and overlays secrets/tunables that must never live in the
// checked-in YAML file.
func Load(path string, envPath string) (*Config, error) {
	if envPath != "" {
		if err := godotenv.Load(envPath); err != nil && !os.IsNotExist(err) {
			return nil, fmt.Errorf("failed to load env file: %w", err)
		}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}

	cfg.applyEnvOverrides()

	if cfg.LogLevel == "" {
		cfg.LogLevel = "info"
	}

	return &cfg, nil
}

func (c *Config) applyEnvOverrides() {
	if v := os.Getenv("REDIS_ADDR"); v != "" {
		c.RedisAddr = v
	}
	if v := os.Getenv("MYSQL_DSN"); v != "" {
		c.MysqlDSN = v
	}
	if v := os.Getenv("ENC_PK"); v != "" {
		c.WalletKeyEnc = v
	}
	if v := os.Getenv("LOG_LEVEL"); v != "" {
		c.LogLevel = v
	}
	if v := os.Getenv("NONCE_POOL_SIZE"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Nonce.PoolSize = n
		}
	}
	if v := os.Getenv("NONCE_POOL_REPLENISH_THRESHOLD"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			c.Nonce.ReplenishThreshold = n
		}
	}
	if v := os.Getenv("FEATURE_BATCHED_QUOTER"); v != "" {
		c.Features.BatchedQuoter = v == "true" || v == "1"
	}
	if v := os.Getenv("FEATURE_STATISTICAL_ARBITRAGE"); v != "" {
		c.Features.StatisticalArbitrage = v == "true" || v == "1"
	}
}

// NonceSyncInterval returns the configured sync interval as a Duration,
// defaulting to 30s.
func (n NonceConfig) NonceSyncInterval() time.Duration {
	if n.SyncIntervalSec <= 0 {
		return 30 * time.Second
	}
	return time.Duration(n.SyncIntervalSec) * time.Second
}

// PendingTimeout returns the configured pending-entry timeout, defaulting
// to 5 minutes.
func (n NonceConfig) PendingTimeout() time.Duration {
	if n.PendingTimeoutSec <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(n.PendingTimeoutSec) * time.Second
}
