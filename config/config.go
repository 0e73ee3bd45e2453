// Package config loads the prover's JSON configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-iv-quickstart/chain"
	"github.com/brevis-network/brevis-iv-quickstart/circuits"
	"github.com/brevis-network/brevis-iv-quickstart/cycle"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/celer-network/goutils/log"
	"github.com/ethereum/go-ethereum/common"
)

// Duration is a time.Duration written as a string like "24h" in JSON.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var s string
	if err := json.Unmarshal(b, &s); err != nil {
		return fmt.Errorf("duration must be a string: %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

type ProverConfig struct {
	SetupDir   string `json:"setup_dir"`
	SrsDir     string `json:"srs_dir"`
	ServePort  uint   `json:"serve_port"`
	GatewayURL string `json:"gateway_url"`
}

type GatewayConfig struct {
	URL              string   `json:"url"`
	Plaintext        bool     `json:"plaintext"`
	DstChainId       uint64   `json:"dst_chain_id"`
	AppContract      string   `json:"app_contract"`
	Refundee         string   `json:"refundee"`
	CallbackGasLimit uint64   `json:"callback_gas_limit"`
	ApiKey           string   `json:"api_key"`
	PollInterval     Duration `json:"poll_interval"`
}

type StoreConfig struct {
	Type    string          `json:"type"`
	Options json.RawMessage `json:"options"`
}

type Config struct {
	LogLevel string `json:"log_level"`

	ChainId              uint64 `json:"chain_id"`
	RpcURL               string `json:"rpc_url"`
	MaxLogRange          uint64 `json:"max_log_range"`
	ConcurrentFetchLimit int    `json:"concurrent_fetch_limit"`

	Pool       string   `json:"pool"`
	Lookback   string   `json:"lookback"`
	TopK       int      `json:"top_k"`
	Period     Duration `json:"period"`
	RetryDelay Duration `json:"retry_delay"`

	// BlockTimes and Intervals extend the approximator's default tables.
	// BlockTimes is keyed by decimal chain id.
	BlockTimes map[string]int64 `json:"block_times"`
	Intervals  map[string]int64 `json:"intervals"`

	Prover      ProverConfig  `json:"prover"`
	Gateway     GatewayConfig `json:"gateway"`
	Store       StoreConfig   `json:"store"`
	MetricsAddr string        `json:"metrics_addr"`
}

func Default() *Config {
	return &Config{
		LogLevel:             "info",
		ChainId:              approx.ChainIdMainnet,
		MaxLogRange:          chain.DefaultMaxLogRange,
		ConcurrentFetchLimit: chain.DefaultConcurrentFetchLimit,
		Pool:                 circuits.UsdcWeth5BpsPool.Hex(),
		Lookback:             cycle.DefaultLookback,
		TopK:                 circuits.MaxReceipts,
		Period:               Duration(cycle.DefaultPeriod),
		RetryDelay:           Duration(cycle.DefaultRetryDelay),
		Prover: ProverConfig{
			SetupDir:  "$HOME/circuitOut",
			SrsDir:    "$HOME/kzgsrs",
			ServePort: 33247,
		},
		Gateway: GatewayConfig{
			URL:              brevis.DefaultGatewayURL,
			DstChainId:       approx.ChainIdSepolia,
			CallbackGasLimit: brevis.DefaultCallbackGas,
			PollInterval:     Duration(brevis.DefaultPollInterval),
		},
		Store: StoreConfig{Type: store.TypeFile},
	}
}

// Load reads a JSON config file over the defaults. Environment variables in
// the rpc url, directories and api key are expanded, so secrets can stay out
// of the file.
func Load(path string) (*Config, error) {
	c := Default()
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read config %s: %w", path, err)
		}
		if err = json.Unmarshal(raw, c); err != nil {
			return nil, fmt.Errorf("failed to parse config %s: %w", path, err)
		}
	}
	c.expandEnv()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func (c *Config) expandEnv() {
	c.RpcURL = os.ExpandEnv(c.RpcURL)
	c.Gateway.ApiKey = os.ExpandEnv(c.Gateway.ApiKey)
	c.Prover.SetupDir = os.ExpandEnv(c.Prover.SetupDir)
	c.Prover.SrsDir = os.ExpandEnv(c.Prover.SrsDir)
}

func (c *Config) Validate() error {
	if c.RpcURL == "" {
		return fmt.Errorf("rpc_url is required")
	}
	if !common.IsHexAddress(c.Pool) {
		return fmt.Errorf("invalid pool address %q", c.Pool)
	}
	// the circuit constrains receipts and slots to one mainnet pool
	if common.HexToAddress(c.Pool) != circuits.UsdcWeth5BpsPool {
		return fmt.Errorf("pool %s is not supported, the circuit only proves pool %s", c.Pool, circuits.UsdcWeth5BpsPool.Hex())
	}
	if c.ChainId != approx.ChainIdMainnet {
		return fmt.Errorf("chain_id %d is not supported, pool %s is on chain %d", c.ChainId, circuits.UsdcWeth5BpsPool.Hex(), approx.ChainIdMainnet)
	}
	for name, addr := range map[string]string{"app_contract": c.Gateway.AppContract, "refundee": c.Gateway.Refundee} {
		if addr != "" && !common.IsHexAddress(addr) {
			return fmt.Errorf("invalid gateway %s %q", name, addr)
		}
	}
	if c.TopK < 1 || c.TopK > circuits.MaxReceipts {
		return fmt.Errorf("top_k must be in [1, %d], got %d", circuits.MaxReceipts, c.TopK)
	}
	if c.Period < 0 || c.RetryDelay < 0 || c.Gateway.PollInterval < 0 {
		return fmt.Errorf("durations cannot be negative")
	}
	a, err := c.Approximator()
	if err != nil {
		return err
	}
	if _, err = a.BlockTime(c.ChainId); err != nil {
		return err
	}
	if _, err = a.IntervalSeconds(c.Lookback); err != nil {
		return err
	}
	return store.CheckType(c.Store.Type)
}

// ValidateSubmission checks the settings only needed to submit queries to the
// gateway.
func (c *Config) ValidateSubmission() error {
	if common.HexToAddress(c.Gateway.AppContract) == (common.Address{}) {
		return fmt.Errorf("gateway app_contract is required to submit queries")
	}
	if c.Gateway.ApiKey == "" && common.HexToAddress(c.Gateway.Refundee) == (common.Address{}) {
		return fmt.Errorf("gateway refundee is required unless api_key is set")
	}
	return nil
}

// ApplyLogLevel sets the global log level.
func (c *Config) ApplyLogLevel() {
	if c.LogLevel != "" {
		log.SetLevelByName(c.LogLevel)
	}
}

// Approximator merges the configured tables over the defaults.
func (c *Config) Approximator() (*approx.Approximator, error) {
	blockTimes := approx.DefaultChainBlockTimes()
	for id, seconds := range c.BlockTimes {
		chainId, err := strconv.ParseUint(id, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid chain id %q in block_times: %w", id, err)
		}
		if seconds <= 0 {
			return nil, fmt.Errorf("block time of chain %d must be positive, got %d", chainId, seconds)
		}
		blockTimes[chainId] = seconds
	}
	intervals := approx.DefaultIntervals()
	for name, seconds := range c.Intervals {
		if seconds <= 0 {
			return nil, fmt.Errorf("interval %s must be positive, got %d", name, seconds)
		}
		intervals[name] = seconds
	}
	return approx.NewApproximator(blockTimes, intervals), nil
}

func (c *Config) ProviderConfig() chain.ProviderConfig {
	return chain.ProviderConfig{
		MaxLogRange:          c.MaxLogRange,
		ConcurrentFetchLimit: c.ConcurrentFetchLimit,
	}
}

func (c *Config) CycleConfig() cycle.Config {
	return cycle.Config{
		ChainId:    c.ChainId,
		Pool:       common.HexToAddress(c.Pool),
		Lookback:   c.Lookback,
		TopK:       c.TopK,
		Period:     time.Duration(c.Period),
		RetryDelay: time.Duration(c.RetryDelay),
	}
}

func (c *Config) ProverConfig() brevis.ProverConfig {
	return brevis.ProverConfig{
		SetupDir:   c.Prover.SetupDir,
		SrsDir:     c.Prover.SrsDir,
		RpcURL:     c.RpcURL,
		ChainId:    c.ChainId,
		GatewayURL: c.Prover.GatewayURL,
	}
}

func (c *Config) GatewayConfig() brevis.GatewayConfig {
	return brevis.GatewayConfig{
		SrcChainId:       c.ChainId,
		DstChainId:       c.Gateway.DstChainId,
		AppContract:      common.HexToAddress(c.Gateway.AppContract),
		Refundee:         common.HexToAddress(c.Gateway.Refundee),
		CallbackGasLimit: c.Gateway.CallbackGasLimit,
		ApiKey:           c.Gateway.ApiKey,
	}
}

// StoreOptions returns the store options as the JSON string store.InitStore
// expects.
func (c *Config) StoreOptions() string {
	if len(c.Store.Options) == 0 || string(c.Store.Options) == "null" {
		return ""
	}
	return string(c.Store.Options)
}
