package brevis

import (
	"os"
	"time"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultGatewayURL   = "appsdk.brevis.network:11080"
	DefaultCallbackGas  = 400000
	DefaultPollInterval = 12 * time.Second
)

type ProverConfig struct {
	// SetupDir holds the compiled circuit, proving key and verifying key. The
	// SDK also caches queried on-chain data under it.
	SetupDir string

	// SrsDir caches the downloaded SRS files, which can be shared between
	// circuits. Defaults to SetupDir.
	SrsDir string

	// RpcURL is used by the SDK to fetch the receipts and storage proofs that
	// go into the circuit input.
	RpcURL string

	// Source chain id.
	ChainId uint64

	// GatewayURL overrides the default Brevis gateway.
	GatewayURL string
}

func (c ProverConfig) GetSetupDir() string {
	return os.ExpandEnv(c.SetupDir)
}

func (c ProverConfig) GetSrsDir() string {
	if len(c.SrsDir) == 0 {
		return c.GetSetupDir()
	}
	return os.ExpandEnv(c.SrsDir)
}

func (c ProverConfig) gatewayOverride() []string {
	if c.GatewayURL == "" {
		return nil
	}
	return []string{c.GatewayURL}
}

type GatewayConfig struct {
	SrcChainId uint64
	DstChainId uint64
	// AppContract receives the callback with the circuit output.
	AppContract common.Address
	// Refundee gets back the unused part of the request fee.
	Refundee         common.Address
	CallbackGasLimit uint64
	// ApiKey switches to the Brevis partner flow, where the gateway pays the
	// request fee.
	ApiKey string
}
