package main

import (
	"context"
	"fmt"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-iv-quickstart/chain"
	"github.com/brevis-network/brevis-iv-quickstart/circuits"
	"github.com/brevis-network/brevis-iv-quickstart/config"
	"github.com/brevis-network/brevis-iv-quickstart/cycle"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/brevis-network/brevis-sdk/sdk"
	"github.com/celer-network/goutils/log"
	"github.com/urfave/cli/v2"
)

func loadConfig(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.Path(ConfigFlag.Name))
	if err != nil {
		return nil, err
	}
	if c.IsSet(LogLevelFlag.Name) {
		cfg.LogLevel = c.String(LogLevelFlag.Name)
	}
	cfg.ApplyLogLevel()
	return cfg, nil
}

func openCycleStore(cfg *config.Config) (*store.CycleStore, error) {
	kv, err := store.InitStore(cfg.Store.Type, cfg.StoreOptions())
	if err != nil {
		return nil, fmt.Errorf("failed to open %s store: %w", cfg.Store.Type, err)
	}
	return store.NewCycleStore(kv), nil
}

func newAppCircuit() sdk.AppCircuit {
	return &circuits.AppCircuit{}
}

// newRunner wires a cycle runner from the config. The returned func releases
// the gateway connection.
func newRunner(ctx context.Context, cfg *config.Config, records cycle.RecordStore) (*cycle.Runner, func(), error) {
	if err := cfg.ValidateSubmission(); err != nil {
		return nil, nil, err
	}
	approximator, err := cfg.Approximator()
	if err != nil {
		return nil, nil, err
	}
	provider, err := chain.Dial(ctx, cfg.RpcURL, cfg.ChainId, cfg.ProviderConfig())
	if err != nil {
		return nil, nil, err
	}
	prover, err := brevis.NewLocalProver(newAppCircuit, cfg.ProverConfig())
	if err != nil {
		return nil, nil, err
	}
	gc, err := brevis.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.Plaintext)
	if err != nil {
		return nil, nil, err
	}
	gateway := brevis.NewAppGateway(cfg.GatewayConfig(), gc, time.Duration(cfg.Gateway.PollInterval))
	runner, err := cycle.NewRunner(cfg.CycleConfig(), approximator, provider, prover, gateway, records)
	if err != nil {
		_ = gc.Close()
		return nil, nil, err
	}
	return runner, func() {
		if err := gc.Close(); err != nil {
			log.Warnf("failed to close gateway connection: %s", err)
		}
	}, nil
}
