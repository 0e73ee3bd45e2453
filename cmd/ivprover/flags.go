package main

import (
	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/urfave/cli/v2"
)

const envPrefix = "IVPROVER_"

var (
	ConfigFlag = &cli.PathFlag{
		Name:    "config",
		Usage:   "path of the JSON config file",
		EnvVars: []string{envPrefix + "CONFIG"},
	}
	LogLevelFlag = &cli.StringFlag{
		Name:    "log-level",
		Usage:   "overrides the config log level (trace, debug, info, warn, error)",
		EnvVars: []string{envPrefix + "LOG_LEVEL"},
	}
	MetricsAddrFlag = &cli.StringFlag{
		Name:    "metrics-addr",
		Usage:   "address to serve /metrics and /cycles/latest on, overrides the config",
		EnvVars: []string{envPrefix + "METRICS_ADDR"},
	}
	PortFlag = &cli.UintFlag{
		Name:  "port",
		Usage: "port of the prover service, overrides the config",
	}
	CycleIDFlag = &cli.StringFlag{
		Name:  "id",
		Usage: "cycle id (request digest), defaults to the latest cycle",
	}
	PollFlag = &cli.BoolFlag{
		Name:  "poll",
		Usage: "query the gateway for the status of a submitted cycle",
	}
	ChainIdFlag = &cli.Uint64Flag{
		Name:  "chain-id",
		Usage: "chain to approximate blocks of",
		Value: approx.ChainIdMainnet,
	}
	TimestampFlag = &cli.Int64Flag{
		Name:  "timestamp",
		Usage: "unix seconds of the most recent period, defaults to the reference block's timestamp",
	}
	IntervalFlag = &cli.StringFlag{
		Name:  "interval",
		Usage: "period length (1h, 6h, 12h, 1d)",
		Value: approx.Interval1d,
	}
	PeriodsFlag = &cli.IntFlag{
		Name:  "periods",
		Usage: "number of periods",
		Value: 7,
	}
	RefNumberFlag = &cli.Int64Flag{
		Name:  "ref-number",
		Usage: "reference block number, fetched from the rpc when not set",
	}
	RefTimestampFlag = &cli.Int64Flag{
		Name:  "ref-timestamp",
		Usage: "reference block timestamp",
	}
	RpcURLFlag = &cli.StringFlag{
		Name:    "rpc-url",
		Usage:   "rpc to fetch the reference block from, overrides the config",
		EnvVars: []string{envPrefix + "RPC_URL"},
	}
)
