package main

import (
	"fmt"
	"os"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/approx"
	"github.com/brevis-network/brevis-iv-quickstart/chain"
	"github.com/brevis-network/brevis-iv-quickstart/config"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/urfave/cli/v2"
)

func Approx(c *cli.Context) error {
	approximator := approx.NewDefaultApproximator()
	rpcURL := c.String(RpcURLFlag.Name)
	if c.IsSet(ConfigFlag.Name) {
		cfg, err := loadConfig(c)
		if err != nil {
			return err
		}
		if approximator, err = cfg.Approximator(); err != nil {
			return err
		}
		if rpcURL == "" {
			rpcURL = cfg.RpcURL
		}
	}
	chainId := c.Uint64(ChainIdFlag.Name)

	var ref approx.Block
	if c.IsSet(RefNumberFlag.Name) {
		if !c.IsSet(RefTimestampFlag.Name) {
			return fmt.Errorf("--%s requires --%s", RefNumberFlag.Name, RefTimestampFlag.Name)
		}
		ref = approx.Block{Number: c.Int64(RefNumberFlag.Name), Timestamp: c.Int64(RefTimestampFlag.Name)}
	} else {
		if rpcURL == "" {
			return fmt.Errorf("either --%s or an rpc url is required", RefNumberFlag.Name)
		}
		provider, err := chain.Dial(c.Context, rpcURL, chainId, config.Default().ProviderConfig())
		if err != nil {
			return err
		}
		if ref, err = provider.SafeHead(c.Context); err != nil {
			return err
		}
	}

	ts := ref.Timestamp
	if c.IsSet(TimestampFlag.Name) {
		ts = c.Int64(TimestampFlag.Name)
	}
	blocks, err := approximator.Approximate(chainId, ts, ref, c.String(IntervalFlag.Name), c.Int(PeriodsFlag.Name))
	if err != nil {
		return err
	}

	t := table.NewWriter()
	t.SetStyle(table.StyleLight)
	t.SetOutputMirror(os.Stdout)
	t.SetTitle(fmt.Sprintf("chain %d, reference %s", chainId, ref))
	t.AppendHeader(table.Row{"#", "block", "timestamp", "time (utc)"})
	for i, b := range blocks {
		t.AppendRow(table.Row{i, b.Number, b.Timestamp, time.Unix(b.Timestamp, 0).UTC().Format(time.RFC3339)})
	}
	t.Render()
	return nil
}

var ApproxCommand = &cli.Command{
	Name:        "approx",
	Usage:       "Approximate the blocks at the start of consecutive periods",
	Description: "Estimate the block numbers at --periods timestamps spaced --interval apart, ending at --timestamp, from a reference block and the chain's average block time",
	Action:      Approx,
	Flags: []cli.Flag{
		ChainIdFlag,
		TimestampFlag,
		IntervalFlag,
		PeriodsFlag,
		RefNumberFlag,
		RefTimestampFlag,
		RpcURLFlag,
	},
}
