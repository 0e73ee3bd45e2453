package main

import (
	"fmt"
	"os"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-iv-quickstart/cycle"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/ethereum/go-ethereum/common"
	"github.com/urfave/cli/v2"
)

func Status(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	records, err := openCycleStore(cfg)
	if err != nil {
		return err
	}
	defer records.Close()

	var (
		rec   *store.CycleRecord
		found bool
	)
	if id := c.String(CycleIDFlag.Name); id != "" {
		rec, found, err = records.Get(id)
	} else {
		rec, found, err = records.Latest()
	}
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("no cycle found")
	}

	if c.Bool(PollFlag.Name) && rec.Status == store.CycleSubmitted {
		gc, err := brevis.NewGatewayClient(cfg.Gateway.URL, cfg.Gateway.Plaintext)
		if err != nil {
			return err
		}
		defer gc.Close()
		key := brevis.QueryKey{QueryHash: common.HexToHash(rec.QueryHash), Nonce: rec.Nonce}
		status, tx, err := gc.QueryStatus(c.Context, key, cfg.Gateway.DstChainId)
		if err != nil {
			return fmt.Errorf("failed to query gateway: %w", err)
		}
		switch status {
		case brevis.QueryComplete:
			rec.Status = store.CycleCompleted
			rec.TxHash = tx.Hex()
		case brevis.QueryFailed:
			rec.Status = store.CycleFailed
			rec.Err = brevis.ErrQueryFailed.Error()
		}
		if status != brevis.QueryPending {
			rec.UpdatedAt = time.Now()
			if err = records.Update(rec); err != nil {
				return err
			}
		}
	}
	cycle.WriteSummary(os.Stdout, rec)
	return nil
}

var StatusCommand = &cli.Command{
	Name:        "status",
	Usage:       "Show a recorded cycle",
	Description: "Show the latest (or --id) cycle record. With --poll, a submitted cycle is refreshed from the gateway",
	Action:      Status,
	Flags:       []cli.Flag{CycleIDFlag, PollFlag},
}
