package main

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"os"
	"time"

	"github.com/brevis-network/brevis-iv-quickstart/cycle"
	"github.com/brevis-network/brevis-iv-quickstart/store"
	"github.com/celer-network/goutils/log"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/cors"
	"github.com/urfave/cli/v2"
)

func Run(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	records, err := openCycleStore(cfg)
	if err != nil {
		return err
	}
	defer records.Close()

	runner, release, err := newRunner(c.Context, cfg, records)
	if err != nil {
		return err
	}
	defer release()

	addr := cfg.MetricsAddr
	if c.IsSet(MetricsAddrFlag.Name) {
		addr = c.String(MetricsAddrFlag.Name)
	}
	if addr != "" {
		go serveMetrics(c.Context, addr, records)
	}
	return runner.Run(c.Context)
}

// serveMetrics serves prometheus metrics and the latest cycle record until ctx
// is done.
func serveMetrics(ctx context.Context, addr string, records *store.CycleStore) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	mux.HandleFunc("/cycles/latest", func(w http.ResponseWriter, r *http.Request) {
		rec, found, err := records.Latest()
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		if !found {
			http.NotFound(w, r)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(rec)
	})

	s := &http.Server{
		Addr:              addr,
		Handler:           cors.Default().Handler(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	go func() {
		<-ctx.Done()
		if err := s.Shutdown(context.Background()); err != nil {
			log.Errorf("failed to shutdown metrics server: %s", err)
		}
	}()
	log.Infof("serving metrics on %s", addr)
	if err := s.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Errorf("metrics server: %s", err)
	}
}

var RunCommand = &cli.Command{
	Name:        "run",
	Usage:       "Run proof submission cycles until interrupted",
	Description: "Run a proof submission cycle, then wait the configured period (or retry delay after a failure) and repeat",
	Action:      Run,
	Flags:       []cli.Flag{MetricsAddrFlag},
}

func Once(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	records, err := openCycleStore(cfg)
	if err != nil {
		return err
	}
	defer records.Close()

	runner, release, err := newRunner(c.Context, cfg, records)
	if err != nil {
		return err
	}
	defer release()

	rec, err := runner.RunOnce(c.Context)
	if rec != nil {
		cycle.WriteSummary(os.Stdout, rec)
	}
	return err
}

var OnceCommand = &cli.Command{
	Name:   "once",
	Usage:  "Run a single proof submission cycle",
	Action: Once,
}
