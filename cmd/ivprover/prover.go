package main

import (
	"github.com/brevis-network/brevis-iv-quickstart/brevis"
	"github.com/brevis-network/brevis-sdk/sdk/prover"
	"github.com/celer-network/goutils/log"
	"github.com/urfave/cli/v2"
)

func Compile(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	pc := cfg.ProverConfig()
	_, _, _, vkHash, err := brevis.Compile(newAppCircuit(), pc)
	if err != nil {
		return err
	}
	log.Infof("setup saved to %s, vk hash %x", pc.GetSetupDir(), vkHash)
	return nil
}

var CompileCommand = &cli.Command{
	Name:        "compile",
	Usage:       "Compile the circuit and save the proving and verifying keys",
	Description: "Compile the circuit and run the setup. The keys go to the setup dir, the downloaded SRS to the srs dir",
	Action:      Compile,
}

// Serve starts the SDK prover service, which proves requests sent by clients
// in other languages.
func Serve(c *cli.Context) error {
	cfg, err := loadConfig(c)
	if err != nil {
		return err
	}
	port := cfg.Prover.ServePort
	if c.IsSet(PortFlag.Name) {
		port = c.Uint(PortFlag.Name)
	}
	proverService, err := prover.NewService(newAppCircuit(), prover.ServiceConfig{
		SetupDir: cfg.Prover.SetupDir,
		SrsDir:   cfg.Prover.SrsDir,
		RpcURL:   cfg.RpcURL,
		ChainId:  int(cfg.ChainId),
	})
	if err != nil {
		return err
	}
	log.Infof("prover service listening on port %d", port)
	return proverService.Serve("", port)
}

var ServeCommand = &cli.Command{
	Name:   "serve",
	Usage:  "Serve the prover over gRPC",
	Action: Serve,
	Flags:  []cli.Flag{PortFlag},
}
