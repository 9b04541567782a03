// Command evmdev is a standalone EVM development node: a pre-funded
// account set, a JSON-RPC surface matching spec.md §4.E, and a miner
// loop that assembles blocks on demand instead of on a real consensus
// schedule.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/ethereum/go-ethereum/log"
	"github.com/urfave/cli/v2"

	"github.com/evmdev/node/core/chain"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/internal/cliutil"
	"github.com/evmdev/node/miner"
	"github.com/evmdev/node/rpc"
)

const clientIdentifier = "evmdev"

var app = &cli.App{
	Name:    clientIdentifier,
	Usage:   "single-node EVM development chain with instant block production",
	Version: "0.1.0",
	Flags:   cliutil.Flags,
}

func init() {
	app.Action = run
	app.Before = func(c *cli.Context) error {
		cliutil.InitLogging(c)
		return nil
	}
}

func main() {
	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	cfg, err := cliutil.Resolve(c)
	if err != nil {
		return err
	}

	chn := chain.New(cfg.Patch)
	genesisHash := genesis.Build(chn, cfg.Genesis)
	log.Info("evmdev: genesis built", "hash", genesisHash, "chain", cfg.Patch.Name, "chainID", cfg.ChainID, "accounts", len(chn.Accounts()))

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	go miner.Loop(ctx, chn, cfg.Mode)

	srv := rpc.New(cfg.Listen, chn, cfg.ChainID)
	log.Info("evmdev: listening", "addr", cfg.Listen)
	return srv.ListenAndServe(ctx)
}
