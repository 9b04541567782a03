// Package cliutil defines the CLI surface of spec §6: the flag set and
// the translation from parsed flags into the Config types the rest of
// the system is built around (genesis.Config, vm.Patch, miner.Mode).
package cliutil

import (
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"os"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/log"
	isatty "github.com/mattn/go-isatty"
	"github.com/urfave/cli/v2"

	"github.com/evmdev/node/constants"
	"github.com/evmdev/node/genesis"
	"github.com/evmdev/node/miner"
	"github.com/evmdev/node/vm"
)

// Flags is the complete --private-key/--balance/--listen/--accounts/
// --chain/--minemode surface named in spec.md §6.
var Flags = []cli.Flag{
	&cli.StringFlag{
		Name:  "private-key",
		Usage: "hex-encoded secp256k1 key for the primary funded account (random if unset)",
	},
	&cli.StringFlag{
		Name:  "balance",
		Usage: "starting balance (hex, e.g. 0x10000000000000000000000000000) for every funded account",
		Value: "0x10000000000000000000000000000",
	},
	&cli.StringFlag{
		Name:  "listen",
		Usage: "JSON-RPC listen address",
		Value: constants.DefaultListenAddr,
	},
	&cli.IntFlag{
		Name:  "accounts",
		Usage: "number of additional randomly generated funded accounts",
		Value: constants.DefaultAccountCount,
	},
	&cli.StringFlag{
		Name:  "chain",
		Usage: "rule-set patch: classic, classic-eip160, foundation-byzantium, morden-homestead, morden-eip160, expanse-eip160, musicoin-eip160, ubiq-eip160, ellaism-eip160",
		Value: "foundation-byzantium",
	},
	&cli.StringFlag{
		Name:  "minemode",
		Usage: "block assembly strategy: AllPending or OnePerBlock",
		Value: "AllPending",
	},
	&cli.BoolFlag{
		Name:  "json-log",
		Usage: "emit structured JSON logs instead of a terminal-colored format",
	},
}

// InitLogging wires go-ethereum/log's default logger to a terminal
// handler when stderr is a TTY, or a JSON handler otherwise — matching
// spec.md's ambient logging section and the teacher's own
// plugin/evm/log.InitLogger split.
func InitLogging(c *cli.Context) {
	jsonFormat := c.Bool("json-log") || !isatty.IsTerminal(os.Stderr.Fd())
	if jsonFormat {
		log.SetDefault(log.NewLogger(log.JSONHandler(os.Stderr)))
		return
	}
	log.SetDefault(log.NewLogger(log.NewTerminalHandler(os.Stderr, true)))
}

// Resolved is every flag value translated into the types the rest of the
// system consumes.
type Resolved struct {
	Listen   string
	ChainID  uint64
	Patch    *vm.Patch
	Mode     miner.Mode
	Genesis  genesis.Config
}

// Resolve parses and validates c's flags into a Resolved configuration.
func Resolve(c *cli.Context) (*Resolved, error) {
	patch, err := vm.PatchByName(c.String("chain"))
	if err != nil {
		return nil, err
	}

	key, err := resolvePrivateKey(c.String("private-key"))
	if err != nil {
		return nil, err
	}

	balance, err := parseBigInt(c.String("balance"))
	if err != nil {
		return nil, fmt.Errorf("cliutil: invalid --balance %q: %w", c.String("balance"), err)
	}

	count := c.Int("accounts")
	if count < 0 {
		return nil, fmt.Errorf("cliutil: --accounts must be >= 0, got %d", count)
	}
	seed := make([]*ecdsa.PrivateKey, count)
	for i := range seed {
		seed[i] = genesis.RandomAccount()
	}

	return &Resolved{
		Listen:  c.String("listen"),
		ChainID: patch.ChainID.Uint64(),
		Patch:   patch,
		Mode:    miner.ModeByName(c.String("minemode")),
		Genesis: genesis.Config{
			PrivateKey:  key,
			Balance:     balance,
			AccountSeed: seed,
		},
	}, nil
}

func resolvePrivateKey(hexKey string) (*ecdsa.PrivateKey, error) {
	if hexKey == "" {
		return genesis.RandomAccount(), nil
	}
	key, err := crypto.HexToECDSA(trimHexPrefix(hexKey))
	if err != nil {
		return nil, fmt.Errorf("cliutil: invalid --private-key: %w", err)
	}
	return key, nil
}

func trimHexPrefix(s string) string {
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		return s[2:]
	}
	return s
}

// parseBigInt accepts both "0x..." hex and plain decimal, matching the
// style of --balance's default value.
func parseBigInt(s string) (*big.Int, error) {
	base := 10
	if len(s) >= 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base = 16
		s = s[2:]
	}
	n, ok := new(big.Int).SetString(s, base)
	if !ok {
		return nil, fmt.Errorf("not a valid integer")
	}
	return n, nil
}
