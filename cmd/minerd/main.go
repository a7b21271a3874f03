// Command minerd is the process entrypoint wiring the Ambient Stack
// configuration layer, logging, and the Miner Supervisor's COINBASE_FLAGS
// together, per SPEC_FULL.md §6's CLI surface.
//
// It does not itself supply collab.Chain/collab.Validator/collab.Consensus/
// collab.Wallet/collab.Net implementations: those come from the embedding
// full node, which SPEC_FULL.md §1 explicitly treats as an external
// collaborator rather than part of this subsystem's scope. This binary
// resolves and logs the effective configuration a node would hand to
// miner.NewSupervisor, mirroring the teacher's own separation between
// conf/log (wired here) and the blockchain/net/wallet packages it never
// touches.
package main

import (
	"fmt"
	"os"

	"github.com/VadiqueMe/TheHolyRogerCoin/conf"
	"github.com/VadiqueMe/TheHolyRogerCoin/log"
	"github.com/VadiqueMe/TheHolyRogerCoin/mempool"
	"github.com/VadiqueMe/TheHolyRogerCoin/miner"
	"github.com/VadiqueMe/TheHolyRogerCoin/mining"
)

func main() {
	opts, err := conf.ParseArgs(os.Args[1:])
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	if err := log.Init(opts.DataDir, log.LevelFromName(opts.DebugLevel)); err != nil {
		fmt.Fprintln(os.Stderr, "minerd: failed to initialize logging:", err)
		os.Exit(1)
	}

	overrides := conf.NewOverrides(opts.ConfigFile)
	miner.SetCoinbaseFlags(opts.CoinbaseTags())

	miningCfg := mining.DefaultConfig(mempool.NewFeeRate(opts.BlockMinTxFee), opts.BlockMaxWeight)
	miningCfg.MaxConsecutiveFailures = overrides.MaxConsecutiveFailures()
	miningCfg.WeightSlack = overrides.WeightSlack()
	miningCfg.PrintPriority = opts.PrintPriority

	log.Infof("minerd: resolved config %s sortstrategy:%s maxconsecutivefailures:%d weightslack:%d",
		opts.String(), overrides.SortStrategy(), miningCfg.MaxConsecutiveFailures, miningCfg.WeightSlack)

	if !opts.Gen {
		log.Infof("minerd: -gen not set, exiting without starting a worker pool")
		return
	}

	log.Infof("minerd: -gen set with genproclimit %d, but no chain/wallet/net/validator/consensus "+
		"collaborators are wired into this binary; an embedding node must call miner.NewSupervisor "+
		"with its own collab implementations and this resolved mining.Config", opts.GenProcLimit)
}
