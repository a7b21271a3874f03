// Package collab declares the external collaborator interfaces of
// SPEC_FULL.md §6: the minimum surface the Template Assembler and Miner
// Supervisor require from chain state, validation, consensus, wallet, and
// networking. The core never imports a concrete node package; it is wired
// against these interfaces by constructor injection, so unit tests
// substitute small fakes instead of a production node.
package collab

import (
	"time"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// BlockIndex is the minimal view of one entry in the chain of tips, per
// §6's "Chain view" collaborator contract.
type BlockIndex interface {
	Height() int32
	Hash() chainhash.Hash
	MedianTimePast() int64
	BlockTime() int64
}

// Chain is the "Chain view" collaborator: tip queries, work/version
// derivation, witness activation, and subsidy schedule.
type Chain interface {
	Tip() BlockIndex
	NextWorkRequired(tip BlockIndex, header *wire.BlockHeader) uint32
	ComputeBlockVersion(tip BlockIndex) int32
	IsWitnessEnabled(tip BlockIndex) bool
	GetBlockSubsidy(height int32) btcutil.Amount
	AdjustedTime() time.Time
}

// ValidationResult is the outcome of TestBlockValidity: either valid, or a
// rejection reason suitable for logging.
type ValidationResult struct {
	Valid  bool
	Reason string
}

// Validator is the "Validation" collaborator.
type Validator interface {
	TestBlockValidity(block *wire.MsgBlock, tip BlockIndex) ValidationResult
	ProcessNewBlock(block *wire.MsgBlock, forceProcessing bool) bool
}

// Consensus is the "Consensus helpers" collaborator.
type Consensus interface {
	IsFinalTx(tx *wire.MsgTx, height int32, lockTimeCutoff int64) bool
	GenerateCoinbaseCommitment(block *wire.MsgBlock, tip BlockIndex) []byte
	LegacySigOpCount(tx *wire.MsgTx) int64
	// LockTimeCutoffUsesMedianTimePast reports whether the locktime
	// verification flag in force is the median-time-past variant (true)
	// or the current-block-time variant (false); see SPEC_FULL.md §4.B
	// step 3.
	LockTimeCutoffUsesMedianTimePast() bool
}

// ReserveScript is a coinbase output script reserved from the wallet's
// keypool. KeepScript commits it (call on successful submission); letting
// it go out of scope without calling KeepScript releases it implicitly.
type ReserveScript interface {
	Script() []byte
	KeepScript()
}

// Wallet is the "Wallet" collaborator.
type Wallet interface {
	// GetScriptForMining returns nil if no script is available, e.g. an
	// empty keypool.
	GetScriptForMining() ReserveScript
}

// Net is the "Net" collaborator.
type Net interface {
	NodeCount() int
	IsInitialBlockDownload() bool
}
