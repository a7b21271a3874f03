package mining

import (
	"sort"
	"time"

	"github.com/VadiqueMe/TheHolyRogerCoin/collab"
	"github.com/VadiqueMe/TheHolyRogerCoin/log"
	"github.com/VadiqueMe/TheHolyRogerCoin/mempool"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/txscript"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/btree"
	"gopkg.in/fatih/set.v0"
)

// Tuning constants not bound by consensus, per SPEC_FULL.md §9's resolution
// of the corresponding Open Question: the reference implementation's 1000
// and 4000 are made configurable rather than hardcoded.
const (
	DefaultMaxConsecutiveFailures = 1000
	DefaultWeightSlack            = 4000

	// WitnessScaleFactor: witness bytes count 1, non-witness bytes count 4.
	WitnessScaleFactor = 4

	// MaxBlockWeight is the system default block weight ceiling.
	MaxBlockWeight = 4_000_000

	// MaxBlockSigOpsCost bounds the weighted sig-op count per block.
	MaxBlockSigOpsCost = 80_000

	// MaxCoinbaseScriptSigSize bounds the coinbase scriptSig (§6's
	// wire-relevant invariant).
	MaxCoinbaseScriptSigSize = 100
)

// MempoolSource is the subset of *mempool.Pool the assembler needs; defined
// here (rather than in collab) because it is expressed directly in terms
// of mempool.TxEntry. Declaring it as an interface keeps tests free to
// substitute a fake pool without constructing a real one.
type MempoolSource interface {
	RLock()
	RUnlock()
	SortedByAncestorScore() *btree.BTree
	CalculateDescendants(entry *mempool.TxEntry, setDescendants set.Interface)
	CalculateMempoolAncestors(entry *mempool.TxEntry, limitAncestorCount, limitAncestorSize,
		limitDescendantCount, limitDescendantSize uint64, searchForParents bool) (set.Interface, error)
}

// Config is the Template Assembler configuration of SPEC_FULL.md §4.B.
type Config struct {
	MinFeeRate             mempool.FeeRate
	MaxWeight              int64
	MaxConsecutiveFailures int
	WeightSlack            int64
	IncludeWitness         bool
	PriorityPolicy         PriorityPolicy

	// PrintPriority logs fee and txid for each transaction committed to
	// the block, per the -printpriority CLI option of SPEC_FULL.md §6.
	PrintPriority bool
}

// PriorityPolicy is the disabled legacy priority pre-pass hook of
// SPEC_FULL.md §4.B's "Supplemented" note. Left unimplemented on purpose:
// DefaultConfig wires in noPriorityPolicy, whose AddPriorityTxs is a
// documented no-op, mirroring the reference implementation's own empty
// addPriorityTxs() stub.
type PriorityPolicy interface {
	AddPriorityTxs(a *Assembler)
}

type noPriorityPolicy struct{}

func (noPriorityPolicy) AddPriorityTxs(*Assembler) {}

// DefaultConfig clamps maxWeight into [4000, MaxBlockWeight-4000] per §4.B.
func DefaultConfig(minFeeRate mempool.FeeRate, maxWeight int64) Config {
	if maxWeight < 4000 {
		maxWeight = 4000
	}
	if maxWeight > MaxBlockWeight-4000 {
		maxWeight = MaxBlockWeight - 4000
	}
	return Config{
		MinFeeRate:             minFeeRate,
		MaxWeight:              maxWeight,
		MaxConsecutiveFailures: DefaultMaxConsecutiveFailures,
		WeightSlack:            DefaultWeightSlack,
		PriorityPolicy:         noPriorityPolicy{},
	}
}

// Template is the Block Template of SPEC_FULL.md §3.
type Template struct {
	Block             *wire.MsgBlock
	Fees              []btcutil.Amount
	SigOpCosts        []int64
	WitnessCommitment []byte
}

// Assembler is the Template Assembler of SPEC_FULL.md §4.B. A fresh
// Assembler is created per CreateNewBlock call by the Miner Supervisor;
// none of its fields are safe for concurrent reuse across assemblies.
//
// Grounded on _examples/copernet-copernicus/mining/mining.go's
// BlockAssembler, generalized from core.Block/core.Tx to btcsuite wire
// types and from the package-level blockchain.GMemPool global to injected
// collaborators.
type Assembler struct {
	cfg Config

	chain     collab.Chain
	validator collab.Validator
	consensus collab.Consensus
	pool      MempoolSource

	tpl *Template

	inBlock map[chainhash.Hash]struct{}
	failed  map[chainhash.Hash]struct{}

	blockWeight int64
	blockSigOps int64
	blockFees   btcutil.Amount
	blockTx     int64

	height         int32
	lockTimeCutoff int64

	// LastBlockTx/LastBlockWeight mirror the reference implementation's
	// nLastBlockTx/nLastBlockWeight globals, but as plain (non-atomic)
	// instance fields that CreateNewBlock sets after its selection loop.
	LastBlockTx     int64
	LastBlockWeight int64
}

func NewAssembler(cfg Config, chain collab.Chain, validator collab.Validator, consensus collab.Consensus, pool MempoolSource) *Assembler {
	if cfg.PriorityPolicy == nil {
		cfg.PriorityPolicy = noPriorityPolicy{}
	}
	return &Assembler{
		cfg:       cfg,
		chain:     chain,
		validator: validator,
		consensus: consensus,
		pool:      pool,
	}
}

func (a *Assembler) reset() {
	a.tpl = &Template{Block: wire.NewMsgBlock(&wire.BlockHeader{})}
	a.inBlock = make(map[chainhash.Hash]struct{})
	a.failed = make(map[chainhash.Hash]struct{})
	a.blockWeight = 4000
	a.blockSigOps = 400
	a.blockTx = 0
	a.blockFees = 0
}

// CreateNewBlock is the entry contract of SPEC_FULL.md §4.B.
func (a *Assembler) CreateNewBlock(coinbaseScript []byte, includeWitnessRequested bool) (*Template, error) {
	if len(coinbaseScript) == 0 {
		return nil, &ErrNoCoinbaseScript{}
	}

	a.reset()

	// Step 2: template skeleton with placeholder coinbase.
	a.tpl.Block.Transactions = append(a.tpl.Block.Transactions, wire.NewMsgTx(wire.TxVersion))
	a.tpl.Fees = append(a.tpl.Fees, -1)
	a.tpl.SigOpCosts = append(a.tpl.SigOpCosts, -1)

	tip := a.chain.Tip()
	var tipHash chainhash.Hash
	if tip != nil {
		tipHash = tip.Hash()
		a.height = tip.Height() + 1
	} else {
		a.height = 0
	}

	// Step 3: header prelude.
	var version int32
	if tip != nil {
		version = a.chain.ComputeBlockVersion(tip)
	}
	a.tpl.Block.Header.Version = version

	now := a.chain.AdjustedTime()
	medianTimePast := int64(0)
	if tip != nil {
		medianTimePast = tip.MedianTimePast()
	}
	blockTime := medianTimePast + 1
	if now.Unix() > blockTime {
		blockTime = now.Unix()
	}
	a.tpl.Block.Header.Timestamp = time.Unix(blockTime, 0)

	if a.consensus.LockTimeCutoffUsesMedianTimePast() {
		a.lockTimeCutoff = medianTimePast
	} else {
		a.lockTimeCutoff = blockTime
	}
	a.cfg.IncludeWitness = includeWitnessRequested
	if tip != nil {
		a.cfg.IncludeWitness = a.chain.IsWitnessEnabled(tip) && includeWitnessRequested
	}

	// Step 4: selection loop.
	modified := newModifiedSet()
	descendantsUpdated := a.updateForAdded(modified, nil)
	descendantsUpdated += a.addPackageTxs(modified)
	a.cfg.PriorityPolicy.AddPriorityTxs(a)

	a.LastBlockTx = a.blockTx
	a.LastBlockWeight = a.blockWeight

	// Step 5: coinbase finalization.
	coinbase := wire.NewMsgTx(wire.TxVersion)
	sigScript, err := coinbaseScriptSig(a.height)
	if err != nil {
		return nil, err
	}
	coinbase.AddTxIn(&wire.TxIn{
		PreviousOutPoint: wire.OutPoint{Hash: chainhash.Hash{}, Index: wire.MaxPrevOutIndex},
		SignatureScript:  sigScript,
		Sequence:         wire.MaxTxInSequenceNum,
	})
	subsidy := a.chain.GetBlockSubsidy(a.height)
	coinbase.AddTxOut(&wire.TxOut{
		Value:    int64(a.blockFees + subsidy),
		PkScript: coinbaseScript,
	})
	a.tpl.Block.Transactions[0] = coinbase
	a.tpl.Fees[0] = -a.blockFees

	if a.cfg.IncludeWitness && tip != nil {
		a.tpl.WitnessCommitment = a.consensus.GenerateCoinbaseCommitment(a.tpl.Block, tip)
	}
	a.tpl.SigOpCosts[0] = WitnessScaleFactor * a.consensus.LegacySigOpCount(coinbase)

	// Step 5.5: tip recheck. The selection loop can run long enough for a
	// competing block to land; fail rather than build a template on top of
	// a parent that is no longer the tip.
	var currentTipHash chainhash.Hash
	if current := a.chain.Tip(); current != nil {
		currentTipHash = current.Hash()
	}
	if currentTipHash != tipHash {
		return nil, &ErrStaleTip{Expected: tipHash.String(), Actual: currentTipHash.String()}
	}

	// Step 6: header finish.
	a.tpl.Block.Header.PrevBlock = tipHash
	if tip != nil {
		a.tpl.Block.Header.Bits = a.chain.NextWorkRequired(tip, &a.tpl.Block.Header)
	}
	a.tpl.Block.Header.Nonce = 0
	RecomputeMerkleRoot(a.tpl.Block)

	log.Infof("CreateNewBlock(): txs: %d fees: %d sigops: %d weight: %d descendants updated: %d",
		a.blockTx+1, a.blockFees, a.blockSigOps, a.blockWeight, descendantsUpdated)

	// Step 7: validate.
	result := a.validator.TestBlockValidity(a.tpl.Block, tip)
	if !result.Valid {
		return nil, &ErrInvalidTemplate{Reason: result.Reason}
	}

	return a.tpl, nil
}

// addPackageTxs is the selection loop of SPEC_FULL.md §4.B.1.
//
// Grounded on _examples/copernet-copernicus/mining/mining.go's
// addPackageTxs, generalized to walk the dual index of a mempool
// collaborator plus the local modifiedSet overlay instead of a single
// strategy-selected btree.
func (a *Assembler) addPackageTxs(modified *modifiedSet) int {
	descendantsUpdated := 0

	a.pool.RLock()
	defer a.pool.RUnlock()

	mempoolIndex := a.pool.SortedByAncestorScore()
	consecutiveFailed := 0

	for mempoolIndex.Len() > 0 || modified.len() > 0 {
		var entry *mempool.TxEntry
		var fromModified bool
		var size, sigops int64
		var fees btcutil.Amount

		// Peek the mempool side without consuming it until we decide.
		var mempoolCandidate *mempool.TxEntry
		if mempoolIndex.Len() > 0 {
			mempoolCandidate = itemEntry(mempoolIndex.Max())
			for mempoolCandidate != nil && a.skip(mempoolCandidate, modified) {
				mempoolIndex.DeleteMax()
				if mempoolIndex.Len() == 0 {
					mempoolCandidate = nil
					break
				}
				mempoolCandidate = itemEntry(mempoolIndex.Max())
			}
		}

		best := modified.best()

		switch {
		case mempoolCandidate == nil && best == nil:
			// entry stays nil; caught by the check below.
		case mempoolCandidate == nil:
			entry, fromModified = best.entry, true
			size, fees, sigops = best.sizeWithAncestors, best.modFeesWithAncestors, best.sigOpCountWithAncestors
		case best == nil:
			entry = mempoolCandidate
			mempoolIndex.DeleteMax()
			size, fees, sigops = entry.SizeWithAncestors, entry.ModFeeWithAncestors, entry.SigOpCountWithAncestors
		default:
			mempoolRate := mempool.NewFeeRateWithSize(int64(mempoolCandidate.ModFeeWithAncestors), mempoolCandidate.SizeWithAncestors)
			if mempoolRate.SatoshisPerKB >= best.feeRate().SatoshisPerKB {
				entry = mempoolCandidate
				mempoolIndex.DeleteMax()
				size, fees, sigops = entry.SizeWithAncestors, entry.ModFeeWithAncestors, entry.SigOpCountWithAncestors
			} else {
				entry, fromModified = best.entry, true
				size, fees, sigops = best.sizeWithAncestors, best.modFeesWithAncestors, best.sigOpCountWithAncestors
			}
		}

		if entry == nil {
			break
		}

		// Step 4: fee-rate floor.
		if fees < btcutil.Amount(a.cfg.MinFeeRate.Fee(size)) {
			break
		}

		// Step 5: budget test.
		if a.blockWeight+WitnessScaleFactor*size >= a.cfg.MaxWeight || a.blockSigOps+sigops >= MaxBlockSigOpsCost {
			if fromModified {
				modified.delete(entry.TxHash)
				a.failed[entry.TxHash] = struct{}{}
			}
			consecutiveFailed++
			if consecutiveFailed > a.cfg.MaxConsecutiveFailures && a.blockWeight > a.cfg.MaxWeight-a.cfg.WeightSlack {
				break
			}
			continue
		}

		// Step 6: ancestor expansion.
		ancestors, err := a.pool.CalculateMempoolAncestors(entry, mempool.NoLimit, mempool.NoLimit, mempool.NoLimit, mempool.NoLimit, false)
		if err != nil {
			if fromModified {
				modified.delete(entry.TxHash)
				a.failed[entry.TxHash] = struct{}{}
			}
			continue
		}
		expanded := set.New(set.ThreadSafe)
		for _, item := range ancestors.List() {
			anc := item.(*mempool.TxEntry)
			if _, in := a.inBlock[anc.TxHash]; !in {
				expanded.Add(anc)
			}
		}
		expanded.Add(entry)

		// Step 7: transaction-level checks.
		if !a.testPackageTransactions(expanded) {
			if fromModified {
				modified.delete(entry.TxHash)
				a.failed[entry.TxHash] = struct{}{}
			}
			continue
		}

		// Step 8: commit.
		consecutiveFailed = 0
		ordered := orderByAncestorCount(expanded)
		for _, add := range ordered {
			a.addToBlock(add)
			modified.delete(add.TxHash)
		}

		// Step 9: descendant refresh.
		descendantsUpdated += a.updateForAdded(modified, ordered)
	}
	return descendantsUpdated
}

func itemEntry(item btree.Item) *mempool.TxEntry {
	switch v := item.(type) {
	case mempool.EntryAncestorFeeRateSort:
		return v.TxEntry
	case mempool.EntryFeeSort:
		return v.TxEntry
	default:
		return nil
	}
}

func (a *Assembler) skip(entry *mempool.TxEntry, modified *modifiedSet) bool {
	if _, ok := a.inBlock[entry.TxHash]; ok {
		return true
	}
	if _, ok := a.failed[entry.TxHash]; ok {
		return true
	}
	if _, ok := modified.get(entry.TxHash); ok {
		return true
	}
	return false
}

func (a *Assembler) addToBlock(entry *mempool.TxEntry) {
	a.tpl.Block.Transactions = append(a.tpl.Block.Transactions, entry.Tx)
	a.tpl.Fees = append(a.tpl.Fees, entry.ModifiedFee())
	a.tpl.SigOpCosts = append(a.tpl.SigOpCosts, entry.SigOpCount)
	a.blockWeight += WitnessScaleFactor * entry.TxSize
	a.blockTx++
	a.blockSigOps += entry.SigOpCount
	a.blockFees += entry.ModifiedFee()
	a.inBlock[entry.TxHash] = struct{}{}

	if a.cfg.PrintPriority {
		log.Infof("fee %d txid %s", entry.ModifiedFee(), entry.TxHash.String())
	}
}

// testPackageTransactions performs the per-entry finality and witness
// checks of §4.B.1 step 7.
func (a *Assembler) testPackageTransactions(expanded set.Interface) bool {
	ok := true
	expanded.Each(func(item interface{}) bool {
		entry := item.(*mempool.TxEntry)
		if !a.consensus.IsFinalTx(entry.Tx, a.height, a.lockTimeCutoff) {
			ok = false
			return false
		}
		if !a.cfg.IncludeWitness && entry.HasWitness {
			ok = false
			return false
		}
		return true
	})
	return ok
}

// orderByAncestorCount sorts the expanded package by ancestor count
// ascending, the stable topological sort of §4.B.1 step 8.
func orderByAncestorCount(expanded set.Interface) []*mempool.TxEntry {
	items := expanded.List()
	out := make([]*mempool.TxEntry, len(items))
	for i, item := range items {
		out[i] = item.(*mempool.TxEntry)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].CountWithAncestors < out[j].CountWithAncestors
	})
	return out
}

// updateForAdded is update_for_added of SPEC_FULL.md §4.A: for each newly
// added entry, walk its not-yet-included descendants and decrement their
// overlay aggregates by the added entry's individual contribution.
func (a *Assembler) updateForAdded(modified *modifiedSet, added []*mempool.TxEntry) int {
	count := 0
	for _, entry := range added {
		descendants := set.New(set.ThreadSafe)
		a.pool.CalculateDescendants(entry, descendants)
		for _, item := range descendants.List() {
			desc := item.(*mempool.TxEntry)
			if _, in := a.inBlock[desc.TxHash]; in {
				continue
			}
			if desc.TxHash == entry.TxHash {
				continue
			}
			count++
			// Remove an existing entry under its current key before its
			// aggregates (and so its tree position) change.
			m, ok := modified.get(desc.TxHash)
			if ok {
				modified.delete(desc.TxHash)
			} else {
				m = newModifiedEntry(desc)
			}
			m.sizeWithAncestors -= entry.TxSize
			m.modFeesWithAncestors -= entry.ModifiedFee()
			m.sigOpCountWithAncestors -= entry.SigOpCount
			modified.put(m)
		}
	}
	return count
}

// coinbaseScriptSig builds the canonical height||OP_0 coinbase scriptSig of
// §4.B step 5, via txscript's script builder rather than hand-assembled
// opcode bytes.
func coinbaseScriptSig(height int32) ([]byte, error) {
	builder := txscript.NewScriptBuilder()
	builder.AddInt64(int64(height))
	builder.AddOp(txscript.OP_0)
	return builder.Script()
}
