package miner

import (
	"context"
	"math/rand"
	"sync/atomic"
	"testing"
	"time"

	"github.com/VadiqueMe/TheHolyRogerCoin/collab"
	"github.com/VadiqueMe/TheHolyRogerCoin/mempool"
	"github.com/VadiqueMe/TheHolyRogerCoin/mining"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
)

type fakeTip struct {
	height int32
	hash   chainhash.Hash
	mtp    int64
	bt     int64
}

func (t *fakeTip) Height() int32         { return t.height }
func (t *fakeTip) Hash() chainhash.Hash  { return t.hash }
func (t *fakeTip) MedianTimePast() int64 { return t.mtp }
func (t *fakeTip) BlockTime() int64      { return t.bt }

type fakeChain struct {
	tip  *fakeTip
	bits uint32
}

func (c *fakeChain) Tip() collab.BlockIndex { return c.tip }
func (c *fakeChain) NextWorkRequired(collab.BlockIndex, *wire.BlockHeader) uint32 { return c.bits }
func (c *fakeChain) ComputeBlockVersion(collab.BlockIndex) int32                  { return 4 }
func (c *fakeChain) IsWitnessEnabled(collab.BlockIndex) bool                      { return false }
func (c *fakeChain) GetBlockSubsidy(int32) btcutil.Amount                         { return 50 * btcutil.SatoshiPerBitcoin }
func (c *fakeChain) AdjustedTime() time.Time                                      { return time.Unix(c.tip.bt+1, 0) }

type fakeValidator struct{ reject bool }

func (v *fakeValidator) TestBlockValidity(*wire.MsgBlock, collab.BlockIndex) collab.ValidationResult {
	return collab.ValidationResult{Valid: true}
}
func (v *fakeValidator) ProcessNewBlock(*wire.MsgBlock, bool) bool { return !v.reject }

type fakeConsensus struct{}

func (fakeConsensus) IsFinalTx(*wire.MsgTx, int32, int64) bool { return true }
func (fakeConsensus) GenerateCoinbaseCommitment(*wire.MsgBlock, collab.BlockIndex) []byte {
	return nil
}
func (fakeConsensus) LegacySigOpCount(*wire.MsgTx) int64      { return 0 }
func (fakeConsensus) LockTimeCutoffUsesMedianTimePast() bool { return true }

type fakeReserveScript struct {
	kept atomic.Bool
}

func (r *fakeReserveScript) Script() []byte { return []byte{0x51} }
func (r *fakeReserveScript) KeepScript()    { r.kept.Store(true) }

type fakeWallet struct {
	script *fakeReserveScript
}

func (w *fakeWallet) GetScriptForMining() collab.ReserveScript {
	if w.script == nil {
		return nil
	}
	return w.script
}

type fakeNet struct {
	nodes int
	ibd   bool
}

func (n *fakeNet) NodeCount() int            { return n.nodes }
func (n *fakeNet) IsInitialBlockDownload() bool { return n.ibd }

func newTestSupervisor() (*Supervisor, *fakeChain, *fakeValidator) {
	chain := &fakeChain{tip: &fakeTip{height: 10, hash: chainhash.Hash{0x01}, mtp: 1700000000, bt: 1700000100}, bits: 0x207fffff}
	validator := &fakeValidator{}
	pool := mempool.NewPool(mempool.SortByFeeRate)
	cfg := mining.DefaultConfig(mempool.NewFeeRate(1000), 400000)
	s := NewSupervisor(&fakeNet{nodes: 1}, &fakeWallet{script: &fakeReserveScript{}}, chain, validator, fakeConsensus{}, pool, cfg)
	return s, chain, validator
}

func TestRebuildCoinbaseWithExtraNonceTruncatesOversizedFlags(t *testing.T) {
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{SignatureScript: []byte{0x00}})
	block.AddTransaction(coinbase)
	tpl := &mining.Template{Block: block}

	longFlags := make([]byte, 200)
	for i := range longFlags {
		longFlags[i] = 'a'
	}

	err := rebuildCoinbaseWithExtraNonce(tpl, 200, 1, string(longFlags))
	assert.NoError(t, err)
	assert.LessOrEqual(t, len(tpl.Block.Transactions[0].TxIn[0].SignatureScript), mining.MaxCoinbaseScriptSigSize)
}

func TestRebuildCoinbaseWithExtraNonceRecomputesMerkleRoot(t *testing.T) {
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	coinbase := wire.NewMsgTx(wire.TxVersion)
	coinbase.AddTxIn(&wire.TxIn{SignatureScript: []byte{0x00}})
	block.AddTransaction(coinbase)
	tpl := &mining.Template{Block: block}

	before := tpl.Block.Header.MerkleRoot
	err := rebuildCoinbaseWithExtraNonce(tpl, 1, 1, "")
	assert.NoError(t, err)
	assert.NotEqual(t, before, tpl.Block.Header.MerkleRoot)
}

func TestSubmitBlockRejectsWhenTipMovedDuringSearch(t *testing.T) {
	s, chain, _ := newTestSupervisor()
	block := wire.NewMsgBlock(&wire.BlockHeader{})

	staleHash := chainhash.Hash{0xff}
	assert.NotEqual(t, chain.tip.hash, staleHash)
	ok := s.submitBlock(0, block, staleHash)
	assert.False(t, ok)
}

func TestSubmitBlockAcceptsWhenTipStillMatches(t *testing.T) {
	s, chain, _ := newTestSupervisor()
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	ok := s.submitBlock(0, block, chain.tip.hash)
	assert.True(t, ok)
}

func TestSubmitBlockReportsValidatorRejection(t *testing.T) {
	s, chain, validator := newTestSupervisor()
	validator.reject = true
	block := wire.NewMsgBlock(&wire.BlockHeader{})
	ok := s.submitBlock(0, block, chain.tip.hash)
	assert.False(t, ok)
}

func TestGenerateStartsAndStopsWorkersWithoutDeadlock(t *testing.T) {
	s, _, _ := newTestSupervisor()

	s.Generate(true, 2, Params{MineBlocksOnDemand: true})
	assert.True(t, s.IsMining())

	done := make(chan struct{})
	go func() {
		s.Stop()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Stop did not return, possible deadlock")
	}
	assert.False(t, s.IsMining())
}

func TestGenerateFalseStopsAnyRunningPool(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.Generate(true, 1, Params{MineBlocksOnDemand: true})
	assert.True(t, s.IsMining())

	s.Generate(false, 0, Params{})
	assert.False(t, s.IsMining())
}

// TestGenerateWithZeroThreadsStopsAndReturnsWithoutStartingAWorker covers
// spec.md's generate contract verbatim: threads=0 stops and returns, it
// does not silently fall back to one worker.
func TestGenerateWithZeroThreadsStopsAndReturnsWithoutStartingAWorker(t *testing.T) {
	s, _, _ := newTestSupervisor()
	s.Generate(true, 1, Params{MineBlocksOnDemand: true})
	assert.True(t, s.IsMining())

	s.Generate(true, 0, Params{MineBlocksOnDemand: true})
	assert.False(t, s.IsMining())
}

// TestSearchReturnsHashMismatchWhenRecomputedHashDiffersFromCandidate
// covers SPEC_FULL.md §4.D step 4's recompute-and-assert: a hash function
// that returns a different value on the independent recompute than it did
// for the original candidate must surface as ErrHashMismatch, not a silent
// false positive.
func TestSearchReturnsHashMismatchWhenRecomputedHashDiffersFromCandidate(t *testing.T) {
	s, _, _ := newTestSupervisor()

	var calls int32
	s.hashFunc = func(header []byte) (chainhash.Hash, error) {
		n := atomic.AddInt32(&calls, 1)
		var h chainhash.Hash
		h[0] = byte(n)
		return h, nil
	}

	block := wire.NewMsgBlock(&wire.BlockHeader{Bits: 0x207fffff})
	tpl := &mining.Template{Block: block}
	rng := rand.New(rand.NewSource(1))

	found, err := s.search(context.Background(), 0, tpl, chainhash.Hash{}, rng)
	assert.False(t, found)
	assert.Error(t, err)
	assert.IsType(t, &mining.ErrHashMismatch{}, err)
}

// TestNewWorkerRandProducesIndependentNondeterministicStreams covers
// SPEC_FULL.md §4.D step 4's per-worker PRNG seeded from a nondeterministic
// source: two calls must not collapse onto the same seed/stream.
func TestNewWorkerRandProducesIndependentNondeterministicStreams(t *testing.T) {
	a := newWorkerRand()
	b := newWorkerRand()
	assert.NotEqual(t, a.Uint32(), b.Uint32())
}
