// Package miner implements the Miner Supervisor of SPEC_FULL.md §4.D: an
// N-worker pool that polls chain readiness, drives the Template Assembler
// and Nonce Searcher in a loop per worker, and submits solved blocks with a
// stale-tip check. Grounded primarily on
// _examples/original_source/src/miner.cpp's CoinMiner/GenerateCoins/
// IncrementExtraNonce for the per-worker loop shape, and on
// _examples/coinstack-coinstackd/cpuminer.go's CPUMiner for the Go-native
// worker-pool/speed-monitor idiom, since the teacher's own mining package
// has no in-process worker-pool miner at all.
package miner

import (
	"context"
	cryptorand "crypto/rand"
	"encoding/binary"
	"errors"
	mathrand "math/rand"
	"runtime"
	"sync"
	"time"

	"github.com/VadiqueMe/TheHolyRogerCoin/collab"
	"github.com/VadiqueMe/TheHolyRogerCoin/log"
	"github.com/VadiqueMe/TheHolyRogerCoin/mining"
	"github.com/VadiqueMe/TheHolyRogerCoin/pow"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

var (
	coinbaseFlagsMu sync.RWMutex
	coinbaseFlags   string
)

// SetCoinbaseFlags replaces the package-level COINBASE_FLAGS tag appended
// to every coinbase scriptSig, per SPEC_FULL.md §4.D's "Supplemented" note
// mirroring the reference implementation's mapArgs["-coinbaseflags"]
// accumulation. Call once at startup with conf.Opts.CoinbaseTags().
func SetCoinbaseFlags(flags string) {
	coinbaseFlagsMu.Lock()
	defer coinbaseFlagsMu.Unlock()
	coinbaseFlags = flags
}

// CoinbaseFlags returns the current COINBASE_FLAGS tag.
func CoinbaseFlags() string {
	coinbaseFlagsMu.RLock()
	defer coinbaseFlagsMu.RUnlock()
	return coinbaseFlags
}

// Params mirrors the subset of the reference implementation's ChainParams
// that changes the supervisor's own behavior: whether mining proceeds
// without peers/IBD-complete (regtest-style on-demand generation) and
// whether the chain collaborator honors minimum-difficulty shortcuts.
type Params struct {
	MineBlocksOnDemand       bool
	AllowMinDifficultyBlocks bool
}

// Supervisor is the Miner Supervisor of SPEC_FULL.md §4.D. One Supervisor
// is constructed per process; Generate starts and stops its worker pool.
type Supervisor struct {
	net       collab.Net
	wallet    collab.Wallet
	chain     collab.Chain
	validator collab.Validator
	consensus collab.Consensus
	pool      mining.MempoolSource
	miningCfg mining.Config
	hashFunc  pow.HashFunc

	mu      sync.Mutex
	running bool
	cancel  context.CancelFunc
	wg      sync.WaitGroup

	hpsMu        sync.Mutex
	hashesPerSec float64
	hpsUpdate    chan uint32
	speedQuit    chan struct{}
}

// NewSupervisor wires a Supervisor against its collaborators and the
// Template Assembler's configuration, per §6's constructor-injection
// pattern. The production hash strategy is always pow.ScryptPoWHash.
func NewSupervisor(net collab.Net, wallet collab.Wallet, chain collab.Chain, validator collab.Validator,
	consensus collab.Consensus, pool mining.MempoolSource, miningCfg mining.Config) *Supervisor {
	return &Supervisor{
		net:       net,
		wallet:    wallet,
		chain:     chain,
		validator: validator,
		consensus: consensus,
		pool:      pool,
		miningCfg: miningCfg,
		hashFunc:  pow.ScryptPoWHash,
		hpsUpdate: make(chan uint32, 16),
	}
}

// Generate is the entry point of SPEC_FULL.md §4.D: it always stops any
// running worker pool first, then, if enable is true and threads is
// nonzero, starts threads workers (threads < 0 uses runtime.NumCPU,
// mirroring the reference implementation's -genproclimit=-1 meaning).
// enable=false or threads=0 stops and returns, per spec.md's generate
// contract. Safe to call repeatedly to resize the pool.
func (s *Supervisor) Generate(enable bool, threads int, params Params) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopLocked()

	if !enable || threads == 0 {
		return
	}
	if threads < 0 {
		threads = runtime.NumCPU()
	}

	ctx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.running = true
	s.speedQuit = make(chan struct{})

	s.wg.Add(1)
	go s.speedMonitor()

	for i := 0; i < threads; i++ {
		s.wg.Add(1)
		go s.worker(ctx, i, params)
	}
}

// Stop halts the worker pool; it is a no-op if nothing is running.
func (s *Supervisor) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Supervisor) stopLocked() {
	if !s.running {
		return
	}
	s.cancel()
	close(s.speedQuit)
	s.wg.Wait()
	s.running = false
}

// IsMining reports whether the worker pool is currently running.
func (s *Supervisor) IsMining() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.running
}

// HashesPerSecond returns the most recently measured aggregate hash rate
// across all workers.
func (s *Supervisor) HashesPerSecond() float64 {
	s.hpsMu.Lock()
	defer s.hpsMu.Unlock()
	return s.hashesPerSec
}

// speedMonitor aggregates per-worker hash counts into a rolling
// hashes/second figure, logged periodically. Grounded on
// _examples/coinstack-coinstackd/cpuminer.go's speedMonitor.
func (s *Supervisor) speedMonitor() {
	defer s.wg.Done()

	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	var hashes uint64
	lastTick := time.Now()

	for {
		select {
		case n := <-s.hpsUpdate:
			hashes += uint64(n)
		case now := <-ticker.C:
			elapsed := now.Sub(lastTick).Seconds()
			if elapsed > 0 {
				rate := float64(hashes) / elapsed
				s.hpsMu.Lock()
				s.hashesPerSec = rate
				s.hpsMu.Unlock()
				log.Infof("hash speed: %.1f kH/s", rate/1000)
			}
			hashes = 0
			lastTick = now
		case <-s.speedQuit:
			return
		}
	}
}

func (s *Supervisor) reportHashes(ctx context.Context, n uint32) {
	if n == 0 {
		return
	}
	select {
	case s.hpsUpdate <- n:
	case <-ctx.Done():
	}
}

// worker is one mining thread's loop, implementing the five steps of
// SPEC_FULL.md §4.D: readiness poll, assembly, extra-nonce bump, nonce
// search, and stale-tip-checked submission. Grounded on
// _examples/original_source/src/miner.cpp's CoinMiner.
func (s *Supervisor) worker(ctx context.Context, workerID int, params Params) {
	defer s.wg.Done()

	rng := newWorkerRand()
	var extraNonce uint64
	var lastPrevHash chainhash.Hash

	for {
		if ctx.Err() != nil {
			return
		}

		// Step 1: readiness poll.
		for !params.MineBlocksOnDemand && (s.net.NodeCount() == 0 || s.net.IsInitialBlockDownload()) {
			if !sleepOrDone(ctx, time.Second) {
				return
			}
		}

		tip := s.chain.Tip()

		// Step 2: assembly.
		reserve := s.wallet.GetScriptForMining()
		if reserve == nil {
			log.Warnf("worker %d: no coinbase script available from wallet, stopping", workerID)
			return
		}

		assembler := mining.NewAssembler(s.miningCfg, s.chain, s.validator, s.consensus, s.pool)
		tpl, err := assembler.CreateNewBlock(reserve.Script(), true)
		if err != nil {
			log.Errorf("worker %d: CreateNewBlock failed: %s", workerID, err)
			var noScript *mining.ErrNoCoinbaseScript
			var invalid *mining.ErrInvalidTemplate
			if errors.As(err, &noScript) || errors.As(err, &invalid) {
				return
			}
			if !sleepOrDone(ctx, time.Second) {
				return
			}
			continue
		}

		var tipHash chainhash.Hash
		height := int32(0)
		if tip != nil {
			tipHash = tip.Hash()
			height = tip.Height() + 1
		}

		// Step 3: extra-nonce bump.
		if tipHash != lastPrevHash {
			extraNonce = 0
			lastPrevHash = tipHash
		}
		extraNonce++
		if err := rebuildCoinbaseWithExtraNonce(tpl, height, extraNonce, CoinbaseFlags()); err != nil {
			log.Errorf("worker %d: extra nonce bump failed: %s", workerID, err)
			continue
		}

		// Step 4: nonce search.
		found, err := s.search(ctx, workerID, tpl, tipHash, rng)
		if err != nil {
			if err != mining.ErrInterrupted {
				log.Errorf("worker %d: search failed: %s", workerID, err)
			}
			return
		}
		if !found {
			continue
		}

		// Step 5: submission.
		if s.submitBlock(workerID, tpl.Block, tipHash) {
			reserve.KeepScript()
		}
	}
}

// search drives the Nonce Searcher in a loop until a verified candidate is
// found, the tip moves out from under the template, a one-second refresh
// deadline passes, or the context is cancelled. Nonce state comes from a per-worker PRNG, seeded from a
// nondeterministic source, rather than a monotonic counter: it is reseeded
// from the PRNG whenever a candidate fails the precise check, matching the
// reference implementation's randomNumber()/nNonce = randomNumber() pattern
// rather than retrying the adjacent nonce. Grounded on
// _examples/original_source/src/miner.cpp's ScanScryptHash call site
// inside CoinMiner's inner loop.
func (s *Supervisor) search(ctx context.Context, workerID int, tpl *mining.Template, tipHash chainhash.Hash, rng *mathrand.Rand) (bool, error) {
	header := &tpl.Block.Header
	target := pow.CompactToBig(header.Bits)
	refreshAfter := time.Now().Add(time.Second)

	nonce := rng.Uint32()
	for {
		if ctx.Err() != nil {
			return false, mining.ErrInterrupted
		}

		out, err := pow.Search(header, nonce, target, s.hashFunc)
		if err != nil {
			return false, err
		}
		s.reportHashes(ctx, out.HashesScanned)

		if out.Found {
			header.Nonce = out.Nonce
			recomputed, err := pow.HashHeader(header, s.hashFunc)
			if err != nil {
				return false, err
			}
			if recomputed != out.Hash {
				return false, &mining.ErrHashMismatch{Searched: out.Hash.String(), Recomputed: recomputed.String()}
			}
			if !pow.VerifyHash(out.Hash, target) {
				nonce = rng.Uint32()
				continue
			}
			log.Infof("worker %d: found candidate nonce %d", workerID, out.Nonce)
			return true, nil
		}
		nonce = out.Nonce

		tip := s.chain.Tip()
		var currentHash chainhash.Hash
		if tip != nil {
			currentHash = tip.Hash()
		}
		if currentHash != tipHash {
			return false, nil
		}
		if time.Now().After(refreshAfter) {
			return false, nil
		}
	}
}

// newWorkerRand seeds a per-worker math/rand source from crypto/rand,
// falling back to the current time if the nondeterministic read fails.
// Grounded on _examples/original_source/src/miner.cpp's
// std::mt19937 randomNumber(randomDevice()).
func newWorkerRand() *mathrand.Rand {
	var seedBytes [8]byte
	seed := time.Now().UnixNano()
	if _, err := cryptorand.Read(seedBytes[:]); err == nil {
		seed = int64(binary.BigEndian.Uint64(seedBytes[:]))
	}
	return mathrand.New(mathrand.NewSource(seed))
}

// submitBlock rejects a solved block outright if the chain tip moved
// during the search (the stale-tip rejection of SPEC_FULL.md §4.D's
// submission semantics),
// without ever calling ProcessNewBlock on a block built against a
// superseded parent.
func (s *Supervisor) submitBlock(workerID int, block *wire.MsgBlock, expectedPrevHash chainhash.Hash) bool {
	tip := s.chain.Tip()
	var currentHash chainhash.Hash
	if tip != nil {
		currentHash = tip.Hash()
	}
	if currentHash != expectedPrevHash {
		log.Warnf("worker %d: discarding solved block, tip moved from %s to %s",
			workerID, expectedPrevHash, currentHash)
		return false
	}

	if !s.validator.ProcessNewBlock(block, true) {
		log.Warnf("worker %d: submitted block was rejected", workerID)
		return false
	}

	log.Infof("worker %d: found block %s", workerID, block.Header.BlockHash())
	return true
}

func sleepOrDone(ctx context.Context, d time.Duration) bool {
	select {
	case <-ctx.Done():
		return false
	case <-time.After(d):
		return true
	}
}
