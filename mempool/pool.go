package mempool

import (
	"math"
	"sync"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/btree"
	"github.com/pkg/errors"
	"gopkg.in/fatih/set.v0"
)

// NoLimit disables a CalculateMempoolAncestors bound.
const NoLimit = uint64(math.MaxUint64)

// SortStrategy selects which aggregate the ancestor-score index orders by.
// Grounded on the teacher's sortByFee/sortByFeeRate strategy pair
// (mining/strategy.go), moved onto the Pool so tests can exercise both
// without a package-level global.
type SortStrategy int

const (
	SortByFeeRate SortStrategy = iota
	SortByFee
)

// Pool is the transaction memory pool: the Mempool collaborator of
// SPEC_FULL.md §6. It owns every TxEntry and the identity/ancestry links
// between them; the Template Assembler only ever reads a consistent
// snapshot of it under RLock.
type Pool struct {
	mtx      sync.RWMutex
	byHash   map[chainhash.Hash]*TxEntry
	strategy SortStrategy
}

func NewPool(strategy SortStrategy) *Pool {
	return &Pool{
		byHash:   make(map[chainhash.Hash]*TxEntry),
		strategy: strategy,
	}
}

func (p *Pool) Lock()    { p.mtx.Lock() }
func (p *Pool) Unlock()  { p.mtx.Unlock() }
func (p *Pool) RLock()   { p.mtx.RLock() }
func (p *Pool) RUnlock() { p.mtx.RUnlock() }

// AddUnchecked inserts an already-validated entry, wires its parent links
// from the set of in-mempool parents the caller has already located, then
// rolls up the full in-mempool ancestor set's size/fee/sigop/count into the
// entry's own Ancestors aggregate. Grounded on
// _examples/copernet-copernicus/mempool/mempool.go's
// AddUncheckedWithAncestors + UpdateEntryForAncestors: the teacher computes
// the ancestor set once at admission and folds it into the new entry so the
// ancestor-fee-rate index reflects the whole package immediately, rather
// than only the entry's own fee.
func (p *Pool) AddUnchecked(entry *TxEntry, parents []*TxEntry) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	p.byHash[entry.TxHash] = entry
	for _, parent := range parents {
		entry.UpdateParent(parent, true)
	}

	ancestors, err := p.CalculateMempoolAncestors(entry, NoLimit, NoLimit, NoLimit, NoLimit, false)
	if err != nil {
		return
	}
	var updateSize, updateSigOps, updateCount int64
	var updateFee btcutil.Amount
	for _, item := range ancestors.List() {
		anc := item.(*TxEntry)
		updateSize += anc.TxSize
		updateFee += anc.ModifiedFee()
		updateSigOps += anc.SigOpCount
		updateCount++
	}
	entry.UpdateAncestorState(updateSize, updateSigOps, updateFee, updateCount)
}

func (p *Pool) Get(hash chainhash.Hash) *TxEntry {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return p.byHash[hash]
}

func (p *Pool) Len() int {
	p.mtx.RLock()
	defer p.mtx.RUnlock()
	return len(p.byHash)
}

// SortedByAncestorScore builds the mempool-side half of the dual index of
// SPEC_FULL.md §4.A: a btree.BTree over every current entry ordered by the
// pool's configured strategy. Grounded on
// _examples/copernet-copernicus/mining/strategy.go's
// sortedByFeeWithAncestors/sortedByFeeRateWithAncestors.
//
// The caller must hold at least RLock; this does not lock itself, since its
// only production caller (the assembler's selection loop) already holds
// RLock for the whole pass and a second RLock on the same goroutine could
// deadlock behind a writer queued in between.
func (p *Pool) SortedByAncestorScore() *btree.BTree {
	b := btree.New(32)
	for _, entry := range p.byHash {
		switch p.strategy {
		case SortByFee:
			b.ReplaceOrInsert(EntryFeeSort{entry})
		default:
			b.ReplaceOrInsert(EntryAncestorFeeRateSort{entry})
		}
	}
	return b
}

// GetMempoolParents returns the direct in-mempool parents of entry.
func (p *Pool) GetMempoolParents(entry *TxEntry) set.Interface {
	s := set.New(set.ThreadSafe)
	for parent := range entry.ParentTx {
		s.Add(parent)
	}
	return s
}

// GetMempoolChildren returns the direct in-mempool children of entry.
func (p *Pool) GetMempoolChildren(entry *TxEntry) set.Interface {
	s := set.New(set.ThreadSafe)
	for child := range entry.ChildTx {
		s.Add(child)
	}
	return s
}

// CalculateDescendants walks down the child links of entry, adding entry
// itself and every in-mempool descendant not already present in
// setDescendants. Grounded on
// _examples/copernet-copernicus/mempool/mempool.go
// (*Mempool).CalculateDescendants, including its worklist shape.
func (p *Pool) CalculateDescendants(entry *TxEntry, setDescendants set.Interface) {
	stage := set.New(set.ThreadSafe)
	if !setDescendants.Has(entry) {
		stage.Add(entry)
	}
	stageList := stage.List()
	for len(stageList) > 0 {
		cur := stageList[0].(*TxEntry)
		setDescendants.Add(cur)
		stageList = stageList[1:]
		for child := range cur.ChildTx {
			if !setDescendants.Has(child) {
				stageList = append(stageList, child)
			}
		}
	}
}

// CalculateMempoolAncestors computes all in-mempool ancestors of entry
// (entry itself excluded), subject to the ancestor count, ancestor size and
// descendant count limits; limitDescendantSize is accepted but not
// enforced. Grounded on
// _examples/copernet-copernicus/mempool/mempool.go
// (*Mempool).CalculateMemPoolAncestors. fSearchForParents mirrors the
// teacher's flag: true walks entry.Tx's inputs to discover parents (used
// for entries not yet admitted to the pool); false trusts the pool's own
// ParentTx links (valid only for entries already in the pool).
func (p *Pool) CalculateMempoolAncestors(entry *TxEntry, limitAncestorCount, limitAncestorSize,
	limitDescendantCount, limitDescendantSize uint64, searchForParents bool) (set.Interface, error) {

	setAncestors := set.New(set.ThreadSafe)
	parentHashes := set.New(set.ThreadSafe)

	if searchForParents {
		for _, txIn := range entry.Tx.TxIn {
			if parent := p.byHash[txIn.PreviousOutPoint.Hash]; parent != nil {
				parentHashes.Add(parent)
				if uint64(parentHashes.Size()+1) > limitAncestorCount {
					return nil, errors.Errorf("too many unconfirmed parents [limit: %d]", limitAncestorCount)
				}
			}
		}
	} else {
		if _, ok := p.byHash[entry.TxHash]; !ok {
			return nil, errors.Errorf("entry %s is not in the mempool", entry.TxHash)
		}
		for parent := range entry.ParentTx {
			parentHashes.Add(parent)
		}
	}

	totalSizeWithAncestors := entry.TxSize
	parentList := parentHashes.List()
	for len(parentList) > 0 {
		stage := parentList[0].(*TxEntry)
		setAncestors.Add(stage)
		parentList = parentList[1:]
		totalSizeWithAncestors += stage.TxSize

		if uint64(len(stage.ChildTx)+1) > limitDescendantCount {
			return nil, errors.Errorf("too many descendants for tx %s [limit: %d]", stage.TxHash, limitDescendantCount)
		} else if uint64(totalSizeWithAncestors) > limitAncestorSize {
			return nil, errors.Errorf("exceeds ancestor size limit [limit: %d]", limitAncestorSize)
		}
		_ = limitDescendantSize

		for grandparent := range stage.ParentTx {
			if !setAncestors.Has(grandparent) {
				parentList = append(parentList, grandparent)
			}
		}
		if uint64(len(parentList)+setAncestors.Size()+1) > limitAncestorCount {
			return nil, errors.Errorf("too many unconfirmed ancestors [limit: %d]", limitAncestorCount)
		}
	}
	return setAncestors, nil
}

// ApplyPrioritisation adjusts an entry's fee delta and propagates the change
// through its own ancestor aggregates, mirroring PrioritiseTransaction.
func (p *Pool) ApplyPrioritisation(hash chainhash.Hash, feeDelta btcutil.Amount) {
	p.mtx.Lock()
	defer p.mtx.Unlock()
	entry, ok := p.byHash[hash]
	if !ok {
		return
	}
	delta := feeDelta - entry.TxFeeDelta
	entry.TxFeeDelta = feeDelta
	entry.ModFeeWithAncestors += delta
}
