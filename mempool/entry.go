package mempool

import (
	"time"
	"unsafe"

	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/google/btree"
)

// TxEntry is a mempool handle: a transaction plus the bookkeeping the
// Package Scorer and Template Assembler need about its in-mempool ancestry.
// It is not safe for concurrent write and read access; callers serialize
// through the owning Pool's lock.
type TxEntry struct {
	Tx         *wire.MsgTx
	TxHash     chainhash.Hash
	TxSize     int64
	TxFee      btcutil.Amount
	TxFeeDelta btcutil.Amount
	SigOpCount int64
	Height     int32
	Time       time.Time

	// HasWitness reports whether Tx carries witness data. Checked during
	// assembly when a template does not request witness serialization.
	HasWitness bool

	ParentTx map[*TxEntry]struct{}
	ChildTx  map[*TxEntry]struct{}

	Ancestors
}

// Ancestors holds the cumulative size/fee/sigop/count aggregates over an
// entry and all of its not-yet-confirmed ancestors. These are the values
// the Package Scorer orders by; they are maintained incrementally by
// UpdateAncestorState rather than recomputed on each read.
type Ancestors struct {
	SizeWithAncestors     int64
	ModFeeWithAncestors   btcutil.Amount
	SigOpCountWithAncestors int64
	CountWithAncestors    int64
}

// ModifiedFee is the entry's individual fee after applying its prioritisation
// delta (see Pool.ApplyPrioritisation).
func (t *TxEntry) ModifiedFee() btcutil.Amount {
	return t.TxFee + t.TxFeeDelta
}

// FeeRate returns the entry's own (non-ancestor) fee rate.
func (t *TxEntry) FeeRate() FeeRate {
	return NewFeeRateWithSize(int64(t.ModifiedFee()), t.TxSize)
}

// AncestorFeeRate is the ordering key of §4.A: modified fees over size,
// summed across the entry and all of its in-mempool ancestors.
func (t *TxEntry) AncestorFeeRate() FeeRate {
	return NewFeeRateWithSize(int64(t.ModFeeWithAncestors), t.SizeWithAncestors)
}

func NewTxEntry(tx *wire.MsgTx, fee btcutil.Amount, acceptTime time.Time, height int32, sigOpCount int64) *TxEntry {
	t := &TxEntry{
		Tx:         tx,
		TxHash:     tx.TxHash(),
		TxSize:     int64(tx.SerializeSize()),
		TxFee:      fee,
		SigOpCount: sigOpCount,
		Height:     height,
		Time:       acceptTime,
		HasWitness: tx.HasWitness(),
		ParentTx:   make(map[*TxEntry]struct{}),
		ChildTx:    make(map[*TxEntry]struct{}),
	}
	t.SizeWithAncestors = t.TxSize
	t.ModFeeWithAncestors = fee
	t.SigOpCountWithAncestors = sigOpCount
	t.CountWithAncestors = 1
	return t
}

// UpdateAncestorState applies a delta to the ancestor aggregates; Pool's
// AddUnchecked uses it to fold the in-mempool ancestor set into a newly
// admitted entry. Negative deltas are applied the same way.
func (t *TxEntry) UpdateAncestorState(sizeDelta, sigOpDelta int64, feeDelta btcutil.Amount, countDelta int64) {
	t.SizeWithAncestors += sizeDelta
	t.SigOpCountWithAncestors += sigOpDelta
	t.ModFeeWithAncestors += feeDelta
	t.CountWithAncestors += countDelta
}

// UpdateParent records or severs a parent link, keeping the child's
// reciprocal link in sync.
func (t *TxEntry) UpdateParent(parent *TxEntry, add bool) {
	if add {
		t.ParentTx[parent] = struct{}{}
		parent.ChildTx[t] = struct{}{}
		return
	}
	delete(t.ParentTx, parent)
	delete(parent.ChildTx, t)
}

// usageSize is an approximation of the entry's retained heap footprint. No
// code in this repository calls it; it plays no part in block assembly.
func (t *TxEntry) usageSize() int64 {
	return t.TxSize + int64(unsafe.Sizeof(*t))
}

// EntryAncestorFeeRateSort is a btree.Item view of TxEntry ordered by
// ancestor fee rate, ties broken by transaction hash so the ordering is
// total. This is the mempool-side half of the dual index described in
// SPEC_FULL.md §4.A.
type EntryAncestorFeeRateSort struct {
	*TxEntry
}

// Less is ascending by design: the selection loop always pops the tree's
// Max(), matching the teacher's own txSet.Max()/DeleteMax() usage.
func (r EntryAncestorFeeRateSort) Less(than btree.Item) bool {
	t := than.(EntryAncestorFeeRateSort)
	a := r.AncestorFeeRate().SatoshisPerKB
	b := t.AncestorFeeRate().SatoshisPerKB
	if a == b {
		return r.TxHash.String() < t.TxHash.String()
	}
	return a < b
}

// EntryFeeSort orders by raw ancestor fee (not rate), matching the
// "ancestorfee" selection strategy. Also ascending; see EntryAncestorFeeRateSort.
type EntryFeeSort struct {
	*TxEntry
}

func (e EntryFeeSort) Less(than btree.Item) bool {
	t := than.(EntryFeeSort)
	if e.ModFeeWithAncestors == t.ModFeeWithAncestors {
		return e.TxHash.String() < t.TxHash.String()
	}
	return e.ModFeeWithAncestors < t.ModFeeWithAncestors
}
