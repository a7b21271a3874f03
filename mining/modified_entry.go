package mining

import (
	"github.com/VadiqueMe/TheHolyRogerCoin/mempool"
	"github.com/btcsuite/btcd/btcutil"
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/google/btree"
)

// modifiedEntry is the overlay record of SPEC_FULL.md §3: it tracks the
// ancestor aggregates of an entry as they are decremented by ancestors
// already absorbed into the block being assembled. It exists only for the
// lifetime of one CreateNewBlock call.
//
// Grounded on _examples/copernet-copernicus/mining/modified_entry.go's
// txMemPoolModifiedEntry, generalized to the btcsuite-backed TxEntry.
type modifiedEntry struct {
	entry                   *mempool.TxEntry
	sizeWithAncestors       int64
	modFeesWithAncestors    btcutil.Amount
	sigOpCountWithAncestors int64
}

func newModifiedEntry(entry *mempool.TxEntry) *modifiedEntry {
	return &modifiedEntry{
		entry:                   entry,
		sizeWithAncestors:       entry.SizeWithAncestors,
		modFeesWithAncestors:    entry.ModFeeWithAncestors,
		sigOpCountWithAncestors: entry.SigOpCountWithAncestors,
	}
}

func (m *modifiedEntry) feeRate() mempool.FeeRate {
	return mempool.NewFeeRateWithSize(int64(m.modFeesWithAncestors), m.sizeWithAncestors)
}

// modifiedEntryItem is the btree.Item view of a modifiedEntry, ordered by
// ancestor fee rate and tie-broken by transaction hash, the same shape as
// mempool.EntryAncestorFeeRateSort. Less is ascending by design: the
// selection loop always reads Max().
type modifiedEntryItem struct {
	m *modifiedEntry
}

func (i modifiedEntryItem) Less(than btree.Item) bool {
	o := than.(modifiedEntryItem)
	a := i.m.feeRate().SatoshisPerKB
	b := o.m.feeRate().SatoshisPerKB
	if a == b {
		return i.m.entry.TxHash.String() < o.m.entry.TxHash.String()
	}
	return a < b
}

// modifiedSet is the assembler's overlay of SPEC_FULL.md §4.A: a
// btree.BTree ordered by ancestor fee rate, mirrored by a plain map for
// O(1) identity lookup by transaction hash. Grounded on the same
// google/btree index mempool.Pool.SortedByAncestorScore builds for the
// mempool side of the dual index.
type modifiedSet struct {
	tree   *btree.BTree
	byHash map[chainhash.Hash]*modifiedEntry
}

func newModifiedSet() *modifiedSet {
	return &modifiedSet{
		tree:   btree.New(32),
		byHash: make(map[chainhash.Hash]*modifiedEntry),
	}
}

func (s *modifiedSet) get(hash chainhash.Hash) (*modifiedEntry, bool) {
	m, ok := s.byHash[hash]
	return m, ok
}

// put inserts m, or, if an entry for the same transaction is already
// present, first removes its stale tree item so the btree never holds two
// items for the same hash under different fee rates.
func (s *modifiedSet) put(m *modifiedEntry) {
	if old, ok := s.byHash[m.entry.TxHash]; ok {
		s.tree.Delete(modifiedEntryItem{old})
	}
	s.byHash[m.entry.TxHash] = m
	s.tree.ReplaceOrInsert(modifiedEntryItem{m})
}

func (s *modifiedSet) delete(hash chainhash.Hash) {
	m, ok := s.byHash[hash]
	if !ok {
		return
	}
	delete(s.byHash, hash)
	s.tree.Delete(modifiedEntryItem{m})
}

func (s *modifiedSet) len() int {
	return len(s.byHash)
}

// best returns the modified entry with the highest ancestor fee rate,
// ties broken by transaction hash, or nil if the set is empty. This is the
// "(b) the best entry in modified" half of the §4.A candidate comparison.
func (s *modifiedSet) best() *modifiedEntry {
	item := s.tree.Max()
	if item == nil {
		return nil
	}
	return item.(modifiedEntryItem).m
}
