package mempool

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
	"gopkg.in/fatih/set.v0"
)

func chainedTx(prev *wire.MsgTx, outIndex uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	if prev != nil {
		h := prev.TxHash()
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Hash: h, Index: outIndex}})
	} else {
		tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	}
	tx.AddTxOut(&wire.TxOut{Value: 1000})
	return tx
}

func TestCalculateDescendantsWalksChildren(t *testing.T) {
	pool := NewPool(SortByFeeRate)

	root := NewTxEntry(chainedTx(nil, 0), 100, time.Now(), 1, 0)
	mid := NewTxEntry(chainedTx(root.Tx, 0), 100, time.Now(), 1, 0)
	leaf := NewTxEntry(chainedTx(mid.Tx, 0), 100, time.Now(), 1, 0)

	mid.UpdateParent(root, true)
	leaf.UpdateParent(mid, true)

	pool.AddUnchecked(root, nil)
	pool.AddUnchecked(mid, []*TxEntry{root})
	pool.AddUnchecked(leaf, []*TxEntry{mid})

	descendants := set.New(set.ThreadSafe)
	pool.CalculateDescendants(root, descendants)

	assert.True(t, descendants.Has(root))
	assert.True(t, descendants.Has(mid))
	assert.True(t, descendants.Has(leaf))
	assert.Equal(t, 3, descendants.Size())
}

func TestCalculateMempoolAncestorsSearchesInputs(t *testing.T) {
	pool := NewPool(SortByFeeRate)

	root := NewTxEntry(chainedTx(nil, 0), 100, time.Now(), 1, 0)
	child := NewTxEntry(chainedTx(root.Tx, 0), 100, time.Now(), 1, 0)

	pool.AddUnchecked(root, nil)

	ancestors, err := pool.CalculateMempoolAncestors(child, NoLimit, NoLimit, NoLimit, NoLimit, true)
	assert.NoError(t, err)
	assert.Equal(t, 1, ancestors.Size())
	assert.True(t, ancestors.Has(root))
}

func TestSortedByAncestorScoreOrdersByFeeRate(t *testing.T) {
	pool := NewPool(SortByFeeRate)

	cheap := NewTxEntry(chainedTx(nil, 0), 10, time.Now(), 1, 0)
	rich := NewTxEntry(chainedTx(nil, 1), 10000, time.Now(), 1, 0)
	pool.AddUnchecked(cheap, nil)
	pool.AddUnchecked(rich, nil)

	tree := pool.SortedByAncestorScore()
	best := tree.Max().(EntryAncestorFeeRateSort)
	assert.Equal(t, rich.TxHash, best.TxHash)
}
