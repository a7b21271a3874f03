package mempool

import (
	"testing"
	"time"

	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
)

func dummyTx(lockTime uint32) *wire.MsgTx {
	tx := wire.NewMsgTx(wire.TxVersion)
	tx.LockTime = lockTime
	tx.AddTxIn(&wire.TxIn{PreviousOutPoint: wire.OutPoint{Index: 0}})
	tx.AddTxOut(&wire.TxOut{Value: 1000})
	return tx
}

func TestNewTxEntrySeedsAncestorAggregates(t *testing.T) {
	tx := dummyTx(0)
	entry := NewTxEntry(tx, 500, time.Unix(1700000000, 0), 100, 1)

	assert.Equal(t, entry.TxSize, entry.SizeWithAncestors)
	assert.Equal(t, entry.ModifiedFee(), entry.ModFeeWithAncestors)
	assert.Equal(t, int64(1), entry.CountWithAncestors)
}

func TestUpdateAncestorStateAccumulates(t *testing.T) {
	entry := NewTxEntry(dummyTx(0), 500, time.Unix(1700000000, 0), 100, 1)
	entry.UpdateAncestorState(200, 1, 50, 1)

	assert.Equal(t, entry.TxSize+200, entry.SizeWithAncestors)
	assert.Equal(t, int64(2), entry.SigOpCountWithAncestors)
	assert.Equal(t, entry.ModifiedFee()+50, entry.ModFeeWithAncestors)
	assert.Equal(t, int64(2), entry.CountWithAncestors)
}

func TestUpdateParentLinksAreReciprocal(t *testing.T) {
	parent := NewTxEntry(dummyTx(0), 100, time.Now(), 10, 0)
	child := NewTxEntry(dummyTx(1), 100, time.Now(), 10, 0)

	child.UpdateParent(parent, true)
	assert.Contains(t, child.ParentTx, parent)
	assert.Contains(t, parent.ChildTx, child)

	child.UpdateParent(parent, false)
	assert.NotContains(t, child.ParentTx, parent)
	assert.NotContains(t, parent.ChildTx, child)
}

func TestEntryAncestorFeeRateSortOrdersAscending(t *testing.T) {
	low := NewTxEntry(dummyTx(0), 10, time.Now(), 1, 0)
	high := NewTxEntry(dummyTx(1), 1000, time.Now(), 1, 0)

	// equal size, so the higher fee has the higher rate; Less is ascending
	assert.True(t, EntryAncestorFeeRateSort{low}.Less(EntryAncestorFeeRateSort{high}))
	assert.False(t, EntryAncestorFeeRateSort{high}.Less(EntryAncestorFeeRateSort{low}))
}
