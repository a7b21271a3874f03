package mining

import (
	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
)

// ComputeMerkleRoot is the constant-space merkle root calculator of
// SPEC_FULL.md §4.D step 3 (recompute the merkle root after replacing the
// coinbase). Grounded on
// _examples/copernet-copernicus/consensus/merkle.go's merkleComputation,
// adapted to wire.MsgTx/chainhash.Hash and with the merkle-branch/mutation
// outputs dropped since nothing in this repo needs a Merkle proof, only the
// root.
func ComputeMerkleRoot(leaves []chainhash.Hash) chainhash.Hash {
	if len(leaves) == 0 {
		return chainhash.Hash{}
	}

	var inner [32]chainhash.Hash
	count := uint32(0)
	for int(count) < len(leaves) {
		h := leaves[count]
		count++
		level := 0
		for ; (count & (uint32(1) << uint(level))) == 0; level++ {
			h = hashPair(inner[level], h)
		}
		inner[level] = h
	}

	level := 0
	for ; (count & (uint32(1) << uint(level))) == 0; level++ {
	}
	h := inner[level]
	for count != (uint32(1) << uint(level)) {
		h = hashPair(h, h)
		count += uint32(1) << uint(level)
		level++
		for ; (count & (uint32(1) << uint(level))) == 0; level++ {
			h = hashPair(inner[level], h)
		}
	}
	return h
}

func hashPair(left, right chainhash.Hash) chainhash.Hash {
	var buf [chainhash.HashSize * 2]byte
	copy(buf[:chainhash.HashSize], left[:])
	copy(buf[chainhash.HashSize:], right[:])
	return chainhash.DoubleHashH(buf[:])
}

// RecomputeMerkleRoot sets block's header merkle root from its current
// transaction list, called after the coinbase scriptSig is rewritten with a
// new extra nonce.
func RecomputeMerkleRoot(block *wire.MsgBlock) {
	leaves := make([]chainhash.Hash, len(block.Transactions))
	for i, tx := range block.Transactions {
		leaves[i] = tx.TxHash()
	}
	block.Header.MerkleRoot = ComputeMerkleRoot(leaves)
}
