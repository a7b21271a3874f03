package pow

import "math/big"

// CompactToBig converts the compact "bits" representation of a proof-of-work
// target into the equivalent big.Int, following the IEEE754-like
// exponent/sign/mantissa layout used throughout the Bitcoin family.
//
// Grounded on _examples/torrejonv-teranode/services/blockchain/Difficulty.go's
// CompactToBig/BigToCompact pair, since the teacher's own model/pow package
// calls functions of these exact names that are never actually defined
// anywhere in its squashed history; this is the real algorithm they stand in
// for, re-derived from an example repo that does carry it.
func CompactToBig(compact uint32) *big.Int {
	mantissa := compact & 0x007fffff
	isNegative := compact&0x00800000 != 0
	exponent := uint(compact >> 24)

	var bn *big.Int
	if exponent <= 3 {
		mantissa >>= 8 * (3 - exponent)
		bn = big.NewInt(int64(mantissa))
	} else {
		bn = big.NewInt(int64(mantissa))
		bn.Lsh(bn, 8*(exponent-3))
	}

	if isNegative {
		bn = bn.Neg(bn)
	}
	return bn
}

// BigToCompact converts a big.Int target into its compact "bits"
// representation, the inverse of CompactToBig.
func BigToCompact(n *big.Int) uint32 {
	if n.Sign() == 0 {
		return 0
	}

	var mantissa uint32
	exponent := uint(len(n.Bytes()))
	if exponent <= 3 {
		mantissa = uint32(n.Bits()[0])
		mantissa <<= 8 * (3 - exponent)
	} else {
		tn := new(big.Int).Set(n)
		mantissa = uint32(tn.Rsh(tn, 8*(exponent-3)).Bits()[0])
	}

	if mantissa&0x00800000 != 0 {
		mantissa >>= 8
		exponent++
	}

	compact := uint32(exponent<<24) | mantissa
	if n.Sign() < 0 {
		compact |= 0x00800000
	}
	return compact
}

// firstNonzeroByteFromTop returns the index (0 = most significant byte of a
// big-endian 32-byte target) of the highest-order nonzero byte, or 32 if the
// target is entirely zero. Grounded on
// _examples/original_source/src/miner.cpp's ScanScryptHash, which computes
// the equivalent firstLEZeroByte over the little-endian in-memory layout of
// the target; expressed here over a big-endian byte slice instead, since
// chainhash.Hash already stores its bytes in that order.
func firstNonzeroByteFromTop(target [32]byte) int {
	for i := 0; i < 32; i++ {
		if target[i] != 0 {
			return i
		}
	}
	return 32
}

// targetBytes renders a target big.Int as a big-endian, zero-padded 32-byte
// array, the fixed-width form the Nonce Searcher's byte scan operates over.
func targetBytes(target *big.Int) [32]byte {
	var out [32]byte
	b := target.Bytes()
	if len(b) > 32 {
		b = b[len(b)-32:]
	}
	copy(out[32-len(b):], b)
	return out
}
