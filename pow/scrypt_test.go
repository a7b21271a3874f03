package pow

import (
	"math/big"
	"testing"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"github.com/stretchr/testify/assert"
)

func testHeader() *wire.BlockHeader {
	return &wire.BlockHeader{Version: 1, Bits: 0x1d00ffff}
}

func maxTarget() *big.Int {
	b := make([]byte, 32)
	for i := range b {
		b[i] = 0xff
	}
	return new(big.Int).SetBytes(b)
}

// TestSearchFindsImmediateCandidateWhenTargetIsMax: a maximally permissive
// target (leading byte nonzero) makes every hash pass the early-exit scan on
// the first attempt.
func TestSearchFindsImmediateCandidateWhenTargetIsMax(t *testing.T) {
	out, err := Search(testHeader(), 0, maxTarget(), sha256dPoWHash)
	assert.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, uint32(1), out.HashesScanned)
}

// TestSearchReturnsImmediateSuccessForZeroTarget covers the target-all-zero
// short circuit of SPEC_FULL.md §4.C: no hash is computed at all.
func TestSearchReturnsImmediateSuccessForZeroTarget(t *testing.T) {
	out, err := Search(testHeader(), 7, big.NewInt(0), sha256dPoWHash)
	assert.NoError(t, err)
	assert.True(t, out.Found)
	assert.Equal(t, uint32(7), out.Nonce)
	assert.Equal(t, uint32(0), out.HashesScanned)
}

// TestSearchYieldsAtNonceBoundaryForAnImpossibleTarget covers the periodic
// yield of SPEC_FULL.md §5: a target of 1 is (practically) never satisfied
// by a real hash, so Search must still return once the nonce crosses a
// 0xFFF boundary rather than scanning forever.
func TestSearchYieldsAtNonceBoundaryForAnImpossibleTarget(t *testing.T) {
	out, err := Search(testHeader(), 4095, big.NewInt(1), sha256dPoWHash)
	assert.NoError(t, err)
	assert.False(t, out.Found)
	assert.Equal(t, uint32(4096), out.Nonce)
	assert.Equal(t, uint32(1), out.HashesScanned)
}

func TestVerifyHashPreciseComparison(t *testing.T) {
	target := big.NewInt(1000)
	var low, high chainhash.Hash
	low[31] = 5
	high[0] = 1

	assert.True(t, VerifyHash(low, target))
	assert.False(t, VerifyHash(high, target))
}

func TestCompactToBigRoundTripsThroughBigToCompact(t *testing.T) {
	for _, bits := range []uint32{0x1d00ffff, 0x1b0404cb, 0x207fffff} {
		n := CompactToBig(bits)
		assert.Equal(t, bits, BigToCompact(n))
	}
}

func TestFirstNonzeroByteFromTopFindsLeadingZeroRun(t *testing.T) {
	var buf [32]byte
	buf[10] = 0x01
	assert.Equal(t, 10, firstNonzeroByteFromTop(buf))

	var zero [32]byte
	assert.Equal(t, 32, firstNonzeroByteFromTop(zero))
}
