// Package pow implements the Nonce Searcher of SPEC_FULL.md §4.C: a
// memory-hard proof-of-work scan over a block header's nonce field, with the
// early-exit byte scan and periodic yield the reference miner relies on to
// stay responsive to cancellation.
package pow

import (
	"bytes"
	"math/big"

	"github.com/btcsuite/btcd/chaincfg/chainhash"
	"github.com/btcsuite/btcd/wire"
	"golang.org/x/crypto/scrypt"
)

// yieldMask sets when Search returns control to its caller even without a
// candidate: once the nonce reaches a multiple of yieldMask+1 (4096), so the
// caller can check cancellation and tip staleness. Grounded on _examples/original_source/src/miner.cpp's
// ScanScryptHash, whose `(nNonce & 0xfff) == 0` check yields every 4096
// nonces.
const yieldMask = 0xFFF

// HashFunc computes the proof-of-work hash of a serialized block header.
// The pluggable-strategy design note of SPEC_FULL.md §9/§4.C: production
// code always passes ScryptPoWHash; tests may substitute a cheaper one.
type HashFunc func(header []byte) (chainhash.Hash, error)

// ScryptPoWHash is the production hash strategy: scrypt with N=1024, r=1,
// p=1, dkLen=32, the direct equivalent of the reference implementation's
// scrypt_1024_1_1_256, using the header's own bytes as both password and
// salt the way Litecoin-family coins do.
func ScryptPoWHash(header []byte) (chainhash.Hash, error) {
	sum, err := scrypt.Key(header, header, 1024, 1, 1, chainhash.HashSize)
	if err != nil {
		return chainhash.Hash{}, err
	}
	var h chainhash.Hash
	copy(h[:], sum)
	return h, nil
}

// sha256dPoWHash is a cheap double-SHA256 stand-in for tests that want a
// fast hash function; it is never wired into production. The Go-native
// equivalent of the reference implementation's commented-out ScanSHA256Hash
// branch.
func sha256dPoWHash(header []byte) (chainhash.Hash, error) {
	return chainhash.DoubleHashH(header), nil
}

// Outcome is the result of one Search call.
type Outcome struct {
	// Found is true when a candidate nonce passed the early-exit scan.
	// The caller must still perform the precise big.Int comparison
	// before treating the block as solved.
	Found bool
	Nonce uint32
	Hash  chainhash.Hash

	// HashesScanned is the number of hashes computed during this call,
	// for the supervisor's hashes/second telemetry.
	HashesScanned uint32
}

// Search scans nonces starting at startNonce on a local copy of header (the
// caller's header is never modified), until either a candidate passes the
// early-exit byte scan against target or the nonce reaches a multiple of
// yieldMask+1 without one. It performs no cancellation checks of its own;
// the caller re-invokes it in a loop and decides when to stop. Grounded on
// _examples/original_source/src/miner.cpp's ScanScryptHash.
func Search(header *wire.BlockHeader, startNonce uint32, target *big.Int, hash HashFunc) (Outcome, error) {
	local := *header
	header = &local
	targetBuf := targetBytes(target)
	firstNonzero := firstNonzeroByteFromTop(targetBuf)
	if firstNonzero == 32 {
		return Outcome{Found: true, Nonce: startNonce}, nil
	}

	nonce := startNonce
	var scanned uint32
	for {
		header.Nonce = nonce

		var buf bytes.Buffer
		if err := header.Serialize(&buf); err != nil {
			return Outcome{}, err
		}
		h, err := hash(buf.Bytes())
		if err != nil {
			return Outcome{}, err
		}
		scanned++

		if aboveFirstNonzeroAllZero(h, firstNonzero) {
			return Outcome{Found: true, Nonce: nonce, Hash: h, HashesScanned: scanned}, nil
		}

		nonce++
		if nonce&yieldMask == 0 {
			return Outcome{Found: false, Nonce: nonce, HashesScanned: scanned}, nil
		}
	}
}

// aboveFirstNonzeroAllZero reports whether every hash byte more significant
// than the target's leading nonzero byte is zero — the necessary condition
// for hash <= target that Search can check without a full big.Int compare.
func aboveFirstNonzeroAllZero(hash chainhash.Hash, firstNonzero int) bool {
	for i := 0; i < firstNonzero; i++ {
		if hash[i] != 0 {
			return false
		}
	}
	return true
}

// VerifyHash precisely checks hash <= target, the full comparison Search's
// byte scan only approximates.
func VerifyHash(hash chainhash.Hash, target *big.Int) bool {
	got := new(big.Int).SetBytes(hash[:])
	return got.Cmp(target) <= 0
}

// HashHeader serializes header as it currently stands and runs it through
// hash, the same call Search itself makes for each nonce. Exported so a
// caller holding a candidate nonce can independently recompute its hash and
// assert it against the one Search reported, rather than trusting Search's
// own bookkeeping.
func HashHeader(header *wire.BlockHeader, hash HashFunc) (chainhash.Hash, error) {
	var buf bytes.Buffer
	if err := header.Serialize(&buf); err != nil {
		return chainhash.Hash{}, err
	}
	return hash(buf.Bytes())
}
