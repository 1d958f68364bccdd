package crypto

import "github.com/btcsuite/btcd/chaincfg/chainhash"

// ChainHasher implements Hasher using the double-SHA256 construction from
// chainhash, the same hash the teacher repository uses to identify
// transactions and blocks.
type ChainHasher struct{}

// Hash implements Hasher.
func (ChainHasher) Hash(data []byte) Hash {
	return Hash(chainhash.DoubleHashB(data))
}
